// Package metrics scores recorded control runs.
package metrics

// Point is one control-loop sample as the metrics see it.
type Point struct {
	T        float64
	Position float64
	Velocity float64
	Target   float64
	Command  float64
	Enabled  bool
}

type Metric interface {
	Name() string
	Observe(p Point)
	Value() float64
	Reset()
}

// Defaults returns a fresh set of the standard metrics. band is the arrival
// tolerance around the target.
func Defaults(band float64) []Metric {
	return []Metric{
		NewControlEffort(),
		NewStability(band),
		NewSettlingTime(band),
		NewOvershoot(),
	}
}

// Names lists the metric names Defaults produces.
func Names() []string {
	return []string{"control_effort", "stability", "settling_time", "overshoot"}
}

// targetTracker notices target changes.
type targetTracker struct {
	target  float64
	changed float64
	seen    bool
}

// update returns true when p carries a new target.
func (tt *targetTracker) update(p Point) bool {
	if !p.Enabled {
		return false
	}
	if tt.seen && p.Target == tt.target {
		return false
	}
	tt.target = p.Target
	tt.changed = p.T
	tt.seen = true
	return true
}
