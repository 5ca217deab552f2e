package metrics

import "math"

// Overshoot is the largest distance the position went past the target, in the
// direction of travel, since the latest target change.
type Overshoot struct {
	tracker   targetTracker
	direction float64
	max       float64
}

func NewOvershoot() *Overshoot {
	return &Overshoot{}
}

func (o *Overshoot) Name() string { return "overshoot" }

func (o *Overshoot) Observe(p Point) {
	if o.tracker.update(p) {
		o.max = 0
		o.direction = 0
		if d := p.Target - p.Position; d != 0 {
			o.direction = math.Copysign(1, d)
		}
	}
	if o.direction == 0 || !p.Enabled {
		return
	}
	if past := o.direction * (p.Position - p.Target); past > o.max {
		o.max = past
	}
}

func (o *Overshoot) Value() float64 {
	return o.max
}

func (o *Overshoot) Reset() {
	*o = Overshoot{}
}
