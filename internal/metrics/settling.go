package metrics

import "math"

// SettlingTime is the time from the latest target change until the position
// entered band for good. A run that never settles reports the time elapsed
// since the change.
type SettlingTime struct {
	band    float64
	tracker targetTracker
	settled float64
	inside  bool
	last    float64
}

func NewSettlingTime(band float64) *SettlingTime {
	return &SettlingTime{band: band}
}

func (s *SettlingTime) Name() string { return "settling_time" }

func (s *SettlingTime) Observe(p Point) {
	s.last = p.T
	if s.tracker.update(p) {
		s.inside = false
	}
	if !s.tracker.seen {
		return
	}
	in := math.Abs(p.Target-p.Position) <= s.band
	if in && !s.inside {
		s.settled = p.T
	}
	s.inside = in
}

func (s *SettlingTime) Value() float64 {
	if !s.tracker.seen {
		return 0
	}
	if !s.inside {
		return s.last - s.tracker.changed
	}
	return s.settled - s.tracker.changed
}

func (s *SettlingTime) Reset() {
	*s = SettlingTime{band: s.band}
}
