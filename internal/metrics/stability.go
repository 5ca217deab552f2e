package metrics

import (
	"math"
)

// Stability is the fraction of enabled samples spent within band of the
// target.
type Stability struct {
	name    string
	band    float64
	inside  int
	samples int
}

func NewStability(band float64) *Stability {
	return &Stability{
		name: "stability",
		band: band,
	}
}

func (s *Stability) Name() string {
	return s.name
}

func (s *Stability) Observe(p Point) {
	if !p.Enabled {
		return
	}
	s.samples++
	if math.Abs(p.Target-p.Position) <= s.band {
		s.inside++
	}
}

func (s *Stability) Value() float64 {
	if s.samples == 0 {
		return 1.0
	}
	return float64(s.inside) / float64(s.samples)
}

func (s *Stability) Reset() {
	s.inside = 0
	s.samples = 0
}
