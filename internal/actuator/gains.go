package actuator

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

// Gains is the parameter block of a closed-loop motor controller.
type Gains struct {
	P         float64 `yaml:"p" json:"p"`
	I         float64 `yaml:"i" json:"i"`
	D         float64 `yaml:"d" json:"d"`
	IZone     float64 `yaml:"i_zone" json:"i_zone"`
	FF        float64 `yaml:"ff" json:"ff"`
	MinOutput float64 `yaml:"min_output" json:"min_output"`
	MaxOutput float64 `yaml:"max_output" json:"max_output"`
}

// DefaultGains passes the commanded speed straight through with a light
// proportional correction.
func DefaultGains() Gains {
	return Gains{P: 0.1, FF: 1, MinOutput: -1, MaxOutput: 1}
}

func (g Gains) Validate() error {
	for _, v := range []float64{g.P, g.I, g.D, g.IZone, g.FF, g.MinOutput, g.MaxOutput} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Wrapf(ErrNonFinite, "gains %+v", g)
		}
	}
	if g.MinOutput > g.MaxOutput {
		return NewOutputRangeError(g.MinOutput, g.MaxOutput)
	}
	return nil
}

// Apply writes every gain to gc. All writes are attempted.
func (g Gains) Apply(gc GainController) error {
	return multierr.Combine(
		gc.SetProportionalGain(g.P),
		gc.SetIntegralGain(g.I),
		gc.SetDerivativeGain(g.D),
		gc.SetIntegralZone(g.IZone),
		gc.SetFeedForward(g.FF),
		gc.SetOutputRange(g.MinOutput, g.MaxOutput),
	)
}
