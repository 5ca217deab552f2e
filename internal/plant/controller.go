package plant

import (
	"math"

	"github.com/san-kum/posctl/internal/actuator"
)

// Controller models the velocity loop running on the motor controller. The
// commanded speed is treated as a normalized velocity reference; the output is
// the duty cycle actually applied to the motor.
type Controller struct {
	gains    actuator.Gains
	integral float64
	prevErr  float64
	first    bool
	writes   int
}

func NewController(g actuator.Gains) *Controller {
	return &Controller{gains: g, first: true}
}

// Output computes one controller step. ref and measured are both normalized to
// free speed.
func (c *Controller) Output(ref, measured, dt float64) float64 {
	if ref == 0 {
		c.Reset()
		return 0
	}

	err := ref - measured
	if c.gains.IZone == 0 || math.Abs(err) <= c.gains.IZone {
		c.integral += err * dt
	} else {
		c.integral = 0
	}

	derivative := 0.0
	if !c.first && dt > 0 {
		derivative = (err - c.prevErr) / dt
	}
	c.prevErr = err
	c.first = false

	u := c.gains.FF*ref + c.gains.P*err + c.gains.I*c.integral + c.gains.D*derivative
	return actuator.Clamp(u, c.gains.MinOutput, c.gains.MaxOutput)
}

// Reset clears integral and derivative state.
func (c *Controller) Reset() {
	c.integral = 0
	c.prevErr = 0
	c.first = true
}

// Gains returns the parameters currently loaded on the controller.
func (c *Controller) Gains() actuator.Gains { return c.gains }

// Writes counts parameter writes since construction.
func (c *Controller) Writes() int { return c.writes }

func (c *Controller) SetProportionalGain(v float64) error {
	c.gains.P = v
	c.writes++
	return nil
}

func (c *Controller) SetIntegralGain(v float64) error {
	c.gains.I = v
	c.integral = 0
	c.writes++
	return nil
}

func (c *Controller) SetDerivativeGain(v float64) error {
	c.gains.D = v
	c.writes++
	return nil
}

func (c *Controller) SetIntegralZone(v float64) error {
	c.gains.IZone = v
	c.writes++
	return nil
}

func (c *Controller) SetFeedForward(v float64) error {
	c.gains.FF = v
	c.writes++
	return nil
}

func (c *Controller) SetOutputRange(min, max float64) error {
	if min > max {
		return actuator.NewOutputRangeError(min, max)
	}
	c.gains.MinOutput = min
	c.gains.MaxOutput = max
	c.writes++
	return nil
}
