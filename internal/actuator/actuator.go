package actuator

import "math"

// IdleMode is what the motor does when commanded 0.
type IdleMode int

const (
	IdleCoast IdleMode = iota
	IdleBrake
)

func (m IdleMode) String() string {
	if m == IdleBrake {
		return "brake"
	}
	return "coast"
}

type PositionSensor interface {
	Position() (float64, error)
	Velocity() (float64, error)
	Inverted() bool
}

type Drive interface {
	Command(speed float64) error
	SetIdleMode(mode IdleMode) error
}

type GainController interface {
	SetProportionalGain(v float64) error
	SetIntegralGain(v float64) error
	SetDerivativeGain(v float64) error
	SetIntegralZone(v float64) error
	SetFeedForward(v float64) error
	SetOutputRange(min, max float64) error
}

// Motor is one named physical actuator. Gains is nil for open-loop bindings.
type Motor struct {
	Name   string
	Sensor PositionSensor
	Drive  Drive
	Gains  GainController
}

// ClosedLoop reports whether the motor has an attached hardware gain controller.
func (m *Motor) ClosedLoop() bool {
	return m.Gains != nil
}

// ReadPosition reads the sensor and rejects NaN/Inf readings.
func ReadPosition(s PositionSensor) (float64, error) {
	p, err := s.Position()
	if err != nil {
		return 0, wrapSensor(err)
	}
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return 0, wrapSensor(ErrNonFinite)
	}
	return p, nil
}

// ReadVelocity reads s.Velocity with the same checks as ReadPosition.
func ReadVelocity(s PositionSensor) (float64, error) {
	v, err := s.Velocity()
	if err != nil {
		return 0, wrapSensor(err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, wrapSensor(ErrNonFinite)
	}
	return v, nil
}

// Clamp restricts v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
