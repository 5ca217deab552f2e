package control

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/san-kum/posctl/internal/actuator"
	"github.com/san-kum/posctl/internal/logging"
)

const (
	DefaultMaxSpeed  = 0.7
	DefaultThreshold = 0.0005
	DefaultStep      = 20.0
)

type Mode int

const (
	Disabled Mode = iota
	Enabled
)

func (m Mode) String() string {
	if m == Enabled {
		return "enabled"
	}
	return "disabled"
}

type PositionConfig struct {
	MaxSpeed  float64
	Threshold float64
}

func DefaultPositionConfig() PositionConfig {
	return PositionConfig{MaxSpeed: DefaultMaxSpeed, Threshold: DefaultThreshold}
}

func (c PositionConfig) validate() error {
	if !(c.MaxSpeed > 0 && c.MaxSpeed <= 1) {
		return errors.Errorf("max speed must be in (0, 1], got %v", c.MaxSpeed)
	}
	if !(c.Threshold >= 0) || math.IsInf(c.Threshold, 1) {
		return errors.Errorf("threshold must be finite and not negative, got %v", c.Threshold)
	}
	return nil
}

// Position is the proportional position controller for one actuator. It is
// not safe for concurrent use; the control loop is its only caller.
type Position struct {
	name   string
	sensor actuator.PositionSensor
	drive  actuator.Drive
	cfg    PositionConfig
	logger *zap.SugaredLogger

	mode        Mode
	target      float64
	totalDelta  float64
	lastCommand float64
	sensorFault bool
}

// NewPosition binds a controller to m and sets the drive to brake when idle.
func NewPosition(m *actuator.Motor, cfg PositionConfig, logger *zap.SugaredLogger) (*Position, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if m == nil || m.Sensor == nil || m.Drive == nil {
		return nil, errors.New("position control needs a sensor and a drive")
	}
	if err := m.Drive.SetIdleMode(actuator.IdleBrake); err != nil {
		return nil, errors.Wrapf(err, "setting brake mode on %s", m.Name)
	}
	return &Position{
		name:   m.Name,
		sensor: m.Sensor,
		drive:  m.Drive,
		cfg:    cfg,
		logger: logging.OrNop(logger).With("motor", m.Name),
	}, nil
}

func (p *Position) Name() string         { return p.name }
func (p *Position) Mode() Mode           { return p.mode }
func (p *Position) Enabled() bool        { return p.mode == Enabled }
func (p *Position) Target() float64      { return p.target }
func (p *Position) TotalDelta() float64  { return p.totalDelta }
func (p *Position) LastCommand() float64 { return p.lastCommand }
func (p *Position) Config() PositionConfig {
	return p.cfg
}

// SetTargetPosition sets a new target and captures the distance to it.
func (p *Position) SetTargetPosition(target float64) error {
	if p.mode != Enabled {
		return actuator.ErrDisabled
	}
	return p.setTarget(target)
}

// Rotate moves the target by offset.
func (p *Position) Rotate(offset float64) error {
	return p.SetTargetPosition(p.target + offset)
}

// ResetClosedLoopControl holds the present position.
func (p *Position) ResetClosedLoopControl() error {
	if p.mode != Enabled {
		return actuator.ErrDisabled
	}
	return p.reset()
}

func (p *Position) reset() error {
	current, err := actuator.ReadPosition(p.sensor)
	if err != nil {
		return err
	}
	p.target = current
	p.totalDelta = 0
	return nil
}

func (p *Position) setTarget(target float64) error {
	if math.IsNaN(target) || math.IsInf(target, 0) {
		return errors.Wrapf(actuator.ErrNonFinite, "target %v", target)
	}
	current, err := actuator.ReadPosition(p.sensor)
	if err != nil {
		return err
	}
	p.target = target
	p.totalDelta = target - current
	return nil
}

// Enable switches control on, holding the present position. The controller
// stays disabled if the sensor cannot be read.
func (p *Position) Enable() error {
	if p.mode == Enabled {
		return nil
	}
	if err := p.reset(); err != nil {
		return errors.Wrap(err, "enabling position control")
	}
	p.mode = Enabled
	p.logger.Infow("enabling position control", "target", p.target)
	return nil
}

// Disable switches control off and commands 0.
func (p *Position) Disable() error {
	if p.mode == Disabled {
		return nil
	}
	p.mode = Disabled
	p.logger.Infow("disabling position control")
	return p.command(0)
}

// Toggle flips the enabled state and returns the new mode.
func (p *Position) Toggle() (Mode, error) {
	if p.mode == Enabled {
		return p.mode, p.Disable()
	}
	err := p.Enable()
	return p.mode, err
}

// UpdateSpeed runs one control step and returns the command issued. The only
// error it returns is a failed drive write; sensor trouble commands 0.
func (p *Position) UpdateSpeed() (float64, error) {
	if p.mode != Enabled {
		return 0, p.command(0)
	}

	current, err := actuator.ReadPosition(p.sensor)
	if err != nil {
		if !p.sensorFault {
			p.logger.Warnw("position sensor unavailable, holding at zero command", "error", err)
			p.sensorFault = true
		}
		return 0, p.command(0)
	}
	if p.sensorFault {
		p.logger.Infow("position sensor recovered", "position", current)
		p.sensorFault = false
	}

	speed := ProportionalSpeed(p.target, p.totalDelta, current, p.cfg.MaxSpeed, p.cfg.Threshold)
	return speed, p.command(speed)
}

func (p *Position) command(speed float64) error {
	p.lastCommand = speed
	if err := p.drive.Command(speed); err != nil {
		return errors.Wrapf(err, "commanding %s", p.name)
	}
	return nil
}

// ProportionalSpeed is the control law. A zero totalDelta means the target was
// set where the actuator already was, so the command is 0 regardless of drift.
// The magnitude never exceeds maxSpeed, even after overshoot or a mid-flight
// target change.
func ProportionalSpeed(target, totalDelta, current, maxSpeed, threshold float64) float64 {
	delta := target - current
	if math.Abs(delta) <= threshold || totalDelta == 0 {
		return 0
	}

	speed := math.Min(math.Abs(delta/totalDelta)*maxSpeed, maxSpeed)
	if math.IsNaN(speed) || math.IsInf(speed, 0) {
		return 0
	}
	if delta < 0 {
		speed = -speed
	}
	return actuator.Clamp(speed, -1, 1)
}
