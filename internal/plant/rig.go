package plant

import (
	"math"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/san-kum/posctl/internal/actuator"
	"github.com/san-kum/posctl/internal/dynamo"
	"github.com/san-kum/posctl/internal/integrators"
)

const defaultSubstep = 0.001

type Config struct {
	Spec       Spec
	Gains      actuator.Gains
	Inverted   bool
	Start      float64
	Integrator string
}

// Rig is a simulated motor, motor controller and encoder. Physics advances
// lazily to the rig clock's current time whenever the rig is touched, so a
// mock clock gives fully deterministic runs.
type Rig struct {
	clk   clock.Clock
	motor *DCMotor
	ctrl  *Controller
	integ dynamo.Integrator

	x        dynamo.State
	t        float64
	last     time.Time
	command  float64
	applied  float64
	idle     actuator.IdleMode
	inverted bool
	fault    error
}

func NewRig(clk clock.Clock, cfg Config) *Rig {
	integ := integrators.New(cfg.Integrator)
	if integ == nil {
		integ = integrators.NewRK4()
	}
	sign := 1.0
	if cfg.Inverted {
		sign = -1
	}
	return &Rig{
		clk:      clk,
		motor:    NewDCMotor(cfg.Spec),
		ctrl:     NewController(cfg.Gains),
		integ:    integ,
		x:        dynamo.State{sign * cfg.Start, 0},
		last:     clk.Now(),
		inverted: cfg.Inverted,
	}
}

func (r *Rig) sign() float64 {
	if r.inverted {
		return -1
	}
	return 1
}

func (r *Rig) advance() {
	now := r.clk.Now()
	elapsed := now.Sub(r.last).Seconds()
	r.last = now
	if elapsed <= 0 {
		return
	}

	steps := int(math.Ceil(elapsed / defaultSubstep))
	h := elapsed / float64(steps)
	brake := 0.0
	if r.idle == actuator.IdleBrake {
		brake = 1
	}
	for i := 0; i < steps; i++ {
		measured := r.sign() * r.x[1] / r.motor.Spec.FreeSpeed
		r.applied = r.ctrl.Output(r.command, measured, h)
		r.x = r.integ.Step(r.motor, r.x, dynamo.Control{r.sign() * r.applied, brake}, r.t, h)
		r.t += h
	}
}

func (r *Rig) Position() (float64, error) {
	r.advance()
	if r.fault != nil {
		return 0, r.fault
	}
	return r.sign() * r.x[0], nil
}

func (r *Rig) Velocity() (float64, error) {
	r.advance()
	if r.fault != nil {
		return 0, r.fault
	}
	return r.sign() * r.x[1], nil
}

func (r *Rig) Inverted() bool { return r.inverted }

// State returns the true position and velocity in the reported frame,
// ignoring any injected fault.
func (r *Rig) State() (pos, vel float64) {
	r.advance()
	return r.sign() * r.x[0], r.sign() * r.x[1]
}

func (r *Rig) Command(speed float64) error {
	r.advance()
	r.command = actuator.Clamp(speed, -1, 1)
	return nil
}

func (r *Rig) SetIdleMode(mode actuator.IdleMode) error {
	r.advance()
	r.idle = mode
	return nil
}

// SetFault makes sensor reads fail with err until cleared with nil.
func (r *Rig) SetFault(err error) {
	r.advance()
	r.fault = err
}

func (r *Rig) Controller() *Controller { return r.ctrl }

// Commanded is the last speed passed to Command.
func (r *Rig) Commanded() float64 { return r.command }

// Applied is the duty the motor controller applied on the last substep.
func (r *Rig) Applied() float64 { return r.applied }

func (r *Rig) IdleMode() actuator.IdleMode { return r.idle }

// Motor binds the rig as a named actuator. closedLoop exposes the motor
// controller's gain interface.
func (r *Rig) Motor(name string, closedLoop bool) *actuator.Motor {
	m := &actuator.Motor{Name: name, Sensor: r, Drive: r}
	if closedLoop {
		m.Gains = r.ctrl
	}
	return m
}

var (
	_ actuator.PositionSensor = (*Rig)(nil)
	_ actuator.Drive          = (*Rig)(nil)
	_ actuator.GainController = (*Controller)(nil)
)
