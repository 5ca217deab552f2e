package experiment

import (
	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/san-kum/posctl/internal/actuator"
	"github.com/san-kum/posctl/internal/config"
	"github.com/san-kum/posctl/internal/control"
	"github.com/san-kum/posctl/internal/logging"
	"github.com/san-kum/posctl/internal/operator"
	"github.com/san-kum/posctl/internal/plant"
	"github.com/san-kum/posctl/internal/telemetry"
	"github.com/san-kum/posctl/internal/tuning"
)

// Bench is one simulated actuator wired to its controller, bridge and loop.
type Bench struct {
	Config   *config.Config
	Rig      *plant.Rig
	Motor    *actuator.Motor
	Position *control.Position
	Gains    *tuning.GainSet
	Bridge   *tuning.Bridge
	Loop     *operator.Loop
	Store    telemetry.Store
}

// Assemble builds a bench from cfg. Gains are loaded onto the simulated
// controller before the first tick.
func Assemble(cfg *config.Config, reg *Registry, clk clock.Clock, store telemetry.Store, logger *zap.SugaredLogger) (*Bench, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if _, err := reg.GetIntegrator(cfg.Plant.Integrator); err != nil {
		return nil, err
	}
	spec, err := reg.Spec(cfg.Plant)
	if err != nil {
		return nil, err
	}
	logger = logging.OrNop(logger)

	rigGains := actuator.DefaultGains()
	if cfg.ClosedLoop {
		rigGains = cfg.Gains
	}
	rig := plant.NewRig(clk, plant.Config{
		Spec:       spec,
		Gains:      rigGains,
		Inverted:   cfg.Plant.Inverted,
		Start:      cfg.Plant.Start,
		Integrator: cfg.Plant.Integrator,
	})
	motor := rig.Motor(cfg.Name, cfg.ClosedLoop)

	pos, err := control.NewPosition(motor, cfg.PositionConfig(), logger.Named("control"))
	if err != nil {
		return nil, err
	}

	b := &Bench{Config: cfg, Rig: rig, Motor: motor, Position: pos, Store: store}
	b.Bridge = tuning.NewBridge(cfg.Name, motor.Sensor, store, logger.Named("tuning"))
	b.Bridge.AttachTracker(pos)
	if motor.ClosedLoop() {
		gs, err := tuning.NewGainSet(cfg.Name, motor.Gains, cfg.Gains)
		if err != nil {
			return nil, err
		}
		if err := gs.Push(); err != nil {
			return nil, errors.Wrap(err, "initial gain load")
		}
		b.Gains = gs
		b.Bridge.AttachGains(gs)
	}
	b.Loop = operator.NewLoop(pos, b.Bridge, store, clk, cfg.LoopConfig(), logger.Named("operator"))
	return b, nil
}
