package operator

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/san-kum/posctl/internal/control"
	"github.com/san-kum/posctl/internal/logging"
	"github.com/san-kum/posctl/internal/telemetry"
	"github.com/san-kum/posctl/internal/tuning"
)

const DefaultPeriod = 20 * time.Millisecond

type Config struct {
	Step   float64
	Period time.Duration
}

func DefaultConfig() Config {
	return Config{Step: control.DefaultStep, Period: DefaultPeriod}
}

// Sample is what one tick did.
type Sample struct {
	Tick       uint64
	Time       time.Time
	Mode       control.Mode
	Target     float64
	TotalDelta float64
	Command    float64
	Writes     int
}

// Loop is the periodic control loop for one actuator. It is the only
// goroutine touching the controller and bridge.
type Loop struct {
	pos    *control.Position
	bridge *tuning.Bridge
	store  telemetry.Store
	clk    clock.Clock
	cfg    Config
	logger *zap.SugaredLogger

	tick   uint64
	errLog rate.Sometimes

	// OnTick, if set, sees every sample. It runs on the loop goroutine.
	OnTick func(Sample)
}

func NewLoop(pos *control.Position, bridge *tuning.Bridge, store telemetry.Store, clk clock.Clock, cfg Config, logger *zap.SugaredLogger) *Loop {
	if cfg.Step == 0 {
		cfg.Step = control.DefaultStep
	}
	if cfg.Period <= 0 {
		cfg.Period = DefaultPeriod
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Loop{
		pos:    pos,
		bridge: bridge,
		store:  store,
		clk:    clk,
		cfg:    cfg,
		logger: logging.OrNop(logger),
		errLog: rate.Sometimes{Interval: tuning.LogInterval},
	}
}

func (l *Loop) Position() *control.Position { return l.pos }
func (l *Loop) Bridge() *tuning.Bridge      { return l.bridge }
func (l *Loop) Config() Config              { return l.cfg }

// Tick applies ev and runs one control step. Errors are returned for the
// caller's information; the loop itself keeps going.
func (l *Loop) Tick(ev Events) (Sample, error) {
	var errs error

	if ev.Toggle {
		if _, err := l.pos.Toggle(); err != nil {
			errs = multierr.Append(errs, err)
		}
	}
	if l.pos.Enabled() {
		switch {
		case ev.Decrease:
			errs = multierr.Append(errs, l.rotate(-l.cfg.Step, "decreasing target position"))
		case ev.Increase:
			errs = multierr.Append(errs, l.rotate(l.cfg.Step, "increasing target position"))
		}
	}

	cmd, err := l.pos.UpdateSpeed()
	errs = multierr.Append(errs, err)

	writes := 0
	if l.bridge != nil {
		writes = l.bridge.Sync()
	}
	if l.store != nil {
		errs = multierr.Append(errs, multierr.Combine(
			l.store.PublishBool(telemetry.KeyMotorEnabled, l.pos.Enabled()),
			l.store.PublishNumber(telemetry.KeyTargetPosition, l.pos.Target()),
		))
	}

	l.tick++
	s := Sample{
		Tick:       l.tick,
		Time:       l.clk.Now(),
		Mode:       l.pos.Mode(),
		Target:     l.pos.Target(),
		TotalDelta: l.pos.TotalDelta(),
		Command:    cmd,
		Writes:     writes,
	}
	if l.OnTick != nil {
		l.OnTick(s)
	}
	return s, errs
}

func (l *Loop) rotate(offset float64, msg string) error {
	if err := l.pos.Rotate(offset); err != nil {
		return err
	}
	l.logger.Infow(msg, "target", l.pos.Target())
	return nil
}

// Run ticks at the configured period until ctx is done, then disables the
// controller. Events arriving between ticks are merged into the next tick.
func (l *Loop) Run(ctx context.Context, events <-chan Events) error {
	ticker := l.clk.Ticker(l.cfg.Period)
	defer ticker.Stop()

	l.logger.Infow("control loop started", "period", l.cfg.Period, "step", l.cfg.Step)
	var pending Events
	for {
		select {
		case <-ctx.Done():
			l.logger.Infow("control loop stopped", "ticks", l.tick)
			return errors.Wrap(l.pos.Disable(), "stopping control loop")
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			pending = pending.Merge(ev)
		case <-ticker.C:
			if _, err := l.Tick(pending); err != nil {
				l.errLog.Do(func() {
					l.logger.Warnw("control tick failed", "error", err)
				})
			}
			pending = Events{}
		}
	}
}
