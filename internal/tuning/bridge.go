package tuning

import (
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/san-kum/posctl/internal/actuator"
	"github.com/san-kum/posctl/internal/logging"
	"github.com/san-kum/posctl/internal/telemetry"
)

// LogInterval bounds how often a persistent telemetry or hardware failure is
// logged.
const LogInterval = 5 * time.Second

// Tracker is the position controller state published next to the sensor.
type Tracker interface {
	Target() float64
	TotalDelta() float64
}

// Bridge publishes one actuator's state and pulls its gains every tick.
type Bridge struct {
	name    string
	sensor  actuator.PositionSensor
	store   telemetry.Store
	gains   *GainSet
	tracker Tracker
	logger  *zap.SugaredLogger

	seeded     bool
	publishLog rate.Sometimes
	syncLog    rate.Sometimes
}

// NewBridge returns a bridge with no gain set and no tracker attached, which
// is what an open-loop actuator gets.
func NewBridge(name string, sensor actuator.PositionSensor, store telemetry.Store, logger *zap.SugaredLogger) *Bridge {
	return &Bridge{
		name:       name,
		sensor:     sensor,
		store:      store,
		logger:     logging.OrNop(logger).With("motor", name),
		publishLog: rate.Sometimes{Interval: LogInterval},
		syncLog:    rate.Sometimes{Interval: LogInterval},
	}
}

func (b *Bridge) Name() string { return b.name }

// AttachGains enables gain reconciliation.
func (b *Bridge) AttachGains(g *GainSet) {
	b.gains = g
	b.seeded = false
}

// AttachTracker adds target and total delta to what is published.
func (b *Bridge) AttachTracker(t Tracker) {
	b.tracker = t
}

func (b *Bridge) Gains() *GainSet { return b.gains }

// Sync publishes, then reconciles gains. It never fails; problems are logged
// and retried on the next call. It returns the number of hardware writes.
func (b *Bridge) Sync() int {
	if err := b.publish(); err != nil {
		b.publishLog.Do(func() {
			b.logger.Warnw("telemetry publish failed", "error", err)
		})
	}
	if b.gains == nil {
		return 0
	}

	if !b.seeded {
		if d, ok := b.store.(telemetry.Defaulter); ok {
			if err := b.gains.Seed(d); err != nil {
				b.syncLog.Do(func() {
					b.logger.Warnw("seeding gain keys failed", "error", err)
				})
			} else {
				b.seeded = true
			}
		} else {
			b.seeded = true
		}
	}

	writes, err := b.gains.Reconcile(b.store)
	if err != nil {
		b.syncLog.Do(func() {
			b.logger.Warnw("gain sync incomplete", "error", err)
		})
	}
	if writes > 0 {
		b.logger.Debugw("gains written", "writes", writes, "gains", b.gains.Cached())
	}
	return writes
}

func (b *Bridge) publish() error {
	var err error
	if pos, perr := actuator.ReadPosition(b.sensor); perr != nil {
		err = multierr.Append(err, perr)
	} else {
		err = multierr.Append(err, b.store.PublishNumber(telemetry.Key(b.name, telemetry.SuffixPosition), pos))
	}
	if vel, verr := actuator.ReadVelocity(b.sensor); verr != nil {
		err = multierr.Append(err, verr)
	} else {
		err = multierr.Append(err, b.store.PublishNumber(telemetry.Key(b.name, telemetry.SuffixRotation), vel))
	}
	err = multierr.Append(err, b.store.PublishBool(telemetry.Key(b.name, telemetry.SuffixInverted), b.sensor.Inverted()))

	if b.tracker != nil {
		err = multierr.Append(err, b.store.PublishNumber(telemetry.Key(b.name, telemetry.SuffixTargetPosition), b.tracker.Target()))
		err = multierr.Append(err, b.store.PublishNumber(telemetry.Key(b.name, telemetry.SuffixTotalDelta), b.tracker.TotalDelta()))
	}
	return err
}
