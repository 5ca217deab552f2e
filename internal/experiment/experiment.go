package experiment

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/san-kum/posctl/internal/config"
	"github.com/san-kum/posctl/internal/logging"
	"github.com/san-kum/posctl/internal/metrics"
	"github.com/san-kum/posctl/internal/operator"
	"github.com/san-kum/posctl/internal/telemetry"
)

// Action is something done to the bench at a point in a run. It may press
// buttons by returning events.
type Action struct {
	At    time.Duration
	Name  string
	Apply func(b *Bench) (operator.Events, error)
}

// Press returns an action pressing button at t.
func Press(at time.Duration, button operator.Button) Action {
	return Action{
		At:   at,
		Name: button.String(),
		Apply: func(*Bench) (operator.Events, error) {
			return operator.Events{}.Press(button), nil
		},
	}
}

// Record is one tick of a run. Position and velocity are the plant's true
// state, also during a sensor fault.
type Record struct {
	T          float64 `json:"t"`
	Position   float64 `json:"position"`
	Velocity   float64 `json:"velocity"`
	Target     float64 `json:"target"`
	TotalDelta float64 `json:"total_delta"`
	Command    float64 `json:"command"`
	Applied    float64 `json:"applied"`
	Enabled    bool    `json:"enabled"`
	Writes     int     `json:"writes"`
}

type Result struct {
	Records    []Record
	Metrics    map[string]float64
	Writes     int
	TickErrors int
}

// Series returns one column of the run: position, velocity, target,
// total_delta, command or applied.
func (r *Result) Series(name string) ([]float64, error) {
	var pick func(Record) float64
	switch name {
	case "position":
		pick = func(rec Record) float64 { return rec.Position }
	case "velocity":
		pick = func(rec Record) float64 { return rec.Velocity }
	case "target":
		pick = func(rec Record) float64 { return rec.Target }
	case "total_delta":
		pick = func(rec Record) float64 { return rec.TotalDelta }
	case "command":
		pick = func(rec Record) float64 { return rec.Command }
	case "applied":
		pick = func(rec Record) float64 { return rec.Applied }
	default:
		return nil, errors.Errorf("unknown series %q", name)
	}
	out := make([]float64, len(r.Records))
	for i, rec := range r.Records {
		out[i] = pick(rec)
	}
	return out, nil
}

// Final returns the last record, or a zero record for an empty run.
func (r *Result) Final() Record {
	if len(r.Records) == 0 {
		return Record{}
	}
	return r.Records[len(r.Records)-1]
}

// Experiment runs a bench headless on a mock clock, so runs are exactly
// repeatable and take no wall time.
type Experiment struct {
	cfg       *config.Config
	reg       *Registry
	actions   []Action
	metrics   []metrics.Metric
	observers []func(Record)
	logger    *zap.SugaredLogger
	bench     *Bench
}

func New(cfg *config.Config, reg *Registry, logger *zap.SugaredLogger) *Experiment {
	return &Experiment{cfg: cfg, reg: reg, logger: logging.OrNop(logger)}
}

func (e *Experiment) AddActions(a ...Action)      { e.actions = append(e.actions, a...) }
func (e *Experiment) AddMetric(m metrics.Metric)  { e.metrics = append(e.metrics, m) }
func (e *Experiment) AddObserver(fn func(Record)) { e.observers = append(e.observers, fn) }
func (e *Experiment) Config() *config.Config      { return e.cfg }

// Bench returns the bench of the last run.
func (e *Experiment) Bench() *Bench { return e.bench }

func (e *Experiment) Run(ctx context.Context) (*Result, error) {
	if e.cfg.Duration <= 0 {
		return nil, errors.Errorf("duration must be positive, got %v", e.cfg.Duration)
	}

	clk := clock.NewMock()
	table := telemetry.NewTable()
	bench, err := Assemble(e.cfg, e.reg, clk, table, e.logger)
	if err != nil {
		return nil, err
	}
	e.bench = bench

	actions := append([]Action(nil), e.actions...)
	sort.SliceStable(actions, func(i, j int) bool { return actions[i].At < actions[j].At })
	for _, m := range e.metrics {
		m.Reset()
	}

	steps := int(e.cfg.Duration / e.cfg.Tick)
	result := &Result{
		Records: make([]Record, 0, steps),
		Metrics: make(map[string]float64),
	}

	var elapsed time.Duration
	next := 0
	for i := 0; i < steps; i++ {
		select {
		case <-ctx.Done():
			return result, ctx.Err()
		default:
		}

		var ev operator.Events
		for next < len(actions) && actions[next].At <= elapsed {
			a := actions[next]
			next++
			got, err := a.Apply(bench)
			if err != nil {
				return result, errors.Wrapf(err, "action %s at %v", a.Name, a.At)
			}
			ev = ev.Merge(got)
		}

		clk.Add(e.cfg.Tick)
		elapsed += e.cfg.Tick

		sample, err := bench.Loop.Tick(ev)
		if err != nil {
			result.TickErrors++
		}
		pos, vel := bench.Rig.State()
		rec := Record{
			T:          elapsed.Seconds(),
			Position:   pos,
			Velocity:   vel,
			Target:     sample.Target,
			TotalDelta: sample.TotalDelta,
			Command:    sample.Command,
			Applied:    bench.Rig.Applied(),
			Enabled:    bench.Position.Enabled(),
			Writes:     sample.Writes,
		}
		result.Writes += sample.Writes
		result.Records = append(result.Records, rec)

		p := metrics.Point{T: rec.T, Position: rec.Position, Velocity: rec.Velocity, Target: rec.Target, Command: rec.Command, Enabled: rec.Enabled}
		for _, m := range e.metrics {
			m.Observe(p)
		}
		for _, fn := range e.observers {
			fn(rec)
		}
	}

	for _, m := range e.metrics {
		v := m.Value()
		if math.IsNaN(v) || math.IsInf(v, 0) {
			v = 0
		}
		result.Metrics[m.Name()] = v
	}
	return result, nil
}
