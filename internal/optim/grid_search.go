// Package optim searches controller settings against simulated runs.
package optim

import (
	"context"
	"math"
	"runtime"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"github.com/san-kum/posctl/internal/config"
	"github.com/san-kum/posctl/internal/experiment"
)

// Param names accepted by Apply.
const (
	ParamMaxSpeed  = "max_speed"
	ParamThreshold = "threshold"
	ParamStep      = "step"
	ParamP         = "p"
	ParamFF        = "ff"
)

// Apply sets one named parameter on cfg.
func Apply(cfg *config.Config, name string, v float64) error {
	switch name {
	case ParamMaxSpeed:
		cfg.MaxSpeed = v
	case ParamThreshold:
		cfg.Threshold = v
	case ParamStep:
		cfg.Step = v
	case ParamP:
		cfg.Gains.P = v
	case ParamFF:
		cfg.Gains.FF = v
	default:
		return errors.Errorf("unknown sweep parameter %q", name)
	}
	return nil
}

// Evaluation is one grid point and the metrics its run produced.
type Evaluation struct {
	Params  map[string]float64
	Metrics map[string]float64
	Err     error
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	workers    int
}

func NewGridSearch(params []string, ranges [][]float64) *GridSearch {
	return &GridSearch{paramNames: params, ranges: ranges, workers: runtime.GOMAXPROCS(0)}
}

// SetWorkers bounds how many runs execute at once.
func (g *GridSearch) SetWorkers(n int) {
	if n > 0 {
		g.workers = n
	}
}

// Points expands the grid in row-major order.
func (g *GridSearch) Points() []map[string]float64 {
	points := []map[string]float64{{}}
	for depth, name := range g.paramNames {
		next := make([]map[string]float64, 0, len(points)*len(g.ranges[depth]))
		for _, p := range points {
			for _, v := range g.ranges[depth] {
				q := make(map[string]float64, len(p)+1)
				for k, pv := range p {
					q[k] = pv
				}
				q[name] = v
				next = append(next, q)
			}
		}
		points = next
	}
	return points
}

// Search runs every grid point and returns the evaluations sorted by
// metricName, lowest first. Points whose run failed sort last.
func (g *GridSearch) Search(
	ctx context.Context,
	buildExperiment func(params map[string]float64) (*experiment.Experiment, error),
	metricName string,
) ([]Evaluation, error) {
	if len(g.paramNames) != len(g.ranges) {
		return nil, errors.Errorf("%d parameters but %d ranges", len(g.paramNames), len(g.ranges))
	}

	points := g.Points()
	evals := make([]Evaluation, len(points))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < g.workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				evals[idx] = evaluate(ctx, points[idx], buildExperiment)
			}
		}()
	}
	for i := range points {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	score := func(e Evaluation) float64 {
		v, ok := e.Metrics[metricName]
		if e.Err != nil || !ok {
			return math.Inf(1)
		}
		return v
	}
	sort.SliceStable(evals, func(i, j int) bool { return score(evals[i]) < score(evals[j]) })

	var errs error
	for _, e := range evals {
		errs = multierr.Append(errs, e.Err)
	}
	if len(evals) > 0 && math.IsInf(score(evals[0]), 1) {
		return evals, multierr.Append(errs, errors.Errorf("no run produced metric %q", metricName))
	}
	return evals, nil
}

func evaluate(ctx context.Context, params map[string]float64, build func(map[string]float64) (*experiment.Experiment, error)) Evaluation {
	ev := Evaluation{Params: params}
	exp, err := build(params)
	if err != nil {
		ev.Err = err
		return ev
	}
	result, err := exp.Run(ctx)
	if err != nil {
		ev.Err = err
		return ev
	}
	ev.Metrics = result.Metrics
	return ev
}

// Builder returns a build function that applies the grid point to a copy of
// base and attaches actions and the standard metrics.
func Builder(base *config.Config, reg *experiment.Registry, actions []experiment.Action) func(map[string]float64) (*experiment.Experiment, error) {
	return func(params map[string]float64) (*experiment.Experiment, error) {
		cfg := base.Clone()
		for name, v := range params {
			if err := Apply(cfg, name, v); err != nil {
				return nil, err
			}
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		exp := experiment.New(cfg, reg, nil)
		exp.AddActions(actions...)
		for _, m := range reg.DefaultMetrics(cfg) {
			exp.AddMetric(m)
		}
		return exp, nil
	}
}

// Linspace returns n evenly spaced values from lo to hi inclusive.
func Linspace(lo, hi float64, n int) []float64 {
	if n <= 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	step := (hi - lo) / float64(n-1)
	for i := range out {
		out[i] = lo + float64(i)*step
	}
	out[n-1] = hi
	return out
}
