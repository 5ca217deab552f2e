package experiment

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/san-kum/posctl/internal/config"
	"github.com/san-kum/posctl/internal/dynamo"
	"github.com/san-kum/posctl/internal/integrators"
	"github.com/san-kum/posctl/internal/metrics"
	"github.com/san-kum/posctl/internal/plant"
)

type Registry struct {
	models      map[string]plant.Spec
	integrators map[string]func() dynamo.Integrator
}

func NewRegistry() *Registry {
	r := &Registry{
		models:      make(map[string]plant.Spec),
		integrators: make(map[string]func() dynamo.Integrator),
	}

	for _, spec := range []plant.Spec{plant.NEO, plant.NEO550, plant.CIM} {
		r.models[spec.Name] = spec
	}

	r.integrators["euler"] = func() dynamo.Integrator { return integrators.NewEuler() }
	r.integrators["rk4"] = func() dynamo.Integrator { return integrators.NewRK4() }

	return r
}

// RegisterModel adds or replaces a motor model.
func (r *Registry) RegisterModel(spec plant.Spec) {
	r.models[spec.Name] = spec
}

func (r *Registry) GetModel(name string) (plant.Spec, error) {
	spec, ok := r.models[name]
	if !ok {
		return plant.Spec{}, errors.Errorf("unknown model: %s", name)
	}
	return spec, nil
}

func (r *Registry) GetIntegrator(name string) (dynamo.Integrator, error) {
	fn, ok := r.integrators[name]
	if !ok {
		return nil, errors.Errorf("unknown integrator: %s", name)
	}
	return fn(), nil
}

// Spec resolves a plant config to a motor spec, applying any overrides.
func (r *Registry) Spec(pc config.PlantConfig) (plant.Spec, error) {
	name := pc.Model
	if name == "" {
		name = config.DefaultModel
	}
	spec, err := r.GetModel(name)
	if err != nil {
		return spec, err
	}
	if pc.FreeSpeed > 0 {
		spec.FreeSpeed = pc.FreeSpeed
	}
	if pc.TimeConstant > 0 {
		spec.TimeConstant = pc.TimeConstant
	}
	if pc.BrakeTimeConstant > 0 {
		spec.BrakeTimeConstant = pc.BrakeTimeConstant
	}
	return spec, nil
}

func (r *Registry) ListModels() []string {
	names := make([]string, 0, len(r.models))
	for name := range r.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) ListIntegrators() []string {
	names := make([]string, 0, len(r.integrators))
	for name := range r.integrators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) DefaultMetrics(cfg *config.Config) []metrics.Metric {
	return metrics.Defaults(cfg.Threshold)
}
