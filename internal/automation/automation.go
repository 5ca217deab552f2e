// Package automation runs scripted operator sessions against the simulated
// bench.
package automation

import (
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/posctl/internal/config"
	"github.com/san-kum/posctl/internal/experiment"
	"github.com/san-kum/posctl/internal/operator"
)

// Scenario is a timed list of operator actions.
type Scenario struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Preset      string         `yaml:"preset"`
	Duration    time.Duration  `yaml:"duration"`
	Steps       []ScenarioStep `yaml:"steps"`
}

// ScenarioStep is one action. Action is toggle, increase, decrease, set,
// fault or recover; set needs Key and Value.
type ScenarioStep struct {
	At     time.Duration `yaml:"at"`
	Action string        `yaml:"action"`
	Key    string        `yaml:"key,omitempty"`
	Value  float64       `yaml:"value,omitempty"`
}

// ErrScriptedFault is the sensor error injected by a fault step.
var ErrScriptedFault = errors.New("scripted sensor fault")

// LoadScenario loads a scenario from a YAML file
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading scenario")
	}
	return ParseScenario(data)
}

func ParseScenario(data []byte) (*Scenario, error) {
	var scenario Scenario
	if err := yaml.Unmarshal(data, &scenario); err != nil {
		return nil, errors.Wrap(err, "parsing scenario")
	}
	if _, err := scenario.Actions(); err != nil {
		return nil, err
	}
	return &scenario, nil
}

// Actions converts the steps to experiment actions.
func (s *Scenario) Actions() ([]experiment.Action, error) {
	out := make([]experiment.Action, 0, len(s.Steps))
	for i, step := range s.Steps {
		if step.At < 0 {
			return nil, errors.Errorf("step %d: negative time %v", i+1, step.At)
		}
		a, err := step.action()
		if err != nil {
			return nil, errors.Wrapf(err, "step %d", i+1)
		}
		out = append(out, a)
	}
	return out, nil
}

func (st ScenarioStep) action() (experiment.Action, error) {
	switch st.Action {
	case "set":
		if st.Key == "" {
			return experiment.Action{}, errors.New("set needs a key")
		}
		return experiment.Action{At: st.At, Name: "set " + st.Key, Apply: func(b *experiment.Bench) (operator.Events, error) {
			return operator.Events{}, b.Store.PublishNumber(st.Key, st.Value)
		}}, nil
	case "fault":
		return experiment.Action{At: st.At, Name: "fault", Apply: func(b *experiment.Bench) (operator.Events, error) {
			b.Rig.SetFault(ErrScriptedFault)
			return operator.Events{}, nil
		}}, nil
	case "recover":
		return experiment.Action{At: st.At, Name: "recover", Apply: func(b *experiment.Bench) (operator.Events, error) {
			b.Rig.SetFault(nil)
			return operator.Events{}, nil
		}}, nil
	}
	button, err := operator.ParseButton(st.Action)
	if err != nil {
		return experiment.Action{}, errors.Errorf("unknown action %q", st.Action)
	}
	return experiment.Press(st.At, button), nil
}

// Config returns the run configuration: the preset (or base when none is
// named) with the scenario's duration applied.
func (s *Scenario) Config(base *config.Config) (*config.Config, error) {
	cfg := base.Clone()
	if s.Preset != "" {
		cfg = config.GetPreset(s.Preset)
		if cfg == nil {
			return nil, errors.Errorf("unknown preset %q", s.Preset)
		}
	}
	if s.Duration > 0 {
		cfg.Duration = s.Duration
	}
	return cfg, nil
}

// RunScenario runs the scenario once with the standard metrics.
func RunScenario(ctx context.Context, scenario *Scenario, base *config.Config, registry *experiment.Registry, logger *zap.SugaredLogger) (*experiment.Result, error) {
	cfg, err := scenario.Config(base)
	if err != nil {
		return nil, err
	}
	actions, err := scenario.Actions()
	if err != nil {
		return nil, err
	}

	exp := experiment.New(cfg, registry, logger)
	exp.AddActions(actions...)
	for _, m := range registry.DefaultMetrics(cfg) {
		exp.AddMetric(m)
	}
	return exp.Run(ctx)
}

// StepScenario enables control and steps the target once.
func StepScenario(duration time.Duration) *Scenario {
	return &Scenario{
		Name:     "step",
		Duration: duration,
		Steps: []ScenarioStep{
			{At: 0, Action: "toggle"},
			{At: 100 * time.Millisecond, Action: "increase"},
		},
	}
}
