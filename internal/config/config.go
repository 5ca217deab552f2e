package config

import (
	"math"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/san-kum/posctl/internal/actuator"
	"github.com/san-kum/posctl/internal/control"
	"github.com/san-kum/posctl/internal/operator"
)

const (
	DefaultName       = "Motor"
	DefaultTick       = 20 * time.Millisecond
	DefaultDuration   = 10 * time.Second
	DefaultModel      = "neo"
	DefaultIntegrator = "rk4"
	DefaultListen     = ":5800"
	DefaultTimeout    = 200 * time.Millisecond
	DefaultDataDir    = "./data"
)

type Config struct {
	Name       string          `yaml:"name"`
	Tick       time.Duration   `yaml:"tick"`
	Duration   time.Duration   `yaml:"duration"`
	MaxSpeed   float64         `yaml:"max_speed"`
	Threshold  float64         `yaml:"threshold"`
	Step       float64         `yaml:"step"`
	ClosedLoop bool            `yaml:"closed_loop"`
	Gains      actuator.Gains  `yaml:"gains"`
	Plant      PlantConfig     `yaml:"plant"`
	Telemetry  TelemetryConfig `yaml:"telemetry"`
	LogLevel   string          `yaml:"log_level"`
	DataDir    string          `yaml:"data_dir"`
}

// PlantConfig describes the simulated motor. Zero speeds and time constants
// fall back to the named model's values.
type PlantConfig struct {
	Model             string  `yaml:"model"`
	FreeSpeed         float64 `yaml:"free_speed"`
	TimeConstant      float64 `yaml:"time_constant"`
	BrakeTimeConstant float64 `yaml:"brake_time_constant"`
	Inverted          bool    `yaml:"inverted"`
	Start             float64 `yaml:"start"`
	Integrator        string  `yaml:"integrator"`
}

// TelemetryConfig selects the dashboard. With Remote set the loop talks to a
// dashboard server elsewhere instead of its own table.
type TelemetryConfig struct {
	Listen  string        `yaml:"listen"`
	Remote  string        `yaml:"remote"`
	Timeout time.Duration `yaml:"timeout"`
}

func DefaultConfig() *Config {
	return &Config{
		Name:       DefaultName,
		Tick:       DefaultTick,
		Duration:   DefaultDuration,
		MaxSpeed:   control.DefaultMaxSpeed,
		Threshold:  control.DefaultThreshold,
		Step:       control.DefaultStep,
		ClosedLoop: true,
		Gains:      actuator.DefaultGains(),
		Plant: PlantConfig{
			Model:      DefaultModel,
			Integrator: DefaultIntegrator,
		},
		Telemetry: TelemetryConfig{
			Listen:  DefaultListen,
			Timeout: DefaultTimeout,
		},
		LogLevel: "info",
		DataDir:  DefaultDataDir,
	}
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "reading config")
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "parsing %s", path)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrapf(err, "invalid config %s", path)
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "encoding config")
	}
	return os.WriteFile(path, data, 0644)
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	var err error
	if c.Name == "" {
		err = multierr.Append(err, errors.New("name must not be empty"))
	}
	if c.Tick <= 0 {
		err = multierr.Append(err, errors.Errorf("tick must be positive, got %v", c.Tick))
	}
	if c.Duration < 0 {
		err = multierr.Append(err, errors.Errorf("duration must not be negative, got %v", c.Duration))
	}
	if !(c.MaxSpeed > 0 && c.MaxSpeed <= 1) {
		err = multierr.Append(err, errors.Errorf("max_speed must be in (0, 1], got %v", c.MaxSpeed))
	}
	if !(c.Threshold >= 0) || math.IsInf(c.Threshold, 1) {
		err = multierr.Append(err, errors.Errorf("threshold must be finite and not negative, got %v", c.Threshold))
	}
	if !(c.Step > 0) || math.IsInf(c.Step, 1) {
		err = multierr.Append(err, errors.Errorf("step must be finite and positive, got %v", c.Step))
	}
	if c.ClosedLoop {
		err = multierr.Append(err, c.Gains.Validate())
	}
	if c.Plant.FreeSpeed < 0 || c.Plant.TimeConstant < 0 || c.Plant.BrakeTimeConstant < 0 {
		err = multierr.Append(err, errors.New("plant speeds and time constants must not be negative"))
	}
	if c.Telemetry.Timeout < 0 {
		err = multierr.Append(err, errors.Errorf("telemetry timeout must not be negative, got %v", c.Telemetry.Timeout))
	}
	return err
}

func (c *Config) PositionConfig() control.PositionConfig {
	return control.PositionConfig{MaxSpeed: c.MaxSpeed, Threshold: c.Threshold}
}

func (c *Config) LoopConfig() operator.Config {
	return operator.Config{Step: c.Step, Period: c.Tick}
}

// Clone returns a deep copy.
func (c *Config) Clone() *Config {
	out := *c
	return &out
}
