package config

import (
	"sort"
	"time"

	"github.com/san-kum/posctl/internal/actuator"
)

// Presets are complete configurations for common bench setups.
var Presets = map[string]func() *Config{
	// the settings the controller ships with
	"reference": DefaultConfig,
	// the slower, coarser test robot
	"bench": func() *Config {
		c := DefaultConfig()
		c.MaxSpeed = 0.5
		c.Threshold = 0.01
		return c
	},
	"open_loop": func() *Config {
		c := DefaultConfig()
		c.ClosedLoop = false
		return c
	},
	"coarse": func() *Config {
		c := DefaultConfig()
		c.Tick = 50 * time.Millisecond
		c.Threshold = 0.05
		c.Step = 5
		c.Plant.Model = "cim"
		c.Gains = actuator.Gains{P: 0.2, I: 0.5, IZone: 0.1, FF: 1, MinOutput: -0.8, MaxOutput: 0.8}
		return c
	},
}

// GetPreset returns a fresh copy of the named preset, or nil.
func GetPreset(name string) *Config {
	fn, ok := Presets[name]
	if !ok {
		return nil
	}
	return fn()
}

func ListPresets() []string {
	names := make([]string, 0, len(Presets))
	for name := range Presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
