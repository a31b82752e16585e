package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EngineConfig is a per-symbol entry in the fleet YAML file. Zero values fall
// back to the process-wide defaults from Config.
type EngineConfig struct {
	Symbol        string        `yaml:"symbol"`
	CycleInterval time.Duration `yaml:"cycle_interval"`
	VolWindow     int           `yaml:"vol_window"`
	Enabled       *bool         `yaml:"enabled"`
}

// UnmarshalYAML accepts "5s"-style duration strings for cycle_interval.
func (e *EngineConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		Symbol        string `yaml:"symbol"`
		CycleInterval string `yaml:"cycle_interval"`
		VolWindow     int    `yaml:"vol_window"`
		Enabled       *bool  `yaml:"enabled"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	e.Symbol = raw.Symbol
	e.VolWindow = raw.VolWindow
	e.Enabled = raw.Enabled
	if raw.CycleInterval != "" {
		d, err := time.ParseDuration(raw.CycleInterval)
		if err != nil {
			return fmt.Errorf("engine %s: cycle_interval: %w", raw.Symbol, err)
		}
		e.CycleInterval = d
	}
	return nil
}

// FleetFile is the top-level YAML structure of engines.yaml.
type FleetFile struct {
	Engines []EngineConfig `yaml:"engines"`
}

// LoadFleet reads per-symbol engine settings from a YAML file.
func LoadFleet(path string) ([]EngineConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file FleetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	return file.Engines, nil
}

// Enabled reports whether the entry is active; absence of the flag means on.
func (e EngineConfig) IsEnabled() bool {
	return e.Enabled == nil || *e.Enabled
}
