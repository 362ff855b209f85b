// Package model defines the shared application configuration loaded from
// configs/config.yml.
package model

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the root structure of configs/config.yml. Every field can be
// overridden by a CLI flag.
type Config struct {
	Mode    string        `yaml:"mode"` // "sim" or "serial"
	Serial  SerialConfig  `yaml:"serial"`
	Sim     SimConfig     `yaml:"sim"`
	Planner PlannerConfig `yaml:"planner"`
	Motion  MotionConfig  `yaml:"motion"`
	Store   StoreConfig   `yaml:"store"`
	Monitor MonitorConfig `yaml:"monitor"`
}

// SerialConfig defines the physical endpoint.
type SerialConfig struct {
	Port string `yaml:"port"` // e.g. /dev/ttyUSB0, COM3
	Baud int    `yaml:"baud"`
}

// SimConfig defines simulated transport behavior.
type SimConfig struct {
	Rate float64 `yaml:"rate"` // position updates per second
}

// PlannerConfig defines default planning parameters.
type PlannerConfig struct {
	Mode              string  `yaml:"mode"` // "greedy" or "edge_sample"
	EdgeSampleSpacing float64 `yaml:"edge_sample_spacing"`
	IncludeVertices   bool    `yaml:"include_vertices"`
}

// MotionConfig defines movement metadata sent with MAP commands.
type MotionConfig struct {
	Units    string  `yaml:"units"`
	Feedrate float64 `yaml:"feedrate"`
}

// StoreConfig defines job persistence.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// MonitorConfig defines the optional websocket event feed.
type MonitorConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	return &Config{
		Mode:    "sim",
		Serial:  SerialConfig{Baud: 115200},
		Sim:     SimConfig{Rate: 20.0},
		Planner: PlannerConfig{Mode: "greedy", EdgeSampleSpacing: 5.0, IncludeVertices: true},
		Motion:  MotionConfig{Units: "mm", Feedrate: 50.0},
		Store:   StoreConfig{Path: "moldmap.db"},
		Monitor: MonitorConfig{Enabled: false, Addr: ":10080"},
	}
}

// Load reads a yaml config file over the defaults. A missing file is not
// an error; it just means defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}
