// Package config loads the controller configuration from a JSON or YAML file
// with optional environment overrides.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/kurnia-dev/smartenergy/core/metrics"
	"github.com/kurnia-dev/smartenergy/infra/mqtt"
	"github.com/kurnia-dev/smartenergy/infra/store"
)

// ControlConfig tunes the periodic control loops.
type ControlConfig struct {
	// ReconcileIntervalSeconds is the schedule reconciler tick period.
	ReconcileIntervalSeconds int `json:"reconcile_interval_seconds"`
	// RefreshIntervalSeconds is the subscription refresher tick period.
	RefreshIntervalSeconds int `json:"refresh_interval_seconds"`
}

// SetDefaults applies sane defaults.
func (c *ControlConfig) SetDefaults() {
	if c.ReconcileIntervalSeconds == 0 {
		c.ReconcileIntervalSeconds = 60
	}
	if c.RefreshIntervalSeconds == 0 {
		c.RefreshIntervalSeconds = 60
	}
}

// Validate checks the loop periods.
func (c ControlConfig) Validate() error {
	if c.ReconcileIntervalSeconds < 1 {
		return fmt.Errorf("reconcile_interval_seconds must be positive")
	}
	if c.RefreshIntervalSeconds < 1 {
		return fmt.Errorf("refresh_interval_seconds must be positive")
	}
	return nil
}

// APIConfig configures the HTTP surface.
type APIConfig struct {
	Addr string `json:"addr"`
}

// SetDefaults applies sane defaults.
func (c *APIConfig) SetDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
}

// Config is the root configuration document.
type Config struct {
	MQTT    mqtt.Config    `json:"mqtt"`
	Store   store.Config   `json:"store"`
	Control ControlConfig  `json:"control"`
	Metrics metrics.Config `json:"metrics"`
	API     APIConfig      `json:"api"`
}

// Load reads the file at path, applies SE_* environment overrides, fills in
// defaults and validates the result. The parser is chosen by file extension.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	ext := strings.ToLower(filepath.Ext(path))
	var parser koanf.Parser
	switch ext {
	case ".yaml", ".yml":
		parser = yaml.Parser()
	case ".json":
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format: %s", ext)
	}
	if err := k.Load(file.Provider(path), parser); err != nil {
		return nil, err
	}
	// Optional environment overrides, e.g. SE_MQTT__BROKER.
	if err := k.Load(env.Provider("SE_", "__", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), "se_")
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.MQTT.SetDefaults()
	cfg.Store.SetDefaults()
	cfg.Control.SetDefaults()
	cfg.Metrics.SetDefaults()
	cfg.API.SetDefaults()

	if err := cfg.MQTT.Validate(); err != nil {
		return nil, fmt.Errorf("mqtt: %w", err)
	}
	if err := cfg.Store.Validate(); err != nil {
		return nil, fmt.Errorf("store: %w", err)
	}
	if err := cfg.Control.Validate(); err != nil {
		return nil, fmt.Errorf("control: %w", err)
	}
	return &cfg, nil
}
