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

	"github.com/kilianp07/gridflex/core/metrics"
	"github.com/kilianp07/gridflex/infra/mqtt"
)

// EnvPrefix marks environment variables overriding file settings. Nested keys
// are separated by a double underscore, e.g. GF_SOLVER__POOL_SIZE.
const EnvPrefix = "GF_"

type Config struct {
	Solver  SolverConfig   `json:"solver"`
	Metrics metrics.Config `json:"metrics"`
	MQTT    mqtt.Config    `json:"mqtt"`
	Prices  PricesConfig   `json:"prices"`
	Logging LoggingConfig  `json:"logging"`
}

// Load reads the configuration file at path, applies environment overrides
// and defaults, then validates every section. An empty path loads defaults
// and environment only.
func Load(path string) (*Config, error) {
	k := koanf.New(".")
	if path != "" {
		var parser koanf.Parser
		switch ext := strings.ToLower(filepath.Ext(path)); ext {
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
	}
	prefix := strings.ToLower(EnvPrefix)
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(s), prefix)
		return strings.ReplaceAll(s, "__", ".")
	}), nil); err != nil {
		return nil, err
	}
	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "json"}); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// SetDefaults applies section defaults.
func (c *Config) SetDefaults() {
	c.Solver.SetDefaults()
	c.Logging.SetDefaults()
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Solver.Validate(); err != nil {
		return fmt.Errorf("solver: %w", err)
	}
	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	if err := c.Prices.Validate(); err != nil {
		return fmt.Errorf("prices: %w", err)
	}
	if c.MQTT.QoS > 2 {
		return fmt.Errorf("mqtt: qos %d out of range", c.MQTT.QoS)
	}
	for i, s := range c.Metrics.Sinks {
		if s.Type == "" {
			return fmt.Errorf("metrics: sink %d has no type", i)
		}
	}
	return nil
}
