package config

import (
	"fmt"

	"github.com/rs/zerolog"
)

// LoggingConfig selects the verbosity of the process logger.
type LoggingConfig struct {
	// Level is a zerolog level name such as "debug" or "info".
	Level string `json:"level"`
}

// SetDefaults applies sane defaults.
func (c *LoggingConfig) SetDefaults() {
	if c.Level == "" {
		c.Level = "info"
	}
}

// Validate checks that the level is known.
func (c LoggingConfig) Validate() error {
	if _, err := zerolog.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("unknown level %s", c.Level)
	}
	return nil
}
