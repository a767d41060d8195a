package config

import "fmt"

// PricesConfig locates the price store used to fill dynamic tariffs that
// come without entries.
type PricesConfig struct {
	Path   string `json:"path"`
	Source string `json:"source"`
}

// Enabled reports whether a price store is configured.
func (c PricesConfig) Enabled() bool { return c.Path != "" }

// Validate checks mandatory fields.
func (c PricesConfig) Validate() error {
	if c.Source != "" && c.Path == "" {
		return fmt.Errorf("source %s requires a path", c.Source)
	}
	return nil
}
