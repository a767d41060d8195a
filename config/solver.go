package config

import (
	"fmt"
	"time"

	"github.com/kilianp07/gridflex/core/factory"
	"github.com/kilianp07/gridflex/core/optimizer"
)

// SolverConfig bounds solver usage. Requests may lower the time limit and
// tighten the tolerance through their own settings.
type SolverConfig struct {
	TimeLimitMS int     `json:"time_limit_ms"`
	Tolerance   float64 `json:"tolerance"`
	MaxNodes    int     `json:"max_nodes"`
	Diagnose    bool    `json:"diagnose"`
	// PoolSize is the number of solves allowed to run at once.
	PoolSize int `json:"pool_size"`
	// Backend selects the solver implementation, "lp" by default.
	Backend factory.ModuleConfig `json:"backend"`
}

// SetDefaults applies sane defaults.
func (c *SolverConfig) SetDefaults() {
	if c.TimeLimitMS == 0 {
		c.TimeLimitMS = 30000
	}
	if c.PoolSize == 0 {
		c.PoolSize = 2
	}
	if c.Backend.Type == "" {
		c.Backend.Type = "lp"
	}
}

// Validate checks value ranges.
func (c SolverConfig) Validate() error {
	if c.TimeLimitMS < 0 {
		return fmt.Errorf("time_limit_ms must be non-negative")
	}
	if c.Tolerance < 0 || c.Tolerance >= 1 {
		return fmt.Errorf("tolerance must be in [0,1)")
	}
	if c.MaxNodes < 0 {
		return fmt.Errorf("max_nodes must be non-negative")
	}
	if c.PoolSize < 1 {
		return fmt.Errorf("pool_size must be positive")
	}
	return nil
}

// Optimizer converts the section into optimizer defaults.
func (c SolverConfig) Optimizer() optimizer.Config {
	return optimizer.Config{
		TimeLimit: time.Duration(c.TimeLimitMS) * time.Millisecond,
		Tolerance: c.Tolerance,
		MaxNodes:  c.MaxNodes,
		Diagnose:  c.Diagnose,
	}
}
