// Package plugins holds the registries of pluggable solver backends.
package plugins

import (
	"github.com/kilianp07/gridflex/core/factory"
	"github.com/kilianp07/gridflex/core/solver"
	"github.com/kilianp07/gridflex/infra/logger"
	"github.com/kilianp07/gridflex/infra/lpsolver"
)

// Solvers builds solver backends by type name.
var Solvers = factory.NewRegistry[solver.Solver]()

func init() {
	_ = Solvers.Register("lp", func(map[string]any) (solver.Solver, error) {
		return lpsolver.New(logger.New("lpsolver")), nil
	})
}

// NewSolver builds the backend described by cfg. An empty type selects "lp".
func NewSolver(cfg factory.ModuleConfig) (solver.Solver, error) {
	if cfg.Type == "" {
		cfg.Type = "lp"
	}
	return Solvers.Create(cfg)
}
