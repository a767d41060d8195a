// Package solver defines the narrow interface between the optimizer and a
// mathematical programming backend.
package solver

import (
	"context"
	"time"

	"github.com/kilianp07/gridflex/core/model"
	"github.com/kilianp07/gridflex/core/program"
)

// Status is the terminal state of a solve.
type Status int

const (
	Optimal Status = iota
	Infeasible
	Unbounded
	TimedOut
	SolverError
)

func (s Status) String() string {
	switch s {
	case Optimal:
		return "optimal"
	case Infeasible:
		return "infeasible"
	case Unbounded:
		return "unbounded"
	case TimedOut:
		return "timed_out"
	case SolverError:
		return "solver_error"
	default:
		return "unknown"
	}
}

// DefaultTolerance is used when Options.Tolerance is zero.
const DefaultTolerance = 1e-6

// Options bounds a single solve.
type Options struct {
	// TimeLimit is the wall-clock budget. Zero means no limit.
	TimeLimit time.Duration
	// Tolerance is the feasibility and integrality tolerance.
	Tolerance float64
	// MaxNodes caps branch-and-bound nodes. Zero means no cap.
	MaxNodes int
	// Diagnose enables the search for conflicting constraint groups when the
	// problem is infeasible.
	Diagnose bool
}

// Tol returns the effective tolerance.
func (o Options) Tol() float64 {
	if o.Tolerance > 0 {
		return o.Tolerance
	}
	return DefaultTolerance
}

// Outcome is the result of a solve. Values is indexed like the problem's
// variables and is set for Optimal and, when an incumbent exists, TimedOut.
type Outcome struct {
	Status    Status
	Values    []float64
	Objective float64
	// InfeasibleTags is an irreducible set of conflicting constraint groups,
	// when diagnosis ran and succeeded.
	InfeasibleTags []model.ConstraintTag
	Err            error
	Nodes          int
	Elapsed        time.Duration
}

// HasSolution reports whether Values holds a complete assignment.
func (o Outcome) HasSolution() bool { return o.Values != nil }

// Solver solves optimization problems. Implementations keep no state between
// calls and must not modify the problem.
type Solver interface {
	Solve(ctx context.Context, p *program.Problem, opts Options) Outcome
}

// Func adapts a function to the Solver interface.
type Func func(ctx context.Context, p *program.Problem, opts Options) Outcome

func (f Func) Solve(ctx context.Context, p *program.Problem, opts Options) Outcome {
	return f(ctx, p, opts)
}
