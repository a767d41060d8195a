// Package lpsolver implements solver.Solver on top of gonum's simplex method
// with a depth-first branch-and-bound for binary variables.
package lpsolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"gonum.org/v1/gonum/optimize/convex/lp"

	"github.com/kilianp07/gridflex/core/logger"
	"github.com/kilianp07/gridflex/core/program"
	"github.com/kilianp07/gridflex/core/solver"
)

// simplexTol is the reduced cost tolerance handed to lp.Simplex.
const simplexTol = 1e-10

// lpSolve points to the function used to solve standard-form LPs. It can be
// overridden in tests to simulate solver failures.
var lpSolve = lp.Simplex

// Solver is a stateless gonum-backed solver.Solver.
type Solver struct {
	log logger.Logger
}

// New returns a Solver logging through log. A nil logger disables logging.
func New(log logger.Logger) *Solver {
	if log == nil {
		log = logger.Nop{}
	}
	return &Solver{log: log}
}

var _ solver.Solver = (*Solver)(nil)

// Solve runs the problem to completion, to the time limit or to ctx
// cancellation, whichever comes first. The problem is never modified.
func (s *Solver) Solve(ctx context.Context, p *program.Problem, opts solver.Options) solver.Outcome {
	start := time.Now()
	if opts.TimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.TimeLimit)
		defer cancel()
	}

	r := &run{problem: p, opts: opts, tol: opts.Tol(), log: s.log}
	done := make(chan solver.Outcome, 1)
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- solver.Outcome{Status: solver.SolverError, Err: fmt.Errorf("solver panic: %v", rec)}
			}
		}()
		done <- r.solve(ctx)
	}()

	out := wait(ctx, done, r.interrupted)
	out.Elapsed = time.Since(start)
	out.Nodes = r.nodeCount()
	s.log.Debugw("lp solve finished", map[string]any{
		"status":      out.Status.String(),
		"variables":   p.NumVars(),
		"constraints": p.NumConstraints(),
		"binaries":    len(p.Binaries()),
		"nodes":       out.Nodes,
		"skipped":     r.skippedCount(),
		"elapsed_ms":  out.Elapsed.Milliseconds(),
	})
	return out
}

// wait returns the search outcome, or the interrupted state once ctx is done.
// An outcome that is already available wins over the deadline.
func wait(ctx context.Context, done <-chan solver.Outcome, interrupted func(error) solver.Outcome) solver.Outcome {
	select {
	case out := <-done:
		return out
	case <-ctx.Done():
		select {
		case out := <-done:
			return out
		default:
			return interrupted(ctx.Err())
		}
	}
}

// run holds the state of one Solve call. The incumbent is shared between the
// search goroutine and the caller, which reads it on timeout.
type run struct {
	problem *program.Problem
	opts    solver.Options
	tol     float64
	log     logger.Logger

	mu         sync.Mutex
	incumbent  []float64
	best       float64
	nodes      int
	skipped    int
	infeasible bool
}

func (r *run) nodeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.nodes
}

func (r *run) skippedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.skipped
}

func (r *run) interrupted(cause error) solver.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.infeasible {
		// proven before the deadline, only the diagnosis was cut short
		return solver.Outcome{Status: solver.Infeasible}
	}
	out := solver.Outcome{Status: solver.TimedOut, Err: cause}
	if r.incumbent != nil {
		out.Values = append([]float64(nil), r.incumbent...)
		out.Objective = r.best
	}
	return out
}

func (r *run) solve(ctx context.Context) solver.Outcome {
	out := r.branchAndBound(ctx)
	if out.Status == solver.Infeasible {
		r.mu.Lock()
		r.infeasible = true
		r.mu.Unlock()
		if r.opts.Diagnose {
			out.InfeasibleTags = r.diagnose(ctx)
		}
	}
	return out
}

// lpStatus is the result of a single relaxation.
type lpStatus int

const (
	lpOptimal lpStatus = iota
	lpInfeasible
	lpUnbounded
	lpFailed
)

// relax solves one linear relaxation and returns problem-space values.
func (r *run) relax(rel relaxation) ([]float64, float64, lpStatus, error) {
	r.mu.Lock()
	r.nodes++
	r.mu.Unlock()

	sf, err := buildStandard(r.problem, rel, r.tol)
	switch {
	case errors.Is(err, errConstantInfeasible):
		return nil, 0, lpInfeasible, nil
	case errors.Is(err, errFreeUnbounded):
		return nil, 0, lpUnbounded, nil
	case err != nil:
		return nil, 0, lpFailed, err
	}

	var y []float64
	if sf.a == nil {
		y = make([]float64, len(sf.cols))
	} else {
		y, err = solveStandard(sf)
		switch {
		case errors.Is(err, lp.ErrInfeasible):
			return nil, 0, lpInfeasible, nil
		case errors.Is(err, lp.ErrUnbounded):
			return nil, 0, lpUnbounded, nil
		case err != nil:
			return nil, 0, lpFailed, fmt.Errorf("simplex: %w", err)
		}
	}
	x := sf.values(y)
	return x, r.problem.ObjectiveValue(x), lpOptimal, nil
}
