// Package solverpool bounds the number of concurrent solves sharing scarce
// solver capacity.
package solverpool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"

	"github.com/kilianp07/gridflex/core/program"
	"github.com/kilianp07/gridflex/core/solver"
)

// ErrClosed is returned in the outcome of solves submitted after Close.
var ErrClosed = errors.New("solver pool closed")

// Pool is a solver.Solver running at most Size solves at a time. A slot is
// held for the whole call and released on every exit path.
type Pool struct {
	inner    solver.Solver
	size     int64
	sem      *semaphore.Weighted
	inFlight atomic.Int64

	mu     sync.RWMutex
	closed bool
}

// New wraps inner. A size below one is treated as one.
func New(inner solver.Solver, size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{inner: inner, size: int64(size), sem: semaphore.NewWeighted(int64(size))}
}

var _ solver.Solver = (*Pool)(nil)

// Size returns the number of slots.
func (p *Pool) Size() int { return int(p.size) }

// InFlight returns the number of solves currently holding a slot.
func (p *Pool) InFlight() int { return int(p.inFlight.Load()) }

// Solve waits for a free slot, then delegates to the wrapped solver. Waiting
// counts against ctx: a request whose deadline passes in the queue times out
// without a solution.
func (p *Pool) Solve(ctx context.Context, prob *program.Problem, opts solver.Options) (out solver.Outcome) {
	if p.isClosed() {
		return solver.Outcome{Status: solver.SolverError, Err: ErrClosed}
	}
	if opts.TimeLimit > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.TimeLimit)
		defer cancel()
	}
	if err := p.acquire(ctx); err != nil {
		if errors.Is(err, ErrClosed) {
			return solver.Outcome{Status: solver.SolverError, Err: err}
		}
		return solver.Outcome{Status: solver.TimedOut, Err: err}
	}
	p.inFlight.Add(1)
	defer func() {
		p.inFlight.Add(-1)
		p.sem.Release(1)
		if rec := recover(); rec != nil {
			out = solver.Outcome{Status: solver.SolverError, Err: fmt.Errorf("solver panic: %v", rec)}
		}
	}()
	return p.inner.Solve(ctx, prob, opts)
}

// acquire takes a slot. A solve that queued before Close gets its slot only
// after the pool drained and gives it back with ErrClosed.
func (p *Pool) acquire(ctx context.Context) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	if p.isClosed() {
		p.sem.Release(1)
		return ErrClosed
	}
	return nil
}

func (p *Pool) isClosed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.closed
}

// Close rejects new solves and waits for running ones to finish. Solves still
// queued for a slot return ErrClosed.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	p.mu.Unlock()
	_ = p.sem.Acquire(context.Background(), p.size)
	p.sem.Release(p.size)
}
