package lpsolver

import (
	"context"
	"math"

	"github.com/kilianp07/gridflex/core/solver"
)

// node is a set of bound overrides on top of the problem's own bounds.
type node struct {
	lower, upper []float64
	depth        int
	bound        float64 // objective of the parent relaxation
}

func (r *run) rootNode() node {
	n := r.problem.NumVars()
	nd := node{lower: make([]float64, n), upper: make([]float64, n), bound: math.Inf(-1)}
	for i := 0; i < n; i++ {
		v := r.problem.Variable(i)
		nd.lower[i], nd.upper[i] = v.Lower, v.Upper
	}
	return nd
}

func (nd node) fix(v int, val float64) node {
	c := node{lower: append([]float64(nil), nd.lower...), upper: append([]float64(nil), nd.upper...), depth: nd.depth + 1}
	c.lower[v], c.upper[v] = val, val
	return c
}

// dive fixes every binary at its rounded value in x and solves what is left.
// A feasible result becomes the first incumbent, which lets the search prune
// from the start.
func (r *run) dive(nd node, x []float64) {
	lower := append([]float64(nil), nd.lower...)
	upper := append([]float64(nil), nd.upper...)
	for _, v := range r.problem.Binaries() {
		val := math.Max(lower[v], math.Min(upper[v], math.Round(x[v])))
		lower[v], upper[v] = val, val
	}
	if y, obj, st, _ := r.relax(relaxation{lower: lower, upper: upper}); st == lpOptimal {
		r.accept(y, obj)
	}
}

// skip drops a node whose relaxation failed on every form. The rest of the
// tree is still searched.
func (r *run) skip(err error) {
	r.mu.Lock()
	r.skipped++
	r.mu.Unlock()
	r.log.Warnf("lp: node skipped after numerical failure: %v", err)
}

// branchAndBound explores binary assignments depth first, nearest rounding
// first, after a rounding dive from the root. Pure LPs take a single node.
// Nodes whose relaxation fails numerically are skipped; a failing root is a
// solver error.
func (r *run) branchAndBound(ctx context.Context) solver.Outcome {
	binaries := r.problem.Binaries()
	stack := []node{r.rootNode()}
	root := true
	incomplete := false

	for len(stack) > 0 {
		if ctx.Err() != nil {
			return r.interrupted(ctx.Err())
		}
		if r.opts.MaxNodes > 0 && r.nodeCount() >= r.opts.MaxNodes {
			incomplete = true
			break
		}
		nd := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if r.pruned(nd.bound) {
			continue
		}

		x, obj, st, err := r.relax(relaxation{lower: nd.lower, upper: nd.upper})
		switch st {
		case lpFailed:
			if root {
				return solver.Outcome{Status: solver.SolverError, Err: err}
			}
			r.skip(err)
			continue
		case lpUnbounded:
			if root {
				return solver.Outcome{Status: solver.Unbounded}
			}
			continue
		case lpInfeasible:
			root = false
			continue
		}
		root = false

		if r.pruned(obj) {
			continue
		}
		branch, frac := -1, 0.0
		for _, v := range binaries {
			if f := math.Abs(x[v] - math.Round(x[v])); f > r.tol && f > frac {
				branch, frac = v, f
			}
		}
		if branch < 0 {
			r.accept(x, obj)
			continue
		}
		if nd.depth == 0 {
			r.dive(nd, x)
		}
		near := math.Round(x[branch])
		far, nearest := nd.fix(branch, 1-near), nd.fix(branch, near)
		far.bound, nearest.bound = obj, obj
		// pushed last, explored first
		stack = append(stack, far, nearest)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case r.incumbent == nil && incomplete:
		return solver.Outcome{Status: solver.TimedOut}
	case r.incumbent == nil:
		return solver.Outcome{Status: solver.Infeasible}
	case incomplete:
		return solver.Outcome{Status: solver.TimedOut, Values: append([]float64(nil), r.incumbent...), Objective: r.best}
	default:
		return solver.Outcome{Status: solver.Optimal, Values: append([]float64(nil), r.incumbent...), Objective: r.best}
	}
}

func (r *run) pruned(bound float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.incumbent != nil && bound >= r.best-r.tol*math.Max(1, math.Abs(r.best))
}

func (r *run) accept(x []float64, obj float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.incumbent == nil || obj < r.best {
		r.incumbent = x
		r.best = obj
	}
}
