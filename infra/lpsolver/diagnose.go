package lpsolver

import (
	"context"
	"math"

	"github.com/kilianp07/gridflex/core/model"
)

// diagnose isolates an irreducible set of conflicting constraint groups with a
// deletion filter on the continuous relaxation. Each group is dropped in turn
// and stays dropped when the rest remains infeasible. It returns nil when the
// relaxation is feasible (integrality is the cause) or ctx expires.
func (r *run) diagnose(ctx context.Context) []model.ConstraintTag {
	tags := r.problem.Tags()
	skip := make(map[model.ConstraintTag]bool, len(tags))

	if !r.infeasibleWithout(skip) {
		return nil
	}
	for _, tag := range tags {
		if ctx.Err() != nil {
			return nil
		}
		skip[tag] = true
		if !r.infeasibleWithout(skip) {
			skip[tag] = false
		}
	}

	var core []model.ConstraintTag
	for _, tag := range tags {
		if !skip[tag] {
			core = append(core, tag)
		}
	}
	return core
}

// infeasibleWithout solves a feasibility LP with the given groups dropped:
// their constraints are removed and their variable bounds are freed.
func (r *run) infeasibleWithout(skip map[model.ConstraintTag]bool) bool {
	nd := r.rootNode()
	for i := range nd.lower {
		if skip[r.problem.Variable(i).BoundTag] {
			nd.lower[i], nd.upper[i] = math.Inf(-1), math.Inf(1)
		}
	}
	_, _, st, _ := r.relax(relaxation{lower: nd.lower, upper: nd.upper, skip: skip, zeroCost: true})
	return st == lpInfeasible
}
