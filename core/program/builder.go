package program

import (
	"fmt"
	"math"
)

// Builder accumulates variables, constraints and cost terms in insertion
// order. Identical call sequences yield identical problems.
type Builder struct {
	p   *Problem
	err error
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{p: &Problem{index: make(map[VarKey]int)}}
}

// AddVariable registers v and returns its index. Duplicate keys and
// inverted bounds are recorded as a build error and -1 is returned.
func (b *Builder) AddVariable(v Variable) int {
	if b.err != nil {
		return -1
	}
	if _, dup := b.p.index[v.Key]; dup {
		b.err = fmt.Errorf("duplicate variable %s", v.Key)
		return -1
	}
	if math.IsNaN(v.Lower) || math.IsNaN(v.Upper) || v.Lower > v.Upper {
		b.err = fmt.Errorf("variable %s has invalid bounds [%g, %g]", v.Key, v.Lower, v.Upper)
		return -1
	}
	if v.Binary {
		v.Lower = math.Max(v.Lower, 0)
		v.Upper = math.Min(v.Upper, 1)
	}
	idx := len(b.p.vars)
	b.p.vars = append(b.p.vars, v)
	b.p.index[v.Key] = idx
	return idx
}

// Var returns the index of a previously added variable.
func (b *Builder) Var(k VarKey) (int, bool) {
	i, ok := b.p.index[k]
	return i, ok
}

// AddConstraint appends c. Terms must reference existing variables; zero
// coefficients are dropped.
func (b *Builder) AddConstraint(c Constraint) {
	if b.err != nil {
		return
	}
	terms := make([]Term, 0, len(c.Terms))
	for _, t := range c.Terms {
		if t.Var < 0 || t.Var >= len(b.p.vars) {
			b.err = fmt.Errorf("constraint %s references unknown variable %d", c.Name, t.Var)
			return
		}
		if t.Coef != 0 {
			terms = append(terms, t)
		}
	}
	c.Terms = terms
	b.p.cons = append(b.p.cons, c)
}

// AddCost adds coef*x[v] to the objective under the given component.
func (b *Builder) AddCost(v int, coef float64, comp Component) {
	if b.err != nil || coef == 0 {
		return
	}
	if v < 0 || v >= len(b.p.vars) {
		b.err = fmt.Errorf("cost term references unknown variable %d", v)
		return
	}
	b.p.costs = append(b.p.costs, CostTerm{Var: v, Coef: coef, Component: comp})
}

// Build returns the problem. The builder must not be used afterwards.
func (b *Builder) Build() (*Problem, error) {
	if b.err != nil {
		return nil, b.err
	}
	p := b.p
	b.p = nil
	return p, nil
}
