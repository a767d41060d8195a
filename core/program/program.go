// Package program holds the solver-independent representation of an
// optimization problem: bounded decision variables, tagged linear constraints
// and a linear objective split by cost component.
package program

import (
	"fmt"
	"math"

	"github.com/kilianp07/gridflex/core/model"
)

// Role names what a decision variable stands for.
type Role string

const (
	RolePower     Role = "power"
	RoleCharge    Role = "charge"
	RoleDischarge Role = "discharge"
	RoleSoC       Role = "soc"
	RoleOn        Role = "on"
	RoleOutput    Role = "output"
	RoleImport    Role = "import"
	RoleExport    Role = "export"
	RolePeak      Role = "peak"
	RoleGas       Role = "gas"
)

// HorizonWide is the period index of variables that are not tied to a period.
const HorizonWide = -1

// VarKey identifies a variable by asset, role and period.
type VarKey struct {
	AssetID string
	Role    Role
	Period  int
}

func (k VarKey) String() string {
	if k.Period == HorizonWide {
		return fmt.Sprintf("%s.%s", k.AssetID, k.Role)
	}
	return fmt.Sprintf("%s.%s[%d]", k.AssetID, k.Role, k.Period)
}

// Variable is a bounded decision variable. Infinite bounds are allowed.
type Variable struct {
	Key    VarKey
	Lower  float64
	Upper  float64
	Binary bool
	// BoundTag is the constraint group the bounds belong to.
	BoundTag model.ConstraintTag
}

// Term is a coefficient applied to a variable.
type Term struct {
	Var  int
	Coef float64
}

// Sense is the relation of a constraint.
type Sense int

const (
	LE Sense = iota
	EQ
	GE
)

func (s Sense) String() string {
	switch s {
	case LE:
		return "<="
	case EQ:
		return "="
	case GE:
		return ">="
	default:
		return "?"
	}
}

// Constraint is sum(Terms) Sense RHS.
type Constraint struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   float64
	Tag   model.ConstraintTag
}

// Activity evaluates the left-hand side at x.
func (c Constraint) Activity(x []float64) float64 {
	var s float64
	for _, t := range c.Terms {
		s += t.Coef * x[t.Var]
	}
	return s
}

// Violation returns how far x is from satisfying the constraint (0 if satisfied).
func (c Constraint) Violation(x []float64) float64 {
	a := c.Activity(x)
	switch c.Sense {
	case LE:
		return math.Max(0, a-c.RHS)
	case GE:
		return math.Max(0, c.RHS-a)
	default:
		return math.Abs(a - c.RHS)
	}
}

// Component labels the cost component an objective term belongs to.
type Component string

const (
	CostEnergy       Component = "energy"
	CostGridFee      Component = "grid_fee"
	CostDemandCharge Component = "demand_charge"
	CostOperating    Component = "operating"
	CostFuel         Component = "fuel"
	CostCarbon       Component = "carbon"
)

// CostTerm is one term of the linear objective.
type CostTerm struct {
	Var       int
	Coef      float64
	Component Component
}

// Problem is an immutable minimization problem. Accessors return copies.
type Problem struct {
	vars  []Variable
	cons  []Constraint
	costs []CostTerm
	index map[VarKey]int
}

// NumVars returns the number of variables.
func (p *Problem) NumVars() int { return len(p.vars) }

// NumConstraints returns the number of explicit constraints (bounds excluded).
func (p *Problem) NumConstraints() int { return len(p.cons) }

// Variable returns the i-th variable.
func (p *Problem) Variable(i int) Variable { return p.vars[i] }

// Variables returns a copy of all variables in creation order.
func (p *Problem) Variables() []Variable {
	out := make([]Variable, len(p.vars))
	copy(out, p.vars)
	return out
}

// Constraints returns a copy of all constraints in creation order.
func (p *Problem) Constraints() []Constraint {
	out := make([]Constraint, len(p.cons))
	for i, c := range p.cons {
		c.Terms = append([]Term(nil), c.Terms...)
		out[i] = c
	}
	return out
}

// CostTerms returns a copy of the objective terms.
func (p *Problem) CostTerms() []CostTerm {
	return append([]CostTerm(nil), p.costs...)
}

// Objective returns the dense objective coefficient vector.
func (p *Problem) Objective() []float64 {
	c := make([]float64, len(p.vars))
	for _, t := range p.costs {
		c[t.Var] += t.Coef
	}
	return c
}

// ObjectiveValue evaluates the objective at x.
func (p *Problem) ObjectiveValue(x []float64) float64 {
	var s float64
	for _, t := range p.costs {
		s += t.Coef * x[t.Var]
	}
	return s
}

// Lookup returns the index of the variable with the given key.
func (p *Problem) Lookup(k VarKey) (int, bool) {
	i, ok := p.index[k]
	return i, ok
}

// Binaries returns the indices of binary variables.
func (p *Problem) Binaries() []int {
	var out []int
	for i, v := range p.vars {
		if v.Binary {
			out = append(out, i)
		}
	}
	return out
}

// Tags returns every distinct constraint tag, bounds included, in first-seen
// order.
func (p *Problem) Tags() []model.ConstraintTag {
	seen := make(map[model.ConstraintTag]struct{})
	var out []model.ConstraintTag
	add := func(t model.ConstraintTag) {
		if _, ok := seen[t]; ok {
			return
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	for _, v := range p.vars {
		add(v.BoundTag)
	}
	for _, c := range p.cons {
		add(c.Tag)
	}
	return out
}

// MaxViolation returns the largest bound or constraint violation at x and a
// description of where it occurs.
func (p *Problem) MaxViolation(x []float64) (float64, string) {
	var worst float64
	var where string
	for i, v := range p.vars {
		if d := v.Lower - x[i]; d > worst {
			worst, where = d, v.Key.String()+" lower bound"
		}
		if d := x[i] - v.Upper; d > worst {
			worst, where = d, v.Key.String()+" upper bound"
		}
	}
	for _, c := range p.cons {
		if d := c.Violation(x); d > worst {
			worst, where = d, c.Name
		}
	}
	return worst, where
}
