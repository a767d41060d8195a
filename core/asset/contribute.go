package asset

import (
	"fmt"
	"math"

	"github.com/kilianp07/gridflex/core/model"
	"github.com/kilianp07/gridflex/core/program"
)

// Contribution is what an asset added to a problem: the linear expression of
// its grid exchange per period, positive when drawing from the grid, and the
// gas variables of hybrid heaters.
type Contribution struct {
	grid [][]program.Term
	gas  []int
	// GasEmissionFactor is the CO2 intensity of the gas in g/kWh.
	GasEmissionFactor float64
}

// GridPower returns the grid exchange expression of period t.
func (c *Contribution) GridPower(t int) []program.Term {
	return append([]program.Term(nil), c.grid[t]...)
}

// Gas returns the index of the gas variable of period t, false for assets
// without a gas supply.
func (c *Contribution) Gas(t int) (int, bool) {
	if c.gas == nil {
		return -1, false
	}
	return c.gas[t], true
}

func (a *Asset) tag(o model.Origin) model.ConstraintTag {
	return model.ConstraintTag{AssetID: a.spec.ID, Origin: o}
}

func (a *Asset) key(r program.Role, t int) program.VarKey {
	return program.VarKey{AssetID: a.spec.ID, Role: r, Period: t}
}

func (a *Asset) name(kind string, t int) string {
	return fmt.Sprintf("%s[%s,%d]", kind, a.spec.ID, t)
}

// Contribute appends the asset's variables, constraints and operating costs
// to b. Variables are added period by period in a fixed role order.
func (a *Asset) Contribute(b *program.Builder) *Contribution {
	var level [][]program.Term
	c := &Contribution{}
	switch a.spec.Kind {
	case model.AssetStorage:
		level = a.storage(b)
		c.grid = level
	case model.AssetShiftableLoad:
		level = a.committed(b, program.RolePower)
		c.grid = level
	case model.AssetGenerator:
		level = a.committed(b, program.RoleOutput)
		c.grid = negate(level)
		h := a.horizon.Hours()
		for t := range level {
			b.AddCost(level[t][0].Var, a.spec.MarginalCost*h, program.CostOperating)
		}
	case model.AssetFixedLoad:
		c.grid = a.fixed(b)
		return c
	case model.AssetHybridHeat:
		level = a.committed(b, program.RolePower)
		c.grid = level
		c.gas = a.heat(b, level)
		c.GasEmissionFactor = a.spec.Gas.EmissionFactor
	}
	a.ramp(b, level)
	return c
}

func negate(exprs [][]program.Term) [][]program.Term {
	out := make([][]program.Term, len(exprs))
	for t, e := range exprs {
		out[t] = make([]program.Term, len(e))
		for i, term := range e {
			out[t][i] = program.Term{Var: term.Var, Coef: -term.Coef}
		}
	}
	return out
}

func (a *Asset) storage(b *program.Builder) [][]program.Term {
	s := a.spec
	n := a.horizon.Len()
	h := a.horizon.Hours()
	charge := make([]int, n)
	discharge := make([]int, n)
	for t := 0; t < n; t++ {
		charge[t] = b.AddVariable(program.Variable{Key: a.key(program.RoleCharge, t), Upper: s.ChargeLimit(), BoundTag: a.tag(model.OriginCapacity)})
		discharge[t] = b.AddVariable(program.Variable{Key: a.key(program.RoleDischarge, t), Upper: s.DischargeLimit(), BoundTag: a.tag(model.OriginCapacity)})
	}

	soc := make([]int, n+1)
	for k := 0; k <= n; k++ {
		lo, hi := s.MinSoCKWh, s.SoCUpperBound()
		if k == 0 {
			lo, hi = s.InitialSoCKWh, s.InitialSoCKWh
		}
		if k == n && s.FinalSoCKWh != nil {
			lo = math.Max(lo, *s.FinalSoCKWh)
		}
		soc[k] = b.AddVariable(program.Variable{Key: a.key(program.RoleSoC, k), Lower: lo, Upper: hi, BoundTag: a.tag(model.OriginSoCBounds)})
	}

	level := make([][]program.Term, n)
	for t := 0; t < n; t++ {
		// soc[t+1] = soc[t] + eff*charge*h - discharge*h/eff
		b.AddConstraint(program.Constraint{
			Name: a.name("soc", t),
			Terms: []program.Term{
				{Var: soc[t+1], Coef: 1},
				{Var: soc[t], Coef: -1},
				{Var: charge[t], Coef: -s.Efficiency * h},
				{Var: discharge[t], Coef: h / s.Efficiency},
			},
			Sense: program.EQ,
			Tag:   a.tag(model.OriginSoCContinuity),
		})
		level[t] = []program.Term{{Var: charge[t], Coef: 1}, {Var: discharge[t], Coef: -1}}
	}
	return level
}

// committed adds one power variable per period under role, with an optional
// binary commitment, minimum runtime and energy requirement.
func (a *Asset) committed(b *program.Builder, role program.Role) [][]program.Term {
	s := a.spec
	n := a.horizon.Len()
	h := a.horizon.Hours()
	power := make([]int, n)
	lo := s.MinPowerKW
	if s.OnOff {
		lo = 0
	}
	for t := 0; t < n; t++ {
		power[t] = b.AddVariable(program.Variable{Key: a.key(role, t), Lower: lo, Upper: s.MaxPowerKW, BoundTag: a.tag(model.OriginCapacity)})
	}

	if s.OnOff {
		on := make([]int, n)
		for t := 0; t < n; t++ {
			on[t] = b.AddVariable(program.Variable{Key: a.key(program.RoleOn, t), Upper: 1, Binary: true, BoundTag: a.tag(model.OriginCommitment)})
		}
		for t := 0; t < n; t++ {
			b.AddConstraint(program.Constraint{
				Name:  a.name("commit_max", t),
				Terms: []program.Term{{Var: power[t], Coef: 1}, {Var: on[t], Coef: -s.MaxPowerKW}},
				Sense: program.LE,
				Tag:   a.tag(model.OriginCommitment),
			})
			if s.MinPowerKW > 0 {
				b.AddConstraint(program.Constraint{
					Name:  a.name("commit_min", t),
					Terms: []program.Term{{Var: on[t], Coef: s.MinPowerKW}, {Var: power[t], Coef: -1}},
					Sense: program.LE,
					Tag:   a.tag(model.OriginCommitment),
				})
			}
		}
		a.minRuntime(b, on)
	}

	if s.EnergyKWh > 0 {
		terms := make([]program.Term, n)
		for t := range terms {
			terms[t] = program.Term{Var: power[t], Coef: h}
		}
		b.AddConstraint(program.Constraint{
			Name:  a.name("energy", 0),
			Terms: terms,
			Sense: program.EQ,
			RHS:   s.EnergyKWh,
			Tag:   a.tag(model.OriginEnergyRequirement),
		})
	}

	level := make([][]program.Term, n)
	for t := range level {
		level[t] = []program.Term{{Var: power[t], Coef: 1}}
	}
	return level
}

// minRuntime keeps a unit on for at least MinRuntimePeriods once started:
// on[t] - on[t-1] <= on[t+k]. The unit is off before the horizon and runs may
// be cut by the horizon end.
func (a *Asset) minRuntime(b *program.Builder, on []int) {
	m := a.spec.MinRuntimePeriods
	for t := range on {
		for k := 1; k < m && t+k < len(on); k++ {
			terms := []program.Term{{Var: on[t], Coef: 1}, {Var: on[t+k], Coef: -1}}
			if t > 0 {
				terms = append(terms, program.Term{Var: on[t-1], Coef: -1})
			}
			b.AddConstraint(program.Constraint{
				Name:  fmt.Sprintf("min_runtime[%s,%d+%d]", a.spec.ID, t, k),
				Terms: terms,
				Sense: program.LE,
				Tag:   a.tag(model.OriginMinRuntime),
			})
		}
	}
}

// heat adds the gas supply of a hybrid heater: electric[t] + gas[t] =
// heat_demand[t], with gas paid at its price plus network fee.
func (a *Asset) heat(b *program.Builder, electric [][]program.Term) []int {
	h := a.horizon.Hours()
	gas := make([]int, a.horizon.Len())
	for t, q := range a.spec.HeatDemandKW {
		gas[t] = b.AddVariable(program.Variable{Key: a.key(program.RoleGas, t), Upper: q, BoundTag: a.tag(model.OriginHeatDemand)})
		b.AddConstraint(program.Constraint{
			Name:  a.name("heat", t),
			Terms: append(append([]program.Term(nil), electric[t]...), program.Term{Var: gas[t], Coef: 1}),
			Sense: program.EQ,
			RHS:   q,
			Tag:   a.tag(model.OriginHeatDemand),
		})
		b.AddCost(gas[t], h*a.spec.Gas.Price(t), program.CostFuel)
	}
	return gas
}

func (a *Asset) fixed(b *program.Builder) [][]program.Term {
	grid := make([][]program.Term, a.horizon.Len())
	for t, p := range a.spec.ProfileKW {
		v := b.AddVariable(program.Variable{Key: a.key(program.RolePower, t), Lower: p, Upper: p, BoundTag: a.tag(model.OriginCapacity)})
		grid[t] = []program.Term{{Var: v, Coef: 1}}
	}
	return grid
}

// ramp bounds the change of level between consecutive periods. Zero limits
// are unlimited.
func (a *Asset) ramp(b *program.Builder, level [][]program.Term) {
	up, down := a.spec.RampUpKW, a.spec.RampDownKW
	for t := 1; t < len(level); t++ {
		diff := append(append([]program.Term(nil), level[t]...), negate(level[t-1 : t])[0]...)
		if up > 0 {
			b.AddConstraint(program.Constraint{Name: a.name("ramp_up", t), Terms: diff, Sense: program.LE, RHS: up, Tag: a.tag(model.OriginRamp)})
		}
		if down > 0 {
			b.AddConstraint(program.Constraint{Name: a.name("ramp_down", t), Terms: diff, Sense: program.GE, RHS: -down, Tag: a.tag(model.OriginRamp)})
		}
	}
}
