// Package interpret turns solver outcomes into dispatch schedules or typed
// failures and cross-checks every schedule against the model it came from.
package interpret

import (
	"errors"
	"fmt"
	"math"

	"github.com/kilianp07/gridflex/core/builder"
	"github.com/kilianp07/gridflex/core/model"
	"github.com/kilianp07/gridflex/core/program"
	"github.com/kilianp07/gridflex/core/solver"
)

var (
	// ErrInfeasible is the cause of infeasible failures.
	ErrInfeasible = errors.New("no dispatch satisfies all constraints")
	// ErrUnbounded is the cause of unbounded failures.
	ErrUnbounded = errors.New("cost can be decreased without limit")
	// ErrTimeLimit is the cause of timed out failures without a more specific error.
	ErrTimeLimit = errors.New("solver time limit reached")
)

// Interpret converts out into a schedule. Every non-optimal outcome becomes a
// *model.OptimizationFailure; a timed out incumbent is attached to the failure
// and never returned as a success.
func Interpret(m *builder.Model, out solver.Outcome, tol float64) (*model.DispatchSchedule, error) {
	if tol <= 0 {
		tol = solver.DefaultTolerance
	}
	fail := func(kind model.FailureKind, err error) *model.OptimizationFailure {
		return &model.OptimizationFailure{RequestID: m.RequestID, Kind: kind, Err: err}
	}

	switch out.Status {
	case solver.Optimal:
		s, err := schedule(m, out, tol)
		if err != nil {
			return nil, fail(model.FailureInconsistent, err)
		}
		return s, nil
	case solver.TimedOut:
		cause := ErrTimeLimit
		if out.Err != nil {
			cause = fmt.Errorf("%w: %w", ErrTimeLimit, out.Err)
		}
		f := fail(model.FailureTimedOut, cause)
		if out.HasSolution() {
			if s, err := schedule(m, out, tol); err == nil {
				f.Incumbent = s
			}
		}
		return nil, f
	case solver.Infeasible:
		f := fail(model.FailureInfeasible, ErrInfeasible)
		f.InfeasibleTags = append([]model.ConstraintTag(nil), out.InfeasibleTags...)
		return nil, f
	case solver.Unbounded:
		return nil, fail(model.FailureUnbounded, ErrUnbounded)
	default:
		err := out.Err
		if err == nil {
			err = fmt.Errorf("solver status %s", out.Status)
		}
		return nil, fail(model.FailureSolverError, err)
	}
}

func scaled(tol, ref float64) float64 { return tol * math.Max(1, math.Abs(ref)) }

// carbonCost prices kg of CO2 at a price per tonne.
func carbonCost(kg, pricePerTonne float64) float64 { return kg / 1000 * pricePerTonne }

// cleanValues rounds binaries, clamps bound noise and verifies that the result
// satisfies every constraint.
func cleanValues(p *program.Problem, values []float64, tol float64) ([]float64, error) {
	if len(values) != p.NumVars() {
		return nil, &model.ResultInconsistencyError{Reason: fmt.Sprintf("%d values for %d variables", len(values), p.NumVars())}
	}
	x := append([]float64(nil), values...)
	for i := range x {
		v := p.Variable(i)
		if math.IsNaN(x[i]) {
			return nil, &model.ResultInconsistencyError{Reason: "value is NaN", Variable: v.Key.String()}
		}
		if v.Binary {
			r := math.Round(x[i])
			if math.Abs(x[i]-r) > tol {
				return nil, &model.ResultInconsistencyError{Reason: fmt.Sprintf("binary value %g is not integral", x[i]), Variable: v.Key.String()}
			}
			x[i] = r
		}
		if x[i] < v.Lower {
			if v.Lower-x[i] > scaled(tol, v.Lower) {
				return nil, &model.ResultInconsistencyError{Reason: fmt.Sprintf("value %g below lower bound %g", x[i], v.Lower), Variable: v.Key.String()}
			}
			x[i] = v.Lower
		}
		if x[i] > v.Upper {
			if x[i]-v.Upper > scaled(tol, v.Upper) {
				return nil, &model.ResultInconsistencyError{Reason: fmt.Sprintf("value %g above upper bound %g", x[i], v.Upper), Variable: v.Key.String()}
			}
			x[i] = v.Upper
		}
	}
	for _, c := range p.Constraints() {
		if d := c.Violation(x); d > scaled(tol, c.RHS) {
			return nil, &model.ResultInconsistencyError{Reason: fmt.Sprintf("constraint %s violated by %g", c.Name, d)}
		}
	}
	return x, nil
}

func schedule(m *builder.Model, out solver.Outcome, tol float64) (*model.DispatchSchedule, error) {
	p := m.Problem
	x, err := cleanValues(p, out.Values, tol)
	if err != nil {
		return nil, err
	}

	n := m.Horizon.Len()
	h := m.Horizon.Hours()
	s := &model.DispatchSchedule{
		RequestID: m.RequestID,
		Start:     m.Horizon.Start(),
		Step:      m.Horizon.Step(),
		Periods:   n,
		ImportKW:  make([]float64, n),
		ExportKW:  make([]float64, n),
		NetKW:     make([]float64, n),
		Windows:   make([]model.WindowType, n),
		Objective: out.Objective,
		SolveTime: out.Elapsed,
		Nodes:     out.Nodes,
	}

	for _, a := range m.Assets {
		d, err := a.Dispatch(p, x)
		if err != nil {
			return nil, &model.ResultInconsistencyError{Reason: err.Error()}
		}
		for t, pw := range d.PowerKW {
			s.NetKW[t] += pw
		}
		s.Cost.Operating += a.OperatingCost(d)
		s.Cost.Fuel += a.FuelCost(d)
		s.Cost.Carbon += carbonCost(a.GasEmissionsKg(d), m.CarbonPrice)
		s.Assets = append(s.Assets, d)
	}

	for t := 0; t < n; t++ {
		imp, ok1 := m.SiteVar(program.RoleImport, t)
		exp, ok2 := m.SiteVar(program.RoleExport, t)
		if !ok1 || !ok2 {
			return nil, &model.ResultInconsistencyError{Reason: fmt.Sprintf("missing grid exchange for period %d", t)}
		}
		s.ImportKW[t], s.ExportKW[t] = x[imp], x[exp]
		if d := math.Abs(s.NetKW[t] - (s.ImportKW[t] - s.ExportKW[t])); d > scaled(tol, s.NetKW[t]) {
			return nil, &model.ResultInconsistencyError{Reason: fmt.Sprintf("period %d: assets draw %g kW but grid exchange is %g kW",
				t, s.NetKW[t], s.ImportKW[t]-s.ExportKW[t])}
		}
		rate := m.Rates[t]
		s.Windows[t] = rate.Window
		s.Cost.Energy += h * (s.ImportKW[t] - s.ExportKW[t]) * rate.Energy
		s.Cost.GridFee += h * s.ImportKW[t] * rate.GridFee
		if len(m.EmissionFactors) > 0 {
			s.Cost.Carbon += carbonCost(h*s.ImportKW[t]*m.EmissionFactors[t]/1000, m.CarbonPrice)
		}
		s.PeakKW = math.Max(s.PeakKW, m.BilledImport(t, s.ImportKW[t], s.Assets))
	}
	s.Cost.DemandCharge = m.DemandRate * s.PeakKW
	s.Cost.Total = s.Cost.Sum()

	if d := math.Abs(s.Cost.Total - out.Objective); d > scaled(tol, out.Objective) {
		return nil, &model.ResultInconsistencyError{Reason: "recomputed cost differs from solver objective", Objective: out.Objective, Recomputed: s.Cost.Total}
	}
	s.Summary = summarize(m, s)
	return s, nil
}

// summarize derives the flexibility, emission, full-load and heat indicators
// of s.
func summarize(m *builder.Model, s *model.DispatchSchedule) model.Summary {
	h := m.Horizon.Hours()
	var sum model.Summary
	var low, paid float64
	for _, d := range s.Assets {
		if !d.Kind.Flexible() {
			continue
		}
		for t, pw := range d.PowerKW {
			if pw <= 0 {
				continue
			}
			e := pw * h
			sum.FlexibleEnergyKWh += e
			paid += e * m.Rates[t].Total()
			if m.Rates[t].Window == model.WindowLow {
				low += e
			}
		}
	}
	if sum.FlexibleEnergyKWh > 0 {
		sum.LowWindowShare = low / sum.FlexibleEnergyKWh
		sum.MeanPriceWhenConsuming = paid / sum.FlexibleEnergyKWh
	}
	for t, f := range m.EmissionFactors {
		sum.EmissionsKg += s.ImportKW[t] * h * f / 1000
	}
	for i, a := range m.Assets {
		sum.EmissionsKg += a.GasEmissionsKg(s.Assets[i])
	}

	inflexible := make([]float64, s.Periods)
	billed := make([]float64, s.Periods)
	for t := range billed {
		for _, d := range s.Assets {
			if !d.Kind.Flexible() {
				inflexible[t] += d.PowerKW[t]
			}
		}
		billed[t] = m.BilledImport(t, s.ImportKW[t], s.Assets)
	}
	sum.FullLoadHoursBefore = fullLoadHours(inflexible, h)
	sum.FullLoadHoursAfter = fullLoadHours(billed, h)
	sum.Heat = heatSummary(m, s)
	return sum
}

// fullLoadHours returns the annual hours at peak that deliver the same energy
// as load, extrapolated from the horizon.
func fullLoadHours(load []float64, h float64) float64 {
	var energy, peak float64
	for _, p := range load {
		energy += math.Max(p, 0) * h
		peak = math.Max(peak, p)
	}
	if peak <= 0 {
		return 0
	}
	return energy / peak * model.HoursPerYear / (h * float64(len(load)))
}

// heatSummary compares the hybrid heaters of s with gas-only heating. It is
// nil without hybrid heaters.
func heatSummary(m *builder.Model, s *model.DispatchSchedule) *model.HeatSummary {
	h := m.Horizon.Hours()
	var hs *model.HeatSummary
	for i, a := range m.Assets {
		if a.Kind() != model.AssetHybridHeat {
			continue
		}
		if hs == nil {
			hs = &model.HeatSummary{}
		}
		spec, d := a.Spec(), s.Assets[i]
		gasOnly := d
		gasOnly.PowerKW = make([]float64, len(d.PowerKW))
		gasOnly.GasKW = spec.HeatDemandKW
		for t, q := range spec.HeatDemandKW {
			hs.DemandKWh += q * h
			hs.ElectricKWh += d.PowerKW[t] * h
			hs.GasKWh += d.GasKW[t] * h

			electric := d.PowerKW[t] * h
			hs.Cost += electric * m.Rates[t].Total()
			if len(m.EmissionFactors) > 0 {
				kg := electric * m.EmissionFactors[t] / 1000
				hs.EmissionsKg += kg
				hs.Cost += carbonCost(kg, m.CarbonPrice)
			}
		}
		gas, baseline := a.GasEmissionsKg(d), a.GasEmissionsKg(gasOnly)
		hs.EmissionsKg += gas
		hs.EmissionsGasOnlyKg += baseline
		hs.Cost += a.FuelCost(d) + carbonCost(gas, m.CarbonPrice)
		hs.CostGasOnly += a.FuelCost(gasOnly) + carbonCost(baseline, m.CarbonPrice)
	}
	if hs != nil {
		hs.CostSavings = hs.CostGasOnly - hs.Cost
		hs.EmissionsSavingsKg = hs.EmissionsGasOnlyKg - hs.EmissionsKg
	}
	return hs
}
