// Package asset turns validated asset descriptors into decision variables and
// constraints of an optimization problem.
package asset

import (
	"fmt"
	"math"

	"github.com/kilianp07/gridflex/core/model"
)

// Asset is a validated asset bound to a horizon. It is immutable.
type Asset struct {
	spec    model.AssetSpec
	horizon model.TimeHorizon
}

// New validates spec against h.
func New(spec model.AssetSpec, h model.TimeHorizon) (*Asset, error) {
	if h.Len() == 0 {
		return nil, &model.EmptyHorizonError{AssetID: spec.ID, Reason: "horizon has no periods"}
	}
	if err := validate(spec, h); err != nil {
		return nil, err
	}
	return &Asset{spec: clone(spec), horizon: h}, nil
}

func clone(spec model.AssetSpec) model.AssetSpec {
	s := spec
	s.ProfileKW = append([]float64(nil), spec.ProfileKW...)
	s.HeatDemandKW = append([]float64(nil), spec.HeatDemandKW...)
	if spec.Gas != nil {
		g := *spec.Gas
		g.Prices = append([]float64(nil), spec.Gas.Prices...)
		s.Gas = &g
	}
	return s
}

// ID returns the asset identifier.
func (a *Asset) ID() string { return a.spec.ID }

// Kind returns the asset kind.
func (a *Asset) Kind() model.AssetKind { return a.spec.Kind }

// Spec returns a copy of the descriptor.
func (a *Asset) Spec() model.AssetSpec { return clone(a.spec) }

// Horizon returns the horizon the asset was built for.
func (a *Asset) Horizon() model.TimeHorizon { return a.horizon }

func invalid(s model.AssetSpec, field, format string, args ...any) error {
	return &model.InvalidAssetError{AssetID: s.ID, Field: field, Reason: fmt.Sprintf(format, args...)}
}

func finite(vals ...float64) bool {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

func validate(s model.AssetSpec, h model.TimeHorizon) error {
	if !s.Kind.Valid() {
		return invalid(s, "kind", "unknown kind %q", s.Kind)
	}
	if !finite(s.MinPowerKW, s.MaxPowerKW, s.MaxChargeKW, s.MaxDischargeKW, s.RampUpKW, s.RampDownKW,
		s.CapacityKWh, s.InitialSoCKWh, s.MinSoCKWh, s.EnergyKWh, s.MarginalCost) {
		return invalid(s, "parameters", "values must be finite numbers")
	}
	if s.MinPowerKW > s.MaxPowerKW {
		return invalid(s, "capacity", "lower bound %g above upper bound %g", s.MinPowerKW, s.MaxPowerKW)
	}
	if s.RampUpKW < 0 || s.RampDownKW < 0 {
		return invalid(s, "ramp", "ramp limits must be non-negative")
	}
	if s.MinRuntimePeriods < 0 {
		return invalid(s, "min_runtime_periods", "must be non-negative")
	}
	if s.MinRuntimePeriods > 0 && !s.OnOff {
		return invalid(s, "min_runtime_periods", "requires on_off")
	}
	if s.OnOff && s.Kind != model.AssetShiftableLoad && s.Kind != model.AssetGenerator && s.Kind != model.AssetHybridHeat {
		return invalid(s, "on_off", "only loads and generators can be committed")
	}

	switch s.Kind {
	case model.AssetStorage:
		return validateStorage(s)
	case model.AssetShiftableLoad:
		if s.MinPowerKW < 0 {
			return invalid(s, "capacity", "a load cannot have a negative lower bound")
		}
		if s.EnergyKWh < 0 {
			return invalid(s, "energy_kwh", "must be non-negative")
		}
	case model.AssetGenerator:
		if s.MinPowerKW < 0 {
			return invalid(s, "capacity", "generator output cannot be negative")
		}
	case model.AssetFixedLoad:
		if len(s.ProfileKW) != h.Len() {
			return invalid(s, "profile_kw", "expected %d values got %d", h.Len(), len(s.ProfileKW))
		}
		if !finite(s.ProfileKW...) {
			return invalid(s, "profile_kw", "values must be finite numbers")
		}
	case model.AssetHybridHeat:
		return validateHybridHeat(s, h)
	}
	return nil
}

func validateHybridHeat(s model.AssetSpec, h model.TimeHorizon) error {
	if s.MinPowerKW < 0 {
		return invalid(s, "capacity", "a heater cannot have a negative lower bound")
	}
	if s.EnergyKWh != 0 {
		return invalid(s, "energy_kwh", "hybrid heaters follow heat_demand_kw")
	}
	if len(s.HeatDemandKW) != h.Len() {
		return invalid(s, "heat_demand_kw", "expected %d values got %d", h.Len(), len(s.HeatDemandKW))
	}
	for t, q := range s.HeatDemandKW {
		if !finite(q) || q < 0 {
			return invalid(s, "heat_demand_kw", "period %d: %g is not a non-negative number", t, q)
		}
	}
	g := s.Gas
	if g == nil {
		return invalid(s, "gas", "hybrid heaters need a gas supply")
	}
	if !finite(g.PricePerKWh, g.NetworkFeePerKWh, g.EmissionFactor) || !finite(g.Prices...) {
		return invalid(s, "gas", "values must be finite numbers")
	}
	if g.PricePerKWh < 0 || g.NetworkFeePerKWh < 0 || g.EmissionFactor < 0 {
		return invalid(s, "gas", "price, network fee and emission factor must be non-negative")
	}
	if len(g.Prices) > 0 && len(g.Prices) != h.Len() {
		return invalid(s, "gas.prices", "expected %d values got %d", h.Len(), len(g.Prices))
	}
	for t, p := range g.Prices {
		if p < 0 {
			return invalid(s, "gas.prices", "period %d: negative price %g", t, p)
		}
	}
	return nil
}

func validateStorage(s model.AssetSpec) error {
	if !(s.Efficiency > 0 && s.Efficiency <= 1) {
		return &model.InvalidEfficiencyError{AssetID: s.ID, Efficiency: s.Efficiency}
	}
	if s.CapacityKWh <= 0 {
		return invalid(s, "capacity_kwh", "must be positive")
	}
	if s.MaxChargeKW < 0 || s.MaxDischargeKW < 0 || s.ChargeLimit() < 0 || s.DischargeLimit() < 0 {
		return invalid(s, "capacity", "charge and discharge limits must be non-negative")
	}
	upper := s.SoCUpperBound()
	if !finite(upper) || upper > s.CapacityKWh {
		return invalid(s, "max_soc_kwh", "%g exceeds capacity %g", upper, s.CapacityKWh)
	}
	if s.MinSoCKWh < 0 || s.MinSoCKWh > upper {
		return invalid(s, "min_soc_kwh", "%g outside [0,%g]", s.MinSoCKWh, upper)
	}
	if s.InitialSoCKWh < s.MinSoCKWh || s.InitialSoCKWh > upper {
		return invalid(s, "initial_soc_kwh", "%g outside [%g,%g]", s.InitialSoCKWh, s.MinSoCKWh, upper)
	}
	if s.FinalSoCKWh != nil {
		f := *s.FinalSoCKWh
		if !finite(f) || f < 0 || f > upper {
			return invalid(s, "final_soc_kwh", "%g outside [0,%g]", f, upper)
		}
	}
	return nil
}
