package asset

import (
	"fmt"

	"github.com/kilianp07/gridflex/core/model"
	"github.com/kilianp07/gridflex/core/program"
)

// Dispatch reads the asset's values from a solution vector of p. Binary
// values are expected to be rounded already.
func (a *Asset) Dispatch(p *program.Problem, x []float64) (model.AssetDispatch, error) {
	n := a.horizon.Len()
	d := model.AssetDispatch{AssetID: a.spec.ID, Kind: a.spec.Kind, PowerKW: make([]float64, n)}

	read := func(r program.Role, count int) ([]float64, error) {
		out := make([]float64, count)
		for t := range out {
			i, ok := p.Lookup(a.key(r, t))
			if !ok {
				return nil, fmt.Errorf("asset %s: missing variable %s", a.spec.ID, a.key(r, t))
			}
			out[t] = x[i]
		}
		return out, nil
	}

	var err error
	switch a.spec.Kind {
	case model.AssetStorage:
		if d.ChargeKW, err = read(program.RoleCharge, n); err != nil {
			return d, err
		}
		if d.DischargeKW, err = read(program.RoleDischarge, n); err != nil {
			return d, err
		}
		if d.SoCKWh, err = read(program.RoleSoC, n+1); err != nil {
			return d, err
		}
		for t := range d.PowerKW {
			d.PowerKW[t] = d.ChargeKW[t] - d.DischargeKW[t]
		}
	case model.AssetShiftableLoad, model.AssetFixedLoad:
		if d.PowerKW, err = read(program.RolePower, n); err != nil {
			return d, err
		}
	case model.AssetHybridHeat:
		if d.PowerKW, err = read(program.RolePower, n); err != nil {
			return d, err
		}
		if d.GasKW, err = read(program.RoleGas, n); err != nil {
			return d, err
		}
	case model.AssetGenerator:
		if d.OutputKW, err = read(program.RoleOutput, n); err != nil {
			return d, err
		}
		for t := range d.PowerKW {
			d.PowerKW[t] = -d.OutputKW[t]
		}
	}

	if a.spec.OnOff {
		on, err := read(program.RoleOn, n)
		if err != nil {
			return d, err
		}
		d.On = make([]bool, n)
		for t, v := range on {
			d.On[t] = v > 0.5
		}
	}

	h := a.horizon.Hours()
	for _, p := range d.PowerKW {
		d.EnergyKWh += p * h
	}
	return d, nil
}

// FuelCost returns what the gas of a hybrid heater dispatch costs, network
// fee included.
func (a *Asset) FuelCost(d model.AssetDispatch) float64 {
	if a.spec.Gas == nil {
		return 0
	}
	var c float64
	h := a.horizon.Hours()
	for t, g := range d.GasKW {
		c += g * h * a.spec.Gas.Price(t)
	}
	return c
}

// GasEmissionsKg returns the CO2 emitted by the gas of a dispatch.
func (a *Asset) GasEmissionsKg(d model.AssetDispatch) float64 {
	if a.spec.Gas == nil {
		return 0
	}
	var e float64
	for _, g := range d.GasKW {
		e += g * a.horizon.Hours() * a.spec.Gas.EmissionFactor / 1000
	}
	return e
}

// OperatingCost returns the marginal cost of the dispatch.
func (a *Asset) OperatingCost(d model.AssetDispatch) float64 {
	if a.spec.Kind != model.AssetGenerator {
		return 0
	}
	var c float64
	h := a.horizon.Hours()
	for _, o := range d.OutputKW {
		c += o * h * a.spec.MarginalCost
	}
	return c
}
