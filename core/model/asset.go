package model

// AssetKind identifies how an asset interacts with the grid.
type AssetKind string

const (
	// AssetStorage charges and discharges energy (batteries, thermal storage).
	AssetStorage AssetKind = "storage"
	// AssetShiftableLoad consumes power whose timing can be moved.
	AssetShiftableLoad AssetKind = "shiftable_load"
	// AssetGenerator produces power at a marginal cost.
	AssetGenerator AssetKind = "generator"
	// AssetFixedLoad follows a given profile and has no flexibility.
	AssetFixedLoad AssetKind = "fixed_load"
	// AssetHybridHeat is an electric heater covering a heat demand together
	// with a gas supply that takes whatever the heater does not deliver.
	AssetHybridHeat AssetKind = "hybrid_heat"
)

// Valid reports whether k is a known kind.
func (k AssetKind) Valid() bool {
	switch k {
	case AssetStorage, AssetShiftableLoad, AssetGenerator, AssetFixedLoad, AssetHybridHeat:
		return true
	}
	return false
}

// Flexible reports whether the optimizer can move the asset's power.
func (k AssetKind) Flexible() bool { return k != AssetFixedLoad }

// PeakExempt reports whether the asset's draw inside low-fee windows may be
// left out of the billed demand peak (atypical grid usage).
func (k AssetKind) PeakExempt() bool { return k == AssetShiftableLoad || k == AssetHybridHeat }

// GasSupplySpec prices the gas that backs a hybrid heater. Prices are per kWh
// of heat, the emission factor in g CO2 per kWh.
type GasSupplySpec struct {
	PricePerKWh float64 `json:"price_per_kwh" yaml:"price_per_kwh"`
	// Prices overrides PricePerKWh per period when set.
	Prices           []float64 `json:"prices,omitempty" yaml:"prices,omitempty"`
	NetworkFeePerKWh float64   `json:"network_fee_per_kwh,omitempty" yaml:"network_fee_per_kwh,omitempty"`
	EmissionFactor   float64   `json:"emission_factor,omitempty" yaml:"emission_factor,omitempty"`
}

// Price returns the gas price of period t including the network fee.
func (g GasSupplySpec) Price(t int) float64 {
	p := g.PricePerKWh
	if len(g.Prices) > 0 {
		p = g.Prices[t]
	}
	return p + g.NetworkFeePerKWh
}

// AssetSpec describes a flexible asset in an optimization request.
// Power values are in kW, energies in kWh. A zero ramp limit means unlimited.
type AssetSpec struct {
	ID   string    `json:"id" yaml:"id"`
	Kind AssetKind `json:"kind" yaml:"kind"`

	MinPowerKW float64 `json:"min_power_kw" yaml:"min_power_kw"` // lower capacity bound
	MaxPowerKW float64 `json:"max_power_kw" yaml:"max_power_kw"` // upper capacity bound

	// Storage power limits. Zero falls back to MaxPowerKW.
	MaxChargeKW    float64 `json:"max_charge_kw,omitempty" yaml:"max_charge_kw,omitempty"`
	MaxDischargeKW float64 `json:"max_discharge_kw,omitempty" yaml:"max_discharge_kw,omitempty"`

	RampUpKW   float64 `json:"ramp_up_kw,omitempty" yaml:"ramp_up_kw,omitempty"`     // max increase between periods
	RampDownKW float64 `json:"ramp_down_kw,omitempty" yaml:"ramp_down_kw,omitempty"` // max decrease between periods

	// Efficiency is the one-way conversion efficiency in (0,1]. Required for
	// storage, ignored otherwise.
	Efficiency float64 `json:"efficiency,omitempty" yaml:"efficiency,omitempty"`

	CapacityKWh   float64  `json:"capacity_kwh,omitempty" yaml:"capacity_kwh,omitempty"`
	InitialSoCKWh float64  `json:"initial_soc_kwh,omitempty" yaml:"initial_soc_kwh,omitempty"`
	MinSoCKWh     float64  `json:"min_soc_kwh,omitempty" yaml:"min_soc_kwh,omitempty"`
	MaxSoCKWh     *float64 `json:"max_soc_kwh,omitempty" yaml:"max_soc_kwh,omitempty"`     // defaults to CapacityKWh
	FinalSoCKWh   *float64 `json:"final_soc_kwh,omitempty" yaml:"final_soc_kwh,omitempty"` // minimum SoC at the end of the horizon

	// EnergyKWh is the energy a shiftable load must consume over the horizon.
	// Zero means no requirement.
	EnergyKWh float64 `json:"energy_kwh,omitempty" yaml:"energy_kwh,omitempty"`

	// OnOff adds a binary commitment variable per period: the load is either
	// off or runs between MinPowerKW and MaxPowerKW.
	OnOff             bool `json:"on_off,omitempty" yaml:"on_off,omitempty"`
	MinRuntimePeriods int  `json:"min_runtime_periods,omitempty" yaml:"min_runtime_periods,omitempty"`

	MarginalCost float64 `json:"marginal_cost,omitempty" yaml:"marginal_cost,omitempty"` // generator cost per kWh produced

	ProfileKW []float64 `json:"profile_kw,omitempty" yaml:"profile_kw,omitempty"` // fixed load power per period

	// HeatDemandKW is the heat a hybrid heater must deliver per period.
	HeatDemandKW []float64     `json:"heat_demand_kw,omitempty" yaml:"heat_demand_kw,omitempty"`
	Gas          *GasSupplySpec `json:"gas,omitempty" yaml:"gas,omitempty"`
}

// ChargeLimit returns the effective storage charge limit.
func (a AssetSpec) ChargeLimit() float64 {
	if a.MaxChargeKW > 0 {
		return a.MaxChargeKW
	}
	return a.MaxPowerKW
}

// DischargeLimit returns the effective storage discharge limit.
func (a AssetSpec) DischargeLimit() float64 {
	if a.MaxDischargeKW > 0 {
		return a.MaxDischargeKW
	}
	return a.MaxPowerKW
}

// SoCUpperBound returns the effective maximum state of charge.
func (a AssetSpec) SoCUpperBound() float64 {
	if a.MaxSoCKWh != nil {
		return *a.MaxSoCKWh
	}
	return a.CapacityKWh
}
