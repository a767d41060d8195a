package model

import "time"

// CostBreakdown splits the total cost by component.
type CostBreakdown struct {
	Energy       float64 `json:"energy"`
	GridFee      float64 `json:"grid_fee"`
	DemandCharge float64 `json:"demand_charge"`
	Operating    float64 `json:"operating"` // generator marginal costs
	Fuel         float64 `json:"fuel"`      // gas burned by hybrid heaters, network fee included
	Carbon       float64 `json:"carbon"`    // carbon price on imports and gas
	Total        float64 `json:"total"`
}

// Sum recomputes Total from the components.
func (c CostBreakdown) Sum() float64 {
	return c.Energy + c.GridFee + c.DemandCharge + c.Operating + c.Fuel + c.Carbon
}

// AssetDispatch holds the resolved decision variables of one asset.
// Series are indexed by period; SoCKWh has one more entry than the horizon
// (one value per period boundary).
type AssetDispatch struct {
	AssetID     string    `json:"asset_id"`
	Kind        AssetKind `json:"kind"`
	PowerKW     []float64 `json:"power_kw"`               // net grid exchange, positive = consumption
	ChargeKW    []float64 `json:"charge_kw,omitempty"`    // storage only
	DischargeKW []float64 `json:"discharge_kw,omitempty"` // storage only
	OutputKW    []float64 `json:"output_kw,omitempty"`    // generator only
	SoCKWh      []float64 `json:"soc_kwh,omitempty"`      // storage only
	On          []bool    `json:"on,omitempty"`           // on/off loads only
	GasKW       []float64 `json:"gas_kw,omitempty"`       // hybrid heaters only: heat taken from gas
	EnergyKWh   float64   `json:"energy_kwh"`             // net energy drawn over the horizon
}

// Summary carries indicators derived from the schedule.
type Summary struct {
	FlexibleEnergyKWh float64 `json:"flexible_energy_kwh"`
	// LowWindowShare is the share of flexible consumption placed in low-fee windows.
	LowWindowShare float64 `json:"low_window_share"`
	// MeanPriceWhenConsuming is the consumption-weighted total rate paid by
	// flexible consumption.
	MeanPriceWhenConsuming float64 `json:"mean_price_when_consuming"`
	EmissionsKg            float64 `json:"emissions_kg"`
	// Full-load hours of the billed import scaled to a year, for the
	// inflexible load alone and for the optimized schedule.
	FullLoadHoursBefore float64      `json:"full_load_hours_before"`
	FullLoadHoursAfter  float64      `json:"full_load_hours_after"`
	Heat                *HeatSummary `json:"heat,omitempty"`
}

// HeatSummary compares hybrid heaters with covering their heat demand from
// gas alone. Costs include gas network fees and the carbon price; electric
// heat is valued at the full tariff rate.
type HeatSummary struct {
	DemandKWh   float64 `json:"demand_kwh"`
	ElectricKWh float64 `json:"electric_kwh"`
	GasKWh      float64 `json:"gas_kwh"`

	CostGasOnly float64 `json:"cost_gas_only"`
	Cost        float64 `json:"cost"`
	CostSavings float64 `json:"cost_savings"`

	EmissionsGasOnlyKg float64 `json:"emissions_gas_only_kg"`
	EmissionsKg        float64 `json:"emissions_kg"`
	EmissionsSavingsKg float64 `json:"emissions_savings_kg"`
}

// DispatchSchedule is the result of a successful optimization. It is never
// modified after being returned.
type DispatchSchedule struct {
	RequestID  string          `json:"request_id"`
	Start      time.Time       `json:"start"`
	Step       time.Duration   `json:"step"`
	Periods    int             `json:"periods"`
	Assets     []AssetDispatch `json:"assets"`
	ImportKW   []float64       `json:"import_kw"`
	ExportKW   []float64       `json:"export_kw"`
	NetKW      []float64       `json:"net_kw"`
	Windows    []WindowType    `json:"windows"`
	PeakKW     float64         `json:"peak_kw"`
	Cost       CostBreakdown   `json:"cost"`
	Objective  float64         `json:"objective"`
	Summary    Summary         `json:"summary"`
	SolveTime  time.Duration   `json:"solve_time"`
	Nodes      int             `json:"nodes"` // relaxations solved
}

// Asset returns the dispatch of the given asset.
func (s *DispatchSchedule) Asset(id string) (AssetDispatch, bool) {
	for _, a := range s.Assets {
		if a.AssetID == id {
			return a, true
		}
	}
	return AssetDispatch{}, false
}

// PeriodStart returns the start time of period i.
func (s *DispatchSchedule) PeriodStart(i int) time.Time {
	return s.Start.Add(time.Duration(i) * s.Step)
}
