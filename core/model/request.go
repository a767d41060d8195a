package model

import (
	"fmt"
	"math"
	"time"
)

// HoursPerYear converts full-load hours between a horizon and a year.
const HoursPerYear = 8760

// DemandChargeSpec configures a charge proportional to the peak grid import
// over the horizon.
type DemandChargeSpec struct {
	RatePerKW float64 `json:"rate_per_kw" yaml:"rate_per_kw"`
	// ExcludeLowWindows leaves the draw of shiftable loads and hybrid heaters
	// inside low-fee windows out of the peak.
	ExcludeLowWindows bool `json:"exclude_low_windows,omitempty" yaml:"exclude_low_windows,omitempty"`
	// MinFullLoadHours is the annual full-load hours the peak must keep:
	// average import over the horizon >= MinFullLoadHours/8760 * peak.
	MinFullLoadHours float64 `json:"min_full_load_hours,omitempty" yaml:"min_full_load_hours,omitempty"`
}

// GridSpec bounds the site connection. Nil limits are unbounded.
type GridSpec struct {
	MaxImportKW *float64 `json:"max_import_kw,omitempty" yaml:"max_import_kw,omitempty"`
	MaxExportKW *float64 `json:"max_export_kw,omitempty" yaml:"max_export_kw,omitempty"`
}

// SolverSettings bounds the solver invocation of a request.
type SolverSettings struct {
	TimeLimitMS int     `json:"time_limit_ms,omitempty" yaml:"time_limit_ms,omitempty"`
	Tolerance   float64 `json:"tolerance,omitempty" yaml:"tolerance,omitempty"`
}

// TimeLimit returns the configured limit as a duration.
func (s SolverSettings) TimeLimit() time.Duration {
	return time.Duration(s.TimeLimitMS) * time.Millisecond
}

// Request is a single optimization request.
type Request struct {
	ID           string            `json:"id,omitempty" yaml:"id,omitempty"`
	Horizon      HorizonSpec       `json:"horizon" yaml:"horizon"`
	Assets       []AssetSpec       `json:"assets" yaml:"assets"`
	Tariff       TariffSpec        `json:"tariff" yaml:"tariff"`
	DemandCharge *DemandChargeSpec `json:"demand_charge,omitempty" yaml:"demand_charge,omitempty"`
	Grid         GridSpec          `json:"grid,omitempty" yaml:"grid,omitempty"`
	// EmissionFactors is the grid carbon intensity per period in g/kWh.
	EmissionFactors []float64 `json:"emission_factors,omitempty" yaml:"emission_factors,omitempty"`
	// CarbonPrice is charged per tonne of CO2 from grid imports and burned gas.
	CarbonPrice float64        `json:"carbon_price,omitempty" yaml:"carbon_price,omitempty"`
	Solver      SolverSettings `json:"solver,omitempty" yaml:"solver,omitempty"`
}

// Validate checks request-level fields that do not belong to a single asset
// or to the tariff.
func (r Request) Validate(h TimeHorizon) error {
	if len(r.Assets) == 0 {
		return &InvalidRequestError{Field: "assets", Reason: "at least one asset is required"}
	}
	seen := make(map[string]struct{}, len(r.Assets))
	for i, a := range r.Assets {
		if a.ID == "" {
			return &InvalidRequestError{Field: fmt.Sprintf("assets[%d].id", i), Reason: "empty id"}
		}
		if a.ID == SiteID {
			return &InvalidRequestError{Field: fmt.Sprintf("assets[%d].id", i), Reason: "id " + SiteID + " is reserved"}
		}
		if _, dup := seen[a.ID]; dup {
			return &InvalidRequestError{Field: fmt.Sprintf("assets[%d].id", i), Reason: "duplicate id " + a.ID}
		}
		seen[a.ID] = struct{}{}
	}
	if r.DemandCharge != nil {
		if r.DemandCharge.RatePerKW < 0 || math.IsNaN(r.DemandCharge.RatePerKW) {
			return &InvalidRequestError{Field: "demand_charge.rate_per_kw", Reason: "must be non-negative"}
		}
		if f := r.DemandCharge.MinFullLoadHours; !(f >= 0 && f <= HoursPerYear) {
			return &InvalidRequestError{Field: "demand_charge.min_full_load_hours", Reason: fmt.Sprintf("must be in [0,%d]", HoursPerYear)}
		}
	}
	if !(r.CarbonPrice >= 0) || math.IsInf(r.CarbonPrice, 1) {
		return &InvalidRequestError{Field: "carbon_price", Reason: "must be non-negative"}
	}
	if r.Grid.MaxImportKW != nil && *r.Grid.MaxImportKW < 0 {
		return &InvalidRequestError{Field: "grid.max_import_kw", Reason: "must be non-negative"}
	}
	if r.Grid.MaxExportKW != nil && *r.Grid.MaxExportKW < 0 {
		return &InvalidRequestError{Field: "grid.max_export_kw", Reason: "must be non-negative"}
	}
	if len(r.EmissionFactors) > 0 && len(r.EmissionFactors) != h.Len() {
		return &InvalidRequestError{Field: "emission_factors", Reason: fmt.Sprintf("expected %d values got %d", h.Len(), len(r.EmissionFactors))}
	}
	if r.Solver.TimeLimitMS < 0 {
		return &InvalidRequestError{Field: "solver.time_limit_ms", Reason: "must be non-negative"}
	}
	if r.Solver.Tolerance < 0 || math.IsNaN(r.Solver.Tolerance) {
		return &InvalidRequestError{Field: "solver.tolerance", Reason: "must be non-negative"}
	}
	return nil
}

// SiteID is the reserved asset id of site-level variables such as grid
// import, export and peak.
const SiteID = "site"
