// Package builder assembles the full optimization problem of a request from
// its validated assets and resolved tariff rates.
package builder

import (
	"fmt"
	"math"

	"github.com/kilianp07/gridflex/core/asset"
	"github.com/kilianp07/gridflex/core/model"
	"github.com/kilianp07/gridflex/core/program"
	"github.com/kilianp07/gridflex/core/tariff"
)

// Model is a built problem together with the inputs needed to interpret its
// solution.
type Model struct {
	RequestID       string
	Problem         *program.Problem
	Horizon         model.TimeHorizon
	Assets          []*asset.Asset
	Rates           []tariff.Rate
	DemandRate      float64
	EmissionFactors []float64
	CarbonPrice     float64
	// ExemptLowWindows leaves low-window draw of peak exempt assets out of
	// the billed peak.
	ExemptLowWindows bool
}

// BilledImport returns the import that counts towards the demand peak in
// period t given the dispatched grid power of every asset.
func (m *Model) BilledImport(t int, imp float64, assets []model.AssetDispatch) float64 {
	if !m.ExemptLowWindows || m.Rates[t].Window != model.WindowLow {
		return imp
	}
	for _, d := range assets {
		if d.Kind.PeakExempt() {
			imp -= d.PowerKW[t]
		}
	}
	return imp
}

// perTonne converts a price per tonne of CO2 into a price per gram.
const perTonne = 1e-6

// SiteVar returns the index of a site-level variable.
func (m *Model) SiteVar(r program.Role, t int) (int, bool) {
	return m.Problem.Lookup(program.VarKey{AssetID: model.SiteID, Role: r, Period: t})
}

// Build creates the problem. Assets are added in the given order and periods
// in time order, so identical inputs produce identical problems.
func Build(req model.Request, h model.TimeHorizon, rates []tariff.Rate, assets []*asset.Asset) (*Model, error) {
	if len(rates) != h.Len() {
		return nil, fmt.Errorf("build: %d rates for %d periods", len(rates), h.Len())
	}
	b := program.NewBuilder()
	contribs := make([]*asset.Contribution, len(assets))
	for i, a := range assets {
		contribs[i] = a.Contribute(b)
	}

	hours := h.Hours()
	imp := make([]int, h.Len())
	exp := make([]int, h.Len())
	for t := 0; t < h.Len(); t++ {
		imp[t] = b.AddVariable(siteVar(program.RoleImport, t, req.Grid.MaxImportKW))
		exp[t] = b.AddVariable(siteVar(program.RoleExport, t, req.Grid.MaxExportKW))

		// sum_a grid_a[t] - import[t] + export[t] = 0
		var terms []program.Term
		for _, c := range contribs {
			terms = append(terms, c.GridPower(t)...)
		}
		terms = append(terms, program.Term{Var: imp[t], Coef: -1}, program.Term{Var: exp[t], Coef: 1})
		b.AddConstraint(program.Constraint{
			Name:  fmt.Sprintf("balance[%d]", t),
			Terms: terms,
			Sense: program.EQ,
			Tag:   model.ConstraintTag{AssetID: model.SiteID, Origin: model.OriginGridBalance},
		})

		b.AddCost(imp[t], hours*rates[t].Energy, program.CostEnergy)
		b.AddCost(imp[t], hours*rates[t].GridFee, program.CostGridFee)
		b.AddCost(exp[t], -hours*rates[t].Energy, program.CostEnergy)
		if len(req.EmissionFactors) > 0 {
			b.AddCost(imp[t], hours*req.EmissionFactors[t]*req.CarbonPrice*perTonne, program.CostCarbon)
		}
		for _, c := range contribs {
			if g, ok := c.Gas(t); ok {
				b.AddCost(g, hours*c.GasEmissionFactor*req.CarbonPrice*perTonne, program.CostCarbon)
			}
		}
	}

	dc := model.DemandChargeSpec{}
	if req.DemandCharge != nil {
		dc = *req.DemandCharge
	}
	if dc.RatePerKW > 0 || dc.MinFullLoadHours > 0 {
		addPeak(b, dc, h, rates, assets, contribs, imp)
	}

	p, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("build: %w", err)
	}
	return &Model{
		RequestID:       req.ID,
		Problem:         p,
		Horizon:         h,
		Assets:          assets,
		Rates:           append([]tariff.Rate(nil), rates...),
		DemandRate:       dc.RatePerKW,
		EmissionFactors:  append([]float64(nil), req.EmissionFactors...),
		CarbonPrice:      req.CarbonPrice,
		ExemptLowWindows: dc.ExcludeLowWindows,
	}, nil
}

// addPeak adds the horizon peak of billed import. peak >= billed[t]
// linearizes max_t billed[t], where billed is the import less, inside low
// windows and when configured, the draw of peak exempt assets. A full-load
// hours floor requires the billed energy to cover the peak for the given
// share of the year.
func addPeak(b *program.Builder, dc model.DemandChargeSpec, h model.TimeHorizon, rates []tariff.Rate,
	assets []*asset.Asset, contribs []*asset.Contribution, imp []int) {
	tag := model.ConstraintTag{AssetID: model.SiteID, Origin: model.OriginDemandPeak}
	peak := b.AddVariable(program.Variable{
		Key:      program.VarKey{AssetID: model.SiteID, Role: program.RolePeak, Period: program.HorizonWide},
		Upper:    math.Inf(1),
		BoundTag: tag,
	})
	hours := h.Hours()
	var energy []program.Term
	for t := range imp {
		billed := []program.Term{{Var: imp[t], Coef: 1}}
		if dc.ExcludeLowWindows && rates[t].Window == model.WindowLow {
			for i, a := range assets {
				if a.Kind().PeakExempt() {
					for _, term := range contribs[i].GridPower(t) {
						billed = append(billed, program.Term{Var: term.Var, Coef: -term.Coef})
					}
				}
			}
		}
		b.AddConstraint(program.Constraint{
			Name:  fmt.Sprintf("peak[%d]", t),
			Terms: append(append([]program.Term(nil), billed...), program.Term{Var: peak, Coef: -1}),
			Sense: program.LE,
			Tag:   tag,
		})
		for _, term := range billed {
			energy = append(energy, program.Term{Var: term.Var, Coef: hours * term.Coef})
		}
	}
	b.AddCost(peak, dc.RatePerKW, program.CostDemandCharge)

	if dc.MinFullLoadHours > 0 {
		// sum_t billed[t]*h >= flh/8760 * horizon hours * peak
		share := dc.MinFullLoadHours / model.HoursPerYear
		b.AddConstraint(program.Constraint{
			Name:  "full_load_hours",
			Terms: append(energy, program.Term{Var: peak, Coef: -share * hours * float64(h.Len())}),
			Sense: program.GE,
			Tag:   model.ConstraintTag{AssetID: model.SiteID, Origin: model.OriginFullLoadHours},
		})
	}
}

func siteVar(r program.Role, t int, limit *float64) program.Variable {
	v := program.Variable{
		Key:      program.VarKey{AssetID: model.SiteID, Role: r, Period: t},
		Upper:    math.Inf(1),
		BoundTag: model.ConstraintTag{AssetID: model.SiteID, Origin: model.OriginGridBalance},
	}
	if limit != nil {
		v.Upper = *limit
		v.BoundTag.Origin = model.OriginGridLimit
	}
	return v
}
