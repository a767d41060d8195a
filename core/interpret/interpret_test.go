package interpret

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridflex/core/asset"
	"github.com/kilianp07/gridflex/core/builder"
	"github.com/kilianp07/gridflex/core/model"
	"github.com/kilianp07/gridflex/core/program"
	"github.com/kilianp07/gridflex/core/solver"
	"github.com/kilianp07/gridflex/core/tariff"
)

func buildModel(t *testing.T, req model.Request, rates []tariff.Rate) *builder.Model {
	t.Helper()
	h, err := req.Horizon.Build()
	require.NoError(t, err)
	var assets []*asset.Asset
	for _, s := range req.Assets {
		a, err := asset.New(s, h)
		require.NoError(t, err)
		assets = append(assets, a)
	}
	m, err := builder.Build(req, h, rates, assets)
	require.NoError(t, err)
	return m
}

func horizonSpec(n int) model.HorizonSpec {
	return model.HorizonSpec{Start: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), StepMinutes: 60, Count: n}
}

func fixedLoadModel(t *testing.T) *builder.Model {
	req := model.Request{
		ID:              "single",
		Horizon:         horizonSpec(1),
		Assets:          []model.AssetSpec{{ID: "base", Kind: model.AssetFixedLoad, ProfileKW: []float64{3}}},
		EmissionFactors: []float64{400},
	}
	return buildModel(t, req, []tariff.Rate{{Energy: 0.3, GridFee: 0.1}})
}

// values sets named variables and leaves the rest at zero.
func values(t *testing.T, m *builder.Model, set map[program.VarKey]float64) []float64 {
	t.Helper()
	x := make([]float64, m.Problem.NumVars())
	for k, v := range set {
		i, ok := m.Problem.Lookup(k)
		require.True(t, ok, "unknown variable %s", k)
		x[i] = v
	}
	return x
}

func site(r program.Role, t int) program.VarKey {
	return program.VarKey{AssetID: model.SiteID, Role: r, Period: t}
}

func TestInterpretOptimal(t *testing.T) {
	m := fixedLoadModel(t)
	x := values(t, m, map[program.VarKey]float64{
		{AssetID: "base", Role: program.RolePower}: 3,
		site(program.RoleImport, 0):                3,
	})
	s, err := Interpret(m, solver.Outcome{Status: solver.Optimal, Values: x, Objective: 1.2, Nodes: 1}, 1e-6)
	require.NoError(t, err)

	assert.Equal(t, "single", s.RequestID)
	assert.InDelta(t, 0.9, s.Cost.Energy, 1e-9)
	assert.InDelta(t, 0.3, s.Cost.GridFee, 1e-9)
	assert.InDelta(t, 1.2, s.Cost.Total, 1e-9)
	assert.Equal(t, []float64{3}, s.NetKW)
	assert.Equal(t, 3.0, s.PeakKW)
	assert.InDelta(t, 1.2, s.Summary.EmissionsKg, 1e-9)
	assert.Zero(t, s.Summary.FlexibleEnergyKWh, "fixed loads are not flexible")
	d, ok := s.Asset("base")
	require.True(t, ok)
	assert.InDelta(t, 3, d.EnergyKWh, 1e-12)
}

func TestInterpretClampsNoise(t *testing.T) {
	m := fixedLoadModel(t)
	x := values(t, m, map[program.VarKey]float64{
		{AssetID: "base", Role: program.RolePower}: 3 + 1e-9,
		site(program.RoleImport, 0):                3,
		site(program.RoleExport, 0):                -1e-10,
	})
	s, err := Interpret(m, solver.Outcome{Status: solver.Optimal, Values: x, Objective: 1.2}, 1e-6)
	require.NoError(t, err)
	assert.Equal(t, 0.0, s.ExportKW[0])
	assert.Equal(t, 3.0, s.Assets[0].PowerKW[0])
}

func TestInterpretObjectiveMismatch(t *testing.T) {
	m := fixedLoadModel(t)
	x := values(t, m, map[program.VarKey]float64{
		{AssetID: "base", Role: program.RolePower}: 3,
		site(program.RoleImport, 0):                3,
	})
	_, err := Interpret(m, solver.Outcome{Status: solver.Optimal, Values: x, Objective: 1.5}, 1e-6)
	var f *model.OptimizationFailure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, model.FailureInconsistent, f.Kind)
	var inc *model.ResultInconsistencyError
	require.True(t, errors.As(err, &inc))
	assert.InDelta(t, 1.2, inc.Recomputed, 1e-9)
}

func TestInterpretConstraintViolation(t *testing.T) {
	m := fixedLoadModel(t)
	// import does not cover the load
	x := values(t, m, map[program.VarKey]float64{{AssetID: "base", Role: program.RolePower}: 3, site(program.RoleImport, 0): 1})
	_, err := Interpret(m, solver.Outcome{Status: solver.Optimal, Values: x, Objective: 0.4}, 1e-6)
	var inc *model.ResultInconsistencyError
	assert.True(t, errors.As(err, &inc))
}

func dryerModel(t *testing.T) *builder.Model {
	req := model.Request{
		ID:      "dryer",
		Horizon: horizonSpec(2),
		Assets:  []model.AssetSpec{{ID: "dryer", Kind: model.AssetShiftableLoad, MinPowerKW: 1, MaxPowerKW: 2, OnOff: true, EnergyKWh: 2}},
	}
	rates := []tariff.Rate{{Energy: 0.1, Window: model.WindowLow}, {Energy: 0.3}}
	return buildModel(t, req, rates)
}

func TestInterpretRejectsFractionalBinary(t *testing.T) {
	m := dryerModel(t)
	x := values(t, m, map[program.VarKey]float64{
		{AssetID: "dryer", Role: program.RolePower}: 2,
		{AssetID: "dryer", Role: program.RoleOn}:    0.5,
		site(program.RoleImport, 0):                 2,
	})
	_, err := Interpret(m, solver.Outcome{Status: solver.Optimal, Values: x, Objective: 0.2}, 1e-6)
	var inc *model.ResultInconsistencyError
	require.True(t, errors.As(err, &inc))
	assert.Equal(t, "dryer.on[0]", inc.Variable)
}

func TestInterpretSummary(t *testing.T) {
	m := dryerModel(t)
	x := values(t, m, map[program.VarKey]float64{
		{AssetID: "dryer", Role: program.RolePower}: 2,
		{AssetID: "dryer", Role: program.RoleOn}:    1 - 1e-9,
		site(program.RoleImport, 0):                 2,
	})
	s, err := Interpret(m, solver.Outcome{Status: solver.Optimal, Values: x, Objective: 0.2}, 1e-6)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false}, s.Assets[0].On)
	assert.InDelta(t, 2, s.Summary.FlexibleEnergyKWh, 1e-9)
	assert.InDelta(t, 1, s.Summary.LowWindowShare, 1e-9)
	assert.InDelta(t, 0.1, s.Summary.MeanPriceWhenConsuming, 1e-9)
	assert.Equal(t, []model.WindowType{model.WindowLow, model.WindowStandard}, s.Windows)
}

func TestInterpretFailures(t *testing.T) {
	m := fixedLoadModel(t)
	tags := []model.ConstraintTag{{AssetID: "base", Origin: model.OriginCapacity}}

	cases := []struct {
		out  solver.Outcome
		kind model.FailureKind
	}{
		{solver.Outcome{Status: solver.Infeasible, InfeasibleTags: tags}, model.FailureInfeasible},
		{solver.Outcome{Status: solver.Unbounded}, model.FailureUnbounded},
		{solver.Outcome{Status: solver.TimedOut, Err: context.DeadlineExceeded}, model.FailureTimedOut},
		{solver.Outcome{Status: solver.SolverError, Err: errors.New("singular")}, model.FailureSolverError},
	}
	for _, tc := range cases {
		s, err := Interpret(m, tc.out, 0)
		assert.Nil(t, s)
		var f *model.OptimizationFailure
		require.True(t, errors.As(err, &f))
		assert.Equal(t, tc.kind, f.Kind)
		assert.Equal(t, "single", f.RequestID)
		assert.Nil(t, f.Incumbent)
	}

	_, err := Interpret(m, cases[0].out, 0)
	var f *model.OptimizationFailure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, tags, f.InfeasibleTags)
	assert.ErrorIs(t, err, ErrInfeasible)

	_, err = Interpret(m, cases[2].out, 0)
	assert.ErrorIs(t, err, ErrTimeLimit)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInterpretTimedOutIncumbent(t *testing.T) {
	m := fixedLoadModel(t)
	x := values(t, m, map[program.VarKey]float64{
		{AssetID: "base", Role: program.RolePower}: 3,
		site(program.RoleImport, 0):                3,
	})
	s, err := Interpret(m, solver.Outcome{Status: solver.TimedOut, Values: x, Objective: 1.2}, 1e-6)
	assert.Nil(t, s, "an incumbent is never a success")
	var f *model.OptimizationFailure
	require.True(t, errors.As(err, &f))
	require.NotNil(t, f.Incumbent)
	assert.InDelta(t, 1.2, f.Incumbent.Cost.Total, 1e-9)
}

func TestFullLoadHours(t *testing.T) {
	assert.InDelta(t, model.HoursPerYear, fullLoadHours([]float64{5, 5}, 1), 1e-9)
	assert.InDelta(t, model.HoursPerYear/2, fullLoadHours([]float64{10, 0}, 1), 1e-9)
	assert.Zero(t, fullLoadHours([]float64{0, -3}, 0.25))
}

func TestSummaryWithoutHeatersHasNoHeatBlock(t *testing.T) {
	m := fixedLoadModel(t)
	x := values(t, m, map[program.VarKey]float64{
		{AssetID: "base", Role: program.RolePower}: 3,
		site(program.RoleImport, 0):                3,
	})
	s, err := Interpret(m, solver.Outcome{Status: solver.Optimal, Values: x, Objective: 1.2}, 1e-6)
	require.NoError(t, err)
	assert.Nil(t, s.Summary.Heat)
	assert.InDelta(t, model.HoursPerYear, s.Summary.FullLoadHoursBefore, 1e-9)
	assert.InDelta(t, model.HoursPerYear, s.Summary.FullLoadHoursAfter, 1e-9)
}
