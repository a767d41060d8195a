package optimizer

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/gridflex/core/events"
	"github.com/kilianp07/gridflex/core/metrics"
	"github.com/kilianp07/gridflex/core/model"
	"github.com/kilianp07/gridflex/core/program"
	"github.com/kilianp07/gridflex/core/solver"
	"github.com/kilianp07/gridflex/infra/lpsolver"
	"github.com/kilianp07/gridflex/internal/eventbus"
)

var day = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

func hourly(prices []float64, fee float64) model.TariffSpec {
	entries := make([]model.RateEntrySpec, len(prices))
	for i, p := range prices {
		entries[i] = model.RateEntrySpec{Start: day.Add(time.Duration(i) * time.Hour), DurationMinutes: 60, Energy: p, GridFee: fee}
	}
	return model.TariffSpec{Type: model.TariffDynamic, Entries: entries}
}

func batteryPrices() []float64 {
	p := make([]float64, 24)
	for h := range p {
		switch {
		case h >= 2 && h <= 5:
			p[h] = 0.05
		case h >= 18 && h <= 21:
			p[h] = 0.40
		default:
			p[h] = 0.20
		}
	}
	return p
}

func batteryRequest() model.Request {
	return model.Request{
		ID:      "battery-24h",
		Horizon: model.HorizonSpec{Start: day, StepMinutes: 60, Count: 24},
		Assets: []model.AssetSpec{{
			ID:          "bat",
			Kind:        model.AssetStorage,
			MaxPowerKW:  5,
			Efficiency:  0.9,
			CapacityKWh: 10,
		}},
		Tariff: hourly(batteryPrices(), 0.02),
	}
}

func newOptimizer(sink metrics.MetricsSink) *Optimizer {
	return New(lpsolver.New(nil), Config{TimeLimit: 10 * time.Second}, nil, sink)
}

func TestBatteryArbitrage(t *testing.T) {
	s, err := newOptimizer(nil).Optimize(context.Background(), batteryRequest())
	require.NoError(t, err)

	bat, ok := s.Asset("bat")
	require.True(t, ok)
	for h := 0; h < 24; h++ {
		if h < 2 || h > 5 {
			assert.InDelta(t, 0, bat.ChargeKW[h], 1e-6, "charge outside the low window at hour %d", h)
		}
		if h < 18 || h > 21 {
			assert.InDelta(t, 0, bat.DischargeKW[h], 1e-6, "discharge outside the high window at hour %d", h)
		}
	}
	assert.InDelta(t, 10, bat.SoCKWh[6], 1e-6, "full after the low window")
	assert.InDelta(t, 0, bat.SoCKWh[24], 1e-6)

	// 10/0.9 kWh bought at 0.07, 9 kWh sold at 0.40
	want := 10/0.9*0.07 - 9*0.40
	assert.InDelta(t, want, s.Cost.Total, 1e-6)
	assert.Less(t, s.Cost.Total, 0.0, "cheaper than leaving the battery idle")
	assert.InDelta(t, s.Objective, s.Cost.Total, 1e-6*max(1, -s.Objective))
}

func TestStateOfChargeContinuity(t *testing.T) {
	s, err := newOptimizer(nil).Optimize(context.Background(), batteryRequest())
	require.NoError(t, err)
	bat, _ := s.Asset("bat")
	require.Len(t, bat.SoCKWh, 25)
	assert.Equal(t, 0.0, bat.SoCKWh[0])
	for h := 0; h < 24; h++ {
		next := bat.SoCKWh[h] + 0.9*bat.ChargeKW[h] - bat.DischargeKW[h]/0.9
		assert.InDelta(t, next, bat.SoCKWh[h+1], 1e-6, "hour %d", h)
		assert.GreaterOrEqual(t, bat.SoCKWh[h+1], -1e-9)
		assert.LessOrEqual(t, bat.SoCKWh[h+1], 10+1e-9)
	}
}

func TestOptimizeIsIdempotent(t *testing.T) {
	o := newOptimizer(nil)
	a, err := o.Optimize(context.Background(), batteryRequest())
	require.NoError(t, err)
	b, err := o.Optimize(context.Background(), batteryRequest())
	require.NoError(t, err)
	assert.Equal(t, a.Cost, b.Cost)
	assert.Equal(t, a.Assets, b.Assets)
	assert.Equal(t, a.ImportKW, b.ImportKW)
}

func TestSinglePeriodFixedLoad(t *testing.T) {
	req := model.Request{
		Horizon: model.HorizonSpec{Start: day, StepMinutes: 60, Count: 1},
		Assets:  []model.AssetSpec{{ID: "base", Kind: model.AssetFixedLoad, ProfileKW: []float64{3}}},
		Tariff:  model.TariffSpec{Type: model.TariffStatic, Static: model.RateSpec{Energy: 0.3, GridFee: 0.1}},
	}
	s, err := newOptimizer(nil).Optimize(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, s.RequestID, "an id is assigned")
	assert.InDelta(t, 1.2, s.Cost.Total, 1e-9)
	assert.InDelta(t, 3, s.ImportKW[0], 1e-9)
}

func TestDemandChargeFlattensPeak(t *testing.T) {
	limit := 4.0
	req := model.Request{
		ID:      "peak",
		Horizon: model.HorizonSpec{Start: day, StepMinutes: 60, Count: 4},
		Assets: []model.AssetSpec{
			{ID: "base", Kind: model.AssetFixedLoad, ProfileKW: []float64{1, 1, 5, 1}},
			{ID: "bat", Kind: model.AssetStorage, MaxPowerKW: 3, Efficiency: 1, CapacityKWh: 4, InitialSoCKWh: 2},
		},
		Tariff:       model.TariffSpec{Static: model.RateSpec{Energy: 0.1}},
		DemandCharge: &model.DemandChargeSpec{RatePerKW: 10},
		Grid:         model.GridSpec{MaxImportKW: &limit},
	}
	s, err := newOptimizer(nil).Optimize(context.Background(), req)
	require.NoError(t, err)
	assert.LessOrEqual(t, s.PeakKW, 3.0+1e-6, "battery shaves the 5 kW spike")
	assert.InDelta(t, 10*s.PeakKW, s.Cost.DemandCharge, 1e-6)
	assert.InDelta(t, s.Objective, s.Cost.Total, 1e-6)
}

func TestOnOffLoadRunsInCheapHours(t *testing.T) {
	req := model.Request{
		ID:      "dryer",
		Horizon: model.HorizonSpec{Start: day, StepMinutes: 60, Count: 6},
		Assets: []model.AssetSpec{{
			ID: "dryer", Kind: model.AssetShiftableLoad,
			MinPowerKW: 1, MaxPowerKW: 2, OnOff: true, MinRuntimePeriods: 2, EnergyKWh: 4,
		}},
		Tariff: hourly([]float64{0.3, 0.3, 0.1, 0.1, 0.3, 0.3}, 0),
	}
	s, err := newOptimizer(nil).Optimize(context.Background(), req)
	require.NoError(t, err)
	d, _ := s.Asset("dryer")
	assert.Equal(t, []bool{false, false, true, true, false, false}, d.On)
	assert.InDelta(t, 4, d.EnergyKWh, 1e-6)
	assert.InDelta(t, 0.4, s.Cost.Total, 1e-6)
}

// valley returns n quarter-hour prices that fall towards the middle of the
// horizon, all distinct.
func valley(n int) []float64 {
	p := make([]float64, n)
	for t := range p {
		p[t] = 0.10 + 0.01*math.Abs(float64(t)-float64(n)/2-0.25)
	}
	return p
}

func quarterHourly(prices []float64, fee float64) model.TariffSpec {
	entries := make([]model.RateEntrySpec, len(prices))
	for i, p := range prices {
		entries[i] = model.RateEntrySpec{Start: day.Add(time.Duration(i) * 15 * time.Minute), DurationMinutes: 15, Energy: p, GridFee: fee}
	}
	return model.TariffSpec{Type: model.TariffDynamic, Entries: entries}
}

// industrialDryer is an 8 MW on/off dryer that must take 20 MWh.
func industrialDryer(n int, prices []float64) model.Request {
	return model.Request{
		ID:      "industrial-dryer",
		Horizon: model.HorizonSpec{Start: day, StepMinutes: 15, Count: n},
		Assets: []model.AssetSpec{{
			ID: "dryer", Kind: model.AssetShiftableLoad,
			MinPowerKW: 100, MaxPowerKW: 8000, OnOff: true, EnergyKWh: 20000,
		}},
		Tariff: quarterHourly(prices, 0.02),
	}
}

func TestIndustrialDryer(t *testing.T) {
	cases := []struct {
		name    string
		periods int
		runtime int
		ramp    float64
	}{
		{name: "on_off", periods: 24},
		{name: "min_runtime", periods: 24, runtime: 4},
		{name: "ramp", periods: 24, ramp: 4000},
		{name: "ramp_12h", periods: 48, ramp: 4000},
		{name: "min_runtime_12h", periods: 48, runtime: 4},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			prices := valley(tc.periods)
			req := industrialDryer(tc.periods, prices)
			req.Assets[0].MinRuntimePeriods = tc.runtime
			req.Assets[0].RampUpKW, req.Assets[0].RampDownKW = tc.ramp, tc.ramp

			o := New(lpsolver.New(nil), Config{TimeLimit: 3 * time.Minute}, nil, nil)
			s, err := o.Optimize(context.Background(), req)
			require.NoError(t, err)

			d, ok := s.Asset("dryer")
			require.True(t, ok)
			assert.InDelta(t, 20000, d.EnergyKWh, 1e-3)
			for i, p := range d.PowerKW {
				if d.On[i] {
					assert.True(t, p >= 100-1e-6 && p <= 8000+1e-6, "period %d runs at %g kW", i, p)
				} else {
					assert.InDelta(t, 0, p, 1e-6, "period %d is off", i)
				}
				if i > 0 && tc.ramp > 0 {
					assert.LessOrEqual(t, math.Abs(p-d.PowerKW[i-1]), tc.ramp+1e-6, "ramp at period %d", i)
				}
			}
			if tc.runtime > 0 {
				for i := range d.On {
					started := d.On[i] && (i == 0 || !d.On[i-1])
					for k := 1; started && k < tc.runtime && i+k < len(d.On); k++ {
						assert.True(t, d.On[i+k], "run starting at %d stops after %d periods", i, k)
					}
				}
			}

			// ten full-power quarter hours in the cheapest periods
			sorted := append([]float64(nil), prices...)
			sort.Float64s(sorted)
			best := 0.0
			for _, p := range sorted[:10] {
				best += 2000 * (p + 0.02)
			}
			if tc.ramp == 0 {
				assert.InDelta(t, best, s.Cost.Total, 1e-3)
			} else {
				assert.GreaterOrEqual(t, s.Cost.Total, best-1e-3)
			}
		})
	}
}

func TestHybridHeatAgainstGasOnly(t *testing.T) {
	req := model.Request{
		ID:      "hybrid",
		Horizon: model.HorizonSpec{Start: day, StepMinutes: 60, Count: 4},
		Assets: []model.AssetSpec{{
			ID: "heater", Kind: model.AssetHybridHeat, MaxPowerKW: 10,
			HeatDemandKW: []float64{10, 10, 10, 10},
			Gas:          &model.GasSupplySpec{PricePerKWh: 0.06, NetworkFeePerKWh: 0.01, EmissionFactor: 200},
		}},
		Tariff:          hourly([]float64{0.05, 0.30, 0.05, 0.30}, 0),
		EmissionFactors: []float64{100, 100, 100, 100},
		CarbonPrice:     100,
	}
	o := New(lpsolver.New(nil), Config{TimeLimit: 10 * time.Second}, nil, nil)
	s, err := o.Optimize(context.Background(), req)
	require.NoError(t, err)

	// electric heat costs 0.06 with carbon in cheap hours, gas 0.09
	d, ok := s.Asset("heater")
	require.True(t, ok)
	assert.InDeltaSlice(t, []float64{10, 0, 10, 0}, d.PowerKW, 1e-6)
	assert.InDeltaSlice(t, []float64{0, 10, 0, 10}, d.GasKW, 1e-6)

	assert.InDelta(t, 1.0, s.Cost.Energy, 1e-6)
	assert.InDelta(t, 1.4, s.Cost.Fuel, 1e-6)
	assert.InDelta(t, 0.6, s.Cost.Carbon, 1e-6)
	assert.InDelta(t, 3.0, s.Cost.Total, 1e-6)
	assert.InDelta(t, 6.0, s.Summary.EmissionsKg, 1e-6)

	hs := s.Summary.Heat
	require.NotNil(t, hs)
	assert.InDelta(t, 40, hs.DemandKWh, 1e-6)
	assert.InDelta(t, 20, hs.ElectricKWh, 1e-6)
	assert.InDelta(t, 20, hs.GasKWh, 1e-6)
	assert.InDelta(t, 3.6, hs.CostGasOnly, 1e-6)
	assert.InDelta(t, 3.0, hs.Cost, 1e-6)
	assert.InDelta(t, 0.6, hs.CostSavings, 1e-6)
	assert.InDelta(t, 8, hs.EmissionsGasOnlyKg, 1e-6)
	assert.InDelta(t, 2, hs.EmissionsSavingsKg, 1e-6)
}

func TestDemandPeakExemptsLowWindowDraw(t *testing.T) {
	// the cheapest low-fee window of a dynamic network fee is 10:00-11:00
	prices := make([]float64, 24)
	base := make([]float64, 24)
	for h := range prices {
		prices[h], base[h] = 0.20, 10
	}
	prices[10] = 0.05
	tf := hourly(prices, 0)
	tf.NetworkFee = &model.NetworkFeeSpec{Mode: "dynamic", BaseFee: 0.02, Reduction: 0.5, WindowHours: 1}

	req := model.Request{
		ID:      "atypical",
		Horizon: model.HorizonSpec{Start: day, StepMinutes: 60, Count: 24},
		Assets: []model.AssetSpec{
			{ID: "dryer", Kind: model.AssetShiftableLoad, MaxPowerKW: 50, EnergyKWh: 50},
			{ID: "base", Kind: model.AssetFixedLoad, ProfileKW: base},
		},
		Tariff:       tf,
		DemandCharge: &model.DemandChargeSpec{RatePerKW: 0.01},
	}
	o := New(lpsolver.New(nil), Config{TimeLimit: 30 * time.Second}, nil, nil)

	s, err := o.Optimize(context.Background(), req)
	require.NoError(t, err)
	d, _ := s.Asset("dryer")
	assert.InDelta(t, 50, d.PowerKW[10], 1e-6)
	assert.InDelta(t, 60, s.PeakKW, 1e-6, "the whole draw counts")
	assert.InDelta(t, 0.6, s.Cost.DemandCharge, 1e-6)
	assert.InDelta(t, model.HoursPerYear, s.Summary.FullLoadHoursBefore, 1e-6)
	assert.InDelta(t, 290.0/60*365, s.Summary.FullLoadHoursAfter, 1e-6)

	req.DemandCharge.ExcludeLowWindows = true
	s, err = o.Optimize(context.Background(), req)
	require.NoError(t, err)
	d, _ = s.Asset("dryer")
	assert.InDelta(t, 50, d.PowerKW[10], 1e-6)
	assert.InDelta(t, 10, s.PeakKW, 1e-6, "low window draw is exempt")
	assert.InDelta(t, 0.1, s.Cost.DemandCharge, 1e-6)
	assert.InDelta(t, model.HoursPerYear, s.Summary.FullLoadHoursAfter, 1e-6)
}

func TestFullLoadHoursFloor(t *testing.T) {
	req := model.Request{
		ID:      "flh",
		Horizon: model.HorizonSpec{Start: day, StepMinutes: 60, Count: 4},
		Assets: []model.AssetSpec{
			{ID: "dryer", Kind: model.AssetShiftableLoad, MaxPowerKW: 20, EnergyKWh: 20},
			{ID: "base", Kind: model.AssetFixedLoad, ProfileKW: []float64{10, 10, 10, 10}},
		},
		Tariff:       hourly([]float64{0.05, 0.30, 0.30, 0.30}, 0),
		DemandCharge: &model.DemandChargeSpec{MinFullLoadHours: 7008},
	}
	o := New(lpsolver.New(nil), Config{TimeLimit: 10 * time.Second}, nil, nil)
	s, err := o.Optimize(context.Background(), req)
	require.NoError(t, err)

	// 60 kWh over 4 h must keep the peak at or below 60/(0.8*4) = 18.75 kW
	d, _ := s.Asset("dryer")
	assert.InDelta(t, 8.75, d.PowerKW[0], 1e-6)
	assert.LessOrEqual(t, s.PeakKW, 18.75+1e-6)
	assert.Zero(t, s.Cost.DemandCharge)
	assert.GreaterOrEqual(t, s.Summary.FullLoadHoursAfter, 7008-1e-3)
}

func TestTariffCoverage(t *testing.T) {
	prices := make([]float64, 25)
	for i := range prices {
		prices[i] = 0.2
	}
	req := model.Request{
		ID:      "cover",
		Horizon: model.HorizonSpec{Start: day, StepMinutes: 60, Count: 24},
		Assets:  []model.AssetSpec{{ID: "base", Kind: model.AssetFixedLoad, ProfileKW: make([]float64, 24)}},
	}

	// an entry for hour 24 is missing; the horizon ends before it
	req.Tariff = hourly(prices[:24], 0)
	_, err := newOptimizer(nil).Optimize(context.Background(), req)
	require.NoError(t, err)

	gap := hourly(prices[:24], 0)
	gap.Entries = append(gap.Entries[:10:10], gap.Entries[11:]...)
	req.Tariff = gap
	_, err = newOptimizer(nil).Optimize(context.Background(), req)
	var f *model.OptimizationFailure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, model.FailureValidation, f.Kind)
	var g *model.TariffGapError
	require.True(t, errors.As(err, &g))
	assert.Equal(t, 10, g.Period.Index)
}

func TestValidationNeverReachesSolver(t *testing.T) {
	calls := 0
	spy := solver.Func(func(context.Context, *program.Problem, solver.Options) solver.Outcome {
		calls++
		return solver.Outcome{Status: solver.SolverError}
	})
	o := New(spy, Config{}, nil, nil)

	cases := map[string]model.Request{
		"lower above upper": {
			Horizon: model.HorizonSpec{Start: day, StepMinutes: 60, Count: 2},
			Assets:  []model.AssetSpec{{ID: "gen", Kind: model.AssetGenerator, MinPowerKW: 5, MaxPowerKW: 2}},
		},
		"empty horizon": {
			Horizon: model.HorizonSpec{Start: day, StepMinutes: 60},
			Assets:  []model.AssetSpec{{ID: "gen", Kind: model.AssetGenerator, MaxPowerKW: 2}},
		},
		"bad efficiency": {
			Horizon: model.HorizonSpec{Start: day, StepMinutes: 60, Count: 2},
			Assets:  []model.AssetSpec{{ID: "bat", Kind: model.AssetStorage, MaxPowerKW: 2, CapacityKWh: 4, Efficiency: 1.5}},
		},
		"no assets": {
			Horizon: model.HorizonSpec{Start: day, StepMinutes: 60, Count: 2},
		},
		"negative rate": {
			Horizon: model.HorizonSpec{Start: day, StepMinutes: 60, Count: 2},
			Assets:  []model.AssetSpec{{ID: "gen", Kind: model.AssetGenerator, MaxPowerKW: 2}},
			Tariff:  model.TariffSpec{Static: model.RateSpec{Energy: -1}},
		},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := o.Optimize(context.Background(), req)
			var f *model.OptimizationFailure
			require.True(t, errors.As(err, &f))
			assert.Equal(t, model.FailureValidation, f.Kind)
		})
	}
	assert.Zero(t, calls)

	var inv *model.InvalidAssetError
	_, err := o.Optimize(context.Background(), cases["lower above upper"])
	require.True(t, errors.As(err, &inv))
	assert.Equal(t, "gen", inv.AssetID)
}

func TestSolverSettingsOverrideDefaults(t *testing.T) {
	var got solver.Options
	spy := solver.Func(func(_ context.Context, _ *program.Problem, opts solver.Options) solver.Outcome {
		got = opts
		return solver.Outcome{Status: solver.TimedOut, Err: context.DeadlineExceeded}
	})
	o := New(spy, Config{TimeLimit: time.Minute, Tolerance: 1e-5, MaxNodes: 7, Diagnose: true}, nil, nil)
	req := model.Request{
		Horizon: model.HorizonSpec{Start: day, StepMinutes: 60, Count: 1},
		Assets:  []model.AssetSpec{{ID: "base", Kind: model.AssetFixedLoad, ProfileKW: []float64{1}}},
		Solver:  model.SolverSettings{TimeLimitMS: 250},
	}
	_, err := o.Optimize(context.Background(), req)
	var f *model.OptimizationFailure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, model.FailureTimedOut, f.Kind)
	assert.Equal(t, solver.Options{TimeLimit: 250 * time.Millisecond, Tolerance: 1e-5, MaxNodes: 7, Diagnose: true}, got)
}

func TestInfeasibleReportsConflict(t *testing.T) {
	limit := 1.0
	req := model.Request{
		ID:      "tight",
		Horizon: model.HorizonSpec{Start: day, StepMinutes: 60, Count: 2},
		Assets:  []model.AssetSpec{{ID: "base", Kind: model.AssetFixedLoad, ProfileKW: []float64{2, 2}}},
		Grid:    model.GridSpec{MaxImportKW: &limit},
	}
	o := New(lpsolver.New(nil), Config{Diagnose: true}, nil, nil)
	_, err := o.Optimize(context.Background(), req)
	var f *model.OptimizationFailure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, model.FailureInfeasible, f.Kind)
	assert.Contains(t, f.InfeasibleTags, model.ConstraintTag{AssetID: model.SiteID, Origin: model.OriginGridLimit})
}

type recordingSink struct {
	mu        sync.Mutex
	events    []metrics.OptimizationEvent
	schedules int
}

func (r *recordingSink) RecordOptimization(ev metrics.OptimizationEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return errors.New("ignored")
}

func (r *recordingSink) RecordSchedule(*model.DispatchSchedule) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schedules++
	return nil
}

func TestMetricsAndEvents(t *testing.T) {
	sink := &recordingSink{}
	o := newOptimizer(sink)
	bus := eventbus.NewTyped[events.OptimizationFinished]()
	sub := bus.Subscribe()
	o.SetEventBus(bus)

	s, err := o.Optimize(context.Background(), batteryRequest())
	require.NoError(t, err, "sink errors do not fail the request")
	bad := batteryRequest()
	bad.Assets[0].Efficiency = 0
	_, err = o.Optimize(context.Background(), bad)
	require.Error(t, err)

	require.Len(t, sink.events, 2)
	ok := sink.events[0]
	assert.Equal(t, metrics.StatusOptimal, ok.Status)
	assert.Equal(t, s.Cost, ok.Cost)
	assert.Equal(t, 24, ok.Periods)
	assert.Positive(t, ok.Variables)
	assert.Positive(t, ok.Nodes)
	assert.Equal(t, string(model.FailureValidation), sink.events[1].Status)
	assert.Equal(t, 1, sink.schedules)

	first := <-sub
	assert.True(t, first.Succeeded())
	assert.Same(t, s, first.Schedule)
	second := <-sub
	assert.False(t, second.Succeeded())
	assert.Equal(t, model.FailureValidation, second.Failure.Kind)
}
