package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/gridflex/core/metrics"
	"github.com/kilianp07/gridflex/core/metrics/eco"
	"github.com/kilianp07/gridflex/core/model"
)

// EcoSink aggregates schedules into daily energy records and exposes them as
// gauges.
type EcoSink struct {
	store    eco.Store
	factor   float64
	consumed *prometheus.GaugeVec
	share    *prometheus.GaugeVec
	co2      *prometheus.GaugeVec
}

// NewEcoSink creates a sink with Prometheus gauges registered on reg. factor
// is the grid carbon intensity in g/kWh used for the CO2 gauge.
func NewEcoSink(store eco.Store, factor float64, reg prometheus.Registerer) (*EcoSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &EcoSink{store: store, factor: factor}
	var err error
	if s.consumed, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gridflex_asset_consumed_energy_kwh",
		Help: "Daily scheduled consumption per asset",
	}, []string{"asset_id", "day"})); err != nil {
		return nil, err
	}
	if s.share, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gridflex_asset_low_window_share",
		Help: "Daily share of consumption placed in low-fee windows",
	}, []string{"asset_id", "day"})); err != nil {
		return nil, err
	}
	if s.co2, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gridflex_asset_co2_kg",
		Help: "Daily emissions of scheduled consumption per asset",
	}, []string{"asset_id", "day"})); err != nil {
		return nil, err
	}
	return s, nil
}

// RecordOptimization is a no-op; the sink only consumes schedules.
func (s *EcoSink) RecordOptimization(coremetrics.OptimizationEvent) error { return nil }

// RecordSchedule stores the daily records of sch and refreshes the gauges
// from the accumulated totals.
func (s *EcoSink) RecordSchedule(sch *model.DispatchSchedule) error {
	for _, rec := range eco.FromSchedule(sch) {
		if err := s.store.Add(rec); err != nil {
			return err
		}
		records, err := s.store.Query(rec.AssetID, rec.Date, rec.Date)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			continue
		}
		rr := records[0]
		day := rr.Date.Format("2006-01-02")
		s.consumed.WithLabelValues(rr.AssetID, day).Set(rr.ConsumedKWh)
		s.share.WithLabelValues(rr.AssetID, day).Set(rr.LowWindowShare())
		s.co2.WithLabelValues(rr.AssetID, day).Set(rr.CO2Kg(s.factor))
	}
	return nil
}

// Close closes the store when it holds resources.
func (s *EcoSink) Close() error {
	if c, ok := s.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
