package metrics

import (
	coremetrics "github.com/kilianp07/gridflex/core/metrics"
	"github.com/prometheus/client_golang/prometheus"
)

// PromSink records optimization runs in Prometheus metrics.
type PromSink struct {
	runs      *prometheus.CounterVec
	solveTime prometheus.Histogram
	nodes     prometheus.Histogram
	size      *prometheus.GaugeVec
	cost      *prometheus.GaugeVec
	peak      prometheus.Gauge
	flexible  prometheus.Gauge
	lowShare  prometheus.Gauge
}

// NewPromSink registers optimization metrics on the default Prometheus registerer.
func NewPromSink() (*PromSink, error) {
	return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer. Metrics that
// are already registered are reused.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{}
	var err error
	if s.runs, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gridflex_optimizations_total",
		Help: "Optimization runs by terminal status",
	}, []string{"status"})); err != nil {
		return nil, err
	}
	if s.solveTime, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gridflex_solve_seconds",
		Help:    "Time spent in the solver per run",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	})); err != nil {
		return nil, err
	}
	if s.nodes, err = register(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "gridflex_solver_nodes",
		Help:    "Relaxations solved per run",
		Buckets: prometheus.ExponentialBuckets(1, 2, 12),
	})); err != nil {
		return nil, err
	}
	if s.size, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gridflex_problem_size",
		Help: "Size of the last optimization problem",
	}, []string{"dimension"})); err != nil {
		return nil, err
	}
	if s.cost, err = register(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "gridflex_schedule_cost",
		Help: "Cost of the last successful schedule by component",
	}, []string{"component"})); err != nil {
		return nil, err
	}
	if s.peak, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gridflex_schedule_peak_kw",
		Help: "Peak grid import of the last successful schedule",
	})); err != nil {
		return nil, err
	}
	if s.flexible, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gridflex_flexible_energy_kwh",
		Help: "Flexible consumption of the last successful schedule",
	})); err != nil {
		return nil, err
	}
	if s.lowShare, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "gridflex_low_window_share",
		Help: "Share of flexible consumption placed in low-fee windows",
	})); err != nil {
		return nil, err
	}
	return s, nil
}

// RecordOptimization updates counters for every run, problem size gauges for
// runs that built a problem and schedule gauges for successful runs.
func (s *PromSink) RecordOptimization(ev coremetrics.OptimizationEvent) error {
	s.runs.WithLabelValues(ev.Status).Inc()
	s.solveTime.Observe(ev.SolveTime.Seconds())
	s.nodes.Observe(float64(ev.Nodes))
	if ev.Variables > 0 {
		// runs rejected before building keep the last problem size
		s.size.WithLabelValues("variables").Set(float64(ev.Variables))
		s.size.WithLabelValues("constraints").Set(float64(ev.Constraints))
		s.size.WithLabelValues("binaries").Set(float64(ev.Binaries))
	}
	if ev.Status != coremetrics.StatusOptimal {
		return nil
	}
	s.cost.WithLabelValues("energy").Set(ev.Cost.Energy)
	s.cost.WithLabelValues("grid_fee").Set(ev.Cost.GridFee)
	s.cost.WithLabelValues("demand_charge").Set(ev.Cost.DemandCharge)
	s.cost.WithLabelValues("operating").Set(ev.Cost.Operating)
	s.cost.WithLabelValues("fuel").Set(ev.Cost.Fuel)
	s.cost.WithLabelValues("carbon").Set(ev.Cost.Carbon)
	s.cost.WithLabelValues("total").Set(ev.Cost.Total)
	s.peak.Set(ev.PeakKW)
	s.flexible.Set(ev.Summary.FlexibleEnergyKWh)
	s.lowShare.Set(ev.Summary.LowWindowShare)
	return nil
}
