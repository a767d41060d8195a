package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kilianp07/gridflex/core/factory"
	coremetrics "github.com/kilianp07/gridflex/core/metrics"
	"github.com/kilianp07/gridflex/core/metrics/eco"
	"github.com/kilianp07/gridflex/infra/kpi"
)

// defaultCO2Factor is the grid intensity in g/kWh used when none is configured.
const defaultCO2Factor = 50

// init registers built-in metrics sinks.
func init() {
	_ = coremetrics.RegisterMetricsSink("nop", func(map[string]any) (coremetrics.MetricsSink, error) {
		return coremetrics.NopSink{}, nil
	})

	_ = coremetrics.RegisterMetricsSink("prometheus", func(map[string]any) (coremetrics.MetricsSink, error) {
		// the /metrics endpoint is served by the caller; the sink only updates collectors
		return NewPromSinkWithRegistry(prometheus.DefaultRegisterer)
	})

	_ = coremetrics.RegisterMetricsSink("influx", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c struct {
			URL    string `json:"url"`
			Token  string `json:"token"`
			Org    string `json:"org"`
			Bucket string `json:"bucket"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		return NewInfluxSinkWithFallback(c.URL, c.Token, c.Org, c.Bucket), nil
	})

	_ = coremetrics.RegisterMetricsSink("eco", func(conf map[string]any) (coremetrics.MetricsSink, error) {
		var c struct {
			Path      string  `json:"path"`
			CO2Factor float64 `json:"co2_factor"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.CO2Factor <= 0 {
			c.CO2Factor = defaultCO2Factor
		}
		var store eco.Store = eco.NewMemoryStore()
		if c.Path != "" {
			s, err := kpi.NewSQLiteStore(c.Path)
			if err != nil {
				return nil, err
			}
			store = s
		}
		return NewEcoSink(store, c.CO2Factor, prometheus.DefaultRegisterer)
	})
}
