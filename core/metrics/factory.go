package metrics

import "github.com/kilianp07/gridflex/core/factory"

var sinkRegistry = factory.NewRegistry[MetricsSink]()

// RegisterMetricsSink makes a sink type available to NewMetricsSink.
func RegisterMetricsSink(name string, f factory.Factory[MetricsSink]) error {
	return sinkRegistry.Register(name, f)
}

// NewMetricsSink builds the sinks that receive solve events. No config gives
// a NopSink and several configs are fanned out through a MultiSink.
func NewMetricsSink(cfgs []factory.ModuleConfig) (MetricsSink, error) {
	switch len(cfgs) {
	case 0:
		return NopSink{}, nil
	case 1:
		return sinkRegistry.Create(cfgs[0])
	}
	sinks := make([]MetricsSink, 0, len(cfgs))
	for _, c := range cfgs {
		s, err := sinkRegistry.Create(c)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, s)
	}
	return NewMultiSink(sinks...), nil
}
