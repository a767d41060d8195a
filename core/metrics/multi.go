package metrics

import (
	"errors"
	"io"

	"github.com/kilianp07/gridflex/core/model"
)

// MultiSink fans events out to multiple sinks.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordOptimization forwards the event to all sinks, returning the first error encountered.
func (m *MultiSink) RecordOptimization(ev OptimizationEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordOptimization(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordSchedule forwards the schedule to sinks implementing ScheduleRecorder.
func (m *MultiSink) RecordSchedule(s *model.DispatchSchedule) error {
	for _, sink := range m.Sinks {
		if rec, ok := sink.(ScheduleRecorder); ok {
			if err := rec.RecordSchedule(s); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close closes every sink implementing io.Closer and joins their errors.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.Sinks {
		if c, ok := s.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
