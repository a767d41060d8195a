package metrics

import (
	"time"

	"github.com/kilianp07/gridflex/core/model"
)

// StatusOptimal is the event status of a successful run. Failed runs carry
// their model.FailureKind.
const StatusOptimal = "optimal"

// OptimizationEvent summarizes one optimization run.
type OptimizationEvent struct {
	RequestID   string
	Status      string
	Duration    time.Duration // end to end, validation included
	SolveTime   time.Duration
	Nodes       int
	Variables   int
	Constraints int
	Binaries    int
	Assets      int
	Periods     int
	Cost        model.CostBreakdown
	PeakKW      float64
	Summary     model.Summary
	Time        time.Time
}

// MetricsSink records optimization runs for observability purposes.
type MetricsSink interface {
	RecordOptimization(ev OptimizationEvent) error
}

// ScheduleRecorder is implemented by sinks able to store whole schedules.
type ScheduleRecorder interface {
	RecordSchedule(s *model.DispatchSchedule) error
}

// NopSink implements MetricsSink with no-op methods.
type NopSink struct{}

func (NopSink) RecordOptimization(OptimizationEvent) error { return nil }

func (NopSink) RecordSchedule(*model.DispatchSchedule) error { return nil }
