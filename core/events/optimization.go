package events

import (
	"github.com/kilianp07/gridflex/core/metrics"
	"github.com/kilianp07/gridflex/core/model"
)

// OptimizationFinished is published once per request. Schedule is nil on
// failure; Failure is nil on success.
type OptimizationFinished struct {
	Event    metrics.OptimizationEvent
	Schedule *model.DispatchSchedule
	Failure  *model.OptimizationFailure
}

// Succeeded reports whether the run produced a schedule.
func (e OptimizationFinished) Succeeded() bool { return e.Schedule != nil && e.Failure == nil }
