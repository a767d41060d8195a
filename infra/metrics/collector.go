package metrics

import (
	"context"

	"github.com/kilianp07/gridflex/core/events"
	coremetrics "github.com/kilianp07/gridflex/core/metrics"
	"github.com/kilianp07/gridflex/infra/logger"
	"github.com/kilianp07/gridflex/internal/eventbus"
)

// StartEventCollector subscribes to the bus and records every finished run on
// sink. Successful schedules are also passed to sinks implementing
// ScheduleRecorder. It stops when ctx is canceled or the bus is closed; the
// returned channel is closed on exit.
func StartEventCollector(ctx context.Context, bus *eventbus.TypedBus[events.OptimizationFinished], sink coremetrics.MetricsSink, log logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	if log == nil {
		log = logger.NopLogger{}
	}
	sub := bus.SubscribeBuffered(32)
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := sink.RecordOptimization(ev.Event); err != nil {
					log.Warnf("record optimization %s: %v", ev.Event.RequestID, err)
				}
				if !ev.Succeeded() {
					continue
				}
				if r, ok := sink.(coremetrics.ScheduleRecorder); ok {
					if err := r.RecordSchedule(ev.Schedule); err != nil {
						log.Warnf("record schedule %s: %v", ev.Event.RequestID, err)
					}
				}
			}
		}
	}()
	return done
}
