package app

import (
	"context"

	"github.com/kilianp07/gridflex/core/events"
	coremqtt "github.com/kilianp07/gridflex/core/mqtt"
	"github.com/kilianp07/gridflex/infra/logger"
	"github.com/kilianp07/gridflex/internal/eventbus"
)

// startForwarder publishes every successful schedule seen on the bus. Publish
// errors are logged; the returned channel is closed once the bus is closed or
// ctx is canceled.
func startForwarder(ctx context.Context, bus *eventbus.TypedBus[events.OptimizationFinished], pub coremqtt.Publisher, log logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	sub := bus.SubscribeBuffered(16)
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
				if !ev.Succeeded() {
					continue
				}
				if err := pub.PublishSchedule(ctx, ev.Schedule); err != nil {
					log.Errorf("publish schedule %s: %v", ev.Schedule.RequestID, err)
					continue
				}
				log.Debugf("schedule %s published", ev.Schedule.RequestID)
			}
		}
	}()
	return done
}
