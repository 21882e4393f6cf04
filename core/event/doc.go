// Package event provides a minimal synchronous, in-process publish/subscribe
// bus for lifecycle notifications.
//
// Unlike a message broker, Bus never leaves the process and never returns
// errors to the publisher: a handler's error or panic is caught, logged, and
// discarded so that a misbehaving listener can never affect the component
// that published the event.
//
// Usage:
//
//	bus := event.NewBus(event.WithLogger(logger))
//	bus.Subscribe("job:success", func(ctx context.Context, payload any) {
//		evt := payload.(queue.JobSuccessEvent)
//		metrics.Inc(evt.TaskName)
//	})
//	bus.Publish(ctx, "job:success", queue.JobSuccessEvent{...})
package event
