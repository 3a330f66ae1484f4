// Package worker provides a generic bounded worker pool.
//
// A Pool runs a fixed number of goroutines that take items from a bounded
// queue and hand them to a processor function. Submit never blocks; when the
// queue is full the item is dropped, counted and ErrQueueFull is returned.
// Statistics are always collected, Prometheus metrics only when a registry
// is supplied:
//
//	pool, err := worker.NewPool[message.Raw](2, 256, publish,
//	    worker.WithMetricsRegistry[message.Raw](registry, "tap"))
//	if err != nil {
//	    return err
//	}
//	if err := pool.Start(ctx); err != nil {
//	    return err
//	}
//	defer pool.Stop(5 * time.Second)
//
// Stop closes the queue and waits for items already queued. Cancelling the
// context passed to Start abandons them instead.
package worker
