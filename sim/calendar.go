// Package sim hosts a minimal simulation calendar: a single logical thread
// that fires events in the order they were scheduled.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/SimioLLC/WebAPISync/component"
	"github.com/SimioLLC/WebAPISync/errors"
)

// Calendar executes events one at a time on its own goroutine. Events
// scheduled "at the current time" run after every event already queued.
// The queue is unbounded, so scheduling never waits on event execution.
type Calendar struct {
	logger *slog.Logger

	mu      sync.Mutex
	queue   []func()
	started bool
	stopped bool
	since   time.Time

	wake chan struct{}
	quit chan struct{}
	done chan struct{}

	now       atomic.Uint64
	scheduled atomic.Int64
	panics    atomic.Int64
}

// Option configures a Calendar.
type Option func(*Calendar)

// WithLogger sets the logger used for recovered event panics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Calendar) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewCalendar creates a stopped calendar. Events may be scheduled before
// Start; they fire once it runs.
func NewCalendar(opts ...Option) *Calendar {
	c := &Calendar{
		logger: slog.Default(),
		wake:   make(chan struct{}, 1),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "calendar")
	return c
}

// Start launches the event loop. Cancelling ctx stops it after the event
// in progress; queued events are abandoned.
func (c *Calendar) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "Calendar", "Start", "start event loop")
	}
	c.started = true
	c.since = time.Now()
	go c.loop(ctx)
	return nil
}

// ScheduleCurrentEvent queues fn to fire at the current logical time.
func (c *Calendar) ScheduleCurrentEvent(fn func()) error {
	if fn == nil {
		return errors.WrapInvalid(fmt.Errorf("nil event"), "Calendar", "ScheduleCurrentEvent", "validate event")
	}

	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return errors.WrapInvalid(errors.ErrShuttingDown, "Calendar", "ScheduleCurrentEvent", "schedule event")
	}
	c.queue = append(c.queue, fn)
	c.mu.Unlock()

	c.scheduled.Add(1)
	select {
	case c.wake <- struct{}{}:
	default:
	}
	return nil
}

// Do schedules fn and waits for it to fire, or for ctx to end.
func (c *Calendar) Do(ctx context.Context, fn func()) error {
	fired := make(chan struct{})
	if err := c.ScheduleCurrentEvent(func() {
		defer close(fired)
		fn()
	}); err != nil {
		return err
	}

	select {
	case <-fired:
		return nil
	case <-ctx.Done():
		return errors.WrapTransient(ctx.Err(), "Calendar", "Do", "wait for event")
	}
}

// Stop refuses new events, fires the ones already queued and waits up to
// timeout for the loop to exit.
func (c *Calendar) Stop(timeout time.Duration) error {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return nil
	}
	c.stopped = true
	started := c.started
	close(c.quit)
	c.mu.Unlock()

	if !started {
		return nil
	}

	select {
	case <-c.done:
		return nil
	case <-time.After(timeout):
		return errors.WrapTransient(fmt.Errorf("event loop still running after %s", timeout), "Calendar", "Stop", "wait for event loop")
	}
}

// Now returns the logical time: the number of events fired so far.
func (c *Calendar) Now() uint64 {
	return c.now.Load()
}

// Stats is a point-in-time view of the calendar.
type Stats struct {
	Scheduled int64  `json:"scheduled"`
	Fired     uint64 `json:"fired"`
	Pending   int    `json:"pending"`
	Panics    int64  `json:"panics"`
}

// Stats returns the calendar counters.
func (c *Calendar) Stats() Stats {
	return Stats{
		Scheduled: c.scheduled.Load(),
		Fired:     c.now.Load(),
		Pending:   c.pending(),
		Panics:    c.panics.Load(),
	}
}

var _ component.LifecycleComponent = (*Calendar)(nil)

// Initialize is a no-op; the calendar needs no setup before Start.
func (c *Calendar) Initialize() error { return nil }

// Meta describes the calendar
func (c *Calendar) Meta() component.Metadata {
	return component.Metadata{
		Name:        "calendar",
		Type:        "processor",
		Description: "Fires scheduled events one at a time",
		Version:     "1.0.0",
	}
}

// Health reports whether the event loop is running
func (c *Calendar) Health() component.HealthStatus {
	c.mu.Lock()
	running := c.started && !c.stopped
	since := c.since
	c.mu.Unlock()

	var uptime time.Duration
	if running {
		uptime = time.Since(since)
	}
	return component.HealthStatus{
		Healthy:    running,
		LastCheck:  time.Now(),
		ErrorCount: int(c.panics.Load()),
		Uptime:     uptime,
	}
}

// DataFlow reports events fired per second
func (c *Calendar) DataFlow() component.FlowMetrics {
	c.mu.Lock()
	since := c.since
	c.mu.Unlock()

	fired := int64(c.now.Load())
	var errorRate float64
	if fired > 0 {
		errorRate = float64(c.panics.Load()) / float64(fired)
	}
	return component.FlowMetrics{
		MessagesPerSecond: component.Rate(fired, since),
		ErrorRate:         errorRate,
	}
}

func (c *Calendar) loop(ctx context.Context) {
	defer close(c.done)

	for {
		batch := c.take()
		for _, fn := range batch {
			if ctx.Err() != nil {
				return
			}
			c.fire(fn)
		}
		if len(batch) > 0 {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-c.wake:
		case <-c.quit:
			if c.pending() == 0 {
				return
			}
		}
	}
}

func (c *Calendar) take() []func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	batch := c.queue
	c.queue = nil
	return batch
}

func (c *Calendar) pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

func (c *Calendar) fire(fn func()) {
	defer func() {
		c.now.Add(1)
		if r := recover(); r != nil {
			c.panics.Add(1)
			c.logger.Error("Event panicked", "panic", r, "time", c.now.Load())
		}
	}()
	fn()
}
