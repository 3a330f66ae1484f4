package buffer

import (
	"sync"

	"github.com/SimioLLC/WebAPISync/errors"
)

// Receive is an append-only buffer that is emptied in one step by
// DrainAndClear. Network handlers append, the simulation drains.
//
// The lock is held only for slice bookkeeping. No item is ever returned by
// two drains and no item appended before a drain takes the lock can be
// missed by it.
type Receive[T any] struct {
	mu      sync.Mutex
	items   []T
	latest  T
	hasLast bool
	seq     uint64

	policy  RetentionPolicy
	stats   *Statistics
	metrics *bufferMetrics
	opts    *bufferOptions[T]
}

// NewReceive creates a receive buffer with the given retention policy.
// It fails only when metrics were requested and could not be registered.
func NewReceive[T any](policy RetentionPolicy, options ...Option[T]) (*Receive[T], error) {
	opts := applyOptions(options...)

	var metrics *bufferMetrics
	if opts.metricsReg != nil {
		var err error
		metrics, err = newBufferMetrics(opts.metricsReg, opts.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "buffer", "NewReceive", "metrics registration")
		}
	}

	return &Receive[T]{
		items:   make([]T, 0),
		policy:  policy,
		stats:   NewStatistics(),
		metrics: metrics,
		opts:    opts,
	}, nil
}

// Append adds item to the buffer and returns its arrival sequence number.
func (b *Receive[T]) Append(item T) uint64 {
	return b.AppendStamped(item, nil)
}

// AppendStamped adds a fully built item and lets stamp write the arrival
// sequence number into it while the lock is held, so that sequence order
// and buffer order always agree. stamp must only assign the number.
func (b *Receive[T]) AppendStamped(item T, stamp func(item *T, seq uint64)) uint64 {
	var (
		dropped    T
		hasDropped bool
	)

	b.mu.Lock()
	b.seq++
	seq := b.seq
	if stamp != nil {
		stamp(&item, seq)
	}

	if b.policy == RetainLast && len(b.items) > 0 {
		dropped, hasDropped = b.items[0], true
		b.items[0] = item
	} else {
		b.items = append(b.items, item)
	}
	b.latest, b.hasLast = item, true
	size := len(b.items)
	b.mu.Unlock()

	b.stats.Write()
	b.stats.UpdateSize(int64(size))
	if hasDropped {
		b.stats.Drop()
	}
	if b.metrics != nil {
		b.metrics.recordWrite(size, hasDropped)
	}
	if hasDropped && b.opts.dropCallback != nil {
		b.opts.dropCallback(dropped)
	}

	return seq
}

// DrainAndClear returns every buffered item in arrival order and leaves the
// buffer empty. With nothing buffered it returns an empty, non-nil slice.
func (b *Receive[T]) DrainAndClear() []T {
	b.mu.Lock()
	drained := b.items
	b.items = make([]T, 0, cap(drained))
	b.mu.Unlock()

	b.stats.Drain(len(drained))
	b.stats.UpdateSize(0)
	if b.metrics != nil {
		b.metrics.recordDrain(len(drained))
	}
	return drained
}

// Latest returns the most recently appended item. Draining does not reset it.
func (b *Receive[T]) Latest() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.latest, b.hasLast
}

// Len returns the number of items waiting for the next drain.
func (b *Receive[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Policy returns the retention policy fixed at construction.
func (b *Receive[T]) Policy() RetentionPolicy {
	return b.policy
}

// Stats returns buffer statistics.
func (b *Receive[T]) Stats() *Statistics {
	return b.stats
}
