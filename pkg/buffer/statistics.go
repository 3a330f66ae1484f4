package buffer

import (
	"sync"
	"sync/atomic"
	"time"
)

// Statistics tracks receive buffer activity. It is always collected.
type Statistics struct {
	writes  int64
	drains  int64
	drained int64
	drops   int64

	mu          sync.RWMutex
	startTime   time.Time
	currentSize int64
	maxSize     int64
}

// NewStatistics creates a new statistics tracker.
func NewStatistics() *Statistics {
	return &Statistics{startTime: time.Now()}
}

// Write records one appended item.
func (s *Statistics) Write() {
	atomic.AddInt64(&s.writes, 1)
}

// Drain records one drain that handed out n items.
func (s *Statistics) Drain(n int) {
	atomic.AddInt64(&s.drains, 1)
	atomic.AddInt64(&s.drained, int64(n))
}

// Drop records one replaced item.
func (s *Statistics) Drop() {
	atomic.AddInt64(&s.drops, 1)
}

// UpdateSize updates the current buffer size.
func (s *Statistics) UpdateSize(size int64) {
	s.mu.Lock()
	s.currentSize = size
	if size > s.maxSize {
		s.maxSize = size
	}
	s.mu.Unlock()
}

// Writes returns the total number of appended items.
func (s *Statistics) Writes() int64 { return atomic.LoadInt64(&s.writes) }

// Drains returns the number of drain operations.
func (s *Statistics) Drains() int64 { return atomic.LoadInt64(&s.drains) }

// Drained returns the total number of items handed out by drains.
func (s *Statistics) Drained() int64 { return atomic.LoadInt64(&s.drained) }

// Drops returns the number of items replaced under RetainLast.
func (s *Statistics) Drops() int64 { return atomic.LoadInt64(&s.drops) }

// CurrentSize returns the current number of items in the buffer.
func (s *Statistics) CurrentSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentSize
}

// MaxSize returns the largest number of items held between two drains.
func (s *Statistics) MaxSize() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxSize
}

// Throughput returns the average number of writes per second.
func (s *Statistics) Throughput() float64 {
	elapsed := s.Uptime()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.Writes()) / elapsed.Seconds()
}

// Uptime returns how long the buffer has existed.
func (s *Statistics) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return time.Since(s.startTime)
}

// StatsSummary is a point-in-time snapshot of Statistics.
type StatsSummary struct {
	Writes      int64         `json:"writes"`
	Drains      int64         `json:"drains"`
	Drained     int64         `json:"drained"`
	Drops       int64         `json:"drops"`
	CurrentSize int64         `json:"current_size"`
	MaxSize     int64         `json:"max_size"`
	Throughput  float64       `json:"throughput"`
	Uptime      time.Duration `json:"uptime"`
}

// Summary returns a snapshot of all statistics.
func (s *Statistics) Summary() StatsSummary {
	return StatsSummary{
		Writes:      s.Writes(),
		Drains:      s.Drains(),
		Drained:     s.Drained(),
		Drops:       s.Drops(),
		CurrentSize: s.CurrentSize(),
		MaxSize:     s.MaxSize(),
		Throughput:  s.Throughput(),
		Uptime:      s.Uptime(),
	}
}
