package table

import (
	"context"
	"sync"
	"time"
)

// DefaultEpoch is the origin for hours offsets when none is configured.
var DefaultEpoch = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)

// Memory is an in-process Destination. It is what the serve command uses
// when no database is configured and what tests write into.
type Memory struct {
	mu      sync.RWMutex
	columns []ColumnSpec
	rows    [][]Value
	epoch   time.Time
}

var _ Destination = (*Memory)(nil)

// MemoryOption configures a Memory table.
type MemoryOption func(*Memory)

// WithEpoch sets the origin for hours offsets written to date/time columns.
func WithEpoch(epoch time.Time) MemoryOption {
	return func(m *Memory) { m.epoch = epoch }
}

// NewMemory creates an empty table with the given columns.
func NewMemory(columns []ColumnSpec, opts ...MemoryOption) *Memory {
	m := &Memory{
		columns: append([]ColumnSpec(nil), columns...),
		epoch:   DefaultEpoch,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Columns returns the column declarations.
func (m *Memory) Columns() []ColumnSpec {
	return append([]ColumnSpec(nil), m.columns...)
}

// AddRow appends an unassigned row.
func (m *Memory) AddRow(_ context.Context) (Row, error) {
	row, values := NewRow(m.columns, m.epoch)
	m.mu.Lock()
	m.rows = append(m.rows, values)
	m.mu.Unlock()
	return row, nil
}

// RemoveAllRows empties the table.
func (m *Memory) RemoveAllRows(_ context.Context) error {
	m.mu.Lock()
	m.rows = nil
	m.mu.Unlock()
	return nil
}

// Len returns the number of rows.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

// Rows returns a copy of the stored values.
func (m *Memory) Rows() [][]Value {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([][]Value, len(m.rows))
	for i, r := range m.rows {
		out[i] = append([]Value(nil), r...)
	}
	return out
}
