package table

import (
	"context"
	"time"
)

// Staged wraps a Destination that writes immediately and holds every
// RemoveAllRows and AddRow until Flush. Cell assignments are recorded on
// states of the column's declared kind and replayed onto the real rows.
type Staged struct {
	dest  Destination
	clear bool
	rows  [][]*recorded
}

var (
	_ Destination = (*Staged)(nil)
	_ Flusher     = (*Staged)(nil)
)

// Stage returns a staging wrapper around dest.
func Stage(dest Destination) *Staged {
	return &Staged{dest: dest}
}

// Columns returns the wrapped destination's columns.
func (s *Staged) Columns() []ColumnSpec {
	return s.dest.Columns()
}

// AddRow stages a row.
func (s *Staged) AddRow(_ context.Context) (Row, error) {
	columns := s.dest.Columns()
	cells := make([]*recorded, len(columns))
	states := make(stateRow, len(columns))
	for i, col := range columns {
		cells[i] = &recorded{name: col.Name}
		states[i] = cells[i].as(col.Kind)
	}
	s.rows = append(s.rows, cells)
	return states, nil
}

// RemoveAllRows stages a clear and drops rows staged before it.
func (s *Staged) RemoveAllRows(_ context.Context) error {
	s.clear = true
	s.rows = nil
	return nil
}

// Pending returns the number of staged rows.
func (s *Staged) Pending() int {
	return len(s.rows)
}

// Flush applies the staged clear and rows to the wrapped destination.
func (s *Staged) Flush(ctx context.Context) error {
	defer s.Discard()
	if s.clear {
		if err := s.dest.RemoveAllRows(ctx); err != nil {
			return err
		}
	}
	for _, cells := range s.rows {
		row, err := s.dest.AddRow(ctx)
		if err != nil {
			return err
		}
		states := row.States()
		for i, c := range cells {
			if i < len(states) {
				c.replay(states[i])
			}
		}
	}
	if f, ok := s.dest.(Flusher); ok {
		return f.Flush(ctx)
	}
	return nil
}

// Discard drops everything staged.
func (s *Staged) Discard() {
	s.clear = false
	s.rows = nil
}

type setter int

const (
	setNone setter = iota
	setStateValue
	setReal
	setDateTime
	setString
)

// recorded keeps the last assignment made to a staged cell.
type recorded struct {
	name string
	op   setter
	num  float64
	at   time.Time
	text string
}

func (r *recorded) as(kind Kind) State {
	switch kind {
	case KindReal:
		return recordedReal{r}
	case KindDateTime:
		return recordedDateTime{r}
	default:
		return recordedString{r}
	}
}

func (r *recorded) Name() string            { return r.name }
func (r *recorded) SetStateValue(v float64) { r.op, r.num = setStateValue, v }

func (r *recorded) replay(st State) {
	switch r.op {
	case setStateValue:
		st.SetStateValue(r.num)
	case setReal:
		if rs, ok := st.(RealState); ok {
			rs.SetReal(r.num)
		} else {
			st.SetStateValue(r.num)
		}
	case setDateTime:
		if ds, ok := st.(DateTimeState); ok {
			ds.SetDateTime(r.at)
		}
	case setString:
		if ss, ok := st.(StringState); ok {
			ss.SetString(r.text)
		}
	}
}

type recordedReal struct{ *recorded }

func (c recordedReal) SetReal(v float64) { c.op, c.num = setReal, v }

type recordedDateTime struct{ *recorded }

func (c recordedDateTime) SetDateTime(t time.Time) { c.op, c.at = setDateTime, t }

type recordedString struct{ *recorded }

func (c recordedString) SetString(s string) { c.op, c.text = setString, s }
