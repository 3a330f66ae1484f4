package table

import (
	"strconv"
	"time"
)

// Value is the stored content of one cell.
type Value struct {
	Kind     Kind
	Assigned bool
	Real     float64
	Time     time.Time
	Text     string
}

// String renders the value for display.
func (v Value) String() string {
	if !v.Assigned {
		return ""
	}
	switch v.Kind {
	case KindReal:
		return strconv.FormatFloat(v.Real, 'g', -1, 64)
	case KindDateTime:
		return v.Time.Format(time.RFC3339Nano)
	default:
		return v.Text
	}
}

// Native returns the Go value suitable for a database driver, or nil when
// the cell was never assigned.
func (v Value) Native() any {
	if !v.Assigned {
		return nil
	}
	switch v.Kind {
	case KindReal:
		return v.Real
	case KindDateTime:
		return v.Time
	default:
		return v.Text
	}
}

// NewState returns a State writing into v according to kind. Hours offsets
// on date/time states are added to epoch.
func NewState(name string, kind Kind, v *Value, epoch time.Time) State {
	v.Kind = kind
	switch kind {
	case KindReal:
		return &realCell{name: name, v: v}
	case KindDateTime:
		return &dateCell{name: name, v: v, epoch: epoch}
	default:
		return &stringCell{name: name, v: v}
	}
}

type realCell struct {
	name string
	v    *Value
}

func (c *realCell) Name() string { return c.name }

func (c *realCell) SetStateValue(f float64) { c.SetReal(f) }

func (c *realCell) SetReal(f float64) {
	c.v.Real, c.v.Assigned = f, true
}

type dateCell struct {
	name  string
	v     *Value
	epoch time.Time
}

func (c *dateCell) Name() string { return c.name }

func (c *dateCell) SetStateValue(hours float64) {
	c.SetDateTime(c.epoch.Add(time.Duration(hours * float64(time.Hour))))
}

func (c *dateCell) SetDateTime(t time.Time) {
	c.v.Time, c.v.Assigned = t, true
}

type stringCell struct {
	name string
	v    *Value
}

func (c *stringCell) Name() string { return c.name }

func (c *stringCell) SetStateValue(f float64) {
	c.SetString(strconv.FormatFloat(f, 'g', -1, 64))
}

func (c *stringCell) SetString(s string) {
	c.v.Text, c.v.Assigned = s, true
}

type stateRow []State

func (r stateRow) States() []State { return r }

// NewRow binds one fresh Value per column and returns the row together with
// its backing values.
func NewRow(columns []ColumnSpec, epoch time.Time) (Row, []Value) {
	values := make([]Value, len(columns))
	states := make(stateRow, len(columns))
	for i, col := range columns {
		states[i] = NewState(col.Name, col.Kind, &values[i], epoch)
	}
	return states, values
}
