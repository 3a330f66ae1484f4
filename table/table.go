// Package table defines the tabular shapes that pass between pipeline stages
// and the destination table the host owns.
package table

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Fragment is the relational result of transforming one message: ordered
// column names and rows of cell text. A row may be shorter than Columns.
type Fragment struct {
	Columns []string
	Rows    [][]string
}

// Empty reports whether the fragment contributes no rows.
func (f Fragment) Empty() bool {
	return len(f.Rows) == 0
}

// Kind is the typed state behind a destination column.
type Kind int

const (
	KindReal Kind = iota
	KindDateTime
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindReal:
		return "real"
	case KindDateTime:
		return "datetime"
	case KindString:
		return "string"
	default:
		return "unknown"
	}
}

// ParseKind accepts the kind names used in configuration files.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "real", "number", "numeric", "float":
		return KindReal, nil
	case "datetime", "date", "time":
		return KindDateTime, nil
	case "string", "text", "":
		return KindString, nil
	default:
		return KindString, fmt.Errorf("unknown column kind %q", s)
	}
}

// ColumnSpec declares one destination column.
type ColumnSpec struct {
	Name string `yaml:"name" json:"name"`
	Kind Kind   `yaml:"-" json:"kind"`
}

// State is one writable cell of a destination row. Every state accepts a
// plain number through SetStateValue; the narrower interfaces below add the
// typed setters.
type State interface {
	Name() string
	SetStateValue(v float64)
}

// RealState is a numeric cell.
type RealState interface {
	State
	SetReal(v float64)
}

// DateTimeState is a date/time cell. SetStateValue on it is interpreted as
// an offset in hours from the destination's epoch.
type DateTimeState interface {
	State
	SetDateTime(t time.Time)
}

// StringState is a text cell.
type StringState interface {
	State
	SetString(s string)
}

// Row is one destination row; States are ordered like Destination.Columns.
type Row interface {
	States() []State
}

// Destination is the host-owned table a drain writes into.
type Destination interface {
	Columns() []ColumnSpec
	AddRow(ctx context.Context) (Row, error)
	RemoveAllRows(ctx context.Context) error
}

// Flusher is implemented by destinations that stage writes. Flush commits
// everything since the last Flush; Discard drops it.
type Flusher interface {
	Flush(ctx context.Context) error
	Discard()
}
