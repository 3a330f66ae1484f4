// Package materialize writes a merged table into a destination table,
// converting each cell's text into the state kind its column exposes.
package materialize

import (
	"context"
	"log/slog"
	"strings"

	"github.com/SimioLLC/WebAPISync/errors"
	"github.com/SimioLLC/WebAPISync/processor/merge"
	"github.com/SimioLLC/WebAPISync/table"
)

// Outcome tags which interpretation was assigned to a cell.
type Outcome int

const (
	OutcomeUnassigned Outcome = iota
	OutcomeNumeric
	OutcomeDateTime
	OutcomeHoursOffset
	OutcomeString
	outcomeCount
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNumeric:
		return "numeric"
	case OutcomeDateTime:
		return "datetime"
	case OutcomeHoursOffset:
		return "hours_offset"
	case OutcomeString:
		return "string"
	default:
		return "unassigned"
	}
}

// Binding decides which merged column feeds each destination column.
type Binding int

const (
	// BindByPosition feeds destination column i from merged column i.
	BindByPosition Binding = iota
	// BindByName feeds a destination column from the merged column with the
	// same name, compared case-insensitively.
	BindByName
)

// ParseBinding accepts "position" (or empty) and "name".
func ParseBinding(s string) (Binding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "position":
		return BindByPosition, nil
	case "name":
		return BindByName, nil
	default:
		return BindByPosition, errors.WrapInvalid(errors.ErrInvalidConfig, "materialize", "ParseBinding", "parse binding "+s)
	}
}

// Result counts what one Materialize call wrote.
type Result struct {
	Rows  int
	cells [outcomeCount]int
}

// Cells returns how many cells received outcome o.
func (r Result) Cells(o Outcome) int {
	if o < 0 || o >= outcomeCount {
		return 0
	}
	return r.cells[o]
}

// LogValue lets a Result be logged as a group.
func (r Result) LogValue() slog.Value {
	attrs := []slog.Attr{slog.Int("rows", r.Rows)}
	for o := OutcomeUnassigned; o < outcomeCount; o++ {
		if n := r.cells[o]; n > 0 {
			attrs = append(attrs, slog.Int(o.String(), n))
		}
	}
	return slog.GroupValue(attrs...)
}

// Materializer converts merged rows into destination rows.
type Materializer struct {
	binding Binding
}

// New creates a Materializer.
func New(binding Binding) *Materializer {
	return &Materializer{binding: binding}
}

// Materialize adds one destination row per merged row and assigns every
// destination column, left to right. Cells missing from the merged row are
// the empty string.
func (m *Materializer) Materialize(ctx context.Context, merged merge.Table, dest table.Destination) (Result, error) {
	var res Result
	source := m.sources(merged.Columns, dest.Columns())

	for _, row := range merged.Rows {
		if err := ctx.Err(); err != nil {
			return res, errors.WrapTransient(err, "Materializer", "Materialize", "write rows")
		}
		r, err := dest.AddRow(ctx)
		if err != nil {
			return res, errors.WrapTransient(err, "Materializer", "Materialize", "add destination row")
		}
		for i, state := range r.States() {
			text := ""
			if i < len(source) && source[i] >= 0 && source[i] < len(row) {
				text = row[source[i]]
			}
			res.cells[Assign(state, text)]++
		}
		res.Rows++
	}
	return res, nil
}

// sources maps each destination column to a merged column index, -1 if none.
func (m *Materializer) sources(merged []string, dest []table.ColumnSpec) []int {
	out := make([]int, len(dest))
	if m.binding == BindByPosition {
		for i := range out {
			out[i] = i
		}
		return out
	}
	index := make(map[string]int, len(merged))
	for i, c := range merged {
		key := strings.ToLower(c)
		if _, ok := index[key]; !ok {
			index[key] = i
		}
	}
	for i, c := range dest {
		if pos, ok := index[strings.ToLower(c.Name)]; ok {
			out[i] = pos
		} else {
			out[i] = -1
		}
	}
	return out
}

// Assign writes text into state using the first interpretation that both
// parses and matches a setter the state offers: numeric, then date/time
// (falling back to an hours offset through SetStateValue), then string.
func Assign(state table.State, text string) Outcome {
	if rs, ok := state.(table.RealState); ok {
		if v, ok := ParseNumeric(text); ok {
			rs.SetReal(v)
			return OutcomeNumeric
		}
	}
	if ds, ok := state.(table.DateTimeState); ok {
		if t, ok := ParseDateTime(text); ok {
			ds.SetDateTime(t)
			return OutcomeDateTime
		}
		if v, ok := ParseFloat(text); ok {
			ds.SetStateValue(v)
			return OutcomeHoursOffset
		}
	}
	if ss, ok := state.(table.StringState); ok {
		ss.SetString(text)
		return OutcomeString
	}
	return OutcomeUnassigned
}
