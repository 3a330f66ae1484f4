// Package merge combines the fragments of one drain into a single table.
//
// The first fragment that has rows fixes the column set and order. Rows of
// later fragments are appended in arrival order. By default cells are taken
// by position and column names are not reconciled; ByName and Strict align
// rows by column name instead.
package merge

import (
	"fmt"
	"sort"
	"strings"

	"github.com/SimioLLC/WebAPISync/errors"
	"github.com/SimioLLC/WebAPISync/table"
)

// Policy decides how rows of a later fragment are fitted to the fixed
// column set.
type Policy int

const (
	// Positional appends cells by position. Short rows are padded with empty
	// cells and cells beyond the fixed columns are dropped.
	Positional Policy = iota
	// ByName aligns cells by column name. Unknown columns are dropped and
	// missing cells stay empty.
	ByName
	// Strict aligns by name and rejects a fragment whose column set differs
	// with errors.ErrSchemaMismatch.
	Strict
)

func (p Policy) String() string {
	switch p {
	case Positional:
		return "positional"
	case ByName:
		return "byname"
	case Strict:
		return "strict"
	default:
		return "unknown"
	}
}

// ParsePolicy accepts "positional" (or empty), "byname" and "strict".
func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "positional":
		return Positional, nil
	case "byname", "by-name", "name":
		return ByName, nil
	case "strict":
		return Strict, nil
	default:
		return Positional, errors.WrapInvalid(fmt.Errorf("unknown merge policy %q", s), "merge", "ParsePolicy", "parse policy")
	}
}

// Table is the merged result. Every row has exactly len(Columns) cells.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Len returns the number of rows.
func (t Table) Len() int { return len(t.Rows) }

// Stats describes what a merge did.
type Stats struct {
	Fragments      int
	EmptyFragments int
	Rows           int
	DroppedColumns int
	PaddedRows     int
	TruncatedRows  int
}

// Merger accumulates fragments. It is not safe for concurrent use; a drain
// owns one Merger for its lifetime.
type Merger struct {
	policy  Policy
	columns []string
	index   map[string]int
	rows    [][]string
	stats   Stats
}

// New creates an empty merger.
func New(policy Policy) *Merger {
	return &Merger{policy: policy}
}

// Add appends the rows of f. Under Strict a fragment whose column set
// differs from the fixed one is rejected whole.
func (m *Merger) Add(f table.Fragment) error {
	m.stats.Fragments++
	if f.Empty() {
		m.stats.EmptyFragments++
		return nil
	}

	if m.columns == nil {
		m.columns = append([]string(nil), f.Columns...)
		m.index = make(map[string]int, len(m.columns))
		for i, c := range m.columns {
			m.index[c] = i
		}
	}

	if m.policy == Positional {
		m.addPositional(f)
	} else if err := m.addByName(f); err != nil {
		return err
	}
	m.stats.Rows = len(m.rows)
	return nil
}

func (m *Merger) addPositional(f table.Fragment) {
	width := len(m.columns)
	if extra := len(f.Columns) - width; extra > 0 {
		m.stats.DroppedColumns += extra
	}

	for _, src := range f.Rows {
		row := make([]string, width)
		copy(row, src)
		switch {
		case len(src) < width:
			m.stats.PaddedRows++
		case len(src) > width:
			m.stats.TruncatedRows++
		}
		m.rows = append(m.rows, row)
	}
}

func (m *Merger) addByName(f table.Fragment) error {
	mapping := make([]int, len(f.Columns))
	var extra []string
	present := make(map[int]bool, len(f.Columns))
	for i, c := range f.Columns {
		pos, ok := m.index[c]
		if !ok {
			mapping[i] = -1
			extra = append(extra, c)
			continue
		}
		mapping[i] = pos
		present[pos] = true
	}

	if m.policy == Strict && (len(extra) > 0 || len(present) != len(m.columns)) {
		return errors.Detail(errors.ErrSchemaMismatch, m.describe(extra, present))
	}
	m.stats.DroppedColumns += len(extra)

	for _, src := range f.Rows {
		row := make([]string, len(m.columns))
		for i, v := range src {
			if i < len(mapping) && mapping[i] >= 0 {
				row[mapping[i]] = v
			}
		}
		if len(src) < len(f.Columns) {
			m.stats.PaddedRows++
		}
		m.rows = append(m.rows, row)
	}
	return nil
}

func (m *Merger) describe(extra []string, present map[int]bool) error {
	var missing []string
	for i, c := range m.columns {
		if !present[i] {
			missing = append(missing, c)
		}
	}
	sort.Strings(extra)
	return fmt.Errorf("fragment columns differ from [%s]: unexpected [%s], missing [%s]",
		strings.Join(m.columns, ", "), strings.Join(extra, ", "), strings.Join(missing, ", "))
}

// Table returns the merged table. With no rows added it has no columns.
func (m *Merger) Table() Table {
	return Table{
		Columns: append([]string(nil), m.columns...),
		Rows:    m.rows,
	}
}

// Stats returns counters for the merge so far.
func (m *Merger) Stats() Stats {
	return m.stats
}
