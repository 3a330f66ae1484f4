package merge

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SimioLLC/WebAPISync/errors"
	"github.com/SimioLLC/WebAPISync/table"
)

func frag(cols []string, rows ...[]string) table.Fragment {
	return table.Fragment{Columns: cols, Rows: rows}
}

func TestMerger_FirstFragmentFixesColumns(t *testing.T) {
	m := New(Positional)

	require.NoError(t, m.Add(table.Fragment{}))
	require.NoError(t, m.Add(frag([]string{"a", "b"}, []string{"1", "2"})))
	require.NoError(t, m.Add(frag([]string{"c", "d"}, []string{"3", "4"})))

	got := m.Table()
	assert.Equal(t, []string{"a", "b"}, got.Columns)
	assert.Equal(t, [][]string{{"1", "2"}, {"3", "4"}}, got.Rows)
	assert.Equal(t, 2, got.Len())

	stats := m.Stats()
	assert.Equal(t, 3, stats.Fragments)
	assert.Equal(t, 1, stats.EmptyFragments)
	assert.Equal(t, 2, stats.Rows)
}

func TestMerger_PositionalKeepsRenamedColumnData(t *testing.T) {
	m := New(Positional)

	require.NoError(t, m.Add(frag([]string{"a"}, []string{"1"})))
	require.NoError(t, m.Add(frag([]string{"b"}, []string{"2"})))

	got := m.Table()
	assert.Equal(t, []string{"a"}, got.Columns)
	assert.Equal(t, [][]string{{"1"}, {"2"}}, got.Rows)
	assert.Zero(t, m.Stats().DroppedColumns)
}

func TestMerger_PositionalShapeMismatch(t *testing.T) {
	m := New(Positional)

	require.NoError(t, m.Add(frag([]string{"a", "b"}, []string{"1", "2"})))
	require.NoError(t, m.Add(frag([]string{"x"}, []string{"3"})))
	require.NoError(t, m.Add(frag([]string{"x", "y", "z"}, []string{"4", "5", "6"})))

	assert.Equal(t, [][]string{{"1", "2"}, {"3", ""}, {"4", "5"}}, m.Table().Rows)
	stats := m.Stats()
	assert.Equal(t, 1, stats.PaddedRows)
	assert.Equal(t, 1, stats.TruncatedRows)
	assert.Equal(t, 1, stats.DroppedColumns)
}

func TestMerger_ByNameAligns(t *testing.T) {
	m := New(ByName)

	require.NoError(t, m.Add(frag([]string{"a", "b"}, []string{"1", "2"})))
	require.NoError(t, m.Add(frag([]string{"b", "a"}, []string{"4", "3"})))
	require.NoError(t, m.Add(frag([]string{"a", "c"}, []string{"5", "x"})))
	require.NoError(t, m.Add(frag([]string{"b"}, []string{"7"})))

	got := m.Table()
	assert.Equal(t, []string{"a", "b"}, got.Columns)
	assert.Equal(t, [][]string{{"1", "2"}, {"3", "4"}, {"5", ""}, {"", "7"}}, got.Rows)
	assert.Equal(t, 1, m.Stats().DroppedColumns)
}

func TestMerger_ShortRowsPadded(t *testing.T) {
	m := New(Positional)
	require.NoError(t, m.Add(frag([]string{"a", "b", "c"}, []string{"1"})))

	assert.Equal(t, [][]string{{"1", "", ""}}, m.Table().Rows)
}

func TestMerger_StrictRejectsMismatch(t *testing.T) {
	tests := []struct {
		name string
		next table.Fragment
	}{
		{"extra column", frag([]string{"a", "b", "c"}, []string{"1", "2", "3"})},
		{"missing column", frag([]string{"a"}, []string{"1"})},
		{"renamed column", frag([]string{"a", "z"}, []string{"1", "2"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New(Strict)
			require.NoError(t, m.Add(frag([]string{"a", "b"}, []string{"1", "2"})))

			err := m.Add(tt.next)
			require.Error(t, err)
			assert.ErrorIs(t, err, errors.ErrSchemaMismatch)
			assert.Equal(t, 1, m.Table().Len(), "rejected fragment adds nothing")
		})
	}
}

func TestMerger_StrictAcceptsReordered(t *testing.T) {
	m := New(Strict)
	require.NoError(t, m.Add(frag([]string{"a", "b"}, []string{"1", "2"})))
	require.NoError(t, m.Add(frag([]string{"b", "a"}, []string{"4", "3"})))

	assert.Equal(t, [][]string{{"1", "2"}, {"3", "4"}}, m.Table().Rows)
}

func TestMerger_NothingAdded(t *testing.T) {
	got := New(Positional).Table()
	assert.Empty(t, got.Columns)
	assert.Equal(t, 0, got.Len())
}

func TestParsePolicy(t *testing.T) {
	tests := []struct {
		in   string
		want Policy
	}{
		{"", Positional},
		{"positional", Positional},
		{"ByName", ByName},
		{"by-name", ByName},
		{"Strict", Strict},
	}
	for _, tt := range tests {
		p, err := ParsePolicy(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, p, tt.in)
	}

	_, err := ParsePolicy("lenient")
	assert.True(t, errors.IsInvalid(err))

	assert.Equal(t, "positional", Positional.String())
	assert.Equal(t, "byname", ByName.String())
	assert.Equal(t, "strict", Strict.String())
}
