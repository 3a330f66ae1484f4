package table

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"real", KindReal, false},
		{"Number", KindReal, false},
		{"datetime", KindDateTime, false},
		{" date ", KindDateTime, false},
		{"string", KindString, false},
		{"", KindString, false},
		{"blob", KindString, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMemory_AddRowAndStates(t *testing.T) {
	epoch := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemory([]ColumnSpec{
		{Name: "qty", Kind: KindReal},
		{Name: "due", Kind: KindDateTime},
		{Name: "note", Kind: KindString},
	}, WithEpoch(epoch))

	row, err := m.AddRow(context.Background())
	require.NoError(t, err)

	states := row.States()
	require.Len(t, states, 3)
	assert.Equal(t, "qty", states[0].Name())

	states[0].(RealState).SetReal(42.5)
	states[1].SetStateValue(5)
	states[2].(StringState).SetString("hello")

	rows := m.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, 42.5, rows[0][0].Real)
	assert.Equal(t, epoch.Add(5*time.Hour), rows[0][1].Time)
	assert.Equal(t, "hello", rows[0][2].Text)
	for _, v := range rows[0] {
		assert.True(t, v.Assigned)
	}
}

func TestMemory_RemoveAllRows(t *testing.T) {
	m := NewMemory([]ColumnSpec{{Name: "a", Kind: KindString}})
	ctx := context.Background()

	_, _ = m.AddRow(ctx)
	_, _ = m.AddRow(ctx)
	assert.Equal(t, 2, m.Len())

	require.NoError(t, m.RemoveAllRows(ctx))
	assert.Equal(t, 0, m.Len())
}

func TestStateKinds(t *testing.T) {
	var v Value

	rs := NewState("r", KindReal, &v, DefaultEpoch)
	_, isReal := rs.(RealState)
	_, isDate := rs.(DateTimeState)
	assert.True(t, isReal)
	assert.False(t, isDate)

	str := NewState("s", KindString, &v, DefaultEpoch)
	str.SetStateValue(1.5)
	assert.Equal(t, "1.5", v.Text)
	assert.Equal(t, KindString, v.Kind)
}

func TestValue_Rendering(t *testing.T) {
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

	assert.Equal(t, "", Value{Kind: KindReal}.String())
	assert.Nil(t, Value{Kind: KindReal}.Native())
	assert.Equal(t, "42.5", Value{Kind: KindReal, Assigned: true, Real: 42.5}.String())
	assert.Equal(t, "2024-01-02T03:04:05Z", Value{Kind: KindDateTime, Assigned: true, Time: at}.String())
	assert.Equal(t, at, Value{Kind: KindDateTime, Assigned: true, Time: at}.Native())
	assert.Equal(t, "x", Value{Kind: KindString, Assigned: true, Text: "x"}.Native())
}

func TestFragment_Empty(t *testing.T) {
	assert.True(t, Fragment{}.Empty())
	assert.True(t, Fragment{Columns: []string{"a"}}.Empty())
	assert.False(t, Fragment{Columns: []string{"a"}, Rows: [][]string{{"1"}}}.Empty())
}

func TestStaged_HoldsWritesUntilFlush(t *testing.T) {
	ctx := context.Background()
	epoch := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	at := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	m := NewMemory([]ColumnSpec{
		{Name: "qty", Kind: KindReal},
		{Name: "due", Kind: KindDateTime},
		{Name: "at", Kind: KindDateTime},
		{Name: "note", Kind: KindString},
	}, WithEpoch(epoch))
	_, _ = m.AddRow(ctx)

	s := Stage(m)
	require.NoError(t, s.RemoveAllRows(ctx))
	row, err := s.AddRow(ctx)
	require.NoError(t, err)

	states := row.States()
	require.Len(t, states, 4)
	_, isReal := states[0].(RealState)
	_, realIsDate := states[0].(DateTimeState)
	assert.True(t, isReal)
	assert.False(t, realIsDate)

	states[0].(RealState).SetReal(3)
	states[1].SetStateValue(2)
	states[2].(DateTimeState).SetDateTime(at)
	states[3].(StringState).SetString("hi")

	assert.Equal(t, 1, m.Len(), "nothing applied before Flush")
	assert.Equal(t, 1, s.Pending())

	require.NoError(t, s.Flush(ctx))
	rows := m.Rows()
	require.Len(t, rows, 1)
	assert.Equal(t, 3.0, rows[0][0].Real)
	assert.Equal(t, epoch.Add(2*time.Hour), rows[0][1].Time)
	assert.Equal(t, at, rows[0][2].Time)
	assert.Equal(t, "hi", rows[0][3].Text)
	assert.Equal(t, 0, s.Pending())
}

func TestStaged_DiscardLeavesDestination(t *testing.T) {
	ctx := context.Background()
	m := NewMemory([]ColumnSpec{{Name: "a", Kind: KindString}})
	_, _ = m.AddRow(ctx)

	s := Stage(m)
	require.NoError(t, s.RemoveAllRows(ctx))
	_, _ = s.AddRow(ctx)
	s.Discard()
	require.NoError(t, s.Flush(ctx))

	assert.Equal(t, 1, m.Len())
}

func TestStaged_ClearOnly(t *testing.T) {
	ctx := context.Background()
	m := NewMemory([]ColumnSpec{{Name: "a", Kind: KindString}})
	_, _ = m.AddRow(ctx)

	s := Stage(m)
	require.NoError(t, s.RemoveAllRows(ctx))
	require.NoError(t, s.Flush(ctx))
	assert.Equal(t, 0, m.Len())
}
