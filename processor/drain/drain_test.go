package drain

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SimioLLC/WebAPISync/errors"
	"github.com/SimioLLC/WebAPISync/message"
	"github.com/SimioLLC/WebAPISync/metric"
	"github.com/SimioLLC/WebAPISync/pkg/buffer"
	"github.com/SimioLLC/WebAPISync/processor/materialize"
	"github.com/SimioLLC/WebAPISync/processor/merge"
	"github.com/SimioLLC/WebAPISync/processor/transform"
	"github.com/SimioLLC/WebAPISync/table"
)

func newBuffer(t *testing.T, payloads ...string) *buffer.Receive[message.Raw] {
	t.Helper()
	buf, err := buffer.NewReceive[message.Raw](buffer.RetainAll)
	require.NoError(t, err)
	for _, p := range payloads {
		buf.AppendStamped(message.NewRaw(0, p), (*message.Raw).SetSeq)
	}
	return buf
}

func newDrainer(t *testing.T, buf Source, policy merge.Policy) *Drainer {
	t.Helper()
	d, err := New(Deps{Buffer: buf, MergePolicy: policy})
	require.NoError(t, err)
	return d
}

func valueColumn() *table.Memory {
	return table.NewMemory([]table.ColumnSpec{{Name: "v", Kind: table.KindReal}})
}

func reals(m *table.Memory) []float64 {
	var out []float64
	for _, r := range m.Rows() {
		out = append(out, r[0].Real)
	}
	return out
}

func TestDrain_EmptyBufferWritesNothing(t *testing.T) {
	tests := []struct {
		name     string
		clear    bool
		wantRows int
	}{
		{"clear", true, 0},
		{"keep", false, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dest := valueColumn()
			_, _ = dest.AddRow(context.Background())

			d := newDrainer(t, newBuffer(t), merge.Positional)
			res, err := d.Drain(context.Background(), Request{Destination: dest, ClearRows: tt.clear})
			require.NoError(t, err)

			assert.Equal(t, 0, res.Messages)
			assert.Equal(t, 0, res.Rows)
			assert.Equal(t, tt.clear, res.Cleared)
			assert.Equal(t, tt.wantRows, dest.Len())
		})
	}
}

func TestDrain_EmptyBufferClearsStagedDestination(t *testing.T) {
	dest := &stagedTable{Memory: valueColumn()}
	_, _ = dest.Memory.AddRow(context.Background())

	d := newDrainer(t, newBuffer(t), merge.Positional)
	res, err := d.Drain(context.Background(), Request{Destination: dest, ClearRows: true})
	require.NoError(t, err)
	assert.True(t, res.Cleared)
	assert.Equal(t, 1, dest.cleared)
	assert.Equal(t, 1, dest.flushed)
}

func TestDrain_PositionalMergeKeepsRenamedColumns(t *testing.T) {
	buf := newBuffer(t, `{"a":1}`, `{"b":2}`)
	d := newDrainer(t, buf, merge.Positional)
	dest := valueColumn()

	res, err := d.Drain(context.Background(), Request{Destination: dest})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rows)
	assert.Zero(t, res.DroppedColumns)
	assert.Equal(t, []float64{1, 2}, reals(dest))
	for _, r := range dest.Rows() {
		assert.True(t, r[0].Assigned)
	}
}

func TestDrain_CanceledContextLeavesMemoryUntouched(t *testing.T) {
	dest := valueColumn()
	d := newDrainer(t, newBuffer(t, `{"v":1}`), merge.Positional)
	_, err := d.Drain(context.Background(), Request{Destination: dest})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d = newDrainer(t, newBuffer(t, `{"v":2}`, `{"v":3}`), merge.Positional)
	_, err = d.Drain(ctx, Request{Destination: dest, ClearRows: true})
	require.Error(t, err)
	assert.Equal(t, []float64{1}, reals(dest))
}

func TestDrain_FIFOAndSecondDrainEmpty(t *testing.T) {
	buf := newBuffer(t, `{"v":1}`, `{"v":2}`, `{"v":3}`)
	d := newDrainer(t, buf, merge.Positional)
	dest := valueColumn()

	res, err := d.Drain(context.Background(), Request{Destination: dest})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Messages)
	assert.Equal(t, 3, res.Fragments)
	assert.Equal(t, 3, res.Rows)
	assert.Equal(t, []float64{1, 2, 3}, reals(dest))

	res, err = d.Drain(context.Background(), Request{Destination: dest})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Messages)
	assert.Equal(t, 0, res.Fragments)
	assert.Equal(t, 3, dest.Len())
}

func TestDrain_ClearRows(t *testing.T) {
	dest := valueColumn()
	d := newDrainer(t, newBuffer(t, `{"v":1}`), merge.Positional)
	_, err := d.Drain(context.Background(), Request{Destination: dest})
	require.NoError(t, err)

	buf := newBuffer(t, `{"v":7}`, `{"v":8}`)
	d = newDrainer(t, buf, merge.Positional)

	res, err := d.Drain(context.Background(), Request{Destination: dest, ClearRows: true})
	require.NoError(t, err)
	assert.True(t, res.Cleared)
	assert.Equal(t, []float64{7, 8}, reals(dest))

	buf.Append(message.NewRaw(0, `{"v":9}`))
	_, err = d.Drain(context.Background(), Request{Destination: dest, ClearRows: false})
	require.NoError(t, err)
	assert.Equal(t, []float64{7, 8, 9}, reals(dest))
}

func TestDrain_MixedFormats(t *testing.T) {
	buf := newBuffer(t,
		`<data><v>1</v></data>`,
		`   `,
		`{"v":2}`,
		`[3]`,
	)
	d := newDrainer(t, buf, merge.Positional)
	dest := valueColumn()

	// The bare array loads as an "items" column, taken by position
	res, err := d.Drain(context.Background(), Request{Destination: dest})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Messages)
	assert.Equal(t, 1, res.EmptyFragments)
	assert.Equal(t, []float64{1, 2, 3}, reals(dest))
	assert.Zero(t, res.DroppedColumns)
}

func TestDrain_MalformedMessageAbortsWholeDrain(t *testing.T) {
	buf := newBuffer(t, `{"v":1}`, `{"v":`, `{"v":3}`)
	d := newDrainer(t, buf, merge.Positional)
	dest := valueColumn()

	_, err := d.Drain(context.Background(), Request{Destination: dest, ClearRows: true})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDrainFailed)
	assert.ErrorIs(t, err, errors.ErrMalformedPayload)
	assert.Contains(t, err.Error(), "during processing of the persisted messages")
	assert.Contains(t, err.Error(), "message 2")
	assert.True(t, errors.IsInvalid(err))

	assert.Equal(t, 0, dest.Len(), "no partial writes")
	assert.Equal(t, 0, buf.Len(), "drained messages are not restored")
}

func TestDrain_BrokenStylesheetKeepsMessages(t *testing.T) {
	buf := newBuffer(t, `{"v":1}`)
	d := newDrainer(t, buf, merge.Positional)

	_, err := d.Drain(context.Background(), Request{Destination: valueColumn(), Stylesheet: "rows: '//['"})
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrTransformFailed)
	assert.Equal(t, 1, buf.Len())
}

func TestDrain_WithStylesheet(t *testing.T) {
	buf := newBuffer(t,
		`<orders><order id="1"><qty>2</qty></order><order id="2"><qty>3</qty></order></orders>`,
		`{"order":[{"@id":"3","qty":4}]}`,
	)
	d := newDrainer(t, buf, merge.Strict)
	dest := table.NewMemory([]table.ColumnSpec{
		{Name: "id", Kind: table.KindString},
		{Name: "qty", Kind: table.KindReal},
	})

	sheet := "rows: //order\ncolumns:\n  - name: id\n    select: '@id | id'\n  - name: qty\n"
	res, err := d.Drain(context.Background(), Request{Destination: dest, Stylesheet: sheet})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Rows)

	rows := dest.Rows()
	assert.Equal(t, "1", rows[0][0].Text)
	assert.Equal(t, "3", rows[2][0].Text)
	assert.Equal(t, 4.0, rows[2][1].Real)
}

func TestDrain_StrictSchemaMismatch(t *testing.T) {
	buf := newBuffer(t, `{"a":1}`, `{"b":2}`)
	d := newDrainer(t, buf, merge.Strict)

	_, err := d.Drain(context.Background(), Request{Destination: valueColumn()})
	assert.ErrorIs(t, err, errors.ErrSchemaMismatch)
	assert.ErrorIs(t, err, errors.ErrDrainFailed)
}

func TestDrain_RequiresDestination(t *testing.T) {
	buf := newBuffer(t, `{"v":1}`)
	d := newDrainer(t, buf, merge.Positional)

	_, err := d.Drain(context.Background(), Request{})
	assert.Error(t, err)
	assert.Equal(t, 1, buf.Len())
}

func TestNew_RequiresBuffer(t *testing.T) {
	_, err := New(Deps{})
	assert.True(t, errors.IsFatal(err))
}

type stagedTable struct {
	*table.Memory
	cleared   int
	flushed   int
	discarded int
}

func (s *stagedTable) RemoveAllRows(ctx context.Context) error {
	s.cleared++
	return s.Memory.RemoveAllRows(ctx)
}

func (s *stagedTable) Flush(context.Context) error { s.flushed++; return nil }
func (s *stagedTable) Discard()                    { s.discarded++ }

func TestDrain_FlushesStagedDestination(t *testing.T) {
	dest := &stagedTable{Memory: valueColumn()}
	d := newDrainer(t, newBuffer(t, `{"v":1}`), merge.Positional)

	_, err := d.Drain(context.Background(), Request{Destination: dest})
	require.NoError(t, err)
	assert.Equal(t, 1, dest.flushed)
	assert.Equal(t, 0, dest.discarded)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	d = newDrainer(t, newBuffer(t, `{"v":2}`), merge.Positional)
	_, err = d.Drain(ctx, Request{Destination: dest})
	require.Error(t, err)
	assert.Equal(t, 1, dest.discarded)
}

func TestDrain_Metrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	d, err := New(Deps{
		Buffer:          newBuffer(t, `{"v":1}`, `{"v":2}`),
		MetricsRegistry: registry,
		Binding:         materialize.BindByName,
	})
	require.NoError(t, err)

	_, err = d.Drain(context.Background(), Request{Destination: valueColumn()})
	require.NoError(t, err)

	m := registry.CoreMetrics()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DrainsTotal.WithLabelValues("success")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesDrained))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RowsWritten))
}

func TestCollect(t *testing.T) {
	msgs := []message.Raw{
		message.NewRaw(1, `[1,2]`),
		message.NewRaw(2, `<data><items>3</items></data>`),
	}

	merged, stats, err := Collect(msgs, transform.Identity(), merge.Positional, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"items"}, merged.Columns)
	assert.Equal(t, [][]string{{"1"}, {"2"}, {"3"}}, merged.Rows)
	assert.Equal(t, 2, stats.Fragments)
}
