package sqltable

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SimioLLC/WebAPISync/errors"
	"github.com/SimioLLC/WebAPISync/table"
)

var orderColumns = []table.ColumnSpec{
	{Name: "id", Kind: table.KindString},
	{Name: "qty", Kind: table.KindReal},
	{Name: "due", Kind: table.KindDateTime},
}

func openMemory(t *testing.T) *Table {
	t.Helper()
	tbl, err := Open(context.Background(), Config{
		Driver:  "sqlite",
		DSN:     "file::memory:",
		Table:   "orders",
		Columns: orderColumns,
	}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = tbl.Close() })
	return tbl
}

func addOrder(t *testing.T, tbl *Table, id string, qty float64) {
	t.Helper()
	row, err := tbl.AddRow(context.Background())
	require.NoError(t, err)
	states := row.States()
	states[0].(table.StringState).SetString(id)
	states[1].(table.RealState).SetReal(qty)
	states[2].(table.DateTimeState).SetDateTime(time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC))
}

func quantities(t *testing.T, tbl *Table) map[string]float64 {
	t.Helper()
	rows, err := tbl.db.Query(`SELECT "id", "qty" FROM "orders"`)
	require.NoError(t, err)
	defer rows.Close()

	got := map[string]float64{}
	for rows.Next() {
		var id string
		var qty float64
		require.NoError(t, rows.Scan(&id, &qty))
		got[id] = qty
	}
	require.NoError(t, rows.Err())
	return got
}

func TestDialectFor(t *testing.T) {
	tests := []struct {
		driver  string
		want    Dialect
		wantErr bool
	}{
		{"sqlite", SQLite, false},
		{"SQLite3", SQLite, false},
		{"postgres", Postgres, false},
		{" postgresql ", Postgres, false},
		{"mysql", Dialect{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.driver, func(t *testing.T) {
			got, err := DialectFor(tt.driver)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.IsInvalid(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestStatements(t *testing.T) {
	assert.Equal(t,
		`CREATE TABLE IF NOT EXISTS "orders" ("id" TEXT, "qty" REAL, "due" DATETIME)`,
		SQLite.createStatement("orders", orderColumns))
	assert.Equal(t,
		`CREATE TABLE IF NOT EXISTS "sim"."orders" ("id" TEXT, "qty" DOUBLE PRECISION, "due" TIMESTAMPTZ)`,
		Postgres.createStatement("sim.orders", orderColumns))
	assert.Equal(t,
		`INSERT INTO "orders" ("id", "qty", "due") VALUES (?, ?, ?)`,
		SQLite.insertStatement("orders", orderColumns))
	assert.Equal(t,
		`INSERT INTO "orders" ("id", "qty", "due") VALUES ($1, $2, $3)`,
		Postgres.insertStatement("orders", orderColumns))
	assert.Equal(t, `"we""ird"`, quote(`we"ird`))
}

func TestTable_RowsReachDatabaseOnFlush(t *testing.T) {
	tbl := openMemory(t)
	ctx := context.Background()

	addOrder(t, tbl, "A-1", 3)
	addOrder(t, tbl, "A-2", 7.5)

	n, err := tbl.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n, "rows are staged until Flush")

	require.NoError(t, tbl.Flush(ctx))
	assert.Equal(t, map[string]float64{"A-1": 3, "A-2": 7.5}, quantities(t, tbl))

	// Nothing staged: no-op
	require.NoError(t, tbl.Flush(ctx))
	n, err = tbl.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestTable_RemoveAllRowsAppliesWithInserts(t *testing.T) {
	tbl := openMemory(t)
	ctx := context.Background()

	addOrder(t, tbl, "old", 1)
	require.NoError(t, tbl.Flush(ctx))

	require.NoError(t, tbl.RemoveAllRows(ctx))
	addOrder(t, tbl, "new", 2)
	require.NoError(t, tbl.Flush(ctx))

	assert.Equal(t, map[string]float64{"new": 2}, quantities(t, tbl))
}

func TestTable_Discard(t *testing.T) {
	tbl := openMemory(t)
	ctx := context.Background()

	addOrder(t, tbl, "kept", 1)
	require.NoError(t, tbl.Flush(ctx))

	require.NoError(t, tbl.RemoveAllRows(ctx))
	addOrder(t, tbl, "lost", 2)
	tbl.Discard()
	require.NoError(t, tbl.Flush(ctx))

	assert.Equal(t, map[string]float64{"kept": 1}, quantities(t, tbl))
}

func TestTable_UnassignedCellsAreNull(t *testing.T) {
	tbl := openMemory(t)
	ctx := context.Background()

	_, err := tbl.AddRow(ctx)
	require.NoError(t, err)
	require.NoError(t, tbl.Flush(ctx))

	var qty sql.NullFloat64
	require.NoError(t, tbl.db.QueryRow(`SELECT "qty" FROM "orders"`).Scan(&qty))
	assert.False(t, qty.Valid)
}

func TestNew_Validation(t *testing.T) {
	db, err := sql.Open("sqlite", "file::memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	defer db.Close()
	ctx := context.Background()

	_, err = New(ctx, db, SQLite, "", orderColumns, time.Time{}, nil)
	assert.True(t, errors.IsInvalid(err))

	_, err = New(ctx, db, SQLite, "orders", nil, time.Time{}, nil)
	assert.True(t, errors.IsInvalid(err))

	tbl, err := New(ctx, db, SQLite, "orders", orderColumns, time.Time{}, nil)
	require.NoError(t, err)
	assert.Equal(t, orderColumns, tbl.Columns())
	assert.Equal(t, table.DefaultEpoch, tbl.epoch)

	// New does not own db
	require.NoError(t, tbl.Close())
	require.NoError(t, db.Ping())
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle", Table: "t", Columns: orderColumns}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestTable_FlushOnClosedDatabase(t *testing.T) {
	tbl := openMemory(t)
	addOrder(t, tbl, "a", 1)
	require.NoError(t, tbl.db.Close())

	err := tbl.Flush(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrDestinationUnavailable)
	assert.True(t, errors.IsTransient(err))
}
