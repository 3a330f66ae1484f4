// Package sqltable implements a destination table backed by a SQL database.
//
// Rows added during a drain are staged in memory and written by Flush in a
// single transaction, together with a pending RemoveAllRows. A drain that
// fails calls Discard instead, so the database never sees a partial drain.
package sqltable

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/SimioLLC/WebAPISync/errors"
	"github.com/SimioLLC/WebAPISync/table"
)

// Config describes the destination table
type Config struct {
	Driver  string
	DSN     string
	Table   string
	Columns []table.ColumnSpec
	Epoch   time.Time
}

// Table is a table.Destination writing to a SQL table.
type Table struct {
	db      *sql.DB
	owned   bool
	dialect Dialect
	name    string
	columns []table.ColumnSpec
	epoch   time.Time
	insert  string
	logger  *slog.Logger

	mu     sync.Mutex
	staged [][]table.Value
	clear  bool
}

var (
	_ table.Destination = (*Table)(nil)
	_ table.Flusher     = (*Table)(nil)
)

// Open connects to cfg.DSN and creates the table when missing.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*Table, error) {
	dialect, err := DialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(dialect.Driver, cfg.DSN)
	if err != nil {
		return nil, errors.WrapFatal(err, "sqltable", "Open", fmt.Sprintf("open %s", dialect.Driver))
	}
	if dialect == SQLite {
		// SQLite allows one writer
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(5)
		db.SetMaxIdleConns(2)
		db.SetConnMaxLifetime(10 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, errors.WrapTransient(errors.Detail(errors.ErrDestinationUnavailable, err), "sqltable", "Open", "ping database")
	}

	t, err := New(ctx, db, dialect, cfg.Table, cfg.Columns, cfg.Epoch, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	t.owned = true
	return t, nil
}

// New wraps an open database. The caller keeps ownership of db.
func New(ctx context.Context, db *sql.DB, dialect Dialect, name string, columns []table.ColumnSpec,
	epoch time.Time, logger *slog.Logger) (*Table, error) {
	if name == "" {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "sqltable", "New", "require table name")
	}
	if len(columns) == 0 {
		return nil, errors.WrapInvalid(errors.ErrMissingConfig, "sqltable", "New", "require at least one column")
	}
	if epoch.IsZero() {
		epoch = table.DefaultEpoch
	}
	if logger == nil {
		logger = slog.Default()
	}

	t := &Table{
		db:      db,
		dialect: dialect,
		name:    name,
		columns: append([]table.ColumnSpec(nil), columns...),
		epoch:   epoch,
		insert:  dialect.insertStatement(name, columns),
		logger:  logger.With("component", "sqltable", "table", name),
	}
	if _, err := db.ExecContext(ctx, dialect.createStatement(name, columns)); err != nil {
		return nil, errors.WrapFatal(err, "sqltable", "New", "create table")
	}
	return t, nil
}

// Columns returns the column declarations.
func (t *Table) Columns() []table.ColumnSpec {
	return append([]table.ColumnSpec(nil), t.columns...)
}

// AddRow stages a new row. It reaches the database on Flush.
func (t *Table) AddRow(_ context.Context) (table.Row, error) {
	row, values := table.NewRow(t.columns, t.epoch)
	t.mu.Lock()
	t.staged = append(t.staged, values)
	t.mu.Unlock()
	return row, nil
}

// RemoveAllRows schedules a delete of every stored row, and drops rows
// staged so far. It takes effect on Flush.
func (t *Table) RemoveAllRows(_ context.Context) error {
	t.mu.Lock()
	t.staged = nil
	t.clear = true
	t.mu.Unlock()
	return nil
}

// Flush applies the pending delete and inserts in one transaction.
func (t *Table) Flush(ctx context.Context) error {
	t.mu.Lock()
	staged, clear := t.staged, t.clear
	t.staged, t.clear = nil, false
	t.mu.Unlock()

	if len(staged) == 0 && !clear {
		return nil
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WrapTransient(errors.Detail(errors.ErrDestinationUnavailable, err), "sqltable", "Flush", "begin transaction")
	}
	defer tx.Rollback()

	if clear {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+quote(t.name)); err != nil {
			return errors.WrapTransient(err, "sqltable", "Flush", "delete rows")
		}
	}

	if len(staged) > 0 {
		stmt, err := tx.PrepareContext(ctx, t.insert)
		if err != nil {
			return errors.WrapTransient(err, "sqltable", "Flush", "prepare insert")
		}
		defer stmt.Close()

		args := make([]any, len(t.columns))
		for _, row := range staged {
			for i, v := range row {
				args[i] = v.Native()
			}
			if _, err := stmt.ExecContext(ctx, args...); err != nil {
				return errors.WrapTransient(err, "sqltable", "Flush", "insert row")
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.WrapTransient(err, "sqltable", "Flush", "commit")
	}
	t.logger.Debug("Flushed rows", "rows", len(staged), "cleared", clear)
	return nil
}

// Discard drops staged rows and any pending delete.
func (t *Table) Discard() {
	t.mu.Lock()
	t.staged, t.clear = nil, false
	t.mu.Unlock()
}

// Count returns the number of stored rows.
func (t *Table) Count(ctx context.Context) (int, error) {
	var n int
	if err := t.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quote(t.name)).Scan(&n); err != nil {
		return 0, errors.WrapTransient(err, "sqltable", "Count", "count rows")
	}
	return n, nil
}

// Close closes the database when Open created it.
func (t *Table) Close() error {
	if !t.owned {
		return nil
	}
	return t.db.Close()
}
