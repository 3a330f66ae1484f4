package sqltable

import (
	"fmt"
	"strings"

	"github.com/SimioLLC/WebAPISync/errors"
	"github.com/SimioLLC/WebAPISync/table"
)

// Dialect captures the SQL differences between the supported databases.
type Dialect struct {
	Driver     string
	realType   string
	timeType   string
	textType   string
	positional bool // $1, $2 placeholders instead of ?
}

var (
	// SQLite uses the pure-Go modernc.org/sqlite driver.
	SQLite = Dialect{Driver: "sqlite", realType: "REAL", timeType: "DATETIME", textType: "TEXT"}
	// Postgres uses github.com/lib/pq.
	Postgres = Dialect{Driver: "postgres", realType: "DOUBLE PRECISION", timeType: "TIMESTAMPTZ", textType: "TEXT", positional: true}
)

// DialectFor maps a configured driver name to its dialect.
func DialectFor(driver string) (Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "sqlite", "sqlite3":
		return SQLite, nil
	case "postgres", "postgresql", "pq":
		return Postgres, nil
	default:
		return Dialect{}, errors.WrapInvalid(fmt.Errorf("unsupported driver %q", driver),
			"sqltable", "DialectFor", "resolve dialect")
	}
}

func (d Dialect) placeholder(i int) string {
	if d.positional {
		return fmt.Sprintf("$%d", i)
	}
	return "?"
}

func (d Dialect) columnType(k table.Kind) string {
	switch k {
	case table.KindReal:
		return d.realType
	case table.KindDateTime:
		return d.timeType
	default:
		return d.textType
	}
}

// quote quotes a possibly schema-qualified identifier.
func quote(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = `"` + strings.ReplaceAll(p, `"`, `""`) + `"`
	}
	return strings.Join(parts, ".")
}

func (d Dialect) createStatement(name string, columns []table.ColumnSpec) string {
	defs := make([]string, len(columns))
	for i, c := range columns {
		defs[i] = quote(c.Name) + " " + d.columnType(c.Kind)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quote(name), strings.Join(defs, ", "))
}

func (d Dialect) insertStatement(name string, columns []table.ColumnSpec) string {
	names := make([]string, len(columns))
	marks := make([]string, len(columns))
	for i, c := range columns {
		names[i] = quote(c.Name)
		marks[i] = d.placeholder(i + 1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(name), strings.Join(names, ", "), strings.Join(marks, ", "))
}
