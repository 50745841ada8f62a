// Package sqlite is the SQLite driver for migrant.
// Open uses the cgo driver github.com/mattn/go-sqlite3; OpenPure uses the pure Go modernc.org/sqlite.
package sqlite

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite" // Pure Go SQLite driver, registered as "sqlite"

	"github.com/burugo/migrant"
	"github.com/burugo/migrant/drivers/db"
)

// Dialect implements migrant.Dialect for SQLite.
type Dialect struct{}

var _ migrant.Dialect = Dialect{}

func (Dialect) Name() string { return "sqlite" }

func (Dialect) Quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

func (Dialect) Placeholder(_ int) string { return "?" }

// IsUndefinedTable matches "no such table" from either driver.
func (Dialect) IsUndefinedTable(err error) bool {
	return isSQLiteError(err, "no such table")
}

// IsUndefinedColumn matches "no such column" from either driver.
func (Dialect) IsUndefinedColumn(err error) bool {
	return isSQLiteError(err, "no such column")
}

func isSQLiteError(err error, msg string) bool {
	if err == nil {
		return false
	}
	var serr sqlite3.Error
	if errors.As(err, &serr) && serr.Code != sqlite3.ErrError {
		return false
	}
	return strings.Contains(err.Error(), msg)
}

// Open opens a SQLite database with the cgo driver.
func Open(dsn string, logger *slog.Logger) (*db.Adapter, error) {
	return open("sqlite3", dsn, logger)
}

// OpenPure opens a SQLite database with the pure Go driver.
func OpenPure(dsn string, logger *slog.Logger) (*db.Adapter, error) {
	return open("sqlite", dsn, logger)
}

func open(driverName, dsn string, logger *slog.Logger) (*db.Adapter, error) {
	a, err := db.Open(driverName, dsn, Dialect{}, logger)
	if err != nil {
		return nil, err
	}
	// One connection keeps ":memory:" databases and transactions on the same handle.
	a.DB().SetMaxOpenConns(1)
	return a, nil
}
