// Package postgres is the PostgreSQL driver for migrant, built on github.com/lib/pq.
package postgres

import (
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/lib/pq"

	"github.com/burugo/migrant"
	"github.com/burugo/migrant/drivers/db"
)

// SQLSTATE codes for missing relations and columns.
const (
	codeUndefinedTable  = "42P01"
	codeUndefinedColumn = "42703"
)

// Dialect implements migrant.Dialect for PostgreSQL.
type Dialect struct{}

var _ migrant.Dialect = Dialect{}

func (Dialect) Name() string { return "postgres" }

func (Dialect) Quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

func (Dialect) Placeholder(index int) string { return "$" + strconv.Itoa(index) }

func (Dialect) IsUndefinedTable(err error) bool { return hasCode(err, codeUndefinedTable) }

func (Dialect) IsUndefinedColumn(err error) bool { return hasCode(err, codeUndefinedColumn) }

func hasCode(err error, code string) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == code
}

// Open connects to PostgreSQL. dsn is any connection string lib/pq accepts.
func Open(dsn string, logger *slog.Logger) (*db.Adapter, error) {
	return db.Open("postgres", dsn, Dialect{}, logger)
}
