// Package mysql is the MySQL driver for migrant, built on github.com/go-sql-driver/mysql.
package mysql

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/burugo/migrant"
	"github.com/burugo/migrant/drivers/db"
)

// Server error numbers for missing tables and columns.
const (
	errNoSuchTable   = 1146
	errBadFieldError = 1054
)

// Dialect implements migrant.Dialect for MySQL.
type Dialect struct{}

var _ migrant.Dialect = Dialect{}

func (Dialect) Name() string { return "mysql" }

func (Dialect) Quote(identifier string) string {
	return "`" + strings.ReplaceAll(identifier, "`", "``") + "`"
}

func (Dialect) Placeholder(_ int) string { return "?" }

func (Dialect) IsUndefinedTable(err error) bool { return hasNumber(err, errNoSuchTable) }

func (Dialect) IsUndefinedColumn(err error) bool { return hasNumber(err, errBadFieldError) }

func hasNumber(err error, number uint16) bool {
	var myErr *mysql.MySQLError
	return errors.As(err, &myErr) && myErr.Number == number
}

// Open connects to MySQL. parseTime=true is added to the DSN when missing.
func Open(dsn string, logger *slog.Logger) (*db.Adapter, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, err
	}
	cfg.ParseTime = true
	return db.Open("mysql", cfg.FormatDSN(), Dialect{}, logger)
}
