// interfaces.go
// Core interfaces for migrant: DBAdapter, Tx, Execer, Dialect, Introspector.
// These are public and intended for use by the engine, the CLI and driver developers.

package migrant

import (
	"context"
	"database/sql"
)

// Execer is the subset of DBAdapter and Tx used to run DDL and schema-version queries.
// Query strings use '?' placeholders; adapters rebind them for their driver.
type Execer interface {
	Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// DBAdapter defines the interface for database drivers.
type DBAdapter interface {
	Execer
	BeginTx(ctx context.Context, opts *sql.TxOptions) (Tx, error)
	Close() error
	DB() *sql.DB
	Dialect() Dialect
}

// Tx defines the interface for transaction operations.
type Tx interface {
	Execer
	Commit() error
	Rollback() error
}

// Dialect describes how to talk to a specific SQL database.
type Dialect interface {
	Name() string                   // "sqlite", "postgres" or "mysql"
	Quote(identifier string) string // Quote a SQL identifier (table/column name)
	Placeholder(index int) string   // Bind variable placeholder (e.g. ?, $1)

	// IsUndefinedTable reports whether err means the queried table does not exist.
	IsUndefinedTable(err error) bool
	// IsUndefinedColumn reports whether err means the queried column does not exist.
	IsUndefinedColumn(err error) bool
}

// Introspector reads the live structure of a table.
type Introspector interface {
	// GetTableInfo introspects the given table. It returns ErrTableNotFound when the table is missing.
	GetTableInfo(ctx context.Context, db Execer, tableName string) (*TableInfo, error)
}

// TableInfo holds the actual schema info introspected from the database.
type TableInfo struct {
	Name       string       // Table name
	Columns    []ColumnInfo // All columns
	PrimaryKey string       // Primary key column name (if any)
}

// ColumnInfo holds metadata for a single column in a table.
type ColumnInfo struct {
	Name       string // Column name
	DataType   string // Database type (e.g., INT, VARCHAR(255))
	IsNullable bool   // Whether the column is nullable
	IsPrimary  bool   // Whether this column is the primary key
}

// HasColumn reports whether the table has a column with the given name.
func (t *TableInfo) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c.Name == name {
			return true
		}
	}
	return false
}
