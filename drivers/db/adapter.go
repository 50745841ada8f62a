// Package db provides the sqlx-backed adapter shared by the dialect drivers.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/burugo/migrant"
)

const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 5 * time.Minute
	pingTimeout            = 5 * time.Second
)

// Adapter implements migrant.DBAdapter on top of sqlx.
// Queries use '?' placeholders and are rebound for the driver.
type Adapter struct {
	db      *sqlx.DB
	dialect migrant.Dialect
	logger  *slog.Logger
	closeMx sync.Mutex
	closed  bool
}

// Ensure Adapter implements migrant.DBAdapter.
var _ migrant.DBAdapter = (*Adapter)(nil)

// Open connects with the given database/sql driver name, configures the pool and pings the database.
func Open(driverName, dsn string, dialect migrant.Dialect, logger *slog.Logger) (*Adapter, error) {
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s connection: %w", dialect.Name(), err)
	}
	db.SetMaxOpenConns(defaultMaxOpenConns)
	db.SetMaxIdleConns(defaultMaxIdleConns)
	db.SetConnMaxLifetime(defaultConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping %s database: %w", dialect.Name(), err)
	}
	a := NewAdapter(db.DB, driverName, dialect, logger)
	a.log().Info("database adapter initialized", "dialect", dialect.Name())
	return a, nil
}

// NewAdapter wraps an existing *sql.DB. driverName selects the placeholder style.
func NewAdapter(db *sql.DB, driverName string, dialect migrant.Dialect, logger *slog.Logger) *Adapter {
	return &Adapter{db: sqlx.NewDb(db, driverName), dialect: dialect, logger: logger}
}

func (a *Adapter) log() *slog.Logger {
	if a.logger == nil {
		return slog.Default()
	}
	return a.logger
}

func (a *Adapter) isClosed() bool {
	a.closeMx.Lock()
	defer a.closeMx.Unlock()
	return a.closed
}

// Get scans a single row into dest. No row yields sql.ErrNoRows.
func (a *Adapter) Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	if a.isClosed() {
		return errAdapterClosed
	}
	return get(ctx, a.db, a.log(), dest, query, args)
}

// Select scans all rows into the slice pointed to by dest.
func (a *Adapter) Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	if a.isClosed() {
		return errAdapterClosed
	}
	return selectRows(ctx, a.db, a.log(), dest, query, args)
}

// Exec runs a statement outside any transaction.
func (a *Adapter) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	if a.isClosed() {
		return nil, errAdapterClosed
	}
	return exec(ctx, a.db, a.log(), query, args)
}

// BeginTx starts a transaction.
func (a *Adapter) BeginTx(ctx context.Context, opts *sql.TxOptions) (migrant.Tx, error) {
	if a.isClosed() {
		return nil, errAdapterClosed
	}
	tx, err := a.db.BeginTxx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	a.log().Debug("transaction started")
	return &Tx{tx: tx, logger: a.log()}, nil
}

// Close closes the connection pool. Closing twice is a no-op.
func (a *Adapter) Close() error {
	a.closeMx.Lock()
	defer a.closeMx.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.db.Close()
}

func (a *Adapter) DB() *sql.DB { return a.db.DB }

func (a *Adapter) Dialect() migrant.Dialect { return a.dialect }

// Tx implements migrant.Tx.
type Tx struct {
	tx     *sqlx.Tx
	logger *slog.Logger
}

func (t *Tx) Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return get(ctx, t.tx, t.logger, dest, query, args)
}

func (t *Tx) Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return selectRows(ctx, t.tx, t.logger, dest, query, args)
}

func (t *Tx) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return exec(ctx, t.tx, t.logger, query, args)
}

func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	t.logger.Debug("transaction committed")
	return nil
}

func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	t.logger.Debug("transaction rolled back")
	return nil
}

var errAdapterClosed = errors.New("adapter is closed")

// queryer is the part of *sqlx.DB and *sqlx.Tx used here.
type queryer interface {
	sqlx.ExtContext
	Rebind(query string) string
}

// rebind rewrites ? bind variables for the driver. Statements without
// arguments run as written, so a literal ? in DDL or raw SQL survives.
func rebind(q queryer, query string, args []interface{}) string {
	if len(args) == 0 {
		return query
	}
	return q.Rebind(query)
}

func get(ctx context.Context, q queryer, logger *slog.Logger, dest interface{}, query string, args []interface{}) error {
	query = rebind(q, query, args)
	start := time.Now()
	err := sqlx.GetContext(ctx, q, dest, query, args...)
	logger.Debug("db get", "sql", query, "args", args, "duration", time.Since(start), "error", err)
	return err
}

func selectRows(ctx context.Context, q queryer, logger *slog.Logger, dest interface{}, query string, args []interface{}) error {
	query = rebind(q, query, args)
	start := time.Now()
	err := sqlx.SelectContext(ctx, q, dest, query, args...)
	logger.Debug("db select", "sql", query, "args", args, "duration", time.Since(start), "error", err)
	return err
}

func exec(ctx context.Context, q queryer, logger *slog.Logger, query string, args []interface{}) (sql.Result, error) {
	query = rebind(q, query, args)
	start := time.Now()
	res, err := q.ExecContext(ctx, query, args...)
	logger.Debug("db exec", "sql", query, "args", args, "duration", time.Since(start), "error", err)
	return res, err
}
