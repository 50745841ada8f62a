package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/burugo/migrant"
	"github.com/burugo/migrant/drivers/db/mysql"
	"github.com/burugo/migrant/drivers/db/postgres"
	"github.com/burugo/migrant/drivers/db/sqlite"
	"github.com/burugo/migrant/migrate"
)

// App holds the dependencies of the database commands.
type App struct {
	Config       *migrant.Config
	DB           migrant.DBAdapter
	Migrations   *migrate.Migrations
	Introspector migrant.Introspector
	Logger       *slog.Logger
}

// provideDBAdapter opens the configured database. Includes cleanup.
func provideDBAdapter(cfg *migrant.Config, logger *slog.Logger) (migrant.DBAdapter, func(), error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	var (
		db  migrant.DBAdapter
		err error
	)
	switch cfg.Dialect {
	case "sqlite":
		db, err = sqlite.Open(cfg.DSN, logger)
	case "postgres":
		db, err = postgres.Open(cfg.DSN, logger)
	case "mysql":
		db, err = mysql.Open(cfg.DSN, logger)
	default:
		err = fmt.Errorf("%w: %s", migrant.ErrUnsupportedDialect, cfg.Dialect)
	}
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() {
		if err := db.Close(); err != nil {
			logger.Error("failed to close database", "error", err)
		}
	}
	return db, cleanup, nil
}

// provideIntrospector returns the introspector of the configured dialect.
func provideIntrospector(cfg *migrant.Config) (migrant.Introspector, error) {
	switch cfg.Dialect {
	case "sqlite":
		return sqlite.Introspector{}, nil
	case "postgres":
		return postgres.Introspector{}, nil
	case "mysql":
		return mysql.Introspector{}, nil
	}
	return nil, fmt.Errorf("%w: %s", migrant.ErrUnsupportedDialect, cfg.Dialect)
}

// provideMigrations loads the migration chain from the configured directory.
func provideMigrations(db migrant.DBAdapter, cfg *migrant.Config, logger *slog.Logger) (*migrate.Migrations, error) {
	if err := rejectCompiledMigrations(cfg.MigrationsDir); err != nil {
		return nil, err
	}
	m := migrate.New(db, migrate.WithApp(cfg.App), migrate.WithLogger(logger))
	if err := m.LoadMigrations(os.DirFS(cfg.MigrationsDir), "."); err != nil {
		return nil, err
	}
	return m, nil
}

// rejectCompiledMigrations fails when dir holds Go migrations. They register
// themselves through migrate.Register and only run inside the program they are
// compiled into, so this command would silently skip them.
func rejectCompiledMigrations(dir string) error {
	matches, err := filepath.Glob(filepath.Join(dir, "[0-9]*_*.go"))
	if err != nil {
		return err
	}
	if len(matches) > 0 {
		return fmt.Errorf("%w: %s holds Go migrations such as %s; run them from your program with Migrations.LoadRegistered",
			migrant.ErrInvalidConfig, dir, filepath.Base(matches[0]))
	}
	return nil
}
