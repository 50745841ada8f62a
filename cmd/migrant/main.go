// Command migrant applies, inspects and generates schema migrations.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/burugo/migrant"
	"github.com/burugo/migrant/migrate"
	"github.com/burugo/migrant/model"
)

const usage = `usage: migrant [-config=<path>] [-dsn=<string>] [-dialect=<name>] [-dir=<path>] [-app=<name>] <command> [<args>]

Configuration flags override migrant.yaml and the MIGRANT_DSN, MIGRANT_DIALECT
and MIGRANT_APP environment variables.

Schema commands
   migrate [version]   Migrate to version, or to the latest migration
   up                  Apply the next migration
   down                Roll back the current migration
   status              List migrations and whether they are applied
   check               Compare the replayed models with the live tables

Generation commands
   generate [name]     Write the next YAML migration from the models file

Other commands
   help                Display this help message
`

var (
	configFlag  = flag.String("config", "migrant.yaml", "config file path")
	dsnFlag     = flag.String("dsn", "", "database connection string")
	dialectFlag = flag.String("dialect", "", "sqlite, postgres or mysql")
	dirFlag     = flag.String("dir", "", "migrations directory")
	appFlag     = flag.String("app", "", "app name recorded with schema versions")
	formatFlag  = flag.String("format", "", "generate output; only yaml is supported here")
	verboseFlag = flag.Bool("v", false, "log every statement")
)

func main() {
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, "missing command\n\n", usage)
		os.Exit(2)
	}

	level := slog.LevelInfo
	if *verboseFlag {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	switch cmd, rest := args[0], args[1:]; cmd {
	case "migrate", "up", "down", "status", "check":
		err = withApp(cfg, logger, func(app *App) error {
			return runSchemaCommand(ctx, app, cmd, rest)
		})
	case "generate":
		err = generate(ctx, cfg, logger, rest)
	case "help":
		fmt.Print(usage)
	default:
		err = fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		logger.Error("command failed", "command", args[0], "error", err)
		os.Exit(1)
	}
}

func loadConfig() (*migrant.Config, error) {
	cfg, err := migrant.LoadConfig(*configFlag)
	if err != nil {
		return nil, err
	}
	for _, o := range []struct {
		flag string
		dst  *string
	}{
		{*dsnFlag, &cfg.DSN},
		{*dialectFlag, &cfg.Dialect},
		{*dirFlag, &cfg.MigrationsDir},
		{*appFlag, &cfg.App},
		{*formatFlag, &cfg.Format},
	} {
		if o.flag != "" {
			*o.dst = o.flag
		}
	}
	return cfg, nil
}

func withApp(cfg *migrant.Config, logger *slog.Logger, fn func(*App) error) error {
	app, cleanup, err := initializeApp(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()
	return fn(app)
}

func runSchemaCommand(ctx context.Context, app *App, cmd string, args []string) error {
	m := app.Migrations
	switch cmd {
	case "migrate":
		to := m.Latest()
		if len(args) > 0 {
			v, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid version %q: %w", args[0], err)
			}
			to = v
		}
		return m.MigrateTo(ctx, to)
	case "up", "down":
		current, err := m.CurrentVersion(ctx)
		if err != nil {
			return err
		}
		to := current + 1
		if cmd == "down" {
			if current == 0 {
				return errors.New("nothing to roll back")
			}
			to = current - 1
		}
		return m.Migrate(ctx, current, to)
	case "status":
		current, statuses, err := m.Status(ctx)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintf(w, "app %s at version %d\n\n", m.App(), current)
		fmt.Fprintln(w, "VERSION\tNAME\tSTATE\tCHECKSUM")
		for _, s := range statuses {
			state := "pending"
			if s.Applied {
				state = "applied"
			}
			sum := s.Checksum
			if len(sum) > 12 {
				sum = sum[:12]
			}
			fmt.Fprintf(w, "%04d\t%s\t%s\t%s\n", s.Version, s.Name, state, sum)
		}
		return w.Flush()
	case "check":
		drifts, err := m.Check(ctx, app.Introspector)
		if err != nil {
			return err
		}
		if len(drifts) == 0 {
			fmt.Println("schema matches migrations")
			return nil
		}
		for _, d := range drifts {
			switch {
			case d.MissingTable:
				fmt.Printf("%s: table %s is missing\n", d.Model, d.Table)
			default:
				fmt.Printf("%s: table %s missing columns %v, unknown columns %v\n", d.Model, d.Table, d.MissingColumns, d.ExtraColumns)
			}
		}
		return fmt.Errorf("%d tables drifted", len(drifts))
	}
	return fmt.Errorf("unknown command %q", cmd)
}

func generate(ctx context.Context, cfg *migrant.Config, logger *slog.Logger, args []string) error {
	if cfg.Format == migrate.FormatGo {
		return fmt.Errorf("%w: format go is only available through migrate.Generate; "+
			"the generated files must be compiled into your program, which this command cannot load", migrant.ErrInvalidConfig)
	}
	if err := rejectCompiledMigrations(cfg.MigrationsDir); err != nil {
		return err
	}
	data, err := os.ReadFile(cfg.ModelsFile)
	if err != nil {
		return fmt.Errorf("failed to read models file: %w", err)
	}
	declared := model.NewRegistry(nil)
	if err := migrate.Declare(data, declared); err != nil {
		return err
	}

	history := migrate.New(nil, migrate.WithApp(cfg.App), migrate.WithLogger(logger))
	if err := history.LoadMigrations(os.DirFS(cfg.MigrationsDir), "."); err != nil {
		return err
	}
	opts := migrate.GenerateOptions{Format: cfg.Format, GoPackage: cfg.GoPackage}
	if len(args) > 0 {
		opts.Name = args[0]
	}
	res, err := migrate.Generate(ctx, declared, history, migrate.DirDelegate{Dir: cfg.MigrationsDir}, opts)
	if err != nil {
		return err
	}
	if res.UpToDate {
		fmt.Println("up to date")
		return nil
	}
	fmt.Printf("created %s\n", res.FileName)
	return nil
}
