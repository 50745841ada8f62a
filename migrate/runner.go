// Package migrate records, orders and runs versioned schema migrations against
// the model graph, and generates new migrations from model declarations.
package migrate

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/burugo/migrant"
	"github.com/burugo/migrant/model"
)

// DefaultApp is the schema-version discriminator used when none is configured.
const DefaultApp = migrant.DefaultApp

// Migrations is the ordered migration chain of one app plus the model graph it builds.
type Migrations struct {
	db       migrant.DBAdapter
	registry *model.Registry
	app      string
	logger   *slog.Logger
	list     []*Migration
	active   *Migration
}

// Option configures Migrations.
type Option func(*Migrations)

// WithApp sets the app discriminator stored with every schema version.
func WithApp(app string) Option {
	return func(r *Migrations) {
		if app != "" {
			r.app = app
		}
	}
}

// WithLogger sets the logger. nil means slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(r *Migrations) { r.logger = logger }
}

// WithRegistry sets the model graph migrations operate on.
func WithRegistry(reg *model.Registry) Option {
	return func(r *Migrations) { r.registry = reg }
}

// New creates an empty chain. db may be nil when only replaying or generating.
func New(db migrant.DBAdapter, opts ...Option) *Migrations {
	r := &Migrations{db: db, app: DefaultApp}
	for _, opt := range opts {
		opt(r)
	}
	if r.registry == nil {
		var dialect migrant.Dialect
		if db != nil {
			dialect = db.Dialect()
		}
		r.registry = model.NewRegistry(dialect)
	}
	if db != nil {
		r.registry.Bind(db)
	}
	return r
}

func (r *Migrations) log() *slog.Logger {
	if r.logger == nil {
		return slog.Default().With("component", "migrate")
	}
	return r.logger
}

// Registry returns the model graph.
func (r *Migrations) Registry() *model.Registry { return r.registry }

// App returns the app discriminator.
func (r *Migrations) App() string { return r.app }

// Active returns the migration currently recording, or nil.
func (r *Migrations) Active() *Migration { return r.active }

// List returns the migrations in ascending version order.
func (r *Migrations) List() []*Migration { return append([]*Migration(nil), r.list...) }

// Latest returns the highest known version, or 0.
func (r *Migrations) Latest() int64 {
	if len(r.list) == 0 {
		return 0
	}
	return r.list[len(r.list)-1].Version
}

// AddMigration adds a migration to the chain. Both up and down are required.
func (r *Migrations) AddMigration(name string, version int64, checksum string, up, down StepFunc) (*Migration, error) {
	if up == nil || down == nil {
		return nil, fmt.Errorf("%w: %d_%s", migrant.ErrIncompleteMigration, version, name)
	}
	for _, m := range r.list {
		if m.Version == version {
			return nil, fmt.Errorf("%w: %d (%s and %s)", migrant.ErrDuplicateVersion, version, m.Name, name)
		}
	}
	m := &Migration{Version: version, Name: name, Checksum: checksum, up: up, down: down, owner: r}
	r.list = append(r.list, m)
	sort.SliceStable(r.list, func(i, j int) bool { return r.list[i].Version < r.list[j].Version })
	return m, nil
}

// Migrate moves the schema from version from to version to. Every version in
// between must have exactly one migration; a gap fails before any query runs.
func (r *Migrations) Migrate(ctx context.Context, from, to int64) error {
	if from == to {
		return fmt.Errorf("%w: %d", migrant.ErrSameVersion, from)
	}
	dir := Up
	lo, hi := from, to
	if to < from {
		dir = Down
		lo, hi = to, from
	}
	var selected []*Migration
	for _, m := range r.list {
		if m.Version > lo && m.Version <= hi {
			selected = append(selected, m)
		}
	}
	if int64(len(selected)) != hi-lo {
		return fmt.Errorf("%w: found %d migrations between %d and %d, need %d",
			migrant.ErrVersionGap, len(selected), from, to, hi-lo)
	}
	if dir == Down {
		for i, j := 0, len(selected)-1; i < j; i, j = i+1, j-1 {
			selected[i], selected[j] = selected[j], selected[i]
		}
	}

	if err := r.SoftMigrate(ctx, from); err != nil {
		return err
	}
	r.log().Info("migrating", "app", r.app, "from", from, "to", to)
	for _, m := range selected {
		if err := m.Go(ctx, dir); err != nil {
			return err
		}
	}
	return nil
}

// MigrateTo moves the schema from the current version to version to.
func (r *Migrations) MigrateTo(ctx context.Context, to int64) error {
	from, err := r.CurrentVersion(ctx)
	if err != nil {
		return err
	}
	if from == to {
		r.log().Info("schema is up to date", "app", r.app, "version", from)
		return nil
	}
	return r.Migrate(ctx, from, to)
}

// SoftMigrate rebuilds the model graph as of version upTo by replaying
// migrations without database I/O.
func (r *Migrations) SoftMigrate(ctx context.Context, upTo int64) error {
	r.registry.Reset()
	for _, m := range r.list {
		if m.Version > upTo {
			break
		}
		if err := m.Soft(ctx); err != nil {
			return err
		}
	}
	return nil
}

// MigrationStatus describes one migration relative to the current version.
type MigrationStatus struct {
	Version  int64
	Name     string
	Checksum string
	Applied  bool
}

// Status lists every migration and whether it is applied.
func (r *Migrations) Status(ctx context.Context) (current int64, statuses []MigrationStatus, err error) {
	current, err = r.CurrentVersion(ctx)
	if err != nil {
		return 0, nil, err
	}
	for _, m := range r.list {
		statuses = append(statuses, MigrationStatus{
			Version:  m.Version,
			Name:     m.Name,
			Checksum: m.Checksum,
			Applied:  m.Version <= current,
		})
	}
	return current, statuses, nil
}
