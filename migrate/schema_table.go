package migrate

import (
	"context"
	"fmt"

	"github.com/burugo/migrant"
)

// schemaTable holds one row per applied migration and app.
const schemaTable = "schemas"

func (r *Migrations) ensureSchemaTable(ctx context.Context, exec migrant.Execer) error {
	q := r.db.Dialect().Quote
	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s INTEGER NOT NULL, %s VARCHAR(255))",
		q(schemaTable), q("version"), q("app"))
	if _, err := exec.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("failed to create %s table: %w", schemaTable, err)
	}
	return nil
}

func (r *Migrations) insertVersion(ctx context.Context, exec migrant.Execer, version int64) error {
	d := r.db.Dialect()
	q := d.Quote
	query := fmt.Sprintf("INSERT INTO %s (%s, %s) VALUES (%s, %s)",
		q(schemaTable), q("version"), q("app"), d.Placeholder(1), d.Placeholder(2))
	if _, err := exec.Exec(ctx, query, version, r.app); err != nil {
		return fmt.Errorf("failed to record version %d: %w", version, err)
	}
	return nil
}

func (r *Migrations) deleteVersion(ctx context.Context, exec migrant.Execer, version int64) error {
	d := r.db.Dialect()
	q := d.Quote
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = %s AND %s = %s",
		q(schemaTable), q("version"), d.Placeholder(1), q("app"), d.Placeholder(2))
	if _, err := exec.Exec(ctx, query, version, r.app); err != nil {
		return fmt.Errorf("failed to remove version %d: %w", version, err)
	}
	return nil
}

// CurrentVersion returns the highest applied version for the app, or 0.
// A missing schemas table or app column means nothing was applied yet.
// Rows without an app make ownership ambiguous and fail with ErrAmbiguousSchema.
func (r *Migrations) CurrentVersion(ctx context.Context) (int64, error) {
	if r.db == nil {
		return 0, migrant.ErrDatabaseNotSet
	}
	d := r.db.Dialect()
	q := d.Quote

	var versions []int64
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s ORDER BY %s DESC LIMIT 1",
		q("version"), q(schemaTable), q("app"), d.Placeholder(1), q("version"))
	if err := r.db.Select(ctx, &versions, query, r.app); err != nil {
		if d.IsUndefinedTable(err) || d.IsUndefinedColumn(err) {
			return 0, nil
		}
		return 0, err
	}
	if len(versions) > 0 {
		return versions[0], nil
	}

	var legacy []int64
	query = fmt.Sprintf("SELECT %s FROM %s WHERE %s IS NULL LIMIT 1", q("version"), q(schemaTable), q("app"))
	if err := r.db.Select(ctx, &legacy, query); err != nil {
		return 0, err
	}
	if len(legacy) > 0 {
		return 0, fmt.Errorf("%w (app %q)", migrant.ErrAmbiguousSchema, r.app)
	}
	return 0, nil
}
