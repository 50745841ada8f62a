package migrate

import (
	"context"
	"errors"
	"sort"

	"github.com/burugo/migrant"
)

// Drift is a difference between a replayed model and its live table.
type Drift struct {
	Model          string
	Table          string
	MissingTable   bool
	MissingColumns []string // Expected by the model, absent from the table
	ExtraColumns   []string // Present in the table, unknown to the model
}

// Check replays migrations up to the current version and compares every
// model's columns with the live table. It returns only the models that differ.
func (r *Migrations) Check(ctx context.Context, insp migrant.Introspector) ([]Drift, error) {
	current, err := r.CurrentVersion(ctx)
	if err != nil {
		return nil, err
	}
	if err := r.SoftMigrate(ctx, current); err != nil {
		return nil, err
	}

	var drifts []Drift
	for _, m := range r.registry.Models() {
		d := Drift{Model: m.Name(), Table: m.Table()}
		info, err := insp.GetTableInfo(ctx, r.db, m.Table())
		if errors.Is(err, migrant.ErrTableNotFound) {
			d.MissingTable = true
			drifts = append(drifts, d)
			continue
		}
		if err != nil {
			return nil, err
		}

		expected := map[string]bool{"id": true}
		for _, p := range m.Columns() {
			expected[p.Column()] = true
		}
		for col := range expected {
			if !info.HasColumn(col) {
				d.MissingColumns = append(d.MissingColumns, col)
			}
		}
		for _, c := range info.Columns {
			if !expected[c.Name] {
				d.ExtraColumns = append(d.ExtraColumns, c.Name)
			}
		}
		if len(d.MissingColumns)+len(d.ExtraColumns) > 0 {
			sort.Strings(d.MissingColumns)
			drifts = append(drifts, d)
		}
	}
	r.log().Info("schema check finished", "version", current, "drifted", len(drifts))
	return drifts, nil
}
