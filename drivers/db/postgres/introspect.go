package postgres

import (
	"context"
	"fmt"

	"github.com/burugo/migrant"
)

// Introspector implements migrant.Introspector for PostgreSQL via information_schema.
type Introspector struct{}

type columnRow struct {
	Name       string `db:"column_name"`
	DataType   string `db:"data_type"`
	IsNullable string `db:"is_nullable"`
}

// GetTableInfo introspects the given table in the current schema.
func (Introspector) GetTableInfo(ctx context.Context, exec migrant.Execer, tableName string) (*migrant.TableInfo, error) {
	var rows []columnRow
	colQuery := `SELECT column_name, data_type, is_nullable
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = ?
		ORDER BY ordinal_position`
	if err := exec.Select(ctx, &rows, colQuery, tableName); err != nil {
		return nil, fmt.Errorf("information_schema.columns failed: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", migrant.ErrTableNotFound, tableName)
	}

	var pkCols []string
	pkQuery := `SELECT a.attname
		FROM pg_index i
		JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
		WHERE i.indrelid = ?::regclass AND i.indisprimary`
	if err := exec.Select(ctx, &pkCols, pkQuery, tableName); err != nil {
		return nil, fmt.Errorf("pg_index primary key: %w", err)
	}

	info := &migrant.TableInfo{Name: tableName}
	if len(pkCols) > 0 {
		info.PrimaryKey = pkCols[0]
	}
	for _, r := range rows {
		info.Columns = append(info.Columns, migrant.ColumnInfo{
			Name:       r.Name,
			DataType:   r.DataType,
			IsNullable: r.IsNullable == "YES",
			IsPrimary:  r.Name == info.PrimaryKey,
		})
	}
	return info, nil
}
