package mysql

import (
	"context"
	"fmt"

	"github.com/burugo/migrant"
)

// Introspector implements migrant.Introspector for MySQL via information_schema.
type Introspector struct{}

type columnRow struct {
	Name       string `db:"COLUMN_NAME"`
	ColumnType string `db:"COLUMN_TYPE"`
	IsNullable string `db:"IS_NULLABLE"`
	ColumnKey  string `db:"COLUMN_KEY"`
}

// GetTableInfo introspects the given table in the current database.
func (Introspector) GetTableInfo(ctx context.Context, exec migrant.Execer, tableName string) (*migrant.TableInfo, error) {
	var rows []columnRow
	query := `SELECT COLUMN_NAME, COLUMN_TYPE, IS_NULLABLE, COLUMN_KEY
		FROM information_schema.columns
		WHERE table_schema = DATABASE() AND table_name = ?
		ORDER BY ordinal_position`
	if err := exec.Select(ctx, &rows, query, tableName); err != nil {
		return nil, fmt.Errorf("information_schema.columns failed: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", migrant.ErrTableNotFound, tableName)
	}
	info := &migrant.TableInfo{Name: tableName}
	for _, r := range rows {
		col := migrant.ColumnInfo{
			Name:       r.Name,
			DataType:   r.ColumnType,
			IsNullable: r.IsNullable == "YES",
			IsPrimary:  r.ColumnKey == "PRI",
		}
		if col.IsPrimary && info.PrimaryKey == "" {
			info.PrimaryKey = r.Name
		}
		info.Columns = append(info.Columns, col)
	}
	return info, nil
}
