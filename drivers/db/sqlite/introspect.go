package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/burugo/migrant"
)

// Introspector implements migrant.Introspector for SQLite using PRAGMA table_info.
type Introspector struct{}

type pragmaColumn struct {
	CID       int            `db:"cid"`
	Name      string         `db:"name"`
	Type      string         `db:"type"`
	NotNull   int            `db:"notnull"`
	DfltValue sql.NullString `db:"dflt_value"`
	PK        int            `db:"pk"`
}

// GetTableInfo introspects the given table.
func (Introspector) GetTableInfo(ctx context.Context, exec migrant.Execer, tableName string) (*migrant.TableInfo, error) {
	var rows []pragmaColumn
	query := fmt.Sprintf("PRAGMA table_info(%s)", Dialect{}.Quote(tableName))
	if err := exec.Select(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("PRAGMA table_info(%s): %w", tableName, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %s", migrant.ErrTableNotFound, tableName)
	}
	info := &migrant.TableInfo{Name: tableName}
	for _, r := range rows {
		col := migrant.ColumnInfo{
			Name:       r.Name,
			DataType:   r.Type,
			IsNullable: r.NotNull == 0 && r.PK == 0,
			IsPrimary:  r.PK > 0,
		}
		if col.IsPrimary && info.PrimaryKey == "" {
			info.PrimaryKey = r.Name
		}
		info.Columns = append(info.Columns, col)
	}
	return info, nil
}
