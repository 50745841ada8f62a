package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burugo/migrant"
	"github.com/burugo/migrant/drivers/db"
)

func TestDialect(t *testing.T) {
	d := Dialect{}
	assert.Equal(t, "postgres", d.Name())
	assert.Equal(t, `"order"`, d.Quote("order"))
	assert.Equal(t, "$2", d.Placeholder(2))

	missingTable := fmt.Errorf("query failed: %w", &pq.Error{Code: "42P01"})
	missingColumn := &pq.Error{Code: "42703"}
	assert.True(t, d.IsUndefinedTable(missingTable))
	assert.False(t, d.IsUndefinedColumn(missingTable))
	assert.True(t, d.IsUndefinedColumn(missingColumn))
	assert.False(t, d.IsUndefinedTable(errors.New(`relation "x" does not exist`)))
}

func TestIntrospector(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	a := db.NewAdapter(sqlDB, "postgres", Dialect{}, nil)

	mock.ExpectQuery(regexp.QuoteMeta("FROM information_schema.columns")).
		WithArgs("users").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable"}).
			AddRow("id", "bigint", "NO").
			AddRow("name", "character varying", "YES"))
	mock.ExpectQuery(regexp.QuoteMeta("$1::regclass")).
		WithArgs("users").
		WillReturnRows(sqlmock.NewRows([]string{"attname"}).AddRow("id"))

	info, err := Introspector{}.GetTableInfo(context.Background(), a, "users")
	require.NoError(t, err)
	assert.Equal(t, "id", info.PrimaryKey)
	assert.Equal(t, []migrant.ColumnInfo{
		{Name: "id", DataType: "bigint", IsPrimary: true},
		{Name: "name", DataType: "character varying", IsNullable: true},
	}, info.Columns)

	mock.ExpectQuery("information_schema.columns").
		WithArgs("ghosts").
		WillReturnRows(sqlmock.NewRows([]string{"column_name", "data_type", "is_nullable"}))
	_, err = Introspector{}.GetTableInfo(context.Background(), a, "ghosts")
	assert.ErrorIs(t, err, migrant.ErrTableNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
