package migrate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burugo/migrant/drivers/db/sqlite"
)

func TestCheck(t *testing.T) {
	ctx := context.Background()
	a := openSQLite(t)
	r := New(a, WithLogger(quietLogger()))
	require.NoError(t, r.LoadMigrations(blogFS, "migrations"))
	require.NoError(t, r.Migrate(ctx, 0, 3))

	drifts, err := r.Check(ctx, sqlite.Introspector{})
	require.NoError(t, err)
	assert.Empty(t, drifts)

	_, err = a.Exec(ctx, `ALTER TABLE users ADD COLUMN nickname TEXT`)
	require.NoError(t, err)
	_, err = a.Exec(ctx, `DROP TABLE posts`)
	require.NoError(t, err)

	drifts, err = r.Check(ctx, sqlite.Introspector{})
	require.NoError(t, err)
	assert.Equal(t, []Drift{
		{Model: "User", Table: "users", ExtraColumns: []string{"nickname"}},
		{Model: "Post", Table: "posts", MissingTable: true},
	}, drifts)
}
