package migrate

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"testing/fstest"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/burugo/migrant/drivers/db"
	"github.com/burugo/migrant/drivers/db/postgres"
	"github.com/burugo/migrant/drivers/db/sqlite"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func openSQLite(t *testing.T) *db.Adapter {
	t.Helper()
	a, err := sqlite.Open(":memory:", quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a
}

// openMock returns a postgres-flavoured adapter backed by sqlmock.
func openMock(t *testing.T) (*db.Adapter, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	return db.NewAdapter(sqlDB, "postgres", postgres.Dialect{}, quietLogger()), mock
}

func tableNames(t *testing.T, a *db.Adapter) []string {
	t.Helper()
	var names []string
	err := a.Select(context.Background(), &names,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	require.NoError(t, err)
	return names
}

func countRows(t *testing.T, a *db.Adapter, table string) int {
	t.Helper()
	var n int
	require.NoError(t, a.Get(context.Background(), &n, "SELECT COUNT(*) FROM "+table))
	return n
}

// blogFS is a three step chain: users, then users.email, then posts.
var blogFS = fstest.MapFS{
	"migrations/0001_create_user.yaml": {Data: []byte(`up:
  - createModel:
      name: User
      properties:
        name: String().Required()
down:
  - destroyModel: User
`)},
	"migrations/0002_add_email.yaml": {Data: []byte(`up:
  - addProperties:
      model: User
      properties:
        email: String().Unique()
down:
  - removeProperties:
      model: User
      properties: [email]
`)},
	"migrations/0003_create_post.yaml": {Data: []byte(`up:
  - createModel:
      name: Post
      properties:
        title: String().Size(200)
        author: BelongsTo("User").Required()
  - addProperties:
      model: User
      properties:
        posts: HasMany("Post")
down:
  - removeProperties:
      model: User
      properties: [posts]
  - destroyModel: Post
`)},
}
