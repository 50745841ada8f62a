package migrate

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burugo/migrant"
	"github.com/burugo/migrant/drivers/db/sqlite"
	"github.com/burugo/migrant/model"
)

func noop(*Builder) error { return nil }

func TestMigrateUpAndDownLeavesNothing(t *testing.T) {
	ctx := context.Background()
	a := openSQLite(t)
	r := New(a, WithLogger(quietLogger()))
	require.NoError(t, r.LoadMigrations(blogFS, "migrations"))
	require.Len(t, r.List(), 3)

	require.NoError(t, r.Migrate(ctx, 0, 3))
	v, err := r.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
	assert.Equal(t, []string{"posts", "schemas", "users"}, tableNames(t, a))
	assert.Equal(t, 3, countRows(t, a, "schemas"))

	require.NoError(t, r.Migrate(ctx, 3, 0))
	v, err = r.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
	assert.Equal(t, []string{"schemas"}, tableNames(t, a))
	assert.Equal(t, 0, countRows(t, a, "schemas"))
}

func TestMigrateUserScenario(t *testing.T) {
	ctx := context.Background()
	a := openSQLite(t)
	r := New(a, WithLogger(quietLogger()))

	_, err := r.AddMigration("create_user", 1, "",
		func(b *Builder) error { return b.CreateModel("User", model.Field("name", model.String())) },
		func(b *Builder) error { return b.DestroyModel("User") })
	require.NoError(t, err)
	_, err = r.AddMigration("add_email", 2, "",
		func(b *Builder) error { return b.AddProperties("User", model.Field("email", model.String())) },
		func(b *Builder) error { return b.RemoveProperties("User", "email") })
	require.NoError(t, err)

	require.NoError(t, r.Migrate(ctx, 0, 2))
	v, err := r.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	info, err := sqlite.Introspector{}.GetTableInfo(ctx, a, "users")
	require.NoError(t, err)
	assert.True(t, info.HasColumn("email"))

	require.NoError(t, r.Migrate(ctx, 2, 0))
	v, err = r.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
	_, err = sqlite.Introspector{}.GetTableInfo(ctx, a, "users")
	assert.ErrorIs(t, err, migrant.ErrTableNotFound)
}

func TestMigrateGapFailsWithoutQueries(t *testing.T) {
	a, mock := openMock(t)
	r := New(a, WithLogger(quietLogger()))
	_, err := r.AddMigration("one", 1, "", noop, noop)
	require.NoError(t, err)
	_, err = r.AddMigration("three", 3, "", noop, noop)
	require.NoError(t, err)

	err = r.Migrate(context.Background(), 0, 3)
	assert.ErrorIs(t, err, migrant.ErrVersionGap)
	err = r.Migrate(context.Background(), 3, 0)
	assert.ErrorIs(t, err, migrant.ErrVersionGap)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateSameVersion(t *testing.T) {
	a, mock := openMock(t)
	r := New(a, WithLogger(quietLogger()))
	assert.ErrorIs(t, r.Migrate(context.Background(), 2, 2), migrant.ErrSameVersion)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateOrdersCreatesByForeignKey(t *testing.T) {
	a, mock := openMock(t)
	r := New(a, WithLogger(quietLogger()))
	_, err := r.AddMigration("blog", 1, "",
		func(b *Builder) error {
			// Post is declared first but references User.
			if err := b.CreateModel("Post", model.Field("author", model.BelongsTo("User"))); err != nil {
				return err
			}
			return b.CreateModel("User", model.Field("posts", model.HasMany("Post")))
		},
		func(b *Builder) error {
			if err := b.DestroyModel("User"); err != nil {
				return err
			}
			return b.DestroyModel("Post")
		})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "schemas"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE "users"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE "posts"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "schemas"`)).
		WithArgs(int64(1), DefaultApp).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, r.Migrate(context.Background(), 0, 1))

	// Down destroys Post before the User it points at.
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "schemas"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE "posts"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`DROP TABLE "users"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "schemas"`)).
		WithArgs(int64(1), DefaultApp).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, r.Migrate(context.Background(), 1, 0))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateKeepsQuestionMarksInLiterals(t *testing.T) {
	a, mock := openMock(t)
	r := New(a, WithLogger(quietLogger()))
	_, err := r.AddMigration("faq", 1, "",
		func(b *Builder) error {
			if err := b.CreateModel("Faq", model.Field("prompt", model.String().Default("why?"))); err != nil {
				return err
			}
			b.Exec(`UPDATE "faqs" SET "prompt" = 'who?'`)
			return nil
		},
		func(b *Builder) error { return b.DestroyModel("Faq") })
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "schemas"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE "faqs"`) + `.*` + regexp.QuoteMeta(`DEFAULT 'why?'`)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "faqs" SET "prompt" = 'who?'`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO "schemas" ("version", "app") VALUES ($1, $2)`)).
		WithArgs(int64(1), DefaultApp).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, r.Migrate(context.Background(), 0, 1))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateRollsBackOnTaskFailure(t *testing.T) {
	ctx := context.Background()
	a := openSQLite(t)
	r := New(a, WithLogger(quietLogger()))
	require.NoError(t, r.LoadMigrations(blogFS, "migrations"))
	require.NoError(t, r.Migrate(ctx, 0, 1))

	var failing *Task
	_, err := r.AddMigration("broken", 4, "",
		func(b *Builder) error {
			if err := b.CreateModel("Tag", model.Field("label", model.String())); err != nil {
				return err
			}
			if err := b.AddProperties("User", model.Field("nickname", model.String())); err != nil {
				return err
			}
			failing = b.Exec("INSERT INTO missing_table (x) VALUES (?)", 1)
			return nil
		}, noop)
	require.NoError(t, err)

	err = r.Migrate(ctx, 1, 4)
	require.Error(t, err)

	v, err := r.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v, "earlier migrations in the run stay applied")

	assert.NotContains(t, tableNames(t, a), "tags")
	info, err := sqlite.Introspector{}.GetTableInfo(ctx, a, "users")
	require.NoError(t, err)
	assert.False(t, info.HasColumn("nickname"))

	assert.Nil(t, r.Registry().Get("Tag"))
	assert.Nil(t, r.Registry().Get("User").Property("nickname"))
	assert.NotNil(t, r.Registry().Get("Post"))

	require.NotNil(t, failing)
	select {
	case <-failing.Done():
	default:
		t.Fatal("failed task was not settled")
	}
	assert.Error(t, failing.Err())
	assert.Nil(t, r.Active())
}

func TestMigrateRollbackWithMock(t *testing.T) {
	a, mock := openMock(t)
	r := New(a, WithLogger(quietLogger()))
	_, err := r.AddMigration("users", 1, "",
		func(b *Builder) error { return b.CreateModel("User", model.Field("name", model.String())) },
		func(b *Builder) error { return b.DestroyModel("User") })
	require.NoError(t, err)

	boom := errors.New("disk full")
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE IF NOT EXISTS "schemas"`)).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta(`CREATE TABLE "users"`)).WillReturnError(boom)
	mock.ExpectRollback()

	err = r.Migrate(context.Background(), 0, 1)
	assert.ErrorIs(t, err, boom)
	assert.Nil(t, r.Registry().Get("User"))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrateTo(t *testing.T) {
	ctx := context.Background()
	a := openSQLite(t)
	r := New(a, WithLogger(quietLogger()), WithApp("blog"))
	require.NoError(t, r.LoadMigrations(blogFS, "migrations"))

	require.NoError(t, r.MigrateTo(ctx, r.Latest()))
	require.NoError(t, r.MigrateTo(ctx, r.Latest()))

	current, statuses, err := r.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), current)
	require.Len(t, statuses, 3)
	for _, s := range statuses {
		assert.True(t, s.Applied, "version %d", s.Version)
		assert.Len(t, s.Checksum, 64)
	}

	require.NoError(t, r.MigrateTo(ctx, 1))
	current, statuses, err = r.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), current)
	assert.True(t, statuses[0].Applied)
	assert.False(t, statuses[1].Applied)

	// Another app sharing the table starts from zero.
	other := New(a, WithLogger(quietLogger()), WithApp("shop"))
	v, err := other.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), v)
}

func TestAddMigrationValidation(t *testing.T) {
	r := New(nil)
	_, err := r.AddMigration("half", 1, "", noop, nil)
	assert.ErrorIs(t, err, migrant.ErrIncompleteMigration)

	_, err = r.AddMigration("b", 2, "", noop, noop)
	require.NoError(t, err)
	_, err = r.AddMigration("a", 1, "", noop, noop)
	require.NoError(t, err)
	_, err = r.AddMigration("again", 2, "", noop, noop)
	assert.ErrorIs(t, err, migrant.ErrDuplicateVersion)

	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, int64(1), list[0].Version)
	assert.Equal(t, "2_b", list[1].String())
	assert.Equal(t, int64(2), r.Latest())
}

func TestSoftMigrateReplaysGraph(t *testing.T) {
	r := New(nil, WithLogger(quietLogger()))
	require.NoError(t, r.LoadMigrations(blogFS, "migrations"))

	require.NoError(t, r.SoftMigrate(context.Background(), 2))
	reg := r.Registry()
	require.NotNil(t, reg.Get("User"))
	assert.NotNil(t, reg.Get("User").Property("email"))
	assert.Nil(t, reg.Get("Post"))

	require.NoError(t, r.SoftMigrate(context.Background(), 3))
	author := reg.Get("Post").Property("author")
	assert.Same(t, reg.Get("User"), author.Target().Model())
	assert.Same(t, reg.Get("Post"), reg.Get("User").Property("posts").Target().Model())
	assert.Empty(t, reg.UnresolvedRefs())
	assert.Nil(t, r.Active())
}

func TestSoftMigrateValidatesDown(t *testing.T) {
	r := New(nil, WithLogger(quietLogger()))
	_, err := r.AddMigration("bad_down", 1, "",
		func(b *Builder) error { return b.CreateModel("User") },
		func(b *Builder) error { return b.DestroyModel("Ghost") })
	require.NoError(t, err)

	err = r.SoftMigrate(context.Background(), 1)
	assert.ErrorIs(t, err, migrant.ErrModelNotFound)
}

func TestDuplicateTask(t *testing.T) {
	r := New(nil, WithLogger(quietLogger()))
	_, err := r.AddMigration("dup", 1, "",
		func(b *Builder) error {
			if err := b.CreateModel("User"); err != nil {
				return err
			}
			if err := b.DestroyModel("User"); err != nil {
				return err
			}
			return b.CreateModel("User")
		}, noop)
	require.NoError(t, err)

	err = r.SoftMigrate(context.Background(), 1)
	assert.ErrorIs(t, err, migrant.ErrDuplicateTask)
}

func TestGoWithoutDatabase(t *testing.T) {
	r := New(nil)
	m, err := r.AddMigration("x", 1, "", noop, noop)
	require.NoError(t, err)
	assert.ErrorIs(t, m.Go(context.Background(), Up), migrant.ErrDatabaseNotSet)
}
