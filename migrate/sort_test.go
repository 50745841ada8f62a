package migrate

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burugo/migrant"
	"github.com/burugo/migrant/model"
)

// record runs up against a fresh graph seeded by seed and returns the recorded tasks.
func recordTasks(t *testing.T, seed, up StepFunc) []*Task {
	t.Helper()
	r := New(nil, WithLogger(quietLogger()))
	if seed != nil {
		_, err := r.AddMigration("seed", 1, "", seed, noop)
		require.NoError(t, err)
		require.NoError(t, r.SoftMigrate(context.Background(), 1))
	}
	m := &Migration{Version: 2, Name: "test", up: up, down: noop, owner: r}
	require.NoError(t, m.record(context.Background(), r.Registry(), Up))
	r.Registry().ResolveRefs()
	for _, task := range m.tasks {
		if task.Model != nil {
			r.Registry().ResolveModel(task.Model)
		}
	}
	return m.tasks
}

func taskNames(tasks []*Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.String()
	}
	return out
}

func TestSortCreatesTargetFirst(t *testing.T) {
	tasks := recordTasks(t, nil, func(b *Builder) error {
		if err := b.CreateModel("A", model.Field("b", model.BelongsTo("B"))); err != nil {
			return err
		}
		return b.CreateModel("B", model.Field("as", model.HasMany("A")))
	})
	assert.Equal(t, []string{"createModel(A)", "createModel(B)"}, taskNames(tasks))

	sorted, err := sortTasks(tasks)
	require.NoError(t, err)
	assert.Equal(t, []string{"createModel(B)", "createModel(A)"}, taskNames(sorted))
}

func TestSortKeepsDeclarationOrderWhenFree(t *testing.T) {
	tasks := recordTasks(t, nil, func(b *Builder) error {
		b.Exec("UPDATE x SET y = 1")
		for _, name := range []string{"C", "A", "B"} {
			if err := b.CreateModel(name); err != nil {
				return err
			}
		}
		return nil
	})
	sorted, err := sortTasks(tasks)
	require.NoError(t, err)
	assert.Equal(t, []string{
		"createModel(C)",
		"createModel(A)",
		"createModel(B)",
		"execute(sql.exec)",
	}, taskNames(sorted))
}

func TestSortEditAfterCreateOfNewTarget(t *testing.T) {
	seed := func(b *Builder) error { return b.CreateModel("Post", model.Field("title", model.String())) }
	tasks := recordTasks(t, seed, func(b *Builder) error {
		if err := b.AddProperties("Post", model.Field("author", model.BelongsTo("User"))); err != nil {
			return err
		}
		return b.CreateModel("User", model.Field("name", model.String()))
	})
	sorted, err := sortTasks(tasks)
	require.NoError(t, err)
	assert.Equal(t, []string{"createModel(User)", "editModel(Post)"}, taskNames(sorted))
}

func TestSortDestroyAfterDependents(t *testing.T) {
	seed := func(b *Builder) error {
		if err := b.CreateModel("User", model.Field("posts", model.HasMany("Post"))); err != nil {
			return err
		}
		return b.CreateModel("Post", model.Field("author", model.BelongsTo("User")))
	}
	tasks := recordTasks(t, seed, func(b *Builder) error {
		if err := b.DestroyModel("User"); err != nil {
			return err
		}
		return b.DestroyModel("Post")
	})
	sorted, err := sortTasks(tasks)
	require.NoError(t, err)
	assert.Equal(t, []string{"destroyModel(Post)", "destroyModel(User)"}, taskNames(sorted))
}

func TestSortDetectsCycle(t *testing.T) {
	tasks := recordTasks(t, nil, func(b *Builder) error {
		if err := b.CreateModel("A", model.Field("b", model.BelongsTo("B"))); err != nil {
			return err
		}
		return b.CreateModel("B", model.Field("a", model.BelongsTo("A")))
	})
	_, err := sortTasks(tasks)
	assert.ErrorIs(t, err, migrant.ErrUnsortable)
}

func TestSortDropsEmptyEdits(t *testing.T) {
	seed := func(b *Builder) error { return b.CreateModel("User", model.Field("name", model.String())) }
	tasks := recordTasks(t, seed, func(b *Builder) error {
		if err := b.AddProperties("User", model.Field("age", model.Integer())); err != nil {
			return err
		}
		return b.RemoveProperties("User", "age")
	})
	require.Len(t, tasks, 1)
	assert.True(t, tasks[0].empty())

	sorted, err := sortTasks(tasks)
	require.NoError(t, err)
	assert.Empty(t, sorted)
}

func TestEditTaskMerging(t *testing.T) {
	seed := func(b *Builder) error {
		return b.CreateModel("User",
			model.Field("name", model.String()),
			model.Field("email", model.String()),
			model.Field("bio", model.Text()))
	}
	tasks := recordTasks(t, seed, func(b *Builder) error {
		if err := b.ChangeProperties("User", model.Field("name", model.String().Required())); err != nil {
			return err
		}
		if err := b.ChangeProperties("User", model.Field("name", model.String())); err != nil {
			return err
		}
		if err := b.RemoveProperties("User", "email"); err != nil {
			return err
		}
		if err := b.AddProperties("User", model.Field("email", model.String().Unique())); err != nil {
			return err
		}
		return b.ChangeProperties("User", model.Field("bio", model.Text().Required()))
	})
	require.Len(t, tasks, 1)
	edit := tasks[0]
	assert.Equal(t, EditModel, edit.Kind)
	assert.Empty(t, edit.Added)
	assert.Empty(t, edit.Removed)
	require.Len(t, edit.Changed, 2)
	assert.Equal(t, "email", edit.Changed[0].To.Name())
	assert.Equal(t, "String()", edit.Changed[0].From.String())
	assert.Equal(t, "String().Unique()", edit.Changed[0].To.String())
	assert.Equal(t, "Text().Required()", edit.Changed[1].To.String())
}

func TestCreateAbsorbsLaterEdits(t *testing.T) {
	tasks := recordTasks(t, nil, func(b *Builder) error {
		if err := b.CreateModel("User", model.Field("name", model.String())); err != nil {
			return err
		}
		return b.AddProperties("User", model.Field("age", model.Integer()))
	})
	require.Len(t, tasks, 1)
	assert.Equal(t, CreateModel, tasks[0].Kind)
	assert.NotNil(t, tasks[0].Model.Property("age"))
}

func TestDestroyTakesOverEdit(t *testing.T) {
	seed := func(b *Builder) error {
		return b.CreateModel("User", model.Field("name", model.String()), model.Field("posts", model.HasMany("Post")))
	}
	tasks := recordTasks(t, seed, func(b *Builder) error {
		if err := b.RemoveProperties("User", "name"); err != nil {
			return err
		}
		return b.DestroyModel("User")
	})
	require.Len(t, tasks, 1)
	destroy := tasks[0]
	assert.Equal(t, DestroyModel, destroy.Kind)
	require.Len(t, destroy.Removed, 2)
	assert.Equal(t, "name", destroy.Removed[0].Name())
	assert.Equal(t, "posts", destroy.Removed[1].Name())
}
