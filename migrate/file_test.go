package migrate

import (
	"context"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/burugo/migrant"
)

const sampleFile = `up:
  - createModel:
      name: Post
      table: articles
      properties:
        title: String().Size(200).Required()
        author: BelongsTo("User")
        body: Text()
  - exec:
      sql: UPDATE articles SET title = ? WHERE title IS NULL
      args: [untitled]
down:
  - destroyModel: Post
`

func TestParseFile(t *testing.T) {
	f, err := ParseFile([]byte(sampleFile))
	require.NoError(t, err)
	require.Len(t, f.Up, 2)
	require.Len(t, f.Down, 1)

	create := f.Up[0].CreateModel
	require.NotNil(t, create)
	assert.Equal(t, "Post", create.Name)
	assert.Equal(t, "articles", create.Table)
	assert.Equal(t, Properties{
		{Name: "title", Definition: "String().Size(200).Required()"},
		{Name: "author", Definition: `BelongsTo("User")`},
		{Name: "body", Definition: "Text()"},
	}, create.Properties)

	require.NotNil(t, f.Up[1].Exec)
	assert.Equal(t, []interface{}{"untitled"}, f.Up[1].Exec.Args)
	assert.Equal(t, "Post", f.Down[0].DestroyModel)

	out, err := f.Marshal()
	require.NoError(t, err)
	again, err := ParseFile(out)
	require.NoError(t, err)
	assert.Equal(t, f, again)
}

func TestParseFileErrors(t *testing.T) {
	_, err := ParseFile([]byte("up: []\n"))
	assert.ErrorIs(t, err, migrant.ErrIncompleteMigration)

	_, err = ParseFile([]byte("up: []\ndown: []\nsideways: []\n"))
	assert.Error(t, err)

	_, err = ParseFile([]byte("up:\n  - destroyModel: A\n    createModel:\n      name: B\n      properties: {}\ndown: []\n"))
	assert.ErrorContains(t, err, "exactly one operation")

	_, err = ParseFile([]byte("up:\n  - addProperties:\n      model: A\n      properties: [a, b]\ndown: []\n"))
	assert.ErrorContains(t, err, "properties must be a mapping")
}

func TestFileStepsRejectBadDefinitions(t *testing.T) {
	f, err := ParseFile([]byte("up:\n  - createModel:\n      name: A\n      properties:\n        x: Nope()\ndown:\n  - destroyModel: A\n"))
	require.NoError(t, err)

	r := New(nil, WithLogger(quietLogger()))
	up, down := f.Steps()
	_, err = r.AddMigration("bad", 1, "", up, down)
	require.NoError(t, err)
	err = r.SoftMigrate(context.Background(), 1)
	assert.ErrorIs(t, err, migrant.ErrInvalidProperty)
}

func TestDiscoverMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"db/0010_later.yml":       {Data: []byte("up: []\ndown: []\n")},
		"db/0002_first.yaml":      {Data: []byte("up: []\ndown: []\n")},
		"db/README.md":            {Data: []byte("notes")},
		"db/archive/0001_x.yaml":  {Data: []byte("up: []\ndown: []\n")},
		"other/create_user.yaml":  {Data: []byte("up: []\ndown: []\n")},
	}

	files, err := DiscoverMigrations(fsys, "db")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, SourceFile{Version: 2, Name: "first", Path: "db/0002_first.yaml"}, files[0])
	assert.Equal(t, int64(10), files[1].Version)

	files, err = DiscoverMigrations(fsys, "missing")
	require.NoError(t, err)
	assert.Empty(t, files)

	_, err = DiscoverMigrations(fsys, "other")
	assert.ErrorIs(t, err, migrant.ErrMalformedFilename)
}

func TestChecksum(t *testing.T) {
	assert.Equal(t, "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855", Checksum(nil))
	assert.NotEqual(t, Checksum([]byte("a")), Checksum([]byte("b")))
}

func TestLoadMigrationsRejectsDuplicateVersions(t *testing.T) {
	fsys := fstest.MapFS{
		"m/0001_a.yaml": {Data: []byte("up: []\ndown: []\n")},
		"m/001_b.yaml":  {Data: []byte("up: []\ndown: []\n")},
	}
	err := New(nil, WithLogger(quietLogger())).LoadMigrations(fsys, "m")
	assert.ErrorIs(t, err, migrant.ErrDuplicateVersion)
}

func TestLoadRegistered(t *testing.T) {
	Register(2, "second", noop, noop)
	Register(1, "first", noop, noop)

	r := New(nil, WithLogger(quietLogger()))
	require.NoError(t, r.LoadRegistered())
	list := r.List()
	require.Len(t, list, 2)
	assert.Equal(t, "1_first", list[0].String())
	assert.Equal(t, "2_second", list[1].String())
}
