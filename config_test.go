package migrant

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("MIGRANT_DSN", "")
	t.Setenv("MIGRANT_DIALECT", "")
	t.Setenv("MIGRANT_APP", "")

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, &Config{
		Dialect:       DefaultDialect,
		MigrationsDir: DefaultMigrationsDir,
		App:           DefaultApp,
		Format:        DefaultFormat,
		GoPackage:     "migrations",
		ModelsFile:    DefaultModelsFile,
	}, cfg)
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migrant.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`dialect: postgres
dsn: postgres://localhost/app
migrations_dir: db/migrations
app: blog
format: go
go_package: schema
models: db/models.yaml
`), 0o644))
	t.Setenv("MIGRANT_DSN", "postgres://prod/app")
	t.Setenv("MIGRANT_DIALECT", "")
	t.Setenv("MIGRANT_APP", "")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Dialect)
	assert.Equal(t, "postgres://prod/app", cfg.DSN)
	assert.Equal(t, "db/migrations", cfg.MigrationsDir)
	assert.Equal(t, "blog", cfg.App)
	assert.Equal(t, "go", cfg.Format)
	assert.Equal(t, "schema", cfg.GoPackage)
	assert.Equal(t, "db/models.yaml", cfg.ModelsFile)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "migrant.yaml")
	require.NoError(t, os.WriteFile(path, []byte("dialect: [unterminated"), 0o644))
	_, err := LoadConfig(path)
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := &Config{Dialect: "oracle", DSN: "x", Format: "yaml"}
	assert.ErrorIs(t, cfg.Validate(), ErrUnsupportedDialect)

	cfg = &Config{Dialect: "sqlite", DSN: "file.db", Format: "json"}
	assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
}
