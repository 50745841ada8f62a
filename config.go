package migrant

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Default configuration values.
const (
	DefaultDialect       = "sqlite"
	DefaultMigrationsDir = "migrations"
	DefaultFormat        = "yaml"
	DefaultModelsFile    = "models.yaml"
	DefaultApp           = "default"
)

// Config holds configuration for migrant.
type Config struct {
	Dialect       string `yaml:"dialect"`        // "sqlite", "postgres" or "mysql"
	DSN           string `yaml:"dsn"`            // Driver connection string
	MigrationsDir string `yaml:"migrations_dir"` // Directory holding NNNN_name.yaml files
	App           string `yaml:"app"`            // App discriminator in the schemas table
	Format        string `yaml:"format"`         // Generator output: "yaml" or "go"
	GoPackage     string `yaml:"go_package"`     // Package name used by the "go" format
	ModelsFile    string `yaml:"models"`         // Declared models read by generate
}

// LoadConfig reads a YAML config file and applies environment overrides.
// A missing file is not an error: defaults plus environment are used.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		case errors.Is(err, os.ErrNotExist):
		default:
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("MIGRANT_DSN"); v != "" {
		c.DSN = v
	}
	if v := os.Getenv("MIGRANT_DIALECT"); v != "" {
		c.Dialect = v
	}
	if v := os.Getenv("MIGRANT_APP"); v != "" {
		c.App = v
	}
}

func (c *Config) applyDefaults() {
	if c.Dialect == "" {
		c.Dialect = DefaultDialect
	}
	if c.MigrationsDir == "" {
		c.MigrationsDir = DefaultMigrationsDir
	}
	if c.Format == "" {
		c.Format = DefaultFormat
	}
	if c.GoPackage == "" {
		c.GoPackage = "migrations"
	}
	if c.ModelsFile == "" {
		c.ModelsFile = DefaultModelsFile
	}
	if c.App == "" {
		c.App = DefaultApp
	}
}

// Validate checks that the configuration can be used to open a database.
func (c *Config) Validate() error {
	switch c.Dialect {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("%w: dialect %q", ErrUnsupportedDialect, c.Dialect)
	}
	if c.DSN == "" {
		return fmt.Errorf("%w: dsn must be set", ErrInvalidConfig)
	}
	if c.Format != "yaml" && c.Format != "go" {
		return fmt.Errorf("%w: format must be yaml or go, got %q", ErrInvalidConfig, c.Format)
	}
	return nil
}
