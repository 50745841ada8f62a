package migrate

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/burugo/migrant"
)

// migrationFilenameRegex matches NNNN_name.yaml; the numeric prefix is the version.
var migrationFilenameRegex = regexp.MustCompile(`^(\d+)(?:_([A-Za-z0-9_\-]*))?\.ya?ml$`)

// SourceFile is a migration source found in a directory.
type SourceFile struct {
	Version  int64
	Name     string
	Path     string
	Checksum string
}

// DiscoverMigrations lists the migration sources in dir sorted by version.
// A missing directory yields no sources. A YAML file without a numeric
// version prefix is ErrMalformedFilename.
func DiscoverMigrations(fsys fs.FS, dir string) ([]SourceFile, error) {
	entries, err := fs.ReadDir(fsys, dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return []SourceFile{}, nil
		}
		return nil, fmt.Errorf("failed to read migrations directory %s: %w", dir, err)
	}

	var files []SourceFile
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !isYAML(name) {
			continue
		}
		match := migrationFilenameRegex.FindStringSubmatch(name)
		if match == nil {
			return nil, fmt.Errorf("%w: %s", migrant.ErrMalformedFilename, name)
		}
		version, err := strconv.ParseInt(match[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", migrant.ErrMalformedFilename, name, err)
		}
		files = append(files, SourceFile{Version: version, Name: match[2], Path: path.Join(dir, name)})
	}
	sort.SliceStable(files, func(i, j int) bool { return files[i].Version < files[j].Version })
	return files, nil
}

func isYAML(name string) bool {
	return strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml")
}

// Checksum returns the hex SHA-256 of a migration source.
func Checksum(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// LoadMigrations parses every migration source in dir and adds it to the chain.
func (r *Migrations) LoadMigrations(fsys fs.FS, dir string) error {
	files, err := DiscoverMigrations(fsys, dir)
	if err != nil {
		return err
	}
	for _, sf := range files {
		data, err := fs.ReadFile(fsys, sf.Path)
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", sf.Path, err)
		}
		f, err := ParseFile(data)
		if err != nil {
			return fmt.Errorf("migration %s: %w", sf.Path, err)
		}
		up, down := f.Steps()
		if _, err := r.AddMigration(sf.Name, sf.Version, Checksum(data), up, down); err != nil {
			return err
		}
	}
	r.log().Debug("loaded migrations", "dir", dir, "count", len(files))
	return nil
}
