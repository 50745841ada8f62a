package migrant

import "errors"

// Structural errors. They are fatal and never retried.
var (
	// ErrDuplicateTask is returned when a migration records a second create or destroy task for one model.
	ErrDuplicateTask = errors.New("migrant: duplicate task for model")
	// ErrUnsortable is returned when the tasks of a migration form a dependency cycle.
	ErrUnsortable = errors.New("migrant: migration tasks cannot be ordered (dependency cycle)")
	// ErrVersionGap is returned when the loaded chain does not cover every version between two versions.
	ErrVersionGap          = errors.New("migrant: migration count does not match version delta")
	ErrIncompleteMigration = errors.New("migrant: migration must define both up and down")
	ErrMalformedFilename   = errors.New("migrant: migration file name has no numeric version prefix")
	ErrDuplicateVersion    = errors.New("migrant: duplicate migration version")
	// ErrAmbiguousSchema is returned when legacy schema rows have no app and ownership must be resolved by hand.
	ErrAmbiguousSchema = errors.New("migrant: schema versions recorded without app, resolve ownership manually")
)

// Validation errors. They block progression before any I/O.
var (
	ErrSameVersion = errors.New("migrant: from and to versions are equal")
)

// Model graph errors.
var (
	ErrModelExists         = errors.New("migrant: model already exists")
	ErrModelNotFound       = errors.New("migrant: model not found")
	ErrPropertyExists      = errors.New("migrant: property already exists")
	ErrPropertyNotFound    = errors.New("migrant: property not found")
	ErrInvalidProperty     = errors.New("migrant: invalid property definition")
	ErrUnresolvedReference = errors.New("migrant: unresolved model reference")
	ErrNoExecer            = errors.New("migrant: no database bound for direct execution")
)

// Driver and configuration errors.
var (
	ErrTableNotFound      = errors.New("migrant: table not found")
	ErrUnsupportedDialect = errors.New("migrant: unsupported dialect")
	ErrDatabaseNotSet     = errors.New("migrant: database adapter not set")
	ErrInvalidConfig      = errors.New("migrant: invalid configuration")
)
