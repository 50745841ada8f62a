package migrate

import (
	"context"
	"fmt"

	"github.com/burugo/migrant"
	"github.com/burugo/migrant/model"
)

// Direction selects the up or down body of a migration.
type Direction int

const (
	Up Direction = iota
	Down
)

func (d Direction) String() string {
	if d == Down {
		return "down"
	}
	return "up"
}

// StepFunc is the body of a migration in one direction. It declares structural
// changes through the Builder; nothing touches the database while it runs.
type StepFunc func(b *Builder) error

// Migration is one versioned step of the schema history.
type Migration struct {
	Version  int64
	Name     string
	Checksum string // SHA-256 of the source; informational only

	up     StepFunc
	down   StepFunc
	owner  *Migrations
	tasks  []*Task
	active bool
}

// Tasks returns the tasks recorded by the last Go or Soft call.
func (m *Migration) Tasks() []*Task { return append([]*Task(nil), m.tasks...) }

// IsActive reports whether the migration is currently recording.
func (m *Migration) IsActive() bool { return m.active }

func (m *Migration) activate() {
	m.active = true
	m.owner.active = m
}

func (m *Migration) deactivate() {
	m.active = false
	if m.owner.active == m {
		m.owner.active = nil
	}
}

func (m *Migration) String() string {
	return fmt.Sprintf("%d_%s", m.Version, m.Name)
}

func (m *Migration) step(dir Direction) StepFunc {
	if dir == Down {
		return m.down
	}
	return m.up
}

// record runs one direction against reg, collecting tasks.
func (m *Migration) record(ctx context.Context, reg *model.Registry, dir Direction) error {
	b := &Builder{ctx: ctx, registry: reg, rec: recorder{m}, migration: m}
	if err := m.step(dir)(b); err != nil {
		return fmt.Errorf("migration %s %s: %w", m, dir, err)
	}
	return nil
}

// Go records the migration in the given direction, orders its tasks and runs
// them in one transaction together with the schema version update.
// On failure the transaction is rolled back, the model graph is restored and
// the original error is returned.
func (m *Migration) Go(ctx context.Context, dir Direction) (err error) {
	r := m.owner
	if r.db == nil {
		return migrant.ErrDatabaseNotSet
	}
	reg := r.registry
	snapshot := reg.Clone()
	m.tasks = nil
	m.activate()
	defer func() {
		m.deactivate()
		if err != nil {
			reg.Restore(snapshot)
			for _, t := range m.tasks {
				t.settle(err)
			}
		}
	}()

	if err = m.record(ctx, reg, dir); err != nil {
		return err
	}
	reg.ResolveRefs()
	for _, t := range m.tasks {
		if t.Model != nil {
			reg.ResolveModel(t.Model)
		}
	}
	ordered, err := sortTasks(m.tasks)
	if err != nil {
		return err
	}
	m.deactivate()

	log := r.log().With("version", m.Version, "name", m.Name, "direction", dir.String())
	log.Info("running migration", "tasks", len(ordered))
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err = m.apply(ctx, tx, dir, ordered); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			log.Error("rollback failed", "error", rbErr)
		}
		log.Error("migration failed, rolled back", "error", err)
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	// Edit tasks that cancelled out never ran.
	for _, t := range m.tasks {
		t.settle(nil)
	}
	log.Info("migration applied")
	return nil
}

func (m *Migration) apply(ctx context.Context, tx migrant.Tx, dir Direction, ordered []*Task) error {
	r := m.owner
	if err := r.ensureSchemaTable(ctx, tx); err != nil {
		return err
	}
	for _, t := range ordered {
		r.log().Debug("running task", "task", t.String())
		if err := t.run(ctx, tx); err != nil {
			return err
		}
	}
	if dir == Up {
		return r.insertVersion(ctx, tx, m.Version)
	}
	return r.deleteVersion(ctx, tx, m.Version)
}

// Soft replays the migration against the model graph without database I/O.
// Up is recorded into the graph; down is recorded against a throwaway copy to
// validate it; references to the models up created are then bound.
func (m *Migration) Soft(ctx context.Context) error {
	reg := m.owner.registry
	m.tasks = nil
	m.activate()
	defer func() {
		m.tasks = nil
		m.deactivate()
	}()

	if err := m.record(ctx, reg, Up); err != nil {
		return err
	}
	var created []string
	for _, t := range m.tasks {
		if t.Kind == CreateModel {
			created = append(created, t.ModelName())
		}
	}
	m.tasks = nil
	if err := m.record(ctx, reg.Clone(), Down); err != nil {
		return err
	}
	if len(created) > 0 {
		reg.ResolveRefs(created...)
	}
	return nil
}

func (m *Migration) findTask(kind TaskKind, modelName string) (int, *Task) {
	for i, t := range m.tasks {
		if t.Kind == kind && t.ModelName() == modelName {
			return i, t
		}
	}
	return -1, nil
}

func (m *Migration) addTask(t *Task) *Task {
	m.tasks = append(m.tasks, t)
	return t
}

func (m *Migration) newTask(kind TaskKind, mod *model.Model) *Task {
	return newTask(kind, mod, len(m.tasks))
}

// recorder turns the registry's structural operations into tasks on a migration.
type recorder struct{ m *Migration }

var _ model.Recorder = recorder{}

func (r recorder) RecordCreate(mod *model.Model) error {
	if _, t := r.m.findTask(CreateModel, mod.Name()); t != nil {
		return fmt.Errorf("%w: createModel(%s)", migrant.ErrDuplicateTask, mod.Name())
	}
	r.m.addTask(r.m.newTask(CreateModel, mod))
	return nil
}

func (r recorder) RecordDestroy(mod *model.Model) error {
	if _, t := r.m.findTask(DestroyModel, mod.Name()); t != nil {
		return fmt.Errorf("%w: destroyModel(%s)", migrant.ErrDuplicateTask, mod.Name())
	}
	t := r.m.newTask(DestroyModel, mod)
	if i, edit := r.m.findTask(EditModel, mod.Name()); edit != nil {
		t.Removed = edit.Removed
		r.m.tasks = append(r.m.tasks[:i], r.m.tasks[i+1:]...)
	}
	for _, p := range mod.Associations() {
		if indexOf(t.Removed, p.Name()) < 0 {
			t.Removed = append(t.Removed, p)
		}
	}
	r.m.addTask(t)
	return nil
}

func (r recorder) RecordAdd(mod *model.Model, p, existing *model.Property) error {
	if _, t := r.m.findTask(CreateModel, mod.Name()); t != nil {
		t.Model = mod.Snapshot()
		return nil
	}
	t := r.m.editTask(mod)
	t.add(p, existing)
	t.Model = mod.Snapshot()
	return nil
}

func (r recorder) RecordRemove(mod *model.Model, p *model.Property) error {
	if _, t := r.m.findTask(CreateModel, mod.Name()); t != nil {
		t.Model = mod.Snapshot()
		return nil
	}
	t := r.m.editTask(mod)
	t.remove(p)
	t.Model = mod.Snapshot()
	return nil
}

func (m *Migration) editTask(mod *model.Model) *Task {
	if _, t := m.findTask(EditModel, mod.Name()); t != nil {
		return t
	}
	return m.addTask(m.newTask(EditModel, mod))
}

// Builder is handed to a StepFunc. Its operations change the model graph and
// record the matching tasks on the migration being run.
type Builder struct {
	ctx       context.Context
	registry  *model.Registry
	rec       model.Recorder
	migration *Migration
}

// Context returns the context of the Go or Soft call.
func (b *Builder) Context() context.Context { return b.ctx }

// Registry returns the model graph the step operates on.
func (b *Builder) Registry() *model.Registry { return b.registry }

// Model returns the named model, or nil.
func (b *Builder) Model(name string) *model.Model { return b.registry.Get(name) }

// CreateModel declares a new model with its properties, stored in the default table.
func (b *Builder) CreateModel(name string, props ...*model.Property) error {
	return b.CreateModelWithTable(name, "", props...)
}

// CreateModelWithTable declares a new model stored in table.
func (b *Builder) CreateModelWithTable(name, table string, props ...*model.Property) error {
	_, err := b.registry.CreateModel(b.ctx, b.rec, model.Definition{Name: name, Table: table, Properties: props})
	return err
}

func (b *Builder) DestroyModel(name string) error {
	return b.registry.DestroyModel(b.ctx, b.rec, name)
}

func (b *Builder) AddProperties(modelName string, props ...*model.Property) error {
	return b.registry.AddProperties(b.ctx, b.rec, modelName, props...)
}

func (b *Builder) ChangeProperties(modelName string, props ...*model.Property) error {
	return b.registry.ChangeProperties(b.ctx, b.rec, modelName, props...)
}

func (b *Builder) RemoveProperties(modelName string, names ...string) error {
	return b.registry.RemoveProperties(b.ctx, b.rec, modelName, names...)
}

// AddTask defers fn until the migration's transaction runs, after all structural tasks.
// The returned task settles when fn has run or the migration has failed.
func (b *Builder) AddTask(target, method string, fn func(ctx context.Context, exec migrant.Execer) error) *Task {
	t := b.migration.newTask(Execute, nil)
	t.Label = target + "." + method
	t.fn = fn
	return b.migration.addTask(t)
}

// Exec defers a raw SQL statement. The query uses '?' placeholders, which are
// rebound only when args are given.
func (b *Builder) Exec(query string, args ...interface{}) *Task {
	return b.AddTask("sql", "exec", func(ctx context.Context, exec migrant.Execer) error {
		_, err := exec.Exec(ctx, query, args...)
		return err
	})
}
