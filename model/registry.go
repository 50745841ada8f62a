package model

import (
	"context"
	"fmt"
	"sort"

	"github.com/burugo/migrant"
)

// Recorder receives structural operations instead of having them executed.
// A migration implements it while its up or down body runs. Each call happens
// after the change is applied to the graph; an error reverts the change.
type Recorder interface {
	RecordCreate(m *Model) error
	RecordDestroy(m *Model) error
	// RecordAdd records a new property, or a changed one when existing is non-nil.
	RecordAdd(m *Model, p, existing *Property) error
	RecordRemove(m *Model, p *Property) error
}

// Definition describes a model to create.
type Definition struct {
	Name       string
	Table      string // Optional; defaults to DefaultTableName(Name)
	Properties []*Property
}

// Registry is the model graph: an ordered set of models addressed by name.
//
// Structural operations take an optional Recorder. With a recorder the change
// is applied to the graph and recorded as a task; without one it is applied and
// executed immediately against the Execer bound with Bind.
type Registry struct {
	dialect migrant.Dialect
	exec    migrant.Execer
	models  *orderedMap[*Model]
}

// NewRegistry creates an empty graph. dialect may be nil for graphs that never run DDL.
func NewRegistry(dialect migrant.Dialect) *Registry {
	return &Registry{dialect: dialect, models: newOrderedMap[*Model]()}
}

func (r *Registry) Dialect() migrant.Dialect { return r.dialect }

// Bind sets the Execer used by operations called without a Recorder.
func (r *Registry) Bind(exec migrant.Execer) { r.exec = exec }

// Get returns the named model, or nil.
func (r *Registry) Get(name string) *Model {
	m, _ := r.models.Get(name)
	return m
}

// Models returns all models in declaration order.
func (r *Registry) Models() []*Model { return r.models.Values() }

func (r *Registry) Len() int { return r.models.Len() }

// Reset drops every model from the graph. The database is not touched.
func (r *Registry) Reset() {
	for _, m := range r.models.Values() {
		m.registry = nil
	}
	r.models = newOrderedMap[*Model]()
}

// Clone returns a deep copy of the graph. Resolved references are rebound to
// the copied models; references to models missing from the copy become unresolved.
func (r *Registry) Clone() *Registry {
	c := &Registry{dialect: r.dialect, exec: r.exec, models: newOrderedMap[*Model]()}
	for _, m := range r.models.Values() {
		cm := m.clone()
		cm.registry = c
		c.models.Set(cm.name, cm)
	}
	for _, m := range c.models.Values() {
		for _, p := range m.props.Values() {
			p.target = c.rebind(p.target)
			p.through = c.rebind(p.through)
		}
	}
	return c
}

func (r *Registry) rebind(ref Ref) Ref {
	if !ref.IsResolved() {
		return ref
	}
	if m := r.Get(ref.name); m != nil {
		return Resolved(m)
	}
	return Unresolved(ref.name)
}

// ResolveRefs binds references to the models currently in the graph.
// With names given, only references to those models are considered.
// It returns the sorted names that were newly bound.
func (r *Registry) ResolveRefs(names ...string) []string {
	return r.resolve(r.models.Values(), names)
}

// ResolveModel binds the references of a model held outside the graph, such as
// a task snapshot, to the models currently in the graph.
func (r *Registry) ResolveModel(m *Model) {
	r.resolve([]*Model{m}, nil)
}

func (r *Registry) resolve(models []*Model, names []string) []string {
	only := make(map[string]bool, len(names))
	for _, n := range names {
		only[n] = true
	}
	bound := make(map[string]bool)
	resolve := func(ref *Ref) {
		if ref.IsZero() || (len(only) > 0 && !only[ref.name]) {
			return
		}
		m := r.Get(ref.name)
		switch {
		case m == nil:
			// A reference to a model that left the graph waits for it again.
			*ref = Unresolved(ref.name)
		case ref.model != m:
			*ref = Resolved(m)
			bound[ref.name] = true
		}
	}
	for _, m := range models {
		for _, p := range m.props.Values() {
			resolve(&p.target)
			resolve(&p.through)
		}
	}
	return sortedKeys(bound)
}

// Restore replaces the graph's models with those of snapshot, a Clone of this registry.
// The snapshot must not be used afterwards.
func (r *Registry) Restore(snapshot *Registry) {
	r.models = snapshot.models
	for _, m := range r.models.Values() {
		m.registry = r
	}
}

// UnresolvedRefs returns the sorted names of models referenced but not bound.
func (r *Registry) UnresolvedRefs() []string {
	missing := make(map[string]bool)
	for _, m := range r.models.Values() {
		for _, p := range m.props.Values() {
			if !p.target.IsZero() && !p.target.IsResolved() {
				missing[p.target.name] = true
			}
			if !p.through.IsZero() && !p.through.IsResolved() {
				missing[p.through.name] = true
			}
		}
	}
	return sortedKeys(missing)
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Declare adds a model to the graph without recording or executing anything.
// It is how source declarations build the graph the differ compares against.
func (r *Registry) Declare(def Definition) (*Model, error) {
	m, err := r.build(def)
	if err != nil {
		return nil, err
	}
	r.add(m)
	return m, nil
}

func (r *Registry) build(def Definition) (*Model, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("%w: model has no name", migrant.ErrInvalidProperty)
	}
	if r.Get(def.Name) != nil {
		return nil, fmt.Errorf("%w: %s", migrant.ErrModelExists, def.Name)
	}
	m := newModel(def.Name, def.Table)
	for _, p := range def.Properties {
		if err := p.validate(); err != nil {
			return nil, fmt.Errorf("model %s: %w", def.Name, err)
		}
		if m.Property(p.name) != nil {
			return nil, fmt.Errorf("%w: %s.%s", migrant.ErrPropertyExists, def.Name, p.name)
		}
		m.setProperty(r.bindNew(p.Clone()))
	}
	return m, nil
}

// bindNew resolves the references of a new property against models already present.
func (r *Registry) bindNew(p *Property) *Property {
	if !p.target.IsZero() {
		if t := r.Get(p.target.name); t != nil {
			p.target = Resolved(t)
		}
	}
	if !p.through.IsZero() {
		if t := r.Get(p.through.name); t != nil {
			p.through = Resolved(t)
		}
	}
	return p
}

func (r *Registry) add(m *Model) {
	m.registry = r
	r.models.Set(m.name, m)
}

func (r *Registry) remove(m *Model) {
	r.models.Delete(m.name)
}

func (r *Registry) model(name string) (*Model, error) {
	m := r.Get(name)
	if m == nil {
		return nil, fmt.Errorf("%w: %s", migrant.ErrModelNotFound, name)
	}
	return m, nil
}

// direct runs execute against the bound Execer, undoing the graph change on failure.
func (r *Registry) direct(ctx context.Context, execute func(context.Context, migrant.Execer) error, undo func()) error {
	if r.exec == nil {
		undo()
		return migrant.ErrNoExecer
	}
	if err := execute(ctx, r.exec); err != nil {
		undo()
		return err
	}
	return nil
}

// CreateModel adds a model to the graph and records or executes its table creation.
func (r *Registry) CreateModel(ctx context.Context, rec Recorder, def Definition) (*Model, error) {
	m, err := r.build(def)
	if err != nil {
		return nil, err
	}
	r.add(m)
	undo := func() { r.remove(m) }
	if rec != nil {
		if err := rec.RecordCreate(m); err != nil {
			undo()
			return nil, err
		}
		return m, nil
	}
	if err := r.direct(ctx, m.Setup, undo); err != nil {
		return nil, err
	}
	return m, nil
}

// DestroyModel removes a model from the graph and records or executes dropping its table.
func (r *Registry) DestroyModel(ctx context.Context, rec Recorder, name string) error {
	m, err := r.model(name)
	if err != nil {
		return err
	}
	snapshot := r.models.Keys()
	r.remove(m)
	undo := func() { r.restore(m, snapshot) }
	if rec != nil {
		if err := rec.RecordDestroy(m); err != nil {
			undo()
			return err
		}
		return nil
	}
	return r.direct(ctx, m.Destroy, undo)
}

// restore puts m back at its original position in the declaration order.
func (r *Registry) restore(m *Model, order []string) {
	models := make(map[string]*Model, len(order))
	for _, o := range r.models.Values() {
		models[o.name] = o
	}
	models[m.name] = m
	r.models = newOrderedMap[*Model]()
	for _, name := range order {
		if o, ok := models[name]; ok {
			r.models.Set(name, o)
		}
	}
	m.registry = r
}

// AddProperties adds properties to a model. A property whose name already
// exists is treated as a change of that property.
func (r *Registry) AddProperties(ctx context.Context, rec Recorder, modelName string, props ...*Property) error {
	return r.putProperties(ctx, rec, modelName, false, props)
}

// ChangeProperties redefines existing properties of a model.
func (r *Registry) ChangeProperties(ctx context.Context, rec Recorder, modelName string, props ...*Property) error {
	return r.putProperties(ctx, rec, modelName, true, props)
}

// edit is one property mutation applied to a model.
type edit struct {
	prop     *Property // nil for a removal
	existing *Property
}

// alteration splits applied edits into the column changes they imply. A change
// that moves the backing column is a removal plus an addition.
func alteration(edits []edit) (added, removed []*Property, changed []Change) {
	for _, e := range edits {
		switch {
		case e.prop == nil:
			removed = append(removed, e.existing)
		case e.existing == nil:
			added = append(added, e.prop)
		case MovesColumn(e.existing, e.prop):
			removed = append(removed, e.existing)
			added = append(added, e.prop)
		default:
			changed = append(changed, Change{From: e.existing, To: e.prop})
		}
	}
	return added, removed, changed
}

func (r *Registry) applyEdits(m *Model, edits []edit) (undo func()) {
	for _, e := range edits {
		if e.prop == nil {
			m.deleteProperty(e.existing.name)
			continue
		}
		m.setProperty(e.prop)
	}
	return func() {
		for i := len(edits) - 1; i >= 0; i-- {
			e := edits[i]
			switch {
			case e.existing == nil:
				m.deleteProperty(e.prop.name)
			default:
				m.setProperty(e.existing)
			}
		}
	}
}

func (r *Registry) putProperties(ctx context.Context, rec Recorder, modelName string, mustExist bool, props []*Property) error {
	m, err := r.model(modelName)
	if err != nil {
		return err
	}
	var edits []edit
	seen := make(map[string]bool, len(props))
	for _, in := range props {
		if err := in.validate(); err != nil {
			return fmt.Errorf("model %s: %w", modelName, err)
		}
		if seen[in.name] {
			return fmt.Errorf("%w: %s.%s given twice", migrant.ErrPropertyExists, modelName, in.name)
		}
		seen[in.name] = true
		existing := m.Property(in.name)
		if existing == nil && mustExist {
			return fmt.Errorf("%w: %s.%s", migrant.ErrPropertyNotFound, modelName, in.name)
		}
		if existing != nil && existing.Equal(in) {
			continue
		}
		edits = append(edits, edit{prop: r.bindNew(in.Clone()), existing: existing})
	}
	return r.commitEdits(ctx, rec, m, edits)
}

// RemoveProperties removes named properties from a model.
func (r *Registry) RemoveProperties(ctx context.Context, rec Recorder, modelName string, names ...string) error {
	m, err := r.model(modelName)
	if err != nil {
		return err
	}
	var edits []edit
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		p := m.Property(name)
		if p == nil || seen[name] {
			return fmt.Errorf("%w: %s.%s", migrant.ErrPropertyNotFound, modelName, name)
		}
		seen[name] = true
		edits = append(edits, edit{existing: p})
	}
	return r.commitEdits(ctx, rec, m, edits)
}

func (r *Registry) commitEdits(ctx context.Context, rec Recorder, m *Model, edits []edit) error {
	if len(edits) == 0 {
		return nil
	}
	undo := r.applyEdits(m, edits)
	if rec != nil {
		for _, e := range edits {
			if err := record(rec, m, e); err != nil {
				undo()
				return err
			}
		}
		return nil
	}
	added, removed, changed := alteration(edits)
	return r.direct(ctx, func(ctx context.Context, exec migrant.Execer) error {
		return m.Edit(ctx, exec, added, removed, changed)
	}, undo)
}

func record(rec Recorder, m *Model, e edit) error {
	switch {
	case e.prop == nil:
		return rec.RecordRemove(m, e.existing)
	case e.existing != nil && MovesColumn(e.existing, e.prop):
		if err := rec.RecordRemove(m, e.existing); err != nil {
			return err
		}
		return rec.RecordAdd(m, e.prop, nil)
	default:
		return rec.RecordAdd(m, e.prop, e.existing)
	}
}
