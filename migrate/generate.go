package migrate

import (
	"bytes"
	"context"
	"fmt"

	"github.com/go-openapi/inflect"

	"github.com/burugo/migrant/model"
)

// Output formats of Generate.
const (
	FormatYAML = "yaml"
	FormatGo   = "go"
)

// GenerateOptions controls the emitted migration.
type GenerateOptions struct {
	Name      string // File name slug; derived from the first operation when empty
	Format    string // FormatYAML (default) or FormatGo
	GoPackage string // Package clause of FormatGo output
}

// Result describes what Generate produced.
type Result struct {
	Version  int64
	FileName string
	File     *File
	UpToDate bool
}

// Generate diffs the declared graph against the graph replayed from history
// and hands the next migration to delegate. Nothing is emitted when the two agree.
func Generate(ctx context.Context, declared *model.Registry, history *Migrations, delegate Delegate, opts GenerateOptions) (*Result, error) {
	latest := history.Latest()
	if err := history.SoftMigrate(ctx, latest); err != nil {
		return nil, fmt.Errorf("failed to replay migrations: %w", err)
	}
	f := Diff(history.Registry(), declared)
	if len(f.Up) == 0 {
		history.log().Info("schema is up to date", "version", latest)
		return &Result{Version: latest, UpToDate: true}, nil
	}

	version := latest + 1
	name := opts.Name
	if name == "" {
		name = suggestName(f.Up[0])
	}
	name = inflect.Underscore(name)

	var (
		content []byte
		ext     string
		err     error
	)
	switch opts.Format {
	case FormatGo:
		pkg := opts.GoPackage
		if pkg == "" {
			pkg = "migrations"
		}
		content, err = RenderGo(pkg, version, name, f)
		ext = "go"
	case FormatYAML, "":
		content, err = f.Marshal()
		ext = "yaml"
	default:
		return nil, fmt.Errorf("unknown output format %q", opts.Format)
	}
	if err != nil {
		return nil, err
	}

	fileName := fmt.Sprintf("%04d_%s.%s", version, name, ext)
	if err := delegate.AddMigration(fileName, bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to write %s: %w", fileName, err)
	}
	history.log().Info("generated migration", "file", fileName, "operations", len(f.Up))
	return &Result{Version: version, FileName: fileName, File: f}, nil
}

// Diff returns the operations that turn the old graph into the new one, with
// their inverses as the down direction.
func Diff(old, current *model.Registry) *File {
	f := &File{Up: []Operation{}, Down: []Operation{}}
	push := func(up, down Operation) {
		f.Up = append(f.Up, up)
		f.Down = append([]Operation{down}, f.Down...)
	}

	for _, m := range current.Models() {
		prev := old.Get(m.Name())
		if prev == nil {
			push(Operation{CreateModel: modelDef(m)}, Operation{DestroyModel: m.Name()})
			continue
		}
		diffProperties(prev, m, push)
	}
	for _, m := range old.Models() {
		if current.Get(m.Name()) == nil {
			push(Operation{DestroyModel: m.Name()}, Operation{CreateModel: modelDef(m)})
		}
	}
	return f
}

func modelDef(m *model.Model) *ModelDef {
	def := &ModelDef{Name: m.Name(), Properties: PropertiesOf(m.AllProperties()...)}
	if !m.HasDefaultTable() {
		def.Table = m.Table()
	}
	return def
}

// diffProperties compares two versions of a model by canonical clause equality.
func diffProperties(prev, m *model.Model, push func(up, down Operation)) {
	var added, removed, changedTo, changedFrom []*model.Property
	for _, p := range m.AllProperties() {
		old := prev.Property(p.Name())
		switch {
		case old == nil:
			added = append(added, p)
		case !old.Equal(p):
			changedTo = append(changedTo, p)
			changedFrom = append(changedFrom, old)
		}
	}
	for _, p := range prev.AllProperties() {
		if m.Property(p.Name()) == nil {
			removed = append(removed, p)
		}
	}

	name := m.Name()
	if len(added) > 0 {
		push(
			Operation{AddProperties: &PropertySet{Model: name, Properties: PropertiesOf(added...)}},
			Operation{RemoveProperties: &NameSet{Model: name, Properties: names(added)}},
		)
	}
	if len(changedTo) > 0 {
		push(
			Operation{ChangeProperties: &PropertySet{Model: name, Properties: PropertiesOf(changedTo...)}},
			Operation{ChangeProperties: &PropertySet{Model: name, Properties: PropertiesOf(changedFrom...)}},
		)
	}
	if len(removed) > 0 {
		push(
			Operation{RemoveProperties: &NameSet{Model: name, Properties: names(removed)}},
			Operation{AddProperties: &PropertySet{Model: name, Properties: PropertiesOf(removed...)}},
		)
	}
}

func names(props []*model.Property) []string {
	out := make([]string, len(props))
	for i, p := range props {
		out[i] = p.Name()
	}
	return out
}

func suggestName(op Operation) string {
	switch {
	case op.CreateModel != nil:
		return "create_" + model.ToSnakeCase(op.CreateModel.Name)
	case op.DestroyModel != "":
		return "destroy_" + model.ToSnakeCase(op.DestroyModel)
	case op.AddProperties != nil:
		return "update_" + model.ToSnakeCase(op.AddProperties.Model)
	case op.ChangeProperties != nil:
		return "update_" + model.ToSnakeCase(op.ChangeProperties.Model)
	case op.RemoveProperties != nil:
		return "update_" + model.ToSnakeCase(op.RemoveProperties.Model)
	}
	return "migration"
}
