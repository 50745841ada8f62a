package migrate

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/burugo/migrant"
	"github.com/burugo/migrant/model"
)

// File is a migration source. Each direction is a list of operations:
//
//	up:
//	  - createModel:
//	      name: User
//	      properties:
//	        name: String().Required()
//	  - addProperties:
//	      model: Post
//	      properties:
//	        author: BelongsTo("User")
//	down:
//	  - removeProperties:
//	      model: Post
//	      properties: [author]
//	  - destroyModel: User
type File struct {
	Up   []Operation `yaml:"up"`
	Down []Operation `yaml:"down"`
}

// Operation is one structural change or statement. Exactly one field is set.
type Operation struct {
	CreateModel      *ModelDef    `yaml:"createModel,omitempty"`
	DestroyModel     string       `yaml:"destroyModel,omitempty"`
	AddProperties    *PropertySet `yaml:"addProperties,omitempty"`
	ChangeProperties *PropertySet `yaml:"changeProperties,omitempty"`
	RemoveProperties *NameSet     `yaml:"removeProperties,omitempty"`
	Exec             *Statement   `yaml:"exec,omitempty"`
}

// ModelDef is the definition of a created model.
type ModelDef struct {
	Name       string     `yaml:"name"`
	Table      string     `yaml:"table,omitempty"`
	Properties Properties `yaml:"properties"`
}

// PropertySet names properties to add or change on a model.
type PropertySet struct {
	Model      string     `yaml:"model"`
	Properties Properties `yaml:"properties"`
}

// NameSet names properties to remove from a model.
type NameSet struct {
	Model      string   `yaml:"model"`
	Properties []string `yaml:"properties,flow"`
}

// Statement is a raw SQL statement with '?' placeholders.
type Statement struct {
	SQL  string        `yaml:"sql"`
	Args []interface{} `yaml:"args,omitempty,flow"`
}

// PropertyDef is a property name with its definition in constructor-call syntax.
type PropertyDef struct {
	Name       string
	Definition string
}

// Properties is an ordered name → definition mapping.
type Properties []PropertyDef

// UnmarshalYAML keeps the mapping order of the document.
func (p *Properties) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: properties must be a mapping", node.Line)
	}
	out := make(Properties, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return fmt.Errorf("line %d: definition of %q must be a string", v.Line, k.Value)
		}
		out = append(out, PropertyDef{Name: k.Value, Definition: v.Value})
	}
	*p = out
	return nil
}

// MarshalYAML writes the properties as a mapping in order.
func (p Properties) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, def := range p {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: def.Name},
			&yaml.Node{Kind: yaml.ScalarNode, Value: def.Definition},
		)
	}
	return node, nil
}

// PropertiesOf renders properties in their canonical syntax.
func PropertiesOf(props ...*model.Property) Properties {
	out := make(Properties, len(props))
	for i, p := range props {
		out[i] = PropertyDef{Name: p.Name(), Definition: p.String()}
	}
	return out
}

// Parse builds the properties, failing on the first invalid definition.
func (p Properties) Parse() ([]*model.Property, error) {
	out := make([]*model.Property, 0, len(p))
	for _, def := range p {
		prop, err := model.ParseProperty(def.Name, def.Definition)
		if err != nil {
			return nil, err
		}
		out = append(out, prop)
	}
	return out, nil
}

// ParseFile decodes a migration source and validates its operations.
func ParseFile(data []byte) (*File, error) {
	var doc struct {
		Up   *[]Operation `yaml:"up"`
		Down *[]Operation `yaml:"down"`
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to parse migration: %w", err)
	}
	if doc.Up == nil || doc.Down == nil {
		return nil, fmt.Errorf("%w: file lacks up or down", migrant.ErrIncompleteMigration)
	}
	f := &File{Up: *doc.Up, Down: *doc.Down}
	for _, ops := range [][]Operation{f.Up, f.Down} {
		for i, op := range ops {
			if err := op.validate(); err != nil {
				return nil, fmt.Errorf("operation %d: %w", i+1, err)
			}
		}
	}
	return f, nil
}

// Marshal encodes the file as YAML.
func (f *File) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(f); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Steps returns the step functions that apply the file's operations.
func (f *File) Steps() (up, down StepFunc) {
	return applyAll(f.Up), applyAll(f.Down)
}

func applyAll(ops []Operation) StepFunc {
	return func(b *Builder) error {
		for i, op := range ops {
			if err := op.apply(b); err != nil {
				return fmt.Errorf("operation %d: %w", i+1, err)
			}
		}
		return nil
	}
}

func (op Operation) validate() error {
	set := 0
	for _, ok := range []bool{
		op.CreateModel != nil,
		op.DestroyModel != "",
		op.AddProperties != nil,
		op.ChangeProperties != nil,
		op.RemoveProperties != nil,
		op.Exec != nil,
	} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return fmt.Errorf("expected exactly one operation, got %d", set)
	}
	return nil
}

func (op Operation) apply(b *Builder) error {
	switch {
	case op.CreateModel != nil:
		props, err := op.CreateModel.Properties.Parse()
		if err != nil {
			return err
		}
		return b.CreateModelWithTable(op.CreateModel.Name, op.CreateModel.Table, props...)
	case op.DestroyModel != "":
		return b.DestroyModel(op.DestroyModel)
	case op.AddProperties != nil:
		props, err := op.AddProperties.Properties.Parse()
		if err != nil {
			return err
		}
		return b.AddProperties(op.AddProperties.Model, props...)
	case op.ChangeProperties != nil:
		props, err := op.ChangeProperties.Properties.Parse()
		if err != nil {
			return err
		}
		return b.ChangeProperties(op.ChangeProperties.Model, props...)
	case op.RemoveProperties != nil:
		return b.RemoveProperties(op.RemoveProperties.Model, op.RemoveProperties.Properties...)
	case op.Exec != nil:
		b.Exec(op.Exec.SQL, op.Exec.Args...)
		return nil
	}
	return op.validate()
}
