package model

import (
	"regexp"
	"strings"

	"github.com/go-openapi/inflect"
)

// primaryKey is the implicit integer primary key column of every model.
const primaryKey = "id"

// Model is a named entity with an ordered property set, backed by one table.
type Model struct {
	name     string
	table    string
	props    *orderedMap[*Property]
	registry *Registry
}

func newModel(name, table string) *Model {
	if table == "" {
		table = DefaultTableName(name)
	}
	return &Model{name: name, table: table, props: newOrderedMap[*Property]()}
}

// DefaultTableName returns the pluralized snake_case table name of a model, e.g. BookTag -> book_tags.
func DefaultTableName(modelName string) string {
	return inflect.Pluralize(ToSnakeCase(modelName))
}

var (
	matchFirstCap = regexp.MustCompile("(.)([A-Z][a-z]+)")
	matchAllCap   = regexp.MustCompile("([a-z0-9])([A-Z])")
)

// ToSnakeCase converts a string from CamelCase to snake_case.
func ToSnakeCase(str string) string {
	snake := matchFirstCap.ReplaceAllString(str, "${1}_${2}")
	snake = matchAllCap.ReplaceAllString(snake, "${1}_${2}")
	return strings.ToLower(snake)
}

// Name returns the model name.
func (m *Model) Name() string { return m.name }

// Table returns the backing table name.
func (m *Model) Table() string { return m.table }

// HasDefaultTable reports whether the table name is derived from the model name.
func (m *Model) HasDefaultTable() bool { return m.table == DefaultTableName(m.name) }

// Registry returns the graph the model belongs to.
func (m *Model) Registry() *Registry { return m.registry }

// AllProperties returns every property in declaration order.
func (m *Model) AllProperties() []*Property { return m.props.Values() }

// Property returns the named property, or nil.
func (m *Model) Property(name string) *Property {
	p, _ := m.props.Get(name)
	return p
}

// Associations returns the association properties in declaration order.
func (m *Model) Associations() []*Property {
	var out []*Property
	for _, p := range m.props.Values() {
		if p.IsAssociation() {
			out = append(out, p)
		}
	}
	return out
}

// Columns returns the properties materialised as columns, excluding the primary key.
func (m *Model) Columns() []*Property {
	var out []*Property
	for _, p := range m.props.Values() {
		if p.IsAllowed() {
			out = append(out, p)
		}
	}
	return out
}

func (m *Model) setProperty(p *Property) {
	p.model = m
	m.props.Set(p.name, p)
}

func (m *Model) deleteProperty(name string) {
	if p, ok := m.props.Get(name); ok {
		p.model = nil
	}
	m.props.Delete(name)
}

// clone copies the model and its properties. References are rebound by Registry.Clone.
func (m *Model) clone() *Model {
	c := newModel(m.name, m.table)
	for _, p := range m.props.Values() {
		c.setProperty(p.Clone())
	}
	return c
}
