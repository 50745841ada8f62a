package model

import (
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/burugo/migrant"
)

// Property is a named, typed attribute of a model. Its definition is an ordered clause list.
type Property struct {
	name    string
	model   *Model
	clauses []Clause
	target  Ref
	through Ref
}

func newProperty(kind string, arg string) *Property {
	p := &Property{clauses: []Clause{{Name: kind, Arg: arg}}}
	if isAssociationKind(kind) {
		p.target = Unresolved(arg)
	}
	return p
}

func String() *Property     { return newProperty(KindString, "") }
func Text() *Property       { return newProperty(KindText, "") }
func Integer() *Property    { return newProperty(KindInteger, "") }
func BigInteger() *Property { return newProperty(KindBigInteger, "") }
func Float() *Property      { return newProperty(KindFloat, "") }
func Decimal() *Property    { return newProperty(KindDecimal, "") }
func Boolean() *Property    { return newProperty(KindBoolean, "") }
func DateTime() *Property   { return newProperty(KindDateTime, "") }
func Date() *Property       { return newProperty(KindDate, "") }
func JSON() *Property       { return newProperty(KindJSON, "") }
func Binary() *Property     { return newProperty(KindBinary, "") }
func UUID() *Property       { return newProperty(KindUUID, "") }

// BelongsTo declares a foreign key column <name>_id referencing the target model.
func BelongsTo(target string) *Property { return newProperty(KindBelongsTo, target) }

// HasOne declares the inverse side of a one-to-one association. It has no column.
func HasOne(target string) *Property { return newProperty(KindHasOne, target) }

// HasMany declares the inverse side of a one-to-many association, or a
// many-to-many association when combined with Through. It has no column.
func HasMany(target string) *Property { return newProperty(KindHasMany, target) }

// Field returns a copy of p named name.
func Field(name string, p *Property) *Property {
	c := p.Clone()
	c.name = name
	return c
}

func (p *Property) with(c Clause) *Property {
	p.clauses = canonicalize(append(p.clauses, c))
	return p
}

func (p *Property) Size(n int) *Property {
	return p.with(Clause{Name: ClauseSize, Arg: strconv.Itoa(n)})
}

func (p *Property) Required() *Property { return p.with(Clause{Name: ClauseRequired}) }
func (p *Property) Unique() *Property   { return p.with(Clause{Name: ClauseUnique}) }
func (p *Property) Index() *Property    { return p.with(Clause{Name: ClauseIndex}) }
func (p *Property) Private() *Property  { return p.with(Clause{Name: ClausePrivate}) }

// Default sets the column default. v must be a string, bool, integer or float.
func (p *Property) Default(v interface{}) *Property {
	return p.with(Clause{Name: ClauseDefault, Arg: formatLiteral(v)})
}

// Through turns a HasMany into a many-to-many association via the join model.
func (p *Property) Through(model string) *Property {
	p.through = Unresolved(model)
	return p.with(Clause{Name: ClauseThrough, Arg: model})
}

// Name returns the property name.
func (p *Property) Name() string { return p.name }

// Model returns the owning model, or nil for a detached property.
func (p *Property) Model() *Model { return p.model }

// Kind returns the type clause name, e.g. "String" or "BelongsTo".
func (p *Property) Kind() string { return p.clauses[0].Name }

// Clauses returns a copy of the canonical clause list.
func (p *Property) Clauses() []Clause { return slices.Clone(p.clauses) }

// Target returns the associated model reference. It is zero for non-associations.
func (p *Property) Target() Ref { return p.target }

// ThroughRef returns the join model reference of a many-to-many association.
func (p *Property) ThroughRef() Ref { return p.through }

func (p *Property) has(name string) bool {
	_, ok := p.clause(name)
	return ok
}

func (p *Property) clause(name string) (Clause, bool) {
	for _, c := range p.clauses {
		if c.Name == name {
			return c, true
		}
	}
	return Clause{}, false
}

func (p *Property) IsRequired() bool { return p.has(ClauseRequired) }
func (p *Property) IsUnique() bool   { return p.has(ClauseUnique) }
func (p *Property) IsIndexed() bool  { return p.has(ClauseIndex) }
func (p *Property) IsPrivate() bool  { return p.has(ClausePrivate) }

// IsAssociation reports whether the property relates its model to another model.
func (p *Property) IsAssociation() bool { return isAssociationKind(p.Kind()) }

// IsAllowed reports whether the property is materialised as a table column.
func (p *Property) IsAllowed() bool {
	return !p.IsAssociation() || p.Kind() == KindBelongsTo
}

// Column returns the column name backing the property.
func (p *Property) Column() string {
	if p.Kind() == KindBelongsTo {
		return p.name + "_id"
	}
	return p.name
}

// SizeHint returns the Size clause value, or 0.
func (p *Property) SizeHint() int {
	c, ok := p.clause(ClauseSize)
	if !ok {
		return 0
	}
	n, _ := strconv.Atoi(c.Arg)
	return n
}

// DefaultLiteral returns the canonical Default literal, if any.
func (p *Property) DefaultLiteral() (string, bool) {
	c, ok := p.clause(ClauseDefault)
	return c.Arg, ok
}

// Equal reports whether both properties have the same canonical clauses.
func (p *Property) Equal(o *Property) bool {
	if p == nil || o == nil {
		return p == o
	}
	return slices.Equal(p.clauses, o.clauses)
}

// String renders the definition in constructor-call syntax. Equal properties render identically.
func (p *Property) String() string {
	parts := make([]string, len(p.clauses))
	for i, c := range p.clauses {
		parts[i] = c.render()
	}
	return strings.Join(parts, ".")
}

// Clone returns a detached copy. References keep their state.
func (p *Property) Clone() *Property {
	return &Property{
		name:    p.name,
		clauses: slices.Clone(p.clauses),
		target:  p.target,
		through: p.through,
	}
}

func (p *Property) validate() error {
	if p.name == "" {
		return fmt.Errorf("%w: property has no name (%s)", migrant.ErrInvalidProperty, p.String())
	}
	if p.name == primaryKey {
		return fmt.Errorf("%w: %q is reserved for the primary key", migrant.ErrInvalidProperty, p.name)
	}
	if len(p.clauses) == 0 || !isTypeClause(p.clauses[0].Name) {
		return fmt.Errorf("%w: property %q has no type", migrant.ErrInvalidProperty, p.name)
	}
	if p.has(ClauseThrough) && p.Kind() != KindHasMany {
		return fmt.Errorf("%w: Through requires HasMany on %q", migrant.ErrInvalidProperty, p.name)
	}
	return nil
}

// formatLiteral renders a Go value as a canonical literal.
func formatLiteral(v interface{}) string {
	switch x := v.(type) {
	case string:
		return strconv.Quote(x)
	case bool:
		return strconv.FormatBool(x)
	case int:
		return strconv.FormatInt(int64(x), 10)
	case int8:
		return strconv.FormatInt(int64(x), 10)
	case int16:
		return strconv.FormatInt(int64(x), 10)
	case int32:
		return strconv.FormatInt(int64(x), 10)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint:
		return strconv.FormatUint(uint64(x), 10)
	case uint8:
		return strconv.FormatUint(uint64(x), 10)
	case uint16:
		return strconv.FormatUint(uint64(x), 10)
	case uint32:
		return strconv.FormatUint(uint64(x), 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return strconv.Quote(fmt.Sprint(x))
	}
}

// canonicalLiteral normalises literal source text so equal values compare equal.
func canonicalLiteral(tok string) (string, error) {
	switch {
	case strings.HasPrefix(tok, `"`) || strings.HasPrefix(tok, "`"):
		s, err := strconv.Unquote(tok)
		if err != nil {
			return "", err
		}
		return strconv.Quote(s), nil
	case tok == "true" || tok == "false":
		return tok, nil
	}
	if i, err := strconv.ParseInt(tok, 10, 64); err == nil {
		return strconv.FormatInt(i, 10), nil
	}
	if f, err := strconv.ParseFloat(tok, 64); err == nil {
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	}
	return "", fmt.Errorf("invalid literal %q", tok)
}

// LiteralValue converts a canonical literal back to a Go value.
func LiteralValue(lit string) interface{} {
	if s, err := strconv.Unquote(lit); err == nil {
		return s
	}
	if lit == "true" || lit == "false" {
		return lit == "true"
	}
	if i, err := strconv.ParseInt(lit, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(lit, 64); err == nil {
		return f
	}
	return lit
}
