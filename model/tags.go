package model

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/burugo/migrant"
)

// TagName is the struct tag read by Register, e.g.
//
//	Author *User   `migrant:"belongsTo;required"`
//	Posts  []*Post `migrant:"hasMany"`
//	Tags   []*Tag  `migrant:"hasMany;through:BookTag"`
//	Title  string  `db:"title" migrant:"size:100;required;index"`
const TagName = "migrant"

// tableNamer lets a struct override its default table name.
type tableNamer interface {
	TableName() string
}

var timeType = reflect.TypeOf(time.Time{})

// Register declares one model per struct, named after the struct type.
// References between the registered structs are resolved once all are declared.
func (r *Registry) Register(structs ...interface{}) error {
	for _, s := range structs {
		def, err := DefinitionOf(s)
		if err != nil {
			return err
		}
		if _, err := r.Declare(def); err != nil {
			return err
		}
	}
	r.ResolveRefs()
	return nil
}

// DefinitionOf builds a model definition from a struct value or pointer.
func DefinitionOf(v interface{}) (Definition, error) {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil || t.Kind() != reflect.Struct {
		return Definition{}, fmt.Errorf("%w: expected a struct, got %T", migrant.ErrInvalidProperty, v)
	}
	def := Definition{Name: t.Name()}
	if tn, ok := reflect.New(t).Interface().(tableNamer); ok {
		def.Table = tn.TableName()
	}

	fields := collectFields(t)
	fkColumns := make(map[string]bool)
	var props []*Property
	for _, f := range fields {
		if f.kind != KindBelongsTo {
			continue
		}
		fkColumns[f.name+"_id"] = true
	}
	for _, f := range fields {
		if !isAssociationKind(f.kind) && (fkColumns[f.name] || f.name == primaryKey) {
			continue
		}
		p, err := f.property()
		if err != nil {
			return Definition{}, fmt.Errorf("model %s field %s: %w", def.Name, f.goName, err)
		}
		props = append(props, p)
	}
	def.Properties = props
	return def, nil
}

type structField struct {
	goName string
	name   string
	kind   string
	target string
	opts   map[string]string
}

func collectFields(t reflect.Type) []structField {
	var out []structField
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.Anonymous && field.Type.Kind() == reflect.Struct && field.Type != timeType {
			out = append(out, collectFields(field.Type)...)
			continue
		}
		dbTag := field.Tag.Get("db")
		tag, hasTag := field.Tag.Lookup(TagName)
		if !field.IsExported() || dbTag == "-" || tag == "-" {
			continue
		}
		name := strings.SplitN(dbTag, ",", 2)[0]
		if name == "" {
			name = ToSnakeCase(field.Name)
		}
		f := structField{goName: field.Name, name: name, opts: map[string]string{}}
		ft := field.Type
		if ft.Kind() == reflect.Ptr {
			ft = ft.Elem()
		}
		if hasTag {
			f.kind, f.opts = parseTag(tag)
		}
		if isAssociationKind(f.kind) {
			f.name = strings.TrimSuffix(name, "_id")
			f.target = f.opts["model"]
			if f.target == "" {
				f.target = elemName(field.Type)
			}
		} else if k, ok := f.opts["type"]; ok {
			f.kind = k
		} else {
			f.kind = kindOf(ft)
		}
		out = append(out, f)
	}
	return out
}

// parseTag splits `belongsTo;model:User;required` into the association kind and options.
func parseTag(tag string) (kind string, opts map[string]string) {
	opts = make(map[string]string)
	for _, part := range strings.Split(tag, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, value, _ := strings.Cut(part, ":")
		key = strings.TrimSpace(key)
		switch key {
		case "belongsTo":
			kind = KindBelongsTo
		case "hasOne":
			kind = KindHasOne
		case "hasMany":
			kind = KindHasMany
		default:
			opts[key] = strings.TrimSpace(value)
		}
	}
	return kind, opts
}

func elemName(t reflect.Type) string {
	for t.Kind() == reflect.Ptr || t.Kind() == reflect.Slice || t.Kind() == reflect.Array {
		t = t.Elem()
	}
	return t.Name()
}

func kindOf(t reflect.Type) string {
	switch {
	case t == timeType:
		return KindDateTime
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8:
		return KindBinary
	}
	switch t.Kind() {
	case reflect.String:
		return KindString
	case reflect.Bool:
		return KindBoolean
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32:
		return KindInteger
	case reflect.Int64, reflect.Uint64:
		return KindBigInteger
	case reflect.Float32, reflect.Float64:
		return KindFloat
	default:
		return KindJSON
	}
}

func (f structField) property() (*Property, error) {
	if !isTypeClause(f.kind) {
		return nil, fmt.Errorf("%w: unknown type %q", migrant.ErrInvalidProperty, f.kind)
	}
	p := newProperty(f.kind, f.target)
	p.name = f.name
	for key, value := range f.opts {
		switch key {
		case "model", "type":
		case "required":
			p.Required()
		case "unique":
			p.Unique()
		case "index":
			p.Index()
		case "private":
			p.Private()
		case "size":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("%w: size %q", migrant.ErrInvalidProperty, value)
			}
			p.Size(n)
		case "default":
			p.Default(tagDefault(f.kind, value))
		case "through":
			p.Through(value)
		default:
			return nil, fmt.Errorf("%w: unknown tag option %q", migrant.ErrInvalidProperty, key)
		}
	}
	return p, p.validate()
}

// tagDefault interprets a tag default for the property kind. Text kinds keep the raw string.
func tagDefault(kind, raw string) interface{} {
	switch kind {
	case KindBoolean:
		if b, err := strconv.ParseBool(raw); err == nil {
			return b
		}
	case KindInteger, KindBigInteger:
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return i
		}
	case KindFloat, KindDecimal:
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			return f
		}
	}
	return raw
}
