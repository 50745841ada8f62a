package model

import (
	"sort"
	"strconv"
)

// Type clauses. Exactly one of them heads every property.
const (
	KindString     = "String"
	KindText       = "Text"
	KindInteger    = "Integer"
	KindBigInteger = "BigInteger"
	KindFloat      = "Float"
	KindDecimal    = "Decimal"
	KindBoolean    = "Boolean"
	KindDateTime   = "DateTime"
	KindDate       = "Date"
	KindJSON       = "JSON"
	KindBinary     = "Binary"
	KindUUID       = "UUID"

	KindBelongsTo = "BelongsTo"
	KindHasOne    = "HasOne"
	KindHasMany   = "HasMany"
)

// Modifier clauses.
const (
	ClauseSize     = "Size"
	ClauseRequired = "Required"
	ClauseUnique   = "Unique"
	ClauseIndex    = "Index"
	ClauseDefault  = "Default"
	ClausePrivate  = "Private"
	ClauseThrough  = "Through"
)

// Clause is one call in a property definition, e.g. Size(100) or BelongsTo("User").
// Arg holds the raw argument: a model name, a decimal integer or a canonical literal.
type Clause struct {
	Name string
	Arg  string
}

type argKind int

const (
	argNone argKind = iota
	argModel
	argInt
	argLiteral
)

type clauseSpec struct {
	precedence int
	arg        argKind
	isType     bool
}

// clauseSpecs fixes the precedence index used to order clauses before comparison.
var clauseSpecs = map[string]clauseSpec{
	KindString:     {0, argNone, true},
	KindText:       {0, argNone, true},
	KindInteger:    {0, argNone, true},
	KindBigInteger: {0, argNone, true},
	KindFloat:      {0, argNone, true},
	KindDecimal:    {0, argNone, true},
	KindBoolean:    {0, argNone, true},
	KindDateTime:   {0, argNone, true},
	KindDate:       {0, argNone, true},
	KindJSON:       {0, argNone, true},
	KindBinary:     {0, argNone, true},
	KindUUID:       {0, argNone, true},
	KindBelongsTo:  {0, argModel, true},
	KindHasOne:     {0, argModel, true},
	KindHasMany:    {0, argModel, true},

	ClauseSize:     {1, argInt, false},
	ClauseRequired: {2, argNone, false},
	ClauseUnique:   {3, argNone, false},
	ClauseIndex:    {4, argNone, false},
	ClauseDefault:  {5, argLiteral, false},
	ClausePrivate:  {6, argNone, false},
	ClauseThrough:  {7, argModel, false},
}

func isTypeClause(name string) bool {
	return clauseSpecs[name].isType
}

func isAssociationKind(kind string) bool {
	return kind == KindBelongsTo || kind == KindHasOne || kind == KindHasMany
}

// canonicalize returns the clauses ordered by precedence with duplicates collapsed.
// A later clause of the same name replaces an earlier one; a later type clause replaces the type.
func canonicalize(clauses []Clause) []Clause {
	out := make([]Clause, 0, len(clauses))
	for _, c := range clauses {
		replaced := false
		for i := range out {
			if out[i].Name == c.Name || (isTypeClause(c.Name) && isTypeClause(out[i].Name)) {
				out[i] = c
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return clauseSpecs[out[i].Name].precedence < clauseSpecs[out[j].Name].precedence
	})
	return out
}

// HasArg reports whether the clause takes an argument.
func (c Clause) HasArg() bool { return clauseSpecs[c.Name].arg != argNone }

// HasModelArg reports whether the argument is a model name, rendered as a quoted string.
func (c Clause) HasModelArg() bool { return clauseSpecs[c.Name].arg == argModel }

// render writes the clause in constructor-call syntax.
func (c Clause) render() string {
	switch clauseSpecs[c.Name].arg {
	case argModel:
		return c.Name + "(" + strconv.Quote(c.Arg) + ")"
	case argInt, argLiteral:
		return c.Name + "(" + c.Arg + ")"
	default:
		return c.Name + "()"
	}
}
