package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"text/scanner"

	"github.com/burugo/migrant"
)

// ParseProperty parses a definition written in constructor-call syntax, such as
// `String().Size(100).Required()` or `HasMany("Tag").Through("BookTag")`.
// It accepts exactly what Property.String produces.
func ParseProperty(name, def string) (*Property, error) {
	clauses, err := parseClauses(def)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", migrant.ErrInvalidProperty, name, err)
	}
	var p *Property
	for _, c := range clauses {
		if isTypeClause(c.Name) {
			if p != nil {
				return nil, fmt.Errorf("%w: %s: more than one type in %q", migrant.ErrInvalidProperty, name, def)
			}
			p = newProperty(c.Name, c.Arg)
		}
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s: no type in %q", migrant.ErrInvalidProperty, name, def)
	}
	for _, c := range clauses {
		switch {
		case isTypeClause(c.Name):
		case c.Name == ClauseThrough:
			p.Through(c.Arg)
		default:
			p.with(c)
		}
	}
	p.name = name
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func parseClauses(def string) ([]Clause, error) {
	var s scanner.Scanner
	s.Init(strings.NewReader(def))
	s.Mode = scanner.ScanIdents | scanner.ScanInts | scanner.ScanFloats | scanner.ScanStrings | scanner.ScanRawStrings
	var scanErr error
	s.Error = func(_ *scanner.Scanner, msg string) {
		if scanErr == nil {
			scanErr = errors.New(msg)
		}
	}

	var clauses []Clause
	for {
		if tok := s.Scan(); tok != scanner.Ident {
			return nil, fmt.Errorf("expected clause name at %s, got %q", s.Position, s.TokenText())
		}
		name := s.TokenText()
		spec, ok := clauseSpecs[name]
		if !ok {
			return nil, fmt.Errorf("unknown clause %q", name)
		}
		if s.Scan() != '(' {
			return nil, fmt.Errorf("expected '(' after %s", name)
		}
		c := Clause{Name: name}
		tok := s.Scan()
		if tok == ')' {
			if spec.arg != argNone {
				return nil, fmt.Errorf("%s requires an argument", name)
			}
		} else {
			text := s.TokenText()
			if tok == '-' {
				tok = s.Scan()
				text = "-" + s.TokenText()
			}
			arg, err := clauseArg(spec.arg, tok, text)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", name, err)
			}
			c.Arg = arg
			if s.Scan() != ')' {
				return nil, fmt.Errorf("expected ')' after %s argument", name)
			}
		}
		clauses = append(clauses, c)

		tok = s.Scan()
		if tok == scanner.EOF {
			break
		}
		if tok != '.' {
			return nil, fmt.Errorf("expected '.' between clauses, got %q", s.TokenText())
		}
	}
	if scanErr != nil {
		return nil, scanErr
	}
	return clauses, nil
}

func clauseArg(kind argKind, tok rune, text string) (string, error) {
	switch kind {
	case argModel:
		if tok != scanner.String && tok != scanner.RawString {
			return "", fmt.Errorf("expected model name string, got %s", text)
		}
		return strconv.Unquote(text)
	case argInt:
		if tok != scanner.Int {
			return "", fmt.Errorf("expected integer, got %s", text)
		}
		n, err := strconv.Atoi(text)
		if err != nil {
			return "", err
		}
		return strconv.Itoa(n), nil
	case argLiteral:
		return canonicalLiteral(text)
	default:
		return "", errors.New("takes no argument")
	}
}
