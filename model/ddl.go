package model

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/burugo/migrant"
)

// TypeMapping maps property kinds to column types per dialect.
var TypeMapping = map[string]map[string]string{
	"mysql": {
		KindString:     "VARCHAR(255)",
		KindText:       "TEXT",
		KindInteger:    "INT",
		KindBigInteger: "BIGINT",
		KindFloat:      "DOUBLE",
		KindDecimal:    "DECIMAL(20,6)",
		KindBoolean:    "BOOLEAN",
		KindDateTime:   "DATETIME",
		KindDate:       "DATE",
		KindJSON:       "JSON",
		KindBinary:     "BLOB",
		KindUUID:       "CHAR(36)",
		KindBelongsTo:  "BIGINT",
	},
	"postgres": {
		KindString:     "VARCHAR(255)",
		KindText:       "TEXT",
		KindInteger:    "INTEGER",
		KindBigInteger: "BIGINT",
		KindFloat:      "DOUBLE PRECISION",
		KindDecimal:    "NUMERIC",
		KindBoolean:    "BOOLEAN",
		KindDateTime:   "TIMESTAMP",
		KindDate:       "DATE",
		KindJSON:       "JSONB",
		KindBinary:     "BYTEA",
		KindUUID:       "UUID",
		KindBelongsTo:  "BIGINT",
	},
	"sqlite": {
		KindString:     "TEXT",
		KindText:       "TEXT",
		KindInteger:    "INTEGER",
		KindBigInteger: "INTEGER",
		KindFloat:      "REAL",
		KindDecimal:    "NUMERIC",
		KindBoolean:    "BOOLEAN",
		KindDateTime:   "DATETIME",
		KindDate:       "DATE",
		KindJSON:       "TEXT",
		KindBinary:     "BLOB",
		KindUUID:       "TEXT",
		KindBelongsTo:  "INTEGER",
	},
}

var primaryKeyDef = map[string]string{
	"mysql":    "BIGINT AUTO_INCREMENT PRIMARY KEY",
	"postgres": "BIGSERIAL PRIMARY KEY",
	"sqlite":   "INTEGER PRIMARY KEY AUTOINCREMENT",
}

// Change pairs the previous and new definition of a property kept on the same column.
type Change struct {
	From *Property
	To   *Property
}

// MovesColumn reports whether replacing from with to changes the backing column,
// in which case the edit is a removal plus an addition rather than a Change.
func MovesColumn(from, to *Property) bool {
	return from.Column() != to.Column() || from.IsAllowed() != to.IsAllowed()
}

// Snapshot returns a detached copy of the model bound to the same registry.
// Tasks keep snapshots so their DDL reflects the model at the time they were recorded.
func (m *Model) Snapshot() *Model {
	c := m.clone()
	c.registry = m.registry
	return c
}

func (m *Model) dialect() (migrant.Dialect, error) {
	if m.registry == nil || m.registry.dialect == nil {
		return nil, fmt.Errorf("%w: model %s has no dialect", migrant.ErrUnsupportedDialect, m.name)
	}
	d := m.registry.dialect
	if _, ok := TypeMapping[d.Name()]; !ok {
		return nil, fmt.Errorf("%w: %s", migrant.ErrUnsupportedDialect, d.Name())
	}
	return d, nil
}

// Setup creates the model's table and indexes.
func (m *Model) Setup(ctx context.Context, exec migrant.Execer) error {
	d, err := m.dialect()
	if err != nil {
		return err
	}
	stmts, err := m.CreateTableSQL(d)
	if err != nil {
		return err
	}
	return run(ctx, exec, stmts)
}

// Destroy drops the model's table.
func (m *Model) Destroy(ctx context.Context, exec migrant.Execer) error {
	d, err := m.dialect()
	if err != nil {
		return err
	}
	return run(ctx, exec, []string{m.DropTableSQL(d)})
}

// Edit alters the model's table. The model must already hold the new definitions.
func (m *Model) Edit(ctx context.Context, exec migrant.Execer, added, removed []*Property, changed []Change) error {
	d, err := m.dialect()
	if err != nil {
		return err
	}
	stmts, err := m.AlterTableSQL(d, added, removed, changed)
	if err != nil {
		return err
	}
	return run(ctx, exec, stmts)
}

func run(ctx context.Context, exec migrant.Execer, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := exec.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to execute %q: %w", stmt, err)
		}
	}
	return nil
}

// CreateTableSQL returns the CREATE TABLE statement followed by CREATE INDEX statements.
func (m *Model) CreateTableSQL(d migrant.Dialect) ([]string, error) {
	create, err := m.createTable(d, m.table)
	if err != nil {
		return nil, err
	}
	return append([]string{create}, m.indexSQL(d, m.Columns())...), nil
}

func (m *Model) createTable(d migrant.Dialect, table string) (string, error) {
	defs := []string{d.Quote(primaryKey) + " " + primaryKeyDef[d.Name()]}
	var constraints []string
	for _, p := range m.Columns() {
		def, err := columnDef(d, p)
		if err != nil {
			return "", err
		}
		defs = append(defs, def)
		if p.Kind() == KindBelongsTo && d.Name() != "sqlite" {
			constraints = append(constraints, foreignKeyDef(d, m.table, p))
		}
	}
	defs = append(defs, constraints...)
	return fmt.Sprintf("CREATE TABLE %s (\n  %s\n)", d.Quote(table), strings.Join(defs, ",\n  ")), nil
}

// DropTableSQL returns the DROP TABLE statement.
func (m *Model) DropTableSQL(d migrant.Dialect) string {
	return "DROP TABLE " + d.Quote(m.table)
}

// AlterTableSQL returns the statements that move the table from its previous
// definition to the model's current one.
func (m *Model) AlterTableSQL(d migrant.Dialect, added, removed []*Property, changed []Change) ([]string, error) {
	added = columnsOnly(added)
	removed = columnsOnly(removed)
	var kept []Change
	for _, c := range changed {
		if c.From.IsAllowed() && c.To.IsAllowed() {
			kept = append(kept, c)
		}
	}
	for _, p := range added {
		if err := checkTarget(p); err != nil {
			return nil, err
		}
	}
	if d.Name() == "sqlite" && needsRebuild(added, removed, kept) {
		return m.rebuildSQL(d, added)
	}

	table := d.Quote(m.table)
	var stmts []string
	for _, p := range removed {
		stmts = append(stmts, dropIndexSQL(d, m.table, p)...)
		if p.Kind() == KindBelongsTo && d.Name() == "mysql" {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s", table, d.Quote(fkName(m.table, p))))
		}
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", table, d.Quote(p.Column())))
	}
	for _, p := range added {
		def, err := columnDef(d, p)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", table, def))
		if p.Kind() == KindBelongsTo && d.Name() != "sqlite" {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD %s", table, foreignKeyDef(d, m.table, p)))
		}
		stmts = append(stmts, m.indexSQL(d, []*Property{p})...)
	}
	for _, c := range kept {
		alter, err := m.changeColumnSQL(d, c)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, alter...)
	}
	return stmts, nil
}

func columnsOnly(props []*Property) []*Property {
	var out []*Property
	for _, p := range props {
		if p.IsAllowed() {
			out = append(out, p)
		}
	}
	return out
}

// needsRebuild reports whether sqlite must copy the table instead of using ALTER TABLE.
func needsRebuild(added, removed []*Property, changed []Change) bool {
	if len(removed) > 0 || len(changed) > 0 {
		return true
	}
	for _, p := range added {
		if _, ok := p.DefaultLiteral(); p.IsRequired() && !ok {
			return true
		}
	}
	return false
}

// rebuildSQL recreates the table under a temporary name, copies the surviving
// columns and swaps the tables.
func (m *Model) rebuildSQL(d migrant.Dialect, added []*Property) ([]string, error) {
	tmp := m.table + "__new"
	create, err := m.createTable(d, tmp)
	if err != nil {
		return nil, err
	}
	skip := make(map[string]bool, len(added))
	for _, p := range added {
		skip[p.Column()] = true
	}
	cols := []string{d.Quote(primaryKey)}
	for _, p := range m.Columns() {
		if !skip[p.Column()] {
			cols = append(cols, d.Quote(p.Column()))
		}
	}
	list := strings.Join(cols, ", ")
	stmts := []string{
		create,
		fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", d.Quote(tmp), list, list, d.Quote(m.table)),
		"DROP TABLE " + d.Quote(m.table),
		fmt.Sprintf("ALTER TABLE %s RENAME TO %s", d.Quote(tmp), d.Quote(m.table)),
	}
	return append(stmts, m.indexSQL(d, m.Columns())...), nil
}

func (m *Model) changeColumnSQL(d migrant.Dialect, c Change) ([]string, error) {
	table := d.Quote(m.table)
	col := d.Quote(c.To.Column())
	var stmts []string
	switch d.Name() {
	case "postgres":
		if from, to := columnType(d, c.From), columnType(d, c.To); from != to {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s USING %s::%s", table, col, to, col, to))
		}
		if c.From.IsRequired() != c.To.IsRequired() {
			action := "DROP NOT NULL"
			if c.To.IsRequired() {
				action = "SET NOT NULL"
			}
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s %s", table, col, action))
		}
		fromDef, _ := c.From.DefaultLiteral()
		toDef, hasDef := c.To.DefaultLiteral()
		if fromDef != toDef {
			if hasDef {
				stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s", table, col, sqlLiteral(d, toDef)))
			} else {
				stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT", table, col))
			}
		}
	case "mysql":
		def, err := columnDef(d, c.To)
		if err != nil {
			return nil, err
		}
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s", table, def))
	}
	if c.To.Kind() == KindBelongsTo && c.From.Target().Name() != c.To.Target().Name() {
		if err := checkTarget(c.To); err != nil {
			return nil, err
		}
		if d.Name() == "mysql" {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s DROP FOREIGN KEY %s", table, d.Quote(fkName(m.table, c.To))))
		} else {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s DROP CONSTRAINT IF EXISTS %s", table, d.Quote(fkName(m.table, c.To))))
		}
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD %s", table, foreignKeyDef(d, m.table, c.To)))
	}
	if c.From.IsIndexed() != c.To.IsIndexed() || c.From.IsUnique() != c.To.IsUnique() {
		stmts = append(stmts, dropIndexSQL(d, m.table, c.From)...)
		stmts = append(stmts, m.indexSQL(d, []*Property{c.To})...)
	}
	return stmts, nil
}

func checkTarget(p *Property) error {
	if p.Kind() == KindBelongsTo && !p.target.IsResolved() {
		return fmt.Errorf("%w: %s references %s", migrant.ErrUnresolvedReference, p.name, p.target.name)
	}
	return nil
}

func columnType(d migrant.Dialect, p *Property) string {
	if p.Kind() == KindString {
		if n := p.SizeHint(); n > 0 {
			return "VARCHAR(" + strconv.Itoa(n) + ")"
		}
	}
	return TypeMapping[d.Name()][p.Kind()]
}

func columnDef(d migrant.Dialect, p *Property) (string, error) {
	parts := []string{d.Quote(p.Column()), columnType(d, p)}
	if p.IsRequired() {
		parts = append(parts, "NOT NULL")
	}
	if lit, ok := p.DefaultLiteral(); ok {
		parts = append(parts, "DEFAULT "+sqlLiteral(d, lit))
	}
	if p.Kind() == KindBelongsTo {
		if err := checkTarget(p); err != nil {
			return "", err
		}
		if d.Name() == "sqlite" {
			parts = append(parts, fmt.Sprintf("REFERENCES %s (%s)", d.Quote(p.target.model.table), d.Quote(primaryKey)))
		}
	}
	return strings.Join(parts, " "), nil
}

func fkName(table string, p *Property) string {
	return fmt.Sprintf("fk_%s_%s", table, p.Column())
}

func foreignKeyDef(d migrant.Dialect, table string, p *Property) string {
	return fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
		d.Quote(fkName(table, p)), d.Quote(p.Column()), d.Quote(p.target.model.table), d.Quote(primaryKey))
}

// sqlLiteral converts a canonical clause literal to SQL.
func sqlLiteral(d migrant.Dialect, lit string) string {
	switch v := LiteralValue(lit).(type) {
	case string:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	case bool:
		if d.Name() == "sqlite" {
			if v {
				return "1"
			}
			return "0"
		}
		return strings.ToUpper(strconv.FormatBool(v))
	default:
		return lit
	}
}

func indexName(table string, p *Property, unique bool) string {
	if unique {
		return fmt.Sprintf("uniq_%s_%s", table, p.Column())
	}
	return fmt.Sprintf("idx_%s_%s", table, p.Column())
}

// indexSQL returns CREATE INDEX statements for the Unique and Index clauses of props.
func (m *Model) indexSQL(d migrant.Dialect, props []*Property) []string {
	var stmts []string
	for _, p := range props {
		if p.IsUnique() {
			stmts = append(stmts, fmt.Sprintf("CREATE UNIQUE INDEX %s ON %s (%s)",
				d.Quote(indexName(m.table, p, true)), d.Quote(m.table), d.Quote(p.Column())))
		}
		if p.IsIndexed() {
			stmts = append(stmts, fmt.Sprintf("CREATE INDEX %s ON %s (%s)",
				d.Quote(indexName(m.table, p, false)), d.Quote(m.table), d.Quote(p.Column())))
		}
	}
	return stmts
}

func dropIndexSQL(d migrant.Dialect, table string, p *Property) []string {
	var names []string
	if p.IsUnique() {
		names = append(names, indexName(table, p, true))
	}
	if p.IsIndexed() {
		names = append(names, indexName(table, p, false))
	}
	stmts := make([]string, 0, len(names))
	for _, name := range names {
		if d.Name() == "mysql" {
			stmts = append(stmts, fmt.Sprintf("DROP INDEX %s ON %s", d.Quote(name), d.Quote(table)))
		} else {
			stmts = append(stmts, "DROP INDEX "+d.Quote(name))
		}
	}
	return stmts
}
