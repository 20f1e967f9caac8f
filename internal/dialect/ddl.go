package dialect

import (
	"fmt"
	"hash/fnv"
	"strings"

	"github.com/egoughnour/schemasync/internal/schema"
)

// Identifiers and constraint strings interpolated here come from schema
// documents the application ships, not from request input. Every table and
// column name is still checked against schema.ValidIdentifier before it is
// written into a statement; values never are, they only appear in DEFAULT
// and CHECK clauses of the schema itself.

// maxIdentifier is the shortest identifier limit of the supported engines.
const maxIdentifier = 63

type columnMode int

const (
	modeCreate   columnMode = iota // CREATE TABLE: NOT NULL columns get a default
	modeAdd                        // ADD COLUMN as declared
	modeNullable                   // ADD COLUMN before a back-fill
	modeModify                     // full redefinition when tightening
)

// Builder renders DDL for one dialect.
type Builder struct {
	d Dialect
}

// NewBuilder creates a DDL builder for d.
func NewBuilder(d Dialect) *Builder {
	return &Builder{d: d}
}

// Dialect returns the dialect the builder renders for.
func (b *Builder) Dialect() Dialect { return b.d }

// CreateTable renders CREATE TABLE for t under the given name. The name
// differs from t.Name when a replacement table is being built.
func (b *Builder) CreateTable(t *schema.Table, name string) (string, error) {
	if err := schema.ValidIdentifier(name); err != nil {
		return "", err
	}

	defs := make([]string, 0, len(t.Columns)+len(t.ForeignKeys)+1)
	for _, c := range t.Columns {
		def, err := b.column(c, modeCreate)
		if err != nil {
			return "", fmt.Errorf("table %s: %w", t.Name, err)
		}
		defs = append(defs, def)
	}

	for _, c := range t.Columns {
		if c.IsUnique() && !c.IsPrimaryKey() && !b.d.InlineUnique(c.Type) {
			defs = append(defs, b.uniqueClause(t, []string{c.Name}))
		}
	}
	if len(t.Unique) > 0 {
		if err := validNames(t.Unique...); err != nil {
			return "", fmt.Errorf("table %s: %w", t.Name, err)
		}
		defs = append(defs, b.uniqueClause(t, t.Unique))
	}
	for _, fk := range t.ForeignKeys {
		clause, err := b.foreignKeyClause(t.Name, fk)
		if err != nil {
			return "", fmt.Errorf("table %s: %w", t.Name, err)
		}
		defs = append(defs, clause)
	}

	return fmt.Sprintf("CREATE TABLE %s (%s)", b.d.Quote(name), strings.Join(defs, ", ")), nil
}

// AddColumn renders ALTER TABLE ADD COLUMN. With nullable set, NOT NULL is
// left out so the column can be back-filled first.
func (b *Builder) AddColumn(table string, c schema.Column, nullable bool) (string, error) {
	if err := schema.ValidIdentifier(table); err != nil {
		return "", err
	}
	mode := modeAdd
	if nullable {
		mode = modeNullable
	}
	def, err := b.column(c, mode)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", b.d.Quote(table), def), nil
}

// Backfill renders the UPDATE giving NULL cells of c the type's zero value.
func (b *Builder) Backfill(table string, c schema.Column) (string, error) {
	if err := validNames(table, c.Name); err != nil {
		return "", err
	}
	col := b.d.Quote(c.Name)
	return fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s IS NULL",
		b.d.Quote(table), col, b.zeroValue(c), col), nil
}

// SetNotNull renders the statement tightening c to NOT NULL.
func (b *Builder) SetNotNull(table string, c schema.Column) (string, error) {
	if err := schema.ValidIdentifier(table); err != nil {
		return "", err
	}
	def, err := b.column(c, modeModify)
	if err != nil {
		return "", err
	}
	stmt := b.d.SetNotNull(table, c.Name, def)
	if stmt == "" {
		return "", fmt.Errorf("%s cannot tighten %s.%s in place", b.d.Name(), table, c.Name)
	}
	return stmt, nil
}

// AddUnique renders ALTER TABLE ADD CONSTRAINT ... UNIQUE for the group.
func (b *Builder) AddUnique(t *schema.Table, columns []string) (string, error) {
	if err := validNames(append([]string{t.Name}, columns...)...); err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s ADD %s", b.d.Quote(t.Name), b.uniqueClause(t, columns)), nil
}

// AddForeignKey renders ALTER TABLE ADD CONSTRAINT ... FOREIGN KEY.
func (b *Builder) AddForeignKey(table string, fk schema.ForeignKey) (string, error) {
	if err := schema.ValidIdentifier(table); err != nil {
		return "", err
	}
	clause, err := b.foreignKeyClause(table, fk)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s ADD %s", b.d.Quote(table), clause), nil
}

// CopyRows renders INSERT ... SELECT of the given columns from one table
// into another.
func (b *Builder) CopyRows(from, to string, columns []string) (string, error) {
	if err := validNames(append([]string{from, to}, columns...)...); err != nil {
		return "", err
	}
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = b.d.Quote(c)
	}
	list := strings.Join(quoted, ", ")
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s", b.d.Quote(to), list, list, b.d.Quote(from)), nil
}

// DropTable renders DROP TABLE.
func (b *Builder) DropTable(name string, ifExists bool) (string, error) {
	if err := schema.ValidIdentifier(name); err != nil {
		return "", err
	}
	if ifExists {
		return "DROP TABLE IF EXISTS " + b.d.Quote(name), nil
	}
	return "DROP TABLE " + b.d.Quote(name), nil
}

// RenameTable renders ALTER TABLE ... RENAME TO.
func (b *Builder) RenameTable(from, to string) (string, error) {
	if err := validNames(from, to); err != nil {
		return "", err
	}
	return fmt.Sprintf("ALTER TABLE %s RENAME TO %s", b.d.Quote(from), b.d.Quote(to)), nil
}

// column renders one column definition.
func (b *Builder) column(c schema.Column, mode columnMode) (string, error) {
	if err := schema.ValidIdentifier(c.Name); err != nil {
		return "", err
	}
	name := b.d.Quote(c.Name)
	constraints := c.Constraints

	if c.IsPrimaryKey() && c.IsAutoIncrement() {
		for _, w := range [][]string{{"PRIMARY", "KEY"}, {"AUTOINCREMENT"}, {"AUTO_INCREMENT"}, {"AUTO"}} {
			constraints = schema.RemoveWords(constraints, w...)
		}
		return joinParts(name, b.d.AutoIncrementKey(), constraints), nil
	}

	engine, _ := b.d.MapType(c.Type)
	if mode == modeModify || !b.d.InlineUnique(c.Type) {
		constraints = schema.RemoveWords(constraints, "UNIQUE")
	}
	switch mode {
	case modeCreate:
		if _, ok := c.Default(); !ok && c.IsNotNull() && !c.IsPrimaryKey() {
			constraints = joinParts(constraints, "DEFAULT", b.d.ZeroValue(c.Type))
		}
	case modeNullable:
		constraints = schema.RemoveWords(constraints, "NOT", "NULL")
	}
	constraints = schema.ReplaceDefault(constraints, func(literal string) string {
		return b.d.NormalizeDefault(c.Type, literal)
	})

	return joinParts(name, engine, constraints), nil
}

func (b *Builder) zeroValue(c schema.Column) string {
	return b.d.NormalizeDefault(c.Type, b.d.ZeroValue(c.Type))
}

func (b *Builder) uniqueClause(t *schema.Table, columns []string) string {
	keys := make([]string, len(columns))
	for i, name := range columns {
		abstract := ""
		if c, ok := t.Column(name); ok {
			abstract = c.Type
		}
		keys[i] = b.d.KeyColumn(name, abstract)
	}
	return fmt.Sprintf("CONSTRAINT %s UNIQUE (%s)", UniqueName(t.Name, columns), strings.Join(keys, ", "))
}

func (b *Builder) foreignKeyClause(table string, fk schema.ForeignKey) (string, error) {
	if err := validNames(fk.Column, fk.ParentTable, fk.ParentColumn); err != nil {
		return "", err
	}
	return joinParts(
		fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s(%s)",
			ForeignKeyName(table, fk.Column), b.d.Quote(fk.Column), b.d.Quote(fk.ParentTable), b.d.Quote(fk.ParentColumn)),
		fk.Instruction,
	), nil
}

// UniqueName is the constraint name of a unique group. Columns are used in
// declaration order so the name is stable across passes.
func UniqueName(table string, columns []string) string {
	return constraintName("uniq", table, columns...)
}

// ForeignKeyName is the constraint name of a foreign key on column.
func ForeignKeyName(table, column string) string {
	return constraintName("fk", table, column)
}

// constraintName joins the parts and, past the identifier limit, truncates
// and appends an FNV-1a hash of the full name to keep it unique.
func constraintName(prefix, table string, parts ...string) string {
	name := strings.ToLower(prefix + "_" + table + "_" + strings.Join(parts, "_"))
	if len(name) <= maxIdentifier {
		return name
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(name))
	suffix := fmt.Sprintf("_%08x", h.Sum32())
	return name[:maxIdentifier-len(suffix)] + suffix
}

func validNames(names ...string) error {
	for _, n := range names {
		if err := schema.ValidIdentifier(n); err != nil {
			return err
		}
	}
	return nil
}

func joinParts(parts ...string) string {
	var out []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
