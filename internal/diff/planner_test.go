package diff

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egoughnour/schemasync/internal/dialect"
	"github.com/egoughnour/schemasync/internal/schema"
)

type fakeInspector struct {
	d           dialect.Dialect
	tables      map[string]*schema.LiveTable
	constraints map[string]bool
}

func newFake(t *testing.T, name dialect.Name) *fakeInspector {
	t.Helper()
	d, err := dialect.ForName(string(name))
	require.NoError(t, err)
	return &fakeInspector{d: d, tables: map[string]*schema.LiveTable{}, constraints: map[string]bool{}}
}

func (f *fakeInspector) Dialect() dialect.Dialect { return f.d }

func (f *fakeInspector) TableExists(_ context.Context, table string) (bool, error) {
	_, ok := f.tables[table]
	return ok, nil
}

func (f *fakeInspector) Inspect(_ context.Context, table string) (*schema.LiveTable, error) {
	return f.tables[table], nil
}

func (f *fakeInspector) ConstraintExists(_ context.Context, _, name string) (bool, error) {
	return f.constraints[name], nil
}

func productSchema(cols ...schema.Column) *schema.Schema {
	base := schema.Columns{
		schema.ParseColumn("id", "INTEGER PRIMARY KEY AUTOINCREMENT"),
		schema.ParseColumn("name", "TEXT NOT NULL"),
	}
	return &schema.Schema{Tables: []schema.Table{{Name: "product_table", Columns: append(base, cols...)}}}
}

func liveProducts(rows int64) *schema.LiveTable {
	return &schema.LiveTable{
		Columns:  map[string]string{"id": "INTEGER", "name": "TEXT"},
		RowCount: rows,
	}
}

func TestPlan_CreatesMissingTable(t *testing.T) {
	f := newFake(t, dialect.Postgres)

	p, err := NewPlanner(f, nil).Plan(context.Background(), productSchema())
	require.NoError(t, err)
	require.Len(t, p.Tables, 1)
	assert.False(t, p.Tables[0].Exists)
	assert.Equal(t, []Action{{Kind: CreateTable, Table: "product_table"}}, p.Tables[0].Actions)
	assert.Equal(t, dialect.Postgres, p.Dialect)
}

func TestPlan_UpToDate(t *testing.T) {
	f := newFake(t, dialect.Postgres)
	f.tables["product_table"] = liveProducts(3)

	p, err := NewPlanner(f, nil).Plan(context.Background(), productSchema())
	require.NoError(t, err)
	assert.True(t, p.IsEmpty())
	assert.Empty(t, p.Actions())

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, p))
	assert.Equal(t, "Schema is up to date (1 tables, postgres).\n", buf.String())
}

func TestPlan_BackfillsNotNullColumnOnPopulatedTable(t *testing.T) {
	f := newFake(t, dialect.Postgres)
	f.tables["product_table"] = liveProducts(10)

	s := productSchema(
		schema.ParseColumn("active", "BOOL NOT NULL"),
		schema.ParseColumn("price", "FLOAT NOT NULL DEFAULT 0.0"),
		schema.ParseColumn("note", "TEXT"),
	)
	p, err := NewPlanner(f, nil).Plan(context.Background(), s)
	require.NoError(t, err)

	actions := p.Actions()
	require.Len(t, actions, 3)
	for _, a := range actions {
		assert.Equal(t, AddColumn, a.Kind)
	}
	assert.Equal(t, "active", actions[0].Column.Name)
	assert.True(t, actions[0].Backfill)
	assert.False(t, actions[1].Backfill, "a declared default fills existing rows")
	assert.False(t, actions[2].Backfill, "nullable columns need no back-fill")
	assert.Equal(t, int64(10), p.Tables[0].RowCount)
}

func TestPlan_NoBackfillOnEmptyTable(t *testing.T) {
	f := newFake(t, dialect.MySQL)
	f.tables["product_table"] = liveProducts(0)

	p, err := NewPlanner(f, nil).Plan(context.Background(), productSchema(schema.ParseColumn("active", "BOOL NOT NULL")))
	require.NoError(t, err)
	require.Len(t, p.Actions(), 1)
	assert.False(t, p.Actions()[0].Backfill)
}

func TestPlan_InlineUniqueTravelsWithNewColumn(t *testing.T) {
	f := newFake(t, dialect.Postgres)
	f.tables["product_table"] = liveProducts(0)

	p, err := NewPlanner(f, nil).Plan(context.Background(), productSchema(schema.ParseColumn("sku", "TEXT UNIQUE")))
	require.NoError(t, err)
	actions := p.Actions()
	require.Len(t, actions, 1)
	assert.Equal(t, AddColumn, actions[0].Kind)
}

func TestPlan_MySQLTextUniqueNeedsSeparateKey(t *testing.T) {
	f := newFake(t, dialect.MySQL)
	f.tables["product_table"] = liveProducts(0)

	p, err := NewPlanner(f, nil).Plan(context.Background(), productSchema(schema.ParseColumn("sku", "TEXT UNIQUE")))
	require.NoError(t, err)
	actions := p.Actions()
	require.Len(t, actions, 2)
	assert.Equal(t, AddColumn, actions[0].Kind)
	assert.Equal(t, AddUnique, actions[1].Kind)
	assert.Equal(t, []string{"sku"}, actions[1].Unique)
	assert.Equal(t, "uniq_product_table_sku", actions[1].Constraint)
}

func TestPlan_ConstraintsOnExistingColumns(t *testing.T) {
	s := &schema.Schema{Tables: []schema.Table{
		{Name: "addon_table", Columns: schema.Columns{
			schema.ParseColumn("id", "INTEGER PRIMARY KEY AUTOINCREMENT"),
			schema.ParseColumn("name", "TEXT NOT NULL"),
			schema.ParseColumn("type", "TEXT NOT NULL"),
		}, Unique: []string{"name", "type"}},
		{Name: "setup_table", Columns: schema.Columns{
			schema.ParseColumn("id", "INTEGER PRIMARY KEY AUTOINCREMENT"),
			schema.ParseColumn("addon_id", "INTEGER"),
		}, ForeignKeys: []schema.ForeignKey{
			{Column: "addon_id", ParentTable: "addon_table", ParentColumn: "id", Instruction: "ON DELETE CASCADE"},
		}},
	}}

	f := newFake(t, dialect.Postgres)
	f.tables["addon_table"] = &schema.LiveTable{Columns: map[string]string{"id": "INTEGER", "name": "TEXT", "type": "TEXT"}}
	f.tables["setup_table"] = &schema.LiveTable{Columns: map[string]string{"id": "INTEGER", "addon_id": "INTEGER"}}

	p, err := NewPlanner(f, nil).Plan(context.Background(), s)
	require.NoError(t, err)
	actions := p.Actions()
	require.Len(t, actions, 2)
	assert.Equal(t, AddUnique, actions[0].Kind)
	assert.Equal(t, "uniq_addon_table_name_type", actions[0].Constraint)
	assert.Equal(t, AddForeignKey, actions[1].Kind)
	assert.Equal(t, "fk_setup_table_addon_id", actions[1].Constraint)
	assert.Equal(t, "addon_table", actions[1].ForeignKey.ParentTable)

	// A constraint that exists under its deterministic name is not re-added
	// even when introspection did not report it structurally.
	f.constraints["uniq_addon_table_name_type"] = true
	f.constraints["fk_setup_table_addon_id"] = true
	p, err = NewPlanner(f, nil).Plan(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, p.IsEmpty())
}

func TestPlan_SQLiteRecreatesTable(t *testing.T) {
	f := newFake(t, dialect.SQLite)
	f.tables["product_table"] = &schema.LiveTable{
		Columns:  map[string]string{"id": "INTEGER", "name": "TEXT", "legacy": "TEXT", "colour": "TEXT"},
		RowCount: 1,
	}

	s := productSchema(schema.ParseColumn("price", "FLOAT NOT NULL DEFAULT 0.0"))
	p, err := NewPlanner(f, nil).Plan(context.Background(), s)
	require.NoError(t, err)

	actions := p.Actions()
	require.Len(t, actions, 1)
	a := actions[0]
	assert.Equal(t, RecreateTable, a.Kind)
	assert.Equal(t, []string{"id", "name"}, a.Copy)
	assert.Equal(t, []string{"colour", "legacy"}, a.Dropped)
	assert.Equal(t, map[string][]string{"product_table": {"colour", "legacy"}}, p.Dropped())
	assert.Equal(t, "recreate table product_table copying (id, name) dropping (colour, legacy)", a.String())
}

func TestPlan_SQLiteRecreatesForMissingForeignKey(t *testing.T) {
	s := &schema.Schema{Tables: []schema.Table{
		{Name: "category_table", Columns: schema.Columns{schema.ParseColumn("id", "INTEGER PRIMARY KEY")}},
		{Name: "product_table", Columns: schema.Columns{
			schema.ParseColumn("id", "INTEGER PRIMARY KEY"),
			schema.ParseColumn("category_id", "INTEGER"),
		}, ForeignKeys: []schema.ForeignKey{{Column: "category_id", ParentTable: "category_table", ParentColumn: "id"}}},
	}}

	f := newFake(t, dialect.SQLite)
	f.tables["category_table"] = &schema.LiveTable{Columns: map[string]string{"id": "INTEGER"}}
	f.tables["product_table"] = &schema.LiveTable{Columns: map[string]string{"id": "INTEGER", "category_id": "INTEGER"}}

	p, err := NewPlanner(f, nil).Plan(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, p.Tables[0].UpToDate())
	require.Len(t, p.Tables[1].Actions, 1)
	assert.Equal(t, RecreateTable, p.Tables[1].Actions[0].Kind)
	assert.Empty(t, p.Tables[1].Actions[0].Dropped)

	f.tables["product_table"].ForeignKeys = []schema.ForeignKey{
		{Column: "category_id", ParentTable: "category_table", ParentColumn: "id", Instruction: "ON DELETE RESTRICT"},
	}
	p, err = NewPlanner(f, nil).Plan(context.Background(), s)
	require.NoError(t, err)
	assert.True(t, p.IsEmpty(), "RESTRICT and NO ACTION are equivalent")
}

func TestPlan_RejectsInvalidSchema(t *testing.T) {
	f := newFake(t, dialect.SQLite)

	_, err := NewPlanner(f, nil).Plan(context.Background(), &schema.Schema{})
	assert.ErrorIs(t, err, schema.ErrNoSchema)

	bad := productSchema(schema.ParseColumn("bad name", "TEXT"))
	_, err = NewPlanner(f, nil).Plan(context.Background(), bad)
	assert.ErrorIs(t, err, schema.ErrInvalid)
}

func TestWriteText_ListsActions(t *testing.T) {
	p := &Plan{Dialect: dialect.Postgres, Tables: []TablePlan{
		{Table: "user_table", Exists: true},
		{Table: "product_table", Actions: []Action{{Kind: CreateTable, Table: "product_table"}}},
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, p))
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{"= user_table", "+ create table product_table"}, trimAll(lines))

	buf.Reset()
	require.NoError(t, WriteJSON(&buf, p))
	assert.Contains(t, buf.String(), `"kind": "create_table"`)

	buf.Reset()
	require.NoError(t, WriteYAML(&buf, p))
	assert.Contains(t, buf.String(), "kind: create_table")
}

func trimAll(lines []string) []string {
	out := make([]string, len(lines))
	for i, l := range lines {
		out[i] = strings.TrimSpace(l)
	}
	return out
}
