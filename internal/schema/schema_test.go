package schema

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const storeYAML = `
tables:
  - name: addon_table
    columns:
      id: INTEGER PRIMARY KEY AUTOINCREMENT
      name: TEXT NOT NULL
      type: TEXT NOT NULL CHECK (type IN ('MODULE', 'STYLE'))
      installed: BOOL DEFAULT 0
    unique: [name, type]
  - name: setup_table
    columns:
      - {name: id, type: INTEGER, constraints: PRIMARY KEY AUTOINCREMENT}
      - {name: key, type: TEXT, constraints: NOT NULL UNIQUE}
      - {name: addon_id, type: INTEGER}
    foreign_keys:
      - {column: addon_id, parent_table: addon_table, parent_column: id, instruction: ON DELETE CASCADE}
`

func TestLoad_YAMLMappingKeepsOrder(t *testing.T) {
	s, err := Load([]byte(storeYAML), "yaml")
	require.NoError(t, err)
	require.Len(t, s.Tables, 2)

	addon := s.Tables[0]
	assert.Equal(t, []string{"id", "name", "type", "installed"}, addon.ColumnNames())
	assert.Equal(t, "TEXT", addon.Columns[2].Type)
	assert.Equal(t, "NOT NULL CHECK (type IN ('MODULE', 'STYLE'))", addon.Columns[2].Constraints)
	assert.Equal(t, []string{"name", "type"}, addon.Unique)

	setup := s.Tables[1]
	assert.Equal(t, []string{"id", "key", "addon_id"}, setup.ColumnNames())
	require.Len(t, setup.ForeignKeys, 1)
	assert.Equal(t, "CASCADE", setup.ForeignKeys[0].OnDelete())
	assert.NoError(t, s.Validate())
}

func TestLoad_JSONObjectKeepsOrder(t *testing.T) {
	doc := `{"tables": [{"name": "product_table", "columns": {
		"id": "INTEGER PRIMARY KEY AUTOINCREMENT",
		"name": "TEXT NOT NULL",
		"price": {"type": "FLOAT", "constraints": "DEFAULT 0.0"}
	}}]}`
	s, err := Load([]byte(doc), "json")
	require.NoError(t, err)
	require.Len(t, s.Tables, 1)

	cols := s.Tables[0].Columns
	assert.Equal(t, []string{"id", "name", "price"}, s.Tables[0].ColumnNames())
	assert.Equal(t, "FLOAT", cols[2].Type)
	def, ok := cols[2].Default()
	assert.True(t, ok)
	assert.Equal(t, "0.0", def)
}

func TestLoad_UnsupportedFormat(t *testing.T) {
	_, err := Load([]byte("x"), "toml")
	assert.Error(t, err)
}

func TestLoadFile_ChoosesFormatByExtension(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"tables":[{"name":"t","columns":[{"name":"id","type":"INTEGER"}]}]}`), 0o644))

	s, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "t", s.Tables[0].Name)
}

func TestColumnFlags(t *testing.T) {
	tests := []struct {
		def          string
		pk           bool
		auto         bool
		notNull      bool
		unique       bool
		defaultValue string
		hasDefault   bool
	}{
		{"INTEGER PRIMARY KEY AUTOINCREMENT", true, true, false, false, "", false},
		{"TEXT UNIQUE NOT NULL", false, false, true, true, "", false},
		{"TEXT DEFAULT 'CLIENT' CHECK (role IN ('CLIENT', 'ADMIN'))", false, false, false, false, "'CLIENT'", true},
		{"FLOAT DEFAULT 0.0", false, false, false, false, "0.0", true},
		{"TEXT DEFAULT 'An amazing new product!'", false, false, false, false, "'An amazing new product!'", true},
		{"TINYINT(1) not null", false, false, true, false, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.def, func(t *testing.T) {
			c := ParseColumn("c", tt.def)
			assert.Equal(t, tt.pk, c.IsPrimaryKey())
			assert.Equal(t, tt.auto, c.IsAutoIncrement())
			assert.Equal(t, tt.notNull, c.IsNotNull())
			assert.Equal(t, tt.unique, c.IsUnique())
			def, ok := c.Default()
			assert.Equal(t, tt.hasDefault, ok)
			assert.Equal(t, tt.defaultValue, def)
			assert.Equal(t, tt.def, c.Definition())
		})
	}
}

func TestParseColumn_KeepsParenthesisedType(t *testing.T) {
	c := ParseColumn("flag", "TINYINT(1) DEFAULT 0")
	assert.Equal(t, "TINYINT(1)", c.Type)
	assert.Equal(t, "DEFAULT 0", c.Constraints)
}

func TestRemoveWords(t *testing.T) {
	assert.Equal(t, "TEXT DEFAULT ''", RemoveWords("TEXT NOT NULL DEFAULT ''", "NOT", "NULL"))
	assert.Equal(t, "NOT NULL", RemoveWords("unique NOT NULL", "UNIQUE"))
	assert.Equal(t, "CHECK (x IN ('not null'))", RemoveWords("CHECK (x IN ('not null'))", "NOT", "NULL"))
}

func TestReplaceDefault(t *testing.T) {
	got := ReplaceDefault("NOT NULL DEFAULT 1", func(l string) string { return "TRUE" })
	assert.Equal(t, "NOT NULL DEFAULT TRUE", got)
	assert.Equal(t, "NOT NULL", ReplaceDefault("NOT NULL", func(string) string { return "x" }))
}

func TestForeignKeyActions(t *testing.T) {
	fk := ForeignKey{Column: "addon_id", ParentTable: "addon_table", ParentColumn: "id",
		Instruction: "ON DELETE SET NULL ON UPDATE CASCADE"}
	assert.Equal(t, "SET NULL", fk.OnDelete())
	assert.Equal(t, "CASCADE", fk.OnUpdate())

	plain := ForeignKey{Column: "addon_id", ParentTable: "addon_table", ParentColumn: "id"}
	assert.Equal(t, "NO ACTION", plain.OnDelete())

	restrict := plain
	restrict.Instruction = "ON DELETE RESTRICT"
	assert.Equal(t, plain.Key(), restrict.Key())

	upper := ForeignKey{Column: "ADDON_ID", ParentTable: "Addon_Table", ParentColumn: "ID"}
	assert.Equal(t, plain.Key(), upper.Key())
}

func TestUniqueGroups(t *testing.T) {
	tbl := Table{
		Name: "setup_table",
		Columns: Columns{
			ParseColumn("id", "INTEGER PRIMARY KEY UNIQUE"),
			ParseColumn("key", "TEXT NOT NULL UNIQUE"),
			ParseColumn("value", "TEXT"),
		},
		Unique: []string{"key", "value"},
	}
	assert.Equal(t, [][]string{{"key", "value"}, {"key"}}, tbl.UniqueGroups())
	assert.Equal(t, UniqueKey([]string{"B", " a"}), UniqueKey([]string{"a", "b"}))
}

func TestValidate(t *testing.T) {
	valid := func() *Schema {
		s, err := Load([]byte(storeYAML), "yaml")
		require.NoError(t, err)
		return s
	}

	t.Run("empty", func(t *testing.T) {
		assert.ErrorIs(t, (&Schema{}).Validate(), ErrNoSchema)
	})

	t.Run("bad identifier", func(t *testing.T) {
		s := valid()
		s.Tables[0].Columns[1].Name = "name; DROP TABLE x"
		assert.ErrorIs(t, s.Validate(), ErrInvalid)
	})

	t.Run("duplicate table", func(t *testing.T) {
		s := valid()
		s.Tables = append(s.Tables, s.Tables[0])
		assert.ErrorIs(t, s.Validate(), ErrInvalid)
	})

	t.Run("two autoincrement keys", func(t *testing.T) {
		s := valid()
		s.Tables[0].Columns = append(s.Tables[0].Columns, ParseColumn("other", "INTEGER PRIMARY KEY AUTOINCREMENT"))
		assert.ErrorIs(t, s.Validate(), ErrInvalid)
	})

	t.Run("unknown parent", func(t *testing.T) {
		s := valid()
		s.Tables[1].ForeignKeys[0].ParentTable = "missing_table"
		err := s.Validate()
		require.ErrorIs(t, err, ErrInvalid)
		assert.Contains(t, err.Error(), "missing_table")
	})

	t.Run("unique group on unknown column", func(t *testing.T) {
		s := valid()
		s.Tables[0].Unique = []string{"name", "nope"}
		assert.ErrorIs(t, s.Validate(), ErrInvalid)
	})

	t.Run("bad type tag", func(t *testing.T) {
		s := valid()
		s.Tables[0].Columns[1].Type = "TEXT)"
		assert.ErrorIs(t, s.Validate(), ErrInvalid)
	})

	t.Run("rebuild table clash", func(t *testing.T) {
		s := valid()
		clash := s.Tables[0]
		clash.Name = s.Tables[0].Name + RebuildSuffix
		s.Tables = append(s.Tables, clash)
		err := s.Validate()
		require.ErrorIs(t, err, ErrInvalid)
		assert.Contains(t, err.Error(), clash.Name)
	})

	t.Run("table name leaves room for rebuild suffix", func(t *testing.T) {
		s := valid()
		s.Tables[0].Name = strings.Repeat("p", maxTableName)
		s.Tables = s.Tables[:1]
		s.Tables[0].ForeignKeys = nil
		assert.NoError(t, s.Validate())

		s.Tables[0].Name += "p"
		assert.ErrorIs(t, s.Validate(), ErrInvalid)
	})

	t.Run("errors are joined", func(t *testing.T) {
		s := valid()
		s.Tables[0].Unique = []string{"nope"}
		s.Tables[1].ForeignKeys[0].ParentColumn = "nope"
		err := s.Validate()
		require.Error(t, err)
		assert.Equal(t, 2, strings.Count(err.Error(), "invalid schema"))
	})
}

func TestValidIdentifier(t *testing.T) {
	for _, ok := range []string{"user_table", "_x", "A1", strings.Repeat("a", 63)} {
		assert.NoError(t, ValidIdentifier(ok), ok)
	}
	for _, bad := range []string{"", "1abc", "a-b", "a b", `a"`, strings.Repeat("a", 64)} {
		assert.ErrorIs(t, ValidIdentifier(bad), ErrInvalid, bad)
	}
}

func TestDeclaredAfter(t *testing.T) {
	s, err := Load([]byte(storeYAML), "yaml")
	require.NoError(t, err)
	assert.Empty(t, s.DeclaredAfter())

	s.Tables[0], s.Tables[1] = s.Tables[1], s.Tables[0]
	assert.Equal(t, []string{"setup_table -> addon_table"}, s.DeclaredAfter())
}

func TestMerge(t *testing.T) {
	s, err := Load([]byte(storeYAML), "yaml")
	require.NoError(t, err)

	extra := &Schema{Tables: []Table{{Name: "printful_table", Columns: Columns{ParseColumn("id", "INTEGER PRIMARY KEY")}}}}
	merged, err := s.Merge(extra)
	require.NoError(t, err)
	assert.Len(t, merged.Tables, 3)
	assert.Len(t, s.Tables, 2)
	assert.Equal(t, "printful_table", merged.Tables[2].Name)

	_, err = s.Merge(&Schema{Tables: []Table{{Name: "ADDON_TABLE"}}})
	assert.True(t, errors.Is(err, ErrInvalid))
}

func TestWriters(t *testing.T) {
	s, err := Load([]byte(storeYAML), "yaml")
	require.NoError(t, err)

	var text bytes.Buffer
	require.NoError(t, WriteText(&text, s))
	assert.Contains(t, text.String(), "Schema: 2 tables")
	assert.Contains(t, text.String(), "Unique: (name, type)")
	assert.Contains(t, text.String(), "addon_id -> addon_table(id) ON DELETE CASCADE")

	var js bytes.Buffer
	require.NoError(t, WriteJSON(&js, s))
	back, err := Load(js.Bytes(), "json")
	require.NoError(t, err)
	assert.Equal(t, s, back)

	var y bytes.Buffer
	require.NoError(t, WriteYAML(&y, s))
	back, err = Load(y.Bytes(), "yaml")
	require.NoError(t, err)
	assert.Equal(t, s, back)
}
