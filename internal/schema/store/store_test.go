package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchema_IsValid(t *testing.T) {
	s, err := Schema()
	require.NoError(t, err)
	require.NoError(t, s.Validate())
	assert.Len(t, s.Tables, 14)
	assert.Empty(t, s.DeclaredAfter(), "parents must be declared before their children")
}

func TestSchema_ReturnsFreshCopy(t *testing.T) {
	a, err := Schema()
	require.NoError(t, err)
	a.Tables[0].Name = "changed"

	b, err := Schema()
	require.NoError(t, err)
	assert.Equal(t, "user_table", b.Tables[0].Name)
}

func TestSchema_StoreTables(t *testing.T) {
	s, err := Schema()
	require.NoError(t, err)

	users, ok := s.Table("user_table")
	require.True(t, ok)
	email, ok := users.Column("email")
	require.True(t, ok)
	assert.True(t, email.IsUnique())
	assert.True(t, email.IsNotNull())

	addons, ok := s.Table("addon_table")
	require.True(t, ok)
	assert.Equal(t, []string{"name", "type"}, addons.Unique)

	products, ok := s.Table("product_table")
	require.True(t, ok)
	var selfRef bool
	for _, fk := range products.ForeignKeys {
		if fk.ParentTable == "product_table" {
			selfRef = true
		}
	}
	assert.True(t, selfRef, "variants reference their parent product")
}

func TestDefaults(t *testing.T) {
	entries, err := Defaults()
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	s, err := Schema()
	require.NoError(t, err)

	keys := make(map[string]bool)
	for _, e := range entries {
		tbl, ok := s.Table(e.Table)
		require.True(t, ok, "default row for undeclared table %s", e.Table)
		_, ok = tbl.Column(e.Key)
		require.True(t, ok, "key column %s.%s", e.Table, e.Key)
		for col := range e.Data {
			_, ok := tbl.Column(col)
			assert.True(t, ok, "column %s.%s", e.Table, col)
		}
		keys[e.Table+"/"+e.Value.(string)] = true
	}
	assert.True(t, keys["setup_table/site_name"])
	assert.True(t, keys["addon_table/basic"])
}
