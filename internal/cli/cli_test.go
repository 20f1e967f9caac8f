package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/egoughnour/schemasync/internal/config"
	"github.com/egoughnour/schemasync/internal/diff"
	"github.com/egoughnour/schemasync/internal/schema/store"
)

// run executes the root command with args and returns what it printed.
// Flag variables are package globals, so they are reset first.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	for _, key := range []string{"DATABASE_URI", "SQLALCHEMY_DATABASE_URI", "DATABASE_URL", "SCHEMASYNC_SCHEMA"} {
		t.Setenv(key, "")
	}
	t.Setenv("LOG_LEVEL", "error")

	databaseURI, schemaPath, outputFormat = "", "", "text"
	verbose, allowColumnDrop, noDefaults = false, false, false
	sqlDialect, fromSQL = "sqlite", ""

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func tempDatabase(t *testing.T) string {
	t.Helper()
	return "sqlite:///" + filepath.Join(t.TempDir(), "store.db")
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "schemasync dev\n", out)

	out, err = run(t, "version", "--verbose")
	require.NoError(t, err)
	assert.Contains(t, out, "dialects: sqlite, postgres, mysql")
}

func TestSchema_SQL(t *testing.T) {
	out, err := run(t, "schema", "--output", "sql", "--dialect", "postgres")
	require.NoError(t, err)
	assert.Contains(t, out, "-- postgres schema: 14 tables")
	assert.Contains(t, out, "CREATE TABLE user_table (id SERIAL PRIMARY KEY")
	assert.Contains(t, out, "CONSTRAINT fk_setup_table_addon_id FOREIGN KEY (addon_id) REFERENCES addon_table(id) ON DELETE CASCADE")

	_, err = run(t, "schema", "--output", "sql", "--dialect", "oracle")
	assert.Error(t, err)
}

func TestSchema_FromSQL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.sql")
	require.NoError(t, os.WriteFile(path, []byte(`
CREATE TABLE tag_table (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    label TEXT NOT NULL UNIQUE
);`), 0o644))

	out, err := run(t, "schema", "--from-sql", path, "--output", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"tag_table"`)
	assert.Contains(t, out, `"label"`)
}

func TestSync_BuiltinSchema(t *testing.T) {
	uri := tempDatabase(t)
	defaults, err := store.Defaults()
	require.NoError(t, err)

	out, err := run(t, "sync", "--database", uri)
	require.NoError(t, err)
	assert.Contains(t, out, "created      user_table")
	assert.Contains(t, out, "14 tables (sqlite): 14 created, 0 altered, 0 recreated")
	assert.Contains(t, out, fmt.Sprintf(", %d default rows", len(defaults)))

	out, err = run(t, "sync", "--database", uri)
	require.NoError(t, err)
	assert.Equal(t, "up to date: 14 tables (sqlite): 0 created, 0 altered, 0 recreated\n", out)

	out, err = run(t, "plan", "--database", uri, "--output", "json")
	require.NoError(t, err)
	var plan diff.Plan
	require.NoError(t, json.Unmarshal([]byte(out), &plan))
	assert.True(t, plan.IsEmpty())
	assert.Len(t, plan.Tables, 14)

	out, err = run(t, "columns", "setup_table", "--database", uri, "--output", "json")
	require.NoError(t, err)
	var cols []columnInfo
	require.NoError(t, json.Unmarshal([]byte(out), &cols))
	assert.Contains(t, cols, columnInfo{Name: "key", Type: "TEXT"})
	assert.Contains(t, cols, columnInfo{Name: "addon_id", Type: "INTEGER"})
}

func TestSync_SchemaFileWithoutDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "schema.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
tables:
  - name: note_table
    columns:
      id: INTEGER PRIMARY KEY AUTOINCREMENT
      body: TEXT NOT NULL
`), 0o644))
	uri := tempDatabase(t)

	out, err := run(t, "plan", "--database", uri, "--schema", path)
	require.NoError(t, err)
	assert.Contains(t, out, "note_table")
	assert.Contains(t, out, "create_table")

	out, err = run(t, "sync", "--database", uri, "--schema", path, "--output", "yaml")
	require.NoError(t, err)
	assert.Contains(t, out, "outcome: created")
	assert.NotContains(t, out, "setup_table")
}

func TestSync_RequiresDatabase(t *testing.T) {
	_, err := run(t, "sync")
	assert.ErrorIs(t, err, config.ErrNoDatabase)
}

func TestSync_UnsupportedOutput(t *testing.T) {
	_, err := run(t, "sync", "--database", tempDatabase(t), "--no-defaults", "--output", "xml")
	assert.ErrorContains(t, err, "unsupported output format")
}
