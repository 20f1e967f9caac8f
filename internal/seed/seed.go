// Package seed installs the rows an application needs after its schema has
// been synchronized.
package seed

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/egoughnour/schemasync/internal/db"
	"github.com/egoughnour/schemasync/internal/dialect"
	"github.com/egoughnour/schemasync/internal/schema"
)

// Tables the installer reads settings and addons from.
const (
	SetupTable = "setup_table"
	AddonTable = "addon_table"
)

// ErrUnknownColumn is returned when a row names a column the live table
// does not have.
var ErrUnknownColumn = errors.New("unknown column")

// Entry is one default row. It is inserted only when no row of Table has
// Value in the Key column; Data holds the remaining columns.
type Entry struct {
	Table string         `json:"table" yaml:"table"`
	Key   string         `json:"key" yaml:"key"`
	Value any            `json:"value" yaml:"value"`
	Data  map[string]any `json:"data,omitempty" yaml:"data,omitempty"`
}

// Load decodes a YAML (or JSON) list of entries.
func Load(content []byte) ([]Entry, error) {
	var entries []Entry
	if err := yaml.Unmarshal(content, &entries); err != nil {
		return nil, fmt.Errorf("decoding default rows: %w", err)
	}
	return entries, nil
}

// ColumnReader returns the live columns of a table. *db.Pool implements it.
type ColumnReader interface {
	Columns(ctx context.Context, table string) (map[string]string, error)
}

// Installer inserts default rows.
type Installer struct {
	db      *sql.DB
	d       dialect.Dialect
	columns ColumnReader
	schema  *schema.Schema
	logger  *slog.Logger
}

// NewInstaller creates an installer writing through db. The declared schema
// tells which text columns hold JSON documents.
func NewInstaller(conn *sql.DB, d dialect.Dialect, columns ColumnReader, s *schema.Schema, logger *slog.Logger) *Installer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Installer{db: conn, d: d, columns: columns, schema: s, logger: logger}
}

// ForPool creates an installer on a pool, reading live columns through it.
func ForPool(p *db.Pool, s *schema.Schema, logger *slog.Logger) *Installer {
	return NewInstaller(p.DB, p.Dialect, p, s, logger)
}

// Install inserts every entry that is not present yet and returns how many
// rows were added.
func (i *Installer) Install(ctx context.Context, entries []Entry) (int, error) {
	added := 0
	for _, e := range entries {
		ok, err := i.InstallEntry(ctx, e)
		if err != nil {
			return added, fmt.Errorf("default %s %s=%v: %w", e.Table, e.Key, e.Value, err)
		}
		if ok {
			added++
		}
	}
	return added, nil
}

// InstallEntry inserts one entry unless a row with the same key exists.
func (i *Installer) InstallEntry(ctx context.Context, e Entry) (bool, error) {
	cols, err := i.columns.Columns(ctx, e.Table)
	if err != nil {
		return false, err
	}
	row := make(map[string]any, len(e.Data)+1)
	for k, v := range e.Data {
		row[strings.ToLower(k)] = v
	}
	row[strings.ToLower(e.Key)] = e.Value

	if err := checkColumns(row, cols); err != nil {
		return false, err
	}

	if _, found, err := i.Lookup(ctx, e.Table, e.Key, e.Value); err != nil {
		return false, err
	} else if found {
		i.logger.Debug("default row present", "table", e.Table, "key", e.Key, "value", e.Value)
		return false, nil
	}

	names := make([]string, 0, len(row))
	for name := range row {
		names = append(names, name)
	}
	sort.Strings(names)

	quoted := make([]string, len(names))
	holders := make([]string, len(names))
	args := make([]any, len(names))
	for n, name := range names {
		v, err := i.prepare(e.Table, name, cols[name], row[name])
		if err != nil {
			return false, err
		}
		quoted[n] = i.d.Quote(name)
		holders[n] = i.d.Placeholder(n + 1)
		args[n] = v
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		i.d.Quote(e.Table), strings.Join(quoted, ", "), strings.Join(holders, ", "))
	if _, err := i.db.ExecContext(ctx, query, args...); err != nil {
		return false, fmt.Errorf("inserting into %s: %w", e.Table, err)
	}
	i.logger.Info("default row installed", "table", e.Table, "key", e.Key, "value", e.Value)
	return true, nil
}

// Lookup returns the id of the row whose key column equals value.
func (i *Installer) Lookup(ctx context.Context, table, key string, value any) (int64, bool, error) {
	if err := schema.ValidIdentifier(table); err != nil {
		return 0, false, err
	}
	if err := schema.ValidIdentifier(key); err != nil {
		return 0, false, err
	}
	query := fmt.Sprintf("SELECT id FROM %s WHERE %s = %s",
		i.d.Quote(table), i.d.Quote(key), i.d.Placeholder(1))

	var id int64
	err := i.db.QueryRowContext(ctx, query, value).Scan(&id)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0, false, nil
	case err != nil:
		return 0, false, fmt.Errorf("looking up %s.%s: %w", table, key, err)
	}
	return id, true, nil
}

// Config reads a setting from the setup table.
func (i *Installer) Config(ctx context.Context, key string) (ConfigValue, bool, error) {
	query := fmt.Sprintf("SELECT %s, description, editable, addon_id FROM %s WHERE %s = %s",
		i.d.Quote("value"), i.d.Quote(SetupTable), i.d.Quote("key"), i.d.Placeholder(1))

	var (
		value       string
		description sql.NullString
		editable    sql.NullBool
		addonID     sql.NullInt64
	)
	err := i.db.QueryRowContext(ctx, query, key).Scan(&value, &description, &editable, &addonID)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ConfigValue{}, false, nil
	case err != nil:
		return ConfigValue{}, false, fmt.Errorf("reading setting %s: %w", key, err)
	}

	meta := map[string]any{"editable": !editable.Valid || editable.Bool}
	if description.Valid {
		meta["description"] = description.String
	}
	if addonID.Valid {
		meta["addon_id"] = addonID.Int64
	}
	return NewConfigValue(decodeJSON(value), meta), true, nil
}

func checkColumns(row map[string]any, cols map[string]string) error {
	if _, ok := row["id"]; ok {
		return fmt.Errorf("%w: id is assigned by the database", ErrUnknownColumn)
	}
	var unknown []string
	for name := range row {
		if _, ok := cols[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("%w: %s", ErrUnknownColumn, strings.Join(unknown, ", "))
	}
	return nil
}

// prepare converts a value for insertion. Maps and slices are stored as JSON
// text; strings bound for a column whose declared default is '{}' or '[]'
// must already be valid JSON.
func (i *Installer) prepare(table, column, engineType string, v any) (any, error) {
	switch val := v.(type) {
	case map[string]any, []any:
		b, err := json.Marshal(val)
		if err != nil {
			return nil, fmt.Errorf("encoding %s.%s as json: %w", table, column, err)
		}
		return string(b), nil
	case string:
		if i.holdsJSON(table, column) && !json.Valid([]byte(val)) {
			return nil, fmt.Errorf("%s.%s expects a json document, got %q", table, column, val)
		}
		return val, nil
	}
	if strings.Contains(strings.ToUpper(engineType), "BOOL") {
		if b, ok := toBool(v); ok {
			return b, nil
		}
	}
	return v, nil
}

func (i *Installer) holdsJSON(table, column string) bool {
	if i.schema == nil {
		return false
	}
	t, ok := i.schema.Table(table)
	if !ok {
		return false
	}
	c, ok := t.Column(column)
	if !ok {
		return false
	}
	def, ok := c.Default()
	return ok && (def == "'{}'" || def == "'[]'")
}

func decodeJSON(s string) any {
	if !strings.HasPrefix(s, "{") && !strings.HasPrefix(s, "[") {
		return s
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	return v
}
