// Package schema provides the declarative model of the relational schema that
// a sync pass reconciles a live database against.
package schema

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrNoSchema is returned when a sync pass is started without any tables.
var ErrNoSchema = errors.New("no schema provided")

// Schema is the ordered list of tables a database must contain.
type Schema struct {
	Tables []Table `json:"tables" yaml:"tables"`
}

// Table describes one table: its columns in declaration order, an optional
// composite unique group and its foreign keys.
type Table struct {
	Name        string       `json:"name" yaml:"name"`
	Columns     Columns      `json:"columns" yaml:"columns"`
	Unique      []string     `json:"unique,omitempty" yaml:"unique,omitempty"`
	ForeignKeys []ForeignKey `json:"foreign_keys,omitempty" yaml:"foreign_keys,omitempty"`
}

// Column is a column with an abstract type tag (INTEGER, TEXT, FLOAT,
// TIMESTAMP, BOOL, BLOB or any engine type passed through unchanged) and a
// free-form constraint string such as "UNIQUE NOT NULL DEFAULT ''".
type Column struct {
	Name        string `json:"name" yaml:"name"`
	Type        string `json:"type" yaml:"type"`
	Constraints string `json:"constraints,omitempty" yaml:"constraints,omitempty"`
}

// ForeignKey references ParentTable(ParentColumn) from Column. Instruction
// carries trailing clauses like "ON DELETE CASCADE".
type ForeignKey struct {
	Column       string `json:"column" yaml:"column"`
	ParentTable  string `json:"parent_table" yaml:"parent_table"`
	ParentColumn string `json:"parent_column" yaml:"parent_column"`
	Instruction  string `json:"instruction,omitempty" yaml:"instruction,omitempty"`
}

// LiveTable is the introspected state of an existing table. It is rebuilt on
// every pass and never persisted.
type LiveTable struct {
	Columns     map[string]string `json:"columns" yaml:"columns"`
	ForeignKeys []ForeignKey      `json:"foreign_keys,omitempty" yaml:"foreign_keys,omitempty"`
	Unique      [][]string        `json:"unique,omitempty" yaml:"unique,omitempty"`
	RowCount    int64             `json:"row_count" yaml:"row_count"`
}

// Table returns the table with the given name, compared case-insensitively.
func (s *Schema) Table(name string) (*Table, bool) {
	for i := range s.Tables {
		if strings.EqualFold(s.Tables[i].Name, name) {
			return &s.Tables[i], true
		}
	}
	return nil, false
}

// Merge returns a new schema holding s's tables followed by the tables of
// other. A table declared in both is an error.
func (s *Schema) Merge(other *Schema) (*Schema, error) {
	merged := &Schema{Tables: make([]Table, 0, len(s.Tables)+len(other.Tables))}
	merged.Tables = append(merged.Tables, s.Tables...)
	for _, t := range other.Tables {
		if _, exists := s.Table(t.Name); exists {
			return nil, fmt.Errorf("%w: table %s is already declared", ErrInvalid, t.Name)
		}
		merged.Tables = append(merged.Tables, t)
	}
	return merged, nil
}

// Column returns the declared column with the given name, compared
// case-insensitively.
func (t *Table) Column(name string) (*Column, bool) {
	for i := range t.Columns {
		if strings.EqualFold(t.Columns[i].Name, name) {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// ColumnNames returns the lower-cased column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = strings.ToLower(c.Name)
	}
	return names
}

// UniqueGroups returns every unique group the table declares: the composite
// group first, then one single-column group per inline UNIQUE column.
func (t *Table) UniqueGroups() [][]string {
	var groups [][]string
	if len(t.Unique) > 0 {
		groups = append(groups, t.Unique)
	}
	for _, c := range t.Columns {
		if c.IsUnique() && !c.IsPrimaryKey() {
			groups = append(groups, []string{c.Name})
		}
	}
	return groups
}

// UniqueKey is the orientation-independent identity of a unique group.
func UniqueKey(columns []string) string {
	cols := make([]string, len(columns))
	for i, c := range columns {
		cols[i] = strings.ToLower(strings.TrimSpace(c))
	}
	sort.Strings(cols)
	return strings.Join(cols, ",")
}

// OnDelete returns the referential action for deletes, NO ACTION when unset.
func (fk ForeignKey) OnDelete() string {
	return referentialAction(fk.Instruction, "DELETE")
}

// OnUpdate returns the referential action for updates, NO ACTION when unset.
func (fk ForeignKey) OnUpdate() string {
	return referentialAction(fk.Instruction, "UPDATE")
}

// Key is the attribute tuple two foreign keys are compared by: child column,
// target and referential actions. RESTRICT and NO ACTION compare equal.
func (fk ForeignKey) Key() string {
	return strings.ToLower(strings.Join([]string{
		fk.Column, fk.ParentTable, fk.ParentColumn,
		foldAction(fk.OnDelete()), foldAction(fk.OnUpdate()),
	}, "|"))
}

func foldAction(action string) string {
	if action == "RESTRICT" {
		return "NO ACTION"
	}
	return action
}

func referentialAction(instruction, event string) string {
	toks := tokenize(instruction)
	for i := 0; i+2 < len(toks); i++ {
		if !strings.EqualFold(toks[i], "ON") || !strings.EqualFold(toks[i+1], event) {
			continue
		}
		action := strings.ToUpper(toks[i+2])
		if (action == "SET" || action == "NO") && i+3 < len(toks) {
			action += " " + strings.ToUpper(toks[i+3])
		}
		return action
	}
	return "NO ACTION"
}

// LoadFile reads a schema from a YAML or JSON file, chosen by extension.
func LoadFile(path string) (*Schema, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}
	format := "yaml"
	if strings.EqualFold(filepath.Ext(path), ".json") {
		format = "json"
	}
	return Load(content, format)
}

// Load decodes a schema document in the given format ("yaml" or "json").
func Load(content []byte, format string) (*Schema, error) {
	s := &Schema{}
	switch format {
	case "json":
		if err := json.Unmarshal(content, s); err != nil {
			return nil, fmt.Errorf("decoding json schema: %w", err)
		}
	case "yaml", "yml":
		if err := yaml.Unmarshal(content, s); err != nil {
			return nil, fmt.Errorf("decoding yaml schema: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported schema format: %s", format)
	}
	return s, nil
}

// WriteJSON writes the schema as JSON to the given writer.
func WriteJSON(w io.Writer, s *Schema) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// WriteYAML writes the schema as YAML to the given writer.
func WriteYAML(w io.Writer, s *Schema) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	return enc.Encode(s)
}

// WriteText writes a human-readable text representation of the schema.
func WriteText(w io.Writer, s *Schema) error {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Schema: %d tables\n\n", len(s.Tables)))

	for _, t := range s.Tables {
		sb.WriteString(fmt.Sprintf("Table: %s\n", t.Name))
		sb.WriteString(strings.Repeat("-", 40) + "\n")

		for _, c := range t.Columns {
			nullable := "NULL"
			if c.IsNotNull() {
				nullable = "NOT NULL"
			}
			pk := ""
			if c.IsPrimaryKey() {
				pk = " [PK]"
				nullable = "NOT NULL"
			}
			sb.WriteString(fmt.Sprintf("  %-20s %-10s %s%s\n", c.Name, c.Type, nullable, pk))
		}

		if len(t.Unique) > 0 {
			sb.WriteString(fmt.Sprintf("\n  Unique: (%s)\n", strings.Join(t.Unique, ", ")))
		}

		if len(t.ForeignKeys) > 0 {
			sb.WriteString("\n  Foreign Keys:\n")
			for _, fk := range t.ForeignKeys {
				line := fmt.Sprintf("%s -> %s(%s) %s", fk.Column, fk.ParentTable, fk.ParentColumn, fk.Instruction)
				sb.WriteString("    " + strings.TrimSpace(line) + "\n")
			}
		}

		sb.WriteString("\n")
	}

	_, err := w.Write([]byte(sb.String()))
	return err
}
