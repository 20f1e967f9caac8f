// Package diff computes the structural actions that bring a live database
// in line with a declared schema.
package diff

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/egoughnour/schemasync/internal/dialect"
	"github.com/egoughnour/schemasync/internal/schema"
)

// ActionKind tags an Action.
type ActionKind string

// Action kinds.
const (
	CreateTable   ActionKind = "create_table"
	AddColumn     ActionKind = "add_column"
	AddUnique     ActionKind = "add_unique"
	AddForeignKey ActionKind = "add_foreign_key"
	RecreateTable ActionKind = "recreate_table"
)

// Action is one structural change. Which fields are set depends on Kind.
type Action struct {
	Kind  ActionKind `json:"kind" yaml:"kind"`
	Table string     `json:"table" yaml:"table"`

	// AddColumn: the column, and whether it must be added nullable,
	// back-filled and tightened because the table already has rows.
	Column   *schema.Column `json:"column,omitempty" yaml:"column,omitempty"`
	Backfill bool           `json:"backfill,omitempty" yaml:"backfill,omitempty"`

	// AddUnique and AddForeignKey.
	Unique     []string           `json:"unique,omitempty" yaml:"unique,omitempty"`
	ForeignKey *schema.ForeignKey `json:"foreign_key,omitempty" yaml:"foreign_key,omitempty"`
	Constraint string             `json:"constraint,omitempty" yaml:"constraint,omitempty"`

	// RecreateTable: the columns carried over and the live columns the new
	// table no longer declares.
	Copy    []string `json:"copy,omitempty" yaml:"copy,omitempty"`
	Dropped []string `json:"dropped,omitempty" yaml:"dropped,omitempty"`
}

// String describes the action on one line.
func (a Action) String() string {
	switch a.Kind {
	case CreateTable:
		return fmt.Sprintf("create table %s", a.Table)
	case AddColumn:
		s := fmt.Sprintf("add column %s.%s %s", a.Table, a.Column.Name, a.Column.Definition())
		if a.Backfill {
			s += " (nullable, back-fill, then NOT NULL)"
		}
		return s
	case AddUnique:
		return fmt.Sprintf("add unique %s on %s(%s)", a.Constraint, a.Table, strings.Join(a.Unique, ", "))
	case AddForeignKey:
		fk := a.ForeignKey
		return strings.TrimSpace(fmt.Sprintf("add foreign key %s on %s(%s) -> %s(%s) %s",
			a.Constraint, a.Table, fk.Column, fk.ParentTable, fk.ParentColumn, fk.Instruction))
	case RecreateTable:
		s := fmt.Sprintf("recreate table %s copying (%s)", a.Table, strings.Join(a.Copy, ", "))
		if len(a.Dropped) > 0 {
			s += fmt.Sprintf(" dropping (%s)", strings.Join(a.Dropped, ", "))
		}
		return s
	default:
		return fmt.Sprintf("%s %s", a.Kind, a.Table)
	}
}

// TablePlan is the action list for one declared table.
type TablePlan struct {
	Table    string   `json:"table" yaml:"table"`
	Exists   bool     `json:"exists" yaml:"exists"`
	RowCount int64    `json:"row_count" yaml:"row_count"`
	Actions  []Action `json:"actions,omitempty" yaml:"actions,omitempty"`
}

// UpToDate reports whether the table needs no change.
func (t TablePlan) UpToDate() bool { return len(t.Actions) == 0 }

// Plan is the full action list of one sync pass, in schema order.
type Plan struct {
	Dialect dialect.Name `json:"dialect" yaml:"dialect"`
	Tables  []TablePlan  `json:"tables" yaml:"tables"`
}

// IsEmpty returns true if no table needs a change.
func (p *Plan) IsEmpty() bool {
	for _, t := range p.Tables {
		if !t.UpToDate() {
			return false
		}
	}
	return true
}

// Actions returns every action of the plan in order.
func (p *Plan) Actions() []Action {
	var out []Action
	for _, t := range p.Tables {
		out = append(out, t.Actions...)
	}
	return out
}

// Dropped returns, per table, the live columns a rebuild would discard.
func (p *Plan) Dropped() map[string][]string {
	dropped := make(map[string][]string)
	for _, a := range p.Actions() {
		if a.Kind == RecreateTable && len(a.Dropped) > 0 {
			dropped[a.Table] = a.Dropped
		}
	}
	return dropped
}

// WriteText writes a human-readable plan.
func WriteText(w io.Writer, p *Plan) error {
	var sb strings.Builder

	if p.IsEmpty() {
		sb.WriteString(fmt.Sprintf("Schema is up to date (%d tables, %s).\n", len(p.Tables), p.Dialect))
		_, err := w.Write([]byte(sb.String()))
		return err
	}

	for _, t := range p.Tables {
		if t.UpToDate() {
			sb.WriteString(fmt.Sprintf("  = %s\n", t.Table))
			continue
		}
		for _, a := range t.Actions {
			sb.WriteString(fmt.Sprintf("  %s %s\n", marker(a.Kind), a))
		}
	}

	_, err := w.Write([]byte(sb.String()))
	return err
}

func marker(k ActionKind) string {
	switch k {
	case CreateTable, AddColumn, AddUnique, AddForeignKey:
		return "+"
	default:
		return "~"
	}
}

// WriteJSON writes the plan as JSON.
func WriteJSON(w io.Writer, p *Plan) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(p)
}

// WriteYAML writes the plan as YAML.
func WriteYAML(w io.Writer, p *Plan) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	return enc.Encode(p)
}
