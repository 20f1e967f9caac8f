package syncer

import (
	"errors"
	"fmt"

	"github.com/egoughnour/schemasync/internal/dialect"
	"github.com/egoughnour/schemasync/internal/diff"
)

// ErrColumnDrop is returned when rebuilding a table would discard live
// columns the schema no longer declares and dropping was not allowed.
var ErrColumnDrop = errors.New("table rebuild would drop columns")

// Outcome is what a sync pass did to one table.
type Outcome string

// Table outcomes.
const (
	Created   Outcome = "created"
	Altered   Outcome = "altered"
	Recreated Outcome = "recreated"
	UpToDate  Outcome = "up_to_date"
)

// TableReport lists the statements run for one table.
type TableReport struct {
	Table      string   `json:"table" yaml:"table"`
	Outcome    Outcome  `json:"outcome" yaml:"outcome"`
	Statements []string `json:"statements,omitempty" yaml:"statements,omitempty"`
}

// Report is the result of a sync pass, in schema order.
type Report struct {
	Dialect dialect.Name  `json:"dialect" yaml:"dialect"`
	Tables  []TableReport `json:"tables" yaml:"tables"`
}

// Statements returns every DDL and data statement executed, in order.
// Introspection queries are not included.
func (r *Report) Statements() []string {
	var out []string
	for _, t := range r.Tables {
		out = append(out, t.Statements...)
	}
	return out
}

// Changed reports whether any table was modified.
func (r *Report) Changed() bool {
	for _, t := range r.Tables {
		if t.Outcome != UpToDate {
			return true
		}
	}
	return false
}

// Count returns how many tables ended with the given outcome.
func (r *Report) Count(o Outcome) int {
	n := 0
	for _, t := range r.Tables {
		if t.Outcome == o {
			n++
		}
	}
	return n
}

// Error is a failed action. Kind is the classified driver error.
type Error struct {
	Table  string
	Action diff.ActionKind
	Kind   dialect.ErrorKind
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s (%s): %v", e.Action, e.Table, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }
