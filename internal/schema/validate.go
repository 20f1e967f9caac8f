package schema

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrInvalid marks a schema that cannot be synchronized as declared.
var ErrInvalid = errors.New("invalid schema")

// RebuildSuffix names the replacement table a rebuild copies rows into
// before it takes the original's place.
const RebuildSuffix = "_temp"

// maxTableName leaves room for RebuildSuffix within the identifier limit.
const maxTableName = 63 - len(RebuildSuffix)

// Table and column names come from schema documents shipped with the
// application, never from end users. They are still interpolated into DDL,
// so anything outside this pattern is rejected before it reaches SQL.
var (
	identifierRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)
	typeTagRe    = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*(\(\d+(,\s*\d+)?\))?$`)
)

// ValidIdentifier reports whether name may be used as a table, column or
// constraint name.
func ValidIdentifier(name string) error {
	if !identifierRe.MatchString(name) {
		return fmt.Errorf("%w: %q is not a valid identifier", ErrInvalid, name)
	}
	return nil
}

// Validate checks the whole schema: identifiers, duplicate names, the
// single autoincrement key per table, unique groups and foreign key targets.
// Foreign key parents must be declared somewhere in the same schema; their
// position in the list is not checked here.
func (s *Schema) Validate() error {
	if s == nil || len(s.Tables) == 0 {
		return ErrNoSchema
	}

	var errs []error
	seen := make(map[string]bool)
	for i := range s.Tables {
		t := &s.Tables[i]
		key := strings.ToLower(t.Name)
		if seen[key] {
			errs = append(errs, fmt.Errorf("%w: table %s declared twice", ErrInvalid, t.Name))
		}
		seen[key] = true
		if err := s.validateTable(t); err != nil {
			errs = append(errs, err)
		}
	}
	for _, t := range s.Tables {
		key := strings.ToLower(t.Name)
		if base, ok := strings.CutSuffix(key, RebuildSuffix); ok && seen[base] {
			errs = append(errs, fmt.Errorf("%w: table %s clashes with the rebuild table of %s", ErrInvalid, t.Name, base))
		}
	}
	return errors.Join(errs...)
}

func (s *Schema) validateTable(t *Table) error {
	var errs []error
	if err := ValidIdentifier(t.Name); err != nil {
		return err
	}
	if len(t.Name) > maxTableName {
		return fmt.Errorf("%w: table name %s is longer than %d characters", ErrInvalid, t.Name, maxTableName)
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("%w: table %s has no columns", ErrInvalid, t.Name)
	}

	cols := make(map[string]bool)
	autoKeys := 0
	for _, c := range t.Columns {
		if err := ValidIdentifier(c.Name); err != nil {
			errs = append(errs, fmt.Errorf("table %s: %w", t.Name, err))
			continue
		}
		if cols[strings.ToLower(c.Name)] {
			errs = append(errs, fmt.Errorf("%w: %s.%s declared twice", ErrInvalid, t.Name, c.Name))
		}
		cols[strings.ToLower(c.Name)] = true

		if !typeTagRe.MatchString(c.Type) {
			errs = append(errs, fmt.Errorf("%w: %s.%s has invalid type %q", ErrInvalid, t.Name, c.Name, c.Type))
		}
		if c.IsAutoIncrement() {
			if !c.IsPrimaryKey() {
				errs = append(errs, fmt.Errorf("%w: %s.%s is autoincrement but not the primary key", ErrInvalid, t.Name, c.Name))
			}
			autoKeys++
		}
	}
	if autoKeys > 1 {
		errs = append(errs, fmt.Errorf("%w: table %s declares %d autoincrement primary keys", ErrInvalid, t.Name, autoKeys))
	}

	for _, name := range t.Unique {
		if !cols[strings.ToLower(name)] {
			errs = append(errs, fmt.Errorf("%w: %s unique group names unknown column %s", ErrInvalid, t.Name, name))
		}
	}

	for _, fk := range t.ForeignKeys {
		if !cols[strings.ToLower(fk.Column)] {
			errs = append(errs, fmt.Errorf("%w: %s foreign key on unknown column %s", ErrInvalid, t.Name, fk.Column))
		}
		parent, ok := s.Table(fk.ParentTable)
		if !ok {
			errs = append(errs, fmt.Errorf("%w: %s.%s references undeclared table %s", ErrInvalid, t.Name, fk.Column, fk.ParentTable))
			continue
		}
		if _, ok := parent.Column(fk.ParentColumn); !ok {
			errs = append(errs, fmt.Errorf("%w: %s.%s references unknown column %s.%s",
				ErrInvalid, t.Name, fk.Column, fk.ParentTable, fk.ParentColumn))
		}
	}

	return errors.Join(errs...)
}

// DeclaredAfter returns, for each foreign key whose parent table is declared
// later than its child, a "child -> parent" description. Tables are applied
// in declaration order, so such parents may not exist yet when the child is
// created on engines that check references eagerly.
func (s *Schema) DeclaredAfter() []string {
	position := make(map[string]int, len(s.Tables))
	for i, t := range s.Tables {
		position[strings.ToLower(t.Name)] = i
	}
	var late []string
	for i, t := range s.Tables {
		for _, fk := range t.ForeignKeys {
			if p, ok := position[strings.ToLower(fk.ParentTable)]; ok && p > i {
				late = append(late, fmt.Sprintf("%s -> %s", t.Name, fk.ParentTable))
			}
		}
	}
	return late
}
