// Package dialect translates the declarative schema into engine DDL and
// reads the live structure of SQLite, PostgreSQL and MySQL databases.
package dialect

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/egoughnour/schemasync/internal/schema"
)

// Name identifies a supported engine.
type Name string

// Supported engines.
const (
	SQLite   Name = "sqlite"
	Postgres Name = "postgres"
	MySQL    Name = "mysql"
)

// Querier is the subset of *sql.DB, *sql.Conn and *sql.Tx the adapters use.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Dialect is one engine's DDL vocabulary and introspection queries.
type Dialect interface {
	Name() Name
	DriverName() string

	// MapType resolves an abstract type tag to the engine type. Unknown tags
	// are returned unchanged with ok set to false.
	MapType(abstract string) (engine string, ok bool)
	// AutoIncrementKey is the full fragment for an autoincrement primary key.
	AutoIncrementKey() string
	// ZeroValue is the literal used to default or back-fill a NOT NULL
	// column of the given abstract type.
	ZeroValue(abstract string) string
	// NormalizeDefault rewrites a declared DEFAULT literal into a form the
	// engine accepts for the given abstract type.
	NormalizeDefault(abstract, literal string) string
	// InlineUnique reports whether a column of the abstract type may carry
	// UNIQUE in its own definition.
	InlineUnique(abstract string) bool
	// KeyColumn renders a column reference inside a UNIQUE key.
	KeyColumn(column, abstract string) string
	Quote(ident string) string
	Placeholder(n int) string

	// TransactionalDDL reports whether DDL can be rolled back.
	TransactionalDDL() bool
	// AlterConstraints reports whether constraints can be added to an
	// existing table.
	AlterConstraints() bool
	SetNotNull(table, column, definition string) string
	// SetForeignKeys toggles foreign key enforcement for the session. It must
	// be called outside a transaction.
	SetForeignKeys(ctx context.Context, q Querier, enabled bool) error

	TableExists(ctx context.Context, q Querier, table string) (bool, error)
	// Columns returns lower-cased column names mapped to their engine types.
	Columns(ctx context.Context, q Querier, table string) (map[string]string, error)
	ConstraintExists(ctx context.Context, q Querier, table, name string) (bool, error)
	RowCount(ctx context.Context, q Querier, table string) (int64, error)
	ForeignKeys(ctx context.Context, q Querier, table string) ([]schema.ForeignKey, error)
	// UniqueConstraints returns each unique constraint as its column names.
	UniqueConstraints(ctx context.Context, q Querier, table string) ([][]string, error)
}

// ForName returns the adapter for the named engine.
func ForName(name string) (Dialect, error) {
	switch Name(strings.ToLower(name)) {
	case SQLite, "sqlite3":
		return sqliteDialect{}, nil
	case Postgres, "postgresql":
		return postgresDialect{}, nil
	case MySQL, "mariadb":
		return mysqlDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", name)
	}
}

// SupportedDialects returns the list of supported SQL dialects.
func SupportedDialects() []string {
	return []string{string(SQLite), string(Postgres), string(MySQL)}
}

// IsSupported checks if a dialect is supported.
func IsSupported(name string) bool {
	_, err := ForName(name)
	return err == nil
}

// Inspector binds a dialect to a live connection.
type Inspector struct {
	d Dialect
	q Querier
}

// NewInspector creates an inspector running its queries on q.
func NewInspector(d Dialect, q Querier) *Inspector {
	return &Inspector{d: d, q: q}
}

// Dialect returns the bound dialect.
func (i *Inspector) Dialect() Dialect { return i.d }

// TableExists reports whether the table is present.
func (i *Inspector) TableExists(ctx context.Context, table string) (bool, error) {
	return i.d.TableExists(ctx, i.q, table)
}

// ConstraintExists reports whether a named constraint is present on table.
func (i *Inspector) ConstraintExists(ctx context.Context, table, name string) (bool, error) {
	return i.d.ConstraintExists(ctx, i.q, table, name)
}

// Inspect reads the live state of an existing table.
func (i *Inspector) Inspect(ctx context.Context, table string) (*schema.LiveTable, error) {
	cols, err := i.d.Columns(ctx, i.q, table)
	if err != nil {
		return nil, fmt.Errorf("reading columns of %s: %w", table, err)
	}
	fks, err := i.d.ForeignKeys(ctx, i.q, table)
	if err != nil {
		return nil, fmt.Errorf("reading foreign keys of %s: %w", table, err)
	}
	uniques, err := i.d.UniqueConstraints(ctx, i.q, table)
	if err != nil {
		return nil, fmt.Errorf("reading unique constraints of %s: %w", table, err)
	}
	count, err := i.d.RowCount(ctx, i.q, table)
	if err != nil {
		return nil, fmt.Errorf("counting rows of %s: %w", table, err)
	}
	return &schema.LiveTable{
		Columns:     cols,
		ForeignKeys: fks,
		Unique:      uniques,
		RowCount:    count,
	}, nil
}

func rowCount(ctx context.Context, q Querier, quoted string) (int64, error) {
	var n int64
	err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+quoted).Scan(&n)
	return n, err
}

func scanStrings(rows *sql.Rows) ([]string, error) {
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanColumns(rows *sql.Rows, normalize func(string) string) (map[string]string, error) {
	defer rows.Close()
	cols := make(map[string]string)
	for rows.Next() {
		var name, typ string
		if err := rows.Scan(&name, &typ); err != nil {
			return nil, err
		}
		cols[strings.ToLower(name)] = normalize(typ)
	}
	return cols, rows.Err()
}

// scanGroups reads (group, column) rows ordered by group into column lists.
func scanGroups(rows *sql.Rows) ([][]string, error) {
	defer rows.Close()
	var groups [][]string
	last := ""
	for rows.Next() {
		var group, col string
		if err := rows.Scan(&group, &col); err != nil {
			return nil, err
		}
		if len(groups) == 0 || group != last {
			groups = append(groups, nil)
			last = group
		}
		groups[len(groups)-1] = append(groups[len(groups)-1], strings.ToLower(col))
	}
	return groups, rows.Err()
}

// instruction renders referential actions read back from an engine in the
// same form a schema document would declare them.
func instruction(onDelete, onUpdate string) string {
	var parts []string
	if a := strings.ToUpper(strings.TrimSpace(onDelete)); a != "" && a != "NO ACTION" && a != "RESTRICT" {
		parts = append(parts, "ON DELETE "+a)
	}
	if a := strings.ToUpper(strings.TrimSpace(onUpdate)); a != "" && a != "NO ACTION" && a != "RESTRICT" {
		parts = append(parts, "ON UPDATE "+a)
	}
	return strings.Join(parts, " ")
}
