package dialect

import (
	"context"
	"fmt"
	"strings"

	"github.com/egoughnour/schemasync/internal/schema"
)

type postgresDialect struct{}

func (postgresDialect) Name() Name         { return Postgres }
func (postgresDialect) DriverName() string { return "postgres" }

func (postgresDialect) MapType(abstract string) (string, bool) { return mapType(Postgres, abstract) }

// SERIAL carries its own integer type, so the declared INTEGER is dropped.
func (postgresDialect) AutoIncrementKey() string { return "SERIAL PRIMARY KEY" }

func (d postgresDialect) ZeroValue(abstract string) string {
	switch canonicalType(abstract) {
	case TypeBool:
		return "FALSE"
	case TypeTimestamp:
		return "CURRENT_TIMESTAMP"
	}
	engine, _ := d.MapType(abstract)
	if textLike(engine) {
		return "''"
	}
	return "0"
}

func (postgresDialect) NormalizeDefault(abstract, literal string) string {
	if canonicalType(abstract) != TypeBool {
		return literal
	}
	switch strings.Trim(literal, "'") {
	case "0":
		return "FALSE"
	case "1":
		return "TRUE"
	}
	return literal
}

func (postgresDialect) InlineUnique(string) bool { return true }

func (postgresDialect) KeyColumn(column, _ string) string { return quote(Postgres, column) }

func (postgresDialect) Quote(ident string) string { return quote(Postgres, ident) }

func (postgresDialect) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (postgresDialect) TransactionalDDL() bool { return true }

func (postgresDialect) AlterConstraints() bool { return true }

func (postgresDialect) SetNotNull(table, column, _ string) string {
	return fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL", quote(Postgres, table), quote(Postgres, column))
}

// PostgreSQL checks foreign keys per statement and has no session switch
// that does not require superuser; enforcement is left on.
func (postgresDialect) SetForeignKeys(context.Context, Querier, bool) error { return nil }

func (postgresDialect) TableExists(ctx context.Context, q Querier, table string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM information_schema.tables
		WHERE table_schema = current_schema()
		AND table_type = 'BASE TABLE'
		AND table_name = $1`, strings.ToLower(table)).Scan(&n)
	return n > 0, err
}

func (postgresDialect) Columns(ctx context.Context, q Querier, table string) (map[string]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT column_name, data_type
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
		ORDER BY ordinal_position`, strings.ToLower(table))
	if err != nil {
		return nil, err
	}
	return scanColumns(rows, func(t string) string { return normalizeType(Postgres, t) })
}

func (postgresDialect) ConstraintExists(ctx context.Context, q Querier, table, name string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM information_schema.table_constraints
		WHERE table_schema = current_schema()
		AND table_name = $1
		AND constraint_name = $2`, strings.ToLower(table), strings.ToLower(name)).Scan(&n)
	return n > 0, err
}

func (postgresDialect) RowCount(ctx context.Context, q Querier, table string) (int64, error) {
	return rowCount(ctx, q, quote(Postgres, table))
}

func (postgresDialect) ForeignKeys(ctx context.Context, q Querier, table string) ([]schema.ForeignKey, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT
			kcu.column_name,
			ccu.table_name AS referenced_table,
			ccu.column_name AS referenced_column,
			rc.delete_rule,
			rc.update_rule
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
		JOIN information_schema.referential_constraints rc
			ON rc.constraint_name = tc.constraint_name
			AND rc.constraint_schema = tc.table_schema
		JOIN information_schema.constraint_column_usage ccu
			ON ccu.constraint_name = tc.constraint_name
			AND ccu.table_schema = tc.table_schema
		WHERE tc.constraint_type = 'FOREIGN KEY'
		AND tc.table_schema = current_schema()
		AND tc.table_name = $1
		ORDER BY tc.constraint_name`, strings.ToLower(table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []schema.ForeignKey
	for rows.Next() {
		var fk schema.ForeignKey
		var onDelete, onUpdate string
		if err := rows.Scan(&fk.Column, &fk.ParentTable, &fk.ParentColumn, &onDelete, &onUpdate); err != nil {
			return nil, err
		}
		fk.Instruction = instruction(onDelete, onUpdate)
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

func (postgresDialect) UniqueConstraints(ctx context.Context, q Querier, table string) ([][]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT tc.constraint_name, kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
			ON tc.constraint_name = kcu.constraint_name
			AND tc.table_schema = kcu.table_schema
			AND tc.table_name = kcu.table_name
		WHERE tc.constraint_type = 'UNIQUE'
		AND tc.table_schema = current_schema()
		AND tc.table_name = $1
		ORDER BY tc.constraint_name, kcu.ordinal_position`, strings.ToLower(table))
	if err != nil {
		return nil, err
	}
	return scanGroups(rows)
}
