package dialect

import (
	"context"
	"database/sql"
	"strings"

	"github.com/egoughnour/schemasync/internal/schema"
)

type sqliteDialect struct{}

func (sqliteDialect) Name() Name         { return SQLite }
func (sqliteDialect) DriverName() string { return "sqlite3" }

func (sqliteDialect) MapType(abstract string) (string, bool) { return mapType(SQLite, abstract) }

func (sqliteDialect) AutoIncrementKey() string { return "INTEGER PRIMARY KEY AUTOINCREMENT" }

func (d sqliteDialect) ZeroValue(abstract string) string {
	engine, _ := d.MapType(abstract)
	if textLike(engine) {
		return "''"
	}
	return "0"
}

func (sqliteDialect) NormalizeDefault(_, literal string) string { return literal }

func (sqliteDialect) InlineUnique(string) bool { return true }

func (sqliteDialect) KeyColumn(column, _ string) string { return quote(SQLite, column) }

func (sqliteDialect) Quote(ident string) string { return quote(SQLite, ident) }

func (sqliteDialect) Placeholder(int) string { return "?" }

func (sqliteDialect) TransactionalDDL() bool { return true }

// SQLite cannot add constraints to an existing table; those changes go
// through a table rebuild.
func (sqliteDialect) AlterConstraints() bool { return false }

func (sqliteDialect) SetNotNull(string, string, string) string { return "" }

func (sqliteDialect) SetForeignKeys(ctx context.Context, q Querier, enabled bool) error {
	state := "OFF"
	if enabled {
		state = "ON"
	}
	_, err := q.ExecContext(ctx, "PRAGMA foreign_keys = "+state)
	return err
}

func (sqliteDialect) TableExists(ctx context.Context, q Querier, table string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND lower(name) = lower(?)`,
		table).Scan(&n)
	return n > 0, err
}

func (sqliteDialect) Columns(ctx context.Context, q Querier, table string) (map[string]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT name, type FROM pragma_table_info(?) ORDER BY cid`, table)
	if err != nil {
		return nil, err
	}
	return scanColumns(rows, func(t string) string { return normalizeType(SQLite, t) })
}

// Constraint names are not kept in a queryable form by SQLite, so this
// always reports false; structural comparison covers SQLite instead.
func (sqliteDialect) ConstraintExists(context.Context, Querier, string, string) (bool, error) {
	return false, nil
}

func (sqliteDialect) RowCount(ctx context.Context, q Querier, table string) (int64, error) {
	return rowCount(ctx, q, quote(SQLite, table))
}

func (sqliteDialect) ForeignKeys(ctx context.Context, q Querier, table string) ([]schema.ForeignKey, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT "from", "table", "to", on_delete, on_update FROM pragma_foreign_key_list(?) ORDER BY id, seq`,
		table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var fks []schema.ForeignKey
	for rows.Next() {
		var fk schema.ForeignKey
		var onDelete, onUpdate string
		var to sql.NullString
		if err := rows.Scan(&fk.Column, &fk.ParentTable, &to, &onDelete, &onUpdate); err != nil {
			return nil, err
		}
		fk.Column = strings.ToLower(fk.Column)
		// A reference without a column targets the parent's primary key.
		fk.ParentColumn = to.String
		if !to.Valid {
			fk.ParentColumn = "id"
		}
		fk.Instruction = instruction(onDelete, onUpdate)
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

func (sqliteDialect) UniqueConstraints(ctx context.Context, q Querier, table string) ([][]string, error) {
	// Index names are collected first; on a single connection the second
	// query cannot start while the first result set is open.
	rows, err := q.QueryContext(ctx,
		`SELECT name FROM pragma_index_list(?) WHERE "unique" = 1 AND origin = 'u' ORDER BY name`,
		table)
	if err != nil {
		return nil, err
	}
	indexes, err := scanStrings(rows)
	if err != nil {
		return nil, err
	}

	groups := make([][]string, 0, len(indexes))
	for _, idx := range indexes {
		rows, err := q.QueryContext(ctx, `SELECT name FROM pragma_index_info(?) ORDER BY seqno`, idx)
		if err != nil {
			return nil, err
		}
		cols, err := scanStrings(rows)
		if err != nil {
			return nil, err
		}
		for i := range cols {
			cols[i] = strings.ToLower(cols[i])
		}
		groups = append(groups, cols)
	}
	return groups, nil
}
