package dialect

import (
	"context"
	"fmt"
	"strings"

	"github.com/egoughnour/schemasync/internal/schema"
)

// Prefix length used when a TEXT or BLOB column takes part in a unique key.
const mysqlKeyPrefix = 255

type mysqlDialect struct{}

func (mysqlDialect) Name() Name         { return MySQL }
func (mysqlDialect) DriverName() string { return "mysql" }

func (mysqlDialect) MapType(abstract string) (string, bool) { return mapType(MySQL, abstract) }

func (mysqlDialect) AutoIncrementKey() string { return "INT AUTO_INCREMENT PRIMARY KEY" }

func (d mysqlDialect) ZeroValue(abstract string) string {
	if canonicalType(abstract) == TypeTimestamp {
		return "CURRENT_TIMESTAMP"
	}
	engine, _ := d.MapType(abstract)
	if textLike(engine) {
		return "''"
	}
	return "0"
}

// TEXT and BLOB columns only accept expression defaults, so literals are
// wrapped in parentheses.
func (d mysqlDialect) NormalizeDefault(abstract, literal string) string {
	if !d.largeObject(abstract) || strings.HasPrefix(literal, "(") || strings.EqualFold(literal, "NULL") {
		return literal
	}
	return "(" + literal + ")"
}

func (d mysqlDialect) InlineUnique(abstract string) bool { return !d.largeObject(abstract) }

func (d mysqlDialect) KeyColumn(column, abstract string) string {
	if d.largeObject(abstract) {
		return fmt.Sprintf("%s(%d)", quote(MySQL, column), mysqlKeyPrefix)
	}
	return quote(MySQL, column)
}

func (d mysqlDialect) largeObject(abstract string) bool {
	engine, _ := d.MapType(abstract)
	upper := strings.ToUpper(engine)
	return strings.HasSuffix(upper, "TEXT") || strings.HasSuffix(upper, "BLOB")
}

func (mysqlDialect) Quote(ident string) string { return quote(MySQL, ident) }

func (mysqlDialect) Placeholder(int) string { return "?" }

// Every DDL statement commits implicitly on MySQL.
func (mysqlDialect) TransactionalDDL() bool { return false }

func (mysqlDialect) AlterConstraints() bool { return true }

func (mysqlDialect) SetNotNull(table, _, definition string) string {
	return fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s", quote(MySQL, table), definition)
}

func (mysqlDialect) SetForeignKeys(ctx context.Context, q Querier, enabled bool) error {
	state := 0
	if enabled {
		state = 1
	}
	_, err := q.ExecContext(ctx, fmt.Sprintf("SET FOREIGN_KEY_CHECKS = %d", state))
	return err
}

func (mysqlDialect) TableExists(ctx context.Context, q Querier, table string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM information_schema.TABLES
		WHERE TABLE_SCHEMA = DATABASE()
		AND TABLE_TYPE = 'BASE TABLE'
		AND TABLE_NAME = ?`, table).Scan(&n)
	return n > 0, err
}

// Columns reports COLUMN_TYPE rather than DATA_TYPE so TINYINT(1) survives
// the round trip.
func (mysqlDialect) Columns(ctx context.Context, q Querier, table string) (map[string]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT COLUMN_NAME, COLUMN_TYPE
		FROM information_schema.COLUMNS
		WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?
		ORDER BY ORDINAL_POSITION`, table)
	if err != nil {
		return nil, err
	}
	return scanColumns(rows, func(t string) string { return normalizeType(MySQL, t) })
}

func (mysqlDialect) ConstraintExists(ctx context.Context, q Querier, table, name string) (bool, error) {
	var n int
	err := q.QueryRowContext(ctx, `
		SELECT COUNT(*)
		FROM information_schema.TABLE_CONSTRAINTS
		WHERE CONSTRAINT_SCHEMA = DATABASE()
		AND TABLE_NAME = ?
		AND CONSTRAINT_NAME = ?`, table, name).Scan(&n)
	return n > 0, err
}

func (mysqlDialect) RowCount(ctx context.Context, q Querier, table string) (int64, error) {
	return rowCount(ctx, q, quote(MySQL, table))
}

func (mysqlDialect) ForeignKeys(ctx context.Context, q Querier, table string) ([]schema.ForeignKey, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT k.COLUMN_NAME, k.REFERENCED_TABLE_NAME, k.REFERENCED_COLUMN_NAME, r.DELETE_RULE, r.UPDATE_RULE
		FROM information_schema.KEY_COLUMN_USAGE k
		JOIN information_schema.REFERENTIAL_CONSTRAINTS r
			ON r.CONSTRAINT_SCHEMA = k.CONSTRAINT_SCHEMA
			AND r.CONSTRAINT_NAME = k.CONSTRAINT_NAME
		WHERE k.TABLE_SCHEMA = DATABASE()
		AND k.TABLE_NAME = ?
		AND k.REFERENCED_TABLE_NAME IS NOT NULL
		ORDER BY k.CONSTRAINT_NAME, k.ORDINAL_POSITION`, table)
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
		fk.Column = strings.ToLower(fk.Column)
		fk.Instruction = instruction(onDelete, onUpdate)
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

func (mysqlDialect) UniqueConstraints(ctx context.Context, q Querier, table string) ([][]string, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT INDEX_NAME, COLUMN_NAME
		FROM information_schema.STATISTICS
		WHERE TABLE_SCHEMA = DATABASE()
		AND TABLE_NAME = ?
		AND NON_UNIQUE = 0
		AND INDEX_NAME <> 'PRIMARY'
		ORDER BY INDEX_NAME, SEQ_IN_INDEX`, table)
	if err != nil {
		return nil, err
	}
	return scanGroups(rows)
}
