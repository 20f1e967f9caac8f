package dialect

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorKind
	}{
		{"nil", nil, Unknown},
		{"plain", errors.New("boom"), Unknown},
		{"sqlite busy", sqlite3.Error{Code: sqlite3.ErrBusy}, Transient},
		{"sqlite locked", sqlite3.Error{Code: sqlite3.ErrLocked}, Transient},
		{"sqlite constraint", sqlite3.Error{Code: sqlite3.ErrConstraint}, Integrity},
		{"sqlite error", sqlite3.Error{Code: sqlite3.ErrError}, Programming},
		{"pg duplicate object", &pq.Error{Code: "42710"}, ConstraintExists},
		{"pg duplicate table", &pq.Error{Code: "42P07"}, ConstraintExists},
		{"pg deadlock", &pq.Error{Code: "40P01"}, Transient},
		{"pg connection class", &pq.Error{Code: "08006"}, Transient},
		{"pg unique violation", &pq.Error{Code: "23505"}, Integrity},
		{"pg undefined column", &pq.Error{Code: "42703"}, Programming},
		{"mysql duplicate key name", &mysql.MySQLError{Number: 1061}, ConstraintExists},
		{"mysql duplicate fk", &mysql.MySQLError{Number: 1826}, ConstraintExists},
		{"mysql duplicate entry", &mysql.MySQLError{Number: 1062}, Integrity},
		{"mysql lock wait", &mysql.MySQLError{Number: 1205}, Transient},
		{"mysql syntax", &mysql.MySQLError{Number: 1064}, Programming},
		{"mysql other", &mysql.MySQLError{Number: 9999}, Unknown},
		{"bad conn", driver.ErrBadConn, Transient},
		{"invalid conn", mysql.ErrInvalidConn, Transient},
		{"deadline", context.DeadlineExceeded, Transient},
		{"wrapped", fmt.Errorf("adding constraint: %w", &pq.Error{Code: "42710"}), ConstraintExists},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestErrorKindString(t *testing.T) {
	assert.Equal(t, "constraint_exists", ConstraintExists.String())
	assert.Equal(t, "transient", Transient.String())
	assert.Equal(t, "unknown", Unknown.String())
}
