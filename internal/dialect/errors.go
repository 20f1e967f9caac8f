package dialect

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

// ErrorKind is the engine-independent class of a database error.
type ErrorKind int

const (
	// Unknown errors are propagated unchanged.
	Unknown ErrorKind = iota
	// Transient errors (dropped connections, lock timeouts, deadlocks) may
	// succeed on retry.
	Transient
	// Integrity errors are violations caused by the stored data.
	Integrity
	// Programming errors are invalid statements or missing objects.
	Programming
	// ConstraintExists means the constraint being added is already there.
	ConstraintExists
)

func (k ErrorKind) String() string {
	switch k {
	case Transient:
		return "transient"
	case Integrity:
		return "integrity"
	case Programming:
		return "programming"
	case ConstraintExists:
		return "constraint_exists"
	default:
		return "unknown"
	}
}

// Classify maps a driver error to its ErrorKind.
func Classify(err error) ErrorKind {
	if err == nil {
		return Unknown
	}

	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return classifySQLite(sqliteErr)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return classifyPostgres(pqErr)
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return classifyMySQL(myErr)
	}

	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, context.DeadlineExceeded) {
		return Transient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return Transient
	}
	return Unknown
}

func classifySQLite(err sqlite3.Error) ErrorKind {
	switch err.Code {
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return Transient
	case sqlite3.ErrConstraint:
		return Integrity
	case sqlite3.ErrError:
		if strings.Contains(err.Error(), "already exists") {
			return ConstraintExists
		}
		return Programming
	default:
		return Unknown
	}
}

func classifyPostgres(err *pq.Error) ErrorKind {
	switch err.Code {
	case "42710", "42P07": // duplicate_object, duplicate_table
		return ConstraintExists
	case "40001", "40P01", "55P03", "57P01", "57P03", "53300":
		return Transient
	}
	switch err.Code.Class() {
	case "08":
		return Transient
	case "23":
		return Integrity
	case "42":
		return Programming
	}
	return Unknown
}

func classifyMySQL(err *mysql.MySQLError) ErrorKind {
	switch err.Number {
	case 1061, 1826, 1022: // duplicate key name, duplicate foreign key, duplicate key on write
		return ConstraintExists
	case 1062, 1451, 1452, 1048, 1138, 1265:
		return Integrity
	case 1205, 1213, 1040, 2006, 2013:
		return Transient
	case 1064, 1054, 1146, 1050, 1060, 1072, 1091:
		return Programming
	}
	return Unknown
}
