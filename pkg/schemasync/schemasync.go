// Package schemasync provides a public API for declarative schema
// synchronization.
//
// A schema is an ordered list of tables. Sync compares it with a live SQLite,
// PostgreSQL or MySQL database and applies the missing structure without
// losing rows. It is safe to call on every process start.
//
// Basic usage:
//
//	s, err := schemasync.LoadSchema("schema.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	report, err := schemasync.Sync(ctx, "sqlite:///store.db", s)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println(report.Statements())
//
// For CLI usage, install the schemasync command:
//
//	go install github.com/egoughnour/schemasync/cmd/schemasync@latest
package schemasync

import (
	"context"

	"github.com/egoughnour/schemasync/internal/db"
	"github.com/egoughnour/schemasync/internal/dialect"
	"github.com/egoughnour/schemasync/internal/diff"
	"github.com/egoughnour/schemasync/internal/schema"
	"github.com/egoughnour/schemasync/internal/syncer"
)

// Schema is the ordered list of tables a database must contain.
type Schema = schema.Schema

// Table describes one declared table.
type Table = schema.Table

// Column is a declared column.
type Column = schema.Column

// ForeignKey is a declared foreign key.
type ForeignKey = schema.ForeignKey

// Plan lists the actions a sync pass would take.
type Plan = diff.Plan

// Report lists what a sync pass did.
type Report = syncer.Report

// Options controls a sync pass.
type Options = syncer.Options

// ConnectOptions tunes connection establishment.
type ConnectOptions = db.Options

// ErrColumnDrop is returned when a table rebuild would discard columns and
// dropping was not allowed.
var ErrColumnDrop = syncer.ErrColumnDrop

// Sync opens uri and brings the database in line with s.
//
// Example:
//
//	report, err := schemasync.Sync(ctx, "postgresql://localhost/store", s)
//	if err != nil {
//	    return err
//	}
//	for _, t := range report.Tables {
//	    fmt.Printf("%s: %s\n", t.Table, t.Outcome)
//	}
func Sync(ctx context.Context, uri string, s *Schema) (*Report, error) {
	return SyncWith(ctx, uri, s, ConnectOptions{}, Options{})
}

// SyncWith is Sync with explicit connection and pass options.
func SyncWith(ctx context.Context, uri string, s *Schema, copts ConnectOptions, opts Options) (*Report, error) {
	pool, err := db.Open(ctx, uri, copts)
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	return syncer.New(pool, opts).Sync(ctx, s)
}

// PlanSync returns the actions Sync would take, without running them.
func PlanSync(ctx context.Context, uri string, s *Schema) (*Plan, error) {
	pool, err := db.Open(ctx, uri, ConnectOptions{})
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	return syncer.New(pool, Options{}).Plan(ctx, s)
}

// Columns returns the live columns of table as name to engine type.
func Columns(ctx context.Context, uri, table string) (map[string]string, error) {
	pool, err := db.Open(ctx, uri, ConnectOptions{})
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	return pool.Columns(ctx, table)
}

// LoadSchema reads a YAML or JSON schema file and validates it.
func LoadSchema(path string) (*Schema, error) {
	s, err := schema.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return s, s.Validate()
}

// ParseSQL reads CREATE TABLE statements into a Schema.
func ParseSQL(sql string) (*Schema, error) {
	return schema.NewParser().Parse(sql)
}

// GenerateSQL renders s as CREATE TABLE statements for the named dialect.
func GenerateSQL(s *Schema, dialectName string) (string, error) {
	gen, err := dialect.NewGenerator(dialectName)
	if err != nil {
		return "", err
	}
	return gen.Generate(s)
}

// SupportedDialects returns the list of supported SQL dialects.
func SupportedDialects() []string {
	return dialect.SupportedDialects()
}
