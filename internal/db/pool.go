// Package db opens the pooled connection a sync pass runs on.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/egoughnour/schemasync/internal/dialect"
	"github.com/egoughnour/schemasync/internal/schema"
)

// Options tunes connection establishment.
type Options struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	// Attempts is the total number of connection attempts.
	Attempts int
	// RetryDelay is the first wait between attempts; it doubles each time.
	RetryDelay time.Duration
	Logger     *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 30 * time.Second
	}
	if o.Attempts <= 0 {
		o.Attempts = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Pool is the connection pool and dialect of one database. It is created
// once at boot and closed at shutdown.
type Pool struct {
	DB      *sql.DB
	Dialect dialect.Dialect
	Target  *Target
}

// Open parses uri, opens the pool and pings it. Transient failures are
// retried with exponential backoff; anything else fails immediately.
func Open(ctx context.Context, uri string, opts Options) (*Pool, error) {
	opts = opts.withDefaults()
	target, err := ParseURI(uri, opts)
	if err != nil {
		return nil, err
	}
	d, err := dialect.ForName(string(target.Dialect))
	if err != nil {
		return nil, err
	}

	var conn *sql.DB
	attempt := 0
	op := func() error {
		attempt++
		db, err := sql.Open(target.Driver, target.DSN)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("opening %s database: %w", target.Dialect, err))
		}
		if target.Path == memoryPath {
			// Every pooled connection would otherwise get its own empty database.
			db.SetMaxOpenConns(1)
		}

		pingCtx, cancel := context.WithTimeout(ctx, opts.ConnectTimeout)
		defer cancel()
		if err := db.PingContext(pingCtx); err != nil {
			_ = db.Close()
			kind := dialect.Classify(err)
			if kind != dialect.Transient {
				return backoff.Permanent(fmt.Errorf("pinging %s database: %w", target.Dialect, err))
			}
			opts.Logger.Warn("database not reachable",
				"dialect", target.Dialect,
				"attempt", attempt,
				"max_attempts", opts.Attempts,
				"error", err)
			return fmt.Errorf("pinging %s database: %w", target.Dialect, err)
		}
		conn = db
		return nil
	}

	if err := backoff.Retry(op, newBackOff(ctx, opts)); err != nil {
		return nil, err
	}

	opts.Logger.Debug("database connected", "dialect", target.Dialect, "uri", redact(uri))
	return &Pool{DB: conn, Dialect: d, Target: target}, nil
}

func newBackOff(ctx context.Context, opts Options) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = opts.RetryDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(opts.Attempts-1)), ctx)
}

// Conn reserves a single connection. A sync pass holds it for its whole
// duration so session settings apply to every statement.
func (p *Pool) Conn(ctx context.Context) (*sql.Conn, error) {
	return p.DB.Conn(ctx)
}

// Columns returns the live columns of table as lower-cased name to engine
// type. The seed installer uses it to reject unknown keys.
func (p *Pool) Columns(ctx context.Context, table string) (map[string]string, error) {
	if err := schema.ValidIdentifier(table); err != nil {
		return nil, err
	}
	cols, err := p.Dialect.Columns(ctx, p.DB, table)
	if err != nil {
		return nil, fmt.Errorf("reading columns of %s: %w", table, err)
	}
	return cols, nil
}

// Close closes the pool.
func (p *Pool) Close() error {
	return p.DB.Close()
}
