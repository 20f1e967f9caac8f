// Package syncer reconciles a live database with a declared schema: it
// plans the structural changes and applies them transactionally.
package syncer

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/egoughnour/schemasync/internal/db"
	"github.com/egoughnour/schemasync/internal/dialect"
	"github.com/egoughnour/schemasync/internal/diff"
	"github.com/egoughnour/schemasync/internal/schema"
)

// Options controls a sync pass.
type Options struct {
	// AllowColumnDrop lets a table rebuild discard live columns the schema
	// no longer declares. Without it such a pass fails before any change.
	AllowColumnDrop bool
	Logger          *slog.Logger
}

// Syncer runs sync passes against one pool. Passes are not safe to run
// concurrently against the same database; callers serialize them.
type Syncer struct {
	pool   *db.Pool
	opts   Options
	logger *slog.Logger

	beforeSwap func(ctx context.Context, q execer, table string) error
}

// New creates a Syncer using pool.
func New(pool *db.Pool, opts Options) *Syncer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Syncer{pool: pool, opts: opts, logger: logger}
}

// Plan computes the actions a sync pass would take without applying them.
func (s *Syncer) Plan(ctx context.Context, sc *schema.Schema) (*diff.Plan, error) {
	if sc == nil || len(sc.Tables) == 0 {
		return nil, schema.ErrNoSchema
	}
	conn, err := s.pool.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Close()

	return s.plan(ctx, conn, sc)
}

func (s *Syncer) plan(ctx context.Context, conn *sql.Conn, sc *schema.Schema) (*diff.Plan, error) {
	insp := dialect.NewInspector(s.pool.Dialect, conn)
	plan, err := diff.NewPlanner(insp, s.logger).Plan(ctx, sc)
	if err != nil {
		return nil, fmt.Errorf("planning: %w", err)
	}
	return plan, nil
}

// Sync brings the database in line with sc. Foreign key enforcement is off
// for the duration of the pass and switched back on before returning, on
// every path. PostgreSQL keeps enforcement on, since switching it off needs
// superuser rights. SQLite commits once per table; other engines commit once
// for the whole pass. Any failure rolls back the open transaction and is
// returned.
func (s *Syncer) Sync(ctx context.Context, sc *schema.Schema) (*Report, error) {
	if sc == nil || len(sc.Tables) == 0 {
		return nil, schema.ErrNoSchema
	}
	d := s.pool.Dialect

	conn, err := s.pool.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring connection: %w", err)
	}
	defer conn.Close()

	plan, err := s.plan(ctx, conn, sc)
	if err != nil {
		return nil, err
	}
	if err := s.checkDropped(plan); err != nil {
		return nil, err
	}

	if err := d.SetForeignKeys(ctx, conn, false); err != nil {
		return nil, fmt.Errorf("disabling foreign keys: %w", err)
	}
	defer func() {
		if err := d.SetForeignKeys(context.Background(), conn, true); err != nil {
			s.logger.Error("re-enabling foreign keys failed", "error", err)
		}
	}()

	exec := &executor{
		b:          dialect.NewBuilder(d),
		s:          sc,
		logger:     s.logger,
		beforeSwap: s.beforeSwap,
	}
	report := &Report{Dialect: d.Name()}

	if d.Name() == dialect.SQLite {
		err = s.applyPerTable(ctx, conn, exec, plan, report)
	} else {
		err = s.applyOnce(ctx, conn, exec, plan, report)
	}
	if err != nil {
		return report, err
	}

	s.logger.Info("schema synchronized",
		"dialect", d.Name(),
		"tables", len(report.Tables),
		"created", report.Count(Created),
		"altered", report.Count(Altered),
		"recreated", report.Count(Recreated))
	return report, nil
}

func (s *Syncer) applyPerTable(ctx context.Context, conn *sql.Conn, exec *executor, plan *diff.Plan, report *Report) error {
	for _, tp := range plan.Tables {
		if tp.UpToDate() {
			report.Tables = append(report.Tables, TableReport{Table: tp.Table, Outcome: UpToDate})
			continue
		}

		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		tr, err := exec.apply(ctx, tx, tp)
		if err != nil {
			_ = tx.Rollback()
			s.logger.Error("table sync rolled back", "table", tp.Table, "error", err)
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit %s: %w", tp.Table, err)
		}
		report.Tables = append(report.Tables, tr)
		s.logTable(tr)
	}
	return nil
}

func (s *Syncer) applyOnce(ctx context.Context, conn *sql.Conn, exec *executor, plan *diff.Plan, report *Report) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	applied := make([]TableReport, 0, len(plan.Tables))
	for _, tp := range plan.Tables {
		if tp.UpToDate() {
			applied = append(applied, TableReport{Table: tp.Table, Outcome: UpToDate})
			continue
		}
		tr, err := exec.apply(ctx, tx, tp)
		if err != nil {
			_ = tx.Rollback()
			s.logger.Error("sync pass rolled back", "table", tp.Table, "error", err)
			return err
		}
		applied = append(applied, tr)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	report.Tables = applied
	for _, tr := range applied {
		s.logTable(tr)
	}
	return nil
}

func (s *Syncer) logTable(tr TableReport) {
	switch tr.Outcome {
	case UpToDate:
		s.logger.Debug("table up to date", "table", tr.Table)
	default:
		s.logger.Info("table "+string(tr.Outcome), "table", tr.Table, "statements", len(tr.Statements))
	}
}

// checkDropped fails the pass when a rebuild would discard columns, unless
// dropping was allowed, in which case each loss is logged.
func (s *Syncer) checkDropped(plan *diff.Plan) error {
	dropped := plan.Dropped()
	if len(dropped) == 0 {
		return nil
	}

	tables := make([]string, 0, len(dropped))
	for table := range dropped {
		tables = append(tables, table)
	}
	sort.Strings(tables)

	if !s.opts.AllowColumnDrop {
		parts := make([]string, len(tables))
		for i, table := range tables {
			parts[i] = fmt.Sprintf("%s(%s)", table, strings.Join(dropped[table], ", "))
		}
		return fmt.Errorf("%w: %s", ErrColumnDrop, strings.Join(parts, "; "))
	}
	for _, table := range tables {
		s.logger.Warn("rebuild discards columns", "table", table, "columns", dropped[table])
	}
	return nil
}
