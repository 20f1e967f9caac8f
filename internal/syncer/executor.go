package syncer

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/egoughnour/schemasync/internal/dialect"
	"github.com/egoughnour/schemasync/internal/diff"
	"github.com/egoughnour/schemasync/internal/schema"
)

// execer is satisfied by *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// executor applies the actions of one table plan.
type executor struct {
	b      *dialect.Builder
	s      *schema.Schema
	logger *slog.Logger

	// beforeSwap runs after rows are copied into a replacement table and
	// before the original is dropped.
	beforeSwap func(ctx context.Context, q execer, table string) error

	stmts []string
}

func (e *executor) apply(ctx context.Context, q execer, tp diff.TablePlan) (TableReport, error) {
	e.stmts = nil
	tr := TableReport{Table: tp.Table, Outcome: UpToDate}

	t, ok := e.s.Table(tp.Table)
	if !ok {
		return tr, fmt.Errorf("table %s is not declared", tp.Table)
	}

	for _, a := range tp.Actions {
		var err error
		switch a.Kind {
		case diff.CreateTable:
			err = e.createTable(ctx, q, t)
			tr.Outcome = Created
		case diff.AddColumn:
			err = e.addColumn(ctx, q, a)
			tr.Outcome = Altered
		case diff.AddUnique:
			err = e.addConstraint(ctx, q, a, func() (string, error) { return e.b.AddUnique(t, a.Unique) })
			tr.Outcome = Altered
		case diff.AddForeignKey:
			err = e.addConstraint(ctx, q, a, func() (string, error) { return e.b.AddForeignKey(t.Name, *a.ForeignKey) })
			tr.Outcome = Altered
		case diff.RecreateTable:
			err = e.recreateTable(ctx, q, t, a)
			tr.Outcome = Recreated
		default:
			err = fmt.Errorf("unknown action %q", a.Kind)
		}
		if err != nil {
			tr.Statements = e.stmts
			return tr, &Error{Table: t.Name, Action: a.Kind, Kind: dialect.Classify(err), Err: err}
		}
	}

	tr.Statements = e.stmts
	return tr, nil
}

func (e *executor) exec(ctx context.Context, q execer, stmt string) error {
	if _, err := q.ExecContext(ctx, stmt); err != nil {
		e.logger.Error("statement failed", "statement", stmt, "error", err)
		return err
	}
	e.stmts = append(e.stmts, stmt)
	return nil
}

func (e *executor) createTable(ctx context.Context, q execer, t *schema.Table) error {
	stmt, err := e.b.CreateTable(t, t.Name)
	if err != nil {
		return err
	}
	return e.exec(ctx, q, stmt)
}

// addColumn adds a column as declared, or, when it is NOT NULL without a
// default on a populated table, adds it nullable, back-fills the zero value
// and then tightens it.
func (e *executor) addColumn(ctx context.Context, q execer, a diff.Action) error {
	stmt, err := e.b.AddColumn(a.Table, *a.Column, a.Backfill)
	if err != nil {
		return err
	}
	if err := e.exec(ctx, q, stmt); err != nil {
		return err
	}
	if !a.Backfill {
		return nil
	}

	fill, err := e.b.Backfill(a.Table, *a.Column)
	if err != nil {
		return err
	}
	if err := e.exec(ctx, q, fill); err != nil {
		return err
	}
	tighten, err := e.b.SetNotNull(a.Table, *a.Column)
	if err != nil {
		return err
	}
	return e.exec(ctx, q, tighten)
}

// addConstraint runs a constraint add and treats "already exists" as done.
// Where DDL is transactional the statement runs under a savepoint so a
// duplicate does not abort the surrounding transaction.
func (e *executor) addConstraint(ctx context.Context, q execer, a diff.Action, render func() (string, error)) error {
	stmt, err := render()
	if err != nil {
		return err
	}

	savepoint := e.b.Dialect().TransactionalDDL()
	if savepoint {
		if _, err := q.ExecContext(ctx, "SAVEPOINT schemasync_constraint"); err != nil {
			return err
		}
	}

	_, err = q.ExecContext(ctx, stmt)
	switch {
	case err == nil:
		e.stmts = append(e.stmts, stmt)
		if savepoint {
			_, err = q.ExecContext(ctx, "RELEASE SAVEPOINT schemasync_constraint")
		}
		return err
	case dialect.Classify(err) == dialect.ConstraintExists:
		e.logger.Debug("constraint already exists",
			"table", a.Table, "constraint", a.Constraint, "error", err)
		if savepoint {
			_, err = q.ExecContext(ctx, "ROLLBACK TO SAVEPOINT schemasync_constraint")
			return err
		}
		return nil
	default:
		e.logger.Error("statement failed", "statement", stmt, "error", err)
		return err
	}
}

// recreateTable rebuilds t under a temporary name, copies the common
// columns, drops the original and renames the copy into place. The caller
// runs it inside one transaction so a failure leaves the original intact.
func (e *executor) recreateTable(ctx context.Context, q execer, t *schema.Table, a diff.Action) error {
	temp := t.Name + schema.RebuildSuffix

	stmts := make([]string, 0, 3)
	drop, err := e.b.DropTable(temp, true)
	if err != nil {
		return err
	}
	create, err := e.b.CreateTable(t, temp)
	if err != nil {
		return err
	}
	stmts = append(stmts, drop, create)
	if len(a.Copy) > 0 {
		cp, err := e.b.CopyRows(t.Name, temp, a.Copy)
		if err != nil {
			return err
		}
		stmts = append(stmts, cp)
	}
	for _, stmt := range stmts {
		if err := e.exec(ctx, q, stmt); err != nil {
			return err
		}
	}

	if e.beforeSwap != nil {
		if err := e.beforeSwap(ctx, q, t.Name); err != nil {
			return err
		}
	}

	dropOld, err := e.b.DropTable(t.Name, false)
	if err != nil {
		return err
	}
	rename, err := e.b.RenameTable(temp, t.Name)
	if err != nil {
		return err
	}
	for _, stmt := range []string{dropOld, rename} {
		if err := e.exec(ctx, q, stmt); err != nil {
			return err
		}
	}
	return nil
}
