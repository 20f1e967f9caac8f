package diff

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/egoughnour/schemasync/internal/dialect"
	"github.com/egoughnour/schemasync/internal/schema"
)

// Inspector reads the live structure of a database. *dialect.Inspector is
// the production implementation.
type Inspector interface {
	Dialect() dialect.Dialect
	TableExists(ctx context.Context, table string) (bool, error)
	Inspect(ctx context.Context, table string) (*schema.LiveTable, error)
	ConstraintExists(ctx context.Context, table, name string) (bool, error)
}

// Planner compares declared tables with live ones. It only reads.
type Planner struct {
	insp   Inspector
	logger *slog.Logger
}

// NewPlanner creates a planner reading through insp.
func NewPlanner(insp Inspector, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Planner{insp: insp, logger: logger}
}

// Plan validates s and computes the actions for every table in order.
func (p *Planner) Plan(ctx context.Context, s *schema.Schema) (*Plan, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	for _, late := range s.DeclaredAfter() {
		p.logger.Warn("foreign key parent declared after child", "reference", late)
	}

	plan := &Plan{Dialect: p.insp.Dialect().Name()}
	for i := range s.Tables {
		tp, err := p.PlanTable(ctx, &s.Tables[i])
		if err != nil {
			return nil, err
		}
		plan.Tables = append(plan.Tables, tp)
	}
	return plan, nil
}

// PlanTable computes the actions for one table. A missing table is
// created whole. Otherwise only declared columns and constraints absent from
// the live table produce actions; nothing live is ever removed except by a
// rebuild on engines that cannot alter constraints.
func (p *Planner) PlanTable(ctx context.Context, t *schema.Table) (TablePlan, error) {
	d := p.insp.Dialect()
	tp := TablePlan{Table: t.Name}

	for _, c := range t.Columns {
		if !dialect.KnownType(c.Type) {
			p.logger.Warn("unknown column type passed through",
				"table", t.Name, "column", c.Name, "type", c.Type, "dialect", d.Name())
		}
	}

	exists, err := p.insp.TableExists(ctx, t.Name)
	if err != nil {
		return tp, fmt.Errorf("checking table %s: %w", t.Name, err)
	}
	if !exists {
		tp.Actions = []Action{{Kind: CreateTable, Table: t.Name}}
		return tp, nil
	}
	tp.Exists = true

	live, err := p.insp.Inspect(ctx, t.Name)
	if err != nil {
		return tp, err
	}
	tp.RowCount = live.RowCount

	missingCols := missingColumns(t, live)
	missingUnique := missingUniqueGroups(t, live)
	missingFKs := missingForeignKeys(t, live)
	if len(missingCols) == 0 && len(missingUnique) == 0 && len(missingFKs) == 0 {
		return tp, nil
	}

	if !d.AlterConstraints() {
		tp.Actions = []Action{recreate(t, live)}
		return tp, nil
	}

	added := make(map[string]bool, len(missingCols))
	for _, c := range missingCols {
		_, hasDefault := c.Default()
		tp.Actions = append(tp.Actions, Action{
			Kind:     AddColumn,
			Table:    t.Name,
			Column:   &c,
			Backfill: c.IsNotNull() && !hasDefault && !c.IsPrimaryKey() && live.RowCount > 0,
		})
		added[strings.ToLower(c.Name)] = true
	}

	for _, group := range missingUnique {
		if len(group) == 1 && added[strings.ToLower(group[0])] {
			// An inline UNIQUE travels with its ADD COLUMN unless the
			// engine needs it as a separate key.
			if c, ok := t.Column(group[0]); ok && c.IsUnique() && d.InlineUnique(c.Type) {
				continue
			}
		}
		name := dialect.UniqueName(t.Name, group)
		ok, err := p.absent(ctx, t.Name, name)
		if err != nil {
			return tp, err
		}
		if ok {
			tp.Actions = append(tp.Actions, Action{Kind: AddUnique, Table: t.Name, Unique: group, Constraint: name})
		}
	}

	for _, fk := range missingFKs {
		name := dialect.ForeignKeyName(t.Name, fk.Column)
		ok, err := p.absent(ctx, t.Name, name)
		if err != nil {
			return tp, err
		}
		if ok {
			tp.Actions = append(tp.Actions, Action{Kind: AddForeignKey, Table: t.Name, ForeignKey: &fk, Constraint: name})
		}
	}

	return tp, nil
}

func (p *Planner) absent(ctx context.Context, table, name string) (bool, error) {
	exists, err := p.insp.ConstraintExists(ctx, table, name)
	if err != nil {
		return false, fmt.Errorf("checking constraint %s: %w", name, err)
	}
	if exists {
		p.logger.Debug("constraint already present", "table", table, "constraint", name)
	}
	return !exists, nil
}

func missingColumns(t *schema.Table, live *schema.LiveTable) []schema.Column {
	var missing []schema.Column
	for _, c := range t.Columns {
		if _, ok := live.Columns[strings.ToLower(c.Name)]; !ok {
			missing = append(missing, c)
		}
	}
	return missing
}

func missingUniqueGroups(t *schema.Table, live *schema.LiveTable) [][]string {
	have := make(map[string]bool, len(live.Unique))
	for _, g := range live.Unique {
		have[schema.UniqueKey(g)] = true
	}
	var missing [][]string
	for _, g := range t.UniqueGroups() {
		if !have[schema.UniqueKey(g)] {
			missing = append(missing, g)
		}
	}
	return missing
}

func missingForeignKeys(t *schema.Table, live *schema.LiveTable) []schema.ForeignKey {
	have := make(map[string]bool, len(live.ForeignKeys))
	for _, fk := range live.ForeignKeys {
		have[fk.Key()] = true
	}
	var missing []schema.ForeignKey
	for _, fk := range t.ForeignKeys {
		if !have[fk.Key()] {
			missing = append(missing, fk)
		}
	}
	return missing
}

// recreate builds the rebuild action: declared columns that exist live are
// copied; live columns no longer declared are listed as dropped.
func recreate(t *schema.Table, live *schema.LiveTable) Action {
	a := Action{Kind: RecreateTable, Table: t.Name}
	declared := make(map[string]bool, len(t.Columns))
	for _, name := range t.ColumnNames() {
		declared[name] = true
		if _, ok := live.Columns[name]; ok {
			a.Copy = append(a.Copy, name)
		}
	}
	for name := range live.Columns {
		if !declared[name] {
			a.Dropped = append(a.Dropped, name)
		}
	}
	sort.Strings(a.Dropped)
	return a
}
