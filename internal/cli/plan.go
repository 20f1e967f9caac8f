package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/egoughnour/schemasync/internal/diff"
	"github.com/egoughnour/schemasync/internal/syncer"
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show the changes a sync would make",
	Long: `Compare the declared schema with the live database and list the
actions a sync pass would take, without running any of them.

Examples:
  schemasync plan --database sqlite:///store.db
  schemasync plan --schema schema.yaml --output json`,
	Args: cobra.NoArgs,
	RunE: runPlan,
}

func runPlan(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, _, err := loadSchema()
	if err != nil {
		return err
	}
	pool, err := openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	plan, err := syncer.New(pool, syncOptions()).Plan(ctx, s)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch outputFormat {
	case "json":
		return diff.WriteJSON(out, plan)
	case "yaml":
		return diff.WriteYAML(out, plan)
	}
	return writePlanTable(out, plan)
}

func writePlanTable(w io.Writer, p *diff.Plan) error {
	if p.IsEmpty() {
		return diff.WriteText(w, p)
	}

	table := newTable(w, "Table", "Action", "Detail")
	for _, t := range p.Tables {
		for _, a := range t.Actions {
			table.Append([]string{t.Table, string(a.Kind), actionDetail(a)})
		}
	}
	table.Render()

	if len(p.Dropped()) == 0 {
		return nil
	}
	fmt.Fprintln(w, "\nColumns a rebuild would discard:")
	for _, a := range p.Actions() {
		if len(a.Dropped) > 0 {
			fmt.Fprintf(w, "  %s: %s\n", a.Table, strings.Join(a.Dropped, ", "))
		}
	}
	return nil
}

func actionDetail(a diff.Action) string {
	switch a.Kind {
	case diff.AddColumn:
		detail := a.Column.Definition()
		if a.Backfill {
			detail += " (backfill)"
		}
		return detail
	case diff.AddUnique:
		return fmt.Sprintf("%s (%s)", a.Constraint, strings.Join(a.Unique, ", "))
	case diff.AddForeignKey:
		fk := a.ForeignKey
		return fmt.Sprintf("%s -> %s(%s)", fk.Column, fk.ParentTable, fk.ParentColumn)
	case diff.RecreateTable:
		return fmt.Sprintf("copy %d columns", len(a.Copy))
	}
	return ""
}
