package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/egoughnour/schemasync/internal/schema/store"
	"github.com/egoughnour/schemasync/internal/seed"
	"github.com/egoughnour/schemasync/internal/syncer"
)

var noDefaults bool

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Bring the database in line with the declared schema",
	Long: `Synchronize the database with the declared schema.

Missing tables are created, missing columns and constraints are added, and
SQLite tables whose constraints changed are rebuilt with their rows copied.
Running sync twice in a row changes nothing the second time.

With the built-in store schema, the store's default rows are installed
afterwards unless --no-defaults is given.`,
	Args: cobra.NoArgs,
	RunE: runSync,
}

func init() {
	syncCmd.Flags().BoolVar(&noDefaults, "no-defaults", false, "Skip installing default rows")
}

func runSync(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	s, builtin, err := loadSchema()
	if err != nil {
		return err
	}
	pool, err := openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	report, err := syncer.New(pool, syncOptions()).Sync(ctx, s)
	if err != nil {
		return fmt.Errorf("synchronizing schema: %w", err)
	}

	seeded := 0
	if builtin && !noDefaults {
		entries, err := store.Defaults()
		if err != nil {
			return err
		}
		seeded, err = seed.ForPool(pool, s, logger).Install(ctx, entries)
		if err != nil {
			return fmt.Errorf("installing default rows: %w", err)
		}
	}

	out := cmd.OutOrStdout()
	if ok, err := writeStructured(out, report); ok || err != nil {
		return err
	}
	return writeReport(out, report, seeded)
}

func writeReport(w io.Writer, r *syncer.Report, seeded int) error {
	for _, t := range r.Tables {
		if t.Outcome == syncer.UpToDate && !verbose {
			continue
		}
		fmt.Fprintf(w, "%-12s %s\n", outcomeColor(t.Outcome).Sprint(t.Outcome), t.Table)
		if verbose {
			for _, stmt := range t.Statements {
				fmt.Fprintf(w, "    %s\n", stmt)
			}
		}
	}

	summary := fmt.Sprintf("%d tables (%s): %d created, %d altered, %d recreated",
		len(r.Tables), r.Dialect,
		r.Count(syncer.Created), r.Count(syncer.Altered), r.Count(syncer.Recreated))
	if seeded > 0 {
		summary += fmt.Sprintf(", %d default rows", seeded)
	}
	if !r.Changed() && seeded == 0 {
		summary = color.GreenString("up to date") + ": " + summary
	}
	_, err := fmt.Fprintln(w, summary)
	return err
}
