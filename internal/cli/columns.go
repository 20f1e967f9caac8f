package cli

import (
	"sort"

	"github.com/spf13/cobra"
)

var columnsCmd = &cobra.Command{
	Use:   "columns <table>",
	Short: "List the live columns of a table",
	Long: `List the columns of a live table with their engine types.

Example:
  schemasync columns product_table --database postgresql://localhost/store`,
	Args: cobra.ExactArgs(1),
	RunE: runColumns,
}

type columnInfo struct {
	Name string `json:"name" yaml:"name"`
	Type string `json:"type" yaml:"type"`
}

func runColumns(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	pool, err := openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	cols, err := pool.Columns(ctx, args[0])
	if err != nil {
		return err
	}

	infos := make([]columnInfo, 0, len(cols))
	for name, typ := range cols {
		infos = append(infos, columnInfo{Name: name, Type: typ})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })

	out := cmd.OutOrStdout()
	if ok, err := writeStructured(out, infos); ok || err != nil {
		return err
	}
	table := newTable(out, "Column", "Type")
	for _, c := range infos {
		table.Append([]string{c.Name, c.Type})
	}
	table.Render()
	return nil
}
