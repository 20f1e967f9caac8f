package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/egoughnour/schemasync/internal/dialect"
	"github.com/egoughnour/schemasync/internal/schema"
)

var (
	sqlDialect string
	fromSQL    string
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the declared schema",
	Long: `Print the declared schema as text, YAML, JSON, or CREATE TABLE
statements for one dialect. No database connection is made.

--from-sql reads CREATE TABLE statements instead, which turns an existing
DDL script into a schema file.

Examples:
  schemasync schema --output yaml > schema.yaml
  schemasync schema --output sql --dialect mysql
  schemasync schema --from-sql legacy.sql --output yaml`,
	Args: cobra.NoArgs,
	RunE: runSchema,
}

func init() {
	schemaCmd.Flags().StringVar(&sqlDialect, "dialect", string(dialect.SQLite), "Dialect for --output sql: sqlite, postgres, mysql")
	schemaCmd.Flags().StringVar(&fromSQL, "from-sql", "", "Read the schema from a SQL DDL file")
}

func runSchema(cmd *cobra.Command, args []string) error {
	var (
		s   *schema.Schema
		err error
	)
	if fromSQL != "" {
		s, err = schema.ParseSQLFile(fromSQL)
	} else {
		s, _, err = loadSchema()
	}
	if err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch outputFormat {
	case "json":
		return schema.WriteJSON(out, s)
	case "yaml":
		return schema.WriteYAML(out, s)
	case "sql":
		gen, err := dialect.NewGenerator(sqlDialect)
		if err != nil {
			return err
		}
		return gen.WriteSQL(out, s)
	case "text", "":
		return schema.WriteText(out, s)
	}
	return fmt.Errorf("unsupported output format: %s", outputFormat)
}
