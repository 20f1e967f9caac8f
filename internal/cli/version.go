package cli

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/egoughnour/schemasync/internal/dialect"
)

// Version information - set via ldflags during build
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s %s\n", color.New(color.Bold).Sprint("schemasync"), Version)
		if verbose {
			fmt.Fprintf(out, "  commit:   %s\n", Commit)
			fmt.Fprintf(out, "  built:    %s\n", BuildDate)
			fmt.Fprintf(out, "  dialects: %s\n", strings.Join(dialect.SupportedDialects(), ", "))
		}
	},
}
