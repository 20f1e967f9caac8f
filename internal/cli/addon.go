package cli

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/egoughnour/schemasync/internal/addon"
)

var addonCmd = &cobra.Command{
	Use:   "addon",
	Short: "Manage addons",
}

var addonInstallCmd = &cobra.Command{
	Use:   "install <manifest>",
	Short: "Install an addon's tables and default rows",
	Long: `Install an addon from its manifest file, or from a directory holding
addon.yaml. The addon's tables are synchronized together with the base
schema, the addon is registered, and its default rows are installed.

Example:
  schemasync addon install ./addons/printful --database sqlite:///store.db`,
	Args: cobra.ExactArgs(1),
	RunE: runAddonInstall,
}

func init() {
	addonCmd.AddCommand(addonInstallCmd)
}

func runAddonInstall(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	m, err := addon.LoadManifest(args[0])
	if err != nil {
		return err
	}
	base, _, err := loadSchema()
	if err != nil {
		return err
	}
	pool, err := openPool(ctx)
	if err != nil {
		return err
	}
	defer pool.Close()

	res, err := addon.NewInstaller(pool, base, syncOptions()).Install(ctx, m)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if ok, err := writeStructured(out, res); ok || err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %s (%s) as addon %d\n",
		color.GreenString("installed"), m.Name, m.Type, res.AddonID)
	return writeReport(out, res.Report, res.Defaults)
}
