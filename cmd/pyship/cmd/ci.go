package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/psantana5/pyship/internal/ci"
	"github.com/psantana5/pyship/internal/logging"
)

var ciCmd = &cobra.Command{
	Use:   "ci",
	Short: "Helpers for CI pipelines",
}

var ciExportVersionCmd = &cobra.Command{
	Use:   "export-version",
	Short: "Export the app version to GitHub Actions",
	Long: `Appends version=<app.version> to the file named by $GITHUB_ENV so later
workflow steps can use ${{ env.version }}. Outside GitHub Actions the
version is printed instead.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.App.Version == "" {
			return fmt.Errorf("no app version: set app.version or [project].version")
		}

		path, err := ci.ExportVersion(cfg.App.Version)
		if errors.Is(err, ci.ErrNotInCI) {
			fmt.Fprintf(cmd.OutOrStdout(), "version=%s\n", cfg.App.Version)
			return nil
		}
		if err != nil {
			return err
		}
		logger.Info("version exported", logging.Fields{"version": cfg.App.Version, "file": path})
		return nil
	},
}

func init() {
	rootCmd.AddCommand(ciCmd)
	ciCmd.AddCommand(ciExportVersionCmd)
}
