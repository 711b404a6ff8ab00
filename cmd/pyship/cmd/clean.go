package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/psantana5/pyship/internal/pipeline"
	"github.com/psantana5/pyship/internal/stages"
)

var cleanDryRun bool

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Remove build outputs and installers",
	Long: `Removes the work dir, dist dir, installer output dir, generated PyInstaller
.spec files and any build.extra_clean globs. Running it twice is harmless.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cleanDryRun {
			targets, err := stages.CleanTargets(cfg)
			if err != nil {
				return err
			}
			for _, t := range targets {
				fmt.Fprintln(cmd.OutOrStdout(), t)
			}
			return nil
		}
		state := pipeline.NewState(cfg, nil, logger)
		_, err = pipeline.New(logger, stages.Clean{}).Run(cmd.Context(), state)
		return err
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)
	cleanCmd.Flags().BoolVar(&cleanDryRun, "dry-run", false, "list what would be removed")
}
