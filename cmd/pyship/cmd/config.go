package cmd

import (
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/psantana5/pyship/internal/config"
	"github.com/psantana5/pyship/internal/pyproject"
)

var (
	configOutput string
	configForce  bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or create the pyship configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Long:  `Prints the configuration after defaults, pyship.yaml, PYSHIP_* environment variables and pyproject.toml are merged.`,
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a starter pyship.yaml",
	Long: `Writes pyship.yaml into the project dir with every default filled in and the
app name and description taken from pyproject.toml. app.version is left empty
so every build reads it from pyproject.toml or __version__.py. Tool paths are
left empty.`,
	Args: cobra.NoArgs,
	RunE: runConfigInit,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)

	configShowCmd.Flags().StringVarP(&configOutput, "output", "o", "yaml", "output format: yaml or json")
	configInitCmd.Flags().BoolVar(&configForce, "force", false, "overwrite an existing pyship.yaml")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	w := cmd.OutOrStdout()
	if isJSON(configOutput) {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	}
	if cfg.File != "" {
		fmt.Fprintf(w, "# from %s\n", cfg.File)
	}
	if err := cfg.WriteYAML(w); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %v\n", err)
	}
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	dir := projectDir
	if dir == "" {
		dir = "."
	}
	dir, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	cfg := config.Default()
	if p, err := pyproject.Load(dir); err == nil {
		cfg.App.Name = p.Name
		cfg.App.Description = p.Description
		cfg.App.EntryScript = "src/" + pyproject.DistributionName(p.Name) + "/__main__.py"
	}

	path := cfgFile
	if path == "" {
		path = filepath.Join(dir, config.FileName)
	}
	if err := cfg.WriteFile(path, configForce); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
