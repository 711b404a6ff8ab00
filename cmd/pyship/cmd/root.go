package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/psantana5/pyship/internal/config"
	"github.com/psantana5/pyship/internal/logging"
	"github.com/psantana5/pyship/internal/pipeline"
)

var (
	cfgFile    string
	projectDir string
	logLevel   string
	logJSON    bool

	logger = logging.NewLogger(logging.INFO, false)
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "pyship",
	Short: "Cross-build a Python desktop app into a Windows installer",
	Long: `pyship builds a Windows executable and installer for a Python application
from a Linux or macOS host. It runs a fail-fast pipeline:

  clean -> wheel -> install -> versionfile -> freeze -> installer

The wheel is built on the host, installed into a Windows Python under Wine,
frozen with PyInstaller and packaged with the Inno Setup compiler.
Tool paths come from pyship.yaml or PYSHIP_* environment variables.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setupLogging,
}

// Execute runs the CLI and returns the process exit code. A failing
// tool's exit code is passed through.
func Execute() int {
	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	}
	return pipeline.ExitCode(err)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is <project-dir>/pyship.yaml)")
	rootCmd.PersistentFlags().StringVar(&projectDir, "project-dir", "", "project directory (default from config or current directory)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().BoolVar(&logJSON, "log-json", false, "emit logs as JSON")
}

func setupLogging(cmd *cobra.Command, args []string) error {
	logger = logging.NewLogger(logging.ParseLevel(logLevel), logJSON)
	logger.SetOutput(cmd.ErrOrStderr())
	return nil
}

// loadConfig reads the configuration without validating it
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(config.Options{File: cfgFile, ProjectDir: projectDir})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	return cfg, nil
}

// loadValidConfig reads and validates the configuration
func loadValidConfig() (*config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// buildLogger adds the <state>/logs/pyship.log file to the CLI logger
func buildLogger(cfg *config.Config, console io.Writer) *logging.Logger {
	l, err := logging.NewFileLogger(cfg.Path(cfg.StateDir), logging.ParseLevel(logLevel), logJSON, console)
	if err != nil {
		logger.Warn("file logging disabled", logging.Fields{"error": err.Error()})
		return logger
	}
	if err := l.RotateIfNeeded(10 << 20); err != nil {
		l.Warn("log rotation failed", logging.Fields{"error": err.Error()})
	}
	return l
}

func isJSON(format string) bool {
	return format == "json"
}
