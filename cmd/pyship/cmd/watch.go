package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/psantana5/pyship/internal/config"
	"github.com/psantana5/pyship/internal/logging"
	"github.com/psantana5/pyship/internal/shutdown"
	"github.com/psantana5/pyship/internal/watch"
)

var (
	watchDebounce    time.Duration
	watchMinInterval time.Duration
	watchInitial     bool
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Rebuild whenever project sources change",
	Long: `Watch mode rebuilds the installer each time a file in the project changes.
Builds run one at a time; changes made during a build trigger one more build
after it finishes. Build outputs and the state dir are not watched.

Example:
  pyship watch
  pyship watch --debounce 2s --min-interval 1m`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", time.Second, "wait for changes to settle this long before building")
	watchCmd.Flags().DurationVar(&watchMinInterval, "min-interval", 30*time.Second, "minimum time between two builds")
	watchCmd.Flags().BoolVar(&watchInitial, "initial", true, "build once at startup")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadValidConfig()
	if err != nil {
		return err
	}

	log := buildLogger(cfg, cmd.ErrOrStderr())
	mgr := shutdown.New(10*time.Second, log)
	mgr.Register("log file", shutdown.CloseResource(log))
	defer mgr.Shutdown()
	ctx, cancel := mgr.Context(cmd.Context())
	defer cancel()

	r := newRunner(log, cmd.OutOrStdout(), cmd.ErrOrStderr())
	w, err := watch.New(watchConfig(cfg, log), func(ctx context.Context) error {
		res, err := executeBuild(ctx, cfg, r, log, true)
		if res != nil {
			if perr := printResult(cmd.OutOrStdout(), res, "table"); perr != nil {
				log.Warn("failed to print summary", logging.Fields{"error": perr.Error()})
			}
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}

	log.Info("watching for changes", logging.Fields{"dir": cfg.ProjectDir, "debounce": watchDebounce.String(), "min_interval": watchMinInterval.String()})
	if err := w.Run(ctx); err != nil {
		return err
	}
	log.Info("watch stopped", logging.Fields{"builds": w.Builds()})
	return nil
}

func watchConfig(cfg *config.Config, log *logging.Logger) watch.Config {
	return watch.Config{
		Root: cfg.ProjectDir,
		Exclude: []string{
			cfg.WorkDir(),
			cfg.DistDir(),
			cfg.InstallerDir(),
			cfg.Path(cfg.StateDir),
			cfg.Path("logs"),
		},
		Debounce:    watchDebounce,
		MinInterval: watchMinInterval,
		Initial:     watchInitial,
		Logger:      log,
	}
}
