package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/psantana5/pyship/internal/config"
	"github.com/psantana5/pyship/internal/history"
	"github.com/psantana5/pyship/internal/hostinfo"
	"github.com/psantana5/pyship/internal/logging"
	"github.com/psantana5/pyship/internal/pipeline"
	"github.com/psantana5/pyship/internal/report"
	"github.com/psantana5/pyship/internal/runner"
	"github.com/psantana5/pyship/internal/shutdown"
	"github.com/psantana5/pyship/internal/stages"
)

var (
	buildDryRun    bool
	buildOutput    string
	buildNoHistory bool

	// newRunner is replaced in tests
	newRunner = func(l *logging.Logger, stdout, stderr io.Writer) runner.Runner {
		r := runner.NewExecRunner(l)
		r.Stdout = stdout
		r.Stderr = stderr
		return r
	}
)

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Run the full build pipeline",
	Long: `Runs clean, wheel, install, versionfile, freeze and installer in order.
The first failing stage aborts the build and pyship exits with the failing
tool's exit code. Tool output is forwarded unchanged.

Example:
  pyship build
  pyship build --dry-run
  PYSHIP_TOOLS_ISCC='C:\Program Files (x86)\Inno Setup 6\ISCC.exe' pyship build --output json`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

func init() {
	rootCmd.AddCommand(buildCmd)

	buildCmd.Flags().BoolVar(&buildDryRun, "dry-run", false, "print the commands without running them")
	buildCmd.Flags().StringVarP(&buildOutput, "output", "o", "table", "summary format: table or json")
	buildCmd.Flags().BoolVar(&buildNoHistory, "no-history", false, "do not save the build report and history entry")
}

func runBuild(cmd *cobra.Command, args []string) error {
	cfg, err := loadValidConfig()
	if err != nil {
		return err
	}
	if buildDryRun {
		return printPlan(cmd.OutOrStdout(), cfg, buildOutput)
	}

	log := buildLogger(cfg, cmd.ErrOrStderr())
	mgr := shutdown.New(10*time.Second, log)
	mgr.Register("log file", shutdown.CloseResource(log))
	defer mgr.Shutdown()
	ctx, cancel := mgr.Context(cmd.Context())
	defer cancel()

	// keep stdout clean for the JSON summary
	toolStdout := cmd.OutOrStdout()
	if isJSON(buildOutput) {
		toolStdout = cmd.ErrOrStderr()
	}
	r := newRunner(log, toolStdout, cmd.ErrOrStderr())

	res, buildErr := executeBuild(ctx, cfg, r, log, !buildNoHistory)
	if sig := mgr.Signal(); sig != nil {
		log.Warn("build interrupted", logging.Fields{"signal": sig.String()})
	}
	if res != nil {
		if err := printResult(cmd.OutOrStdout(), res, buildOutput); err != nil {
			return err
		}
	}
	return buildErr
}

// executeBuild runs the pipeline once and persists its report. Persistence
// problems are logged and never change the build outcome.
func executeBuild(ctx context.Context, cfg *config.Config, r runner.Runner, log *logging.Logger, keepHistory bool) (*report.Result, error) {
	buildID := report.NewBuildID()
	blog := log.WithField("build_id", buildID)
	blog.Info("build started", logging.Fields{"app": cfg.App.Name, "version": cfg.App.Version})

	state := pipeline.NewState(cfg, r, blog)
	out, runErr := pipeline.New(blog, stages.Default()...).Run(ctx, state)

	host := hostinfo.Collect(context.Background())
	res, err := report.NewResult(buildID, cfg, out, runErr, host, state.Env)
	if err != nil {
		if runErr == nil {
			runErr = err
		}
		blog.Error("failed to create build report", logging.Fields{"error": err.Error()})
		return nil, runErr
	}
	res.LogSummary(blog)

	metrics := report.NewMetrics()
	metrics.Record(res)
	if err := metrics.WriteTextfile(cfg.MetricsPath()); err != nil {
		blog.Warn("failed to write metrics", logging.Fields{"error": err.Error()})
	}

	if keepHistory {
		persist(cfg, res, blog)
	}
	return res, runErr
}

func persist(cfg *config.Config, res *report.Result, log *logging.Logger) {
	store := report.NewStore(cfg.RunsDir())
	path, err := store.Save(res)
	if err != nil {
		log.Warn("failed to save build report", logging.Fields{"error": err.Error()})
	}

	db, err := history.Open(cfg.HistoryPath())
	if err != nil {
		log.Warn("failed to open build history", logging.Fields{"error": err.Error()})
		return
	}
	defer db.Close()

	if err := db.Insert(res, path); err != nil {
		log.Warn("failed to record build", logging.Fields{"error": err.Error()})
		return
	}
	removed, err := db.Prune(cfg.History.Retention)
	if err != nil {
		log.Warn("failed to prune build history", logging.Fields{"error": err.Error()})
		return
	}
	for _, e := range removed {
		if err := store.Remove(e.BuildID); err != nil {
			log.Warn("failed to remove old report", logging.Fields{"build_id": e.BuildID, "error": err.Error()})
		}
	}
	if len(removed) > 0 {
		log.Debug("pruned build history", logging.Fields{"removed": len(removed)})
		if err := db.Vacuum(); err != nil {
			log.Warn("failed to vacuum build history", logging.Fields{"error": err.Error()})
		}
	}
}

func printResult(w io.Writer, res *report.Result, format string) error {
	if isJSON(format) {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	table := tablewriter.NewWriter(w)
	table.Header("Stage", "Status", "Duration", "Exit")
	for _, s := range res.Stages {
		duration := "-"
		if s.Status != pipeline.StatusSkipped {
			duration = s.Duration.Round(time.Millisecond).String()
		}
		table.Append([]string{s.Name, string(s.Status), duration, fmt.Sprintf("%d", s.ExitCode)})
	}
	if err := table.Render(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nBuild %s: %s (exit %d) in %.1fs\n", res.BuildID, res.Outcome, res.ExitCode, res.Duration)
	for _, a := range res.Artifacts {
		fmt.Fprintf(w, "  %-9s %s\n            sha256 %s (%d bytes)\n", a.Kind, a.Path, a.SHA256, a.Size)
	}
	return nil
}
