package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/psantana5/pyship/internal/history"
	"github.com/psantana5/pyship/internal/report"
)

var (
	historyLimit  int
	historyOutput string
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List past builds",
	Long:  `Lists recorded builds, newest first, with their outcome and installer digest.`,
	Args:  cobra.NoArgs,
	RunE:  runHistoryList,
}

var historyShowCmd = &cobra.Command{
	Use:   "show <build-id>",
	Short: "Show the full report of a build",
	Long:  `Prints the saved JSON report of a build. A unique prefix of the build ID is enough.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runHistoryShow,
}

var historyMetricsCmd = &cobra.Command{
	Use:   "metrics [build-id]",
	Short: "Show the Prometheus metrics of a build",
	Long:  `Renders the metrics of a build (default: the latest) in the Prometheus text format.`,
	Args:  cobra.MaximumNArgs(1),
	RunE:  runHistoryMetrics,
}

func init() {
	rootCmd.AddCommand(historyCmd)
	historyCmd.AddCommand(historyShowCmd)
	historyCmd.AddCommand(historyMetricsCmd)

	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of builds to show (0 for all)")
	historyCmd.Flags().StringVarP(&historyOutput, "output", "o", "table", "output format: table or json")
}

func openHistory() (*history.DB, *report.Store, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	db, err := history.Open(cfg.HistoryPath())
	if err != nil {
		return nil, nil, err
	}
	return db, report.NewStore(cfg.RunsDir()), nil
}

func runHistoryList(cmd *cobra.Command, args []string) error {
	db, _, err := openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	entries, err := db.List(historyLimit)
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if isJSON(historyOutput) {
		if entries == nil {
			entries = []history.Entry{}
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(entries)
	}

	if len(entries) == 0 {
		fmt.Fprintln(w, "No builds recorded")
		return nil
	}

	table := tablewriter.NewWriter(w)
	table.Header("Build", "Started", "Version", "Outcome", "Exit", "Stage", "Duration", "Installer SHA256")
	for _, e := range entries {
		table.Append([]string{
			shortID(e.BuildID),
			e.StartedAt.Local().Format("2006-01-02 15:04:05"),
			e.Version,
			string(e.Outcome),
			strconv.Itoa(e.ExitCode),
			dash(e.FailedStage),
			fmt.Sprintf("%.1fs", e.DurationSeconds),
			dash(shortDigest(e.InstallerSHA256)),
		})
	}
	return table.Render()
}

func runHistoryShow(cmd *cobra.Command, args []string) error {
	db, store, err := openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	res, err := lookupReport(db, store, args[0])
	if err != nil {
		return err
	}
	return printResult(cmd.OutOrStdout(), res, "json")
}

func runHistoryMetrics(cmd *cobra.Command, args []string) error {
	db, store, err := openHistory()
	if err != nil {
		return err
	}
	defer db.Close()

	id := ""
	if len(args) == 1 {
		id = args[0]
	} else {
		latest, err := db.List(1)
		if err != nil {
			return err
		}
		if len(latest) == 0 {
			return errors.New("no builds recorded")
		}
		id = latest[0].BuildID
	}

	res, err := lookupReport(db, store, id)
	if err != nil {
		return err
	}
	m := report.NewMetrics()
	m.Record(res)
	return m.WriteText(cmd.OutOrStdout())
}

func lookupReport(db *history.DB, store *report.Store, id string) (*report.Result, error) {
	e, err := db.Get(id)
	if err != nil {
		return nil, err
	}
	return store.Load(e.BuildID)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func shortDigest(d string) string {
	if len(d) > 16 {
		return d[:16]
	}
	return d
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
