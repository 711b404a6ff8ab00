package cmd

import (
	"encoding/json"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/psantana5/pyship/internal/config"
	"github.com/psantana5/pyship/internal/pipeline"
	"github.com/psantana5/pyship/internal/stages"
)

var planOutput string

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show what a build would run",
	Long:  `Lists every stage with the commands and filesystem actions it would perform, without executing anything.`,
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadValidConfig()
		if err != nil {
			return err
		}
		return printPlan(cmd.OutOrStdout(), cfg, planOutput)
	},
}

func init() {
	rootCmd.AddCommand(planCmd)
	planCmd.Flags().StringVarP(&planOutput, "output", "o", "table", "output format: table or json")
}

func printPlan(w io.Writer, cfg *config.Config, format string) error {
	state := pipeline.NewState(cfg, nil, nil)
	plan := pipeline.New(nil, stages.Default()...).Plan(state)

	if isJSON(format) {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	}

	table := tablewriter.NewWriter(w)
	table.Header("#", "Stage", "Action")
	for i, ps := range plan {
		lines := append([]string{}, ps.Actions...)
		for _, c := range ps.Commands {
			lines = append(lines, c.String())
		}
		table.Append([]string{strconv.Itoa(i + 1), ps.Stage, strings.Join(lines, "\n")})
	}
	return table.Render()
}
