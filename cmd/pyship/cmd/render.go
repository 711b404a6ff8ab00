package cmd

import (
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/psantana5/pyship/internal/inno"
	"github.com/psantana5/pyship/internal/pipeline"
	"github.com/psantana5/pyship/internal/versioninfo"
)

var renderOut string

var renderCmd = &cobra.Command{
	Use:   "render",
	Short: "Print a generated build file",
	Long:  `Renders the Inno Setup script or the PyInstaller version file exactly as a build would.`,
}

var renderISSCmd = &cobra.Command{
	Use:   "iss",
	Short: "Render the Inno Setup script",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadValidConfig()
		if err != nil {
			return err
		}
		state := pipeline.NewState(cfg, nil, nil)
		return withOutput(cmd.OutOrStdout(), func(w io.Writer) error {
			return inno.Render(w, inno.FromConfig(cfg, state.Wine))
		})
	},
}

var renderVersionFileCmd = &cobra.Command{
	Use:   "versionfile",
	Short: "Render the Windows version resource file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadValidConfig()
		if err != nil {
			return err
		}
		return withOutput(cmd.OutOrStdout(), func(w io.Writer) error {
			return versioninfo.Render(w, versioninfo.FromConfig(cfg))
		})
	},
}

func init() {
	rootCmd.AddCommand(renderCmd)
	renderCmd.AddCommand(renderISSCmd)
	renderCmd.AddCommand(renderVersionFileCmd)
	renderCmd.PersistentFlags().StringVar(&renderOut, "out", "", "write to this file instead of stdout")
}

func withOutput(stdout io.Writer, render func(io.Writer) error) error {
	if renderOut == "" {
		return render(stdout)
	}
	f, err := os.Create(renderOut)
	if err != nil {
		return err
	}
	if err := render(f); err != nil {
		f.Close()
		os.Remove(renderOut)
		return err
	}
	return f.Close()
}
