package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/kilianp07/bhkw/core/milp"
	"github.com/kilianp07/bhkw/core/schedule"
	"github.com/kilianp07/bhkw/infra/loader"
	"github.com/kilianp07/bhkw/pkg/export"
)

var modelCmd = &cobra.Command{
	Use:   "model",
	Short: "Write the instantiated dispatch model in LP format",
	RunE:  writeModel,
}

func init() {
	modelCmd.Flags().StringP("out", "o", "-", "LP file to write, - for stdout")
	rootCmd.AddCommand(modelCmd)
}

func writeModel(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	series, env, err := loader.Load(cfg.Input.Dir, cfg.Input.EnvelopeFile)
	if err != nil {
		return err
	}
	m, err := schedule.Build(series, env)
	if err != nil {
		return err
	}
	out, _ := cmd.Flags().GetString("out")
	if out == "-" {
		return milp.WriteLP(cmd.OutOrStdout(), m.Problem)
	}
	if err := export.WriteFile(out, func(w io.Writer) error { return milp.WriteLP(w, m.Problem) }); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "%d steps, %d variables, %d constraints written to %s\n",
		series.Len(), len(m.Problem.Vars), len(m.Problem.Constraints), out)
	return nil
}
