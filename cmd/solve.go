package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/kilianp07/bhkw/app"
	"github.com/kilianp07/bhkw/infra/logger"
)

var solveCmd = &cobra.Command{
	Use:   "solve",
	Short: "Solve the dispatch schedule for the configured inputs",
	RunE:  solve,
}

func init() {
	solveCmd.Flags().String("input", "", "input directory (overrides input.dir)")
	solveCmd.Flags().String("output", "", "output directory (overrides output.dir)")
	solveCmd.Flags().String("solver", "", "solver type (overrides solver.type)")
	solveCmd.Flags().Int("time-limit", -1, "time limit in seconds (overrides solver.time_limit_seconds)")
	solveCmd.Flags().Float64("mip-gap", -1, "relative MIP gap (overrides solver.mip_gap)")
	rootCmd.AddCommand(solveCmd)
}

func solve(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	f := cmd.Flags()
	if v, _ := f.GetString("input"); v != "" {
		cfg.Input.Dir = v
	}
	if v, _ := f.GetString("output"); v != "" {
		cfg.Output.Dir = v
	}
	if v, _ := f.GetString("solver"); v != "" {
		cfg.Solver.Type = v
	}
	if v, _ := f.GetInt("time-limit"); v >= 0 {
		cfg.Solver.TimeLimitSeconds = v
	}
	if v, _ := f.GetFloat64("mip-gap"); v >= 0 {
		cfg.Solver.MIPGap = v
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	svc, err := app.New(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.New("main").Errorf("service close: %v", err)
		}
	}()
	res, err := svc.Run(ctx)
	if err != nil {
		return err
	}
	printResult(cmd.OutOrStdout(), res)
	return nil
}

func printResult(w io.Writer, res *app.Result) {
	sol := res.Solution
	_, _ = fmt.Fprintf(w, "run       %s\n", res.RunID)
	_, _ = fmt.Fprintf(w, "status    %s (%s, %s nodes, %s)\n", sol.Status, sol.Solver, humanize.Comma(int64(sol.Nodes)), sol.Runtime.Round(1e6))
	_, _ = fmt.Fprintf(w, "objective %s\n", money(sol.Objective))
	if !sol.IsOptimal() {
		_, _ = fmt.Fprintf(w, "gap       %.4g\n", sol.Gap)
	}
	_, _ = fmt.Fprintf(w, "fuel      %s\n", res.Cost.FuelCost.StringFixed(2))
	_, _ = fmt.Fprintf(w, "capacity  %s\n", res.Cost.CapacityCharge.StringFixed(2))
	_, _ = fmt.Fprintf(w, "revenue   %s\n", res.Cost.Revenue.StringFixed(2))
	_, _ = fmt.Fprintf(w, "margin    %s\n", res.Cost.Margin().StringFixed(2))
	for _, f := range res.Files {
		_, _ = fmt.Fprintf(w, "wrote     %s\n", f)
	}
}
