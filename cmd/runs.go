package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/kilianp07/bhkw/core/runlog"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the run history",
}

var runsListCmd = &cobra.Command{
	Use:     "ls",
	Aliases: []string{"list"},
	Short:   "List past runs, newest first",
	RunE:    listRuns,
}

func init() {
	runsListCmd.Flags().Int("limit", 20, "maximum number of runs")
	runsListCmd.Flags().String("status", "", "only runs with this status")
	runsListCmd.Flags().Duration("since", 0, "only runs newer than this duration")
	runsCmd.AddCommand(runsListCmd)
	rootCmd.AddCommand(runsCmd)
}

func listRuns(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := runlog.Open(cfg.RunLog)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	f := cmd.Flags()
	q := runlog.RunQuery{}
	q.Limit, _ = f.GetInt("limit")
	q.Status, _ = f.GetString("status")
	if since, _ := f.GetDuration("since"); since > 0 {
		q.Start = time.Now().Add(-since)
	}
	recs, err := store.Query(context.Background(), q)
	if err != nil {
		return err
	}
	return printRuns(cmd.OutOrStdout(), recs, time.Now())
}

func printRuns(w io.Writer, recs []runlog.RunRecord, now time.Time) error {
	if len(recs) == 0 {
		_, err := fmt.Fprintln(w, "no runs recorded")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tWHEN\tSOLVER\tSTATUS\tOBJECTIVE\tONLINE\tRUNTIME")
	for _, r := range recs {
		obj := money(r.Objective)
		if r.Error != "" {
			obj = "-"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%d/%d\t%s\n",
			r.ID, humanize.RelTime(r.Timestamp, now, "ago", "from now"), r.Solver, r.Status, obj, r.Online, r.Steps, r.Runtime.Round(time.Millisecond))
	}
	return tw.Flush()
}

// money renders v with thousands separators, rounded half away from zero to
// cents. CommafWithDigits alone truncates.
func money(v float64) string {
	return humanize.CommafWithDigits(decimal.NewFromFloat(v).Round(2).InexactFloat64(), 2)
}
