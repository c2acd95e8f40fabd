// Package export writes solved schedules in the column layout of the
// Timeseries_Output table and as a JSON run summary.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/kilianp07/bhkw/core/model"
	"github.com/kilianp07/bhkw/core/schedule"
)

// Output file names.
const (
	TimeseriesFile = "Timeseries_Output.csv"
	SummaryFile    = "Summary_Output.json"
	ChartFile      = "Schedule_Output.html"
	LogFile        = "Logfile_Output.log"
	LPFile         = "Model_Output.lp"
)

// Header lists the Timeseries_Output columns: the inputs, then the decision
// variables.
var Header = []string{
	"t",
	"Gas_Price",
	"Power_Price",
	"Capacity_Price",
	"BHKWCapacityAllowance",
	"BHKW_Bin",
	"BHKW_Gas",
	"BHKW_Power",
	"BHKW_Heat",
	"BHKW_Helper",
	"BHKW_PayCapacityPrice",
	"BHKW_AdditionalCapacityAllowance",
	"BHKW_CapacityAllowance",
}

// Summary describes one solve.
type Summary struct {
	RunID       string             `json:"run_id"`
	Solver      string             `json:"solver"`
	Status      string             `json:"status"`
	Objective   float64            `json:"objective"`
	Gap         float64            `json:"mip_gap"`
	Nodes       int                `json:"nodes"`
	Runtime     time.Duration      `json:"runtime_ns"`
	Steps       int                `json:"steps"`
	OnlineSteps int                `json:"online_steps"`
	Cost        schedule.Breakdown `json:"cost"`
	CreatedAt   time.Time          `json:"created_at"`
	Rows        []model.Row        `json:"rows,omitempty"`
}

// WriteCSV writes the schedule to w, one line per step.
func WriteCSV(w io.Writer, rows []model.Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			strconv.Itoa(r.Step.ID),
			formatFloat(r.Step.GasPrice),
			formatFloat(r.Step.PowerPrice),
			formatFloat(r.Step.CapacityPrice),
			formatFloat(r.Step.CapacityAllowance),
			formatFloat(r.Online),
			formatFloat(r.Gas),
			formatFloat(r.Power),
			formatFloat(r.Heat),
			formatFloat(r.Helper),
			formatFloat(r.PayCapacityPrice),
			formatFloat(r.AdditionalCapacityAllowance),
			formatFloat(r.CapacityAllowance),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes the summary to w in indented JSON.
func WriteJSON(w io.Writer, s Summary) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// WriteFile writes through fn into a temporary file next to path and renames
// it into place once fn succeeded, so readers never observe partial output.
func WriteFile(path string, fn func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if err := fn(tmp); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// CountOnline returns the number of committed steps.
func CountOnline(rows []model.Row) int {
	n := 0
	for _, r := range rows {
		if r.IsOnline() {
			n++
		}
	}
	return n
}

func formatFloat(v float64) string {
	// Clear solver noise such as -0 and 1e-12 residues.
	if v > -1e-9 && v < 1e-9 {
		v = 0
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
