// Package report renders a solved schedule as a standalone HTML chart.
package report

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/kilianp07/bhkw/core/model"
)

// Title is the default chart title.
const Title = "CHP schedule"

// WriteChart renders power, gas, heat and the power price of rows as a line
// chart. The x axis shows step times when available, step identifiers
// otherwise.
func WriteChart(w io.Writer, title string, rows []model.Row) error {
	if title == "" {
		title = Title
	}
	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("%d steps", len(rows))}),
		charts.WithTooltipOpts(opts.Tooltip{Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Top: "bottom"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "t"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "kW / price"}),
	)

	xAxis := make([]string, len(rows))
	power := make([]opts.LineData, len(rows))
	gas := make([]opts.LineData, len(rows))
	heat := make([]opts.LineData, len(rows))
	price := make([]opts.LineData, len(rows))
	for i, r := range rows {
		xAxis[i] = axisLabel(r)
		power[i] = opts.LineData{Value: r.Power}
		gas[i] = opts.LineData{Value: r.Gas}
		heat[i] = opts.LineData{Value: r.Heat}
		price[i] = opts.LineData{Value: r.Step.PowerPrice}
	}
	line.SetXAxis(xAxis).
		AddSeries("Power", power).
		AddSeries("Gas", gas).
		AddSeries("Heat", heat).
		AddSeries("Power price", price)

	if err := line.Render(w); err != nil {
		return fmt.Errorf("render chart: %w", err)
	}
	return nil
}

func axisLabel(r model.Row) string {
	if r.Time.IsZero() {
		return strconv.Itoa(r.Step.ID)
	}
	return r.Time.Format("2006-01-02 15:04")
}
