package render

import (
	"fmt"
	"io"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/cbf.sweep/internal/sweep"
)

// SweepChart renders an HTML page for a finished sweep: an outcome
// scatter over (distance, velocity) split by collision, a loss-versus-
// deadlock scatter, and the collision-free rate per gain pair.
func SweepChart(w io.Writer, title string, rows []sweep.Row, summary []sweep.GainSummary) error {
	page := components.NewPage()
	page.PageTitle = title
	page.AddCharts(
		outcomeScatter(title, rows),
		tradeoffScatter(rows),
		gainBar(summary),
	)
	if err := page.Render(w); err != nil {
		return fmt.Errorf("rendering sweep chart: %w", err)
	}
	return nil
}

func outcomeScatter(title string, rows []sweep.Row) *charts.Scatter {
	var safe, collided, failed []opts.ScatterData
	for _, row := range rows {
		o := row.Outcome
		pt := opts.ScatterData{Value: []interface{}{o.Distance, o.Velocity, o.Gamma1, o.Gamma2}}
		switch {
		case row.Failed:
			failed = append(failed, pt)
		case o.CollisionFree:
			safe = append(safe, pt)
		default:
			collided = append(collided, pt)
		}
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: fmt.Sprintf("configurations=%d", len(rows))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true), Right: "10%"}),
		charts.WithXAxisOpts(opts.XAxis{Name: "distance (m)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "velocity (m/s)", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("collision free", safe, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	scatter.AddSeries("collided", collided, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	if len(failed) > 0 {
		scatter.AddSeries("failed", failed, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 6}))
	}
	return scatter
}

func tradeoffScatter(rows []sweep.Row) *charts.Scatter {
	data := make([]opts.ScatterData, 0, len(rows))
	maxGain := float32(0)
	for _, row := range rows {
		if row.Failed || !row.Outcome.CollisionFree {
			continue
		}
		o := row.Outcome
		data = append(data, opts.ScatterData{Value: []interface{}{o.DeadlockTime, o.SafetyLoss, o.Gamma1 * o.Gamma2}})
		maxGain = max(maxGain, float32(o.Gamma1*o.Gamma2))
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Safety loss vs deadlock", Subtitle: "collision-free runs, colour = gamma1·gamma2"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "deadlock time (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "safety loss", NameLocation: "middle", NameGap: 40}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:       opts.Bool(true),
			Calculable: opts.Bool(true),
			Min:        0,
			Max:        maxGain,
			Dimension:  "2",
			InRange:    &opts.VisualMapInRange{Color: []string{"#440154", "#3e4989", "#26828e", "#35b779", "#fde725"}},
		}),
	)
	scatter.AddSeries("runs", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 5}))
	return scatter
}

func gainBar(summary []sweep.GainSummary) *charts.Bar {
	labels := make([]string, len(summary))
	rate := make([]opts.BarData, len(summary))
	for i, s := range summary {
		labels[i] = fmt.Sprintf("%.3g/%.3g", s.Gamma1, s.Gamma2)
		rate[i] = opts.BarData{Value: 100 * s.CollisionFreeRate}
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Collision-free rate per gain pair", Subtitle: "gamma1/gamma2"}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "%", Min: 0, Max: 100}),
	)
	bar.SetXAxis(labels).AddSeries("collision free", rate)
	return bar
}
