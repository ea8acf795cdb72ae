package experiment

import (
	"fmt"
	"os"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// Plot renders the loss and reward curves of history to an HTML page at path.
func Plot(title string, history []IterationStats, path string) error {
	iterations := make([]string, len(history))
	losses := make([]opts.LineData, len(history))
	rewards := make([]opts.LineData, len(history))
	for i, s := range history {
		iterations[i] = fmt.Sprintf("%d", s.Iteration)
		losses[i] = opts.LineData{Value: s.Loss}
		rewards[i] = opts.LineData{Value: s.TotalReward}
	}

	lossChart := charts.NewLine()
	lossChart.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: "loss per iteration"}),
		charts.WithInitializationOpts(opts.Initialization{Theme: "shine"}),
	)
	lossChart.SetXAxis(iterations).AddSeries("loss", losses)

	rewardChart := charts.NewLine()
	rewardChart.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: "reward per iteration"}),
		charts.WithInitializationOpts(opts.Initialization{Theme: "shine"}),
	)
	rewardChart.SetXAxis(iterations).AddSeries("total reward", rewards)

	page := components.NewPage()
	page.AddCharts(lossChart, rewardChart)

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := page.Render(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
