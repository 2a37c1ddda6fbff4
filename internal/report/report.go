// Package report renders calibration convergence as charts: interactive
// HTML via go-echarts for browsing, and PNG files via gonum/plot for
// archival alongside the run database.
package report

import (
	"fmt"
	"image/color"
	"io"
	"os"
	"path/filepath"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/banshee-data/trajcal/internal/calib"
)

// chainLabel names a chain by its seed queue position.
func chainLabel(r calib.Result) string {
	if r.SeedIndex < 0 {
		return "default start"
	}
	return fmt.Sprintf("seed %d", r.SeedIndex)
}

// RenderConvergenceHTML writes an interactive line chart of the committed
// error per improving step, one series per search chain.
func RenderConvergenceHTML(w io.Writer, results []calib.Result) error {
	if len(results) == 0 {
		return fmt.Errorf("no results to render")
	}

	steps := 0
	for _, r := range results {
		if len(r.History) > steps {
			steps = len(r.History)
		}
	}
	xAxis := make([]string, steps)
	for i := range xAxis {
		xAxis[i] = fmt.Sprintf("%d", i)
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Calibration Convergence", Width: "1100px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: "Loop-Closure Error per Committed Step", Subtitle: fmt.Sprintf("chains=%d", len(results))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "Step"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Error (m)"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
	)

	line.SetXAxis(xAxis)
	for _, r := range results {
		data := make([]opts.LineData, 0, len(r.History))
		for _, e := range r.History {
			data = append(data, opts.LineData{Value: e})
		}
		line.AddSeries(chainLabel(r), data)
	}

	return line.Render(w)
}

// SaveConvergencePNG writes a PNG line plot of one chain's committed
// errors to outputDir, returning the file path.
func SaveConvergencePNG(outputDir string, result calib.Result) (string, error) {
	if len(result.History) == 0 {
		return "", fmt.Errorf("result has no history")
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output dir: %w", err)
	}

	p := plot.New()
	p.Title.Text = fmt.Sprintf("Convergence (%s)", chainLabel(result))
	p.X.Label.Text = "Step"
	p.Y.Label.Text = "Error (m)"

	pts := make(plotter.XYs, len(result.History))
	for i, e := range result.History {
		pts[i].X = float64(i)
		pts[i].Y = e
	}

	line, err := plotter.NewLine(pts)
	if err != nil {
		return "", fmt.Errorf("failed to create line: %w", err)
	}
	line.Width = vg.Points(1)
	line.Color = color.RGBA{R: 31, G: 119, B: 180, A: 255}
	p.Add(line)
	p.Add(plotter.NewGrid())

	name := "convergence_default.png"
	if result.SeedIndex >= 0 {
		name = fmt.Sprintf("convergence_seed_%02d.png", result.SeedIndex)
	}
	path := filepath.Join(outputDir, name)
	if err := p.Save(10*vg.Inch, 5*vg.Inch, path); err != nil {
		return "", fmt.Errorf("failed to save plot: %w", err)
	}
	return path, nil
}
