// Package report renders uncertainty-run results as standalone HTML
// dashboards and PNG plots.
package report

import (
	"bytes"
	"fmt"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/demworks/waffle/internal/fsutil"
	"github.com/demworks/waffle/internal/uncertainty"
)

// BestFit pairs one fitted error axis with how to read it out of a
// sample.
type BestFit struct {
	Name   string
	Unit   string
	Coeffs uncertainty.Coefficients
	X      func(uncertainty.Sample) float64
}

// DistanceFit is the distance-axis view of a result.
func DistanceFit(res *uncertainty.Result) BestFit {
	return BestFit{
		Name:   "distance to data",
		Unit:   "cells",
		Coeffs: res.Distance,
		X:      func(s uncertainty.Sample) float64 { return s.Distance },
	}
}

// SlopeFit is the slope-axis view of a result.
func SlopeFit(res *uncertainty.Result) BestFit {
	return BestFit{
		Name:   "slope",
		Unit:   "degrees",
		Coeffs: res.Slope,
		X:      func(s uncertainty.Sample) float64 { return s.Slope },
	}
}

// WriteHTML renders one chart per fit into a single HTML page at path.
func WriteHTML(fs fsutil.FileSystem, path, title string, samples []uncertainty.Sample, fits ...BestFit) error {
	page := components.NewPage()
	page.PageTitle = title
	for _, fit := range fits {
		page.AddCharts(fitChart(title, samples, fit))
	}

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		return fmt.Errorf("render report: %w", err)
	}
	if err := fs.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write report %s: %w", path, err)
	}
	return nil
}

// fitChart builds a scatter of raw error samples with the fitted
// power-law curve overlaid as a dense second series.
func fitChart(title string, samples []uncertainty.Sample, fit BestFit) *charts.Scatter {
	data := make([]opts.ScatterData, 0, len(samples))
	maxX := 0.0
	for _, s := range samples {
		x := fit.X(s)
		if x > maxX {
			maxX = x
		}
		data = append(data, opts.ScatterData{Value: []interface{}{x, s.Error}})
	}
	if maxX == 0 {
		maxX = 1
	}

	const curvePoints = 200
	curve := make([]opts.ScatterData, 0, curvePoints)
	for i := 0; i <= curvePoints; i++ {
		x := maxX * float64(i) / curvePoints
		curve = append(curve, opts.ScatterData{Value: []interface{}{x, fit.Coeffs.Eval(x)}})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: title, Theme: "dark", Width: "900px", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    fmt.Sprintf("Interpolation error vs %s", fit.Name),
			Subtitle: fmt.Sprintf("n=%d fit=%.4g+%.4g*x^%.4g", len(samples), fit.Coeffs.P0, fit.Coeffs.P1, fit.Coeffs.P2),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: fmt.Sprintf("%s (%s)", fit.Name, fit.Unit), NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "error", NameLocation: "middle", NameGap: 30}),
	)
	scatter.AddSeries("samples", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 3}))
	scatter.AddSeries("best fit", curve, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 2}))
	return scatter
}
