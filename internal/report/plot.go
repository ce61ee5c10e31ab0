package report

import (
	"fmt"
	"image/color"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"github.com/demworks/waffle/internal/uncertainty"
)

// SavePNG writes a static scatter-plus-best-fit plot for one axis.
func SavePNG(path, title string, samples []uncertainty.Sample, fit BestFit) error {
	p := plot.New()
	p.Title.Text = fmt.Sprintf("%s - error vs %s", title, fit.Name)
	p.X.Label.Text = fmt.Sprintf("%s (%s)", fit.Name, fit.Unit)
	p.Y.Label.Text = "error"

	pts := make(plotter.XYs, 0, len(samples))
	maxX := 0.0
	for _, s := range samples {
		x := fit.X(s)
		if x > maxX {
			maxX = x
		}
		pts = append(pts, plotter.XY{X: x, Y: s.Error})
	}
	if maxX == 0 {
		maxX = 1
	}

	scatter, err := plotter.NewScatter(pts)
	if err != nil {
		return fmt.Errorf("scatter series: %w", err)
	}
	scatter.GlyphStyle.Radius = vg.Points(1.5)
	scatter.GlyphStyle.Color = color.RGBA{R: 90, G: 130, B: 200, A: 255}
	p.Add(scatter)
	p.Legend.Add("samples", scatter)

	const curvePoints = 200
	curve := make(plotter.XYs, 0, curvePoints+1)
	for i := 0; i <= curvePoints; i++ {
		x := maxX * float64(i) / curvePoints
		curve = append(curve, plotter.XY{X: x, Y: fit.Coeffs.Eval(x)})
	}
	line, err := plotter.NewLine(curve)
	if err != nil {
		return fmt.Errorf("fit series: %w", err)
	}
	line.Width = vg.Points(1.5)
	line.Color = color.RGBA{R: 220, G: 90, B: 60, A: 255}
	p.Add(line)
	p.Legend.Add("best fit", line)

	if err := p.Save(8*vg.Inch, 6*vg.Inch, path); err != nil {
		return fmt.Errorf("save plot %s: %w", path, err)
	}
	return nil
}
