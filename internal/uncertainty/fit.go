package uncertainty

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/optimize"
	"gonum.org/v1/gonum/stat"

	"github.com/demworks/waffle/internal/grid"
)

// Sample is one split-sample observation: the prediction error of a
// withheld point together with its distance to the nearest retained
// sample and the local slope.
type Sample struct {
	Error    float64
	Distance float64
	Slope    float64
}

// Coefficients are the fitted parameters of the power-law error model
// err ≈ P0 + P1*|x|^P2.
type Coefficients struct {
	P0 float64 `json:"p0"`
	P1 float64 `json:"p1"`
	P2 float64 `json:"p2"`
}

// Eval evaluates the model at x.
func (c Coefficients) Eval(x float64) float64 {
	return c.P0 + c.P1*math.Pow(math.Abs(x), c.P2)
}

// defaultGuess is the fixed initial guess the fit starts from.
var defaultGuess = Coefficients{P0: 0, P1: 0.1, P2: 0.2}

// FitCurve least-squares fits the power-law model to (x, y) pairs from
// the given initial guess.
func FitCurve(xs, ys []float64, guess Coefficients) (Coefficients, error) {
	if len(xs) != len(ys) || len(xs) < 3 {
		return Coefficients{}, fmt.Errorf("fit needs >= 3 paired observations, got %d/%d", len(xs), len(ys))
	}
	problem := optimize.Problem{
		Func: func(p []float64) float64 {
			var sum float64
			for i, x := range xs {
				r := ys[i] - (p[0] + p[1]*math.Pow(math.Abs(x), math.Abs(p[2])))
				sum += r * r
			}
			return sum
		},
	}
	res, err := optimize.Minimize(problem, []float64{guess.P0, guess.P1, guess.P2}, nil, &optimize.NelderMead{})
	if err != nil {
		return Coefficients{}, fmt.Errorf("power-law fit: %w", err)
	}
	return Coefficients{P0: res.X[0], P1: res.X[1], P2: math.Abs(res.X[2])}, nil
}

// binnedStd reduces raw (x, err) observations to per-bin error
// standard deviations over up to 10 equal-width x bins, shrinking the
// bin count until every bin holds at least 2 observations, and anchors
// the curve with a (0, 0) point.
func binnedStd(xs, errs []float64) (bx, by []float64, err error) {
	if len(xs) < 2 {
		return nil, nil, fmt.Errorf("binning needs >= 2 observations, got %d", len(xs))
	}
	lo, hi := floats.Min(xs), floats.Max(xs)
	if lo == hi {
		return nil, nil, fmt.Errorf("binning needs spread in x, all values are %g", lo)
	}

	for nbins := 10; nbins >= 1; nbins-- {
		dividers := make([]float64, nbins+1)
		floats.Span(dividers, lo, hi)
		dividers[len(dividers)-1] = math.Nextafter(hi, math.Inf(1))

		counts := stat.Histogram(nil, dividers, sortedCopy(xs), nil)
		ok := true
		for _, c := range counts {
			if c < 2 {
				ok = false
				break
			}
		}
		if !ok && nbins > 1 {
			continue
		}

		sums := make([]float64, nbins)
		sums2 := make([]float64, nbins)
		for i, x := range xs {
			b := binIndex(dividers, x)
			sums[b] += errs[i]
			sums2[b] += errs[i] * errs[i]
		}
		bx = append(bx, 0)
		by = append(by, 0)
		for b := 0; b < nbins; b++ {
			if counts[b] == 0 {
				continue
			}
			mean := sums[b] / counts[b]
			variance := sums2[b]/counts[b] - mean*mean
			if variance < 0 {
				variance = 0
			}
			bx = append(bx, (dividers[b]+dividers[b+1])/2)
			by = append(by, math.Sqrt(variance))
		}
		return bx, by, nil
	}
	return nil, nil, fmt.Errorf("could not bin %d observations", len(xs))
}

// FitSamples bins the samples' errors against the chosen axis and fits
// the power-law model to the per-bin standard deviations.
func FitSamples(samples []Sample, axis func(Sample) float64) (Coefficients, error) {
	xs := make([]float64, len(samples))
	errs := make([]float64, len(samples))
	for i, s := range samples {
		xs[i] = axis(s)
		errs[i] = s.Error
	}
	bx, by, err := binnedStd(xs, errs)
	if err != nil {
		return Coefficients{}, err
	}
	return FitCurve(bx, by, defaultGuess)
}

// Apply evaluates the fitted model cell-wise over a raster of the
// model's x quantity (proximity distance or slope), producing an
// uncertainty raster. Nodata cells stay nodata.
func Apply(c Coefficients, src *grid.Raster) *grid.Raster {
	out := grid.NewRaster(src.Spec)
	for i, v := range src.Data {
		if v == src.Spec.Nodata {
			continue
		}
		out.Data[i] = c.Eval(v)
	}
	return out
}

// Combined returns the per-cell maximum of two uncertainty rasters.
// Kept out of the default pipeline output; both layers are reported
// separately.
func Combined(a, b *grid.Raster) (*grid.Raster, error) {
	if a.Spec != b.Spec {
		return nil, fmt.Errorf("combining rasters with different geometry")
	}
	out := grid.NewRaster(a.Spec)
	for i := range a.Data {
		av, bv := a.Data[i], b.Data[i]
		switch {
		case av == a.Spec.Nodata:
			out.Data[i] = bv
		case bv == b.Spec.Nodata:
			out.Data[i] = av
		default:
			out.Data[i] = math.Max(av, bv)
		}
	}
	return out, nil
}

// percentile returns the p-th percentile (0-100) of vals.
func percentile(vals []float64, p float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	return stat.Quantile(p/100, stat.Empirical, sortedCopy(vals), nil)
}

func sortedCopy(vals []float64) []float64 {
	out := make([]float64, len(vals))
	copy(out, vals)
	sort.Float64s(out)
	return out
}

func binIndex(dividers []float64, x float64) int {
	for b := 0; b < len(dividers)-1; b++ {
		if x >= dividers[b] && x < dividers[b+1] {
			return b
		}
	}
	return len(dividers) - 2
}
