package uncertainty

import (
	"math"
	"testing"

	"github.com/demworks/waffle/internal/grid"
	"github.com/demworks/waffle/internal/region"
)

func TestFitCurveRecoversKnownModel(t *testing.T) {
	truth := Coefficients{P0: 2, P1: 0.5, P2: 0.8}
	var xs, ys []float64
	for x := 0.5; x <= 10; x += 0.5 {
		xs = append(xs, x)
		ys = append(ys, truth.Eval(x))
	}

	got, err := FitCurve(xs, ys, Coefficients{P0: 1.5, P1: 0.3, P2: 0.5})
	if err != nil {
		t.Fatalf("FitCurve: %v", err)
	}
	for x := 0.5; x <= 10; x += 0.5 {
		if diff := math.Abs(got.Eval(x) - truth.Eval(x)); diff > 0.05 {
			t.Errorf("Eval(%g) = %g, want %g (fit %+v)", x, got.Eval(x), truth.Eval(x), got)
		}
	}
}

func TestFitCurveFromDefaultGuess(t *testing.T) {
	truth := Coefficients{P0: 0.5, P1: 0.2, P2: 0.6}
	var xs, ys []float64
	for x := 0.0; x <= 8; x += 0.25 {
		xs = append(xs, x)
		ys = append(ys, truth.Eval(x))
	}

	got, err := FitCurve(xs, ys, defaultGuess)
	if err != nil {
		t.Fatalf("FitCurve: %v", err)
	}
	for _, x := range []float64{1, 4, 8} {
		if diff := math.Abs(got.Eval(x) - truth.Eval(x)); diff > 0.2 {
			t.Errorf("Eval(%g) = %g, want %g within 0.2 (fit %+v)", x, got.Eval(x), truth.Eval(x), got)
		}
	}
}

func TestFitCurveRejectsShortInput(t *testing.T) {
	if _, err := FitCurve([]float64{1, 2}, []float64{1, 2}, defaultGuess); err == nil {
		t.Fatal("FitCurve accepted 2 observations")
	}
	if _, err := FitCurve([]float64{1, 2, 3}, []float64{1, 2}, defaultGuess); err == nil {
		t.Fatal("FitCurve accepted mismatched lengths")
	}
}

func TestFitSamplesGrowsWithDistance(t *testing.T) {
	// Two observations per distance at +/- s give a per-bin standard
	// deviation of exactly s, so the fitted curve must grow with
	// distance the way s does.
	var samples []Sample
	for d := 1; d <= 10; d++ {
		s := 1 + 0.5*math.Pow(float64(d), 0.7)
		samples = append(samples,
			Sample{Error: s, Distance: float64(d), Slope: float64(d)},
			Sample{Error: -s, Distance: float64(d), Slope: float64(d)},
		)
	}

	c, err := FitSamples(samples, func(s Sample) float64 { return s.Distance })
	if err != nil {
		t.Fatalf("FitSamples: %v", err)
	}
	if c.Eval(1) <= 0.2 {
		t.Errorf("Eval(1) = %g, want > 0.2", c.Eval(1))
	}
	if c.Eval(9) <= c.Eval(1) {
		t.Errorf("curve not growing: Eval(9) = %g <= Eval(1) = %g", c.Eval(9), c.Eval(1))
	}
}

func TestFitSamplesNeedsSpread(t *testing.T) {
	var samples []Sample
	for i := 0; i < 10; i++ {
		samples = append(samples, Sample{Error: float64(i), Distance: 3})
	}
	if _, err := FitSamples(samples, func(s Sample) float64 { return s.Distance }); err == nil {
		t.Fatal("FitSamples accepted a constant axis")
	}
}

func TestApplyPreservesNodata(t *testing.T) {
	spec, err := grid.NewSpec(region.New(0, 2, 0, 2), 1)
	if err != nil {
		t.Fatalf("NewSpec: %v", err)
	}
	src := grid.NewRaster(spec)
	src.Set(0, 0, 3)
	src.Set(1, 1, 0)

	c := Coefficients{P0: 1, P1: 2, P2: 1}
	out := Apply(c, src)

	if got := out.At(0, 0); got != 7 {
		t.Errorf("At(0,0) = %g, want 7", got)
	}
	if got := out.At(1, 1); got != 1 {
		t.Errorf("At(1,1) = %g, want 1", got)
	}
	if got := out.At(0, 1); got != spec.Nodata {
		t.Errorf("At(0,1) = %g, want nodata", got)
	}
}

func TestCombinedTakesMax(t *testing.T) {
	spec, err := grid.NewSpec(region.New(0, 2, 0, 2), 1)
	if err != nil {
		t.Fatalf("NewSpec: %v", err)
	}
	a := grid.NewRaster(spec)
	b := grid.NewRaster(spec)
	a.Set(0, 0, 1)
	b.Set(0, 0, 4)
	a.Set(1, 0, 2)

	out, err := Combined(a, b)
	if err != nil {
		t.Fatalf("Combined: %v", err)
	}
	if got := out.At(0, 0); got != 4 {
		t.Errorf("At(0,0) = %g, want 4", got)
	}
	if got := out.At(1, 0); got != 2 {
		t.Errorf("At(1,0) = %g, want 2 from the other layer", got)
	}
	if got := out.At(1, 1); got != spec.Nodata {
		t.Errorf("At(1,1) = %g, want nodata", got)
	}
}

func TestPercentile(t *testing.T) {
	vals := []float64{5, 1, 3, 2, 4}
	if got := percentile(vals, 50); got != 3 {
		t.Errorf("median = %g, want 3", got)
	}
	if got := percentile(vals, 100); got != 5 {
		t.Errorf("p100 = %g, want 5", got)
	}
	if got := percentile(nil, 50); got != 0 {
		t.Errorf("empty percentile = %g, want 0", got)
	}
}
