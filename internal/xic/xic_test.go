package xic

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/524D/asapquant/internal/mzml"
	"github.com/524D/asapquant/internal/rawspec"
	"github.com/google/go-cmp/cmp"
)

var floatCmp = cmp.Comparer(func(x, y float64) bool {
	return math.Abs(x-y) < 1e-6
})

type testScan struct {
	header rawspec.Header
	peaks  []mzml.Peak
}

type testReader []testScan

func (r testReader) NumScans() int { return len(r) }
func (r testReader) Header(i int) (rawspec.Header, error) {
	if i < 0 || i >= len(r) {
		return rawspec.Header{}, mzml.ErrInvalidScanIndex
	}
	return r[i].header, nil
}
func (r testReader) Peaks(i int) ([]mzml.Peak, error) {
	if i < 0 || i >= len(r) {
		return nil, mzml.ErrInvalidScanIndex
	}
	return r[i].peaks, nil
}
func (r testReader) ScanIndex(id string) (int, error) { return 0, mzml.ErrInvalidScanID }
func (r testReader) Close() error                    { return nil }

func TestTarget(t *testing.T) {
	tg := Target{Mass: 1000, Charge: 2, Isotopes: 3, MzTolerance: 0.5}
	want := []float64{500.5039703770, 501.0056477959, 501.5073252148}
	if !cmp.Equal(tg.Mz(), want, floatCmp) {
		t.Errorf("Mz: %s", cmp.Diff(want, tg.Mz(), floatCmp))
	}
	if tol := tg.Tolerance(); math.Abs(tol-MassIsotope/4) > 1e-12 {
		t.Errorf("Tolerance: %f, should be %f", tol, MassIsotope/4)
	}
	tg.MzTolerance = 0.1
	if tol := tg.Tolerance(); tol != 0.1 {
		t.Errorf("Tolerance: %f, should be 0.1", tol)
	}
}

func TestExtract(t *testing.T) {
	r := testReader{
		{rawspec.Header{RetentionTime: 1.0, MSLevel: 1}, []mzml.Peak{
			{Mz: 500.0, Intens: 7},
			{Mz: 500.5, Intens: 10},
			{Mz: 501.0, Intens: 20},
			{Mz: 501.5, Intens: 30},
			{Mz: 502.0, Intens: 40},
		}},
		{rawspec.Header{RetentionTime: 1.05, MSLevel: 2}, []mzml.Peak{{Mz: 500.5, Intens: 1000}}},
		{rawspec.Header{RetentionTime: 1.1, MSLevel: 1, Zoom: true}, []mzml.Peak{{Mz: 500.5, Intens: 1000}}},
		{rawspec.Header{RetentionTime: 1.2, MSLevel: 1}, []mzml.Peak{{Mz: 600, Intens: 5}}},
	}
	var c Chromatogram
	tg := Target{Mass: 1000, Charge: 2, Isotopes: 3, MzTolerance: 0.5}
	if err := Extract(&c, r, -5, 10, tg); err != nil {
		t.Fatalf("Extract: error return %v", err)
	}
	want := Chromatogram{
		Time:      []float64{1.0, 1.2},
		Intensity: []float64{60, 0},
		Scan:      []int{0, 3},
	}
	if diff := cmp.Diff(want, c, floatCmp); diff != "" {
		t.Errorf("Extract: %s", diff)
	}

	tg.Mass = 2000
	if err := Extract(&c, r, 0, 3, tg); !errors.Is(err, ErrNoChromatogramData) {
		t.Errorf("Extract: error %v, should be %v", err, ErrNoChromatogramData)
	}
	if err := Extract(&c, r, 3, 2, tg); !errors.Is(err, ErrNoChromatogramData) {
		t.Errorf("Extract empty range: error %v, should be %v", err, ErrNoChromatogramData)
	}
}

// countingReader counts the scans whose peaks are read
type countingReader struct {
	testReader
	reads int
}

func (r *countingReader) Peaks(i int) ([]mzml.Peak, error) {
	r.reads++
	return r.testReader.Peaks(i)
}

func TestExtractAll(t *testing.T) {
	r := &countingReader{testReader: testReader{
		{rawspec.Header{RetentionTime: 1.0, MSLevel: 1}, []mzml.Peak{{Mz: 500.5, Intens: 10}, {Mz: 1001.0, Intens: 3}}},
		{rawspec.Header{RetentionTime: 1.05, MSLevel: 2}, nil},
		{rawspec.Header{RetentionTime: 1.1, MSLevel: 1}, []mzml.Peak{{Mz: 500.5, Intens: 20}}},
	}}
	var a, b, c Chromatogram
	ts := []Target{
		{Mass: 1000, Charge: 2, Isotopes: 1, MzTolerance: 0.1},
		{Mass: 2000, Charge: 2, Isotopes: 1, MzTolerance: 0.1},
		{Mass: 1000, Charge: 0, Isotopes: 1, MzTolerance: 0.1},
	}
	signal, err := ExtractAll([]*Chromatogram{&a, &b, &c}, r, 0, 2, ts)
	if err != nil {
		t.Fatalf("ExtractAll: error return %v", err)
	}
	if diff := cmp.Diff([]bool{true, false, false}, signal); diff != "" {
		t.Errorf("ExtractAll: signal %s", diff)
	}
	if r.reads != 2 {
		t.Errorf("ExtractAll: %d scans read, should be 2", r.reads)
	}
	if diff := cmp.Diff([]float64{10, 20}, a.Intensity, floatCmp); diff != "" {
		t.Errorf("ExtractAll: intensity %s", diff)
	}
	if diff := cmp.Diff(a.Scan, b.Scan); diff != "" || b.Len() != 2 {
		t.Errorf("ExtractAll: samples differ %s", diff)
	}
}

func TestSmoothLocalRegression(t *testing.T) {
	var src, dst Chromatogram
	for i := 0; i < 40; i++ {
		x := 0.05 * float64(i)
		src.Time = append(src.Time, x)
		src.Intensity = append(src.Intensity, 100+10*x)
		src.Scan = append(src.Scan, i)
	}
	Smooth(&dst, &src, DefaultSmoothParams())
	// A straight line is reproduced by the polynomial fit
	approx := cmp.Comparer(func(x, y float64) bool {
		return math.Abs(x-y) < 1e-3
	})
	if !cmp.Equal(dst.Intensity, src.Intensity, approx) {
		t.Errorf("Smooth: %s", cmp.Diff(src.Intensity, dst.Intensity, approx))
	}
	if !cmp.Equal(dst.Time, src.Time) {
		t.Errorf("Smooth: time base changed")
	}
}

func TestSmoothFloor(t *testing.T) {
	var src, dst Chromatogram
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 60; i++ {
		src.Time = append(src.Time, 0.03*float64(i))
		src.Intensity = append(src.Intensity, 50+100*rng.Float64())
	}
	Smooth(&dst, &src, DefaultSmoothParams())
	min := math.Inf(1)
	for _, y := range src.Intensity {
		min = math.Min(min, y)
	}
	for i, y := range dst.Intensity {
		if y < min {
			t.Errorf("Smooth: sample %d is %f, below minimum %f", i, y, min)
		}
	}
}

func TestSmoothWavelet(t *testing.T) {
	for _, n := range []int{5, 16, 63, 64} {
		var src, dst Chromatogram
		for i := 0; i < n; i++ {
			src.Time = append(src.Time, 0.05*float64(i))
			src.Intensity = append(src.Intensity, 100)
		}
		Smooth(&dst, &src, SmoothParams{Method: Wavelet})
		if dst.Len() != n {
			t.Fatalf("Smooth wavelet: length %d, should be %d", dst.Len(), n)
		}
		for i, y := range dst.Intensity {
			if math.Abs(y-100) > 1 {
				t.Errorf("Smooth wavelet n=%d: sample %d is %f, should be close to 100", n, i, y)
			}
		}
	}
	if l := waveletLevels(1); l != 0 {
		t.Errorf("waveletLevels(1): %d, should be 0", l)
	}
	if l := waveletLevels(9); l != 3 {
		t.Errorf("waveletLevels(9): %d, should be 3", l)
	}
}

func TestMedian(t *testing.T) {
	tests := []struct {
		s    []float64
		want float64
	}{
		{[]float64{3}, 3},
		{[]float64{1, 2, 3}, 2},
		{[]float64{1, 2, 3, 4}, 2.5},
		{[]float64{0, 0, 1, 5}, 0.5},
	}
	for _, tt := range tests {
		if got := median(tt.s); got != tt.want {
			t.Errorf("median(%v) = %f, should be %f", tt.s, got, tt.want)
		}
	}
}

func TestFindPeak(t *testing.T) {
	tests := []struct {
		y    []float64
		pos  int
		want int
	}{
		{[]float64{1, 2, 2, 2, 1}, 2, 2},
		{[]float64{1, 2, 3, 4, 5}, 1, 4},
		{[]float64{5, 4, 3, 2, 1}, 3, 0},
		{[]float64{3, 3, 3}, 1, 1},
		{[]float64{5, 5, 4}, 0, 0},
		{[]float64{4, 5, 5}, 2, 2},
		{[]float64{1, 3, 2, 1, 2, 4, 1}, 3, 1},
	}
	for _, tt := range tests {
		if got := FindPeak(tt.y, tt.pos, -1); got != tt.want {
			t.Errorf("FindPeak(%v, %d): %d, should be %d", tt.y, tt.pos, got, tt.want)
		}
	}
}

// triangle returns a piecewise linear peak of height 1000 at sample 10
func triangle() *Chromatogram {
	var c Chromatogram
	for i := 0; i <= 20; i++ {
		c.Time = append(c.Time, 0.1*float64(i))
		c.Intensity = append(c.Intensity, math.Max(0, 1000-100*math.Abs(float64(i-10))))
		c.Scan = append(c.Scan, 2*i)
	}
	return &c
}

func TestPeakAndValleys(t *testing.T) {
	tests := []struct {
		y          []float64
		anchor     int
		background float64
		want       Window
	}{
		{triangle().Intensity, 3, 0, Window{0, 10, 20}},
		{triangle().Intensity, 3, 150, Window{2, 10, 18}},
		{[]float64{5, 3, 1, 2, 8, 2, 1, 3, 5}, 4, 0, Window{2, 4, 6}},
		{[]float64{5, 3, 1, 2, 8, 2, 1, 3, 5}, 4, 10, Window{4, 4, 4}},
		{[]float64{7}, 0, 0, Window{0, 0, 0}},
	}
	for _, tt := range tests {
		if got := PeakAndValleys(tt.y, tt.anchor, tt.background); got != tt.want {
			t.Errorf("PeakAndValleys(%v, %d, %f): %+v, should be %+v",
				tt.y, tt.anchor, tt.background, got, tt.want)
		}
	}
}

func TestWindowBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	for iter := 0; iter < 500; iter++ {
		n := 1 + rng.Intn(60)
		y := make([]float64, n)
		for i := range y {
			// Coarse values produce plateaus
			y[i] = float64(rng.Intn(5))
		}
		anchor := rng.Intn(n)
		bg := float64(rng.Intn(4))
		w := PeakAndValleys(y, anchor, bg)
		if !(0 <= w.Left && w.Left <= w.Peak && w.Peak <= w.Right && w.Right <= n-1) {
			t.Fatalf("PeakAndValleys(%v, %d, %f): invalid window %+v", y, anchor, bg, w)
		}
	}
}

func TestBackground(t *testing.T) {
	raw := make([]float64, 30)
	fit := make([]float64, 30)
	for i := range raw {
		fit[i] = 10
		raw[i] = 9
		if i%2 == 0 {
			raw[i] = 11
		}
		if i >= 10 && i <= 20 {
			raw[i] = 500
			fit[i] = 500
		}
	}
	w := Window{10, 15, 20}
	if bg := Background(raw, fit, w, 50, false); math.Abs(bg-9) > 1e-9 {
		t.Errorf("Background: %f, should be 9", bg)
	}
	if bg := Background(raw, fit, w, 50, true); bg != 0 {
		t.Errorf("Background with zero background: %f, should be 0", bg)
	}
}

func TestBackgroundProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	for iter := 0; iter < 300; iter++ {
		n := 1 + rng.Intn(80)
		raw := make([]float64, n)
		fit := make([]float64, n)
		for i := range raw {
			raw[i] = 1000 * rng.Float64() * float64(rng.Intn(2))
			fit[i] = 1000 * rng.Float64()
		}
		w := PeakAndValleys(fit, rng.Intn(n), 0)
		if bg := Background(raw, fit, w, 50, false); bg < 0 || math.IsNaN(bg) {
			t.Fatalf("Background: %f, should be >= 0", bg)
		}
		if bg := Background(raw, fit, w, 50, true); bg != 0 {
			t.Fatalf("Background with zero background: %f, should be 0", bg)
		}
	}
}

func TestIntegrate(t *testing.T) {
	c := triangle()
	p := IntegrateParams{WeakPeak: DefaultWeakPeakRule()}
	got := Integrate(c, c, Window{0, 10, 20}, 0, p)
	want := Integration{Area: 1000, AreaError: 0, Time: 1.0, HalfWidth: 0.5, Quality: Valid}
	if diff := cmp.Diff(want, got, floatCmp); diff != "" {
		t.Errorf("Integrate: %s", diff)
	}

	// Collapsed window has no area
	got = Integrate(c, c, Window{10, 10, 10}, 0, p)
	if got.Quality != Invalid || got.Area != 0 {
		t.Errorf("Integrate collapsed window: %+v", got)
	}
}

func TestIntegrateFlat(t *testing.T) {
	var c Chromatogram
	for i := 0; i <= 20; i++ {
		c.Time = append(c.Time, 0.1*float64(i))
		c.Intensity = append(c.Intensity, 100)
	}
	p := IntegrateParams{WeakPeak: DefaultWeakPeakRule()}
	got := Integrate(&c, &c, Window{0, 10, 20}, 60, p)
	if got.Quality != Invalid {
		t.Errorf("Integrate flat signal: quality %s, should be invalid", got.Quality)
	}
	if math.Abs(got.Area-80) > 1e-9 {
		t.Errorf("Integrate flat signal: area %f, should be 80", got.Area)
	}
	p.QuantHighBackground = true
	if got = Integrate(&c, &c, Window{0, 10, 20}, 60, p); got.Quality != Valid {
		t.Errorf("Integrate flat signal, high background: quality %s, should be valid", got.Quality)
	}
}

func TestIntegrateAreaMode(t *testing.T) {
	raw := triangle()
	var fit Chromatogram
	fit.CopyFrom(raw)
	for i := range fit.Intensity {
		fit.Intensity[i] *= 0.5
	}
	for _, tt := range []struct {
		mode AreaMode
		want float64
	}{
		{AreaRaw, 1000},
		{AreaFit, 500},
		{AreaAverage, 750},
	} {
		p := IntegrateParams{AreaMode: tt.mode, WeakPeak: DefaultWeakPeakRule()}
		got := Integrate(raw, &fit, Window{0, 10, 20}, 0, p)
		if math.Abs(got.Area-tt.want) > 1e-9 {
			t.Errorf("Integrate %s: area %f, should be %f", tt.mode, got.Area, tt.want)
		}
	}
}

func TestMeasure(t *testing.T) {
	c := triangle()
	p := PeakParams{
		BackgroundMargin: 50,
		ZeroBackground:   true,
		Integrate:        IntegrateParams{WeakPeak: DefaultWeakPeakRule()},
	}
	pk := Measure(c, c, 3, p)
	if pk.Window != (Window{0, 10, 20}) || pk.Background != 0 {
		t.Errorf("Measure: window %+v, background %f", pk.Window, pk.Background)
	}
	if pk.Quality != Valid || math.Abs(pk.Area-1000) > 1e-9 {
		t.Errorf("Measure: %+v", pk.Integration)
	}
	if i := c.Index(20); i != 10 {
		t.Errorf("Index(20): %d, should be 10", i)
	}
	if i := c.Closest(21); i != 11 {
		t.Errorf("Closest(21): %d, should be 11", i)
	}
}
