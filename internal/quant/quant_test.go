package quant

import (
	"errors"
	"math"
	"os"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/524D/asapquant/internal/label"
	"github.com/524D/asapquant/internal/mzml"
	"github.com/524D/asapquant/internal/rawspec"
	"github.com/524D/asapquant/internal/xic"
)

type fakeScan struct {
	h rawspec.Header
	p []mzml.Peak
}

type fakeReader []fakeScan

func (r fakeReader) NumScans() int { return len(r) }
func (r fakeReader) Header(i int) (rawspec.Header, error) {
	if i < 0 || i >= len(r) {
		return rawspec.Header{}, mzml.ErrInvalidScanIndex
	}
	return r[i].h, nil
}
func (r fakeReader) Peaks(i int) ([]mzml.Peak, error) {
	if i < 0 || i >= len(r) {
		return nil, mzml.ErrInvalidScanIndex
	}
	return r[i].p, nil
}
func (r fakeReader) ScanIndex(id string) (int, error) { return 0, mzml.ErrInvalidScanID }
func (r fakeReader) Close() error                    { return nil }

const (
	testLightMass = 1000.0
	testHeavyMass = 1008.0142
)

// testRunFunc simulates a run with MS1 scans at even indices every
// 0.05 min from 10 min, each followed by an MS2 scan. intens gives the
// intensity of isotopolog iso at charge z at time t of MS1 scan k.
func testRunFunc(intens func(z int, iso label.Isotopolog, k int, t float64) float64) fakeReader {
	const n = 802
	run := make(fakeReader, n)
	for i := range run {
		k := i / 2
		t := 10 + 0.05*float64(k)
		run[i].h = rawspec.Header{RetentionTime: t, MSLevel: 1, ScanNumber: i + 1}
		if i%2 == 1 {
			run[i].h.RetentionTime += 0.01
			run[i].h.MSLevel = 2
			continue
		}
		for z := 1; z <= 4; z++ {
			for j, m := range []float64{testLightMass, testHeavyMass} {
				y := intens(z, label.Isotopolog(j), k, t)
				if y <= 0 {
					continue
				}
				mz := xic.Target{Mass: m, Charge: z, Isotopes: 1}.Mz()[0]
				run[i].p = append(run[i].p, mzml.Peak{Mz: mz, Intens: y})
			}
		}
		p := run[i].p
		sort.Slice(p, func(a, b int) bool { return p[a].Mz < p[b].Mz })
	}
	return run
}

// triangle is the elution profile with apex at 20 min and half width
// 4 min
func triangle(t float64) float64 {
	return math.Max(0, 1-math.Abs(t-20)/4)
}

// noise is a deterministic intensity between 100 and 120
func noise(z int, iso label.Isotopolog, k int) float64 {
	return 100 + 20*math.Abs(math.Sin(float64(7*k+13*z+29*int(iso))))
}

// testRun elutes the light peptide as a triangle at intensity
// 1e6*heights[z] per charge z. Heavy is twice as intense.
func testRun(heights map[int]float64) fakeReader {
	return testRunFunc(func(z int, iso label.Isotopolog, k int, t float64) float64 {
		return 1e6 * heights[z] * triangle(t) * float64(iso+1)
	})
}

func testOpener(r rawspec.Reader) rawspec.Opener {
	return func(path string) (rawspec.Reader, error) {
		if path != "run.mzML" {
			return nil, os.ErrNotExist
		}
		return r, nil
	}
}

func testTable(t *testing.T, scheme label.Scheme) *label.Table {
	t.Helper()
	table, err := label.NewTable(label.Config{
		Pairs: map[byte]label.Pair{
			'K': {Light: 128.094963, Heavy: 128.094963 + testHeavyMass - testLightMass},
		},
		Scheme:       scheme,
		Monoisotopic: true,
	})
	if err != nil {
		t.Fatalf("NewTable: error return %v", err)
	}
	return table
}

func testPSM() PSM {
	return PSM{
		Peptide:       label.Peptide{Sequence: "GGK", Mass: testLightMass},
		Charge:        2,
		SpectrumPath:  "run.mzML",
		ScanIndex:     401,
		RetentionTime: -1,
	}
}

var scenarioB = map[int]float64{1: 1, 2: 2, 3: 1.5, 4: 0.8}

func TestQuantify(t *testing.T) {
	d, err := NewDriver(testTable(t, label.Variable), DefaultOptions(), testOpener(testRun(scenarioB)))
	if err != nil {
		t.Fatalf("NewDriver: error return %v", err)
	}
	defer d.Close()

	s := &Session{}
	res, err := d.Quantify(s, testPSM())
	if err != nil || res.Err != nil {
		t.Fatalf("Quantify: error return %v, %v", err, res.Err)
	}
	if res.Status != Quantified {
		t.Errorf("Quantify: status %s, should be %s", res.Status, Quantified)
	}
	if res.Reference != label.Light {
		t.Errorf("Quantify: reference %s, should be light", res.Reference)
	}
	if math.Abs(res.MeanRatio-0.5) > 1e-3 || math.Abs(res.MeanInverseRatio-2) > 1e-3 {
		t.Errorf("Quantify: ratio %f, inverse %f, should be 0.5 and 2", res.MeanRatio, res.MeanInverseRatio)
	}
	if math.Abs(res.HeavyMass-testHeavyMass) > 1e-6 {
		t.Errorf("Quantify: heavy mass %f, should be %f", res.HeavyMass, testHeavyMass)
	}
	for z := 1; z <= 4; z++ {
		o := res.PerCharge[z-1]
		if !o.Included || math.Abs(o.Ratio-0.5) > 1e-3 {
			t.Errorf("charge %d: included %v ratio %f, should be included with 0.5", z, o.Included, o.Ratio)
		}
		if o.Light.State != Valid || o.Heavy.State != Valid {
			t.Errorf("charge %d: states %s, %s", z, o.Light.State, o.Heavy.State)
		}
		if !(o.Light.Left < o.Light.Peak && o.Light.Peak < o.Light.Right) {
			t.Errorf("charge %d: window %d %d %d", z, o.Light.Left, o.Light.Peak, o.Light.Right)
		}
	}
	o5 := res.PerCharge[4]
	if o5.Included || o5.Ratio != -2 || o5.Light.State != Unavailable || o5.Heavy.State != Unavailable {
		t.Errorf("charge 5: %+v, should be unavailable", o5)
	}
	if math.Abs(res.LightTime[0]-20) > 0.1 || math.Abs(res.HeavyTime[0]-20) > 0.1 {
		t.Errorf("Quantify: times %v, %v, should be near 20", res.LightTime, res.HeavyTime)
	}
	l, h := res.PerCharge[1].Light.Area, res.PerCharge[1].Heavy.Area
	if math.Abs(res.Area-(l+h)) > 1e-6*res.Area {
		t.Errorf("Quantify: area %f, should be %f", res.Area, l+h)
	}

	// Re-integrate the same scan ranges
	last, ok := s.Last()
	if !ok {
		t.Fatalf("Last: no windows remembered")
	}
	s.Fix(last)
	fixed, err := d.Quantify(s, testPSM())
	if err != nil || fixed.Err != nil {
		t.Fatalf("Quantify fixed: error return %v, %v", err, fixed.Err)
	}
	if math.Abs(fixed.MeanRatio-res.MeanRatio) > 1e-9 {
		t.Errorf("Quantify fixed: ratio %f, should be %f", fixed.MeanRatio, res.MeanRatio)
	}
	included := func(r Result) []bool {
		var inc []bool
		for _, o := range r.PerCharge {
			inc = append(inc, o.Included)
		}
		return inc
	}
	if diff := cmp.Diff(included(res), included(fixed)); diff != "" {
		t.Errorf("Quantify fixed: included %s", diff)
	}
	if fixed.PerCharge[1].Light != res.PerCharge[1].Light {
		t.Errorf("Quantify fixed: peak %+v, should be %+v", fixed.PerCharge[1].Light, res.PerCharge[1].Light)
	}
}

func TestQuantifyObservedCharge(t *testing.T) {
	opts := DefaultOptions()
	opts.Charges = ChargesObserved
	d, err := NewDriver(testTable(t, label.Variable), opts, testOpener(testRun(scenarioB)))
	if err != nil {
		t.Fatalf("NewDriver: error return %v", err)
	}
	res, err := d.Quantify(nil, testPSM())
	if err != nil || res.Err != nil {
		t.Fatalf("Quantify: error return %v, %v", err, res.Err)
	}
	if math.Abs(res.MeanRatio-0.5) > 1e-3 {
		t.Errorf("Quantify: ratio %f, should be 0.5", res.MeanRatio)
	}
	for z, o := range res.PerCharge {
		if o.Included != (z+1 == 2) {
			t.Errorf("charge %d: included %v", z+1, o.Included)
		}
	}
}

func TestQuantifyHeavyIdentified(t *testing.T) {
	opts := DefaultOptions()
	opts.Elution = ElutionHeavyFirst
	d, err := NewDriver(testTable(t, label.Variable), opts, testOpener(testRun(scenarioB)))
	if err != nil {
		t.Fatalf("NewDriver: error return %v", err)
	}
	psm := testPSM()
	psm.Peptide.Mass = testHeavyMass
	psm.Peptide.Mods = map[int]float64{3: testHeavyMass - testLightMass}
	res, err := d.Quantify(nil, psm)
	if err != nil || res.Err != nil {
		t.Fatalf("Quantify: error return %v, %v", err, res.Err)
	}
	if res.Reference != label.Heavy {
		t.Errorf("Quantify: reference %s, should be heavy", res.Reference)
	}
	if math.Abs(res.LightMass-testLightMass) > 1e-6 {
		t.Errorf("Quantify: light mass %f, should be %f", res.LightMass, testLightMass)
	}
	if math.Abs(res.MeanRatio-0.5) > 1e-3 {
		t.Errorf("Quantify: ratio %f, should be 0.5", res.MeanRatio)
	}
}

func TestQuantifyFailures(t *testing.T) {
	d, err := NewDriver(testTable(t, label.Variable), DefaultOptions(), testOpener(testRun(scenarioB)))
	if err != nil {
		t.Fatalf("NewDriver: error return %v", err)
	}
	tests := []struct {
		name string
		mod  func(p *PSM)
		code ErrorCode
	}{
		{"missing file", func(p *PSM) { p.SpectrumPath = "other.mzML" }, ErrMissingSpectrumFile},
		{"no label", func(p *PSM) { p.Peptide.Sequence = "GGG" }, ErrLabelNotResolved},
		{"no signal", func(p *PSM) { p.Peptide.Mass = 5000 }, ErrNoChromatogramData},
		{"charge", func(p *PSM) { p.Charge = 7 }, ErrNoChromatogramData},
		{"no anchor", func(p *PSM) { p.ScanIndex = -1 }, ErrPeakReadFailure},
	}
	for _, tt := range tests {
		psm := testPSM()
		tt.mod(&psm)
		res, err := d.Quantify(nil, psm)
		if err != nil {
			t.Errorf("%s: fatal error %v", tt.name, err)
			continue
		}
		if !Is(res.Err, tt.code) {
			t.Errorf("%s: error %v, should have code %s", tt.name, res.Err, tt.code)
		}
		if res.Status != Undetermined || res.MeanRatio != -2 || res.Area != -1 || res.LightTime[0] != -1 {
			t.Errorf("%s: result %+v, should be undetermined", tt.name, res)
		}
	}

	// The run continues after a failure
	res, err := d.Quantify(nil, testPSM())
	if err != nil || res.Status != Quantified {
		t.Errorf("Quantify after failures: status %s, error %v", res.Status, err)
	}
}

func TestQuantifyInconsistentScheme(t *testing.T) {
	d, err := NewDriver(testTable(t, label.Static), DefaultOptions(), testOpener(testRun(scenarioB)))
	if err != nil {
		t.Fatalf("NewDriver: error return %v", err)
	}
	psm := testPSM()
	psm.Peptide = label.Peptide{Sequence: "GKGK", Mods: map[int]float64{2: testHeavyMass - testLightMass}}
	res, err := d.Quantify(nil, psm)
	if !Fatal(err) || !Is(err, ErrInconsistentLabelingScheme) {
		t.Errorf("Quantify: error %v, should be fatal", err)
	}
	if !errors.Is(err, label.ErrInconsistentScheme) {
		t.Errorf("Quantify: error %v, should wrap %v", err, label.ErrInconsistentScheme)
	}
	if res.Status != Undetermined {
		t.Errorf("Quantify: status %s, should be undetermined", res.Status)
	}
}

func TestQuantifyFixedCollapsed(t *testing.T) {
	d, err := NewDriver(testTable(t, label.Variable), DefaultOptions(), testOpener(testRun(scenarioB)))
	if err != nil {
		t.Fatalf("NewDriver: error return %v", err)
	}
	fr := NewFixedRange(5)
	bad := FixedPeak{Available: true, Left: 10, Peak: 10, Right: 5}
	if err := fr.Peaks.Set(2, [2]FixedPeak{bad, bad}); err != nil {
		t.Fatalf("Set: error return %v", err)
	}
	if err := fr.Included.Set(2, true); err != nil {
		t.Fatalf("Set: error return %v", err)
	}
	s := &Session{}
	s.Fix(fr)
	res, err := d.Quantify(s, testPSM())
	if err != nil {
		t.Fatalf("Quantify: error return %v", err)
	}
	if !Is(res.Err, ErrInsufficientValidObservation) {
		t.Errorf("Quantify: error %v, should be %s", res.Err, ErrInsufficientValidObservation)
	}
	o := res.PerCharge[1]
	if o.Light.State != Invalid || o.Light.Left != o.Light.Right || o.Included {
		t.Errorf("charge 2: %+v, should be collapsed and excluded", o)
	}
	if _, ok := s.Fixed(); !ok {
		t.Errorf("Fixed: range dropped")
	}
	s.Clear()
	if _, ok := s.Fixed(); ok {
		t.Errorf("Clear: range kept")
	}
}

func TestQuantifyFixedBeyondLastScan(t *testing.T) {
	d, err := NewDriver(testTable(t, label.Variable), DefaultOptions(), testOpener(testRun(scenarioB)))
	if err != nil {
		t.Fatalf("NewDriver: error return %v", err)
	}
	// The right edge lies past the last extracted scan
	fp := FixedPeak{Available: true, Left: 401, Peak: 411, Right: 5000}
	fr := NewFixedRange(5)
	if err := fr.Peaks.Set(2, [2]FixedPeak{fp, fp}); err != nil {
		t.Fatalf("Set: error return %v", err)
	}
	if err := fr.Included.Set(2, true); err != nil {
		t.Fatalf("Set: error return %v", err)
	}
	s := &Session{}
	s.Fix(fr)
	res, err := d.Quantify(s, testPSM())
	if err != nil || res.Err != nil {
		t.Fatalf("Quantify: error return %v, %v", err, res.Err)
	}
	last := d.scratch.native[len(d.scratch.native)-1]
	for _, iso := range []label.Isotopolog{label.Light, label.Heavy} {
		p := res.PerCharge[1].Isotopolog(iso)
		if p.Left != 401 || p.Peak != 411 || p.Right != last {
			t.Errorf("charge 2 %s: window %d %d %d, should be 401 411 %d",
				iso, p.Left, p.Peak, p.Right, last)
		}
		if p.Area <= 0 {
			t.Errorf("charge 2 %s: area %f, should be positive", iso, p.Area)
		}
	}
	if math.Abs(res.MeanRatio-0.5) > 1e-3 {
		t.Errorf("Quantify: ratio %f, should be 0.5", res.MeanRatio)
	}

	// No overlap at all
	fp = FixedPeak{Available: true, Left: 5000, Peak: 5010, Right: 5020}
	if err := fr.Peaks.Set(2, [2]FixedPeak{fp, fp}); err != nil {
		t.Fatalf("Set: error return %v", err)
	}
	s.Fix(fr)
	res, err = d.Quantify(s, testPSM())
	if err != nil {
		t.Fatalf("Quantify: error return %v", err)
	}
	if o := res.PerCharge[1]; o.Light.Left != o.Light.Right || o.Included {
		t.Errorf("charge 2: %+v, should be collapsed and excluded", o)
	}
}

func TestQuantifyScenarios(t *testing.T) {
	wavelet := DefaultOptions()
	wavelet.Smoothing = xic.Wavelet
	tests := []struct {
		name    string
		opts    Options
		intens  func(z int, iso label.Isotopolog, k int, t float64) float64
		status  Status
		code    ErrorCode
		ratio   float64
		err     float64
		inverse float64
	}{
		{
			name: "flat noise",
			opts: DefaultOptions(),
			intens: func(z int, iso label.Isotopolog, k int, t float64) float64 {
				return noise(z, iso, k)
			},
			status:  Undetermined,
			code:    ErrInsufficientValidObservation,
			ratio:   -2,
			inverse: -2,
		},
		{
			name: "light missing",
			opts: DefaultOptions(),
			intens: func(z int, iso label.Isotopolog, k int, t float64) float64 {
				if iso == label.Light {
					return noise(z, iso, k)
				}
				return 1e6 * scenarioB[z] * triangle(t)
			},
			status:  LightMissing,
			ratio:   0,
			inverse: 999,
		},
		{
			name: "wavelet",
			opts: wavelet,
			intens: func(z int, iso label.Isotopolog, k int, t float64) float64 {
				return 1e6 * scenarioB[z] * triangle(t) * float64(iso+1)
			},
			status:  Quantified,
			ratio:   0.5,
			err:     -1,
			inverse: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := NewDriver(testTable(t, label.Variable), tt.opts, testOpener(testRunFunc(tt.intens)))
			if err != nil {
				t.Fatalf("NewDriver: error return %v", err)
			}
			res, err := d.Quantify(nil, testPSM())
			if err != nil {
				t.Fatalf("Quantify: error return %v", err)
			}
			if tt.code != "" && !Is(res.Err, tt.code) {
				t.Errorf("Quantify: error %v, should be %s", res.Err, tt.code)
			}
			if tt.code == "" && res.Err != nil {
				t.Errorf("Quantify: error return %v", res.Err)
			}
			if res.Status != tt.status {
				t.Errorf("Quantify: status %s, should be %s", res.Status, tt.status)
			}
			if math.Abs(res.MeanRatio-tt.ratio) > 1e-3 || math.Abs(res.MeanInverseRatio-tt.inverse) > 1e-3 {
				t.Errorf("Quantify: ratio %f, inverse %f, should be %f and %f",
					res.MeanRatio, res.MeanInverseRatio, tt.ratio, tt.inverse)
			}
			// err -1 skips the error check
			if tt.err >= 0 && res.RatioError != tt.err {
				t.Errorf("Quantify: ratio error %f, should be %f", res.RatioError, tt.err)
			}
			if tt.status == Undetermined {
				for z := 1; z <= 4; z++ {
					o := res.PerCharge[z-1]
					if o.Light.State != Invalid || o.Heavy.State != Invalid || o.Included {
						t.Errorf("charge %d: states %s, %s, included %v, should be invalid",
							z, o.Light.State, o.Heavy.State, o.Included)
					}
				}
			}
		})
	}
}

func TestChargeTable(t *testing.T) {
	ct := NewChargeTable[float64](5)
	if err := ct.Set(5, 1.5); err != nil {
		t.Errorf("Set(5): error return %v", err)
	}
	if v, err := ct.Get(5); err != nil || v != 1.5 {
		t.Errorf("Get(5): %f, %v", v, err)
	}
	for _, z := range []int{0, 6, -1} {
		if err := ct.Set(z, 1); !errors.Is(err, ErrChargeOutOfRange) {
			t.Errorf("Set(%d): error %v, should be %v", z, err, ErrChargeOutOfRange)
		}
		if _, err := ct.Get(z); !errors.Is(err, ErrChargeOutOfRange) {
			t.Errorf("Get(%d): error %v, should be %v", z, err, ErrChargeOutOfRange)
		}
	}
	if ct.MaxCharge() != 5 {
		t.Errorf("MaxCharge: %d, should be 5", ct.MaxCharge())
	}
}

func TestSweep(t *testing.T) {
	d := &Driver{opts: DefaultOptions()}
	tests := []struct {
		chrg int
		want []int
	}{
		{1, []int{1, 2, 3, 4, 5}},
		{2, []int{2, 3, 4, 5, 1}},
		{3, []int{3, 2, 1, 5, 4}},
		{5, []int{5, 4, 3, 2, 1}},
	}
	for _, tt := range tests {
		var got []int
		for i := 0; i < 5; i++ {
			got = append(got, d.sweep(tt.chrg, i))
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("sweep(%d): %s", tt.chrg, diff)
		}
	}
}

func TestChargeRatio(t *testing.T) {
	pk := func(s PeakState, area, err float64) Peak {
		return Peak{State: s, Area: area, AreaError: err}
	}
	tests := []struct {
		name     string
		l, h     Peak
		ratio    float64
		included bool
	}{
		{"both invalid", pk(Invalid, 10, 1), pk(Invalid, 10, 1), -2, false},
		{"unavailable", pk(Unavailable, 0, 0), pk(Valid, 10, 1), -2, false},
		{"light invalid", pk(Invalid, 1, 1), pk(Valid, 10, 1), 0, true},
		{"heavy invalid", pk(Valid, 10, 1), pk(Invalid, 1, 1), -1, true},
		{"valid", pk(Valid, 30, 3), pk(Valid, 40, 4), 0.75, true},
	}
	for _, tt := range tests {
		o := ChargeObservation{Light: tt.l, Heavy: tt.h}
		chargeRatio(&o)
		if o.Ratio != tt.ratio || o.Included != tt.included {
			t.Errorf("%s: ratio %f included %v, should be %f, %v", tt.name,
				o.Ratio, o.Included, tt.ratio, tt.included)
		}
	}
	o := ChargeObservation{Light: pk(Valid, 30, 3), Heavy: pk(Valid, 40, 4)}
	chargeRatio(&o)
	if want := 0.75 * math.Sqrt(0.02); math.Abs(o.RatioError-want) > 1e-12 {
		t.Errorf("valid: error %f, should be %f", o.RatioError, want)
	}
}

func TestSummarizeUndetermined(t *testing.T) {
	d := &Driver{opts: DefaultOptions()}
	res := newResult(5, xic.AreaAverage)
	o := &res.PerCharge[1]
	o.Light = Peak{State: Invalid, Area: 5}
	o.Heavy = Peak{State: Invalid, Area: 5}
	chargeRatio(o)
	err := d.summarize(&res, true, 2)
	if !Is(err, ErrInsufficientValidObservation) {
		t.Errorf("summarize: error %v, should be %s", err, ErrInsufficientValidObservation)
	}
}

func TestSessionReset(t *testing.T) {
	s := &Session{}
	res := newResult(5, xic.AreaAverage)
	s.remember(res)
	s.begin()
	if _, ok := s.Last(); ok {
		t.Errorf("begin: windows kept without fixed range")
	}
	s.Fix(NewFixedRange(5))
	s.remember(res)
	s.begin()
	if _, ok := s.Last(); !ok {
		t.Errorf("begin: windows dropped with fixed range")
	}
}

func TestFarFrom(t *testing.T) {
	ref := xic.Window{Left: 10, Peak: 20, Right: 30}
	if farFrom(xic.Window{Left: 14, Peak: 24, Right: 34}, ref) {
		t.Errorf("farFrom: near peak rejected")
	}
	if !farFrom(xic.Window{Left: 30, Peak: 40, Right: 50}, ref) {
		t.Errorf("farFrom: distant peak accepted")
	}
}
