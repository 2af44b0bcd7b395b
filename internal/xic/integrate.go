package xic

import "math"

// Quality classifies an integrated peak
type Quality int

const (
	Invalid Quality = 1
	Valid   Quality = 2
)

// String returns "valid" or "invalid"
func (q Quality) String() string {
	if q == Valid {
		return "valid"
	}
	return "invalid"
}

// AreaMode selects which integral is reported as peak area
type AreaMode int

const (
	AreaAverage AreaMode = iota
	AreaRaw
	AreaFit
)

// String returns the configuration name of the mode
func (m AreaMode) String() string {
	switch m {
	case AreaRaw:
		return "raw"
	case AreaFit:
		return "fit"
	}
	return "average"
}

// WeakPeakRule holds the thresholds that reject peaks barely above
// background
type WeakPeakRule struct {
	// A peak must reach MinPeakFactor times the background
	MinPeakFactor float64
	// Peaks below LowSignalFactor times the background get the extra
	// half-maximum check
	LowSignalFactor float64
	// The half-maximum check applies when more than BelowFraction of the
	// raw samples in the half-maximum window is below background
	BelowFraction float64
	// A checked peak needs at least AboveFraction of these samples above
	// the lower fitted value at the half-maximum bounds
	AboveFraction float64
}

// DefaultWeakPeakRule returns the default weak peak thresholds
func DefaultWeakPeakRule() WeakPeakRule {
	return WeakPeakRule{
		MinPeakFactor:   2,
		LowSignalFactor: 5,
		BelowFraction:   0.25,
		AboveFraction:   0.5,
	}
}

// IntegrateParams configures Integrate
type IntegrateParams struct {
	AreaMode AreaMode
	// QuantHighBackground accepts peaks that fail the weak peak rules
	QuantHighBackground bool
	WeakPeak            WeakPeakRule
}

// Integration is the measured area and elution time of a peak
type Integration struct {
	Area      float64
	AreaError float64
	Time      float64 // minutes
	HalfWidth float64 // minutes
	Quality   Quality
}

// Integrate computes the area above background of the peak in window w
// using the trapezoid rule on both raw and fit. The area error sums the
// squared raw/fit differences of the trapezoids.
func Integrate(raw, fit *Chromatogram, w Window, background float64, p IntegrateParams) Integration {
	res := Integration{Quality: Invalid}
	if fit.Len() == 0 || raw.Len() != fit.Len() {
		return res
	}
	x := fit.Time
	ry := raw.Intensity
	fy := fit.Intensity

	mxVal := 0.0
	for i := w.Left; i <= w.Right; i++ {
		mxVal = math.Max(mxVal, fy[i])
	}

	rArea, fArea, areaErr := 0.0, 0.0, 0.0
	for i := w.Left; i < w.Right; i++ {
		dt := x[i+1] - x[i]
		rVal := math.Max(0.5*(ry[i]+ry[i+1])-background, 0)
		fVal := math.Max(0.5*(fy[i]+fy[i+1])-background, 0)
		rArea += rVal * dt
		fArea += fVal * dt
		areaErr += 0.5 * (rVal - fVal) * (rVal - fVal) * dt * dt
	}
	switch p.AreaMode {
	case AreaRaw:
		res.Area = rArea
	case AreaFit:
		res.Area = fArea
	default:
		res.Area = 0.5 * (rArea + fArea)
	}
	res.AreaError = math.Sqrt(areaErr)

	res.Quality = Valid
	switch {
	case rArea <= 0 || fArea <= 0:
		res.Quality = Invalid
	case p.QuantHighBackground:
	case res.Area < res.AreaError || mxVal < p.WeakPeak.MinPeakFactor*background:
		res.Quality = Invalid
	}

	res.Time = x[w.Peak]
	halfMax := 0.5 * (fy[w.Peak] - background)
	pt1 := w.Peak
	for pt1 >= w.Left && fy[pt1]-background > halfMax {
		pt1--
	}
	if pt1 < w.Left {
		pt1 = w.Left
	}
	pt2 := w.Peak
	for pt2 < w.Right && fy[pt2]-background > halfMax {
		pt2++
	}
	if pt2 > pt1 {
		res.HalfWidth = 0.5 * (x[pt2] - x[pt1])
	}

	if res.Area > 0 && mxVal < p.WeakPeak.LowSignalFactor*background {
		n := pt2 - pt1 + 1
		below := 0
		for i := pt1; i <= pt2; i++ {
			if ry[i] < background {
				below++
			}
		}
		if below > int(float64(n)*p.WeakPeak.BelowFraction) {
			ref := math.Min(fy[pt1], fy[pt2])
			above := 0
			for i := pt1; i <= pt2; i++ {
				if ry[i] > ref {
					above++
				}
			}
			if p.QuantHighBackground {
				res.Quality = Valid
			} else if above < int(float64(n)*p.WeakPeak.AboveFraction) {
				res.Quality = Invalid
			}
		}
	}
	return res
}

// PeakParams configures Measure
type PeakParams struct {
	// BackgroundMargin is the number of samples on each side of the
	// valleys used for background estimation
	BackgroundMargin int
	ZeroBackground   bool
	Integrate        IntegrateParams
}

// Peak is a measured chromatographic peak
type Peak struct {
	Window     Window
	Background float64
	Integration
}

// Measure locates the peak near anchor on the fit, estimates its
// background and integrates it
func Measure(raw, fit *Chromatogram, anchor int, p PeakParams) Peak {
	var pk Peak
	w := PeakAndValleys(fit.Intensity, anchor, 0)
	pk.Background = Background(raw.Intensity, fit.Intensity, w, p.BackgroundMargin, p.ZeroBackground)
	pk.Window = PeakAndValleys(fit.Intensity, w.Peak, pk.Background)
	pk.Integration = Integrate(raw, fit, pk.Window, pk.Background, p.Integrate)
	return pk
}
