package xic

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// Smoothing selects the smoothing method
type Smoothing int

const (
	LocalRegression Smoothing = iota
	Wavelet
)

// String returns the configuration name of the method
func (s Smoothing) String() string {
	if s == Wavelet {
		return "wavelet"
	}
	return "local"
}

// SmoothParams configures Smooth
type SmoothParams struct {
	Method Smoothing
	// Range is the minimum time span (minutes) on each side of a point
	// used for local regression
	Range float64
	// Repeats is the number of local regression passes
	Repeats int
	// MinWindow is the minimum number of points in a regression window
	MinWindow int
}

// DefaultSmoothParams returns the default smoothing parameters
func DefaultSmoothParams() SmoothParams {
	return SmoothParams{
		Method:    LocalRegression,
		Range:     0.5,
		Repeats:   10,
		MinWindow: 10,
	}
}

const maxRegressionOrder = 4

// Smooth writes a smoothed copy of src into dst. dst has the same length
// and time base as src.
func Smooth(dst, src *Chromatogram, p SmoothParams) {
	dst.CopyFrom(src)
	if dst.Len() == 0 {
		return
	}
	if p.Method == Wavelet {
		waveletSmooth(dst.Intensity)
		return
	}
	floor := floats.Min(dst.Intensity)
	tmp := make([]float64, dst.Len())
	for r := 0; r < p.Repeats; r++ {
		for i := range tmp {
			tmp[i] = smoothPoint(dst.Time, dst.Intensity, i, p.Range, p.MinWindow, floor)
		}
		copy(dst.Intensity, tmp)
	}
}

// smoothPoint fits a weighted polynomial around point i and returns its
// value at i, never less than floor
func smoothPoint(t, y []float64, i int, tRange float64, minWindow int, floor float64) float64 {
	n := len(y)
	lower := i
	for lower > 0 && t[i]-t[lower] < tRange {
		lower--
	}
	upper := i
	for upper < n-1 && t[upper]-t[i] < tRange {
		upper++
	}
	for upper-lower < minWindow {
		if lower > 0 {
			lower--
		}
		if upper < n-1 {
			upper++
		}
		if lower <= 0 && upper >= n-1 {
			break
		}
	}
	order := maxRegressionOrder
	if upper-lower-1 < order {
		order = upper - lower - 1
	}
	if order < 1 {
		return y[i]
	}
	v, ok := polyFit(t, y, i, lower, upper, order)
	if !ok {
		return y[i]
	}
	return math.Max(v, floor)
}

// polyFit solves the weighted least squares normal equations of a
// polynomial in t-t[i] over [lower, upper]. Points are weighted with
// y^0.25 (1 for y <= 1). It returns the constant coefficient.
func polyFit(t, y []float64, i, lower, upper, order int) (float64, bool) {
	dim := order + 1
	sums := make([]float64, 2*dim-1)
	rhs := make([]float64, dim)
	for j := lower; j <= upper; j++ {
		w := 1.0
		if y[j] > 1 {
			w = math.Sqrt(math.Sqrt(y[j]))
		}
		dx := t[j] - t[i]
		pw := w
		for k := range sums {
			sums[k] += pw
			if k < dim {
				rhs[k] += pw * y[j]
			}
			pw *= dx
		}
	}
	a := mat.NewSymDense(dim, nil)
	for r := 0; r < dim; r++ {
		for c := r; c < dim; c++ {
			a.SetSym(r, c, sums[r+c])
		}
	}
	var x mat.VecDense
	err := x.SolveVec(a, mat.NewVecDense(dim, rhs))
	if err != nil {
		// An ill conditioned system still has a usable solution
		var cond mat.Condition
		if !errors.As(err, &cond) {
			return 0, false
		}
	}
	v := x.AtVec(0)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}
