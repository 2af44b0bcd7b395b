// Package ratio combines per charge state abundance ratios into a single
// peptide ratio.
package ratio

import (
	"math"
	"sort"
)

// Critical values of Dixon's test (alpha 0.05) for n = 3..30 and n -> inf
var dixonCutoff = []float64{
	0.941, 0.765, 0.642, 0.560, 0.507, 0.554,
	0.512, 0.477, 0.576, 0.546, 0.521, 0.546,
	0.525, 0.507, 0.490, 0.475, 0.462, 0.450,
	0.440, 0.430, 0.421, 0.413, 0.406, 0.399,
	0.393, 0.387, 0.381, 0.376, 0,
}

// 1/n for the critical values above
var dixonInvN = []float64{
	0.333333, 0.250000, 0.200000, 0.166667, 0.142857,
	0.125000, 0.111111, 0.100000, 0.090909, 0.083333,
	0.076923, 0.071429, 0.066667, 0.062500, 0.058824,
	0.055556, 0.052632, 0.050000, 0.047619, 0.045455,
	0.043478, 0.041667, 0.040000, 0.038462, 0.037037,
	0.035714, 0.034483, 0.033333, 0,
}

// dixonCritical returns the critical value for n samples
func dixonCritical(n int) float64 {
	if n < 3 {
		return 1
	}
	if n <= len(dixonCutoff)+1 {
		return dixonCutoff[n-3]
	}
	return padeApprox(1/float64(n), dixonInvN, dixonCutoff)
}

// DixonTest repeatedly applies Dixon's Q-test to the extremes of data
// and returns which values are outliers. Fewer than 3 values are never
// tested.
func DixonTest(data []float64) []bool {
	outlier := make([]bool, len(data))
	size := len(data)
	if size < 3 {
		return outlier
	}
	idx := make([]int, size)
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(i, j int) bool { return data[idx[i]] < data[idx[j]] })

	// v(i) and top(i) are the i-th smallest and largest remaining values
	lo, hi := 0, size
	v := func(i int) float64 { return data[idx[lo+i]] }
	top := func(i int) float64 { return data[idx[hi-1-i]] }
	gap := func(num, den float64) float64 {
		if den == 0 {
			return 0
		}
		return num / den
	}

	removed := true
	for size > 2 && removed && v(0) != top(0) {
		removed = false
		cutoff := dixonCritical(size)

		var r1, r2 float64
		switch {
		case size < 8:
			r1 = (v(1) - v(0)) / (top(0) - v(0))
			r2 = (top(0) - top(1)) / (top(0) - v(0))
		case size < 11:
			r1 = gap(v(1)-v(0), top(1)-v(0))
			r2 = gap(top(0)-top(1), top(0)-v(1))
		case size < 14:
			r1 = gap(v(2)-v(0), top(1)-v(0))
			r2 = gap(top(0)-top(2), top(0)-v(1))
		default:
			r1 = gap(v(2)-v(0), top(2)-v(0))
			r2 = gap(top(0)-top(2), top(0)-v(2))
		}

		if r1 > r2 {
			if r1 > cutoff {
				outlier[idx[lo]] = true
				lo++
				size--
				removed = true
			}
		} else if r2 > cutoff {
			outlier[idx[hi-1]] = true
			hi--
			size--
			removed = true
		}
	}
	return outlier
}

// padeApprox interpolates ya(xa) at x with a diagonal rational function
func padeApprox(x float64, xa, ya []float64) float64 {
	const tiny = 1e-25
	n := len(xa)
	c := make([]float64, n)
	d := make([]float64, n)
	ns := 0
	hh := math.Abs(x - xa[0])
	for i := 0; i < n; i++ {
		h := math.Abs(x - xa[i])
		if h == 0 {
			return ya[i]
		}
		if h < hh {
			ns = i
			hh = h
		}
		c[i] = ya[i]
		d[i] = ya[i] + tiny
	}
	y := ya[ns]
	ns--
	for m := 1; m < n; m++ {
		for i := 0; i < n-m; i++ {
			w := c[i+1] - d[i]
			h := xa[i+m] - x
			t := (xa[i] - x) * d[i] / h
			dd := t - c[i+1]
			if dd == 0 {
				return y
			}
			dd = w / dd
			d[i] = c[i+1] * dd
			c[i] = t * dd
		}
		if 2*(ns+1) < n-m {
			y += c[ns+1]
		} else {
			y += d[ns]
			ns--
		}
	}
	return y
}
