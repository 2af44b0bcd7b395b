package xic

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Daubechies 4 (8 tap) low pass filter
var db4 = [8]float64{0.2304, 0.7148, 0.6309, -0.0280, -0.1870, 0.0308, 0.0329, -0.0106}

// db4High is the quadrature mirror of db4
var db4High = func() [8]float64 {
	var g [8]float64
	sign := -1.0
	for i := range g {
		g[i] = sign * db4[len(db4)-1-i]
		sign = -sign
	}
	return g
}()

const maxWaveletLevels = 4

// waveletLevels returns the number of decomposition levels for n samples
func waveletLevels(n int) int {
	if n >= 16 {
		return maxWaveletLevels
	}
	levels := 0
	for m := n; m > 1; m /= 2 {
		levels++
	}
	return levels
}

// waveletSmooth denoises y in place by hard thresholding the detail
// coefficients of a periodic wavelet decomposition. The noise level is
// estimated from the finest details.
func waveletSmooth(y []float64) {
	n := len(y)
	levels := waveletLevels(n)
	if levels == 0 {
		return
	}
	approx := append([]float64(nil), y...)
	details := make([][]float64, levels)
	lengths := make([]int, levels)
	for l := 0; l < levels; l++ {
		lengths[l] = len(approx)
		approx, details[l] = dwtStep(approx)
	}

	// Universal threshold, sigma from the median absolute finest detail
	abs := make([]float64, len(details[0]))
	for i, d := range details[0] {
		abs[i] = math.Abs(d)
	}
	sort.Float64s(abs)
	sigma := median(abs) / 0.6745
	threshold := sigma * math.Sqrt(2*math.Log(float64(n)))
	for _, d := range details {
		for i := range d {
			if math.Abs(d[i]) <= threshold {
				d[i] = 0
			}
		}
	}

	for l := levels - 1; l >= 0; l-- {
		approx = idwtStep(approx, details[l], lengths[l])
	}
	copy(y, approx)
}

// median returns the median of sorted values s
func median(s []float64) float64 {
	m := len(s) / 2
	if len(s)%2 == 0 {
		return stat.Mean(s[m-1:m+1], nil)
	}
	return s[m]
}

// dwtStep performs one periodic decomposition step. Odd length input is
// extended with its last sample.
func dwtStep(x []float64) (approx, detail []float64) {
	if len(x)%2 == 1 {
		x = append(x, x[len(x)-1])
	}
	n := len(x)
	approx = make([]float64, n/2)
	detail = make([]float64, n/2)
	for i := range approx {
		for k := range db4 {
			v := x[(2*i+k)%n]
			approx[i] += db4[k] * v
			detail[i] += db4High[k] * v
		}
	}
	return approx, detail
}

// idwtStep inverts dwtStep and truncates the result to length n
func idwtStep(approx, detail []float64, n int) []float64 {
	m := 2 * len(approx)
	x := make([]float64, m)
	for i := range approx {
		for k := range db4 {
			x[(2*i+k)%m] += db4[k]*approx[i] + db4High[k]*detail[i]
		}
	}
	return x[:n]
}
