package ratio

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// meanAndStdDevWeighted returns the weighted mean and standard deviation
// of data. Negative weights are replaced by the mean of the other
// weights, or 1 when no weight is usable. The standard deviation is
// corrected for the effective number of samples.
func meanAndStdDevWeighted(data, weight []float64) (float64, float64) {
	if len(data) == 0 {
		return 0, 0
	}
	if len(data) < 2 {
		return data[0], 0
	}
	if mn, mx := floats.Min(data), floats.Max(data); mn >= mx {
		return mn, 0
	}

	w := make([]float64, len(weight))
	count := 0
	sum := 0.0
	for _, v := range weight {
		if v >= 0 {
			count++
			sum += v
		}
	}
	for i, v := range weight {
		switch {
		case count < 1 || sum == 0:
			w[i] = 1
		case v < 0:
			w[i] = sum / float64(count)
		default:
			w[i] = v
		}
	}

	mean := stat.Mean(data, w)
	sum0 := floats.Sum(w)
	sum1 := floats.Dot(data, w)
	sum2 := 0.0
	sumW2 := 0.0
	for i, v := range data {
		sum2 += v * v * w[i]
		sumW2 += w[i] * w[i]
	}
	spread := sum2*sum0 - sum1*sum1
	if spread <= 0 {
		return mean, 0
	}
	nEff := sum0 * sum0 / sumW2
	if nEff > 2 {
		return mean, math.Sqrt(spread*nEff/(nEff-1)) / sum0
	}
	return mean, math.Sqrt(2*spread) / sum0
}
