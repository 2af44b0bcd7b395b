package ratio

import "math"

// Sentinel ratios
const (
	// LightMissing is reported when only the heavy partner was seen
	LightMissing = 0.0
	// HeavyMissing is reported when only the light partner was seen
	HeavyMissing = -1.0
	// Undetermined is reported when no ratio can be computed
	Undetermined = -2.0
	// InverseLightMissing is the inverse ratio when only the heavy
	// partner was seen
	InverseLightMissing = 999.0
)

// dedupTolerance is the relative tolerance below which two log ratios
// are considered equal
const dedupTolerance = 0.01

// Observation is a light:heavy ratio measured at one charge state.
// Ratio is positive, or one of the sentinels.
type Observation struct {
	Ratio  float64
	Error  float64
	Weight float64
}

// Summary is the combined ratio of a set of observations
type Summary struct {
	Ratio        float64
	Error        float64
	InverseRatio float64
	InverseError float64
	// Outlier flags the observations rejected by Dixon's test
	Outlier []bool
}

// Aggregate combines observations into a single ratio. Positive ratios
// are tested for outliers in log space (when rejectOutliers is set),
// then averaged with their weights. The inverse ratio is aggregated
// separately from the reciprocal observations. Without positive ratios
// a sentinel is returned, LightMissing or HeavyMissing if that is the
// majority case.
func Aggregate(obs []Observation, rejectOutliers bool) Summary {
	s := Summary{Outlier: make([]bool, len(obs))}

	var light, heavy, valid int
	for _, o := range obs {
		switch {
		case o.Ratio == LightMissing:
			light++
		case o.Ratio == HeavyMissing:
			heavy++
		case o.Ratio > 0:
			valid++
		}
	}
	if valid < 1 {
		switch {
		case light > heavy:
			s.Ratio, s.InverseRatio = LightMissing, InverseLightMissing
		case light < heavy:
			s.Ratio, s.InverseRatio = HeavyMissing, HeavyMissing
		default:
			s.Ratio, s.InverseRatio = Undetermined, Undetermined
		}
		return s
	}

	// Outlier test on distinct log ratios
	var logs []float64
	for _, o := range obs {
		if o.Ratio <= 0 {
			continue
		}
		if !nearAny(math.Log(o.Ratio), logs, nil) {
			logs = append(logs, math.Log(o.Ratio))
		}
	}
	if rejectOutliers {
		flagged := DixonTest(logs)
		for i, o := range obs {
			if o.Ratio > 0 && nearAny(math.Log(o.Ratio), logs, flagged) {
				s.Outlier[i] = true
			}
		}
	}

	var ratios, errs, invRatios, invErrs, weights []float64
	for i, o := range obs {
		if o.Ratio <= 0 || s.Outlier[i] {
			continue
		}
		ratios = append(ratios, o.Ratio)
		errs = append(errs, o.Error)
		invRatios = append(invRatios, 1/o.Ratio)
		invErrs = append(invErrs, o.Error/(o.Ratio*o.Ratio))
		weights = append(weights, o.Weight)
	}

	switch len(ratios) {
	case 0:
		s.Ratio, s.InverseRatio = Undetermined, Undetermined
	case 1:
		s.Ratio, s.Error = ratios[0], errs[0]
		s.InverseRatio, s.InverseError = invRatios[0], invErrs[0]
	default:
		s.Ratio, s.Error = logMean(ratios, errs, weights)
		s.InverseRatio, s.InverseError = logMean(invRatios, invErrs, weights)
	}
	return s
}

// nearAny reports whether v is within the dedup tolerance of one of
// values. When mask is given only the masked values are considered.
func nearAny(v float64, values []float64, mask []bool) bool {
	for j, u := range values {
		if mask != nil && !mask[j] {
			continue
		}
		// The tolerance uses |u| so negative log ratios are merged too
		if math.Abs(v-u) < dedupTolerance*math.Abs(u) {
			return true
		}
	}
	return false
}

// logMean averages ratios in log space and combines the spread with the
// propagated errors of the individual ratios
func logMean(ratios, errs, weights []float64) (float64, float64) {
	logs := make([]float64, len(ratios))
	relErrs := make([]float64, len(ratios))
	for i, r := range ratios {
		logs[i] = math.Log(r)
		relErrs[i] = errs[i] / r
	}
	mean, sd := meanAndStdDevWeighted(logs, weights)

	sum := 0.0
	for _, e := range relErrs {
		if e > 0 {
			sum += 1 / (e * e)
		}
	}
	propagated := 0.0
	if sum > 0 {
		propagated = 1 / math.Sqrt(sum)
	}
	r := math.Exp(mean)
	return r, math.Sqrt(sd*sd+propagated*propagated) * r
}
