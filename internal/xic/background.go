package xic

import "math"

const maxBackgroundIterations = 1000

// Background estimates the background level around a peak. Noise is the
// RMS difference between raw and fit within w widened by margin samples.
// The background is the mean of the raw samples outside w that are below
// background plus noise, refined until it changes by at most 1% of the
// noise. With zero set the result is 0.
func Background(raw, fit []float64, w Window, margin int, zero bool) float64 {
	if zero || len(raw) == 0 {
		return 0
	}
	lo := w.Left - margin
	if lo < 0 {
		lo = 0
	}
	hi := w.Right + margin
	if hi > len(raw)-1 {
		hi = len(raw) - 1
	}

	noise := 0.0
	count := 0
	for i := lo; i <= hi; i++ {
		if raw[i] > 0 {
			d := raw[i] - fit[i]
			noise += d * d
			count++
		}
	}
	if count > 0 {
		noise = math.Sqrt(noise / float64(count))
	} else {
		noise = 1
	}

	background := 0.0
	ave := noise
	for iter := 0; iter < maxBackgroundIterations && math.Abs(background-ave) > 0.01*noise; iter++ {
		background = ave
		ave = 0
		count = 0
		above := 0
		for i := lo; i <= hi; i++ {
			if i >= w.Left && i <= w.Right {
				continue
			}
			switch {
			case raw[i] > 0 && raw[i] < background+noise:
				ave += raw[i]
				count++
			case raw[i] >= background+noise:
				above++
			}
		}
		switch {
		case count > 0:
			ave /= float64(count)
		case above > 0:
			ave = background + 0.2*noise
		default:
			ave = 0
		}
	}
	return math.Max(ave, 0)
}
