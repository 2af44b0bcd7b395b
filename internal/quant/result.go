package quant

import (
	"github.com/524D/asapquant/internal/label"
	"github.com/524D/asapquant/internal/ratio"
	"github.com/524D/asapquant/internal/xic"
)

// Status is the outcome of quantifying a PSM
type Status int

const (
	Quantified   Status = 1
	LightMissing Status = 0
	HeavyMissing Status = -1
	Undetermined Status = -2
)

// String returns the output name of the status
func (s Status) String() string {
	switch s {
	case Quantified:
		return "QUANTIFIED"
	case LightMissing:
		return "LIGHT_MISSING"
	case HeavyMissing:
		return "HEAVY_MISSING"
	}
	return "UNDETERMINED"
}

// statusOf derives the status from an aggregated ratio
func statusOf(r float64) Status {
	switch {
	case r > 0:
		return Quantified
	case r == ratio.LightMissing:
		return LightMissing
	case r == ratio.HeavyMissing:
		return HeavyMissing
	}
	return Undetermined
}

// PeakState tells whether a peak was measured and how it scored
type PeakState int

const (
	Unavailable PeakState = -1
	Invalid     PeakState = PeakState(xic.Invalid)
	Valid       PeakState = PeakState(xic.Valid)
)

// String returns the output name of the state
func (s PeakState) String() string {
	switch s {
	case Valid:
		return "valid"
	case Invalid:
		return "invalid"
	}
	return "unavailable"
}

// Peak is the measurement of one isotopolog at one charge. Left, Peak
// and Right are native scan numbers.
type Peak struct {
	State      PeakState
	Left       int
	Peak       int
	Right      int
	Background float64
	Area       float64
	AreaError  float64
	Time       float64 // minutes
	HalfWidth  float64 // minutes
}

// ChargeObservation is the light:heavy measurement at one charge
type ChargeObservation struct {
	Charge     int
	Light      Peak
	Heavy      Peak
	Ratio      float64
	RatioError float64
	Included   bool
}

// Isotopolog returns the peak of isotopolog iso
func (o *ChargeObservation) Isotopolog(iso label.Isotopolog) *Peak {
	if iso == label.Heavy {
		return &o.Heavy
	}
	return &o.Light
}

// Result is the quantitation of one PSM
type Result struct {
	Status    Status
	Reference label.Isotopolog // the identified isotopolog
	LightMass float64
	HeavyMass float64
	AreaMode  xic.AreaMode

	MeanRatio         float64
	RatioError        float64
	MeanInverseRatio  float64
	InverseRatioError float64
	// Area is the largest light+heavy area of the included charges
	Area float64
	// LightTime and HeavyTime hold time and half width (minutes) of the
	// strongest included valid peak, -1 if there is none
	LightTime [2]float64
	HeavyTime [2]float64

	PerCharge []ChargeObservation // index charge-1
	// Err is the per-PSM error that left the result undetermined
	Err error
}

func newResult(maxCharge int, mode xic.AreaMode) Result {
	res := Result{
		Status:           Undetermined,
		AreaMode:         mode,
		MeanRatio:        ratio.Undetermined,
		MeanInverseRatio: ratio.Undetermined,
		Area:             -1,
		LightTime:        [2]float64{-1, -1},
		HeavyTime:        [2]float64{-1, -1},
		PerCharge:        make([]ChargeObservation, maxCharge),
	}
	for i := range res.PerCharge {
		o := &res.PerCharge[i]
		o.Charge = i + 1
		o.Light.State = Unavailable
		o.Heavy.State = Unavailable
		o.Ratio = ratio.Undetermined
	}
	return res
}

// Time returns the time summary of isotopolog iso
func (r *Result) Time(iso label.Isotopolog) *[2]float64 {
	if iso == label.Heavy {
		return &r.HeavyTime
	}
	return &r.LightTime
}

// fail marks the result undetermined because of err
func (r *Result) fail(err error) {
	r.Status = Undetermined
	r.MeanRatio = ratio.Undetermined
	r.MeanInverseRatio = ratio.Undetermined
	r.RatioError = 0
	r.InverseRatioError = 0
	r.Area = -1
	r.LightTime = [2]float64{-1, -1}
	r.HeavyTime = [2]float64{-1, -1}
	r.Err = err
}
