package quant

import (
	"errors"
	"fmt"

	"github.com/524D/asapquant/internal/xic"
)

// ChargeSelection restricts the charge states that are quantified
type ChargeSelection int

const (
	// ChargesAll quantifies all charges 1..MaxCharge
	ChargesAll ChargeSelection = iota
	// ChargesObserved quantifies only the identified charge
	ChargesObserved
)

// String returns the configuration name of the selection
func (c ChargeSelection) String() string {
	if c == ChargesObserved {
		return "observed"
	}
	return "all"
}

// ParseChargeSelection converts a configuration name to ChargeSelection
func ParseChargeSelection(s string) (ChargeSelection, error) {
	switch s {
	case "all", "":
		return ChargesAll, nil
	case "observed":
		return ChargesObserved, nil
	}
	return ChargesAll, fmt.Errorf("%w: charges %q", ErrInvalidOption, s)
}

// Elution gives the expected order in which light and heavy elute. The
// value is the sign of the heavy peak shift relative to light.
type Elution int

const (
	ElutionSame       Elution = 0
	ElutionHeavyFirst Elution = -1
	ElutionLightFirst Elution = 1
)

// String returns the configuration name of the elution order
func (e Elution) String() string {
	switch e {
	case ElutionHeavyFirst:
		return "heavy-first"
	case ElutionLightFirst:
		return "light-first"
	}
	return "same"
}

// ParseElution converts a configuration name to Elution
func ParseElution(s string) (Elution, error) {
	switch s {
	case "same", "":
		return ElutionSame, nil
	case "heavy-first":
		return ElutionHeavyFirst, nil
	case "light-first":
		return ElutionLightFirst, nil
	}
	return ElutionSame, fmt.Errorf("%w: elution %q", ErrInvalidOption, s)
}

// ErrInvalidOption means an option has a value that can't be used
var ErrInvalidOption = errors.New("quant: invalid option")

// Options configures the quantitation of all PSMs in a run
type Options struct {
	Isotopes    int     // isotopes summed per chromatogram
	MzTolerance float64 // m/z tolerance (Th)
	TimeWindow  float64 // minutes on each side of the PSM

	Smoothing          xic.Smoothing
	SmoothingRepeats   int
	SmoothingRange     float64 // minutes
	MinSmoothingWindow int     // points

	ZeroBackground      bool
	QuantHighBackground bool
	Charges             ChargeSelection
	AreaMode            xic.AreaMode
	Elution             Elution

	MaxCharge          int
	BackgroundMargin   int
	StrongDataFraction float64
	WeakPeak           xic.WeakPeakRule
}

// DefaultOptions returns the default quantitation options
func DefaultOptions() Options {
	sp := xic.DefaultSmoothParams()
	return Options{
		Isotopes:           3,
		MzTolerance:        0.5,
		TimeWindow:         3,
		Smoothing:          sp.Method,
		SmoothingRepeats:   sp.Repeats,
		SmoothingRange:     sp.Range,
		MinSmoothingWindow: sp.MinWindow,
		Charges:            ChargesAll,
		AreaMode:           xic.AreaAverage,
		Elution:            ElutionSame,
		MaxCharge:          5,
		BackgroundMargin:   50,
		StrongDataFraction: 0.1,
		WeakPeak:           xic.DefaultWeakPeakRule(),
	}
}

// Validate checks that the options can be used
func (o Options) Validate() error {
	switch {
	case o.Isotopes < 1:
		return fmt.Errorf("%w: isotopes %d", ErrInvalidOption, o.Isotopes)
	case o.MzTolerance <= 0:
		return fmt.Errorf("%w: m/z tolerance %g", ErrInvalidOption, o.MzTolerance)
	case o.TimeWindow <= 0:
		return fmt.Errorf("%w: time window %g", ErrInvalidOption, o.TimeWindow)
	case o.MaxCharge < 1:
		return fmt.Errorf("%w: max charge %d", ErrInvalidOption, o.MaxCharge)
	case o.SmoothingRepeats < 0 || o.MinSmoothingWindow < 0 || o.SmoothingRange < 0:
		return fmt.Errorf("%w: smoothing parameters", ErrInvalidOption)
	case o.BackgroundMargin < 0:
		return fmt.Errorf("%w: background margin %d", ErrInvalidOption, o.BackgroundMargin)
	case o.StrongDataFraction < 0 || o.StrongDataFraction >= 1:
		return fmt.Errorf("%w: strong data fraction %g", ErrInvalidOption, o.StrongDataFraction)
	}
	return nil
}

func (o Options) smoothParams() xic.SmoothParams {
	return xic.SmoothParams{
		Method:    o.Smoothing,
		Range:     o.SmoothingRange,
		Repeats:   o.SmoothingRepeats,
		MinWindow: o.MinSmoothingWindow,
	}
}

func (o Options) integrateParams() xic.IntegrateParams {
	return xic.IntegrateParams{
		AreaMode:            o.AreaMode,
		QuantHighBackground: o.QuantHighBackground,
		WeakPeak:            o.WeakPeak,
	}
}

func (o Options) peakParams() xic.PeakParams {
	return xic.PeakParams{
		BackgroundMargin: o.BackgroundMargin,
		ZeroBackground:   o.ZeroBackground,
		Integrate:        o.integrateParams(),
	}
}
