package xic

import (
	"fmt"
	"math"
	"sort"

	"github.com/524D/asapquant/internal/mzml"
	"github.com/524D/asapquant/internal/rawspec"
)

const (
	// MassHydrogen is the mass of a hydrogen atom, used as charge carrier
	MassHydrogen = float64(1.0079407539)
	// MassIsotope is the mass difference between isotopes
	MassIsotope = float64(1.0033548378)
)

// Target describes the ions summed into a chromatogram
type Target struct {
	Mass        float64 // neutral mass of the lowest isotope
	Charge      int
	Isotopes    int
	MzTolerance float64
}

// Mz returns the m/z values of the target isotopes
func (t Target) Mz() []float64 {
	z := float64(t.Charge)
	mz := make([]float64, t.Isotopes)
	for k := range mz {
		mz[k] = (t.Mass+float64(k)*MassIsotope)/z + MassHydrogen*(z-1)/z
	}
	return mz
}

// Tolerance returns the m/z tolerance, limited to half the isotope
// spacing at the target charge
func (t Target) Tolerance() float64 {
	return math.Min(t.MzTolerance, MassIsotope/float64(t.Charge)/2)
}

// Extract fills c with one sample per MS1 scan in [first, last]. Each
// sample is the summed intensity of all peaks within tolerance of a
// target isotope. Zoom scans are skipped.
func Extract(c *Chromatogram, r rawspec.Reader, first, last int, t Target) error {
	if t.Charge < 1 || t.Isotopes < 1 {
		c.Reset()
		return fmt.Errorf("%w: charge %d, %d isotopes", ErrNoChromatogramData,
			t.Charge, t.Isotopes)
	}
	signal, err := ExtractAll([]*Chromatogram{c}, r, first, last, []Target{t})
	if err != nil {
		return err
	}
	if !signal[0] {
		return ErrNoChromatogramData
	}
	return nil
}

// ExtractAll fills cs[i] for target ts[i] as Extract does, reading each
// scan once. It reports which chromatograms have signal. Invalid targets
// get no signal.
func ExtractAll(cs []*Chromatogram, r rawspec.Reader, first, last int, ts []Target) ([]bool, error) {
	signal := make([]bool, len(ts))
	mz := make([][]float64, len(ts))
	tol := make([]float64, len(ts))
	for k, t := range ts {
		cs[k].Reset()
		if t.Charge >= 1 && t.Isotopes >= 1 {
			mz[k] = t.Mz()
			tol[k] = t.Tolerance()
		}
	}
	if first < 0 {
		first = 0
	}
	if last > r.NumScans()-1 {
		last = r.NumScans() - 1
	}
	for i := first; i <= last; i++ {
		h, err := r.Header(i)
		if err != nil {
			return signal, fmt.Errorf("scan %d: %w", i, err)
		}
		if h.MSLevel != 1 || h.Zoom {
			continue
		}
		p, err := r.Peaks(i)
		if err != nil {
			return signal, fmt.Errorf("scan %d: %w", i, err)
		}
		for k, c := range cs {
			y := 0.0
			if mz[k] != nil {
				y = sumTargets(p, mz[k], tol[k])
			}
			if err := c.add(h.RetentionTime, y, i); err != nil {
				return signal, err
			}
			if y > 0 {
				signal[k] = true
			}
		}
	}
	return signal, nil
}

// sumTargets sums the intensities of peaks within tol of any of the m/z
// values in mz. Both p and mz must be sorted.
func sumTargets(p []mzml.Peak, mz []float64, tol float64) float64 {
	j := sort.Search(len(p), func(j int) bool { return p[j].Mz >= mz[0]-tol })
	maxMz := mz[len(mz)-1] + tol
	sum := 0.0
	k := 0
	for j < len(p) && k < len(mz) && p[j].Mz <= maxMz {
		switch {
		case p[j].Mz > mz[k]+tol:
			k++
		case p[j].Mz >= mz[k]-tol:
			sum += p[j].Intens
			j++
		default:
			j++
		}
	}
	return sum
}
