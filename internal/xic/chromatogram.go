// Package xic builds extracted ion chromatograms and measures the
// chromatographic peaks in them.
package xic

import "errors"

// MaxScans is the maximum number of scans in a chromatogram
const MaxScans = 100000

var (
	// ErrNoChromatogramData means no scan in the window had signal
	ErrNoChromatogramData = errors.New("xic: no chromatogram data")
	// ErrCapacity means the scan window holds more than MaxScans scans
	ErrCapacity = errors.New("xic: too many scans in chromatogram")
)

// Chromatogram is an intensity trace over retention time (minutes).
// Scan holds the spectrum file scan index of each sample.
type Chromatogram struct {
	Time      []float64
	Intensity []float64
	Scan      []int
}

// Len returns the number of samples
func (c *Chromatogram) Len() int {
	return len(c.Time)
}

// Reset empties the chromatogram, keeping the allocated memory
func (c *Chromatogram) Reset() {
	c.Time = c.Time[:0]
	c.Intensity = c.Intensity[:0]
	c.Scan = c.Scan[:0]
}

func (c *Chromatogram) add(t, y float64, scan int) error {
	if len(c.Time) >= MaxScans {
		return ErrCapacity
	}
	c.Time = append(c.Time, t)
	c.Intensity = append(c.Intensity, y)
	c.Scan = append(c.Scan, scan)
	return nil
}

// CopyFrom makes c a copy of src, reusing c's memory
func (c *Chromatogram) CopyFrom(src *Chromatogram) {
	c.Time = append(c.Time[:0], src.Time...)
	c.Intensity = append(c.Intensity[:0], src.Intensity...)
	c.Scan = append(c.Scan[:0], src.Scan...)
}

// Index returns the sample index of scan index s, or -1
func (c *Chromatogram) Index(s int) int {
	for i, scan := range c.Scan {
		if scan == s {
			return i
		}
	}
	return -1
}

// Closest returns the index of the first sample with scan index >= s,
// clamped to the last sample
func (c *Chromatogram) Closest(s int) int {
	for i, scan := range c.Scan {
		if scan >= s {
			return i
		}
	}
	return len(c.Scan) - 1
}
