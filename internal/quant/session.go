package quant

// FixedPeak is a stored peak window in native scan numbers
type FixedPeak struct {
	Available  bool
	Left       int
	Peak       int
	Right      int
	Background float64
}

// FixedRange holds the peak windows and included flags of a previous
// quantitation. Peaks is indexed by charge and isotopolog.
type FixedRange struct {
	Peaks    *ChargeTable[[2]FixedPeak]
	Included *ChargeTable[bool]
}

// NewFixedRange returns an empty range for charges 1..maxCharge
func NewFixedRange(maxCharge int) FixedRange {
	return FixedRange{
		Peaks:    NewChargeTable[[2]FixedPeak](maxCharge),
		Included: NewChargeTable[bool](maxCharge),
	}
}

// FixedRangeFrom takes the windows of a result so the same scan ranges
// can be integrated again
func FixedRangeFrom(res Result) FixedRange {
	fr := NewFixedRange(len(res.PerCharge))
	for i, o := range res.PerCharge {
		z := i + 1
		var pks [2]FixedPeak
		for iso, p := range []Peak{o.Light, o.Heavy} {
			pks[iso] = FixedPeak{
				Available:  p.State != Unavailable,
				Left:       p.Left,
				Peak:       p.Peak,
				Right:      p.Right,
				Background: p.Background,
			}
		}
		// charges come from PerCharge, so they are always in range
		_ = fr.Peaks.Set(z, pks)
		_ = fr.Included.Set(z, o.Included)
	}
	return fr
}

// Session carries state between Quantify calls on the same peptide: an
// optional fixed scan range and the windows of the last call.
type Session struct {
	fixed *FixedRange
	last  *FixedRange
}

// Fix makes subsequent calls integrate the windows in fr instead of
// detecting peaks
func (s *Session) Fix(fr FixedRange) {
	s.fixed = &fr
	s.last = nil
}

// Fixed returns the fixed range, if any
func (s *Session) Fixed() (FixedRange, bool) {
	if s.fixed == nil {
		return FixedRange{}, false
	}
	return *s.fixed, true
}

// Clear drops the fixed range and the remembered windows
func (s *Session) Clear() {
	s.fixed = nil
	s.last = nil
}

// Last returns the windows of the last quantitation
func (s *Session) Last() (FixedRange, bool) {
	if s.last == nil {
		return FixedRange{}, false
	}
	return *s.last, true
}

// begin starts a Quantify call. Remembered windows only survive when a
// range is fixed.
func (s *Session) begin() {
	if s.fixed == nil {
		s.last = nil
	}
}

func (s *Session) remember(res Result) {
	fr := FixedRangeFrom(res)
	s.last = &fr
}
