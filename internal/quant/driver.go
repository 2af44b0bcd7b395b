// Package quant measures light:heavy abundance ratios of isotope labeled
// peptides from LC-MS data.
package quant

import (
	"errors"
	"fmt"
	"math"

	"github.com/524D/asapquant/internal/label"
	"github.com/524D/asapquant/internal/ratio"
	"github.com/524D/asapquant/internal/rawspec"
	"github.com/524D/asapquant/internal/xic"
)

// PSM is an identified spectrum to quantify
type PSM struct {
	Peptide      label.Peptide
	Charge       int
	SpectrumPath string
	SpectrumID   string
	// ScanIndex is the index of the identified scan in the spectrum
	// file, -1 if it must be looked up from SpectrumID or RetentionTime
	ScanIndex     int
	RetentionTime float64 // minutes, -1 if unknown
}

// TraceFunc receives every extracted chromatogram with its smoothed
// version
type TraceFunc func(psm PSM, charge int, iso label.Isotopolog, raw, fit *xic.Chromatogram)

var errNoAnchor = errors.New("quant: PSM has no scan index, spectrum id or retention time")

type slot struct {
	avail bool // chromatogram has signal
	done  bool // pk is measured
	pk    xic.Peak
}

// chromatograms is the per-call scratch space, reset between calls
type chromatograms struct {
	raw    *ChargeTable[[2]xic.Chromatogram]
	fit    *ChargeTable[[2]xic.Chromatogram]
	slots  *ChargeTable[[2]slot]
	native []int // native scan number of each sample
}

// Driver quantifies PSMs one at a time
type Driver struct {
	table   *label.Table
	opts    Options
	cache   *rawspec.Cache
	scratch chromatograms
	trace   TraceFunc
}

// NewDriver returns a driver for the labels in table. Spectrum files are
// opened with open (nil for mzML).
func NewDriver(table *label.Table, opts Options, open rawspec.Opener) (*Driver, error) {
	if table == nil {
		return nil, fmt.Errorf("%w: no label table", ErrInvalidOption)
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	return &Driver{
		table: table,
		opts:  opts,
		cache: rawspec.NewCache(open),
		scratch: chromatograms{
			raw:   NewChargeTable[[2]xic.Chromatogram](opts.MaxCharge),
			fit:   NewChargeTable[[2]xic.Chromatogram](opts.MaxCharge),
			slots: NewChargeTable[[2]slot](opts.MaxCharge),
		},
	}, nil
}

// SetTrace installs a function that receives all chromatograms
func (d *Driver) SetTrace(fn TraceFunc) {
	d.trace = fn
}

// Options returns the options of the driver
func (d *Driver) Options() Options {
	return d.opts
}

// Close closes the open spectrum file
func (d *Driver) Close() error {
	return d.cache.Close()
}

// Quantify measures the light:heavy ratio of a PSM. Failures that only
// affect this PSM are reported in Result.Err with status Undetermined;
// the returned error is non-nil only when the run must stop.
func (d *Driver) Quantify(s *Session, psm PSM) (Result, error) {
	if s == nil {
		s = &Session{}
	}
	s.begin()
	res := newResult(d.opts.MaxCharge, d.opts.AreaMode)
	if err := d.quantify(s, psm, &res); err != nil {
		res.fail(err)
		if Fatal(err) {
			return res, err
		}
		return res, nil
	}
	s.remember(res)
	return res, nil
}

func (d *Driver) quantify(s *Session, psm PSM, res *Result) error {
	lbl, err := d.table.Resolve(psm.Peptide)
	if err != nil {
		if errors.Is(err, label.ErrInconsistentScheme) {
			return NewInconsistentLabelingScheme(err)
		}
		return NewLabelNotResolved(psm.Peptide.Sequence, err)
	}
	res.Reference = lbl.Observed
	res.LightMass = lbl.LightMass
	res.HeavyMass = lbl.HeavyMass

	if psm.Charge < 1 || psm.Charge > d.opts.MaxCharge {
		e := NewNoChromatogramData(psm.Charge)
		e.Err = fmt.Errorf("%w: %d", ErrChargeOutOfRange, psm.Charge)
		return e
	}

	r, err := d.cache.Get(psm.SpectrumPath)
	if err != nil {
		return NewMissingSpectrumFile(psm.SpectrumPath, err)
	}
	scan, t, err := anchorScan(r, psm)
	if err != nil {
		return NewPeakReadFailure(psm.SpectrumPath, err)
	}
	first, err := rawspec.ScanAtTime(r, t-d.opts.TimeWindow)
	if err != nil {
		return NewPeakReadFailure(psm.SpectrumPath, err)
	}
	last, err := rawspec.ScanAtTime(r, t+d.opts.TimeWindow)
	if err != nil {
		return NewPeakReadFailure(psm.SpectrumPath, err)
	}

	n, err := d.extract(r, psm, lbl, first, last)
	if err != nil {
		return NewPeakReadFailure(psm.SpectrumPath, err)
	}
	if n == 0 {
		return NewNoChromatogramData(psm.Charge)
	}

	if fr, ok := s.Fixed(); ok {
		d.integrateFixed(fr, res)
		return d.summarize(res, false, psm.Charge)
	}
	d.detect(psm.Charge, lbl.Observed, scan, res)
	return d.summarize(res, true, psm.Charge)
}

// anchorScan returns the scan index and retention time of the
// identified scan
func anchorScan(r rawspec.Reader, psm PSM) (int, float64, error) {
	idx := psm.ScanIndex
	if idx < 0 && psm.SpectrumID != "" {
		if i, err := r.ScanIndex(psm.SpectrumID); err == nil {
			idx = i
		}
	}
	if idx >= 0 && idx < r.NumScans() {
		h, err := r.Header(idx)
		if err != nil {
			return 0, 0, err
		}
		return idx, h.RetentionTime, nil
	}
	if psm.RetentionTime < 0 {
		return 0, 0, errNoAnchor
	}
	idx, err := rawspec.ScanAtTime(r, psm.RetentionTime)
	return idx, psm.RetentionTime, err
}

// extract fills the scratch chromatograms and returns how many have
// signal
func (d *Driver) extract(r rawspec.Reader, psm PSM, lbl label.Resolution, first, last int) (int, error) {
	type member struct {
		z   int
		iso label.Isotopolog
	}
	sp := d.opts.smoothParams()
	masses := [2]float64{lbl.LightMass, lbl.HeavyMass}
	d.scratch.native = d.scratch.native[:0]
	var cs []*xic.Chromatogram
	var ts []xic.Target
	var ms []member
	for z := 1; z <= d.opts.MaxCharge; z++ {
		raws, _ := d.scratch.raw.Ptr(z)
		slots, _ := d.scratch.slots.Ptr(z)
		*slots = [2]slot{}
		raws[0].Reset()
		raws[1].Reset()
		if d.opts.Charges == ChargesObserved && z != psm.Charge {
			continue
		}
		for iso := range masses {
			cs = append(cs, &raws[iso])
			ts = append(ts, xic.Target{
				Mass:        masses[iso],
				Charge:      z,
				Isotopes:    d.opts.Isotopes,
				MzTolerance: d.opts.MzTolerance,
			})
			ms = append(ms, member{z, label.Isotopolog(iso)})
		}
	}
	signal, err := xic.ExtractAll(cs, r, first, last, ts)
	if err != nil {
		return 0, err
	}
	cnt := 0
	for k, m := range ms {
		if !signal[k] {
			continue
		}
		raws, _ := d.scratch.raw.Ptr(m.z)
		fits, _ := d.scratch.fit.Ptr(m.z)
		xic.Smooth(&fits[m.iso], &raws[m.iso], sp)
		d.slot(m.z, m.iso).avail = true
		cnt++
		if len(d.scratch.native) == 0 {
			if err := d.nativeScans(r, &raws[m.iso]); err != nil {
				return 0, err
			}
		}
		if d.trace != nil {
			d.trace(psm, m.z, m.iso, &raws[m.iso], &fits[m.iso])
		}
	}
	return cnt, nil
}

// nativeScans stores the native scan numbers of the samples of c. All
// chromatograms of a PSM share the same samples.
func (d *Driver) nativeScans(r rawspec.Reader, c *xic.Chromatogram) error {
	for _, s := range c.Scan {
		h, err := r.Header(s)
		if err != nil {
			return err
		}
		d.scratch.native = append(d.scratch.native, h.ScanNumber)
	}
	return nil
}

// sampleAt returns the first sample with native scan number >= scanNum,
// or the last sample if there is none
func (d *Driver) sampleAt(scanNum int) int {
	for i, s := range d.scratch.native {
		if s >= scanNum {
			return i
		}
	}
	return len(d.scratch.native) - 1
}

func (d *Driver) slot(z int, iso label.Isotopolog) *slot {
	slots, err := d.scratch.slots.Ptr(z)
	if err != nil {
		return &slot{}
	}
	return &slots[iso]
}

// measure detects and integrates the peak of (z, iso) nearest anchor
func (d *Driver) measure(z int, iso label.Isotopolog, anchor int) *slot {
	raws, _ := d.scratch.raw.Ptr(z)
	fits, _ := d.scratch.fit.Ptr(z)
	s := d.slot(z, iso)
	s.pk = xic.Measure(&raws[iso], &fits[iso], anchor, d.opts.peakParams())
	s.done = true
	return s
}

// sweep returns the i-th charge visited when looking for an alternative
// to charge chrg. High charges are searched downward, low charges
// upward, wrapping around.
func (d *Driver) sweep(chrg, i int) int {
	mx := d.opts.MaxCharge
	if chrg > mx/2 {
		z := chrg - i
		if z <= 0 {
			z += mx
		}
		return z
	}
	z := chrg + i
	if z > mx {
		z -= mx
	}
	return z
}

// choose selects the charge whose iso peak serves as reference for that
// isotopolog. Charge pref is tried first and taken if it is available
// (acceptInvalid) or valid. Otherwise charges are swept from step from
// for the first valid peak, then the largest measured area is taken,
// and finally pref itself. Measured peaks of the other charges are
// discarded so they get measured again around the chosen peak.
func (d *Driver) choose(iso label.Isotopolog, pref int, acceptInvalid bool, chrg, from, anchor int) int {
	keep := func(z int) int {
		for c := 1; c <= d.opts.MaxCharge; c++ {
			if c != z {
				d.slot(c, iso).done = false
			}
		}
		return z
	}
	if s := d.slot(pref, iso); s.avail {
		d.measure(pref, iso, anchor)
		if acceptInvalid || s.pk.Quality == xic.Valid {
			return keep(pref)
		}
	}
	for i := from; i < d.opts.MaxCharge; i++ {
		z := d.sweep(chrg, i)
		s := d.slot(z, iso)
		if !s.avail {
			continue
		}
		if !s.done {
			d.measure(z, iso, anchor)
		}
		if s.pk.Quality == xic.Valid {
			return keep(z)
		}
	}
	best, bestArea := 0, -1.0
	for z := 1; z <= d.opts.MaxCharge; z++ {
		if s := d.slot(z, iso); s.done && s.pk.Area > bestArea {
			best, bestArea = z, s.pk.Area
		}
	}
	if best > 0 {
		return keep(best)
	}
	return keep(pref)
}

// detect finds the peaks of all chromatograms and computes the per
// charge ratios
func (d *Driver) detect(chrg int, observed label.Isotopolog, scan int, res *Result) {
	n := len(d.scratch.native)
	cid := d.closestSample(scan)

	// Reference peak of the identified isotopolog
	var refWin [2]xic.Window
	ref := d.choose(observed, chrg, true, chrg, 1, cid)
	refWin[observed] = xic.Window{Left: cid, Peak: cid, Right: cid}
	if s := d.slot(ref, observed); s.done {
		refWin[observed] = s.pk.Window
	}

	// Partner peak, shifted by the expected elution difference
	rw := refWin[observed]
	shift := int(d.opts.Elution) * (rw.Right - rw.Left) / 4
	if observed == label.Heavy {
		shift = -shift
	}
	anchor := clamp(rw.Peak+shift, 0, n-1)
	partnerIso := observed.Other()
	partner := d.choose(partnerIso, ref, false, chrg, 0, anchor)
	refWin[partnerIso] = xic.Window{Left: anchor, Peak: anchor, Right: anchor}
	if s := d.slot(partner, partnerIso); s.done {
		refWin[partnerIso] = s.pk.Window
	}

	for z := 1; z <= d.opts.MaxCharge; z++ {
		o := &res.PerCharge[z-1]
		for _, iso := range []label.Isotopolog{label.Light, label.Heavy} {
			s := d.slot(z, iso)
			if s.avail && !s.done {
				d.measure(z, iso, refWin[iso].Peak)
			}
			if s.done {
				*o.Isotopolog(iso) = d.peakOut(s.pk)
			}
		}
		chargeRatio(o)
		if !o.Included {
			continue
		}
		for _, iso := range []label.Isotopolog{label.Light, label.Heavy} {
			if farFrom(d.slot(z, iso).pk.Window, refWin[iso]) {
				o.Included = false
			}
		}
	}

	// Strong data only
	maxArea := 0.0
	for _, o := range res.PerCharge {
		if o.Included {
			maxArea = math.Max(maxArea, o.Light.Area+o.Heavy.Area)
		}
	}
	for i := range res.PerCharge {
		o := &res.PerCharge[i]
		if o.Included && o.Light.Area+o.Heavy.Area < d.opts.StrongDataFraction*maxArea {
			o.Included = false
		}
	}
}

// closestSample returns the first sample at or after scan index s
func (d *Driver) closestSample(s int) int {
	for z := 1; z <= d.opts.MaxCharge; z++ {
		raws, _ := d.scratch.raw.Ptr(z)
		for iso := range raws {
			if d.slot(z, label.Isotopolog(iso)).avail {
				return raws[iso].Closest(s)
			}
		}
	}
	return 0
}

// farFrom reports whether peak w is too far from the reference peak to
// belong to the same compound
func farFrom(w, ref xic.Window) bool {
	return abs(w.Peak-ref.Peak) > (w.Right-w.Left)/4+(ref.Right-ref.Left)/4
}

// integrateFixed integrates the stored windows of fr
func (d *Driver) integrateFixed(fr FixedRange, res *Result) {
	ip := d.opts.integrateParams()
	for z := 1; z <= d.opts.MaxCharge; z++ {
		o := &res.PerCharge[z-1]
		fps, err := fr.Peaks.Get(z)
		if err != nil {
			chargeRatio(o)
			o.Included = false
			continue
		}
		included, _ := fr.Included.Get(z)
		raws, _ := d.scratch.raw.Ptr(z)
		fits, _ := d.scratch.fit.Ptr(z)
		for _, iso := range []label.Isotopolog{label.Light, label.Heavy} {
			s := d.slot(z, iso)
			if !s.avail || !fps[iso].Available {
				continue
			}
			w := d.fixedWindow(fps[iso])
			bg := fps[iso].Background
			s.pk = xic.Peak{
				Window:      w,
				Background:  bg,
				Integration: xic.Integrate(&raws[iso], &fits[iso], w, bg, ip),
			}
			s.done = true
			*o.Isotopolog(iso) = d.peakOut(s.pk)
		}
		chargeRatio(o)
		o.Included = o.Included && included
	}
}

// fixedWindow maps a stored window onto the current samples, clipped to
// the chromatogram. A window outside the chromatogram collapses to the
// middle sample.
func (d *Driver) fixedWindow(fp FixedPeak) xic.Window {
	n := len(d.scratch.native)
	if n == 0 || fp.Left > fp.Right ||
		fp.Right < d.scratch.native[0] || fp.Left > d.scratch.native[n-1] {
		mid := n / 2
		return xic.Window{Left: mid, Peak: mid, Right: mid}
	}
	l := d.sampleAt(fp.Left)
	r := d.sampleAt(fp.Right)
	p := clamp(d.sampleAt(fp.Peak), l, r)
	return xic.Window{Left: l, Peak: p, Right: r}
}

// peakOut converts a measured peak to output form
func (d *Driver) peakOut(pk xic.Peak) Peak {
	nat := func(i int) int {
		if i < 0 || i >= len(d.scratch.native) {
			return -1
		}
		return d.scratch.native[i]
	}
	return Peak{
		State:      PeakState(pk.Quality),
		Left:       nat(pk.Window.Left),
		Peak:       nat(pk.Window.Peak),
		Right:      nat(pk.Window.Right),
		Background: pk.Background,
		Area:       pk.Area,
		AreaError:  pk.AreaError,
		Time:       pk.Time,
		HalfWidth:  pk.HalfWidth,
	}
}

// chargeRatio sets the light:heavy ratio of one charge state. Charges
// with a usable ratio or sentinel are included.
func chargeRatio(o *ChargeObservation) {
	l, h := &o.Light, &o.Heavy
	o.Ratio, o.RatioError, o.Included = ratio.Undetermined, 0, false
	switch {
	case l.State == Unavailable || h.State == Unavailable:
	case l.State == Invalid && h.State == Invalid:
	case l.State == Invalid:
		o.Ratio, o.Included = ratio.LightMissing, true
	case h.State == Invalid:
		o.Ratio, o.Included = ratio.HeavyMissing, true
	case l.Area > 0 && h.Area > 0:
		r := l.Area / h.Area
		o.Ratio = r
		o.RatioError = r * math.Sqrt(sq(l.AreaError/l.Area)+sq(h.AreaError/h.Area))
		o.Included = true
	}
}

// summarize aggregates the included charges into the peptide ratio, area
// and elution times
func (d *Driver) summarize(res *Result, rejectOutliers bool, chrg int) error {
	var obs []ratio.Observation
	var idx []int
	for i, o := range res.PerCharge {
		if !o.Included {
			continue
		}
		obs = append(obs, ratio.Observation{
			Ratio:  o.Ratio,
			Error:  o.RatioError,
			Weight: o.Light.Area + o.Heavy.Area,
		})
		idx = append(idx, i)
	}
	if len(obs) == 0 {
		return NewInsufficientValidObservations()
	}
	sum := ratio.Aggregate(obs, rejectOutliers)
	for k, out := range sum.Outlier {
		if out {
			res.PerCharge[idx[k]].Included = false
		}
	}
	res.Status = statusOf(sum.Ratio)
	if res.Status == Undetermined {
		return NewInsufficientValidObservations()
	}
	res.MeanRatio, res.RatioError = sum.Ratio, sum.Error
	res.MeanInverseRatio, res.InverseRatioError = sum.InverseRatio, sum.InverseError

	res.Area = -1
	for _, o := range res.PerCharge {
		if o.Included {
			res.Area = math.Max(res.Area, o.Light.Area+o.Heavy.Area)
		}
	}

	for _, iso := range []label.Isotopolog{label.Light, label.Heavy} {
		tm := res.Time(iso)
		*tm = [2]float64{-1, -1}
		if p := res.PerCharge[chrg-1].Isotopolog(iso); p.State != Unavailable {
			*tm = [2]float64{p.Time, p.HalfWidth}
		}
		best := -1.0
		for i := range res.PerCharge {
			o := &res.PerCharge[i]
			p := o.Isotopolog(iso)
			if o.Included && p.State == Valid && p.Area > best {
				best = p.Area
				*tm = [2]float64{p.Time, p.HalfWidth}
			}
		}
	}
	return nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sq(v float64) float64 {
	return v * v
}
