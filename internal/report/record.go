// Package report writes quantitation results as JSON or SQLite.
package report

import (
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/524D/asapquant/internal/quant"
)

// FormatVersion is the version of the output format. If it ever
// changes, output of old versions should still be readable.
const FormatVersion = "1.0"

// Isotopolog is the peak of one isotopolog at one charge. Scans are
// native scan numbers.
type Isotopolog struct {
	Status     string
	StatusCode int
	LeftScan   int
	PeakScan   int
	RightScan  int
	Background float64
	Area       float64
	AreaError  float64
	Time       float64
	HalfWidth  float64
}

// ChargeState is the ratio measured at one charge
type ChargeState struct {
	Charge     int
	Ratio      float64
	RatioError float64
	Included   bool
	Light      Isotopolog
	Heavy      Isotopolog
}

// Record is the flattened result of one PSM
type Record struct {
	Index      int // PSM index in the identification file
	Peptide    string
	Charge     int
	SpectrumID string `json:",omitempty"`

	Status            string
	StatusCode        int
	Identified        string // light or heavy
	LightMass         float64
	HeavyMass         float64
	AreaMode          string
	Ratio             float64
	RatioError        float64
	InverseRatio      float64
	InverseRatioError float64
	Area              float64
	LightTime         [2]float64 // time, half width (minutes)
	HeavyTime         [2]float64
	ErrorCode         string `json:",omitempty"`
	Error             string `json:",omitempty"`

	ChargeStates []ChargeState
}

// Run is a complete output document
type Run struct {
	RunID         string
	Version       string // program version
	FormatVersion string
	Created       time.Time
	Source        string // identification file
	Records       []Record
}

// NewRunID returns a new, time ordered run identifier
func NewRunID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// NewRun returns an empty run document
func NewRun(version, source string) Run {
	return Run{
		RunID:         NewRunID(),
		Version:       version,
		FormatVersion: FormatVersion,
		Created:       time.Now().UTC(),
		Source:        source,
	}
}

func isotopolog(p quant.Peak) Isotopolog {
	return Isotopolog{
		Status:     p.State.String(),
		StatusCode: int(p.State),
		LeftScan:   p.Left,
		PeakScan:   p.Peak,
		RightScan:  p.Right,
		Background: p.Background,
		Area:       p.Area,
		AreaError:  p.AreaError,
		Time:       p.Time,
		HalfWidth:  p.HalfWidth,
	}
}

// NewRecord flattens the result of PSM index
func NewRecord(index int, psm quant.PSM, res quant.Result) Record {
	rec := Record{
		Index:             index,
		Peptide:           psm.Peptide.Sequence,
		Charge:            psm.Charge,
		SpectrumID:        psm.SpectrumID,
		Status:            res.Status.String(),
		StatusCode:        int(res.Status),
		Identified:        res.Reference.String(),
		LightMass:         res.LightMass,
		HeavyMass:         res.HeavyMass,
		AreaMode:          res.AreaMode.String(),
		Ratio:             res.MeanRatio,
		RatioError:        res.RatioError,
		InverseRatio:      res.MeanInverseRatio,
		InverseRatioError: res.InverseRatioError,
		Area:              res.Area,
		LightTime:         res.LightTime,
		HeavyTime:         res.HeavyTime,
	}
	if res.Err != nil {
		rec.Error = res.Err.Error()
		var qErr *quant.Error
		if errors.As(res.Err, &qErr) {
			rec.ErrorCode = string(qErr.Code)
		}
	}
	for _, o := range res.PerCharge {
		// only charges with a chromatogram are usable
		if o.Light.State == quant.Unavailable && o.Heavy.State == quant.Unavailable {
			continue
		}
		rec.ChargeStates = append(rec.ChargeStates, ChargeState{
			Charge:     o.Charge,
			Ratio:      o.Ratio,
			RatioError: o.RatioError,
			Included:   o.Included,
			Light:      isotopolog(o.Light),
			Heavy:      isotopolog(o.Heavy),
		})
	}
	return rec
}

// FixedRange returns the peak windows of the record so the same scan
// ranges can be integrated again. Charges without a row are left
// unavailable.
func (r Record) FixedRange() (quant.FixedRange, error) {
	maxCharge := 0
	for _, cs := range r.ChargeStates {
		if cs.Charge > maxCharge {
			maxCharge = cs.Charge
		}
	}
	fr := quant.NewFixedRange(maxCharge)
	for _, cs := range r.ChargeStates {
		var pks [2]quant.FixedPeak
		for iso, p := range []Isotopolog{cs.Light, cs.Heavy} {
			pks[iso] = quant.FixedPeak{
				Available:  p.StatusCode != int(quant.Unavailable),
				Left:       p.LeftScan,
				Peak:       p.PeakScan,
				Right:      p.RightScan,
				Background: p.Background,
			}
		}
		if err := fr.Peaks.Set(cs.Charge, pks); err != nil {
			return fr, fmt.Errorf("PSM %d: %w", r.Index, err)
		}
		if err := fr.Included.Set(cs.Charge, cs.Included); err != nil {
			return fr, fmt.Errorf("PSM %d: %w", r.Index, err)
		}
	}
	return fr, nil
}
