// Package rawspec gives random access to the scans of an LC-MS run.
package rawspec

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/524D/asapquant/internal/mzml"
)

// Header holds the per-scan metadata needed for chromatograms
type Header struct {
	RetentionTime float64 // minutes
	MSLevel       int
	Zoom          bool
	ScanNumber    int // native scan number
}

// Reader is a random access view of one spectrum file
type Reader interface {
	NumScans() int
	Header(i int) (Header, error)
	// Peaks returns the peaks of scan i sorted by m/z
	Peaks(i int) ([]mzml.Peak, error)
	// ScanIndex converts a native spectrum id into a scan index
	ScanIndex(id string) (int, error)
	Close() error
}

// Opener opens a spectrum file
type Opener func(path string) (Reader, error)

var (
	// ErrNoScans means the spectrum file contains no scans
	ErrNoScans = errors.New("rawspec: no scans")
)

type mzMLReader struct {
	f       mzml.MzML
	headers []Header
}

// OpenMzML opens an mzML file (optionally compressed) and reads all scan
// headers
func OpenMzML(path string) (Reader, error) {
	f, err := mzml.Open(localPath(path))
	if err != nil {
		return nil, err
	}
	return NewMzMLReader(f)
}

// NewMzMLReader wraps an mzML document that was already read
func NewMzMLReader(f mzml.MzML) (Reader, error) {
	r := &mzMLReader{f: f, headers: make([]Header, f.NumSpecs())}
	for i := range r.headers {
		rt, err := f.RetentionTime(i)
		if err != nil {
			return nil, fmt.Errorf("scan %d: %w", i, err)
		}
		msLevel, err := f.MSLevel(i)
		if err != nil {
			return nil, fmt.Errorf("scan %d: %w", i, err)
		}
		zoom, err := f.ZoomScan(i)
		if err != nil {
			return nil, fmt.Errorf("scan %d: %w", i, err)
		}
		scanNum, err := f.ScanNumber(i)
		if err != nil {
			return nil, fmt.Errorf("scan %d: %w", i, err)
		}
		r.headers[i] = Header{
			RetentionTime: rt / 60.0,
			MSLevel:       msLevel,
			Zoom:          zoom,
			ScanNumber:    scanNum,
		}
	}
	return r, nil
}

func (r *mzMLReader) NumScans() int {
	return len(r.headers)
}

func (r *mzMLReader) Header(i int) (Header, error) {
	if i < 0 || i >= len(r.headers) {
		return Header{}, mzml.ErrInvalidScanIndex
	}
	return r.headers[i], nil
}

func (r *mzMLReader) Peaks(i int) ([]mzml.Peak, error) {
	return r.f.ReadScan(i)
}

func (r *mzMLReader) ScanIndex(id string) (int, error) {
	return r.f.ScanIndex(id)
}

func (r *mzMLReader) Close() error {
	r.headers = nil
	r.f = mzml.MzML{}
	return nil
}

// localPath strips a file:// prefix as found in mzIdentML SpectraData
// locations
func localPath(path string) string {
	if !strings.HasPrefix(path, "file:") {
		return path
	}
	u, err := url.Parse(path)
	if err != nil || u.Path == "" {
		return path
	}
	return u.Path
}

// Exists reports whether the spectrum file for path is present
func Exists(path string) bool {
	_, err := os.Stat(localPath(path))
	return err == nil
}

// ScanAtTime returns the index of the scan whose retention time is closest
// to t (minutes). Retention times are assumed to be non-decreasing.
func ScanAtTime(r Reader, t float64) (int, error) {
	n := r.NumScans()
	if n == 0 {
		return 0, ErrNoScans
	}
	var err error
	i := sort.Search(n, func(i int) bool {
		h, e := r.Header(i)
		if e != nil {
			err = e
			return true
		}
		return h.RetentionTime >= t
	})
	if err != nil {
		return 0, err
	}
	if i == n {
		return n - 1, nil
	}
	if i == 0 {
		return 0, nil
	}
	hi, _ := r.Header(i)
	lo, _ := r.Header(i - 1)
	if t-lo.RetentionTime <= hi.RetentionTime-t {
		return i - 1, nil
	}
	return i, nil
}
