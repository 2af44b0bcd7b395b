package quant

import (
	"errors"
	"fmt"
)

// ErrorCode identifies the kind of a quantitation failure
type ErrorCode string

const (
	ErrMissingSpectrumFile          ErrorCode = "MISSING_SPECTRUM_FILE"           // per PSM
	ErrPeakReadFailure              ErrorCode = "PEAK_READ_FAILURE"               // per PSM
	ErrNoChromatogramData           ErrorCode = "NO_CHROMATOGRAM_DATA"            // per PSM
	ErrInsufficientValidObservation ErrorCode = "INSUFFICIENT_VALID_OBSERVATIONS" // per PSM
	ErrLabelNotResolved             ErrorCode = "LABEL_NOT_RESOLVED"              // per PSM
	ErrInconsistentLabelingScheme   ErrorCode = "INCONSISTENT_LABELING_SCHEME"    // fatal
)

// Error is a quantitation failure with a code and optional details
type Error struct {
	Code    ErrorCode
	Message string
	Details map[string]any
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Err
}

// NewMissingSpectrumFile creates an error for a spectrum file that can't be opened
func NewMissingSpectrumFile(path string, err error) *Error {
	return &Error{
		Code:    ErrMissingSpectrumFile,
		Message: fmt.Sprintf("can't open spectrum file %s", path),
		Details: map[string]any{"path": path},
		Err:     err,
	}
}

// NewPeakReadFailure creates an error for a scan that can't be read
func NewPeakReadFailure(path string, err error) *Error {
	return &Error{
		Code:    ErrPeakReadFailure,
		Message: fmt.Sprintf("can't read spectra from %s", path),
		Details: map[string]any{"path": path},
		Err:     err,
	}
}

// NewNoChromatogramData creates an error for a PSM without any signal
func NewNoChromatogramData(charge int) *Error {
	return &Error{
		Code:    ErrNoChromatogramData,
		Message: fmt.Sprintf("no chromatogram data at charge %d", charge),
		Details: map[string]any{"charge": charge},
	}
}

// NewInsufficientValidObservations creates an error for a PSM where no
// charge state gave a usable ratio
func NewInsufficientValidObservations() *Error {
	return &Error{
		Code:    ErrInsufficientValidObservation,
		Message: "no charge state with a valid light and heavy peak",
	}
}

// NewLabelNotResolved creates an error for a peptide without usable label
func NewLabelNotResolved(pepSeq string, err error) *Error {
	return &Error{
		Code:    ErrLabelNotResolved,
		Message: fmt.Sprintf("can't resolve label of %s", pepSeq),
		Details: map[string]any{"peptide": pepSeq},
		Err:     err,
	}
}

// NewInconsistentLabelingScheme creates the fatal error for a label
// table that mixes light and heavy static labels
func NewInconsistentLabelingScheme(err error) *Error {
	return &Error{
		Code:    ErrInconsistentLabelingScheme,
		Message: "light and heavy labels mixed in static labeling scheme",
		Err:     err,
	}
}

// Is checks if err is (or wraps) a quantitation error with the given code.
func Is(err error, code ErrorCode) bool {
	var qErr *Error
	if errors.As(err, &qErr) {
		return qErr.Code == code
	}
	return false
}

// Fatal reports whether err must abort the run
func Fatal(err error) bool {
	return Is(err, ErrInconsistentLabelingScheme)
}
