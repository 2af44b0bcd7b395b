package mzml

import (
	"bytes"
	"compress/zlib"
	"encoding/base64"
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"io"
	"math"
	"strconv"
)

// Builder assembles an mzML document from peak lists. It is used to
// produce small synthetic runs, e.g. as test fixtures.
type Builder struct {
	f    MzML
	zlib bool
}

// NewBuilder returns an empty Builder. When compress is set, the binary
// arrays are zlib compressed.
func NewBuilder(compress bool) *Builder {
	return &Builder{zlib: compress}
}

// AddSpectrum appends a spectrum with the given retention time (seconds),
// MS level and peaks. The id should follow the usual
// "controllerType=0 controllerNumber=1 scan=N" format.
func (b *Builder) AddSpectrum(id string, retentionTime float64, msLevel int,
	zoom bool, p []Peak) error {
	sl := &b.f.content.Run.SpectrumList
	spec := spectrum{
		Index:              len(sl.Spectrum),
		ID:                 id,
		DefaultArrayLength: int64(len(p)),
	}
	spec.CvPar = append(spec.CvPar,
		CVParam{Accession: cvMSLevel, Name: "ms level", Value: strconv.Itoa(msLevel)},
		CVParam{Accession: cvCentroid, Name: "centroid spectrum"})
	if zoom {
		spec.CvPar = append(spec.CvPar, CVParam{Accession: cvZoomScan, Name: "zoom scan"})
	}
	spec.ScanList = scanList{Count: 1, Scan: []scan{{CvPar: []CVParam{{
		Accession:     cvScanStartTime,
		Name:          "scan start time",
		Value:         strconv.FormatFloat(retentionTime, 'f', -1, 64),
		UnitCvRef:     "UO",
		UnitAccession: "UO:0000010",
		UnitName:      "second",
	}}}}}

	for _, mzArray := range []bool{true, false} {
		b64, err := encodeBinary(p, b.zlib, true, mzArray)
		if err != nil {
			return err
		}
		arr := binaryDataArray{
			EncodedLength: len(b64),
			ArrayLength:   len(p),
			Binary:        b64,
		}
		arr.CvPar = append(arr.CvPar, CVParam{Accession: `MS:1000523`, Name: "64-bit float"})
		if b.zlib {
			arr.CvPar = append(arr.CvPar, CVParam{Accession: `MS:1000574`, Name: "zlib compression"})
		} else {
			arr.CvPar = append(arr.CvPar, CVParam{Accession: `MS:1000576`, Name: "no compression"})
		}
		if mzArray {
			arr.CvPar = append(arr.CvPar, CVParam{Accession: `MS:1000514`, Name: "m/z array"})
		} else {
			arr.CvPar = append(arr.CvPar, CVParam{Accession: `MS:1000515`, Name: "intensity array"})
		}
		spec.BinaryDataArrayList.BinaryDataArray = append(spec.BinaryDataArrayList.BinaryDataArray, arr)
	}
	spec.BinaryDataArrayList.Count = len(spec.BinaryDataArrayList.BinaryDataArray)

	sl.Spectrum = append(sl.Spectrum, spec)
	sl.Count = len(sl.Spectrum)
	return nil
}

// MzML returns the assembled document with its scan index built
func (b *Builder) MzML() (MzML, error) {
	f := b.f
	err := f.traverseScan()
	return f, err
}

// Write serializes the mzML content
func (f *MzML) Write(writer io.Writer) error {
	if _, err := io.WriteString(writer, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(writer)
	enc.Indent(` `, `  `)
	var content mzMLContentWrite

	content.XMLName = f.content.XMLName
	content.Sl1 = "http://psi.hupo.org/ms/mzml http://psidev.info/files/ms/mzML/xsd/mzML1.1.0.xsd"
	content.Version = "1.1.0"
	content.Sl2 = "http://www.w3.org/2001/XMLSchema-instance"
	content.CvList = f.content.CvList
	content.InstrumentConfigurationList = f.content.InstrumentConfigurationList
	content.Run = f.content.Run

	if err := enc.Encode(&content); err != nil {
		return fmt.Errorf("MzML: encode: %w", err)
	}
	return enc.Flush()
}

func encodeBinary(p []Peak, zlibCompression bool, bits64 bool, mzArray bool) (
	string, error) {

	var raw []byte
	width := 4
	if bits64 {
		width = 8
	}
	raw = make([]byte, len(p)*width)
	for i, peak := range p {
		v := peak.Intens
		if mzArray {
			v = peak.Mz
		}
		if bits64 {
			binary.LittleEndian.PutUint64(raw[width*i:], math.Float64bits(v))
		} else {
			binary.LittleEndian.PutUint32(raw[width*i:], math.Float32bits(float32(v)))
		}
	}
	if zlibCompression {
		var b bytes.Buffer
		z := zlib.NewWriter(&b)
		if _, err := z.Write(raw); err != nil {
			return "", err
		}
		// zlib writer must explicitly be closed here, otherwise the result is invalid
		if err := z.Close(); err != nil {
			return "", err
		}
		raw = b.Bytes()
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
