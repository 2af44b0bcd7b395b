package mzidentml

import (
	"encoding/xml"
	"errors"
)

// Types for parsing mzIdentML

// MzIdentML holds only the part of mzIdentML files
// in which we are interrested
type MzIdentML struct {
	seqID2PepIdx   map[string]int
	spectraDataLoc map[string]string
	identList      []identRef
	content        mzIdentMLContent
}

type identRef struct {
	specResultIdx int // Index into SpectrumIdentificationResult
	specItemIdx   int // Index into SpectrumIdentificationItem
}

// Identification is a single peptide-spectrum match
type Identification struct {
	PepSeq string
	PepID  string
	Charge int
	// ModMass maps a modification location to its monoisotopic mass
	// delta. Location 0 is the N-terminus, 1..len(PepSeq) are residues
	// and len(PepSeq)+1 is the C-terminus.
	ModMass map[int]float64
	// CalcMz is the calculated m/z of the peptide, 0 if absent
	CalcMz          float64
	SpecID          string
	SpectraLocation string
	RetentionTime   float64 // seconds, -1 if not present
	Cv              []cvParam
}

type mzIdentMLContent struct {
	XMLName                      xml.Name                       `xml:"MzIdentML"`
	Peptide                      []peptide                      `xml:"SequenceCollection>Peptide"`
	SpectraData                  []spectraData                  `xml:"DataCollection>Inputs>SpectraData"`
	SpectrumIdentificationResult []spectrumIdentificationResult `xml:"DataCollection>AnalysisData>SpectrumIdentificationList>SpectrumIdentificationResult"`
}

type peptide struct {
	ID              string `xml:"id,attr"`
	PeptideSequence string
	Modification    []modification
}

type modification struct {
	// Note: monoisotopicMassDelta is optional according the the schema, but
	// appears to be no other way to determine mass shift, as other
	// corresponding cvParam's don't carry this info either
	MonoisotopicMassDelta float64 `xml:"monoisotopicMassDelta,attr"`
	Location              *int    `xml:"location,attr"`
	Residues              string  `xml:"residues,attr"`
}

type spectraData struct {
	ID       string `xml:"id,attr"`
	Location string `xml:"location,attr"`
}

type spectrumIdentificationResult struct {
	SpectrumID                 string `xml:"spectrumID,attr"`
	SpectraDataRef             string `xml:"spectraData_ref,attr"`
	SpectrumIdentificationItem []spectrumIdentificationItem
	CvPar                      []cvParam `xml:"cvParam"`
}

type spectrumIdentificationItem struct {
	ChargeState            int       `xml:"chargeState,attr"`
	CalculatedMassToCharge float64   `xml:"calculatedMassToCharge,attr"`
	Rank                   int       `xml:"rank,attr"`
	PeptideRef             string    `xml:"peptide_ref,attr"`
	CvPar                  []cvParam `xml:"cvParam"`
}

type cvParam struct {
	Accession     string `xml:"accession,attr"`
	Name          string `xml:"name,attr"`
	Value         string `xml:"value,attr"`
	UnitAccession string `xml:"unitAccession,attr"`
}

var (
	// ErrInvalidIdentIndex means an identification index out of range was used
	ErrInvalidIdentIndex = errors.New("mzIdentML: invalid identification index")
	// ErrUnknownPeptide means a spectrum identification refers to a missing peptide
	ErrUnknownPeptide = errors.New("mzIdentML: unknown peptide reference")
)
