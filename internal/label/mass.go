package label

import (
	"errors"
	"math"
)

const (
	massH2O    = float64(18.0105647)
	massH2OAvg = float64(18.01528)
	// Terminal groups, carried by the 'n' and 'c' sites
	massNTerm    = float64(1.0078250)
	massNTermAvg = float64(1.00794)
	massCTerm    = float64(17.0027396)
	massCTermAvg = float64(17.00734)
)

// Masses of amino acids (minus H2O)
var aaMass = map[rune]float64{
	'A': 71.0371138,
	'C': 103.0091848,
	'D': 115.0269430,
	'E': 129.0425931,
	'F': 147.0684139,
	'G': 57.0214637,
	'H': 137.0589119,
	'I': 113.0840640,
	'K': 128.0949630,
	'L': 113.0840640,
	'M': 131.0404849,
	'N': 114.0429274,
	'P': 97.0527638,
	'O': 237.1477269, // Pyrrolysine
	'Q': 128.0585775,
	'R': 156.1011110,
	'S': 87.0320284,
	'T': 101.0476785,
	'U': 150.9536355, // Selenocysteine
	'V': 99.0684139,
	'W': 186.0793129,
	'Y': 163.0633285,
}

// Average masses of amino acids (minus H2O)
var aaAvgMass = map[rune]float64{
	'A': 71.0788,
	'C': 103.1388,
	'D': 115.0886,
	'E': 129.1155,
	'F': 147.1766,
	'G': 57.0519,
	'H': 137.1411,
	'I': 113.1594,
	'K': 128.1741,
	'L': 113.1594,
	'M': 131.1926,
	'N': 114.1038,
	'P': 97.1167,
	'O': 237.2982,
	'Q': 128.1307,
	'R': 156.1875,
	'S': 87.0782,
	'T': 101.1051,
	'U': 150.0379,
	'V': 99.1326,
	'W': 186.2132,
	'Y': 163.1760,
}

// ErrInvalidAminoAcid means a peptide sequence contains an unknown residue
var ErrInvalidAminoAcid = errors.New("label: invalid amino acid")

// PepMass computes the neutral mass of an unmodified peptide
func PepMass(pepSeq string, monoisotopic bool) (float64, error) {
	m := massH2O
	table := aaMass
	if !monoisotopic {
		m = massH2OAvg
		table = aaAvgMass
	}
	for _, aa := range pepSeq {
		aam, ok := table[aa]
		if !ok {
			return 0.0, ErrInvalidAminoAcid
		}
		m += aam
	}
	return m, nil
}

// SiteMass returns the unmodified mass of a site: a residue, or one of
// the terminal groups 'n' and 'c'
func SiteMass(site byte, monoisotopic bool) (float64, bool) {
	switch site {
	case 'n':
		if monoisotopic {
			return massNTerm, true
		}
		return massNTermAvg, true
	case 'c':
		if monoisotopic {
			return massCTerm, true
		}
		return massCTermAvg, true
	}
	table := aaMass
	if !monoisotopic {
		table = aaAvgMass
	}
	m, ok := table[rune(site)]
	return m, ok
}

// MassCorrection maps an average modification mass to its monoisotopic
// equivalent
type MassCorrection struct {
	Average float64 `yaml:"average"`
	Mono    float64 `yaml:"mono"`
}

// Well known label masses, reported as average masses by some engines
var builtinCorrections = []MassCorrection{
	{Average: 330.26, Mono: 330.136}, // cICAT labeled cysteine
	{Average: 339.27, Mono: 339.166},
	{Average: 129.08859, Mono: 129.0429},
	{Average: 132.08859, Mono: 132.0429},
	{Average: 31.0027, Mono: 31.0187},
	{Average: 34.0027, Mono: 34.0187},
	{Average: 143.11549, Mono: 143.0586},
	{Average: 146.11549, Mono: 146.0586},
}

// correctionTolerance is the maximum distance (Da) between a mass and an
// average mass for it to be replaced by the monoisotopic mass
const correctionTolerance = 0.0005

// monoMass returns the monoisotopic equivalent of mass, checking user
// corrections before the built-in ones. Masses without a match are
// returned unchanged.
func monoMass(mass float64, user []MassCorrection) float64 {
	for _, list := range [][]MassCorrection{user, builtinCorrections} {
		for _, c := range list {
			if math.Abs(mass-c.Average) <= correctionTolerance {
				return c.Mono
			}
		}
	}
	return mass
}
