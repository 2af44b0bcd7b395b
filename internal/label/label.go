// Package label resolves the light and heavy masses of a labeled peptide.
package label

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Isotopolog identifies the light or heavy member of a label pair
type Isotopolog int

const (
	Light Isotopolog = iota
	Heavy
)

// String returns "light" or "heavy"
func (i Isotopolog) String() string {
	if i == Heavy {
		return "heavy"
	}
	return "light"
}

// Other returns the partner isotopolog
func (i Isotopolog) Other() Isotopolog {
	return 1 - i
}

// Scheme tells whether all peptides of a run carry the same label
type Scheme int

const (
	Variable Scheme = iota
	Static
)

// Pair holds the full masses of a labeled site. For residues this is the
// residue mass plus the label, for the 'n' and 'c' sites the terminal
// group mass plus the label.
type Pair struct {
	Light float64 `yaml:"light"`
	Heavy float64 `yaml:"heavy"`
}

// Mass tolerances (Da)
const (
	// ModTolerance is the maximum difference between a modified site
	// and a label mass
	ModTolerance = 0.1
	// unlabeledTolerance is used to decide whether an unmodified site
	// is the light member of a pair
	unlabeledTolerance = 0.01
)

var (
	// ErrInvalidSite means a label table entry is not a residue or terminus
	ErrInvalidSite = errors.New("label: invalid site")
	// ErrEqualMasses means a label pair has identical light and heavy masses
	ErrEqualMasses = errors.New("label: light and heavy mass are equal")
	// ErrInconsistentScheme means a static run has both light and heavy
	// labels
	ErrInconsistentScheme = errors.New("label: inconsistent labeling scheme")
	// ErrNoPairs means the label table is empty
	ErrNoPairs = errors.New("label: no label pairs")
	// ErrNotResolved means a peptide's label state can't be determined
	ErrNotResolved = errors.New("label: label not resolved")
)

// Config declares the label table of a run
type Config struct {
	Pairs        map[byte]Pair
	Scheme       Scheme
	Monoisotopic bool
	// StaticMods are the static modification deltas of a static run
	StaticMods map[byte]float64
	// Corrections are checked before the built-in average to
	// monoisotopic corrections
	Corrections []MassCorrection
}

// Table is the validated label table of a run. It is immutable.
type Table struct {
	pairs        map[byte]Pair
	scheme       Scheme
	monoisotopic bool
	corrections  []MassCorrection
}

// Peptide is the label relevant part of a PSM
type Peptide struct {
	Sequence string
	// Mods maps a location (0 N-terminus, 1..len residues, len+1
	// C-terminus) to a mass delta
	Mods map[int]float64
	// Mass is the neutral mass of the observed peptide. When 0 it is
	// computed from the sequence and Mods.
	Mass float64
}

// Resolution is the outcome of resolving a peptide
type Resolution struct {
	LightMass float64
	HeavyMass float64
	Observed  Isotopolog
}

func validSite(site byte) bool {
	return site == 'n' || site == 'c' || (site >= 'A' && site <= 'Z')
}

// NewTable validates cfg and builds the label table
func NewTable(cfg Config) (*Table, error) {
	if len(cfg.Pairs) == 0 {
		return nil, ErrNoPairs
	}
	t := &Table{
		pairs:        make(map[byte]Pair, len(cfg.Pairs)),
		scheme:       cfg.Scheme,
		monoisotopic: cfg.Monoisotopic,
		corrections:  append([]MassCorrection(nil), cfg.Corrections...),
	}
	for site, p := range cfg.Pairs {
		if !validSite(site) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSite, site)
		}
		if _, ok := SiteMass(site, true); !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSite, site)
		}
		if p.Light == p.Heavy {
			return nil, fmt.Errorf("%w: site %q mass %f", ErrEqualMasses, site, p.Light)
		}
		t.pairs[site] = p
	}
	if t.scheme == Static {
		if err := t.checkStatic(cfg.StaticMods); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// checkStatic fails when the static modifications of a run label some
// sites light and others heavy
func (t *Table) checkStatic(mods map[byte]float64) error {
	seen := [2]bool{}
	for _, site := range t.Sites() {
		delta, ok := mods[site]
		if !ok {
			continue
		}
		iso, ok := t.classify(site, delta)
		if !ok {
			continue
		}
		seen[iso] = true
	}
	if seen[Light] && seen[Heavy] {
		return fmt.Errorf("%w: static modifications are both light and heavy", ErrInconsistentScheme)
	}
	return nil
}

// modDelta returns the modification delta at loc with the same
// average to monoisotopic correction classify applies
func (t *Table) modDelta(seq string, loc int, delta float64) float64 {
	if !t.monoisotopic {
		return delta
	}
	var site byte
	switch {
	case loc == 0:
		site = 'n'
	case loc == len(seq)+1:
		site = 'c'
	case loc > 0 && loc <= len(seq):
		site = seq[loc-1]
	default:
		return delta
	}
	base, ok := SiteMass(site, true)
	if !ok {
		return delta
	}
	return monoMass(base+delta, t.corrections) - base
}

// classify tells whether a site with modification delta matches the
// light or heavy mass of its pair
func (t *Table) classify(site byte, delta float64) (Isotopolog, bool) {
	p := t.pairs[site]
	base, _ := SiteMass(site, t.monoisotopic)
	m := base + delta
	if t.monoisotopic {
		m = monoMass(m, t.corrections)
	}
	switch {
	case math.Abs(m-p.Light) <= ModTolerance:
		return Light, true
	case math.Abs(m-p.Heavy) <= ModTolerance:
		return Heavy, true
	}
	return Light, false
}

// Sites returns the labeled sites in sorted order
func (t *Table) Sites() []byte {
	sites := make([]byte, 0, len(t.pairs))
	for s := range t.pairs {
		sites = append(sites, s)
	}
	sort.Slice(sites, func(i, j int) bool { return sites[i] < sites[j] })
	return sites
}

// Pair returns the label pair of a site
func (t *Table) Pair(site byte) (Pair, bool) {
	p, ok := t.pairs[site]
	return p, ok
}

// Scheme returns the labeling scheme of the run
func (t *Table) Scheme() Scheme {
	return t.scheme
}

// Monoisotopic reports whether masses are monoisotopic
func (t *Table) Monoisotopic() bool {
	return t.monoisotopic
}

// Resolve determines the light and heavy neutral masses of a peptide and
// which of the two was observed. A static run in which a peptide carries
// both light and heavy labels returns ErrInconsistentScheme, all other
// failures return ErrNotResolved.
func (t *Table) Resolve(p Peptide) (Resolution, error) {
	var res Resolution
	n := len(p.Sequence)
	seen := [2]bool{}
	diff := 0.0
	checkSite := func(site byte, loc int) error {
		pair, ok := t.pairs[site]
		if !ok {
			return nil
		}
		diff += pair.Heavy - pair.Light
		if delta, ok := p.Mods[loc]; ok {
			iso, ok := t.classify(site, delta)
			if !ok {
				return fmt.Errorf("%w: site %q at %d has unlabeled modification %f",
					ErrNotResolved, site, loc, delta)
			}
			seen[iso] = true
			return nil
		}
		base, _ := SiteMass(site, t.monoisotopic)
		if math.Abs(pair.Light-base) >= unlabeledTolerance {
			return fmt.Errorf("%w: site %q at %d is unlabeled", ErrNotResolved, site, loc)
		}
		seen[Light] = true
		return nil
	}

	if err := checkSite('n', 0); err != nil {
		return res, err
	}
	for i := 0; i < n; i++ {
		if err := checkSite(p.Sequence[i], i+1); err != nil {
			return res, err
		}
	}
	if err := checkSite('c', n+1); err != nil {
		return res, err
	}

	if seen[Light] && seen[Heavy] {
		if t.scheme == Static {
			return res, fmt.Errorf("%w: peptide %s is both light and heavy",
				ErrInconsistentScheme, p.Sequence)
		}
		return res, fmt.Errorf("%w: peptide %s is both light and heavy", ErrNotResolved, p.Sequence)
	}
	if !seen[Light] && !seen[Heavy] {
		return res, fmt.Errorf("%w: peptide %s has no labeled site", ErrNotResolved, p.Sequence)
	}
	if diff <= 0 {
		return res, fmt.Errorf("%w: peptide %s mass difference %f", ErrNotResolved, p.Sequence, diff)
	}

	m := p.Mass
	if m <= 0 {
		var err error
		m, err = PepMass(p.Sequence, t.monoisotopic)
		if err != nil {
			return res, fmt.Errorf("%w: %v", ErrNotResolved, err)
		}
		for loc, delta := range p.Mods {
			m += t.modDelta(p.Sequence, loc, delta)
		}
	}
	if seen[Light] {
		res.Observed = Light
		res.LightMass = m
		res.HeavyMass = m + diff
	} else {
		res.Observed = Heavy
		res.LightMass = m - diff
		res.HeavyMass = m
	}
	return res, nil
}
