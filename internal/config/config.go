// Package config loads the YAML run configuration of asapquant.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/524D/asapquant/internal/label"
	"github.com/524D/asapquant/internal/quant"
	"github.com/524D/asapquant/internal/xic"
)

// ErrInvalidConfig means a configuration value can't be used
var ErrInvalidConfig = errors.New("config: invalid value")

// Config holds the run configuration. String valued options use the
// names printed by the corresponding String methods.
type Config struct {
	// Isotopes is the number of isotope peaks summed per chromatogram
	Isotopes int `yaml:"isotopes,omitempty"`
	// MzTolerance is the m/z tolerance in Th
	MzTolerance float64 `yaml:"mz_tolerance,omitempty"`
	// TimeWindow is the time in minutes on each side of the PSM that is
	// extracted
	TimeWindow float64 `yaml:"time_window,omitempty"`

	// Smoothing is "local" or "wavelet"
	Smoothing          string  `yaml:"smoothing,omitempty"`
	SmoothingRepeats   int     `yaml:"smoothing_repeats,omitempty"`
	SmoothingRange     float64 `yaml:"smoothing_range,omitempty"`
	MinSmoothingWindow int     `yaml:"min_smoothing_window,omitempty"`

	ZeroBackground      bool `yaml:"zero_background,omitempty"`
	QuantHighBackground bool `yaml:"quant_high_background,omitempty"`
	// Charges is "all" or "observed"
	Charges string `yaml:"charges,omitempty"`
	// AreaMode is "average", "raw" or "fit"
	AreaMode string `yaml:"area_mode,omitempty"`
	// Elution is "same", "heavy-first" or "light-first"
	Elution string `yaml:"elution,omitempty"`

	MaxCharge          int     `yaml:"max_charge,omitempty"`
	BackgroundMargin   int     `yaml:"background_margin,omitempty"`
	StrongDataFraction float64 `yaml:"strong_data_fraction,omitempty"`

	// Masses is "mono" or "average"
	Masses string `yaml:"masses,omitempty"`
	// Scheme is "variable" or "static"
	Scheme string `yaml:"scheme,omitempty"`
	// Labels maps a site (residue letter, n or c) to its light and heavy
	// mass
	Labels map[string]label.Pair `yaml:"labels,omitempty"`
	// StaticMods holds the static modification per site of a static run
	StaticMods map[string]float64 `yaml:"static_mods,omitempty"`
	// Corrections converts average modification masses to monoisotopic
	Corrections []label.MassCorrection `yaml:"mass_corrections,omitempty"`
}

// DefaultConfig returns the default configuration. It has no labels.
func DefaultConfig() *Config {
	o := quant.DefaultOptions()
	return &Config{
		Isotopes:           o.Isotopes,
		MzTolerance:        o.MzTolerance,
		TimeWindow:         o.TimeWindow,
		Smoothing:          o.Smoothing.String(),
		SmoothingRepeats:   o.SmoothingRepeats,
		SmoothingRange:     o.SmoothingRange,
		MinSmoothingWindow: o.MinSmoothingWindow,
		Charges:            o.Charges.String(),
		AreaMode:           o.AreaMode.String(),
		Elution:            o.Elution.String(),
		MaxCharge:          o.MaxCharge,
		BackgroundMargin:   o.BackgroundMargin,
		StrongDataFraction: o.StrongDataFraction,
		Masses:             "mono",
		Scheme:             "variable",
	}
}

// Load reads the configuration file at path on top of the defaults.
// An empty path or a file that doesn't exist gives the defaults.
func Load(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	cfg = Merge(DefaultConfig(), cfg)
	if _, err := cfg.Options(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if _, err := cfg.labelConfig(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Merge combines base and overlay. Non-zero overlay values take
// precedence, booleans are or-ed, labels and static modifications are
// merged per site and mass corrections are appended.
func Merge(base, overlay *Config) *Config {
	r := *base
	if overlay.Isotopes != 0 {
		r.Isotopes = overlay.Isotopes
	}
	if overlay.MzTolerance != 0 {
		r.MzTolerance = overlay.MzTolerance
	}
	if overlay.TimeWindow != 0 {
		r.TimeWindow = overlay.TimeWindow
	}
	if overlay.Smoothing != "" {
		r.Smoothing = overlay.Smoothing
	}
	if overlay.SmoothingRepeats != 0 {
		r.SmoothingRepeats = overlay.SmoothingRepeats
	}
	if overlay.SmoothingRange != 0 {
		r.SmoothingRange = overlay.SmoothingRange
	}
	if overlay.MinSmoothingWindow != 0 {
		r.MinSmoothingWindow = overlay.MinSmoothingWindow
	}
	r.ZeroBackground = base.ZeroBackground || overlay.ZeroBackground
	r.QuantHighBackground = base.QuantHighBackground || overlay.QuantHighBackground
	if overlay.Charges != "" {
		r.Charges = overlay.Charges
	}
	if overlay.AreaMode != "" {
		r.AreaMode = overlay.AreaMode
	}
	if overlay.Elution != "" {
		r.Elution = overlay.Elution
	}
	if overlay.MaxCharge != 0 {
		r.MaxCharge = overlay.MaxCharge
	}
	if overlay.BackgroundMargin != 0 {
		r.BackgroundMargin = overlay.BackgroundMargin
	}
	if overlay.StrongDataFraction != 0 {
		r.StrongDataFraction = overlay.StrongDataFraction
	}
	if overlay.Masses != "" {
		r.Masses = overlay.Masses
	}
	if overlay.Scheme != "" {
		r.Scheme = overlay.Scheme
	}

	r.Labels = make(map[string]label.Pair, len(base.Labels)+len(overlay.Labels))
	for s, p := range base.Labels {
		r.Labels[s] = p
	}
	for s, p := range overlay.Labels {
		r.Labels[s] = p
	}
	r.StaticMods = make(map[string]float64, len(base.StaticMods)+len(overlay.StaticMods))
	for s, m := range base.StaticMods {
		r.StaticMods[s] = m
	}
	for s, m := range overlay.StaticMods {
		r.StaticMods[s] = m
	}
	// User corrections are matched first, so overlay goes in front
	r.Corrections = append(append([]label.MassCorrection(nil), overlay.Corrections...),
		base.Corrections...)
	return &r
}

// Options converts the configuration to quantitation options
func (c *Config) Options() (quant.Options, error) {
	o := quant.DefaultOptions()
	o.Isotopes = c.Isotopes
	o.MzTolerance = c.MzTolerance
	o.TimeWindow = c.TimeWindow
	o.SmoothingRepeats = c.SmoothingRepeats
	o.SmoothingRange = c.SmoothingRange
	o.MinSmoothingWindow = c.MinSmoothingWindow
	o.ZeroBackground = c.ZeroBackground
	o.QuantHighBackground = c.QuantHighBackground
	o.MaxCharge = c.MaxCharge
	o.BackgroundMargin = c.BackgroundMargin
	o.StrongDataFraction = c.StrongDataFraction

	var err error
	if o.Smoothing, err = parseSmoothing(c.Smoothing); err != nil {
		return o, err
	}
	if o.AreaMode, err = parseAreaMode(c.AreaMode); err != nil {
		return o, err
	}
	if o.Charges, err = quant.ParseChargeSelection(c.Charges); err != nil {
		return o, err
	}
	if o.Elution, err = quant.ParseElution(c.Elution); err != nil {
		return o, err
	}
	return o, o.Validate()
}

// LabelTable builds the validated label table of the configuration
func (c *Config) LabelTable() (*label.Table, error) {
	lc, err := c.labelConfig()
	if err != nil {
		return nil, err
	}
	return label.NewTable(lc)
}

func (c *Config) labelConfig() (label.Config, error) {
	lc := label.Config{
		Pairs:       make(map[byte]label.Pair, len(c.Labels)),
		StaticMods:  make(map[byte]float64, len(c.StaticMods)),
		Corrections: c.Corrections,
	}
	switch c.Masses {
	case "mono", "":
		lc.Monoisotopic = true
	case "average":
	default:
		return lc, fmt.Errorf("%w: masses %q", ErrInvalidConfig, c.Masses)
	}
	switch c.Scheme {
	case "variable", "":
		lc.Scheme = label.Variable
	case "static":
		lc.Scheme = label.Static
	default:
		return lc, fmt.Errorf("%w: scheme %q", ErrInvalidConfig, c.Scheme)
	}
	for s, p := range c.Labels {
		if len(s) != 1 {
			return lc, fmt.Errorf("%w: label site %q", ErrInvalidConfig, s)
		}
		lc.Pairs[s[0]] = p
	}
	for s, m := range c.StaticMods {
		if len(s) != 1 {
			return lc, fmt.Errorf("%w: static modification site %q", ErrInvalidConfig, s)
		}
		lc.StaticMods[s[0]] = m
	}
	return lc, nil
}

func parseSmoothing(s string) (xic.Smoothing, error) {
	switch s {
	case "local", "":
		return xic.LocalRegression, nil
	case "wavelet":
		return xic.Wavelet, nil
	}
	return xic.LocalRegression, fmt.Errorf("%w: smoothing %q", ErrInvalidConfig, s)
}

func parseAreaMode(s string) (xic.AreaMode, error) {
	switch s {
	case "average", "":
		return xic.AreaAverage, nil
	case "raw":
		return xic.AreaRaw, nil
	case "fit":
		return xic.AreaFit, nil
	}
	return xic.AreaAverage, fmt.Errorf("%w: area mode %q", ErrInvalidConfig, s)
}
