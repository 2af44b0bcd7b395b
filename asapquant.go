// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package main

import (
	"errors"
	"fmt"
	"log"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/524D/asapquant/internal/config"
	"github.com/524D/asapquant/internal/label"
	"github.com/524D/asapquant/internal/mzidentml"
	"github.com/524D/asapquant/internal/quant"
	"github.com/524D/asapquant/internal/rawspec"
	"github.com/524D/asapquant/internal/report"
)

// Program name and version, stored in the output
const progName = "asapquant"

var progVersion = `Unknown`

const (
	infoDefault = iota
	infoSilent
	infoVerbose
)

// Command line parameters
type params struct {
	mzIdentMlFilename string
	configFilename    string
	mzMLFilename      string // overrides the spectra location in the mzid file
	outFilename       string // JSON output
	sqliteFilename    string // optional SQLite output
	fixedFilename     string // JSON output of an earlier run to re-integrate
	psmFilter         string // Range of PSM indices to quantify
	minPSMIdx         int
	maxPSMIdx         int
	timeFilter        string // Retention time range (minutes) of PSMs to quantify
	minRT             float64
	maxRT             float64
	verbose           bool
	quiet             bool
	verbosity         int    // Verbosity of progress messages (infoDefault...)
	debugPSMs         string // Print debug output for given PSM range

	// Overrides of the configuration file
	overrides config.Config
}

var ErrRangeSpec = errors.New("invalid range specified")

// Parse string like "-12:6" into 2 values, -12 and 6
// Parameters min and max are the "default" min/max values,
// when a value is not specified (e.g. "-12:"), the default is assigned
func parseIntRange(r string, min int, max int) (int, int, error) {
	re := regexp.MustCompile(`\s*(\-?\d*):(\-?\d*)`)
	m := re.FindStringSubmatch(r)
	minOut := min
	maxOut := max
	if len(m) >= 2 && m[1] != "" {
		minOut, _ = strconv.Atoi(m[1])
		if minOut < min {
			minOut = min
		}
	}
	if len(m) >= 3 && m[2] != "" {
		maxOut, _ = strconv.Atoi(m[2])
		if maxOut > max {
			maxOut = max
		}
	}
	var err error
	if minOut > maxOut {
		err = ErrRangeSpec
		minOut = maxOut
	}
	return minOut, maxOut, err
}

// Parse string like "-12.01e1:+6" into 2 values, -120.1 and 6.0
// Parameters min and max are the "default" min/max values,
// when a value is not specified (e.g. "-12.01e1:"), the default is assigned
func parseFloat64Range(r string, min float64, max float64) (
	float64, float64, error) {
	re := regexp.MustCompile(`\s*([-+]?[0-9]*\.?[0-9]*([eE][-+]?[0-9]+)?):([-+]?[0-9]*\.?[0-9]*([eE][-+]?[0-9]+)?)`)
	m := re.FindStringSubmatch(r)
	minOut := min
	maxOut := max
	if len(m) >= 2 && m[1] != "" {
		minOut, _ = strconv.ParseFloat(m[1], 64)
		if minOut < min {
			minOut = min
		}
	}
	if len(m) >= 4 && m[3] != "" {
		maxOut, _ = strconv.ParseFloat(m[3], 64)
		if maxOut > max {
			maxOut = max
		}
	}
	var err error
	if minOut > maxOut {
		err = ErrRangeSpec
		minOut = maxOut
	}
	return minOut, maxOut, err
}

// loadConfig reads the configuration file and applies the command line
// overrides
func loadConfig(par *params) (*config.Config, quant.Options, *label.Table, error) {
	cfg, err := config.Load(par.configFilename)
	if err != nil {
		return nil, quant.Options{}, nil, err
	}
	cfg = config.Merge(cfg, &par.overrides)
	opts, err := cfg.Options()
	if err != nil {
		return nil, opts, nil, err
	}
	table, err := cfg.LabelTable()
	if err != nil {
		return nil, opts, nil, err
	}
	return cfg, opts, table, nil
}

// sanatizeParams fills in default file names and parses ranges
func sanatizeParams(par *params, args []string) error {
	par.mzIdentMlFilename = args[0]
	var extension = filepath.Ext(par.mzIdentMlFilename)
	var startName = par.mzIdentMlFilename[0 : len(par.mzIdentMlFilename)-len(extension)]
	if par.outFilename == "" {
		par.outFilename = startName + "-asap.json"
	}
	par.verbosity = infoDefault
	if par.verbose {
		par.verbosity = infoVerbose
	}
	if par.quiet {
		par.verbosity = infoSilent
	}
	var err error
	par.minPSMIdx, par.maxPSMIdx, err = parseIntRange(par.psmFilter, 0, math.MaxInt32)
	if err != nil {
		return fmt.Errorf("invalid value for parameter 'psms': %w", err)
	}
	par.minRT, par.maxRT, err = parseFloat64Range(par.timeFilter, -math.MaxFloat64, math.MaxFloat64)
	if err != nil {
		return fmt.Errorf("invalid value for parameter 'time': %w", err)
	}
	return nil
}

// spectrumPath finds the spectrum file of an identification. The
// location in the mzid file is tried as given and relative to the mzid
// file. Without a usable location, the mzML file next to the mzid file
// is used.
func spectrumPath(ident mzidentml.Identification, par *params) string {
	if par.mzMLFilename != "" {
		return par.mzMLFilename
	}
	dir := filepath.Dir(par.mzIdentMlFilename)
	if loc := ident.SpectraLocation; loc != "" {
		if rawspec.Exists(loc) {
			return loc
		}
		if p := filepath.Join(dir, filepath.Base(loc)); rawspec.Exists(p) {
			return p
		}
	}
	extension := filepath.Ext(par.mzIdentMlFilename)
	return par.mzIdentMlFilename[0:len(par.mzIdentMlFilename)-len(extension)] + ".mzML"
}

func newPSM(ident mzidentml.Identification, par *params) quant.PSM {
	rt := -1.0
	if ident.RetentionTime >= 0 {
		rt = ident.RetentionTime / 60.0
	}
	return quant.PSM{
		Peptide: label.Peptide{
			Sequence: ident.PepSeq,
			Mods:     ident.ModMass,
		},
		Charge:        ident.Charge,
		SpectrumPath:  spectrumPath(ident, par),
		SpectrumID:    ident.SpecID,
		ScanIndex:     -1,
		RetentionTime: rt,
	}
}

// readFixed reads the records of an earlier run, keyed by PSM index
func readFixed(filename string) (map[int]report.Record, error) {
	fixed := make(map[int]report.Record)
	if filename == "" {
		return fixed, nil
	}
	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	run, err := report.ReadJSON(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	for _, rec := range run.Records {
		fixed[rec.Index] = rec
	}
	return fixed, nil
}

func runQuant(par *params) error {
	_, opts, table, err := loadConfig(par)
	if err != nil {
		return err
	}
	fixed, err := readFixed(par.fixedFilename)
	if err != nil {
		return err
	}

	t := time.Now()
	if par.verbosity == infoVerbose {
		fmt.Fprintf(os.Stderr, "Reading identifications from %s: ", par.mzIdentMlFilename)
	}
	mzIdentFile, err := os.Open(par.mzIdentMlFilename)
	if err != nil {
		return err
	}
	mzIdentML, err := mzidentml.Read(mzIdentFile)
	mzIdentFile.Close()
	if err != nil {
		return fmt.Errorf("mzidentml.Read: %w", err)
	}
	if par.verbosity == infoVerbose {
		fmt.Fprintf(os.Stderr, "%s\n", time.Since(t))
	}

	d, err := quant.NewDriver(table, opts, nil)
	if err != nil {
		return err
	}
	defer d.Close()
	curPSM := 0
	d.SetTrace(debugTrace(par.debugPSMs, mzIdentML.NumIdents(), &curPSM))

	run := report.NewRun(progVersion, par.mzIdentMlFilename)
	var db *report.SQLiteWriter
	if par.sqliteFilename != "" {
		if db, err = report.NewSQLiteWriter(par.sqliteFilename, run); err != nil {
			return err
		}
	}

	t = time.Now()
	if par.verbosity == infoVerbose {
		fmt.Fprintf(os.Stderr, "Quantifying %d identifications: ", mzIdentML.NumIdents())
	}
	counts := map[quant.Status]int{}
	maxIdx := par.maxPSMIdx
	if maxIdx > mzIdentML.NumIdents()-1 {
		maxIdx = mzIdentML.NumIdents() - 1
	}
	for i := par.minPSMIdx; i <= maxIdx; i++ {
		ident, err := mzIdentML.Ident(i)
		if err != nil {
			if par.verbosity != infoSilent {
				log.Printf("PSM %d: %v", i, err)
			}
			continue
		}
		psm := newPSM(ident, par)
		// PSMs without retention time are never filtered out
		if psm.RetentionTime >= 0 &&
			(psm.RetentionTime < par.minRT || psm.RetentionTime > par.maxRT) {
			continue
		}
		session := &quant.Session{}
		if rec, ok := fixed[i]; ok {
			fr, err := rec.FixedRange()
			if err != nil {
				if db != nil {
					db.Close()
				}
				return fmt.Errorf("%s: %w", par.fixedFilename, err)
			}
			session.Fix(fr)
		}
		curPSM = i
		res, err := d.Quantify(session, psm)
		if err != nil {
			if db != nil {
				db.Close()
			}
			return fmt.Errorf("PSM %d (%s): %w", i, psm.Peptide.Sequence, err)
		}
		if res.Err != nil && par.verbosity != infoSilent {
			log.Printf("PSM %d (%s): %v", i, psm.Peptide.Sequence, res.Err)
		}
		debugLogResult(par.debugPSMs, mzIdentML.NumIdents(), i, res)
		counts[res.Status]++

		rec := report.NewRecord(i, psm, res)
		run.Records = append(run.Records, rec)
		if db != nil {
			if err := db.Write(rec); err != nil {
				db.Close()
				return err
			}
		}
	}
	if par.verbosity == infoVerbose {
		fmt.Fprintf(os.Stderr, "%s\n", time.Since(t))
		for _, s := range []quant.Status{quant.Quantified, quant.LightMissing,
			quant.HeavyMissing, quant.Undetermined} {
			fmt.Fprintf(os.Stderr, "  %s: %d\n", s, counts[s])
		}
	}

	if db != nil {
		if err := db.Close(); err != nil {
			return err
		}
	}
	return report.WriteJSONFile(par.outFilename, run)
}

func runLabels(par *params) error {
	cfg, _, table, err := loadConfig(par)
	if err != nil {
		return err
	}
	fmt.Printf("scheme: %s, masses: %s\n", cfg.Scheme, cfg.Masses)
	for _, site := range table.Sites() {
		p, _ := table.Pair(site)
		fmt.Printf("  %c light:%f heavy:%f difference:%f\n",
			site, p.Light, p.Heavy, p.Heavy-p.Light)
	}
	return nil
}

func newRootCmd() *cobra.Command {
	var par params

	rootCmd := &cobra.Command{
		Use:   progName,
		Short: "Relative quantitation of isotope labeled peptides",
		Long: `asapquant measures light:heavy abundance ratios of isotope labeled
peptide pairs from LC-MS data, using the peptide identifications in an
mzIdentML file and the spectra in the accompanying mzML file.`,
		Version:       progVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&par.configFilename, "config", "",
		"YAML configuration `filename` with label masses and quantitation options")

	quantCmd := &cobra.Command{
		Use:   "quant [flags] <mzIdentMLfile>",
		Short: "Quantify all identifications in an mzIdentML file",
		Long: `Quantify all identifications in an mzIdentML file.

Examples:
  # Quantify yeast.mzid using the spectra in yeast.mzML, write yeast-asap.json
  asapquant quant --config silac.yaml yeast.mzid

  # Also write an SQLite database, use only the identified charge
  asapquant quant --config silac.yaml --sqlite yeast.sqlite --charges observed yeast.mzid

  # Integrate the peak windows of an earlier run again, e.g. after editing them
  asapquant quant --config silac.yaml --fixed yeast-asap-edited.json yeast.mzid

ENVIRONMENT VARIABLES:
  When ASAPQUANT_DEBUG=1, the chromatograms and peak windows of all PSMs are
  printed, as with --debug :`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := sanatizeParams(&par, args); err != nil {
				return err
			}
			return runQuant(&par)
		},
	}
	f := quantCmd.Flags()
	f.StringVar(&par.mzMLFilename, "mzml", "", "mzML `filename` (default: from the mzIdentML file)")
	f.StringVarP(&par.outFilename, "out", "o", "", "`filename` of JSON output (default: <mzid base>-asap.json)")
	f.StringVar(&par.sqliteFilename, "sqlite", "", "`filename` of SQLite output")
	f.StringVar(&par.fixedFilename, "fixed", "", "JSON output `filename` of an earlier run whose peak windows are integrated again")
	f.StringVar(&par.psmFilter, "psms", "", "`range` of PSM indices to quantify (e.g. 1000:2000). Default is all")
	f.StringVar(&par.timeFilter, "time", "", "retention time `range` (minutes) of PSMs to quantify (e.g. 20:80). Default is all")
	f.BoolVarP(&par.verbose, "verbose", "v", false, "print progress information")
	f.BoolVarP(&par.quiet, "quiet", "q", false, "don't report PSMs that could not be quantified")
	f.StringVar(&par.debugPSMs, "debug", "", "print debug output for given PSM `range` e.g. 3:6")

	o := &par.overrides
	f.IntVar(&o.Isotopes, "isotopes", 0, "number of isotope peaks per chromatogram")
	f.Float64Var(&o.MzTolerance, "mztol", 0, "m/z tolerance (Th)")
	f.Float64Var(&o.TimeWindow, "time-window", 0, "minutes on each side of the identification to extract")
	f.StringVar(&o.Smoothing, "smoothing", "", "smoothing method: local or wavelet")
	f.StringVar(&o.Charges, "charges", "", "charges to quantify: all or observed")
	f.StringVar(&o.AreaMode, "area", "", "peak area: average, raw or fit")
	f.StringVar(&o.Elution, "elution", "", "elution order: same, heavy-first or light-first")
	f.BoolVar(&o.ZeroBackground, "zero-background", false, "assume zero background")
	f.BoolVar(&o.QuantHighBackground, "quant-high-background", false, "quantify peaks on high background")

	labelsCmd := &cobra.Command{
		Use:   "labels",
		Short: "Print the label table of a configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLabels(&par)
		},
	}

	rootCmd.AddCommand(quantCmd, labelsCmd)
	return rootCmd
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	if err := newRootCmd().Execute(); err != nil {
		log.Fatalf("%s: %v", progName, err)
	}
}
