// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/524D/mzamt/internal/align"
	"github.com/524D/mzamt/internal/feature"
	"github.com/524D/mzamt/internal/matcher"
	"github.com/524D/mzamt/internal/pipeline"
	"github.com/524D/mzamt/internal/plots"
	"github.com/524D/mzamt/internal/prob"
	"github.com/524D/mzamt/internal/store"
)

type matchParams struct {
	db            string   // Database to match against
	mzMLFiles     []string // Spectra files with retention times, one per feature file
	out           string   // JSON output file
	foldIn        bool     // Add the matched runs to the database
	charts        string   // Directory for SVG charts
	massUnit      string   // ppm or Da
	massWindow    string   // Match window of the mass error
	elutionWindow string   // Match window of the elution error
	seed          uint64   // Random seed for validation
}

var matchPar matchParams

var matchCmd = &cobra.Command{
	Use:   "match --db db.sqlite [flags] run1.json|run1.mzML ...",
	Short: "Identify the features of runs by matching against a database",
	Long: `Match maps the elution times of every run onto the hydrophobicity scale
of the database, matches its features against the database peptides and a
mass-shifted decoy copy, and assigns each match a probability.

Features are read from JSON feature files, or from the precursors of the
MS/MS spectra of mzML files. JSON features without elution time get it from
the spectra file given with --mzml.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMatch,
}

var validateCmd = &cobra.Command{
	Use:   "validate --db db.sqlite [flags] run.json|run.mzML",
	Short: "Compare the model FDR with a target/decoy split of the database",
	Long: `Validate maps the run onto the database, then splits the database
peptides at random into targets and decoys. The decoy peptides are mass
shifted, and the number of decoy matches above every probability threshold
gives an FDR estimate to compare with the FDR of the probability model.`,
	Args: cobra.ExactArgs(1),
	RunE: runValidate,
}

func init() {
	for _, c := range []*cobra.Command{matchCmd, validateCmd} {
		f := c.Flags()
		f.StringVar(&matchPar.db, "db", "", "Database `file`")
		f.StringSliceVar(&matchPar.mzMLFiles, "mzml", nil,
			"Spectra `files` to take elution times from, comma separated")
		f.StringVar(&par.Matcher, "matcher", par.Matcher,
			"Matcher: "+strings.Join(matcher.Names(), ", "))
		f.StringVar(&matchPar.massUnit, "mass-unit", "ppm",
			"Unit of the mass window, ppm or Da")
		f.StringVar(&matchPar.massWindow, "mass-window", "-10:10",
			"Mass error `range` of a match")
		f.StringVar(&matchPar.elutionWindow, "elution-window", "-0.15:0.15",
			"Hydrophobicity error `range` of a match")
		c.MarkFlagRequired("db")
		rootCmd.AddCommand(c)
	}

	f := matchCmd.Flags()
	f.StringVarP(&matchPar.out, "output", "o", "",
		"JSON output `file`, default <first input>-amt.json")
	f.BoolVar(&matchPar.foldIn, "fold-in", false,
		"Add the accepted matches of every run to the database")
	f.StringVar(&matchPar.charts, "charts", "",
		"Write SVG charts of every run to `directory`")
	f.StringVar(&debugFeatures, "debug", "",
		"Print debug output for given feature `range` e.g. 3:6")

	validateCmd.Flags().Uint64Var(&matchPar.seed, "seed", 1,
		"Random seed of the target/decoy split")
}

// matchWindow sets the match parameters from the window flags that were
// given on the command line
func matchWindow(cmd *cobra.Command, p *matcher.Params) error {
	switch strings.ToLower(matchPar.massUnit) {
	case "ppm":
		p.MassUnit = matcher.PPM
	case "da", "dalton":
		p.MassUnit = matcher.Dalton
	default:
		return fmt.Errorf("invalid mass unit %s", matchPar.massUnit)
	}
	window := func(r string) (float64, float64, error) {
		lo, hi, err := parseFloat64Range(r, -math.MaxFloat64, math.MaxFloat64)
		if err == nil && (lo == -math.MaxFloat64 || hi == math.MaxFloat64) {
			err = ErrRangeSpec
		}
		return lo, hi, err
	}
	var err error
	if cmd.Flags().Changed("mass-window") {
		if p.MinMass, p.MaxMass, err = window(matchPar.massWindow); err != nil {
			return fmt.Errorf("mass window: %w", err)
		}
	}
	if cmd.Flags().Changed("elution-window") {
		if p.MinElution, p.MaxElution, err = window(matchPar.elutionWindow); err != nil {
			return fmt.Errorf("elution window: %w", err)
		}
	}
	return nil
}

// readFeatures reads the features of a run from a JSON feature file or
// from the precursors of an mzML file. When mzMLFile is given, features
// without elution time get it from their scan.
func readFeatures(filename, mzMLFile string) (*feature.Set, error) {
	if strings.EqualFold(filepath.Ext(filename), ".mzML") {
		mzML, err := readMzML(filename)
		if err != nil {
			return nil, err
		}
		fs, err := mzML.Features()
		if err != nil {
			return nil, err
		}
		return &feature.Set{Run: mzML.RunID(), SpectraFile: filename, Features: fs}, nil
	}

	f, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	set, err := feature.Read(f)
	if err != nil {
		return nil, err
	}
	if mzMLFile != "" {
		mzML, err := readMzML(mzMLFile)
		if err != nil {
			return nil, err
		}
		if err := feature.PopulateTimes(set.Features, mzML.RetentionTime); err != nil {
			return nil, err
		}
		set.SpectraFile = mzMLFile
	}
	if set.Run == "" {
		set.Run = withoutExt(filepath.Base(filename))
	}
	return set, nil
}

func readRuns(args []string) ([]pipeline.RunInput, []*feature.Set, error) {
	if len(matchPar.mzMLFiles) > 0 && len(matchPar.mzMLFiles) != len(args) {
		return nil, nil, fmt.Errorf("%d mzML files for %d feature files",
			len(matchPar.mzMLFiles), len(args))
	}
	var runs []pipeline.RunInput
	var sets []*feature.Set
	for i, filename := range args {
		mzMLFile := ""
		if len(matchPar.mzMLFiles) > 0 {
			mzMLFile = matchPar.mzMLFiles[i]
		}
		done := stage("Reading %s", filename)
		set, err := readFeatures(filename, mzMLFile)
		done()
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", filename, err)
		}
		runs = append(runs, pipeline.RunInput{Name: set.Run, Features: set.Features})
		sets = append(sets, set)
	}
	return runs, sets, nil
}

// JSON output of the match command
type matchOutput struct {
	Format  string      `json:"format"`
	Program string      `json:"program"`
	Version string      `json:"version"`
	DB      string      `json:"db"`
	Params  any         `json:"params"`
	Runs    []runOutput `json:"runs"`
}

type runOutput struct {
	Name         string          `json:"name"`
	Skipped      string          `json:"skipped,omitempty"`
	Coefficients []float64       `json:"coefficients,omitempty"`
	Fit          *fitOutput      `json:"fit,omitempty"`
	Features     []matchedOutput `json:"features,omitempty"`
}

type fitOutput struct {
	Proportion float64 `json:"proportion"`
	MuMass     float64 `json:"muMass"`
	MuElution  float64 `json:"muElution"`
	SigMass    float64 `json:"sigmaMass"`
	SigElution float64 `json:"sigmaElution"`
	Converged  bool    `json:"converged"`
	Iterations int     `json:"iterations"`
}

type matchedOutput struct {
	ID               int     `json:"id"`
	Mass             float64 `json:"mass"`
	Time             float64 `json:"time"`
	Hydrophobicity   float64 `json:"hydrophobicity"`
	Peptide          string  `json:"peptide"`
	ModifiedSequence string  `json:"modifiedSequence"`
	MassError        float64 `json:"massError"`
	ElutionError     float64 `json:"elutionError"`
	Probability      float64 `json:"probability"`
	FDR              float64 `json:"fdr"`
	Confidence       float64 `json:"confidence"`
	Accepted         bool    `json:"accepted"`
	Reason           string  `json:"reason,omitempty"`
}

func newRunOutput(o pipeline.Outcome) runOutput {
	ro := runOutput{Name: o.Name}
	if o.Skipped() {
		ro.Skipped = o.Err.Error()
		return ro
	}
	rr := o.Result
	ro.Coefficients = rr.Mapping.Coefficients
	if fit := rr.Assignment.Fit; fit != nil {
		ro.Fit = &fitOutput{
			Proportion: fit.Proportion,
			MuMass:     fit.MuX,
			MuElution:  fit.MuY,
			SigMass:    fit.SigmaX,
			SigElution: fit.SigmaY,
			Converged:  fit.Converged,
			Iterations: fit.Iterations,
		}
	}
	for _, r := range rr.Resolutions {
		ro.Features = append(ro.Features, matchedOutput{
			ID:               r.Master.ID,
			Mass:             r.Master.Mass,
			Time:             r.Master.Time,
			Hydrophobicity:   r.Master.Hydrophobicity,
			Peptide:          r.Peptide(),
			ModifiedSequence: r.Best.Slave.ModifiedSequence,
			MassError:        r.Best.MassError,
			ElutionError:     r.Best.ElutionError,
			Probability:      r.Best.Probability,
			FDR:              r.Best.FDR,
			Confidence:       r.Confidence,
			Accepted:         r.Accepted,
			Reason:           r.Reason,
		})
	}
	return ro
}

func runMatch(cmd *cobra.Command, args []string) error {
	if err := matchWindow(cmd, &par.Match); err != nil {
		return err
	}
	done := stage("Reading database %s", matchPar.db)
	db, err := store.Load(matchPar.db)
	done()
	if err != nil {
		return err
	}
	runs, sets, err := readRuns(args)
	if err != nil {
		return err
	}

	outcomes, err := pipeline.MatchAll(cmd.Context(), service(), runs, db, par)
	if err != nil {
		return err
	}

	out := matchOutput{
		Format:  outputFormatVersion,
		Program: progName,
		Version: progVersion,
		DB:      matchPar.db,
		Params:  par,
	}
	for _, o := range outcomes {
		out.Runs = append(out.Runs, newRunOutput(o))
		if o.Skipped() {
			continue
		}
		debugLogMatches(o.Name, o.Result, par.Match)
		if matchPar.charts != "" {
			if err := writeCharts(matchPar.charts, o.Name, o.Result); err != nil {
				return err
			}
		}
	}

	outFile := matchPar.out
	if outFile == "" {
		outFile = withoutExt(args[0]) + "-amt.json"
	}
	if err := writeMatches(outFile, &out); err != nil {
		return err
	}
	if !matchPar.foldIn {
		return nil
	}

	// A run that cannot be added leaves the database unchanged
	folded := 0
	for i, o := range outcomes {
		if o.Skipped() {
			continue
		}
		r, err := pipeline.FoldIn(db, o.Result, sets[i].SpectraFile)
		if err != nil {
			log.Warnf("%s: not added to the database: %v", o.Name, err)
			continue
		}
		log.Infof("%s: added as run %d", o.Name, r.Seq)
		folded++
	}
	if folded == 0 {
		return nil
	}
	done = stage("Writing database %s", matchPar.db)
	defer done()
	return store.Save(matchPar.db, db)
}

func writeMatches(filename string, out *matchOutput) error {
	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func writeCharts(dir, name string, rr *pipeline.RunResult) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	base := filepath.Join(dir, name)

	f, err := os.Create(base + "-mapping.svg")
	if err != nil {
		return err
	}
	err = plots.TimeHydrophobicity(f, name, rr.Mapping.Times, rr.Mapping.H, rr.Mapping.Coefficients)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil && !errors.Is(err, plots.ErrNoData) {
		return err
	}

	var massErr, elutionErr []float64
	var accepted []bool
	for _, r := range rr.Resolutions {
		massErr = append(massErr, r.Best.MassError)
		elutionErr = append(elutionErr, r.Best.ElutionError)
		accepted = append(accepted, r.Accepted)
	}
	f, err = os.Create(base + "-errors.svg")
	if err != nil {
		return err
	}
	err = plots.MatchErrors(f, name, rr.Target.Params.MassUnit.String(), massErr, elutionErr, accepted)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if errors.Is(err, plots.ErrNoData) {
		log.Warnf("%s: no matches to chart", name)
		return nil
	}
	return err
}

func runValidate(cmd *cobra.Command, args []string) error {
	if err := matchWindow(cmd, &par.Match); err != nil {
		return err
	}
	db, err := store.Load(matchPar.db)
	if err != nil {
		return err
	}
	runs, _, err := readRuns(args)
	if err != nil {
		return err
	}
	fs := runs[0].Features

	ctx := cmd.Context()
	done := stage("Mapping %d features", len(fs))
	m, err := align.MapRun(ctx, service(), fs, db, par.Align)
	done()
	if err != nil {
		return err
	}
	log.Infof("%s: mapping coefficients %.4g", runs[0].Name, m.Coefficients)
	entries := matcher.Generate(db, matcher.DatabaseModSet(db))
	rng := rand.New(rand.NewPCG(matchPar.seed, matchPar.seed))
	v, err := prob.Validate(ctx, service(), fs, entries, par.Match, par.Prob, rng)
	if err != nil {
		return err
	}
	fmt.Printf("Target peptides: %d, decoy peptides: %d\n", v.TargetPeptides, v.DecoyPeptides)
	fmt.Printf("%10s %8s %8s %12s %10s\n", "threshold", "targets", "decoys", "decoyFDR", "modelFDR")
	for _, pt := range v.Points {
		fmt.Printf("%10.4f %8d %8d %12.4f %10.4f\n",
			pt.Threshold, pt.Targets, pt.Decoys, pt.EmpiricalFDR, pt.ModelFDR)
	}
	return nil
}
