// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/524D/mzamt/internal/mzidentml"
	"github.com/524D/mzamt/internal/pipeline"
	"github.com/524D/mzamt/internal/regress"
)

// Program name and version
const progName = "mzAMT"

var progVersion = `Unknown`

// Format of JSON output, if it ever changes we should still be able to
// parse output from old versions
const outputFormatVersion = "1.0"

const (
	infoDefault = iota
	infoSilent
	infoVerbose
)

// Global command line parameters
type globalParams struct {
	paramsFile string        // JSON file with pipeline parameters
	verbose    bool          // Print more verbose progress information
	quiet      bool          // Don't print any output except for errors
	timeout    time.Duration // Timeout of a single regression
	verbosity  int           // Verbosity of progress messages (infoDefault...)
}

var (
	glob globalParams
	par  = pipeline.DefaultParams()
)

// Flags that are bound to fields of par, and override the parameter file
var paramFlags = map[string]bool{
	"matcher":             true,
	"ignore-unknown-mods": true,
	"max-entries":         true,
	"max-runs":            true,
}

var ErrRangeSpec = errors.New("invalid range specified")

type scoreRange struct {
	minScore float64 // Minimum score to accept
	maxScore float64 // Maximum score to accept
	priority int     // Priority of the score, lowest is best
}

type scoreFilter map[string]scoreRange

// Default score filter, reasonable values for some common search engines
// and post-search scoring software
const defaultScoreFilter = "MS:1002257(0.0:1e-2)MS:1001330(0.0:1e-2)MS:1001159(0.0:1e-2)MS:1002466(0.99:)"

var rootCmd = &cobra.Command{
	Use:   "mzamt",
	Short: "Accurate mass and time database for LC-MS peptide identification",
	Long: `mzamt builds an accurate mass and time (AMT) database from peptide
identifications in mzIdentML files, and identifies the features of new
LC-MS runs by matching their mass and hydrophobicity against it.

Elution times of every run are mapped onto a common hydrophobicity scale,
so runs from different chromatographic setups can be combined. Matches get
a probability from a mixture model of their mass and hydrophobicity errors.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
}

func init() {
	rootCmd.Version = progVersion
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&glob.paramsFile, "params", "",
		"JSON `file` with parameters, applied before command line flags")
	pf.BoolVar(&glob.verbose, "verbose", false,
		`Print more verbose progress information`)
	pf.BoolVar(&glob.quiet, "quiet", false,
		`Don't print any output except for errors`)
	pf.DurationVar(&glob.timeout, "timeout", regress.DefaultTimeout,
		`Timeout of a single regression or mixture fit`)
}

// setup sets the log level and reads the parameter file. Flags given on
// the command line override the file.
func setup(cmd *cobra.Command, args []string) error {
	log.SetOutput(os.Stderr)
	log.SetLevel(log.InfoLevel)
	if glob.verbose {
		glob.verbosity = infoVerbose
		log.SetLevel(log.DebugLevel)
	}
	if glob.quiet {
		glob.verbosity = infoSilent
		log.SetLevel(log.ErrorLevel)
	}
	if glob.paramsFile == "" {
		return nil
	}

	set := make(map[string]string)
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if paramFlags[f.Name] {
			set[f.Name] = f.Value.String()
		}
	})
	if err := readParams(glob.paramsFile, &par); err != nil {
		return err
	}
	for name, v := range set {
		if err := cmd.Flags().Set(name, v); err != nil {
			return err
		}
	}
	return nil
}

func readParams(filename string, p *pipeline.Params) error {
	f, err := os.Open(filename)
	if err != nil {
		return err
	}
	defer f.Close()
	d := json.NewDecoder(f)
	d.DisallowUnknownFields()
	if err := d.Decode(p); err != nil {
		return fmt.Errorf("parameter file %s: %w", filename, err)
	}
	return nil
}

// service returns the regression service with the configured timeout
func service() regress.Service {
	return regress.NewLocal(glob.timeout)
}

// stage prints a progress message in verbose mode. The returned function
// prints the time elapsed since.
func stage(format string, a ...any) func() {
	if glob.verbosity != infoVerbose {
		return func() {}
	}
	fmt.Fprintf(os.Stderr, format+": ", a...)
	t := time.Now()
	return func() {
		fmt.Fprintf(os.Stderr, "%s\n", time.Since(t))
	}
}

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

func parseScoreFilter(scoreFilterStr string) (scoreFilter, error) {
	scoreFilt := make(scoreFilter)

	re := regexp.MustCompile(`([^\(]+)\(([^\)]*)\)`)
	matchedStringsList := re.FindAllStringSubmatch(scoreFilterStr, -1)
	for n, matchedStrings := range matchedStringsList {

		scoreName := matchedStrings[1]
		scoreRangeStr := matchedStrings[2]
		_, ok := scoreFilt[scoreName]
		if ok {
			return nil, errors.New(scoreName + ` defined more than once.`)
		}
		minScore, maxScore, err := parseFloat64Range(scoreRangeStr,
			-math.MaxFloat64, math.MaxFloat64)

		if err != nil {
			return nil, errors.New(`Invalid range for score ` + scoreName)
		}
		scRange := scoreRange{minScore: minScore, maxScore: maxScore, priority: n}
		scoreFilt[scoreName] = scRange
	}

	return scoreFilt, nil
}

// accept reports whether the score of ident with the highest priority in
// the filter is in range. Identifications without any filtered score are
// rejected.
func (sf scoreFilter) accept(ident *mzidentml.Identification) (bool, error) {
	scoreOK := false
	curPrio := math.MaxInt32
	for _, cv := range ident.Cv {
		// Check if the CV accession number or CV name matches scorefilter
		filt, ok := sf[cv.Accession]
		if !ok {
			filt, ok = sf[cv.Name]
		}
		if ok && filt.priority < curPrio {
			score, err := strconv.ParseFloat(cv.Value, 64)
			if err != nil {
				return false, errors.New("Invalid score value " + cv.Value)
			}
			curPrio = filt.priority
			scoreOK = score >= filt.minScore && score <= filt.maxScore
		}
	}
	return scoreOK, nil
}

// withoutExt returns filename without its extension
func withoutExt(filename string) string {
	return filename[0 : len(filename)-len(filepath.Ext(filename))]
}

func main() {
	if progVersion == `Unknown` {
		rootCmd.Version = `Unknown
Please build this program with -ldflags "-X main.progVersion=$(git describe --tags)"
so that the git version is shown here.`
	}
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
