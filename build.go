// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/524D/mzamt/internal/amt"
	"github.com/524D/mzamt/internal/mzidentml"
	"github.com/524D/mzamt/internal/mzml"
	"github.com/524D/mzamt/internal/pipeline"
	"github.com/524D/mzamt/internal/store"
)

type buildParams struct {
	out         string   // Output database
	appendTo    string   // Existing database to add the runs to
	scoreFilter string   // Filter for identifications, see parseScoreFilter
	qualityCV   string   // CV term of the identification probability
	minProb     float64  // Minimum identification probability
	mzMLFiles   []string // Spectra files with retention times, one per mzIdentML file
}

var buildPar buildParams

var buildCmd = &cobra.Command{
	Use:   "build -o db.sqlite [flags] run1.mzid [run2.mzid ...]",
	Short: "Build a database from mzIdentML identifications",
	Long: `Build adds one run per mzIdentML file to the database. The elution time
of every run is mapped onto hydrophobicity by fitting the times of the
identified peptides against their hydrophobicity: the median observed
hydrophobicity when the peptide is already in the database, and the
predicted hydrophobicity otherwise.

Retention times are taken from the mzIdentML file. When it has none, pass
the spectra files with --mzml, in the same order as the mzIdentML files.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBuild,
}

func init() {
	f := buildCmd.Flags()
	f.StringVarP(&buildPar.out, "output", "o", "", "Output database `file`")
	f.StringVar(&buildPar.appendTo, "db", "",
		"Existing database `file` to add the runs to")
	f.StringVar(&buildPar.scoreFilter, "scorefilter", defaultScoreFilter,
		`Filter for PSM scores to accept. Format:
<CVterm1|scorename1>(<minscore1>:<maxscore1>)...
When <minscore> or <maxscore> are omitted, there is no threshold on that side.
The first score of an identification that matches the filter decides.`)
	f.StringVar(&buildPar.qualityCV, "quality", "MS:1002357",
		"CV term (accession or name) of the identification probability")
	f.Float64Var(&buildPar.minProb, "min-prob", 0,
		"Minimum identification probability")
	f.BoolVar(&par.IgnoreUnknown, "ignore-unknown-mods", false,
		"Skip residue modifications that are not declared for the run")
	f.StringSliceVar(&buildPar.mzMLFiles, "mzml", nil,
		"Spectra `files` to take retention times from, comma separated")
	buildCmd.MarkFlagRequired("output")
	rootCmd.AddCommand(buildCmd)
}

func runBuild(cmd *cobra.Command, args []string) error {
	if len(buildPar.mzMLFiles) > 0 && len(buildPar.mzMLFiles) != len(args) {
		return fmt.Errorf("%d mzML files for %d mzIdentML files",
			len(buildPar.mzMLFiles), len(args))
	}
	sf, err := parseScoreFilter(buildPar.scoreFilter)
	if err != nil {
		return err
	}

	db := amt.NewDatabase()
	if buildPar.appendTo != "" {
		done := stage("Reading database %s", buildPar.appendTo)
		db, err = store.Load(buildPar.appendTo)
		done()
		if err != nil {
			return err
		}
	}

	for i, identFile := range args {
		mzMLFile := ""
		if len(buildPar.mzMLFiles) > 0 {
			mzMLFile = buildPar.mzMLFiles[i]
		}
		r, err := buildRun(cmd, db, sf, identFile, mzMLFile)
		if err != nil {
			return fmt.Errorf("%s: %w", identFile, err)
		}
		log.Infof("%s: run %d, H = %.4g + %.4g t", filepath.Base(identFile),
			r.Seq, r.Coefficients[0], r.Coefficients[1])
	}

	done := stage("Writing database %s", buildPar.out)
	defer done()
	return store.Save(buildPar.out, db)
}

// buildRun reads one mzIdentML file (and optionally its spectra) and adds
// it to db as a new run
func buildRun(cmd *cobra.Command, db *amt.Database, sf scoreFilter,
	identFile, mzMLFile string) (*amt.Run, error) {
	done := stage("Reading %s", identFile)
	mzIdent, err := readMzIdentML(identFile)
	done()
	if err != nil {
		return nil, err
	}

	var timeOfSpec func(string) (float64, error)
	if mzMLFile != "" {
		done := stage("Reading %s", mzMLFile)
		mzML, err := readMzML(mzMLFile)
		done()
		if err != nil {
			return nil, err
		}
		timeOfSpec = func(specID string) (float64, error) {
			if t, err := mzML.RetentionTimeOfID(specID); err == nil {
				return t, nil
			}
			if idx, ok := mzidentml.ScanIndex(specID); ok {
				return mzML.RetentionTime(idx)
			}
			return 0, fmt.Errorf("spectrum %q: %w", specID, mzml.ErrInvalidScanID)
		}
	}

	var filterErr error
	keep := func(ident *mzidentml.Identification) bool {
		if ident.Rank > 1 {
			return false
		}
		ok, err := sf.accept(ident)
		if err != nil && filterErr == nil {
			filterErr = err
		}
		if !ok {
			return false
		}
		if buildPar.minProb > 0 {
			q, found := identQuality(ident, buildPar.qualityCV)
			return found && q >= buildPar.minProb
		}
		return true
	}
	quality := func(ident *mzidentml.Identification) float64 {
		q, _ := identQuality(ident, buildPar.qualityCV)
		return q
	}

	var catalog amt.ModCatalog
	r := mzIdent.Run(&catalog)
	r.IdentificationFile = identFile
	r.SpectraFile = mzMLFile
	r.TimeAnalyzed = time.Now().UTC()

	ids, err := mzIdent.Identifications(keep, quality, timeOfSpec)
	if err != nil {
		return nil, err
	}
	if filterErr != nil {
		return nil, filterErr
	}
	log.Debugf("%d of %d identifications accepted", len(ids), mzIdent.NumIdents())

	done = stage("Mapping %d identifications", len(ids))
	defer done()
	return pipeline.Build(cmd.Context(), service(), db, r, &catalog, ids, par)
}

// identQuality returns the identification probability from the CV term
// with the given accession or name. Without it the quality is 1.
func identQuality(ident *mzidentml.Identification, cv string) (float64, bool) {
	if q, ok := ident.Score(cv); ok {
		return q, true
	}
	for _, c := range ident.Cv {
		if c.Name == cv {
			if q, ok := ident.Score(c.Accession); ok {
				return q, true
			}
		}
	}
	return 1, false
}

func readMzIdentML(filename string) (mzidentml.MzIdentML, error) {
	f, err := os.Open(filename)
	if err != nil {
		return mzidentml.MzIdentML{}, err
	}
	defer f.Close()
	return mzidentml.Read(f)
}

func readMzML(filename string) (mzml.MzML, error) {
	f, err := os.Open(filename)
	if err != nil {
		return mzml.MzML{}, err
	}
	defer f.Close()
	return mzml.Read(f)
}
