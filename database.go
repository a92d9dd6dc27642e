// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package main

import (
	"fmt"
	"io"
	"sort"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/524D/mzamt/internal/align"
	"github.com/524D/mzamt/internal/amt"
	"github.com/524D/mzamt/internal/feature"
	"github.com/524D/mzamt/internal/store"
)

type dbParams struct {
	out      string // Output database
	db       string // Input database
	override bool   // Merge: entries of later databases replace earlier ones
	by       string // Reduce: mass or peptide overlap
	features string // Reduce: feature file of the target run
	mzid     string // Reduce: identifications of the target run
}

var dbPar dbParams

var mergeCmd = &cobra.Command{
	Use:   "merge -o out.sqlite [--override] a.sqlite b.sqlite ...",
	Short: "Merge databases",
	Long: `Merge combines the runs and observations of several databases. With
--override, a peptide present in a later database replaces all observations
of that peptide from the earlier ones.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runMerge,
}

var alignCmd = &cobra.Command{
	Use:   "align --db db.sqlite [-o out.sqlite]",
	Short: "Re-derive the mapping of every run from the rest of the database",
	Long: `Align fits the elution times of the peptides of every run against
their median hydrophobicity in the other runs, and recomputes the observed
hydrophobicity of the run. Runs that share too few peptides keep their
mapping.`,
	Args: cobra.NoArgs,
	RunE: runAlign,
}

var reduceCmd = &cobra.Command{
	Use:   "reduce --db db.sqlite (--features run.json | --mzid run.mzid) -o out.sqlite",
	Short: "Select the runs of a database that best cover a target run",
	Long: `Reduce ranks the runs of the database by their overlap with a target
run and copies the best runs into a new database, until the entry or run
limit is reached. With --by mass the overlap is the fraction of target
features whose mass is observed in the run; with --by peptide it is the
fraction of peptides identified in the target that the run observed.`,
	Args: cobra.NoArgs,
	RunE: runReduce,
}

var summarizeCmd = &cobra.Command{
	Use:   "summarize db.sqlite",
	Short: "Print a summary of a database",
	Args:  cobra.ExactArgs(1),
	RunE:  runSummarize,
}

func init() {
	f := mergeCmd.Flags()
	f.StringVarP(&dbPar.out, "output", "o", "", "Output database `file`")
	f.BoolVar(&dbPar.override, "override", false,
		"Peptides of later databases replace those of earlier ones")
	mergeCmd.MarkFlagRequired("output")

	f = alignCmd.Flags()
	f.StringVar(&dbPar.db, "db", "", "Database `file`")
	f.StringVarP(&dbPar.out, "output", "o", "", "Output database `file`, default overwrites --db")
	alignCmd.MarkFlagRequired("db")

	f = reduceCmd.Flags()
	f.StringVar(&dbPar.db, "db", "", "Database `file`")
	f.StringVarP(&dbPar.out, "output", "o", "", "Output database `file`")
	f.StringVar(&dbPar.by, "by", "mass", "Overlap measure, mass or peptide")
	f.StringVar(&dbPar.features, "features", "", "Features of the target run (JSON or mzML)")
	f.StringVar(&dbPar.mzid, "mzid", "", "Identifications of the target run")
	f.IntVar(&par.Reduce.MaxEntries, "max-entries", par.Reduce.MaxEntries,
		"Maximum number of peptide entries, 0 for no limit")
	f.IntVar(&par.Reduce.MaxRuns, "max-runs", par.Reduce.MaxRuns,
		"Maximum number of runs, 0 for no limit")
	reduceCmd.MarkFlagRequired("db")
	reduceCmd.MarkFlagRequired("output")

	rootCmd.AddCommand(mergeCmd, alignCmd, reduceCmd, summarizeCmd)
}

func runMerge(cmd *cobra.Command, args []string) error {
	db, err := store.Load(args[0])
	if err != nil {
		return err
	}
	for _, filename := range args[1:] {
		done := stage("Merging %s", filename)
		other, err := store.Load(filename)
		if err != nil {
			done()
			return err
		}
		if dbPar.override {
			err = db.AddOrOverrideEntriesWithAnotherDatabase(other)
		} else {
			err = db.AddObservationsFromAnotherDatabase(other)
		}
		done()
		if err != nil {
			return fmt.Errorf("%s: %w", filename, err)
		}
	}
	log.Infof("Merged database: %d runs, %d peptides", db.NumRuns(), db.NumEntries())
	return store.Save(dbPar.out, db)
}

func runAlign(cmd *cobra.Command, args []string) error {
	db, err := store.Load(dbPar.db)
	if err != nil {
		return err
	}
	done := stage("Aligning %d runs", db.NumRuns())
	skipped, err := align.AlignDatabase(cmd.Context(), service(), db, par.Align)
	done()
	if err != nil {
		return err
	}
	if len(skipped) > 0 {
		log.Warnf("%d of %d runs kept their mapping", len(skipped), db.NumRuns())
	}
	out := dbPar.out
	if out == "" {
		out = dbPar.db
	}
	return store.Save(out, db)
}

func runReduce(cmd *cobra.Command, args []string) error {
	db, err := store.Load(dbPar.db)
	if err != nil {
		return err
	}

	var red *align.Reduction
	switch dbPar.by {
	case "mass":
		if dbPar.features == "" {
			return fmt.Errorf("reduce by mass needs --features")
		}
		set, err := readFeatures(dbPar.features, "")
		if err != nil {
			return err
		}
		red, err = align.ReduceByMassOverlap(db, feature.Masses(set.Features), par.Reduce)
		if err != nil {
			return err
		}
	case "peptide":
		if dbPar.mzid == "" {
			return fmt.Errorf("reduce by peptide needs --mzid")
		}
		peptides, err := identifiedPeptides(dbPar.mzid)
		if err != nil {
			return err
		}
		red, err = align.ReduceByPeptideOverlap(db, peptides, par.Reduce)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("invalid overlap measure %s", dbPar.by)
	}

	for i, seq := range red.Runs {
		log.Infof("Run %d: %.1f%% overlap", seq, red.Overlap[i])
	}
	log.Infof("Reduced database: %d runs, %d peptides", red.DB.NumRuns(), red.DB.NumEntries())
	return store.Save(dbPar.out, red.DB)
}

// identifiedPeptides returns the distinct peptides of the rank 1
// identifications in an mzIdentML file that pass the default score filter
func identifiedPeptides(filename string) ([]string, error) {
	mzIdent, err := readMzIdentML(filename)
	if err != nil {
		return nil, err
	}
	sf, err := parseScoreFilter(defaultScoreFilter)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var peptides []string
	for i := 0; i < mzIdent.NumIdents(); i++ {
		ident, err := mzIdent.Ident(i)
		if err != nil {
			return nil, err
		}
		if ident.Rank > 1 {
			continue
		}
		ok, err := sf.accept(&ident)
		if err != nil {
			return nil, err
		}
		if ok && !seen[ident.PepSeq] {
			seen[ident.PepSeq] = true
			peptides = append(peptides, ident.PepSeq)
		}
	}
	return peptides, nil
}

func runSummarize(cmd *cobra.Command, args []string) error {
	db, err := store.Load(args[0])
	if err != nil {
		return err
	}
	return summarize(cmd.OutOrStdout(), db)
}

func summarize(w io.Writer, db *amt.Database) error {
	fmt.Fprintf(w, "Database %s\n", db.ID)
	fmt.Fprintf(w, "Runs: %d, peptides: %d, modifications: %d\n",
		db.NumRuns(), db.NumEntries(), db.Mods().Len())

	for id, m := range db.Mods().All() {
		fmt.Fprintf(w, "  mod %d: %s\n", id, m)
	}
	for _, r := range db.Runs() {
		n := len(db.ObservationsForRun(r.Seq))
		fmt.Fprintf(w, "  run %d: %d observations, coefficients %.4g, %s\n",
			r.Seq, n, r.Coefficients, r.IdentificationFile)
	}

	states, obs := 0, 0
	var counts []int
	for _, e := range db.Entries() {
		states += len(e.States())
		obs += e.Stats().Count
		counts = append(counts, e.Stats().Count)
	}
	fmt.Fprintf(w, "Modification states: %d, observations: %d\n", states, obs)
	if len(counts) > 0 {
		sort.Ints(counts)
		fmt.Fprintf(w, "Observations per peptide: median %d, max %d\n",
			counts[len(counts)/2], counts[len(counts)-1])
	}
	return nil
}
