// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package align

import (
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/524D/mzamt/internal/amt"
)

// ReduceParams limits the size of a reduced database
type ReduceParams struct {
	MaxEntries    int     `json:"maxEntries"`    // 0 means no limit
	MaxRuns       int     `json:"maxRuns"`       // 0 means no limit
	Window        int     `json:"window"`        // runs in the true positive gain window
	MinWindowGain float64 `json:"minWindowGain"` // stop when the window adds no more than this
	MassTolerance float64 `json:"massTolerance"` // ppm, mass overlap only
}

// DefaultReduceParams returns the default reduction limits
func DefaultReduceParams() ReduceParams {
	return ReduceParams{
		MaxEntries:    50000,
		MaxRuns:       50,
		Window:        3,
		MinWindowGain: 0,
		MassTolerance: 10,
	}
}

// Reduction is the outcome of a database reduction
type Reduction struct {
	Runs    []int     // selected run seqs of the source database, in order
	Overlap []float64 // overlap percentage of each selected run
	DB      *amt.Database
}

type rankedRun struct {
	seq     int
	overlap float64
	covered []string // target peptides covered, peptide overlap only
}

// rank orders runs by descending overlap, lower seq first on ties
func rank(runs []rankedRun) {
	sort.SliceStable(runs, func(i, j int) bool {
		if runs[i].overlap != runs[j].overlap {
			return runs[i].overlap > runs[j].overlap
		}
		return runs[i].seq < runs[j].seq
	})
}

// ReduceByPeptideOverlap selects the runs that share most peptides with
// the target. Besides the entry and run ceilings, selection stops when the
// last Window runs together added no more than MinWindowGain target
// peptides; those runs are not kept.
func ReduceByPeptideOverlap(db *amt.Database, peptides []string, p ReduceParams) (*Reduction, error) {
	runs := make([]rankedRun, 0, db.NumRuns())
	for _, r := range db.Runs() {
		pct, covered := db.PeptideOverlap(r.Seq, peptides)
		runs = append(runs, rankedRun{seq: r.Seq, overlap: pct, covered: covered})
	}
	rank(runs)
	return greedy(db, runs, p, true)
}

// ReduceByMassOverlap selects the runs whose observed masses match most
// of the target masses
func ReduceByMassOverlap(db *amt.Database, masses []float64, p ReduceParams) (*Reduction, error) {
	runs := make([]rankedRun, 0, db.NumRuns())
	for _, r := range db.Runs() {
		pct, _ := db.MassOverlap(r.Seq, masses, p.MassTolerance)
		runs = append(runs, rankedRun{seq: r.Seq, overlap: pct})
	}
	rank(runs)
	return greedy(db, runs, p, false)
}

func greedy(db *amt.Database, runs []rankedRun, p ReduceParams, windowStop bool) (*Reduction, error) {
	red := &Reduction{}
	entries := make(map[string]bool)
	covered := make(map[string]bool)
	var truePos []int // cumulative covered target peptides after each selected run

	for _, r := range runs {
		if p.MaxRuns > 0 && len(red.Runs) >= p.MaxRuns {
			log.Debugf("Reduction: reached %d runs", p.MaxRuns)
			break
		}
		var added []string
		for _, e := range db.PeptideEntriesForRun(r.seq) {
			if !entries[e.Sequence] {
				added = append(added, e.Sequence)
			}
		}
		if p.MaxEntries > 0 && len(entries)+len(added) > p.MaxEntries {
			log.Debugf("Reduction: run %d would exceed %d entries", r.seq, p.MaxEntries)
			break
		}
		for _, s := range added {
			entries[s] = true
		}
		for _, s := range r.covered {
			covered[s] = true
		}
		red.Runs = append(red.Runs, r.seq)
		red.Overlap = append(red.Overlap, r.overlap)
		truePos = append(truePos, len(covered))

		if windowStop && p.Window > 0 && len(truePos) > p.Window {
			k := len(truePos) - 1
			gain := float64(truePos[k] - truePos[k-p.Window])
			if gain <= p.MinWindowGain {
				log.Debugf("Reduction: last %d runs added %v target peptides, dropping them",
					p.Window, gain)
				red.Runs = red.Runs[:len(red.Runs)-p.Window]
				red.Overlap = red.Overlap[:len(red.Overlap)-p.Window]
				break
			}
		}
	}

	rdb, err := db.ReducedCopy(red.Runs)
	if err != nil {
		return nil, err
	}
	red.DB = rdb
	return red, nil
}
