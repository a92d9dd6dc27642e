// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package amt

import (
	"math"
	"sort"
)

// PeptideOverlap returns the percentage of the target peptides that were
// observed in run seq, together with the covered target peptides
func (db *Database) PeptideOverlap(seq int, peptides []string) (float64, []string) {
	if len(peptides) == 0 {
		return 0, nil
	}
	var covered []string
	seen := make(map[string]bool, len(peptides))
	for _, p := range peptides {
		if seen[p] {
			continue
		}
		seen[p] = true
		if e := db.entries[p]; e != nil && e.HasRun(seq) {
			covered = append(covered, p)
		}
	}
	sort.Strings(covered)
	return 100 * float64(len(covered)) / float64(len(seen)), covered
}

// RunMasses returns the sorted masses of all modification states observed
// in run seq
func (db *Database) RunMasses(seq int) []float64 {
	var masses []float64
	for _, e := range db.entries {
		for _, s := range e.states {
			if _, ok := s.ObservationForRun(seq); ok {
				masses = append(masses, s.Mass)
			}
		}
	}
	sort.Float64s(masses)
	return masses
}

// MassOverlap returns the percentage of the target masses that lie
// within ppm of a modification state mass observed in run seq, together
// with the indices of the matched target masses
func (db *Database) MassOverlap(seq int, masses []float64, ppm float64) (float64, []int) {
	if len(masses) == 0 {
		return 0, nil
	}
	runMasses := db.RunMasses(seq)
	var matched []int
	for i, m := range masses {
		tol := m * ppm * 1e-6
		j := sort.SearchFloat64s(runMasses, m-tol)
		if j < len(runMasses) && math.Abs(runMasses[j]-m) <= tol {
			matched = append(matched, i)
		}
	}
	return 100 * float64(len(matched)) / float64(len(masses)), matched
}
