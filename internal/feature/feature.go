// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

// Package feature holds detected LC-MS features and reads and writes
// feature sets as JSON.
package feature

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/524D/mzamt/internal/amt"
)

// Feature is a detected (or database generated) LC-MS feature
type Feature struct {
	ID             int                   `json:"id"`
	Mass           float64               `json:"mass"` // neutral mass
	Charge         int                   `json:"charge,omitempty"`
	Time           float64               `json:"time,omitempty"` // elution time in seconds
	Scan           int                   `json:"scan,omitempty"` // 0-based spectrum index
	Intensity      float64               `json:"intensity,omitempty"`
	Peptides       []string              `json:"peptides,omitempty"`
	Mods           []amt.ModifiedResidue `json:"mods,omitempty"` // of the first peptide
	Hydrophobicity float64               `json:"hydrophobicity,omitempty"`
	Probability    float64               `json:"probability,omitempty"`

	// Set on features generated from a database
	ModifiedSequence string            `json:"modifiedSequence,omitempty"`
	ModIDs           [][]amt.ModID     `json:"-"` // per residue, in the database catalog
	Entry            *amt.PeptideEntry `json:"-"`
}

// Peptide returns the first peptide identification, or ""
func (f *Feature) Peptide() string {
	if len(f.Peptides) == 0 {
		return ""
	}
	return f.Peptides[0]
}

// Set is the on-disk representation of a run's features
type Set struct {
	Run         string     `json:"run,omitempty"`
	SpectraFile string     `json:"spectraFile,omitempty"`
	Features    []*Feature `json:"features"`
}

// Read decodes a feature set
func Read(r io.Reader) (*Set, error) {
	var s Set
	d := json.NewDecoder(r)
	if err := d.Decode(&s); err != nil {
		return nil, fmt.Errorf("decoding feature set: %w", err)
	}
	for i, f := range s.Features {
		if f == nil {
			return nil, fmt.Errorf("decoding feature set: feature %d is null", i)
		}
	}
	return &s, nil
}

// Write encodes a feature set
func Write(w io.Writer, s *Set) error {
	e := json.NewEncoder(w)
	e.SetIndent("", "  ")
	return e.Encode(s)
}

// SortByMass sorts features by ascending mass
func SortByMass(fs []*Feature) {
	sort.SliceStable(fs, func(i, j int) bool { return fs[i].Mass < fs[j].Mass })
}

// Times returns the elution times of fs
func Times(fs []*Feature) []float64 {
	t := make([]float64, len(fs))
	for i, f := range fs {
		t[i] = f.Time
	}
	return t
}

// Masses returns the masses of fs
func Masses(fs []*Feature) []float64 {
	m := make([]float64, len(fs))
	for i, f := range fs {
		m[i] = f.Mass
	}
	return m
}

// PopulateTimes sets the elution time of every feature without one from
// its scan number
func PopulateTimes(fs []*Feature, timeOfScan func(scan int) (float64, error)) error {
	for _, f := range fs {
		if f.Time != 0 {
			continue
		}
		t, err := timeOfScan(f.Scan)
		if err != nil {
			return fmt.Errorf("feature %d: %w", f.ID, err)
		}
		f.Time = t
	}
	return nil
}
