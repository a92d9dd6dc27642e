// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package matcher

import (
	log "github.com/sirupsen/logrus"

	"github.com/524D/mzamt/internal/amt"
	"github.com/524D/mzamt/internal/feature"
)

// DefaultDecoyOffset is the mass shift of decoy features in Da
const DefaultDecoyOffset = 11.0

// ModSet lists the modifications, as IDs in a database catalog, applied
// when generating features
type ModSet struct {
	Static   []amt.ModID
	Variable []amt.ModID
}

// DatabaseModSet returns every modification declared by a run of db. A
// residue gets at most one static modification: the first one declared,
// in run order.
func DatabaseModSet(db *amt.Database) ModSet {
	var ms ModSet
	c := db.Mods()
	seen := make(map[amt.ModID]bool)
	static := make(map[byte]amt.ModID)
	for _, r := range db.Runs() {
		for _, id := range r.StaticMods {
			if seen[id] {
				continue
			}
			seen[id] = true
			m := c.Get(id)
			if prev, ok := static[m.Residue]; ok {
				log.Warnf("Run %d: static modification %s ignored, %c already has %s",
					r.Seq, m, m.Residue, c.Get(prev))
				continue
			}
			static[m.Residue] = id
			ms.Static = append(ms.Static, id)
		}
		for _, id := range r.VariableMods {
			if !seen[id] {
				seen[id] = true
				ms.Variable = append(ms.Variable, id)
			}
		}
	}
	return ms
}

// Generate returns the features of all entries of db
func Generate(db *amt.Database, ms ModSet) []*feature.Feature {
	var fs []*feature.Feature
	for _, e := range db.Entries() {
		fs = append(fs, GenerateEntry(e, db.Mods(), ms)...)
	}
	for i, f := range fs {
		f.ID = i
	}
	return fs
}

// GenerateEntry returns one feature per combination of the variable
// modifications of ms whose residue occurs in the peptide. A variable
// modification is applied to all occurrences of its residue or to none.
// Static modifications always apply. With k relevant variable
// modifications, 2^k features are returned.
func GenerateEntry(e *amt.PeptideEntry, c *amt.ModCatalog, ms ModSet) []*feature.Feature {
	seq := e.Sequence
	base, err := amt.PeptideMass(seq)
	if err != nil {
		// entries are validated on creation
		return nil
	}

	occurrences := func(aa byte) int {
		n := 0
		for i := 0; i < len(seq); i++ {
			if seq[i] == aa {
				n++
			}
		}
		return n
	}

	var static []amt.ModID
	for _, id := range ms.Static {
		m := c.Get(id)
		if n := occurrences(m.Residue); n > 0 {
			static = append(static, id)
			base += float64(n) * m.MassDelta
		}
	}
	var relevant []amt.ModID
	for _, id := range ms.Variable {
		if occurrences(c.Get(id).Residue) > 0 {
			relevant = append(relevant, id)
		}
	}

	fs := make([]*feature.Feature, 0, 1<<len(relevant))
	applied := make([]amt.ModID, 0, len(relevant))
	var recurse func(i int, mass float64)
	recurse = func(i int, mass float64) {
		if i == len(relevant) {
			fs = append(fs, newFeature(e, c, static, applied, mass))
			return
		}
		recurse(i+1, mass)
		m := c.Get(relevant[i])
		applied = append(applied, relevant[i])
		recurse(i+1, mass+float64(occurrences(m.Residue))*m.MassDelta)
		applied = applied[:len(applied)-1]
	}
	recurse(0, base)
	return fs
}

func newFeature(e *amt.PeptideEntry, c *amt.ModCatalog, static, variable []amt.ModID,
	mass float64) *feature.Feature {
	seq := e.Sequence
	mods := make([][]amt.ModID, len(seq))
	for _, ids := range [][]amt.ModID{static, variable} {
		for _, id := range ids {
			r := c.Get(id).Residue
			for i := 0; i < len(seq); i++ {
				if seq[i] == r {
					mods[i] = append(mods[i], id)
				}
			}
		}
	}
	modSeq := amt.ModifiedSequence(seq, mods, c)
	var residues []amt.ModifiedResidue
	for i, ids := range mods {
		if len(ids) == 0 {
			continue
		}
		m, _ := amt.ResidueMass(seq[i])
		for _, id := range ids {
			m += c.Get(id).MassDelta
		}
		residues = append(residues, amt.ModifiedResidue{Position: i, Mass: m})
	}

	h := e.PredictedHydrophobicity
	if s := e.State(modSeq); s != nil && s.Stats().Count > 0 {
		h = s.Stats().MedianHydrophobicity
	} else if e.Stats().Count > 0 {
		h = e.Stats().MedianHydrophobicity
	}
	return &feature.Feature{
		Mass:             mass,
		Peptides:         []string{seq},
		Mods:             residues,
		ModIDs:           mods,
		Hydrophobicity:   h,
		Probability:      e.Stats().MedianQuality,
		ModifiedSequence: modSeq,
		Entry:            e,
	}
}

// Decoy returns copies of fs with every mass shifted by offset
func Decoy(fs []*feature.Feature, offset float64) []*feature.Feature {
	d := make([]*feature.Feature, len(fs))
	for i, f := range fs {
		c := *f
		c.Mass += offset
		d[i] = &c
	}
	return d
}
