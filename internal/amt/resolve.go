// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package amt

import (
	"fmt"
	"math"
	"math/bits"

	log "github.com/sirupsen/logrus"
)

// ModifiedResidue is an externally observed modified amino acid
type ModifiedResidue struct {
	Position int     // 0-based
	Mass     float64 // full residue mass, including all modifications
}

// ResolveModifications returns per residue of seq the modifications of
// run runSeq that explain the observed residue masses. Static
// modifications of the run are applied to every matching residue. An
// observed mass that differs from the static result by at least
// MassEqualityTolerance must match one of the run's variable
// modifications, or a combination of them stacked on the residue. When
// none does, the result is an
// *UnresolvedModificationError, unless ignoreUnknown is set: then the
// peptide is returned with its static modifications only.
func (db *Database) ResolveModifications(seq string, observed []ModifiedResidue,
	runSeq int, ignoreUnknown bool) ([][]ModID, error) {
	run := db.Run(runSeq)
	if run == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownRun, runSeq)
	}
	if err := ValidateSequence(seq); err != nil {
		return nil, err
	}

	mods := make([][]ModID, len(seq))
	staticDelta := make([]float64, len(seq))
	for i := 0; i < len(seq); i++ {
		for _, id := range run.StaticMods {
			m := db.mods.Get(id)
			if m.Residue == seq[i] {
				mods[i] = append(mods[i], id)
				staticDelta[i] += m.MassDelta
			}
		}
	}
	static := cloneMods(mods)

	for _, mr := range observed {
		if mr.Position < 0 || mr.Position >= len(seq) {
			return nil, fmt.Errorf("%w: %s has no position %d",
				ErrUnresolvedModification, seq, mr.Position+1)
		}
		aa := seq[mr.Position]
		delta := mr.Mass - (aaMass[aa] + staticDelta[mr.Position])
		if math.Abs(delta) < MassEqualityTolerance {
			continue
		}
		if ids := db.variableCombination(run, aa, delta); ids != nil {
			mods[mr.Position] = append(mods[mr.Position], ids...)
			continue
		}
		err := &UnresolvedModificationError{
			Sequence:  seq,
			Position:  mr.Position,
			Residue:   aa,
			MassDelta: delta,
			Run:       runSeq,
		}
		if !ignoreUnknown {
			return nil, err
		}
		log.Warnf("%v, importing without variable modifications", err)
		return static, nil
	}
	return mods, nil
}

// maxStackedMods limits the variable modifications of one residue that
// are combined
const maxStackedMods = 10

// variableCombination returns the smallest combination of the variable
// modifications of run on residue aa whose mass deltas add up to delta,
// or nil
func (db *Database) variableCombination(run *Run, aa byte, delta float64) []ModID {
	var cands []ModID
	for _, id := range run.VariableMods {
		if db.mods.Get(id).Residue == aa {
			cands = append(cands, id)
		}
	}
	if len(cands) > maxStackedMods {
		cands = cands[:maxStackedMods]
	}
	var best []ModID
	for mask := 1; mask < 1<<len(cands); mask++ {
		n := bits.OnesCount(uint(mask))
		if best != nil && n >= len(best) {
			continue
		}
		sum := 0.0
		for j, id := range cands {
			if mask&(1<<j) != 0 {
				sum += db.mods.Get(id).MassDelta
			}
		}
		if math.Abs(sum-delta) >= MassEqualityTolerance {
			continue
		}
		best = make([]ModID, 0, n)
		for j, id := range cands {
			if mask&(1<<j) != 0 {
				best = append(best, id)
			}
		}
	}
	return best
}

// checkMods verifies that mods, per residue of seq, refer to
// modifications of the catalog declared by run for that residue
func (db *Database) checkMods(seq string, mods [][]ModID, run *Run) error {
	if len(mods) != len(seq) {
		return fmt.Errorf("%w: %s has %d modification positions",
			ErrUnresolvedModification, seq, len(mods))
	}
	if err := db.mods.check(mods); err != nil {
		return err
	}
	declared := make(map[ModID]bool)
	for _, id := range run.StaticMods {
		declared[id] = true
	}
	for _, id := range run.VariableMods {
		declared[id] = true
	}
	for i, ids := range mods {
		for _, id := range ids {
			if !declared[id] || db.mods.Get(id).Residue != seq[i] {
				return fmt.Errorf("%w: %s position %d, modification %d not declared for run %d",
					ErrUnresolvedModification, seq, i+1, id, run.Seq)
			}
		}
	}
	return nil
}
