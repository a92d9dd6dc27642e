// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package mzidentml

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/524D/mzamt/internal/amt"
)

// Run returns a run carrying the search modifications of the file. The
// modifications are registered in catalog c. Terminal modifications
// (residues ".") can't be stored per residue and are skipped.
func (m *MzIdentML) Run(c *amt.ModCatalog) *amt.Run {
	r := &amt.Run{}
	seen := make(map[amt.ModID]bool)
	for _, sm := range m.SearchModifications() {
		for i := 0; i < len(sm.Residues); i++ {
			aa := sm.Residues[i]
			if _, ok := amt.ResidueMass(aa); !ok {
				log.Debugf("skipping search modification %s%+.4f on %q", sm.Name, sm.MassDelta, aa)
				continue
			}
			id := c.Canonical(amt.Modification{
				Residue:   aa,
				MassDelta: sm.MassDelta,
				Variable:  !sm.Fixed,
				Name:      sm.Name,
			})
			if seen[id] {
				continue
			}
			seen[id] = true
			if sm.Fixed {
				r.StaticMods = append(r.StaticMods, id)
			} else {
				r.VariableMods = append(r.VariableMods, id)
			}
		}
	}
	return r
}

// ModifiedResidues converts the modifications of an identification to
// full residue masses. Modifications at the same residue add up.
func (ident *Identification) ModifiedResidues() ([]amt.ModifiedResidue, error) {
	delta := make(map[int]float64)
	var order []int
	for _, mod := range ident.Mods {
		pos := mod.Location - 1
		if mod.Location == 0 || mod.Location == len(ident.PepSeq)+1 {
			log.Debugf("%s: skipping terminal modification %+.4f", ident.PepSeq, mod.MassDelta)
			continue
		}
		if pos < 0 || pos >= len(ident.PepSeq) {
			return nil, fmt.Errorf("mzIdentML: %s has no modification location %d",
				ident.PepSeq, mod.Location)
		}
		if _, ok := delta[pos]; !ok {
			order = append(order, pos)
		}
		delta[pos] += mod.MassDelta
	}
	mr := make([]amt.ModifiedResidue, 0, len(order))
	for _, pos := range order {
		base, ok := amt.ResidueMass(ident.PepSeq[pos])
		if !ok {
			return nil, fmt.Errorf("%w: %s", amt.ErrInvalidSequence, ident.PepSeq)
		}
		mr = append(mr, amt.ModifiedResidue{Position: pos, Mass: base + delta[pos]})
	}
	return mr, nil
}

// Identifications returns the identifications that pass keep as input
// for a database. quality gives the identification probability of a
// match. Identifications without retention time get it from timeOfSpec;
// when that is nil too they are an error.
func (m *MzIdentML) Identifications(keep func(*Identification) bool,
	quality func(*Identification) float64,
	timeOfSpec func(specID string) (float64, error)) ([]amt.Identification, error) {
	var ids []amt.Identification
	for i := 0; i < m.NumIdents(); i++ {
		ident, err := m.Ident(i)
		if err != nil {
			return nil, err
		}
		if keep != nil && !keep(&ident) {
			continue
		}
		rt := ident.RetentionTime
		if rt < 0 {
			if timeOfSpec == nil {
				return nil, fmt.Errorf("mzIdentML: no retention time for spectrum %q", ident.SpecID)
			}
			rt, err = timeOfSpec(ident.SpecID)
			if err != nil {
				return nil, err
			}
		}
		mr, err := ident.ModifiedResidues()
		if err != nil {
			return nil, err
		}
		q := 1.0
		if quality != nil {
			q = quality(&ident)
		}
		ids = append(ids, amt.Identification{
			Sequence:      ident.PepSeq,
			Modified:      mr,
			Time:          rt,
			Quality:       q,
			SpectralCount: 1,
		})
	}
	return ids, nil
}
