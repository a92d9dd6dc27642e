// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package prob

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"

	"github.com/524D/mzamt/internal/feature"
	"github.com/524D/mzamt/internal/matcher"
	"github.com/524D/mzamt/internal/regress"
)

// ValidationPoint compares the decoy count FDR with the model FDR at one
// probability threshold
type ValidationPoint struct {
	Threshold    float64
	Targets      int // matches to target peptides at or above Threshold
	Decoys       int // matches to decoy peptides at or above Threshold
	EmpiricalFDR float64
	ModelFDR     float64
}

// Validation is the outcome of a target/decoy split of the database
type Validation struct {
	TargetPeptides int
	DecoyPeptides  int
	Points         []ValidationPoint
}

// Validate splits the database peptides at random into targets and
// decoys, shifts the decoy peptide features by the decoy offset and runs
// matching and probability assignment against the mixed set. At every
// probability threshold the FDR estimated from decoy hits,
// ratio*#decoy/#target with ratio = #target peptides/#decoy peptides, is
// reported next to the model FDR.
func Validate(ctx context.Context, svc regress.Service, master, entryFeatures []*feature.Feature,
	mp matcher.Params, p Params, rng *rand.Rand) (*Validation, error) {
	peptides := make(map[string]bool)
	for _, f := range entryFeatures {
		peptides[f.Peptide()] = true
	}
	names := make([]string, 0, len(peptides))
	for n := range peptides {
		names = append(names, n)
	}
	sort.Strings(names)
	isDecoy := make(map[string]bool)
	for _, n := range names {
		if rng.Float64() < p.DecoyFraction {
			isDecoy[n] = true
		}
	}
	v := &Validation{DecoyPeptides: len(isDecoy), TargetPeptides: len(names) - len(isDecoy)}
	if v.DecoyPeptides == 0 || v.TargetPeptides == 0 {
		return nil, fmt.Errorf("%w: %d target and %d decoy peptides",
			regress.ErrInsufficientData, v.TargetPeptides, v.DecoyPeptides)
	}

	mixed := make([]*feature.Feature, len(entryFeatures))
	for i, f := range entryFeatures {
		c := *f
		if isDecoy[f.Peptide()] {
			c.Mass += p.DecoyOffset
		}
		mixed[i] = &c
	}

	wm := &matcher.WindowMatcher{Params: mp}
	target := wm.Match(master, mixed)
	decoy := wm.Match(master, matcher.Decoy(mixed, p.DecoyOffset))
	a, err := Assign(ctx, svc, target, decoy, p)
	if err != nil {
		return nil, err
	}

	pairs := make([]ScoredMatch, len(a.Pairs))
	copy(pairs, a.Pairs)
	sort.SliceStable(pairs, func(i, j int) bool { return pairs[i].Probability > pairs[j].Probability })
	ratio := float64(v.TargetPeptides) / float64(v.DecoyPeptides)
	nT, nD := 0, 0
	for i, sm := range pairs {
		if isDecoy[sm.Slave.Peptide()] {
			nD++
		} else {
			nT++
		}
		if i+1 < len(pairs) && pairs[i+1].Probability == sm.Probability {
			continue
		}
		pt := ValidationPoint{
			Threshold: sm.Probability,
			Targets:   nT,
			Decoys:    nD,
			ModelFDR:  sm.FDR,
		}
		switch {
		case nT > 0:
			pt.EmpiricalFDR = ratio * float64(nD) / float64(nT)
		case nD > 0:
			pt.EmpiricalFDR = 1
		}
		v.Points = append(v.Points, pt)
	}
	return v, nil
}
