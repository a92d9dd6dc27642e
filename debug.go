// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

// This file contains code to help debugging, and is
// separated in from the rest in order not to litter
// the main code with debugging stuff

package main

import (
	"fmt"
	"math"

	"github.com/524D/mzamt/internal/feature"
	"github.com/524D/mzamt/internal/matcher"
	"github.com/524D/mzamt/internal/pipeline"
)

var debugFeatures string // Print debug output for given feature range

// debugLogMatches prints every target match of the features in the debug
// range, relative to the match window, with its probability and whether
// it was accepted
func debugLogMatches(name string, rr *pipeline.RunResult, mp matcher.Params) {
	if debugFeatures == `` {
		return
	}
	debugMin, debugMax, _ := parseIntRange(debugFeatures, 0, math.MaxInt32)

	accepted := make(map[int]string)
	for _, r := range rr.Resolutions {
		if r.Accepted {
			accepted[r.Master.ID] = r.Best.Slave.ModifiedSequence
		}
	}
	type pair struct{ master, slave *feature.Feature }
	scores := make(map[pair]float64)
	for _, sm := range rr.Assignment.Pairs {
		scores[pair{sm.Master, sm.Slave}] = sm.Probability
	}

	fmt.Printf("Run %s\n", name)
	for _, m := range rr.Target.Matches {
		f := m.Master
		if f.ID < debugMin || f.ID > debugMax {
			continue
		}
		fmt.Printf("%d mass:%f time:%f H:%f", f.ID, f.Mass, f.Time, f.Hydrophobicity)
		if seq, ok := accepted[f.ID]; ok {
			fmt.Printf(" accepted:%s", seq)
		}
		fmt.Printf(" [")
		for _, s := range m.Slaves {
			massRel := 100.0 * s.MassError / mp.MaxMass
			if s.MassError < 0 {
				massRel = 100.0 * s.MassError / -mp.MinMass
			}
			elutionRel := 100.0 * s.ElutionError / mp.MaxElution
			if s.ElutionError < 0 {
				elutionRel = 100.0 * s.ElutionError / -mp.MinElution
			}
			fmt.Printf(" %s massErr:%f(%0.2f%%) elutionErr:%f(%0.2f%%) p:%0.4f;",
				s.Slave.ModifiedSequence,
				s.MassError, massRel,
				s.ElutionError, elutionRel,
				scores[pair{f, s.Slave}])
		}
		fmt.Printf("]\n")
	}
}
