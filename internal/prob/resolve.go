// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package prob

import (
	"github.com/524D/mzamt/internal/feature"
)

// Resolution is the peptide assigned to one master feature
type Resolution struct {
	Master     *feature.Feature
	Best       ScoredMatch
	SecondBest *ScoredMatch // best match with another peptide, if any
	Accepted   bool
	Reason     string  // why the match was rejected
	Confidence float64 // match probability × peptide identification probability
}

// Peptide returns the peptide of the best match
func (r *Resolution) Peptide() string {
	return r.Best.Slave.Peptide()
}

// Resolve picks the best match of every master feature. It is accepted
// when its probability and FDR pass the thresholds and no match with
// another peptide comes close.
func Resolve(a *Assignment, p Params) []Resolution {
	var res []Resolution
	byMaster := make(map[*feature.Feature]int)
	var groups [][]ScoredMatch
	for _, sm := range a.Pairs {
		i, ok := byMaster[sm.Master]
		if !ok {
			i = len(groups)
			byMaster[sm.Master] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], sm)
	}

	for _, g := range groups {
		best := 0
		for i := 1; i < len(g); i++ {
			if g[i].Probability > g[best].Probability {
				best = i
			}
		}
		r := Resolution{Master: g[best].Master, Best: g[best]}
		for i := range g {
			if i == best || g[i].Slave.Peptide() == r.Peptide() {
				continue
			}
			if r.SecondBest == nil || g[i].Probability > r.SecondBest.Probability {
				sb := g[i]
				r.SecondBest = &sb
			}
		}

		switch {
		case r.Best.Probability < p.MinProbability:
			r.Reason = "probability below minimum"
		case r.Best.FDR > p.MaxFDR:
			r.Reason = "FDR above maximum"
		case r.SecondBest != nil && r.SecondBest.Probability >= p.MaxSecondBestProbability:
			r.Reason = "ambiguous, second best probability too high"
		case r.SecondBest != nil && r.Best.Probability-r.SecondBest.Probability < p.MinSecondBestMargin:
			r.Reason = "ambiguous, second best too close"
		default:
			r.Accepted = true
		}

		quality := r.Best.Slave.Probability
		if e := r.Best.Slave.Entry; e != nil {
			quality = e.Stats().MedianQuality
		}
		r.Confidence = r.Best.Probability * quality
		res = append(res, r)
	}
	return res
}
