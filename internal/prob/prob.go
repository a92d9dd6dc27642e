// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

// Package prob turns match errors into match probabilities. Target
// matches are a mixture of true matches, normally distributed around the
// expected error, and false matches, uniform over the match window. The
// matches against a mass-shifted decoy database estimate the share of
// false matches at the start of the EM fit.
package prob

import (
	"context"
	"fmt"
	"math"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/524D/mzamt/internal/feature"
	"github.com/524D/mzamt/internal/matcher"
	"github.com/524D/mzamt/internal/regress"
)

// Params controls probability assignment and per-feature resolution
type Params struct {
	MinProportion            float64 `json:"minProportion"`
	MinIterations            int     `json:"minIterations"`
	MaxIterations            int     `json:"maxIterations"`
	StabilityDelta           float64 `json:"stabilityDelta"`
	StabilityIterations      int     `json:"stabilityIterations"`
	KSWarn                   float64 `json:"ksWarn"`
	MinProbability           float64 `json:"minProbability"`
	MaxFDR                   float64 `json:"maxFDR"`
	MaxSecondBestProbability float64 `json:"maxSecondBestProbability"`
	MinSecondBestMargin      float64 `json:"minSecondBestMargin"`
	DecoyOffset              float64 `json:"decoyOffset"`
	DecoyFraction            float64 `json:"decoyFraction"` // validation mode
}

// DefaultParams returns the default probability parameters
func DefaultParams() Params {
	return Params{
		MinProportion:            0.01,
		MinIterations:            30,
		MaxIterations:            400,
		StabilityDelta:           1e-5,
		StabilityIterations:      5,
		KSWarn:                   0.1,
		MinProbability:           0.1,
		MaxFDR:                   0.05,
		MaxSecondBestProbability: 0.5,
		MinSecondBestMargin:      0.1,
		DecoyOffset:              matcher.DefaultDecoyOffset,
		DecoyFraction:            0.5,
	}
}

// ScoredMatch is a master/slave pair with its probability of being true
type ScoredMatch struct {
	Master       *feature.Feature
	Slave        *feature.Feature
	MassError    float64
	ElutionError float64
	Probability  float64
	FDR          float64
}

// Assignment holds the scored pairs of a target match and the mixture fit
type Assignment struct {
	Pairs []ScoredMatch // in match order
	Fit   *regress.MixtureResult
}

// Assign fits the error mixture to the target matches and scores every
// pair. A fit that did not converge, or fits the normal component badly,
// is logged and used anyway.
func Assign(ctx context.Context, svc regress.Service, target, decoy *matcher.Result,
	p Params) (*Assignment, error) {
	nT := target.NumPairs()
	nD := 0
	if decoy != nil {
		nD = decoy.NumPairs()
	}
	if nT < 2 {
		return nil, fmt.Errorf("%w: %d target matches", regress.ErrInsufficientData, nT)
	}
	area := target.Params.Area()
	if !(area > 0) || math.IsInf(area, 0) {
		return nil, fmt.Errorf("prob: match window area %g must be positive and finite", area)
	}

	prop := float64(nT-nD) / float64(nT)
	if prop <= 0 {
		log.Warnf("%d decoy matches for %d target matches, starting from proportion %g",
			nD, nT, p.MinProportion)
		prop = p.MinProportion
	}

	massErr, elutionErr := target.Errors()
	fit, err := svc.FitMixtureEM(ctx, regress.MixtureInput{
		X:                   massErr,
		Y:                   elutionErr,
		InitialProportion:   prop,
		Area:                area,
		MinIterations:       p.MinIterations,
		MaxIterations:       p.MaxIterations,
		StabilityDelta:      p.StabilityDelta,
		StabilityIterations: p.StabilityIterations,
	})
	if err != nil {
		return nil, err
	}
	if !fit.Converged {
		log.Warnf("Mixture fit did not converge in %d iterations", fit.Iterations)
	}
	if fit.KSX > p.KSWarn {
		log.Warnf("Mass errors of true matches fit a normal distribution poorly (KS %.3f)", fit.KSX)
	}
	if fit.KSY > p.KSWarn {
		log.Warnf("Elution errors of true matches fit a normal distribution poorly (KS %.3f)", fit.KSY)
	}
	log.Debugf("Mixture fit: mass %.3g±%.3g, elution %.3g±%.3g, proportion %.3f, %d iterations",
		fit.MuX, fit.SigmaX, fit.MuY, fit.SigmaY, fit.Proportion, fit.Iterations)

	a := &Assignment{Fit: fit, Pairs: make([]ScoredMatch, 0, nT)}
	i := 0
	for _, m := range target.Matches {
		for _, s := range m.Slaves {
			a.Pairs = append(a.Pairs, ScoredMatch{
				Master:       m.Master,
				Slave:        s.Slave,
				MassError:    s.MassError,
				ElutionError: s.ElutionError,
				Probability:  fit.Probabilities[i],
			})
			i++
		}
	}
	probs := make([]float64, len(a.Pairs))
	for i := range a.Pairs {
		probs[i] = a.Pairs[i].Probability
	}
	for i, fdr := range FDR(probs) {
		a.Pairs[i].FDR = fdr
	}
	return a, nil
}

// FDR returns the false discovery rate at every probability: with the
// probabilities sorted in descending order, the FDR at rank i is the
// expected share of false matches among the top i, sum(1-p)/i. Equal
// probabilities share the FDR at the end of their group.
func FDR(probs []float64) []float64 {
	idx := make([]int, len(probs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return probs[idx[a]] > probs[idx[b]] })

	fdr := make([]float64, len(probs))
	expFalse, expTrue := 0.0, 0.0
	for start := 0; start < len(idx); {
		end := start
		for end < len(idx) && probs[idx[end]] == probs[idx[start]] {
			expFalse += 1 - probs[idx[end]]
			expTrue += probs[idx[end]]
			end++
		}
		v := 0.0
		if expFalse+expTrue > 0 {
			v = expFalse / (expFalse + expTrue)
		}
		for _, i := range idx[start:end] {
			fdr[i] = v
		}
		start = end
	}
	return fdr
}
