// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package regress

import (
	"context"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Smallest standard deviation the true-match component may shrink to
const minSigma = 1e-9

// MixtureInput holds paired match errors and the EM control settings.
// The false-match component is uniform with density 1/Area.
type MixtureInput struct {
	X                   []float64 // mass errors
	Y                   []float64 // elution errors
	InitialProportion   float64   // starting fraction of true matches
	Area                float64   // area of the tolerance window
	MinIterations       int
	MaxIterations       int
	StabilityDelta      float64 // proportion change regarded as stable
	StabilityIterations int     // consecutive stable iterations needed to stop
}

// MixtureResult is the outcome of a mixture EM fit
type MixtureResult struct {
	Probabilities []float64 // posterior probability of being a true match
	MuX           float64
	MuY           float64
	SigmaX        float64
	SigmaY        float64
	Proportion    float64
	Converged     bool
	Iterations    int
	KSX           float64 // Kolmogorov-Smirnov statistic of the X fit
	KSY           float64
}

// FitMixture fits a mixture of an axis-independent bivariate normal (true
// matches) and a uniform distribution over the tolerance window (false
// matches) by expectation maximization.
func FitMixture(ctx context.Context, in MixtureInput) (*MixtureResult, error) {
	n := len(in.X)
	if n != len(in.Y) {
		return nil, fmt.Errorf("%w: input lengths differ", ErrSolverFailure)
	}
	if n < 2 {
		return nil, fmt.Errorf("%w: %d points for a mixture fit", ErrInsufficientData, n)
	}
	if !(in.Area > 0) {
		return nil, fmt.Errorf("regress: mixture area %g must be positive", in.Area)
	}
	maxIter := in.MaxIterations
	if maxIter < 1 {
		maxIter = 1
	}
	uniform := 1 / in.Area

	res := &MixtureResult{
		MuX:        median(in.X),
		MuY:        median(in.Y),
		SigmaX:     initialSigma(in.X),
		SigmaY:     initialSigma(in.Y),
		Proportion: math.Min(math.Max(in.InitialProportion, 1e-6), 1-1e-6),
	}
	t := make([]float64, n)
	stable := 0
	for iter := 1; iter <= maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res.Iterations = iter

		expectation(in, res, uniform, t)

		sum := floats.Sum(t)
		if sum < 1e-12 {
			// Nothing left in the true component
			res.Proportion = 0
			break
		}
		newProp := sum / float64(n)
		res.MuX = floats.Dot(t, in.X) / sum
		res.MuY = floats.Dot(t, in.Y) / sum
		vx, vy := 0.0, 0.0
		for i := range t {
			dx := in.X[i] - res.MuX
			dy := in.Y[i] - res.MuY
			vx += t[i] * dx * dx
			vy += t[i] * dy * dy
		}
		res.SigmaX = math.Max(math.Sqrt(vx/sum), minSigma)
		res.SigmaY = math.Max(math.Sqrt(vy/sum), minSigma)

		if math.Abs(newProp-res.Proportion) < in.StabilityDelta {
			stable++
		} else {
			stable = 0
		}
		res.Proportion = newProp
		if iter >= in.MinIterations && stable >= in.StabilityIterations {
			res.Converged = true
			break
		}
	}

	// Posteriors for the final parameters
	expectation(in, res, uniform, t)
	res.Probabilities = t
	res.KSX = ksStatistic(in.X, t, distuv.Normal{Mu: res.MuX, Sigma: res.SigmaX})
	res.KSY = ksStatistic(in.Y, t, distuv.Normal{Mu: res.MuY, Sigma: res.SigmaY})
	return res, nil
}

// expectation writes the posterior true-match probability of every point
// into t
func expectation(in MixtureInput, res *MixtureResult, uniform float64, t []float64) {
	nx := distuv.Normal{Mu: res.MuX, Sigma: res.SigmaX}
	ny := distuv.Normal{Mu: res.MuY, Sigma: res.SigmaY}
	for i := range t {
		tp := res.Proportion * nx.Prob(in.X[i]) * ny.Prob(in.Y[i])
		fp := (1 - res.Proportion) * uniform
		if tp+fp == 0 {
			t[i] = 0
			continue
		}
		t[i] = tp / (tp + fp)
	}
}

func initialSigma(x []float64) float64 {
	s := mad(x) / 0.6745
	if s < minSigma {
		lo, hi := floats.Min(x), floats.Max(x)
		s = math.Max((hi-lo)/4, minSigma)
	}
	return s
}

// ksStatistic returns the largest distance between the weighted empirical
// distribution of x and the normal distribution d
func ksStatistic(x, w []float64, d distuv.Normal) float64 {
	idx := make([]int, len(x))
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return x[idx[a]] < x[idx[b]] })
	total := floats.Sum(w)
	if total <= 0 {
		return 0
	}
	dmax := 0.0
	cum := 0.0
	for _, i := range idx {
		f := d.CDF(x[i])
		below := cum / total
		cum += w[i]
		above := cum / total
		dmax = math.Max(dmax, math.Max(math.Abs(f-below), math.Abs(above-f)))
	}
	return dmax
}
