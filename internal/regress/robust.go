// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package regress

import (
	"context"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
)

// Tuning constant of Tukey's bisquare, 95% efficiency at the normal
const bisquareC = 4.685

const (
	maxRobustIterations = 50
	maxModalIterations  = 200
	coefTolerance       = 1e-10
)

// RobustLinear fits a line by iteratively reweighted least squares with
// Tukey bisquare weights, starting from the ordinary least squares fit.
// The result is {intercept, slope}.
func RobustLinear(ctx context.Context, xs, ys []float64) ([]float64, error) {
	fit, err := OLSLinear(xs, ys)
	if err != nil {
		return nil, err
	}
	b := []float64{fit.Intercept, fit.Slope}
	res := make([]float64, len(xs))
	w := make([]float64, len(xs))
	for iter := 0; iter < maxRobustIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for i := range xs {
			res[i] = ys[i] - Polyval(b, xs[i])
		}
		scale := mad(res) / 0.6745
		if scale < 1e-12 {
			// (nearly) perfect fit for the majority of points
			break
		}
		for i, r := range res {
			u := r / (bisquareC * scale)
			if math.Abs(u) < 1 {
				w[i] = (1 - u*u) * (1 - u*u)
			} else {
				w[i] = 0
			}
		}
		nb, err := PolyFit(xs, ys, w, 1)
		if err != nil {
			return nil, err
		}
		done := maxAbsDiff(nb, b) < coefTolerance*(1+maxAbs(b))
		b = nb
		if done {
			break
		}
	}
	return b, nil
}

// Modal fits a polynomial that tracks the mode of y conditional on x.
// It starts from a median (L1) fit and then runs kernel modal EM
// iterations with a shrinking Gaussian bandwidth, so that a dense band
// of true matches dominates a diffuse cloud of false ones.
func Modal(ctx context.Context, xs, ys []float64, degree int) ([]float64, error) {
	if degree < 1 {
		return nil, fmt.Errorf("regress: modal regression degree %d, must be at least 1", degree)
	}
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("%w: input lengths differ", ErrSolverFailure)
	}
	if len(xs) < degree+2 {
		return nil, fmt.Errorf("%w: %d points for a degree %d modal regression",
			ErrInsufficientData, len(xs), degree)
	}

	sc := newScaling(xs)
	zs := sc.apply(xs)
	ysc := newScaling(ys)
	us := ysc.apply(ys)

	b, err := medianStart(zs, us, degree)
	if err != nil {
		return nil, err
	}

	res := make([]float64, len(zs))
	for i := range zs {
		res[i] = us[i] - Polyval(b, zs[i])
	}
	h0 := 1.06 * mad(res) / 0.6745 * math.Pow(float64(len(zs)), -0.2)
	if h0 < 1e-6 {
		h0 = 1e-6
	}

	w := make([]float64, len(zs))
	for _, f := range []float64{1, 0.5, 0.25} {
		h := h0 * f
		for iter := 0; iter < maxModalIterations; iter++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			sum := 0.0
			for i := range zs {
				r := (us[i] - Polyval(b, zs[i])) / h
				w[i] = math.Exp(-0.5 * r * r)
				sum += w[i]
			}
			if sum < 1e-12 {
				break
			}
			nb, err := wls(zs, us, w, degree)
			if err != nil {
				// Too few points left under the kernel at this bandwidth
				break
			}
			done := maxAbsDiff(nb, b) < 1e-9
			b = nb
			if done {
				break
			}
		}
	}

	// back from standardized y
	for i := range b {
		b[i] *= ysc.scale
	}
	b[0] += ysc.shift
	return sc.unscale(b), nil
}

// medianStart returns the least absolute deviations polynomial, found by
// Nelder-Mead from the least squares solution
func medianStart(zs, us []float64, degree int) ([]float64, error) {
	b, err := wls(zs, us, nil, degree)
	if err != nil {
		return nil, err
	}
	problem := optimize.Problem{
		Func: func(x []float64) float64 {
			sum := 0.0
			for i := range zs {
				sum += math.Abs(us[i] - Polyval(x, zs[i]))
			}
			return sum
		},
	}
	result, err := optimize.Minimize(problem, b, nil, &optimize.NelderMead{})
	if err != nil || result == nil || len(result.X) != len(b) {
		return b, nil
	}
	return result.X, nil
}

func maxAbsDiff(a, b []float64) float64 {
	d := 0.0
	for i := range a {
		d = math.Max(d, math.Abs(a[i]-b[i]))
	}
	return d
}

func maxAbs(a []float64) float64 {
	m := 0.0
	for _, v := range a {
		m = math.Max(m, math.Abs(v))
	}
	return m
}
