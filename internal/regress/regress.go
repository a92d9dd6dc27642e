// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

// Package regress implements the regression service used for mapping
// elution times to hydrophobicity and for assigning match probabilities:
// ordinary, robust and modal polynomial regression, and an EM fit of a
// normal/uniform mixture.
//
// All computations run in-process. Every call is bounded by a timeout;
// when it expires, or when the solver produces unusable output, the
// call fails with ErrSolverFailure and the caller decides whether to
// skip the run.
package regress

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	// ErrInsufficientData means too few points were supplied for a fit
	ErrInsufficientData = errors.New("regress: insufficient data")
	// ErrSolverFailure means the solver timed out, was cancelled or
	// returned malformed output
	ErrSolverFailure = errors.New("regress: solver failure")
)

// DefaultTimeout is the time a single regression or EM call may take
const DefaultTimeout = 5 * time.Minute

// Service is the contract between the matching engine and the
// statistical solver.
type Service interface {
	// RobustRegression fits y = intercept + slope*x, tolerating outliers
	RobustRegression(ctx context.Context, xs, ys []float64) (intercept, slope float64, err error)
	// ModalRegression fits a polynomial of the given degree that follows
	// the densest band of points. Coefficients are returned lowest order
	// first.
	ModalRegression(ctx context.Context, xs, ys []float64, degree int) ([]float64, error)
	// FitMixtureEM fits a bivariate normal (true) / uniform (false)
	// mixture to paired errors.
	FitMixtureEM(ctx context.Context, in MixtureInput) (*MixtureResult, error)
}

// Local is a Service that runs the computations in-process
type Local struct {
	Timeout time.Duration // Per-call timeout, <= 0 means no timeout
}

// NewLocal returns a Local service with the given per-call timeout
func NewLocal(timeout time.Duration) *Local {
	return &Local{Timeout: timeout}
}

// call runs f in its own goroutine and waits for it, the timeout or
// cancellation of ctx, whichever comes first.
func call[T any](ctx context.Context, timeout time.Duration, name string,
	f func(ctx context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				var zero T
				done <- result{zero, fmt.Errorf("%w: %s: %v", ErrSolverFailure, name, r)}
			}
		}()
		v, err := f(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && ctx.Err() != nil && errors.Is(r.err, ctx.Err()) {
			return r.v, fmt.Errorf("%w: %s: %v", ErrSolverFailure, name, r.err)
		}
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("%w: %s: %v", ErrSolverFailure, name, ctx.Err())
	}
}

// RobustRegression implements Service
func (l *Local) RobustRegression(ctx context.Context, xs, ys []float64) (float64, float64, error) {
	p, err := call(ctx, l.Timeout, "robust regression",
		func(ctx context.Context) ([]float64, error) {
			return RobustLinear(ctx, xs, ys)
		})
	if err != nil {
		return 0, 0, err
	}
	if err := checkFinite("robust regression", p...); err != nil {
		return 0, 0, err
	}
	return p[0], p[1], nil
}

// ModalRegression implements Service
func (l *Local) ModalRegression(ctx context.Context, xs, ys []float64, degree int) ([]float64, error) {
	p, err := call(ctx, l.Timeout, "modal regression",
		func(ctx context.Context) ([]float64, error) {
			return Modal(ctx, xs, ys, degree)
		})
	if err != nil {
		return nil, err
	}
	if len(p) != degree+1 {
		return nil, fmt.Errorf("%w: modal regression returned %d coefficients, expected %d",
			ErrSolverFailure, len(p), degree+1)
	}
	if err := checkFinite("modal regression", p...); err != nil {
		return nil, err
	}
	return p, nil
}

// FitMixtureEM implements Service
func (l *Local) FitMixtureEM(ctx context.Context, in MixtureInput) (*MixtureResult, error) {
	res, err := call(ctx, l.Timeout, "mixture EM",
		func(ctx context.Context) (*MixtureResult, error) {
			return FitMixture(ctx, in)
		})
	if err != nil {
		return nil, err
	}
	if len(res.Probabilities) != len(in.X) {
		return nil, fmt.Errorf("%w: mixture EM returned %d probabilities for %d points",
			ErrSolverFailure, len(res.Probabilities), len(in.X))
	}
	if err := checkFinite("mixture EM", res.MuX, res.MuY, res.SigmaX, res.SigmaY,
		res.Proportion); err != nil {
		return nil, err
	}
	if err := checkFinite("mixture EM", res.Probabilities...); err != nil {
		return nil, err
	}
	return res, nil
}

func checkFinite(name string, v ...float64) error {
	for _, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return fmt.Errorf("%w: %s produced a non-finite value", ErrSolverFailure, name)
		}
	}
	return nil
}

// Polyval evaluates the polynomial with coefficients p (lowest order
// first) at x
func Polyval(p []float64, x float64) float64 {
	v := 0.0
	for i := len(p) - 1; i >= 0; i-- {
		v = v*x + p[i]
	}
	return v
}
