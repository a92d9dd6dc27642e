// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package regress

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// LinearFit is an ordinary least squares line y = Intercept + Slope*x
// together with the residual diagnostics used for outlier pruning
type LinearFit struct {
	Intercept float64
	Slope     float64
	Residuals []float64 // y - fitted
	Leverage  []float64 // diagonal of the hat matrix
	Sigma     float64   // error standard deviation estimate, sqrt(RSS/(n-2))
}

// scaling maps x onto z = (x-shift)/scale, which keeps polynomial
// design matrices well conditioned for elution times in seconds
type scaling struct {
	shift float64
	scale float64
}

func newScaling(xs []float64) scaling {
	mean, sd := stat.MeanStdDev(xs, nil)
	if sd == 0 || math.IsNaN(sd) {
		sd = 1
	}
	return scaling{shift: mean, scale: sd}
}

func (s scaling) apply(xs []float64) []float64 {
	zs := make([]float64, len(xs))
	for i, x := range xs {
		zs[i] = (x - s.shift) / s.scale
	}
	return zs
}

// unscale converts coefficients of p(z) into coefficients of p(x)
func (s scaling) unscale(b []float64) []float64 {
	a := 1 / s.scale
	c := -s.shift / s.scale
	out := make([]float64, len(b))
	for k, bk := range b {
		// bk * (a*x + c)^k, expanded binomially
		for j := 0; j <= k; j++ {
			out[j] += bk * binomial(k, j) * math.Pow(a, float64(j)) * math.Pow(c, float64(k-j))
		}
	}
	return out
}

func binomial(n, k int) float64 {
	r := 1.0
	for i := 1; i <= k; i++ {
		r = r * float64(n-k+i) / float64(i)
	}
	return r
}

// wls solves the weighted least squares polynomial fit of ys on zs.
// A nil ws means unit weights.
func wls(zs, ys, ws []float64, degree int) ([]float64, error) {
	n := len(zs)
	p := degree + 1
	if n < p {
		return nil, fmt.Errorf("%w: %d points for a degree %d polynomial",
			ErrInsufficientData, n, degree)
	}
	x := mat.NewDense(n, p, nil)
	y := mat.NewVecDense(n, nil)
	nonZero := 0
	for i, z := range zs {
		w := 1.0
		if ws != nil {
			w = math.Sqrt(ws[i])
		}
		if w > 0 {
			nonZero++
		}
		v := w
		for j := 0; j < p; j++ {
			x.Set(i, j, v)
			v *= z
		}
		y.SetVec(i, w*ys[i])
	}
	if nonZero < p {
		return nil, fmt.Errorf("%w: %d points with non-zero weight for a degree %d polynomial",
			ErrInsufficientData, nonZero, degree)
	}

	var beta mat.VecDense
	if err := beta.SolveVec(x, y); err != nil {
		// An ill-conditioned system is still solved, anything else is fatal
		var cond mat.Condition
		if !errors.As(err, &cond) || math.IsInf(float64(cond), 1) {
			return nil, fmt.Errorf("%w: least squares: %v", ErrSolverFailure, err)
		}
	}
	return mat.Col(nil, 0, &beta), nil
}

// PolyFit returns the weighted least squares polynomial of the given
// degree, lowest order coefficient first. A nil ws means unit weights.
func PolyFit(xs, ys, ws []float64, degree int) ([]float64, error) {
	if len(xs) != len(ys) || (ws != nil && len(ws) != len(xs)) {
		return nil, fmt.Errorf("%w: input lengths differ", ErrSolverFailure)
	}
	sc := newScaling(xs)
	b, err := wls(sc.apply(xs), ys, ws, degree)
	if err != nil {
		return nil, err
	}
	return sc.unscale(b), nil
}

// Leverage returns the hat matrix diagonal of a simple linear regression
// on xs
func Leverage(xs []float64) []float64 {
	n := float64(len(xs))
	mean := stat.Mean(xs, nil)
	sxx := 0.0
	for _, x := range xs {
		sxx += (x - mean) * (x - mean)
	}
	h := make([]float64, len(xs))
	for i, x := range xs {
		h[i] = 1 / n
		if sxx > 0 {
			h[i] += (x - mean) * (x - mean) / sxx
		}
	}
	return h
}

// OLSLinear fits a least squares line and computes its residual diagnostics
func OLSLinear(xs, ys []float64) (*LinearFit, error) {
	if len(xs) != len(ys) {
		return nil, fmt.Errorf("%w: input lengths differ", ErrSolverFailure)
	}
	n := len(xs)
	if n < 3 {
		return nil, fmt.Errorf("%w: %d points for a linear fit", ErrInsufficientData, n)
	}
	if _, sd := stat.MeanStdDev(xs, nil); sd == 0 {
		return nil, fmt.Errorf("%w: all x values are equal", ErrInsufficientData)
	}
	alpha, beta := stat.LinearRegression(xs, ys, nil, false)
	f := &LinearFit{
		Intercept: alpha,
		Slope:     beta,
		Residuals: make([]float64, n),
		Leverage:  Leverage(xs),
	}
	rss := 0.0
	for i := range xs {
		r := ys[i] - (alpha + beta*xs[i])
		f.Residuals[i] = r
		rss += r * r
	}
	f.Sigma = math.Sqrt(rss / float64(n-2))
	return f, nil
}

// Studentized returns the residuals scaled by the error estimate and
// leverage, r / (sigma * sqrt(1 + 1/n + h)).
func (f *LinearFit) Studentized() []float64 {
	n := float64(len(f.Residuals))
	s := make([]float64, len(f.Residuals))
	for i, r := range f.Residuals {
		d := f.Sigma * math.Sqrt(1+1/n+f.Leverage[i])
		if d == 0 {
			continue
		}
		s[i] = r / d
	}
	return s
}

// median returns the median of x without modifying it
func median(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	s := make([]float64, len(x))
	copy(s, x)
	sort.Float64s(s)
	m := len(s) / 2
	if len(s)%2 == 1 {
		return s[m]
	}
	return (s[m-1] + s[m]) / 2
}

// mad returns the median absolute deviation from the median
func mad(x []float64) float64 {
	m := median(x)
	d := make([]float64, len(x))
	for i, v := range x {
		d[i] = math.Abs(v - m)
	}
	return median(d)
}
