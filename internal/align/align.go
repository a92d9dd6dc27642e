// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

// Package align derives the mapping from elution time to hydrophobicity
// of a run, and reduces a database to the runs most relevant to a target
// run.
package align

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/524D/mzamt/internal/amt"
	"github.com/524D/mzamt/internal/feature"
	"github.com/524D/mzamt/internal/matcher"
	"github.com/524D/mzamt/internal/regress"
)

// Params controls time to hydrophobicity mapping
type Params struct {
	MassTolerance      float64 `json:"massTolerance"`      // ppm, mass-only pre-matching
	MinModalMatches    int     `json:"minModalMatches"`    // pairs required for modal regression
	Degree             int     `json:"degree"`             // degree of the mapping polynomial
	LeverageNumerator  float64 `json:"leverageNumerator"`  // drop points with leverage > LeverageNumerator/n
	StudentizedCutoff  float64 `json:"studentizedCutoff"`  // drop points with |studentized residual| above this
	MaxPruneIterations int     `json:"maxPruneIterations"` // fit/prune rounds
}

// DefaultParams returns the default mapping parameters. The pruning
// constants were tuned on one historical dataset.
func DefaultParams() Params {
	return Params{
		MassTolerance:      10,
		MinModalMatches:    85,
		Degree:             1,
		LeverageNumerator:  4,
		StudentizedCutoff:  2.0,
		MaxPruneIterations: 10,
	}
}

// Mapping is the time to hydrophobicity mapping of a run
type Mapping struct {
	Coefficients []float64 // lowest order first
	Times        []float64 // matched pairs the mapping was fitted on
	H            []float64
}

// Hydrophobicity maps elution time t
func (m *Mapping) Hydrophobicity(t float64) float64 {
	return regress.Polyval(m.Coefficients, t)
}

// CheckTimes fails with amt.ErrDegenerateInput when there are no
// features or none has an elution time
func CheckTimes(fs []*feature.Feature) error {
	if len(fs) == 0 {
		return fmt.Errorf("%w: no features", amt.ErrDegenerateInput)
	}
	for _, f := range fs {
		if f.Time != 0 {
			return nil
		}
	}
	return fmt.Errorf("%w: all %d feature elution times are zero", amt.ErrDegenerateInput, len(fs))
}

// MapRun derives the mapping of a run from a mass-only match of its
// features against the database and writes the mapped hydrophobicity
// into every feature. The matches are dominated by false ones, so the
// mapping is fitted by modal regression, which follows the dense band of
// true matches.
func MapRun(ctx context.Context, svc regress.Service, fs []*feature.Feature,
	db *amt.Database, p Params) (*Mapping, error) {
	if err := CheckTimes(fs); err != nil {
		return nil, err
	}
	slaves := matcher.Generate(db, matcher.DatabaseModSet(db))
	wm := &matcher.WindowMatcher{Params: matcher.Params{
		MassUnit:   matcher.PPM,
		MinMass:    -p.MassTolerance,
		MaxMass:    p.MassTolerance,
		MinElution: math.Inf(-1),
		MaxElution: math.Inf(1),
	}}
	res := wm.Match(fs, slaves)

	m := &Mapping{}
	for _, mm := range res.Matches {
		for _, s := range mm.Slaves {
			m.Times = append(m.Times, mm.Master.Time)
			m.H = append(m.H, s.Slave.Hydrophobicity)
		}
	}
	log.Debugf("Mass-only matching: %d features, %d database features, %d pairs",
		len(fs), len(slaves), len(m.Times))
	if len(m.Times) < p.MinModalMatches {
		return nil, fmt.Errorf("%w: %d mass matches, need %d for modal regression",
			regress.ErrInsufficientData, len(m.Times), p.MinModalMatches)
	}

	c, err := svc.ModalRegression(ctx, m.Times, m.H, p.Degree)
	if err != nil {
		return nil, err
	}
	m.Coefficients = c
	for _, f := range fs {
		f.Hydrophobicity = m.Hydrophobicity(f.Time)
	}
	return m, nil
}

// Pair is a peptide's elution time in the run being mapped with its
// hydrophobicity known from elsewhere
type Pair struct {
	Time           float64
	Hydrophobicity float64
}

// CalculateTHMapCoefficientsWithMatchedFeatures fits a linear time to
// hydrophobicity mapping on matched peptides. Points with high leverage
// and points with large studentized residuals are pruned, refitting after
// each round, before the final robust fit. The result is {intercept,
// slope}.
func CalculateTHMapCoefficientsWithMatchedFeatures(ctx context.Context, svc regress.Service,
	pairs []Pair, p Params) ([]float64, error) {
	xs := make([]float64, len(pairs))
	ys := make([]float64, len(pairs))
	for i, pr := range pairs {
		xs[i] = pr.Time
		ys[i] = pr.Hydrophobicity
	}

	for iter := 0; iter < p.MaxPruneIterations; iter++ {
		if len(xs) < 3 {
			return nil, fmt.Errorf("%w: %d matched peptides left after pruning",
				regress.ErrInsufficientData, len(xs))
		}
		n := float64(len(xs))
		h := regress.Leverage(xs)
		var pruned int
		xs, ys, pruned = keep(xs, ys, func(i int) bool {
			return h[i] <= p.LeverageNumerator/n
		})

		fit, err := regress.OLSLinear(xs, ys)
		if err != nil {
			return nil, err
		}
		st := fit.Studentized()
		var k int
		xs, ys, k = keep(xs, ys, func(i int) bool {
			return math.Abs(st[i]) <= p.StudentizedCutoff
		})
		pruned += k
		log.Debugf("Mapping fit round %d: slope %g, intercept %g, pruned %d",
			iter+1, fit.Slope, fit.Intercept, pruned)
		if pruned == 0 {
			break
		}
	}
	if len(xs) < 3 {
		return nil, fmt.Errorf("%w: %d matched peptides left after pruning",
			regress.ErrInsufficientData, len(xs))
	}

	intercept, slope, err := svc.RobustRegression(ctx, xs, ys)
	if err != nil {
		return nil, err
	}
	return []float64{intercept, slope}, nil
}

// keep returns the points for which ok holds and the number dropped
func keep(xs, ys []float64, ok func(i int) bool) ([]float64, []float64, int) {
	kx := make([]float64, 0, len(xs))
	ky := make([]float64, 0, len(ys))
	for i := range xs {
		if ok(i) {
			kx = append(kx, xs[i])
			ky = append(ky, ys[i])
		}
	}
	return kx, ky, len(xs) - len(kx)
}

// RunPairs returns, for every peptide observed in run seq and in at least
// one other run, its time in seq and its median hydrophobicity in the
// other runs
func RunPairs(db *amt.Database, seq int) []Pair {
	var pairs []Pair
	for _, ro := range db.ObservationsForRun(seq) {
		var hs []float64
		for _, o := range ro.Entry.Observations() {
			if o.Run != seq {
				hs = append(hs, o.Hydrophobicity)
			}
		}
		if len(hs) == 0 {
			continue
		}
		pairs = append(pairs, Pair{Time: ro.Time, Hydrophobicity: medianOf(hs)})
	}
	return pairs
}

// medianOf returns the median of x, sorting x in place
func medianOf(x []float64) float64 {
	sort.Float64s(x)
	m := len(x) / 2
	if len(x)%2 == 1 {
		return x[m]
	}
	return (x[m-1] + x[m]) / 2
}

// AlignDatabase re-derives the mapping of every run from the peptides it
// shares with the other runs, and recomputes the observed hydrophobicity
// of its observations. Runs that cannot be calibrated keep their mapping
// and are returned with the reason.
func AlignDatabase(ctx context.Context, svc regress.Service, db *amt.Database,
	p Params) (map[int]error, error) {
	skipped := make(map[int]error)
	for _, r := range db.Runs() {
		pairs := RunPairs(db, r.Seq)
		c, err := CalculateTHMapCoefficientsWithMatchedFeatures(ctx, svc, pairs, p)
		if err != nil {
			if errors.Is(err, regress.ErrSolverFailure) || errors.Is(err, regress.ErrInsufficientData) {
				log.Warnf("Run %d: keeping previous mapping: %v", r.Seq, err)
				skipped[r.Seq] = err
				continue
			}
			return skipped, err
		}
		r.SetCoefficients(c)
		if err := db.RemapRunHydrophobicity(r.Seq); err != nil {
			return skipped, err
		}
		log.Infof("Run %d: H = %.4g + %.4g t (%d shared peptides)", r.Seq, c[0], c[1], len(pairs))
	}
	return skipped, nil
}
