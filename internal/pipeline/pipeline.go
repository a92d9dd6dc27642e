// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

// Package pipeline runs the steps that build a database from
// identifications, and that match the features of a run against a
// database.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	log "github.com/sirupsen/logrus"

	"github.com/524D/mzamt/internal/align"
	"github.com/524D/mzamt/internal/amt"
	"github.com/524D/mzamt/internal/feature"
	"github.com/524D/mzamt/internal/matcher"
	"github.com/524D/mzamt/internal/prob"
	"github.com/524D/mzamt/internal/regress"
)

// Params holds the parameters of all steps
type Params struct {
	Matcher       string             `json:"matcher"` // name in the matcher registry
	Match         matcher.Params     `json:"match"`
	Align         align.Params       `json:"align"`
	Prob          prob.Params        `json:"prob"`
	Reduce        align.ReduceParams `json:"reduce"`
	IgnoreUnknown bool               `json:"ignoreUnknownMods"`
}

// DefaultParams returns the default parameters of all steps
func DefaultParams() Params {
	return Params{
		Matcher: "window",
		Match:   matcher.DefaultParams(),
		Align:   align.DefaultParams(),
		Prob:    prob.DefaultParams(),
		Reduce:  align.DefaultReduceParams(),
	}
}

// Build adds a run and its identifications to db. The run's time to
// hydrophobicity mapping is fitted on the identified peptides, against
// their median hydrophobicity in db when present and their predicted
// hydrophobicity otherwise. The observed hydrophobicity of every
// identification is the mapped time.
func Build(ctx context.Context, svc regress.Service, db *amt.Database, r *amt.Run,
	from *amt.ModCatalog, ids []amt.Identification, p Params) (*amt.Run, error) {
	pairs := make([]align.Pair, 0, len(ids))
	known := 0
	for _, id := range ids {
		h := amt.PredictHydrophobicity(id.Sequence)
		if e := db.Entry(id.Sequence); e != nil && e.Stats().Count > 0 {
			h = e.Stats().MedianHydrophobicity
			known++
		}
		pairs = append(pairs, align.Pair{Time: id.Time, Hydrophobicity: h})
	}
	log.Debugf("Mapping on %d identifications, %d known in the database", len(pairs), known)
	c, err := align.CalculateTHMapCoefficientsWithMatchedFeatures(ctx, svc, pairs, p.Align)
	if err != nil {
		return nil, err
	}

	nr := *r
	nr.SetCoefficients(c)
	mapped := make([]amt.Identification, len(ids))
	for i, id := range ids {
		id.Hydrophobicity = nr.Hydrophobicity(id.Time)
		mapped[i] = id
	}
	return db.AddRunObservations(&nr, from, mapped, p.IgnoreUnknown)
}

// RunResult is the outcome of matching one run against a database
type RunResult struct {
	Mapping     *align.Mapping
	Features    []*feature.Feature // master features, with mapped hydrophobicity
	Target      *matcher.Result
	Decoy       *matcher.Result
	Assignment  *prob.Assignment
	Resolutions []prob.Resolution
}

// Accepted returns the accepted resolutions
func (rr *RunResult) Accepted() []prob.Resolution {
	var acc []prob.Resolution
	for _, r := range rr.Resolutions {
		if r.Accepted {
			acc = append(acc, r)
		}
	}
	return acc
}

// Match maps the features of a run onto the hydrophobicity scale of db,
// matches them against the database features and their decoys, assigns
// match probabilities and resolves the peptide of every matched feature
func Match(ctx context.Context, svc regress.Service, fs []*feature.Feature,
	db *amt.Database, p Params) (*RunResult, error) {
	m, err := matcher.New(p.Matcher, p.Match)
	if err != nil {
		return nil, err
	}
	mapping, err := align.MapRun(ctx, svc, fs, db, p.Align)
	if err != nil {
		return nil, err
	}
	slaves := matcher.Generate(db, matcher.DatabaseModSet(db))
	rr := &RunResult{
		Mapping:  mapping,
		Features: fs,
		Target:   m.Match(fs, slaves),
		Decoy:    m.Match(fs, matcher.Decoy(slaves, p.Prob.DecoyOffset)),
	}
	log.Debugf("%d target and %d decoy pairs", rr.Target.NumPairs(), rr.Decoy.NumPairs())

	rr.Assignment, err = prob.Assign(ctx, svc, rr.Target, rr.Decoy, p.Prob)
	if err != nil {
		return nil, err
	}
	rr.Resolutions = prob.Resolve(rr.Assignment, p.Prob)
	return rr, nil
}

// RunInput is a named feature set
type RunInput struct {
	Name     string
	Features []*feature.Feature
}

// Outcome is the result of one run of MatchAll. Err is set when the run
// was skipped.
type Outcome struct {
	Name   string
	Result *RunResult
	Err    error
}

// Skipped reports whether the run was skipped
func (o *Outcome) Skipped() bool {
	return o.Err != nil
}

// skippable errors make MatchAll continue with the next run
func skippable(err error) bool {
	return errors.Is(err, regress.ErrSolverFailure) ||
		errors.Is(err, regress.ErrInsufficientData)
}

// MatchAll matches every run against db. A run whose regression fails or
// has too little data is skipped with the reason logged; other errors
// stop processing.
func MatchAll(ctx context.Context, svc regress.Service, runs []RunInput,
	db *amt.Database, p Params) ([]Outcome, error) {
	outcomes := make([]Outcome, 0, len(runs))
	for _, r := range runs {
		res, err := Match(ctx, svc, r.Features, db, p)
		if err != nil {
			if !skippable(err) {
				return outcomes, fmt.Errorf("%s: %w", r.Name, err)
			}
			log.Warnf("Skipping %s: %v", r.Name, err)
			outcomes = append(outcomes, Outcome{Name: r.Name, Err: err})
			continue
		}
		log.Infof("%s: %d of %d matched features accepted", r.Name,
			len(res.Accepted()), len(res.Resolutions))
		outcomes = append(outcomes, Outcome{Name: r.Name, Result: res})
	}
	return outcomes, nil
}

// FoldIn adds the matched run to db: a new run with the fitted mapping
// and the database's modifications, with one observation per accepted
// resolution. The observation quality is the resolution confidence.
// Observations keep the modifications of the matched database feature.
func FoldIn(db *amt.Database, rr *RunResult, spectraFile string) (*amt.Run, error) {
	ms := matcher.DatabaseModSet(db)
	r := &amt.Run{
		StaticMods:   ms.Static,
		VariableMods: ms.Variable,
		SpectraFile:  spectraFile,
	}
	r.SetCoefficients(rr.Mapping.Coefficients)

	var ids []amt.Identification
	for _, res := range rr.Accepted() {
		ids = append(ids, amt.Identification{
			Sequence:       res.Peptide(),
			Modified:       res.Best.Slave.Mods,
			Mods:           res.Best.Slave.ModIDs,
			Time:           res.Master.Time,
			Hydrophobicity: res.Master.Hydrophobicity,
			Quality:        res.Confidence,
			SpectralCount:  1,
		})
	}
	return db.AddRunObservations(r, nil, ids, false)
}
