// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package amt

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Observation is a peptide modification state seen in one run
type Observation struct {
	Run            int     `json:"run"` // run sequence number
	Hydrophobicity float64 `json:"hydrophobicity"`
	Quality        float64 `json:"quality"` // identification probability
	Time           float64 `json:"time"`    // elution time in the run
	SpectralCount  int     `json:"spectralCount,omitempty"`
}

// Stats summarises a set of observations
type Stats struct {
	MedianHydrophobicity float64
	MedianQuality        float64
	HydrophobicityStdDev float64
	Count                int
}

func computeStats(obs []Observation) Stats {
	s := Stats{Count: len(obs)}
	if len(obs) == 0 {
		return s
	}
	h := make([]float64, len(obs))
	q := make([]float64, len(obs))
	for i, o := range obs {
		h[i] = o.Hydrophobicity
		q[i] = o.Quality
	}
	s.MedianHydrophobicity = median(h)
	s.MedianQuality = median(q)
	if len(h) > 1 {
		s.HydrophobicityStdDev = stat.StdDev(h, nil)
	}
	return s
}

// median returns the median of x, sorting x in place
func median(x []float64) float64 {
	if len(x) == 0 {
		return math.NaN()
	}
	sort.Float64s(x)
	m := len(x) / 2
	if len(x)%2 == 1 {
		return x[m]
	}
	return (x[m-1] + x[m]) / 2
}

// ModificationState is one pattern of modifications of a peptide
type ModificationState struct {
	ModifiedSequence string
	Mods             [][]ModID // per position, catalog of the owning database
	Mass             float64   // neutral mass including modifications
	Observations     []Observation
	stats            Stats
}

// Stats returns the derived statistics of the state's observations
func (s *ModificationState) Stats() Stats {
	return s.stats
}

func (s *ModificationState) recompute() {
	s.stats = computeStats(s.Observations)
}

// ObservationForRun returns the observation of run seq, if any
func (s *ModificationState) ObservationForRun(seq int) (Observation, bool) {
	for _, o := range s.Observations {
		if o.Run == seq {
			return o, true
		}
	}
	return Observation{}, false
}

// PeptideEntry aggregates all observations of one peptide sequence
type PeptideEntry struct {
	Sequence                string
	PredictedHydrophobicity float64
	states                  []*ModificationState // sorted by ModifiedSequence
	stats                   Stats
}

// NewPeptideEntry returns an entry without observations
func NewPeptideEntry(seq string) (*PeptideEntry, error) {
	if err := ValidateSequence(seq); err != nil {
		return nil, err
	}
	return &PeptideEntry{
		Sequence:                seq,
		PredictedHydrophobicity: PredictHydrophobicity(seq),
	}, nil
}

// Stats returns the derived statistics over all observations of the entry
func (e *PeptideEntry) Stats() Stats {
	return e.stats
}

// States returns the modification states, ordered by modified sequence
func (e *PeptideEntry) States() []*ModificationState {
	return e.states
}

// State returns the modification state with the given modified sequence
func (e *PeptideEntry) State(modSeq string) *ModificationState {
	i := sort.Search(len(e.states), func(i int) bool {
		return e.states[i].ModifiedSequence >= modSeq
	})
	if i < len(e.states) && e.states[i].ModifiedSequence == modSeq {
		return e.states[i]
	}
	return nil
}

// Observations returns the observations of all states
func (e *PeptideEntry) Observations() []Observation {
	var obs []Observation
	for _, s := range e.states {
		obs = append(obs, s.Observations...)
	}
	return obs
}

// HasRun reports whether the entry was observed in run seq
func (e *PeptideEntry) HasRun(seq int) bool {
	for _, s := range e.states {
		if _, ok := s.ObservationForRun(seq); ok {
			return true
		}
	}
	return false
}

// state returns the state for modSeq, creating it when absent
func (e *PeptideEntry) state(modSeq string, mods [][]ModID, mass float64) *ModificationState {
	i := sort.Search(len(e.states), func(i int) bool {
		return e.states[i].ModifiedSequence >= modSeq
	})
	if i < len(e.states) && e.states[i].ModifiedSequence == modSeq {
		return e.states[i]
	}
	s := &ModificationState{
		ModifiedSequence: modSeq,
		Mods:             cloneMods(mods),
		Mass:             mass,
	}
	e.states = append(e.states, nil)
	copy(e.states[i+1:], e.states[i:])
	e.states[i] = s
	return s
}

// addObservation adds o to a state. An identical observation already
// present is not added again.
func (e *PeptideEntry) addObservation(modSeq string, mods [][]ModID, mass float64, o Observation) {
	s := e.state(modSeq, mods, mass)
	for _, so := range s.Observations {
		if so == o {
			return
		}
	}
	s.Observations = append(s.Observations, o)
}

// removeRun drops all observations of run seq and any state left empty
func (e *PeptideEntry) removeRun(seq int) {
	states := e.states[:0]
	for _, s := range e.states {
		obs := s.Observations[:0]
		for _, o := range s.Observations {
			if o.Run != seq {
				obs = append(obs, o)
			}
		}
		s.Observations = obs
		if len(obs) > 0 {
			states = append(states, s)
		}
	}
	e.states = states
	e.recompute()
}

// recompute derives the statistics of every state and of the entry from
// the observations
func (e *PeptideEntry) recompute() {
	for _, s := range e.states {
		s.recompute()
	}
	e.stats = computeStats(e.Observations())
}

func cloneMods(mods [][]ModID) [][]ModID {
	if mods == nil {
		return nil
	}
	c := make([][]ModID, len(mods))
	for i, m := range mods {
		if len(m) > 0 {
			c[i] = append([]ModID(nil), m...)
		}
	}
	return c
}
