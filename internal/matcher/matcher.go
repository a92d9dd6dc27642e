// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

// Package matcher matches features of a run (masters) against features
// generated from a database (slaves) within a mass and elution window.
package matcher

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/524D/mzamt/internal/feature"
)

// ErrUnknownMatcher is returned by New for an unregistered matcher name
var ErrUnknownMatcher = errors.New("unknown matcher")

// MassUnit selects how mass errors are expressed
type MassUnit int

const (
	PPM MassUnit = iota
	Dalton
)

func (u MassUnit) String() string {
	if u == Dalton {
		return "Da"
	}
	return "ppm"
}

// Params is the match window. Bounds are inclusive. The mass error is
// (m_master - m_slave)/m_slave*1e6 for PPM, m_master - m_slave for
// Dalton; the elution error is H_master - H_slave.
type Params struct {
	MassUnit   MassUnit `json:"massUnit"`
	MinMass    float64  `json:"minMass"`
	MaxMass    float64  `json:"maxMass"`
	MinElution float64  `json:"minElution"`
	MaxElution float64  `json:"maxElution"`
}

// DefaultParams returns a window of ±10 ppm and ±0.15 hydrophobicity
func DefaultParams() Params {
	return Params{
		MassUnit:   PPM,
		MinMass:    -10,
		MaxMass:    10,
		MinElution: -0.15,
		MaxElution: 0.15,
	}
}

// Area returns the area of the match window
func (p Params) Area() float64 {
	return (p.MaxMass - p.MinMass) * (p.MaxElution - p.MinElution)
}

// MassError returns the mass error of master mass m against slave mass s
func (p Params) MassError(m, s float64) float64 {
	if p.MassUnit == Dalton {
		return m - s
	}
	return (m - s) / s * 1e6
}

// slaveMassRange returns the slave masses that can match master mass m
func (p Params) slaveMassRange(m float64) (float64, float64) {
	if p.MassUnit == Dalton {
		return m - p.MaxMass, m - p.MinMass
	}
	return m / (1 + p.MaxMass*1e-6), m / (1 + p.MinMass*1e-6)
}

// SlaveMatch is one slave feature matching a master
type SlaveMatch struct {
	Slave        *feature.Feature
	MassError    float64
	ElutionError float64
}

// Match holds all slaves matching one master feature
type Match struct {
	Master *feature.Feature
	Slaves []SlaveMatch
}

// Result holds the matches of all master features that matched at least
// one slave, in master order
type Result struct {
	Params  Params
	Matches []Match
}

// NumPairs returns the number of master/slave pairs
func (r *Result) NumPairs() int {
	n := 0
	for _, m := range r.Matches {
		n += len(m.Slaves)
	}
	return n
}

// Errors returns the mass and elution errors of all pairs
func (r *Result) Errors() (massErr, elutionErr []float64) {
	n := r.NumPairs()
	massErr = make([]float64, 0, n)
	elutionErr = make([]float64, 0, n)
	for _, m := range r.Matches {
		for _, s := range m.Slaves {
			massErr = append(massErr, s.MassError)
			elutionErr = append(elutionErr, s.ElutionError)
		}
	}
	return massErr, elutionErr
}

// ForMaster returns the match of master f, if any
func (r *Result) ForMaster(f *feature.Feature) (Match, bool) {
	for _, m := range r.Matches {
		if m.Master == f {
			return m, true
		}
	}
	return Match{}, false
}

// Matcher matches master features against slave features
type Matcher interface {
	Match(master, slave []*feature.Feature) *Result
}

// WindowMatcher returns every slave within the window of a master
type WindowMatcher struct {
	Params Params
}

// Match implements Matcher
func (wm *WindowMatcher) Match(master, slave []*feature.Feature) *Result {
	p := wm.Params
	slaves := make([]*feature.Feature, len(slave))
	copy(slaves, slave)
	feature.SortByMass(slaves)

	res := &Result{Params: p}
	for _, mf := range master {
		lo, hi := p.slaveMassRange(mf.Mass)
		// widen slightly, the exact error is checked below
		slack := 1e-9 * math.Max(1, math.Abs(hi))
		i := sort.Search(len(slaves), func(i int) bool {
			return slaves[i].Mass >= lo-slack
		})
		var sm []SlaveMatch
		for ; i < len(slaves) && slaves[i].Mass <= hi+slack; i++ {
			s := slaves[i]
			me := p.MassError(mf.Mass, s.Mass)
			if me < p.MinMass || me > p.MaxMass {
				continue
			}
			ee := mf.Hydrophobicity - s.Hydrophobicity
			if ee < p.MinElution || ee > p.MaxElution {
				continue
			}
			sm = append(sm, SlaveMatch{Slave: s, MassError: me, ElutionError: ee})
		}
		if len(sm) > 0 {
			res.Matches = append(res.Matches, Match{Master: mf, Slaves: sm})
		}
	}
	return res
}

// NearestMatcher keeps, per master, only the slave closest to it in the
// window, with both errors scaled by the window width
type NearestMatcher struct {
	Params Params
}

// Match implements Matcher
func (nm *NearestMatcher) Match(master, slave []*feature.Feature) *Result {
	wm := WindowMatcher{Params: nm.Params}
	res := wm.Match(master, slave)
	mw := nm.Params.MaxMass - nm.Params.MinMass
	ew := nm.Params.MaxElution - nm.Params.MinElution
	dist := func(s SlaveMatch) float64 {
		d := 0.0
		if mw > 0 {
			d += (s.MassError / mw) * (s.MassError / mw)
		}
		if ew > 0 {
			d += (s.ElutionError / ew) * (s.ElutionError / ew)
		}
		return d
	}
	for i, m := range res.Matches {
		best := m.Slaves[0]
		for _, s := range m.Slaves[1:] {
			if dist(s) < dist(best) {
				best = s
			}
		}
		res.Matches[i].Slaves = []SlaveMatch{best}
	}
	return res
}

var registry = map[string]func(Params) Matcher{
	"window":  func(p Params) Matcher { return &WindowMatcher{Params: p} },
	"nearest": func(p Params) Matcher { return &NearestMatcher{Params: p} },
}

// New returns the matcher registered under name
func New(name string, p Params) (Matcher, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q (known: %v)", ErrUnknownMatcher, name, Names())
	}
	return f(p), nil
}

// Names returns the registered matcher names
func Names() []string {
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
