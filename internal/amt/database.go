// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

// Package amt holds the accurate mass and time database: runs,
// modifications and peptide entries with their modification states and
// per-run observations.
//
// Runs and modifications are stored in arrays owned by the database and
// referred to by sequence number and ModID. Data coming from another
// database or another catalog is translated with a Remap when it is
// folded in. Summary statistics are derived from the observations and
// recomputed after every mutation.
package amt

import (
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// Remap translates references of a foreign database into this one. A nil
// Remap, or a missing key, leaves the reference unchanged.
type Remap struct {
	Mods ModMap
	Runs map[int]int // foreign run seq -> run seq
}

func (rm *Remap) mod(id ModID) ModID {
	if rm == nil {
		return id
	}
	if n, ok := rm.Mods[id]; ok {
		return n
	}
	return id
}

func (rm *Remap) run(seq int) int {
	if rm == nil {
		return seq
	}
	if n, ok := rm.Runs[seq]; ok {
		return n
	}
	return seq
}

func (rm *Remap) mods(mods [][]ModID) [][]ModID {
	c := cloneMods(mods)
	for _, pos := range c {
		for j, id := range pos {
			pos[j] = rm.mod(id)
		}
	}
	return c
}

// Database is an accurate mass and time database
type Database struct {
	ID      uuid.UUID
	mods    ModCatalog
	runs    []*Run
	entries map[string]*PeptideEntry
}

// NewDatabase returns an empty database with a fresh ID
func NewDatabase() *Database {
	return &Database{
		ID:      uuid.New(),
		entries: make(map[string]*PeptideEntry),
	}
}

// Mods returns the modification catalog of the database
func (db *Database) Mods() *ModCatalog {
	return &db.mods
}

// NumRuns returns the number of runs
func (db *Database) NumRuns() int {
	return len(db.runs)
}

// NumEntries returns the number of peptide entries
func (db *Database) NumEntries() int {
	return len(db.entries)
}

// Runs returns all runs in sequence order
func (db *Database) Runs() []*Run {
	return db.runs
}

// Run returns the run with sequence number seq, or nil
func (db *Database) Run(seq int) *Run {
	if seq < 1 || seq > len(db.runs) {
		return nil
	}
	return db.runs[seq-1]
}

// Entry returns the entry for a peptide sequence, or nil
func (db *Database) Entry(seq string) *PeptideEntry {
	return db.entries[seq]
}

// Entries returns all entries ordered by sequence
func (db *Database) Entries() []*PeptideEntry {
	entries := make([]*PeptideEntry, 0, len(db.entries))
	for _, e := range db.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Sequence < entries[j].Sequence
	})
	return entries
}

// AddRun copies r into the database as the next run. Modification IDs of
// r refer to catalog from (nil means the database's own catalog); they are
// replaced by the IDs of equivalent modifications in the database
// catalog. The returned map holds the translation for every modification
// of the run.
func (db *Database) AddRun(r *Run, from *ModCatalog) (*Run, ModMap) {
	nr := r.clone()
	nr.Seq = len(db.runs) + 1
	mm := make(ModMap)
	canon := func(ids []ModID) {
		for i, id := range ids {
			if from == nil {
				mm[id] = id
				continue
			}
			n := db.mods.Canonical(from.Get(id))
			mm[id] = n
			ids[i] = n
		}
	}
	canon(nr.StaticMods)
	canon(nr.VariableMods)
	db.runs = append(db.runs, nr)
	return nr, mm
}

// AddObservation adds one observation of a modification state. mods
// refers to the database catalog.
func (db *Database) AddObservation(seq string, mods [][]ModID, o Observation) error {
	if db.Run(o.Run) == nil {
		return fmt.Errorf("%w: %d", ErrUnknownRun, o.Run)
	}
	if err := db.mods.check(mods); err != nil {
		return err
	}
	e := db.entries[seq]
	if e == nil {
		var err error
		e, err = NewPeptideEntry(seq)
		if err != nil {
			return err
		}
		db.entries[seq] = e
	}
	if err := db.addToEntry(e, mods, o); err != nil {
		return err
	}
	e.recompute()
	return nil
}

func (db *Database) addToEntry(e *PeptideEntry, mods [][]ModID, o Observation) error {
	mass, err := ModifiedMass(e.Sequence, mods, &db.mods)
	if err != nil {
		return err
	}
	e.addObservation(ModifiedSequence(e.Sequence, mods, &db.mods), mods, mass, o)
	return nil
}

// AddObservationsFromEntry merges the observations of e into the entry
// with the same sequence, creating it if needed. Observations are added
// to the matching modification state; remap translates the references of
// e. Nothing is added when any reference cannot be translated.
func (db *Database) AddObservationsFromEntry(e *PeptideEntry, remap *Remap) error {
	type add struct {
		modSeq string
		mods   [][]ModID
		mass   float64
		obs    Observation
	}
	var adds []add
	for _, s := range e.states {
		mods := remap.mods(s.Mods)
		if err := db.mods.check(mods); err != nil {
			return fmt.Errorf("peptide %s: %w", e.Sequence, err)
		}
		mass, err := ModifiedMass(e.Sequence, mods, &db.mods)
		if err != nil {
			return err
		}
		modSeq := ModifiedSequence(e.Sequence, mods, &db.mods)
		for _, o := range s.Observations {
			o.Run = remap.run(o.Run)
			if db.Run(o.Run) == nil {
				return fmt.Errorf("%w: %d (peptide %s)", ErrUnknownRun, o.Run, e.Sequence)
			}
			adds = append(adds, add{modSeq, mods, mass, o})
		}
	}

	target := db.entries[e.Sequence]
	if target == nil {
		target = &PeptideEntry{
			Sequence:                e.Sequence,
			PredictedHydrophobicity: e.PredictedHydrophobicity,
		}
	}
	for _, a := range adds {
		target.addObservation(a.modSeq, a.mods, a.mass, a.obs)
	}
	target.recompute()
	if len(target.states) > 0 {
		db.entries[e.Sequence] = target
	}
	return nil
}

// AddOrOverrideEntry replaces any entry with the same sequence by e
func (db *Database) AddOrOverrideEntry(e *PeptideEntry, remap *Remap) error {
	prev := db.entries[e.Sequence]
	delete(db.entries, e.Sequence)
	if err := db.AddObservationsFromEntry(e, remap); err != nil {
		if prev != nil {
			db.entries[e.Sequence] = prev
		}
		return err
	}
	return nil
}

// RemoveEntry removes the entry for a peptide sequence
func (db *Database) RemoveEntry(seq string) bool {
	if _, ok := db.entries[seq]; !ok {
		return false
	}
	delete(db.entries, seq)
	return true
}

// RemoveRunObservations drops all observations of run seq. Entries left
// without observations are removed; the run itself stays.
func (db *Database) RemoveRunObservations(seq int) {
	for pep, e := range db.entries {
		if !e.HasRun(seq) {
			continue
		}
		e.removeRun(seq)
		if len(e.states) == 0 {
			delete(db.entries, pep)
		}
	}
}

// RemapRunHydrophobicity recomputes the observed hydrophobicity of every
// observation of run seq from its time, using the run's current mapping
func (db *Database) RemapRunHydrophobicity(seq int) error {
	r := db.Run(seq)
	if r == nil {
		return fmt.Errorf("%w: %d", ErrUnknownRun, seq)
	}
	for _, e := range db.entries {
		changed := false
		for _, s := range e.states {
			for i := range s.Observations {
				if s.Observations[i].Run == seq {
					s.Observations[i].Hydrophobicity = r.Hydrophobicity(s.Observations[i].Time)
					changed = true
				}
			}
		}
		if changed {
			e.recompute()
		}
	}
	return nil
}

// importRuns adds all runs of other and returns the translation of
// other's references
func (db *Database) importRuns(other *Database) *Remap {
	rm := &Remap{
		Mods: make(ModMap),
		Runs: make(map[int]int),
	}
	for i := range other.mods.mods {
		rm.Mods[ModID(i)] = db.mods.Canonical(other.mods.mods[i])
	}
	for _, r := range other.runs {
		nr, _ := db.AddRun(r, &other.mods)
		rm.Runs[r.Seq] = nr.Seq
	}
	return rm
}

// AddObservationsFromAnotherDatabase adds all runs of other and merges
// its entries
func (db *Database) AddObservationsFromAnotherDatabase(other *Database) error {
	rm := db.importRuns(other)
	for _, e := range other.Entries() {
		if err := db.AddObservationsFromEntry(e, rm); err != nil {
			return err
		}
	}
	return nil
}

// AddOrOverrideEntriesWithAnotherDatabase adds all runs of other. Its
// entries replace entries with the same sequence.
func (db *Database) AddOrOverrideEntriesWithAnotherDatabase(other *Database) error {
	rm := db.importRuns(other)
	for _, e := range other.Entries() {
		if err := db.AddOrOverrideEntry(e, rm); err != nil {
			return err
		}
	}
	return nil
}

// PeptideEntriesForRun returns the entries observed in run seq, ordered
// by sequence
func (db *Database) PeptideEntriesForRun(seq int) []*PeptideEntry {
	var entries []*PeptideEntry
	for _, e := range db.Entries() {
		if e.HasRun(seq) {
			entries = append(entries, e)
		}
	}
	return entries
}

// RunObservation is an observation together with the entry and state it
// belongs to
type RunObservation struct {
	Entry *PeptideEntry
	State *ModificationState
	Observation
}

// ObservationsForRun returns all observations of run seq, ordered by
// peptide and modified sequence
func (db *Database) ObservationsForRun(seq int) []RunObservation {
	var obs []RunObservation
	for _, e := range db.Entries() {
		for _, s := range e.states {
			if o, ok := s.ObservationForRun(seq); ok {
				obs = append(obs, RunObservation{Entry: e, State: s, Observation: o})
			}
		}
	}
	return obs
}

// ReducedCopy returns a new database holding only the listed runs,
// renumbered in the given order, and their observations
func (db *Database) ReducedCopy(runSeqs []int) (*Database, error) {
	rdb := NewDatabase()
	rm := &Remap{Mods: make(ModMap), Runs: make(map[int]int)}
	for _, seq := range runSeqs {
		r := db.Run(seq)
		if r == nil {
			return nil, fmt.Errorf("%w: %d", ErrUnknownRun, seq)
		}
		if _, dup := rm.Runs[seq]; dup {
			continue
		}
		nr, mm := rdb.AddRun(r, &db.mods)
		rm.Runs[seq] = nr.Seq
		for k, v := range mm {
			rm.Mods[k] = v
		}
	}
	for _, e := range db.Entries() {
		var keep *PeptideEntry
		for _, s := range e.states {
			for _, o := range s.Observations {
				if _, ok := rm.Runs[o.Run]; !ok {
					continue
				}
				if keep == nil {
					keep = &PeptideEntry{
						Sequence:                e.Sequence,
						PredictedHydrophobicity: e.PredictedHydrophobicity,
					}
				}
				// States may carry modifications of runs that were not
				// kept, so canonicalize those too
				mods := cloneMods(s.Mods)
				for _, pos := range mods {
					for j, id := range pos {
						n, ok := rm.Mods[id]
						if !ok {
							n = rdb.mods.Canonical(db.mods.Get(id))
							rm.Mods[id] = n
						}
						pos[j] = n
					}
				}
				o.Run = rm.Runs[o.Run]
				if err := rdb.addToEntry(keep, mods, o); err != nil {
					return nil, err
				}
			}
		}
		if keep != nil {
			keep.recompute()
			rdb.entries[keep.Sequence] = keep
		}
	}
	return rdb, nil
}

// Identification is a peptide identified in a run, as delivered by a
// search engine. Mods, when set, gives the modifications per residue in
// the database catalog and takes precedence over Modified.
type Identification struct {
	Sequence       string
	Modified       []ModifiedResidue
	Mods           [][]ModID
	Time           float64
	Hydrophobicity float64
	Quality        float64
	SpectralCount  int
}

// AddRunObservations adds run r (modifications in catalog from) and one
// observation per identified peptide modification state. Repeated
// identifications of a state keep the best quality; their spectral
// counts add up. When any identification is rejected, the database is
// left unchanged and the returned run is nil.
func (db *Database) AddRunObservations(r *Run, from *ModCatalog,
	ids []Identification, ignoreUnknown bool) (*Run, error) {
	nRuns, nMods := len(db.runs), db.mods.Len()
	nr, _ := db.AddRun(r, from)
	rollback := func(err error) (*Run, error) {
		db.runs = db.runs[:nRuns]
		db.mods.mods = db.mods.mods[:nMods]
		return nil, err
	}

	type key struct{ seq, modSeq string }
	type pending struct {
		mods [][]ModID
		mass float64
		obs  Observation
	}
	best := make(map[key]*pending)
	var order []key
	for _, id := range ids {
		if err := ValidateSequence(id.Sequence); err != nil {
			return rollback(err)
		}
		mods := id.Mods
		if mods != nil {
			if err := db.checkMods(id.Sequence, mods, nr); err != nil {
				return rollback(err)
			}
			mods = cloneMods(mods)
		} else {
			var err error
			mods, err = db.ResolveModifications(id.Sequence, id.Modified, nr.Seq, ignoreUnknown)
			if err != nil {
				return rollback(err)
			}
		}
		mass, err := ModifiedMass(id.Sequence, mods, &db.mods)
		if err != nil {
			return rollback(err)
		}
		k := key{id.Sequence, ModifiedSequence(id.Sequence, mods, &db.mods)}
		count := id.SpectralCount
		if count == 0 {
			count = 1
		}
		o := Observation{
			Run:            nr.Seq,
			Hydrophobicity: id.Hydrophobicity,
			Quality:        id.Quality,
			Time:           id.Time,
			SpectralCount:  count,
		}
		p, ok := best[k]
		if !ok {
			best[k] = &pending{mods: mods, mass: mass, obs: o}
			order = append(order, k)
			continue
		}
		if o.Quality > p.obs.Quality {
			o.SpectralCount += p.obs.SpectralCount
			p.obs = o
		} else {
			p.obs.SpectralCount += o.SpectralCount
		}
	}

	touched := make(map[string]*PeptideEntry)
	for _, k := range order {
		p := best[k]
		e := db.entries[k.seq]
		if e == nil {
			e, _ = NewPeptideEntry(k.seq)
			db.entries[k.seq] = e
		}
		e.addObservation(k.modSeq, p.mods, p.mass, p.obs)
		touched[k.seq] = e
	}
	for _, e := range touched {
		e.recompute()
	}
	return nr, nil
}
