package store

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/524D/mzamt/internal/amt"
)

type stateSummary struct {
	ModifiedSequence string
	Mods             [][]amt.ModID
	Mass             float64
	Observations     []amt.Observation
	Stats            amt.Stats
}

type entrySummary struct {
	Sequence string
	Stats    amt.Stats
	States   []stateSummary
}

func summarize(db *amt.Database) []entrySummary {
	var s []entrySummary
	for _, e := range db.Entries() {
		es := entrySummary{Sequence: e.Sequence, Stats: e.Stats()}
		for _, st := range e.States() {
			es.States = append(es.States, stateSummary{
				ModifiedSequence: st.ModifiedSequence,
				Mods:             st.Mods,
				Mass:             st.Mass,
				Observations:     st.Observations,
				Stats:            st.Stats(),
			})
		}
		s = append(s, es)
	}
	return s
}

func testDatabase(t *testing.T) *amt.Database {
	t.Helper()
	db := amt.NewDatabase()
	c := db.Mods()
	cam := c.Canonical(amt.Modification{Residue: 'C', MassDelta: 57.021464, Name: "Carbamidomethyl"})
	ox := c.Canonical(amt.Modification{Residue: 'M', MassDelta: 15.994915, Variable: true, Name: "Oxidation"})
	for i := 0; i < 2; i++ {
		db.AddRun(&amt.Run{
			Coefficients:       []float64{-2 + 0.1*float64(i), 0.01},
			StaticMods:         []amt.ModID{cam},
			VariableMods:       []amt.ModID{ox},
			IdentificationFile: "run.mzid",
			TimeAnalyzed:       time.Date(2019, 3, 1+i, 10, 0, 0, 0, time.UTC),
		}, nil)
	}
	add := func(seq string, mods [][]amt.ModID, o amt.Observation) {
		if err := db.AddObservation(seq, mods, o); err != nil {
			t.Fatal(err)
		}
	}
	add("PEPMTCK", [][]amt.ModID{nil, nil, nil, nil, nil, {cam}, nil},
		amt.Observation{Run: 1, Hydrophobicity: 10.5, Quality: 0.9, Time: 1250, SpectralCount: 2})
	add("PEPMTCK", [][]amt.ModID{nil, nil, nil, {ox}, nil, {cam}, nil},
		amt.Observation{Run: 1, Hydrophobicity: 9.5, Quality: 0.8, Time: 1150, SpectralCount: 1})
	add("PEPMTCK", [][]amt.ModID{nil, nil, nil, nil, nil, {cam}, nil},
		amt.Observation{Run: 2, Hydrophobicity: 10.7, Quality: 0.95, Time: 1060, SpectralCount: 1})
	add("AGLK", nil, amt.Observation{Run: 2, Hydrophobicity: 3.2, Quality: 0.5, Time: 480, SpectralCount: 1})
	return db
}

func TestSaveLoad(t *testing.T) {
	db := testDatabase(t)
	path := filepath.Join(t.TempDir(), "amt.sqlite")
	if err := Save(path, db); err != nil {
		t.Fatalf("Save: %v", err)
	}
	// Saving again replaces the file
	if err := Save(path, db); err != nil {
		t.Fatalf("Save over existing file: %v", err)
	}
	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.ID != db.ID {
		t.Errorf("ID %v, want %v", got.ID, db.ID)
	}
	if diff := cmp.Diff(db.Mods().All(), got.Mods().All()); diff != "" {
		t.Errorf("modifications (-saved +loaded):\n%s", diff)
	}
	if diff := cmp.Diff(db.Runs(), got.Runs()); diff != "" {
		t.Errorf("runs (-saved +loaded):\n%s", diff)
	}
	if diff := cmp.Diff(summarize(db), summarize(got)); diff != "" {
		t.Errorf("entries (-saved +loaded):\n%s", diff)
	}
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "none.sqlite"))
	if err == nil {
		t.Fatal("Load of missing file: expected error")
	}
	if errors.Is(err, ErrSchemaVersion) {
		t.Errorf("missing file reported as schema error")
	}
}
