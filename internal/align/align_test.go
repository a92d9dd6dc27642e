package align

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/524D/mzamt/internal/amt"
	"github.com/524D/mzamt/internal/feature"
	"github.com/524D/mzamt/internal/regress"
)

var svc = regress.NewLocal(time.Minute)

// twoRunDatabase returns a database where run A maps H = 0.01*t - 2 and
// run B H = 0.012*t - 1.8, sharing 50 peptides. Peptides 10 and 30 are
// observed 300 s late in run B.
func twoRunDatabase(t *testing.T) *amt.Database {
	t.Helper()
	db := amt.NewDatabase()
	a, _ := db.AddRun(&amt.Run{Coefficients: []float64{-2, 0.01}}, nil)
	b, _ := db.AddRun(&amt.Run{Coefficients: []float64{-1.8, 0.012}}, nil)
	letters := "ACDEFGHIKLMNPQRSTVWY"
	for i := 0; i < 50; i++ {
		seq := string(letters[i%20]) + strings.Repeat(string(letters[(i/20)+3]), 4) + "K"
		seq = seq + string(letters[(i*7)%20])
		h := -1 + 0.5*float64(i) + 0.001*float64(i%5-2)
		tA := (h + 2) / 0.01
		tB := (h + 1.8) / 0.012
		if i == 10 || i == 30 {
			tB += 300
		}
		obs := []amt.Observation{
			{Run: a.Seq, Time: tA, Hydrophobicity: a.Hydrophobicity(tA), Quality: 0.9},
			{Run: b.Seq, Time: tB, Hydrophobicity: b.Hydrophobicity(tB), Quality: 0.9},
		}
		for _, o := range obs {
			if err := db.AddObservation(seq, nil, o); err != nil {
				t.Fatal(err)
			}
		}
	}
	if db.NumEntries() != 50 {
		t.Fatalf("expected 50 distinct peptides, got %d", db.NumEntries())
	}
	return db
}

func TestCalculateTHMapCoefficientsWithMatchedFeatures(t *testing.T) {
	db := twoRunDatabase(t)
	pairs := RunPairs(db, 2)
	if len(pairs) != 50 {
		t.Fatalf("expected 50 pairs, got %d", len(pairs))
	}
	c, err := CalculateTHMapCoefficientsWithMatchedFeatures(context.Background(), svc, pairs, DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(c[0]+1.8) > 0.02 || math.Abs(c[1]-0.012) > 1e-4 {
		t.Errorf("expected H = 0.012 t - 1.8, got H = %v t + %v", c[1], c[0])
	}

	_, err = CalculateTHMapCoefficientsWithMatchedFeatures(context.Background(), svc, pairs[:2], DefaultParams())
	if !errors.Is(err, regress.ErrInsufficientData) {
		t.Errorf("expected %v, got %v", regress.ErrInsufficientData, err)
	}
}

func TestAlignDatabase(t *testing.T) {
	db := twoRunDatabase(t)
	// Start run B from a poor mapping
	db.Run(2).SetCoefficients([]float64{0, 0.01})
	if err := db.RemapRunHydrophobicity(2); err != nil {
		t.Fatal(err)
	}
	skipped, err := AlignDatabase(context.Background(), svc, db, DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	if len(skipped) != 0 {
		t.Errorf("skipped runs: %v", skipped)
	}
	// Run A is fitted against the poor B mapping first, then B against
	// the new A mapping: B ends up expressed in A's scale.
	a := db.Run(1).Coefficients
	b := db.Run(2).Coefficients
	for _, tA := range []float64{500, 1500, 2500} {
		h := regress.Polyval(a, tA)
		tB := (0.01*tA - 2 + 1.8) / 0.012
		if d := math.Abs(regress.Polyval(b, tB) - h); d > 0.05 {
			t.Errorf("runs disagree by %v at A time %v", d, tA)
		}
	}
}

func randomSequence(rng *rand.Rand) string {
	letters := "ACDEFGHIKLMNPQRSTVWY"
	n := 8 + rng.IntN(8)
	b := make([]byte, n)
	for i := range b {
		b[i] = letters[rng.IntN(len(letters))]
	}
	return string(b)
}

func TestMapRun(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 8))
	db := amt.NewDatabase()
	r, _ := db.AddRun(&amt.Run{Coefficients: []float64{0, 1}}, nil)
	var fs []*feature.Feature
	for i := 0; i < 150; i++ {
		seq := randomSequence(rng)
		h := rng.Float64() * 40
		if err := db.AddObservation(seq, nil, amt.Observation{Run: r.Seq, Hydrophobicity: h}); err != nil {
			t.Fatal(err)
		}
		m, _ := amt.PeptideMass(seq)
		fs = append(fs, &feature.Feature{
			ID:   i,
			Mass: m * (1 + rng.NormFloat64()*2e-6),
			Time: (db.Entry(seq).Stats().MedianHydrophobicity+2)/0.01 + rng.NormFloat64()*5,
		})
	}
	// Unidentifiable features
	for i := 0; i < 100; i++ {
		fs = append(fs, &feature.Feature{
			ID:   1000 + i,
			Mass: 700 + rng.Float64()*2000,
			Time: 200 + rng.Float64()*4000,
		})
	}

	m, err := MapRun(context.Background(), svc, fs, db, DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(m.Coefficients[1]-0.01) > 5e-4 || math.Abs(m.Coefficients[0]+2) > 0.5 {
		t.Errorf("expected H = 0.01 t - 2, got %v", m.Coefficients)
	}
	if fs[0].Hydrophobicity != m.Hydrophobicity(fs[0].Time) {
		t.Errorf("feature hydrophobicity not set from mapping")
	}

	p := DefaultParams()
	p.MinModalMatches = 1000
	if _, err := MapRun(context.Background(), svc, fs, db, p); !errors.Is(err, regress.ErrInsufficientData) {
		t.Errorf("expected %v, got %v", regress.ErrInsufficientData, err)
	}
	zero := []*feature.Feature{{Mass: 1000}, {Mass: 1100}}
	if _, err := MapRun(context.Background(), svc, zero, db, p); !errors.Is(err, amt.ErrDegenerateInput) {
		t.Errorf("expected %v, got %v", amt.ErrDegenerateInput, err)
	}
	if _, err := MapRun(context.Background(), svc, nil, db, p); !errors.Is(err, amt.ErrDegenerateInput) {
		t.Errorf("expected %v, got %v", amt.ErrDegenerateInput, err)
	}
}

// reductionDatabase has 5 runs with target peptides T0..T9:
// run 1: T0 T1 X1, run 2: T0..T7 X2 X3, run 3: T3..T7 X4,
// run 4: T5..T9 X5, run 5: X6
func reductionDatabase(t *testing.T) (*amt.Database, []string) {
	t.Helper()
	target := make([]string, 10)
	for i := range target {
		target[i] = strings.Repeat(string("ACDEFGHILM"[i]), 5) + "K"
	}
	x := func(i int) string { return "PPPP" + string("ACDEFGHILM"[i]) + "R" }
	runs := [][]string{
		append(append([]string{}, target[0:2]...), x(1)),
		append(append([]string{}, target[0:8]...), x(2), x(3)),
		append(append([]string{}, target[3:8]...), x(4)),
		append(append([]string{}, target[5:10]...), x(5)),
		{x(6)},
	}
	db := amt.NewDatabase()
	for _, peps := range runs {
		r, _ := db.AddRun(&amt.Run{Coefficients: []float64{0, 1}}, nil)
		for _, p := range peps {
			if err := db.AddObservation(p, nil, amt.Observation{Run: r.Seq, Quality: 1}); err != nil {
				t.Fatal(err)
			}
		}
	}
	return db, target
}

func TestReduceByPeptideOverlap(t *testing.T) {
	db, target := reductionDatabase(t)
	tests := []struct {
		name string
		p    ReduceParams
		want []int
	}{
		{"no limits", ReduceParams{}, []int{2, 3, 4, 1, 5}},
		{"max runs", ReduceParams{MaxRuns: 2}, []int{2, 3}},
		{"max entries", ReduceParams{MaxEntries: 12}, []int{2, 3}},
		{"first run too large", ReduceParams{MaxEntries: 5}, nil},
		{"window 1", ReduceParams{Window: 1}, []int{2}},
		{"window 2", ReduceParams{Window: 2}, []int{2, 3, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			red, err := ReduceByPeptideOverlap(db, target, tt.p)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, red.Runs); diff != "" {
				t.Errorf("selected runs (-want +got):\n%s", diff)
			}
			if tt.p.MaxRuns > 0 && red.DB.NumRuns() > tt.p.MaxRuns {
				t.Errorf("%d runs exceed maximum %d", red.DB.NumRuns(), tt.p.MaxRuns)
			}
			if tt.p.MaxEntries > 0 && red.DB.NumEntries() > tt.p.MaxEntries {
				t.Errorf("%d entries exceed maximum %d", red.DB.NumEntries(), tt.p.MaxEntries)
			}
			for i := 1; i < len(red.Overlap); i++ {
				if red.Overlap[i] > red.Overlap[i-1] {
					t.Errorf("run %d (%v%%) selected after lower overlap run (%v%%)",
						red.Runs[i], red.Overlap[i], red.Overlap[i-1])
				}
			}
		})
	}
}

func TestReduceByMassOverlap(t *testing.T) {
	db, target := reductionDatabase(t)
	var masses []float64
	for _, p := range target[0:4] {
		m, _ := amt.PeptideMass(p)
		masses = append(masses, m)
	}
	red, err := ReduceByMassOverlap(db, masses, ReduceParams{MassTolerance: 10})
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]int{2, 1, 3, 4, 5}, red.Runs); diff != "" {
		t.Errorf("selected runs (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]float64{100, 50, 25, 0, 0}, red.Overlap); diff != "" {
		t.Errorf("overlap (-want +got):\n%s", diff)
	}
	if red.DB.NumRuns() != 5 || red.DB.NumEntries() != db.NumEntries() {
		t.Errorf("reduced copy has %d runs, %d entries", red.DB.NumRuns(), red.DB.NumEntries())
	}
}
