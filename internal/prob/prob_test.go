package prob

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/524D/mzamt/internal/amt"
	"github.com/524D/mzamt/internal/feature"
	"github.com/524D/mzamt/internal/matcher"
	"github.com/524D/mzamt/internal/regress"
)

var svc = regress.NewLocal(time.Minute)

func TestFDR(t *testing.T) {
	got := FDR([]float64{0.9, 0.5, 0.9, 0.1})
	want := []float64{0.1, 0.7 / 3, 0.1, 0.4}
	if diff := cmp.Diff(want, got, cmpopts.EquateApprox(0, 1e-12)); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
	if len(FDR(nil)) != 0 {
		t.Errorf("FDR(nil) not empty")
	}
}

func TestFDRMonotone(t *testing.T) {
	rng := rand.New(rand.NewPCG(9, 10))
	probs := make([]float64, 500)
	for i := range probs {
		// Coarse values so that ties occur
		probs[i] = math.Round(rng.Float64()*20) / 20
	}
	fdr := FDR(probs)
	for i := range probs {
		for j := range probs {
			if probs[i] > probs[j] && fdr[i] > fdr[j] {
				t.Fatalf("FDR %v at p=%v above FDR %v at p=%v", fdr[i], probs[i], fdr[j], probs[j])
			}
			if probs[i] == probs[j] && fdr[i] != fdr[j] {
				t.Fatalf("tied probabilities %v have FDR %v and %v", probs[i], fdr[i], fdr[j])
			}
		}
	}
}

// syntheticResult returns a match result with nTrue normally distributed
// and nFalse uniformly distributed errors, true pairs first
func syntheticResult(rng *rand.Rand, mp matcher.Params, nTrue, nFalse int, tag string) *matcher.Result {
	res := &matcher.Result{Params: mp}
	for i := 0; i < nTrue+nFalse; i++ {
		var me, ee float64
		if i < nTrue {
			me = rng.NormFloat64() * 1.5
			ee = rng.NormFloat64() * 0.02
		} else {
			me = mp.MinMass + rng.Float64()*(mp.MaxMass-mp.MinMass)
			ee = mp.MinElution + rng.Float64()*(mp.MaxElution-mp.MinElution)
		}
		pep := fmt.Sprintf("%s%d", tag, i)
		res.Matches = append(res.Matches, matcher.Match{
			Master: &feature.Feature{ID: i},
			Slaves: []matcher.SlaveMatch{{
				Slave:        &feature.Feature{ID: i, Peptides: []string{pep}, Probability: 1},
				MassError:    me,
				ElutionError: ee,
			}},
		})
	}
	return res
}

func TestAssign(t *testing.T) {
	rng := rand.New(rand.NewPCG(11, 12))
	mp := matcher.Params{MassUnit: matcher.PPM, MinMass: -10, MaxMass: 10, MinElution: -0.5, MaxElution: 0.5}
	target := syntheticResult(rng, mp, 200, 200, "T")
	decoy := syntheticResult(rng, mp, 0, 200, "D")

	a, err := Assign(context.Background(), svc, target, decoy, DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	if len(a.Pairs) != 400 {
		t.Fatalf("expected 400 scored pairs, got %d", len(a.Pairs))
	}
	var sumTrue, sumFalse float64
	for i, sm := range a.Pairs {
		if i < 200 {
			sumTrue += sm.Probability
		} else {
			sumFalse += sm.Probability
		}
	}
	if sumTrue/200 < 0.8 {
		t.Errorf("mean probability of true pairs %v", sumTrue/200)
	}
	if sumFalse/200 > 0.3 {
		t.Errorf("mean probability of false pairs %v", sumFalse/200)
	}
	if math.Abs(a.Fit.SigmaX-1.5) > 0.5 || math.Abs(a.Fit.SigmaY-0.02) > 0.01 {
		t.Errorf("fitted sigma (%v, %v)", a.Fit.SigmaX, a.Fit.SigmaY)
	}

	// With more decoy than target matches the proportion is floored
	few := syntheticResult(rng, mp, 50, 0, "T")
	if _, err := Assign(context.Background(), svc, few, decoy, DefaultParams()); err != nil {
		t.Errorf("Assign with pathological decoys: %v", err)
	}
}

func scored(master *feature.Feature, pep string, p, fdr float64) ScoredMatch {
	return ScoredMatch{
		Master:      master,
		Slave:       &feature.Feature{Peptides: []string{pep}, Probability: 0.5},
		Probability: p,
		FDR:         fdr,
	}
}

func TestResolve(t *testing.T) {
	m := make([]*feature.Feature, 7)
	for i := range m {
		m[i] = &feature.Feature{ID: i}
	}
	a := &Assignment{Pairs: []ScoredMatch{
		scored(m[0], "AAK", 0.95, 0.01),
		scored(m[0], "AAK", 0.7, 0.02), // same peptide, not a competitor
		scored(m[1], "CCK", 0.05, 0.01),
		scored(m[2], "DDK", 0.9, 0.2),
		scored(m[3], "EEK", 0.95, 0.01),
		scored(m[3], "FFK", 0.6, 0.03),
		scored(m[4], "GGK", 0.45, 0.01),
		scored(m[4], "HHK", 0.4, 0.01),
		scored(m[5], "IIK", 0.9, 0.01),
		scored(m[5], "KKK", 0.3, 0.01),
	}}
	e, err := amt.NewPeptideEntry("LLK")
	if err != nil {
		t.Fatal(err)
	}
	withEntry := scored(m[6], "LLK", 0.8, 0.01)
	withEntry.Slave.Entry = e
	a.Pairs = append(a.Pairs, withEntry)

	res := Resolve(a, DefaultParams())
	if len(res) != 7 {
		t.Fatalf("expected 7 resolutions, got %d", len(res))
	}
	tests := []struct {
		accepted   bool
		peptide    string
		confidence float64
	}{
		{true, "AAK", 0.475},
		{false, "CCK", 0.025},
		{false, "DDK", 0.45},
		{false, "EEK", 0.475}, // second best above ceiling
		{false, "GGK", 0.225}, // second best too close
		{true, "IIK", 0.45},
		{true, "LLK", 0}, // entry without observations has median quality 0
	}
	for i, tt := range tests {
		r := res[i]
		if r.Master != m[i] {
			t.Errorf("resolution %d is for master %d", i, r.Master.ID)
		}
		if r.Accepted != tt.accepted || r.Peptide() != tt.peptide {
			t.Errorf("master %d: accepted %v (%s) peptide %s, want %v %s",
				i, r.Accepted, r.Reason, r.Peptide(), tt.accepted, tt.peptide)
		}
		if math.Abs(r.Confidence-tt.confidence) > 1e-12 {
			t.Errorf("master %d: confidence %v, want %v", i, r.Confidence, tt.confidence)
		}
	}
	if res[0].SecondBest != nil {
		t.Errorf("same peptide counted as second best")
	}
	if res[5].SecondBest == nil || res[5].SecondBest.Slave.Peptide() != "KKK" {
		t.Errorf("second best of master 5: %+v", res[5].SecondBest)
	}
}

func TestValidate(t *testing.T) {
	rng := rand.New(rand.NewPCG(13, 14))
	mp := matcher.Params{MassUnit: matcher.PPM, MinMass: -10, MaxMass: 10, MinElution: -0.5, MaxElution: 0.5}
	var entries, masters []*feature.Feature
	for i := 0; i < 200; i++ {
		entries = append(entries, &feature.Feature{
			ID:             i,
			Mass:           800 + 10*float64(i) + rng.Float64(),
			Hydrophobicity: rng.Float64() * 40,
			Peptides:       []string{fmt.Sprintf("P%d", i)},
			Probability:    1,
		})
	}
	for i := 0; i < 150; i++ {
		e := entries[i]
		masters = append(masters, &feature.Feature{
			ID:             i,
			Mass:           e.Mass * (1 + rng.NormFloat64()*1.5e-6),
			Hydrophobicity: e.Hydrophobicity + rng.NormFloat64()*0.02,
		})
	}
	// False hits, around unshifted and around shifted entries
	for i := 0; i < 300; i++ {
		e := entries[rng.IntN(len(entries))]
		m := e.Mass
		if i%2 == 1 {
			m += matcher.DefaultDecoyOffset
		}
		masters = append(masters, &feature.Feature{
			ID:             1000 + i,
			Mass:           m * (1 + (rng.Float64()*20-10)*1e-6),
			Hydrophobicity: e.Hydrophobicity + rng.Float64() - 0.5,
		})
	}

	v, err := Validate(context.Background(), svc, masters, entries, mp, DefaultParams(), rng)
	if err != nil {
		t.Fatal(err)
	}
	if v.TargetPeptides+v.DecoyPeptides != 200 || v.TargetPeptides == 0 || v.DecoyPeptides == 0 {
		t.Fatalf("split into %d targets and %d decoys", v.TargetPeptides, v.DecoyPeptides)
	}
	if len(v.Points) == 0 {
		t.Fatal("no validation points")
	}
	checked := false
	for i, pt := range v.Points {
		if i > 0 {
			prev := v.Points[i-1]
			if pt.Threshold >= prev.Threshold {
				t.Errorf("thresholds not decreasing at %d", i)
			}
			if pt.Targets < prev.Targets || pt.Decoys < prev.Decoys || pt.ModelFDR < prev.ModelFDR {
				t.Errorf("counts or model FDR decreasing at %d: %+v after %+v", i, pt, prev)
			}
		}
		if !checked && pt.Targets >= 50 {
			checked = true
			if pt.EmpiricalFDR > 0.25 {
				t.Errorf("empirical FDR %v with %d targets", pt.EmpiricalFDR, pt.Targets)
			}
		}
	}
	if !checked {
		t.Errorf("fewer than 50 target matches")
	}
}
