package feature

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/524D/mzamt/internal/amt"
)

func TestReadWrite(t *testing.T) {
	in := &Set{
		Run: "run1",
		Features: []*Feature{
			{ID: 1, Mass: 799.36, Charge: 2, Time: 1200, Peptides: []string{"PEPTIDE"}},
			{ID: 2, Mass: 661.35, Charge: 1, Scan: 12,
				Mods: []amt.ModifiedResidue{{Position: 3, Mass: 147.0354}}},
		},
	}
	var buf bytes.Buffer
	if err := Write(&buf, in); err != nil {
		t.Fatal(err)
	}
	out, err := Read(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(in, out, cmpopts.IgnoreFields(Feature{}, "Entry")); diff != "" {
		t.Errorf("(-written +read):\n%s", diff)
	}
}

func TestReadErrors(t *testing.T) {
	for _, doc := range []string{`{"features": [null]}`, `{"features": 3}`, `not json`} {
		if _, err := Read(strings.NewReader(doc)); err == nil {
			t.Errorf("Read(%s): expected error", doc)
		}
	}
}

func TestPopulateTimes(t *testing.T) {
	fs := []*Feature{{ID: 1, Scan: 2}, {ID: 2, Time: 7, Scan: 100}}
	err := PopulateTimes(fs, func(scan int) (float64, error) { return float64(scan) * 1.5, nil })
	if err != nil {
		t.Fatal(err)
	}
	if fs[0].Time != 3 || fs[1].Time != 7 {
		t.Errorf("times %v, %v", fs[0].Time, fs[1].Time)
	}

	errScan := errors.New("no such scan")
	fs = []*Feature{{ID: 3, Scan: 5}}
	err = PopulateTimes(fs, func(int) (float64, error) { return 0, errScan })
	if !errors.Is(err, errScan) {
		t.Errorf("expected %v, got %v", errScan, err)
	}
}

func TestSortByMass(t *testing.T) {
	fs := []*Feature{{ID: 1, Mass: 3}, {ID: 2, Mass: 1}, {ID: 3, Mass: 2}}
	SortByMass(fs)
	if diff := cmp.Diff([]float64{1, 2, 3}, Masses(fs)); diff != "" {
		t.Errorf("(-want +got):\n%s", diff)
	}
}
