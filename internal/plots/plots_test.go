package plots

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestTimeHydrophobicity(t *testing.T) {
	times := []float64{300, 600, 900, 1200}
	hs := []float64{1, 4.2, 6.8, 10.1}
	var buf bytes.Buffer
	if err := TimeHydrophobicity(&buf, "run 1", times, hs, []float64{-2, 0.01}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "<svg") {
		t.Errorf("output is not SVG: %.80s", buf.String())
	}
	if err := TimeHydrophobicity(&buf, "empty", nil, nil, nil); !errors.Is(err, ErrNoData) {
		t.Errorf("empty plot: error %v, expected ErrNoData", err)
	}
}

func TestMatchErrors(t *testing.T) {
	var buf bytes.Buffer
	err := MatchErrors(&buf, "matches", "ppm",
		[]float64{-3, 0.5, 4}, []float64{0.1, -0.02, 0.3}, []bool{false, true, false})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "<svg") {
		t.Errorf("output is not SVG: %.80s", buf.String())
	}
	if err := MatchErrors(&buf, "bad", "ppm", []float64{1}, nil, nil); !errors.Is(err, ErrNoData) {
		t.Errorf("mismatched input: error %v, expected ErrNoData", err)
	}
}
