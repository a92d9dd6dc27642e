package regress

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"testing"
	"time"
)

func TestPolyval(t *testing.T) {
	p := []float64{1, 2, 3} // 1 + 2x + 3x^2
	if got := Polyval(p, 2); got != 17 {
		t.Errorf("Polyval: expected 17, got %v", got)
	}
	if got := Polyval(nil, 2); got != 0 {
		t.Errorf("Polyval(nil): expected 0, got %v", got)
	}
}

func TestPolyFit(t *testing.T) {
	xs := make([]float64, 0, 40)
	ys := make([]float64, 0, 40)
	for i := 0; i < 40; i++ {
		x := 300 + 60*float64(i)
		xs = append(xs, x)
		ys = append(ys, 0.5-0.002*x+3e-7*x*x)
	}
	p, err := PolyFit(xs, ys, nil, 2)
	if err != nil {
		t.Fatalf("PolyFit: %v", err)
	}
	want := []float64{0.5, -0.002, 3e-7}
	for i := range want {
		if math.Abs(p[i]-want[i]) > 1e-6*math.Max(1, math.Abs(want[i]))+1e-12 {
			t.Errorf("PolyFit: coefficient %d expected %g, got %g", i, want[i], p[i])
		}
	}

	_, err = PolyFit([]float64{1, 2}, []float64{1, 2}, nil, 2)
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("PolyFit: expected %v, got %v", ErrInsufficientData, err)
	}
}

func TestOLSLinearDiagnostics(t *testing.T) {
	xs := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 30}
	ys := make([]float64, len(xs))
	for i, x := range xs {
		ys[i] = 2 + 0.5*x
	}
	ys[4] += 3 // one clear outlier in y

	fit, err := OLSLinear(xs, ys)
	if err != nil {
		t.Fatalf("OLSLinear: %v", err)
	}
	// The isolated x=30 dominates the hat matrix
	maxH, maxI := 0.0, -1
	sumH := 0.0
	for i, h := range fit.Leverage {
		sumH += h
		if h > maxH {
			maxH, maxI = h, i
		}
	}
	if maxI != len(xs)-1 {
		t.Errorf("Leverage: expected largest at %d, got %d", len(xs)-1, maxI)
	}
	// trace of the hat matrix equals the number of parameters
	if math.Abs(sumH-2) > 1e-9 {
		t.Errorf("Leverage: expected sum 2, got %v", sumH)
	}
	st := fit.Studentized()
	for i, s := range st {
		if i != 4 && math.Abs(s) >= math.Abs(st[4]) {
			t.Errorf("Studentized: point %d (%v) larger than outlier (%v)", i, s, st[4])
		}
	}

	_, err = OLSLinear([]float64{1, 1, 1}, []float64{1, 2, 3})
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("OLSLinear: expected %v for constant x, got %v", ErrInsufficientData, err)
	}
}

func TestRobustLinear(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	var xs, ys []float64
	for i := 0; i < 100; i++ {
		x := float64(i)
		y := -2 + 0.01*x + rng.NormFloat64()*0.001
		if i%10 == 0 {
			y += 5 // gross outliers
		}
		xs = append(xs, x)
		ys = append(ys, y)
	}
	p, err := RobustLinear(context.Background(), xs, ys)
	if err != nil {
		t.Fatalf("RobustLinear: %v", err)
	}
	if math.Abs(p[0]+2) > 0.01 || math.Abs(p[1]-0.01) > 1e-4 {
		t.Errorf("RobustLinear: expected (-2, 0.01), got (%v, %v)", p[0], p[1])
	}
}

func TestModal(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 4))
	var xs, ys []float64
	// dense band of true matches
	for i := 0; i < 150; i++ {
		x := 600 + rng.Float64()*3000
		xs = append(xs, x)
		ys = append(ys, 0.01*x-2+rng.NormFloat64()*0.2)
	}
	// diffuse cloud of false matches
	for i := 0; i < 300; i++ {
		xs = append(xs, 600+rng.Float64()*3000)
		ys = append(ys, -20+rng.Float64()*70)
	}
	p, err := Modal(context.Background(), xs, ys, 1)
	if err != nil {
		t.Fatalf("Modal: %v", err)
	}
	if math.Abs(p[1]-0.01) > 0.001 {
		t.Errorf("Modal: expected slope 0.01, got %v", p[1])
	}
	for _, x := range []float64{1000, 2000, 3000} {
		if d := math.Abs(Polyval(p, x) - (0.01*x - 2)); d > 1 {
			t.Errorf("Modal: at %v off by %v", x, d)
		}
	}

	_, err = Modal(context.Background(), []float64{1, 2}, []float64{1, 2}, 1)
	if !errors.Is(err, ErrInsufficientData) {
		t.Errorf("Modal: expected %v, got %v", ErrInsufficientData, err)
	}
}

func separableMixture() (MixtureInput, int) {
	rng := rand.New(rand.NewPCG(5, 6))
	in := MixtureInput{
		InitialProportion:   0.5,
		Area:                20 * 1.0,
		MinIterations:       30,
		MaxIterations:       400,
		StabilityDelta:      1e-5,
		StabilityIterations: 5,
	}
	nTrue := 200
	for i := 0; i < nTrue; i++ {
		in.X = append(in.X, rng.NormFloat64()*0.5)
		in.Y = append(in.Y, rng.NormFloat64()*0.01)
	}
	for len(in.X) < 2*nTrue {
		x := -10 + 20*rng.Float64()
		y := -0.5 + rng.Float64()
		if math.Abs(x) < 4 && math.Abs(y) < 0.08 {
			continue
		}
		in.X = append(in.X, x)
		in.Y = append(in.Y, y)
	}
	return in, nTrue
}

func TestFitMixtureSeparable(t *testing.T) {
	in, nTrue := separableMixture()
	res, err := FitMixture(context.Background(), in)
	if err != nil {
		t.Fatalf("FitMixture: %v", err)
	}
	if !res.Converged {
		t.Errorf("FitMixture: did not converge in %d iterations", res.Iterations)
	}
	if res.Iterations < in.MinIterations {
		t.Errorf("FitMixture: stopped after %d iterations, minimum %d", res.Iterations, in.MinIterations)
	}
	high := 0
	for i := 0; i < nTrue; i++ {
		if res.Probabilities[i] > 0.9 {
			high++
		}
	}
	if high < nTrue*95/100 {
		t.Errorf("FitMixture: only %d of %d true points above 0.9", high, nTrue)
	}
	for i := nTrue; i < len(res.Probabilities); i++ {
		if res.Probabilities[i] > 0.05 {
			t.Errorf("FitMixture: false point %d has probability %v", i, res.Probabilities[i])
		}
	}
	if math.Abs(res.Proportion-0.5) > 0.05 {
		t.Errorf("FitMixture: proportion %v, expected near 0.5", res.Proportion)
	}
	if math.Abs(res.SigmaX-0.5) > 0.1 || math.Abs(res.SigmaY-0.01) > 0.002 {
		t.Errorf("FitMixture: sigma (%v, %v), expected near (0.5, 0.01)", res.SigmaX, res.SigmaY)
	}
	if res.KSX > 0.1 || res.KSY > 0.1 {
		t.Errorf("FitMixture: KS statistics (%v, %v) too large", res.KSX, res.KSY)
	}
}

func TestLocalTimeout(t *testing.T) {
	svc := NewLocal(time.Nanosecond)
	in, _ := separableMixture()
	in.MinIterations = 1000000
	in.MaxIterations = 1000000
	_, err := svc.FitMixtureEM(context.Background(), in)
	if !errors.Is(err, ErrSolverFailure) {
		t.Errorf("FitMixtureEM: expected %v, got %v", ErrSolverFailure, err)
	}
}

func TestLocalCancelled(t *testing.T) {
	svc := NewLocal(0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := svc.RobustRegression(ctx, []float64{1, 2, 3, 4}, []float64{1, 2, 3, 4})
	if !errors.Is(err, ErrSolverFailure) {
		t.Errorf("RobustRegression: expected cancellation, got %v", err)
	}
}
