package curvefit

import (
	"errors"
	"math"
	"reflect"
	"testing"
)

func TestFit_ReducesError(t *testing.T) {
	target := []float64{1, 2, 3, 4, 5}
	movable := []float64{5, 1, 0, 8, -2}

	got, res, err := Fit(target, movable, Params{LearningRate: 0.05, MaxError: 1e-12, MaxIterations: 50})
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}

	if res.Iterations > 50 {
		t.Errorf("iterations %d exceed max", res.Iterations)
	}
	if res.FinalError > res.InitialError {
		t.Errorf("final error %v > initial %v", res.FinalError, res.InitialError)
	}
	if e := SquaredError(got, target); math.Abs(e-res.FinalError) > 1e-12 {
		t.Errorf("reported final error %v, actual %v", res.FinalError, e)
	}
	if movable[0] != 5 {
		t.Error("input slice was modified")
	}
}

func TestFit_ConvergenceProperty(t *testing.T) {
	params := []Params{
		{LearningRate: 0.01, MaxError: 0, MaxIterations: 7},
		{LearningRate: 0.3, MaxError: 1e-6, MaxIterations: 1000},
		{LearningRate: 5, MaxError: 1e-9, MaxIterations: 100}, // rate is clamped
	}
	for seed := 0; seed < 20; seed++ {
		n := 1 + seed%9
		target := make([]float64, n)
		movable := make([]float64, n)
		for i := 0; i < n; i++ {
			target[i] = math.Sin(float64(seed*13+i)) * 50
			movable[i] = math.Cos(float64(seed*7+i*3)) * 80
		}
		for _, p := range params {
			got, res, err := Fit(target, movable, p)
			if err != nil {
				t.Fatalf("Fit failed: %v", err)
			}
			if res.Iterations > p.MaxIterations {
				t.Errorf("iterations %d > %d", res.Iterations, p.MaxIterations)
			}
			if SquaredError(got, target) > SquaredError(movable, target) {
				t.Errorf("seed %d: error grew", seed)
			}
		}
	}
}

func TestFit_Deterministic(t *testing.T) {
	target := []float64{0.3, -1.2, 4.4}
	movable := []float64{2, 2, 2}
	p := DefaultParams()

	a, ra, _ := Fit(target, movable, p)
	b, rb, _ := Fit(target, movable, p)
	if !reflect.DeepEqual(a, b) || ra != rb {
		t.Error("Fit is not deterministic")
	}
}

func TestFit_Errors(t *testing.T) {
	p := DefaultParams()

	if _, _, err := Fit([]float64{1}, []float64{1, 2}, p); !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("expected ErrLengthMismatch, got %v", err)
	}
	if _, _, err := Fit([]float64{math.NaN()}, []float64{1}, p); !errors.Is(err, ErrNotFinite) {
		t.Errorf("expected ErrNotFinite, got %v", err)
	}
	if _, _, err := Fit([]float64{1}, []float64{1}, Params{LearningRate: 0, MaxIterations: 1}); !errors.Is(err, ErrParams) {
		t.Errorf("expected ErrParams, got %v", err)
	}
}

func TestFit_AlreadyAligned(t *testing.T) {
	v := []float64{1, 2, 3}
	got, res, err := Fit(v, v, DefaultParams())
	if err != nil {
		t.Fatalf("Fit failed: %v", err)
	}
	if res.Iterations != 0 || res.FinalError != 0 {
		t.Errorf("expected no iterations, got %+v", res)
	}
	if !reflect.DeepEqual(got, v) {
		t.Errorf("got %v, want %v", got, v)
	}
}

func TestDisplace_FindsTranslation(t *testing.T) {
	target := []float64{10, 11, 12, 13}
	movable := []float64{0, 1, 2, 3}

	c, adjusted, res, err := Displace(target, movable, Params{LearningRate: 0.25, MaxError: 1e-14, MaxIterations: 500})
	if err != nil {
		t.Fatalf("Displace failed: %v", err)
	}
	if math.Abs(c-10) > 1e-6 {
		t.Errorf("offset = %v, want 10", c)
	}
	if res.FinalError > res.InitialError {
		t.Errorf("error grew: %+v", res)
	}
	for i := range adjusted {
		if math.Abs(adjusted[i]-target[i]) > 1e-6 {
			t.Errorf("adjusted[%d] = %v, want %v", i, adjusted[i], target[i])
		}
	}
}

func TestDisplace_Empty(t *testing.T) {
	c, adjusted, _, err := Displace(nil, nil, DefaultParams())
	if err != nil || c != 0 || len(adjusted) != 0 {
		t.Errorf("unexpected result for empty input: %v %v %v", c, adjusted, err)
	}
}
