// Package curvefit minimizes the squared difference between two equal-length sequences
// by deterministic gradient descent.
package curvefit

import (
	"errors"
	"fmt"
	"math"
)

var (
	// ErrLengthMismatch is returned when target and movable differ in length.
	ErrLengthMismatch = errors.New("curvefit: length mismatch")
	// ErrNotFinite is returned when an input value is NaN or infinite.
	ErrNotFinite = errors.New("curvefit: non-finite input")
	// ErrParams is returned for unusable optimizer parameters.
	ErrParams = errors.New("curvefit: invalid parameters")
)

// maxRate keeps every step from overshooting its target.
const maxRate = 0.5

// Params control the descent.
type Params struct {
	LearningRate  float64
	MaxError      float64 // stop when one iteration improves the error by less than this
	MaxIterations int
}

// DefaultParams returns the parameters used when none are configured.
func DefaultParams() Params {
	return Params{LearningRate: 0.1, MaxError: 1e-9, MaxIterations: 200}
}

// Validate checks the parameters.
func (p Params) Validate() error {
	if !(p.LearningRate > 0) || math.IsInf(p.LearningRate, 0) {
		return fmt.Errorf("%w: learning rate %v", ErrParams, p.LearningRate)
	}
	if !(p.MaxError >= 0) || math.IsInf(p.MaxError, 0) {
		return fmt.Errorf("%w: max error %v", ErrParams, p.MaxError)
	}
	if p.MaxIterations <= 0 {
		return fmt.Errorf("%w: max iterations %d", ErrParams, p.MaxIterations)
	}
	return nil
}

func (p Params) rate() float64 {
	return math.Min(p.LearningRate, maxRate)
}

// Result reports what a fit did.
type Result struct {
	Iterations   int
	InitialError float64
	FinalError   float64
}

// SquaredError returns Σ(a_i - b_i)².
func SquaredError(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}

func check(target, movable []float64, p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if len(target) != len(movable) {
		return fmt.Errorf("%w: target %d, movable %d", ErrLengthMismatch, len(target), len(movable))
	}
	for i := range target {
		if math.IsNaN(target[i]) || math.IsInf(target[i], 0) || math.IsNaN(movable[i]) || math.IsInf(movable[i], 0) {
			return fmt.Errorf("%w: at %d", ErrNotFinite, i)
		}
	}
	return nil
}

// Fit nudges every movable value toward its target and returns the adjusted copy.
// The inputs are not modified.
func Fit(target, movable []float64, p Params) ([]float64, Result, error) {
	if err := check(target, movable, p); err != nil {
		return nil, Result{}, err
	}

	adjusted := make([]float64, len(movable))
	copy(adjusted, movable)

	errNow := SquaredError(adjusted, target)
	res := Result{InitialError: errNow, FinalError: errNow}
	rate := p.rate()

	for res.Iterations < p.MaxIterations && errNow > 0 {
		for i := range adjusted {
			adjusted[i] -= rate * 2 * (adjusted[i] - target[i])
		}
		res.Iterations++

		errNext := SquaredError(adjusted, target)
		improvement := errNow - errNext
		errNow = errNext
		if improvement < p.MaxError {
			break
		}
	}

	res.FinalError = errNow
	return adjusted, res, nil
}

// Displace fits one translation c minimizing Σ(movable_i + c - target_i)².
// It returns c and the translated copy of movable.
func Displace(target, movable []float64, p Params) (float64, []float64, Result, error) {
	if err := check(target, movable, p); err != nil {
		return 0, nil, Result{}, err
	}
	n := float64(len(movable))
	if n == 0 {
		return 0, nil, Result{}, nil
	}

	shifted := func(c float64) float64 {
		var sum float64
		for i := range movable {
			d := movable[i] + c - target[i]
			sum += d * d
		}
		return sum
	}

	var c float64
	errNow := shifted(c)
	res := Result{InitialError: errNow, FinalError: errNow}
	rate := p.rate()

	for res.Iterations < p.MaxIterations && errNow > 0 {
		var grad float64
		for i := range movable {
			grad += 2 * (movable[i] + c - target[i])
		}
		c -= rate * grad / n
		res.Iterations++

		errNext := shifted(c)
		improvement := errNow - errNext
		errNow = errNext
		if improvement < p.MaxError {
			break
		}
	}

	adjusted := make([]float64, len(movable))
	for i := range movable {
		adjusted[i] = movable[i] + c
	}
	res.FinalError = errNow
	return c, adjusted, res, nil
}
