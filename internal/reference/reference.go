// Package reference computes host-side expectations for the device kernels.
//
// The two formulas here are independent. Saxpy is what the SAXPY kernel is
// checked against. Refine is the iterative loop the program prints next to
// the device values; it converges to y/(x-1) for |x| > 1 and is only ever
// checked against that limit.
package reference

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats/scalar"
)

// DefaultRefineIterations is the number of refinement steps the program runs.
const DefaultRefineIterations = 100

var (
	// ErrEmpty is returned for zero-length inputs.
	ErrEmpty = errors.New("empty input")
	// ErrLengthMismatch is returned when x and y differ in length.
	ErrLengthMismatch = errors.New("input length mismatch")
)

func checkInputs(x, y []float32) error {
	if len(x) == 0 {
		return ErrEmpty
	}
	if len(x) != len(y) {
		return fmt.Errorf("%w: len(x)=%d len(y)=%d", ErrLengthMismatch, len(x), len(y))
	}
	return nil
}

// Saxpy returns a*x[i] + y[i] for every element.
func Saxpy(a float32, x, y []float32) ([]float32, error) {
	if err := checkInputs(x, y); err != nil {
		return nil, err
	}
	out := make([]float32, len(x))
	for i := range x {
		out[i] = a*x[i] + y[i]
	}
	return out, nil
}

// Refine seeds z = x + y and then applies z = (z + y) / x the given number of
// times, in single precision.
func Refine(x, y []float32, iterations int) ([]float32, error) {
	if err := checkInputs(x, y); err != nil {
		return nil, err
	}
	if iterations < 0 {
		return nil, fmt.Errorf("negative iteration count %d", iterations)
	}
	z := make([]float32, len(x))
	for i := range x {
		z[i] = x[i] + y[i]
		for j := 0; j < iterations; j++ {
			z[i] = z[i] + y[i]
			z[i] = z[i] / x[i]
		}
	}
	return z, nil
}

// RefineLimit returns the fixed point y/(x-1) that Refine approaches when |x| > 1.
func RefineLimit(x, y []float32) ([]float32, error) {
	if err := checkInputs(x, y); err != nil {
		return nil, err
	}
	out := make([]float32, len(x))
	for i := range x {
		out[i] = y[i] / (x[i] - 1)
	}
	return out, nil
}

// Mismatch is one element that falls outside the tolerance.
type Mismatch struct {
	Index int
	Got   float32
	Want  float32
}

func (m Mismatch) String() string {
	return fmt.Sprintf("[%d] got %g want %g", m.Index, m.Got, m.Want)
}

// Compare reports every index where got and want differ by more than tol,
// absolute or relative whichever is looser. NaN matches NaN. A length
// difference is an error.
func Compare(got, want []float32, tol float64) ([]Mismatch, error) {
	if len(got) != len(want) {
		return nil, fmt.Errorf("%w: got %d elements, want %d", ErrLengthMismatch, len(got), len(want))
	}
	var out []Mismatch
	for i := range got {
		if math.IsNaN(float64(got[i])) && math.IsNaN(float64(want[i])) {
			continue
		}
		if !scalar.EqualWithinAbsOrRel(float64(got[i]), float64(want[i]), tol, tol) {
			out = append(out, Mismatch{Index: i, Got: got[i], Want: want[i]})
		}
	}
	return out, nil
}
