// Package fit runs the nonlinear least-squares fits computed every tick:
// temperature profiles along the boiling rod, and the first-order step
// response used to estimate how far a reading has risen toward steady state.
package fit

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/optimize"
)

// ErrNoConvergence is returned when a fit fails to reach a minimum.
var ErrNoConvergence = errors.New("fit did not converge")

const maxIterations = 5000

// minimize runs Nelder-Mead on f from x0.
func minimize(f func(x []float64) float64, x0 []float64) ([]float64, error) {
	settings := &optimize.Settings{
		MajorIterations: maxIterations,
		Converger: &optimize.FunctionConverge{
			Absolute:   1e-12,
			Relative:   1e-12,
			Iterations: 200,
		},
	}
	res, err := optimize.Minimize(optimize.Problem{Func: f}, x0, settings, &optimize.NelderMead{})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoConvergence, err)
	}
	if res.Status.Early() {
		return nil, fmt.Errorf("%w: %v", ErrNoConvergence, res.Status)
	}
	if !finite(res.F) {
		return nil, fmt.Errorf("%w: non-finite residual", ErrNoConvergence)
	}
	for _, v := range res.X {
		if !finite(v) {
			return nil, fmt.Errorf("%w: non-finite parameter", ErrNoConvergence)
		}
	}
	return res.X, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func allFinite(vs []float64) bool {
	for _, v := range vs {
		if !finite(v) {
			return false
		}
	}
	return true
}
