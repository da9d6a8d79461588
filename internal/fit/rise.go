package fit

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
)

// Rise estimates first-order step-response parameters from a sliding window
// of timestamped samples. The response is modelled as
//
//	y(t) = a + g*(1 - exp(-t/tau))
//
// with t measured from the first sample of the run. Once the window is full,
// each push refits a, g and tau.
type Rise struct {
	window   int
	sub      int
	fraction float64

	start time.Time
	t     []float64
	y     []float64

	tau float64 // last fitted time constant, seeds the next fit
}

// Estimate is the outcome of one push. Both fields are NaN until the window
// fills and whenever a fit fails.
type Estimate struct {
	Rise      float64 // fraction of the fitted final rise achieved so far
	Remaining float64 // seconds until Fraction of the final rise is reached
	Base      float64
	Gain      float64
	Tau       float64
}

func nanEstimate() Estimate {
	nan := math.NaN()
	return Estimate{Rise: nan, Remaining: nan, Base: nan, Gain: nan, Tau: nan}
}

// NewRise returns an estimator fitting the last window samples. The current
// level is averaged over the last tenth of the window. fraction is the
// target for Remaining, e.g. 0.95.
func NewRise(window int, fraction float64) (*Rise, error) {
	if window < 4 {
		return nil, fmt.Errorf("rise window must hold at least 4 samples, got %d", window)
	}
	if fraction <= 0 || fraction >= 1 {
		return nil, fmt.Errorf("rise fraction must be in (0, 1), got %g", fraction)
	}
	sub := window / 10
	if sub < 1 {
		sub = 1
	}
	return &Rise{window: window, sub: sub, fraction: fraction}, nil
}

// Push records a sample and refits when enough samples have accumulated.
// A failed fit returns a NaN estimate and ErrNoConvergence; the estimator
// remains usable.
func (r *Rise) Push(v float64, at time.Time) (Estimate, error) {
	if r.start.IsZero() {
		r.start = at
	}
	r.t = append(r.t, at.Sub(r.start).Seconds())
	r.y = append(r.y, v)
	if len(r.t) > r.window {
		r.t = r.t[1:]
		r.y = r.y[1:]
	}

	if len(r.t) < r.window {
		return nanEstimate(), nil
	}
	return r.estimate()
}

func (r *Rise) estimate() (Estimate, error) {
	if !allFinite(r.y) {
		return nanEstimate(), fmt.Errorf("%w: non-finite sample in window", ErrNoConvergence)
	}

	current := stat.Mean(r.y[len(r.y)-r.sub:], nil)
	tLast := r.t[len(r.t)-1]
	if tLast <= 0 {
		return nanEstimate(), fmt.Errorf("%w: window spans no time", ErrNoConvergence)
	}

	// For a fixed tau the model is linear in a and g, so only log(tau) is
	// searched and a, g come from the normal equations.
	solve := func(tau float64) (a, g, sse float64) {
		n := float64(len(r.t))
		var sPhi, sPhi2, sY, sPhiY float64
		for i, t := range r.t {
			phi := 1 - math.Exp(-t/tau)
			sPhi += phi
			sPhi2 += phi * phi
			sY += r.y[i]
			sPhiY += phi * r.y[i]
		}
		det := n*sPhi2 - sPhi*sPhi
		if det == 0 {
			return 0, 0, math.Inf(1)
		}
		g = (n*sPhiY - sPhi*sY) / det
		a = (sY - g*sPhi) / n
		for i, t := range r.t {
			res := a + g*(1-math.Exp(-t/tau)) - r.y[i]
			sse += res * res
		}
		return a, g, sse
	}

	tau0 := r.tau
	if !(tau0 > 0) {
		tau0 = tLast / 3
	}
	best, err := minimize(func(x []float64) float64 {
		_, _, sse := solve(math.Exp(x[0]))
		return sse
	}, []float64{math.Log(tau0)})
	if err != nil {
		return nanEstimate(), err
	}

	tau := math.Exp(best[0])
	a, g, _ := solve(tau)
	if !finite(a) || !finite(g) || !finite(tau) {
		return nanEstimate(), fmt.Errorf("%w: non-finite estimate", ErrNoConvergence)
	}
	// A flat window has no rise to estimate.
	if math.Abs(g) < 1e-12 {
		return nanEstimate(), nil
	}
	r.tau = tau

	target := -tau * math.Log(1-r.fraction)
	return Estimate{
		Rise:      (current - a) / g,
		Remaining: math.Max(0, target-tLast),
		Base:      a,
		Gain:      g,
		Tau:       tau,
	}, nil
}
