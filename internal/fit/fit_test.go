package fit

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRodModelLinearFit(t *testing.T) {
	const k = 4.0
	model, err := RodModel("linear", k)
	require.NoError(t, err)

	x := []float64{0.5, 1.0, 1.5, 2.0, 2.5}
	y := make([]float64, len(x))
	for i, xi := range x {
		y[i] = 105 + 20/k*xi
	}

	p, err := NewProfile(model, x, map[string]Param{"T_s": {Guess: 100}, "q_s": {Guess: 10}})
	require.NoError(t, err)

	got, err := p.Fit(y)
	require.NoError(t, err)
	assert.InDelta(t, 105, got[model.Index("T_s")], 1e-3)
	assert.InDelta(t, 20, got[model.Index("q_s")], 1e-2)
}

func TestRodModelFixedParam(t *testing.T) {
	model, err := RodModel("quadratic", 2)
	require.NoError(t, err)

	x := []float64{0, 1, 2, 3}
	y := []float64{50, 55, 60, 65}

	p, err := NewProfile(model, x, map[string]Param{
		"T_s": {Guess: 40},
		"q_s": {Guess: 1},
		"c":   {Guess: 0, Fixed: true},
	})
	require.NoError(t, err)

	got, err := p.Fit(y)
	require.NoError(t, err)
	assert.Equal(t, 0.0, got[2], "fixed parameter keeps its guess")
	assert.InDelta(t, 50, got[0], 1e-3)
	assert.InDelta(t, 10, got[1], 1e-2)
}

func TestProfileRejectsBadSetup(t *testing.T) {
	model, err := RodModel("linear", 1)
	require.NoError(t, err)

	_, err = NewProfile(model, []float64{1}, nil)
	assert.Error(t, err, "one position cannot fix two free parameters")

	_, err = NewProfile(model, []float64{1, 2}, map[string]Param{"h": {}})
	assert.Error(t, err)

	_, err = RodModel("cubic", 1)
	assert.Error(t, err)
	_, err = RodModel("linear", 0)
	assert.Error(t, err)
}

func TestProfileNonFiniteInput(t *testing.T) {
	model, _ := RodModel("linear", 1)
	p, err := NewProfile(model, []float64{0, 1, 2}, nil)
	require.NoError(t, err)

	_, err = p.Fit([]float64{1, math.NaN(), 3})
	assert.ErrorIs(t, err, ErrNoConvergence)

	_, err = p.Fit([]float64{1, 2})
	assert.Error(t, err)
}

func TestRiseRecoversStepResponse(t *testing.T) {
	const (
		a     = 10.0
		g     = 50.0
		tau   = 100.0
		every = 2 * time.Second
	)
	r, err := NewRise(100, 0.95)
	require.NoError(t, err)

	base := time.Date(2026, 2, 21, 14, 0, 0, 0, time.UTC)
	var est Estimate
	for i := 0; i < 100; i++ {
		ts := float64(i) * every.Seconds()
		est, err = r.Push(a+g*(1-math.Exp(-ts/tau)), base.Add(time.Duration(i)*every))
		require.NoError(t, err)
		if i < 99 {
			assert.True(t, math.IsNaN(est.Rise), "no estimate before the window fills")
		}
	}

	assert.InDelta(t, tau, est.Tau, 0.05*tau)
	assert.InDelta(t, g, est.Gain, 0.05*g)

	assert.InDelta(t, a, est.Base, 0.5)

	// The level averaged over the last tenth of the window.
	wantRise := 0.0
	for i := 90; i < 100; i++ {
		wantRise += 1 - math.Exp(-float64(i)*2/tau)
	}
	wantRise /= 10
	assert.InDelta(t, wantRise, est.Rise, 0.05)

	wantRemaining := -tau*math.Log(0.05) - 198
	assert.InDelta(t, wantRemaining, est.Remaining, 0.1*wantRemaining)
}

func TestRiseNonFiniteSample(t *testing.T) {
	r, err := NewRise(4, 0.9)
	require.NoError(t, err)

	base := time.Now()
	for i := 0; i < 3; i++ {
		_, err := r.Push(float64(i), base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}
	est, err := r.Push(math.NaN(), base.Add(3*time.Second))
	assert.ErrorIs(t, err, ErrNoConvergence)
	assert.True(t, math.IsNaN(est.Rise))
	assert.True(t, math.IsNaN(est.Remaining))
}

func TestRiseFlatSignal(t *testing.T) {
	r, err := NewRise(5, 0.95)
	require.NoError(t, err)

	base := time.Now()
	var est Estimate
	for i := 0; i < 8; i++ {
		est, err = r.Push(25, base.Add(time.Duration(i)*time.Second))
		require.NoError(t, err)
	}
	assert.True(t, math.IsNaN(est.Rise))
}

func TestNewRiseValidates(t *testing.T) {
	_, err := NewRise(2, 0.9)
	assert.Error(t, err)
	_, err = NewRise(10, 1)
	assert.Error(t, err)
}
