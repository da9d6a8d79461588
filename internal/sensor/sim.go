package sensor

import (
	"context"
	"math"
	"math/rand"
	"sync"
	"time"
)

// Constant is a board that reads the same value on every channel. It stands
// in for the acquisition hardware when none is attached.
type Constant float64

func (c Constant) Temperature(ctx context.Context, board, channel int, unit UnitCode) (float64, error) {
	return float64(c), ctx.Err()
}

func (c Constant) Voltage(ctx context.Context, board, channel int) (float64, error) {
	return float64(c), ctx.Err()
}

// Ramp is a synthetic board for debugging: every channel follows a
// first-order step response gain*(1-exp(-t/tau)) plus gaussian noise, with t
// measured from the first read.
type Ramp struct {
	Gain  float64
	Tau   time.Duration
	Noise float64 // standard deviation as a fraction of Gain

	mu    sync.Mutex
	start time.Time
	now   func() time.Time
	rng   *rand.Rand
}

// NewRamp returns a ramp board. A zero tau defaults to one minute.
func NewRamp(gain float64, tau time.Duration, noise float64) *Ramp {
	if tau <= 0 {
		tau = time.Minute
	}
	return &Ramp{
		Gain:  gain,
		Tau:   tau,
		Noise: noise,
		now:   time.Now,
		rng:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (r *Ramp) value() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	if r.start.IsZero() {
		r.start = now
	}
	t := now.Sub(r.start).Seconds()
	v := r.Gain * (1 - math.Exp(-t/r.Tau.Seconds()))
	if r.Noise > 0 {
		v += r.rng.NormFloat64() * r.Noise * r.Gain
	}
	return v
}

func (r *Ramp) Temperature(ctx context.Context, board, channel int, unit UnitCode) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return r.value(), nil
}

func (r *Ramp) Voltage(ctx context.Context, board, channel int) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return r.value(), nil
}
