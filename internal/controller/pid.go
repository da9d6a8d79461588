package controller

import (
	"math"
	"time"
)

// Gains are the proportional, integral and derivative gains.
type Gains struct {
	P, I, D float64
}

// PID is a positional PID controller. The derivative acts on the measurement
// rather than the error, so setpoint changes do not kick the output, and the
// integral is clamped to the output limits to prevent windup. The time step
// is measured between calls.
type PID struct {
	Gains    Gains
	Setpoint float64
	Min, Max float64

	auto       bool
	integral   float64
	lastInput  float64
	hasInput   bool
	lastOutput float64
	lastTime   time.Time
	now        func() time.Time
}

// NewPID returns a controller in automatic mode whose first output starts
// from start.
func NewPID(gains Gains, setpoint, min, max, start float64) *PID {
	p := &PID{Gains: gains, Setpoint: setpoint, Min: min, Max: max, auto: true, now: time.Now}
	p.reset(start)
	return p
}

func (p *PID) clamp(v float64) float64 {
	return math.Max(p.Min, math.Min(p.Max, v))
}

func (p *PID) reset(start float64) {
	p.integral = p.clamp(start)
	p.lastOutput = p.integral
	p.hasInput = false
	p.lastTime = p.now()
}

// Next returns the output for a new measurement. In manual mode it returns
// the last output unchanged.
func (p *PID) Next(input float64) float64 {
	if !p.auto {
		return p.lastOutput
	}

	now := p.now()
	dt := now.Sub(p.lastTime).Seconds()
	if dt <= 0 {
		dt = 1e-16
	}

	err := p.Setpoint - input
	dInput := 0.0
	if p.hasInput {
		dInput = input - p.lastInput
	}

	p.integral = p.clamp(p.integral + p.Gains.I*err*dt)
	out := p.clamp(p.Gains.P*err + p.integral - p.Gains.D*dInput/dt)

	p.lastOutput = out
	p.lastInput = input
	p.hasInput = true
	p.lastTime = now
	return out
}

// SetAuto switches between automatic and manual mode. Switching to
// automatic re-seeds the integral with lastOutput so control resumes
// without a jump.
func (p *PID) SetAuto(auto bool, lastOutput float64) {
	if auto && !p.auto {
		p.reset(lastOutput)
	}
	p.auto = auto
}

// Auto reports whether the controller is in automatic mode.
func (p *PID) Auto() bool { return p.auto }

// Output is the last computed output.
func (p *PID) Output() float64 { return p.lastOutput }
