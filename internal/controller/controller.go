// Package controller closes the loop between a feedback result and a
// controllable result. Every update reads the feedback, runs it through a
// PID controller and writes the output. A misread guard sits in front of the
// actuator: an implausible feedback value zeroes the output and aborts.
package controller

import (
	"context"
	"errors"
	"fmt"
	"math"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/softboiler/boilerdaq/internal/result"
)

// SafetyAbortError is returned when the feedback looks like a misread. The
// controlled output has been commanded to zero and the controller refuses
// further updates.
type SafetyAbortError struct {
	Feedback string
	Value    float64
	Previous float64
	Reason   string
}

func (e *SafetyAbortError) Error() string {
	return fmt.Sprintf("safety abort: feedback %s = %g (previous %g): %s", e.Feedback, e.Value, e.Previous, e.Reason)
}

// Config is the controller tuning.
type Config struct {
	Setpoint float64
	Gains    Gains
	Min, Max float64
	// MaxJump is the largest plausible change of the feedback between two
	// ticks. Zero disables the jump check; negative feedback always aborts.
	MaxJump float64
	// MaxMissed is how many consecutive non-finite feedback values are
	// tolerated while the output is held. The next one aborts.
	MaxMissed int
}

// ErrFeedbackMissing is returned while a non-finite feedback value is
// tolerated. The output was left at its last command.
var ErrFeedbackMissing = errors.New("feedback missing, output held")

// Validate checks the limits without touching any result.
func (c Config) Validate() error {
	if c.Min > c.Max {
		return fmt.Errorf("output limits (%g, %g) are reversed", c.Min, c.Max)
	}
	if c.MaxJump < 0 {
		return errors.New("max jump must not be negative")
	}
	if c.MaxMissed < 0 {
		return errors.New("max missed must not be negative")
	}
	return nil
}

// Controller drives one controllable result from one feedback result.
type Controller struct {
	control  result.Controllable
	feedback result.Result
	cfg      Config
	pid      *PID
	log      *zap.Logger

	previous    float64
	hasPrevious bool
	missed      int
	abort       *SafetyAbortError
}

// New binds control to feedback. The PID starts from the present value of
// control, so a run that begins with the supply already sourcing continues
// from there.
func New(control result.Controllable, feedback result.Result, cfg Config, log *zap.Logger) (*Controller, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("controller %s: %w", control.Name(), err)
	}
	if log == nil {
		log = zap.NewNop()
	}
	start := control.Value()
	if math.IsNaN(start) || math.IsInf(start, 0) {
		start = 0
	}
	return &Controller{
		control:  control,
		feedback: feedback,
		cfg:      cfg,
		pid:      NewPID(cfg.Gains, cfg.Setpoint, cfg.Min, cfg.Max, start),
		log:      log.With(zap.String("control", control.Name()), zap.String("feedback", feedback.Name())),
	}, nil
}

// PID exposes the underlying controller.
func (c *Controller) PID() *PID { return c.pid }

// Control returns the controlled result.
func (c *Controller) Control() result.Controllable { return c.control }

// Feedback returns the feedback result.
func (c *Controller) Feedback() result.Result { return c.feedback }

// Resume continues control from lastOutput, typically the last output of an
// interrupted run.
func (c *Controller) Resume(lastOutput float64) {
	c.pid.SetAuto(false, 0)
	c.pid.SetAuto(true, lastOutput)
	c.log.Info("resuming control", zap.Float64("output", c.pid.Output()))
}

// Start opens the controlled hardware.
func (c *Controller) Start(ctx context.Context) error {
	if a, ok := c.control.(result.Activator); ok {
		return a.Open(ctx)
	}
	return nil
}

// Close releases the controlled hardware.
func (c *Controller) Close() error {
	if a, ok := c.control.(result.Activator); ok {
		return a.Close()
	}
	return nil
}

// Update runs one control step. A *SafetyAbortError is fatal; any other
// error means this tick's command did not reach the hardware.
func (c *Controller) Update(ctx context.Context) error {
	if c.abort != nil {
		return c.abort
	}

	v := c.feedback.Value()
	if math.IsNaN(v) || math.IsInf(v, 0) {
		c.missed++
		if c.missed <= c.cfg.MaxMissed {
			c.log.Warn("feedback missing", zap.Int("missed", c.missed), zap.Int("max_missed", c.cfg.MaxMissed))
			return fmt.Errorf("%s: %w", c.feedback.Name(), ErrFeedbackMissing)
		}
	} else {
		c.missed = 0
	}
	if reason := c.misread(v); reason != "" {
		c.abort = &SafetyAbortError{Feedback: c.feedback.Name(), Value: v, Previous: c.previous, Reason: reason}
		c.log.Error("safety abort", zap.Float64("value", v), zap.Float64("previous", c.previous), zap.String("reason", reason))
		if err := c.control.Write(ctx, 0); err != nil {
			return multierr.Append(c.abort, fmt.Errorf("zero %s: %w", c.control.Name(), err))
		}
		return c.abort
	}
	c.previous, c.hasPrevious = v, true

	out := c.pid.Next(v)
	if err := c.control.Write(ctx, out); err != nil {
		c.log.Warn("control write failed", zap.Float64("output", out), zap.Error(err))
		return fmt.Errorf("write %s: %w", c.control.Name(), err)
	}
	c.log.Debug("control", zap.Float64("feedback", v), zap.Float64("output", out))
	return nil
}

func (c *Controller) misread(v float64) string {
	switch {
	case math.IsNaN(v) || math.IsInf(v, 0):
		return fmt.Sprintf("not finite for %d ticks", c.missed)
	case v < 0:
		return "negative"
	case c.hasPrevious && c.cfg.MaxJump > 0 && math.Abs(v-c.previous) > c.cfg.MaxJump:
		return fmt.Sprintf("jumped more than %g", c.cfg.MaxJump)
	}
	return ""
}

// IsSafetyAbort reports whether err carries a safety abort.
func IsSafetyAbort(err error) bool {
	var abort *SafetyAbortError
	return errors.As(err, &abort)
}
