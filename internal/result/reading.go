package result

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/softboiler/boilerdaq/internal/fit"
	"github.com/softboiler/boilerdaq/internal/param"
	"github.com/softboiler/boilerdaq/internal/sensor"
)

// Reading is a raw channel read from a board. A failed read yields NaN.
type Reading struct {
	node
	Param param.Sensor

	board   sensor.Board
	code    sensor.UnitCode
	timeout time.Duration

	rise *fit.Rise
	est  fit.Estimate
}

// NewReading returns a reading of p through board. Each read is bounded by
// timeout when it is positive. A non-nil rise estimates the step response
// of the channel on every update.
func NewReading(p param.Sensor, board sensor.Board, capacity int, timeout time.Duration, rise *fit.Rise) (*Reading, error) {
	code, err := sensor.ParseUnit(p.Unit)
	if err != nil {
		return nil, fmt.Errorf("sensor %s: %w", p.Name, err)
	}
	if p.Reading != param.Temperature && p.Reading != param.Voltage {
		return nil, fmt.Errorf("sensor %s: unknown reading kind %q", p.Name, p.Reading)
	}
	return &Reading{
		node:    newNode(p.Name, p.Unit, capacity),
		Param:   p,
		board:   board,
		code:    code,
		timeout: timeout,
		rise:    rise,
		est:     fit.Estimate{Rise: math.NaN(), Remaining: math.NaN(), Base: math.NaN(), Gain: math.NaN(), Tau: math.NaN()},
	}, nil
}

func (r *Reading) Update(ctx context.Context, at time.Time) error {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	var (
		v   float64
		err error
	)
	switch r.Param.Reading {
	case param.Temperature:
		v, err = r.board.Temperature(ctx, r.Param.Board, r.Param.Channel, r.code)
	default:
		v, err = r.board.Voltage(ctx, r.Param.Board, r.Param.Channel)
	}
	if err != nil {
		v = math.NaN()
		var acq *sensor.AcquisitionError
		if !errors.As(err, &acq) {
			err = &sensor.AcquisitionError{Board: r.Param.Board, Channel: r.Param.Channel, Err: err}
		}
	}
	r.commit(v, at)

	if r.rise != nil {
		est, ferr := r.rise.Push(v, at)
		r.est = est
		if ferr != nil && err == nil {
			err = fmt.Errorf("rise estimate: %w", ferr)
		}
	}
	return err
}

// Estimate returns the latest step-response estimate, NaN until the
// estimator window fills or when rise estimation is off.
func (r *Reading) Estimate() fit.Estimate { return r.est }

// EstimatesRise reports whether rise estimation is on.
func (r *Reading) EstimatesRise() bool { return r.rise != nil }
