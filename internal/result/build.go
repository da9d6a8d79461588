package result

import (
	"errors"
	"fmt"
	"time"

	"github.com/softboiler/boilerdaq/internal/fit"
	"github.com/softboiler/boilerdaq/internal/instrument"
	"github.com/softboiler/boilerdaq/internal/param"
	"github.com/softboiler/boilerdaq/internal/sensor"
)

// Params is the full tabular configuration of a run.
type Params struct {
	Power   []param.Power
	Sensors []param.Sensor
	Scaled  []param.Scaled
	Flux    []param.Flux
	Extrap  []param.Extrap
}

// Hardware is what the graph reads through and how.
type Hardware struct {
	Board       sensor.Board
	Supply      *instrument.Supply
	ReadTimeout time.Duration

	// RiseWindow and RiseFraction configure the step-response estimator of
	// sensors flagged for rise estimation.
	RiseWindow   int
	RiseFraction float64
}

// Build adds the results of p to g in dependency order: power, readings,
// scaled, flux, extrapolations, then fits. Every upstream name is resolved
// against the results added before it, so a failure here is a configuration
// error and no result has touched hardware yet.
func Build(g *Graph, p Params, hw Hardware, fits []FitSpec) error {
	capacity := g.Capacity()

	if len(p.Power) > 0 && hw.Supply == nil {
		return errors.New("power results configured without a supply")
	}
	for _, pp := range p.Power {
		r, err := NewPower(pp, hw.Supply, capacity)
		if err != nil {
			return err
		}
		if err := g.Add(r); err != nil {
			return err
		}
	}

	if len(p.Sensors) > 0 && hw.Board == nil {
		return errors.New("sensors configured without a board")
	}
	for _, sp := range p.Sensors {
		var rise *fit.Rise
		if sp.EstRise {
			var err error
			if rise, err = fit.NewRise(hw.RiseWindow, hw.RiseFraction); err != nil {
				return fmt.Errorf("sensor %s: %w", sp.Name, err)
			}
		}
		r, err := NewReading(sp, hw.Board, capacity, hw.ReadTimeout, rise)
		if err != nil {
			return err
		}
		if err := g.Add(r); err != nil {
			return err
		}
	}

	for _, sp := range p.Scaled {
		r, err := NewScaled(sp, g.nodes, capacity)
		if err != nil {
			return err
		}
		if err := g.Add(r); err != nil {
			return err
		}
	}
	for _, fp := range p.Flux {
		r, err := NewFlux(fp, g.nodes, capacity)
		if err != nil {
			return err
		}
		if err := g.Add(r); err != nil {
			return err
		}
	}
	for _, ep := range p.Extrap {
		r, err := NewExtrap(ep, g.nodes, capacity)
		if err != nil {
			return err
		}
		if err := g.Add(r); err != nil {
			return err
		}
	}
	for _, spec := range fits {
		r, err := NewFit(spec, g.nodes, capacity)
		if err != nil {
			return err
		}
		if err := g.Add(r); err != nil {
			return err
		}
	}
	return nil
}

// Controllables returns the results that can command hardware.
func (g *Graph) Controllables() []Controllable {
	var out []Controllable
	for _, r := range g.nodes {
		if c, ok := r.(Controllable); ok {
			out = append(out, c)
		}
	}
	return out
}
