package result

import (
	"context"
	"fmt"
	"time"

	"github.com/softboiler/boilerdaq/internal/param"
)

// Scaled is upstream*Scale + Offset.
type Scaled struct {
	node
	Param param.Scaled

	upstream Result
}

// NewScaled resolves the unscaled upstream of p in results.
func NewScaled(p param.Scaled, results []Result, capacity int) (*Scaled, error) {
	up, err := lookupUnique(p.UnscaledSensor, results)
	if err != nil {
		return nil, fmt.Errorf("scaled %s: %w", p.Name, err)
	}
	return &Scaled{node: newNode(p.Name, p.Unit, capacity), Param: p, upstream: up}, nil
}

func (s *Scaled) Update(_ context.Context, at time.Time) error {
	s.commit(s.upstream.Value()*s.Param.Scale+s.Param.Offset, at)
	return nil
}

// Flux is the conductive heat flux Conductivity/Length*(origin-distant),
// positive when the origin is hotter than the distant point.
type Flux struct {
	node
	Param param.Flux

	origin  Result
	distant Result
}

// NewFlux resolves the origin and distant upstreams of p in results.
func NewFlux(p param.Flux, results []Result, capacity int) (*Flux, error) {
	if p.Length == 0 {
		return nil, fmt.Errorf("flux %s: length must be non-zero", p.Name)
	}
	origin, err := lookupUnique(p.OriginSensor, results)
	if err != nil {
		return nil, fmt.Errorf("flux %s: origin: %w", p.Name, err)
	}
	distant, err := lookupUnique(p.DistantSensor, results)
	if err != nil {
		return nil, fmt.Errorf("flux %s: distant: %w", p.Name, err)
	}
	return &Flux{node: newNode(p.Name, p.Unit, capacity), Param: p, origin: origin, distant: distant}, nil
}

func (f *Flux) Update(_ context.Context, at time.Time) error {
	f.commit(f.Param.Conductivity/f.Param.Length*(f.origin.Value()-f.distant.Value()), at)
	return nil
}

// Extrap projects the origin value along a flux:
// origin - flux*Length/Conductivity.
type Extrap struct {
	node
	Param param.Extrap

	origin Result
	flux   *Flux
}

// NewExtrap resolves the origin and flux upstreams of p in results. The flux
// upstream must be a Flux.
func NewExtrap(p param.Extrap, results []Result, capacity int) (*Extrap, error) {
	if p.Conductivity == 0 {
		return nil, fmt.Errorf("extrap %s: conductivity must be non-zero", p.Name)
	}
	origin, err := lookupUnique(p.OriginSensor, results)
	if err != nil {
		return nil, fmt.Errorf("extrap %s: origin: %w", p.Name, err)
	}
	up, err := lookupUnique(p.Flux, results)
	if err != nil {
		return nil, fmt.Errorf("extrap %s: flux: %w", p.Name, err)
	}
	flux, ok := up.(*Flux)
	if !ok {
		return nil, fmt.Errorf("extrap %s: %q is not a flux", p.Name, p.Flux)
	}
	return &Extrap{node: newNode(p.Name, p.Unit, capacity), Param: p, origin: origin, flux: flux}, nil
}

func (e *Extrap) Update(_ context.Context, at time.Time) error {
	e.commit(e.origin.Value()-e.flux.Value()*e.Param.Length/e.Param.Conductivity, at)
	return nil
}
