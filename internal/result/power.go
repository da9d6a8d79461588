package result

import (
	"context"
	"fmt"
	"time"

	"github.com/softboiler/boilerdaq/internal/instrument"
	"github.com/softboiler/boilerdaq/internal/param"
)

// Power reads and commands one quantity of a power supply. A failed read
// keeps the previous value.
type Power struct {
	node
	Param param.Power

	quantity instrument.Quantity
	supply   *instrument.Supply
}

// NewPower binds p to a supply session. Several Power results may share one
// session.
func NewPower(p param.Power, supply *instrument.Supply, capacity int) (*Power, error) {
	q := instrument.Quantity(p.Name)
	if q != instrument.Voltage && q != instrument.Current {
		return nil, fmt.Errorf("power %s: quantity must be V or I", p.Name)
	}
	return &Power{node: newNode(p.Name, p.Unit, capacity), Param: p, quantity: q, supply: supply}, nil
}

// Update reads the supply. While the session is closed the supply is not
// sourcing and the value read at activation is kept.
func (p *Power) Update(ctx context.Context, at time.Time) error {
	if !p.supply.IsOpen() {
		p.commit(p.value, at)
		return nil
	}
	v, err := p.supply.Measure(ctx, p.quantity)
	if err != nil {
		p.commit(p.value, at)
		return fmt.Errorf("measure %s: %w", p.quantity, err)
	}
	p.commit(v, at)
	return nil
}

// Write commands the supply to source v.
func (p *Power) Write(ctx context.Context, v float64) error {
	return p.supply.Set(ctx, p.quantity, v)
}

func (p *Power) Open(ctx context.Context) error { return p.supply.Open(ctx) }

func (p *Power) Close() error { return p.supply.Close() }

func (p *Power) OneShot(ctx context.Context, at time.Time) error {
	if p.supply.IsOpen() {
		return p.Update(ctx, at)
	}
	if err := p.supply.Open(ctx); err != nil {
		p.commit(p.value, at)
		return err
	}
	err := p.Update(ctx, at)
	if cerr := p.supply.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
