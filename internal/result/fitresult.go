package result

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/softboiler/boilerdaq/internal/fit"
)

// FitSpec describes a result computed by fitting a rod temperature profile
// to upstream values measured at known positions.
type FitSpec struct {
	Name         string
	Unit         string
	Model        string // linear or quadratic
	Output       string // model parameter to expose
	Inputs       []string
	Positions    []float64
	Conductivity float64
	Params       map[string]fit.Param
}

// Fit exposes one parameter of a profile fit. A fit that does not converge
// yields NaN for that tick.
type Fit struct {
	node
	Spec FitSpec

	inputs  []Result
	profile *fit.Profile
	out     int
	ys      []float64
}

// NewFit resolves the inputs of spec in results.
func NewFit(spec FitSpec, results []Result, capacity int) (*Fit, error) {
	if len(spec.Inputs) != len(spec.Positions) {
		return nil, fmt.Errorf("fit %s: %d inputs but %d positions", spec.Name, len(spec.Inputs), len(spec.Positions))
	}
	model, err := fit.RodModel(spec.Model, spec.Conductivity)
	if err != nil {
		return nil, fmt.Errorf("fit %s: %w", spec.Name, err)
	}
	out := model.Index(spec.Output)
	if out < 0 {
		return nil, fmt.Errorf("fit %s: model %s has no parameter %q", spec.Name, spec.Model, spec.Output)
	}
	profile, err := fit.NewProfile(model, spec.Positions, spec.Params)
	if err != nil {
		return nil, fmt.Errorf("fit %s: %w", spec.Name, err)
	}
	inputs := make([]Result, len(spec.Inputs))
	for i, name := range spec.Inputs {
		if inputs[i], err = lookupUnique(name, results); err != nil {
			return nil, fmt.Errorf("fit %s: %w", spec.Name, err)
		}
	}
	return &Fit{
		node:    newNode(spec.Name, spec.Unit, capacity),
		Spec:    spec,
		inputs:  inputs,
		profile: profile,
		out:     out,
		ys:      make([]float64, len(inputs)),
	}, nil
}

func (f *Fit) Update(_ context.Context, at time.Time) error {
	for i, in := range f.inputs {
		f.ys[i] = in.Value()
	}
	p, err := f.profile.Fit(f.ys)
	if err != nil {
		f.commit(math.NaN(), at)
		return fmt.Errorf("fit %s: %w", f.name, err)
	}
	f.commit(p[f.out], at)
	return nil
}
