package fit

import (
	"fmt"
)

// Model is a parametric curve y = Eval(x, p).
type Model struct {
	Name   string
	Params []string
	Eval   func(x float64, p []float64) float64
}

// Index returns the position of the named parameter, or -1.
func (m Model) Index(name string) int {
	for i, p := range m.Params {
		if p == name {
			return i
		}
	}
	return -1
}

// RodModel returns the named temperature-profile model for a rod of thermal
// conductivity k, with x measured from the boiling surface toward the heater:
//
//	linear:    T(x) = T_s + q_s/k * x
//	quadratic: T(x) = T_s + q_s/k * x + c * x^2
func RodModel(name string, k float64) (Model, error) {
	if k == 0 {
		return Model{}, fmt.Errorf("rod model %q: conductivity must be non-zero", name)
	}
	switch name {
	case "linear":
		return Model{
			Name:   name,
			Params: []string{"T_s", "q_s"},
			Eval: func(x float64, p []float64) float64 {
				return p[0] + p[1]/k*x
			},
		}, nil
	case "quadratic":
		return Model{
			Name:   name,
			Params: []string{"T_s", "q_s", "c"},
			Eval: func(x float64, p []float64) float64 {
				return p[0] + p[1]/k*x + p[2]*x*x
			},
		}, nil
	default:
		return Model{}, fmt.Errorf("unknown rod model %q", name)
	}
}

// Param is the starting point of one model parameter. Fixed parameters keep
// their guess.
type Param struct {
	Guess float64
	Fixed bool
}

// Profile fits a model to values sampled at fixed positions. Each successful
// fit seeds the free parameters of the next.
type Profile struct {
	model Model
	x     []float64
	start []float64
	fixed []bool
}

// NewProfile prepares a fit of model at positions x. params maps parameter
// names to their starting point; parameters not named start at zero and are free.
func NewProfile(model Model, x []float64, params map[string]Param) (*Profile, error) {
	p := &Profile{
		model: model,
		x:     append([]float64(nil), x...),
		start: make([]float64, len(model.Params)),
		fixed: make([]bool, len(model.Params)),
	}
	for name, param := range params {
		i := model.Index(name)
		if i < 0 {
			return nil, fmt.Errorf("model %q has no parameter %q", model.Name, name)
		}
		p.start[i] = param.Guess
		p.fixed[i] = param.Fixed
	}

	free := 0
	for _, f := range p.fixed {
		if !f {
			free++
		}
	}
	if free == 0 {
		return nil, fmt.Errorf("model %q: every parameter is fixed", model.Name)
	}
	if len(x) < free {
		return nil, fmt.Errorf("model %q: %d positions cannot determine %d free parameters", model.Name, len(x), free)
	}
	return p, nil
}

// Fit returns the full parameter vector best describing y at the positions.
func (p *Profile) Fit(y []float64) ([]float64, error) {
	if len(y) != len(p.x) {
		return nil, fmt.Errorf("fit %q: got %d values for %d positions", p.model.Name, len(y), len(p.x))
	}
	if !allFinite(y) {
		return nil, fmt.Errorf("%w: non-finite input", ErrNoConvergence)
	}

	var free []int
	for i, f := range p.fixed {
		if !f {
			free = append(free, i)
		}
	}

	full := append([]float64(nil), p.start...)
	expand := func(v []float64) []float64 {
		for j, i := range free {
			full[i] = v[j]
		}
		return full
	}
	sse := func(v []float64) float64 {
		params := expand(v)
		sum := 0.0
		for i, x := range p.x {
			r := p.model.Eval(x, params) - y[i]
			sum += r * r
		}
		return sum
	}

	x0 := make([]float64, len(free))
	for j, i := range free {
		x0[j] = p.start[i]
	}
	best, err := minimize(sse, x0)
	if err != nil {
		return nil, err
	}

	out := append([]float64(nil), expand(best)...)
	copy(p.start, out)
	return out, nil
}
