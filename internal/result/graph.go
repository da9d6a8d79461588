package result

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Graph owns the results of a run, indexed by name. Insertion order is
// update order.
type Graph struct {
	nodes    []Result
	index    map[string]int
	capacity int
	log      *zap.Logger
}

// NewGraph returns an empty graph whose results keep capacity history points.
func NewGraph(capacity int, log *zap.Logger) *Graph {
	if log == nil {
		log = zap.NewNop()
	}
	return &Graph{index: make(map[string]int), capacity: capacity, log: log}
}

// Capacity is the history length of results built for this graph.
func (g *Graph) Capacity() int { return g.capacity }

// Len returns the number of results.
func (g *Graph) Len() int { return len(g.nodes) }

// Add appends a result. Names must be unique.
func (g *Graph) Add(r Result) error {
	if _, ok := g.index[r.Name()]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicate, r.Name())
	}
	g.index[r.Name()] = len(g.nodes)
	g.nodes = append(g.nodes, r)
	return nil
}

// Get returns the result with the given name.
func (g *Graph) Get(name string) (Result, error) {
	i, ok := g.index[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return g.nodes[i], nil
}

// Results returns the results in update order.
func (g *Graph) Results() []Result {
	return append([]Result(nil), g.nodes...)
}

// Update advances every result once, in insertion order. Failures are logged
// and returned together; they never stop the remaining results from updating.
func (g *Graph) Update(ctx context.Context, at time.Time) error {
	var errs error
	for _, r := range g.nodes {
		if err := r.Update(ctx, at); err != nil {
			g.log.Warn("result degraded", zap.String("result", r.Name()), zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// Prime produces a first value for every result, opening and closing
// hardware that is not yet open.
func (g *Graph) Prime(ctx context.Context, at time.Time) error {
	var errs error
	for _, r := range g.nodes {
		var err error
		if a, ok := r.(Activator); ok {
			err = a.OneShot(ctx, at)
		} else {
			err = r.Update(ctx, at)
		}
		if err != nil {
			g.log.Warn("result degraded", zap.String("result", r.Name()), zap.Error(err))
			errs = multierr.Append(errs, err)
		}
	}
	return errs
}

// Close releases the hardware behind every activatable result.
func (g *Graph) Close() error {
	var errs error
	for _, r := range g.nodes {
		if a, ok := r.(Activator); ok {
			errs = multierr.Append(errs, a.Close())
		}
	}
	return errs
}
