// Package result is the per-tick computation graph. Every node holds a
// current value and a bounded history; raw readings come from hardware and
// derived nodes recompute from upstream nodes that were resolved by name
// when the graph was built. Nodes are added in dependency order, so updating
// them in insertion order always reads fresh upstream values.
package result

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/softboiler/boilerdaq/internal/fit"
	"github.com/softboiler/boilerdaq/internal/history"
)

var (
	// ErrNotFound is returned when a name does not resolve to a result.
	ErrNotFound = errors.New("result not found")
	// ErrDuplicate is returned when a name resolves to more than one result.
	ErrDuplicate = errors.New("duplicate result name")
)

// Result is a node of the graph.
type Result interface {
	Name() string
	Unit() string
	// Value is the value computed by the last Update, NaN before the first.
	Value() float64
	// History holds past values; its last point is always Value.
	History() *history.Buffer
	// Update recomputes Value from hardware or upstream values and appends
	// it to History. A returned error has already been absorbed: the node
	// still appended a value (NaN or the previous one) and the error is for
	// reporting only.
	Update(ctx context.Context, at time.Time) error
}

// Controllable is a result that can command its hardware.
type Controllable interface {
	Result
	Write(ctx context.Context, v float64) error
}

// Activator is a result whose hardware must be opened before it can be read.
type Activator interface {
	Result
	Open(ctx context.Context) error
	Close() error
	// OneShot opens the hardware if needed, updates once, and restores the
	// previous open state.
	OneShot(ctx context.Context, at time.Time) error
}

// Estimator is a result that may estimate its step-response rise.
type Estimator interface {
	Result
	EstimatesRise() bool
	Estimate() fit.Estimate
}

// Label is the column label used for a result in CSV headers.
func Label(r Result) string {
	return fmt.Sprintf("%s (%s)", r.Name(), r.Unit())
}

// node carries what every result has in common.
type node struct {
	name  string
	unit  string
	value float64
	hist  *history.Buffer
}

func newNode(name, unit string, capacity int) node {
	return node{name: name, unit: unit, value: math.NaN(), hist: history.NewBuffer(capacity)}
}

func (n *node) Name() string             { return n.name }
func (n *node) Unit() string             { return n.unit }
func (n *node) Value() float64           { return n.value }
func (n *node) History() *history.Buffer { return n.hist }

func (n *node) commit(v float64, at time.Time) {
	n.value = v
	n.hist.Push(v, at)
}

// Lookup returns the first result in results with the given name.
func Lookup(name string, results []Result) (Result, error) {
	for _, r := range results {
		if r.Name() == name {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
}

// lookupUnique is Lookup that also rejects names matching more than once.
func lookupUnique(name string, results []Result) (Result, error) {
	var found Result
	for _, r := range results {
		if r.Name() != name {
			continue
		}
		if found != nil {
			return nil, fmt.Errorf("%w: %q", ErrDuplicate, name)
		}
		found = r
	}
	if found == nil {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return found, nil
}
