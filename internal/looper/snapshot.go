package looper

import (
	"math"
	"time"

	"github.com/softboiler/boilerdaq/internal/history"
	"github.com/softboiler/boilerdaq/internal/result"
)

// Value is a read-only copy of one result.
type Value struct {
	Name   string
	Unit   string
	Value  float64
	Points []history.Point

	// Avg is the mean over Points; Lo and Peak are the extremes since the
	// run started. All three are NaN until a finite value arrives.
	Avg  float64
	Lo   float64
	Peak float64

	// Rise and Remaining are NaN for results without rise estimation.
	Rise      float64
	Remaining float64
}

// Snapshot is a read-only copy of every result at one tick. Snapshots are
// handed from the tick goroutine to readers and never mutated afterwards.
type Snapshot struct {
	Tick   uint64
	Time   time.Time
	Values []Value

	index map[string]int
}

func takeSnapshot(tick uint64, at time.Time, results []result.Result) *Snapshot {
	s := &Snapshot{
		Tick:   tick,
		Time:   at,
		Values: make([]Value, len(results)),
		index:  make(map[string]int, len(results)),
	}
	for i, r := range results {
		h := r.History()
		v := Value{
			Name:      r.Name(),
			Unit:      r.Unit(),
			Value:     r.Value(),
			Points:    h.LastNPoints(h.Len()),
			Avg:       h.Avg(),
			Lo:        math.NaN(),
			Peak:      math.NaN(),
			Rise:      math.NaN(),
			Remaining: math.NaN(),
		}
		if lo, peak, ok := h.Range(); ok {
			v.Lo, v.Peak = lo, peak
		}
		if e, ok := r.(result.Estimator); ok && e.EstimatesRise() {
			est := e.Estimate()
			v.Rise, v.Remaining = est.Rise, est.Remaining
		}
		s.Values[i] = v
		s.index[v.Name] = i
	}
	return s
}

// Get returns the value of the named result. Snapshots built outside the
// looper have no index and are searched in order.
func (s *Snapshot) Get(name string) (Value, bool) {
	if s.index == nil {
		for _, v := range s.Values {
			if v.Name == name {
				return v, true
			}
		}
		return Value{}, false
	}
	i, ok := s.index[name]
	if !ok {
		return Value{}, false
	}
	return s.Values[i], true
}
