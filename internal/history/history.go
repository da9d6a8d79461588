// Package history keeps the recent values of one result for the live
// display, the rise estimator and the snapshot statistics.
package history

import (
	"math"
	"time"
)

// Point is a value and the time it was taken.
type Point struct {
	Value float64
	Time  time.Time
}

// Buffer is a bounded ring of points. Once full, each push overwrites the
// oldest point. Lo and peak cover every finite value since creation, not
// only the retained ones.
type Buffer struct {
	ring  []Point
	head  int // index of the oldest point once the ring is full
	lo    float64
	peak  float64
	valid bool
}

// NewBuffer returns an empty buffer holding at most capacity points.
// Capacities below one are raised to one.
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{ring: make([]Point, 0, capacity)}
}

// Push records v at t. NaN is kept as a gap but never becomes lo or peak.
func (b *Buffer) Push(v float64, t time.Time) {
	p := Point{Value: v, Time: t}
	if len(b.ring) < cap(b.ring) {
		b.ring = append(b.ring, p)
	} else {
		b.ring[b.head] = p
		b.head = (b.head + 1) % len(b.ring)
	}

	if math.IsNaN(v) {
		return
	}
	if !b.valid {
		b.lo, b.peak, b.valid = v, v, true
		return
	}
	b.lo = math.Min(b.lo, v)
	b.peak = math.Max(b.peak, v)
}

// Len is the number of retained points.
func (b *Buffer) Len() int { return len(b.ring) }

// Cap is the most points the buffer retains.
func (b *Buffer) Cap() int { return cap(b.ring) }

// at returns the i-th retained point, oldest first.
func (b *Buffer) at(i int) Point {
	return b.ring[(b.head+i)%len(b.ring)]
}

// Last is the newest value, NaN when empty.
func (b *Buffer) Last() float64 {
	if len(b.ring) == 0 {
		return math.NaN()
	}
	return b.at(len(b.ring) - 1).Value
}

// Range reports the lowest and highest finite values ever pushed. ok is
// false until one arrives.
func (b *Buffer) Range() (lo, peak float64, ok bool) {
	return b.lo, b.peak, b.valid
}

// Avg is the mean of the retained finite values, NaN when there are none.
func (b *Buffer) Avg() float64 {
	sum, n := 0.0, 0
	for _, p := range b.ring {
		if math.IsNaN(p.Value) {
			continue
		}
		sum += p.Value
		n++
	}
	if n == 0 {
		return math.NaN()
	}
	return sum / float64(n)
}

// Points copies every retained point, oldest first.
func (b *Buffer) Points() []Point { return b.LastNPoints(len(b.ring)) }

// LastNPoints copies the newest n points, oldest first.
func (b *Buffer) LastNPoints(n int) []Point {
	if n <= 0 || len(b.ring) == 0 {
		return nil
	}
	if n > len(b.ring) {
		n = len(b.ring)
	}
	out := make([]Point, n)
	for i := range out {
		out[i] = b.at(len(b.ring) - n + i)
	}
	return out
}
