package history

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func values(pts []Point) []float64 {
	out := make([]float64, len(pts))
	for i, p := range pts {
		out[i] = p.Value
	}
	return out
}

func TestBufferWrapsOldestFirst(t *testing.T) {
	h := NewBuffer(4)
	base := time.Date(2026, 2, 21, 14, 0, 0, 0, time.Local)

	for n := 1; n <= 11; n++ {
		h.Push(float64(n), base.Add(time.Duration(n)*time.Second))
		assert.Equal(t, min(n, 4), h.Len(), "after %d pushes", n)
	}

	assert.Equal(t, 4, h.Cap())
	assert.Equal(t, []float64{8, 9, 10, 11}, values(h.Points()))
	assert.True(t, h.Points()[0].Time.Equal(base.Add(8*time.Second)))
	assert.Equal(t, 11.0, h.Last())
}

func TestRangeCoversEvictedValues(t *testing.T) {
	h := NewBuffer(2)
	now := time.Now()
	_, _, ok := h.Range()
	assert.False(t, ok)

	for _, v := range []float64{30, 36, 33, 34} {
		h.Push(v, now)
	}
	lo, peak, ok := h.Range()
	require.True(t, ok)
	assert.Equal(t, 30.0, lo)
	assert.Equal(t, 36.0, peak)
	assert.Equal(t, []float64{33, 34}, values(h.Points()))
}

func TestNaNIsAGap(t *testing.T) {
	h := NewBuffer(3)
	now := time.Now()
	h.Push(10, now)
	h.Push(math.NaN(), now)
	h.Push(20, now)

	lo, peak, ok := h.Range()
	require.True(t, ok)
	assert.Equal(t, 10.0, lo)
	assert.Equal(t, 20.0, peak)
	assert.Equal(t, 15.0, h.Avg())
	assert.Equal(t, 3, h.Len(), "NaN is retained")

	only := NewBuffer(3)
	only.Push(math.NaN(), now)
	_, _, ok = only.Range()
	assert.False(t, ok)
	assert.True(t, math.IsNaN(only.Avg()))
	assert.True(t, math.IsNaN(NewBuffer(3).Last()))
}

func TestLastNPoints(t *testing.T) {
	h := NewBuffer(100)
	base := time.Date(2026, 2, 21, 14, 0, 0, 0, time.Local)
	for i := 0; i < 120; i++ {
		h.Push(float64(i), base.Add(time.Duration(i)*time.Second))
	}

	pts := h.LastNPoints(5)
	assert.Equal(t, []float64{115, 116, 117, 118, 119}, values(pts))
	assert.Equal(t, base.Add(119*time.Second), pts[4].Time)

	assert.Len(t, h.LastNPoints(500), 100)
	assert.Nil(t, h.LastNPoints(0))
	assert.Nil(t, NewBuffer(3).LastNPoints(2))

	// Copies do not alias the ring.
	pts[0].Value = -1
	assert.Equal(t, 115.0, h.LastNPoints(5)[0].Value)
}

func TestCapacityFloor(t *testing.T) {
	h := NewBuffer(0)
	h.Push(1, time.Now())
	h.Push(2, time.Now())
	assert.Equal(t, 1, h.Cap())
	assert.Equal(t, []float64{2}, values(h.Points()))
}
