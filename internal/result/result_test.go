package result

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/softboiler/boilerdaq/internal/fit"
	"github.com/softboiler/boilerdaq/internal/instrument"
	"github.com/softboiler/boilerdaq/internal/param"
	"github.com/softboiler/boilerdaq/internal/sensor"
)

var errBoard = errors.New("board unplugged")

// scriptBoard replays a fixed sequence of values per channel, repeating the
// last one once the sequence runs out.
type scriptBoard struct {
	seq   map[int][]float64
	calls map[int]int
	fail  map[int]bool
}

func newScriptBoard(seq map[int][]float64) *scriptBoard {
	return &scriptBoard{seq: seq, calls: make(map[int]int), fail: make(map[int]bool)}
}

func (b *scriptBoard) next(channel int) (float64, error) {
	if b.fail[channel] {
		return 0, errBoard
	}
	vs := b.seq[channel]
	i := b.calls[channel]
	b.calls[channel]++
	if i >= len(vs) {
		i = len(vs) - 1
	}
	return vs[i], nil
}

func (b *scriptBoard) Temperature(_ context.Context, _, channel int, _ sensor.UnitCode) (float64, error) {
	return b.next(channel)
}

func (b *scriptBoard) Voltage(_ context.Context, _, channel int) (float64, error) {
	return b.next(channel)
}

func rodParams() Params {
	return Params{
		Sensors: []param.Sensor{
			{Name: "T0", Board: 0, Channel: 0, Reading: param.Temperature, Unit: "C"},
			{Name: "T1", Board: 0, Channel: 1, Reading: param.Temperature, Unit: "C"},
			{Name: "P", Board: 0, Channel: 2, Reading: param.Voltage, Unit: "V"},
		},
		Scaled: []param.Scaled{
			{Name: "T0cal", UnscaledSensor: "T0", Scale: 2, Offset: 1, Unit: "C"},
			{Name: "T1cal", UnscaledSensor: "T1", Scale: 1, Offset: 0, Unit: "C"},
		},
		Flux: []param.Flux{
			{Name: "Q01", OriginSensor: "T0cal", DistantSensor: "T1cal", Conductivity: 4, Length: 2, Unit: "W/cm^2"},
		},
		Extrap: []param.Extrap{
			{Name: "Ts", OriginSensor: "T0cal", Flux: "Q01", Conductivity: 4, Length: 1, Unit: "C"},
		},
	}
}

func value(t *testing.T, g *Graph, name string) float64 {
	t.Helper()
	r, err := g.Get(name)
	require.NoError(t, err)
	return r.Value()
}

func TestDerivedResults(t *testing.T) {
	board := newScriptBoard(map[int][]float64{0: {10, 20}, 1: {5}, 2: {0.5}})
	g := NewGraph(10, nil)
	require.NoError(t, Build(g, rodParams(), Hardware{Board: board}, nil))
	require.Equal(t, 7, g.Len())

	for _, r := range g.Results() {
		assert.True(t, math.IsNaN(r.Value()), "%s before first update", r.Name())
	}

	at := time.Unix(0, 0)
	require.NoError(t, g.Update(context.Background(), at))

	assert.Equal(t, 21.0, value(t, g, "T0cal"))
	assert.Equal(t, 5.0, value(t, g, "T1cal"))
	// Flux is positive from origin to distant: 4/2*(21-5).
	assert.Equal(t, 32.0, value(t, g, "Q01"))
	assert.Equal(t, 21.0-32.0*1/4, value(t, g, "Ts"))
	assert.Equal(t, 0.5, value(t, g, "P"))

	// Derived results see the upstream values of the same tick.
	require.NoError(t, g.Update(context.Background(), at.Add(time.Second)))
	assert.Equal(t, 41.0, value(t, g, "T0cal"))
	assert.Equal(t, 72.0, value(t, g, "Q01"))

	q, err := g.Get("Q01")
	require.NoError(t, err)
	pts := q.History().Points()
	require.Len(t, pts, 2)
	assert.Equal(t, 32.0, pts[0].Value)
	assert.Equal(t, 72.0, pts[1].Value)
}

func TestFluxSignConvention(t *testing.T) {
	board := newScriptBoard(map[int][]float64{0: {3}, 1: {7}})
	g := NewGraph(1, nil)
	require.NoError(t, Build(g, Params{
		Sensors: []param.Sensor{
			{Name: "A", Channel: 0, Reading: param.Temperature, Unit: "C"},
			{Name: "B", Channel: 1, Reading: param.Temperature, Unit: "C"},
		},
		Flux: []param.Flux{{Name: "Q", OriginSensor: "A", DistantSensor: "B", Conductivity: 1, Length: 1}},
	}, Hardware{Board: board}, nil))

	require.NoError(t, g.Update(context.Background(), time.Now()))
	assert.Equal(t, -4.0, value(t, g, "Q"), "origin colder than distant gives negative flux")
}

func TestReadingErrorYieldsNaN(t *testing.T) {
	board := newScriptBoard(map[int][]float64{0: {10}, 1: {5}, 2: {1}})
	board.fail[1] = true
	g := NewGraph(10, nil)
	require.NoError(t, Build(g, rodParams(), Hardware{Board: board}, nil))

	err := g.Update(context.Background(), time.Now())
	require.Error(t, err)
	var acq *sensor.AcquisitionError
	require.ErrorAs(t, err, &acq)
	assert.Equal(t, 1, acq.Channel)
	assert.ErrorIs(t, err, errBoard)

	assert.True(t, math.IsNaN(value(t, g, "T1")))
	assert.True(t, math.IsNaN(value(t, g, "Q01")), "NaN propagates downstream")
	assert.Equal(t, 21.0, value(t, g, "T0cal"), "healthy results still update")
}

func TestBuildResolutionErrors(t *testing.T) {
	board := sensor.Constant(1)

	p := rodParams()
	p.Flux[0].DistantSensor = "T9"
	err := Build(NewGraph(1, nil), p, Hardware{Board: board}, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	p = rodParams()
	p.Scaled = append(p.Scaled, param.Scaled{Name: "T0", UnscaledSensor: "T1", Scale: 1})
	err = Build(NewGraph(1, nil), p, Hardware{Board: board}, nil)
	assert.ErrorIs(t, err, ErrDuplicate)

	p = rodParams()
	p.Extrap[0].Flux = "T1cal"
	err = Build(NewGraph(1, nil), p, Hardware{Board: board}, nil)
	assert.ErrorContains(t, err, "not a flux")

	p = rodParams()
	p.Sensors[0].Unit = "R"
	err = Build(NewGraph(1, nil), p, Hardware{Board: board}, nil)
	assert.ErrorContains(t, err, "unsupported unit")

	err = Build(NewGraph(1, nil), Params{Power: []param.Power{{Name: "V", Unit: "V"}}}, Hardware{}, nil)
	assert.Error(t, err)
}

func TestLookupFirstMatch(t *testing.T) {
	board := sensor.Constant(1)
	a, err := NewReading(param.Sensor{Name: "X", Reading: param.Voltage, Unit: "V"}, board, 1, 0, nil)
	require.NoError(t, err)
	b, err := NewReading(param.Sensor{Name: "X", Channel: 1, Reading: param.Voltage, Unit: "V"}, board, 1, 0, nil)
	require.NoError(t, err)

	got, err := Lookup("X", []Result{a, b})
	require.NoError(t, err)
	assert.Same(t, a, got)

	_, err = Lookup("Y", []Result{a, b})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGroups(t *testing.T) {
	g := NewGraph(1, nil)
	require.NoError(t, Build(g, rodParams(), Hardware{Board: sensor.Constant(1)}, nil))

	groups, err := NewGroups([]GroupSpec{
		{Name: "temps", Members: "T0cal  T1cal"},
		{Name: "flux", Members: "Q01 Ts"},
	}, g.Results())
	require.NoError(t, err)
	assert.Equal(t, []string{"temps", "flux"}, groups.Names())

	temps, err := groups.Get("temps")
	require.NoError(t, err)
	require.Len(t, temps, 2)
	assert.Equal(t, "T0cal", temps[0].Name())
	assert.Equal(t, "T1cal", temps[1].Name())

	_, err = groups.Get("pressure")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = NewGroups([]GroupSpec{{Name: "temps", Members: "T0cal T7"}}, g.Results())
	assert.ErrorIs(t, err, ErrNotFound)

	dup := append(g.Results(), g.Results()[0])
	_, err = NewGroups([]GroupSpec{{Name: "temps", Members: "T0"}}, dup)
	assert.ErrorIs(t, err, ErrDuplicate)
}

func TestPowerResult(t *testing.T) {
	sim := instrument.NewSim()
	supply := instrument.NewSupply(sim.Dialer(), 10)
	g := NewGraph(5, nil)
	require.NoError(t, Build(g, Params{Power: []param.Power{
		{Name: "V", Unit: "V"},
		{Name: "I", Unit: "A"},
	}}, Hardware{Supply: supply}, nil))

	ctrl := g.Controllables()
	require.Len(t, ctrl, 2)
	v := ctrl[0]
	assert.Equal(t, "V", v.Name())

	ctx := context.Background()
	require.NoError(t, supply.Open(ctx))
	require.NoError(t, v.Write(ctx, 12.5))
	require.NoError(t, g.Update(ctx, time.Now()))
	assert.Equal(t, 12.5, v.Value())
	assert.Equal(t, 10.0, value(t, g, "I"))

	sim.Fail = errors.New("bus error")
	sim.FailPrefix = "measure:voltage"
	err := g.Update(ctx, time.Now())
	var ioErr *instrument.IOError
	require.ErrorAs(t, err, &ioErr)
	assert.Equal(t, 12.5, v.Value(), "failed read keeps the previous value")
	assert.Equal(t, 2, v.History().Len())

	require.NoError(t, g.Close())
	require.NoError(t, g.Close(), "close is idempotent")
	assert.False(t, sim.Output())
}

func TestPrimeOneShot(t *testing.T) {
	sim := instrument.NewSim()
	supply := instrument.NewSupply(sim.Dialer(), 3)
	g := NewGraph(5, nil)
	require.NoError(t, Build(g, Params{
		Power:   []param.Power{{Name: "I", Unit: "A"}},
		Sensors: []param.Sensor{{Name: "T", Reading: param.Temperature, Unit: "C"}},
	}, Hardware{Supply: supply, Board: sensor.Constant(25)}, nil))

	require.NoError(t, g.Prime(context.Background(), time.Now()))
	assert.Equal(t, 3.0, value(t, g, "I"), "read while briefly armed")
	assert.Equal(t, 25.0, value(t, g, "T"))
	assert.False(t, supply.IsOpen(), "one-shot restores the closed state")
	assert.False(t, sim.Output())
}

func TestFitResult(t *testing.T) {
	// T(x) = 50 + q/k*x with q=10, k=2.
	board := newScriptBoard(map[int][]float64{0: {50}, 1: {55}, 2: {60}})
	sensors := []param.Sensor{
		{Name: "T0", Channel: 0, Reading: param.Temperature, Unit: "C"},
		{Name: "T1", Channel: 1, Reading: param.Temperature, Unit: "C"},
		{Name: "T2", Channel: 2, Reading: param.Temperature, Unit: "C"},
	}
	spec := FitSpec{
		Name:         "q_s",
		Unit:         "W/cm^2",
		Model:        "linear",
		Output:       "q_s",
		Inputs:       []string{"T0", "T1", "T2"},
		Positions:    []float64{0, 1, 2},
		Conductivity: 2,
		Params:       map[string]fit.Param{"T_s": {Guess: 40}, "q_s": {Guess: 1}},
	}
	g := NewGraph(5, nil)
	require.NoError(t, Build(g, Params{Sensors: sensors}, Hardware{Board: board}, []FitSpec{spec}))

	require.NoError(t, g.Update(context.Background(), time.Now()))
	assert.InDelta(t, 10, value(t, g, "q_s"), 1e-3)

	board.fail[1] = true
	err := g.Update(context.Background(), time.Now())
	assert.ErrorIs(t, err, fit.ErrNoConvergence)
	assert.True(t, math.IsNaN(value(t, g, "q_s")))
	r, err := g.Get("q_s")
	require.NoError(t, err)
	assert.InDelta(t, 10, r.History().Points()[0].Value, 1e-3, "earlier history is untouched")

	bad := spec
	bad.Output = "h"
	_, err = NewFit(bad, g.Results(), 1)
	assert.Error(t, err)
}

func TestReadingRiseEstimate(t *testing.T) {
	g := NewGraph(10, nil)
	board := newScriptBoard(map[int][]float64{0: {1}})
	require.NoError(t, Build(g, Params{Sensors: []param.Sensor{
		{Name: "T", Reading: param.Temperature, Unit: "C", EstRise: true},
	}}, Hardware{Board: board, RiseWindow: 10, RiseFraction: 0.95}, nil))

	r, err := g.Get("T")
	require.NoError(t, err)
	est, ok := r.(Estimator)
	require.True(t, ok)
	require.NoError(t, g.Update(context.Background(), time.Unix(0, 0)))
	assert.True(t, math.IsNaN(est.Estimate().Rise), "window not full yet")
}
