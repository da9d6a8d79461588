package looper

import (
	"context"
	"math"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/softboiler/boilerdaq/internal/controller"
	"github.com/softboiler/boilerdaq/internal/instrument"
	"github.com/softboiler/boilerdaq/internal/param"
	"github.com/softboiler/boilerdaq/internal/result"
	"github.com/softboiler/boilerdaq/internal/sensor"
	"github.com/softboiler/boilerdaq/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// seqBoard reads vs in order and then repeats the last value.
type seqBoard struct {
	vs []float64
	n  int
}

func (b *seqBoard) next() float64 {
	i := b.n
	if i >= len(b.vs) {
		i = len(b.vs) - 1
	}
	b.n++
	return b.vs[i]
}

func (b *seqBoard) Temperature(context.Context, int, int, sensor.UnitCode) (float64, error) {
	return b.next(), nil
}

func (b *seqBoard) Voltage(context.Context, int, int) (float64, error) { return b.next(), nil }

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) add(e string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) list() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

type recordingWriter struct {
	*store.Writer
	rec *recorder
}

func (w recordingWriter) Update(ctx context.Context) error {
	w.rec.add("write")
	return w.Writer.Update(ctx)
}

type recordingSink struct {
	rec   *recorder
	snaps chan *Snapshot
}

func (s *recordingSink) Publish(_ context.Context, snap *Snapshot) error {
	s.rec.add("sink")
	select {
	case s.snaps <- snap:
	default:
	}
	return nil
}

type rig struct {
	graph  *result.Graph
	writer *store.Writer
	sim    *instrument.Sim
	supply *instrument.Supply
	path   string
}

func newRig(t *testing.T, feedback []float64) *rig {
	t.Helper()
	sim := instrument.NewSim()
	supply := instrument.NewSupply(sim.Dialer(), 5)
	g := result.NewGraph(20, nil)
	require.NoError(t, result.Build(g, result.Params{
		Power:   []param.Power{{Name: "V", Unit: "V"}},
		Sensors: []param.Sensor{{Name: "T", Reading: param.Temperature, Unit: "C"}},
	}, result.Hardware{Board: &seqBoard{vs: feedback}, Supply: supply}, nil))

	w := store.NewWriter(g, nil)
	path, err := w.Add(context.Background(), filepath.Join(t.TempDir(), "results.csv"), g.Results())
	require.NoError(t, err)
	return &rig{graph: g, writer: w, sim: sim, supply: supply, path: path}
}

func (r *rig) controller(t *testing.T) *controller.Controller {
	t.Helper()
	v, err := r.graph.Get("V")
	require.NoError(t, err)
	fb, err := r.graph.Get("T")
	require.NoError(t, err)
	c, err := controller.New(v.(result.Controllable), fb, controller.Config{
		Setpoint: 30, Gains: controller.Gains{P: 1}, Min: 0, Max: 20, MaxJump: 10,
	}, nil)
	require.NoError(t, err)
	return c
}

func TestLooperTicks(t *testing.T) {
	r := newRig(t, []float64{20, 21, 22, 23, 24, 25})
	rec := &recorder{}
	sink := &recordingSink{rec: rec, snaps: make(chan *Snapshot, 64)}
	l := New(r.graph, recordingWriter{r.writer, rec}, 5*time.Millisecond,
		WithControllers(r.controller(t)), WithSinks(sink))
	assert.Equal(t, Idle, l.State())

	require.NoError(t, l.Start(context.Background()))
	assert.Equal(t, Running, l.State())
	assert.ErrorIs(t, l.Start(context.Background()), ErrState)
	assert.True(t, r.supply.IsOpen(), "controller opened the supply")

	var last *Snapshot
	for i := 0; i < 3; i++ {
		select {
		case last = <-sink.snaps:
		case <-time.After(5 * time.Second):
			t.Fatal("no tick")
		}
	}
	require.NoError(t, l.Stop())
	require.NoError(t, l.Stop())
	assert.Equal(t, Stopped, l.State())

	assert.Equal(t, uint64(3), last.Tick)
	v, ok := last.Get("T")
	require.True(t, ok)
	assert.Equal(t, 23.0, v.Value)
	assert.Len(t, v.Points, 4, "priming read plus three ticks")
	assert.True(t, r.sim.Closed())
	assert.False(t, r.sim.Output())

	events := rec.list()
	require.GreaterOrEqual(t, len(events), 6)
	for i := 0; i+1 < len(events); i += 2 {
		assert.Equal(t, []string{"write", "sink"}, events[i:i+2])
	}

	table, err := store.LoadFile(r.path)
	require.NoError(t, err)
	assert.Equal(t, len(table.Rows), int(l.tick)+1)
}

func TestLooperSafetyAbort(t *testing.T) {
	r := newRig(t, []float64{20, 21, 80})
	l := New(r.graph, r.writer, time.Millisecond, WithControllers(r.controller(t)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := l.Run(ctx)
	require.Error(t, err)
	assert.True(t, controller.IsSafetyAbort(err))
	assert.Equal(t, Stopped, l.State())

	assert.Equal(t, 0.0, r.sim.Setpoint(instrument.Voltage), "output zeroed")
	assert.False(t, r.sim.Output())
}

func TestLooperRunStopsOnCancel(t *testing.T) {
	r := newRig(t, []float64{1})
	l := New(r.graph, r.writer, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-l.Updates()
		cancel()
	}()
	require.NoError(t, l.Run(ctx))
	assert.Equal(t, Stopped, l.State())
	assert.GreaterOrEqual(t, l.Snapshot().Tick, uint64(1))
}

func TestStopBeforeStart(t *testing.T) {
	r := newRig(t, []float64{1})
	l := New(r.graph, r.writer, time.Second)
	require.NoError(t, l.Stop())
	assert.Equal(t, Stopped, l.State())
	assert.ErrorIs(t, l.Start(context.Background()), ErrState)
	<-l.Done()
	require.NoError(t, r.writer.Close())
}

func TestInitialSnapshot(t *testing.T) {
	r := newRig(t, []float64{7})
	defer r.writer.Close()
	l := New(r.graph, r.writer, time.Second)

	s := l.Snapshot()
	require.NotNil(t, s)
	assert.Equal(t, uint64(0), s.Tick)
	v, ok := s.Get("T")
	require.True(t, ok)
	assert.Equal(t, 7.0, v.Value)
	_, ok = s.Get("nope")
	assert.False(t, ok)
}

func TestSnapshotStats(t *testing.T) {
	r := newRig(t, []float64{10, math.NaN(), 20})
	defer r.writer.Close()
	ctx := context.Background()
	require.NoError(t, r.writer.Update(ctx))
	require.NoError(t, r.writer.Update(ctx))

	s := takeSnapshot(3, time.Now(), r.graph.Results())
	v, ok := s.Get("T")
	require.True(t, ok)
	assert.Equal(t, 20.0, v.Value)
	assert.Equal(t, 15.0, v.Avg)
	assert.Equal(t, 10.0, v.Lo)
	assert.Equal(t, 20.0, v.Peak)
	assert.True(t, math.IsNaN(v.Rise))

	empty := result.NewGraph(3, nil)
	require.NoError(t, empty.Add(mustReading(t)))
	s = takeSnapshot(0, time.Now(), empty.Results())
	assert.True(t, math.IsNaN(s.Values[0].Lo))
	assert.True(t, math.IsNaN(s.Values[0].Avg))
}

func mustReading(t *testing.T) *result.Reading {
	r, err := result.NewReading(param.Sensor{Name: "X", Reading: param.Voltage, Unit: "V"}, sensor.Constant(0), 3, 0, nil)
	require.NoError(t, err)
	return r
}

func TestSnapshotGetWithoutIndex(t *testing.T) {
	s := &Snapshot{Values: []Value{{Name: "T0", Value: 1}, {Name: "V", Value: 12}}}

	v, ok := s.Get("V")
	require.True(t, ok)
	assert.Equal(t, 12.0, v.Value)

	_, ok = s.Get("T9")
	assert.False(t, ok)
}
