package monitor

import (
	"math"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/softboiler/boilerdaq/internal/history"
	"github.com/softboiler/boilerdaq/internal/looper"
)

type fakeSource struct {
	snap    *looper.Snapshot
	updates chan struct{}
	done    chan struct{}
}

func (f *fakeSource) Snapshot() *looper.Snapshot { return f.snap }
func (f *fakeSource) Updates() <-chan struct{}   { return f.updates }
func (f *fakeSource) Done() <-chan struct{}      { return f.done }

func newSource() *fakeSource {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.Local)
	pts := func(vs ...float64) []history.Point {
		out := make([]history.Point, len(vs))
		for i, v := range vs {
			out[i] = history.Point{Value: v, Time: at.Add(time.Duration(i) * 2 * time.Second)}
		}
		return out
	}
	return &fakeSource{
		snap: &looper.Snapshot{
			Tick: 3,
			Time: at,
			Values: []looper.Value{
				{Name: "T1cal", Unit: "C", Value: 31, Points: pts(29, 30, 31), Rise: 0.5, Remaining: 90},
				{Name: "V", Unit: "V", Value: math.NaN(), Points: pts(1, math.NaN()), Rise: math.NaN(), Remaining: math.NaN()},
			},
		},
		updates: make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
}

func TestViewShowsPanels(t *testing.T) {
	src := newSource()
	m := New(src, Options{
		RunID:       "0123456789abcdef",
		Recording:   []string{"results_2026.csv"},
		Panels:      []Panel{{Name: "post", Members: []string{"T1cal"}}, {Name: "control", Members: []string{"V"}}},
		Feedback:    "T1cal",
		Setpoint:    30,
		HasSetpoint: true,
	})
	assert.Equal(t, "  Initializing...", m.View())

	updated, _ := m.Update(tea.WindowSizeMsg{Width: 240, Height: 60})
	view := updated.View()
	for _, want := range []string{"BOILERDAQ", "run 01234567", "post", "control", "T1cal", "SP", "rise", "---", "REC"} {
		assert.Contains(t, view, want)
	}
}

func TestSnapshotAndPause(t *testing.T) {
	src := newSource()
	m := New(src, Options{})
	next := &looper.Snapshot{Tick: 4, Values: src.snap.Values}

	updated, cmd := m.Update(snapshotMsg{next})
	require.NotNil(t, cmd, "waits for the next snapshot")
	assert.Equal(t, uint64(4), updated.(Model).snap.Tick)

	paused, _ := updated.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("p")})
	frozen, _ := paused.Update(snapshotMsg{&looper.Snapshot{Tick: 5}})
	assert.Equal(t, uint64(4), frozen.(Model).snap.Tick, "paused display keeps its snapshot")
}

func TestWaitForSnapshot(t *testing.T) {
	src := newSource()
	src.updates <- struct{}{}
	msg := waitForSnapshot(src)()
	require.IsType(t, snapshotMsg{}, msg)

	close(src.done)
	assert.IsType(t, doneMsg{}, waitForSnapshot(src)())
}

func TestQuitCancelsRun(t *testing.T) {
	cancelled := false
	m := New(newSource(), Options{Cancel: func() { cancelled = true }})
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.True(t, cancelled)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestStoppedBanner(t *testing.T) {
	m := New(newSource(), Options{})
	updated, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 60})
	updated, _ = updated.Update(doneMsg{})
	assert.True(t, strings.Contains(updated.View(), "ACQUISITION STOPPED"))
}
