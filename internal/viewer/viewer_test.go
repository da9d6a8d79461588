package viewer

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeRun(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func twoRuns(t *testing.T) []string {
	dir := t.TempDir()
	older := writeRun(t, dir, "results_2026-03-01T10-00-00.csv",
		"time,T0 (C),V (V)\n"+
			"2026-03-01T10:00:00.000000+00:00,20,0\n"+
			"2026-03-01T10:00:02.000000+00:00,21,NaN\n")
	newer := writeRun(t, dir, "results_2026-03-02T10-00-00.csv",
		"time,T0 (C),V (V)\n"+
			"2026-03-02T10:00:00.000000+00:00,30,10\n"+
			"2026-03-02T10:00:02.000000+00:00,31,11\n"+
			"2026-03-02T10:00:04.000000+00:00,32,12\n")
	return []string{older, newer}
}

func key(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestSplitLabel(t *testing.T) {
	assert.Equal(t, column{name: "T0", unit: "C"}, splitLabel("T0 (C)"))
	assert.Equal(t, column{name: "Q01", unit: "W/cm^2"}, splitLabel("Q01 (W/cm^2)"))
	assert.Equal(t, column{name: "plain"}, splitLabel("plain"))
}

func TestModelOpensNewestRunAtEnd(t *testing.T) {
	m := newModel(twoRuns(t), nil)
	require.NoError(t, m.err)
	assert.Contains(t, m.runs[0], "2026-03-02")
	assert.Equal(t, 3, m.rows())
	assert.Equal(t, 2, m.cursor)
	assert.Equal(t, []column{{"T0", "C"}, {"V", "V"}}, m.cols)
}

func TestScrubAndSwitchRuns(t *testing.T) {
	var tm tea.Model = newModel(twoRuns(t), nil)

	tm, _ = tm.Update(key("h"))
	assert.Equal(t, 1, tm.(model).cursor)
	tm, _ = tm.Update(tea.KeyMsg{Type: tea.KeyHome})
	assert.Equal(t, 0, tm.(model).cursor)
	tm, _ = tm.Update(key("h"))
	assert.Equal(t, 0, tm.(model).cursor, "cursor stops at the first row")
	tm, _ = tm.Update(key("L"))
	assert.Equal(t, 2, tm.(model).cursor, "skip clamps to the last row")

	tm, _ = tm.Update(key("["))
	m := tm.(model)
	assert.Equal(t, 1, m.runIdx)
	assert.Equal(t, 2, m.rows())
	assert.Equal(t, 1, m.cursor)

	tm, _ = tm.Update(key("["))
	assert.Equal(t, 1, tm.(model).runIdx, "no older run")
	tm, _ = tm.Update(key("]"))
	assert.Equal(t, 0, tm.(model).runIdx)
}

func TestWindowAndStats(t *testing.T) {
	m := newModel(twoRuns(t), nil)

	w := m.window(0, 2)
	require.Len(t, w, 2)
	assert.Equal(t, 31.0, w[0].Value)
	assert.Equal(t, 32.0, w[1].Value)

	avg, lo, hi := m.columnStats(0)
	assert.InDelta(t, 31, avg, 1e-9)
	assert.Equal(t, 30.0, lo)
	assert.Equal(t, 32.0, hi)

	m.runIdx = 1
	m.loadRun()
	avg, lo, hi = m.columnStats(1)
	assert.Equal(t, 0.0, avg)
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 0.0, hi)
	assert.True(t, math.IsNaN(m.table.Rows[1][1]))
}

func TestViewRendersPanels(t *testing.T) {
	var tm tea.Model = newModel(twoRuns(t), []Panel{
		{Name: "post", Members: []string{"T0", "missing"}},
		{Name: "control", Members: []string{"V"}},
	})
	assert.Equal(t, "  Loading...", tm.View())

	tm, _ = tm.Update(tea.WindowSizeMsg{Width: 240, Height: 80})
	view := tm.View()
	assert.Contains(t, view, "BOILERDAQ RUNS")
	assert.Contains(t, view, "results_2026-03-02T10-00-00.csv")
	assert.Contains(t, view, "post")
	assert.Contains(t, view, "control")
	assert.Contains(t, view, "3/3")
	assert.True(t, strings.Contains(view, "T0"))
}

func TestQuit(t *testing.T) {
	m := newModel(twoRuns(t), nil)
	_, cmd := m.Update(key("q"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
