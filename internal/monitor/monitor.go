// Package monitor implements the live acquisition display using BubbleTea
// with per-group sparkline panels. It only reads looper snapshots; quitting
// the display cancels the run.
package monitor

import (
	"fmt"
	"math"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/softboiler/boilerdaq/internal/chart"
	"github.com/softboiler/boilerdaq/internal/history"
	"github.com/softboiler/boilerdaq/internal/looper"
)

// ── Messages ─────────────────────────────────────────────────────────

type snapshotMsg struct{ snap *looper.Snapshot }

type doneMsg struct{}

// ── Model ────────────────────────────────────────────────────────────

// Source publishes snapshots. *looper.Looper is one.
type Source interface {
	Snapshot() *looper.Snapshot
	Updates() <-chan struct{}
	Done() <-chan struct{}
}

// Panel is a titled group of results shown together.
type Panel struct {
	Name    string
	Members []string
}

// Options describe the run being displayed.
type Options struct {
	RunID     string
	Recording []string // results files being written
	Panels    []Panel  // all results in one panel when empty

	// Feedback is drawn against Setpoint when control is on.
	Feedback    string
	Setpoint    float64
	HasSetpoint bool

	// Cancel stops the run; it is called when the user quits.
	Cancel func()
}

// Model is the BubbleTea model for the live monitor.
type Model struct {
	src       Source
	opts      Options
	snap      *looper.Snapshot
	stopped   bool
	width     int
	height    int
	scroll    int
	startTime time.Time
	paused    bool
}

// New creates the initial model for the live monitor.
func New(src Source, opts Options) Model {
	return Model{
		src:       src,
		opts:      opts,
		snap:      src.Snapshot(),
		startTime: time.Now(),
	}
}

// ── Commands ─────────────────────────────────────────────────────────

func waitForSnapshot(src Source) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-src.Updates():
			return snapshotMsg{src.Snapshot()}
		case <-src.Done():
			return doneMsg{}
		}
	}
}

// ── Init / Update ────────────────────────────────────────────────────

func (m Model) Init() tea.Cmd {
	return waitForSnapshot(m.src)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.opts.Cancel != nil {
				m.opts.Cancel()
			}
			return m, tea.Quit
		case "up", "k":
			if m.scroll > 0 {
				m.scroll--
			}
		case "down", "j":
			m.scroll++
		case "home":
			m.scroll = 0
		case " ", "p":
			m.paused = !m.paused
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case snapshotMsg:
		if !m.paused {
			m.snap = msg.snap
		}
		return m, waitForSnapshot(m.src)

	case doneMsg:
		m.stopped = true
		m.snap = m.src.Snapshot()
	}

	return m, nil
}

func (m Model) panels() []Panel {
	if len(m.opts.Panels) > 0 {
		return m.opts.Panels
	}
	all := Panel{Name: "results"}
	for _, v := range m.snap.Values {
		all.Members = append(all.Members, v.Name)
	}
	return []Panel{all}
}

// ── Color palette ────────────────────────────────────────────────────

var (
	colorTitleBg  = lipgloss.Color("17")
	colorTitleFg  = lipgloss.Color("51")
	colorBorder   = lipgloss.Color("62")
	colorGroup    = lipgloss.Color("147")
	colorLabel    = lipgloss.Color("252")
	colorDim      = lipgloss.Color("240")
	colorFooterBg = lipgloss.Color("235")
	colorCrit     = lipgloss.Color("196")
	colorPaused   = lipgloss.Color("196")
)

// ── View ─────────────────────────────────────────────────────────────

func (m Model) View() string {
	if m.width == 0 {
		return "  Initializing..."
	}

	contentWidth := m.width - 2
	if contentWidth < 40 {
		contentWidth = 40
	}

	var sections []string
	sections = append(sections, m.renderTitleBar(contentWidth))

	if m.stopped {
		box := lipgloss.NewStyle().
			Foreground(colorCrit).
			Bold(true).
			Width(contentWidth).
			Padding(0, 1).
			Render(" ACQUISITION STOPPED (see log), press q to exit")
		sections = append(sections, box)
	}

	if m.snap == nil || m.snap.Tick == 0 && len(m.snap.Values) == 0 {
		waiting := lipgloss.NewStyle().
			Foreground(colorDim).
			Width(contentWidth).
			Align(lipgloss.Center).
			Padding(2, 0).
			Render("Waiting for the first tick...")
		sections = append(sections, waiting)
	} else {
		sections = append(sections, m.renderPanels(contentWidth)...)
	}

	sections = append(sections, m.renderFooter(contentWidth))

	content := lipgloss.JoinVertical(lipgloss.Left, sections...)

	lines := strings.Split(content, "\n")
	visibleLines := m.height
	if visibleLines < 5 {
		visibleLines = 5
	}
	maxScroll := len(lines) - visibleLines
	if maxScroll < 0 {
		maxScroll = 0
	}
	if m.scroll > maxScroll {
		m.scroll = maxScroll
	}

	start := m.scroll
	end := start + visibleLines
	if end > len(lines) {
		end = len(lines)
	}

	return strings.Join(lines[start:end], "\n")
}

func (m Model) renderTitleBar(width int) string {
	logo := lipgloss.NewStyle().
		Bold(true).
		Foreground(colorTitleFg).
		Render("BOILERDAQ")

	dim := lipgloss.NewStyle().Foreground(colorDim)
	var statusParts []string
	if m.opts.RunID != "" {
		statusParts = append(statusParts, dim.Render("run "+shortID(m.opts.RunID)))
	}
	statusParts = append(statusParts, dim.Render(fmt.Sprintf("up %s", fmtDuration(time.Since(m.startTime)))))
	if m.snap != nil && m.snap.Tick > 0 {
		statusParts = append(statusParts, dim.Render(fmt.Sprintf("tick %d %s", m.snap.Tick, m.snap.Time.Format("15:04:05"))))
	}

	if m.paused {
		statusParts = append(statusParts, lipgloss.NewStyle().Foreground(colorPaused).Bold(true).Render("PAUSED"))
	}

	if len(m.opts.Recording) > 0 && !m.stopped {
		rec := lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("REC") +
			dim.Render(" "+m.opts.Recording[0])
		statusParts = append(statusParts, rec)
	}

	sep := dim.Render(" │ ")
	right := strings.Join(statusParts, sep)

	gap := width - lipgloss.Width(logo) - lipgloss.Width(right) - 4
	if gap < 1 {
		gap = 1
	}

	return lipgloss.NewStyle().
		Background(colorTitleBg).
		Width(width).
		Padding(0, 1).
		Render(logo + strings.Repeat(" ", gap) + right)
}

func (m Model) renderPanels(totalWidth int) []string {
	innerWidth := totalWidth - 4
	if innerWidth < 30 {
		innerWidth = 30
	}

	chartWidth := innerWidth - 70
	if chartWidth < 15 {
		chartWidth = 15
	}
	if chartWidth > 140 {
		chartWidth = 140
	}

	labelW := 10
	valueW := 16

	dimS := lipgloss.NewStyle().Foreground(colorDim)
	valS := lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	frameL := lipgloss.NewStyle().Foreground(colorBorder).Render("▕")
	frameR := lipgloss.NewStyle().Foreground(colorBorder).Render("▏")

	var panels []string
	for _, panel := range m.panels() {
		var values []looper.Value
		for _, name := range panel.Members {
			if v, ok := m.snap.Get(name); ok {
				values = append(values, v)
			}
		}

		// One scale per panel, so series in a group compare directly.
		var all [][]history.Point
		for _, v := range values {
			all = append(all, tail(v.Points, chartWidth))
		}
		lo, hi := chart.Range(all...)

		rows := []string{lipgloss.NewStyle().Bold(true).Foreground(colorGroup).Render(panel.Name)}
		var lastPts []history.Point
		for i, v := range values {
			color := chart.SeriesColor(i)
			pts := all[i]
			lastPts = pts

			label := lipgloss.NewStyle().
				Foreground(colorLabel).
				Width(labelW).
				Render(truncate(v.Name, labelW))
			value := lipgloss.NewStyle().
				Width(valueW).
				Align(lipgloss.Right).
				Render(chart.RenderValue(v.Value, v.Unit, color))
			spark := frameL + chart.RenderSparklinePoints(pts, chartWidth, lo, hi, color) + frameR

			row := label + " " + value + " " + spark +
				dimS.Render(" avg") + valS.Render(fmt.Sprintf("%8.2f", v.Avg)) +
				dimS.Render(" lo") + valS.Render(fmt.Sprintf("%8.2f", v.Lo)) +
				dimS.Render(" pk") + valS.Render(fmt.Sprintf("%8.2f", v.Peak))

			if m.opts.HasSetpoint && v.Name == m.opts.Feedback {
				row += dimS.Render(" SP") + lipgloss.NewStyle().Foreground(colorCrit).Render(fmt.Sprintf("%.1f ", m.opts.Setpoint)) +
					chart.RenderScale(v.Value, math.Min(lo, m.opts.Setpoint), math.Max(hi, m.opts.Setpoint), m.opts.Setpoint, true, 12, color)
			}
			if !math.IsNaN(v.Rise) {
				row += dimS.Render(" rise") + valS.Render(fmt.Sprintf("%4.0f%%", 100*v.Rise))
				if !math.IsNaN(v.Remaining) {
					row += dimS.Render(" eta") + valS.Render(fmtDuration(time.Duration(v.Remaining*float64(time.Second))))
				}
			}
			rows = append(rows, row)
		}

		if lastPts != nil {
			timeline := chart.RenderTimeline(lastPts, chartWidth)
			if strings.TrimSpace(timeline) != "" {
				pad := strings.Repeat(" ", labelW+valueW+2)
				rows = append(rows, pad+timeline)
			}
		}

		panels = append(panels, lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(colorBorder).
			Padding(0, 1).
			Width(totalWidth).
			Render(lipgloss.JoinVertical(lipgloss.Left, rows...)))
	}

	return panels
}

func (m Model) renderFooter(width int) string {
	dimS := lipgloss.NewStyle().Foreground(colorDim)
	labelS := lipgloss.NewStyle().Foreground(colorLabel)
	tickS := lipgloss.NewStyle().Foreground(lipgloss.Color("239")).Render("│")
	gapS := lipgloss.NewStyle().Foreground(colorDim).Render("·")

	legend := tickS + dimS.Render(" 1min  ") + gapS + dimS.Render(" missing")

	keys := dimS.Render("q") + labelS.Render(":stop") +
		dimS.Render("  j/k") + labelS.Render(":scroll") +
		dimS.Render("  p") + labelS.Render(":freeze")

	gap := width - lipgloss.Width(legend) - lipgloss.Width(keys) - 4
	if gap < 1 {
		gap = 1
	}

	return lipgloss.NewStyle().
		Background(colorFooterBg).
		Width(width).
		Padding(0, 1).
		Render(legend + strings.Repeat(" ", gap) + keys)
}

func tail(points []history.Point, n int) []history.Point {
	if len(points) > n {
		return points[len(points)-n:]
	}
	return points
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, w int) string {
	if len(s) <= w {
		return s
	}
	if w <= 3 {
		return s[:w]
	}
	return s[:w-1] + "…"
}

func fmtDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	return fmt.Sprintf("%dm%02ds", m, s)
}
