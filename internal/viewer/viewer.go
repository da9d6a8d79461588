// Package viewer implements the recorded-run browser TUI with time
// scrubbing, run navigation, and sparkline windows over results files.
package viewer

import (
	"fmt"
	"math"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/softboiler/boilerdaq/internal/chart"
	"github.com/softboiler/boilerdaq/internal/history"
	"github.com/softboiler/boilerdaq/internal/store"
)

// Panel is a titled group of columns, named by result.
type Panel struct {
	Name    string
	Members []string
}

// Run browses the results files recorded for base, newest first.
func Run(base string, panels []Panel) error {
	runs, err := store.Runs(base)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		return fmt.Errorf("%w for %s", store.ErrNoRuns, base)
	}

	p := tea.NewProgram(
		newModel(runs, panels),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
	)
	_, err = p.Run()
	return err
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
)

// ── Model ────────────────────────────────────────────────────────────

type column struct {
	name string
	unit string
}

type model struct {
	runs   []string // results files, newest first
	runIdx int
	panels []Panel
	table  *store.Table
	cols   []column
	cursor int // row under the time cursor
	scroll int
	width  int
	height int
	err    error
}

func newModel(paths []string, panels []Panel) model {
	runs := make([]string, len(paths))
	for i, p := range paths {
		runs[len(paths)-1-i] = p
	}
	m := model{runs: runs, panels: panels}
	m.loadRun()
	return m
}

// splitLabel splits a "name (unit)" column label.
func splitLabel(label string) column {
	if i := strings.LastIndex(label, " ("); i >= 0 && strings.HasSuffix(label, ")") {
		return column{name: label[:i], unit: label[i+2 : len(label)-1]}
	}
	return column{name: label}
}

func (m *model) loadRun() {
	t, err := store.LoadFile(m.runs[m.runIdx])
	if err != nil {
		m.err = err
		m.table = nil
		m.cols = nil
		return
	}
	m.err = nil
	m.table = t
	m.cols = make([]column, len(t.Columns))
	for i, label := range t.Columns {
		m.cols[i] = splitLabel(label)
	}
	m.cursor = len(t.Rows) - 1
	if m.cursor < 0 {
		m.cursor = 0
	}
	m.scroll = 0
}

func (m model) rows() int {
	if m.table == nil {
		return 0
	}
	return len(m.table.Rows)
}

func (m model) columnIndex(name string) int {
	for i, c := range m.cols {
		if c.name == name {
			return i
		}
	}
	return -1
}

// layout resolves panels to column indexes. Unknown members are dropped;
// with no panels every column goes in one.
func (m model) layout() []Panel {
	if len(m.panels) > 0 {
		return m.panels
	}
	all := Panel{Name: "results"}
	for _, c := range m.cols {
		all.Members = append(all.Members, c.name)
	}
	return []Panel{all}
}

// ── Init / Update ────────────────────────────────────────────────────

func (m model) Init() tea.Cmd {
	return nil
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		n := m.rows()
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit

		case "left", "h":
			if m.cursor > 0 {
				m.cursor--
			}
		case "right", "l":
			if m.cursor < n-1 {
				m.cursor++
			}
		case "shift+left", "H":
			m.cursor = max(0, m.cursor-30)
		case "shift+right", "L":
			m.cursor = max(0, min(n-1, m.cursor+30))
		case "home":
			m.cursor = 0
		case "end":
			m.cursor = max(0, n-1)

		case "[":
			if m.runIdx < len(m.runs)-1 {
				m.runIdx++
				m.loadRun()
			}
		case "]":
			if m.runIdx > 0 {
				m.runIdx--
				m.loadRun()
			}

		case "up", "k":
			if m.scroll > 0 {
				m.scroll--
			}
		case "down", "j":
			m.scroll++
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
	}

	return m, nil
}

// ── View ─────────────────────────────────────────────────────────────

func (m model) View() string {
	if m.width == 0 {
		return "  Loading..."
	}

	contentWidth := m.width - 2
	if contentWidth < 40 {
		contentWidth = 40
	}

	var sections []string
	sections = append(sections, m.renderTitle(contentWidth))

	if m.err != nil {
		sections = append(sections, lipgloss.NewStyle().
			Foreground(colorCrit).
			Bold(true).
			Padding(0, 1).
			Render(fmt.Sprintf("ERROR: %v", m.err)))
	}

	if m.rows() == 0 {
		sections = append(sections, lipgloss.NewStyle().
			Foreground(colorDim).
			Padding(2, 0).
			Align(lipgloss.Center).
			Width(contentWidth).
			Render("No rows in this run."))
	} else {
		sections = append(sections, m.renderCursorInfo(contentWidth))
		sections = append(sections, m.renderPanels(contentWidth)...)
	}

	sections = append(sections, m.renderFooter(contentWidth))

	lines := strings.Split(lipgloss.JoinVertical(lipgloss.Left, sections...), "\n")
	visibleLines := max(5, m.height)
	maxScroll := max(0, len(lines)-visibleLines)
	if m.scroll > maxScroll {
		m.scroll = maxScroll
	}
	start := m.scroll
	end := min(len(lines), start+visibleLines)

	return strings.Join(lines[start:end], "\n")
}

func (m model) renderTitle(width int) string {
	logo := lipgloss.NewStyle().
		Bold(true).
		Foreground(colorTitleFg).
		Render("BOILERDAQ RUNS")

	runText := lipgloss.NewStyle().
		Foreground(lipgloss.Color("214")).
		Bold(true).
		Render(baseName(m.runs[m.runIdx]))

	nav := lipgloss.NewStyle().
		Foreground(colorDim).
		Render(fmt.Sprintf("  [ %d/%d ]", m.runIdx+1, len(m.runs)))

	dataInfo := ""
	if n := m.rows(); n > 0 {
		first := m.table.Times[0].Format("15:04:05")
		last := m.table.Times[n-1].Format("15:04:05")
		dataInfo = lipgloss.NewStyle().
			Foreground(colorDim).
			Render(fmt.Sprintf("  %s - %s  (%d rows, %d results)", first, last, n, len(m.cols)))
	}

	right := runText + nav + dataInfo
	gap := max(1, width-lipgloss.Width(logo)-lipgloss.Width(right)-4)

	return lipgloss.NewStyle().
		Background(colorTitleBg).
		Width(width).
		Padding(0, 1).
		Render(logo + strings.Repeat(" ", gap) + right)
}

func (m model) renderCursorInfo(width int) string {
	n := m.rows()
	if m.cursor < 0 || m.cursor >= n {
		return ""
	}

	ts := lipgloss.NewStyle().
		Foreground(lipgloss.Color("214")).
		Bold(true).
		Render(m.table.Times[m.cursor].Format("15:04:05"))
	pos := lipgloss.NewStyle().
		Foreground(colorDim).
		Render(fmt.Sprintf("  %d/%d", m.cursor+1, n))

	return lipgloss.NewStyle().
		Padding(0, 1).
		Render("  " + ts + pos + "  " + m.renderScrubber(max(10, width-30)))
}

func (m model) renderScrubber(width int) string {
	n := m.rows()
	if n == 0 || width <= 0 {
		return ""
	}

	pos := 0
	if n > 1 {
		pos = m.cursor * (width - 1) / (n - 1)
	}
	pos = min(pos, width-1)

	var sb strings.Builder
	dimS := lipgloss.NewStyle().Foreground(lipgloss.Color("237"))
	curS := lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	tickS := lipgloss.NewStyle().Foreground(lipgloss.Color("239"))

	for i := 0; i < width; i++ {
		if i == pos {
			sb.WriteString(curS.Render("◆"))
			continue
		}
		row := 0
		if n > 1 && width > 1 {
			row = i * (n - 1) / (width - 1)
		}
		if row > 0 && m.table.Times[row].Hour() != m.table.Times[row-1].Hour() {
			sb.WriteString(tickS.Render("│"))
			continue
		}
		sb.WriteString(dimS.Render("─"))
	}
	return sb.String()
}

func (m model) renderPanels(totalWidth int) []string {
	innerWidth := max(30, totalWidth-4)
	chartWidth := max(15, min(140, innerWidth-60))

	labelW := 12
	valueW := 16

	dimS := lipgloss.NewStyle().Foreground(colorDim)
	valS := lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	frameL := lipgloss.NewStyle().Foreground(colorBorder).Render("▕")
	frameR := lipgloss.NewStyle().Foreground(colorBorder).Render("▏")

	var panels []string
	for _, panel := range m.layout() {
		var idx []int
		for _, name := range panel.Members {
			if i := m.columnIndex(name); i >= 0 {
				idx = append(idx, i)
			}
		}
		if len(idx) == 0 {
			continue
		}

		windows := make([][]history.Point, len(idx))
		for j, i := range idx {
			windows[j] = m.window(i, chartWidth)
		}
		lo, hi := chart.Range(windows...)

		rows := []string{lipgloss.NewStyle().Bold(true).Foreground(colorGroup).Render(panel.Name)}
		for j, i := range idx {
			c := m.cols[i]
			color := chart.SeriesColor(j)

			label := lipgloss.NewStyle().
				Foreground(colorLabel).
				Bold(true).
				Width(labelW).
				Render(truncate(c.name, labelW))
			value := lipgloss.NewStyle().
				Width(valueW).
				Align(lipgloss.Right).
				Render(chart.RenderValue(m.table.Rows[m.cursor][i], c.unit, color))
			spark := frameL + chart.RenderSparklinePoints(windows[j], chartWidth, lo, hi, color) + frameR

			avg, low, peak := m.columnStats(i)
			stats := dimS.Render(" avg") + valS.Render(fmt.Sprintf("%8.2f", avg)) +
				dimS.Render(" lo") + valS.Render(fmt.Sprintf("%8.2f", low)) +
				dimS.Render(" pk") + valS.Render(fmt.Sprintf("%8.2f", peak))

			rows = append(rows, label+" "+value+" "+spark+stats)
		}

		timeline := chart.RenderTimeline(windows[0], chartWidth)
		if strings.TrimSpace(timeline) != "" {
			rows = append(rows, strings.Repeat(" ", labelW+valueW+2)+timeline)
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

func (m model) renderFooter(width int) string {
	dimS := lipgloss.NewStyle().Foreground(colorDim)
	keyS := lipgloss.NewStyle().Foreground(colorLabel)

	keys := dimS.Render("q") + keyS.Render(":quit") +
		dimS.Render("  h/l") + keyS.Render(":scrub") +
		dimS.Render("  H/L") + keyS.Render(":skip 30") +
		dimS.Render("  home/end") + keyS.Render(":jump") +
		dimS.Render("  [/]") + keyS.Render(":run") +
		dimS.Render("  j/k") + keyS.Render(":scroll")

	return lipgloss.NewStyle().
		Background(colorFooterBg).
		Width(width).
		Padding(0, 1).
		Render(keys)
}

// ── Helpers ──────────────────────────────────────────────────────────

// window returns up to width points of column i ending at the cursor.
func (m model) window(i, width int) []history.Point {
	start := max(0, m.cursor-width+1)
	out := make([]history.Point, 0, m.cursor-start+1)
	for r := start; r <= m.cursor; r++ {
		out = append(out, history.Point{Value: m.table.Rows[r][i], Time: m.table.Times[r]})
	}
	return out
}

func (m model) columnStats(i int) (avg, lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	sum, n := 0.0, 0
	for _, row := range m.table.Rows {
		v := row[i]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		sum += v
		n++
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if n == 0 {
		return math.NaN(), math.NaN(), math.NaN()
	}
	return sum / float64(n), lo, hi
}

func baseName(path string) string {
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
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
