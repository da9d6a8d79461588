// Package chart renders result histories as terminal sparklines with minute
// tick marks, timeline labels and a scale bar for the latest value.
package chart

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/softboiler/boilerdaq/internal/history"
)

var sparkBlocks = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

// palette cycles through distinguishable colors, one per series in a group.
var palette = []lipgloss.Color{"78", "75", "220", "208", "170", "44", "141", "196"}

// SeriesColor returns the color of the i-th series of a group.
func SeriesColor(i int) lipgloss.Color {
	if i < 0 {
		i = -i
	}
	return palette[i%len(palette)]
}

var (
	dimStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("236"))
	tickStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("239"))
	gapStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
)

func finite(v float64) bool { return !math.IsNaN(v) && !math.IsInf(v, 0) }

// Range returns the finite extent of points, padded by 5% so the extremes
// do not sit on the edges. It returns (0, 1) when no value is finite.
func Range(points ...[]history.Point) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, pts := range points {
		for _, p := range pts {
			if !finite(p.Value) {
				continue
			}
			lo = math.Min(lo, p.Value)
			hi = math.Max(hi, p.Value)
		}
	}
	if lo > hi {
		return 0, 1
	}
	pad := (hi - lo) * 0.05
	if pad == 0 {
		pad = math.Max(math.Abs(hi)*0.05, 0.5)
	}
	return lo - pad, hi + pad
}

func isMinuteTick(points []history.Point, i int) bool {
	p := points[i]
	if p.Time.IsZero() {
		return false
	}
	if p.Time.Second() == 0 {
		return true
	}
	return i > 0 && !points[i-1].Time.IsZero() && p.Time.Minute() != points[i-1].Time.Minute()
}

// RenderSparklinePoints renders the last width points. A pipe marks each
// minute boundary and a dot marks a missing value.
func RenderSparklinePoints(points []history.Point, width int, lo, hi float64, color lipgloss.Color) string {
	if width <= 0 {
		return ""
	}
	if len(points) == 0 {
		return dimStyle.Render(strings.Repeat("╌", width))
	}
	if len(points) > width {
		points = points[len(points)-width:]
	}

	span := hi - lo
	if span <= 0 {
		span = 1
	}

	var sb strings.Builder
	sb.WriteString(dimStyle.Render(strings.Repeat("╌", width-len(points))))

	style := lipgloss.NewStyle().Foreground(color)
	for i, p := range points {
		switch {
		case isMinuteTick(points, i):
			sb.WriteString(tickStyle.Render("│"))
		case !finite(p.Value):
			sb.WriteString(gapStyle.Render("·"))
		default:
			norm := math.Max(0, math.Min(1, (p.Value-lo)/span))
			idx := int(norm * 7)
			sb.WriteString(style.Render(string(sparkBlocks[idx])))
		}
	}
	return sb.String()
}

// RenderTimeline renders HH:MM labels under the minute ticks of a sparkline
// of the same points and width.
func RenderTimeline(points []history.Point, width int) string {
	if len(points) == 0 || width <= 0 {
		return ""
	}
	if len(points) > width {
		points = points[len(points)-width:]
	}
	padLen := width - len(points)

	line := []rune(strings.Repeat(" ", width))
	lastEnd := -1
	for i, p := range points {
		if !isMinuteTick(points, i) {
			continue
		}
		label := p.Time.Format("15:04")
		start := padLen + i - 2
		if start < 0 {
			start = 0
		}
		end := start + len(label)
		if end > width || start <= lastEnd+1 {
			continue
		}
		for j, ch := range label {
			line[start+j] = ch
		}
		lastEnd = end
	}
	return tickStyle.Render(string(line))
}

// RenderScale renders a bar placing current within [lo, hi]. When
// hasMarker is set, marker (a setpoint) is drawn as well.
func RenderScale(current, lo, hi, marker float64, hasMarker bool, width int, color lipgloss.Color) string {
	if width <= 0 {
		return ""
	}
	span := hi - lo
	if span <= 0 {
		span = 1
	}
	pos := func(v float64) int {
		p := int(float64(width-1) * (v - lo) / span)
		return max(0, min(width-1, p))
	}

	markerPos, curPos := -1, -1
	if hasMarker && finite(marker) {
		markerPos = pos(marker)
	}
	if finite(current) {
		curPos = pos(current)
	}

	var sb strings.Builder
	for i := 0; i < width; i++ {
		switch i {
		case curPos:
			sb.WriteString(lipgloss.NewStyle().Foreground(color).Bold(true).Render("◆"))
		case markerPos:
			sb.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Render("▪"))
		default:
			sb.WriteString(dimStyle.Render("·"))
		}
	}
	return sb.String()
}

// FormatValue renders a value with its unit, or dashes when it is missing.
func FormatValue(v float64, unit string) string {
	if !finite(v) {
		return fmt.Sprintf("%9s %s", "---", unit)
	}
	return fmt.Sprintf("%9.3f %s", v, unit)
}

// RenderValue is FormatValue in the given color.
func RenderValue(v float64, unit string, color lipgloss.Color) string {
	style := lipgloss.NewStyle().Foreground(color)
	if !finite(v) {
		style = gapStyle
	}
	return style.Render(FormatValue(v, unit))
}
