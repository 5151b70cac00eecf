package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/xoelrdgz/sentinel/internal/domain"
)

// TrafficChart draws the per-second valid and blocked series as two bar
// rows sharing one scale.
type TrafficChart struct {
	Buckets []domain.TrafficBucket
	Width   int
}

func NewTrafficChart(width int) *TrafficChart {
	if width <= 0 {
		width = 60
	}
	return &TrafficChart{Width: width}
}

func (t *TrafficChart) Update(buckets []domain.TrafficBucket) { t.Buckets = buckets }

func (t *TrafficChart) SetWidth(width int) {
	if width > 0 {
		t.Width = width
	}
}

// cellWidth spreads the buckets over the available width, leaving room for
// the row label and the trailing value.
func (t *TrafficChart) cellWidth() int {
	if len(t.Buckets) == 0 {
		return 1
	}
	w := (t.Width - 20) / len(t.Buckets)
	if w < 1 {
		return 1
	}
	if w > 4 {
		return 4
	}
	return w
}

func (t *TrafficChart) Render() string {
	green := lipgloss.NewStyle().Foreground(colorPrimary)
	red := lipgloss.NewStyle().Foreground(colorRed)
	muted := lipgloss.NewStyle().Foreground(colorMuted)
	dim := lipgloss.NewStyle().Foreground(colorDim)
	ghost := lipgloss.NewStyle().Foreground(colorGhost)

	if len(t.Buckets) == 0 {
		return dim.Italic(true).Render("  No traffic yet")
	}

	maxVal := 1
	for _, b := range t.Buckets {
		maxVal = max(maxVal, b.Valid, b.Blocked)
	}
	cell := t.cellWidth()
	last := t.Buckets[len(t.Buckets)-1]

	row := func(label string, style lipgloss.Style, value func(domain.TrafficBucket) int) string {
		var b strings.Builder
		b.WriteString(muted.Render(fmt.Sprintf("  %-6s", label)))
		for _, bucket := range t.Buckets {
			v := value(bucket)
			glyph := string(barChars[0])
			if v > 0 {
				idx := v * (len(barChars) - 1) / maxVal
				glyph = string(barChars[idx])
				b.WriteString(style.Render(strings.Repeat(glyph, cell)))
				continue
			}
			b.WriteString(ghost.Render(strings.Repeat(glyph, cell)))
		}
		b.WriteString(style.Bold(true).Render(fmt.Sprintf(" ▶ %d/s", value(last))))
		return b.String()
	}

	axis := fmt.Sprintf("  %-6s%s", "", dim.Render(padRight(t.Buckets[0].Time, cell*len(t.Buckets)-len(last.Time))+last.Time))

	return strings.Join([]string{
		row("VALID", green, func(b domain.TrafficBucket) int { return b.Valid }),
		row("BLOCK", red, func(b domain.TrafficBucket) int { return b.Blocked }),
		axis,
	}, "\n")
}
