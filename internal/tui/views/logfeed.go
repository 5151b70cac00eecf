package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/xoelrdgz/sentinel/internal/domain"
	"github.com/xoelrdgz/sentinel/pkg/sanitize"
)

// LogFeed lists evaluation log entries newest first with a movable
// selection.
type LogFeed struct {
	Entries       []*domain.LogEntry
	VisibleCount  int
	ScrollPos     int
	Width         int
	SelectedIndex int
	selectedID    string
}

func NewLogFeed(visibleCount int) *LogFeed {
	return &LogFeed{
		VisibleCount: visibleCount,
		Width:        100,
	}
}

// Update replaces the entries, keeping the selection on the same entry
// while it is still visible.
func (f *LogFeed) Update(entries []*domain.LogEntry) {
	f.Entries = entries
	if f.selectedID != "" {
		for i, e := range entries {
			if e.ID == f.selectedID {
				f.SelectedIndex = i
				f.ensureSelectionVisible()
				return
			}
		}
	}
	f.SelectedIndex = 0
	f.selectedID = ""
	f.ScrollPos = 0
}

func (f *LogFeed) ScrollUp() {
	if f.SelectedIndex > 0 {
		f.SelectedIndex--
	}
	f.pin()
}

func (f *LogFeed) ScrollDown() {
	if f.SelectedIndex < len(f.Entries)-1 {
		f.SelectedIndex++
	}
	f.pin()
}

func (f *LogFeed) pin() {
	if sel := f.Selected(); sel != nil {
		f.selectedID = sel.ID
	}
	f.ensureSelectionVisible()
}

func (f *LogFeed) ensureSelectionVisible() {
	if f.SelectedIndex < f.ScrollPos {
		f.ScrollPos = f.SelectedIndex
	}
	if f.VisibleCount > 0 && f.SelectedIndex >= f.ScrollPos+f.VisibleCount {
		f.ScrollPos = f.SelectedIndex - f.VisibleCount + 1
	}
}

func (f *LogFeed) Selected() *domain.LogEntry {
	if f.SelectedIndex >= 0 && f.SelectedIndex < len(f.Entries) {
		return f.Entries[f.SelectedIndex]
	}
	return nil
}

func (f *LogFeed) Render() string {
	dim := lipgloss.NewStyle().Foreground(colorDim)
	muted := lipgloss.NewStyle().Foreground(colorMuted)
	text := lipgloss.NewStyle().Foreground(colorText)
	green := lipgloss.NewStyle().Foreground(colorPrimary)
	amber := lipgloss.NewStyle().Foreground(colorAmber)
	red := lipgloss.NewStyle().Foreground(colorRed)
	cyan := lipgloss.NewStyle().Foreground(colorCyan)
	selected := lipgloss.NewStyle().Background(colorSelectBg).Foreground(colorPrimary)

	if len(f.Entries) == 0 {
		return dim.Italic(true).Render("  No requests yet")
	}

	var lines []string
	lines = append(lines, muted.Bold(true).Render(
		fmt.Sprintf("  %-8s  %-3s  %-10s  %-15s  %-8s  %-6s  %-24s  %s",
			"TIME", "STS", "ACTION", "IP", "USER", "METHOD", "ENDPOINT", "DETAILS")))
	lines = append(lines, dim.Render("  "+strings.Repeat("─", max(f.Width-4, 10))))

	end := min(f.ScrollPos+f.VisibleCount, len(f.Entries))
	for i := f.ScrollPos; i < end; i++ {
		e := f.Entries[i]
		isSelected := i == f.SelectedIndex
		prefix := "  "
		if isSelected {
			prefix = "▶ "
		}

		ts := e.Time().Format("15:04:05")
		timeStr := dim.Render(ts)
		if isSelected {
			timeStr = selected.Render(ts)
		}

		var statusStyle, actionStyle lipgloss.Style
		switch {
		case e.Status == 429:
			statusStyle, actionStyle = amber.Bold(true), amber
		case e.Blocked():
			statusStyle, actionStyle = red.Bold(true), red
		case e.ActionTaken == domain.ActionRedirected:
			statusStyle, actionStyle = cyan, cyan
		default:
			statusStyle, actionStyle = green, green
		}

		ipStyle := text
		if isSelected {
			ipStyle = selected.Bold(true)
		}

		detail := e.Details
		if e.ThreatDetected != "" {
			detail = e.ThreatDetected + ": " + detail
		}
		maxLen := max(f.Width-100, 10)

		lines = append(lines, fmt.Sprintf("%s%s  %s  %s  %s  %s  %s  %s  %s",
			prefix,
			timeStr,
			statusStyle.Render(fmt.Sprintf("%3d", e.Status)),
			actionStyle.Render(padRight(string(e.ActionTaken), 10)),
			ipStyle.Render(padRight(sanitize.Address(e.ClientIP), 15)),
			text.Render(padRight(sanitize.Identity(e.Username, 8), 8)),
			muted.Render(padRight(sanitize.Display(e.Method, 6), 6)),
			text.Render(padRight(sanitize.Endpoint(e.Endpoint, 24), 24)),
			muted.Render(sanitize.Display(detail, maxLen)),
		))
	}

	if len(f.Entries) > f.VisibleCount {
		lines = append(lines, dim.Render(fmt.Sprintf("  [%d-%d of %d]",
			f.ScrollPos+1, end, len(f.Entries))))
	}

	return strings.Join(lines, "\n")
}
