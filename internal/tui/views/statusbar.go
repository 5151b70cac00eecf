package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/xoelrdgz/sentinel/internal/domain"
)

// Status is the bottom bar: process counters plus a heartbeat that decays
// when runtime snapshots stop arriving.
type Status struct {
	Width      int
	Runtime    domain.RuntimeSnapshot
	Stats      domain.GatewayStats
	lastUpdate time.Time
	now        func() time.Time
}

func NewStatus(width int) *Status {
	return &Status{Width: width, now: time.Now}
}

func (s *Status) Update(snapshot domain.RuntimeSnapshot) {
	s.Runtime = snapshot
	s.lastUpdate = s.now()
}

func (s *Status) UpdateStats(stats domain.GatewayStats) {
	s.Stats = stats
}

func (s *Status) Render() string {
	green := lipgloss.NewStyle().Foreground(colorPrimary)
	greenDim := lipgloss.NewStyle().Foreground(colorPrimaryDim)
	amber := lipgloss.NewStyle().Foreground(colorAmber)
	red := lipgloss.NewStyle().Foreground(colorRed)
	muted := lipgloss.NewStyle().Foreground(colorMuted)
	border := lipgloss.NewStyle().Foreground(lipgloss.Color("#2a2a2a"))

	rate := s.Stats.BlockRate()
	rateStyle := green
	if rate > 50 {
		rateStyle = red.Bold(true)
	} else if rate > 20 {
		rateStyle = amber.Bold(true)
	}

	mem := green
	if s.Runtime.MemoryUsageMB > 1000 {
		mem = red.Bold(true)
	} else if s.Runtime.MemoryUsageMB > 500 {
		mem = amber.Bold(true)
	}

	items := []string{
		s.heartbeat(green, greenDim, amber, red),
		muted.Render("RPS:") + " " + green.Render(fmt.Sprintf("%.1f", s.Runtime.RequestsPerSecond)),
		muted.Render("EVAL:") + " " + green.Render(fmtLarge(s.Runtime.Evaluated)),
		muted.Render("BLK%:") + " " + rateStyle.Render(fmt.Sprintf("%.1f", rate)),
		muted.Render("WRK:") + " " + green.Render(fmt.Sprintf("%d", s.Runtime.ActiveWorkers)),
		muted.Render("MEM:") + " " + mem.Render(fmt.Sprintf("%.0fM", s.Runtime.MemoryUsageMB)),
		muted.Render("UP:") + " " + green.Render(fmtUptime(s.Runtime.Uptime.Round(time.Second))),
	}

	return lipgloss.NewStyle().
		Width(s.Width).
		Padding(0, 1).
		Background(lipgloss.Color("#0a0a0a")).
		Render(strings.Join(items, border.Render(" │ ")))
}

func (s *Status) heartbeat(active, dim, warn, crit lipgloss.Style) string {
	var icon string
	var style lipgloss.Style

	if s.lastUpdate.IsZero() {
		icon, style = "○", crit
	} else {
		switch elapsed := s.now().Sub(s.lastUpdate); {
		case elapsed < 1500*time.Millisecond:
			icon, style = "●", active.Bold(true)
		case elapsed < 3*time.Second:
			icon, style = "●", dim
		case elapsed < 5*time.Second:
			icon, style = "○", warn
		default:
			icon, style = "○", crit
		}
	}

	return lipgloss.NewStyle().Foreground(colorMuted).Render("SYS:") + " " + style.Render(icon)
}

func fmtUptime(d time.Duration) string {
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	sec := int(d.Seconds()) % 60
	if h > 0 {
		return fmt.Sprintf("%dh%02dm", h, m)
	}
	return fmt.Sprintf("%dm%02ds", m, sec)
}
