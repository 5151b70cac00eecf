package views

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/xoelrdgz/sentinel/internal/domain"
	"github.com/xoelrdgz/sentinel/pkg/sanitize"
)

// ClientTable shows the client intel view: one row per profile, riskiest
// first.
type ClientTable struct {
	Profiles     []domain.ClientProfile
	Width        int
	VisibleCount int
}

func NewClientTable(width int) *ClientTable {
	return &ClientTable{Width: width, VisibleCount: 25}
}

func (c *ClientTable) Update(profiles []domain.ClientProfile) { c.Profiles = profiles }

func (c *ClientTable) Render() string {
	green := lipgloss.NewStyle().Foreground(colorPrimary)
	greenDim := lipgloss.NewStyle().Foreground(colorPrimaryDim)
	amber := lipgloss.NewStyle().Foreground(colorAmber)
	red := lipgloss.NewStyle().Foreground(colorRed)
	dim := lipgloss.NewStyle().Foreground(colorDim)
	muted := lipgloss.NewStyle().Foreground(colorMuted)
	text := lipgloss.NewStyle().Foreground(colorText)

	if len(c.Profiles) == 0 {
		return dim.Italic(true).Render("  No clients registered")
	}

	var lines []string
	lines = append(lines, muted.Bold(true).Render(fmt.Sprintf(" %-3s %-10s %-15s %-14s %-8s %-6s %-9s %s",
		"#", "USER", "IP", "RISK", "STATUS", "LOGINS", "LAST", "ACTIVITY")))
	lines = append(lines, dim.Render(strings.Repeat("─", max(c.Width, 10))))

	visible := c.Profiles
	if len(visible) > c.VisibleCount {
		visible = visible[:c.VisibleCount]
	}

	for i, p := range visible {
		var statusStyle lipgloss.Style
		switch p.Status {
		case domain.StatusBanned:
			statusStyle = red.Bold(true)
		case domain.StatusFlagged:
			statusStyle = amber.Bold(true)
		default:
			statusStyle = green
		}

		riskStyle := greenDim
		switch {
		case p.RiskScore >= domain.MaxRiskScore:
			riskStyle = red.Bold(true)
		case p.RiskScore > domain.FlaggedRiskScore:
			riskStyle = amber.Bold(true)
		case p.RiskScore > 0:
			riskStyle = green
		}

		const barWidth = 8
		fill := p.RiskScore * barWidth / domain.MaxRiskScore
		bar := strings.Repeat("█", fill) + strings.Repeat("░", barWidth-fill)

		last := "never"
		if p.LastActive > 0 {
			last = time.UnixMilli(p.LastActive).Format("15:04:05")
		}

		activity := "-"
		if n := len(p.ActivityLog); n > 0 {
			activity = fmt.Sprintf("%s (%d)", p.ActivityLog[n-1].Action, n)
		}

		lines = append(lines, fmt.Sprintf(" %s %s %s %s %s %s %s %s",
			muted.Render(fmt.Sprintf("%2d.", i+1)),
			statusStyle.Render(padRight(sanitize.Identity(p.Username, 10), 10)),
			text.Render(padRight(sanitize.Address(p.IP), 15)),
			riskStyle.Render(fmt.Sprintf("%s %3d  ", bar, p.RiskScore)),
			statusStyle.Render(padRight(string(p.Status), 8)),
			text.Render(fmt.Sprintf("%6d", p.LoginCount)),
			muted.Render(padRight(last, 9)),
			muted.Render(sanitize.Display(activity, max(c.Width-75, 10))),
		))
	}

	if len(c.Profiles) > c.VisibleCount {
		lines = append(lines, dim.Render(fmt.Sprintf("  [showing %d of %d clients]", c.VisibleCount, len(c.Profiles))))
	}

	return strings.Join(lines, "\n")
}
