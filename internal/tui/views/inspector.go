package views

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/xoelrdgz/sentinel/internal/domain"
	"github.com/xoelrdgz/sentinel/pkg/sanitize"
)

// LogInspector is the full-screen detail view of one log entry together
// with the profile of the identity that sent it.
type LogInspector struct {
	Entry   *domain.LogEntry
	Profile *domain.ClientProfile
	Width   int
	Height  int
	ScrollY int
	Visible bool
}

func NewLogInspector() *LogInspector {
	return &LogInspector{
		Width:  80,
		Height: 24,
	}
}

func (p *LogInspector) Open(entry *domain.LogEntry, profile *domain.ClientProfile) {
	p.Entry = entry
	p.Profile = profile
	p.ScrollY = 0
	p.Visible = entry != nil
}

func (p *LogInspector) SetDimensions(width, height int) {
	p.Width = width
	p.Height = height
}

func (p *LogInspector) ScrollUp() {
	if p.ScrollY > 0 {
		p.ScrollY--
	}
}

func (p *LogInspector) ScrollDown() {
	p.ScrollY++
}

func (p *LogInspector) Close() {
	p.Entry = nil
	p.Profile = nil
	p.Visible = false
}

func (p *LogInspector) Render() string {
	if p.Entry == nil {
		return ""
	}

	e := p.Entry
	contentWidth := max(p.Width-4, 20)

	header := lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	label := lipgloss.NewStyle().Foreground(colorAmber).Width(14)
	value := lipgloss.NewStyle().Foreground(colorText)
	dimText := lipgloss.NewStyle().Foreground(colorDim)
	codeBlock := lipgloss.NewStyle().Foreground(colorPrimary).Background(lipgloss.Color("#0a1f0a"))
	critical := lipgloss.NewStyle().Foreground(colorRed).Bold(true)

	field := func(name, v string) string {
		return fmt.Sprintf("%s %s", label.Render(name), value.Render(v))
	}
	rule := dimText.Render(strings.Repeat("─", contentWidth))

	var lines []string
	lines = append(lines, header.Render("╔═══ REQUEST INSPECTOR ═══╗"), rule)

	lines = append(lines, header.Render("▶ DECISION"))
	lines = append(lines, field("Timestamp:", e.Time().Format("2006-01-02 15:04:05.000")))
	action := value.Render(string(e.ActionTaken))
	if e.Blocked() {
		action = critical.Render(string(e.ActionTaken))
	}
	lines = append(lines, fmt.Sprintf("%s %s", label.Render("Action:"), action))
	lines = append(lines, field("Status:", fmt.Sprintf("%d", e.Status)))
	if e.ThreatDetected != "" {
		lines = append(lines, fmt.Sprintf("%s %s", label.Render("Threat:"), critical.Render(sanitize.Display(e.ThreatDetected, contentWidth))))
	}
	lines = append(lines, field("Details:", sanitize.Display(e.Details, contentWidth-15)))
	lines = append(lines, field("Duration:", fmt.Sprintf("%dms", e.Duration)))

	lines = append(lines, "", rule, header.Render("▶ REQUEST"))
	lines = append(lines, field("Request ID:", sanitize.Display(e.RequestID, contentWidth)))
	lines = append(lines, field("Method:", sanitize.Display(e.Method, 10)))
	lines = append(lines, field("Endpoint:", sanitize.Endpoint(e.Endpoint, contentWidth-15)))
	lines = append(lines, field("Source IP:", sanitize.Address(e.ClientIP)))
	lines = append(lines, field("Identity:", sanitize.Identity(e.Username, 32)))

	if pr := p.Profile; pr != nil {
		lines = append(lines, "", rule, header.Render("▶ CLIENT PROFILE"))
		lines = append(lines, field("Status:", string(pr.Status)))
		lines = append(lines, field("Risk Score:", fmt.Sprintf("%d/%d", pr.RiskScore, domain.MaxRiskScore)))
		lines = append(lines, field("Logins:", fmt.Sprintf("%d", pr.LoginCount)))
		for i := len(pr.ActivityLog) - 1; i >= 0; i-- {
			rec := pr.ActivityLog[i]
			lines = append(lines, codeBlock.Render(sanitize.Display(
				fmt.Sprintf("%s  %s", time.UnixMilli(rec.Timestamp).Format("15:04:05"), rec.Action), contentWidth)))
		}
	}

	if e.AIAnalysis != nil {
		lines = append(lines, "", rule, header.Render("▶ ANALYSIS"))
		if raw, err := json.MarshalIndent(e.AIAnalysis, "", "  "); err == nil {
			for _, line := range strings.Split(string(raw), "\n") {
				lines = append(lines, codeBlock.Render(sanitize.Display(line, contentWidth)))
			}
		}
	}

	lines = append(lines, "", rule, dimText.Render("[ESC] Close   [↑/↓] Scroll"))
	if p.ScrollY > 0 && p.ScrollY < len(lines) {
		lines = lines[p.ScrollY:]
	}
	if p.Height > 2 && len(lines) > p.Height-2 {
		lines = lines[:p.Height-2]
	}

	return lipgloss.NewStyle().
		Border(lipgloss.NormalBorder()).
		BorderForeground(colorPrimary).
		Padding(0, 1).
		Width(p.Width).
		Height(p.Height).
		Render(strings.Join(lines, "\n"))
}
