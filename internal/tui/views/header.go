package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/xoelrdgz/sentinel/internal/domain"
)

// StatsHeader renders the gateway counters and the active policy.
type StatsHeader struct {
	Stats  domain.GatewayStats
	Config domain.GatewayConfig
	Token  string
	Width  int
}

func NewStatsHeader(width int) *StatsHeader {
	return &StatsHeader{Width: width, Stats: domain.DefaultStats(), Config: domain.DefaultConfig()}
}

func (h *StatsHeader) Update(stats domain.GatewayStats, cfg domain.GatewayConfig, token string) {
	h.Stats = stats
	h.Config = cfg
	h.Token = token
}

func (h *StatsHeader) Render() string {
	green := lipgloss.NewStyle().Foreground(colorPrimary).Bold(true)
	amber := lipgloss.NewStyle().Foreground(colorAmber).Bold(true)
	red := lipgloss.NewStyle().Foreground(colorRed).Bold(true)
	cyan := lipgloss.NewStyle().Foreground(colorCyan)
	muted := lipgloss.NewStyle().Foreground(colorMuted)
	dim := lipgloss.NewStyle().Foreground(colorDim)

	card := func(name string, style lipgloss.Style, v string) string {
		return muted.Render(name+" ") + style.Render(v)
	}

	blocked := green
	if h.Stats.BlockedRequests > 0 {
		blocked = amber
	}
	bans := green
	if h.Stats.GlobalBans > 0 {
		bans = red
	}
	latency := green
	if h.Stats.AvgLatency > 100 {
		latency = amber
	}

	counters := strings.Join([]string{
		card("TOTAL", green, fmtLarge(h.Stats.TotalRequests)),
		card("BLOCKED", blocked, fmtLarge(h.Stats.BlockedRequests)),
		card("AVG", latency, fmt.Sprintf("%dms", h.Stats.AvgLatency)),
		card("BANS", bans, fmt.Sprintf("%d", h.Stats.GlobalBans)),
	}, dim.Render("  │  "))

	onOff := func(on bool) string {
		if on {
			return green.Render("ON")
		}
		return red.Render("OFF")
	}
	token := dim.Render("none")
	if h.Token != "" {
		token = cyan.Render(h.Token)
	}
	policy := strings.Join([]string{
		muted.Render("RATE ") + onOff(h.Config.RateLimitEnabled) + muted.Render(fmt.Sprintf(" (%d/min)", h.Config.RateLimitMax)),
		muted.Render("JWT ") + onOff(h.Config.JWTRequired),
		muted.Render("LEVEL ") + cyan.Render(string(h.Config.SecurityLevel)),
		muted.Render("TOKEN ") + token,
	}, dim.Render("  "))

	return "  " + counters + "\n  " + policy
}
