package tui

import "github.com/charmbracelet/lipgloss"

var (
	ColorPrimary    = lipgloss.Color("#00ff41")
	ColorPrimaryDim = lipgloss.Color("#00aa2a")
	ColorAmber      = lipgloss.Color("#ffb000")
	ColorRed        = lipgloss.Color("#ff3333")
	ColorCyan       = lipgloss.Color("#00b8ff")
	ColorText       = lipgloss.Color("#e5e5e5")
	ColorMuted      = lipgloss.Color("#707070")
	ColorDim        = lipgloss.Color("#404040")
)

var (
	TitleStyle = lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)
	TextMuted  = lipgloss.NewStyle().Foreground(ColorMuted)
	TextDim    = lipgloss.NewStyle().Foreground(ColorDim)
	KeyStyle   = lipgloss.NewStyle().Foreground(ColorPrimaryDim)
)

// ForThreatLevel colors the header badge by how much of the traffic is
// being refused.
func ForThreatLevel(blockRate float64, bans int64) (string, lipgloss.Style) {
	switch {
	case bans > 0 || blockRate > 50:
		return "UNDER ATTACK", lipgloss.NewStyle().Foreground(ColorRed).Bold(true)
	case blockRate > 10:
		return "ELEVATED", lipgloss.NewStyle().Foreground(ColorAmber).Bold(true)
	default:
		return "NOMINAL", lipgloss.NewStyle().Foreground(ColorPrimary).Bold(true)
	}
}
