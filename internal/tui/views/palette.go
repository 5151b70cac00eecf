package views

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorPrimary    = lipgloss.Color("#00ff41")
	colorPrimaryDim = lipgloss.Color("#00aa2a")
	colorAmber      = lipgloss.Color("#ffb000")
	colorRed        = lipgloss.Color("#ff3333")
	colorCyan       = lipgloss.Color("#00b8ff")
	colorText       = lipgloss.Color("#e5e5e5")
	colorMuted      = lipgloss.Color("#707070")
	colorDim        = lipgloss.Color("#404040")
	colorGhost      = lipgloss.Color("#252525")
	colorSelectBg   = lipgloss.Color("#003300")
)

var barChars = []rune{'▁', '▂', '▃', '▄', '▅', '▆', '▇', '█'}

func fmtLarge(n int64) string {
	if n >= 1000000 {
		return fmt.Sprintf("%.1fM", float64(n)/1000000)
	}
	if n >= 1000 {
		return fmt.Sprintf("%.1fK", float64(n)/1000)
	}
	return fmt.Sprintf("%d", n)
}

func padRight(s string, length int) string {
	if w := lipgloss.Width(s); w < length {
		return s + strings.Repeat(" ", length-w)
	}
	return s
}
