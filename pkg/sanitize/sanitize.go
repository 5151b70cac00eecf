// Package sanitize makes request-controlled text safe to print on a
// terminal. Endpoints, identities, headers and log details all originate
// from simulated clients and may carry escape sequences.
package sanitize

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

const DefaultMaxDisplayLength = 256

const ellipsis = "..."

// Display neutralizes control sequences and truncates to maxLen runes.
// A maxLen of zero or less disables truncation.
func Display(s string, maxLen int) string {
	return Truncate(Terminal(s), maxLen)
}

// Truncate shortens s to at most maxLen runes, marking the cut with an
// ellipsis when there is room for one.
func Truncate(s string, maxLen int) string {
	if maxLen <= 0 || utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	keep := maxLen
	suffix := ""
	if maxLen > len(ellipsis) {
		keep = maxLen - len(ellipsis)
		suffix = ellipsis
	}
	n := 0
	for i := range s {
		if n == keep {
			return s[:i] + suffix
		}
		n++
	}
	return s
}

// Terminal replaces control characters with visible markers. CSI and OSC
// escape sequences collapse to a single [ESC] marker so a payload cannot
// move the cursor, recolor or retitle the dashboard.
func Terminal(s string) string {
	if !hasControl(s) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s) + 8)

	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == 0x1B:
			i = skipEscape(s, i+1)
			b.WriteString("[ESC]")
			continue
		case c == '\t' || c == '\n':
			b.WriteByte(' ')
		case c == '\r':
			b.WriteString("[CR]")
		case c == 0x7F:
			b.WriteString("[DEL]")
		case c < 0x20:
			b.WriteString("[CTRL]")
		default:
			b.WriteByte(c)
		}
		i++
	}
	return b.String()
}

func hasControl(s string) bool {
	for i := 0; i < len(s); i++ {
		if c := s[i]; c < 0x20 || c == 0x7F {
			return true
		}
	}
	return false
}

// skipEscape returns the index just past the escape sequence whose
// introducer byte sits at i.
func skipEscape(s string, i int) int {
	if i >= len(s) {
		return i
	}
	switch s[i] {
	case '[':
		i++
		for i < len(s) && !isCSIFinal(s[i]) {
			i++
		}
		if i < len(s) {
			i++
		}
	case ']':
		// OSC runs to BEL or ST (ESC \)
		i++
		for i < len(s) {
			if s[i] == 0x07 {
				return i + 1
			}
			if s[i] == 0x1B && i+1 < len(s) && s[i+1] == '\\' {
				return i + 2
			}
			i++
		}
	}
	return i
}

func isCSIFinal(c byte) bool {
	return c >= 0x40 && c <= 0x7E
}

// Address keeps only characters that can appear in an IPv4 or IPv6
// address.
func Address(ip string) string {
	clean := strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) || r == '.' || r == ':' ||
			(r >= 'a' && r <= 'f') || (r >= 'A' && r <= 'F') {
			return r
		}
		return -1
	}, ip)
	if clean == "" {
		return "[INVALID]"
	}
	return clean
}

// Identity renders a username. Anything outside letters, digits and
// ._-@ becomes '?'; an empty identity renders as "-".
func Identity(name string, maxLen int) string {
	if name == "" {
		return "-"
	}
	clean := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("._-@", r) {
			return r
		}
		return '?'
	}, name)
	return Truncate(clean, maxLen)
}

// Endpoint renders a request path for a fixed-width column.
func Endpoint(path string, maxLen int) string {
	if path == "" {
		return "/"
	}
	return Display(path, maxLen)
}
