package sanitize

import (
	"strings"
	"testing"
)

func TestTerminal(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"clean string", "GET /api/v1/users/data", "GET /api/v1/users/data"},
		{"ANSI color", "\x1b[31mRed Text\x1b[0m", "[ESC]Red Text[ESC]"},
		{"tab", "Hello\tWorld", "Hello World"},
		{"newline", "Hello\nWorld", "Hello World"},
		{"carriage return", "Hello\rWorld", "Hello[CR]World"},
		{"control", "Hello\x01World", "Hello[CTRL]World"},
		{"delete", "Hello\x7FWorld", "Hello[DEL]World"},
		{"screen clear attack", "\x1b[2J\x1b[H\x1b[31mPWNED\x1b[0m", "[ESC][ESC][ESC]PWNED[ESC]"},
		{"OSC title with BEL", "\x1b]0;owned\x07/login", "[ESC]/login"},
		{"OSC title with ST", "\x1b]2;owned\x1b\\/login", "[ESC]/login"},
		{"trailing escape", "path\x1b", "path[ESC]"},
		{"empty", "", ""},
		{"unicode kept", "/café", "/café"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Terminal(tc.input); got != tc.expected {
				t.Errorf("Terminal(%q) = %q, want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestDisplay(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		maxLen   int
		expected string
	}{
		{"within limit", "Hello World", 20, "Hello World"},
		{"exceeds limit", "This is a very long string that exceeds the limit", 20, "This is a very lo..."},
		{"no limit", "Hello World", 0, "Hello World"},
		{"sanitize then truncate", "\x1b[31mThis is malicious text\x1b[0m", 20, "[ESC]This is mali..."},
		{"tiny limit", "abcdef", 2, "ab"},
		{"runes not bytes", "ñññññññññ", 5, "ññ..."},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Display(tc.input, tc.maxLen); got != tc.expected {
				t.Errorf("Display(%q, %d) = %q, want %q", tc.input, tc.maxLen, got, tc.expected)
			}
		})
	}
}

func TestAddress(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"192.168.1.101", "192.168.1.101"},
		{"2001:db8::1", "2001:db8::1"},
		{"192.168.1.1<img>", "192.168.1.1"},
		{"<img>|!@#$%^&*()", "[INVALID]"},
	}

	for _, tc := range tests {
		if got := Address(tc.input); got != tc.expected {
			t.Errorf("Address(%q) = %q, want %q", tc.input, got, tc.expected)
		}
	}
}

func TestIdentity(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"zap", 10, "zap"},
		{"", 10, "-"},
		{"ops@corp.io", 20, "ops@corp.io"},
		{"x\x1b[2Jy", 10, "x??2Jy"},
		{"averyveryverylongname", 10, "averyve..."},
	}

	for _, tc := range tests {
		if got := Identity(tc.input, tc.maxLen); got != tc.expected {
			t.Errorf("Identity(%q, %d) = %q, want %q", tc.input, tc.maxLen, got, tc.expected)
		}
	}
}

func TestEndpoint(t *testing.T) {
	if got := Endpoint("", 10); got != "/" {
		t.Errorf("Endpoint(\"\") = %q, want /", got)
	}
	long := "/" + strings.Repeat("a", 100)
	if got := Endpoint(long, 12); got != "/aaaaaaaa..." {
		t.Errorf("Endpoint(long) = %q", got)
	}
}

func BenchmarkTerminal(b *testing.B) {
	input := "Normal endpoint text without any control characters that needs no sanitization"
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Terminal(input)
	}
}
