package domain

import (
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	LoopbackIP = "127.0.0.1"

	MaxEndpointLength = 2048
	MaxBodySize       = 32768
)

// RequestPayload is one simulated inbound request. ClientIP and Username are
// overwritten by the evaluator once the acting identity is resolved.
type RequestPayload struct {
	ID        string            `json:"id"`
	Method    string            `json:"method"`
	Endpoint  string            `json:"endpoint"`
	Headers   map[string]string `json:"headers"`
	Body      string            `json:"body,omitempty"`
	Timestamp int64             `json:"timestamp"`
	ClientIP  string            `json:"clientIp"`
	AuthToken *string           `json:"authToken,omitempty"`
	Username  string            `json:"username,omitempty"`
}

func NewRequestPayload(method, endpoint string, now time.Time) *RequestPayload {
	return &RequestPayload{
		ID:        uuid.NewString(),
		Method:    method,
		Endpoint:  endpoint,
		Headers:   map[string]string{"Content-Type": "application/json"},
		Timestamp: now.UnixMilli(),
	}
}

// WithToken attaches a bearer token. An empty token is treated as missing.
func (p *RequestPayload) WithToken(token string) *RequestPayload {
	p.AuthToken = &token
	return p
}

func (p *RequestPayload) WithBody(body string) *RequestPayload {
	p.Body = TruncateBytes(body, MaxBodySize)
	return p
}

// PresentedToken returns the token text, or "" when none was attached.
func (p *RequestPayload) PresentedToken() string {
	if p.AuthToken == nil {
		return ""
	}
	return *p.AuthToken
}

func (p *RequestPayload) SetHeader(name, value string) {
	if p.Headers == nil {
		p.Headers = make(map[string]string, 4)
	}
	p.Headers[name] = value
}

// Normalize fills the fields a hand-written payload (replay files, CLI) may
// omit.
func (p *RequestPayload) Normalize(now time.Time) {
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	if p.Method == "" {
		p.Method = "GET"
	}
	if p.Endpoint == "" {
		p.Endpoint = "/"
	}
	p.Endpoint = TruncateBytes(p.Endpoint, MaxEndpointLength)
	if p.Timestamp == 0 {
		p.Timestamp = now.UnixMilli()
	}
}

// TruncateBytes cuts s to at most max bytes without splitting a UTF-8
// sequence.
func TruncateBytes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
