package input

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/xoelrdgz/sentinel/internal/domain"
	"github.com/xoelrdgz/sentinel/internal/ports"
)

// MaxLineLength bounds one replay line; longer lines are truncated before
// parsing.
const MaxLineLength = domain.MaxBodySize + domain.MaxEndpointLength + 4096

var (
	ErrInvalidFormat = errors.New("invalid request format")
	clfTimeLayout    = "02/Jan/2006:15:04:05 -0700"
)

// PayloadParser reads request payloads serialized as JSON lines, the same
// shape the spill file and `sentinel send --json` use.
type PayloadParser struct {
	now func() time.Time
}

func NewPayloadParser() *PayloadParser {
	return &PayloadParser{now: time.Now}
}

func (p *PayloadParser) Parse(line string) (*domain.RequestPayload, error) {
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength]
	}
	line = strings.TrimSpace(line)
	if len(line) < 2 || line[0] != '{' {
		return nil, ErrInvalidFormat
	}

	var req domain.RequestPayload
	if err := json.Unmarshal([]byte(line), &req); err != nil {
		return nil, ErrInvalidFormat
	}
	req.Normalize(p.now())
	req.Body = domain.TruncateBytes(req.Body, domain.MaxBodySize)
	return &req, nil
}

func (p *PayloadParser) Format() string {
	return "json"
}

// CombinedLogParser turns access log lines in Combined Log Format into
// payloads. The authuser field names the acting identity; "-" leaves it to
// the gateway default.
type CombinedLogParser struct{}

func NewCombinedLogParser() *CombinedLogParser {
	return &CombinedLogParser{}
}

func (p *CombinedLogParser) Parse(line string) (*domain.RequestPayload, error) {
	if len(line) > MaxLineLength {
		line = line[:MaxLineLength]
	}
	if len(line) < 20 {
		return nil, ErrInvalidFormat
	}

	lineLen := len(line)
	pos := skipUntil(line, 0, ' ')
	if pos <= 0 {
		return nil, ErrInvalidFormat
	}
	host := line[:pos]
	pos++

	// ident is ignored, authuser is the identity
	identEnd := skipUntil(line, pos, ' ')
	if identEnd == -1 {
		return nil, ErrInvalidFormat
	}
	pos = identEnd + 1
	userEnd := skipUntil(line, pos, ' ')
	if userEnd == -1 {
		return nil, ErrInvalidFormat
	}
	user := line[pos:userEnd]
	pos = userEnd + 1

	if pos >= lineLen || line[pos] != '[' {
		return nil, ErrInvalidFormat
	}
	pos++
	tsEnd := skipUntil(line, pos, ']')
	if tsEnd == -1 {
		return nil, ErrInvalidFormat
	}
	ts, err := time.Parse(clfTimeLayout, line[pos:tsEnd])
	if err != nil {
		return nil, errors.New("invalid timestamp format")
	}
	pos = tsEnd + 2

	if pos >= lineLen || line[pos] != '"' {
		return nil, ErrInvalidFormat
	}
	pos++
	reqEnd := findClosingQuote(line, pos)
	if reqEnd == -1 {
		return nil, ErrInvalidFormat
	}
	method, path, err := parseRequest(line[pos:reqEnd])
	if err != nil {
		return nil, err
	}
	pos = reqEnd + 2

	req := domain.NewRequestPayload(strings.Clone(method), strings.Clone(path), ts)
	if user != "-" {
		req.Username = strings.Clone(user)
	}
	req.SetHeader("X-Forwarded-For", strings.Clone(host))

	// status and bytes, then the quoted referer and user agent
	for i := 0; i < 2 && pos < lineLen; i++ {
		end := skipUntil(line, pos, ' ')
		if end == -1 {
			pos = lineLen
			break
		}
		pos = end + 1
	}
	if pos < lineLen && line[pos] == '"' {
		if refEnd := findClosingQuote(line, pos+1); refEnd != -1 {
			pos = refEnd + 2
		}
	}
	if pos < lineLen && line[pos] == '"' {
		if uaEnd := findClosingQuote(line, pos+1); uaEnd != -1 {
			req.SetHeader("User-Agent", unescapeQuotes(line[pos+1:uaEnd]))
		}
	}

	req.Normalize(ts)
	return req, nil
}

func (p *CombinedLogParser) Format() string {
	return "combined"
}

func findClosingQuote(s string, start int) int {
	i := start
	for i < len(s) {
		if s[i] == '\\' && i+1 < len(s) {
			i += 2
			continue
		}
		if s[i] == '"' {
			return i
		}
		i++
	}
	return -1
}

func skipUntil(s string, pos int, char byte) int {
	if i := strings.IndexByte(s[pos:], char); i >= 0 {
		return pos + i
	}
	return -1
}

func parseRequest(s string) (method, path string, err error) {
	firstSpace := skipUntil(s, 0, ' ')
	if firstSpace <= 0 {
		return "", "", ErrInvalidFormat
	}
	method = s[:firstSpace]

	lastSpace := strings.LastIndexByte(s, ' ')
	if lastSpace <= firstSpace+1 {
		path = s[firstSpace+1:]
	} else {
		path = s[firstSpace+1 : lastSpace]
	}

	if len(method) < 3 || len(method) > 10 || path == "" {
		return "", "", ErrInvalidFormat
	}
	return method, path, nil
}

func unescapeQuotes(s string) string {
	if !strings.Contains(s, `\"`) {
		return s
	}
	return strings.ReplaceAll(s, `\"`, `"`)
}

// AutoDetectParser tries JSON for lines starting with '{' and falls back to
// Combined Log Format.
type AutoDetectParser struct {
	jsonParser *PayloadParser
	clfParser  *CombinedLogParser
}

func NewAutoDetectParser() *AutoDetectParser {
	return &AutoDetectParser{
		jsonParser: NewPayloadParser(),
		clfParser:  NewCombinedLogParser(),
	}
}

func (p *AutoDetectParser) Parse(line string) (*domain.RequestPayload, error) {
	if strings.HasPrefix(strings.TrimSpace(line), "{") {
		if req, err := p.jsonParser.Parse(line); err == nil {
			return req, nil
		}
	}
	return p.clfParser.Parse(line)
}

func (p *AutoDetectParser) Format() string {
	return "auto"
}

// NewParser returns the parser registered under a format name.
func NewParser(format string) (ports.RequestParser, error) {
	switch format {
	case "", "auto":
		return NewAutoDetectParser(), nil
	case "json":
		return NewPayloadParser(), nil
	case "combined", "clf":
		return NewCombinedLogParser(), nil
	}
	return nil, fmt.Errorf("unknown replay format %q", format)
}
