package gateway

import (
	"context"

	"github.com/xoelrdgz/sentinel/internal/domain"
)

// Session is one operator's view of the gateway. A client session always
// acts as its own identity; an admin session may impersonate any client by
// setting the payload username.
type Session struct {
	gw       *Evaluator
	identity string
	admin    bool
}

// NewSession opens a session and records a login for known client
// identities.
func NewSession(gw *Evaluator, identity string, admin bool) *Session {
	s := &Session{gw: gw, identity: identity, admin: admin}
	if !admin {
		gw.Login(identity)
	}
	return s
}

func (s *Session) Identity() string { return s.identity }

func (s *Session) Admin() bool { return s.admin }

// Send evaluates req on behalf of the session.
func (s *Session) Send(ctx context.Context, req *domain.RequestPayload) int {
	if !s.admin || req.Username == "" {
		req.Username = s.identity
	}
	return s.gw.Evaluate(ctx, req)
}

// IssueToken credits the token to the session's identity unless the session
// is an admin one.
func (s *Session) IssueToken() string {
	if s.admin {
		return s.gw.IssueToken("")
	}
	return s.gw.IssueToken(s.identity)
}

// Logs returns every entry for admins and only the session's own entries
// otherwise.
func (s *Session) Logs() []*domain.LogEntry {
	if s.admin {
		return s.gw.Logs()
	}
	return s.gw.LogsFor(s.identity)
}
