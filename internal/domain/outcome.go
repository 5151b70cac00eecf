package domain

import (
	"fmt"
	"net/http"
)

type Action string

const (
	ActionAllowed    Action = "ALLOWED"
	ActionBlocked    Action = "BLOCKED"
	ActionRedirected Action = "REDIRECTED"
)

// BlockReason names why a request was refused. Each reason fixes the status
// code and threat label reported for it.
type BlockReason string

const (
	ReasonBannedIP     BlockReason = "BANNED_IP"
	ReasonRateLimited  BlockReason = "RATE_LIMITED"
	ReasonMissingToken BlockReason = "MISSING_TOKEN"
	ReasonInvalidToken BlockReason = "INVALID_TOKEN"
)

const (
	ThreatBannedIP           = "BANNED_IP"
	ThreatRateLimitViolation = "Rate Limit Violation"
	ThreatUnauthorized       = "Unauthorized Access"
)

// Retryable reports whether the same request may succeed later without the
// caller changing anything but time.
func (r BlockReason) Retryable() bool {
	return r == ReasonRateLimited
}

type outcomeKind uint8

const (
	kindAllowed outcomeKind = iota
	kindBlocked
	kindRedirected
)

// Outcome is the terminal decision for one request. The zero value is an
// allowed outcome; blocked outcomes always carry a reason.
type Outcome struct {
	kind   outcomeKind
	reason BlockReason
}

func Allow() Outcome { return Outcome{kind: kindAllowed} }

func Redirect() Outcome { return Outcome{kind: kindRedirected} }

func Block(reason BlockReason) Outcome {
	return Outcome{kind: kindBlocked, reason: reason}
}

func (o Outcome) Allowed() bool { return o.kind == kindAllowed }

func (o Outcome) Blocked() bool { return o.kind == kindBlocked }

// Reason returns the block reason, or "" for non-blocked outcomes.
func (o Outcome) Reason() BlockReason { return o.reason }

func (o Outcome) Action() Action {
	switch o.kind {
	case kindBlocked:
		return ActionBlocked
	case kindRedirected:
		return ActionRedirected
	default:
		return ActionAllowed
	}
}

func (o Outcome) Status() int {
	switch o.kind {
	case kindRedirected:
		return http.StatusTemporaryRedirect
	case kindBlocked:
		switch o.reason {
		case ReasonRateLimited:
			return http.StatusTooManyRequests
		case ReasonMissingToken:
			return http.StatusUnauthorized
		default:
			return http.StatusForbidden
		}
	default:
		return http.StatusOK
	}
}

// Threat returns the threat label recorded on the log entry, if any.
func (o Outcome) Threat() string {
	if o.kind != kindBlocked {
		return ""
	}
	switch o.reason {
	case ReasonBannedIP:
		return ThreatBannedIP
	case ReasonRateLimited:
		return ThreatRateLimitViolation
	case ReasonInvalidToken:
		return ThreatUnauthorized
	default:
		return ""
	}
}

// Detail renders the human-readable detail string. The rate limit message
// quotes the configured maximum.
func (o Outcome) Detail(cfg GatewayConfig) string {
	switch o.kind {
	case kindRedirected:
		return "Request redirected."
	case kindBlocked:
		switch o.reason {
		case ReasonBannedIP:
			return "Connection refused: Client banned."
		case ReasonRateLimited:
			return fmt.Sprintf("Rate limit exceeded. Max %d RPM.", cfg.RateLimitMax)
		case ReasonMissingToken:
			return "Missing authentication token."
		case ReasonInvalidToken:
			return "Invalid or expired token."
		}
		return "Request blocked."
	default:
		return "Request processed successfully."
	}
}

func (o Outcome) String() string {
	if o.kind == kindBlocked {
		return fmt.Sprintf("%s(%s)", ActionBlocked, o.reason)
	}
	return string(o.Action())
}
