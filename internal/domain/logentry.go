package domain

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

const MaxVisibleLogEntries = 100

// LogEntry records one evaluation. Field names follow the persisted log
// document so stored logs round-trip unchanged.
type LogEntry struct {
	ID             string `json:"id"`
	RequestID      string `json:"requestId"`
	Timestamp      int64  `json:"timestamp"`
	Method         string `json:"method"`
	Endpoint       string `json:"endpoint"`
	Status         int    `json:"status"`
	Duration       int64  `json:"duration"`
	ClientIP       string `json:"clientIp"`
	Username       string `json:"username,omitempty"`
	ActionTaken    Action `json:"actionTaken"`
	ThreatDetected string `json:"threatDetected,omitempty"`
	Details        string `json:"details"`

	// AIAnalysis is reserved for a classifier that does not exist yet.
	AIAnalysis *AIAnalysis `json:"aiAnalysis,omitempty"`
}

type AIAnalysis struct {
	IsMalicious bool    `json:"isMalicious"`
	Confidence  float64 `json:"confidence"`
	Reason      string  `json:"reason"`
}

func NewLogEntry(req *RequestPayload, outcome Outcome, cfg GatewayConfig, now time.Time, duration int64) *LogEntry {
	return &LogEntry{
		ID:             uuid.NewString(),
		RequestID:      req.ID,
		Timestamp:      now.UnixMilli(),
		Method:         req.Method,
		Endpoint:       req.Endpoint,
		Status:         outcome.Status(),
		Duration:       duration,
		ClientIP:       req.ClientIP,
		Username:       req.Username,
		ActionTaken:    outcome.Action(),
		ThreatDetected: outcome.Threat(),
		Details:        outcome.Detail(cfg),
	}
}

func (e *LogEntry) Time() time.Time {
	return time.UnixMilli(e.Timestamp)
}

func (e *LogEntry) Blocked() bool {
	return e.ActionTaken == ActionBlocked
}

func (e *LogEntry) AppendDetail(note string) {
	if e.Details == "" {
		e.Details = strings.TrimSpace(note)
		return
	}
	e.Details += " " + strings.TrimSpace(note)
}

func (e *LogEntry) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func (e *LogEntry) Clone() *LogEntry {
	clone := *e
	if e.AIAnalysis != nil {
		ai := *e.AIAnalysis
		clone.AIAnalysis = &ai
	}
	return &clone
}
