package domain

import "fmt"

type ProfileStatus string

const (
	StatusActive  ProfileStatus = "ACTIVE"
	StatusFlagged ProfileStatus = "FLAGGED"
	StatusBanned  ProfileStatus = "BANNED"
)

const (
	MaxRiskScore       = 100
	BlockedRiskPenalty = 20
	FlaggedRiskScore   = 50
	MaxActivityRecords = 20

	ActivityLogin          = "SYSTEM_LOGIN"
	ActivityGeneratedToken = "GENERATED_TOKEN"
)

type ActivityRecord struct {
	Action    string `json:"action"`
	Timestamp int64  `json:"timestamp"`
}

type ClientProfile struct {
	Username    string           `json:"username"`
	IP          string           `json:"ip"`
	LoginCount  int              `json:"loginCount"`
	LastActive  int64            `json:"lastActive"`
	RiskScore   int              `json:"riskScore"`
	Status      ProfileStatus    `json:"status"`
	ActivityLog []ActivityRecord `json:"activityLog"`
}

// DeriveStatus is the only place a profile status is computed.
func DeriveStatus(score int, banned bool) ProfileStatus {
	switch {
	case banned || score >= MaxRiskScore:
		return StatusBanned
	case score > FlaggedRiskScore:
		return StatusFlagged
	default:
		return StatusActive
	}
}

func ClampRiskScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > MaxRiskScore {
		return MaxRiskScore
	}
	return score
}

// AddActivity appends a record and evicts the oldest beyond the cap.
func (p *ClientProfile) AddActivity(action string, ts int64) {
	p.ActivityLog = append(p.ActivityLog, ActivityRecord{Action: action, Timestamp: ts})
	if n := len(p.ActivityLog); n > MaxActivityRecords {
		trimmed := make([]ActivityRecord, MaxActivityRecords)
		copy(trimmed, p.ActivityLog[n-MaxActivityRecords:])
		p.ActivityLog = trimmed
	}
}

func (p ClientProfile) Clone() ClientProfile {
	out := p
	out.ActivityLog = make([]ActivityRecord, len(p.ActivityLog))
	copy(out.ActivityLog, p.ActivityLog)
	return out
}

func EvaluationActivity(method, endpoint string, action Action) string {
	return fmt.Sprintf("%s %s - %s", method, endpoint, action)
}

// SeedProfiles returns the client directory used when nothing was persisted.
func SeedProfiles() []ClientProfile {
	names := []string{"zap", "ness", "shark", "hat", "blue"}
	out := make([]ClientProfile, len(names))
	for i, name := range names {
		out[i] = ClientProfile{
			Username:    name,
			IP:          fmt.Sprintf("192.168.1.%d", 101+i),
			Status:      StatusActive,
			ActivityLog: []ActivityRecord{},
		}
	}
	return out
}
