package gateway

import (
	"sync"

	"github.com/xoelrdgz/sentinel/internal/domain"
)

// ProfileStore is the client directory: identity -> profile, in registration
// order. Callers only ever receive clones.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]*domain.ClientProfile
	order    []string
}

func NewProfileStore(seed []domain.ClientProfile) *ProfileStore {
	s := &ProfileStore{profiles: make(map[string]*domain.ClientProfile, len(seed))}
	for _, p := range seed {
		s.put(p)
	}
	return s
}

func (s *ProfileStore) put(p domain.ClientProfile) {
	if p.Username == "" {
		return
	}
	clone := p.Clone()
	if _, exists := s.profiles[p.Username]; !exists {
		s.order = append(s.order, p.Username)
	}
	s.profiles[p.Username] = &clone
}

func (s *ProfileStore) Lookup(identity string) (domain.ClientProfile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[identity]
	if !ok {
		return domain.ClientProfile{}, false
	}
	return p.Clone(), true
}

// SourceOf resolves the source address for an identity, falling back to the
// loopback address for unknown identities.
func (s *ProfileStore) SourceOf(identity string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.profiles[identity]; ok && p.IP != "" {
		return p.IP
	}
	return domain.LoopbackIP
}

// ApplyEvaluation folds one evaluated request into the profile: the risk
// penalty for blocked outcomes, the re-derived status and the activity
// record. Unknown identities are ignored.
//
// Parameters:
//   - identity: Resolved acting identity
//   - activity: Activity text ("{method} {endpoint} - {action}")
//   - blocked: Whether the outcome was blocked
//   - banned: Current ban set membership of the profile's source
//   - nowMs: Evaluation time in Unix milliseconds
func (s *ProfileStore) ApplyEvaluation(identity, activity string, blocked, banned bool, nowMs int64) (domain.ClientProfile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[identity]
	if !ok {
		return domain.ClientProfile{}, false
	}
	score := p.RiskScore
	if blocked {
		score += domain.BlockedRiskPenalty
	}
	p.RiskScore = domain.ClampRiskScore(score)
	p.Status = domain.DeriveStatus(p.RiskScore, banned)
	p.LastActive = nowMs
	p.AddActivity(activity, nowMs)

	return p.Clone(), true
}

// RecordLogin counts a login and records it in the activity log.
func (s *ProfileStore) RecordLogin(identity string, nowMs int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[identity]
	if !ok {
		return false
	}
	p.LoginCount++
	p.LastActive = nowMs
	p.AddActivity(domain.ActivityLogin, nowMs)
	return true
}

func (s *ProfileStore) RecordTokenIssued(identity string, nowMs int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[identity]
	if !ok {
		return false
	}
	p.AddActivity(domain.ActivityGeneratedToken, nowMs)
	return true
}

func (s *ProfileStore) List() []domain.ClientProfile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ClientProfile, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.profiles[name].Clone())
	}
	return out
}

func (s *ProfileStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Restore replaces the directory. Each status is re-derived from its score
// and the ban predicate so restored profiles obey the same rule as live ones.
func (s *ProfileStore) Restore(profiles []domain.ClientProfile, banned func(source string) bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.profiles = make(map[string]*domain.ClientProfile, len(profiles))
	s.order = s.order[:0]
	for _, p := range profiles {
		p.RiskScore = domain.ClampRiskScore(p.RiskScore)
		isBanned := banned != nil && banned(p.IP)
		p.Status = domain.DeriveStatus(p.RiskScore, isBanned)
		if p.ActivityLog == nil {
			p.ActivityLog = []domain.ActivityRecord{}
		}
		if n := len(p.ActivityLog); n > domain.MaxActivityRecords {
			p.ActivityLog = p.ActivityLog[n-domain.MaxActivityRecords:]
		}
		s.put(p)
	}
}
