package domain

import "fmt"

type SecurityLevel string

const (
	SecurityLevelStandard SecurityLevel = "STANDARD"
	SecurityLevelHigh     SecurityLevel = "HIGH"
	SecurityLevelParanoid SecurityLevel = "PARANOID"
)

func (l SecurityLevel) Valid() bool {
	switch l {
	case SecurityLevelStandard, SecurityLevelHigh, SecurityLevelParanoid:
		return true
	}
	return false
}

// GatewayConfig is owned by the settings collaborator. The evaluator reads
// one immutable copy per request.
//
// ReverseAttackEnabled and SecurityLevel are accepted and persisted but no
// evaluation step consults them yet.
type GatewayConfig struct {
	RateLimitEnabled     bool          `json:"rateLimitEnabled"`
	RateLimitMax         int           `json:"rateLimitMax"`
	JWTRequired          bool          `json:"jwtRequired"`
	ReverseAttackEnabled bool          `json:"reverseAttackEnabled"`
	SecurityLevel        SecurityLevel `json:"securityLevel"`
}

func DefaultConfig() GatewayConfig {
	return GatewayConfig{
		RateLimitEnabled:     true,
		RateLimitMax:         60,
		JWTRequired:          true,
		ReverseAttackEnabled: false,
		SecurityLevel:        SecurityLevelHigh,
	}
}

func (c GatewayConfig) Validate() error {
	if c.RateLimitMax < 1 {
		return fmt.Errorf("rateLimitMax must be positive, got %d", c.RateLimitMax)
	}
	if !c.SecurityLevel.Valid() {
		return fmt.Errorf("unknown security level %q", c.SecurityLevel)
	}
	return nil
}
