package domain

// Document keys of the persisted gateway state.
const (
	KeyClients    = "sentinel_clients_v1"
	KeyLogs       = "sentinel_logs_v1"
	KeyStats      = "sentinel_stats_v1"
	KeyConfig     = "sentinel_config_v1"
	KeyBlockedIPs = "sentinel_blocked_ips_v1"
	KeyViolations = "sentinel_violations_v1"
)

// DocumentKeys lists every persisted document in load order.
var DocumentKeys = []string{KeyClients, KeyLogs, KeyStats, KeyConfig, KeyBlockedIPs, KeyViolations}

// State is the full persisted snapshot of the gateway. Rate-limit history
// and the token slot are process-local and not part of it.
type State struct {
	Clients    []ClientProfile
	Logs       []*LogEntry
	Stats      GatewayStats
	Config     GatewayConfig
	BlockedIPs []string
	Violations map[string]int
}

func DefaultState() State {
	return State{
		Clients:    SeedProfiles(),
		Logs:       []*LogEntry{},
		Stats:      DefaultStats(),
		Config:     DefaultConfig(),
		BlockedIPs: []string{},
		Violations: map[string]int{},
	}
}
