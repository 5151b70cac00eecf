package ports

import (
	"context"

	"github.com/xoelrdgz/sentinel/internal/domain"
)

// Gateway defines the decision entry points of the engine.
//
// Implementations:
//   - gateway.Evaluator: In-process evaluation pipeline
//
// Thread Safety: Implementations MUST be safe for concurrent Evaluate()
// calls. Calls for the same source address are serialized internally.
type Gateway interface {
	// Evaluate runs the full decision pipeline for one request.
	//
	// Parameters:
	//   - ctx: Context carried to subscribers; evaluation itself is never
	//     cancelled midway
	//   - req: Payload; ClientIP and Username are resolved in place
	//
	// Returns:
	//   - HTTP-style status code (200, 401, 403, 429)
	Evaluate(ctx context.Context, req *domain.RequestPayload) int

	// IssueToken generates and activates a new single-use token,
	// invalidating any unused one.
	//
	// Parameters:
	//   - identity: Identity credited with the issuance ("" for none)
	IssueToken(identity string) string

	// Config returns the configuration in effect for the next evaluation.
	Config() domain.GatewayConfig
}

// DocumentStore defines the interface for the key-value persistence
// collaborator. Values are JSON documents keyed by logical name.
//
// Implementations:
//   - BoltStore: Embedded bbolt database
//   - RedisStore: Shared Redis instance
//   - MemoryStore: In-process map for tests and ephemeral runs
//
// Thread Safety: All methods MUST be safe for concurrent access.
type DocumentStore interface {
	// Load decodes the document stored under key into v.
	//
	// Returns:
	//   - true, nil when the document exists and decoded
	//   - false, nil when no document is stored under key
	//   - false, error on read or decode failure
	Load(ctx context.Context, key string, v any) (bool, error)

	// Save encodes v as JSON and stores it under key, replacing any
	// previous document.
	Save(ctx context.Context, key string, v any) error

	// SaveAll stores several documents in one write when the backend
	// supports it.
	SaveAll(ctx context.Context, docs map[string]any) error

	// Close releases the underlying connection or file.
	Close() error
}
