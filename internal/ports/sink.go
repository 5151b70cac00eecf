// Package ports defines the primary and secondary port interfaces following
// hexagonal architecture (ports and adapters pattern).
//
// This package contains interfaces that define the contract between the
// gateway engine and external infrastructure (traffic sources, document
// stores, log sinks, dashboards).
//
// Design Principles:
//   - Interfaces are small and focused (Interface Segregation Principle)
//   - Dependencies flow inward (the engine has no external dependencies)
//   - Implementations provided by adapters in internal/adapters/
package ports

import (
	"context"

	"github.com/xoelrdgz/sentinel/internal/domain"
)

// LogSink defines the interface for shipping evaluation log entries to
// durable outputs.
//
// Implementations:
//   - JSONLogSink: Writes entries as JSON lines to file or stdout
//
// Thread Safety: Implementations MUST be safe for concurrent Send() calls.
type LogSink interface {
	// Send dispatches a log entry to the output destination.
	//
	// Parameters:
	//   - ctx: Context for cancellation and timeout
	//   - entry: Immutable entry to dispatch
	//
	// Returns:
	//   - nil on success
	//   - Error if dispatch fails (caller logs and continues)
	Send(ctx context.Context, entry *domain.LogEntry) error

	// Flush forces pending entries to be written to destination.
	Flush() error

	// Close releases resources and ensures all entries are flushed.
	Close() error
}

// LogSubscriber defines the callback interface for log notification.
// Used by the evaluator to notify interested components (TUI, sinks).
//
// Design: Push-based notification for real-time UI updates.
type LogSubscriber interface {
	// OnLogEntry is called synchronously after an entry is appended to the
	// visible log.
	//
	// Parameters:
	//   - entry: The emitted entry (immutable, safe to store reference)
	//
	// Performance: Implementation should return quickly; it runs on the
	// evaluation path.
	OnLogEntry(entry *domain.LogEntry)
}
