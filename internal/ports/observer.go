package ports

import "github.com/xoelrdgz/sentinel/internal/domain"

// EvaluationObserver defines the interface for observing every decision,
// including the outcome variant that the flattened log entry loses.
type EvaluationObserver interface {
	// ObserveEvaluation records a completed evaluation.
	//
	// Parameters:
	//   - outcome: The terminal decision
	//   - latencyMs: Processing time of the pipeline
	//
	// Thread Safety: Implementations MUST be safe for concurrent calls.
	ObserveEvaluation(outcome domain.Outcome, latencyMs int64)

	// ObserveBan is called once when a source joins the ban set.
	ObserveBan(source string)
}
