// Package worker runs the similar-items job: workers that drain a shared
// cursor of item IDs, compute each item's most similar items and hand the
// ranked result to a writer.
package worker

import "context"

// Worker is a long-running background task.
type Worker interface {
	// Run blocks until ctx is cancelled, the work runs out, or an unrecoverable error occurs.
	Run(ctx context.Context) error
}

// State is the lifecycle state of a SimilarItemsWorker.
type State int32

const (
	// StateIdle is the state between construction and Run.
	StateIdle State = iota
	// StateRunning means the loop is claiming and processing items.
	StateRunning
	// StateStopRequested means no further item will be claimed.
	StateStopRequested
	// StateTerminated is final.
	StateTerminated
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopRequested:
		return "stop_requested"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Reason explains why a worker loop ended.
type Reason string

const (
	ReasonExhausted   Reason = "exhausted"
	ReasonStopped     Reason = "stopped"
	ReasonCancelled   Reason = "cancelled"
	ReasonCursorError Reason = "cursor_error"
)
