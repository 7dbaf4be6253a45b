package domain

import "time"

// =============================================================================
// Progress Events
// =============================================================================

// EventKind identifies a progress event on the run feed.
type EventKind string

const (
	EventRunStarted     EventKind = "run-started"
	EventStageStarted   EventKind = "stage-started"
	EventServiceChanged EventKind = "service-status-changed"
	EventStageCompleted EventKind = "stage-completed"
	EventRunCompleted   EventKind = "run-completed"
	EventRunFailed      EventKind = "run-failed"
	EventRunCancelled   EventKind = "run-cancelled"
)

// Terminal reports whether the kind ends a run's feed. Exactly one
// terminal event is emitted per run, and it is the last.
func (k EventKind) Terminal() bool {
	switch k {
	case EventRunCompleted, EventRunFailed, EventRunCancelled:
		return true
	default:
		return false
	}
}

// Event is one entry on a run's ordered progress feed. Seq is strictly
// increasing per run and Progress never decreases.
type Event struct {
	Seq      uint64        `json:"seq"`
	RunID    string        `json:"run_id"`
	Kind     EventKind     `json:"kind"`
	Stage    int           `json:"stage,omitempty"`
	Service  string        `json:"service,omitempty"`
	Status   ServiceStatus `json:"status,omitempty"`
	Fallback string        `json:"fallback,omitempty"`
	Message  string        `json:"message,omitempty"`
	Progress float64       `json:"progress"` // 0..1
	At       time.Time     `json:"at"`
}
