package domain

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Run Errors
// =============================================================================

var (
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrEmptySelection    = errors.New("at least one profile must be selected")
)

// =============================================================================
// Run Status
// =============================================================================

// RunStatus is the lifecycle state of an installation run.
type RunStatus string

const (
	RunPlanned    RunStatus = "planned"
	RunRunning    RunStatus = "running"
	RunCompleted  RunStatus = "completed"
	RunFailed     RunStatus = "failed"
	RunRolledBack RunStatus = "rolled_back"
	RunCancelled  RunStatus = "cancelled"
)

// validRunTransitions defines the allowed state transitions.
// failed -> rolled_back covers an undo after a failed run.
var validRunTransitions = map[RunStatus][]RunStatus{
	RunPlanned:    {RunRunning, RunCancelled},
	RunRunning:    {RunCompleted, RunFailed, RunCancelled},
	RunFailed:     {RunRolledBack},
	RunCompleted:  {},
	RunRolledBack: {},
	RunCancelled:  {},
}

// CanTransitionTo checks if a status transition is valid.
func (s RunStatus) CanTransitionTo(to RunStatus) bool {
	for _, next := range validRunTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status has no outgoing transitions
// other than the post-failure rollback edge.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunCompleted, RunFailed, RunRolledBack, RunCancelled:
		return true
	default:
		return false
	}
}

// =============================================================================
// Run
// =============================================================================

// AppliedFallback records one fallback strategy engaged during a run.
type AppliedFallback struct {
	Profile  string    `json:"profile"`
	Service  string    `json:"service"`
	Fallback string    `json:"fallback"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

// Run is one execution of an installation plan against the host.
type Run struct {
	ID               string            `json:"id"`
	Profiles         []string          `json:"profiles"`
	Values           map[string]string `json:"values,omitempty"`
	Status           RunStatus         `json:"status"`
	Plan             *Plan             `json:"plan,omitempty"`
	Services         []*ServiceState   `json:"services,omitempty"`
	FallbacksApplied []AppliedFallback `json:"fallbacks_applied,omitempty"`
	Warnings         []string          `json:"warnings,omitempty"`
	ErrorMessage     string            `json:"error_message,omitempty"`
	CheckpointID     string            `json:"checkpoint_id,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	StartedAt        *time.Time        `json:"started_at,omitempty"`
	FinishedAt       *time.Time        `json:"finished_at,omitempty"`
}

// NewRun creates a run in the planned state for the given desired profiles.
func NewRun(profiles []string, values map[string]string) (*Run, error) {
	if len(profiles) == 0 {
		return nil, ErrEmptySelection
	}
	if values == nil {
		values = map[string]string{}
	}
	return &Run{
		ID:        uuid.New().String(),
		Profiles:  profiles,
		Values:    values,
		Status:    RunPlanned,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Transition attempts to move the run to a new status, stamping the
// start and finish times.
func (r *Run) Transition(to RunStatus) error {
	if !r.Status.CanTransitionTo(to) {
		return ErrInvalidTransition
	}
	r.Status = to

	now := time.Now().UTC()
	switch to {
	case RunRunning:
		r.StartedAt = &now
	case RunCompleted, RunFailed, RunCancelled, RunRolledBack:
		r.FinishedAt = &now
	}
	return nil
}

// Fail transitions to failed with an error message.
func (r *Run) Fail(message string) error {
	if err := r.Transition(RunFailed); err != nil {
		return err
	}
	r.ErrorMessage = message
	return nil
}

// ServiceState returns the tracked state for a service, if present.
func (r *Run) ServiceState(name string) (*ServiceState, bool) {
	for _, s := range r.Services {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}
