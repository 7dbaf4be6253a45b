package domain

import "time"

// =============================================================================
// Service Status
// =============================================================================

// ServiceStatus is the lifecycle state of one service instance inside a run.
type ServiceStatus string

const (
	ServicePending   ServiceStatus = "pending"
	ServiceStarting  ServiceStatus = "starting"
	ServiceHealthy   ServiceStatus = "healthy"
	ServiceDegraded  ServiceStatus = "degraded" // fallback applied
	ServiceUnhealthy ServiceStatus = "unhealthy"
	ServiceStopped   ServiceStatus = "stopped"
	ServiceSkipped   ServiceStatus = "skipped" // run ended before this service settled
)

// validServiceTransitions defines the allowed state transitions.
// starting -> skipped covers a cancellation that interrupts an in-flight
// service before its health poll settles.
var validServiceTransitions = map[ServiceStatus][]ServiceStatus{
	ServicePending:   {ServiceStarting, ServiceSkipped},
	ServiceStarting:  {ServiceHealthy, ServiceDegraded, ServiceUnhealthy, ServiceStopped, ServiceSkipped},
	ServiceHealthy:   {ServiceStopped, ServiceUnhealthy},
	ServiceDegraded:  {ServiceStopped},
	ServiceUnhealthy: {ServiceStopped},
	ServiceStopped:   {},
	ServiceSkipped:   {},
}

// CanTransitionTo checks if a service status transition is valid.
func (s ServiceStatus) CanTransitionTo(to ServiceStatus) bool {
	for _, next := range validServiceTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Settled reports whether the service reached an outcome that lets the
// stage gate open: healthy, degraded via fallback, or a non-required
// failure the run tolerates.
func (s ServiceStatus) Settled() bool {
	switch s {
	case ServiceHealthy, ServiceDegraded, ServiceUnhealthy, ServiceStopped, ServiceSkipped:
		return true
	default:
		return false
	}
}

// =============================================================================
// Service State
// =============================================================================

// ServiceState tracks one planned service through a run.
type ServiceState struct {
	Name       string        `json:"name"`
	Profile    string        `json:"profile"`
	SharedWith []string      `json:"shared_with,omitempty"`
	Stage      int           `json:"stage"`
	Status     ServiceStatus `json:"status"`
	Handle     string        `json:"handle,omitempty"` // runtime container id
	Attempts   int           `json:"attempts"`
	Message    string        `json:"message,omitempty"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

// Transition attempts to move the service to a new status.
func (s *ServiceState) Transition(to ServiceStatus) error {
	if !s.Status.CanTransitionTo(to) {
		return ErrInvalidTransition
	}
	s.Status = to
	s.UpdatedAt = time.Now().UTC()
	return nil
}
