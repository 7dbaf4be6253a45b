// Package monitoring provides pure functions that interpret raw runtime
// facts as service health. This is part of the Functional Core - the
// engine feeds it values read from the runtime and acts on the results.
package monitoring

import (
	"fmt"

	"github.com/artpar/drydock/internal/core/domain"
)

// =============================================================================
// Health Interpretation (Pure Functions)
// =============================================================================

// restartFlapThreshold is the restart count past which a running container
// without a health check is considered unstable.
const restartFlapThreshold = 3

// InterpretContainer maps a container's runtime state to a service status.
//
// Parameters:
// - state: container state (running, exited, created, restarting)
// - health: health check result if the service declares one (healthy, unhealthy, starting, "")
// - restarts: number of restarts since container creation
func InterpretContainer(state, health string, restarts int) domain.ServiceStatus {
	// Non-running containers have failed
	if state != "running" {
		return domain.ServiceUnhealthy
	}

	switch health {
	case "unhealthy":
		return domain.ServiceUnhealthy
	case "starting":
		return domain.ServiceStarting
	case "healthy":
		return domain.ServiceHealthy
	}

	// No health check configured: running counts as healthy unless the
	// container is flapping.
	if restarts > restartFlapThreshold {
		return domain.ServiceUnhealthy
	}
	return domain.ServiceHealthy
}

// Summarize counts service outcomes for run-level reporting.
func Summarize(services []*domain.ServiceState) (healthy, degraded, failed int) {
	for _, s := range services {
		switch s.Status {
		case domain.ServiceHealthy:
			healthy++
		case domain.ServiceDegraded:
			degraded++
		case domain.ServiceUnhealthy, domain.ServiceStopped:
			failed++
		}
	}
	return healthy, degraded, failed
}

// =============================================================================
// Event Message Generation (Pure Functions)
// =============================================================================

// ServiceEventMessage generates a human-readable message for service
// status changes.
func ServiceEventMessage(name string, status domain.ServiceStatus) string {
	switch status {
	case domain.ServicePending:
		return "Service " + name + " waiting for its stage"
	case domain.ServiceStarting:
		return "Service " + name + " starting"
	case domain.ServiceHealthy:
		return "Service " + name + " passed its health check"
	case domain.ServiceDegraded:
		return "Service " + name + " running in fallback mode"
	case domain.ServiceUnhealthy:
		return "Service " + name + " failed its health check"
	case domain.ServiceStopped:
		return "Service " + name + " stopped"
	case domain.ServiceSkipped:
		return "Service " + name + " skipped"
	default:
		return "Service " + name + " status: " + string(status)
	}
}

// RunSummaryMessage generates the closing message for a finished run.
func RunSummaryMessage(services []*domain.ServiceState) string {
	healthy, degraded, failed := Summarize(services)
	msg := fmt.Sprintf("%d services healthy", healthy)
	if degraded > 0 {
		msg += fmt.Sprintf(", %d degraded", degraded)
	}
	if failed > 0 {
		msg += fmt.Sprintf(", %d failed", failed)
	}
	return msg
}
