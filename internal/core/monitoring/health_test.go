package monitoring

import (
	"testing"

	"github.com/artpar/drydock/internal/core/domain"
	"github.com/stretchr/testify/assert"
)

// =============================================================================
// InterpretContainer Tests
// =============================================================================

func TestInterpretContainer_NotRunning(t *testing.T) {
	tests := []string{"exited", "created", "restarting", "dead"}
	for _, state := range tests {
		t.Run(state, func(t *testing.T) {
			result := InterpretContainer(state, "", 0)
			assert.Equal(t, domain.ServiceUnhealthy, result)
		})
	}
}

func TestInterpretContainer_HealthCheckStates(t *testing.T) {
	tests := []struct {
		name     string
		health   string
		expected domain.ServiceStatus
	}{
		{"healthy check", "healthy", domain.ServiceHealthy},
		{"unhealthy check", "unhealthy", domain.ServiceUnhealthy},
		{"check still starting", "starting", domain.ServiceStarting},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := InterpretContainer("running", tt.health, 0)
			assert.Equal(t, tt.expected, result)
		})
	}
}

func TestInterpretContainer_NoHealthCheck(t *testing.T) {
	// Running without a check counts as healthy.
	result := InterpretContainer("running", "", 0)
	assert.Equal(t, domain.ServiceHealthy, result)
}

func TestInterpretContainer_FlappingContainer(t *testing.T) {
	result := InterpretContainer("running", "", 5)
	assert.Equal(t, domain.ServiceUnhealthy, result)

	// At the threshold the container is still tolerated.
	result = InterpretContainer("running", "", 3)
	assert.Equal(t, domain.ServiceHealthy, result)
}

func TestInterpretContainer_HealthCheckWinsOverRestarts(t *testing.T) {
	// An explicit healthy check result outweighs the restart count.
	result := InterpretContainer("running", "healthy", 10)
	assert.Equal(t, domain.ServiceHealthy, result)
}

// =============================================================================
// Summarize Tests
// =============================================================================

func TestSummarize_CountsOutcomes(t *testing.T) {
	services := []*domain.ServiceState{
		{Name: "chaind", Status: domain.ServiceHealthy},
		{Name: "chain-rpc", Status: domain.ServiceHealthy},
		{Name: "stratumd", Status: domain.ServiceDegraded},
		{Name: "metricsd", Status: domain.ServiceUnhealthy},
		{Name: "dashd", Status: domain.ServiceSkipped},
	}

	healthy, degraded, failed := Summarize(services)
	assert.Equal(t, 2, healthy)
	assert.Equal(t, 1, degraded)
	assert.Equal(t, 1, failed)
}

// =============================================================================
// Message Tests
// =============================================================================

func TestServiceEventMessage(t *testing.T) {
	assert.Equal(t, "Service chaind passed its health check",
		ServiceEventMessage("chaind", domain.ServiceHealthy))
	assert.Equal(t, "Service stratumd running in fallback mode",
		ServiceEventMessage("stratumd", domain.ServiceDegraded))
	assert.Equal(t, "Service metricsd failed its health check",
		ServiceEventMessage("metricsd", domain.ServiceUnhealthy))
}

func TestRunSummaryMessage(t *testing.T) {
	services := []*domain.ServiceState{
		{Name: "chaind", Status: domain.ServiceHealthy},
		{Name: "chain-rpc", Status: domain.ServiceHealthy},
		{Name: "stratumd", Status: domain.ServiceDegraded},
	}

	assert.Equal(t, "2 services healthy, 1 degraded", RunSummaryMessage(services))
}

func TestRunSummaryMessage_AllHealthy(t *testing.T) {
	services := []*domain.ServiceState{
		{Name: "chaind", Status: domain.ServiceHealthy},
	}

	assert.Equal(t, "1 services healthy", RunSummaryMessage(services))
}
