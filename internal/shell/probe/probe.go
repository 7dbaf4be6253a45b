// Package probe measures host capacity for capacity reports. A probe
// that cannot measure a dimension reports it as zero, which the capacity
// check treats as unknown rather than insufficient.
package probe

import (
	"context"
	"fmt"

	"github.com/docker/docker/api/types/system"

	"github.com/artpar/drydock/internal/core/domain"
)

// Prober reports the resources available on the host.
type Prober interface {
	Probe(ctx context.Context) (domain.Resources, error)
}

// =============================================================================
// Static Probe
// =============================================================================

// StaticProbe returns operator-configured capacity. Useful when the host
// numbers are known ahead of time or the runtime cannot be asked.
type StaticProbe struct {
	resources domain.Resources
}

// NewStaticProbe creates a probe that always reports the given resources.
func NewStaticProbe(resources domain.Resources) *StaticProbe {
	return &StaticProbe{resources: resources}
}

func (p *StaticProbe) Probe(ctx context.Context) (domain.Resources, error) {
	return p.resources, nil
}

// =============================================================================
// Docker Probe
// =============================================================================

// InfoClient is the slice of the Docker client the probe needs.
type InfoClient interface {
	Info(ctx context.Context) (system.Info, error)
}

// DockerProbe asks the container runtime for CPU and memory totals.
// Disk is not visible through the runtime API and is reported as zero.
type DockerProbe struct {
	client InfoClient
}

// NewDockerProbe creates a probe backed by the Docker daemon.
func NewDockerProbe(client InfoClient) *DockerProbe {
	return &DockerProbe{client: client}
}

func (p *DockerProbe) Probe(ctx context.Context) (domain.Resources, error) {
	info, err := p.client.Info(ctx)
	if err != nil {
		return domain.Resources{}, fmt.Errorf("failed to query runtime info: %w", err)
	}
	return domain.Resources{
		CPUCores: float64(info.NCPU),
		MemoryGB: float64(info.MemTotal) / float64(1<<30),
	}, nil
}
