package probe

import (
	"context"
	"errors"
	"testing"

	"github.com/docker/docker/api/types/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/drydock/internal/core/domain"
)

type fakeInfoClient struct {
	info system.Info
	err  error
}

func (f *fakeInfoClient) Info(ctx context.Context) (system.Info, error) {
	return f.info, f.err
}

func TestStaticProbe_ReturnsConfiguredResources(t *testing.T) {
	p := NewStaticProbe(domain.Resources{CPUCores: 4, MemoryGB: 16, DiskGB: 500})

	got, err := p.Probe(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 4.0, got.CPUCores, 1e-9)
	assert.InDelta(t, 16.0, got.MemoryGB, 1e-9)
	assert.InDelta(t, 500.0, got.DiskGB, 1e-9)
}

func TestDockerProbe_ConvertsRuntimeInfo(t *testing.T) {
	p := NewDockerProbe(&fakeInfoClient{info: system.Info{NCPU: 8, MemTotal: 16 << 30}})

	got, err := p.Probe(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 8.0, got.CPUCores, 1e-9)
	assert.InDelta(t, 16.0, got.MemoryGB, 1e-9)
	// Disk is unknown through the runtime API.
	assert.InDelta(t, 0.0, got.DiskGB, 1e-9)
}

func TestDockerProbe_PropagatesError(t *testing.T) {
	p := NewDockerProbe(&fakeInfoClient{err: errors.New("daemon unreachable")})

	_, err := p.Probe(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "runtime info")
}
