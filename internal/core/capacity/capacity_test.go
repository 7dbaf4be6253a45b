package capacity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/drydock/internal/core/catalog"
	"github.com/artpar/drydock/internal/core/domain"
	"github.com/artpar/drydock/internal/core/resolve"
)

// =============================================================================
// Aggregation Tests
// =============================================================================

func TestAggregate_SharedServiceCountedOnce(t *testing.T) {
	res := resolveProfiles(t, "block-indexer", "tx-indexer")

	footprint := Aggregate(res)

	// chaind 1/2/50 + chain-rpc 0.5/1/1 + chain-postgres 1/2/20 (once)
	// + block-etl 0.5/1/5 + tx-etl 0.5/1/5
	assert.InDelta(t, 3.5, footprint.CPUCores, 1e-9)
	assert.InDelta(t, 7.0, footprint.MemoryGB, 1e-9)
	assert.InDelta(t, 81.0, footprint.DiskGB, 1e-9)
}

func TestAggregate_SingleProfile(t *testing.T) {
	res := resolveProfiles(t, "core")

	footprint := Aggregate(res)
	assert.InDelta(t, 1.5, footprint.CPUCores, 1e-9)
	assert.InDelta(t, 3.0, footprint.MemoryGB, 1e-9)
	assert.InDelta(t, 51.0, footprint.DiskGB, 1e-9)
}

// =============================================================================
// Check Tests
// =============================================================================

func TestCheck_SufficientCapacity(t *testing.T) {
	report := Check(
		domain.Resources{CPUCores: 3.5, MemoryGB: 7, DiskGB: 81},
		domain.Resources{CPUCores: 8, MemoryGB: 32, DiskGB: 500},
	)

	assert.True(t, report.Fits)
	assert.True(t, report.Probed)
	assert.Empty(t, report.Warnings)
}

func TestCheck_InsufficiencyWarnsPerDimension(t *testing.T) {
	report := Check(
		domain.Resources{CPUCores: 3.5, MemoryGB: 7, DiskGB: 81},
		domain.Resources{CPUCores: 2, MemoryGB: 4, DiskGB: 500},
	)

	assert.False(t, report.Fits)
	require.Len(t, report.Warnings, 2)
	assert.Contains(t, report.Warnings[0], "CPU")
	assert.Contains(t, report.Warnings[1], "memory")
}

func TestCheck_UnprobedHostSkipsWarnings(t *testing.T) {
	report := Check(
		domain.Resources{CPUCores: 100, MemoryGB: 100, DiskGB: 1000},
		domain.Resources{},
	)

	assert.True(t, report.Fits)
	assert.False(t, report.Probed)
	assert.Empty(t, report.Warnings)
}

func TestCheck_UnknownDimensionNotCompared(t *testing.T) {
	// A probe that can see CPU and memory but not disk reports disk as 0;
	// only the measured dimensions are checked.
	report := Check(
		domain.Resources{CPUCores: 3.5, MemoryGB: 7, DiskGB: 81},
		domain.Resources{CPUCores: 2, MemoryGB: 32},
	)

	assert.False(t, report.Fits)
	assert.True(t, report.Probed)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "CPU")
}

func TestCheck_ExactFitIsNotAWarning(t *testing.T) {
	host := domain.Resources{CPUCores: 3.5, MemoryGB: 7, DiskGB: 81}

	report := Check(host, host)
	assert.True(t, report.Fits)
	assert.Empty(t, report.Warnings)
}

// =============================================================================
// Helpers
// =============================================================================

func resolveProfiles(t *testing.T, ids ...string) *domain.Resolution {
	t.Helper()
	reg, err := catalog.NewRegistry(catalog.BuiltinProfiles())
	require.NoError(t, err)
	res, err := resolve.Resolve(reg, ids, nil)
	require.NoError(t, err)
	return res
}
