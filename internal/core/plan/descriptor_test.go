package plan

import (
	"context"
	"testing"

	"github.com/compose-spec/compose-go/v2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Descriptor Tests
// =============================================================================

func TestDescriptor_ServicesAndNetwork(t *testing.T) {
	res := resolveProfiles(t, "core", "mining")

	project, err := Descriptor(res, nil)
	require.NoError(t, err)

	assert.Equal(t, "drydock", project.Name)
	assert.Len(t, project.Services, 3)
	assert.Contains(t, project.Networks, "drydock")

	chaind, ok := project.Services["chaind"]
	require.True(t, ok)
	assert.Equal(t, "drydock/chaind:1.9", chaind.Image)
	assert.Equal(t, "core", chaind.Labels["drydock.profile"])
	assert.Equal(t, "1", chaind.Labels["drydock.tier"])
}

func TestDescriptor_DependsOnFollowsEdges(t *testing.T) {
	res := resolveProfiles(t, "core", "mining")

	project, err := Descriptor(res, nil)
	require.NoError(t, err)

	stratum := project.Services["stratumd"]
	require.Len(t, stratum.DependsOn, 2)
	for _, dep := range []string{"chaind", "chain-rpc"} {
		cfg, ok := stratum.DependsOn[dep]
		require.True(t, ok, "stratumd must depend on %s", dep)
		assert.Equal(t, types.ServiceConditionHealthy, cfg.Condition)
		assert.True(t, cfg.Required)
	}

	assert.Empty(t, project.Services["chaind"].DependsOn)
}

func TestDescriptor_ValueSubstitution(t *testing.T) {
	res := resolveProfiles(t, "core", "mining")

	project, err := Descriptor(res, map[string]string{"node.endpoint": "http://10.0.0.5:8545"})
	require.NoError(t, err)

	env := project.Services["stratumd"].Environment
	require.Contains(t, env, "NODE_ENDPOINT")
	require.NotNil(t, env["NODE_ENDPOINT"])
	assert.Equal(t, "http://10.0.0.5:8545", *env["NODE_ENDPOINT"])
}

func TestDescriptor_SharedServiceCarriesOwners(t *testing.T) {
	res := resolveProfiles(t, "block-indexer", "tx-indexer")

	project, err := Descriptor(res, nil)
	require.NoError(t, err)

	postgres := project.Services["chain-postgres"]
	assert.Equal(t, "block-indexer", postgres.Labels["drydock.profile"])
	assert.Equal(t, "tx-indexer", postgres.Labels["drydock.shared_with"])
}

func TestDescriptor_PublishedPorts(t *testing.T) {
	res := resolveProfiles(t, "core")

	project, err := Descriptor(res, nil)
	require.NoError(t, err)

	rpc := project.Services["chain-rpc"]
	require.Len(t, rpc.Ports, 1)
	assert.Equal(t, uint32(8545), rpc.Ports[0].Target)
	assert.Equal(t, "8545", rpc.Ports[0].Published)
}

func TestDescriptor_MarshalAndReload(t *testing.T) {
	res := resolveProfiles(t, "core", "mining")

	project, err := Descriptor(res, map[string]string{
		"node.endpoint": "http://localhost:8545",
		"chain.network": "mainnet",
	})
	require.NoError(t, err)

	raw, err := MarshalDescriptor(project)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "stratumd")

	assert.NoError(t, ValidateDescriptor(context.Background(), raw))
}

// =============================================================================
// Substitution Tests
// =============================================================================

func TestSubstituteValues_ReplacesKnownKeys(t *testing.T) {
	out := SubstituteValues("postgres://chain:${postgres.password}@db/chain",
		map[string]string{"postgres.password": "hunter2"})
	assert.Equal(t, "postgres://chain:hunter2@db/chain", out)
}

func TestSubstituteValues_LeavesUnknownPlaceholders(t *testing.T) {
	out := SubstituteValues("${mystery}", map[string]string{"known": "x"})
	assert.Equal(t, "${mystery}", out)
}

func TestSubstituteValues_PassthroughWithoutPlaceholders(t *testing.T) {
	out := SubstituteValues("plain", map[string]string{"k": "v"})
	assert.Equal(t, "plain", out)
}
