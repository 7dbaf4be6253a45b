package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/drydock/internal/core/domain"
)

// =============================================================================
// Registry Construction Tests
// =============================================================================

func TestNewRegistry_BuiltinsAreValid(t *testing.T) {
	reg, err := NewRegistry(BuiltinProfiles())
	require.NoError(t, err)
	assert.Equal(t, len(BuiltinProfiles()), reg.Len())
}

func TestNewRegistry_DuplicateID(t *testing.T) {
	profiles := []domain.Profile{testProfile("core"), testProfile("core")}

	_, err := NewRegistry(profiles)
	assert.ErrorIs(t, err, ErrDuplicateProfile)
}

func TestNewRegistry_DanglingRequires(t *testing.T) {
	p := testProfile("mining")
	p.Requires = []string{"nonexistent"}

	_, err := NewRegistry([]domain.Profile{p})
	assert.ErrorIs(t, err, ErrDanglingReference)
}

func TestNewRegistry_DanglingConflict(t *testing.T) {
	p := testProfile("core")
	p.Conflicts = []string{"ghost"}

	_, err := NewRegistry([]domain.Profile{p})
	assert.ErrorIs(t, err, ErrDanglingReference)
}

func TestNewRegistry_SharedServiceMustMatch(t *testing.T) {
	a := testProfile("block-indexer")
	b := testProfile("tx-indexer")
	shared := domain.ServiceSpec{
		Name: "chain-postgres", Image: "postgres:16", Tier: domain.TierFoundation,
		Required: true, Resources: domain.Resources{CPUCores: 1, MemoryGB: 2, DiskGB: 20},
	}
	a.Services = append(a.Services, shared)
	divergent := shared
	divergent.Image = "postgres:15"
	b.Services = append(b.Services, divergent)

	_, err := NewRegistry([]domain.Profile{a, b})
	assert.ErrorIs(t, err, ErrSharedServiceSpec)
}

func TestNewRegistry_IdenticalSharedServiceAccepted(t *testing.T) {
	a := testProfile("block-indexer")
	b := testProfile("tx-indexer")
	shared := domain.ServiceSpec{
		Name: "chain-postgres", Image: "postgres:16", Tier: domain.TierFoundation,
		Required: true, Resources: domain.Resources{CPUCores: 1, MemoryGB: 2, DiskGB: 20},
	}
	a.Services = append(a.Services, shared)
	b.Services = append(b.Services, shared)

	_, err := NewRegistry([]domain.Profile{a, b})
	assert.NoError(t, err)
}

// =============================================================================
// Lookup Tests
// =============================================================================

func TestRegistry_Get_Unknown(t *testing.T) {
	reg := builtinRegistry(t)

	_, err := reg.Get("quantum-miner")
	assert.ErrorIs(t, err, ErrUnknownProfile)

	var unknownErr *UnknownProfileError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "quantum-miner", unknownErr.ID)
}

func TestRegistry_All_SortedByID(t *testing.T) {
	reg := builtinRegistry(t)

	all := reg.All()
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].ID, all[i].ID)
	}
}

func TestRegistry_ByCategory(t *testing.T) {
	reg := builtinRegistry(t)

	nodes := reg.ByCategory(CategoryNode)
	require.Len(t, nodes, 2)
	assert.Equal(t, "archive-node", nodes[0].ID)
	assert.Equal(t, "core", nodes[1].ID)
}

func TestRegistry_Categories(t *testing.T) {
	reg := builtinRegistry(t)

	cats := reg.Categories()
	assert.Contains(t, cats, CategoryNode)
	assert.Contains(t, cats, CategoryMining)
	assert.Contains(t, cats, CategoryIndexing)
}

// =============================================================================
// Built-in Catalog Shape Tests
// =============================================================================

func TestBuiltins_MiningHasPrerequisiteGroup(t *testing.T) {
	reg := builtinRegistry(t)

	mining, err := reg.Get("mining")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"core", "archive-node"}, mining.RequiresAny)
	require.NotNil(t, mining.Fallback)
	assert.Equal(t, "remote-node", mining.Fallback.Name)
	assert.Equal(t, "node.endpoint", mining.Fallback.ConfigKey)
}

func TestBuiltins_NetworksConflictBothWays(t *testing.T) {
	reg := builtinRegistry(t)

	mainnet, err := reg.Get("network-mainnet")
	require.NoError(t, err)
	testnet, err := reg.Get("network-testnet")
	require.NoError(t, err)

	assert.True(t, mainnet.ConflictsWith("network-testnet"))
	assert.True(t, testnet.ConflictsWith("network-mainnet"))
}

func TestBuiltins_IndexersShareThePostgresService(t *testing.T) {
	reg := builtinRegistry(t)

	block, err := reg.Get("block-indexer")
	require.NoError(t, err)
	tx, err := reg.Get("tx-indexer")
	require.NoError(t, err)

	a, ok := block.Service("chain-postgres")
	require.True(t, ok)
	b, ok := tx.Service("chain-postgres")
	require.True(t, ok)
	assert.True(t, domain.SpecEqual(a, b))
}

// =============================================================================
// Helpers
// =============================================================================

func testProfile(id string) domain.Profile {
	return domain.Profile{
		ID:       id,
		Name:     id,
		Category: "test",
		Services: []domain.ServiceSpec{
			{Name: id + "-svc", Image: id + ":latest", Tier: domain.TierFoundation,
				Required: true, Resources: domain.Resources{CPUCores: 0.5, MemoryGB: 0.5, DiskGB: 1}},
		},
	}
}

func builtinRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := NewRegistry(BuiltinProfiles())
	require.NoError(t, err)
	return reg
}
