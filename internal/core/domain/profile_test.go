package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// =============================================================================
// Profile Validation Tests
// =============================================================================

func validProfile() Profile {
	return Profile{
		ID:       "core",
		Name:     "Core Node",
		Category: "node",
		Services: []ServiceSpec{
			{Name: "chaind", Image: "chaind:1.4", Tier: TierFoundation, Required: true,
				Resources: Resources{CPUCores: 1, MemoryGB: 2, DiskGB: 50}},
		},
	}
}

func TestProfile_Validate_Valid(t *testing.T) {
	assert.NoError(t, validProfile().Validate())
}

func TestProfile_Validate_EmptyID(t *testing.T) {
	p := validProfile()
	p.ID = ""
	assert.ErrorIs(t, p.Validate(), ErrProfileIDRequired)
}

func TestProfile_Validate_BadID(t *testing.T) {
	p := validProfile()
	p.ID = "Core_Node"
	assert.ErrorIs(t, p.Validate(), ErrProfileIDInvalid)
}

func TestProfile_Validate_NoServices(t *testing.T) {
	p := validProfile()
	p.Services = nil
	assert.ErrorIs(t, p.Validate(), ErrProfileNoServices)
}

func TestProfile_Validate_TierOutOfRange(t *testing.T) {
	p := validProfile()
	p.Services[0].Tier = 4
	assert.ErrorIs(t, p.Validate(), ErrTierOutOfRange)
}

func TestProfile_Validate_NegativeResources(t *testing.T) {
	p := validProfile()
	p.Services[0].Resources.MemoryGB = -1
	assert.ErrorIs(t, p.Validate(), ErrNegativeResources)
}

func TestProfile_Validate_SelfReference(t *testing.T) {
	p := validProfile()
	p.Requires = []string{"core"}
	assert.ErrorIs(t, p.Validate(), ErrSelfReference)
}

func TestProfile_Validate_FallbackMissingTarget(t *testing.T) {
	p := validProfile()
	p.Fallback = &Fallback{Name: "remote-node", Message: "using hosted endpoint"}
	assert.ErrorIs(t, p.Validate(), ErrFallbackIncomplete)
}

func TestProfile_ConflictsWith(t *testing.T) {
	p := validProfile()
	p.Conflicts = []string{"archive-node"}

	assert.True(t, p.ConflictsWith("archive-node"))
	assert.False(t, p.ConflictsWith("mining"))
}

// =============================================================================
// Shared Service Equality Tests
// =============================================================================

func TestSpecEqual_IdenticalSpecs(t *testing.T) {
	a := ServiceSpec{Name: "chain-postgres", Image: "postgres:16", Tier: TierFoundation,
		Required: true, Env: map[string]string{"POSTGRES_DB": "chain"},
		Resources: Resources{CPUCores: 1, MemoryGB: 2, DiskGB: 20}}
	b := ServiceSpec{Name: "chain-postgres", Image: "postgres:16", Tier: TierFoundation,
		Required: true, Env: map[string]string{"POSTGRES_DB": "chain"},
		Resources: Resources{CPUCores: 1, MemoryGB: 2, DiskGB: 20}}

	assert.True(t, SpecEqual(a, b))
}

func TestSpecEqual_DivergentResources(t *testing.T) {
	a := ServiceSpec{Name: "chain-postgres", Image: "postgres:16", Tier: TierFoundation,
		Resources: Resources{CPUCores: 1, MemoryGB: 2, DiskGB: 20}}
	b := a
	b.Resources.DiskGB = 40

	assert.False(t, SpecEqual(a, b))
}

func TestSpecEqual_DivergentEnv(t *testing.T) {
	a := ServiceSpec{Name: "chain-postgres", Image: "postgres:16", Tier: TierFoundation,
		Env: map[string]string{"POSTGRES_DB": "chain"}}
	b := ServiceSpec{Name: "chain-postgres", Image: "postgres:16", Tier: TierFoundation,
		Env: map[string]string{"POSTGRES_DB": "txindex"}}

	assert.False(t, SpecEqual(a, b))
}

// =============================================================================
// Resources Tests
// =============================================================================

func TestResources_Add(t *testing.T) {
	sum := Resources{CPUCores: 1, MemoryGB: 2, DiskGB: 50}.Add(Resources{CPUCores: 0.5, MemoryGB: 1, DiskGB: 1})
	assert.Equal(t, Resources{CPUCores: 1.5, MemoryGB: 3, DiskGB: 51}, sum)
}

func TestResources_Fits(t *testing.T) {
	host := Resources{CPUCores: 4, MemoryGB: 16, DiskGB: 200}

	assert.True(t, Resources{CPUCores: 3.5, MemoryGB: 7, DiskGB: 81}.Fits(host))
	assert.False(t, Resources{CPUCores: 4.5, MemoryGB: 7, DiskGB: 81}.Fits(host))
	assert.False(t, Resources{CPUCores: 2, MemoryGB: 32, DiskGB: 81}.Fits(host))
}

func TestResources_IsZero(t *testing.T) {
	assert.True(t, Resources{}.IsZero())
	assert.False(t, Resources{CPUCores: 0.1}.IsZero())
}
