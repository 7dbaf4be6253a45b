package domain

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Snapshot Codec Tests
// =============================================================================

func TestSnapshot_RoundTrip(t *testing.T) {
	state := InstallState{
		Profiles: []string{"mining", "core"},
		Values:   map[string]string{"node.endpoint": "http://localhost:8545"},
	}

	payload, err := EncodeSnapshot(state, time.Now())
	require.NoError(t, err)

	decoded, err := DecodeSnapshot(payload)
	require.NoError(t, err)

	assert.True(t, decoded.Equal(state))
	// Encoding normalizes the profile order.
	assert.Equal(t, []string{"core", "mining"}, decoded.Profiles)
}

func TestSnapshot_ToleratesUnknownFields(t *testing.T) {
	state := InstallState{Profiles: []string{"core"}, Values: map[string]string{}}
	payload, err := EncodeSnapshot(state, time.Now())
	require.NoError(t, err)

	// Simulate a payload written by a newer minor version with extra fields.
	var raw map[string]any
	require.NoError(t, json.Unmarshal(payload, &raw))
	raw["written_by"] = "drydock 2.3"
	raw["schema_version"] = "1.4.0"
	extended, err := json.Marshal(raw)
	require.NoError(t, err)

	decoded, err := DecodeSnapshot(extended)
	require.NoError(t, err)
	assert.True(t, decoded.Equal(state))
}

func TestSnapshot_RejectsMajorVersionBump(t *testing.T) {
	state := InstallState{Profiles: []string{"core"}, Values: map[string]string{}}
	payload, err := EncodeSnapshot(state, time.Now())
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(payload, &raw))
	raw["schema_version"] = "2.0.0"
	bumped, err := json.Marshal(raw)
	require.NoError(t, err)

	_, err = DecodeSnapshot(bumped)
	assert.ErrorIs(t, err, ErrSnapshotVersion)
}

func TestSnapshot_RejectsChecksumMismatch(t *testing.T) {
	state := InstallState{Profiles: []string{"core"}, Values: map[string]string{"k": "v"}}
	payload, err := EncodeSnapshot(state, time.Now())
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(payload, &raw))
	inner := raw["state"].(map[string]any)
	inner["profiles"] = []string{"core", "wallet"}
	tampered, err := json.Marshal(raw)
	require.NoError(t, err)

	_, err = DecodeSnapshot(tampered)
	assert.ErrorIs(t, err, ErrSnapshotChecksum)
}

func TestSnapshot_RejectsGarbage(t *testing.T) {
	_, err := DecodeSnapshot([]byte("not json"))
	assert.ErrorIs(t, err, ErrSnapshotCorrupt)
}

// =============================================================================
// Install State Tests
// =============================================================================

func TestInstallState_NormalizeDropsDuplicates(t *testing.T) {
	state := InstallState{Profiles: []string{"core", "core", "mining"}, Values: map[string]string{}}

	normalized := state.Normalize()
	assert.Equal(t, []string{"core", "mining"}, normalized.Profiles)
}

func TestInstallState_EqualIgnoresOrder(t *testing.T) {
	a := InstallState{Profiles: []string{"mining", "core"}, Values: map[string]string{"k": "v"}}
	b := InstallState{Profiles: []string{"core", "mining"}, Values: map[string]string{"k": "v"}}

	assert.True(t, a.Equal(b))
}

func TestInstallState_EqualDetectsValueDrift(t *testing.T) {
	a := InstallState{Profiles: []string{"core"}, Values: map[string]string{"k": "v"}}
	b := InstallState{Profiles: []string{"core"}, Values: map[string]string{"k": "other"}}

	assert.False(t, a.Equal(b))
}

func TestInstallState_CloneIsIndependent(t *testing.T) {
	original := InstallState{Profiles: []string{"core"}, Values: map[string]string{"k": "v"}}

	clone := original.Clone()
	clone.Values["k"] = "changed"
	clone.Profiles[0] = "wallet"

	assert.Equal(t, "v", original.Values["k"])
	assert.Equal(t, "core", original.Profiles[0])
}
