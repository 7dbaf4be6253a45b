package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// Checkpoint Errors
// =============================================================================

var (
	ErrSnapshotVersion  = errors.New("unsupported snapshot schema version")
	ErrSnapshotChecksum = errors.New("snapshot checksum mismatch")
	ErrSnapshotCorrupt  = errors.New("snapshot payload is corrupt")
)

// SnapshotSchemaVersion is the schema written by this build. Decoding
// accepts any payload whose major version matches; unknown fields are
// ignored so newer minor versions stay readable.
const SnapshotSchemaVersion = "1.0.0"

// =============================================================================
// Checkpoint
// =============================================================================

// Checkpoint is one captured install state with identity and provenance.
type Checkpoint struct {
	ID          string       `json:"id"`
	Description string       `json:"description"`
	State       InstallState `json:"state"`
	CreatedAt   time.Time    `json:"created_at"`
}

// =============================================================================
// Snapshot Codec
// =============================================================================

// snapshot is the persisted payload envelope. The checksum covers the
// canonical JSON encoding of the state alone.
type snapshot struct {
	SchemaVersion string       `json:"schema_version"`
	CreatedAt     time.Time    `json:"created_at"`
	State         InstallState `json:"state"`
	Checksum      string       `json:"checksum"`
}

// EncodeSnapshot serialises an install state into a versioned, checksummed
// JSON payload.
func EncodeSnapshot(state InstallState, at time.Time) ([]byte, error) {
	normalized := state.Normalize()
	sum, err := stateChecksum(normalized)
	if err != nil {
		return nil, err
	}
	return json.Marshal(snapshot{
		SchemaVersion: SnapshotSchemaVersion,
		CreatedAt:     at.UTC(),
		State:         normalized,
		Checksum:      sum,
	})
}

// DecodeSnapshot parses and verifies a snapshot payload. Unknown JSON
// fields are tolerated; a different major version or a bad checksum is not.
func DecodeSnapshot(payload []byte) (InstallState, error) {
	var snap snapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return InstallState{}, fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	if err := checkSchemaVersion(snap.SchemaVersion); err != nil {
		return InstallState{}, err
	}
	state := snap.State.Normalize()
	sum, err := stateChecksum(state)
	if err != nil {
		return InstallState{}, err
	}
	if snap.Checksum != "" && snap.Checksum != sum {
		return InstallState{}, fmt.Errorf("%w: want %s got %s", ErrSnapshotChecksum, snap.Checksum, sum)
	}
	return state, nil
}

func stateChecksum(state InstallState) (string, error) {
	// json.Marshal sorts map keys, so equal states hash identically.
	raw, err := json.Marshal(state)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSnapshotCorrupt, err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

func checkSchemaVersion(version string) error {
	if version == "" {
		return fmt.Errorf("%w: missing version", ErrSnapshotVersion)
	}
	wantMajor := strings.SplitN(SnapshotSchemaVersion, ".", 2)[0]
	gotMajor := strings.SplitN(version, ".", 2)[0]
	if _, err := strconv.Atoi(gotMajor); err != nil {
		return fmt.Errorf("%w: %q", ErrSnapshotVersion, version)
	}
	if gotMajor != wantMajor {
		return fmt.Errorf("%w: %q (this build reads %s.x)", ErrSnapshotVersion, version, wantMajor)
	}
	return nil
}
