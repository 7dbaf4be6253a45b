// Package checkpoint manages install state snapshots: creating them before
// mutating runs, restoring them by ID, walking backward through history with
// undo, and pruning old ones on explicit request.
//
// Snapshots at rest carry sealed values when a master secret is configured.
// The manager opens them only for the apply callback and for Current, so
// plaintext secrets never reach the database.
package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/artpar/drydock/internal/core/domain"
	"github.com/artpar/drydock/internal/core/secret"
	"github.com/artpar/drydock/internal/shell/store"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrNoCheckpoint means undo was asked for but history is exhausted.
	ErrNoCheckpoint = errors.New("no checkpoint to undo to")

	// ErrInvalidRetention rejects a negative prune count.
	ErrInvalidRetention = errors.New("retention count cannot be negative")
)

// NotFoundError reports a restore or lookup against an unknown checkpoint ID.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("checkpoint %s not found", e.ID)
}

func (e *NotFoundError) Unwrap() error { return store.ErrNotFound }

// =============================================================================
// Metrics
// =============================================================================

var (
	// checkpointOps counts manager operations.
	// Labels: op (create, restore, undo, prune)
	checkpointOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "drydock",
		Subsystem: "checkpoint",
		Name:      "operations_total",
		Help:      "Checkpoint operations by kind",
	}, []string{"op"})
)

// =============================================================================
// Manager
// =============================================================================

// prunePageSize bounds how many checkpoints one history page loads.
const prunePageSize = 500

// createAttempts bounds the ID collision bump loop. Two creations inside
// the same nanosecond are already unlikely; five in a row are not real.
const createAttempts = 5

// Manager owns the checkpoint lifecycle on top of the store. The mutex
// serialises create, restore, undo and prune so that concurrent API calls
// cannot interleave their read-modify-write sequences.
type Manager struct {
	store  store.Store
	sealer *secret.Sealer
	logger *slog.Logger

	mu sync.Mutex
}

// NewManager wires a manager. A nil sealer disables sealing and values are
// stored in the clear.
func NewManager(st store.Store, sealer *secret.Sealer, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		store:  st,
		sealer: sealer,
		logger: logger.With("component", "checkpoint"),
	}
}

// Current returns the live install state with sensitive values opened for
// use. Callers get a copy; mutating it does not touch the stored state.
func (m *Manager) Current(ctx context.Context) (domain.InstallState, error) {
	cs, err := m.store.GetCurrentState(ctx)
	if err != nil {
		return domain.InstallState{}, err
	}
	state := cs.State.Clone()
	opened, err := secret.OpenValues(m.sealer, state.Values)
	if err != nil {
		return domain.InstallState{}, fmt.Errorf("open current state values: %w", err)
	}
	state.Values = opened
	return state, nil
}

// Commit replaces the current install state with one produced by a
// completed run. Sensitive values are sealed before they reach the store,
// and the restore cursor is cleared: after a run the next undo goes to the
// newest checkpoint.
//
// Commit takes no manager lock. It is called from inside an active run and
// the engine's single-flight already serialises runs against restores.
func (m *Manager) Commit(ctx context.Context, state domain.InstallState) error {
	sealed, err := secret.SealValues(m.sealer, state.Values)
	if err != nil {
		return fmt.Errorf("seal state values: %w", err)
	}
	state = state.Clone()
	state.Values = sealed
	return m.store.SetCurrentState(ctx, &store.CurrentState{
		State: state.Normalize(),
	})
}

// Create snapshots the current install state under a new monotonic ID.
// Values are already sealed at rest, so the snapshot payload carries them
// verbatim.
func (m *Manager) Create(ctx context.Context, description string) (*domain.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cs, err := m.store.GetCurrentState(ctx)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	cp := &domain.Checkpoint{
		Description: description,
		State:       cs.State.Normalize(),
		CreatedAt:   now,
	}
	nanos := now.UnixNano()
	for attempt := 0; attempt < createAttempts; attempt++ {
		cp.ID = fmt.Sprintf("cp-%d", nanos+int64(attempt))
		err := m.store.SaveCheckpoint(ctx, cp)
		if errors.Is(err, store.ErrDuplicateID) {
			continue
		}
		if err != nil {
			return nil, err
		}
		checkpointOps.WithLabelValues("create").Inc()
		m.logger.Info("checkpoint created", "id", cp.ID, "description", description)
		return cp, nil
	}
	return nil, fmt.Errorf("could not allocate a checkpoint id after %d attempts", createAttempts)
}

// Get loads one checkpoint by ID.
func (m *Manager) Get(ctx context.Context, id string) (*domain.Checkpoint, error) {
	cp, err := m.store.GetCheckpoint(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &NotFoundError{ID: id}
	}
	return cp, err
}

// List returns checkpoint history, newest first.
func (m *Manager) List(ctx context.Context, opts store.ListOptions) ([]domain.Checkpoint, error) {
	return m.store.ListCheckpoints(ctx, opts)
}

// Count returns the number of stored checkpoints.
func (m *Manager) Count(ctx context.Context) (int, error) {
	return m.store.CountCheckpoints(ctx)
}

// Restore swaps the current install state for the named checkpoint's.
// The snapshot is decoded and verified in full, and the apply callback (if
// any) must succeed, before anything is written: a failed restore leaves
// the pre-restore state untouched. Restores never append to history; they
// move the restore cursor so undo can keep walking backward.
func (m *Manager) Restore(ctx context.Context, id string, apply func(domain.InstallState) error) (*domain.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp, err := m.store.GetCheckpoint(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, &NotFoundError{ID: id}
	}
	if err != nil {
		return nil, err
	}
	if err := m.restoreTo(ctx, cp, apply); err != nil {
		return nil, err
	}
	checkpointOps.WithLabelValues("restore").Inc()
	m.logger.Info("checkpoint restored", "id", cp.ID, "profiles", cp.State.Profiles)
	return cp, nil
}

// UndoLast restores the checkpoint immediately preceding the current
// state. If the state was itself produced by a restore, the predecessor of
// that checkpoint is next, so repeated undo walks backward through
// history. Exhausted history returns ErrNoCheckpoint.
func (m *Manager) UndoLast(ctx context.Context, apply func(domain.InstallState) error) (*domain.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cs, err := m.store.GetCurrentState(ctx)
	if err != nil {
		return nil, err
	}

	var target *domain.Checkpoint
	if cs.RestoredFrom != "" {
		target, err = m.store.PreviousCheckpoint(ctx, cs.RestoredFrom)
	} else {
		target, err = m.store.LatestCheckpoint(ctx)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrNoCheckpoint
	}
	if err != nil {
		return nil, err
	}
	if err := m.restoreTo(ctx, target, apply); err != nil {
		return nil, err
	}
	checkpointOps.WithLabelValues("undo").Inc()
	m.logger.Info("undo applied", "checkpoint", target.ID, "profiles", target.State.Profiles)
	return target, nil
}

// restoreTo runs the apply callback against the opened state and then
// moves the current state and cursor. Callers hold m.mu.
func (m *Manager) restoreTo(ctx context.Context, cp *domain.Checkpoint, apply func(domain.InstallState) error) error {
	opened, err := secret.OpenValues(m.sealer, cp.State.Values)
	if err != nil {
		return fmt.Errorf("open checkpoint %s values: %w", cp.ID, err)
	}
	if apply != nil {
		applied := cp.State.Clone()
		applied.Values = opened
		if err := apply(applied); err != nil {
			return fmt.Errorf("apply checkpoint %s: %w", cp.ID, err)
		}
	}
	return m.store.SetCurrentState(ctx, &store.CurrentState{
		State:        cp.State.Normalize(),
		RestoredFrom: cp.ID,
	})
}

// Prune deletes the oldest checkpoints beyond keep and returns the deleted
// IDs. keep counts the newest survivors; zero wipes history. Pruning is
// always an explicit request, never a side effect.
func (m *Manager) Prune(ctx context.Context, keep int) ([]string, error) {
	if keep < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidRetention, keep)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	var deleted []string
	err := m.store.WithTx(ctx, func(tx store.Store) error {
		ids, err := allCheckpointIDs(ctx, tx)
		if err != nil {
			return err
		}
		if len(ids) <= keep {
			return nil
		}
		doomed := ids[keep:] // ids are newest first
		doomedSet := make(map[string]bool, len(doomed))
		for _, id := range doomed {
			if err := tx.DeleteCheckpoint(ctx, id); err != nil {
				return err
			}
			doomedSet[id] = true
		}

		// A cursor pointing at a pruned checkpoint would strand undo,
		// so reset it; the next undo goes to the newest survivor.
		cs, err := tx.GetCurrentState(ctx)
		if err != nil {
			return err
		}
		if cs.RestoredFrom != "" && doomedSet[cs.RestoredFrom] {
			cs.RestoredFrom = ""
			if err := tx.SetCurrentState(ctx, cs); err != nil {
				return err
			}
		}
		deleted = doomed
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(deleted) > 0 {
		checkpointOps.WithLabelValues("prune").Inc()
		m.logger.Info("checkpoints pruned", "kept", keep, "deleted", len(deleted))
	}
	return deleted, nil
}

func allCheckpointIDs(ctx context.Context, st store.Store) ([]string, error) {
	var ids []string
	for offset := 0; ; offset += prunePageSize {
		page, err := st.ListCheckpoints(ctx, store.ListOptions{Limit: prunePageSize, Offset: offset})
		if err != nil {
			return nil, err
		}
		for _, cp := range page {
			ids = append(ids, cp.ID)
		}
		if len(page) < prunePageSize {
			return ids, nil
		}
	}
}
