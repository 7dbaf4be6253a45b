package store

import (
	"context"

	"github.com/artpar/drydock/internal/core/domain"
)

// =============================================================================
// Store Interface
// =============================================================================

// Store defines the persistence interface for drydock state.
type Store interface {
	// Checkpoint operations
	SaveCheckpoint(ctx context.Context, cp *domain.Checkpoint) error
	GetCheckpoint(ctx context.Context, id string) (*domain.Checkpoint, error)
	DeleteCheckpoint(ctx context.Context, id string) error
	ListCheckpoints(ctx context.Context, opts ListOptions) ([]domain.Checkpoint, error) // newest first
	LatestCheckpoint(ctx context.Context) (*domain.Checkpoint, error)
	PreviousCheckpoint(ctx context.Context, id string) (*domain.Checkpoint, error) // created before id
	CountCheckpoints(ctx context.Context) (int, error)

	// Current install state (single row)
	GetCurrentState(ctx context.Context) (*CurrentState, error)
	SetCurrentState(ctx context.Context, cs *CurrentState) error

	// Run history
	CreateRun(ctx context.Context, run *domain.Run) error
	UpdateRun(ctx context.Context, run *domain.Run) error
	GetRun(ctx context.Context, id string) (*domain.Run, error)
	ListRuns(ctx context.Context, opts ListOptions) ([]domain.Run, error) // newest first

	// Transaction support
	WithTx(ctx context.Context, fn func(Store) error) error

	// Lifecycle
	Close() error
}

// CurrentState is the persisted install state plus the restore cursor.
// RestoredFrom holds the checkpoint ID the state was last restored from,
// or "" when the state was produced by a run or undo has walked past it.
type CurrentState struct {
	State        domain.InstallState
	RestoredFrom string
	UpdatedAt    string // RFC3339, informational
}

// =============================================================================
// Options
// =============================================================================

// ListOptions defines pagination options.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListOptions returns default list options.
func DefaultListOptions() ListOptions {
	return ListOptions{
		Limit:  100,
		Offset: 0,
	}
}

// Normalize ensures list options have valid values.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 100
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}
