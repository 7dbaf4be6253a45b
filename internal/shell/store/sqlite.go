package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/artpar/drydock/internal/core/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// =============================================================================
// Executor Interface - Shared by DB and Transaction
// =============================================================================

// executor abstracts database operations that can be performed on both
// a database connection and a transaction.
type executor interface {
	GetContext(ctx context.Context, dest any, query string, args ...any) error
	SelectContext(ctx context.Context, dest any, query string, args ...any) error
	NamedExecContext(ctx context.Context, query string, arg any) (sql.Result, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// =============================================================================
// SQLiteStore
// =============================================================================

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore creates a new SQLite store and runs migrations.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	// Open database connection
	db, err := sqlx.Open("sqlite3", dsn+"?_foreign_keys=on")
	if err != nil {
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to open database", ErrConnectionFailed)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", "failed to ping database", ErrConnectionFailed)
	}

	// Run migrations
	if err := runMigrations(db.DB); err != nil {
		db.Close()
		return nil, NewStoreError("NewSQLiteStore", "", "", err.Error(), ErrMigrationFailed)
	}

	return &SQLiteStore{db: db}, nil
}

// runMigrations runs database migrations using embedded SQL files.
func runMigrations(db *sql.DB) error {
	driver, err := sqlite3.WithInstance(db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite3", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// =============================================================================
// Checkpoint Operations
// =============================================================================

// checkpointRow represents a checkpoint row in the database. The payload is
// the versioned snapshot JSON; decoding verifies its schema and checksum.
type checkpointRow struct {
	ID          string `db:"id"`
	Description string `db:"description"`
	Payload     string `db:"payload"`
	CreatedAt   string `db:"created_at"`
}

func (s *SQLiteStore) SaveCheckpoint(ctx context.Context, cp *domain.Checkpoint) error {
	return saveCheckpoint(ctx, s.db, cp)
}

func (s *SQLiteStore) GetCheckpoint(ctx context.Context, id string) (*domain.Checkpoint, error) {
	return getCheckpoint(ctx, s.db, id)
}

func (s *SQLiteStore) DeleteCheckpoint(ctx context.Context, id string) error {
	return deleteCheckpoint(ctx, s.db, id)
}

func (s *SQLiteStore) ListCheckpoints(ctx context.Context, opts ListOptions) ([]domain.Checkpoint, error) {
	return listCheckpoints(ctx, s.db, opts)
}

func (s *SQLiteStore) LatestCheckpoint(ctx context.Context) (*domain.Checkpoint, error) {
	return latestCheckpoint(ctx, s.db)
}

func (s *SQLiteStore) PreviousCheckpoint(ctx context.Context, id string) (*domain.Checkpoint, error) {
	return previousCheckpoint(ctx, s.db, id)
}

func (s *SQLiteStore) CountCheckpoints(ctx context.Context) (int, error) {
	return countCheckpoints(ctx, s.db)
}

// =============================================================================
// Current State Operations
// =============================================================================

// currentStateRow is the single persisted install state row.
type currentStateRow struct {
	ID           int    `db:"id"`
	Profiles     string `db:"profiles"`
	ConfigValues string `db:"config_values"`
	RestoredFrom string `db:"restored_from"`
	UpdatedAt    string `db:"updated_at"`
}

func (s *SQLiteStore) GetCurrentState(ctx context.Context) (*CurrentState, error) {
	return getCurrentState(ctx, s.db)
}

func (s *SQLiteStore) SetCurrentState(ctx context.Context, cs *CurrentState) error {
	return setCurrentState(ctx, s.db, cs)
}

// =============================================================================
// Run Operations
// =============================================================================

// runRow represents a run row in the database. The plan and values are not
// persisted: the plan is reproducible from the profiles and the values may
// carry secrets.
type runRow struct {
	ID           string  `db:"id"`
	Profiles     string  `db:"profiles"`
	Status       string  `db:"status"`
	Services     *string `db:"services"`
	Fallbacks    *string `db:"fallbacks_applied"`
	Warnings     *string `db:"warnings"`
	ErrorMessage string  `db:"error_message"`
	CheckpointID string  `db:"checkpoint_id"`
	CreatedAt    string  `db:"created_at"`
	StartedAt    *string `db:"started_at"`
	FinishedAt   *string `db:"finished_at"`
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *domain.Run) error {
	return createRun(ctx, s.db, run)
}

func (s *SQLiteStore) UpdateRun(ctx context.Context, run *domain.Run) error {
	return updateRun(ctx, s.db, run)
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	return getRun(ctx, s.db, id)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, opts ListOptions) ([]domain.Run, error) {
	return listRuns(ctx, s.db, opts)
}

// =============================================================================
// Transaction Support
// =============================================================================

func (s *SQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return NewStoreError("WithTx", "", "", "failed to begin transaction", ErrTxFailed)
	}

	txS := &txSQLiteStore{tx: tx}

	if err := fn(txS); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return NewStoreError("WithTx", "", "", fmt.Sprintf("rollback failed after error: %v", err), ErrTxFailed)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return NewStoreError("WithTx", "", "", "failed to commit transaction", ErrTxFailed)
	}

	return nil
}

// =============================================================================
// Transaction Store
// =============================================================================

// txSQLiteStore implements Store within a transaction.
type txSQLiteStore struct {
	tx *sqlx.Tx
}

func (s *txSQLiteStore) SaveCheckpoint(ctx context.Context, cp *domain.Checkpoint) error {
	return saveCheckpoint(ctx, s.tx, cp)
}

func (s *txSQLiteStore) GetCheckpoint(ctx context.Context, id string) (*domain.Checkpoint, error) {
	return getCheckpoint(ctx, s.tx, id)
}

func (s *txSQLiteStore) DeleteCheckpoint(ctx context.Context, id string) error {
	return deleteCheckpoint(ctx, s.tx, id)
}

func (s *txSQLiteStore) ListCheckpoints(ctx context.Context, opts ListOptions) ([]domain.Checkpoint, error) {
	return listCheckpoints(ctx, s.tx, opts)
}

func (s *txSQLiteStore) LatestCheckpoint(ctx context.Context) (*domain.Checkpoint, error) {
	return latestCheckpoint(ctx, s.tx)
}

func (s *txSQLiteStore) PreviousCheckpoint(ctx context.Context, id string) (*domain.Checkpoint, error) {
	return previousCheckpoint(ctx, s.tx, id)
}

func (s *txSQLiteStore) CountCheckpoints(ctx context.Context) (int, error) {
	return countCheckpoints(ctx, s.tx)
}

func (s *txSQLiteStore) GetCurrentState(ctx context.Context) (*CurrentState, error) {
	return getCurrentState(ctx, s.tx)
}

func (s *txSQLiteStore) SetCurrentState(ctx context.Context, cs *CurrentState) error {
	return setCurrentState(ctx, s.tx, cs)
}

func (s *txSQLiteStore) CreateRun(ctx context.Context, run *domain.Run) error {
	return createRun(ctx, s.tx, run)
}

func (s *txSQLiteStore) UpdateRun(ctx context.Context, run *domain.Run) error {
	return updateRun(ctx, s.tx, run)
}

func (s *txSQLiteStore) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	return getRun(ctx, s.tx, id)
}

func (s *txSQLiteStore) ListRuns(ctx context.Context, opts ListOptions) ([]domain.Run, error) {
	return listRuns(ctx, s.tx, opts)
}

func (s *txSQLiteStore) WithTx(ctx context.Context, fn func(Store) error) error {
	// Already in a transaction, just run the function
	return fn(s)
}

func (s *txSQLiteStore) Close() error {
	// No-op for tx store
	return nil
}

// =============================================================================
// Checkpoint Implementation
// =============================================================================

func saveCheckpoint(ctx context.Context, exec executor, cp *domain.Checkpoint) error {
	payload, err := domain.EncodeSnapshot(cp.State, cp.CreatedAt)
	if err != nil {
		return NewStoreError("SaveCheckpoint", "checkpoint", cp.ID, "failed to encode snapshot", err)
	}

	query := `
		INSERT INTO checkpoints (id, description, payload, created_at)
		VALUES (:id, :description, :payload, :created_at)`

	row := map[string]any{
		"id":          cp.ID,
		"description": cp.Description,
		"payload":     string(payload),
		"created_at":  cp.CreatedAt.UTC().Format(time.RFC3339),
	}

	_, err = exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: checkpoints.id") {
			return NewStoreError("SaveCheckpoint", "checkpoint", cp.ID, "checkpoint with this ID already exists", ErrDuplicateID)
		}
		return NewStoreError("SaveCheckpoint", "checkpoint", cp.ID, err.Error(), err)
	}

	return nil
}

func getCheckpoint(ctx context.Context, exec executor, id string) (*domain.Checkpoint, error) {
	query := `SELECT * FROM checkpoints WHERE id = ?`

	var row checkpointRow
	err := exec.GetContext(ctx, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetCheckpoint", "checkpoint", id, "checkpoint not found", ErrNotFound)
		}
		return nil, NewStoreError("GetCheckpoint", "checkpoint", id, err.Error(), err)
	}

	return rowToCheckpoint(&row)
}

func deleteCheckpoint(ctx context.Context, exec executor, id string) error {
	query := `DELETE FROM checkpoints WHERE id = ?`

	result, err := exec.ExecContext(ctx, query, id)
	if err != nil {
		return NewStoreError("DeleteCheckpoint", "checkpoint", id, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("DeleteCheckpoint", "checkpoint", id, "checkpoint not found", ErrNotFound)
	}

	return nil
}

func listCheckpoints(ctx context.Context, exec executor, opts ListOptions) ([]domain.Checkpoint, error) {
	opts = opts.Normalize()
	query := `SELECT * FROM checkpoints ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`

	var rows []checkpointRow
	err := exec.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListCheckpoints", "checkpoint", "", err.Error(), err)
	}

	checkpoints := make([]domain.Checkpoint, 0, len(rows))
	for _, row := range rows {
		cp, err := rowToCheckpoint(&row)
		if err != nil {
			return nil, err
		}
		checkpoints = append(checkpoints, *cp)
	}

	return checkpoints, nil
}

func latestCheckpoint(ctx context.Context, exec executor) (*domain.Checkpoint, error) {
	query := `SELECT * FROM checkpoints ORDER BY created_at DESC, id DESC LIMIT 1`

	var row checkpointRow
	err := exec.GetContext(ctx, &row, query)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("LatestCheckpoint", "checkpoint", "", "no checkpoints recorded", ErrNotFound)
		}
		return nil, NewStoreError("LatestCheckpoint", "checkpoint", "", err.Error(), err)
	}

	return rowToCheckpoint(&row)
}

func previousCheckpoint(ctx context.Context, exec executor, id string) (*domain.Checkpoint, error) {
	anchor, err := getCheckpoint(ctx, exec, id)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT * FROM checkpoints
		WHERE created_at < ? OR (created_at = ? AND id < ?)
		ORDER BY created_at DESC, id DESC
		LIMIT 1`

	createdAt := anchor.CreatedAt.UTC().Format(time.RFC3339)

	var row checkpointRow
	err = exec.GetContext(ctx, &row, query, createdAt, createdAt, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("PreviousCheckpoint", "checkpoint", id, "no earlier checkpoint", ErrNotFound)
		}
		return nil, NewStoreError("PreviousCheckpoint", "checkpoint", id, err.Error(), err)
	}

	return rowToCheckpoint(&row)
}

func countCheckpoints(ctx context.Context, exec executor) (int, error) {
	query := `SELECT COUNT(*) FROM checkpoints`

	var count int
	if err := exec.GetContext(ctx, &count, query); err != nil {
		return 0, NewStoreError("CountCheckpoints", "checkpoint", "", err.Error(), err)
	}
	return count, nil
}

// rowToCheckpoint converts a database row to a domain.Checkpoint. Decoding
// the payload re-verifies the snapshot schema version and checksum, so a
// corrupted row surfaces here rather than at restore time.
func rowToCheckpoint(row *checkpointRow) (*domain.Checkpoint, error) {
	state, err := domain.DecodeSnapshot([]byte(row.Payload))
	if err != nil {
		return nil, NewStoreError("rowToCheckpoint", "checkpoint", row.ID, "failed to decode snapshot", err)
	}

	createdAt, _ := time.Parse(time.RFC3339, row.CreatedAt)

	return &domain.Checkpoint{
		ID:          row.ID,
		Description: row.Description,
		State:       state,
		CreatedAt:   createdAt,
	}, nil
}

// =============================================================================
// Current State Implementation
// =============================================================================

func getCurrentState(ctx context.Context, exec executor) (*CurrentState, error) {
	query := `SELECT * FROM current_state WHERE id = 1`

	var row currentStateRow
	err := exec.GetContext(ctx, &row, query)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Fresh database: nothing installed yet.
			return &CurrentState{State: domain.NewInstallState()}, nil
		}
		return nil, NewStoreError("GetCurrentState", "current_state", "", err.Error(), err)
	}

	var profiles []string
	if row.Profiles != "" && row.Profiles != "null" {
		if err := json.Unmarshal([]byte(row.Profiles), &profiles); err != nil {
			return nil, NewStoreError("GetCurrentState", "current_state", "", "failed to parse profiles", ErrInvalidData)
		}
	}

	var values map[string]string
	if row.ConfigValues != "" && row.ConfigValues != "null" {
		if err := json.Unmarshal([]byte(row.ConfigValues), &values); err != nil {
			return nil, NewStoreError("GetCurrentState", "current_state", "", "failed to parse config values", ErrInvalidData)
		}
	}

	state := domain.InstallState{Profiles: profiles, Values: values}.Normalize()

	return &CurrentState{
		State:        state,
		RestoredFrom: row.RestoredFrom,
		UpdatedAt:    row.UpdatedAt,
	}, nil
}

func setCurrentState(ctx context.Context, exec executor, cs *CurrentState) error {
	state := cs.State.Normalize()

	profilesJSON, err := json.Marshal(state.Profiles)
	if err != nil {
		return NewStoreError("SetCurrentState", "current_state", "", "failed to serialize profiles", ErrInvalidData)
	}
	valuesJSON, err := json.Marshal(state.Values)
	if err != nil {
		return NewStoreError("SetCurrentState", "current_state", "", "failed to serialize config values", ErrInvalidData)
	}

	query := `
		INSERT INTO current_state (id, profiles, config_values, restored_from, updated_at)
		VALUES (1, :profiles, :config_values, :restored_from, :updated_at)
		ON CONFLICT(id) DO UPDATE SET
			profiles = :profiles,
			config_values = :config_values,
			restored_from = :restored_from,
			updated_at = :updated_at`

	row := map[string]any{
		"profiles":      string(profilesJSON),
		"config_values": string(valuesJSON),
		"restored_from": cs.RestoredFrom,
		"updated_at":    time.Now().UTC().Format(time.RFC3339),
	}

	if _, err := exec.NamedExecContext(ctx, query, row); err != nil {
		return NewStoreError("SetCurrentState", "current_state", "", err.Error(), err)
	}

	return nil
}

// =============================================================================
// Run Implementation
// =============================================================================

func createRun(ctx context.Context, exec executor, run *domain.Run) error {
	row, err := runToRow("CreateRun", run)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO runs (
			id, profiles, status, services, fallbacks_applied, warnings,
			error_message, checkpoint_id, created_at, started_at, finished_at
		) VALUES (
			:id, :profiles, :status, :services, :fallbacks_applied, :warnings,
			:error_message, :checkpoint_id, :created_at, :started_at, :finished_at
		)`

	_, err = exec.NamedExecContext(ctx, query, row)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: runs.id") {
			return NewStoreError("CreateRun", "run", run.ID, "run with this ID already exists", ErrDuplicateID)
		}
		return NewStoreError("CreateRun", "run", run.ID, err.Error(), err)
	}

	return nil
}

func updateRun(ctx context.Context, exec executor, run *domain.Run) error {
	row, err := runToRow("UpdateRun", run)
	if err != nil {
		return err
	}

	query := `
		UPDATE runs SET
			profiles = :profiles,
			status = :status,
			services = :services,
			fallbacks_applied = :fallbacks_applied,
			warnings = :warnings,
			error_message = :error_message,
			checkpoint_id = :checkpoint_id,
			started_at = :started_at,
			finished_at = :finished_at
		WHERE id = :id`

	result, err := exec.NamedExecContext(ctx, query, row)
	if err != nil {
		return NewStoreError("UpdateRun", "run", run.ID, err.Error(), err)
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected == 0 {
		return NewStoreError("UpdateRun", "run", run.ID, "run not found", ErrNotFound)
	}

	return nil
}

func getRun(ctx context.Context, exec executor, id string) (*domain.Run, error) {
	query := `SELECT * FROM runs WHERE id = ?`

	var row runRow
	err := exec.GetContext(ctx, &row, query, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, NewStoreError("GetRun", "run", id, "run not found", ErrNotFound)
		}
		return nil, NewStoreError("GetRun", "run", id, err.Error(), err)
	}

	return rowToRun(&row)
}

func listRuns(ctx context.Context, exec executor, opts ListOptions) ([]domain.Run, error) {
	opts = opts.Normalize()
	query := `SELECT * FROM runs ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`

	var rows []runRow
	err := exec.SelectContext(ctx, &rows, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, NewStoreError("ListRuns", "run", "", err.Error(), err)
	}

	runs := make([]domain.Run, 0, len(rows))
	for _, row := range rows {
		run, err := rowToRun(&row)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}

	return runs, nil
}

func runToRow(op string, run *domain.Run) (map[string]any, error) {
	servicesJSON, err := json.Marshal(run.Services)
	if err != nil {
		return nil, NewStoreError(op, "run", run.ID, "failed to serialize services", ErrInvalidData)
	}
	fallbacksJSON, err := json.Marshal(run.FallbacksApplied)
	if err != nil {
		return nil, NewStoreError(op, "run", run.ID, "failed to serialize fallbacks", ErrInvalidData)
	}
	warningsJSON, err := json.Marshal(run.Warnings)
	if err != nil {
		return nil, NewStoreError(op, "run", run.ID, "failed to serialize warnings", ErrInvalidData)
	}
	profilesJSON, err := json.Marshal(run.Profiles)
	if err != nil {
		return nil, NewStoreError(op, "run", run.ID, "failed to serialize profiles", ErrInvalidData)
	}

	var startedAt, finishedAt *string
	if run.StartedAt != nil {
		s := run.StartedAt.Format(time.RFC3339)
		startedAt = &s
	}
	if run.FinishedAt != nil {
		s := run.FinishedAt.Format(time.RFC3339)
		finishedAt = &s
	}

	return map[string]any{
		"id":                run.ID,
		"profiles":          string(profilesJSON),
		"status":            string(run.Status),
		"services":          string(servicesJSON),
		"fallbacks_applied": string(fallbacksJSON),
		"warnings":          string(warningsJSON),
		"error_message":     run.ErrorMessage,
		"checkpoint_id":     run.CheckpointID,
		"created_at":        run.CreatedAt.Format(time.RFC3339),
		"started_at":        startedAt,
		"finished_at":       finishedAt,
	}, nil
}

// rowToRun converts a database row to a domain.Run.
func rowToRun(row *runRow) (*domain.Run, error) {
	createdAt, _ := time.Parse(time.RFC3339, row.CreatedAt)

	var startedAt, finishedAt *time.Time
	if row.StartedAt != nil && *row.StartedAt != "" {
		t, _ := time.Parse(time.RFC3339, *row.StartedAt)
		startedAt = &t
	}
	if row.FinishedAt != nil && *row.FinishedAt != "" {
		t, _ := time.Parse(time.RFC3339, *row.FinishedAt)
		finishedAt = &t
	}

	var profiles []string
	if row.Profiles != "" && row.Profiles != "null" {
		if err := json.Unmarshal([]byte(row.Profiles), &profiles); err != nil {
			return nil, NewStoreError("rowToRun", "run", row.ID, "failed to parse profiles", ErrInvalidData)
		}
	}

	var services []*domain.ServiceState
	if row.Services != nil && *row.Services != "" && *row.Services != "null" {
		if err := json.Unmarshal([]byte(*row.Services), &services); err != nil {
			return nil, NewStoreError("rowToRun", "run", row.ID, "failed to parse services", ErrInvalidData)
		}
	}

	var fallbacks []domain.AppliedFallback
	if row.Fallbacks != nil && *row.Fallbacks != "" && *row.Fallbacks != "null" {
		if err := json.Unmarshal([]byte(*row.Fallbacks), &fallbacks); err != nil {
			return nil, NewStoreError("rowToRun", "run", row.ID, "failed to parse fallbacks", ErrInvalidData)
		}
	}

	var warnings []string
	if row.Warnings != nil && *row.Warnings != "" && *row.Warnings != "null" {
		if err := json.Unmarshal([]byte(*row.Warnings), &warnings); err != nil {
			return nil, NewStoreError("rowToRun", "run", row.ID, "failed to parse warnings", ErrInvalidData)
		}
	}

	return &domain.Run{
		ID:               row.ID,
		Profiles:         profiles,
		Status:           domain.RunStatus(row.Status),
		Services:         services,
		FallbacksApplied: fallbacks,
		Warnings:         warnings,
		ErrorMessage:     row.ErrorMessage,
		CheckpointID:     row.CheckpointID,
		CreatedAt:        createdAt,
		StartedAt:        startedAt,
		FinishedAt:       finishedAt,
	}, nil
}
