// Package engine executes installation plans against the container
// runtime: one run at a time, stage by stage, with health gating, fallback
// handling and an ordered progress feed per run.
//
// The engine is the imperative shell around the pure resolution and
// planning packages. It owns the single-flight guard: starting a run while
// one is active fails fast, and checkpoint restores converge through the
// same guard so a restore can never race a run.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/artpar/drydock/internal/core/capacity"
	"github.com/artpar/drydock/internal/core/catalog"
	"github.com/artpar/drydock/internal/core/domain"
	"github.com/artpar/drydock/internal/core/plan"
	"github.com/artpar/drydock/internal/core/resolve"
	"github.com/artpar/drydock/internal/shell/checkpoint"
	"github.com/artpar/drydock/internal/shell/probe"
	"github.com/artpar/drydock/internal/shell/runtime"
	"github.com/artpar/drydock/internal/shell/store"
)

// =============================================================================
// Errors
// =============================================================================

var (
	// ErrRunInProgress means another run or restore holds the engine.
	ErrRunInProgress = errors.New("an installation run is already in progress")

	// ErrRunNotFound means the run ID is unknown to memory and store.
	ErrRunNotFound = errors.New("run not found")

	// ErrRunNotActive rejects cancelling a run that already finished.
	ErrRunNotActive = errors.New("run is not active")
)

// =============================================================================
// Config
// =============================================================================

// Config tunes run execution.
type Config struct {
	MaxConcurrent int           // parallel service launches per stage
	HealthTimeout time.Duration // per-service deadline to settle
	PollBase      time.Duration // first health poll delay
	PollCap       time.Duration // health poll backoff ceiling
	StopTimeout   time.Duration // graceful stop for swept services
	Network       string        // shared bridge network joined by every service
	FeedCapacity  int           // events retained per run feed
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent: 4,
		HealthTimeout: 2 * time.Minute,
		PollBase:      500 * time.Millisecond,
		PollCap:       5 * time.Second,
		StopTimeout:   15 * time.Second,
		Network:       "drydock",
		FeedCapacity:  defaultFeedCapacity,
	}
}

// withDefaults fills zero fields from DefaultConfig.
func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = def.MaxConcurrent
	}
	if c.HealthTimeout <= 0 {
		c.HealthTimeout = def.HealthTimeout
	}
	if c.PollBase <= 0 {
		c.PollBase = def.PollBase
	}
	if c.PollCap <= 0 {
		c.PollCap = def.PollCap
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = def.StopTimeout
	}
	if c.Network == "" {
		c.Network = def.Network
	}
	if c.FeedCapacity <= 0 {
		c.FeedCapacity = def.FeedCapacity
	}
	return c
}

// =============================================================================
// Engine
// =============================================================================

// Engine drives installation runs and restore convergence.
type Engine struct {
	catalog     *catalog.Registry
	driver      runtime.Driver
	store       store.Store
	checkpoints *checkpoint.Manager
	prober      probe.Prober
	cfg         Config
	logger      *slog.Logger

	mu     sync.Mutex // guards active
	active *activeRun

	// Feeds are kept for the process lifetime: a handful of runs each
	// retaining a bounded event tail.
	feedMu sync.Mutex
	feeds  map[string]*Feed
}

// activeRun is the one in-flight run (or restore convergence) and its
// cancellation plumbing. run is nil while the engine converges a restore.
type activeRun struct {
	run    *domain.Run
	mu     sync.Mutex // guards run mutation
	cancel context.CancelFunc
	done   chan struct{}

	cancelRequested atomic.Bool
	failure         atomic.Pointer[string] // first fatal service failure
}

// update runs fn with exclusive access to the run.
func (a *activeRun) update(fn func(*domain.Run)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	fn(a.run)
}

// snapshot returns a deep copy of the run for callers outside the engine.
func (a *activeRun) snapshot() *domain.Run {
	a.mu.Lock()
	defer a.mu.Unlock()
	return copyRun(a.run)
}

// failf records the first fatal failure message; later ones are dropped.
func (a *activeRun) failf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	a.failure.CompareAndSwap(nil, &msg)
}

func (a *activeRun) failed() (string, bool) {
	if msg := a.failure.Load(); msg != nil {
		return *msg, true
	}
	return "", false
}

// New wires an engine. The checkpoint manager supplies the installed state
// and receives the committed state after a successful run.
func New(cat *catalog.Registry, driver runtime.Driver, st store.Store, checkpoints *checkpoint.Manager, prober probe.Prober, cfg Config, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		catalog:     cat,
		driver:      driver,
		store:       st,
		checkpoints: checkpoints,
		prober:      prober,
		cfg:         cfg.withDefaults(),
		logger:      logger.With("component", "engine"),
		feeds:       make(map[string]*Feed),
	}
}

// =============================================================================
// Run Lifecycle
// =============================================================================

// StartRun validates the selection against the installed state, snapshots
// a checkpoint, persists the planned run and launches execution in the
// background. The returned run is a planned-state copy; progress arrives
// on the event feed.
//
// The engine slot is taken before anything else so the installed set
// cannot shift between resolution and execution, and it is taken without
// blocking: a busy engine returns ErrRunInProgress immediately.
func (e *Engine) StartRun(ctx context.Context, profiles []string, values map[string]string) (*domain.Run, error) {
	runCtx, cancel := context.WithCancel(context.Background())
	active := &activeRun{cancel: cancel, done: make(chan struct{})}
	if err := e.acquire(active); err != nil {
		cancel()
		return nil, err
	}

	run, res, desired, err := e.prepare(ctx, profiles, values)
	if err != nil {
		e.release(active)
		cancel()
		return nil, err
	}
	active.run = run

	feed := e.newFeed(run.ID)
	go e.execute(runCtx, active, feed, res, desired)

	return copyRun(run), nil
}

// prepare resolves, plans and persists a run without touching the host.
func (e *Engine) prepare(ctx context.Context, profiles []string, values map[string]string) (*domain.Run, *domain.Resolution, []string, error) {
	current, err := e.checkpoints.Current(ctx)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load current state: %w", err)
	}

	res, err := resolve.Resolve(e.catalog, profiles, current.Profiles)
	if err != nil {
		return nil, nil, nil, err
	}
	pl, err := plan.Build(res)
	if err != nil {
		return nil, nil, nil, err
	}
	pl.Report = e.capacityReport(ctx, res)

	// Runs are additive: the desired set after success is the union of
	// what is installed and what this run expands to.
	desired := unionSorted(current.Profiles, res.ProfileIDs())

	merged := make(map[string]string, len(current.Values)+len(values))
	for k, v := range current.Values {
		merged[k] = v
	}
	for k, v := range values {
		merged[k] = v
	}

	run, err := domain.NewRun(res.ProfileIDs(), merged)
	if err != nil {
		return nil, nil, nil, err
	}
	run.Plan = pl
	run.Warnings = append(run.Warnings, pl.Report.Warnings...)

	now := time.Now().UTC()
	for _, stage := range pl.Stages {
		for _, svc := range stage.Services {
			run.Services = append(run.Services, &domain.ServiceState{
				Name:       svc.Spec.Name,
				Profile:    svc.Profile,
				SharedWith: append([]string(nil), svc.SharedWith...),
				Stage:      stage.Index,
				Status:     domain.ServicePending,
				UpdatedAt:  now,
			})
		}
	}

	cp, err := e.checkpoints.Create(ctx, "before run "+shortID(run.ID))
	if err != nil {
		return nil, nil, nil, fmt.Errorf("checkpoint before run: %w", err)
	}
	run.CheckpointID = cp.ID

	if err := e.store.CreateRun(ctx, run); err != nil {
		return nil, nil, nil, err
	}
	return run, res, desired, nil
}

// capacityReport probes the host and compares it with the planned
// footprint. Probe failures degrade to an unprobed report; capacity is
// advisory and never blocks a run.
func (e *Engine) capacityReport(ctx context.Context, res *domain.Resolution) *domain.CapacityReport {
	host, err := e.prober.Probe(ctx)
	if err != nil {
		e.logger.Warn("host capacity probe failed", "error", err)
		host = domain.Resources{}
	}
	return capacity.Estimate(res, host)
}

// Converge reconciles the host to exactly the given install state:
// services of departed profiles are stopped and removed, services of the
// state's profiles are started and health-gated. It runs synchronously
// under the caller's context and takes the same engine slot as runs.
//
// Profiles the catalog no longer knows are skipped for execution; the
// recorded state is data and stays intact.
func (e *Engine) Converge(ctx context.Context, target domain.InstallState) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	active := &activeRun{cancel: cancel, done: make(chan struct{})}
	if err := e.acquire(active); err != nil {
		return err
	}
	defer e.release(active)

	return e.converge(runCtx, target.Normalize())
}

// Cancel requests cancellation of the active run. In-flight health polls
// finish or time out, no further services launch, and the run settles as
// cancelled. Healthy services stay up.
func (e *Engine) Cancel(ctx context.Context, runID string) error {
	e.mu.Lock()
	active := e.active
	e.mu.Unlock()

	if active != nil && active.run != nil && active.run.ID == runID {
		if active.cancelRequested.CompareAndSwap(false, true) {
			e.logger.Info("run cancellation requested", "run", runID)
			active.cancel()
		}
		return nil
	}

	if _, err := e.store.GetRun(ctx, runID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return err
	}
	return fmt.Errorf("%w: %s", ErrRunNotActive, runID)
}

// Close cancels any active work and waits for it to wind down.
func (e *Engine) Close(ctx context.Context) error {
	e.mu.Lock()
	active := e.active
	e.mu.Unlock()
	if active == nil {
		return nil
	}
	active.cancelRequested.Store(true)
	active.cancel()
	select {
	case <-active.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// =============================================================================
// Queries
// =============================================================================

// GetRun returns the live run when it is active, otherwise the stored row.
func (e *Engine) GetRun(ctx context.Context, id string) (*domain.Run, error) {
	e.mu.Lock()
	active := e.active
	e.mu.Unlock()
	if active != nil && active.run != nil && active.run.ID == id {
		return active.snapshot(), nil
	}

	run, err := e.store.GetRun(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// ListRuns returns run history, newest first, with the active run's live
// snapshot substituted for its stored row.
func (e *Engine) ListRuns(ctx context.Context, opts store.ListOptions) ([]domain.Run, error) {
	runs, err := e.store.ListRuns(ctx, opts)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	active := e.active
	e.mu.Unlock()
	if active != nil && active.run != nil {
		live := active.snapshot()
		for i := range runs {
			if runs[i].ID == live.ID {
				runs[i] = *live
			}
		}
	}
	return runs, nil
}

// Events returns the retained feed tail after the given sequence number.
// A run that predates this process has no feed anymore and yields an empty
// tail; an unknown run is an error.
func (e *Engine) Events(ctx context.Context, runID string, after uint64) ([]domain.Event, error) {
	if feed := e.feedFor(runID); feed != nil {
		return feed.Since(after), nil
	}
	if _, err := e.store.GetRun(ctx, runID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, err
	}
	return []domain.Event{}, nil
}

// Subscribe attaches a push channel to the run's feed. Finished runs get a
// closed channel so consumers drain and stop uniformly.
func (e *Engine) Subscribe(ctx context.Context, runID string) (<-chan domain.Event, func(), error) {
	if feed := e.feedFor(runID); feed != nil {
		ch, cancel := feed.Subscribe()
		return ch, cancel, nil
	}
	if _, err := e.store.GetRun(ctx, runID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, nil, err
	}
	ch := make(chan domain.Event)
	close(ch)
	return ch, func() {}, nil
}

// =============================================================================
// Startup Recovery
// =============================================================================

// RecoverInterrupted fails runs left in a live status by a previous
// process. Their containers may still be running; the next run or restore
// adopts or sweeps them.
func (e *Engine) RecoverInterrupted(ctx context.Context) error {
	runs, err := e.store.ListRuns(ctx, store.ListOptions{Limit: 1000})
	if err != nil {
		return err
	}
	recovered := 0
	for i := range runs {
		run := &runs[i]
		switch run.Status {
		case domain.RunRunning:
			if err := run.Fail("interrupted by process restart"); err != nil {
				continue
			}
		case domain.RunPlanned:
			if err := run.Transition(domain.RunCancelled); err != nil {
				continue
			}
		default:
			continue
		}
		if err := e.store.UpdateRun(ctx, run); err != nil {
			return err
		}
		recovered++
	}
	if recovered > 0 {
		e.logger.Info("recovered interrupted runs", "count", recovered)
	}
	return nil
}

// =============================================================================
// Slot + Feed Plumbing
// =============================================================================

// acquire takes the single-flight slot without blocking.
func (e *Engine) acquire(active *activeRun) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active != nil {
		return ErrRunInProgress
	}
	e.active = active
	return nil
}

// release frees the slot and signals waiters. Exactly one release pairs
// with every successful acquire.
func (e *Engine) release(active *activeRun) {
	e.mu.Lock()
	if e.active == active {
		e.active = nil
	}
	e.mu.Unlock()
	close(active.done)
}

func (e *Engine) newFeed(runID string) *Feed {
	e.feedMu.Lock()
	defer e.feedMu.Unlock()
	f := NewFeed(runID, e.cfg.FeedCapacity)
	e.feeds[runID] = f
	return f
}

func (e *Engine) feedFor(runID string) *Feed {
	e.feedMu.Lock()
	defer e.feedMu.Unlock()
	return e.feeds[runID]
}

// =============================================================================
// Helpers
// =============================================================================

// copyRun deep-copies a run. The plan is shared: it is immutable once
// built.
func copyRun(r *domain.Run) *domain.Run {
	if r == nil {
		return nil
	}
	out := *r
	out.Profiles = append([]string(nil), r.Profiles...)
	if r.Values != nil {
		out.Values = make(map[string]string, len(r.Values))
		for k, v := range r.Values {
			out.Values[k] = v
		}
	}
	out.Services = make([]*domain.ServiceState, len(r.Services))
	for i, s := range r.Services {
		c := *s
		c.SharedWith = append([]string(nil), s.SharedWith...)
		out.Services[i] = &c
	}
	out.FallbacksApplied = append([]domain.AppliedFallback(nil), r.FallbacksApplied...)
	out.Warnings = append([]string(nil), r.Warnings...)
	if r.StartedAt != nil {
		t := *r.StartedAt
		out.StartedAt = &t
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		out.FinishedAt = &t
	}
	return &out
}

func unionSorted(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, id := range a {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, id := range b {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
