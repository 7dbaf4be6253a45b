package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/artpar/drydock/internal/core/domain"
	"github.com/artpar/drydock/internal/core/monitoring"
	"github.com/artpar/drydock/internal/core/plan"
	"github.com/artpar/drydock/internal/core/resolve"
	"github.com/artpar/drydock/internal/shell/runtime"
)

// settleOutcome is what a health wait ends with.
type settleOutcome int

const (
	settleHealthy settleOutcome = iota
	settleFailed
	settleCancelled
)

// terminalWriteTimeout bounds the state and run writes that happen after
// the run context is already cancelled.
const terminalWriteTimeout = 10 * time.Second

// =============================================================================
// Run Execution
// =============================================================================

// execute drives one run to a terminal state. It owns the engine slot and
// releases it on the way out.
func (e *Engine) execute(ctx context.Context, active *activeRun, feed *Feed, res *domain.Resolution, desired []string) {
	defer e.release(active)

	run := active.run
	logger := e.logger.With("run", shortID(run.ID))
	total := run.Plan.TotalServices()

	active.update(func(r *domain.Run) {
		if err := r.Transition(domain.RunRunning); err != nil {
			logger.Error("failed to mark run running", "error", err)
		}
	})
	e.persist(ctx, active, logger)
	feed.Append(domain.Event{
		Kind:    domain.EventRunStarted,
		Message: "Installing profiles: " + strings.Join(run.Profiles, ", "),
	})
	logger.Info("run started", "profiles", run.Profiles, "stages", len(run.Plan.Stages), "services", total)

	// Sweep services whose owner profile left the desired set before
	// staging anything new.
	keep := make(map[string]bool)
	for _, s := range resolve.Materialize(e.catalog, desired).Services {
		keep[s.Spec.Name] = true
	}
	if warnings := e.reconcile(ctx, desired, keep); len(warnings) > 0 {
		active.update(func(r *domain.Run) {
			r.Warnings = append(r.Warnings, warnings...)
		})
	}

	if err := e.driver.EnsureNetwork(ctx, e.cfg.Network); err != nil && ctx.Err() == nil {
		active.failf("create network %s: %v", e.cfg.Network, err)
	}

	if _, failed := active.failed(); !failed {
		for _, stage := range run.Plan.Stages {
			if ctx.Err() != nil {
				break
			}
			feed.Append(domain.Event{
				Kind:     domain.EventStageStarted,
				Stage:    stage.Index,
				Progress: e.progress(active, total),
				Message:  fmt.Sprintf("Stage %d of %d: starting %d service(s)", stage.Index, len(run.Plan.Stages), len(stage.Services)),
			})
			logger.Info("stage started", "stage", stage.Index, "services", len(stage.Services))

			started := time.Now()
			e.runStage(ctx, active, feed, res, stage, total)
			stageDuration.Observe(time.Since(started).Seconds())

			if _, failed := active.failed(); failed || ctx.Err() != nil {
				break
			}
			feed.Append(domain.Event{
				Kind:     domain.EventStageCompleted,
				Stage:    stage.Index,
				Progress: e.progress(active, total),
				Message:  fmt.Sprintf("Stage %d complete", stage.Index),
			})
		}
	}

	e.finish(ctx, active, feed, desired, total, logger)
}

// runStage launches a stage's services under the worker pool and waits for
// all of them to settle. The stage context stops pending launches when a
// required service fails.
func (e *Engine) runStage(ctx context.Context, active *activeRun, feed *Feed, res *domain.Resolution, stage domain.Stage, total int) {
	stageCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sem := make(chan struct{}, e.cfg.MaxConcurrent)
	var wg sync.WaitGroup
	for _, svc := range stage.Services {
		wg.Add(1)
		go func(ps domain.PlannedService) {
			defer wg.Done()
			select {
			case <-stageCtx.Done():
				return
			case sem <- struct{}{}:
			}
			defer func() { <-sem }()
			e.runService(stageCtx, cancel, active, feed, res, ps, total)
		}(svc)
	}
	wg.Wait()
}

// runService takes one service from pending to a settled status.
func (e *Engine) runService(ctx context.Context, stageCancel context.CancelFunc, active *activeRun, feed *Feed, res *domain.Resolution, ps domain.PlannedService, total int) {
	name := ps.Spec.Name

	var state *domain.ServiceState
	values := make(map[string]string)
	active.update(func(r *domain.Run) {
		state, _ = r.ServiceState(name)
		for k, v := range r.Values {
			values[k] = v
		}
	})
	if state == nil {
		return
	}

	e.transitionService(active, state, domain.ServiceStarting)
	e.emitService(feed, active, state, total, "", monitoring.ServiceEventMessage(name, domain.ServiceStarting))

	handle, err := e.ensureContainer(ctx, ps, values)
	if err != nil {
		if ctx.Err() != nil {
			return // cancelled mid-launch; finish marks it skipped
		}
		e.serviceFailed(ctx, stageCancel, active, feed, res, ps, state, total, fmt.Sprintf("launch failed: %v", err))
		return
	}
	active.update(func(*domain.Run) { state.Handle = handle })

	outcome, reason := e.awaitHealthy(ctx, name, handle, func() {
		active.update(func(*domain.Run) { state.Attempts++ })
	})
	switch outcome {
	case settleHealthy:
		e.transitionService(active, state, domain.ServiceHealthy)
		servicesSettled.WithLabelValues(string(domain.ServiceHealthy)).Inc()
		e.emitService(feed, active, state, total, "", monitoring.ServiceEventMessage(name, domain.ServiceHealthy))
	case settleCancelled:
		return
	case settleFailed:
		e.serviceFailed(ctx, stageCancel, active, feed, res, ps, state, total, reason)
	}
}

// serviceFailed applies the failure policy: degrade through the owning
// profile's fallback when one exists, fail the run for a required service,
// warn and continue otherwise.
func (e *Engine) serviceFailed(ctx context.Context, stageCancel context.CancelFunc, active *activeRun, feed *Feed, res *domain.Resolution, ps domain.PlannedService, state *domain.ServiceState, total int, reason string) {
	name := ps.Spec.Name
	owner, _ := res.Profile(ps.Profile)

	if owner.Fallback != nil {
		fb := owner.Fallback
		var handle string
		active.update(func(r *domain.Run) {
			r.Values[fb.ConfigKey] = fb.Target
			r.FallbacksApplied = append(r.FallbacksApplied, domain.AppliedFallback{
				Profile:  owner.ID,
				Service:  name,
				Fallback: fb.Name,
				Message:  fb.Message,
				At:       time.Now().UTC(),
			})
			state.Message = fb.Message
			handle = state.Handle
		})
		e.transitionService(active, state, domain.ServiceDegraded)
		fallbacksApplied.Inc()
		servicesSettled.WithLabelValues(string(domain.ServiceDegraded)).Inc()
		// The fallback target replaces the local container, so the failed
		// one is torn down.
		e.removeContainer(ctx, name, handle)
		e.logger.Warn("service failed, fallback applied",
			"service", name, "fallback", fb.Name, "reason", reason)
		e.emitService(feed, active, state, total, fb.Name, fb.Message)
		return
	}

	active.update(func(*domain.Run) { state.Message = reason })
	e.transitionService(active, state, domain.ServiceUnhealthy)
	servicesSettled.WithLabelValues(string(domain.ServiceUnhealthy)).Inc()
	e.emitService(feed, active, state, total, "", reason)

	if ps.Spec.Required {
		e.logger.Error("required service failed", "service", name, "reason", reason)
		active.failf("required service %s failed: %s", name, reason)
		stageCancel()
		return
	}

	active.update(func(r *domain.Run) {
		r.Warnings = append(r.Warnings, fmt.Sprintf("optional service %s is unhealthy: %s", name, reason))
	})
	e.logger.Warn("optional service failed, continuing", "service", name, "reason", reason)
}

// finish settles leftover services, records the terminal status and
// persists the run. Terminal writes use a fresh context so a cancelled run
// still lands in the store.
func (e *Engine) finish(ctx context.Context, active *activeRun, feed *Feed, desired []string, total int, logger *slog.Logger) {
	var skipped []*domain.ServiceState
	active.update(func(r *domain.Run) {
		for _, s := range r.Services {
			if !s.Status.Settled() {
				if err := s.Transition(domain.ServiceSkipped); err == nil {
					servicesSettled.WithLabelValues(string(domain.ServiceSkipped)).Inc()
					skipped = append(skipped, s)
				}
			}
		}
	})
	for _, s := range skipped {
		e.emitService(feed, active, s, total, "", monitoring.ServiceEventMessage(s.Name, domain.ServiceSkipped))
	}

	saveCtx, cancel := context.WithTimeout(context.Background(), terminalWriteTimeout)
	defer cancel()

	failMsg, failed := active.failed()
	switch {
	case failed:
		active.update(func(r *domain.Run) {
			if err := r.Fail(failMsg); err != nil {
				logger.Error("failed to mark run failed", "error", err)
			}
		})
		feed.Append(domain.Event{
			Kind:     domain.EventRunFailed,
			Progress: e.progress(active, total),
			Message:  failMsg,
		})
		runsTotal.WithLabelValues(string(domain.RunFailed)).Inc()
		logger.Error("run failed", "error", failMsg)

	case ctx.Err() != nil:
		active.update(func(r *domain.Run) {
			if err := r.Transition(domain.RunCancelled); err != nil {
				logger.Error("failed to mark run cancelled", "error", err)
			}
		})
		feed.Append(domain.Event{
			Kind:     domain.EventRunCancelled,
			Progress: e.progress(active, total),
			Message:  "Run cancelled; healthy services stay up",
		})
		runsTotal.WithLabelValues(string(domain.RunCancelled)).Inc()
		logger.Info("run cancelled")

	default:
		var newState domain.InstallState
		active.update(func(r *domain.Run) {
			newState = domain.InstallState{Profiles: desired, Values: r.Values}
		})
		if err := e.checkpoints.Commit(saveCtx, newState); err != nil {
			// Services are up but the next resolution would not know it;
			// surface that as a failed run so undo is offered.
			msg := fmt.Sprintf("services started but committing the install state failed: %v", err)
			active.update(func(r *domain.Run) {
				if err := r.Fail(msg); err != nil {
					logger.Error("failed to mark run failed", "error", err)
				}
			})
			feed.Append(domain.Event{Kind: domain.EventRunFailed, Message: msg})
			runsTotal.WithLabelValues(string(domain.RunFailed)).Inc()
			logger.Error("failed to commit install state", "error", err)
			break
		}
		var summary string
		active.update(func(r *domain.Run) {
			if err := r.Transition(domain.RunCompleted); err != nil {
				logger.Error("failed to mark run completed", "error", err)
			}
			summary = monitoring.RunSummaryMessage(r.Services)
		})
		feed.Append(domain.Event{
			Kind:     domain.EventRunCompleted,
			Progress: 1,
			Message:  summary,
		})
		runsTotal.WithLabelValues(string(domain.RunCompleted)).Inc()
		logger.Info("run completed", "summary", summary)
	}

	e.persist(saveCtx, active, logger)
}

// persist writes the run's current snapshot to the store.
func (e *Engine) persist(ctx context.Context, active *activeRun, logger *slog.Logger) {
	if err := e.store.UpdateRun(ctx, active.snapshot()); err != nil {
		logger.Error("failed to persist run", "error", err)
	}
}

// =============================================================================
// Restore Convergence
// =============================================================================

// converge reconciles the host to the target state: sweep departed
// services, then stage the target's services with the usual health gate.
// Unlike a run there is no event feed, no fallback handling and no stored
// record; a required service that cannot become healthy fails the whole
// restore.
func (e *Engine) converge(ctx context.Context, target domain.InstallState) error {
	res := resolve.Materialize(e.catalog, target.Profiles)
	pl, err := plan.Build(res)
	if err != nil {
		return err
	}
	if skipped := missingProfiles(e.catalog, target.Profiles); len(skipped) > 0 {
		e.logger.Warn("restored state names unknown profiles, skipping their services", "profiles", skipped)
	}
	e.logger.Info("converging to restored state", "profiles", target.Profiles, "services", len(res.Services))

	keep := make(map[string]bool, len(res.Services))
	for _, s := range res.Services {
		keep[s.Spec.Name] = true
	}
	for _, warning := range e.reconcile(ctx, target.Profiles, keep) {
		e.logger.Warn("reconcile warning", "warning", warning)
	}

	if len(res.Services) == 0 {
		return ctx.Err()
	}
	if err := e.driver.EnsureNetwork(ctx, e.cfg.Network); err != nil {
		return fmt.Errorf("create network %s: %w", e.cfg.Network, err)
	}

	for _, stage := range pl.Stages {
		if err := e.convergeStage(ctx, stage, target.Values); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// convergeStage is the restore counterpart of runStage: same pool, same
// health gate, but failures of required services surface as errors.
func (e *Engine) convergeStage(ctx context.Context, stage domain.Stage, values map[string]string) error {
	stageCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var mu sync.Mutex
	var firstErr error
	fail := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
			cancel()
		}
		mu.Unlock()
	}

	sem := make(chan struct{}, e.cfg.MaxConcurrent)
	var wg sync.WaitGroup
	for _, svc := range stage.Services {
		wg.Add(1)
		go func(ps domain.PlannedService) {
			defer wg.Done()
			select {
			case <-stageCtx.Done():
				return
			case sem <- struct{}{}:
			}
			defer func() { <-sem }()

			handle, err := e.ensureContainer(stageCtx, ps, values)
			if err != nil {
				if stageCtx.Err() != nil {
					return
				}
				if ps.Spec.Required {
					fail(fmt.Errorf("restore %s: %w", ps.Spec.Name, err))
				} else {
					e.logger.Warn("optional service failed during restore", "service", ps.Spec.Name, "error", err)
				}
				return
			}

			outcome, reason := e.awaitHealthy(stageCtx, ps.Spec.Name, handle, nil)
			if outcome == settleFailed {
				if ps.Spec.Required {
					fail(fmt.Errorf("restore %s: %s", ps.Spec.Name, reason))
				} else {
					e.logger.Warn("optional service unhealthy after restore", "service", ps.Spec.Name, "reason", reason)
				}
			}
		}(svc)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

// =============================================================================
// Shared Container Plumbing
// =============================================================================

// reconcile stops and removes managed containers that neither carry a
// desired service name nor belong to a desired profile. Shared services
// survive as long as any desired profile still declares them; containers
// of profiles the catalog no longer knows survive through the profile
// label.
func (e *Engine) reconcile(ctx context.Context, desiredProfiles []string, keepServices map[string]bool) []string {
	services, err := e.driver.ListServices(ctx)
	if err != nil {
		return []string{fmt.Sprintf("reconcile skipped: %v", err)}
	}

	desired := make(map[string]bool, len(desiredProfiles))
	for _, id := range desiredProfiles {
		desired[id] = true
	}

	var warnings []string
	for _, svc := range services {
		name := svc.Labels[runtime.LabelService]
		owner := svc.Labels[runtime.LabelProfile]
		if keepServices[name] || desired[owner] {
			continue
		}
		e.logger.Info("removing service outside the desired set", "service", name, "profile", owner)
		stopTimeout := e.cfg.StopTimeout
		if err := e.driver.StopService(ctx, svc.Handle, &stopTimeout); err != nil && !errors.Is(err, runtime.ErrContainerNotRunning) {
			warnings = append(warnings, fmt.Sprintf("stop %s: %v", name, err))
		}
		if err := e.driver.RemoveService(ctx, svc.Handle, true); err != nil && !errors.Is(err, runtime.ErrContainerNotFound) {
			warnings = append(warnings, fmt.Sprintf("remove %s: %v", name, err))
		}
	}
	return warnings
}

// ensureContainer makes the service's container exist and run, adopting a
// leftover container under the same name when one is already there.
func (e *Engine) ensureContainer(ctx context.Context, ps domain.PlannedService, values map[string]string) (string, error) {
	if err := e.ensureImage(ctx, ps.Spec.Image); err != nil {
		return "", err
	}

	name := containerName(ps.Spec.Name)
	info, err := e.driver.InspectService(ctx, name)
	if err == nil {
		if info.State != "running" {
			if err := e.driver.StartService(ctx, info.Handle); err != nil && !errors.Is(err, runtime.ErrContainerAlreadyRunning) {
				return "", err
			}
		}
		e.logger.Debug("adopted existing container", "service", ps.Spec.Name, "handle", shortID(info.Handle))
		return info.Handle, nil
	}
	if !errors.Is(err, runtime.ErrContainerNotFound) {
		return "", err
	}

	spec := e.containerSpec(ps, values)
	handle, err := e.driver.CreateService(ctx, spec)
	if errors.Is(err, runtime.ErrContainerAlreadyExists) {
		// Lost a race with a leftover under the same name; replace it.
		_ = e.driver.RemoveService(ctx, name, true)
		handle, err = e.driver.CreateService(ctx, spec)
	}
	if err != nil {
		return "", err
	}

	if err := e.driver.StartService(ctx, handle); err != nil && !errors.Is(err, runtime.ErrContainerAlreadyRunning) {
		_ = e.driver.RemoveService(ctx, handle, true)
		return "", err
	}
	return handle, nil
}

// ensureImage pulls the image unless the daemon already has it. A pull
// failure for an image that might still be cached is logged and create
// gets to decide; a definitive not-found is fatal.
func (e *Engine) ensureImage(ctx context.Context, image string) error {
	exists, err := e.driver.ImageExists(ctx, image)
	if err == nil && exists {
		return nil
	}
	if err != nil {
		e.logger.Debug("image inspection failed, pulling", "image", image, "error", err)
	}
	if err := e.driver.PullImage(ctx, image); err != nil {
		if errors.Is(err, runtime.ErrImageNotFound) {
			return err
		}
		e.logger.Warn("image pull failed, trying to create anyway", "image", image, "error", err)
	}
	return nil
}

// containerSpec maps a planned service onto a runtime container spec,
// substituting configuration values into the environment.
func (e *Engine) containerSpec(ps domain.PlannedService, values map[string]string) runtime.ContainerSpec {
	env := make(map[string]string, len(ps.Spec.Env))
	for k, v := range ps.Spec.Env {
		env[k] = plan.SubstituteValues(v, values)
	}

	labels := map[string]string{
		runtime.LabelManaged: "true",
		runtime.LabelProfile: ps.Profile,
		runtime.LabelService: ps.Spec.Name,
	}
	if len(ps.SharedWith) > 0 {
		labels[runtime.LabelShared] = strings.Join(ps.SharedWith, ",")
	}

	ports := make([]runtime.PortBinding, 0, len(ps.Spec.Ports))
	for _, p := range ps.Spec.Ports {
		ports = append(ports, runtime.PortBinding{
			ContainerPort: p.ContainerPort,
			HostPort:      p.HostPort,
			Protocol:      p.Protocol,
		})
	}

	var health *runtime.HealthCheck
	if len(ps.Spec.Health.Test) > 0 {
		health = &runtime.HealthCheck{
			Test:     ps.Spec.Health.Test,
			Interval: ps.Spec.Health.Interval,
			Timeout:  ps.Spec.Health.Timeout,
			Retries:  ps.Spec.Health.Retries,
		}
	}

	return runtime.ContainerSpec{
		Name:          containerName(ps.Spec.Name),
		Image:         ps.Spec.Image,
		Env:           env,
		Labels:        labels,
		Ports:         ports,
		Network:       e.cfg.Network,
		Aliases:       []string{ps.Spec.Name},
		RestartPolicy: "unless-stopped",
		CPUCores:      ps.Spec.Resources.CPUCores,
		MemoryGB:      ps.Spec.Resources.MemoryGB,
		HealthCheck:   health,
	}
}

// awaitHealthy polls the container with exponential backoff until it is
// healthy, definitively unhealthy, the deadline passes or the context is
// cancelled. The runtime health check does its own retries, so a reported
// unhealthy is final here. onPoll, when set, is called once per
// inspection.
func (e *Engine) awaitHealthy(ctx context.Context, service, handle string, onPoll func()) (settleOutcome, string) {
	deadline := time.Now().Add(e.cfg.HealthTimeout)
	delay := e.cfg.PollBase

	for {
		if ctx.Err() != nil {
			return settleCancelled, ""
		}

		info, err := e.driver.InspectService(ctx, handle)
		healthPolls.Inc()
		if onPoll != nil {
			onPoll()
		}

		if err != nil {
			if errors.Is(err, runtime.ErrContainerNotFound) {
				return settleFailed, "container disappeared while waiting for health"
			}
			if ctx.Err() != nil {
				return settleCancelled, ""
			}
			e.logger.Debug("health inspection failed", "service", service, "error", err)
		} else {
			switch monitoring.InterpretContainer(info.State, info.Health, info.Restarts) {
			case domain.ServiceHealthy:
				return settleHealthy, ""
			case domain.ServiceUnhealthy:
				return settleFailed, unhealthyReason(info)
			}
			// still starting, keep polling
		}

		if time.Now().After(deadline) {
			return settleFailed, fmt.Sprintf("not healthy after %s", e.cfg.HealthTimeout)
		}
		select {
		case <-ctx.Done():
			return settleCancelled, ""
		case <-time.After(delay):
		}
		delay *= 2
		if delay > e.cfg.PollCap {
			delay = e.cfg.PollCap
		}
	}
}

// removeContainer tears a container down, best effort.
func (e *Engine) removeContainer(ctx context.Context, service, handle string) {
	if handle == "" {
		return
	}
	stopTimeout := e.cfg.StopTimeout
	if err := e.driver.StopService(ctx, handle, &stopTimeout); err != nil && !errors.Is(err, runtime.ErrContainerNotRunning) {
		e.logger.Debug("failed to stop container", "service", service, "error", err)
	}
	if err := e.driver.RemoveService(ctx, handle, true); err != nil && !errors.Is(err, runtime.ErrContainerNotFound) {
		e.logger.Warn("failed to remove container", "service", service, "error", err)
	}
}

// =============================================================================
// Event Helpers
// =============================================================================

// transitionService moves a service's status under the run lock.
func (e *Engine) transitionService(active *activeRun, state *domain.ServiceState, to domain.ServiceStatus) {
	active.update(func(*domain.Run) {
		if err := state.Transition(to); err != nil {
			e.logger.Warn("invalid service transition",
				"service", state.Name, "from", state.Status, "to", to)
		}
	})
}

// emitService publishes a service-status-changed event with current
// progress.
func (e *Engine) emitService(feed *Feed, active *activeRun, state *domain.ServiceState, total int, fallback, message string) {
	var ev domain.Event
	active.update(func(r *domain.Run) {
		ev = domain.Event{
			Kind:     domain.EventServiceChanged,
			Stage:    state.Stage,
			Service:  state.Name,
			Status:   state.Status,
			Fallback: fallback,
			Message:  message,
			Progress: progressLocked(r, total),
		}
	})
	feed.Append(ev)
}

// progress returns the settled fraction of the plan.
func (e *Engine) progress(active *activeRun, total int) float64 {
	var p float64
	active.update(func(r *domain.Run) { p = progressLocked(r, total) })
	return p
}

func progressLocked(r *domain.Run, total int) float64 {
	if total == 0 {
		return 1
	}
	settled := 0
	for _, s := range r.Services {
		if s.Status.Settled() {
			settled++
		}
	}
	return float64(settled) / float64(total)
}

// =============================================================================
// Small Helpers
// =============================================================================

func unhealthyReason(info *runtime.ServiceInfo) string {
	if info.State != "running" {
		if info.ExitCode != 0 {
			return fmt.Sprintf("container %s with exit code %d", info.State, info.ExitCode)
		}
		return "container is " + info.State
	}
	if info.Health == "" && info.Restarts > 0 {
		return fmt.Sprintf("container restarted %d times", info.Restarts)
	}
	return "container failed its health check"
}

func missingProfiles(cat resolve.Catalog, ids []string) []string {
	var missing []string
	for _, id := range ids {
		if !cat.Has(id) {
			missing = append(missing, id)
		}
	}
	return missing
}

func containerName(service string) string {
	return "drydock-" + service
}
