// Package api provides the HTTP surface of the drydock daemon.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/artpar/drydock/internal/core/capacity"
	"github.com/artpar/drydock/internal/core/catalog"
	"github.com/artpar/drydock/internal/core/domain"
	"github.com/artpar/drydock/internal/core/plan"
	"github.com/artpar/drydock/internal/core/resolve"
	"github.com/artpar/drydock/internal/core/secret"
	"github.com/artpar/drydock/internal/shell/checkpoint"
	"github.com/artpar/drydock/internal/shell/engine"
	"github.com/artpar/drydock/internal/shell/probe"
	"github.com/artpar/drydock/internal/shell/runtime"
	"github.com/artpar/drydock/internal/shell/store"
)

// =============================================================================
// Handler
// =============================================================================

// Handler provides HTTP handlers for the API. Validation, planning and
// capacity checks call the core packages directly; only runs and restores
// go through the engine.
type Handler struct {
	catalog     *catalog.Registry
	engine      *engine.Engine
	checkpoints *checkpoint.Manager
	prober      probe.Prober
	driver      runtime.Driver
	logger      *slog.Logger
	version     string
}

// NewHandler creates a new API handler.
func NewHandler(cat *catalog.Registry, eng *engine.Engine, cps *checkpoint.Manager, prober probe.Prober, driver runtime.Driver, logger *slog.Logger, version string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if version == "" {
		version = "dev"
	}
	return &Handler{
		catalog:     cat,
		engine:      eng,
		checkpoints: cps,
		prober:      prober,
		driver:      driver,
		logger:      logger.With("component", "api"),
		version:     version,
	}
}

// Routes returns the router with all routes configured.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(h.requestLogger)
	r.Use(h.requestIDHeader)

	// Operational endpoints
	r.Get("/health", h.handleHealth)
	r.Get("/ready", h.handleReady)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/openapi.json", newOpenAPIGenerator(h.version).Handler())

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Catalog and planning
		r.Get("/profiles", h.handleListProfiles)
		r.Post("/validate", h.handleValidate)
		r.Post("/plan", h.handlePlan)
		r.Get("/plan/descriptor", h.handleDescriptor)
		r.Get("/capacity", h.handleCapacity)

		// Run routes
		r.Route("/runs", func(r chi.Router) {
			r.Post("/", h.handleStartRun)
			r.Get("/", h.handleListRuns)
			r.Get("/{id}", h.handleGetRun)
			r.Get("/{id}/events", h.handleRunEvents)
			r.Get("/{id}/stream", h.handleRunStream)
			r.Post("/{id}/cancel", h.handleCancelRun)
		})

		// Checkpoint routes
		r.Route("/checkpoints", func(r chi.Router) {
			r.Post("/", h.handleCreateCheckpoint)
			r.Get("/", h.handleListCheckpoints)
			r.Get("/{id}", h.handleGetCheckpoint)
			r.Post("/{id}/restore", h.handleRestoreCheckpoint)
			r.Post("/prune", h.handlePruneCheckpoints)
		})
		r.Post("/undo", h.handleUndo)
	})

	return r
}

// =============================================================================
// Middleware
// =============================================================================

// requestLogger logs one line per request.
func (h *Handler) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// requestIDHeader copies the request ID to the response header.
func (h *Handler) requestIDHeader(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if reqID := middleware.GetReqID(r.Context()); reqID != "" {
			w.Header().Set("X-Request-ID", reqID)
		}
		next.ServeHTTP(w, r)
	})
}

// =============================================================================
// Health Handlers
// =============================================================================

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy", Version: h.version})
}

func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)
	ready := true

	if _, err := h.checkpoints.Current(r.Context()); err != nil {
		checks["store"] = "failed"
		ready = false
	} else {
		checks["store"] = "ok"
	}

	if err := h.driver.Ping(r.Context()); err != nil {
		checks["runtime"] = "failed"
		ready = false
	} else {
		checks["runtime"] = "ok"
	}

	if !ready {
		h.writeJSON(w, http.StatusServiceUnavailable, ReadyResponse{Status: "not_ready", Checks: checks})
		return
	}
	h.writeJSON(w, http.StatusOK, ReadyResponse{Status: "ready", Checks: checks})
}

// =============================================================================
// Catalog Handlers
// =============================================================================

func (h *Handler) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	var profiles []domain.Profile
	if cat := r.URL.Query().Get("category"); cat != "" {
		profiles = h.catalog.ByCategory(cat)
	} else {
		profiles = h.catalog.All()
	}

	resp := ListProfilesResponse{
		Profiles:   make([]ProfileResponse, 0, len(profiles)),
		Categories: h.catalog.Categories(),
		Total:      len(profiles),
	}
	for _, p := range profiles {
		resp.Profiles = append(resp.Profiles, profileToResponse(p))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// Validation and Planning Handlers
// =============================================================================

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "invalid_request")
		return
	}

	current, err := h.checkpoints.Current(r.Context())
	if err != nil {
		h.internalError(w, "load current state", err)
		return
	}

	res, err := resolve.Resolve(h.catalog, req.Profiles, current.Profiles)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := ValidateResponse{
		Valid:     true,
		Profiles:  res.ProfileIDs(),
		Services:  make([]ResolvedServiceResponse, 0, len(res.Services)),
		Footprint: resourcesToResponse(capacity.Aggregate(res)),
	}
	for _, s := range res.Services {
		resp.Services = append(resp.Services, ResolvedServiceResponse{
			Name:   s.Spec.Name,
			Image:  s.Spec.Image,
			Owners: s.Owners(),
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handlePlan(w http.ResponseWriter, r *http.Request) {
	var req PlanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "invalid_request")
		return
	}

	current, err := h.checkpoints.Current(r.Context())
	if err != nil {
		h.internalError(w, "load current state", err)
		return
	}

	res, err := resolve.Resolve(h.catalog, req.Profiles, current.Profiles)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	pl, err := plan.Build(res)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, planToResponse(pl, h.capacityReport(r.Context(), res)))
}

func (h *Handler) handleDescriptor(w http.ResponseWriter, r *http.Request) {
	current, err := h.checkpoints.Current(r.Context())
	if err != nil {
		h.internalError(w, "load current state", err)
		return
	}
	ids := splitCSV(r.URL.Query().Get("profiles"))
	if len(ids) == 0 {
		ids = current.Profiles
	}

	res, err := resolve.Resolve(h.catalog, ids, current.Profiles)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	// Values stay as ${key} placeholders so the export never carries
	// secrets; compose interpolates them from the operator's environment.
	project, err := plan.Descriptor(res, nil)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	data, err := plan.MarshalDescriptor(project)
	if err != nil {
		h.internalError(w, "marshal descriptor", err)
		return
	}

	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (h *Handler) handleCapacity(w http.ResponseWriter, r *http.Request) {
	current, err := h.checkpoints.Current(r.Context())
	if err != nil {
		h.internalError(w, "load current state", err)
		return
	}

	res := resolve.Materialize(h.catalog, current.Profiles)
	h.writeJSON(w, http.StatusOK, reportToResponse(h.capacityReport(r.Context(), res)))
}

// capacityReport probes the host and compares it with the resolution's
// footprint. A failed probe degrades to an unprobed report.
func (h *Handler) capacityReport(ctx context.Context, res *domain.Resolution) *domain.CapacityReport {
	host, err := h.prober.Probe(ctx)
	if err != nil {
		h.logger.Warn("host capacity probe failed", "error", err)
		host = domain.Resources{}
	}
	return capacity.Estimate(res, host)
}

// =============================================================================
// Error Mapping
// =============================================================================

// writeDomainError maps typed core and shell errors onto HTTP statuses
// with a stable error code plus the structured details a client needs.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var (
		unknownErr *catalog.UnknownProfileError
		cycleErr   *resolve.CircularDependencyError
		conflict   *resolve.ConflictError
		prereq     *resolve.PrerequisiteError
		notFound   *checkpoint.NotFoundError
	)

	switch {
	case errors.As(err, &unknownErr):
		h.writeErrorDetails(w, http.StatusNotFound, err.Error(), "unknown_profile",
			map[string]any{"profile": unknownErr.ID})
	case errors.Is(err, catalog.ErrUnknownProfile):
		h.writeError(w, http.StatusNotFound, err.Error(), "unknown_profile")
	case errors.Is(err, domain.ErrEmptySelection):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error(), "empty_selection")
	case errors.As(err, &cycleErr):
		h.writeErrorDetails(w, http.StatusUnprocessableEntity, err.Error(), "circular_dependency",
			map[string]any{"path": cycleErr.Path})
	case errors.As(err, &conflict):
		h.writeErrorDetails(w, http.StatusUnprocessableEntity, err.Error(), "profile_conflict",
			map[string]any{"profile_a": conflict.ProfileA, "profile_b": conflict.ProfileB, "installed": conflict.Installed})
	case errors.As(err, &prereq):
		h.writeErrorDetails(w, http.StatusUnprocessableEntity, err.Error(), "prerequisite_not_met",
			map[string]any{"profile": prereq.Profile, "alternatives": prereq.Alternatives})
	case errors.Is(err, engine.ErrRunInProgress):
		h.writeError(w, http.StatusConflict, err.Error(), "run_in_progress")
	case errors.Is(err, engine.ErrRunNotFound):
		h.writeError(w, http.StatusNotFound, err.Error(), "run_not_found")
	case errors.Is(err, engine.ErrRunNotActive):
		h.writeError(w, http.StatusConflict, err.Error(), "run_not_active")
	case errors.Is(err, checkpoint.ErrNoCheckpoint):
		h.writeError(w, http.StatusConflict, err.Error(), "no_checkpoint")
	case errors.Is(err, checkpoint.ErrInvalidRetention):
		h.writeError(w, http.StatusUnprocessableEntity, err.Error(), "invalid_retention")
	case errors.As(err, &notFound), errors.Is(err, store.ErrNotFound):
		h.writeError(w, http.StatusNotFound, err.Error(), "checkpoint_not_found")
	case errors.Is(err, plan.ErrUnplaceableService):
		// Catalog invariant violation, not a user error.
		h.internalError(w, "plan", err)
	default:
		h.internalError(w, "request", err)
	}
}

func (h *Handler) internalError(w http.ResponseWriter, op string, err error) {
	h.logger.Error("failed to handle "+op, "error", err)
	h.writeError(w, http.StatusInternalServerError, "internal error", "internal_error")
}

// =============================================================================
// Helpers
// =============================================================================

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode JSON", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message, code string) {
	h.writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

func (h *Handler) writeErrorDetails(w http.ResponseWriter, status int, message, code string, details map[string]any) {
	h.writeJSON(w, status, ErrorResponse{Error: message, Code: code, Details: details})
}

func listOptions(r *http.Request) store.ListOptions {
	opts := store.DefaultListOptions()
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if l, err := strconv.Atoi(limit); err == nil && l > 0 {
			opts.Limit = l
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if o, err := strconv.Atoi(offset); err == nil && o >= 0 {
			opts.Offset = o
		}
	}
	return opts
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// redactValues masks sensitive configuration values for responses.
func redactValues(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		if secret.IsSensitiveKey(k) || secret.IsSealed(v) {
			out[k] = "[redacted]"
		} else {
			out[k] = v
		}
	}
	return out
}

// =============================================================================
// Response Mapping
// =============================================================================

func resourcesToResponse(r domain.Resources) ResourcesResponse {
	return ResourcesResponse{CPUCores: r.CPUCores, MemoryGB: r.MemoryGB, DiskGB: r.DiskGB}
}

func profileToResponse(p domain.Profile) ProfileResponse {
	resp := ProfileResponse{
		ID:          p.ID,
		Name:        p.Name,
		Category:    p.Category,
		Description: p.Description,
		Services:    make([]ServiceSpecResponse, 0, len(p.Services)),
		Requires:    p.Requires,
		RequiresAny: p.RequiresAny,
		Conflicts:   p.Conflicts,
	}
	var footprint domain.Resources
	for _, s := range p.Services {
		footprint = footprint.Add(s.Resources)
		resp.Services = append(resp.Services, ServiceSpecResponse{
			Name:      s.Name,
			Image:     s.Image,
			Tier:      s.Tier,
			Required:  s.Required,
			Resources: resourcesToResponse(s.Resources),
		})
	}
	resp.Footprint = resourcesToResponse(footprint)
	if p.Fallback != nil {
		resp.Fallback = &FallbackResponse{
			Name:      p.Fallback.Name,
			Message:   p.Fallback.Message,
			ConfigKey: p.Fallback.ConfigKey,
			Target:    p.Fallback.Target,
		}
	}
	return resp
}

func reportToResponse(report *domain.CapacityReport) CapacityResponse {
	resp := CapacityResponse{
		Footprint: resourcesToResponse(report.Footprint),
		Host:      resourcesToResponse(report.Host),
		Fits:      report.Fits,
		Probed:    report.Probed,
		Warnings:  report.Warnings,
	}
	if resp.Warnings == nil {
		resp.Warnings = []string{}
	}
	return resp
}

func planToResponse(pl *domain.Plan, report *domain.CapacityReport) PlanResponse {
	resp := PlanResponse{
		Profiles: pl.Profiles,
		Stages:   make([]StageResponse, 0, len(pl.Stages)),
		Capacity: reportToResponse(report),
	}
	for _, stage := range pl.Stages {
		sr := StageResponse{Index: stage.Index, Services: make([]PlannedServiceResponse, 0, len(stage.Services))}
		for _, svc := range stage.Services {
			sr.Services = append(sr.Services, PlannedServiceResponse{
				Name:       svc.Spec.Name,
				Image:      svc.Spec.Image,
				Profile:    svc.Profile,
				SharedWith: svc.SharedWith,
				Tier:       svc.Spec.Tier,
				Required:   svc.Spec.Required,
			})
		}
		resp.Stages = append(resp.Stages, sr)
	}
	return resp
}

func runToResponse(run *domain.Run) RunResponse {
	resp := RunResponse{
		ID:           run.ID,
		Profiles:     run.Profiles,
		Status:       string(run.Status),
		Values:       redactValues(run.Values),
		Services:     make([]ServiceStateResponse, 0, len(run.Services)),
		Warnings:     run.Warnings,
		ErrorMessage: run.ErrorMessage,
		CheckpointID: run.CheckpointID,
		CreatedAt:    run.CreatedAt,
		StartedAt:    run.StartedAt,
		FinishedAt:   run.FinishedAt,
	}
	if run.Plan != nil {
		resp.Stages = len(run.Plan.Stages)
		resp.TotalServices = run.Plan.TotalServices()
	}
	for _, s := range run.Services {
		resp.Services = append(resp.Services, ServiceStateResponse{
			Name:       s.Name,
			Profile:    s.Profile,
			SharedWith: s.SharedWith,
			Stage:      s.Stage,
			Status:     string(s.Status),
			Handle:     s.Handle,
			Attempts:   s.Attempts,
			Message:    s.Message,
			UpdatedAt:  s.UpdatedAt,
		})
	}
	for _, fb := range run.FallbacksApplied {
		resp.FallbacksApplied = append(resp.FallbacksApplied, AppliedFallbackResponse{
			Profile:  fb.Profile,
			Service:  fb.Service,
			Fallback: fb.Fallback,
			Message:  fb.Message,
			At:       fb.At,
		})
	}
	return resp
}

func checkpointToResponse(cp *domain.Checkpoint) CheckpointResponse {
	profiles := cp.State.Profiles
	if profiles == nil {
		profiles = []string{}
	}
	return CheckpointResponse{
		ID:          cp.ID,
		Description: cp.Description,
		Profiles:    profiles,
		Values:      redactValues(cp.State.Values),
		CreatedAt:   cp.CreatedAt,
	}
}

func eventToResponse(ev domain.Event) EventResponse {
	return EventResponse{
		Seq:      ev.Seq,
		RunID:    ev.RunID,
		Kind:     string(ev.Kind),
		Stage:    ev.Stage,
		Service:  ev.Service,
		Status:   string(ev.Status),
		Fallback: ev.Fallback,
		Message:  ev.Message,
		Progress: ev.Progress,
		At:       ev.At,
	}
}
