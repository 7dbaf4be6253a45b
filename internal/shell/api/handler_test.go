package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/artpar/drydock/internal/core/catalog"
	"github.com/artpar/drydock/internal/core/domain"
	"github.com/artpar/drydock/internal/shell/checkpoint"
	"github.com/artpar/drydock/internal/shell/engine"
	"github.com/artpar/drydock/internal/shell/probe"
	"github.com/artpar/drydock/internal/shell/runtime"
	"github.com/artpar/drydock/internal/shell/store"
)

// =============================================================================
// Test Helpers
// =============================================================================

func setupTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// stubDriver implements runtime.Driver. Containers report running with no
// health probe, so services settle healthy on the first poll.
type stubDriver struct {
	mu         sync.Mutex
	containers map[string]*runtime.ServiceInfo // keyed by name
	nextHandle int
	pingErr    error
}

func newStubDriver() *stubDriver {
	return &stubDriver{containers: make(map[string]*runtime.ServiceInfo)}
}

func (d *stubDriver) EnsureNetwork(ctx context.Context, name string) error { return nil }

func (d *stubDriver) PullImage(ctx context.Context, image string) error { return nil }

func (d *stubDriver) ImageExists(ctx context.Context, image string) (bool, error) {
	return true, nil
}

func (d *stubDriver) CreateService(ctx context.Context, spec runtime.ContainerSpec) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, exists := d.containers[spec.Name]; exists {
		return "", runtime.ErrContainerAlreadyExists
	}
	d.nextHandle++
	info := &runtime.ServiceInfo{
		Handle: fmt.Sprintf("stub-%04d", d.nextHandle),
		Name:   spec.Name,
		Image:  spec.Image,
		State:  "created",
		Labels: spec.Labels,
	}
	d.containers[spec.Name] = info
	return info.Handle, nil
}

func (d *stubDriver) StartService(ctx context.Context, handle string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c := d.find(handle); c != nil {
		c.State = "running"
	}
	return nil
}

func (d *stubDriver) StopService(ctx context.Context, handle string, timeout *time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c := d.find(handle); c != nil {
		c.State = "exited"
	}
	return nil
}

func (d *stubDriver) RemoveService(ctx context.Context, handle string, force bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for name, c := range d.containers {
		if c.Handle == handle || name == handle {
			delete(d.containers, name)
			return nil
		}
	}
	return runtime.ErrContainerNotFound
}

func (d *stubDriver) InspectService(ctx context.Context, handle string) (*runtime.ServiceInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.find(handle)
	if c == nil {
		return nil, runtime.ErrContainerNotFound
	}
	copied := *c
	return &copied, nil
}

func (d *stubDriver) ListServices(ctx context.Context) ([]runtime.ServiceInfo, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]runtime.ServiceInfo, 0, len(d.containers))
	for _, c := range d.containers {
		out = append(out, *c)
	}
	return out, nil
}

func (d *stubDriver) Ping(ctx context.Context) error { return d.pingErr }

func (d *stubDriver) Close() error { return nil }

func (d *stubDriver) find(handleOrName string) *runtime.ServiceInfo {
	if c, ok := d.containers[handleOrName]; ok {
		return c
	}
	for _, c := range d.containers {
		if c.Handle == handleOrName {
			return c
		}
	}
	return nil
}

func (d *stubDriver) serviceNames() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	names := make([]string, 0, len(d.containers))
	for name := range d.containers {
		names = append(names, name)
	}
	return names
}

// apiProfiles builds a catalog exercising every validation failure mode.
func apiProfiles() []domain.Profile {
	small := domain.Resources{CPUCores: 0.5, MemoryGB: 0.5, DiskGB: 1}
	return []domain.Profile{
		{
			ID: "pg", Name: "PostgreSQL", Category: "storage",
			Services: []domain.ServiceSpec{
				{Name: "pgd", Image: "postgres:16", Tier: domain.TierFoundation, Required: true, Resources: small},
			},
		},
		{
			ID: "maria", Name: "MariaDB", Category: "storage",
			Conflicts: []string{"pg"},
			Services: []domain.ServiceSpec{
				{Name: "mariad", Image: "mariadb:11", Tier: domain.TierFoundation, Required: true, Resources: small},
			},
		},
		{
			ID: "web", Name: "Web App", Category: "apps",
			Requires: []string{"pg"},
			Services: []domain.ServiceSpec{
				{Name: "webd", Image: "example/web:1.2", Tier: domain.TierService, Required: true, Resources: small},
			},
		},
		{
			ID: "dashboards", Name: "Dashboards", Category: "ops",
			RequiresAny: []string{"pg", "maria"},
			Services: []domain.ServiceSpec{
				{Name: "dashd", Image: "example/dash:3", Tier: domain.TierEdge, Resources: small},
			},
		},
		{
			ID: "loop-a", Name: "Loop A", Category: "ops",
			Requires: []string{"loop-b"},
			Services: []domain.ServiceSpec{
				{Name: "loop-ad", Image: "example/loop:1", Tier: domain.TierService, Resources: small},
			},
		},
		{
			ID: "loop-b", Name: "Loop B", Category: "ops",
			Requires: []string{"loop-a"},
			Services: []domain.ServiceSpec{
				{Name: "loop-bd", Image: "example/loop:1", Tier: domain.TierService, Resources: small},
			},
		},
	}
}

// newTestAPI wires a handler against an in-memory store and stub runtime.
func newTestAPI(t *testing.T) (http.Handler, *stubDriver) {
	t.Helper()

	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	reg, err := catalog.NewRegistry(apiProfiles())
	require.NoError(t, err)

	logger := setupTestLogger()
	manager := checkpoint.NewManager(st, nil, logger)
	prober := probe.NewStaticProbe(domain.Resources{CPUCores: 8, MemoryGB: 32, DiskGB: 200})
	driver := newStubDriver()

	cfg := engine.Config{
		MaxConcurrent: 4,
		HealthTimeout: 250 * time.Millisecond,
		PollBase:      time.Millisecond,
		PollCap:       5 * time.Millisecond,
		StopTimeout:   time.Second,
		Network:       "drydock-test",
		FeedCapacity:  256,
	}
	eng := engine.New(reg, driver, st, manager, prober, cfg, logger)
	t.Cleanup(func() { _ = eng.Close(context.Background()) })

	h := NewHandler(reg, eng, manager, prober, driver, logger, "test")
	return h.Routes(), driver
}

// jsonBody encodes a value to JSON and returns a reader.
func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	buf := new(bytes.Buffer)
	require.NoError(t, json.NewEncoder(buf).Encode(v))
	return buf
}

// parseResponse parses a JSON response body into the given type.
func parseResponse[T any](t *testing.T, body io.Reader) T {
	t.Helper()
	var result T
	require.NoError(t, json.NewDecoder(body).Decode(&result))
	return result
}

// startRun posts a run request and returns the accepted run.
func startRun(t *testing.T, router http.Handler, profiles []string, values map[string]string) RunResponse {
	t.Helper()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs", jsonBody(t, StartRunRequest{Profiles: profiles, Values: values}))
	router.ServeHTTP(w, req)
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	return parseResponse[RunResponse](t, w.Body)
}

// waitForRun polls the run endpoint until the run settles.
func waitForRun(t *testing.T, router http.Handler, id string) RunResponse {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+id, nil))
		require.Equal(t, http.StatusOK, w.Code)
		run := parseResponse[RunResponse](t, w.Body)
		switch domain.RunStatus(run.Status) {
		case domain.RunCompleted, domain.RunFailed, domain.RunCancelled, domain.RunRolledBack:
			return run
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("run %s never settled", id)
	return RunResponse{}
}

// postEventually retries a POST while the engine still holds the run slot.
func postEventually(t *testing.T, router http.Handler, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var w *httptest.ResponseRecorder
	require.Eventually(t, func() bool {
		var buf *bytes.Buffer
		if body != nil {
			buf = jsonBody(t, body)
		} else {
			buf = new(bytes.Buffer)
		}
		w = httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, path, buf))
		if w.Code == http.StatusConflict {
			resp := parseResponse[ErrorResponse](t, bytes.NewReader(w.Body.Bytes()))
			return resp.Code != "run_in_progress"
		}
		return true
	}, 5*time.Second, 5*time.Millisecond)
	return w
}

// =============================================================================
// Health Endpoint Tests
// =============================================================================

func TestHealth_Success(t *testing.T) {
	router, _ := newTestAPI(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	resp := parseResponse[HealthResponse](t, w.Body)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "test", resp.Version)
}

func TestReady_AllHealthy(t *testing.T) {
	router, _ := newTestAPI(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	resp := parseResponse[ReadyResponse](t, w.Body)
	assert.Equal(t, "ready", resp.Status)
	assert.Equal(t, "ok", resp.Checks["store"])
	assert.Equal(t, "ok", resp.Checks["runtime"])
}

func TestReady_RuntimeFailed(t *testing.T) {
	router, driver := newTestAPI(t)
	driver.pingErr = runtime.ErrConnectionFailed

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	resp := parseResponse[ReadyResponse](t, w.Body)
	assert.Equal(t, "not_ready", resp.Status)
	assert.Equal(t, "ok", resp.Checks["store"])
	assert.Equal(t, "failed", resp.Checks["runtime"])
}

// =============================================================================
// Catalog Endpoint Tests
// =============================================================================

func TestListProfiles_All(t *testing.T) {
	router, _ := newTestAPI(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/profiles", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	resp := parseResponse[ListProfilesResponse](t, w.Body)
	assert.Equal(t, 6, resp.Total)
	assert.Equal(t, []string{"apps", "ops", "storage"}, resp.Categories)

	var pg ProfileResponse
	for _, p := range resp.Profiles {
		if p.ID == "pg" {
			pg = p
		}
	}
	require.Equal(t, "pg", pg.ID)
	assert.Equal(t, "PostgreSQL", pg.Name)
	require.Len(t, pg.Services, 1)
	assert.Equal(t, "postgres:16", pg.Services[0].Image)
	assert.InDelta(t, 0.5, pg.Footprint.CPUCores, 1e-9)
}

func TestListProfiles_FilterByCategory(t *testing.T) {
	router, _ := newTestAPI(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/profiles?category=storage", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	resp := parseResponse[ListProfilesResponse](t, w.Body)
	assert.Equal(t, 2, resp.Total)
	for _, p := range resp.Profiles {
		assert.Equal(t, "storage", p.Category)
	}
}

// =============================================================================
// Validation Endpoint Tests
// =============================================================================

func TestValidate_ExpandsDependencies(t *testing.T) {
	router, _ := newTestAPI(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/validate", jsonBody(t, ValidateRequest{Profiles: []string{"web"}})))

	assert.Equal(t, http.StatusOK, w.Code)

	resp := parseResponse[ValidateResponse](t, w.Body)
	assert.True(t, resp.Valid)
	assert.Equal(t, []string{"pg", "web"}, resp.Profiles)
	require.Len(t, resp.Services, 2)
	assert.InDelta(t, 1.0, resp.Footprint.CPUCores, 1e-9)
}

func TestValidate_UnknownProfile(t *testing.T) {
	router, _ := newTestAPI(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/validate", jsonBody(t, ValidateRequest{Profiles: []string{"nope"}})))

	assert.Equal(t, http.StatusNotFound, w.Code)

	resp := parseResponse[ErrorResponse](t, w.Body)
	assert.Equal(t, "unknown_profile", resp.Code)
	assert.Equal(t, "nope", resp.Details["profile"])
}

func TestValidate_EmptySelection(t *testing.T) {
	router, _ := newTestAPI(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/validate", jsonBody(t, ValidateRequest{})))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	resp := parseResponse[ErrorResponse](t, w.Body)
	assert.Equal(t, "empty_selection", resp.Code)
}

func TestValidate_Conflict(t *testing.T) {
	router, _ := newTestAPI(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/validate", jsonBody(t, ValidateRequest{Profiles: []string{"pg", "maria"}})))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	resp := parseResponse[ErrorResponse](t, w.Body)
	assert.Equal(t, "profile_conflict", resp.Code)
	assert.Contains(t, []any{"pg", "maria"}, resp.Details["profile_a"])
	assert.Contains(t, []any{"pg", "maria"}, resp.Details["profile_b"])
}

func TestValidate_CircularDependency(t *testing.T) {
	router, _ := newTestAPI(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/validate", jsonBody(t, ValidateRequest{Profiles: []string{"loop-a"}})))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	resp := parseResponse[ErrorResponse](t, w.Body)
	assert.Equal(t, "circular_dependency", resp.Code)
	assert.NotEmpty(t, resp.Details["path"])
}

func TestValidate_PrerequisiteNotMet(t *testing.T) {
	router, _ := newTestAPI(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/validate", jsonBody(t, ValidateRequest{Profiles: []string{"dashboards"}})))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	resp := parseResponse[ErrorResponse](t, w.Body)
	assert.Equal(t, "prerequisite_not_met", resp.Code)
	assert.Equal(t, "dashboards", resp.Details["profile"])
	assert.ElementsMatch(t, []any{"pg", "maria"}, resp.Details["alternatives"])
}

func TestValidate_PrerequisiteMetByInstalled(t *testing.T) {
	router, _ := newTestAPI(t)

	run := startRun(t, router, []string{"pg"}, nil)
	waitForRun(t, router, run.ID)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/validate", jsonBody(t, ValidateRequest{Profiles: []string{"dashboards"}})))
	assert.Equal(t, http.StatusOK, w.Code, w.Body.String())

	resp := parseResponse[ValidateResponse](t, w.Body)
	assert.Equal(t, []string{"dashboards"}, resp.Profiles)
}

func TestValidate_InvalidJSON(t *testing.T) {
	router, _ := newTestAPI(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/validate", strings.NewReader("not json")))

	assert.Equal(t, http.StatusBadRequest, w.Code)

	resp := parseResponse[ErrorResponse](t, w.Body)
	assert.Equal(t, "invalid_request", resp.Code)
}

// =============================================================================
// Planning Endpoint Tests
// =============================================================================

func TestPlan_StagesFollowDependencyOrder(t *testing.T) {
	router, _ := newTestAPI(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/plan", jsonBody(t, PlanRequest{Profiles: []string{"web"}})))

	assert.Equal(t, http.StatusOK, w.Code)

	resp := parseResponse[PlanResponse](t, w.Body)
	assert.Equal(t, []string{"pg", "web"}, resp.Profiles)
	require.Len(t, resp.Stages, 2)
	assert.Equal(t, 1, resp.Stages[0].Index)
	require.Len(t, resp.Stages[0].Services, 1)
	assert.Equal(t, "pgd", resp.Stages[0].Services[0].Name)
	require.Len(t, resp.Stages[1].Services, 1)
	assert.Equal(t, "webd", resp.Stages[1].Services[0].Name)

	assert.True(t, resp.Capacity.Fits)
	assert.True(t, resp.Capacity.Probed)
	assert.InDelta(t, 8, resp.Capacity.Host.CPUCores, 1e-9)
}

func TestPlanDescriptor_ExportsYAML(t *testing.T) {
	router, _ := newTestAPI(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/plan/descriptor?profiles=web", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/yaml", w.Header().Get("Content-Type"))

	body := w.Body.String()
	assert.Contains(t, body, "services:")
	assert.Contains(t, body, "pgd")
	assert.Contains(t, body, "postgres:16")
}

func TestPlanDescriptor_UnknownProfile(t *testing.T) {
	router, _ := newTestAPI(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/plan/descriptor?profiles=ghost", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCapacity_EmptyState(t *testing.T) {
	router, _ := newTestAPI(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/capacity", nil))

	assert.Equal(t, http.StatusOK, w.Code)

	resp := parseResponse[CapacityResponse](t, w.Body)
	assert.True(t, resp.Fits)
	assert.True(t, resp.Probed)
	assert.InDelta(t, 0, resp.Footprint.CPUCores, 1e-9)
	assert.Empty(t, resp.Warnings)
}

// =============================================================================
// Run Endpoint Tests
// =============================================================================

func TestStartRun_CompletesAndRedactsValues(t *testing.T) {
	router, driver := newTestAPI(t)

	accepted := startRun(t, router, []string{"web"}, map[string]string{
		"db.password": "hunter2",
		"region":      "eu-west",
	})
	assert.Equal(t, []string{"pg", "web"}, accepted.Profiles)
	assert.Equal(t, "[redacted]", accepted.Values["db.password"])
	assert.Equal(t, "eu-west", accepted.Values["region"])

	run := waitForRun(t, router, accepted.ID)
	assert.Equal(t, string(domain.RunCompleted), run.Status)
	assert.Equal(t, 2, run.TotalServices)
	assert.Equal(t, "[redacted]", run.Values["db.password"])
	assert.ElementsMatch(t, []string{"drydock-pgd", "drydock-webd"}, driver.serviceNames())
}

func TestStartRun_UnknownProfile(t *testing.T) {
	router, _ := newTestAPI(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/runs", jsonBody(t, StartRunRequest{Profiles: []string{"ghost"}})))

	assert.Equal(t, http.StatusNotFound, w.Code)

	resp := parseResponse[ErrorResponse](t, w.Body)
	assert.Equal(t, "unknown_profile", resp.Code)
}

func TestListRuns_NewestFirst(t *testing.T) {
	router, _ := newTestAPI(t)

	first := startRun(t, router, []string{"pg"}, nil)
	waitForRun(t, router, first.ID)

	w := postEventually(t, router, "/api/v1/runs", StartRunRequest{Profiles: []string{"web"}})
	require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	second := parseResponse[RunResponse](t, w.Body)
	waitForRun(t, router, second.ID)

	require.Eventually(t, func() bool {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs?limit=10", nil))
		if w.Code != http.StatusOK {
			return false
		}
		resp := parseResponse[ListRunsResponse](t, w.Body)
		return len(resp.Runs) == 2 && resp.Runs[0].ID == second.ID && resp.Runs[1].ID == first.ID
	}, 5*time.Second, 5*time.Millisecond)
}

func TestGetRun_NotFound(t *testing.T) {
	router, _ := newTestAPI(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs/missing", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)

	resp := parseResponse[ErrorResponse](t, w.Body)
	assert.Equal(t, "run_not_found", resp.Code)
}

func TestRunEvents_TailWithCursor(t *testing.T) {
	router, _ := newTestAPI(t)

	accepted := startRun(t, router, []string{"pg"}, nil)
	waitForRun(t, router, accepted.ID)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+accepted.ID+"/events", nil))
	require.Equal(t, http.StatusOK, w.Code)

	resp := parseResponse[EventsResponse](t, w.Body)
	require.NotEmpty(t, resp.Events)
	assert.Equal(t, "run-started", resp.Events[0].Kind)
	assert.Equal(t, "run-completed", resp.Events[len(resp.Events)-1].Kind)
	assert.Equal(t, resp.Events[len(resp.Events)-1].Seq, resp.LastSeq)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/runs/%s/events?after=%d", accepted.ID, resp.LastSeq), nil))
	require.Equal(t, http.StatusOK, w.Code)
	tail := parseResponse[EventsResponse](t, w.Body)
	assert.Empty(t, tail.Events)
	assert.Equal(t, resp.LastSeq, tail.LastSeq)
}

func TestRunEvents_BadCursor(t *testing.T) {
	router, _ := newTestAPI(t)

	accepted := startRun(t, router, []string{"pg"}, nil)
	waitForRun(t, router, accepted.ID)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+accepted.ID+"/events?after=abc", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCancelRun_NotFound(t *testing.T) {
	router, _ := newTestAPI(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/runs/missing/cancel", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)

	resp := parseResponse[ErrorResponse](t, w.Body)
	assert.Equal(t, "run_not_found", resp.Code)
}

// =============================================================================
// Checkpoint Endpoint Tests
// =============================================================================

func TestCheckpoints_CreateListGet(t *testing.T) {
	router, _ := newTestAPI(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/checkpoints", jsonBody(t, CreateCheckpointRequest{Description: "before maintenance"})))
	require.Equal(t, http.StatusCreated, w.Code)
	created := parseResponse[CheckpointResponse](t, w.Body)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "before maintenance", created.Description)
	assert.Empty(t, created.Profiles)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/checkpoints", nil))
	require.Equal(t, http.StatusOK, w.Code)
	listed := parseResponse[ListCheckpointsResponse](t, w.Body)
	assert.Equal(t, 1, listed.Total)
	require.Len(t, listed.Checkpoints, 1)
	assert.Equal(t, created.ID, listed.Checkpoints[0].ID)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/checkpoints/"+created.ID, nil))
	require.Equal(t, http.StatusOK, w.Code)
	got := parseResponse[CheckpointResponse](t, w.Body)
	assert.Equal(t, created.ID, got.ID)
}

func TestGetCheckpoint_NotFound(t *testing.T) {
	router, _ := newTestAPI(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/checkpoints/missing", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)

	resp := parseResponse[ErrorResponse](t, w.Body)
	assert.Equal(t, "checkpoint_not_found", resp.Code)
}

func TestRestoreCheckpoint_ConvergesHost(t *testing.T) {
	router, driver := newTestAPI(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/checkpoints", jsonBody(t, CreateCheckpointRequest{Description: "clean slate"})))
	require.Equal(t, http.StatusCreated, w.Code)
	clean := parseResponse[CheckpointResponse](t, w.Body)

	run := startRun(t, router, []string{"pg"}, nil)
	waitForRun(t, router, run.ID)
	require.NotEmpty(t, driver.serviceNames())

	w = postEventually(t, router, "/api/v1/checkpoints/"+clean.ID+"/restore", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	restored := parseResponse[RestoreResponse](t, w.Body)
	assert.Equal(t, clean.ID, restored.Restored.ID)
	assert.Empty(t, restored.Restored.Profiles)
	assert.Empty(t, driver.serviceNames())
}

func TestUndo_WithoutHistory(t *testing.T) {
	router, _ := newTestAPI(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/undo", nil))

	assert.Equal(t, http.StatusConflict, w.Code)

	resp := parseResponse[ErrorResponse](t, w.Body)
	assert.Equal(t, "no_checkpoint", resp.Code)
}

func TestUndo_RevertsLastRun(t *testing.T) {
	router, driver := newTestAPI(t)

	run := startRun(t, router, []string{"pg"}, nil)
	waitForRun(t, router, run.ID)
	require.NotEmpty(t, driver.serviceNames())

	w := postEventually(t, router, "/api/v1/undo", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	restored := parseResponse[RestoreResponse](t, w.Body)
	assert.Empty(t, restored.Restored.Profiles)
	assert.Empty(t, driver.serviceNames())
}

func TestPruneCheckpoints_KeepsNewest(t *testing.T) {
	router, _ := newTestAPI(t)

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/checkpoints", jsonBody(t, CreateCheckpointRequest{Description: fmt.Sprintf("snap %d", i)})))
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/checkpoints/prune", jsonBody(t, PruneCheckpointsRequest{Keep: 1})))
	require.Equal(t, http.StatusOK, w.Code)

	pruned := parseResponse[PruneCheckpointsResponse](t, w.Body)
	assert.Equal(t, 2, pruned.Count)
	assert.Len(t, pruned.Removed, 2)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/checkpoints", nil))
	require.Equal(t, http.StatusOK, w.Code)
	listed := parseResponse[ListCheckpointsResponse](t, w.Body)
	assert.Equal(t, 1, listed.Total)
}

func TestPruneCheckpoints_NegativeRetention(t *testing.T) {
	router, _ := newTestAPI(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/checkpoints/prune", jsonBody(t, PruneCheckpointsRequest{Keep: -1})))

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	resp := parseResponse[ErrorResponse](t, w.Body)
	assert.Equal(t, "invalid_retention", resp.Code)
}

// =============================================================================
// Document Endpoint Tests
// =============================================================================

func TestOpenAPIDocument_MatchesRoutes(t *testing.T) {
	router, _ := newTestAPI(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/openapi.json", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var doc struct {
		OpenAPI string                    `json:"openapi"`
		Paths   map[string]map[string]any `json:"paths"`
		Components struct {
			Schemas map[string]any `json:"schemas"`
		} `json:"components"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&doc))

	assert.Equal(t, "3.0.3", doc.OpenAPI)
	assert.Contains(t, doc.Paths, "/api/v1/runs")
	assert.Contains(t, doc.Paths, "/api/v1/checkpoints/{id}/restore")
	assert.Contains(t, doc.Paths["/api/v1/validate"], "post")
	assert.Contains(t, doc.Components.Schemas, "RunResponse")
	assert.Contains(t, doc.Components.Schemas, "ErrorResponse")
}

func TestMetricsEndpoint(t *testing.T) {
	router, _ := newTestAPI(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Body.String())
}
