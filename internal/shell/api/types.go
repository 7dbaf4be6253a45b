package api

import "time"

// =============================================================================
// Request Types
// =============================================================================

// ValidateRequest is the request body for validating a profile selection.
type ValidateRequest struct {
	Profiles []string `json:"profiles"`
}

// PlanRequest is the request body for planning a profile selection.
type PlanRequest struct {
	Profiles []string `json:"profiles"`
}

// StartRunRequest is the request body for starting an installation run.
type StartRunRequest struct {
	Profiles []string          `json:"profiles"`
	Values   map[string]string `json:"values,omitempty"`
}

// CreateCheckpointRequest is the request body for creating a checkpoint.
type CreateCheckpointRequest struct {
	Description string `json:"description,omitempty"`
}

// PruneCheckpointsRequest is the request body for pruning checkpoints.
type PruneCheckpointsRequest struct {
	Keep int `json:"keep"`
}

// =============================================================================
// Response Types
// =============================================================================

// ResourcesResponse represents a resource footprint or host capacity.
type ResourcesResponse struct {
	CPUCores float64 `json:"cpu_cores"`
	MemoryGB float64 `json:"memory_gb"`
	DiskGB   float64 `json:"disk_gb"`
}

// ServiceSpecResponse represents a service declared by a profile.
type ServiceSpecResponse struct {
	Name      string            `json:"name"`
	Image     string            `json:"image"`
	Tier      int               `json:"tier"`
	Required  bool              `json:"required"`
	Resources ResourcesResponse `json:"resources"`
}

// FallbackResponse represents a profile's degraded-mode strategy.
type FallbackResponse struct {
	Name      string `json:"name"`
	Message   string `json:"message"`
	ConfigKey string `json:"config_key"`
	Target    string `json:"target"`
}

// ProfileResponse is the response for catalog profile operations.
type ProfileResponse struct {
	ID          string                `json:"id"`
	Name        string                `json:"name"`
	Category    string                `json:"category"`
	Description string                `json:"description,omitempty"`
	Services    []ServiceSpecResponse `json:"services"`
	Requires    []string              `json:"requires,omitempty"`
	RequiresAny []string              `json:"requires_any,omitempty"`
	Conflicts   []string              `json:"conflicts,omitempty"`
	Fallback    *FallbackResponse     `json:"fallback,omitempty"`
	Footprint   ResourcesResponse     `json:"footprint"`
}

// ListProfilesResponse is the response for listing catalog profiles.
type ListProfilesResponse struct {
	Profiles   []ProfileResponse `json:"profiles"`
	Categories []string          `json:"categories"`
	Total      int               `json:"total"`
}

// ResolvedServiceResponse represents one deduplicated service of a
// resolution.
type ResolvedServiceResponse struct {
	Name   string   `json:"name"`
	Image  string   `json:"image"`
	Owners []string `json:"owners"`
}

// ValidateResponse is the response for a successful validation.
type ValidateResponse struct {
	Valid     bool                      `json:"valid"`
	Profiles  []string                  `json:"profiles"`
	Services  []ResolvedServiceResponse `json:"services"`
	Footprint ResourcesResponse         `json:"footprint"`
}

// CapacityResponse reports the planned footprint against host capacity.
type CapacityResponse struct {
	Footprint ResourcesResponse `json:"footprint"`
	Host      ResourcesResponse `json:"host"`
	Fits      bool              `json:"fits"`
	Probed    bool              `json:"probed"`
	Warnings  []string          `json:"warnings"`
}

// PlannedServiceResponse represents one service placed in a stage.
type PlannedServiceResponse struct {
	Name       string   `json:"name"`
	Image      string   `json:"image"`
	Profile    string   `json:"profile"`
	SharedWith []string `json:"shared_with,omitempty"`
	Tier       int      `json:"tier"`
	Required   bool     `json:"required"`
}

// StageResponse represents one stage of an installation plan.
type StageResponse struct {
	Index    int                      `json:"index"`
	Services []PlannedServiceResponse `json:"services"`
}

// PlanResponse is the response for plan operations.
type PlanResponse struct {
	Profiles []string         `json:"profiles"`
	Stages   []StageResponse  `json:"stages"`
	Capacity CapacityResponse `json:"capacity"`
}

// ServiceStateResponse represents a service's status within a run.
type ServiceStateResponse struct {
	Name       string    `json:"name"`
	Profile    string    `json:"profile"`
	SharedWith []string  `json:"shared_with,omitempty"`
	Stage      int       `json:"stage"`
	Status     string    `json:"status"`
	Handle     string    `json:"handle,omitempty"`
	Attempts   int       `json:"attempts"`
	Message    string    `json:"message,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// AppliedFallbackResponse records a fallback applied during a run.
type AppliedFallbackResponse struct {
	Profile  string    `json:"profile"`
	Service  string    `json:"service"`
	Fallback string    `json:"fallback"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

// RunResponse is the response for run operations. Sensitive configuration
// values are redacted.
type RunResponse struct {
	ID               string                    `json:"id"`
	Profiles         []string                  `json:"profiles"`
	Status           string                    `json:"status"`
	Values           map[string]string         `json:"values,omitempty"`
	Stages           int                       `json:"stages"`
	TotalServices    int                       `json:"total_services"`
	Services         []ServiceStateResponse    `json:"services"`
	FallbacksApplied []AppliedFallbackResponse `json:"fallbacks_applied,omitempty"`
	Warnings         []string                  `json:"warnings,omitempty"`
	ErrorMessage     string                    `json:"error_message,omitempty"`
	CheckpointID     string                    `json:"checkpoint_id,omitempty"`
	CreatedAt        time.Time                 `json:"created_at"`
	StartedAt        *time.Time                `json:"started_at,omitempty"`
	FinishedAt       *time.Time                `json:"finished_at,omitempty"`
}

// ListRunsResponse is the response for listing run history.
type ListRunsResponse struct {
	Runs   []RunResponse `json:"runs"`
	Total  int           `json:"total"`
	Limit  int           `json:"limit"`
	Offset int           `json:"offset"`
}

// CancelRunResponse acknowledges a cancellation request.
type CancelRunResponse struct {
	RunID  string `json:"run_id"`
	Status string `json:"status"`
}

// EventResponse is one entry of a run's ordered progress feed.
type EventResponse struct {
	Seq      uint64    `json:"seq"`
	RunID    string    `json:"run_id"`
	Kind     string    `json:"kind"`
	Stage    int       `json:"stage,omitempty"`
	Service  string    `json:"service,omitempty"`
	Status   string    `json:"status,omitempty"`
	Fallback string    `json:"fallback,omitempty"`
	Message  string    `json:"message,omitempty"`
	Progress float64   `json:"progress"`
	At       time.Time `json:"at"`
}

// EventsResponse is the response for polling a run's event feed.
type EventsResponse struct {
	Events  []EventResponse `json:"events"`
	LastSeq uint64          `json:"last_seq"`
}

// CheckpointResponse is the response for checkpoint operations. Sensitive
// configuration values are redacted.
type CheckpointResponse struct {
	ID          string            `json:"id"`
	Description string            `json:"description"`
	Profiles    []string          `json:"profiles"`
	Values      map[string]string `json:"values,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
}

// ListCheckpointsResponse is the response for listing checkpoints.
type ListCheckpointsResponse struct {
	Checkpoints []CheckpointResponse `json:"checkpoints"`
	Total       int                  `json:"total"`
	Limit       int                  `json:"limit"`
	Offset      int                  `json:"offset"`
}

// RestoreResponse is the response for restore and undo operations.
type RestoreResponse struct {
	Restored CheckpointResponse `json:"restored"`
}

// PruneCheckpointsResponse lists the checkpoints removed by a prune.
type PruneCheckpointsResponse struct {
	Removed []string `json:"removed"`
	Count   int      `json:"count"`
}

// ErrorResponse is the error response format. Code is a stable error kind;
// Details carries the structured fields of typed validation errors.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

// HealthResponse is the health check response.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// ReadyResponse is the readiness check response.
type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}
