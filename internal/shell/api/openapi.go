package api

import (
	"net/http"

	"github.com/artpar/drydock/internal/shell/api/openapi"
)

// newOpenAPIGenerator registers every endpoint the router exposes so the
// served document matches the handlers.
func newOpenAPIGenerator(version string) *openapi.Generator {
	gen := openapi.NewGenerator(
		openapi.WithTitle("Drydock API"),
		openapi.WithVersion(version),
		openapi.WithDescription("Profile dependency resolution and staged installation API"),
		openapi.WithServer("/"),
		openapi.WithErrorModel(ErrorResponse{}),
	)

	gen.Register(openapi.Endpoint{
		Method: http.MethodGet, Path: "/health",
		OperationID: "getHealth", Summary: "Liveness check", Tag: "Operations",
		Response: HealthResponse{},
	})
	gen.Register(openapi.Endpoint{
		Method: http.MethodGet, Path: "/ready",
		OperationID: "getReadiness", Summary: "Readiness check", Tag: "Operations",
		Response: ReadyResponse{},
	})

	gen.Register(openapi.Endpoint{
		Method: http.MethodGet, Path: "/api/v1/profiles",
		OperationID: "listProfiles", Summary: "List catalog profiles", Tag: "Catalog",
		Response: ListProfilesResponse{},
		Query: []openapi.Param{
			{Name: "category", Description: "Only return profiles in this category"},
		},
	})
	gen.Register(openapi.Endpoint{
		Method: http.MethodPost, Path: "/api/v1/validate",
		OperationID: "validateSelection", Summary: "Validate a profile selection", Tag: "Planning",
		Request: ValidateRequest{}, Response: ValidateResponse{},
	})
	gen.Register(openapi.Endpoint{
		Method: http.MethodPost, Path: "/api/v1/plan",
		OperationID: "planSelection", Summary: "Compute the staged installation plan", Tag: "Planning",
		Request: PlanRequest{}, Response: PlanResponse{},
	})
	gen.Register(openapi.Endpoint{
		Method: http.MethodGet, Path: "/api/v1/plan/descriptor",
		OperationID: "exportDescriptor", Summary: "Export the selection as a compose descriptor", Tag: "Planning",
		ContentType: "application/yaml",
		Query: []openapi.Param{
			{Name: "profiles", Description: "Comma-separated profile IDs, defaults to the installed set"},
		},
	})
	gen.Register(openapi.Endpoint{
		Method: http.MethodGet, Path: "/api/v1/capacity",
		OperationID: "getCapacity", Summary: "Compare the installed footprint with host capacity", Tag: "Planning",
		Response: CapacityResponse{},
	})

	gen.Register(openapi.Endpoint{
		Method: http.MethodPost, Path: "/api/v1/runs",
		OperationID: "startRun", Summary: "Start an installation run", Tag: "Runs",
		Request: StartRunRequest{}, Response: RunResponse{}, Status: http.StatusAccepted,
	})
	gen.Register(openapi.Endpoint{
		Method: http.MethodGet, Path: "/api/v1/runs",
		OperationID: "listRuns", Summary: "List runs, newest first", Tag: "Runs",
		Response: ListRunsResponse{},
		Query: []openapi.Param{
			{Name: "limit", Integer: true, Description: "Page size"},
			{Name: "offset", Integer: true, Description: "Page offset"},
		},
	})
	gen.Register(openapi.Endpoint{
		Method: http.MethodGet, Path: "/api/v1/runs/{id}",
		OperationID: "getRun", Summary: "Get a run", Tag: "Runs",
		Response: RunResponse{},
	})
	gen.Register(openapi.Endpoint{
		Method: http.MethodGet, Path: "/api/v1/runs/{id}/events",
		OperationID: "getRunEvents", Summary: "Read the run's progress feed", Tag: "Runs",
		Response: EventsResponse{},
		Query: []openapi.Param{
			{Name: "after", Integer: true, Description: "Return only events with a higher sequence number"},
		},
	})
	gen.Register(openapi.Endpoint{
		Method: http.MethodPost, Path: "/api/v1/runs/{id}/cancel",
		OperationID: "cancelRun", Summary: "Cancel an active run", Tag: "Runs",
		Response: CancelRunResponse{}, Status: http.StatusAccepted,
	})

	gen.Register(openapi.Endpoint{
		Method: http.MethodPost, Path: "/api/v1/checkpoints",
		OperationID: "createCheckpoint", Summary: "Snapshot the committed state", Tag: "Checkpoints",
		Request: CreateCheckpointRequest{}, Response: CheckpointResponse{}, Status: http.StatusCreated,
	})
	gen.Register(openapi.Endpoint{
		Method: http.MethodGet, Path: "/api/v1/checkpoints",
		OperationID: "listCheckpoints", Summary: "List checkpoints, newest first", Tag: "Checkpoints",
		Response: ListCheckpointsResponse{},
		Query: []openapi.Param{
			{Name: "limit", Integer: true, Description: "Page size"},
			{Name: "offset", Integer: true, Description: "Page offset"},
		},
	})
	gen.Register(openapi.Endpoint{
		Method: http.MethodGet, Path: "/api/v1/checkpoints/{id}",
		OperationID: "getCheckpoint", Summary: "Get a checkpoint", Tag: "Checkpoints",
		Response: CheckpointResponse{},
	})
	gen.Register(openapi.Endpoint{
		Method: http.MethodPost, Path: "/api/v1/checkpoints/{id}/restore",
		OperationID: "restoreCheckpoint", Summary: "Converge the host onto a checkpoint", Tag: "Checkpoints",
		Response: RestoreResponse{},
	})
	gen.Register(openapi.Endpoint{
		Method: http.MethodPost, Path: "/api/v1/checkpoints/prune",
		OperationID: "pruneCheckpoints", Summary: "Delete old checkpoints beyond a retention count", Tag: "Checkpoints",
		Request: PruneCheckpointsRequest{}, Response: PruneCheckpointsResponse{},
	})
	gen.Register(openapi.Endpoint{
		Method: http.MethodPost, Path: "/api/v1/undo",
		OperationID: "undoLastChange", Summary: "Step back to the previous checkpoint", Tag: "Checkpoints",
		Response: RestoreResponse{},
	})

	return gen
}
