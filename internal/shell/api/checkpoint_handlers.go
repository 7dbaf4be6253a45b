package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/artpar/drydock/internal/core/domain"
)

// =============================================================================
// Checkpoint Handlers
// =============================================================================

func (h *Handler) handleListCheckpoints(w http.ResponseWriter, r *http.Request) {
	opts := listOptions(r)
	checkpoints, err := h.checkpoints.List(r.Context(), opts)
	if err != nil {
		h.internalError(w, "list checkpoints", err)
		return
	}
	total, err := h.checkpoints.Count(r.Context())
	if err != nil {
		h.internalError(w, "count checkpoints", err)
		return
	}

	resp := ListCheckpointsResponse{
		Checkpoints: make([]CheckpointResponse, 0, len(checkpoints)),
		Total:       total,
		Limit:       opts.Limit,
		Offset:      opts.Offset,
	}
	for i := range checkpoints {
		resp.Checkpoints = append(resp.Checkpoints, checkpointToResponse(&checkpoints[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// handleCreateCheckpoint snapshots the committed state under a label,
// without touching containers.
func (h *Handler) handleCreateCheckpoint(w http.ResponseWriter, r *http.Request) {
	var req CreateCheckpointRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "invalid_request")
		return
	}

	cp, err := h.checkpoints.Create(r.Context(), req.Description)
	if err != nil {
		h.internalError(w, "create checkpoint", err)
		return
	}

	h.logger.Info("checkpoint created", "checkpoint_id", cp.ID)
	h.writeJSON(w, http.StatusCreated, checkpointToResponse(cp))
}

func (h *Handler) handleGetCheckpoint(w http.ResponseWriter, r *http.Request) {
	cp, err := h.checkpoints.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, checkpointToResponse(cp))
}

// handleRestoreCheckpoint converges the host back onto a checkpoint's
// state. The cursor only moves once convergence succeeds.
func (h *Handler) handleRestoreCheckpoint(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cp, err := h.checkpoints.Restore(r.Context(), id, func(state domain.InstallState) error {
		return h.engine.Converge(r.Context(), state)
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.logger.Info("checkpoint restored", "checkpoint_id", cp.ID)
	h.writeJSON(w, http.StatusOK, RestoreResponse{Restored: checkpointToResponse(cp)})
}

// handleUndo steps back to the most recent checkpoint before the cursor.
func (h *Handler) handleUndo(w http.ResponseWriter, r *http.Request) {
	cp, err := h.checkpoints.UndoLast(r.Context(), func(state domain.InstallState) error {
		return h.engine.Converge(r.Context(), state)
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.logger.Info("undo applied", "checkpoint_id", cp.ID)
	h.writeJSON(w, http.StatusOK, RestoreResponse{Restored: checkpointToResponse(cp)})
}

func (h *Handler) handlePruneCheckpoints(w http.ResponseWriter, r *http.Request) {
	var req PruneCheckpointsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "invalid_request")
		return
	}

	removed, err := h.checkpoints.Prune(r.Context(), req.Keep)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if removed == nil {
		removed = []string{}
	}

	h.logger.Info("checkpoints pruned", "kept", req.Keep, "removed", len(removed))
	h.writeJSON(w, http.StatusOK, PruneCheckpointsResponse{Removed: removed, Count: len(removed)})
}
