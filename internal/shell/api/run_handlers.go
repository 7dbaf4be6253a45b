package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/artpar/drydock/internal/core/domain"
)

// =============================================================================
// Run Handlers
// =============================================================================

// handleStartRun starts an installation run for the selected profiles.
// The run executes asynchronously; the response carries its initial state.
func (h *Handler) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req StartRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON", "invalid_request")
		return
	}

	run, err := h.engine.StartRun(r.Context(), req.Profiles, req.Values)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.logger.Info("run started", "run_id", run.ID, "profiles", run.Profiles)
	h.writeJSON(w, http.StatusAccepted, runToResponse(run))
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	opts := listOptions(r)
	runs, err := h.engine.ListRuns(r.Context(), opts)
	if err != nil {
		h.internalError(w, "list runs", err)
		return
	}

	resp := ListRunsResponse{
		Runs:   make([]RunResponse, 0, len(runs)),
		Total:  len(runs),
		Limit:  opts.Limit,
		Offset: opts.Offset,
	}
	for i := range runs {
		resp.Runs = append(resp.Runs, runToResponse(&runs[i]))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.engine.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, runToResponse(run))
}

// handleRunEvents returns the buffered progress feed after an optional
// cursor. Clients poll with ?after=<last_seq> to tail a run.
func (h *Handler) handleRunEvents(w http.ResponseWriter, r *http.Request) {
	var after uint64
	if raw := r.URL.Query().Get("after"); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "after must be a non-negative integer", "invalid_request")
			return
		}
		after = parsed
	}

	events, err := h.engine.Events(r.Context(), chi.URLParam(r, "id"), after)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := EventsResponse{Events: make([]EventResponse, 0, len(events)), LastSeq: after}
	for _, ev := range events {
		resp.Events = append(resp.Events, eventToResponse(ev))
		if ev.Seq > resp.LastSeq {
			resp.LastSeq = ev.Seq
		}
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.engine.Cancel(r.Context(), id); err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.logger.Info("run cancellation requested", "run_id", id)
	h.writeJSON(w, http.StatusAccepted, CancelRunResponse{RunID: id, Status: "cancelling"})
}

// =============================================================================
// Run Streaming
// =============================================================================

var streamUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleRunStream upgrades to a websocket and pushes the run's events as
// they happen. Buffered events are replayed first, then live ones; the
// connection closes once the run reaches a terminal state.
func (h *Handler) handleRunStream(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// Subscribe before replaying so no event falls between the two.
	live, unsubscribe, err := h.engine.Subscribe(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	defer unsubscribe()

	replay, err := h.engine.Events(r.Context(), id, 0)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	ws, err := streamUpgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "run_id", id, "error", err)
		return
	}
	defer ws.Close()

	// Drain client frames so pings are answered and disconnects surface.
	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	var seen uint64
	send := func(ev domain.Event) bool {
		if ev.Seq <= seen {
			return true
		}
		seen = ev.Seq
		if err := ws.WriteJSON(eventToResponse(ev)); err != nil {
			h.logger.Warn("failed to write stream event", "run_id", id, "error", err)
			return false
		}
		return true
	}

	for _, ev := range replay {
		if !send(ev) {
			return
		}
	}

	for {
		select {
		case <-disconnected:
			return
		case ev, ok := <-live:
			if !ok {
				// Feed closed: the run is terminal and everything was sent.
				msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "run finished")
				_ = ws.WriteMessage(websocket.CloseMessage, msg)
				return
			}
			if !send(ev) {
				return
			}
		}
	}
}
