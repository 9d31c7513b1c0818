// HTTP handlers - webhook ingestion and the hook CRUD surface.
//
// DESIGN: Error mapping is the contract here: store failures surface
// with precise statuses (400 validation/scope, 404 not found, 500
// persistence), while webhook ingestion returns 200 with a best-effort
// summary even when every matched hook failed - the upstream forwarder
// must never be blocked by a misbehaving hook.
package gateway

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/hookmux/hook-gateway/internal/hooks"
	"github.com/hookmux/hook-gateway/internal/monitoring"
	"github.com/hookmux/hook-gateway/internal/sandbox"
	"github.com/hookmux/hook-gateway/internal/sink"
)

// handleWebhook ingests one event and dispatches every matched hook.
func (g *Gateway) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		g.writeError(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	summary, err := g.dispatcher.HandleEvent(r.Context(), body)
	if err != nil {
		// Normalization is the only failure mode here; hook failures
		// live inside the summary.
		g.writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	g.metrics.RecordDispatch()
	for _, res := range summary.Results {
		g.metrics.RecordHookRun(res.Success, res.Error == sandbox.TimeoutMessage)
	}

	log.Info().
		Str("request_id", monitoring.RequestIDFromContext(r.Context())).
		Str("event_id", summary.EventID).
		Str("event_type", summary.EventType).
		Int("matched", summary.MatchedCount).
		Msg("webhook dispatched")

	g.writeJSON(w, http.StatusOK, summary)
}

type createRequest struct {
	Scope       hooks.Scope `json:"scope"`
	ProjectName string      `json:"projectName"`
	hooks.Draft
}

func (g *Gateway) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		g.writeError(w, "invalid JSON body", http.StatusBadRequest)
		return
	}
	if req.Scope == "" {
		req.Scope = hooks.ScopeUser
	}

	created, err := g.store.Add(req.Scope, req.ProjectName, req.Draft)
	if err != nil {
		g.writeStoreError(w, err)
		return
	}
	g.writeJSON(w, http.StatusCreated, created)
}

func (g *Gateway) handleList(w http.ResponseWriter, r *http.Request) {
	scope, projectName := scopeFromQuery(r, hooks.ScopeAll)
	g.writeJSON(w, http.StatusOK, map[string]any{
		"hooks": g.store.List(scope, projectName),
	})
}

func (g *Gateway) handleGet(w http.ResponseWriter, r *http.Request) {
	scope, projectName := scopeFromQuery(r, hooks.ScopeUser)
	h, ok := g.store.Get(scope, projectName, r.PathValue("id"))
	if !ok {
		g.writeError(w, hooks.ErrNotFound.Error(), http.StatusNotFound)
		return
	}
	g.writeJSON(w, http.StatusOK, h)
}

func (g *Gateway) handleUpdate(w http.ResponseWriter, r *http.Request) {
	scope, projectName := scopeFromQuery(r, hooks.ScopeUser)
	patch, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		g.writeError(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	updated, err := g.store.Update(scope, projectName, r.PathValue("id"), patch)
	if err != nil {
		g.writeStoreError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, updated)
}

func (g *Gateway) handleDelete(w http.ResponseWriter, r *http.Request) {
	scope, projectName := scopeFromQuery(r, hooks.ScopeUser)
	removed, err := g.store.Delete(scope, projectName, r.PathValue("id"))
	if err != nil {
		g.writeStoreError(w, err)
		return
	}
	g.writeJSON(w, http.StatusOK, removed)
}

// handleTest runs one hook with a synthetic event through the production
// sandbox path (same timeout, same capability filtering).
func (g *Gateway) handleTest(w http.ResponseWriter, r *http.Request) {
	scope, projectName := scopeFromQuery(r, hooks.ScopeUser)
	mock, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		g.writeError(w, "failed to read request body", http.StatusBadRequest)
		return
	}

	res, err := g.dispatcher.TestHook(r.Context(), scope, projectName, r.PathValue("id"), mock)
	if err != nil {
		g.writeStoreError(w, err)
		return
	}
	g.metrics.RecordHookRun(res.Success, res.Error == sandbox.TimeoutMessage)
	g.writeJSON(w, http.StatusOK, res)
}

func (g *Gateway) handleStats(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, g.store.Stats())
}

func (g *Gateway) handleExecutions(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 1000 {
			g.writeError(w, "limit must be an integer between 1 and 1000", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	results, err := g.resultSink.Recent(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to read execution history")
		g.writeError(w, "execution history unavailable", http.StatusInternalServerError)
		return
	}
	if results == nil {
		results = []sink.StoredResult{}
	}
	g.writeJSON(w, http.StatusOK, map[string]any{"executions": results})
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"metrics": g.metrics.Stats(),
	})
}

// scopeFromQuery reads ?scope= and ?project= with a default scope.
func scopeFromQuery(r *http.Request, fallback hooks.Scope) (hooks.Scope, string) {
	scope := hooks.Scope(r.URL.Query().Get("scope"))
	if scope == "" {
		scope = fallback
	}
	return scope, r.URL.Query().Get("project")
}

// writeStoreError maps the store's error taxonomy onto HTTP statuses.
func (g *Gateway) writeStoreError(w http.ResponseWriter, err error) {
	var validationErr *hooks.ValidationError
	var scopeErr *hooks.ScopeError
	var persistErr *hooks.PersistenceError

	switch {
	case errors.Is(err, hooks.ErrNotFound):
		g.writeError(w, err.Error(), http.StatusNotFound)
	case errors.As(err, &validationErr), errors.As(err, &scopeErr):
		g.writeError(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &persistErr):
		log.Error().Err(err).Msg("hook persistence failed")
		g.writeError(w, err.Error(), http.StatusInternalServerError)
	default:
		g.writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

func (g *Gateway) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func (g *Gateway) writeError(w http.ResponseWriter, message string, status int) {
	g.writeJSON(w, status, map[string]string{"error": message})
}
