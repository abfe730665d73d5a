/*
handlers.go - HTTP API handlers for violation sync

PURPOSE:
  Exposes the reconciliation engine and the enrichment queue via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to the
  violations package.

ENDPOINTS:
  Clients:
    GET    /api/clients                List the roster
    POST   /api/clients                Create or replace a client
    DELETE /api/clients/{id}           Remove a client from the roster

  Cases:
    GET    /api/cases                  List case records (?client=)
    GET    /api/cases/{ref}            Get a case by reference number

  Sweeps:
    POST   /api/sweep                  Run a sweep now
    GET    /api/sweep/runs             Sweep history (?status=&limit=)

  Enrichment:
    GET    /api/queue                  Current enrichment queue (?limit=)
    POST   /api/queue/drain            Dispatch the queue head (?limit=)
    POST   /api/enrichment/{id}        Worker result callback

  Admin:
    POST   /api/admin/migrate-orphans  Flag narrative-only records complete

ERROR HANDLING:
  Errors are returned as JSON ErrorResponse with appropriate HTTP status:
  - 400: Invalid input
  - 404: Case or client not found
  - 409: Sweep already in progress
  - 502: Roster or external source unavailable
  - 500: Internal errors

SECURITY NOTE:
  No authentication. The enrichment callback trusts its caller.

SEE ALSO:
  - dto.go: Request/response data structures
  - runs.go: SweepRunner
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/violation-sync/store/sqlite"
	"github.com/warp/violation-sync/violations"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      *sqlite.Store
	Runner     *SweepRunner
	Drainer    *violations.Drainer
	DrainBatch int

	// Now stamps enrichment results; tests replace it.
	Now func() time.Time
}

// NewHandler creates a new handler.
func NewHandler(store *sqlite.Store, runner *SweepRunner, drainer *violations.Drainer) *Handler {
	return &Handler{
		Store:      store,
		Runner:     runner,
		Drainer:    drainer,
		DrainBatch: DefaultDrainBatch,
		Now:        func() time.Time { return time.Now().UTC() },
	}
}

// =============================================================================
// CLIENT HANDLERS
// =============================================================================

// ListClients returns the roster in order.
func (h *Handler) ListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.Store.ListClients(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list clients", err)
		return
	}

	dtos := make([]ClientDTO, len(clients))
	for i, c := range clients {
		dtos[i] = toClientDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateClient creates or replaces a client.
func (h *Handler) CreateClient(w http.ResponseWriter, r *http.Request) {
	var req CreateClientRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if strings.TrimSpace(req.ID) == "" || strings.TrimSpace(req.Name) == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}

	client := violations.Client{
		ID:      violations.ClientID(strings.TrimSpace(req.ID)),
		Name:    strings.TrimSpace(req.Name),
		Aliases: req.Aliases,
	}
	if err := h.Store.SaveClient(r.Context(), client); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save client", err)
		return
	}

	writeJSON(w, http.StatusCreated, toClientDTO(client))
}

// DeleteClient removes a client. Its case records are kept.
func (h *Handler) DeleteClient(w http.ResponseWriter, r *http.Request) {
	id := violations.ClientID(chi.URLParam(r, "id"))

	err := h.Store.DeleteClient(r.Context(), id)
	switch {
	case violations.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Client not found", nil)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to delete client", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// CASE HANDLERS
// =============================================================================

// ListCases returns case records, optionally for one client.
func (h *Handler) ListCases(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var (
		records []violations.CaseRecord
		err     error
	)
	if clientID := r.URL.Query().Get("client"); clientID != "" {
		records, err = h.Store.ListCasesByClient(ctx, violations.ClientID(clientID))
	} else {
		records, err = h.Store.ListCases(ctx)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list cases", err)
		return
	}

	dtos := make([]CaseDTO, len(records))
	for i, rec := range records {
		dtos[i] = toCaseDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCase returns one case by reference number.
func (h *Handler) GetCase(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")

	rec, err := h.Store.GetCaseByReference(r.Context(), ref)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get case", err)
		return
	}
	if rec == nil {
		writeError(w, http.StatusNotFound, "Case not found", nil)
		return
	}

	writeJSON(w, http.StatusOK, toCaseDTO(*rec))
}

// =============================================================================
// SWEEP HANDLERS
// =============================================================================

// TriggerSweep runs a sweep and returns its counters.
// POST /api/sweep
func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	// Other triggers may share this sweep; a client hanging up must not
	// cancel it.
	ctx := context.WithoutCancel(r.Context())

	run, err := h.Runner.Run(ctx, TriggerAPI)
	if err != nil {
		switch {
		case violations.IsBusy(err):
			writeError(w, http.StatusConflict, "Sweep already in progress", err)
		case violations.IsFatal(err):
			writeError(w, http.StatusBadGateway, "Sweep failed", err)
		default:
			writeError(w, http.StatusInternalServerError, "Sweep failed", err)
		}
		return
	}

	if run.ID != "" {
		w.Header().Set("X-Sweep-Run", run.ID)
	}
	writeJSON(w, http.StatusOK, run.Result)
}

// ListSweepRuns returns sweep run history.
// GET /api/sweep/runs
func (h *Handler) ListSweepRuns(w http.ResponseWriter, r *http.Request) {
	status := r.URL.Query().Get("status")
	limit, err := queryInt(r, "limit", 50)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}

	runs, err := h.Store.GetSweepRuns(r.Context(), status, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get sweep runs", err)
		return
	}

	dtos := make([]SweepRunDTO, 0, len(runs))
	for _, run := range runs {
		dtos = append(dtos, toSweepRunDTO(run))
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": dtos})
}

// =============================================================================
// ENRICHMENT HANDLERS
// =============================================================================

// GetQueue returns the enrichment queue in dispatch order.
// GET /api/queue
func (h *Handler) GetQueue(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}

	items, err := h.Drainer.Queue(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build queue", err)
		return
	}
	total := len(items)
	if limit > 0 && limit < total {
		items = items[:limit]
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total": total,
		"items": toQueueItemDTOs(items),
	})
}

// DrainQueue dispatches the head of the queue.
// POST /api/queue/drain
func (h *Handler) DrainQueue(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", h.DrainBatch)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid limit", err)
		return
	}

	result, err := h.Drainer.Drain(context.WithoutCancel(r.Context()), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to drain queue", err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// RecordEnrichment stores a worker result for one case.
// POST /api/enrichment/{id}
func (h *Handler) RecordEnrichment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := violations.CaseID(chi.URLParam(r, "id"))

	var res violations.EnrichmentResult
	if err := json.NewDecoder(r.Body).Decode(&res); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	err := violations.ApplyEnrichmentResult(ctx, h.Store, id, res, h.Now())
	switch {
	case errors.Is(err, violations.ErrInvalidEnrichmentStatus):
		writeError(w, http.StatusBadRequest, "Invalid enrichment status", err)
		return
	case violations.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Case not found", nil)
		return
	case err != nil:
		writeError(w, http.StatusInternalServerError, "Failed to record enrichment", err)
		return
	}

	rec, err := h.Store.GetCase(ctx, id)
	if err != nil || rec == nil {
		writeError(w, http.StatusInternalServerError, "Failed to reload case", err)
		return
	}
	writeJSON(w, http.StatusOK, toCaseDTO(*rec))
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// MigrateOrphans flags narrative-only records as complete.
// POST /api/admin/migrate-orphans
func (h *Handler) MigrateOrphans(w http.ResponseWriter, r *http.Request) {
	migrated, err := violations.MigrateOrphans(r.Context(), h.Store)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to migrate orphans", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"migrated": migrated})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, errors.New(key + " must be a non-negative integer")
	}
	return n, nil
}
