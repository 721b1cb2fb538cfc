// Package api exposes the import pipeline over HTTP: job listing and
// detail, per-item results, the audit log, and pause/resume/cancel
// controls. Read endpoints work mid-run; the orchestrator's counters are
// updated as items finish.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/carvelab/ingest/internal/storage"
	"github.com/carvelab/ingest/internal/types"
)

// Controller drives job state changes. The orchestrator satisfies Pause and
// Cancel directly; Resume is wrapped by the server so the resumed run
// happens in the background.
type Controller interface {
	Pause(ctx context.Context, jobID string) error
	Resume(ctx context.Context, jobID string) error
	Cancel(ctx context.Context, jobID string) error
}

// Deps are the handler dependencies.
type Deps struct {
	Store      storage.Storage
	Controller Controller
}

// NewHandler returns the HTTP handler for the pipeline API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Get("/jobs", handleListJobs(deps))
	r.Get("/jobs/{id}", handleGetJob(deps))
	r.Get("/jobs/{id}/items", handleListItems(deps))
	r.Get("/jobs/{id}/logs", handleListLogs(deps))
	r.Get("/jobs/{id}/summary", handleSummary(deps))
	r.Get("/jobs/{id}/projects", handleListProjects(deps))
	r.Post("/jobs/{id}/pause", handleControl(deps, "pause"))
	r.Post("/jobs/{id}/resume", handleControl(deps, "resume"))
	r.Post("/jobs/{id}/cancel", handleControl(deps, "cancel"))

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleListJobs(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		filter := storage.JobFilter{
			Limit: parseIntParam(r, "limit", 50, 500),
		}
		if s := r.URL.Query().Get("status"); s != "" {
			status := types.JobStatus(s)
			if !status.IsValid() {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown job status %q", s)
				return
			}
			filter.Status = status
		}

		jobs, err := deps.Store.ListJobs(r.Context(), filter)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list jobs: %v", err)
			return
		}
		if jobs == nil {
			jobs = []*types.ImportJob{}
		}

		writeJSON(w, jobs)
	}
}

func handleGetJob(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := deps.Store.GetJob(r.Context(), chi.URLParam(r, "id"))
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get job: %v", err)
			return
		}

		writeJSON(w, job)
	}
}

func handleListItems(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "id")
		if _, err := deps.Store.GetJob(r.Context(), jobID); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}

		filter := storage.ItemFilter{
			Limit: parseIntParam(r, "limit", 200, 2000),
		}
		if s := r.URL.Query().Get("status"); s != "" {
			status := types.ItemStatus(s)
			if !status.IsValid() {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown item status %q", s)
				return
			}
			filter.Status = status
		}

		items, err := deps.Store.ListItems(r.Context(), jobID, filter)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list items: %v", err)
			return
		}
		if items == nil {
			items = []*types.ImportItem{}
		}

		writeJSON(w, items)
	}
}

func handleListLogs(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "id")
		if _, err := deps.Store.GetJob(r.Context(), jobID); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}

		filter := storage.LogFilter{
			Limit: parseIntParam(r, "limit", 200, 2000),
		}
		if s := r.URL.Query().Get("status"); s != "" {
			status := types.LogStatus(s)
			if !status.IsValid() {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "unknown log status %q", s)
				return
			}
			filter.Status = status
		}

		logs, err := deps.Store.ListLogs(r.Context(), jobID, filter)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list logs: %v", err)
			return
		}
		if logs == nil {
			logs = []*types.ImportLog{}
		}

		writeJSON(w, logs)
	}
}

func handleSummary(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "id")
		if _, err := deps.Store.GetJob(r.Context(), jobID); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}

		summary, err := deps.Store.LogSummary(r.Context(), jobID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to summarize job: %v", err)
			return
		}

		writeJSON(w, summary)
	}
}

func handleListProjects(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "id")
		if _, err := deps.Store.GetJob(r.Context(), jobID); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}

		projects, err := deps.Store.GetProjects(r.Context(), jobID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list projects: %v", err)
			return
		}
		if projects == nil {
			projects = []types.DetectedProject{}
		}

		writeJSON(w, projects)
	}
}

func handleControl(deps Deps, action string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID := chi.URLParam(r, "id")
		if _, err := deps.Store.GetJob(r.Context(), jobID); errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "job not found")
			return
		}

		var err error
		var result string
		switch action {
		case "pause":
			err = deps.Controller.Pause(r.Context(), jobID)
			result = "paused"
		case "resume":
			err = deps.Controller.Resume(r.Context(), jobID)
			result = "resumed"
		case "cancel":
			err = deps.Controller.Cancel(r.Context(), jobID)
			result = "cancelled"
		}
		if errors.Is(err, storage.ErrConflict) {
			httpError(w, http.StatusConflict, "conflict", "job is not in a state that allows %s", action)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to %s job: %v", action, err)
			return
		}

		writeJSON(w, map[string]string{"status": result})
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}

// parseIntParam reads a positive integer query parameter, clamping to max
// when max > 0.
func parseIntParam(r *http.Request, name string, def, max int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	if max > 0 && n > max {
		return max
	}
	return n
}
