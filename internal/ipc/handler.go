// Package ipc provides the local HTTP API over the suitability engine.
package ipc

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/suricates/suitability/internal/domain"
	"github.com/suricates/suitability/internal/pipeline"
	"github.com/suricates/suitability/internal/store"
)

// Handler holds all dependencies for the HTTP handlers. NewRunner
// builds a fresh pipeline runner for each submitted run so concurrent
// projects never share scratch bookkeeping.
type Handler struct {
	DB          *sql.DB
	Projects    *store.ProjectRepo
	Constraints *store.ConstraintRepo
	Runs        *store.RunRepo
	Events      *store.RunEventRepo
	Registry    *pipeline.Registry
	NewRunner   func(project *domain.Project) (*pipeline.Runner, error)
	Log         zerolog.Logger
}

// APIError is a structured error response.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Health handles GET /api/v1/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ListProjects handles GET /api/v1/projects.
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.Projects.List(r.Context(), h.DB)
	if err != nil {
		writeError(w, err)
		return
	}
	if projects == nil {
		projects = []domain.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

// GetProject handles GET /api/v1/project/{name}.
func (h *Handler) GetProject(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	project, err := h.Projects.Get(r.Context(), h.DB, name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, project)
}

// ListConstraints handles GET /api/v1/project/{name}/constraints.
func (h *Handler) ListConstraints(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	constraints, err := h.Constraints.ListByProject(r.Context(), h.DB, name)
	if err != nil {
		writeError(w, err)
		return
	}
	if constraints == nil {
		constraints = []domain.Constraint{}
	}
	writeJSON(w, http.StatusOK, constraints)
}

// ListRuns handles GET /api/v1/project/{name}/runs?limit=N.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	limit := 20
	if s := r.URL.Query().Get("limit"); s != "" {
		parsed, err := strconv.Atoi(s)
		if err == nil {
			limit = parsed
		}
	}

	runs, err := h.Runs.ListByProject(r.Context(), h.DB, name, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if runs == nil {
		runs = []*domain.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// GetRun handles GET /api/v1/run/{runID}.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runID")
	run, err := h.Runs.GetByID(r.Context(), h.DB, runID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// SubmitRun handles POST /api/v1/project/{name}/run. The run executes
// in the background; the response carries the accepted run record.
func (h *Handler) SubmitRun(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	ctx := r.Context()

	project, err := h.Projects.Get(ctx, h.DB, name)
	if err != nil {
		writeError(w, err)
		return
	}
	constraints, err := h.Constraints.ListByProject(ctx, h.DB, name)
	if err != nil {
		writeError(w, err)
		return
	}
	if len(constraints) == 0 {
		writeError(w, domain.NewEngineError(domain.ErrMissingMapConstraint.Code,
			"project "+name+" has no constraints"))
		return
	}
	for _, con := range constraints {
		if !con.Exists {
			writeError(w, domain.NewEngineError(domain.ErrInvalidSource.Code,
				"source file missing for constraint "+con.Base()))
			return
		}
	}

	runner, err := h.NewRunner(project)
	if err != nil {
		writeError(w, err)
		return
	}
	run := pipeline.NewRun(name)
	if err := h.createRun(ctx, run); err != nil {
		writeError(w, err)
		return
	}
	// The worker mutates run as soon as it starts, so the response is
	// built from a snapshot taken before submission.
	accepted := *run

	// The run outlives the request, so it detaches from the request
	// context.
	handle, err := h.Registry.Submit(context.Background(), runner, run, constraints)
	if err != nil {
		h.markRejected(run, err)
		writeError(w, err)
		return
	}
	go func() {
		if _, werr := h.Registry.Wait(handle); werr != nil {
			h.Log.Warn().Str("run", accepted.RunID).Err(werr).Msg("background run failed")
		}
	}()

	writeJSON(w, http.StatusAccepted, &accepted)
}

// CancelRun handles POST /api/v1/project/{name}/cancel.
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !h.Registry.Cancel(name) {
		writeJSON(w, http.StatusNotFound, APIError{
			Code:    domain.ErrRunNotFound.Code,
			Message: "project " + name + " has no active run",
		})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ActiveRuns handles GET /api/v1/active.
func (h *Handler) ActiveRuns(w http.ResponseWriter, r *http.Request) {
	projects := h.Registry.Active()
	if projects == nil {
		projects = []string{}
	}
	writeJSON(w, http.StatusOK, projects)
}

// ListRunEvents handles GET /api/v1/run/{runID}/events?since_id=N.
func (h *Handler) ListRunEvents(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runID")
	sinceID := int64(0)
	if s := r.URL.Query().Get("since_id"); s != "" {
		parsed, err := strconv.ParseInt(s, 10, 64)
		if err == nil {
			sinceID = parsed
		}
	}

	events, err := h.Events.ListByRun(r.Context(), h.DB, runID, sinceID)
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []domain.RunEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// StreamRunEvents handles GET /api/v1/run/{runID}/events/stream (SSE).
// The stream replays the history, follows new transitions, and closes
// once the run is finished.
func (h *Handler) StreamRunEvents(w http.ResponseWriter, r *http.Request) {
	runID := r.PathValue("runID")
	if _, err := h.Runs.GetByID(r.Context(), h.DB, runID); err != nil {
		writeError(w, err)
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, APIError{Code: 500, Message: "streaming not supported"})
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	lastID := int64(0)
	events, err := h.Events.ListByRun(r.Context(), h.DB, runID, 0)
	if err != nil {
		writeSSEError(w, flusher, err)
		return
	}
	for _, ev := range events {
		writeSSEEvent(w, flusher, ev)
		lastID = ev.ID
		if ev.State == domain.RunFinished {
			return
		}
	}

	ctx := r.Context()
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			newEvents, err := h.Events.ListByRun(ctx, h.DB, runID, lastID)
			if err != nil {
				return
			}
			for _, ev := range newEvents {
				writeSSEEvent(w, flusher, ev)
				lastID = ev.ID
				if ev.State == domain.RunFinished {
					return
				}
			}
		}
	}
}

func (h *Handler) createRun(ctx context.Context, run *domain.Run) error {
	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin run insert: %w", err)
	}
	if err := h.Runs.CreateTx(ctx, tx, run); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// markRejected fails a run record that never reached the registry, so
// no row lingers in the created state.
func (h *Handler) markRejected(run *domain.Run, cause error) {
	run.State = domain.RunFailed
	if ee, ok := cause.(*domain.EngineError); ok {
		run.ErrorCode = ee.Code
		run.ErrorMessage = ee.Message
	} else {
		run.ErrorMessage = cause.Error()
	}
	ctx := context.Background()
	tx, err := h.DB.BeginTx(ctx, nil)
	if err != nil {
		h.Log.Warn().Str("run", run.RunID).Err(err).Msg("rejected run not recorded")
		return
	}
	if err := h.Runs.UpdateStateTx(ctx, tx, run); err != nil {
		tx.Rollback()
		h.Log.Warn().Str("run", run.RunID).Err(err).Msg("rejected run not recorded")
		return
	}
	tx.Commit()
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	if engErr, ok := err.(*domain.EngineError); ok {
		status := http.StatusInternalServerError
		switch engErr.Code {
		case domain.ErrProjectNotFound.Code, domain.ErrRunNotFound.Code, domain.ErrConstraintNotFound.Code:
			status = http.StatusNotFound
		case domain.ErrDuplicateRun.Code, domain.ErrDuplicateProject.Code:
			status = http.StatusConflict
		case domain.ErrMissingMapConstraint.Code, domain.ErrMultipleMapConstraints.Code,
			domain.ErrInvalidSource.Code, domain.ErrInvalidTransition.Code:
			status = http.StatusUnprocessableEntity
		}
		writeJSON(w, status, APIError{Code: engErr.Code, Message: engErr.Message})
		return
	}
	writeJSON(w, http.StatusInternalServerError, APIError{Code: -1, Message: err.Error()})
}

func writeSSEEvent(w http.ResponseWriter, f http.Flusher, ev domain.RunEvent) {
	data, _ := json.Marshal(ev)
	fmt.Fprintf(w, "data: %s\n\n", data)
	f.Flush()
}

func writeSSEError(w http.ResponseWriter, f http.Flusher, err error) {
	fmt.Fprintf(w, "event: error\ndata: %s\n\n", err.Error())
	f.Flush()
}
