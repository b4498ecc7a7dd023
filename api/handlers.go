/*
handlers.go - HTTP API handlers for the seringal task system

PURPOSE:
  Exposes tapping tasks, the Sistema D4 eligibility check and quality
  inspections over REST. Handles HTTP request/response and JSON; every
  decision is delegated to the tapping engine or the stores.

ENDPOINTS:
  Eligibility:
    GET  /api/workers/{id}/eligibility                   All roster sections
    GET  /api/workers/{id}/sections/{section}/eligibility One section
         ?date=YYYY-MM-DD overrides "today"

  Tasks:
    GET  /api/tasks?worker_id=&section=&status=  List
    POST /api/tasks                              Create (409 if blocked)
    GET  /api/tasks/{id}                         Details
    POST /api/tasks/{id}/start                   pending -> in-progress
    POST /api/tasks/{id}/complete                -> completed, stamps date
    GET  /api/tasks/{id}/inspections             Inspection history
    POST /api/tasks/{id}/inspections             completed -> inspected

  Roster:
    GET  /api/roster

ERROR HANDLING:
  - 400: Invalid argument or lifecycle violation
  - 404: Task not found
  - 409: Section not eligible yet
  - 503: Repository unavailable ("could not verify eligibility")
  - 500: Anything else

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/seringal/tapping-engine/farm"
	"github.com/seringal/tapping-engine/tapping"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Tasks       farm.TaskStore
	Inspections farm.InspectionStore
	Engine      *tapping.Engine
	Roster      tapping.Roster
	Logger      *slog.Logger

	newID func() string
}

// NewHandler creates a handler. The engine must read from the same tasks
// store it writes to.
func NewHandler(tasks farm.TaskStore, inspections farm.InspectionStore, engine *tapping.Engine, roster tapping.Roster, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Tasks:       tasks,
		Inspections: inspections,
		Engine:      engine,
		Roster:      roster,
		Logger:      logger,
		newID:       uuid.NewString,
	}
}

// =============================================================================
// ELIGIBILITY HANDLERS
// =============================================================================

// GetSectionEligibility reports whether a worker may tap one section.
// GET /api/workers/{id}/sections/{section}/eligibility
func (h *Handler) GetSectionEligibility(w http.ResponseWriter, r *http.Request) {
	worker := h.Roster.Canonical(farm.WorkerID(chi.URLParam(r, "id")))
	section := farm.SectionCode(chi.URLParam(r, "section"))

	asOf, ok := h.asOfDate(w, r)
	if !ok {
		return
	}

	result, err := h.Engine.CheckEligibility(r.Context(), worker, section, asOf)
	if err != nil {
		h.writeDomainError(w, r, "Could not verify eligibility", err)
		return
	}

	writeJSON(w, http.StatusOK, toEligibilityDTO(worker, section, asOf, result))
}

// GetWorkerEligibility reports every roster section of a worker.
// GET /api/workers/{id}/eligibility
func (h *Handler) GetWorkerEligibility(w http.ResponseWriter, r *http.Request) {
	worker := farm.WorkerID(chi.URLParam(r, "id"))

	asOf, ok := h.asOfDate(w, r)
	if !ok {
		return
	}

	assignment, found := h.Roster.Lookup(worker)
	if !found {
		writeError(w, http.StatusNotFound, "Worker has no sections in the roster", nil)
		return
	}

	results, err := h.Engine.CheckWorker(r.Context(), h.Roster, worker, asOf)
	if err != nil {
		h.writeDomainError(w, r, "Could not verify eligibility", err)
		return
	}

	resp := WorkerEligibilityDTO{
		WorkerID:     string(assignment.WorkerID),
		AsOf:         asOf,
		RecoveryDays: h.Engine.RecoveryDays(),
		Sections:     make([]EligibilityDTO, 0, len(assignment.Sections)),
	}
	for _, code := range assignment.SectionCodes() {
		resp.Sections = append(resp.Sections, toEligibilityDTO(assignment.WorkerID, code, asOf, results[code]))
	}

	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// TASK HANDLERS
// =============================================================================

// ListTasks returns tasks, optionally filtered.
// GET /api/tasks
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := farm.TaskFilter{
		WorkerID: farm.WorkerID(q.Get("worker_id")),
		Section:  farm.SectionCode(q.Get("section")),
		Status:   farm.TaskStatus(q.Get("status")),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(w, http.StatusBadRequest, "Invalid status filter", nil)
		return
	}

	tasks, err := h.Tasks.ListTasks(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, r, "Failed to list tasks", err)
		return
	}

	dtos := make([]TaskDTO, len(tasks))
	for i, t := range tasks {
		dtos[i] = toTaskDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetTask returns a single task.
// GET /api/tasks/{id}
func (h *Handler) GetTask(w http.ResponseWriter, r *http.Request) {
	task, err := h.Tasks.GetTask(r.Context(), farm.TaskID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeDomainError(w, r, "Failed to get task", err)
		return
	}
	writeJSON(w, http.StatusOK, toTaskDTO(*task))
}

// CreateTask opens a pending task on a section the worker may tap.
// POST /api/tasks
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	// Tasks are stored under the roster ID so a display name can't open a
	// second history for the same worker.
	worker := h.Roster.Canonical(farm.WorkerID(req.WorkerID))
	section := farm.SectionCode(req.Section)
	if _, known := h.Roster.Lookup(worker); known && !h.Roster.Owns(worker, section) {
		writeError(w, http.StatusBadRequest, "Section is not assigned to this worker", nil)
		return
	}

	date := h.Engine.Today()
	if req.Date != nil && !req.Date.IsZero() {
		date = *req.Date
	}

	result, err := h.Engine.CheckEligibility(r.Context(), worker, section, date)
	if err != nil {
		h.writeDomainError(w, r, "Could not verify eligibility", err)
		return
	}
	if !result.CanTap {
		dto := toEligibilityDTO(worker, section, date, result)
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error:       "Section was tapped recently",
			Details:     dto.Message,
			Eligibility: &dto,
		})
		return
	}

	task := farm.Task{
		ID:         farm.TaskID(h.newID()),
		WorkerID:   worker,
		WorkerName: req.WorkerName,
		Date:       date,
		Section:    section,
		Status:     farm.StatusPending,
	}
	if req.ProductionKg != nil {
		if req.ProductionKg.IsNegative() {
			writeError(w, http.StatusBadRequest, "production_kg must not be negative", nil)
			return
		}
		task.ProductionKg = *req.ProductionKg
	} else {
		task.ProductionKg = decimal.Zero
	}

	if err := h.Tasks.SaveTask(r.Context(), task); err != nil {
		h.writeDomainError(w, r, "Failed to create task", err)
		return
	}

	saved, err := h.Tasks.GetTask(r.Context(), task.ID)
	if err != nil {
		h.writeDomainError(w, r, "Failed to load task", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTaskDTO(*saved))
}

// StartTask moves a pending task to in-progress.
// POST /api/tasks/{id}/start
func (h *Handler) StartTask(w http.ResponseWriter, r *http.Request) {
	id := farm.TaskID(chi.URLParam(r, "id"))
	if err := h.Tasks.UpdateStatus(r.Context(), id, farm.StatusInProgress); err != nil {
		h.writeDomainError(w, r, "Failed to start task", err)
		return
	}
	h.writeTask(w, r, id, http.StatusOK)
}

// CompleteTask records the tapping. The body is optional.
// POST /api/tasks/{id}/complete
func (h *Handler) CompleteTask(w http.ResponseWriter, r *http.Request) {
	id := farm.TaskID(chi.URLParam(r, "id"))

	var req CompleteTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	if _, err := h.Engine.RecordCompletion(r.Context(), id, req.CompletionDate); err != nil {
		h.writeDomainError(w, r, "Failed to complete task", err)
		return
	}
	h.writeTask(w, r, id, http.StatusOK)
}

func (h *Handler) writeTask(w http.ResponseWriter, r *http.Request, id farm.TaskID, status int) {
	task, err := h.Tasks.GetTask(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, "Failed to load task", err)
		return
	}
	writeJSON(w, status, toTaskDTO(*task))
}

// =============================================================================
// INSPECTION HANDLERS
// =============================================================================

// CreateInspection rates a completed tapping and marks the task inspected.
// POST /api/tasks/{id}/inspections
func (h *Handler) CreateInspection(w http.ResponseWriter, r *http.Request) {
	var req CreateInspectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	insp := farm.Inspection{
		ID:               farm.InspectionID(h.newID()),
		TaskID:           farm.TaskID(chi.URLParam(r, "id")),
		InspectorID:      req.InspectorID,
		InspectorName:    req.InspectorName,
		Date:             h.Engine.Today(),
		Angle:            req.Angle,
		Depth:            req.Depth,
		Injuries:         req.Injuries,
		SpoutCleanliness: req.SpoutCleanliness,
		Notes:            req.Notes,
	}
	if req.Date != nil && !req.Date.IsZero() {
		insp.Date = *req.Date
	}
	if err := insp.Validate(); err != nil {
		h.writeDomainError(w, r, "Invalid inspection", err)
		return
	}
	insp.OverallScore = insp.Score()

	if err := h.Inspections.SaveInspection(r.Context(), insp); err != nil {
		h.writeDomainError(w, r, "Failed to save inspection", err)
		return
	}

	saved, err := h.Inspections.GetInspectionsByTask(r.Context(), insp.TaskID)
	if err != nil {
		h.writeDomainError(w, r, "Failed to load inspection", err)
		return
	}
	for _, s := range saved {
		if s.ID == insp.ID {
			writeJSON(w, http.StatusCreated, toInspectionDTO(s))
			return
		}
	}
	writeJSON(w, http.StatusCreated, toInspectionDTO(insp))
}

// ListInspections returns a task's inspections.
// GET /api/tasks/{id}/inspections
func (h *Handler) ListInspections(w http.ResponseWriter, r *http.Request) {
	id := farm.TaskID(chi.URLParam(r, "id"))
	if _, err := h.Tasks.GetTask(r.Context(), id); err != nil {
		h.writeDomainError(w, r, "Failed to get task", err)
		return
	}

	list, err := h.Inspections.GetInspectionsByTask(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, r, "Failed to list inspections", err)
		return
	}
	dtos := make([]InspectionDTO, len(list))
	for i, insp := range list {
		dtos[i] = toInspectionDTO(insp)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ROSTER
// =============================================================================

// GetRoster returns the worker-to-section assignment.
// GET /api/roster
func (h *Handler) GetRoster(w http.ResponseWriter, r *http.Request) {
	workers := h.Roster
	if workers == nil {
		workers = tapping.Roster{}
	}
	writeJSON(w, http.StatusOK, RosterDTO{TotalTrees: workers.TotalTrees(), Workers: workers})
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// asOfDate reads ?date= or falls back to the engine clock.
func (h *Handler) asOfDate(w http.ResponseWriter, r *http.Request) (farm.Date, bool) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return h.Engine.Today(), true
	}
	d, err := farm.ParseDate(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date format (use YYYY-MM-DD)", err)
		return farm.Date{}, false
	}
	return d, true
}

// writeDomainError maps farm error categories to HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, message string, err error) {
	switch {
	case farm.IsClientError(err):
		writeError(w, http.StatusBadRequest, message, err)
	case farm.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case farm.IsDependencyUnavailable(err):
		h.Logger.ErrorContext(r.Context(), "repository unavailable",
			slog.String("path", r.URL.Path), slog.Any("error", err))
		writeError(w, http.StatusServiceUnavailable, message, err)
	default:
		h.Logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, message, err)
	}
}

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
