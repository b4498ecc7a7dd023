/*
handlers_test.go - HTTP tests for the eligibility, task and inspection API
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seringal/tapping-engine/farm"
	"github.com/seringal/tapping-engine/farm/store"
	"github.com/seringal/tapping-engine/tapping"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testServer struct {
	router http.Handler
	mem    *store.Memory
}

func jan(day int) farm.Date {
	return farm.NewDate(2025, time.January, day)
}

func newTestServer(t *testing.T, today farm.Date) *testServer {
	t.Helper()
	mem := store.NewMemory()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := tapping.NewEngine(mem, mem, farm.FixedClock(today), tapping.WithLogger(logger))
	h := NewHandler(mem, mem, engine, tapping.DefaultRoster(), logger)

	n := 0
	h.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	return &testServer{router: NewRouter(h, []string{"*"}), mem: mem}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func (s *testServer) createTask(t *testing.T, worker, section string, date *farm.Date) TaskDTO {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/tasks", CreateTaskRequest{WorkerID: worker, WorkerName: worker, Section: section, Date: date})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[TaskDTO](t, rec)
}

// =============================================================================
// ELIGIBILITY
// =============================================================================

func TestSectionEligibility_ExampleScenario(t *testing.T) {
	// GIVEN: patrick completed E1 on 2025-01-10
	s := newTestServer(t, jan(10))
	task := s.createTask(t, "patrick", "E1", nil)
	rec := s.do(t, http.MethodPost, "/api/tasks/"+task.ID+"/complete", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// WHEN: checking on the 12th
	rec = s.do(t, http.MethodGet, "/api/workers/patrick/sections/E1/eligibility?date=2025-01-12", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dto := decode[EligibilityDTO](t, rec)

	// THEN: blocked with a two day countdown
	assert.False(t, dto.CanTap)
	require.NotNil(t, dto.NextAvailableDate)
	assert.Equal(t, "2025-01-14", dto.NextAvailableDate.String())
	require.NotNil(t, dto.DaysRemaining)
	assert.Equal(t, 2, *dto.DaysRemaining)

	// AND: on the 14th it's open again with no countdown fields
	rec = s.do(t, http.MethodGet, "/api/workers/patrick/sections/E1/eligibility?date=2025-01-14", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"worker_id":"patrick","section":"E1","as_of":"2025-01-14","can_tap":true,"message":"section E1 is available for tapping"}`, rec.Body.String())
}

func TestSectionEligibility_BadDate(t *testing.T) {
	s := newTestServer(t, jan(10))
	rec := s.do(t, http.MethodGet, "/api/workers/patrick/sections/E1/eligibility?date=12-01-2025", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWorkerEligibility(t *testing.T) {
	s := newTestServer(t, jan(10))
	task := s.createTask(t, "patrick", "E2", nil)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/tasks/"+task.ID+"/complete", nil).Code)

	rec := s.do(t, http.MethodGet, "/api/workers/patrick/eligibility?date=2025-01-11", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dto := decode[WorkerEligibilityDTO](t, rec)

	assert.Equal(t, tapping.DefaultRecoveryDays, dto.RecoveryDays)
	require.Len(t, dto.Sections, 4)
	assert.Equal(t, "E1", dto.Sections[0].Section, "roster order")
	assert.True(t, dto.Sections[0].CanTap)
	assert.False(t, dto.Sections[1].CanTap)
	assert.Equal(t, 3, *dto.Sections[1].DaysRemaining)

	rec = s.do(t, http.MethodGet, "/api/workers/ghost/eligibility", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// TASKS
// =============================================================================

func TestCreateTask_BlockedSectionConflicts(t *testing.T) {
	s := newTestServer(t, jan(10))
	task := s.createTask(t, "patrick", "E1", nil)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/tasks/"+task.ID+"/complete", nil).Code)

	rec := s.do(t, http.MethodPost, "/api/tasks", CreateTaskRequest{WorkerID: "patrick", Section: "E1", Date: jan(12).Ptr()})
	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decode[ErrorResponse](t, rec)
	require.NotNil(t, resp.Eligibility)
	assert.Equal(t, 2, *resp.Eligibility.DaysRemaining)
	assert.Contains(t, resp.Details, "2025-01-14")

	// A pending task on the same section doesn't block a second one.
	s.createTask(t, "patrick", "E3", nil)
	s.createTask(t, "patrick", "E3", nil)
}

func TestCreateTask_Validation(t *testing.T) {
	s := newTestServer(t, jan(10))

	rec := s.do(t, http.MethodPost, "/api/tasks", CreateTaskRequest{WorkerID: "patrick", Section: "A1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "section of another worker")

	rec = s.do(t, http.MethodPost, "/api/tasks", CreateTaskRequest{WorkerID: "", Section: "X1"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	req := httptest.NewRequest(http.MethodPost, "/api/tasks", bytes.NewBufferString("{"))
	out := httptest.NewRecorder()
	s.router.ServeHTTP(out, req)
	assert.Equal(t, http.StatusBadRequest, out.Code)
}

func TestDisplayNameResolvesToRosterWorker(t *testing.T) {
	// GIVEN: patrick completed E1 on the 10th
	s := newTestServer(t, jan(10))
	task := s.createTask(t, "patrick", "E1", nil)
	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/tasks/"+task.ID+"/complete", nil).Code)

	// WHEN: the single and batch checks use the display name on the 11th
	rec := s.do(t, http.MethodGet, "/api/workers/Patrick/sections/E1/eligibility?date=2025-01-11", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	single := decode[EligibilityDTO](t, rec)

	rec = s.do(t, http.MethodGet, "/api/workers/Patrick/eligibility?date=2025-01-11", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	batch := decode[WorkerEligibilityDTO](t, rec)

	// THEN: both see patrick's history
	assert.Equal(t, "patrick", single.WorkerID)
	assert.False(t, single.CanTap)
	require.NotNil(t, single.DaysRemaining)
	assert.Equal(t, 3, *single.DaysRemaining)
	assert.Equal(t, batch.Sections[0], single)

	// AND: creating a task under the display name is blocked too
	rec = s.do(t, http.MethodPost, "/api/tasks", CreateTaskRequest{WorkerID: "Patrick", Section: "E1", Date: jan(11).Ptr()})
	assert.Equal(t, http.StatusConflict, rec.Code, rec.Body.String())

	// AND: an allowed task is stored under the roster ID
	created := s.createTask(t, "Patrick", "E2", jan(11).Ptr())
	assert.Equal(t, "patrick", created.WorkerID)
}

func TestTaskLifecycle(t *testing.T) {
	s := newTestServer(t, jan(10))
	task := s.createTask(t, "fabio", "G1", nil)
	assert.Equal(t, "pending", task.Status)
	assert.Equal(t, "id-1", task.ID)

	rec := s.do(t, http.MethodPost, "/api/tasks/id-1/start", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "in-progress", decode[TaskDTO](t, rec).Status)

	rec = s.do(t, http.MethodPost, "/api/tasks/id-1/complete", CompleteTaskRequest{CompletionDate: jan(9).Ptr()})
	require.Equal(t, http.StatusOK, rec.Code)
	done := decode[TaskDTO](t, rec)
	assert.Equal(t, "completed", done.Status)
	require.NotNil(t, done.LastTappingDate)
	assert.Equal(t, "2025-01-09", done.LastTappingDate.String())
	assert.NotEmpty(t, done.CompletedAt)

	rec = s.do(t, http.MethodPost, "/api/tasks/id-1/complete", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "already completed")

	rec = s.do(t, http.MethodPost, "/api/tasks/id-1/start", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/tasks/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/api/tasks/missing/complete", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListTasks(t *testing.T) {
	s := newTestServer(t, jan(10))
	s.createTask(t, "fabio", "G1", nil)
	s.createTask(t, "fabio", "G2", nil)
	s.createTask(t, "patrick", "E1", nil)

	rec := s.do(t, http.MethodGet, "/api/tasks?worker_id=fabio", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]TaskDTO](t, rec), 2)

	rec = s.do(t, http.MethodGet, "/api/tasks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]TaskDTO](t, rec), 3)

	rec = s.do(t, http.MethodGet, "/api/tasks?status=finished", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// INSPECTIONS
// =============================================================================

func TestCreateInspection(t *testing.T) {
	s := newTestServer(t, jan(10))
	task := s.createTask(t, "fabio", "G1", nil)
	body := CreateInspectionRequest{InspectorID: "insp-1", InspectorName: "Inspector", Angle: 4, Depth: 3, Injuries: 5, SpoutCleanliness: 3}

	rec := s.do(t, http.MethodPost, "/api/tasks/"+task.ID+"/inspections", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "pending task")

	require.Equal(t, http.StatusOK, s.do(t, http.MethodPost, "/api/tasks/"+task.ID+"/complete", nil).Code)
	rec = s.do(t, http.MethodPost, "/api/tasks/"+task.ID+"/inspections", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	insp := decode[InspectionDTO](t, rec)
	assert.Equal(t, "3.8", insp.OverallScore)
	assert.Equal(t, "2025-01-10", insp.Date.String())

	rec = s.do(t, http.MethodGet, "/api/tasks/"+task.ID, nil)
	got := decode[TaskDTO](t, rec)
	assert.Equal(t, "inspected", got.Status)
	assert.Equal(t, insp.ID, got.InspectionID)

	rec = s.do(t, http.MethodGet, "/api/tasks/"+task.ID+"/inspections", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]InspectionDTO](t, rec), 1)

	body.Angle = 9
	rec = s.do(t, http.MethodPost, "/api/tasks/"+task.ID+"/inspections", body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRoster(t *testing.T) {
	s := newTestServer(t, jan(10))
	rec := s.do(t, http.MethodGet, "/api/roster", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	dto := decode[RosterDTO](t, rec)
	assert.Equal(t, 26733, dto.TotalTrees)
	assert.Len(t, dto.Workers, 7)
}

// =============================================================================
// DEPENDENCY FAILURES
// =============================================================================

// brokenStore fails every read of tapping history.
type brokenStore struct {
	*store.Memory
}

func (brokenStore) FindCompletedTasks(context.Context, farm.WorkerID, farm.SectionCode) ([]farm.CompletedTapping, error) {
	return nil, farm.Unavailable("find completed tasks", errors.New("connection refused"))
}

func TestEligibility_UnavailableIsDistinct(t *testing.T) {
	mem := store.NewMemory()
	broken := brokenStore{Memory: mem}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := tapping.NewEngine(broken, mem, farm.FixedClock(jan(10)), tapping.WithLogger(logger))
	router := NewRouter(NewHandler(broken, mem, engine, tapping.DefaultRoster(), logger), []string{"*"})

	for _, path := range []string{
		"/api/workers/patrick/sections/E1/eligibility",
		"/api/workers/patrick/eligibility",
	} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
		assert.NotContains(t, rec.Body.String(), "can_tap", "no verdict on failure")
	}

	rec := httptest.NewRecorder()
	b, _ := json.Marshal(CreateTaskRequest{WorkerID: "patrick", Section: "E1"})
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/tasks", bytes.NewReader(b)))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code, "never create a task on an unverified section")
}
