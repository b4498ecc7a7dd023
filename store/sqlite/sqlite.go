/*
Package sqlite provides a SQLite-backed implementation of the farm stores.

INTERFACES IMPLEMENTED:
  farm.TaskStore:       Task CRUD plus the eligibility read/write contracts
  farm.InspectionStore: Quality inspections

KEY TABLES:
  tasks:       One row per tapping assignment
  inspections: Ratings recorded against completed tasks

INDEXES:
  - idx_tasks_eligibility: (worker_id, section, status, last_tapping_date DESC)
    serves the eligibility lookup (hot path)

FAILURES:
  Every database error is wrapped with farm.Unavailable so callers can tell
  "no history" apart from "could not read history".

CONCURRENCY:
  Uses sync.RWMutex around the connection pool. WAL mode lets readers run
  alongside the single writer.

USAGE:
  store, err := sqlite.New("./seringal.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := tapping.NewEngine(store, store, clock)
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/seringal/tapping-engine/farm"
)

// Store implements the farm storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared across calls.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// NewWithDB wraps an already opened database without migrating it.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return farm.Unavailable("ping", s.db.PingContext(ctx))
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		worker_id TEXT NOT NULL,
		worker_name TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		section TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		production_kg TEXT NOT NULL DEFAULT '0',
		inspection_id TEXT,
		last_tapping_date TEXT,
		created_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_eligibility
		ON tasks(worker_id, section, status, last_tapping_date DESC);
	CREATE INDEX IF NOT EXISTS idx_tasks_status
		ON tasks(status);

	CREATE TABLE IF NOT EXISTS inspections (
		id TEXT PRIMARY KEY,
		task_id TEXT NOT NULL REFERENCES tasks(id),
		inspector_id TEXT NOT NULL,
		inspector_name TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL,
		angle INTEGER NOT NULL,
		depth INTEGER NOT NULL,
		injuries INTEGER NOT NULL,
		spout_cleanliness INTEGER NOT NULL,
		overall_score TEXT NOT NULL,
		notes TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_inspections_task
		ON inspections(task_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ELIGIBILITY CONTRACTS
// =============================================================================

// FindCompletedTasks returns completed tappings, most recent first.
func (s *Store) FindCompletedTasks(ctx context.Context, workerID farm.WorkerID, section farm.SectionCode) ([]farm.CompletedTapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT id, last_tapping_date
		FROM tasks
		WHERE worker_id = ? AND section = ? AND status = ?
		  AND last_tapping_date IS NOT NULL
		ORDER BY last_tapping_date DESC
	`

	rows, err := s.db.QueryContext(ctx, query, string(workerID), string(section), string(farm.StatusCompleted))
	if err != nil {
		return nil, farm.Unavailable("query completed tasks", err)
	}
	defer rows.Close()

	var result []farm.CompletedTapping
	for rows.Next() {
		var id, date string
		if err := rows.Scan(&id, &date); err != nil {
			return nil, farm.Unavailable("scan completed task", err)
		}
		d, err := farm.ParseDate(date)
		if err != nil {
			return nil, farm.Unavailable("parse last_tapping_date", err)
		}
		result = append(result, farm.CompletedTapping{TaskID: farm.TaskID(id), LastTappingDate: d})
	}
	if err := rows.Err(); err != nil {
		return nil, farm.Unavailable("iterate completed tasks", err)
	}
	return result, nil
}

// MarkCompleted moves a pending or in-progress task to completed.
func (s *Store) MarkCompleted(ctx context.Context, taskID farm.TaskID, completedOn farm.Date) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	query := `
		UPDATE tasks
		SET status = ?, last_tapping_date = ?, completed_at = ?
		WHERE id = ? AND status IN (?, ?)
	`

	res, err := s.db.ExecContext(ctx, query,
		string(farm.StatusCompleted),
		completedOn.String(),
		time.Now().UTC().Format(time.RFC3339),
		string(taskID),
		string(farm.StatusPending), string(farm.StatusInProgress),
	)
	if err != nil {
		return farm.Unavailable("mark completed", err)
	}
	return s.checkTransition(ctx, res, taskID, farm.StatusCompleted)
}

// checkTransition explains a zero-row status update.
func (s *Store) checkTransition(ctx context.Context, res sql.Result, taskID farm.TaskID, to farm.TaskStatus) error {
	n, err := res.RowsAffected()
	if err != nil {
		return farm.Unavailable("rows affected", err)
	}
	if n > 0 {
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ctx, "SELECT status FROM tasks WHERE id = ?", string(taskID)).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return farm.ErrTaskNotFound
	}
	if err != nil {
		return farm.Unavailable("load task status", err)
	}
	return &farm.TransitionError{TaskID: taskID, From: farm.TaskStatus(current), To: to}
}

// =============================================================================
// TASKS
// =============================================================================

// SaveTask inserts or replaces a task.
func (s *Store) SaveTask(ctx context.Context, task farm.Task) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO tasks
		(id, worker_id, worker_name, date, section, status, production_kg,
		 inspection_id, last_tapping_date, created_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			worker_id = excluded.worker_id,
			worker_name = excluded.worker_name,
			date = excluded.date,
			section = excluded.section,
			status = excluded.status,
			production_kg = excluded.production_kg,
			inspection_id = excluded.inspection_id,
			last_tapping_date = excluded.last_tapping_date,
			completed_at = excluded.completed_at
	`

	_, err := s.db.ExecContext(ctx, query,
		string(task.ID),
		string(task.WorkerID),
		task.WorkerName,
		task.Date.String(),
		string(task.Section),
		string(task.Status),
		task.ProductionKg.String(),
		nullString(string(task.InspectionID)),
		nullDate(task.LastTappingDate),
		task.CreatedAt.UTC().Format(time.RFC3339),
		nullTime(task.CompletedAt),
	)
	return farm.Unavailable("save task", err)
}

const taskColumns = `id, worker_id, worker_name, date, section, status, production_kg,
	inspection_id, last_tapping_date, created_at, completed_at`

// GetTask retrieves a task by ID.
func (s *Store) GetTask(ctx context.Context, id farm.TaskID) (*farm.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tasks, err := s.queryTasks(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", string(id))
	if err != nil {
		return nil, err
	}
	if len(tasks) == 0 {
		return nil, farm.ErrTaskNotFound
	}
	return &tasks[0], nil
}

// ListTasks returns tasks matching filter, newest first.
func (s *Store) ListTasks(ctx context.Context, filter farm.TaskFilter) ([]farm.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []any
	if filter.WorkerID != "" {
		where = append(where, "worker_id = ?")
		args = append(args, string(filter.WorkerID))
	}
	if filter.Section != "" {
		where = append(where, "section = ?")
		args = append(args, string(filter.Section))
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := "SELECT " + taskColumns + " FROM tasks"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY date DESC, created_at DESC"

	return s.queryTasks(ctx, query, args...)
}

// UpdateStatus applies a lifecycle transition.
func (s *Store) UpdateStatus(ctx context.Context, id farm.TaskID, status farm.TaskStatus) error {
	switch status {
	case farm.StatusCompleted:
		return &farm.ArgumentError{Field: "status", Reason: "use MarkCompleted to complete a task"}
	case farm.StatusInspected:
		return &farm.ArgumentError{Field: "status", Reason: "use SaveInspection to inspect a task"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var from []any
	for _, candidate := range []farm.TaskStatus{farm.StatusPending, farm.StatusInProgress, farm.StatusCompleted} {
		if farm.CanTransition(candidate, status) {
			from = append(from, string(candidate))
		}
	}
	if len(from) == 0 {
		return s.rejectTransition(ctx, id, status)
	}

	query := "UPDATE tasks SET status = ? WHERE id = ? AND status IN (" + placeholders(len(from)) + ")"
	args := append([]any{string(status), string(id)}, from...)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return farm.Unavailable("update status", err)
	}
	return s.checkTransition(ctx, res, id, status)
}

func (s *Store) rejectTransition(ctx context.Context, id farm.TaskID, to farm.TaskStatus) error {
	var current string
	err := s.db.QueryRowContext(ctx, "SELECT status FROM tasks WHERE id = ?", string(id)).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return farm.ErrTaskNotFound
	}
	if err != nil {
		return farm.Unavailable("load task status", err)
	}
	return &farm.TransitionError{TaskID: id, From: farm.TaskStatus(current), To: to}
}

func (s *Store) queryTasks(ctx context.Context, query string, args ...any) ([]farm.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, farm.Unavailable("query tasks", err)
	}
	defer rows.Close()

	var tasks []farm.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, farm.Unavailable("scan task", err)
		}
		tasks = append(tasks, task)
	}
	if err := rows.Err(); err != nil {
		return nil, farm.Unavailable("iterate tasks", err)
	}
	return tasks, nil
}

func scanTask(rows *sql.Rows) (farm.Task, error) {
	var task farm.Task
	var id, workerID, date, section, status, production, createdAt string
	var inspectionID, lastTapping, completedAt sql.NullString

	err := rows.Scan(&id, &workerID, &task.WorkerName, &date, &section, &status,
		&production, &inspectionID, &lastTapping, &createdAt, &completedAt)
	if err != nil {
		return task, err
	}

	task.ID = farm.TaskID(id)
	task.WorkerID = farm.WorkerID(workerID)
	task.Section = farm.SectionCode(section)
	task.Status = farm.TaskStatus(status)
	task.InspectionID = farm.InspectionID(inspectionID.String)
	if task.Date, err = farm.ParseDate(date); err != nil {
		return task, err
	}
	if task.ProductionKg, err = decimal.NewFromString(production); err != nil {
		return task, fmt.Errorf("invalid production_kg %q: %w", production, err)
	}
	if lastTapping.Valid {
		d, err := farm.ParseDate(lastTapping.String)
		if err != nil {
			return task, err
		}
		task.LastTappingDate = &d
	}
	if task.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return task, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	if completedAt.Valid {
		c, err := time.Parse(time.RFC3339, completedAt.String)
		if err != nil {
			return task, fmt.Errorf("invalid completed_at %q: %w", completedAt.String, err)
		}
		task.CompletedAt = &c
	}
	return task, nil
}

// =============================================================================
// INSPECTIONS
// =============================================================================

// SaveInspection records an inspection and moves its task to inspected in
// one transaction.
func (s *Store) SaveInspection(ctx context.Context, insp farm.Inspection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if insp.CreatedAt.IsZero() {
		insp.CreatedAt = time.Now().UTC()
	}

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return farm.Unavailable("begin transaction", err)
	}
	defer sqlTx.Rollback()

	res, err := sqlTx.ExecContext(ctx,
		"UPDATE tasks SET status = ?, inspection_id = ? WHERE id = ? AND status = ?",
		string(farm.StatusInspected), string(insp.ID), string(insp.TaskID), string(farm.StatusCompleted),
	)
	if err != nil {
		return farm.Unavailable("update task status", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return farm.Unavailable("rows affected", err)
	}
	if n == 0 {
		var current string
		err := sqlTx.QueryRowContext(ctx, "SELECT status FROM tasks WHERE id = ?", string(insp.TaskID)).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return farm.ErrTaskNotFound
		}
		if err != nil {
			return farm.Unavailable("load task status", err)
		}
		return &farm.TransitionError{TaskID: insp.TaskID, From: farm.TaskStatus(current), To: farm.StatusInspected}
	}

	_, err = sqlTx.ExecContext(ctx, `
		INSERT INTO inspections
		(id, task_id, inspector_id, inspector_name, date, angle, depth, injuries,
		 spout_cleanliness, overall_score, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(insp.ID), string(insp.TaskID), insp.InspectorID, insp.InspectorName,
		insp.Date.String(), insp.Angle, insp.Depth, insp.Injuries, insp.SpoutCleanliness,
		insp.OverallScore.String(), nullString(insp.Notes),
		insp.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return farm.Unavailable("insert inspection", err)
	}

	return farm.Unavailable("commit inspection", sqlTx.Commit())
}

// GetInspectionsByTask returns every inspection of a task, oldest first.
func (s *Store) GetInspectionsByTask(ctx context.Context, taskID farm.TaskID) ([]farm.Inspection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, task_id, inspector_id, inspector_name, date, angle, depth, injuries,
		       spout_cleanliness, overall_score, notes, created_at
		FROM inspections WHERE task_id = ? ORDER BY created_at ASC`, string(taskID))
	if err != nil {
		return nil, farm.Unavailable("query inspections", err)
	}
	defer rows.Close()

	var result []farm.Inspection
	for rows.Next() {
		insp, err := scanInspection(rows)
		if err != nil {
			return nil, farm.Unavailable("scan inspection", err)
		}
		result = append(result, insp)
	}
	if err := rows.Err(); err != nil {
		return nil, farm.Unavailable("iterate inspections", err)
	}
	return result, nil
}

func scanInspection(rows *sql.Rows) (farm.Inspection, error) {
	var insp farm.Inspection
	var id, taskID, date, score, createdAt string
	var notes sql.NullString

	err := rows.Scan(&id, &taskID, &insp.InspectorID, &insp.InspectorName, &date,
		&insp.Angle, &insp.Depth, &insp.Injuries, &insp.SpoutCleanliness,
		&score, &notes, &createdAt)
	if err != nil {
		return insp, err
	}

	insp.ID = farm.InspectionID(id)
	insp.TaskID = farm.TaskID(taskID)
	insp.Notes = notes.String
	if insp.Date, err = farm.ParseDate(date); err != nil {
		return insp, err
	}
	if insp.OverallScore, err = decimal.NewFromString(score); err != nil {
		return insp, fmt.Errorf("invalid overall_score %q: %w", score, err)
	}
	if insp.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return insp, fmt.Errorf("invalid created_at %q: %w", createdAt, err)
	}
	return insp, nil
}

// Reset deletes all data. Used by tests and demo reloads.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"inspections", "tasks"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return farm.Unavailable("reset "+table, err)
		}
	}
	return nil
}

// Helper functions

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDate(d *farm.Date) sql.NullString {
	if d == nil || d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
