/*
store.go - Persistence contracts for tasks and inspections

PURPOSE:
  Defines the interface between the domain logic and the database. The
  eligibility engine depends only on the two narrow contracts below;
  everything else is used by the HTTP layer.

KEY INTERFACES:
  CompletedTaskFinder: read side of the eligibility rule
  CompletionMarker:    the one write the rule depends on
  TaskStore:           full task CRUD
  InspectionStore:     inspection records

CONSISTENCY:
  Implementations must give read-your-writes for a single actor: once
  MarkCompleted returns nil, FindCompletedTasks observes the new date.

FAILURES:
  Any I/O failure must surface as an error wrapping ErrDependencyUnavailable
  (see Unavailable). Returning an empty slice on failure is a bug.

IMPLEMENTATIONS:
  - store/sqlite/sqlite.go: SQLite
  - farm/store/memory.go:   In-memory for testing
*/
package farm

import "context"

// CompletedTaskFinder returns the completed tappings of a worker on a section.
// Only tasks with status completed and a non-nil LastTappingDate are returned.
// Section codes match exactly (case-sensitive). Order is unspecified.
type CompletedTaskFinder interface {
	FindCompletedTasks(ctx context.Context, workerID WorkerID, section SectionCode) ([]CompletedTapping, error)
}

// CompletionMarker marks a task completed and stamps its tapping date.
// Returns ErrTaskNotFound for unknown IDs.
type CompletionMarker interface {
	MarkCompleted(ctx context.Context, taskID TaskID, completedOn Date) error
}

// TaskFilter narrows ListTasks. Zero fields match everything.
type TaskFilter struct {
	WorkerID WorkerID
	Section  SectionCode
	Status   TaskStatus
}

// TaskStore handles persistence of tasks.
type TaskStore interface {
	CompletedTaskFinder
	CompletionMarker

	SaveTask(ctx context.Context, task Task) error
	// GetTask returns ErrTaskNotFound when the ID is unknown.
	GetTask(ctx context.Context, id TaskID) (*Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error)
	UpdateStatus(ctx context.Context, id TaskID, status TaskStatus) error
}

// InspectionStore persists inspections. SaveInspection also moves the task
// to inspected and links the inspection, atomically.
type InspectionStore interface {
	SaveInspection(ctx context.Context, inspection Inspection) error
	GetInspectionsByTask(ctx context.Context, taskID TaskID) ([]Inspection, error)
}
