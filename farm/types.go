/*
types.go - Core domain types for the seringal task system

PURPOSE:
  Defines the entities every other package shares: tapping tasks, their
  lifecycle, and quality inspections. Storage and HTTP layers map to and
  from these types; the eligibility engine only reads them.

KEY TYPES:
  Task:        One tapping assignment of a worker on a tree section
  TaskStatus:  pending -> in-progress -> completed -> inspected
  Inspection:  Quality ratings recorded against a completed task

SEE ALSO:
  - store.go: Persistence contracts
  - tapping/engine.go: Eligibility rule over completed tasks
*/
package farm

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type WorkerID string
type SectionCode string
type TaskID string
type InspectionID string

// =============================================================================
// TASK LIFECYCLE
// =============================================================================

type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in-progress"
	StatusCompleted  TaskStatus = "completed"
	StatusInspected  TaskStatus = "inspected"
)

// transitions lists the allowed next states for each status.
var transitions = map[TaskStatus][]TaskStatus{
	StatusPending:    {StatusInProgress, StatusCompleted},
	StatusInProgress: {StatusCompleted},
	StatusCompleted:  {StatusInspected},
}

func (s TaskStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted, StatusInspected:
		return true
	}
	return false
}

// CanTransition reports whether a task may move from one status to another.
// Workers may finish a pending task directly without starting it first.
func CanTransition(from, to TaskStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Task is a tapping assignment. LastTappingDate is only meaningful once the
// task is completed.
type Task struct {
	ID              TaskID
	WorkerID        WorkerID
	WorkerName      string
	Date            Date
	Section         SectionCode
	Status          TaskStatus
	ProductionKg    decimal.Decimal
	InspectionID    InspectionID
	LastTappingDate *Date
	CreatedAt       time.Time
	CompletedAt     *time.Time
}

// CompletedTapping is the projection the eligibility rule reads.
type CompletedTapping struct {
	TaskID          TaskID
	LastTappingDate Date
}

// =============================================================================
// INSPECTION
// =============================================================================

const (
	MinRating = 1
	MaxRating = 5
)

// Inspection is a technical quality check on a completed tapping.
// Injuries is inverted: 5 means no bark injuries.
type Inspection struct {
	ID               InspectionID
	TaskID           TaskID
	InspectorID      string
	InspectorName    string
	Date             Date
	Angle            int
	Depth            int
	Injuries         int
	SpoutCleanliness int
	OverallScore     decimal.Decimal
	Notes            string
	CreatedAt        time.Time
}

var four = decimal.NewFromInt(4)

// Score returns the mean of the four ratings.
func (i Inspection) Score() decimal.Decimal {
	sum := decimal.NewFromInt(int64(i.Angle + i.Depth + i.Injuries + i.SpoutCleanliness))
	return sum.Div(four)
}

// Validate checks every rating is within [MinRating, MaxRating].
func (i Inspection) Validate() error {
	ratings := []struct {
		field string
		value int
	}{
		{"angle", i.Angle},
		{"depth", i.Depth},
		{"injuries", i.Injuries},
		{"spout_cleanliness", i.SpoutCleanliness},
	}
	for _, r := range ratings {
		if r.value < MinRating || r.value > MaxRating {
			return &ArgumentError{Field: r.field, Reason: "rating must be between 1 and 5"}
		}
	}
	if i.TaskID == "" {
		return &ArgumentError{Field: "task_id", Reason: "required"}
	}
	return nil
}
