/*
dto.go - Data Transfer Objects for API requests and responses

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

DATES:
  Calendar dates are "YYYY-MM-DD" strings (farm.Date marshals itself).
  Timestamps are RFC3339.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/seringal/tapping-engine/farm"
	"github.com/seringal/tapping-engine/tapping"
)

// =============================================================================
// TASKS
// =============================================================================

// TaskDTO represents a tapping task in API responses.
type TaskDTO struct {
	ID              string          `json:"id"`
	WorkerID        string          `json:"worker_id"`
	WorkerName      string          `json:"worker_name"`
	Date            farm.Date       `json:"date"`
	Section         string          `json:"section"`
	Status          string          `json:"status"`
	ProductionKg    decimal.Decimal `json:"production_kg"`
	InspectionID    string          `json:"inspection_id,omitempty"`
	LastTappingDate *farm.Date      `json:"last_tapping_date,omitempty"`
	CreatedAt       string          `json:"created_at"`
	CompletedAt     string          `json:"completed_at,omitempty"`
}

// CreateTaskRequest is the body of POST /api/tasks.
type CreateTaskRequest struct {
	WorkerID     string           `json:"worker_id"`
	WorkerName   string           `json:"worker_name"`
	Section      string           `json:"section"`
	Date         *farm.Date       `json:"date,omitempty"`
	ProductionKg *decimal.Decimal `json:"production_kg,omitempty"`
}

// CompleteTaskRequest is the optional body of POST /api/tasks/{id}/complete.
type CompleteTaskRequest struct {
	CompletionDate *farm.Date `json:"completion_date,omitempty"`
}

// =============================================================================
// ELIGIBILITY
// =============================================================================

// EligibilityDTO is the verdict for one section.
type EligibilityDTO struct {
	WorkerID          string     `json:"worker_id"`
	Section           string     `json:"section"`
	AsOf              farm.Date  `json:"as_of"`
	CanTap            bool       `json:"can_tap"`
	NextAvailableDate *farm.Date `json:"next_available_date,omitempty"`
	DaysRemaining     *int       `json:"days_remaining,omitempty"`
	Message           string     `json:"message"`
}

// WorkerEligibilityDTO lists the verdict for each of a worker's sections.
type WorkerEligibilityDTO struct {
	WorkerID     string           `json:"worker_id"`
	AsOf         farm.Date        `json:"as_of"`
	RecoveryDays int              `json:"recovery_days"`
	Sections     []EligibilityDTO `json:"sections"`
}

// =============================================================================
// INSPECTIONS
// =============================================================================

// CreateInspectionRequest is the body of POST /api/tasks/{id}/inspections.
type CreateInspectionRequest struct {
	InspectorID      string     `json:"inspector_id"`
	InspectorName    string     `json:"inspector_name"`
	Date             *farm.Date `json:"date,omitempty"`
	Angle            int        `json:"angle"`
	Depth            int        `json:"depth"`
	Injuries         int        `json:"injuries"`
	SpoutCleanliness int        `json:"spout_cleanliness"`
	Notes            string     `json:"notes"`
}

// InspectionDTO represents an inspection in API responses.
type InspectionDTO struct {
	ID               string    `json:"id"`
	TaskID           string    `json:"task_id"`
	InspectorID      string    `json:"inspector_id"`
	InspectorName    string    `json:"inspector_name"`
	Date             farm.Date `json:"date"`
	Angle            int       `json:"angle"`
	Depth            int       `json:"depth"`
	Injuries         int       `json:"injuries"`
	SpoutCleanliness int       `json:"spout_cleanliness"`
	OverallScore     string    `json:"overall_score"`
	Notes            string    `json:"notes,omitempty"`
	CreatedAt        string    `json:"created_at"`
}

// =============================================================================
// ROSTER / ERRORS
// =============================================================================

// RosterDTO is the farm's worker-to-section assignment.
type RosterDTO struct {
	TotalTrees int                  `json:"total_trees"`
	Workers    []tapping.Assignment `json:"workers"`
}

// ErrorResponse is returned for every non-2xx response.
type ErrorResponse struct {
	Error       string          `json:"error"`
	Details     string          `json:"details,omitempty"`
	Eligibility *EligibilityDTO `json:"eligibility,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toTaskDTO(t farm.Task) TaskDTO {
	dto := TaskDTO{
		ID:              string(t.ID),
		WorkerID:        string(t.WorkerID),
		WorkerName:      t.WorkerName,
		Date:            t.Date,
		Section:         string(t.Section),
		Status:          string(t.Status),
		ProductionKg:    t.ProductionKg,
		InspectionID:    string(t.InspectionID),
		LastTappingDate: t.LastTappingDate,
		CreatedAt:       t.CreatedAt.Format(time.RFC3339),
	}
	if t.CompletedAt != nil {
		dto.CompletedAt = t.CompletedAt.Format(time.RFC3339)
	}
	return dto
}

func toEligibilityDTO(worker farm.WorkerID, section farm.SectionCode, asOf farm.Date, r tapping.Result) EligibilityDTO {
	return EligibilityDTO{
		WorkerID:          string(worker),
		Section:           string(section),
		AsOf:              asOf,
		CanTap:            r.CanTap,
		NextAvailableDate: r.NextAvailableDate,
		DaysRemaining:     r.DaysRemaining,
		Message:           r.Summary(section),
	}
}

func toInspectionDTO(i farm.Inspection) InspectionDTO {
	return InspectionDTO{
		ID:               string(i.ID),
		TaskID:           string(i.TaskID),
		InspectorID:      i.InspectorID,
		InspectorName:    i.InspectorName,
		Date:             i.Date,
		Angle:            i.Angle,
		Depth:            i.Depth,
		Injuries:         i.Injuries,
		SpoutCleanliness: i.SpoutCleanliness,
		OverallScore:     i.OverallScore.StringFixed(1),
		Notes:            i.Notes,
		CreatedAt:        i.CreatedAt.Format(time.RFC3339),
	}
}
