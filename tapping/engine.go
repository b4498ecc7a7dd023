/*
engine.go - Tapping-cycle eligibility ("Sistema D4")

PURPOSE:
  A section of trees may not be tapped again until RecoveryDays calendar
  days have passed since the worker's most recent completed tapping of that
  section. The engine answers "can this worker tap this section on this
  day, and if not, when?"

RULE:
  last  = max(LastTappingDate) over completed tasks for (worker, section)
  no last                 -> eligible
  days  = asOf - last     (whole calendar days, both at midnight)
  days >= RecoveryDays    -> eligible
  otherwise               -> blocked until last + RecoveryDays,
                             DaysRemaining = RecoveryDays - days (>= 1)

  Pending and in-progress tasks never count. Sections are independent.

FAILURES:
  Repository errors propagate as farm.ErrDependencyUnavailable. The engine
  never guesses a verdict when it could not read history.

CONCURRENCY:
  Engine holds no mutable state; all methods are safe for concurrent use.

SEE ALSO:
  - batch.go:   Fan-out over many sections
  - roster.go:  Worker-to-section assignments
*/
package tapping

import (
	"context"
	"log/slog"

	"github.com/seringal/tapping-engine/farm"
)

// DefaultRecoveryDays is the Sistema D4 interval.
const DefaultRecoveryDays = 4

// Engine evaluates tapping eligibility over a task repository.
type Engine struct {
	finder       farm.CompletedTaskFinder
	marker       farm.CompletionMarker
	clock        farm.Clock
	recoveryDays int
	logger       *slog.Logger
}

// Option configures an Engine.
type Option func(*Engine)

// WithRecoveryDays overrides the interval between tappings. Values below 1
// are ignored.
func WithRecoveryDays(days int) Option {
	return func(e *Engine) {
		if days >= 1 {
			e.recoveryDays = days
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewEngine creates an engine. marker may be nil for read-only use; clock
// defaults to a UTC SystemClock.
func NewEngine(finder farm.CompletedTaskFinder, marker farm.CompletionMarker, clock farm.Clock, opts ...Option) *Engine {
	if clock == nil {
		clock = farm.SystemClock{}
	}
	e := &Engine{
		finder:       finder,
		marker:       marker,
		clock:        clock,
		recoveryDays: DefaultRecoveryDays,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// RecoveryDays returns the configured interval.
func (e *Engine) RecoveryDays() int { return e.recoveryDays }

// Today returns the engine clock's current date.
func (e *Engine) Today() farm.Date { return e.clock.Today() }

// CheckEligibility decides whether worker may tap section on asOf.
func (e *Engine) CheckEligibility(ctx context.Context, worker farm.WorkerID, section farm.SectionCode, asOf farm.Date) (Result, error) {
	if err := validate(worker, section); err != nil {
		return Result{}, err
	}
	return e.check(ctx, worker, section, asOf)
}

// CheckToday is CheckEligibility as of the clock's current date.
func (e *Engine) CheckToday(ctx context.Context, worker farm.WorkerID, section farm.SectionCode) (Result, error) {
	return e.CheckEligibility(ctx, worker, section, e.clock.Today())
}

func (e *Engine) check(ctx context.Context, worker farm.WorkerID, section farm.SectionCode, asOf farm.Date) (Result, error) {
	tappings, err := e.finder.FindCompletedTasks(ctx, worker, section)
	if err != nil {
		e.logger.WarnContext(ctx, "eligibility lookup failed",
			slog.String("worker_id", string(worker)),
			slog.String("section", string(section)),
			slog.Any("error", err))
		return Result{}, farm.Unavailable("find completed tasks", err)
	}

	last, ok := mostRecent(tappings)
	if !ok {
		return Eligible(), nil
	}
	return e.evaluate(last, asOf), nil
}

// evaluate applies the recovery rule to a known last tapping date.
func (e *Engine) evaluate(last, asOf farm.Date) Result {
	elapsed := farm.DaysBetween(last, asOf)
	if elapsed >= e.recoveryDays {
		return Eligible()
	}
	remaining := e.recoveryDays - elapsed
	// A last tapping dated after asOf still waits at most one full cycle.
	if remaining > e.recoveryDays {
		remaining = e.recoveryDays
	}
	next := last.AddDays(e.recoveryDays)
	return Result{CanTap: false, NextAvailableDate: &next, DaysRemaining: &remaining}
}

func mostRecent(tappings []farm.CompletedTapping) (farm.Date, bool) {
	var last farm.Date
	found := false
	for _, t := range tappings {
		if t.LastTappingDate.IsZero() {
			continue
		}
		if !found || t.LastTappingDate.After(last) {
			last = t.LastTappingDate
			found = true
		}
	}
	return last, found
}

func validate(worker farm.WorkerID, section farm.SectionCode) error {
	if worker == "" {
		return &farm.ArgumentError{Field: "worker_id", Reason: "required"}
	}
	if section == "" {
		return &farm.ArgumentError{Field: "section", Reason: "required"}
	}
	return nil
}

// RecordCompletion marks a task completed. A nil completedOn stamps today.
// Subsequent checks for the task's worker and section observe the new date.
func (e *Engine) RecordCompletion(ctx context.Context, taskID farm.TaskID, completedOn *farm.Date) (farm.Date, error) {
	if taskID == "" {
		return farm.Date{}, &farm.ArgumentError{Field: "task_id", Reason: "required"}
	}
	if e.marker == nil {
		return farm.Date{}, farm.Unavailable("mark completed", errNoMarker)
	}
	date := e.clock.Today()
	if completedOn != nil && !completedOn.IsZero() {
		date = *completedOn
	}
	if err := e.marker.MarkCompleted(ctx, taskID, date); err != nil {
		if farm.IsNotFound(err) || farm.IsClientError(err) {
			return farm.Date{}, err
		}
		return farm.Date{}, farm.Unavailable("mark completed", err)
	}
	e.logger.InfoContext(ctx, "tapping recorded",
		slog.String("task_id", string(taskID)),
		slog.String("date", date.String()))
	return date, nil
}
