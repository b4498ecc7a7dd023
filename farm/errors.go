/*
errors.go - Error types shared by the engine, stores and API

ERROR CATEGORIES:
  1. Dependency errors - the task repository could not be read or written
  2. Argument errors   - missing or malformed input, rejected before any query
  3. Lifecycle errors  - unknown task or a status change the lifecycle forbids

  "No tapping history" is NOT an error. It is an eligible section.

USAGE:
  if errors.Is(err, farm.ErrDependencyUnavailable) {
      // show "could not verify eligibility", never a verdict
  }
*/
package farm

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrDependencyUnavailable is returned when the task repository could not
	// be queried or written. Callers must not turn it into an eligibility verdict.
	ErrDependencyUnavailable = errors.New("dependency unavailable")

	// ErrInvalidArgument is returned for empty identifiers or malformed input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrTaskNotFound is returned when a referenced task doesn't exist.
	ErrTaskNotFound = errors.New("task not found")

	// ErrInvalidTransition is returned when a status change skips or reverses
	// the task lifecycle.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// DependencyError wraps a storage failure with the operation that failed.
type DependencyError struct {
	Op  string
	Err error
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s: %v: %v", e.Op, ErrDependencyUnavailable, e.Err)
}

// Unwrap exposes both the sentinel and the underlying cause.
func (e *DependencyError) Unwrap() []error {
	return []error{ErrDependencyUnavailable, e.Err}
}

// Unavailable wraps err as a DependencyError. A nil err stays nil.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	var de *DependencyError
	if errors.As(err, &de) {
		return err
	}
	return &DependencyError{Op: op, Err: err}
}

// ArgumentError names the offending input.
type ArgumentError struct {
	Field  string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ArgumentError) Unwrap() error {
	return ErrInvalidArgument
}

// TransitionError describes a rejected lifecycle move.
type TransitionError struct {
	TaskID TaskID
	From   TaskStatus
	To     TaskStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("task %s cannot move from %s to %s", e.TaskID, e.From, e.To)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsDependencyUnavailable returns true if the repository could not be reached.
func IsDependencyUnavailable(err error) bool {
	return errors.Is(err, ErrDependencyUnavailable)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrInvalidTransition)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound)
}
