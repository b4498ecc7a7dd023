// Package store provides in-memory farm store implementations.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/seringal/tapping-engine/farm"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory implements farm.TaskStore and farm.InspectionStore.
// All reads see every write that returned before them.
type Memory struct {
	mu          sync.RWMutex
	tasks       map[farm.TaskID]farm.Task
	order       []farm.TaskID
	inspections map[farm.TaskID][]farm.Inspection
	now         func() time.Time
}

func NewMemory() *Memory {
	return &Memory{
		tasks:       make(map[farm.TaskID]farm.Task),
		inspections: make(map[farm.TaskID][]farm.Inspection),
		now:         time.Now,
	}
}

func (m *Memory) SaveTask(_ context.Context, task farm.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.tasks[task.ID]; !exists {
		m.order = append(m.order, task.ID)
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = m.now().UTC()
	}
	m.tasks[task.ID] = cloneTask(task)
	return nil
}

func (m *Memory) GetTask(_ context.Context, id farm.TaskID) (*farm.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	task, ok := m.tasks[id]
	if !ok {
		return nil, farm.ErrTaskNotFound
	}
	task = cloneTask(task)
	return &task, nil
}

func (m *Memory) ListTasks(_ context.Context, filter farm.TaskFilter) ([]farm.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []farm.Task
	for _, id := range m.order {
		task := m.tasks[id]
		if filter.WorkerID != "" && task.WorkerID != filter.WorkerID {
			continue
		}
		if filter.Section != "" && task.Section != filter.Section {
			continue
		}
		if filter.Status != "" && task.Status != filter.Status {
			continue
		}
		result = append(result, cloneTask(task))
	}
	return result, nil
}

func (m *Memory) UpdateStatus(_ context.Context, id farm.TaskID, status farm.TaskStatus) error {
	switch status {
	case farm.StatusCompleted:
		return &farm.ArgumentError{Field: "status", Reason: "use MarkCompleted to complete a task"}
	case farm.StatusInspected:
		return &farm.ArgumentError{Field: "status", Reason: "use SaveInspection to inspect a task"}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[id]
	if !ok {
		return farm.ErrTaskNotFound
	}
	if !farm.CanTransition(task.Status, status) {
		return &farm.TransitionError{TaskID: id, From: task.Status, To: status}
	}
	task.Status = status
	m.tasks[id] = task
	return nil
}

// FindCompletedTasks returns completed tappings, most recent first.
func (m *Memory) FindCompletedTasks(_ context.Context, workerID farm.WorkerID, section farm.SectionCode) ([]farm.CompletedTapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []farm.CompletedTapping
	for _, id := range m.order {
		task := m.tasks[id]
		if task.WorkerID != workerID || task.Section != section {
			continue
		}
		if task.Status != farm.StatusCompleted || task.LastTappingDate == nil {
			continue
		}
		result = append(result, farm.CompletedTapping{TaskID: task.ID, LastTappingDate: *task.LastTappingDate})
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].LastTappingDate.After(result[j].LastTappingDate)
	})
	return result, nil
}

func (m *Memory) MarkCompleted(_ context.Context, id farm.TaskID, completedOn farm.Date) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[id]
	if !ok {
		return farm.ErrTaskNotFound
	}
	if !farm.CanTransition(task.Status, farm.StatusCompleted) {
		return &farm.TransitionError{TaskID: id, From: task.Status, To: farm.StatusCompleted}
	}
	now := m.now().UTC()
	task.Status = farm.StatusCompleted
	task.LastTappingDate = completedOn.Ptr()
	task.CompletedAt = &now
	m.tasks[id] = task
	return nil
}

// =============================================================================
// INSPECTIONS
// =============================================================================

func (m *Memory) SaveInspection(_ context.Context, insp farm.Inspection) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	task, ok := m.tasks[insp.TaskID]
	if !ok {
		return farm.ErrTaskNotFound
	}
	if !farm.CanTransition(task.Status, farm.StatusInspected) {
		return &farm.TransitionError{TaskID: task.ID, From: task.Status, To: farm.StatusInspected}
	}
	if insp.CreatedAt.IsZero() {
		insp.CreatedAt = m.now().UTC()
	}
	task.Status = farm.StatusInspected
	task.InspectionID = insp.ID
	m.tasks[task.ID] = task
	m.inspections[insp.TaskID] = append(m.inspections[insp.TaskID], insp)
	return nil
}

func (m *Memory) GetInspectionsByTask(_ context.Context, taskID farm.TaskID) ([]farm.Inspection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]farm.Inspection, len(m.inspections[taskID]))
	copy(result, m.inspections[taskID])
	return result, nil
}

// cloneTask copies pointer fields so callers can't mutate stored state.
func cloneTask(t farm.Task) farm.Task {
	if t.LastTappingDate != nil {
		d := *t.LastTappingDate
		t.LastTappingDate = &d
	}
	if t.CompletedAt != nil {
		c := *t.CompletedAt
		t.CompletedAt = &c
	}
	return t
}
