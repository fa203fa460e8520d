package types

import (
	"time"

	"github.com/google/uuid"
)

// TaskPriority orders tasks inside the global queue.
type TaskPriority string

const (
	PriorityLow      TaskPriority = "low"
	PriorityMedium   TaskPriority = "medium"
	PriorityHigh     TaskPriority = "high"
	PriorityCritical TaskPriority = "critical"
)

// Rank maps a priority to a sortable integer; higher runs first.
func (p TaskPriority) Rank() int {
	switch p {
	case PriorityCritical:
		return 3
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	case PriorityLow:
		return 0
	}
	return 1
}

// ValidTaskPriority reports whether p is a member of the closed priority enum.
func ValidTaskPriority(p TaskPriority) bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// TaskStatus is the lifecycle state of a task.
//
// Transitions form a DAG:
//
//	pending → assigned → running → {completed | failed}
//	cancelled is reachable from pending, assigned and running.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskAssigned  TaskStatus = "assigned"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// CanTransition reports whether the status DAG permits moving to next.
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	switch s {
	case TaskPending:
		return next == TaskAssigned || next == TaskCancelled
	case TaskAssigned:
		return next == TaskRunning || next == TaskCancelled
	case TaskRunning:
		return next == TaskCompleted || next == TaskFailed || next == TaskCancelled
	}
	return false
}

// RequiredCapability names a skill the assigned agent must hold at or
// above MinimumProficiency.
type RequiredCapability struct {
	Name               string  `json:"name"`
	MinimumProficiency float64 `json:"minimum_proficiency"`
}

// Task is a unit of work flowing through the queue and the dispatcher.
// Once terminal, a task is immutable.
type Task struct {
	ID                   uuid.UUID            `json:"id"`
	Title                string               `json:"title"`
	Description          string               `json:"description"`
	Priority             TaskPriority         `json:"priority"`
	Status               TaskStatus           `json:"status"`
	RequiredCapabilities []RequiredCapability `json:"required_capabilities,omitempty"`
	EstimatedDuration    time.Duration        `json:"estimated_duration,omitempty"`
	Dependencies         []uuid.UUID          `json:"dependencies,omitempty"`
	AssignedAgent        *uuid.UUID           `json:"assigned_agent,omitempty"`
	CreatedAt            time.Time            `json:"created_at"`
	AssignedAt           *time.Time           `json:"assigned_at,omitempty"`
	CompletedAt          *time.Time           `json:"completed_at,omitempty"`
}

// NewTask constructs a pending task with a fresh id.
func NewTask(title, description string, priority TaskPriority) *Task {
	return &Task{
		ID:          uuid.New(),
		Title:       title,
		Description: description,
		Priority:    priority,
		Status:      TaskPending,
		CreatedAt:   time.Now().UTC(),
	}
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() Task {
	out := *t
	out.RequiredCapabilities = make([]RequiredCapability, len(t.RequiredCapabilities))
	copy(out.RequiredCapabilities, t.RequiredCapabilities)
	out.Dependencies = make([]uuid.UUID, len(t.Dependencies))
	copy(out.Dependencies, t.Dependencies)
	if t.AssignedAgent != nil {
		id := *t.AssignedAgent
		out.AssignedAgent = &id
	}
	if t.AssignedAt != nil {
		ts := *t.AssignedAt
		out.AssignedAt = &ts
	}
	if t.CompletedAt != nil {
		ts := *t.CompletedAt
		out.CompletedAt = &ts
	}
	return out
}

// TaskResult is emitted exactly once per terminal transition.
type TaskResult struct {
	TaskID          uuid.UUID `json:"task_id"`
	AgentID         uuid.UUID `json:"agent_id"`
	Success         bool      `json:"success"`
	ExecutionTimeMS uint64    `json:"execution_time_ms"`
	Output          string    `json:"output,omitempty"`
	Error           string    `json:"error,omitempty"`
	QualityScore    float64   `json:"quality_score,omitempty"`
	CompletedAt     time.Time `json:"completed_at"`
}
