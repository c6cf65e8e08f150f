package domain

import "time"

// TaskStatus represents the lifecycle state of an analysis task
type TaskStatus string

const (
	StatusPending   TaskStatus = "pending"
	StatusRunning   TaskStatus = "running"
	StatusCompleted TaskStatus = "completed"
	StatusFailed    TaskStatus = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task is one tracked analysis job. It is owned by the task registry and
// mutated only through the registry's update operation.
type Task struct {
	ID          string     `json:"task_id"`
	Status      TaskStatus `json:"status"`
	Progress    int        `json:"progress"`
	Message     string     `json:"message,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}
