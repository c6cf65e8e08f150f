// Package task owns the lifecycle of analysis tasks: creation, status
// transitions, result storage and deletion. All mutation goes through the
// Registry so the state machine invariants hold under concurrency.
package task

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/go2siri/github-pr-metrics/internal/domain"
	"github.com/go2siri/github-pr-metrics/internal/notify"
)

var (
	// ErrTaskNotFound reports an operation on an unknown task ID.
	ErrTaskNotFound = errors.New("task not found")
	// ErrTaskConflict reports a delete of a task that is still pending or
	// running.
	ErrTaskConflict = errors.New("task is still in progress")
	// ErrQueueFull reports that the analysis worker pool rejected the job.
	ErrQueueFull = errors.New("analysis queue is full")
)

// Publisher is the event sink for task status changes. *notify.Hub
// satisfies it.
type Publisher interface {
	Publish(taskID string, event notify.Event)
}

// Submitter hands runner jobs to a worker pool. *worker.Pool satisfies it.
type Submitter interface {
	Submit(job func()) bool
}

// StatusUpdate describes a partial task mutation. Nil fields are left
// untouched.
type StatusUpdate struct {
	Status   domain.TaskStatus
	Progress *int
	Message  *string
	Error    *string
}

// RunFunc executes the analysis for one task. It is invoked on a pool
// worker and reports back through Registry.Update.
type RunFunc func(taskID string, params Params)

// Registry tracks every known task and its result.
type Registry struct {
	mu      sync.RWMutex
	tasks   map[string]*domain.Task
	results map[string]*domain.AnalysisResult

	hub  Publisher
	pool Submitter
	run  RunFunc

	// Injected for tests.
	now   func() time.Time
	newID func() string
}

// NewRegistry creates a Registry publishing to hub and executing runner
// jobs on pool. The run function is wired afterwards via SetRunFunc
// because the runner itself needs the registry to report status.
func NewRegistry(hub Publisher, pool Submitter) *Registry {
	return &Registry{
		tasks:   make(map[string]*domain.Task),
		results: make(map[string]*domain.AnalysisResult),
		hub:     hub,
		pool:    pool,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// SetRunFunc installs the function executed for each created task.
func (r *Registry) SetRunFunc(fn RunFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.run = fn
}

// Create registers a new pending task and schedules its analysis run.
func (r *Registry) Create(params Params) (domain.Task, error) {
	r.mu.Lock()
	run := r.run
	if run == nil {
		r.mu.Unlock()
		return domain.Task{}, errors.New("registry has no run function")
	}
	t := &domain.Task{
		ID:        r.newID(),
		Status:    domain.StatusPending,
		Progress:  0,
		Message:   "Task queued",
		CreatedAt: r.now(),
	}
	r.tasks[t.ID] = t
	snapshot := *t
	r.mu.Unlock()

	if !r.pool.Submit(func() { run(snapshot.ID, params) }) {
		r.mu.Lock()
		delete(r.tasks, snapshot.ID)
		r.mu.Unlock()
		return domain.Task{}, fmt.Errorf("create task: %w", ErrQueueFull)
	}
	return snapshot, nil
}

// Get returns a copy of the task.
func (r *Registry) Get(id string) (domain.Task, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tasks[id]
	if !ok {
		return domain.Task{}, false
	}
	return *t, true
}

// List returns copies of all tasks, newest first.
func (r *Registry) List() []domain.Task {
	r.mu.RLock()
	out := make([]domain.Task, 0, len(r.tasks))
	for _, t := range r.tasks {
		out = append(out, *t)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of tracked tasks.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tasks)
}

// StoreResult attaches the analysis result to a task.
func (r *Registry) StoreResult(id string, result *domain.AnalysisResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tasks[id]; !ok {
		return
	}
	r.results[id] = result
}

// Result returns the stored result for a completed task.
func (r *Registry) Result(id string) (*domain.AnalysisResult, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.results[id]
	return res, ok
}

// Update applies a status update and publishes the matching hub event.
// Updates for unknown tasks are ignored, terminal tasks are immutable and
// progress never moves backwards.
func (r *Registry) Update(id string, upd StatusUpdate) {
	r.mu.Lock()
	t, ok := r.tasks[id]
	if !ok || t.Status.Terminal() {
		r.mu.Unlock()
		return
	}

	if upd.Status != "" && upd.Status != t.Status {
		t.Status = upd.Status
		switch upd.Status {
		case domain.StatusRunning:
			if t.StartedAt == nil {
				now := r.now()
				t.StartedAt = &now
			}
		case domain.StatusCompleted, domain.StatusFailed:
			if t.CompletedAt == nil {
				now := r.now()
				t.CompletedAt = &now
			}
		}
	}
	if upd.Progress != nil && *upd.Progress > t.Progress {
		t.Progress = *upd.Progress
	}
	if t.Status == domain.StatusCompleted {
		t.Progress = 100
	}
	if upd.Message != nil {
		t.Message = *upd.Message
	}
	if upd.Error != nil {
		t.Error = *upd.Error
	}
	snapshot := *t
	result := r.results[id]
	r.mu.Unlock()

	r.publish(snapshot, result)
}

// eventPayload is the wire shape of a task event. Result is only present
// on the terminal complete event.
type eventPayload struct {
	domain.Task
	Result *domain.AnalysisResult `json:"result,omitempty"`
}

func (r *Registry) publish(t domain.Task, result *domain.AnalysisResult) {
	if r.hub == nil {
		return
	}
	eventType := notify.EventStatus
	payload := eventPayload{Task: t}
	switch t.Status {
	case domain.StatusCompleted:
		eventType = notify.EventComplete
		payload.Result = result
	case domain.StatusFailed:
		eventType = notify.EventError
	case domain.StatusRunning:
		eventType = notify.EventProgress
	}
	r.hub.Publish(t.ID, notify.Event{Type: eventType, Data: payload})
}

// Delete removes a finished task and its result. Deleting a pending or
// running task fails with ErrTaskConflict.
func (r *Registry) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	if !t.Status.Terminal() {
		return fmt.Errorf("%w: %s", ErrTaskConflict, t.Status)
	}
	delete(r.tasks, id)
	delete(r.results, id)
	return nil
}
