// Package notify provides the per-task publish/subscribe hub that carries
// live progress events from the analysis runner to connected clients.
package notify

import (
	"log/slog"
	"sync"
	"time"
)

// EventType classifies a hub event.
type EventType string

const (
	EventStatus   EventType = "status"
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Event is one message published for a task. Data is marshaled as-is into
// the outbound payload.
type Event struct {
	TaskID    string    `json:"task_id"`
	Type      EventType `json:"message_type"`
	Data      any       `json:"data"`
	Timestamp time.Time `json:"timestamp"`
}

// subscriberBuffer is the per-subscriber channel depth. A subscriber that
// falls this far behind is treated as dead and dropped.
const subscriberBuffer = 32

// Hub maps task identifiers to live subscriber channels. Subscribing does
// not require the task to exist; a subscription lives until it is
// explicitly removed. Publishing never blocks the producer: delivery to a
// subscriber that is gone or saturated removes that subscriber and moves
// on.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan Event]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers a new delivery channel for the task.
func (h *Hub) Subscribe(taskID string) chan Event {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[taskID] == nil {
		h.subs[taskID] = make(map[chan Event]struct{})
	}
	h.subs[taskID][ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes a delivery channel. Safe to call for a
// channel that was already dropped by the hub.
func (h *Hub) Unsubscribe(taskID string, ch chan Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.remove(taskID, ch)
}

// remove must be called with mu held.
func (h *Hub) remove(taskID string, ch chan Event) {
	set, ok := h.subs[taskID]
	if !ok {
		return
	}
	if _, ok := set[ch]; !ok {
		return
	}
	delete(set, ch)
	close(ch)
	if len(set) == 0 {
		delete(h.subs, taskID)
	}
}

// Publish delivers the event to every current subscriber of the task, in
// publish order per subscriber. Failure to deliver to one subscriber never
// affects the others and never reaches the caller.
func (h *Hub) Publish(taskID string, event Event) {
	event.TaskID = taskID
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	h.mu.RLock()
	// Snapshot so a concurrent unsubscribe cannot corrupt iteration.
	targets := make([]chan Event, 0, len(h.subs[taskID]))
	for ch := range h.subs[taskID] {
		targets = append(targets, ch)
	}

	var dead []chan Event
	for _, ch := range targets {
		select {
		case ch <- event:
		default:
			dead = append(dead, ch)
		}
	}
	h.mu.RUnlock()

	if len(dead) == 0 {
		return
	}

	h.mu.Lock()
	for _, ch := range dead {
		h.remove(taskID, ch)
	}
	h.mu.Unlock()
	slog.Warn("dropped stalled subscribers", "task_id", taskID, "count", len(dead))
}

// SubscriberCount returns the number of live subscribers for a task.
func (h *Hub) SubscriberCount(taskID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[taskID])
}
