package client

import (
	"sync"

	"trane/types"
)

// TaskState is the latest known progress and status of one job.
type TaskState struct {
	Progress int
	Status   types.JobStatus
	Error    string
}

// TaskEntry pairs a job id with its state for ordered rendering.
type TaskEntry struct {
	ID string
	TaskState
}

// Registry maps job ids to their latest state. Updates are
// last-write-wins: ordering is the transport's promise, not the
// registry's.
type Registry struct {
	mu    sync.RWMutex
	state map[string]TaskState
	order []string
}

// NewRegistry creates an empty task registry.
func NewRegistry() *Registry {
	return &Registry{state: make(map[string]TaskState)}
}

// Upsert records the latest state for a job, last write wins.
func (r *Registry) Upsert(id string, state TaskState) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, seen := r.state[id]; !seen {
		r.order = append(r.order, id)
	}
	r.state[id] = state
}

// Get returns the latest state for a job.
func (r *Registry) Get(id string) (TaskState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.state[id]
	return state, ok
}

// All returns every tracked job in first-seen order.
func (r *Registry) All() []TaskEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]TaskEntry, 0, len(r.order))
	for _, id := range r.order {
		entries = append(entries, TaskEntry{ID: id, TaskState: r.state[id]})
	}
	return entries
}

// Remove forgets a job.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, seen := r.state[id]; !seen {
		return
	}
	delete(r.state, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}
