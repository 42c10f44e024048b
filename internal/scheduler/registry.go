package scheduler

import (
	"context"
	"sort"
	"sync"
)

// jobHandle is an armed timer or recurring loop. Cancelling its context disarms it; firings
// already dispatched run on a detached context and are not interrupted.
type jobHandle struct {
	ctx       context.Context
	cancel    context.CancelFunc
	recurring bool
}

func newHandle(parent context.Context, recurring bool) *jobHandle {
	ctx, cancel := context.WithCancel(parent)
	return &jobHandle{ctx: ctx, cancel: cancel, recurring: recurring}
}

// Registry maps a ScheduledCall id to its armed handle.
// Arm, disarm and replace are serialized; handles compare by identity so a stale timer
// can never remove the handle that replaced it.
type Registry struct {
	mu   sync.Mutex
	jobs map[string]*jobHandle
}

func NewRegistry() *Registry {
	return &Registry{jobs: map[string]*jobHandle{}}
}

// put registers h under id, cancelling whatever was there.
func (r *Registry) put(id string, h *jobHandle) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.jobs[id]; ok && old != h {
		old.cancel()
	}
	r.jobs[id] = h
}

// Cancel disarms and removes id. Unknown ids are a no-op.
func (r *Registry) Cancel(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	h, ok := r.jobs[id]
	if !ok {
		return false
	}
	h.cancel()
	delete(r.jobs, id)
	return true
}

// removeIf removes id only while it still maps to h.
func (r *Registry) removeIf(id string, h *jobHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.jobs[id]; ok && cur == h {
		h.cancel()
		delete(r.jobs, id)
		return true
	}
	return false
}

func (r *Registry) isCurrent(id string, h *jobHandle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.jobs[id] == h
}

func (r *Registry) Has(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.jobs[id]
	return ok
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// IDs returns the armed ids, sorted.
func (r *Registry) IDs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.jobs))
	for id := range r.jobs {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// CancelAll disarms every handle.
func (r *Registry) CancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, h := range r.jobs {
		h.cancel()
		delete(r.jobs, id)
	}
}
