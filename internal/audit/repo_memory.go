package audit

import (
	"context"
	"sync"
)

// MemoryRepo backs STORE_BACKEND=memory and tests.
type MemoryRepo struct {
	mu     sync.RWMutex
	events []Event
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(_ context.Context, e Event) error {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRepo) List(_ context.Context, f Filter) ([]Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	limit := f.limit()
	out := []Event{}
	for i := len(r.events) - 1; i >= 0 && len(out) < limit; i-- {
		if f.matches(r.events[i]) {
			out = append(out, r.events[i])
		}
	}
	return out, nil
}

// Events returns every event in append order.
func (r *MemoryRepo) Events() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Event(nil), r.events...)
}
