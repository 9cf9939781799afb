package settings

import (
	"context"
	"sync"
)

// MemoryRepo keeps settings in process memory.
type MemoryRepo struct {
	mu   sync.Mutex
	rows map[string]Record
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{rows: map[string]Record{}} }

func (r *MemoryRepo) Get(ctx context.Context, key string) (Record, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.rows[key]
	return rec, ok, nil
}

func (r *MemoryRepo) Put(ctx context.Context, rec Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rows[rec.Key] = rec
	return nil
}
