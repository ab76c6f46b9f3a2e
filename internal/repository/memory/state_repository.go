package memory

import (
	"context"
	"sync"
)

// StateRepository is a process-local key-value store, used for ephemeral runs
// and tests.
type StateRepository struct {
	mu     sync.RWMutex
	values map[string][]byte
}

// NewStateRepository returns an empty store.
func NewStateRepository() *StateRepository {
	return &StateRepository{values: make(map[string][]byte)}
}

// Read returns a copy of the stored value.
func (r *StateRepository) Read(_ context.Context, key string) ([]byte, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	value, ok := r.values[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), value...), true, nil
}

// Write stores a copy of value.
func (r *StateRepository) Write(_ context.Context, key string, value []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.values[key] = append([]byte(nil), value...)
	return nil
}
