// Package selection persists the "currently selected video" across sessions.
package selection

import (
	"context"
	"sync"
)

// BaseKey is the storage key of the persisted selection
const BaseKey = "currentVideoId"

// Store is durable key/value storage for selections. Loading a key that was
// never saved returns "" and no error.
type Store interface {
	Load(ctx context.Context, key string) (string, error)
	Save(ctx context.Context, key, id string) error
	Clear(ctx context.Context, key string) error
}

// Key returns the storage key for ownerID. Namespaced keys keep one user's
// selection from resolving against another user's library on a shared profile.
func Key(ownerID string, namespaced bool) string {
	if !namespaced || ownerID == "" {
		return BaseKey
	}
	return BaseKey + ":" + ownerID
}

// MemoryStore keeps selections for the life of the process
type MemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Load(_ context.Context, key string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.values[key], nil
}

func (m *MemoryStore) Save(_ context.Context, key, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = id
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
