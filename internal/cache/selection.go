package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// SelectionStore keeps persisted selections in Redis so they follow the
// user across machines. Keys never expire.
type SelectionStore struct {
	client *redis.Client
}

// NewSelectionStore creates a selection store sharing c's connection
func NewSelectionStore(c *Cache) *SelectionStore {
	return &SelectionStore{client: c.client}
}

func selectionKey(key string) string {
	return "selection:" + key
}

// Load returns the stored video id, or "" when nothing is stored
func (s *SelectionStore) Load(ctx context.Context, key string) (string, error) {
	id, err := s.client.Get(ctx, selectionKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load selection: %w", err)
	}
	return id, nil
}

// Save stores id under key
func (s *SelectionStore) Save(ctx context.Context, key, id string) error {
	if err := s.client.Set(ctx, selectionKey(key), id, 0).Err(); err != nil {
		return fmt.Errorf("failed to save selection: %w", err)
	}
	return nil
}

// Clear removes key
func (s *SelectionStore) Clear(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, selectionKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to clear selection: %w", err)
	}
	return nil
}
