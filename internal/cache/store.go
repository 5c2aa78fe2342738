package cache

import (
	"context"
	"time"

	"github.com/therealutkarshpriyadarshi/videosync/internal/database"
	"github.com/therealutkarshpriyadarshi/videosync/internal/logging"
	"github.com/therealutkarshpriyadarshi/videosync/pkg/models"
)

// VideoStore is a read-through cache in front of a database.VideoStore.
// Only single-record reads are cached; every write invalidates the record.
// Cache failures are logged and fall through to the store.
type VideoStore struct {
	database.VideoStore
	cache  *Cache
	ttl    time.Duration
	logger *logging.Logger
}

// NewVideoStore wraps store with c
func NewVideoStore(store database.VideoStore, c *Cache, ttl time.Duration, logger *logging.Logger) *VideoStore {
	if logger == nil {
		logger = logging.Nop()
	}
	return &VideoStore{
		VideoStore: store,
		cache:      c,
		ttl:        ttl,
		logger:     logger.WithComponent("cache"),
	}
}

// Get serves from cache when possible
func (s *VideoStore) Get(ctx context.Context, id, ownerID string) (*models.Video, error) {
	cached, err := s.cache.GetVideo(ctx, ownerID, id)
	if err != nil {
		s.logger.WithVideoID(id).WarnWithErr("Video cache read failed", err)
	}
	if cached != nil {
		return cached, nil
	}

	video, err := s.VideoStore.Get(ctx, id, ownerID)
	if err != nil {
		return nil, err
	}

	if err := s.cache.SetVideo(ctx, video, s.ttl); err != nil {
		s.logger.WithVideoID(id).WarnWithErr("Video cache write failed", err)
	}
	return video, nil
}

// Update invalidates the cached record after the store accepts the patch
func (s *VideoStore) Update(ctx context.Context, id, ownerID string, patch models.VideoPatch) (*models.Video, error) {
	video, err := s.VideoStore.Update(ctx, id, ownerID, patch)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, id, ownerID)
	return video, nil
}

// SoftDelete invalidates the cached record after deactivation
func (s *VideoStore) SoftDelete(ctx context.Context, id, ownerID string) error {
	if err := s.VideoStore.SoftDelete(ctx, id, ownerID); err != nil {
		return err
	}
	s.invalidate(ctx, id, ownerID)
	return nil
}

func (s *VideoStore) invalidate(ctx context.Context, id, ownerID string) {
	if err := s.cache.DeleteVideo(ctx, ownerID, id); err != nil {
		s.logger.WithVideoID(id).WarnWithErr("Video cache invalidation failed", err)
	}
}
