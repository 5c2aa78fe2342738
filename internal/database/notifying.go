package database

import (
	"context"
	"sync"
	"time"

	"github.com/therealutkarshpriyadarshi/videosync/internal/logging"
	"github.com/therealutkarshpriyadarshi/videosync/internal/metrics"
	"github.com/therealutkarshpriyadarshi/videosync/pkg/models"
)

// Publisher delivers committed change events to the change feed
type Publisher interface {
	Publish(ctx context.Context, event models.ChangeEvent) error
}

// NotifyingStore wraps a VideoStore and publishes a change event after every
// successful write. A failed publish is logged and does not fail the write:
// the row is committed and clients recover through a refresh.
//
// Writes and their publications are serialized, so within one process events
// reach the feed in commit order.
type NotifyingStore struct {
	VideoStore
	publisher Publisher
	logger    *logging.Logger
	writeMu   sync.Mutex
}

// NewNotifyingStore decorates store with change publication
func NewNotifyingStore(store VideoStore, publisher Publisher, logger *logging.Logger) *NotifyingStore {
	if logger == nil {
		logger = logging.Nop()
	}
	return &NotifyingStore{
		VideoStore: store,
		publisher:  publisher,
		logger:     logger.WithComponent("store"),
	}
}

// Insert stores the video and publishes an insert event
func (s *NotifyingStore) Insert(ctx context.Context, video *models.Video) (*models.Video, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	start := time.Now()
	saved, err := s.VideoStore.Insert(ctx, video)
	s.observe("insert", video.OwnerID, start, err)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, models.NewChangeEvent(models.ChangeInsert, saved))
	return saved, nil
}

// ListActive lists the owner's active videos
func (s *NotifyingStore) ListActive(ctx context.Context, ownerID string) ([]*models.Video, error) {
	start := time.Now()
	videos, err := s.VideoStore.ListActive(ctx, ownerID)
	s.observe("list", ownerID, start, err)
	return videos, err
}

// Search runs a text search over the owner's active videos
func (s *NotifyingStore) Search(ctx context.Context, ownerID, query string) ([]*models.Video, error) {
	start := time.Now()
	videos, err := s.VideoStore.Search(ctx, ownerID, query)
	s.observe("search", ownerID, start, err)
	return videos, err
}

// Update applies patch and publishes an update event
func (s *NotifyingStore) Update(ctx context.Context, id, ownerID string, patch models.VideoPatch) (*models.Video, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	start := time.Now()
	updated, err := s.VideoStore.Update(ctx, id, ownerID, patch)
	s.observe("update", ownerID, start, err)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, models.NewChangeEvent(models.ChangeUpdate, updated))
	return updated, nil
}

// SoftDelete deactivates the video and publishes a delete event
func (s *NotifyingStore) SoftDelete(ctx context.Context, id, ownerID string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	start := time.Now()
	err := s.VideoStore.SoftDelete(ctx, id, ownerID)
	s.observe("soft_delete", ownerID, start, err)
	if err != nil {
		return err
	}
	s.publish(ctx, models.NewChangeEvent(models.ChangeDelete, &models.Video{
		ID:        id,
		OwnerID:   ownerID,
		IsActive:  false,
		UpdatedAt: time.Now().UTC(),
	}))
	return nil
}

func (s *NotifyingStore) observe(operation, ownerID string, start time.Time, err error) {
	duration := time.Since(start)
	metrics.RecordStoreOperation(operation, err, duration.Seconds())
	s.logger.LogStoreOperation(operation, ownerID, duration, err)
}

func (s *NotifyingStore) publish(ctx context.Context, event models.ChangeEvent) {
	// The write already committed; a cancelled request must not drop the event
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	if err := s.publisher.Publish(pubCtx, event); err != nil {
		s.logger.WithVideoID(event.RecordID()).ErrorWithErr("Failed to publish change event", err)
	}
}
