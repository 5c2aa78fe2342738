package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/therealutkarshpriyadarshi/videosync/internal/database"
	"github.com/therealutkarshpriyadarshi/videosync/internal/logging"
	"github.com/therealutkarshpriyadarshi/videosync/internal/resolver"
	"github.com/therealutkarshpriyadarshi/videosync/pkg/models"
)

const defaultLockTTL = 2 * time.Minute

type videoStore interface {
	Get(ctx context.Context, id, ownerID string) (*models.Video, error)
	Update(ctx context.Context, id, ownerID string, patch models.VideoPatch) (*models.Video, error)
}

type enricher interface {
	Enrich(ctx context.Context, id string) (*resolver.Enrichment, error)
}

type locker interface {
	AcquireLock(ctx context.Context, resource string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, resource string) error
}

// refresher re-enriches provider videos. Its writes go through the
// notifying store, so every client of the owner receives an update event.
type refresher struct {
	store    videoStore
	enricher enricher
	locks    locker // optional
	lockTTL  time.Duration
	logger   *logging.Logger
	now      func() time.Time
}

func newRefresher(store videoStore, e enricher, locks locker, logger *logging.Logger) *refresher {
	if logger == nil {
		logger = logging.Nop()
	}
	return &refresher{
		store:    store,
		enricher: e,
		locks:    locks,
		lockTTL:  defaultLockTTL,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Handle processes one refresh job. A nil return acknowledges the job;
// errors are retried by the queue.
func (r *refresher) Handle(ctx context.Context, job *models.RefreshJob) error {
	logger := r.logger.WithJobID(job.ID).WithVideoID(job.VideoID).WithOwnerID(job.OwnerID)

	if r.locks != nil {
		resource := "refresh:" + job.VideoID
		ok, err := r.locks.AcquireLock(ctx, resource, r.lockTTL)
		if err != nil {
			return fmt.Errorf("acquire refresh lock: %w", err)
		}
		if !ok {
			logger.Debug("Refresh already in progress, skipping")
			return nil
		}
		defer func() {
			if err := r.locks.ReleaseLock(context.WithoutCancel(ctx), resource); err != nil {
				logger.WarnWithErr("Failed to release refresh lock", err)
			}
		}()
	}

	video, err := r.store.Get(ctx, job.VideoID, job.OwnerID)
	if errors.Is(err, database.ErrNotFound) {
		logger.Info("Video no longer exists, dropping refresh")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load video: %w", err)
	}
	if video.Type != models.VideoTypeYouTube {
		logger.Debug("Direct video has no provider metadata")
		return nil
	}

	enrichment, err := r.enricher.Enrich(ctx, video.YouTubeID)
	switch {
	case errors.Is(err, resolver.ErrEnrichmentDisabled):
		logger.Warn("Metadata enrichment disabled, dropping refresh")
		return nil
	case errors.Is(err, resolver.ErrNotFound):
		logger.Warn("Provider video is unavailable")
		return nil
	case err != nil:
		return fmt.Errorf("enrich video: %w", err)
	}

	patch := refreshPatch(video, enrichment, r.now())
	if _, err := r.store.Update(ctx, video.ID, video.OwnerID, patch); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			logger.Info("Video removed during refresh")
			return nil
		}
		return fmt.Errorf("update video: %w", err)
	}

	logger.Info("Video metadata refreshed")
	return nil
}

// refreshPatch builds the update for fresh provider metadata. User-chosen
// titles and descriptions are kept; user metadata such as lastPlayed survives
// the merge.
func refreshPatch(video *models.Video, e *resolver.Enrichment, now time.Time) models.VideoPatch {
	metadata := e.Metadata.Merge(video.Metadata)
	metadata[models.MetaRefreshedAt] = now.Format(time.RFC3339Nano)

	patch := models.VideoPatch{Metadata: metadata}
	if e.Thumbnail != "" && e.Thumbnail != video.Thumbnail {
		patch.Thumbnail = &e.Thumbnail
	}
	if e.Duration != "" && e.Duration != video.Duration {
		patch.Duration = &e.Duration
	}
	if e.Title != "" && (video.Title == "" || video.Title == models.DefaultTitle) {
		patch.Title = &e.Title
	}
	if e.Description != "" && video.Description == "" {
		patch.Description = &e.Description
	}
	return patch
}
