package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/therealutkarshpriyadarshi/videosync/pkg/models"
)

// ErrNotFound is returned when a video does not exist, is inactive, or is
// owned by a different user. The three cases are indistinguishable to callers.
var ErrNotFound = errors.New("video not found")

// ErrInvalidVideo wraps record validation failures on insert
var ErrInvalidVideo = errors.New("invalid video")

// VideoStore is the durable, owner-scoped collection of video records
type VideoStore interface {
	Insert(ctx context.Context, video *models.Video) (*models.Video, error)
	Get(ctx context.Context, id, ownerID string) (*models.Video, error)
	ListActive(ctx context.Context, ownerID string) ([]*models.Video, error)
	ListByCategory(ctx context.Context, ownerID, category string) ([]*models.Video, error)
	Update(ctx context.Context, id, ownerID string, patch models.VideoPatch) (*models.Video, error)
	SoftDelete(ctx context.Context, id, ownerID string) error
	Search(ctx context.Context, ownerID, query string) ([]*models.Video, error)
	Health(ctx context.Context) error
	Close()
}

// prepareInsert fills the server-assigned fields and defaults of a new record
func prepareInsert(video *models.Video, now time.Time) (*models.Video, error) {
	v := video.Clone()
	if v.ID == "" {
		v.ID = uuid.New().String()
	}
	if strings.TrimSpace(v.Title) == "" {
		v.Title = models.DefaultTitle
	}
	if strings.TrimSpace(v.Category) == "" {
		v.Category = models.DefaultCategory
	}
	if err := v.Validate(); err != nil {
		return nil, errors.Join(ErrInvalidVideo, err)
	}

	v.IsActive = true
	v.CreatedAt = now
	v.UpdatedAt = now
	v.Metadata = v.Metadata.Merge(models.Metadata{
		models.MetaAddedAt:    now.Format(time.RFC3339Nano),
		models.MetaSource:     "rehab_app",
		models.MetaAPIVersion: "1.0",
	})
	return v, nil
}

// likePattern turns a free-text query into a substring LIKE pattern with
// the wildcard characters escaped by backslash.
func likePattern(query string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(strings.ToLower(strings.TrimSpace(query))) + "%"
}

func nullString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
