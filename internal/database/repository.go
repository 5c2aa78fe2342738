package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/therealutkarshpriyadarshi/videosync/pkg/models"
)

const videoColumns = `id, title, url, video_type, youtube_video_id, embed_url, thumbnail_url,
	       duration, description, category, is_active, user_id, metadata, created_at, updated_at`

// Repository is the Postgres-backed video store
type Repository struct {
	db  *DB
	now func() time.Time
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

// Insert creates a new video record owned by video.OwnerID
func (r *Repository) Insert(ctx context.Context, video *models.Video) (*models.Video, error) {
	v, err := prepareInsert(video, r.now())
	if err != nil {
		return nil, err
	}

	query := `
		INSERT INTO exercise_videos (id, title, url, video_type, youtube_video_id, embed_url,
		                             thumbnail_url, duration, description, category, is_active,
		                             user_id, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING ` + videoColumns

	row := r.db.Pool.QueryRow(ctx, query,
		v.ID, v.Title, v.OriginalURL, string(v.Type), optionalString(v.YouTubeID), v.EmbedURL,
		optionalString(v.Thumbnail), optionalString(v.Duration), optionalString(v.Description),
		v.Category, v.IsActive, v.OwnerID, v.Metadata, v.CreatedAt, v.UpdatedAt,
	)

	saved, err := scanVideo(row)
	if err != nil {
		return nil, fmt.Errorf("failed to save video: %w", err)
	}
	return saved, nil
}

// Get retrieves an active video by ID for its owner
func (r *Repository) Get(ctx context.Context, id, ownerID string) (*models.Video, error) {
	query := `
		SELECT ` + videoColumns + `
		FROM exercise_videos
		WHERE id = $1 AND user_id = $2 AND is_active = TRUE
	`

	video, err := scanVideo(r.db.Pool.QueryRow(ctx, query, id, ownerID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch video: %w", err)
	}
	return video, nil
}

// ListActive retrieves the owner's active videos, newest first
func (r *Repository) ListActive(ctx context.Context, ownerID string) ([]*models.Video, error) {
	query := `
		SELECT ` + videoColumns + `
		FROM exercise_videos
		WHERE user_id = $1 AND is_active = TRUE
		ORDER BY created_at DESC
	`

	videos, err := r.queryVideos(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch videos: %w", err)
	}
	return videos, nil
}

// ListByCategory retrieves the owner's active videos in one category
func (r *Repository) ListByCategory(ctx context.Context, ownerID, category string) ([]*models.Video, error) {
	query := `
		SELECT ` + videoColumns + `
		FROM exercise_videos
		WHERE user_id = $1 AND category = $2 AND is_active = TRUE
		ORDER BY created_at DESC
	`

	videos, err := r.queryVideos(ctx, query, ownerID, category)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch videos by category: %w", err)
	}
	return videos, nil
}

// Update applies the mutable fields of patch to an active video of the owner
func (r *Repository) Update(ctx context.Context, id, ownerID string, patch models.VideoPatch) (*models.Video, error) {
	sets, args := buildUpdate(patch, r.now(), "$%d")
	args = append(args, id, ownerID)

	query := fmt.Sprintf(`
		UPDATE exercise_videos
		SET %s
		WHERE id = $%d AND user_id = $%d AND is_active = TRUE
		RETURNING %s
	`, strings.Join(sets, ", "), len(args)-1, len(args), videoColumns)

	video, err := scanVideo(r.db.Pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update video: %w", err)
	}
	return video, nil
}

// SoftDelete marks the owner's video inactive. The row is kept.
func (r *Repository) SoftDelete(ctx context.Context, id, ownerID string) error {
	query := `
		UPDATE exercise_videos
		SET is_active = FALSE, updated_at = $3
		WHERE id = $1 AND user_id = $2
	`

	tag, err := r.db.Pool.Exec(ctx, query, id, ownerID, r.now())
	if err != nil {
		return fmt.Errorf("failed to delete video: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Search matches query against title, description and category
func (r *Repository) Search(ctx context.Context, ownerID, query string) ([]*models.Video, error) {
	sql := `
		SELECT ` + videoColumns + `
		FROM exercise_videos
		WHERE user_id = $1 AND is_active = TRUE
		  AND (title ILIKE $2 ESCAPE '\' OR description ILIKE $2 ESCAPE '\' OR category ILIKE $2 ESCAPE '\')
		ORDER BY created_at DESC
	`

	videos, err := r.queryVideos(ctx, sql, ownerID, likePattern(query))
	if err != nil {
		return nil, fmt.Errorf("failed to search videos: %w", err)
	}
	return videos, nil
}

// Health checks if the database is healthy
func (r *Repository) Health(ctx context.Context) error {
	return r.db.Health(ctx)
}

// Close closes the underlying pool
func (r *Repository) Close() {
	r.db.Close()
}

func (r *Repository) queryVideos(ctx context.Context, query string, args ...interface{}) ([]*models.Video, error) {
	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	videos := make([]*models.Video, 0)
	for rows.Next() {
		video, err := scanVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		videos = append(videos, video)
	}

	return videos, rows.Err()
}

// buildUpdate renders the SET clauses for patch. placeholder is a format
// verb producing the driver's positional parameter, e.g. "$%d" or "?".
func buildUpdate(patch models.VideoPatch, now time.Time, placeholder string) ([]string, []interface{}) {
	var sets []string
	var args []interface{}

	add := func(column string, value interface{}) {
		args = append(args, value)
		p := placeholder
		if strings.Contains(placeholder, "%d") {
			p = fmt.Sprintf(placeholder, len(args))
		}
		sets = append(sets, column+" = "+p)
	}

	if patch.Title != nil {
		add("title", *patch.Title)
	}
	if patch.Description != nil {
		add("description", optionalString(*patch.Description))
	}
	if patch.Category != nil {
		category := *patch.Category
		if strings.TrimSpace(category) == "" {
			category = models.DefaultCategory
		}
		add("category", category)
	}
	if patch.Metadata != nil {
		add("metadata", patch.Metadata)
	}
	if patch.Thumbnail != nil {
		add("thumbnail_url", optionalString(*patch.Thumbnail))
	}
	if patch.Duration != nil {
		add("duration", optionalString(*patch.Duration))
	}
	add("updated_at", now)

	return sets, args
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanVideo(row rowScanner) (*models.Video, error) {
	var (
		v                                        models.Video
		videoType                                string
		youtubeID, thumbnail, duration, describe *string
	)

	err := row.Scan(
		&v.ID, &v.Title, &v.OriginalURL, &videoType, &youtubeID, &v.EmbedURL, &thumbnail,
		&duration, &describe, &v.Category, &v.IsActive, &v.OwnerID, &v.Metadata,
		&v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	v.Type = models.VideoType(videoType)
	v.YouTubeID = nullString(youtubeID)
	v.Thumbnail = nullString(thumbnail)
	v.Duration = nullString(duration)
	v.Description = nullString(describe)
	if v.Metadata == nil {
		v.Metadata = make(models.Metadata)
	}
	return &v, nil
}
