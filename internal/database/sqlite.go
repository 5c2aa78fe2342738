package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/therealutkarshpriyadarshi/videosync/pkg/models"

	"modernc.org/sqlite" // SQLite driver (pure Go, no CGO)
)

// foldFunc is a Unicode-aware lower(). The builtin only folds ASCII, while
// search patterns are folded with strings.ToLower.
const foldFunc = "unicode_lower"

func init() {
	sqlite.MustRegisterDeterministicScalarFunction(foldFunc, 1, func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
		switch v := args[0].(type) {
		case string:
			return strings.ToLower(v), nil
		case []byte:
			return strings.ToLower(string(v)), nil
		default:
			return v, nil
		}
	})
}

// sqliteTime keeps timestamps fixed-width so text ordering matches time ordering
const sqliteTime = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore is an embedded video store for local mode and tests
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteStore opens (or creates) the database at path and runs migrations
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single writer connection avoids SQLITE_BUSY between pooled connections
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := store.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS exercise_videos (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		url TEXT NOT NULL,
		video_type TEXT NOT NULL CHECK(video_type IN ('youtube', 'direct')),
		youtube_video_id TEXT,
		embed_url TEXT NOT NULL,
		thumbnail_url TEXT,
		duration TEXT,
		description TEXT,
		category TEXT NOT NULL DEFAULT 'General',
		is_active INTEGER NOT NULL DEFAULT 1,
		user_id TEXT NOT NULL,
		metadata TEXT NOT NULL DEFAULT '{}',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_exercise_videos_owner_active ON exercise_videos(user_id, is_active, created_at);
	CREATE INDEX IF NOT EXISTS idx_exercise_videos_owner_category ON exercise_videos(user_id, category);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Insert creates a new video record owned by video.OwnerID
func (s *SQLiteStore) Insert(ctx context.Context, video *models.Video) (*models.Video, error) {
	v, err := prepareInsert(video, s.now())
	if err != nil {
		return nil, err
	}

	meta, err := v.Metadata.Value()
	if err != nil {
		return nil, fmt.Errorf("failed to save video: %w", err)
	}

	query := `
	INSERT INTO exercise_videos (id, title, url, video_type, youtube_video_id, embed_url,
	                             thumbnail_url, duration, description, category, is_active,
	                             user_id, metadata, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?, ?, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		v.ID, v.Title, v.OriginalURL, string(v.Type), nullable(v.YouTubeID), v.EmbedURL,
		nullable(v.Thumbnail), nullable(v.Duration), nullable(v.Description),
		v.Category, v.OwnerID, string(meta.([]byte)),
		v.CreatedAt.Format(sqliteTime), v.UpdatedAt.Format(sqliteTime),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to save video: %w", err)
	}

	return s.get(ctx, v.ID, v.OwnerID, false)
}

// Get retrieves an active video by ID for its owner
func (s *SQLiteStore) Get(ctx context.Context, id, ownerID string) (*models.Video, error) {
	return s.get(ctx, id, ownerID, true)
}

func (s *SQLiteStore) get(ctx context.Context, id, ownerID string, activeOnly bool) (*models.Video, error) {
	query := `SELECT ` + videoColumns + ` FROM exercise_videos WHERE id = ? AND user_id = ?`
	if activeOnly {
		query += ` AND is_active = 1`
	}

	video, err := scanSQLiteVideo(s.db.QueryRowContext(ctx, query, id, ownerID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch video: %w", err)
	}
	return video, nil
}

// ListActive retrieves the owner's active videos, newest first
func (s *SQLiteStore) ListActive(ctx context.Context, ownerID string) ([]*models.Video, error) {
	query := `
	SELECT ` + videoColumns + `
	FROM exercise_videos
	WHERE user_id = ? AND is_active = 1
	ORDER BY created_at DESC, rowid DESC
	`

	videos, err := s.queryVideos(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch videos: %w", err)
	}
	return videos, nil
}

// ListByCategory retrieves the owner's active videos in one category
func (s *SQLiteStore) ListByCategory(ctx context.Context, ownerID, category string) ([]*models.Video, error) {
	query := `
	SELECT ` + videoColumns + `
	FROM exercise_videos
	WHERE user_id = ? AND category = ? AND is_active = 1
	ORDER BY created_at DESC, rowid DESC
	`

	videos, err := s.queryVideos(ctx, query, ownerID, category)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch videos by category: %w", err)
	}
	return videos, nil
}

// Update applies the mutable fields of patch to an active video of the owner
func (s *SQLiteStore) Update(ctx context.Context, id, ownerID string, patch models.VideoPatch) (*models.Video, error) {
	sets, args := buildUpdate(patch, s.now(), "?")
	for i, arg := range args {
		switch a := arg.(type) {
		case time.Time:
			args[i] = a.Format(sqliteTime)
		case *string:
			args[i] = nullable(nullString(a))
		case models.Metadata:
			raw, err := a.Value()
			if err != nil {
				return nil, fmt.Errorf("failed to update video: %w", err)
			}
			args[i] = string(raw.([]byte))
		}
	}
	args = append(args, id, ownerID)

	query := `UPDATE exercise_videos SET ` + strings.Join(sets, ", ") +
		` WHERE id = ? AND user_id = ? AND is_active = 1`

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update video: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return nil, fmt.Errorf("failed to update video: %w", err)
	} else if n == 0 {
		return nil, ErrNotFound
	}

	return s.get(ctx, id, ownerID, true)
}

// SoftDelete marks the owner's video inactive. The row is kept.
func (s *SQLiteStore) SoftDelete(ctx context.Context, id, ownerID string) error {
	query := `UPDATE exercise_videos SET is_active = 0, updated_at = ? WHERE id = ? AND user_id = ?`

	res, err := s.db.ExecContext(ctx, query, s.now().Format(sqliteTime), id, ownerID)
	if err != nil {
		return fmt.Errorf("failed to delete video: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete video: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// Search matches query against title, description and category, case-insensitively
func (s *SQLiteStore) Search(ctx context.Context, ownerID, query string) ([]*models.Video, error) {
	q := `
	SELECT ` + videoColumns + `
	FROM exercise_videos
	WHERE user_id = ? AND is_active = 1
	  AND (` + foldFunc + `(title) LIKE ? ESCAPE '\'
	       OR ` + foldFunc + `(coalesce(description, '')) LIKE ? ESCAPE '\'
	       OR ` + foldFunc + `(category) LIKE ? ESCAPE '\')
	ORDER BY created_at DESC, rowid DESC
	`

	pattern := likePattern(query)
	videos, err := s.queryVideos(ctx, q, ownerID, pattern, pattern, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to search videos: %w", err)
	}
	return videos, nil
}

// Health checks if the database is reachable
func (s *SQLiteStore) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *SQLiteStore) Close() {
	_ = s.db.Close()
}

func (s *SQLiteStore) queryVideos(ctx context.Context, query string, args ...interface{}) ([]*models.Video, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	videos := make([]*models.Video, 0)
	for rows.Next() {
		video, err := scanSQLiteVideo(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan video: %w", err)
		}
		videos = append(videos, video)
	}

	return videos, rows.Err()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func scanSQLiteVideo(row rowScanner) (*models.Video, error) {
	var (
		v                                        models.Video
		videoType, createdAt, updatedAt, meta    string
		youtubeID, thumbnail, duration, describe sql.NullString
	)

	err := row.Scan(
		&v.ID, &v.Title, &v.OriginalURL, &videoType, &youtubeID, &v.EmbedURL, &thumbnail,
		&duration, &describe, &v.Category, &v.IsActive, &v.OwnerID, &meta,
		&createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}

	v.Type = models.VideoType(videoType)
	v.YouTubeID = youtubeID.String
	v.Thumbnail = thumbnail.String
	v.Duration = duration.String
	v.Description = describe.String

	if err := v.Metadata.Scan(meta); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if v.CreatedAt, err = time.Parse(sqliteTime, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if v.UpdatedAt, err = time.Parse(sqliteTime, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &v, nil
}
