package database

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/therealutkarshpriyadarshi/videosync/internal/config"
	"github.com/therealutkarshpriyadarshi/videosync/pkg/models"
)

func TestBuildUpdate(t *testing.T) {
	now := time.Date(2024, 2, 3, 4, 5, 6, 0, time.UTC)
	title, category, description := "Bridges", "", ""

	sets, args := buildUpdate(models.VideoPatch{
		Title:       &title,
		Description: &description,
		Category:    &category,
		Metadata:    models.Metadata{"k": "v"},
	}, now, "$%d")

	assert.Equal(t, []string{
		"title = $1",
		"description = $2",
		"category = $3",
		"metadata = $4",
		"updated_at = $5",
	}, sets)
	require.Len(t, args, 5)
	assert.Equal(t, "Bridges", args[0])
	assert.Nil(t, args[1])
	assert.Equal(t, models.DefaultCategory, args[2])
	assert.Equal(t, models.Metadata{"k": "v"}, args[3])
	assert.Equal(t, now, args[4])

	sets, _ = buildUpdate(models.VideoPatch{Title: &title}, now, "?")
	assert.Equal(t, []string{"title = ?", "updated_at = ?"}, sets)

	thumb, duration := "https://i.ytimg.com/vi/abc/hqdefault.jpg", "4:13"
	sets, args = buildUpdate(models.VideoPatch{Thumbnail: &thumb, Duration: &duration}, now, "?")
	assert.Equal(t, []string{"thumbnail_url = ?", "duration = ?", "updated_at = ?"}, sets)
	assert.Equal(t, &thumb, args[0])
}

func TestLikePattern(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{query: "Knee", want: "%knee%"},
		{query: "  padded  ", want: "%padded%"},
		{query: "50%", want: `%50\%%`},
		{query: "a_b", want: `%a\_b%`},
		{query: `back\slash`, want: `%back\\slash%`},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, likePattern(tt.query))
		})
	}
}

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{
		Host:     "db",
		Port:     5432,
		User:     "videosync",
		Password: "secret",
		DBName:   "videosync",
		SSLMode:  "disable",
		MaxConns: 10,
		MinConns: 2,
	})

	assert.Equal(t,
		"host=db port=5432 user=videosync password=secret dbname=videosync sslmode=disable pool_max_conns=10 pool_min_conns=2",
		dsn)
}

// TestRepositoryIntegration runs against a real Postgres when
// VIDEOSYNC_TEST_DATABASE_URL is set
func TestRepositoryIntegration(t *testing.T) {
	dsn := os.Getenv("VIDEOSYNC_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("Skipping integration test - VIDEOSYNC_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	db := &DB{Pool: pool}
	require.NoError(t, db.Migrate(ctx))

	repo := NewRepository(db)
	t.Cleanup(repo.Close)

	owner := "it-" + time.Now().Format("150405.000000")
	saved, err := repo.Insert(ctx, &models.Video{
		Title:       "Wall slides",
		OriginalURL: "https://example.com/wall.mp4",
		Type:        models.VideoTypeDirect,
		EmbedURL:    "https://example.com/wall.mp4",
		Category:    "Shoulder",
		OwnerID:     owner,
	})
	require.NoError(t, err)
	assert.True(t, saved.IsActive)

	videos, err := repo.ListActive(ctx, owner)
	require.NoError(t, err)
	require.Len(t, videos, 1)

	_, err = repo.Get(ctx, saved.ID, owner+"-other")
	assert.ErrorIs(t, err, ErrNotFound)

	found, err := repo.Search(ctx, owner, "wall")
	require.NoError(t, err)
	assert.Len(t, found, 1)

	title := "Wall angels"
	updated, err := repo.Update(ctx, saved.ID, owner, models.VideoPatch{Title: &title})
	require.NoError(t, err)
	assert.Equal(t, title, updated.Title)

	require.NoError(t, repo.SoftDelete(ctx, saved.ID, owner))
	videos, err = repo.ListActive(ctx, owner)
	require.NoError(t, err)
	assert.Empty(t, videos)
}
