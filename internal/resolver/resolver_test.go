package resolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"github.com/therealutkarshpriyadarshi/videosync/internal/config"
	"github.com/therealutkarshpriyadarshi/videosync/pkg/models"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		want    Classification
		wantErr error
	}{
		{"watch url", "https://youtube.com/watch?v=abc123", Classification{URL: "https://youtube.com/watch?v=abc123", Type: models.VideoTypeYouTube, ProviderID: "abc123"}, nil},
		{"www watch with extra params", "https://www.youtube.com/watch?feature=share&v=dQw4w9WgXcQ&t=42", Classification{URL: "https://www.youtube.com/watch?feature=share&v=dQw4w9WgXcQ&t=42", Type: models.VideoTypeYouTube, ProviderID: "dQw4w9WgXcQ"}, nil},
		{"short link", "https://youtu.be/dQw4w9WgXcQ?si=x", Classification{URL: "https://youtu.be/dQw4w9WgXcQ?si=x", Type: models.VideoTypeYouTube, ProviderID: "dQw4w9WgXcQ"}, nil},
		{"embed", "https://www.youtube.com/embed/abc_-1", Classification{URL: "https://www.youtube.com/embed/abc_-1", Type: models.VideoTypeYouTube, ProviderID: "abc_-1"}, nil},
		{"shorts", "https://m.youtube.com/shorts/xyz", Classification{URL: "https://m.youtube.com/shorts/xyz", Type: models.VideoTypeYouTube, ProviderID: "xyz"}, nil},
		{"trimmed", "  https://example.com/video.mp4  ", Classification{URL: "https://example.com/video.mp4", Type: models.VideoTypeDirect}, nil},
		{"direct", "https://example.com/video.mp4", Classification{URL: "https://example.com/video.mp4", Type: models.VideoTypeDirect}, nil},
		{"empty", "   ", Classification{}, ErrEmptyURL},
		{"no scheme", "example.com/video.mp4", Classification{}, ErrInvalidURL},
		{"bad scheme", "ftp://example.com/video.mp4", Classification{}, ErrInvalidURL},
		{"provider without id", "https://www.youtube.com/channel/UC123", Classification{}, ErrInvalidURL},
		{"watch without v", "https://youtube.com/watch?list=PL1", Classification{}, ErrInvalidURL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Classify(tt.url)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassifyProviderErrorMessage(t *testing.T) {
	_, err := Classify("https://youtube.com/playlist?list=1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid YouTube URL format")
}

func TestEmbedURL(t *testing.T) {
	assert.Equal(t,
		"https://www.youtube.com/embed/abc123?enablejsapi=1&origin=https%3A%2F%2Frehab.example.com",
		NewNop("https://rehab.example.com", nil).EmbedURL("abc123"))
	assert.Equal(t,
		"https://www.youtube.com/embed/abc123?enablejsapi=1",
		NewNop("", nil).EmbedURL("abc123"))
}

func TestParseDuration(t *testing.T) {
	tests := map[string]string{
		"PT4M13S":  "4:13",
		"PT1H2M3S": "1:02:03",
		"PT45S":    "0:45",
		"PT10M":    "10:00",
		"PT2H":     "2:00:00",
		"P1DT1M":   "24:01:00",
		"bogus":    "bogus",
		"":         "",
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseDuration(in), in)
	}
}

const videoResponse = `{
  "items": [{
    "id": "abc123",
    "snippet": {
      "title": "Seated knee extension",
      "description": "%s",
      "channelTitle": "Rehab Channel",
      "publishedAt": "2023-05-01T10:00:00Z",
      "categoryId": "26",
      "tags": ["a","b","c","d","e","f","g","h","i","j","k","l"],
      "thumbnails": {
        "default": {"url": "https://i.ytimg.com/vi/abc123/default.jpg"},
        "medium": {"url": "https://i.ytimg.com/vi/abc123/mqdefault.jpg"}
      }
    },
    "contentDetails": {"duration": "PT4M13S"},
    "statistics": {"viewCount": "12345", "likeCount": "678"}
  }]
}`

func fakeYouTube(t *testing.T, body string, calls *int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			atomic.AddInt32(calls, 1)
		}
		assert.Equal(t, "/youtube/v3/videos", r.URL.Path)
		assert.Equal(t, "test-key", r.URL.Query().Get("key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestResolver(t *testing.T, srv *httptest.Server) *Resolver {
	t.Helper()
	r, err := New(context.Background(), config.ResolverConfig{
		YouTubeAPIKey:  "test-key",
		EmbedOrigin:    "https://rehab.example.com",
		RequestTimeout: 5 * time.Second,
		RequestsPerSec: 100,
		Burst:          10,
	}, nil, option.WithEndpoint(srv.URL+"/"))
	require.NoError(t, err)
	return r
}

func TestEnrich(t *testing.T) {
	long := strings.Repeat("é", 600)
	srv := fakeYouTube(t, strings.Replace(videoResponse, "%s", long, 1), nil)
	r := newTestResolver(t, srv)

	e, err := r.Enrich(context.Background(), "abc123")
	require.NoError(t, err)

	assert.Equal(t, "Seated knee extension", e.Title)
	assert.Equal(t, "https://i.ytimg.com/vi/abc123/mqdefault.jpg", e.Thumbnail)
	assert.Equal(t, "4:13", e.Duration)
	assert.Equal(t, 500, len([]rune(e.Description)))
	assert.Equal(t, "Rehab Channel", e.Metadata["channelTitle"])
	assert.Equal(t, "2023-05-01T10:00:00Z", e.Metadata["publishedAt"])
	assert.Len(t, e.Metadata["tags"], 10)

	stats := e.Metadata["youtubeMetadata"].(map[string]interface{})
	assert.Equal(t, "12345", stats["viewCount"])
	assert.Equal(t, "678", stats["likeCount"])
	assert.Equal(t, "26", stats["categoryId"])
}

func TestEnrichNotFound(t *testing.T) {
	srv := fakeYouTube(t, `{"items": []}`, nil)
	r := newTestResolver(t, srv)

	_, err := r.Enrich(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEnrichDisabled(t *testing.T) {
	r, err := New(context.Background(), config.ResolverConfig{}, nil)
	require.NoError(t, err)

	_, err = r.Enrich(context.Background(), "abc123")
	assert.ErrorIs(t, err, ErrEnrichmentDisabled)
}

func TestResolveYouTube(t *testing.T) {
	srv := fakeYouTube(t, strings.Replace(videoResponse, "%s", "Strengthen the quads", 1), nil)
	r := newTestResolver(t, srv)

	v, err := r.Resolve(context.Background(), "https://youtube.com/watch?v=abc123", "", "")
	require.NoError(t, err)

	assert.Equal(t, models.VideoTypeYouTube, v.Type)
	assert.Equal(t, "abc123", v.YouTubeID)
	assert.Equal(t, "Seated knee extension", v.Title)
	assert.Equal(t, models.DefaultCategory, v.Category)
	assert.Equal(t, "4:13", v.Duration)
	assert.Equal(t, "Strengthen the quads", v.Description)
	assert.Equal(t, "https://www.youtube.com/embed/abc123?enablejsapi=1&origin=https%3A%2F%2Frehab.example.com", v.EmbedURL)
	assert.Equal(t, "youtube", v.Metadata[models.MetaSource])
	assert.NotEmpty(t, v.Metadata[models.MetaProcessedAt])
	assert.NoError(t, v.Validate())
}

func TestResolveKeepsCallerTitle(t *testing.T) {
	srv := fakeYouTube(t, strings.Replace(videoResponse, "%s", "", 1), nil)
	r := newTestResolver(t, srv)

	v, err := r.Resolve(context.Background(), "https://youtu.be/abc123", "My stretch", "Knee")
	require.NoError(t, err)
	assert.Equal(t, "My stretch", v.Title)
	assert.Equal(t, "Knee", v.Category)
}

func TestResolveDegradesWhenLookupFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error": {"code": 403, "message": "quota"}}`, http.StatusForbidden)
	}))
	t.Cleanup(srv.Close)
	r := newTestResolver(t, srv)

	v, err := r.Resolve(context.Background(), "https://youtube.com/watch?v=abc123", "", "")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultTitle, v.Title)
	assert.Equal(t, "abc123", v.YouTubeID)
	assert.Equal(t, DefaultThumbnail("abc123"), v.Thumbnail)
	assert.Equal(t, "youtube", v.Metadata[models.MetaSource])
}

func TestResolveDirect(t *testing.T) {
	var calls int32
	srv := fakeYouTube(t, videoResponse, &calls)
	r := newTestResolver(t, srv)

	v, err := r.Resolve(context.Background(), "https://example.com/video.mp4", "", "Balance")
	require.NoError(t, err)

	assert.Equal(t, models.VideoTypeDirect, v.Type)
	assert.Equal(t, "https://example.com/video.mp4", v.EmbedURL)
	assert.Equal(t, v.OriginalURL, v.EmbedURL)
	assert.Empty(t, v.YouTubeID)
	assert.Equal(t, models.DirectTitle, v.Title)
	assert.Equal(t, "direct_upload", v.Metadata[models.MetaSource])
	assert.EqualValues(t, 0, atomic.LoadInt32(&calls), "direct URLs are never looked up")
}

func TestResolveRejectsBeforeLookup(t *testing.T) {
	var calls int32
	srv := fakeYouTube(t, videoResponse, &calls)
	r := newTestResolver(t, srv)

	_, err := r.Resolve(context.Background(), "", "", "")
	assert.ErrorIs(t, err, ErrEmptyURL)
	_, err = r.Resolve(context.Background(), "not a url", "", "")
	assert.ErrorIs(t, err, ErrInvalidURL)
	assert.EqualValues(t, 0, atomic.LoadInt32(&calls))
}
