// Package resolver classifies video URLs and enriches provider videos with
// metadata from the YouTube Data API.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"github.com/therealutkarshpriyadarshi/videosync/internal/config"
	"github.com/therealutkarshpriyadarshi/videosync/internal/logging"
	"github.com/therealutkarshpriyadarshi/videosync/pkg/models"
)

var (
	// ErrEmptyURL is returned for a blank URL
	ErrEmptyURL = errors.New("video URL is required")
	// ErrInvalidURL is returned for malformed URLs and provider URLs without a video id
	ErrInvalidURL = errors.New("invalid video URL")
	// ErrNotFound is returned when the provider has no such video
	ErrNotFound = errors.New("video not found or unavailable")
	// ErrEnrichmentDisabled is returned by resolvers without provider credentials
	ErrEnrichmentDisabled = errors.New("provider metadata lookup is not configured")
)

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// Classification is the outcome of inspecting a URL
type Classification struct {
	URL        string
	Type       models.VideoType
	ProviderID string
}

// Enrichment is provider metadata for one video
type Enrichment struct {
	Title       string
	Thumbnail   string
	Duration    string
	Description string
	Metadata    models.Metadata
}

// Resolver turns user-supplied URLs into video records
type Resolver struct {
	service *youtube.Service
	limiter *rate.Limiter
	origin  string
	timeout time.Duration
	logger  *logging.Logger
	now     func() time.Time
}

// New creates a resolver. Without an API key enrichment is disabled and
// provider videos degrade to minimal metadata. Extra client options are
// passed to the YouTube client, e.g. option.WithEndpoint in tests.
func New(ctx context.Context, cfg config.ResolverConfig, logger *logging.Logger, opts ...option.ClientOption) (*Resolver, error) {
	r := NewNop(cfg.EmbedOrigin, logger)
	r.timeout = cfg.RequestTimeout

	if cfg.YouTubeAPIKey == "" {
		r.logger.Warn("No YouTube API key configured, metadata enrichment disabled")
		return r, nil
	}

	clientOpts := append([]option.ClientOption{option.WithAPIKey(cfg.YouTubeAPIKey)}, opts...)
	service, err := youtube.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	r.service = service

	rps := cfg.RequestsPerSec
	if rps <= 0 {
		rps = 5
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	r.limiter = rate.NewLimiter(rate.Limit(rps), burst)

	return r, nil
}

// NewNop creates a resolver that classifies URLs but never enriches them
func NewNop(origin string, logger *logging.Logger) *Resolver {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Resolver{
		origin: origin,
		logger: logger.WithComponent("resolver"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Classify validates rawURL and detects provider URLs
func Classify(rawURL string) (Classification, error) {
	trimmed := strings.TrimSpace(rawURL)
	if trimmed == "" {
		return Classification{}, ErrEmptyURL
	}

	u, err := url.Parse(trimmed)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Classification{}, fmt.Errorf("%w: %q", ErrInvalidURL, trimmed)
	}

	host := strings.ToLower(u.Hostname())
	if !isProviderHost(host) {
		return Classification{URL: trimmed, Type: models.VideoTypeDirect}, nil
	}

	id := extractVideoID(host, u)
	if id == "" || !videoIDPattern.MatchString(id) {
		return Classification{}, fmt.Errorf("%w: invalid YouTube URL format", ErrInvalidURL)
	}
	return Classification{URL: trimmed, Type: models.VideoTypeYouTube, ProviderID: id}, nil
}

func isProviderHost(host string) bool {
	return host == "youtu.be" || host == "youtube.com" || strings.HasSuffix(host, ".youtube.com")
}

func extractVideoID(host string, u *url.URL) string {
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")

	if host == "youtu.be" {
		return segments[0]
	}
	if u.Path == "/watch" || u.Path == "/watch/" {
		return u.Query().Get("v")
	}
	if len(segments) >= 2 {
		switch segments[0] {
		case "embed", "shorts", "live", "v":
			return segments[1]
		}
	}
	return ""
}

// EmbedURL returns the player URL for a provider video id
func (r *Resolver) EmbedURL(id string) string {
	embed := "https://www.youtube.com/embed/" + id + "?enablejsapi=1"
	if r.origin != "" {
		embed += "&origin=" + url.QueryEscape(r.origin)
	}
	return embed
}

// Resolve builds the record to insert for rawURL. title and category are
// optional overrides. Classification errors are returned; enrichment errors
// are logged and degrade to minimal metadata.
func (r *Resolver) Resolve(ctx context.Context, rawURL, title, category string) (*models.Video, error) {
	c, err := Classify(rawURL)
	if err != nil {
		return nil, err
	}

	title = strings.TrimSpace(title)
	category = strings.TrimSpace(category)
	if category == "" {
		category = models.DefaultCategory
	}
	processedAt := r.now().Format(time.RFC3339Nano)

	if c.Type == models.VideoTypeDirect {
		if title == "" {
			title = models.DirectTitle
		}
		return &models.Video{
			Title:       title,
			OriginalURL: c.URL,
			Type:        models.VideoTypeDirect,
			EmbedURL:    c.URL,
			Category:    category,
			Metadata: models.Metadata{
				models.MetaSource:      "direct_upload",
				models.MetaProcessedAt: processedAt,
			},
		}, nil
	}

	video := &models.Video{
		Title:       title,
		OriginalURL: c.URL,
		Type:        models.VideoTypeYouTube,
		YouTubeID:   c.ProviderID,
		EmbedURL:    r.EmbedURL(c.ProviderID),
		Category:    category,
	}

	enrichment, err := r.Enrich(ctx, c.ProviderID)
	if err != nil {
		if !errors.Is(err, ErrEnrichmentDisabled) {
			r.logger.WithVideoID(c.ProviderID).WarnWithErr("Metadata enrichment failed, using defaults", err)
		}
		if video.Title == "" {
			video.Title = models.DefaultTitle
		}
		video.Thumbnail = DefaultThumbnail(c.ProviderID)
		video.Metadata = models.Metadata{
			models.MetaSource:      "youtube",
			models.MetaProcessedAt: processedAt,
		}
		return video, nil
	}

	if video.Title == "" {
		video.Title = enrichment.Title
	}
	if video.Title == "" {
		video.Title = models.DefaultTitle
	}
	video.Thumbnail = enrichment.Thumbnail
	video.Duration = enrichment.Duration
	video.Description = enrichment.Description
	video.Metadata = enrichment.Metadata.Merge(models.Metadata{
		models.MetaSource:      "youtube",
		models.MetaProcessedAt: processedAt,
	})
	return video, nil
}

// DefaultThumbnail is the provider's static thumbnail for id
func DefaultThumbnail(id string) string {
	return "https://img.youtube.com/vi/" + id + "/mqdefault.jpg"
}
