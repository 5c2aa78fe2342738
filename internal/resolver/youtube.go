package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"google.golang.org/api/googleapi"
	"google.golang.org/api/youtube/v3"

	"github.com/therealutkarshpriyadarshi/videosync/internal/metrics"
	"github.com/therealutkarshpriyadarshi/videosync/pkg/models"
)

const (
	maxDescriptionRunes = 500
	maxTags             = 10
)

var isoDuration = regexp.MustCompile(`^P(?:(\d+)D)?(?:T(?:(\d+)H)?(?:(\d+)M)?(?:(\d+)S)?)?$`)

// Enrich looks up provider metadata for a video id
func (r *Resolver) Enrich(ctx context.Context, id string) (*Enrichment, error) {
	if r.service == nil {
		return nil, ErrEnrichmentDisabled
	}

	start := time.Now()
	enrichment, err := r.lookup(ctx, id)
	metrics.RecordEnrichment(err, time.Since(start).Seconds())
	return enrichment, err
}

func (r *Resolver) lookup(ctx context.Context, id string) (*Enrichment, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	resp, err := r.service.Videos.
		List([]string{"snippet", "contentDetails", "statistics"}).
		Id(id).
		Context(ctx).
		Do()
	if err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("youtube videos.list: %w", err)
	}
	if len(resp.Items) == 0 || resp.Items[0].Snippet == nil {
		return nil, ErrNotFound
	}

	item := resp.Items[0]
	snippet := item.Snippet

	enrichment := &Enrichment{
		Title:       snippet.Title,
		Thumbnail:   thumbnailURL(snippet.Thumbnails),
		Description: truncateRunes(snippet.Description, maxDescriptionRunes),
	}
	if item.ContentDetails != nil {
		enrichment.Duration = ParseDuration(item.ContentDetails.Duration)
	}

	tags := snippet.Tags
	if len(tags) > maxTags {
		tags = tags[:maxTags]
	}
	if tags == nil {
		tags = []string{}
	}

	stats := map[string]interface{}{
		"categoryId": snippet.CategoryId,
	}
	if item.Statistics != nil {
		stats["viewCount"] = strconv.FormatUint(item.Statistics.ViewCount, 10)
		stats["likeCount"] = strconv.FormatUint(item.Statistics.LikeCount, 10)
	}

	enrichment.Metadata = models.Metadata{
		"channelTitle":    snippet.ChannelTitle,
		"publishedAt":     snippet.PublishedAt,
		"tags":            tags,
		"youtubeMetadata": stats,
	}
	return enrichment, nil
}

func thumbnailURL(t *youtube.ThumbnailDetails) string {
	if t == nil {
		return ""
	}
	if t.Medium != nil && t.Medium.Url != "" {
		return t.Medium.Url
	}
	if t.Default != nil {
		return t.Default.Url
	}
	return ""
}

// ParseDuration renders an ISO-8601 duration as clock time: PT4M13S is
// "4:13", PT1H2M3S is "1:02:03". Unparseable input is returned unchanged.
func ParseDuration(iso string) string {
	m := isoDuration.FindStringSubmatch(iso)
	if m == nil || iso == "P" {
		return iso
	}

	days := atoi(m[1])
	hours := atoi(m[2]) + days*24
	minutes := atoi(m[3])
	seconds := atoi(m[4])

	if hours > 0 {
		return fmt.Sprintf("%d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%d:%02d", minutes, seconds)
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
