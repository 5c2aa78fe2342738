package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// VideosTable is the table every video record and change event belongs to
const VideosTable = "exercise_videos"

// Defaults applied when a caller leaves a field blank
const (
	DefaultTitle    = "Untitled Exercise Video"
	DirectTitle     = "Direct Video"
	DefaultCategory = "General"
	AllCategories   = "All"
)

// VideoType determines how a player resolves playback
type VideoType string

const (
	VideoTypeYouTube VideoType = "youtube"
	VideoTypeDirect  VideoType = "direct"
)

// Valid reports whether t is a known video type
func (t VideoType) Valid() bool {
	return t == VideoTypeYouTube || t == VideoTypeDirect
}

// Video represents an exercise video in a user's library
type Video struct {
	ID          string    `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	OriginalURL string    `json:"original_url" db:"url"`
	Type        VideoType `json:"type" db:"video_type"`
	YouTubeID   string    `json:"youtube_video_id,omitempty" db:"youtube_video_id"`
	EmbedURL    string    `json:"embed_url" db:"embed_url"`
	Thumbnail   string    `json:"thumbnail,omitempty" db:"thumbnail_url"`
	Duration    string    `json:"duration,omitempty" db:"duration"`
	Description string    `json:"description,omitempty" db:"description"`
	Category    string    `json:"category" db:"category"`
	IsActive    bool      `json:"is_active" db:"is_active"`
	OwnerID     string    `json:"user_id" db:"user_id"`
	Metadata    Metadata  `json:"metadata" db:"metadata"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at" db:"updated_at"`
}

// Validate checks the record invariants that do not depend on storage
func (v *Video) Validate() error {
	if v.OwnerID == "" {
		return errors.New("video has no owner")
	}
	if !v.Type.Valid() {
		return fmt.Errorf("unknown video type %q", v.Type)
	}
	if v.Type == VideoTypeYouTube && v.YouTubeID == "" {
		return errors.New("youtube video requires a provider video id")
	}
	if v.Type != VideoTypeYouTube && v.YouTubeID != "" {
		return fmt.Errorf("%s video must not carry a provider video id", v.Type)
	}
	return nil
}

// Clone returns a deep copy of the video
func (v *Video) Clone() *Video {
	if v == nil {
		return nil
	}
	c := *v
	c.Metadata = v.Metadata.Clone()
	return &c
}

// CategoryOrDefault returns the category, falling back to DefaultCategory
func (v *Video) CategoryOrDefault() string {
	if v.Category == "" {
		return DefaultCategory
	}
	return v.Category
}

// VideoPatch holds the mutable fields of a video. Nil fields are left untouched.
// Thumbnail and Duration are provider-owned and only set by metadata refresh.
type VideoPatch struct {
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Category    *string  `json:"category,omitempty"`
	Metadata    Metadata `json:"metadata,omitempty"`
	Thumbnail   *string  `json:"-"`
	Duration    *string  `json:"-"`
}

// Empty reports whether the patch changes nothing
func (p VideoPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Category == nil && p.Metadata == nil &&
		p.Thumbnail == nil && p.Duration == nil
}

// Apply copies the patch onto v
func (p VideoPatch) Apply(v *Video) {
	if p.Title != nil {
		v.Title = *p.Title
	}
	if p.Description != nil {
		v.Description = *p.Description
	}
	if p.Category != nil {
		v.Category = *p.Category
	}
	if p.Metadata != nil {
		v.Metadata = p.Metadata.Clone()
	}
	if p.Thumbnail != nil {
		v.Thumbnail = *p.Thumbnail
	}
	if p.Duration != nil {
		v.Duration = *p.Duration
	}
}

// Metadata holds additional video metadata
type Metadata map[string]interface{}

// Value implements driver.Valuer for database storage
func (m Metadata) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for database retrieval
func (m *Metadata) Scan(value interface{}) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*m = make(Metadata)
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	case map[string]interface{}:
		*m = Metadata(v).Clone()
		return nil
	default:
		return fmt.Errorf("unsupported metadata type %T", value)
	}

	if len(data) == 0 {
		*m = make(Metadata)
		return nil
	}
	return json.Unmarshal(data, m)
}

// Clone returns a deep copy of the metadata
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

// Merge returns base overlaid with m; keys in m win
func (m Metadata) Merge(base Metadata) Metadata {
	out := base.Clone()
	if out == nil {
		out = make(Metadata, len(m))
	}
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v interface{}) interface{} {
	switch t := v.(type) {
	case map[string]interface{}:
		return map[string]interface{}(Metadata(t).Clone())
	case Metadata:
		return t.Clone()
	case []interface{}:
		out := make([]interface{}, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}

// Metadata keys written by the library and the resolver
const (
	MetaLastPlayed  = "lastPlayed"
	MetaAddedAt     = "addedAt"
	MetaSource      = "source"
	MetaAPIVersion  = "apiVersion"
	MetaProcessedAt = "processedAt"
	MetaRefreshedAt = "refreshedAt"
)
