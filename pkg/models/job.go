package models

import (
	"time"
)

// RefreshJob asks the worker to re-fetch provider metadata for a video
type RefreshJob struct {
	ID          string    `json:"id"`
	VideoID     string    `json:"video_id"`
	OwnerID     string    `json:"user_id"`
	Attempt     int       `json:"attempt"`
	RequestedAt time.Time `json:"requested_at"`
}
