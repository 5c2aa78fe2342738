package main

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/therealutkarshpriyadarshi/videosync/internal/database"
	"github.com/therealutkarshpriyadarshi/videosync/internal/feed"
	"github.com/therealutkarshpriyadarshi/videosync/internal/library"
	"github.com/therealutkarshpriyadarshi/videosync/internal/logging"
	"github.com/therealutkarshpriyadarshi/videosync/internal/resolver"
	"github.com/therealutkarshpriyadarshi/videosync/internal/storage"
	"github.com/therealutkarshpriyadarshi/videosync/pkg/models"
)

// videoStore is the store surface the API serves
type videoStore interface {
	Insert(ctx context.Context, video *models.Video) (*models.Video, error)
	Get(ctx context.Context, id, ownerID string) (*models.Video, error)
	ListActive(ctx context.Context, ownerID string) ([]*models.Video, error)
	ListByCategory(ctx context.Context, ownerID, category string) ([]*models.Video, error)
	Update(ctx context.Context, id, ownerID string, patch models.VideoPatch) (*models.Video, error)
	SoftDelete(ctx context.Context, id, ownerID string) error
	Search(ctx context.Context, ownerID, query string) ([]*models.Video, error)
	Health(ctx context.Context) error
}

type refreshQueue interface {
	PublishRefresh(ctx context.Context, job *models.RefreshJob) error
}

type objectStore interface {
	Upload(ctx context.Context, key string, reader io.Reader, size int64, contentType string) error
	Open(ctx context.Context, key string) (io.ReadCloser, storage.ObjectInfo, error)
}

// API holds the dependencies of the HTTP handlers. queue and objects are
// optional; their routes answer 503 when unset.
type API struct {
	store     videoStore
	feed      feed.Feed
	resolver  library.Resolver
	queue     refreshQueue
	objects   objectStore
	logger    *logging.Logger
	maxUpload int64
	publicURL string
}

type errorResponse struct {
	Error string `json:"error"`
}

// respondError maps domain errors onto status codes
func (api *API) respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, resolver.ErrEmptyURL),
		errors.Is(err, resolver.ErrInvalidURL),
		errors.Is(err, database.ErrInvalidVideo),
		errors.Is(err, library.ErrEmptyPatch):
		status = http.StatusBadRequest
	case errors.Is(err, database.ErrNotFound),
		errors.Is(err, storage.ErrObjectNotFound):
		status = http.StatusNotFound
	}

	if status == http.StatusInternalServerError {
		api.logger.WithField("path", c.FullPath()).ErrorWithErr("Request failed", err)
	}
	c.JSON(status, errorResponse{Error: err.Error()})
}

func unavailable(c *gin.Context, what string) {
	c.JSON(http.StatusServiceUnavailable, errorResponse{Error: what + " is not configured"})
}
