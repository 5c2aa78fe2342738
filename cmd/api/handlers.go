package main

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/therealutkarshpriyadarshi/videosync/internal/library"
	"github.com/therealutkarshpriyadarshi/videosync/internal/metrics"
	"github.com/therealutkarshpriyadarshi/videosync/internal/middleware"
	"github.com/therealutkarshpriyadarshi/videosync/internal/queue"
	"github.com/therealutkarshpriyadarshi/videosync/internal/storage"
	"github.com/therealutkarshpriyadarshi/videosync/internal/tracing"
	"github.com/therealutkarshpriyadarshi/videosync/pkg/models"
)

type createVideoRequest struct {
	URL      string `json:"url" binding:"required"`
	Title    string `json:"title"`
	Category string `json:"category"`
}

func ownerID(c *gin.Context) string {
	id, _ := middleware.GetUserID(c)
	return id
}

// traced runs a store call inside a span tagged with the owner
func traced[T any](c *gin.Context, operation string, fn func(ctx context.Context) (T, error)) (T, error) {
	span, ctx := tracing.StartStoreSpan(c.Request.Context(), operation, ownerID(c))
	defer tracing.FinishSpan(span)

	result, err := fn(ctx)
	if err != nil {
		tracing.LogError(span, err)
	}
	return result, err
}

// Health check endpoint
func (api *API) healthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	if err := api.store.Health(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "healthy",
	})
}

func (api *API) createVideo(c *gin.Context) {
	var req createVideoRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	record, err := api.resolver.Resolve(c.Request.Context(), req.URL, req.Title, req.Category)
	if err != nil {
		api.respondError(c, err)
		return
	}
	record.OwnerID = ownerID(c)

	saved, err := traced(c, "videos.insert", func(ctx context.Context) (*models.Video, error) {
		return api.store.Insert(ctx, record)
	})
	if err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, saved)
}

func (api *API) listVideos(c *gin.Context) {
	category := strings.TrimSpace(c.Query("category"))

	videos, err := traced(c, "videos.list", func(ctx context.Context) ([]*models.Video, error) {
		if category == "" || category == models.AllCategories {
			return api.store.ListActive(ctx, ownerID(c))
		}
		return api.store.ListByCategory(ctx, ownerID(c), category)
	})
	if err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"videos": videos,
		"count":  len(videos),
	})
}

func (api *API) searchVideos(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "query parameter q is required"})
		return
	}

	videos, err := traced(c, "videos.search", func(ctx context.Context) ([]*models.Video, error) {
		return api.store.Search(ctx, ownerID(c), query)
	})
	if err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"videos": videos,
		"count":  len(videos),
		"query":  query,
	})
}

func (api *API) getVideo(c *gin.Context) {
	video, err := traced(c, "videos.get", func(ctx context.Context) (*models.Video, error) {
		return api.store.Get(ctx, c.Param("id"), ownerID(c))
	})
	if err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, video)
}

func (api *API) updateVideo(c *gin.Context) {
	var patch models.VideoPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	if patch.Empty() {
		api.respondError(c, library.ErrEmptyPatch)
		return
	}

	updated, err := traced(c, "videos.update", func(ctx context.Context) (*models.Video, error) {
		return api.store.Update(ctx, c.Param("id"), ownerID(c), patch)
	})
	if err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, updated)
}

func (api *API) deleteVideo(c *gin.Context) {
	videoID := c.Param("id")

	_, err := traced(c, "videos.soft_delete", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, api.store.SoftDelete(ctx, videoID, ownerID(c))
	})
	if err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Video deleted successfully", "video_id": videoID})
}

func (api *API) refreshVideo(c *gin.Context) {
	if api.queue == nil {
		unavailable(c, "metadata refresh")
		return
	}

	video, err := traced(c, "videos.get", func(ctx context.Context) (*models.Video, error) {
		return api.store.Get(ctx, c.Param("id"), ownerID(c))
	})
	if err != nil {
		api.respondError(c, err)
		return
	}

	job := queue.NewRefreshJob(video.ID, video.OwnerID)
	if err := api.queue.PublishRefresh(c.Request.Context(), job); err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": job.ID, "video_id": video.ID})
}

// uploadVideo stores a multipart "video" file and creates a direct video
// record that plays it back through /media
func (api *API) uploadVideo(c *gin.Context) {
	if api.objects == nil {
		unavailable(c, "video upload")
		return
	}

	if api.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, api.maxUpload)
	}

	header, err := c.FormFile("video")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, errorResponse{Error: "video file is too large"})
			return
		}
		c.JSON(http.StatusBadRequest, errorResponse{Error: "No video file provided"})
		return
	}
	if !storage.IsPlayable(header.Filename) {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "unsupported video format"})
		return
	}

	file, err := header.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "Failed to read upload"})
		return
	}
	defer file.Close()

	owner := ownerID(c)
	key := storage.ObjectKey(owner, header.Filename)
	if err := api.objects.Upload(c.Request.Context(), key, file, header.Size, storage.ContentTypeFor(header.Filename)); err != nil {
		api.respondError(c, err)
		return
	}
	metrics.RecordUpload(header.Size)

	title := strings.TrimSpace(c.PostForm("title"))
	if title == "" {
		title = strings.TrimSuffix(header.Filename, filepath.Ext(header.Filename))
	}
	mediaURL := api.mediaURL(c, key)

	saved, err := traced(c, "videos.insert", func(ctx context.Context) (*models.Video, error) {
		return api.store.Insert(ctx, &models.Video{
			Title:       title,
			OriginalURL: mediaURL,
			Type:        models.VideoTypeDirect,
			EmbedURL:    mediaURL,
			Category:    c.PostForm("category"),
			Description: c.PostForm("description"),
			OwnerID:     owner,
			Metadata: models.Metadata{
				models.MetaSource:  "direct_upload",
				"objectKey":        key,
				"originalFilename": header.Filename,
				"size":             header.Size,
			},
		})
	})
	if err != nil {
		api.respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, saved)
}

func (api *API) mediaURL(c *gin.Context, key string) string {
	base := strings.TrimRight(api.publicURL, "/")
	if base == "" {
		scheme := "http"
		if c.Request.TLS != nil || c.GetHeader("X-Forwarded-Proto") == "https" {
			scheme = "https"
		}
		base = scheme + "://" + c.Request.Host
	}
	return base + "/media/" + key
}

// serveMedia streams an uploaded object. Keys are unguessable, so media
// links work inside players that cannot send credentials.
func (api *API) serveMedia(c *gin.Context) {
	if api.objects == nil {
		unavailable(c, "media")
		return
	}

	key := strings.TrimPrefix(c.Param("key"), "/")
	if !strings.HasPrefix(key, "uploads/") || strings.Contains(key, "..") {
		c.JSON(http.StatusNotFound, errorResponse{Error: "media not found"})
		return
	}

	reader, info, err := api.objects.Open(c.Request.Context(), key)
	if err != nil {
		api.respondError(c, err)
		return
	}
	defer reader.Close()

	extra := map[string]string{"Cache-Control": "private, max-age=3600"}
	if info.ETag != "" {
		extra["ETag"] = `"` + info.ETag + `"`
	}
	contentType := info.ContentType
	if contentType == "" {
		contentType = storage.ContentTypeFor(key)
	}
	c.DataFromReader(http.StatusOK, info.Size, contentType, reader, extra)
}
