package main

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/therealutkarshpriyadarshi/videosync/internal/feed"
	"github.com/therealutkarshpriyadarshi/videosync/internal/metrics"
	"github.com/therealutkarshpriyadarshi/videosync/pkg/models"
)

const (
	streamBuffer      = 256
	heartbeatInterval = 15 * time.Second
)

// streamChanges relays the caller's change events as server-sent events.
// A client that falls behind by more than streamBuffer events is
// disconnected so it reconnects and refetches instead of silently missing
// changes.
func (api *API) streamChanges(c *gin.Context) {
	owner := ownerID(c)
	ctx := c.Request.Context()

	events := make(chan models.ChangeEvent, streamBuffer)
	overflow := make(chan struct{})
	var overflowOnce sync.Once

	sub, err := api.feed.Subscribe(ctx, models.VideosTable, feed.OwnerFilter(owner, func(e models.ChangeEvent) {
		select {
		case events <- e:
		default:
			overflowOnce.Do(func() { close(overflow) })
		}
	}))
	if err != nil {
		api.respondError(c, err)
		return
	}
	defer sub.Unsubscribe()

	logger := api.logger.WithOwnerID(owner)
	logger.Debug("Change stream opened")
	metrics.FeedSubscriptionsActive.WithLabelValues("sse").Inc()
	defer metrics.FeedSubscriptionsActive.WithLabelValues("sse").Dec()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	c.SSEvent("ready", gin.H{"table": models.VideosTable, "user_id": owner})
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Debug("Change stream closed by client")
			return
		case <-overflow:
			logger.Warn("Change stream client fell behind, closing")
			metrics.RecordError("sse", "overflow")
			return
		case e := <-events:
			c.SSEvent(string(e.Kind), e)
			c.Writer.Flush()
			metrics.RecordFeedDelivery("sse", string(e.Kind))
		case <-heartbeat.C:
			c.SSEvent("ping", gin.H{"time": time.Now().UTC()})
			c.Writer.Flush()
		}
	}
}
