package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/therealutkarshpriyadarshi/videosync/internal/cache"
	"github.com/therealutkarshpriyadarshi/videosync/internal/config"
	"github.com/therealutkarshpriyadarshi/videosync/internal/database"
	"github.com/therealutkarshpriyadarshi/videosync/internal/feed"
	"github.com/therealutkarshpriyadarshi/videosync/internal/logging"
	"github.com/therealutkarshpriyadarshi/videosync/internal/metrics"
	"github.com/therealutkarshpriyadarshi/videosync/internal/queue"
	"github.com/therealutkarshpriyadarshi/videosync/internal/resolver"
)

const depthInterval = 30 * time.Second

func main() {
	// Load configuration
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.NewLogger(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	logger = logger.WithComponent("worker")

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := database.Open(ctx, cfg.Database, cfg.SQLite)
	if err != nil {
		logger.WithError(err).Fatal("Failed to open video store")
	}
	defer store.Close()

	var redisCache *cache.Cache
	if cfg.Redis.Enabled {
		redisCache, err = cache.NewCache(cfg.Redis)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer redisCache.Close()
	}

	// The worker only publishes; API replicas relay the events to clients
	var publisher database.Publisher
	if cfg.Feed.Driver == "redis" {
		publisher = feed.NewRedis(redisCache.Client(), logger)
	} else {
		logger.Warn("Memory feed selected, refreshed videos reach clients only after a reload")
		hub := feed.NewMemory(logger)
		defer hub.Close()
		publisher = hub
	}

	var writes database.VideoStore = database.NewNotifyingStore(store, publisher, logger)
	var locks locker
	if redisCache != nil {
		writes = cache.NewVideoStore(writes, redisCache, cfg.Redis.VideoTTL, logger)
		locks = redisCache
	}

	res, err := resolver.New(ctx, cfg.Resolver, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize resolver")
	}

	q, err := queue.New(cfg.Queue, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to queue")
	}
	defer q.Close()

	if cfg.Metrics.Enabled {
		metricsServer := metrics.NewServer(cfg.Metrics.Port, logger)
		go func() {
			if err := metricsServer.Start(); err != nil {
				logger.WithError(err).Error("Metrics server stopped")
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = metricsServer.Shutdown(shutdownCtx)
		}()
	}

	// Handle shutdown gracefully
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		logger.Info("Shutting down worker gracefully...")
		cancel()
	}()

	r := newRefresher(writes, res, locks, logger)

	// Start consuming jobs
	if err := q.ConsumeRefresh(ctx, r.Handle); err != nil {
		logger.WithError(err).Fatal("Failed to consume refresh jobs")
	}
	logger.Info("Worker started, waiting for refresh jobs...")

	go reportDepth(ctx, q, logger)

	// Wait for shutdown
	<-ctx.Done()
	logger.Info("Worker stopped")
}

func reportDepth(ctx context.Context, q *queue.Queue, logger *logging.Logger) {
	ticker := time.NewTicker(depthInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if depth, err := q.GetQueueDepth(); err != nil {
				logger.WarnWithErr("Failed to inspect refresh queue", err)
			} else {
				metrics.RecordQueueDepth(queue.RefreshQueueName, depth)
			}
			if depth, err := q.GetDLQDepth(); err != nil {
				logger.WarnWithErr("Failed to inspect dead letter queue", err)
			} else {
				metrics.RecordQueueDepth(queue.DeadLetterQueueName, depth)
			}
		}
	}
}
