package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/therealutkarshpriyadarshi/videosync/internal/cache"
	"github.com/therealutkarshpriyadarshi/videosync/internal/config"
	"github.com/therealutkarshpriyadarshi/videosync/internal/database"
	"github.com/therealutkarshpriyadarshi/videosync/internal/feed"
	"github.com/therealutkarshpriyadarshi/videosync/internal/logging"
	"github.com/therealutkarshpriyadarshi/videosync/internal/middleware"
	"github.com/therealutkarshpriyadarshi/videosync/internal/queue"
	"github.com/therealutkarshpriyadarshi/videosync/internal/resolver"
	"github.com/therealutkarshpriyadarshi/videosync/internal/storage"
	"github.com/therealutkarshpriyadarshi/videosync/internal/tracing"
)

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
	logger = logger.WithComponent("api")

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	_, tracerCloser, err := tracing.Init(cfg.Tracing)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize tracing")
	}
	defer tracerCloser.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize the video store
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

	// Change feed: Redis pub/sub fans out across replicas, memory is single-process
	var transport feed.Transport
	if cfg.Feed.Driver == "redis" {
		transport = feed.NewRedis(redisCache.Client(), logger)
	} else {
		hub := feed.NewMemory(logger)
		defer hub.Close()
		transport = hub
	}

	notifying := database.NewNotifyingStore(store, transport, logger)
	var served videoStore = notifying
	if redisCache != nil {
		served = cache.NewVideoStore(notifying, redisCache, cfg.Redis.VideoTTL, logger)
	}

	res, err := resolver.New(ctx, cfg.Resolver, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize resolver")
	}

	api := &API{
		store:     served,
		feed:      transport,
		resolver:  res,
		logger:    logger,
		maxUpload: cfg.Server.MaxUploadBytes,
		publicURL: cfg.Server.PublicURL,
	}

	if cfg.Queue.Enabled {
		q, err := queue.New(cfg.Queue, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to connect to queue")
		}
		defer q.Close()
		api.queue = q
	}

	if cfg.Storage.Enabled {
		objects, err := storage.New(ctx, cfg.Storage, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize storage")
		}
		api.objects = objects
	}

	rateLimiter := middleware.NewRateLimiter(cfg.Server.RateLimitRPS, cfg.Server.RateLimitBurst)
	go rateLimiter.Cleanup(ctx, time.Minute)

	router := setupRouter(api, routerConfig{
		jwtSecret:      cfg.Auth.JWTSecret,
		rateLimiter:    rateLimiter,
		allowedOrigins: cfg.Server.AllowedOrigins,
	})

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		// Change streams outlive requests; cancel them on shutdown
		BaseContext: func(_ net.Listener) context.Context { return ctx },
	}

	go func() {
		logger.WithField("addr", srv.Addr).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server stopped")
}
