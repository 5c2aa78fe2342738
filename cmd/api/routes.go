package main

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/therealutkarshpriyadarshi/videosync/internal/middleware"
)

type routerConfig struct {
	jwtSecret      string
	rateLimiter    *middleware.RateLimiter
	allowedOrigins []string
}

func setupRouter(api *API, cfg routerConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(api.logger))
	router.Use(middleware.CORS(cfg.allowedOrigins...))

	router.GET("/health", api.healthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/media/*key", api.serveMedia)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.JWTAuth(cfg.jwtSecret))
	if cfg.rateLimiter != nil {
		v1.Use(middleware.RateLimit(cfg.rateLimiter))
	}
	{
		v1.POST("/videos", api.createVideo)
		v1.GET("/videos", api.listVideos)
		v1.GET("/videos/search", api.searchVideos)
		v1.GET("/videos/changes", api.streamChanges)
		v1.POST("/videos/upload", api.uploadVideo)
		v1.GET("/videos/:id", api.getVideo)
		v1.PATCH("/videos/:id", api.updateVideo)
		v1.DELETE("/videos/:id", api.deleteVideo)
		v1.POST("/videos/:id/refresh", api.refreshVideo)
	}

	return router
}
