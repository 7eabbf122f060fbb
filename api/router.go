package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/use-agent/pdfpool/api/handler"
	"github.com/use-agent/pdfpool/api/middleware"
	"github.com/use-agent/pdfpool/cache"
	"github.com/use-agent/pdfpool/config"
	"github.com/use-agent/pdfpool/metrics"
)

// NewRouter creates a configured Gin engine with all routes and middleware.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
//
// Health and metrics stay outside auth so monitoring probes always work.
// ctx stops the rate limiter's and the result cache's background cleanup.
func NewRouter(ctx context.Context, r handler.Renderer, cfg *config.Config, gatherer prometheus.Gatherer, startTime time.Time) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	e := gin.New()
	e.Use(gin.Recovery())
	e.Use(gin.Logger())

	if cfg.Metrics.Enabled && gatherer != nil {
		e.GET("/metrics", gin.WrapH(metrics.Handler(gatherer)))
	}

	v1 := e.Group("/api/v1")

	// Health: no auth required.
	v1.GET("/health", handler.Health(r, startTime))

	// Protected group: auth + rate limit.
	protected := v1.Group("")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(ctx, cfg.RateLimit))

	var cc *cache.Cache
	if cfg.Cache.Enabled {
		cc = cache.New(ctx, cfg.Cache.MaxEntries)
	}

	protected.POST("/render", handler.Render(r, cc))
	protected.GET("/stats", handler.Stats(r))

	return e
}
