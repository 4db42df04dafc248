// Package http exposes stored index snapshots over a JSON API.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/cfpminer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/cfpminer/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/cfpminer/internal/interfaces/http/handlers"
	"github.com/turtacn/cfpminer/internal/interfaces/http/middleware"
	"github.com/turtacn/cfpminer/pkg/errors"
)

// RouterConfig wires handlers and infrastructure into the engine.
type RouterConfig struct {
	// Handlers
	IndexHandler  *handlers.IndexHandler
	HealthHandler *handlers.HealthHandler

	// Infrastructure
	Logger           logging.Logger
	Logging          middleware.LoggingConfig
	MetricsCollector prometheus.MetricsCollector
	Metrics          *prometheus.MiningMetrics
	MetricsPath      string

	// Mode is the gin mode: debug, release or test.
	Mode string
}

// NewRouter builds the gin engine.
func NewRouter(cfg RouterConfig) http.Handler {
	if cfg.Mode != "" {
		gin.SetMode(cfg.Mode)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.NewNopLogger()
	}
	logger := cfg.Logger.Named("http")

	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger, cfg.Logging))
	r.Use(middleware.Metrics(cfg.Metrics))

	// --- Probes ---
	if cfg.HealthHandler != nil {
		cfg.HealthHandler.RegisterRoutes(r)
	}

	// --- Metrics ---
	if cfg.MetricsCollector != nil {
		path := cfg.MetricsPath
		if path == "" {
			path = "/metrics"
		}
		r.GET(path, gin.WrapH(cfg.MetricsCollector.Handler()))
	}

	// --- API v1 ---
	api := r.Group("/api/v1")
	if cfg.IndexHandler != nil {
		cfg.IndexHandler.RegisterRoutes(api)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, handlers.ErrorResponse{Code: errors.ErrCodeNotFound.String(), Message: "route not found"})
	})
	return r
}
