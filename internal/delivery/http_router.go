package delivery

import (
	"time"

	"adsetl/internal/delivery/middleware"
	"adsetl/pkg/logger"
	"adsetl/pkg/metrics"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

type HTTPRouter struct {
	handlers   *HTTPHandlers
	logger     *logger.Logger
	metrics    *metrics.Metrics
	gatherer   prometheus.Gatherer
	runTimeout time.Duration
}

func NewHTTPRouter(handlers *HTTPHandlers, logger *logger.Logger, metrics *metrics.Metrics, gatherer prometheus.Gatherer, runTimeout time.Duration) *HTTPRouter {
	return &HTTPRouter{
		handlers:   handlers,
		logger:     logger,
		metrics:    metrics,
		gatherer:   gatherer,
		runTimeout: runTimeout,
	}
}

func (r *HTTPRouter) SetupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(r.logger))
	router.Use(middleware.Recovery(r.logger))
	router.Use(middleware.Metrics(r.metrics))

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	config.AllowHeaders = []string{"Content-Type", "X-Request-ID"}
	config.ExposeHeaders = []string{"X-Request-ID"}

	router.Use(cors.New(config))

	// Health endpoint
	router.GET("/health", r.handlers.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		v1.GET("/", r.handlers.GetAPIInfo)
		v1.GET("", r.handlers.GetAPIInfo)

		// Pipeline runs share the run deadline
		runs := v1.Group("", middleware.Deadline(r.runTimeout))
		{
			runs.POST("/ingest/run", r.handlers.IngestRun)
			runs.POST("/backfill/run", r.handlers.BackfillRun)
		}

		history := v1.Group("/runs", middleware.Deadline(30*time.Second))
		{
			history.GET("", r.handlers.GetRuns)
			history.GET("/:id", r.handlers.GetRun)
		}
	}

	// Prometheus metrics endpoint
	router.GET("/metrics", middleware.PrometheusHandler(r.gatherer))

	return router
}
