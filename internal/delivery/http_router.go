package delivery

import (
	"time"

	"affrollup/internal/delivery/middleware"
	"affrollup/pkg/logger"
	"affrollup/pkg/metrics"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

type HTTPRouter struct {
	handlers *HTTPHandlers
	logger   *logger.Logger
	metrics  *metrics.Metrics
	timeout  time.Duration
}

func NewHTTPRouter(handlers *HTTPHandlers, logger *logger.Logger, metrics *metrics.Metrics, timeout time.Duration) *HTTPRouter {
	return &HTTPRouter{
		handlers: handlers,
		logger:   logger,
		metrics:  metrics,
		timeout:  timeout,
	}
}

func (r *HTTPRouter) SetupRoutes() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()

	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(r.logger))
	router.Use(middleware.Recovery(r.logger))
	router.Use(middleware.Metrics(r.metrics))
	router.Use(middleware.Timeout(r.timeout))

	config := cors.DefaultConfig()
	config.AllowAllOrigins = true
	config.AllowMethods = []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"}
	config.AllowHeaders = []string{"Content-Type", middleware.RequestIDHeader, UserIDHeader}
	config.ExposeHeaders = []string{middleware.RequestIDHeader}

	router.Use(cors.New(config))

	// Health endpoint
	router.GET("/health", r.handlers.HealthCheck)

	// API v1 routes
	v1 := router.Group("/api/v1")
	{
		v1.GET("/", r.handlers.GetAPIInfo)
		v1.GET("", r.handlers.GetAPIInfo)

		// Sync endpoints
		sync := v1.Group("/sync")
		{
			sync.POST("/run", r.handlers.SyncRun)
		}
		v1.POST("/transactions", r.handlers.IngestTransactions)

		// Report endpoints
		reports := v1.Group("/reports")
		{
			reports.GET("/summary", r.handlers.GetSummary)
			reports.GET("/:dimension", r.handlers.GetReport)
		}

		// Export endpoints
		export := v1.Group("/export")
		{
			export.POST("/run", r.handlers.ExportRun)
		}

		// Arsenal endpoints
		arsenals := v1.Group("/arsenals")
		{
			arsenals.GET("", r.handlers.ListArsenals)
			arsenals.POST("", r.handlers.CreateArsenal)
			arsenals.GET("/active", r.handlers.GetActiveArsenal)
			arsenals.GET("/:id", r.handlers.GetArsenal)
			arsenals.PUT("/:id", r.handlers.UpdateArsenal)
			arsenals.DELETE("/:id", r.handlers.DeleteArsenal)
			arsenals.POST("/:id/activate", r.handlers.ActivateArsenal)
		}
		v1.POST("/classify", r.handlers.Classify)
	}

	// Prometheus metrics endpoint
	router.GET("/metrics", middleware.PrometheusHandler(r.metrics))

	return router
}
