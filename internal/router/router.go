package router

import (
	"log/slog"

	"github.com/gin-gonic/gin"

	"folio/internal/handler"
	"folio/internal/middleware"
)

// Setup configures the Gin engine with all routes and middleware.
func Setup(
	logger *slog.Logger,
	allowedOrigins []string,
	conversionH *handler.ConversionHandler,
	healthH *handler.HealthHandler,
) *gin.Engine {
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.CORS(allowedOrigins))

	// Health checks
	r.GET("/healthz", healthH.Liveness)
	r.GET("/readyz", healthH.Readiness)

	v1 := r.Group("/api/v1")

	conversions := v1.Group("/conversions")
	conversions.POST("", conversionH.Submit)
	conversions.GET("", conversionH.List)
	conversions.GET("/:id", conversionH.GetByID)
	conversions.GET("/:id/output", conversionH.Output)

	return r
}
