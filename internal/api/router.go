package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/esewa-gateway/internal/handlers"
	"github.com/akylbek/payment-system/esewa-gateway/internal/interfaces"
	"github.com/akylbek/payment-system/esewa-gateway/internal/metrics"
	"github.com/akylbek/payment-system/esewa-gateway/internal/middleware"
	"github.com/akylbek/payment-system/esewa-gateway/internal/telemetry"
)

const ServiceName = "esewa-gateway"

// NewRouter builds the HTTP surface. cache may be nil, which disables
// Idempotency-Key replay. locker may be nil, which leaves concurrent
// duplicates unserialized.
func NewRouter(service handlers.Coordinator, cache interfaces.InitiationCache, locker interfaces.Locker, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(telemetry.TracingMiddleware())
	r.Use(metrics.PrometheusMiddleware())
	r.SetHTMLTemplate(handlers.Pages)

	// Prometheus metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": ServiceName})
	})

	paymentHandler := handlers.NewPaymentHandler(service, cache, logger)
	payments := r.Group("/api/payment")
	{
		payments.POST("/initiate", middleware.IdempotencyMiddleware(cache, locker, logger), paymentHandler.Initiate)
		payments.POST("/verify", paymentHandler.Verify)
		payments.GET("/success", paymentHandler.Success)
		payments.GET("/failure", paymentHandler.Failure)
	}

	return r
}
