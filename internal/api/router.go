package api

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"mailtriage/pkg/otel"
)

// Check 就绪检查，返回 error 表示依赖不可用
type Check func(ctx context.Context) error

func NewRouter(authHandler *AuthHandler, emailHandler *EmailHandler, checks map[string]Check, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(otel.GinMiddleware())
	r.Use(TraceMiddleware())
	r.Use(RequestLogger(logger))

	// Health endpoints
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.HEAD("/healthz", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	r.GET("/readyz", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		for name, check := range checks {
			if err := check(ctx); err != nil {
				logger.Warn("Readiness check failed", zap.String("check", name), zap.Error(err))
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": name + "_not_ready"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Welcome to the email triage service"})
	})

	r.GET("/auth/:provider", authHandler.Redirect)
	r.GET("/auth/:provider/callback", authHandler.Callback)

	r.POST("/emails/process", emailHandler.Process)
	r.GET("/jobs/:id", emailHandler.GetJob)

	return r
}
