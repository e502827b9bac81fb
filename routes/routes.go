// Package routes wires the HTTP surface:
//
//   - api.go: /v1 API and health probes
//   - web.go: index and docs pages
//   - routes.go: middleware and SetupAllRoutes
package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pacs-databridge/app/controllers"
	"github.com/pacs-databridge/app/responses"
	"github.com/pacs-databridge/helpers/utils"
	"go.uber.org/zap"
)

// SetupAllRoutes installs middleware and every route group.
func SetupAllRoutes(router *gin.Engine, ctl Controllers, logger *zap.Logger) {
	setupMiddleware(router, logger)

	SetupWebRoutes(router)
	SetupHealthRoutes(router, ctl.Address)
	SetupAPIRoutes(router, ctl)

	router.NoRoute(func(c *gin.Context) {
		resp := responses.NewErrorResponse(responses.CodeNotFound, "route not found: "+c.Request.Method+" "+c.Request.URL.Path)
		resp.RequestID = c.GetString(controllers.RequestIDKey)
		c.JSON(http.StatusNotFound, resp)
	})
}

func setupMiddleware(router *gin.Engine, logger *zap.Logger) {
	router.Use(requestID())
	router.Use(requestLogger(logger))
	router.Use(gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		logger.Error("Panic recovered", zap.Any("panic", recovered), zap.String("path", c.Request.URL.Path))
		resp := responses.NewErrorResponse(responses.CodeInternal, "internal server error")
		resp.RequestID = c.GetString(controllers.RequestIDKey)
		c.AbortWithStatusJSON(http.StatusInternalServerError, resp)
	}))
}

// requestID propagates X-Request-ID, generating one when absent.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = utils.GenerateUUID()
		}
		c.Set(controllers.RequestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("HTTP request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
			zap.String("request_id", c.GetString(controllers.RequestIDKey)))
	}
}
