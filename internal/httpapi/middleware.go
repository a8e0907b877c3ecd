package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const requestIDKey = "request_id"

// requestID attaches a correlation id to every request, honoring an
// incoming X-Request-ID when the caller already has one.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func accessLog(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("request",
			zap.String("id", c.GetString(requestIDKey)),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}

func corsPolicy() gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowAllOrigins = true
	cfg.AllowMethods = []string{"GET", "POST", "PATCH", "OPTIONS"}
	cfg.AllowHeaders = []string{"Authorization", "Content-Type", "X-Request-ID"}
	return cors.New(cfg)
}

// deadline scopes every request to the configured timeout. Handlers surface
// the expiry as 504 via writeErr.
func deadline(d time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if d <= 0 {
			c.Next()
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), d)
		defer cancel()
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// abortError writes the {error, issues?} envelope.
func abortError(c *gin.Context, status int, msg string, issues any) {
	body := gin.H{"error": msg}
	if issues != nil {
		body["issues"] = issues
	}
	c.AbortWithStatusJSON(status, body)
}

// writeErr maps internal failures onto the HTTP contract.
func writeErr(c *gin.Context, err error) {
	if errors.Is(err, context.DeadlineExceeded) {
		abortError(c, http.StatusGatewayTimeout, "request deadline exceeded", nil)
		return
	}
	abortError(c, http.StatusInternalServerError, err.Error(), nil)
}
