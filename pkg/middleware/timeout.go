package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/richxcame/taxi-eta/pkg/config"
	"github.com/richxcame/taxi-eta/pkg/logger"
	"go.uber.org/zap"
)

// RequestTimeout creates a middleware that bounds each request by a deadline.
// The deadline is resolved per-route from cfg.RouteOverrides, falling back to
// cfg.DefaultRequestTimeout (§5 Cancellation and timeouts: 2s for prediction,
// 1s for health/info by default). On expiry it responds 504 and sets
// X-Timeout so callers and tests can distinguish a timeout from a slow 200.
func RequestTimeout(cfg *config.TimeoutConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		timeout := cfg.TimeoutForRoute(c.Request.Method, c.FullPath())
		if timeout <= 0 {
			timeout = cfg.DefaultRequestTimeoutDuration()
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
		defer cancel()

		c.Request = c.Request.WithContext(ctx)

		done := make(chan struct{})
		go func() {
			defer func() {
				if r := recover(); r != nil {
					logger.WithContext(c.Request.Context()).Error("panic recovered in request handler",
						zap.Any("panic", r),
						zap.String("path", c.Request.URL.Path),
					)
				}
				close(done)
			}()
			c.Next()
		}()

		select {
		case <-done:
		case <-ctx.Done():
			if ctx.Err() == context.DeadlineExceeded && !c.Writer.Written() {
				c.Header("X-Timeout", "true")
				c.Abort()
				c.JSON(http.StatusGatewayTimeout, gin.H{
					"error":   "Request timeout",
					"message": "The request took too long to process",
				})

				logger.WithContext(c.Request.Context()).Warn("request timeout",
					zap.String("path", c.Request.URL.Path),
					zap.String("method", c.Request.Method),
					zap.Duration("timeout", timeout),
				)
			}
		}
	}
}
