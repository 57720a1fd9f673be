package middleware

import (
	"os"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// CORS middleware handles Cross-Origin Resource Sharing via gin-contrib/cors.
// Allowed origins are read from the CORS_ORIGINS environment variable
// (comma-separated). Falls back to http://localhost:3000 for development.
func CORS() gin.HandlerFunc {
	originsStr := os.Getenv("CORS_ORIGINS")
	if originsStr == "" {
		originsStr = "http://localhost:3000"
	}

	origins := make([]string, 0)
	allowAll := false
	for _, o := range strings.Split(originsStr, ",") {
		o = strings.TrimSpace(o)
		if o == "*" {
			allowAll = true
			continue
		}
		origins = append(origins, o)
	}

	cfg := cors.Config{
		AllowOrigins:     origins,
		AllowAllOrigins:  allowAll,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Content-Type", "Content-Length", "Accept-Encoding", "X-CSRF-Token", "Authorization", "Idempotency-Key", "X-Request-ID", "Accept", "Origin", "Cache-Control", "X-Requested-With"},
		AllowCredentials: !allowAll,
		MaxAge:           24 * time.Hour,
	}

	return cors.New(cfg)
}
