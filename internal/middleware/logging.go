// Package middleware holds the Gin middleware.
package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"ragcore-go/pkg/log"
)

// RequestLogger logs one structured entry per request. Request and
// response bodies are deliberately not captured: uploads carry raw
// document content that must never reach the logs.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
		)
	}
}
