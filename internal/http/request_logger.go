package http

import (
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/tapterm/paybroker/internal/util"
)

// RequestLoggerMiddleware writes one structured line per request with
// credential-bearing query values masked.
func RequestLoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		path := c.Request.URL.Path
		if query := util.RedactQuery(c.Request.URL.RawQuery); query != "" {
			path += "?" + query
		}
		status := c.Writer.Status()
		entry := log.WithFields(log.Fields{
			"method":    c.Request.Method,
			"path":      path,
			"status":    status,
			"latency":   time.Since(start).String(),
			"client_ip": c.ClientIP(),
		})
		switch {
		case status >= 500:
			entry.Error("request")
		case status >= 400:
			entry.Warn("request")
		case c.Request.URL.Path == "/healthz":
			entry.Debug("request")
		default:
			entry.Info("request")
		}
	}
}
