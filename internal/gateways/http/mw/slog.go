package mw

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
)

// GinSlog logs every HTTP request through slog.Logger; the level follows the response status
func GinSlog(l *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		req := c.Request

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"status", status,
			"method", req.Method,
			"path", req.URL.Path,
			"query", req.URL.RawQuery,
			"ip", c.ClientIP(),
			"latency_ms", float64(time.Since(start).Microseconds()) / 1000.0,
			"size", c.Writer.Size(),
		}
		if rid := c.Writer.Header().Get(RequestIDHeader); rid != "" {
			attrs = append(attrs, "request_id", rid)
		}
		if caller := Caller(c); caller != "" {
			attrs = append(attrs, "caller", caller.String())
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.ByType(gin.ErrorTypeAny).String())
		}

		switch {
		case status >= 500:
			l.Error("http request", attrs...)
		case status >= 400:
			l.Warn("http request", attrs...)
		default:
			l.Info("http request", attrs...)
		}
	}
}
