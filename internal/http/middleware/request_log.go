package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/syllabridge-backend/internal/platform/ctxutil"
	"github.com/yungbote/syllabridge-backend/internal/platform/logger"
)

// RequestLogger writes one line per request after the handler chain ran.
func RequestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		if log == nil {
			return
		}

		status := c.Writer.Status()
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		td := ctxutil.GetTraceData(c.Request.Context())
		r := ctxutil.GetRequester(c.Request.Context())

		fields := []interface{}{
			"method", strings.ToUpper(c.Request.Method),
			"path", path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if td != nil {
			if td.TraceID != "" {
				fields = append(fields, "trace_id", td.TraceID)
			}
			if td.RequestID != "" {
				fields = append(fields, "request_id", td.RequestID)
			}
		}
		if r != nil {
			fields = append(fields, "owner_id", r.OwnerID.String())
		}
		if id := c.Param("id"); id != "" {
			switch {
			case strings.HasPrefix(path, "/api/ingest/"):
				fields = append(fields, "job_id", id)
			case strings.HasPrefix(path, "/api/courses/"):
				fields = append(fields, "course_id", id)
			}
		}
		if errs := c.Errors.ByType(gin.ErrorTypePrivate); len(errs) > 0 {
			fields = append(fields, "error", errs.String())
		}

		switch {
		case path == "/healthcheck" && status < 400:
			log.Debug("HTTP request", fields...)
		case status >= 500:
			log.Error("HTTP request", fields...)
		case status >= 400:
			log.Warn("HTTP request", fields...)
		default:
			log.Info("HTTP request", fields...)
		}
	}
}
