package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/syllabridge-backend/internal/observability"
)

// Metrics records request counts and latency per route template. Event
// streams are left out: their duration is the subscription, not the request.
func Metrics(m *observability.Metrics) gin.HandlerFunc {
	if m == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		m.ApiInflightInc()
		defer m.ApiInflightDec()
		start := time.Now()
		c.Next()

		if strings.HasPrefix(c.Writer.Header().Get("Content-Type"), "text/event-stream") {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.ObserveAPI(c.Request.Method, route, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
