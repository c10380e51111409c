package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/chore-dispute-api/internal/service"
)

// Metrics records request latency and counts by route template. Routes in
// skip are not observed; use it for probes and long-lived event streams whose
// duration would swamp the latency histogram.
func Metrics(metricsSvc *service.MetricsService, skip ...string) gin.HandlerFunc {
	skipped := make(map[string]struct{}, len(skip))
	for _, route := range skip {
		skipped[route] = struct{}{}
	}

	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		if _, ok := skipped[route]; ok {
			return
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
