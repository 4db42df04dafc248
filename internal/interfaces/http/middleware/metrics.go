package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/cfpminer/internal/infrastructure/monitoring/prometheus"
)

// unmatchedRoute labels requests no route matched so that arbitrary paths
// never become label values.
const unmatchedRoute = "unmatched"

// Metrics records request count and latency per route template.
func Metrics(m *prometheus.MiningMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = unmatchedRoute
		}
		prometheus.RecordHTTPRequest(m, c.Request.Method, route, c.Writer.Status(), time.Since(start))
	}
}
