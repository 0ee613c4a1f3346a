package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/atelierhq/atelier/pkg/metrics"
)

// Metrics observes per-route request latency. The registered route
// pattern is preferred over the raw URL to keep label cardinality low.
func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}

		metrics.APILatency.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
