package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	resultSuccess = "success"
	resultFailure = "failure"

	// unmatchedRoute labels 404s so scanners cannot blow up label cardinality.
	unmatchedRoute = "unmatched"
)

// Health and scrape endpoints are not recorded.
var unrecordedPaths = map[string]bool{
	"/metrics":    true,
	"/health":     true,
	"/api/health": true,
}

// HTTPMetricsMiddleware records request count, latency and in-flight requests
// labelled by gin route pattern. Recorders other than *Metrics get a pass-through.
func HTTPMetricsMiddleware(m Recorder) gin.HandlerFunc {
	prom, ok := m.(*Metrics)
	if !ok {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		if unrecordedPaths[c.Request.URL.Path] {
			c.Next()
			return
		}

		prom.HTTPRequestsInFlight.Inc()
		start := time.Now()
		c.Next()
		prom.HTTPRequestsInFlight.Dec()

		route := normalizePath(c.FullPath())
		prom.HTTPRequestsTotal.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Inc()
		prom.HTTPRequestDuration.
			WithLabelValues(c.Request.Method, route).
			Observe(time.Since(start).Seconds())
	}
}

// normalizePath maps an empty gin route (no match) to a fixed label.
// Wildcard routes such as "/wp-json/*path" keep their pattern.
func normalizePath(route string) string {
	if route == "" {
		return unmatchedRoute
	}
	return route
}
