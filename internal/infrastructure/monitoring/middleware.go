package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// unmatchedPath labels requests that hit no route, so scanners probing
// random URLs cannot grow the label set.
const unmatchedPath = "unmatched"

// Middleware records request counts, latency and sizes per route template.
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := NewTimer()
		metrics.InFlight.Inc()
		defer metrics.InFlight.Dec()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = unmatchedPath
		}
		metrics.RecordHTTPRequest(
			c.Request.Method,
			path,
			strconv.Itoa(c.Writer.Status()),
			timer.Elapsed(),
			max(c.Request.ContentLength, 0),
			int64(max(c.Writer.Size(), 0)),
		)
	}
}

// Timer measures how long an operation took.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() Timer {
	return Timer{start: time.Now()}
}

// Elapsed returns the time since the timer started.
func (t Timer) Elapsed() time.Duration {
	return time.Since(t.start)
}
