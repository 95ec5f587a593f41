package monitoring

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware records request counts and latency per route template.
// Event streams and page sockets live for minutes, so they are counted but
// kept out of the latency histogram.
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		long := isLongLived(c)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		if long {
			metrics.RecordHTTPStream(c.Request.Method, route, status)
			return
		}
		metrics.RecordHTTPRequest(c.Request.Method, route, status, time.Since(start))
	}
}

func isLongLived(c *gin.Context) bool {
	if strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		return true
	}
	return strings.Contains(c.GetHeader("Accept"), "text/event-stream")
}

// Timer measures one bridge call. Only the first Stop is recorded.
type Timer struct {
	start   time.Time
	metrics *Metrics
	method  string
	stopped atomic.Bool
}

func NewTimer(metrics *Metrics, method string) *Timer {
	return &Timer{start: time.Now(), metrics: metrics, method: method}
}

// Stop records the call with the given outcome and returns its duration
func (t *Timer) Stop(status string) time.Duration {
	elapsed := time.Since(t.start)
	if t.stopped.CompareAndSwap(false, true) {
		t.metrics.RecordCall(t.method, status, elapsed)
	}
	return elapsed
}
