package telemetry

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// StoreLatency records memory store operation latency by operation.
	StoreLatency *prometheus.HistogramVec

	// StoryStepDuration records the latency of each story pipeline step.
	StoryStepDuration *prometheus.HistogramVec

	// StoryFailuresTotal counts story pipeline aborts by failing step.
	StoryFailuresTotal *prometheus.CounterVec

	// MediaBytesWritten counts bytes persisted by the media store.
	MediaBytesWritten prometheus.Counter
)

var validLabelKey = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ParseMetricsLabels parses a comma-separated list of key=value pairs into
// Prometheus labels. Values support ${VAR} / $VAR environment variable expansion.
// Returns nil for an empty string.
func ParseMetricsLabels(s string) (prometheus.Labels, error) {
	s = strings.TrimSpace(os.Expand(s, os.Getenv))
	if s == "" {
		return nil, nil
	}
	labels := prometheus.Labels{}
	for _, pair := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok {
			return nil, fmt.Errorf("invalid label %q: expected key=value", pair)
		}
		if !validLabelKey.MatchString(k) {
			return nil, fmt.Errorf("invalid label key %q: must match [a-zA-Z_][a-zA-Z0-9_]*", k)
		}
		labels[k] = v
	}
	return labels, nil
}

var initMetricsOnce sync.Once

// InitMetrics registers all Prometheus metrics with the given constant labels.
// Only the first call registers; later calls are no-ops.
func InitMetrics(constLabels prometheus.Labels) {
	initMetricsOnce.Do(func() {
		initMetricsInner(constLabels)
	})
}

func initMetricsInner(constLabels prometheus.Labels) {
	reg := prometheus.WrapRegistererWith(constLabels, prometheus.DefaultRegisterer)
	f := promauto.With(reg)

	httpRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memory_weaver_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "memory_weaver_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	StoreLatency = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "memory_weaver_store_latency_seconds",
			Help:    "Memory store operation latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Generative calls routinely take tens of seconds.
	StoryStepDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "memory_weaver_story_step_duration_seconds",
			Help:    "Story pipeline step duration in seconds",
			Buckets: []float64{0.05, 0.25, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"step"},
	)

	StoryFailuresTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "memory_weaver_story_failures_total",
			Help: "Story pipeline failures by step",
		},
		[]string{"step"},
	)

	MediaBytesWritten = f.NewCounter(prometheus.CounterOpts{
		Name: "memory_weaver_media_bytes_written_total",
		Help: "Bytes of generated media persisted",
	})
}

// ObserveStoryStep records the duration of a pipeline step and, when err is
// non-nil, counts the failure. Safe to call before InitMetrics.
func ObserveStoryStep(step string, start time.Time, err error) {
	if StoryStepDuration == nil {
		return
	}
	StoryStepDuration.WithLabelValues(step).Observe(time.Since(start).Seconds())
	if err != nil {
		StoryFailuresTotal.WithLabelValues(step).Inc()
	}
}

// ObserveStore records a store operation latency. Safe to call before InitMetrics.
func ObserveStore(op string, start time.Time) {
	if StoreLatency == nil {
		return
	}
	StoreLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// AddMediaBytes counts persisted media bytes. Safe to call before InitMetrics.
func AddMediaBytes(n int64) {
	if MediaBytesWritten == nil || n <= 0 {
		return
	}
	MediaBytesWritten.Add(float64(n))
}

// MetricsMiddleware records HTTP request metrics for Prometheus.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if httpRequestsTotal == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method, route).Observe(duration.Seconds())
	}
}
