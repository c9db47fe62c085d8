package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Counter: tool-endpoint discovery served from cache.
	DiscoveryCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "discovery_cache_hits_total",
			Help: "Total number of tool-endpoint discovery cache hits.",
		},
	)

	// Counter: SSE frames written, by frame kind.
	StreamFramesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stream_frames_total",
			Help: "Total number of SSE frames written to clients.",
		},
		[]string{"kind"},
	)

	// Gauge: streams currently open to browsers.
	StreamsActive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "streams_active",
			Help: "Number of SSE streams currently open.",
		},
	)

	// Histogram: playground HTTP latency in seconds.
	RequestLatencySeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "playground_latency_seconds",
			Help:    "HTTP request latency for the playground in seconds.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15, 60},
		},
		[]string{"path", "method", "status_code"},
	)
)

// Register is called once in main() to register metrics.
func Register() {
	prometheus.MustRegister(
		DiscoveryCacheHitsTotal,
		StreamFramesTotal,
		StreamsActive,
		RequestLatencySeconds,
	)
}

// Handler exposes the /metrics endpoint for Prometheus to scrape.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware measures latency for each HTTP request.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// capture status code
		rec := &statusRecorder{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(rec, r)

		RequestLatencySeconds.
			WithLabelValues(r.URL.Path, r.Method, strconv.Itoa(rec.statusCode)).
			Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush passes through so SSE handlers behind the middleware can still
// flush frame-by-frame.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
