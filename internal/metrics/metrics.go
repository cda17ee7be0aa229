// Package metrics provides Prometheus instrumentation for the position
// engine.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// MonitorPasses counts completed monitoring passes, by outcome.
	MonitorPasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pmcc_monitor_passes_total",
		Help: "Monitoring passes completed",
	}, []string{"outcome"}) // "ok", "skipped", "error"

	// MonitorPassDuration tracks full-pass latency.
	MonitorPassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pmcc_monitor_pass_duration_seconds",
		Help:    "Duration of one full monitoring pass",
		Buckets: prometheus.DefBuckets,
	})

	// AlertsFired counts alerts created, partitioned by type.
	AlertsFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pmcc_alerts_fired_total",
		Help: "Alerts created by the evaluator",
	}, []string{"type"})

	// AlertsSuppressed counts conditions suppressed by deduplication.
	AlertsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pmcc_alerts_suppressed_total",
		Help: "Alert conditions suppressed by the dedup window",
	}, []string{"type"})

	// QuoteErrors counts failed market data fetches.
	QuoteErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pmcc_quote_errors_total",
		Help: "Market data fetch failures",
	})

	// NotifyErrors counts failed notification deliveries.
	NotifyErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pmcc_notify_errors_total",
		Help: "Notification delivery failures",
	})

	// ShortCallsClosed counts short calls closed through the ledger.
	ShortCallsClosed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pmcc_short_calls_closed_total",
		Help: "Short calls closed",
	})

	// ScanDuration tracks candidate scanner latency, by scanner kind.
	ScanDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pmcc_scan_duration_seconds",
		Help:    "Candidate scan duration",
		Buckets: prometheus.DefBuckets,
	}, []string{"kind"}) // "roll", "new_call"

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pmcc_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pmcc_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and path.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "pmcc_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware returns an HTTP middleware that records request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: 200}
		next.ServeHTTP(wrapped, r)
		duration := time.Since(start).Seconds()

		path := r.URL.Path
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
