// Package metrics provides Prometheus instrumentation for the portfolio engine.
package metrics

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// TransactionsTotal counts recorded ledger transactions by type.
	TransactionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_transactions_total",
		Help: "Total number of ledger transactions recorded",
	}, []string{"type"})

	// InsufficientHoldingsRejections counts sells rejected for exceeding holdings.
	InsufficientHoldingsRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "folio_insufficient_holdings_rejections_total",
		Help: "Sell transactions rejected by the holdings check",
	})

	// PriceUpdatesTotal counts applied asset price updates.
	PriceUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "folio_price_updates_total",
		Help: "Asset prices applied by batch updates",
	})

	// AllocationSuggestions counts successful allocation suggestions.
	AllocationSuggestions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "folio_allocation_suggestions_total",
		Help: "Contribution allocation suggestions computed",
	})

	// SnapshotsTotal counts snapshot writes by result (created, replaced).
	SnapshotsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_snapshots_total",
		Help: "Daily portfolio snapshots written",
	}, []string{"result"})

	// OperationLatency tracks core operation latency by operation name.
	OperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "folio_operation_latency_seconds",
		Help:    "Core operation latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"op"})

	// WebSocketClients tracks connected WebSocket clients.
	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "folio_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	// HTTPRequestsTotal counts HTTP requests by method, route, and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "folio_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	// HTTPRequestDuration tracks request duration by method and route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "folio_http_request_duration_seconds",
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

		// Label by route pattern (/users/{userID}/...) to bound cardinality.
		path := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				path = pattern
			}
		}
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

// Hijack lets WebSocket upgrades pass through the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("metrics: response writer does not support hijacking")
	}
	return h.Hijack()
}
