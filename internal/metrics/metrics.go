// Package metrics provides Prometheus instrumentation for the game.
package metrics

import (
	"bufio"
	"fmt"
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
	// TurnsTotal counts resolved turns by outcome: ongoing, bankrupt, completed.
	TurnsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hustle_turns_total",
		Help: "Total number of resolved turns",
	}, []string{"outcome"})

	TurnLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hustle_turn_resolve_seconds",
		Help:    "Time spent in turn resolution, excluding scenario fetches",
		Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
	})

	// Prefetch counts prefetch results: hit, miss, dropped, stale, failed.
	Prefetch = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hustle_prefetch_total",
		Help: "Scenario prefetch outcomes",
	}, []string{"result"})

	NarratorLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hustle_narrator_latency_seconds",
		Help:    "Scenario request latency in seconds",
		Buckets: []float64{0.25, 0.5, 1, 2, 4, 8, 16, 32},
	})

	NarratorFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hustle_narrator_failures_total",
		Help: "Scenario requests that returned no usable content",
	})

	AnalystFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hustle_analyst_fallbacks_total",
		Help: "End-of-run reports replaced by the default report",
	})

	Liquidations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hustle_liquidations_total",
		Help: "Holdings sold by stop-loss or take-profit",
	}, []string{"kind"})

	StoreErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hustle_store_errors_total",
		Help: "Persistence failures by operation",
	}, []string{"op"})

	WebSocketClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hustle_websocket_clients",
		Help: "Number of connected WebSocket clients",
	})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hustle_http_requests_total",
		Help: "Total HTTP requests",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hustle_http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 5.0},
	}, []string{"method", "path"})
)

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Middleware records request count and latency, labelled by chi route
// pattern to keep cardinality bounded.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		path := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				path = p
			}
		}
		HTTPRequestsTotal.WithLabelValues(r.Method, path, strconv.Itoa(wrapped.status)).Inc()
		HTTPRequestDuration.WithLabelValues(r.Method, path).Observe(time.Since(start).Seconds())
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Hijack passes through to the underlying writer so websocket upgrades
// work behind the middleware.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, fmt.Errorf("response writer does not support hijacking")
	}
	return h.Hijack()
}
