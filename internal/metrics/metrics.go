// Package metrics exposes Prometheus instrumentation for backend calls,
// orchestrated searches, event streams and the local cache.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every stract collector. It is separate from the default
// registry so embedding programs do not see duplicate registrations.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// TransportRequests counts backend calls by method and outcome
	// (HTTP status code, "error" or "cancelled").
	TransportRequests = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stract",
			Name:      "transport_requests_total",
			Help:      "Backend calls by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	// TransportDuration tracks backend call latency
	TransportDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stract",
			Name:      "transport_request_seconds",
			Help:      "Backend call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	// SubCalls counts orchestrated sub-calls by kind and outcome
	SubCalls = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stract",
			Name:      "subcalls_total",
			Help:      "Search sub-calls by kind and outcome",
		},
		[]string{"kind", "outcome"},
	)

	// SubCallDuration tracks sub-call latency by kind
	SubCallDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "stract",
			Name:      "subcall_seconds",
			Help:      "Search sub-call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"kind"},
	)

	// Aggregates counts resolved searches by result variant
	// ("websites", "bang", "failed").
	Aggregates = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stract",
			Name:      "aggregates_total",
			Help:      "Resolved searches by result variant",
		},
		[]string{"variant"},
	)

	// StreamEvents counts delivered stream events by type
	StreamEvents = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stract",
			Name:      "stream_events_total",
			Help:      "Event-stream deliveries by event type",
		},
		[]string{"type"},
	)

	// OpenStreams tracks currently open streaming sessions
	OpenStreams = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "stract",
			Name:      "stream_sessions_open",
			Help:      "Currently open streaming sessions",
		},
	)

	// CacheLookups counts cache lookups by namespace and result (hit, miss, error)
	CacheLookups = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "stract",
			Name:      "cache_lookups_total",
			Help:      "Response cache lookups by namespace and result",
		},
		[]string{"namespace", "result"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// ObserveSince records the elapsed time since start on h.
func ObserveSince(h prometheus.Observer, start time.Time) {
	h.Observe(time.Since(start).Seconds())
}

// Handler returns the HTTP handler serving the stract registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	if logger != nil {
		logger.Info("Metrics server listening", "addr", addr)
	}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
