// Package metrics exposes loader instrumentation to Prometheus.
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
	"github.com/tallydash/tally/internal/domain"
)

// LoaderMetrics is the Prometheus implementation of loader.Metrics.
type LoaderMetrics struct {
	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	fetchRecords  *prometheus.HistogramVec
	escalations   *prometheus.CounterVec
	staleDiscards *prometheus.CounterVec
	sessions      *prometheus.CounterVec
	sessionTime   *prometheus.HistogramVec
}

// NewRegistry creates a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// NewLoaderMetrics registers loader metrics on reg.
//
// Returns nil if reg is nil (metrics disabled). Check before passing the
// result on as a loader.Metrics interface value.
func NewLoaderMetrics(reg prometheus.Registerer) *LoaderMetrics {
	if reg == nil {
		return nil
	}

	return &LoaderMetrics{
		fetches: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_loader_fetches_total",
				Help: "Total number of page requests by collection, mode and outcome",
			},
			[]string{"collection", "mode", "outcome"}, // outcome: "ok", "error"
		),
		fetchDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "tally_loader_fetch_duration_milliseconds",
				Help: "Duration of page requests in milliseconds",
				Buckets: []float64{
					10,    // 10ms - warm cache slice
					50,    // 50ms
					100,   // 100ms
					250,   // 250ms
					500,   // 500ms
					1000,  // 1s - uncached batch
					2500,  // 2.5s
					5000,  // 5s
					15000, // 15s - bulk remainder
				},
			},
			[]string{"collection", "mode"},
		),
		fetchRecords: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tally_loader_fetch_records",
				Help:    "Distribution of records returned per page request",
				Buckets: []float64{0, 10, 30, 100, 300, 1000, 3000, 10000},
			},
			[]string{"collection", "mode"},
		),
		escalations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_loader_escalations_total",
				Help: "Total number of switches to bulk loading by the mode they happened in",
			},
			[]string{"collection", "from"}, // from: "initial", "trickle"
		),
		staleDiscards: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_loader_stale_responses_total",
				Help: "Total number of responses dropped because their session was superseded",
			},
			[]string{"collection"},
		),
		sessions: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "tally_loader_sessions_total",
				Help: "Total number of load sessions by outcome",
			},
			[]string{"collection", "outcome"}, // "complete", "failed", "stalled", "superseded"
		),
		sessionTime: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tally_loader_session_duration_seconds",
				Help:    "Wall time from session start to its outcome",
				Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms .. ~51s
			},
			[]string{"collection", "outcome"},
		),
	}
}

func (m *LoaderMetrics) ObserveFetch(collection string, mode domain.LoadMode, records int, duration time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.fetches.WithLabelValues(collection, mode.String(), outcome).Inc()
	m.fetchDuration.WithLabelValues(collection, mode.String()).Observe(float64(duration.Milliseconds()))
	if err == nil {
		m.fetchRecords.WithLabelValues(collection, mode.String()).Observe(float64(records))
	}
}

func (m *LoaderMetrics) RecordEscalation(collection string, from domain.LoadMode) {
	m.escalations.WithLabelValues(collection, from.String()).Inc()
}

func (m *LoaderMetrics) RecordStaleDiscard(collection string) {
	m.staleDiscards.WithLabelValues(collection).Inc()
}

func (m *LoaderMetrics) RecordSession(collection string, outcome string, records int, duration time.Duration) {
	m.sessions.WithLabelValues(collection, outcome).Inc()
	m.sessionTime.WithLabelValues(collection, outcome).Observe(duration.Seconds())
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, reg *prometheus.Registry, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(reg))
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics endpoint listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
