package sys

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// AutoplayCyclesTotal counts finished-track cycles by outcome.
	AutoplayCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jukebox_autoplay_cycles_total",
			Help: "Autoplay cycles by outcome",
		},
		[]string{"outcome"},
	)

	// AutoplayTracksEnqueuedTotal counts tracks the engine put on a queue.
	AutoplayTracksEnqueuedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jukebox_autoplay_tracks_enqueued_total",
			Help: "Tracks enqueued by autoplay",
		},
	)

	AutoplaySourceFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jukebox_autoplay_source_failures_total",
			Help: "Suggestion source failures by source",
		},
		[]string{"source"},
	)

	AutoplaySessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "jukebox_autoplay_sessions",
			Help: "Live per-guild autoplay sessions",
		},
	)

	// CircuitBreakerTransitionsTotal counts breaker state changes of external lookups.
	CircuitBreakerTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jukebox_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"name", "to"},
	)

	TracksPlayedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "jukebox_tracks_played_total",
			Help: "Tracks started by the voice player",
		},
	)
)

// MetricsDaemon serves /metrics on addr. It stays off when addr is empty.
func MetricsDaemon(addr string) func(ctx context.Context) (bool, func(), func()) {
	return func(ctx context.Context) (bool, func(), func()) {
		if addr == "" {
			return false, nil, nil
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		run := func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				LogError(MsgMetricsServeFail, addr, err)
			}
		}
		shutdown := func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}
		return true, run, shutdown
	}
}
