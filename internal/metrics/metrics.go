// Package metrics holds the process-wide Prometheus collectors of the mail engine.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	SessionsOpened = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unimail_sessions_opened_total",
			Help: "Number of IMAP sessions opened, by result.",
		},
		[]string{"result"},
	)
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "unimail_operation_duration_seconds",
			Help:    "Duration of engine operations.",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 20, 30, 60},
		},
		[]string{"op"},
	)
	AccountFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unimail_account_failures_total",
			Help: "Per-account failures inside aggregate operations.",
		},
		[]string{"op", "kind"},
	)
	MoveFallbacks = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "unimail_move_fallbacks_total",
			Help: "Moves completed with copy, delete and expunge instead of MOVE.",
		},
	)
	MessagesSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "unimail_messages_sent_total",
			Help: "Outgoing messages, by result.",
		},
		[]string{"result"},
	)
)

// Observe records the duration of op since start.
func Observe(op string, start time.Time) {
	OperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// Serve exposes /metrics on addr until ctx is done.
func Serve(ctx context.Context, addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics listener started", "addr", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("metrics listener failed", "error", err)
	}
}
