// Package telemetry provides Prometheus metrics, OpenTelemetry tracing setup,
// and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	PollCycles           prometheus.Counter
	PollSkips            prometheus.Counter
	NotificationsSent    prometheus.Counter
	NotificationFailures prometheus.Counter

	// Histograms (seconds)
	CycleDuration prometheus.Observer

	// Gauges
	TrackedStreamsGauge prometheus.Gauge
	OnlineStreamsGauge  prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PollCycles = promauto.NewCounter(prometheus.CounterOpts{Name: "streamwatch_poll_cycles_total", Help: "Number of completed polling cycles"})
		PollSkips = promauto.NewCounter(prometheus.CounterOpts{Name: "streamwatch_poll_skips_total", Help: "Number of polling cycles skipped due to transient failures"})
		NotificationsSent = promauto.NewCounter(prometheus.CounterOpts{Name: "streamwatch_notifications_sent_total", Help: "Number of notifications delivered"})
		NotificationFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "streamwatch_notification_failures_total", Help: "Number of notification deliveries that failed"})
		CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "streamwatch_poll_cycle_duration_seconds", Help: "Polling cycle duration seconds", Buckets: prometheus.DefBuckets})
		TrackedStreamsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "streamwatch_tracked_streams", Help: "Current number of tracked streams"})
		OnlineStreamsGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "streamwatch_online_streams", Help: "Current number of streams considered online"})
	})
}

// IncPollCycles bumps the completed-cycle counter.
func IncPollCycles() {
	if PollCycles != nil {
		PollCycles.Inc()
	}
}

// IncPollSkips bumps the skipped-cycle counter.
func IncPollSkips() {
	if PollSkips != nil {
		PollSkips.Inc()
	}
}

// IncNotificationsSent bumps the delivered-notification counter.
func IncNotificationsSent() {
	if NotificationsSent != nil {
		NotificationsSent.Inc()
	}
}

// IncNotificationFailures bumps the failed-delivery counter.
func IncNotificationFailures() {
	if NotificationFailures != nil {
		NotificationFailures.Inc()
	}
}

// SetTrackedStreams records the current tracked-stream count.
func SetTrackedStreams(n int) {
	if TrackedStreamsGauge != nil {
		TrackedStreamsGauge.Set(float64(n))
	}
}

// SetOnlineStreams records the current online-stream count.
func SetOnlineStreams(n int) {
	if OnlineStreamsGauge != nil {
		OnlineStreamsGauge.Set(float64(n))
	}
}

// ObserveCycleDuration records one polling cycle duration.
func ObserveCycleDuration(d time.Duration) {
	if CycleDuration != nil {
		CycleDuration.Observe(d.Seconds())
	}
}

// Correlation ID helpers ----------------------------------------------------

type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns the correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with a corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
