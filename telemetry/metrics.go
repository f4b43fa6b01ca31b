// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
package telemetry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	once sync.Once

	// Counters
	PollCycles        prometheus.Counter
	PollFailures      prometheus.Counter
	StreamsAnnounced  prometheus.Counter
	TokenRefreshes    prometheus.Counter
	TagLookupFailures prometheus.Counter
	CommandsHandled   prometheus.Counter

	// Histograms (seconds)
	PollDuration prometheus.Observer
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		PollCycles = promauto.NewCounter(prometheus.CounterOpts{Name: "guiltbot_poll_cycles_total", Help: "Number of stream poll cycles"})
		PollFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "guiltbot_poll_failures_total", Help: "Number of poll cycles that failed upstream"})
		StreamsAnnounced = promauto.NewCounter(prometheus.CounterOpts{Name: "guiltbot_streams_announced_total", Help: "Number of stream announcements posted"})
		TokenRefreshes = promauto.NewCounter(prometheus.CounterOpts{Name: "guiltbot_token_refreshes_total", Help: "Number of forced app token refreshes after a 401"})
		TagLookupFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "guiltbot_tag_lookup_failures_total", Help: "Number of channel tag lookups that failed"})
		CommandsHandled = promauto.NewCounter(prometheus.CounterOpts{Name: "guiltbot_commands_handled_total", Help: "Number of chat commands handled"})
		PollDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "guiltbot_poll_duration_seconds", Help: "Poll cycle duration seconds", Buckets: prometheus.DefBuckets})
	})
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding correlation id (if absent) and the id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	v := ctx.Value(corrKey)
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns a logger with corr attribute if present.
func LoggerWithCorr(ctx context.Context) *slog.Logger {
	if id := GetCorrelation(ctx); id != "" {
		return slog.Default().With(slog.String("corr", id))
	}
	return slog.Default()
}
