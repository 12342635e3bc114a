// Package telemetry provides Prometheus metrics and correlation-id aware logging helpers.
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
	EventsTotal       *prometheus.CounterVec
	MalformedEvents   prometheus.Counter
	PromotionChecks   *prometheus.CounterVec
	PromotionsTotal   prometheus.Counter
	PromotionFailures prometheus.Counter
	SelfSkips         prometheus.Counter

	// Histograms (seconds)
	PromotionDuration prometheus.Observer

	// Gauges
	TrackedMembers prometheus.Gauge
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{Name: "autovoice_events_total", Help: "Inbound chat events by kind"}, []string{"kind"})
		MalformedEvents = promauto.NewCounter(prometheus.CounterOpts{Name: "autovoice_malformed_events_total", Help: "Inbound events dropped as malformed"})
		PromotionChecks = promauto.NewCounterVec(prometheus.CounterOpts{Name: "autovoice_promotion_checks_total", Help: "Promotion checks by trigger"}, []string{"trigger"})
		PromotionsTotal = promauto.NewCounter(prometheus.CounterOpts{Name: "autovoice_promotions_total", Help: "Voice commands issued successfully"})
		PromotionFailures = promauto.NewCounter(prometheus.CounterOpts{Name: "autovoice_promotion_failures_total", Help: "Voice commands that failed"})
		SelfSkips = promauto.NewCounter(prometheus.CounterOpts{Name: "autovoice_self_skips_total", Help: "Selections skipped because they named the bot itself"})
		PromotionDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "autovoice_promotion_duration_seconds", Help: "Voice command latency seconds", Buckets: prometheus.DefBuckets})
		TrackedMembers = promauto.NewGauge(prometheus.GaugeOpts{Name: "autovoice_tracked_members", Help: "Members currently waiting for promotion"})
	})
}

// CountEvent records one inbound event of the given kind.
func CountEvent(kind string) {
	if EventsTotal != nil {
		EventsTotal.WithLabelValues(kind).Inc()
	}
}

// CountCheck records one promotion check caused by trigger.
func CountCheck(trigger string) {
	if PromotionChecks != nil {
		PromotionChecks.WithLabelValues(trigger).Inc()
	}
}

// Inc increments c if it has been registered.
func Inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// SetTracked records the current store size.
func SetTracked(n int) {
	if TrackedMembers != nil {
		TrackedMembers.Set(float64(n))
	}
}

// TimeFunc measures the duration of fn and records in observer if non-nil.
func TimeFunc(obs prometheus.Observer, fn func()) time.Duration {
	start := time.Now()
	fn()
	d := time.Since(start)
	if obs != nil {
		obs.Observe(d.Seconds())
	}
	return d
}

// Correlation ID helpers ----------------------------------------------------
type corrKeyType struct{}

var corrKey corrKeyType

// WithCorrelation returns a new context embedding the correlation id.
func WithCorrelation(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, corrKey, id)
}

// GetCorrelation returns correlation id or empty string.
func GetCorrelation(ctx context.Context) string {
	if s, ok := ctx.Value(corrKey).(string); ok {
		return s
	}
	return ""
}

// LoggerWithCorr returns base (or the default logger) with a corr attribute if present.
func LoggerWithCorr(ctx context.Context, base *slog.Logger) *slog.Logger {
	if base == nil {
		base = slog.Default()
	}
	if id := GetCorrelation(ctx); id != "" {
		return base.With(slog.String("corr", id))
	}
	return base
}

// LevelTrace is below Debug; it is enabled with -vv and carries per-message noise.
const LevelTrace = slog.LevelDebug - 4
