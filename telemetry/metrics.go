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
	Ticks              prometheus.Counter
	TickFailures       *prometheus.CounterVec
	Notifications      *prometheus.CounterVec
	HelixRequests      *prometheus.CounterVec
	EnrichmentFailures *prometheus.CounterVec
	TokenRefreshes     prometheus.Counter
	WatcherPanics      prometheus.Counter
	ForwardedLogsDrop  prometheus.Counter

	// Histograms (seconds)
	TickDuration prometheus.Observer

	// Gauges
	LiveChannels     prometheus.Gauge
	CircuitOpenGauge prometheus.Gauge // 1=open,0=closed
)

// Init registers metrics (idempotent).
func Init() {
	once.Do(func() {
		Ticks = promauto.NewCounter(prometheus.CounterOpts{Name: "strumbot_ticks_total", Help: "Number of poll ticks started"})
		TickFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "strumbot_tick_failures_total", Help: "Poll ticks skipped because the stream fetch failed"}, []string{"class"})
		Notifications = promauto.NewCounterVec(prometheus.CounterOpts{Name: "strumbot_notifications_total", Help: "Notification events by type and outcome"}, []string{"event", "outcome"})
		HelixRequests = promauto.NewCounterVec(prometheus.CounterOpts{Name: "strumbot_helix_requests_total", Help: "Helix API requests by endpoint and status code"}, []string{"endpoint", "code"})
		EnrichmentFailures = promauto.NewCounterVec(prometheus.CounterOpts{Name: "strumbot_enrichment_failures_total", Help: "Degraded enrichment lookups by kind"}, []string{"kind"})
		TokenRefreshes = promauto.NewCounter(prometheus.CounterOpts{Name: "strumbot_token_refreshes_total", Help: "App access token exchanges"})
		WatcherPanics = promauto.NewCounter(prometheus.CounterOpts{Name: "strumbot_watcher_panics_total", Help: "Recovered panics inside channel watchers"})
		ForwardedLogsDrop = promauto.NewCounter(prometheus.CounterOpts{Name: "strumbot_forwarded_logs_dropped_total", Help: "Error log records dropped because the forward queue was full"})
		TickDuration = promauto.NewHistogram(prometheus.HistogramOpts{Name: "strumbot_tick_duration_seconds", Help: "Duration of a full poll tick including fan-out", Buckets: prometheus.DefBuckets})
		LiveChannels = promauto.NewGauge(prometheus.GaugeOpts{Name: "strumbot_live_channels", Help: "Channels currently considered live"})
		CircuitOpenGauge = promauto.NewGauge(prometheus.GaugeOpts{Name: "strumbot_sink_circuit_open", Help: "Notification sink circuit breaker open=1 closed=0"})
	})
}

// UpdateCircuitGauge sets gauge to 1 if open else 0.
func UpdateCircuitGauge(open bool) {
	if CircuitOpenGauge == nil {
		return
	}
	if open {
		CircuitOpenGauge.Set(1)
	} else {
		CircuitOpenGauge.Set(0)
	}
}

// SetLiveChannels records how many channels are currently live.
func SetLiveChannels(n int) {
	if LiveChannels != nil {
		LiveChannels.Set(float64(n))
	}
}

// CountNotification records the outcome (sent, failed, disabled) of one event.
func CountNotification(event, outcome string) {
	if Notifications != nil {
		Notifications.WithLabelValues(event, outcome).Inc()
	}
}

// CountEnrichmentFailure records a degraded lookup (game, thumbnail, video, clips).
func CountEnrichmentFailure(kind string) {
	if EnrichmentFailures != nil {
		EnrichmentFailures.WithLabelValues(kind).Inc()
	}
}

// CountHelixRequest records one Helix round trip.
func CountHelixRequest(endpoint string, code int) {
	if HelixRequests != nil {
		HelixRequests.WithLabelValues(endpoint, statusLabel(code)).Inc()
	}
}

// CountTickFailure records a skipped or fatal tick.
func CountTickFailure(class string) {
	if TickFailures != nil {
		TickFailures.WithLabelValues(class).Inc()
	}
}

func inc(c prometheus.Counter) {
	if c != nil {
		c.Inc()
	}
}

// CountTick, CountTokenRefresh, CountWatcherPanic and CountDroppedLog are nil-safe shorthands.
func CountTick()         { inc(Ticks) }
func CountTokenRefresh() { inc(TokenRefreshes) }
func CountWatcherPanic() { inc(WatcherPanics) }
func CountDroppedLog()   { inc(ForwardedLogsDrop) }

func statusLabel(code int) string {
	switch {
	case code == 0:
		return "error"
	case code < 200 || code > 599:
		return "other"
	default:
		return [...]string{"1xx", "2xx", "3xx", "4xx", "5xx"}[code/100-1]
	}
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
