package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestInitIdempotent(t *testing.T) {
	Init()
	first := Ticks
	Init()

	if Ticks != first {
		t.Error("second Init replaced registered collectors")
	}
	for name, c := range map[string]any{
		"Ticks":              Ticks,
		"TickFailures":       TickFailures,
		"Notifications":      Notifications,
		"HelixRequests":      HelixRequests,
		"EnrichmentFailures": EnrichmentFailures,
		"TokenRefreshes":     TokenRefreshes,
		"WatcherPanics":      WatcherPanics,
		"ForwardedLogsDrop":  ForwardedLogsDrop,
		"TickDuration":       TickDuration,
		"LiveChannels":       LiveChannels,
		"CircuitOpenGauge":   CircuitOpenGauge,
	} {
		if c == nil {
			t.Errorf("%s not initialized", name)
		}
	}
}

func TestTickDurationObservation(t *testing.T) {
	Init()

	h, ok := TickDuration.(prometheus.Histogram)
	if !ok {
		t.Fatalf("TickDuration is %T, want prometheus.Histogram", TickDuration)
	}
	before := &dto.Metric{}
	if err := h.Write(before); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}

	TickDuration.Observe((250 * time.Millisecond).Seconds())

	after := &dto.Metric{}
	if err := h.Write(after); err != nil {
		t.Fatalf("Failed to write metric: %v", err)
	}
	if after.Histogram == nil {
		t.Fatal("Histogram metric is nil")
	}
	if got, want := after.Histogram.GetSampleCount(), before.Histogram.GetSampleCount()+1; got != want {
		t.Errorf("sample count = %d, want %d", got, want)
	}
}

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{0, "error"},
		{200, "2xx"},
		{204, "2xx"},
		{301, "3xx"},
		{404, "4xx"},
		{429, "4xx"},
		{503, "5xx"},
		{700, "other"},
		{99, "other"},
	}
	for _, tt := range tests {
		if got := statusLabel(tt.code); got != tt.want {
			t.Errorf("statusLabel(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestCounters(t *testing.T) {
	Init()

	before := testutil.ToFloat64(HelixRequests.WithLabelValues("streams", "4xx"))
	CountHelixRequest("streams", 401)
	if got := testutil.ToFloat64(HelixRequests.WithLabelValues("streams", "4xx")); got != before+1 {
		t.Errorf("helix requests = %v, want %v", got, before+1)
	}

	before = testutil.ToFloat64(Notifications.WithLabelValues("live", "sent"))
	CountNotification("live", "sent")
	if got := testutil.ToFloat64(Notifications.WithLabelValues("live", "sent")); got != before+1 {
		t.Errorf("notifications = %v, want %v", got, before+1)
	}

	before = testutil.ToFloat64(Ticks)
	CountTick()
	CountTick()
	if got := testutil.ToFloat64(Ticks); got != before+2 {
		t.Errorf("ticks = %v, want %v", got, before+2)
	}
}

func TestGauges(t *testing.T) {
	Init()

	SetLiveChannels(3)
	if got := testutil.ToFloat64(LiveChannels); got != 3 {
		t.Errorf("live channels = %v, want 3", got)
	}

	UpdateCircuitGauge(true)
	if got := testutil.ToFloat64(CircuitOpenGauge); got != 1 {
		t.Errorf("circuit gauge = %v, want 1 when open", got)
	}
	UpdateCircuitGauge(false)
	if got := testutil.ToFloat64(CircuitOpenGauge); got != 0 {
		t.Errorf("circuit gauge = %v, want 0 when closed", got)
	}
}

func TestCorrelation(t *testing.T) {
	ctx := context.Background()
	if got := GetCorrelation(ctx); got != "" {
		t.Errorf("GetCorrelation on empty context = %q", got)
	}
	ctx = WithCorrelation(ctx, "tick-1")
	if got := GetCorrelation(ctx); got != "tick-1" {
		t.Errorf("GetCorrelation = %q, want tick-1", got)
	}
	if LoggerWithCorr(ctx) == nil {
		t.Error("LoggerWithCorr returned nil")
	}
}
