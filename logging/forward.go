package logging

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/MinnDevelopment/strumbot/telemetry"
)

// DefaultQueueSize bounds the number of records waiting to be forwarded.
const DefaultQueueSize = 64

// Target receives forwarded log lines, e.g. a Discord log webhook.
type Target interface {
	Forward(ctx context.Context, text string) error
}

type forwarder struct {
	target Target
	queue  chan string
	level  slog.Level
	// failures are reported here, below the forwarding level
	fallback slog.Handler
}

// ForwardingHandler passes every record to its inner handler and additionally
// queues records at or above the forwarding level for delivery to a Target.
// Delivery happens on the goroutine running Run; when the queue is full the
// record is dropped rather than blocking the caller.
type ForwardingHandler struct {
	inner  slog.Handler
	fw     *forwarder
	attrs  []slog.Attr
	groups []string
}

// NewForwardingHandler forwards slog.LevelError and above. A queueSize <= 0
// uses DefaultQueueSize.
func NewForwardingHandler(inner slog.Handler, target Target, queueSize int) *ForwardingHandler {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &ForwardingHandler{
		inner: inner,
		fw: &forwarder{
			target:   target,
			queue:    make(chan string, queueSize),
			level:    slog.LevelError,
			fallback: inner,
		},
	}
}

func (h *ForwardingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.fw.level || h.inner.Enabled(ctx, level)
}

func (h *ForwardingHandler) Handle(ctx context.Context, r slog.Record) error {
	var err error
	if h.inner.Enabled(ctx, r.Level) {
		err = h.inner.Handle(ctx, r)
	}
	if r.Level >= h.fw.level {
		select {
		case h.fw.queue <- h.format(ctx, r):
		default:
			telemetry.CountDroppedLog()
		}
	}
	return err
}

func (h *ForwardingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	if len(attrs) == 0 {
		return h
	}
	c := h.clone()
	c.inner = h.inner.WithAttrs(attrs)
	for _, a := range attrs {
		c.attrs = append(c.attrs, h.qualify(a))
	}
	return c
}

func (h *ForwardingHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := h.clone()
	c.inner = h.inner.WithGroup(name)
	c.groups = append(c.groups, name)
	return c
}

func (h *ForwardingHandler) clone() *ForwardingHandler {
	return &ForwardingHandler{
		inner:  h.inner,
		fw:     h.fw,
		attrs:  append([]slog.Attr(nil), h.attrs...),
		groups: append([]string(nil), h.groups...),
	}
}

func (h *ForwardingHandler) qualify(a slog.Attr) slog.Attr {
	if len(h.groups) == 0 {
		return a
	}
	a.Key = strings.Join(h.groups, ".") + "." + a.Key
	return a
}

// format renders a record as a single text line:
// "2024-10-15T18:00:00Z ERROR message key=value ...".
func (h *ForwardingHandler) format(ctx context.Context, r slog.Record) string {
	var b strings.Builder
	ts := r.Time
	if ts.IsZero() {
		ts = time.Now()
	}
	b.WriteString(ts.UTC().Format(time.RFC3339))
	b.WriteByte(' ')
	b.WriteString(r.Level.String())
	b.WriteByte(' ')
	b.WriteString(r.Message)
	for _, a := range h.attrs {
		b.WriteByte(' ')
		b.WriteString(a.String())
	}
	r.Attrs(func(a slog.Attr) bool {
		b.WriteByte(' ')
		b.WriteString(h.qualify(a).String())
		return true
	})
	if id := telemetry.GetCorrelation(ctx); id != "" {
		b.WriteString(" corr=")
		b.WriteString(id)
	}
	return b.String()
}

// Run delivers queued records until ctx is done. Records still queued at
// that point are discarded.
func (h *ForwardingHandler) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case text := <-h.fw.queue:
			err := h.fw.target.Forward(ctx, text)
			if err != nil && ctx.Err() == nil && h.fw.fallback.Enabled(ctx, slog.LevelWarn) {
				// logged below the forwarding level so it is never forwarded itself
				r := slog.NewRecord(time.Now(), slog.LevelWarn, "log forwarding failed", 0)
				r.AddAttrs(slog.Any("err", err))
				_ = h.fw.fallback.Handle(ctx, r)
			}
		}
	}
}
