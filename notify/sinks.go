package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/MinnDevelopment/strumbot/telemetry"
)

// Multi sends to every sink and joins their errors. A failing sink does not
// keep the others from receiving the notification.
type Multi []Sink

func (m Multi) Send(ctx context.Context, n Notification) error {
	var errs []error
	for _, s := range m {
		if err := s.Send(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// BreakerSettings configures NewBreaker.
type BreakerSettings struct {
	Name string
	// ConsecutiveFailures opens the circuit.
	ConsecutiveFailures uint32
	// Cooldown is how long the circuit stays open before probing again.
	Cooldown time.Duration
}

// Breaker guards a sink with a circuit breaker so a dead webhook does not stall
// every watcher on timeouts.
type Breaker struct {
	next Sink
	cb   *gobreaker.CircuitBreaker
}

// NewBreaker wraps next.
func NewBreaker(next Sink, s BreakerSettings) *Breaker {
	if s.ConsecutiveFailures == 0 {
		s.ConsecutiveFailures = 5
	}
	if s.Cooldown <= 0 {
		s.Cooldown = time.Minute
	}
	if s.Name == "" {
		s.Name = "notify"
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    s.Name,
		Timeout: s.Cooldown,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= s.ConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("notification circuit state changed", slog.String("sink", name), slog.String("from", from.String()), slog.String("to", to.String()))
			telemetry.UpdateCircuitGauge(to == gobreaker.StateOpen)
		},
	})
	return &Breaker{next: next, cb: cb}
}

func (b *Breaker) Send(ctx context.Context, n Notification) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.Send(ctx, n)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%s notification for %s dropped: %w", n.Event, n.Channel, err)
	}
	return err
}

// Open reports whether the circuit currently rejects sends.
func (b *Breaker) Open() bool { return b.cb.State() == gobreaker.StateOpen }

// Record is one journal entry.
type Record struct {
	Channel string
	Event   Event
	Title   string
	VideoID string
	SentAt  time.Time
	Err     string
}

// Recorder persists journal records.
type Recorder interface {
	RecordNotification(ctx context.Context, r Record) error
}

// Journal records every send attempt of next. Recording failures are logged and
// never affect delivery.
type Journal struct {
	next     Sink
	recorder Recorder
	now      func() time.Time
}

// NewJournal wraps next; now may be nil.
func NewJournal(next Sink, recorder Recorder, now func() time.Time) *Journal {
	if now == nil {
		now = time.Now
	}
	return &Journal{next: next, recorder: recorder, now: now}
}

func (j *Journal) Send(ctx context.Context, n Notification) error {
	sendErr := j.next.Send(ctx, n)
	rec := Record{
		Channel: n.Channel,
		Event:   n.Event,
		Title:   n.Embed.Title,
		VideoID: n.VideoID,
		SentAt:  j.now().UTC(),
	}
	if sendErr != nil {
		rec.Err = sendErr.Error()
	}
	// a cancelled tick still deserves its journal line
	if err := j.recorder.RecordNotification(context.WithoutCancel(ctx), rec); err != nil {
		telemetry.LoggerWithCorr(ctx).Warn("failed to journal notification", slog.String("channel", n.Channel), slog.String("event", string(n.Event)), slog.Any("err", err))
	}
	return sendErr
}
