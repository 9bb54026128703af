// Package poller drives the watchers: one batched Helix fetch per tick,
// fanned out to every channel watcher.
package poller

import (
	"context"
	"log/slog"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/MinnDevelopment/strumbot/telemetry"
	"github.com/MinnDevelopment/strumbot/twitchapi"
	"github.com/MinnDevelopment/strumbot/watcher"
)

// DefaultInterval is the delay between the end of one tick and the start of the next.
const DefaultInterval = 30 * time.Second

// StreamFetcher returns the live streams among logins.
type StreamFetcher interface {
	GetStreams(ctx context.Context, logins []string) ([]twitchapi.Stream, error)
}

// Channel is a per-channel consumer of poll results, normally a *watcher.Watcher.
type Channel interface {
	Login() string
	Handle(ctx context.Context, s *twitchapi.Stream) error
	Status() watcher.Status
}

// Poller schedules ticks.
type Poller struct {
	api      StreamFetcher
	channels []Channel
	logins   []string
	interval time.Duration
	clock    clockwork.Clock
	log      *slog.Logger

	lastSuccess atomic.Int64
}

// Option customizes a Poller.
type Option func(*Poller)

func WithClock(c clockwork.Clock) Option { return func(p *Poller) { p.clock = c } }
func WithLogger(l *slog.Logger) Option   { return func(p *Poller) { p.log = l } }

// New creates a poller over channels.
func New(api StreamFetcher, channels []Channel, interval time.Duration, opts ...Option) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	p := &Poller{
		api:      api,
		channels: channels,
		interval: interval,
		clock:    clockwork.NewRealClock(),
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	p.log = p.log.With(slog.String("component", "poller"))
	for _, c := range channels {
		p.logins = append(p.logins, strings.ToLower(c.Login()))
	}
	return p
}

// Run ticks until ctx is done or a fetch fails fatally. The first tick runs
// immediately; later ticks start interval after the previous one finished,
// so ticks never overlap. A nil return means ctx was cancelled.
func (p *Poller) Run(ctx context.Context) error {
	p.log.Info("poller starting", slog.Int("channels", len(p.channels)), slog.Duration("interval", p.interval))
	for {
		if err := p.Tick(ctx); err != nil && twitchapi.IsFatal(err) {
			p.log.Error("fatal error, stopping poller", slog.Any("err", err))
			return err
		}
		select {
		case <-ctx.Done():
			p.log.Info("poller stopped")
			return nil
		case <-p.clock.After(p.interval):
		}
	}
}

// Tick performs one poll. When the fetch fails the tick is skipped: no watcher
// sees a result, so a failed fetch never reads as "offline".
func (p *Poller) Tick(ctx context.Context) error {
	ctx = telemetry.WithCorrelation(ctx, uuid.NewString())
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerPoller, "poller.tick")
	defer span.End()
	logger := telemetry.LoggerWithCorr(ctx).With(slog.String("component", "poller"))

	telemetry.CountTick()
	start := p.clock.Now()

	streams, err := p.api.GetStreams(ctx, p.logins)
	if err != nil {
		class := "transient"
		if twitchapi.IsFatal(err) {
			class = "fatal"
		}
		telemetry.CountTickFailure(class)
		telemetry.RecordError(span, err)
		logger.Warn("stream fetch failed, skipping tick", slog.String("class", class), slog.Any("err", err))
		return err
	}

	byLogin := make(map[string]*twitchapi.Stream, len(streams))
	for i := range streams {
		byLogin[strings.ToLower(streams[i].UserLogin)] = &streams[i]
	}

	var g errgroup.Group
	for i, c := range p.channels {
		s := byLogin[p.logins[i]]
		g.Go(func() error {
			p.handle(ctx, logger, c, s)
			return nil
		})
	}
	_ = g.Wait()

	live := 0
	for _, c := range p.channels {
		if c.Status().Live {
			live++
		}
	}
	telemetry.SetLiveChannels(live)

	now := p.clock.Now()
	p.lastSuccess.Store(now.UnixNano())
	if telemetry.TickDuration != nil {
		telemetry.TickDuration.Observe(now.Sub(start).Seconds())
	}
	telemetry.SetSpanSuccess(span)
	logger.Debug("tick complete", slog.Int("streams", len(streams)), slog.Int("live", live))
	return nil
}

// handle isolates one channel: a panic is logged and the other channels of
// the tick are unaffected.
func (p *Poller) handle(ctx context.Context, logger *slog.Logger, c Channel, s *twitchapi.Stream) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.CountWatcherPanic()
			logger.Error("watcher panicked", slog.String("channel", c.Login()), slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
		}
	}()
	// send failures are logged by the watcher
	_ = c.Handle(ctx, s)
}

// LastSuccess is the completion time of the last tick whose fetch succeeded.
func (p *Poller) LastSuccess() time.Time {
	n := p.lastSuccess.Load()
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n)
}

// Interval returns the configured tick delay.
func (p *Poller) Interval() time.Duration { return p.interval }

// Statuses returns the current state of every channel in configuration order.
func (p *Poller) Statuses() []watcher.Status {
	out := make([]watcher.Status, 0, len(p.channels))
	for _, c := range p.channels {
		out = append(out, c.Status())
	}
	return out
}
