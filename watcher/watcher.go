// Package watcher implements the per-channel stream state machine.
//
// A Watcher consumes one snapshot per poll tick (nil when the channel was not
// in the live set), debounces short offline blips, tracks game changes as
// session segments and emits live, update and vod notifications.
package watcher

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/MinnDevelopment/strumbot/locale"
	"github.com/MinnDevelopment/strumbot/notify"
	"github.com/MinnDevelopment/strumbot/telemetry"
	"github.com/MinnDevelopment/strumbot/twitchapi"
)

// DefaultGracePeriod is how long a live channel may be missing from the poll
// result before its session is closed.
const DefaultGracePeriod = 2 * time.Minute

// Platform is the part of the Helix facade the watcher enriches notifications with.
type Platform interface {
	GetGame(ctx context.Context, id string) (twitchapi.Game, error)
	GetBroadcastID(ctx context.Context, userID, streamID string, startedAt time.Time) (string, error)
	GetVideo(ctx context.Context, id string) (twitchapi.Video, error)
	GetTopClips(ctx context.Context, broadcasterID string, since time.Time, limit int) ([]twitchapi.Clip, error)
	GetThumbnail(ctx context.Context, template string, width, height int) ([]byte, error)
}

// Presence reflects the channel's current activity on the bot account.
type Presence interface {
	SetActivity(ctx context.Context, text, url string) error
	ClearActivity(ctx context.Context) error
}

// RoleResolver turns a role name into a mention token.
type RoleResolver interface {
	Mention(ctx context.Context, name string) (string, error)
}

// Roles names the role mentioned per event; empty disables the mention.
type Roles struct {
	Live   string
	Update string
	VOD    string
}

func (r Roles) name(e notify.Event) string {
	switch e {
	case notify.EventLive:
		return r.Live
	case notify.EventUpdate:
		return r.Update
	default:
		return r.VOD
	}
}

// Config is the per-channel configuration.
type Config struct {
	Login       string
	Events      notify.EventSet
	Roles       Roles
	GracePeriod time.Duration
	// TopClips is the number of clips listed in the vod notification (0-5).
	TopClips int
	// Fallback is used when the stream language is unset or unsupported.
	Fallback locale.Lang
}

// Segment is a part of a session with a single game.
type Segment struct {
	Game twitchapi.Game
	// Offset is the time since stream start at which the segment began.
	Offset  time.Duration
	VideoID string
}

// Option customizes a Watcher.
type Option func(*Watcher)

func WithPresence(p Presence) Option     { return func(w *Watcher) { w.presence = p } }
func WithRoles(r RoleResolver) Option    { return func(w *Watcher) { w.roles = r } }
func WithClock(c clockwork.Clock) Option { return func(w *Watcher) { w.clock = c } }
func WithLogger(l *slog.Logger) Option   { return func(w *Watcher) { w.log = l } }

// Watcher tracks one channel. Handle calls are serialized.
type Watcher struct {
	cfg      Config
	api      Platform
	sink     notify.Sink
	presence Presence
	roles    RoleResolver
	clock    clockwork.Clock
	log      *slog.Logger

	handleMu sync.Mutex
	// state below is only touched while handleMu is held
	current      *Segment
	offlineSince time.Time
	startedAt    time.Time
	streamID     string
	history      []Segment
	channelID    string
	lang         locale.Lang
	displayName  string
	title        string
	thumbnail    string

	status atomic.Pointer[Status]
}

// New creates the watcher for cfg.Login.
func New(cfg Config, api Platform, sink notify.Sink, opts ...Option) *Watcher {
	cfg.Login = strings.ToLower(strings.TrimSpace(cfg.Login))
	if cfg.GracePeriod <= 0 {
		cfg.GracePeriod = DefaultGracePeriod
	}
	cfg.TopClips = max(0, min(cfg.TopClips, 5))
	if cfg.Events == nil {
		cfg.Events = notify.AllEvents()
	}
	w := &Watcher{
		cfg:      cfg,
		api:      api,
		sink:     sink,
		presence: noPresence{},
		roles:    noRoles{},
		clock:    clockwork.NewRealClock(),
		log:      slog.Default(),
	}
	for _, o := range opts {
		o(w)
	}
	w.log = w.log.With(slog.String("component", "watcher"), slog.String("channel", cfg.Login))
	w.lang = locale.For("", cfg.Fallback)
	w.publish()
	return w
}

// Login is the lower-cased channel login.
func (w *Watcher) Login() string { return w.cfg.Login }

// Handle applies one poll result. s is nil when the channel was absent from
// the live set. State transitions always happen; only the notification send is
// gated on the enabled events. The returned error reports a failed send.
func (w *Watcher) Handle(ctx context.Context, s *twitchapi.Stream) error {
	w.handleMu.Lock()
	defer w.handleMu.Unlock()
	defer w.publish()

	now := w.clock.Now()
	switch {
	case s == nil && w.current == nil:
		return nil
	case s == nil:
		return w.handleAbsent(ctx, now)
	case w.current == nil:
		return w.goLive(ctx, s)
	default:
		return w.handlePresent(ctx, s, now)
	}
}

func (w *Watcher) logger(ctx context.Context) *slog.Logger {
	if id := telemetry.GetCorrelation(ctx); id != "" {
		return w.log.With(slog.String("corr", id))
	}
	return w.log
}

func (w *Watcher) handleAbsent(ctx context.Context, now time.Time) error {
	if w.offlineSince.IsZero() {
		w.offlineSince = now
		w.logger(ctx).Debug("channel missing from live set, waiting for grace period", slog.Duration("grace", w.cfg.GracePeriod))
		return nil
	}
	if now.Sub(w.offlineSince) < w.cfg.GracePeriod {
		return nil
	}
	return w.goOffline(ctx)
}

func (w *Watcher) observe(s *twitchapi.Stream) {
	w.channelID = s.UserID
	w.lang = locale.For(s.Language, w.cfg.Fallback)
	w.title = s.Title
	w.thumbnail = s.ThumbnailURL
	w.displayName = s.UserName
	if w.displayName == "" {
		w.displayName = w.cfg.Login
	}
}

func (w *Watcher) handlePresent(ctx context.Context, s *twitchapi.Stream, now time.Time) error {
	if !w.offlineSince.IsZero() {
		w.logger(ctx).Debug("channel back in live set", slog.Duration("missing_for", now.Sub(w.offlineSince)))
		w.offlineSince = time.Time{}
	}
	w.observe(s)

	if s.GameID == "" || s.GameID == w.current.Game.ID {
		if w.current.VideoID == "" {
			w.current.VideoID = w.latestVideoID(ctx)
		}
		return nil
	}

	// game changed
	w.history = append(w.history, *w.current)
	var (
		game    twitchapi.Game
		thumb   []byte
		videoID = w.current.VideoID
		g       errgroup.Group
	)
	g.Go(func() error {
		game = w.lookupGame(ctx, s)
		return nil
	})
	if w.cfg.Events.Has(notify.EventUpdate) {
		g.Go(func() error {
			thumb = w.fetchThumbnail(ctx, s.ThumbnailURL)
			return nil
		})
	}
	if videoID == "" {
		g.Go(func() error {
			videoID = w.latestVideoID(ctx)
			return nil
		})
	}
	_ = g.Wait()

	offset := now.Sub(w.startedAt).Truncate(time.Second)
	w.current = &Segment{Game: game, Offset: max(offset, 0), VideoID: videoID}
	w.logger(ctx).Info("game changed", slog.String("game", game.Name), slog.Duration("offset", w.current.Offset))
	w.setPresence(ctx, game)
	return w.send(ctx, w.updateNotification(ctx, thumb))
}

func (w *Watcher) goOffline(ctx context.Context) error {
	w.history = append(w.history, *w.current)
	w.current = nil
	duration := w.offlineSince.Sub(w.startedAt).Truncate(time.Second)
	w.logger(ctx).Info("channel went offline", slog.Duration("duration", duration), slog.Int("segments", len(w.history)))

	var err error
	if w.cfg.Events.Has(notify.EventVOD) {
		err = w.send(ctx, w.vodNotification(ctx, duration))
	} else {
		telemetry.CountNotification(string(notify.EventVOD), "disabled")
	}
	if perr := w.presence.ClearActivity(ctx); perr != nil {
		w.logger(ctx).Warn("failed to clear presence", slog.Any("err", perr))
	}

	w.history = nil
	w.offlineSince = time.Time{}
	w.startedAt = time.Time{}
	w.streamID = ""
	return err
}

func (w *Watcher) lookupGame(ctx context.Context, s *twitchapi.Stream) twitchapi.Game {
	g, err := w.api.GetGame(ctx, s.GameID)
	if err == nil {
		if s.GameID == "" {
			g.Name = w.lang.Text(locale.NoCategory)
		}
		return g
	}
	telemetry.CountEnrichmentFailure("game")
	if !twitchapi.IsNotFound(err) {
		w.logger(ctx).Warn("game lookup failed", slog.String("game_id", s.GameID), slog.Any("err", err))
	}
	name := s.GameName
	if name == "" {
		name = s.GameID
	}
	return twitchapi.Game{ID: s.GameID, Name: name}
}

func (w *Watcher) latestVideoID(ctx context.Context) string {
	if w.channelID == "" {
		return ""
	}
	id, err := w.api.GetBroadcastID(ctx, w.channelID, w.streamID, w.startedAt)
	if err != nil {
		if !twitchapi.IsNotFound(err) {
			telemetry.CountEnrichmentFailure("video")
			w.logger(ctx).Warn("broadcast lookup failed", slog.Any("err", err))
		}
		return ""
	}
	return id
}

func (w *Watcher) fetchThumbnail(ctx context.Context, template string) []byte {
	if template == "" {
		return nil
	}
	b, err := w.api.GetThumbnail(ctx, template, 1920, 1080)
	if err != nil {
		telemetry.CountEnrichmentFailure("thumbnail")
		if !twitchapi.IsNotFound(err) {
			w.logger(ctx).Warn("thumbnail fetch failed", slog.Any("err", err))
		}
		return nil
	}
	return b
}

func (w *Watcher) mention(ctx context.Context, e notify.Event) string {
	name := w.cfg.Roles.name(e)
	if name == "" {
		return ""
	}
	m, err := w.roles.Mention(ctx, name)
	if err != nil {
		w.logger(ctx).Warn("role mention unavailable", slog.String("role", name), slog.Any("err", err))
		return ""
	}
	return m
}

func (w *Watcher) setPresence(ctx context.Context, game twitchapi.Game) {
	if err := w.presence.SetActivity(ctx, game.Name, channelURL(w.cfg.Login)); err != nil {
		w.logger(ctx).Warn("failed to update presence", slog.Any("err", err))
	}
}

// send delivers n if its event is enabled.
func (w *Watcher) send(ctx context.Context, n notify.Notification) error {
	event := string(n.Event)
	if !w.cfg.Events.Has(n.Event) {
		telemetry.CountNotification(event, "disabled")
		return nil
	}
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerNotify, "notify."+event, telemetry.ChannelAttr(w.cfg.Login), telemetry.EventAttr(event))
	defer span.End()
	if err := w.sink.Send(ctx, n); err != nil {
		telemetry.CountNotification(event, "failed")
		telemetry.RecordError(span, err)
		w.logger(ctx).Error("failed to send notification", slog.String("event", event), slog.Any("err", err))
		return err
	}
	telemetry.CountNotification(event, "sent")
	w.logger(ctx).Info("notification sent", slog.String("event", event))
	return nil
}

// Status is a read-only view of a watcher for the ops endpoints.
type Status struct {
	Login        string    `json:"login"`
	Live         bool      `json:"live"`
	DisplayName  string    `json:"display_name,omitempty"`
	Title        string    `json:"title,omitempty"`
	Game         string    `json:"game,omitempty"`
	Language     string    `json:"language,omitempty"`
	StartedAt    time.Time `json:"started_at,omitzero"`
	OfflineSince time.Time `json:"offline_since,omitzero"`
	Segments     int       `json:"segments"`
	VideoID      string    `json:"video_id,omitempty"`
}

// Status returns the state as of the last completed Handle call.
func (w *Watcher) Status() Status {
	return *w.status.Load()
}

func (w *Watcher) publish() {
	st := &Status{Login: w.cfg.Login, Language: w.lang.String()}
	if w.current != nil {
		st.Live = true
		st.DisplayName = w.displayName
		st.Title = w.title
		st.Game = w.current.Game.Name
		st.StartedAt = w.startedAt
		st.OfflineSince = w.offlineSince
		st.Segments = len(w.history) + 1
		st.VideoID = w.current.VideoID
	}
	w.status.Store(st)
}

type noPresence struct{}

func (noPresence) SetActivity(context.Context, string, string) error { return nil }
func (noPresence) ClearActivity(context.Context) error               { return nil }

type noRoles struct{}

func (noRoles) Mention(context.Context, string) (string, error) { return "", nil }
