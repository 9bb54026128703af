package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	twitch "github.com/gempir/go-twitch-irc/v4"

	"github.com/MinnDevelopment/strumbot/notify"
)

// Twitch drops PRIVMSGs above this length.
const messageLimit = 500

type sayer interface {
	Say(channel, text string)
}

// Announcer is a notification sink that posts the plain-text summary of each
// notification into one Twitch chat channel.
type Announcer struct {
	channel string
	events  notify.EventSet
	client  sayer

	mu        sync.Mutex
	connected bool
}

// NewAnnouncer returns nil when any credential is missing; the chat sink is optional.
func NewAnnouncer(username, oauthToken, channel string, events notify.EventSet) *Announcer {
	if username == "" || oauthToken == "" || channel == "" {
		slog.Info("twitch chat creds not set; skipping chat announcer")
		return nil
	}
	if !strings.HasPrefix(oauthToken, "oauth:") {
		oauthToken = "oauth:" + oauthToken
	}
	return newAnnouncer(twitch.NewClient(username, oauthToken), channel, events)
}

func newAnnouncer(client sayer, channel string, events notify.EventSet) *Announcer {
	return &Announcer{channel: strings.ToLower(strings.TrimPrefix(channel, "#")), events: events, client: client}
}

// Start connects to Twitch IRC and blocks until ctx is done.
func (a *Announcer) Start(ctx context.Context) {
	client, ok := a.client.(*twitch.Client)
	if !ok {
		return
	}
	client.OnConnect(func() {
		a.setConnected(true)
		slog.Info("twitch chat connected", slog.String("channel", a.channel))
	})

	// Handle context cancellation by closing the client
	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		a.setConnected(false)
		_ = client.Disconnect()
		close(done)
	}()

	client.Join(a.channel)
	if err := client.Connect(); err != nil && !errors.Is(err, twitch.ErrClientDisconnected) {
		slog.Error("twitch chat connect error", slog.Any("err", err))
	}
	a.setConnected(false)
	<-done
}

func (a *Announcer) setConnected(v bool) {
	a.mu.Lock()
	a.connected = v
	a.mu.Unlock()
}

// Send posts n.Summary. Events outside the announcer's set are skipped.
func (a *Announcer) Send(_ context.Context, n notify.Notification) error {
	if !a.events.Has(n.Event) || n.Summary == "" {
		return nil
	}
	if _, irc := a.client.(*twitch.Client); irc {
		a.mu.Lock()
		connected := a.connected
		a.mu.Unlock()
		if !connected {
			return errors.New("twitch chat not connected")
		}
	}
	text := strings.ReplaceAll(n.Summary, "\n", " ")
	if r := []rune(text); len(r) > messageLimit {
		text = string(r[:messageLimit-1]) + "…"
	}
	a.client.Say(a.channel, text)
	return nil
}
