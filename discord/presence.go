package discord

import (
	"context"
	"log/slog"
	"sync"

	"github.com/bwmarrin/discordgo"
)

type statusUpdater interface {
	UpdateStatusComplex(usd discordgo.UpdateStatusData) error
}

type activity struct {
	login string
	text  string
	url   string
}

// PresenceBoard publishes the bot's "Streaming" activity. Several channels can
// be live at once; the most recently started or updated one is shown, and
// closing it falls back to the next most recent.
type PresenceBoard struct {
	api statusUpdater

	mu     sync.Mutex
	active []activity // oldest first
}

// NewPresenceBoard publishes through api, usually a *discordgo.Session.
func NewPresenceBoard(api statusUpdater) *PresenceBoard {
	return &PresenceBoard{api: api}
}

// For returns the presence handle of one channel.
func (b *PresenceBoard) For(login string) *ChannelPresence {
	return &ChannelPresence{board: b, login: login}
}

// ChannelPresence is the activity slot of a single channel.
type ChannelPresence struct {
	board *PresenceBoard
	login string
}

// SetActivity shows text as a streaming activity linking to url.
func (c *ChannelPresence) SetActivity(_ context.Context, text, url string) error {
	b := c.board
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remove(c.login)
	b.active = append(b.active, activity{login: c.login, text: text, url: url})
	return b.publish()
}

// ClearActivity removes this channel's activity.
func (c *ChannelPresence) ClearActivity(_ context.Context) error {
	b := c.board
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.remove(c.login) {
		return nil
	}
	return b.publish()
}

func (b *PresenceBoard) remove(login string) bool {
	for i, a := range b.active {
		if a.login == login {
			b.active = append(b.active[:i], b.active[i+1:]...)
			return true
		}
	}
	return false
}

func (b *PresenceBoard) publish() error {
	usd := discordgo.UpdateStatusData{Status: string(discordgo.StatusOnline)}
	if n := len(b.active); n > 0 {
		top := b.active[n-1]
		usd.Activities = []*discordgo.Activity{{
			Name: top.text,
			Type: discordgo.ActivityTypeStreaming,
			URL:  top.url,
		}}
	}
	if err := b.api.UpdateStatusComplex(usd); err != nil {
		slog.Debug("presence update failed", slog.Int("activities", len(usd.Activities)), slog.Any("err", err))
		return err
	}
	return nil
}
