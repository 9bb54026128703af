package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// Bot is the optional gateway connection used for presence and role lookups.
type Bot struct {
	session  *discordgo.Session
	Presence *PresenceBoard
	Roles    *Roles
}

// OpenBot connects to the gateway with token. Roles is nil when guildID is empty.
func OpenBot(token, guildID string) (*Bot, error) {
	if token == "" {
		return nil, errors.New("discord bot token empty")
	}
	if !strings.HasPrefix(token, "Bot ") {
		token = "Bot " + token
	}
	s, err := discordgo.New(token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds
	s.ShouldReconnectOnError = true
	if err := s.Open(); err != nil {
		return nil, fmt.Errorf("open discord gateway: %w", err)
	}
	slog.Info("discord bot connected", slog.String("user", s.State.User.Username))

	b := &Bot{session: s, Presence: NewPresenceBoard(s)}
	if guildID != "" {
		b.Roles = NewRoles(s, guildID)
	}
	return b, nil
}

// Run keeps the gateway open until ctx is done.
func (b *Bot) Run(ctx context.Context) {
	<-ctx.Done()
	if err := b.session.Close(); err != nil {
		slog.Warn("failed to close discord session", slog.Any("err", err))
	}
}
