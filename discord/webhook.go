// Package discord delivers notifications through a Discord webhook and drives
// the optional bot account (streaming presence, role mentions).
package discord

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/MinnDevelopment/strumbot/notify"
	"github.com/MinnDevelopment/strumbot/telemetry"
)

// messageLimit is the longest content Discord accepts in one message.
const messageLimit = 2000

// Webhook identifies an incoming webhook.
type Webhook struct {
	ID    string
	Token string
}

// ParseWebhookURL extracts id and token from
// https://discord.com/api/webhooks/<id>/<token>.
func ParseWebhookURL(raw string) (Webhook, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return Webhook{}, fmt.Errorf("parse webhook url: %w", err)
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	for i, p := range parts {
		if p == "webhooks" && i+2 < len(parts) && parts[i+1] != "" && parts[i+2] != "" {
			return Webhook{ID: parts[i+1], Token: parts[i+2]}, nil
		}
	}
	return Webhook{}, fmt.Errorf("invalid webhook url %q: expected .../webhooks/<id>/<token>", u.Redacted())
}

// WebhookSink sends notifications to a webhook.
type WebhookSink struct {
	hook    Webhook
	session *discordgo.Session
}

// NewWebhookSink creates a sink for the webhook at rawURL. httpClient may be nil.
func NewWebhookSink(rawURL string, httpClient *http.Client) (*WebhookSink, error) {
	hook, err := ParseWebhookURL(rawURL)
	if err != nil {
		return nil, err
	}
	// webhook execution is authorized by the token in the path
	s, err := discordgo.New("")
	if err != nil {
		return nil, err
	}
	if httpClient != nil {
		s.Client = httpClient
	}
	s.UserAgent = "strumbot (https://github.com/MinnDevelopment/strumbot)"
	return &WebhookSink{hook: hook, session: s}, nil
}

// Send executes the webhook, attaching the thumbnail when present.
func (w *WebhookSink) Send(ctx context.Context, n notify.Notification) error {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerNotify, "discord.webhook", telemetry.ChannelAttr(n.Channel), telemetry.EventAttr(string(n.Event)))
	defer span.End()

	params := WebhookParams(n)
	_, err := w.session.WebhookExecute(w.hook.ID, w.hook.Token, true, params, discordgo.WithContext(ctx))
	if err != nil {
		telemetry.RecordError(span, err)
		return fmt.Errorf("execute webhook for %s %s: %w", n.Channel, n.Event, err)
	}
	telemetry.SetSpanSuccess(span)
	slog.Debug("webhook notification sent", slog.String("channel", n.Channel), slog.String("event", string(n.Event)))
	return nil
}

// WebhookParams converts a notification to the discordgo payload. Only role and
// everyone mentions are allowed to ping.
func WebhookParams(n notify.Notification) *discordgo.WebhookParams {
	params := &discordgo.WebhookParams{
		Content: truncate(n.Content, messageLimit),
		Embeds:  []*discordgo.MessageEmbed{embed(n.Embed)},
		AllowedMentions: &discordgo.MessageAllowedMentions{
			Parse: []discordgo.AllowedMentionType{discordgo.AllowedMentionTypeRoles, discordgo.AllowedMentionTypeEveryone},
		},
	}
	if a := n.Attachment; a != nil && len(a.Data) > 0 {
		params.Files = []*discordgo.File{{
			Name:        a.Name,
			ContentType: a.ContentType,
			Reader:      bytes.NewReader(a.Data),
		}}
	}
	return params
}

func embed(e notify.Embed) *discordgo.MessageEmbed {
	me := &discordgo.MessageEmbed{
		Title:       e.Title,
		URL:         e.URL,
		Description: e.Description,
		Color:       e.Color,
	}
	if !e.Timestamp.IsZero() {
		me.Timestamp = e.Timestamp.UTC().Format(time.RFC3339)
	}
	if e.Author.Name != "" {
		me.Author = &discordgo.MessageEmbedAuthor{Name: e.Author.Name, URL: e.Author.URL, IconURL: e.Author.IconURL}
	}
	if e.Image != "" {
		me.Image = &discordgo.MessageEmbedImage{URL: e.Image}
	}
	if e.Footer != "" {
		me.Footer = &discordgo.MessageEmbedFooter{Text: e.Footer}
	}
	for _, f := range e.Fields {
		me.Fields = append(me.Fields, &discordgo.MessageEmbedField{Name: f.Name, Value: f.Value, Inline: f.Inline})
	}
	return me
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit-1]) + "…"
}
