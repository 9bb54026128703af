package discord

import (
	"context"
	"net/http"
	"strings"

	"github.com/bwmarrin/discordgo"
)

// LogSink posts forwarded log records to a webhook as code blocks.
type LogSink struct {
	hook    Webhook
	session *discordgo.Session
}

// NewLogSink creates a sink for the webhook at rawURL. httpClient may be nil.
func NewLogSink(rawURL string, httpClient *http.Client) (*LogSink, error) {
	hook, err := ParseWebhookURL(rawURL)
	if err != nil {
		return nil, err
	}
	s, err := discordgo.New("")
	if err != nil {
		return nil, err
	}
	if httpClient != nil {
		s.Client = httpClient
	}
	return &LogSink{hook: hook, session: s}, nil
}

// Forward posts text, truncated to fit a single message.
func (l *LogSink) Forward(ctx context.Context, text string) error {
	const fence = "```"
	body := strings.ReplaceAll(text, fence, "'''")
	body = truncate(body, messageLimit-2*len(fence)-2)
	_, err := l.session.WebhookExecute(l.hook.ID, l.hook.Token, false, &discordgo.WebhookParams{
		Content:         fence + "\n" + body + "\n" + fence,
		AllowedMentions: &discordgo.MessageAllowedMentions{Parse: []discordgo.AllowedMentionType{}},
	}, discordgo.WithContext(ctx))
	return err
}
