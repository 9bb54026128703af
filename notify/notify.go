// Package notify defines the notification model handed from channel watchers
// to delivery sinks, plus sink decorators (fan-out, circuit breaker, journal).
package notify

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Event is a notification type.
type Event string

const (
	EventLive   Event = "live"
	EventUpdate Event = "update"
	EventVOD    Event = "vod"
)

// FieldValueLimit is the largest embed field value Discord accepts.
const FieldValueLimit = 1024

// Discord rejects embeds with more fields or more characters in total
// (title, description, author, footer, field names and values).
const (
	EmbedFieldLimit = 25
	EmbedTotalLimit = 6000
)

// ThumbnailName is the attachment file name embeds reference.
const ThumbnailName = "thumbnail.jpg"

// EventSet is the set of enabled event types.
type EventSet map[Event]struct{}

// AllEvents enables every event type.
func AllEvents() EventSet {
	return EventSet{EventLive: {}, EventUpdate: {}, EventVOD: {}}
}

// ParseEvents parses a comma separated list such as "live,vod".
func ParseEvents(s string) (EventSet, error) {
	set := EventSet{}
	for _, part := range strings.Split(s, ",") {
		e := Event(strings.ToLower(strings.TrimSpace(part)))
		switch e {
		case "":
			continue
		case EventLive, EventUpdate, EventVOD:
			set[e] = struct{}{}
		default:
			return nil, fmt.Errorf("unknown event type %q", part)
		}
	}
	return set, nil
}

// Has reports whether e is enabled.
func (s EventSet) Has(e Event) bool {
	_, ok := s[e]
	return ok
}

func (s EventSet) String() string {
	var out []string
	for _, e := range []Event{EventLive, EventUpdate, EventVOD} {
		if s.Has(e) {
			out = append(out, string(e))
		}
	}
	return strings.Join(out, ",")
}

// Notification is one composed message.
type Notification struct {
	Event   Event
	Channel string // twitch login
	// Content is the message text, including the role mention.
	Content string
	// Summary is a plain one-line rendering without mentions or markdown links,
	// used by text-only sinks.
	Summary    string
	Embed      Embed
	Attachment *Attachment
	// VideoID is the archived broadcast the notification refers to, if known.
	VideoID string
}

// Embed is a rich message block.
type Embed struct {
	Title       string
	URL         string
	Description string
	Author      Author
	Color       int
	// Image is either an https URL or "attachment://<name>".
	Image     string
	Timestamp time.Time
	Fields    []Field
	Footer    string
}

type Author struct {
	Name    string
	URL     string
	IconURL string
}

type Field struct {
	Name   string
	Value  string
	Inline bool
}

type Attachment struct {
	Name        string
	ContentType string
	Data        []byte
}

// Sink delivers notifications.
type Sink interface {
	Send(ctx context.Context, n Notification) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n Notification) error

func (f SinkFunc) Send(ctx context.Context, n Notification) error { return f(ctx, n) }
