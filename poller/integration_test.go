package poller

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MinnDevelopment/strumbot/notify"
	"github.com/MinnDevelopment/strumbot/testutil"
	"github.com/MinnDevelopment/strumbot/twitchapi"
	"github.com/MinnDevelopment/strumbot/watcher"
)

type recordingSink struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (s *recordingSink) Send(_ context.Context, n notify.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return nil
}

func (s *recordingSink) all() []notify.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]notify.Notification(nil), s.sent...)
}

// TestSessionEndToEnd drives a real Helix client against a mock Twitch and
// checks the notifications produced for one live session.
func TestSessionEndToEnd(t *testing.T) {
	srv := testutil.NewMockTwitchServer(t)
	srv.MockOAuthTokenResponse("app-token", 3600)

	var (
		mu     sync.Mutex
		online = true
		gameID = "509658"
	)
	srv.MockStreamsResponse(func() []map[string]any {
		mu.Lock()
		defer mu.Unlock()
		if !online {
			return []map[string]any{}
		}
		return []map[string]any{{
			"id": "s1", "user_id": "42", "user_login": "alice", "user_name": "Alice",
			"game_id": gameID, "type": "live", "title": "hello chat", "language": "en",
			"thumbnail_url": "https://static-cdn.jtvnw.net/previews-ttv/live_user_alice-{width}x{height}.jpg",
			"started_at":    "2024-10-15T18:00:00Z",
		}}
	})
	srv.MockGamesResponse(map[string]string{"509658": "Just Chatting", "33214": "Fortnite"})
	srv.MockVideosResponse([]map[string]string{{
		"id": "v1", "stream_id": "s1", "user_id": "42", "title": "hello chat", "created_at": "2024-10-15T18:00:02Z",
		"thumbnail_url": "https://static-cdn.jtvnw.net/cf_vods/v1/thumb-%{width}x%{height}.jpg",
	}})
	srv.MockImage("/previews-ttv/live_user_alice-1920x1080.jpg", []byte("live-jpeg"))
	srv.MockImage("/cf_vods/v1/thumb-1920x1080.jpg", []byte("vod-jpeg"))

	hc := twitchapi.NewHelixClient("cid", "secret", 0, srv.HTTPClient())
	clk := clockwork.NewFakeClockAt(time.Date(2024, 10, 15, 18, 5, 0, 0, time.UTC))
	sink := &recordingSink{}
	w := watcher.New(watcher.Config{Login: "Alice"}, hc, sink, watcher.WithClock(clk))
	p := New(hc, []Channel{w}, time.Minute, WithClock(clk))
	ctx := context.Background()

	require.NoError(t, p.Tick(ctx))
	sent := sink.all()
	require.Len(t, sent, 1)
	assert.Equal(t, notify.EventLive, sent[0].Event)
	assert.Equal(t, "Alice is live with **Just Chatting**!", sent[0].Content)
	require.NotNil(t, sent[0].Attachment)
	assert.Equal(t, []byte("live-jpeg"), sent[0].Attachment.Data)

	clk.Advance(time.Minute)
	mu.Lock()
	gameID = "33214"
	mu.Unlock()
	require.NoError(t, p.Tick(ctx))
	sent = sink.all()
	require.Len(t, sent, 2)
	assert.Equal(t, notify.EventUpdate, sent[1].Event)
	assert.Contains(t, sent[1].Embed.Description, "https://www.twitch.tv/videos/v1?t=00h06m00s")

	mu.Lock()
	online = false
	mu.Unlock()
	clk.Advance(time.Minute)
	require.NoError(t, p.Tick(ctx))
	clk.Advance(watcher.DefaultGracePeriod)
	require.NoError(t, p.Tick(ctx))

	sent = sink.all()
	require.Len(t, sent, 3)
	vod := sent[2]
	assert.Equal(t, notify.EventVOD, vod.Event)
	assert.Equal(t, "Alice was live for **0:07:00**", vod.Content)
	assert.Equal(t, "hello chat", vod.Embed.Title)
	require.NotNil(t, vod.Attachment)
	assert.Equal(t, []byte("vod-jpeg"), vod.Attachment.Data)
	lines := strings.Split(vod.Embed.Fields[0].Value, "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasSuffix(lines[0], "Just Chatting"))
	assert.True(t, strings.HasSuffix(lines[1], "Fortnite"))

	assert.False(t, w.Status().Live)
	assert.Equal(t, 1, srv.Hits("/oauth2/token"), "the app token is reused across ticks")
}
