package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"testing"

	"github.com/MinnDevelopment/strumbot/testutil"
	"github.com/MinnDevelopment/strumbot/twitchapi"
)

func TestCheckTwitchDoesNotLogToken(t *testing.T) {
	const token = "app-token-5ecr3t"
	srv := testutil.NewMockTwitchServer(t)
	srv.MockOAuthTokenResponse(token, 3600)
	srv.Handle("/helix/users", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []map[string]string{{"id": "42", "login": "alice"}}})
	})

	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	helix := twitchapi.NewHelixClient("cid", "secret", 0, srv.HTTPClient())
	code, ok := checkTwitch(context.Background(), helix, []string{"alice", "bob"})
	if !ok || code != 0 {
		t.Fatalf("checkTwitch = (%d, %v), want (0, true)", code, ok)
	}

	out := buf.String()
	if !strings.Contains(out, "twitch app token acquired") {
		t.Errorf("missing token log line: %s", out)
	}
	if strings.Contains(out, "5ecr3t") {
		t.Errorf("log output leaks token material: %s", out)
	}
	if !strings.Contains(out, "channel=bob") {
		t.Errorf("expected warning for unknown login bob: %s", out)
	}
}
