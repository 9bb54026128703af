package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// MockTwitchServer creates a test server that mocks the Twitch token endpoint,
// Helix API responses and the thumbnail CDN, all keyed by request path.
type MockTwitchServer struct {
	*httptest.Server

	mu       sync.Mutex
	handlers map[string]http.HandlerFunc
	hits     map[string]int
}

// NewMockTwitchServer creates a new mock Twitch API server
func NewMockTwitchServer(t *testing.T) *MockTwitchServer {
	t.Helper()
	m := &MockTwitchServer{
		handlers: make(map[string]http.HandlerFunc),
		hits:     make(map[string]int),
	}
	m.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		m.mu.Lock()
		m.hits[r.URL.Path]++
		handler, ok := m.handlers[r.URL.Path]
		m.mu.Unlock()
		if ok {
			handler(w, r)
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(m.Close)
	return m
}

// Handle registers h for path, replacing any previous handler.
func (m *MockTwitchServer) Handle(path string, h http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = h
}

// Hits returns how many requests were made for path.
func (m *MockTwitchServer) Hits(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.hits[path]
}

// HTTPClient returns a client that sends every request, whatever its host, to the mock server.
func (m *MockTwitchServer) HTTPClient() *http.Client {
	return &http.Client{Transport: &RewriteTransport{Transport: http.DefaultTransport, Host: m.URL}}
}

// RewriteTransport rewrites all requests to use the test server
type RewriteTransport struct {
	Transport http.RoundTripper
	Host      string
}

func (t *RewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = "http"
	req.URL.Host = strings.TrimPrefix(strings.TrimPrefix(t.Host, "http://"), "https://")
	return t.Transport.RoundTrip(req)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // test mock response
}

// MockOAuthTokenResponse adds a handler for OAuth token endpoint
func (m *MockTwitchServer) MockOAuthTokenResponse(accessToken string, expiresIn int) {
	m.Handle("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"access_token": accessToken,
			"expires_in":   expiresIn,
			"token_type":   "bearer",
		})
	})
}

// MockStreamsResponse adds a handler for /helix/streams. fn is called per
// request so tests can change the live set between polls.
func (m *MockTwitchServer) MockStreamsResponse(fn func() []map[string]any) {
	m.Handle("/helix/streams", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"data": fn()})
	})
}

// MockGamesResponse adds a handler for /helix/games resolving ids from names.
func (m *MockTwitchServer) MockGamesResponse(names map[string]string) {
	m.Handle("/helix/games", func(w http.ResponseWriter, r *http.Request) {
		id := r.URL.Query().Get("id")
		data := []map[string]string{}
		if name, ok := names[id]; ok {
			data = append(data, map[string]string{"id": id, "name": name, "box_art_url": ""})
		}
		writeJSON(w, map[string]any{"data": data})
	})
}

// MockVideosResponse adds a handler for /helix/videos. Lookups by user_id
// return up to first videos in the given (newest first) order; lookups by id
// return the matching one.
func (m *MockTwitchServer) MockVideosResponse(videos []map[string]string) {
	m.Handle("/helix/videos", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		first, err := strconv.Atoi(q.Get("first"))
		if err != nil || first <= 0 {
			first = 20
		}
		data := []map[string]string{}
		for _, v := range videos {
			if id := q.Get("id"); id != "" && v["id"] != id {
				continue
			}
			if q.Get("user_id") != "" && len(data) == first {
				break
			}
			data = append(data, v)
		}
		writeJSON(w, map[string]any{"data": data, "pagination": map[string]string{}})
	})
}

// MockClipsResponse adds a handler for /helix/clips.
func (m *MockTwitchServer) MockClipsResponse(clips []map[string]any) {
	m.Handle("/helix/clips", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"data": clips})
	})
}

// MockImage serves body as a JPEG at path.
func (m *MockTwitchServer) MockImage(path string, body []byte) {
	m.Handle(path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(body)
	})
}
