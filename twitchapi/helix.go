// Package twitchapi contains the Helix facade used to poll stream state and to
// enrich notifications (games, archived broadcasts, clips, thumbnails), built
// on an app access token.
package twitchapi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// helixPageSize is the most logins Helix accepts in one query.
const helixPageSize = 100

const maxThumbnailBytes = 8 << 20

// archiveProbeSize is how many recent archives are searched for the running stream.
const archiveProbeSize = 5

// Stream is one live stream as returned by /helix/streams.
type Stream struct {
	ID           string    `json:"id"`
	UserID       string    `json:"user_id"`
	UserLogin    string    `json:"user_login"`
	UserName     string    `json:"user_name"`
	GameID       string    `json:"game_id"`
	GameName     string    `json:"game_name"`
	Type         string    `json:"type"`
	Title        string    `json:"title"`
	Language     string    `json:"language"`
	ThumbnailURL string    `json:"thumbnail_url"`
	StartedAt    time.Time `json:"started_at"`
}

// Game is a Helix category.
type Game struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	BoxArtURL string `json:"box_art_url"`
}

// NoCategory is returned for an empty game id without asking Helix.
var NoCategory = Game{ID: "", Name: "No Category"}

// Video is an archived broadcast or upload.
type Video struct {
	ID           string    `json:"id"`
	StreamID     string    `json:"stream_id"`
	UserID       string    `json:"user_id"`
	Title        string    `json:"title"`
	URL          string    `json:"url"`
	ThumbnailURL string    `json:"thumbnail_url"`
	Duration     string    `json:"duration"`
	CreatedAt    time.Time `json:"created_at"`
}

// Clip is a Helix clip; Helix orders them by view count.
type Clip struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	ViewCount int       `json:"view_count"`
	CreatedAt time.Time `json:"created_at"`
}

// User is the subset of /helix/users strumbot reads.
type User struct {
	ID              string `json:"id"`
	Login           string `json:"login"`
	DisplayName     string `json:"display_name"`
	ProfileImageURL string `json:"profile_image_url"`
}

// GetStreams returns the live streams among logins. Offline channels are simply
// missing from the result; an empty slice means every channel is offline.
func (hc *HelixClient) GetStreams(ctx context.Context, logins []string) ([]Stream, error) {
	var out []Stream
	for start := 0; start < len(logins); start += helixPageSize {
		end := min(start+helixPageSize, len(logins))
		q := url.Values{}
		for _, l := range logins[start:end] {
			q.Add("user_login", l)
		}
		q.Set("type", "live")
		q.Set("first", strconv.Itoa(helixPageSize))
		var body struct {
			Data []Stream `json:"data"`
		}
		// a 404 here is a failed fetch, not an empty live set
		if err := hc.get(ctx, "/streams", q, &body); err != nil {
			return nil, fmt.Errorf("get streams: %w", err)
		}
		out = append(out, body.Data...)
	}
	return out, nil
}

// GetUsers resolves logins to users. Unknown logins are missing from the result.
func (hc *HelixClient) GetUsers(ctx context.Context, logins []string) ([]User, error) {
	var out []User
	for start := 0; start < len(logins); start += helixPageSize {
		end := min(start+helixPageSize, len(logins))
		q := url.Values{}
		for _, l := range logins[start:end] {
			q.Add("login", l)
		}
		var body struct {
			Data []User `json:"data"`
		}
		if err := hc.get(ctx, "/users", q, &body); err != nil {
			if IsNotFound(err) {
				continue
			}
			return nil, fmt.Errorf("get users: %w", err)
		}
		out = append(out, body.Data...)
	}
	return out, nil
}

// GetGame returns the category for id, served from a small cache when possible.
// Concurrent lookups of the same id share one request.
func (hc *HelixClient) GetGame(ctx context.Context, id string) (Game, error) {
	if id == "" {
		return NoCategory, nil
	}
	hc.init()
	if g, ok := hc.games.Get(id); ok {
		return g, nil
	}
	v, err, _ := hc.gameCalls.Do(id, func() (any, error) {
		var body struct {
			Data []Game `json:"data"`
		}
		if err := hc.get(ctx, "/games", url.Values{"id": {id}}, &body); err != nil {
			return Game{}, err
		}
		if len(body.Data) == 0 {
			return Game{}, ErrNotFound
		}
		g := body.Data[0]
		hc.games.Put(id, g)
		return g, nil
	})
	if err != nil {
		return Game{}, fmt.Errorf("get game %s: %w", id, err)
	}
	return v.(Game), nil
}

// GetBroadcastID returns the id of the archive recording the stream streamID
// of userID. An archive belongs to the stream when its stream_id matches or it
// was created at or after startedAt, which covers a restart inside one session.
// Until Twitch has indexed the running stream only older archives exist, and
// the result is ErrNotFound rather than a previous session's video.
func (hc *HelixClient) GetBroadcastID(ctx context.Context, userID, streamID string, startedAt time.Time) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("userID empty")
	}
	q := url.Values{"user_id": {userID}, "type": {"archive"}, "first": {strconv.Itoa(archiveProbeSize)}}
	var body struct {
		Data []Video `json:"data"`
	}
	if err := hc.get(ctx, "/videos", q, &body); err != nil {
		return "", fmt.Errorf("broadcast for %s: %w", userID, err)
	}
	for _, v := range body.Data {
		if streamID != "" && v.StreamID == streamID {
			return v.ID, nil
		}
		if !startedAt.IsZero() && !v.CreatedAt.IsZero() && !v.CreatedAt.Before(startedAt) {
			return v.ID, nil
		}
	}
	return "", fmt.Errorf("broadcast for %s stream %s: %w", userID, streamID, ErrNotFound)
}

// GetVideo looks up a single video. Deleted videos yield ErrNotFound.
func (hc *HelixClient) GetVideo(ctx context.Context, id string) (Video, error) {
	if id == "" {
		return Video{}, ErrNotFound
	}
	var body struct {
		Data []Video `json:"data"`
	}
	if err := hc.get(ctx, "/videos", url.Values{"id": {id}}, &body); err != nil {
		return Video{}, fmt.Errorf("get video %s: %w", id, err)
	}
	if len(body.Data) == 0 {
		return Video{}, fmt.Errorf("get video %s: %w", id, ErrNotFound)
	}
	return body.Data[0], nil
}

// GetTopClips returns up to limit (at most 5) clips of broadcasterID created
// since the given time, most viewed first.
func (hc *HelixClient) GetTopClips(ctx context.Context, broadcasterID string, since time.Time, limit int) ([]Clip, error) {
	if limit <= 0 {
		return nil, nil
	}
	limit = min(limit, 5)
	q := url.Values{
		"broadcaster_id": {broadcasterID},
		"started_at":     {since.UTC().Format(time.RFC3339)},
		"first":          {strconv.Itoa(limit)},
	}
	var body struct {
		Data []Clip `json:"data"`
	}
	if err := hc.get(ctx, "/clips", q, &body); err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("top clips for %s: %w", broadcasterID, err)
	}
	if len(body.Data) > limit {
		body.Data = body.Data[:limit]
	}
	return body.Data, nil
}

// ThumbnailURL fills both placeholder styles ({width} and %{width}) of a Twitch
// image template and appends a cache-busting t parameter.
func (hc *HelixClient) ThumbnailURL(template string, width, height int) string {
	hc.init()
	w, h := strconv.Itoa(width), strconv.Itoa(height)
	raw := strings.NewReplacer(
		"%{width}", w, "%{height}", h,
		"{width}", w, "{height}", h,
	).Replace(template)
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	q.Set("t", strconv.FormatInt(hc.now().Unix(), 10))
	u.RawQuery = q.Encode()
	return u.String()
}

// GetThumbnail downloads the image behind a thumbnail template. The CDN needs no
// authorization; transport errors and 5xx are retried.
func (hc *HelixClient) GetThumbnail(ctx context.Context, template string, width, height int) ([]byte, error) {
	if template == "" {
		return nil, ErrNotFound
	}
	target := hc.ThumbnailURL(template, width, height)
	op := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		resp, err := hc.http().Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(ctx.Err())
			}
			return nil, err
		}
		defer func() {
			if err := resp.Body.Close(); err != nil {
				slog.Warn("failed to close response body", slog.Any("err", err))
			}
		}()
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, backoff.Permanent(ErrNotFound)
		case resp.StatusCode >= 500:
			return nil, &APIError{Endpoint: "thumbnail", StatusCode: resp.StatusCode}
		case resp.StatusCode != http.StatusOK:
			return nil, backoff.Permanent(&APIError{Endpoint: "thumbnail", StatusCode: resp.StatusCode})
		}
		return io.ReadAll(io.LimitReader(resp.Body, maxThumbnailBytes))
	}
	b, err := backoff.Retry(ctx, op, backoff.WithBackOff(newRetryBackOff()), backoff.WithMaxTries(helixMaxRetries))
	if err != nil {
		return nil, fmt.Errorf("get thumbnail: %w", err)
	}
	return b, nil
}
