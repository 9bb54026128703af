package twitchapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/MinnDevelopment/strumbot/cache"
	"github.com/MinnDevelopment/strumbot/telemetry"
)

const (
	helixBaseURL = "https://api.twitch.tv/helix"
	// attempts per request for transport errors, 5xx and 429
	helixMaxRetries = 3
	// wait applied to a 429 without a usable Ratelimit-Reset header
	rateLimitFallback = time.Second
	gameCacheSize     = 10
)

// HelixClient is the typed facade over the Helix endpoints strumbot needs.
// The zero value plus AppTokenSource and ClientID is usable.
type HelixClient struct {
	AppTokenSource *TokenSource
	ClientID       string
	HTTPClient     *http.Client
	// Limiter throttles outbound Helix requests; nil disables throttling.
	Limiter *rate.Limiter

	initOnce  sync.Once
	games     *cache.Bounded[string, Game]
	gameCalls singleflight.Group
	now       func() time.Time
}

// NewHelixClient builds a client limited to rps Helix requests per second.
func NewHelixClient(clientID, clientSecret string, rps float64, httpClient *http.Client) *HelixClient {
	var lim *rate.Limiter
	if rps > 0 {
		lim = rate.NewLimiter(rate.Limit(rps), int(math.Max(1, rps)))
	}
	return &HelixClient{
		AppTokenSource: &TokenSource{ClientID: clientID, ClientSecret: clientSecret, HTTPClient: httpClient},
		ClientID:       clientID,
		HTTPClient:     httpClient,
		Limiter:        lim,
	}
}

func (hc *HelixClient) init() {
	hc.initOnce.Do(func() {
		hc.games = cache.New[string, Game](gameCacheSize)
		if hc.now == nil {
			hc.now = time.Now
		}
	})
}

func (hc *HelixClient) http() *http.Client {
	if hc.HTTPClient != nil {
		return hc.HTTPClient
	}
	return http.DefaultClient
}

func newRetryBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	return b
}

// get performs an authorized GET on a Helix endpoint and decodes the JSON body
// into out. A 401 invalidates the token and replays the request exactly once.
func (hc *HelixClient) get(ctx context.Context, endpoint string, q url.Values, out any) error {
	ctx, span := telemetry.StartSpan(ctx, telemetry.TracerHelix, "helix "+endpoint, telemetry.EndpointAttr(endpoint))
	defer span.End()

	err := hc.getAuthorized(ctx, endpoint, q, out)
	if err != nil && !errors.Is(err, ErrNotFound) {
		telemetry.RecordError(span, err)
		return err
	}
	telemetry.SetSpanSuccess(span)
	return err
}

func (hc *HelixClient) getAuthorized(ctx context.Context, endpoint string, q url.Values, out any) error {
	if hc.AppTokenSource == nil {
		return &AuthError{Err: errors.New("no app token source configured")}
	}
	tok, err := hc.AppTokenSource.Get(ctx)
	if err != nil {
		return err
	}
	err = hc.getWithRetry(ctx, endpoint, q, tok, out)
	if !errors.Is(err, errUnauthorized) {
		return err
	}

	slog.Info("helix rejected app token, refreshing", slog.String("endpoint", endpoint))
	hc.AppTokenSource.Invalidate(tok)
	tok, err = hc.AppTokenSource.Get(ctx)
	if err != nil {
		return err
	}
	err = hc.getWithRetry(ctx, endpoint, q, tok, out)
	if errors.Is(err, errUnauthorized) {
		return &AuthError{StatusCode: http.StatusUnauthorized, Err: fmt.Errorf("helix %s rejected a freshly issued token", endpoint)}
	}
	return err
}

func (hc *HelixClient) getWithRetry(ctx context.Context, endpoint string, q url.Values, tok string, out any) error {
	var lastStatus int
	op := func() (struct{}, error) {
		status, err := hc.attempt(ctx, endpoint, q, tok, out)
		lastStatus = status
		return struct{}{}, err
	}
	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(newRetryBackOff()),
		backoff.WithMaxTries(helixMaxRetries),
		backoff.WithNotify(func(err error, wait time.Duration) {
			slog.Debug("retrying helix request", slog.String("endpoint", endpoint), slog.Duration("wait", wait), slog.Any("err", err))
		}),
	)
	var ra *backoff.RetryAfterError
	if errors.As(err, &ra) {
		// retries exhausted on 429
		return &APIError{Endpoint: endpoint, StatusCode: lastStatus, Message: "rate limited"}
	}
	return err
}

// attempt issues one request. Errors wrapped in backoff.Permanent stop the retry loop.
func (hc *HelixClient) attempt(ctx context.Context, endpoint string, q url.Values, tok string, out any) (int, error) {
	if hc.Limiter != nil {
		if err := hc.Limiter.Wait(ctx); err != nil {
			return 0, backoff.Permanent(err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, helixBaseURL+endpoint, nil)
	if err != nil {
		return 0, backoff.Permanent(err)
	}
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Client-Id", hc.ClientID)
	req.Header.Set("Authorization", "Bearer "+tok)

	resp, err := hc.http().Do(req)
	if err != nil {
		telemetry.CountHelixRequest(endpoint, 0)
		if ctx.Err() != nil {
			return 0, backoff.Permanent(ctx.Err())
		}
		return 0, fmt.Errorf("helix %s: %w", endpoint, err)
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			slog.Warn("failed to close response body", slog.Any("err", err))
		}
	}()
	telemetry.CountHelixRequest(endpoint, resp.StatusCode)

	switch code := resp.StatusCode; {
	case code == http.StatusUnauthorized:
		return code, backoff.Permanent(errUnauthorized)
	case code == http.StatusTooManyRequests:
		return code, backoff.RetryAfter(rateLimitWait(resp.Header))
	case code == http.StatusNotFound:
		return code, backoff.Permanent(ErrNotFound)
	case code >= 500:
		return code, &APIError{Endpoint: endpoint, StatusCode: code, Message: readMessage(resp.Body)}
	case code < 200 || code > 299:
		return code, backoff.Permanent(&APIError{Endpoint: endpoint, StatusCode: code, Message: readMessage(resp.Body)})
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, backoff.Permanent(fmt.Errorf("decode helix %s: %w", endpoint, err))
		}
	}
	return resp.StatusCode, nil
}

// rateLimitWait returns whole seconds until the Ratelimit-Reset epoch.
func rateLimitWait(h http.Header) int {
	reset, err := strconv.ParseInt(h.Get("Ratelimit-Reset"), 10, 64)
	if err != nil || reset <= 0 {
		return int(rateLimitFallback / time.Second)
	}
	secs := int(math.Ceil(time.Until(time.Unix(reset, 0)).Seconds()))
	if secs < 0 {
		return 0
	}
	return secs
}

func readMessage(r io.Reader) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	b, _ := io.ReadAll(io.LimitReader(r, 4<<10))
	if json.Unmarshal(b, &body) == nil {
		if body.Message != "" {
			return body.Message
		}
		return body.Error
	}
	return string(b)
}
