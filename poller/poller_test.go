package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MinnDevelopment/strumbot/twitchapi"
	"github.com/MinnDevelopment/strumbot/watcher"
)

type fakeFetcher struct {
	mu     sync.Mutex
	calls  int
	logins []string
	fn     func(call int) ([]twitchapi.Stream, error)
}

func (f *fakeFetcher) GetStreams(_ context.Context, logins []string) ([]twitchapi.Stream, error) {
	f.mu.Lock()
	f.calls++
	call := f.calls
	f.logins = logins
	f.mu.Unlock()
	return f.fn(call)
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeChannel struct {
	login  string
	mu     sync.Mutex
	seen   []*twitchapi.Stream
	live   bool
	handle func(s *twitchapi.Stream)
}

func (c *fakeChannel) Login() string { return c.login }

func (c *fakeChannel) Handle(_ context.Context, s *twitchapi.Stream) error {
	if c.handle != nil {
		c.handle(s)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seen = append(c.seen, s)
	c.live = s != nil
	return nil
}

func (c *fakeChannel) Status() watcher.Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return watcher.Status{Login: c.login, Live: c.live}
}

func (c *fakeChannel) snapshots() []*twitchapi.Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*twitchapi.Stream(nil), c.seen...)
}

func live(logins ...string) func(int) ([]twitchapi.Stream, error) {
	return func(int) ([]twitchapi.Stream, error) {
		out := make([]twitchapi.Stream, 0, len(logins))
		for _, l := range logins {
			out = append(out, twitchapi.Stream{UserLogin: l, GameID: "G1"})
		}
		return out, nil
	}
}

func TestTick_DispatchesByLogin(t *testing.T) {
	alice, bob := &fakeChannel{login: "alice"}, &fakeChannel{login: "Bob"}
	f := &fakeFetcher{fn: live("Alice")}
	clk := clockwork.NewFakeClock()
	p := New(f, []Channel{alice, bob}, time.Minute, WithClock(clk))

	require.NoError(t, p.Tick(context.Background()))

	assert.Equal(t, []string{"alice", "bob"}, f.logins)
	require.Len(t, alice.snapshots(), 1)
	assert.Equal(t, "Alice", alice.snapshots()[0].UserLogin)
	assert.Equal(t, []*twitchapi.Stream{nil}, bob.snapshots(), "absent channels receive a nil snapshot")
	assert.Equal(t, clk.Now(), p.LastSuccess())

	statuses := p.Statuses()
	require.Len(t, statuses, 2)
	assert.True(t, statuses[0].Live)
	assert.False(t, statuses[1].Live)
}

func TestTick_FetchErrorSkipsTick(t *testing.T) {
	ch := &fakeChannel{login: "alice"}
	f := &fakeFetcher{fn: func(int) ([]twitchapi.Stream, error) {
		return nil, &twitchapi.APIError{Endpoint: "streams", StatusCode: 503}
	}}
	p := New(f, []Channel{ch}, time.Minute, WithClock(clockwork.NewFakeClock()))

	err := p.Tick(context.Background())
	require.Error(t, err)
	assert.False(t, twitchapi.IsFatal(err))
	assert.Empty(t, ch.snapshots(), "a failed fetch must not look like offline")
	assert.True(t, p.LastSuccess().IsZero())
}

func TestTick_RecoversWatcherPanic(t *testing.T) {
	bad := &fakeChannel{login: "bad", handle: func(*twitchapi.Stream) { panic("boom") }}
	good := &fakeChannel{login: "good"}
	p := New(&fakeFetcher{fn: live("bad", "good")}, []Channel{bad, good}, time.Minute, WithClock(clockwork.NewFakeClock()))

	require.NoError(t, p.Tick(context.Background()))
	assert.Len(t, good.snapshots(), 1)
	assert.Empty(t, bad.snapshots())
}

func TestTick_ChannelsRunConcurrently(t *testing.T) {
	arrived := make(chan struct{}, 2)
	release := make(chan struct{})
	block := func(*twitchapi.Stream) {
		arrived <- struct{}{}
		<-release
	}
	a := &fakeChannel{login: "a", handle: block}
	b := &fakeChannel{login: "b", handle: block}
	p := New(&fakeFetcher{fn: live("a")}, []Channel{a, b}, time.Minute, WithClock(clockwork.NewFakeClock()))

	done := make(chan error, 1)
	go func() { done <- p.Tick(context.Background()) }()

	for i := 0; i < 2; i++ {
		select {
		case <-arrived:
		case <-time.After(2 * time.Second):
			t.Fatal("watchers were not run concurrently")
		}
	}
	close(release)
	require.NoError(t, <-done)
}

func TestRun_FatalErrorStops(t *testing.T) {
	denied := &twitchapi.AuthError{StatusCode: 403, Err: errors.New("invalid client secret")}
	f := &fakeFetcher{fn: func(int) ([]twitchapi.Stream, error) { return nil, denied }}
	p := New(f, []Channel{&fakeChannel{login: "alice"}}, time.Minute, WithClock(clockwork.NewFakeClock()))

	err := p.Run(context.Background())
	var ae *twitchapi.AuthError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, 403, ae.StatusCode)
	assert.Equal(t, 1, f.callCount())
}

func TestRun_TransientErrorContinues(t *testing.T) {
	ch := &fakeChannel{login: "alice"}
	f := &fakeFetcher{fn: func(call int) ([]twitchapi.Stream, error) {
		if call == 1 {
			return nil, errors.New("connection reset")
		}
		return []twitchapi.Stream{{UserLogin: "alice"}}, nil
	}}
	clk := clockwork.NewFakeClock()
	p := New(f, []Channel{ch}, 30*time.Second, WithClock(clk))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.NoError(t, clk.BlockUntilContext(ctx, 1))
	assert.Equal(t, 1, f.callCount(), "first tick runs immediately")
	assert.Empty(t, ch.snapshots())

	clk.Advance(30 * time.Second)
	require.NoError(t, clk.BlockUntilContext(ctx, 1))
	assert.Equal(t, 2, f.callCount())
	assert.Len(t, ch.snapshots(), 1)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_WaitsFullIntervalBetweenTicks(t *testing.T) {
	f := &fakeFetcher{fn: live()}
	clk := clockwork.NewFakeClock()
	p := New(f, []Channel{&fakeChannel{login: "alice"}}, time.Minute, WithClock(clk))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = p.Run(ctx) }()

	require.NoError(t, clk.BlockUntilContext(ctx, 1))
	clk.Advance(59 * time.Second)
	assert.Equal(t, 1, f.callCount())
	clk.Advance(time.Second)
	require.Eventually(t, func() bool { return f.callCount() == 2 }, 2*time.Second, 10*time.Millisecond)
}

func TestNew_DefaultInterval(t *testing.T) {
	p := New(&fakeFetcher{fn: live()}, nil, 0)
	assert.Equal(t, DefaultInterval, p.Interval())
}
