package notify_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/AdguardTeam/golibs/logutil/slogutil"
	"github.com/AdguardTeam/golibs/testutil"
	"github.com/roach88/blocksync/internal/category"
	"github.com/roach88/blocksync/internal/engine"
	"github.com/roach88/blocksync/internal/notify"
	"github.com/roach88/blocksync/internal/state"
	"github.com/roach88/blocksync/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"
)

// testTimeout is the common timeout for tests.
const testTimeout = 2 * time.Second

func newStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "blocksync.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

// recorder is an [notify.Enqueuer] that records events.
type recorder struct {
	mu     sync.Mutex
	events []engine.Event
	got    chan struct{}
}

func newRecorder() *recorder {
	return &recorder{got: make(chan struct{}, 64)}
}

func (r *recorder) Enqueue(ev engine.Event) bool {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()

	r.got <- struct{}{}

	return true
}

func (r *recorder) wait(t *testing.T, n int) []engine.Event {
	t.Helper()

	for i := 0; i < n; i++ {
		select {
		case <-r.got:
		case <-time.After(testTimeout):
			t.Fatalf("got %d of %d events", i, n)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]engine.Event(nil), r.events...)
}

// readySubscriber closes ready once the subscription is in place.
type readySubscriber struct {
	notify.Subscriber
	ready chan struct{}
}

func (s *readySubscriber) Subscribe(ctx context.Context) (<-chan notify.Notification, error) {
	ch, err := s.Subscriber.Subscribe(ctx)
	close(s.ready)

	return ch, err
}

func receive(t *testing.T, ch <-chan notify.Notification) notify.Notification {
	t.Helper()

	select {
	case n, ok := <-ch:
		require.True(t, ok)

		return n
	case <-time.After(testTimeout):
		t.Fatal("no notification")
	}

	return notify.Notification{}
}

func TestParseName(t *testing.T) {
	t.Parallel()

	for _, n := range notify.Names() {
		got, err := notify.ParseName(string(n))
		require.NoError(t, err)
		assert.Equal(t, n, got)
	}

	_, err := notify.ParseName("Pause")
	assert.Error(t, err)
}

func TestMemoryBus(t *testing.T) {
	t.Parallel()

	b := notify.NewMemoryBus()
	ctx := testutil.ContextWithTimeout(t, testTimeout)

	sub1, err := b.Subscribe(ctx)
	require.NoError(t, err)
	sub2, err := b.Subscribe(ctx)
	require.NoError(t, err)

	n := notify.Notification{Name: notify.NamePause, Peer: notify.DefaultPeer}
	require.NoError(t, b.Post(ctx, n))

	assert.Equal(t, n, receive(t, sub1))
	assert.Equal(t, n, receive(t, sub2))

	require.NoError(t, b.Close())

	_, ok := <-sub1
	assert.False(t, ok)
	assert.ErrorIs(t, b.Post(ctx, n), notify.ErrClosed)

	_, err = b.Subscribe(ctx)
	assert.ErrorIs(t, err, notify.ErrClosed)
}

func TestMemoryBus_unsubscribeOnCancel(t *testing.T) {
	t.Parallel()

	b := notify.NewMemoryBus()
	t.Cleanup(func() { _ = b.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	ch, err := b.Subscribe(ctx)
	require.NoError(t, err)

	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(testTimeout):
		t.Fatal("subscription not closed")
	}

	postCtx := testutil.ContextWithTimeout(t, testTimeout)
	assert.NoError(t, b.Post(postCtx, notify.Notification{Name: notify.NameResume}))
}

func TestSocketBus(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "bus.sock")
	l := slogutil.NewDiscardLogger()

	server := notify.NewSocketBus(l, path)
	t.Cleanup(func() { _ = server.Close() })

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	ch, err := server.Subscribe(ctx)
	require.NoError(t, err)

	_, err = server.Subscribe(ctx)
	assert.Error(t, err)

	client := notify.NewSocketBus(l, path)
	want := []notify.Notification{
		{Name: notify.NameTrustDomain, Peer: notify.DefaultPeer},
		{Name: notify.NameActiveDomainChanged, Peer: notify.DefaultPeer},
	}
	for _, n := range want {
		require.NoError(t, client.Post(ctx, n))
		assert.Equal(t, n, receive(t, ch))
	}

	require.NoError(t, server.Close())

	_, err = os.Stat(path)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestSocketBus_noListener(t *testing.T) {
	t.Parallel()

	b := notify.NewSocketBus(slogutil.NewDiscardLogger(), filepath.Join(t.TempDir(), "none.sock"))
	ctx := testutil.ContextWithTimeout(t, testTimeout)

	assert.Error(t, b.Post(ctx, notify.Notification{Name: notify.NamePause}))
}

func TestRedisBus(t *testing.T) {
	url := os.Getenv("BLOCKSYNC_TEST_REDIS_URL")
	if url == "" {
		t.Skip("BLOCKSYNC_TEST_REDIS_URL is not set")
	}

	b := notify.NewRedisBus(&notify.RedisConfig{
		Logger:  slogutil.NewDiscardLogger(),
		URL:     url,
		Channel: "blocksync:test:" + t.Name(),
		MaxIdle: 2,
	})
	t.Cleanup(func() { _ = b.Close() })

	ctx := testutil.ContextWithTimeout(t, testTimeout)
	ch, err := b.Subscribe(ctx)
	require.NoError(t, err)

	n := notify.Notification{Name: notify.NameSwitchToCustom, Peer: notify.DefaultPeer}
	require.NoError(t, b.Post(ctx, n))
	assert.Equal(t, n, receive(t, ch))
}

func TestSenderAdapter(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	bus := notify.NewMemoryBus()
	t.Cleanup(func() { _ = bus.Close() })

	rec := newRecorder()
	sub := &readySubscriber{Subscriber: bus, ready: make(chan struct{})}
	a := notify.NewAdapter(&notify.AdapterConfig{
		Logger:     slogutil.NewDiscardLogger(),
		Subscriber: sub,
		Scratch:    s,
		Target:     rec,
		Limiter:    rate.NewLimiter(rate.Inf, 1),
	})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	go func() { _ = a.Run(ctx) }()

	select {
	case <-sub.ready:
	case <-time.After(testTimeout):
		t.Fatal("adapter did not subscribe")
	}

	snd := notify.NewSender(bus, s, "")
	postCtx := testutil.ContextWithTimeout(t, testTimeout)

	// The sender is synchronous, so each payload is read before the next one
	// overwrites the shared key.
	require.NoError(t, snd.Send(postCtx, notify.NameTrustDomain, "Example.COM."))
	rec.wait(t, 1)
	require.NoError(t, snd.Send(postCtx, notify.NameActiveDomainChanged, "https://bücher.example/path"))
	rec.wait(t, 1)
	require.NoError(t, snd.Send(postCtx, notify.NameSetCategories, "social", "comments", "social"))
	rec.wait(t, 1)
	require.NoError(t, snd.Send(postCtx, notify.NamePause))
	events := rec.wait(t, 1)

	require.Len(t, events, 4)
	assert.Equal(t, engine.TrustDomain("example.com"), events[0])
	assert.Equal(t, engine.ActiveDomainChanged("xn--bcher-kva.example"), events[1])
	assert.Equal(t, engine.SetCategories([]category.ID{category.Social, category.Comments}), events[2])
	assert.Equal(t, engine.Pause(), events[3])
}

func TestSender_badArgs(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	snd := notify.NewSender(notify.NewMemoryBus(), s, "")
	ctx := testutil.ContextWithTimeout(t, testTimeout)

	assert.Error(t, snd.Send(ctx, notify.NameTrustDomain))
	assert.Error(t, snd.Send(ctx, notify.NameSetCategories, "nope"))
	assert.Error(t, snd.Send(ctx, notify.NamePause, "extra"))
}

func TestAdapter_Translate(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	a := notify.NewAdapter(&notify.AdapterConfig{
		Logger:  slogutil.NewDiscardLogger(),
		Scratch: s,
		Peer:    "test.peer",
	})
	ctx := testutil.ContextWithTimeout(t, testTimeout)

	t.Run("foreign_peer", func(t *testing.T) {
		_, ok, err := a.Translate(ctx, notify.Notification{Name: notify.NamePause, Peer: "other"})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("missing_domain", func(t *testing.T) {
		_, _, err := a.Translate(ctx, notify.Notification{Name: notify.NameUntrustDomain, Peer: "test.peer"})
		assert.Error(t, err)
	})

	t.Run("no_active_domain", func(t *testing.T) {
		ev, ok, err := a.Translate(ctx, notify.Notification{
			Name: notify.NameActiveDomainChanged,
			Peer: "test.peer",
		})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, engine.ActiveDomainChanged(""), ev)
	})

	t.Run("untrust", func(t *testing.T) {
		require.NoError(t, s.PutShared(ctx, notify.KeyDomain, "example.org"))

		ev, ok, err := a.Translate(ctx, notify.Notification{Name: notify.NameUntrustDomain, Peer: "test.peer"})
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, engine.UntrustDomain("example.org"), ev)
	})

	t.Run("reload", func(t *testing.T) {
		_, ok, err := a.Translate(ctx, notify.Notification{Name: notify.NameReload, Peer: "test.peer"})
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unknown", func(t *testing.T) {
		_, _, err := a.Translate(ctx, notify.Notification{Name: "bogus", Peer: "test.peer"})
		assert.Error(t, err)
	})
}

func TestMirror(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := testutil.ContextWithTimeout(t, testTimeout)

	_, ok, err := notify.MirroredIsDefault(ctx, s)
	require.NoError(t, err)
	assert.False(t, ok)

	// No record yet: the default mode is reported.
	assert.True(t, notify.IsDefaultConfigEnabled(ctx, s))

	require.NoError(t, s.CreateConfigIfAbsent(ctx))
	require.NoError(t, s.SetMode(ctx, state.ModeCustom))

	m := notify.ScratchMirror{Scratch: s}
	require.NoError(t, m.SetDefaultMirror(ctx, true))

	// The mirror is stale, the record wins.
	v, ok, err := notify.MirroredIsDefault(ctx, s)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, v)
	assert.False(t, notify.IsDefaultConfigEnabled(ctx, s))
}
