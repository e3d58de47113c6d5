package repository

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netbirdio/peerctl/shared/management/client/rest"
	"github.com/netbirdio/peerctl/shared/management/events"
	"github.com/netbirdio/peerctl/shared/management/http/testing/mockserver"
	"github.com/netbirdio/peerctl/shared/management/peers"
	"github.com/netbirdio/peerctl/shared/management/status"
	"github.com/netbirdio/peerctl/shared/metrics"
	"github.com/netbirdio/peerctl/shared/wgconfig"
)

const (
	testPassword = "hunter2"
	listRoute    = "/peer-collection"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testEnv struct {
	repo     *Repository
	server   *mockserver.Server
	sessions *rest.SessionManager
	notifier *events.Notifier
	clock    *fakeClock
}

// recorded collects the events of one kind
func (e *testEnv) recorded(kind events.Kind) *[]events.Event {
	var got []events.Event
	e.notifier.On(kind, func(ev events.Event) error {
		got = append(got, ev)
		return nil
	})
	return &got
}

func newTestEnv(t *testing.T, opts mockserver.Options, handler func(http.Handler) http.Handler, repoOpts ...Option) *testEnv {
	t.Helper()
	if opts.Password == "" {
		opts.Password = testPassword
	}
	server, err := mockserver.New(opts)
	require.NoError(t, err)

	var h http.Handler = server
	if handler != nil {
		h = handler(server)
	}
	ts := httptest.NewServer(h)
	t.Cleanup(ts.Close)

	client, err := rest.New(ts.URL, rest.WithRetry(3, 0), rest.WithTimeout(5*time.Second))
	require.NoError(t, err)

	notifier := events.NewNotifier(nil)
	sessions := rest.NewSessionManager(client, notifier, testPassword, 0)
	clock := newFakeClock()

	options := append([]Option{WithNotifier(notifier), withNow(clock.Now)}, repoOpts...)
	return &testEnv{
		repo:     New(client, sessions, options...),
		server:   server,
		sessions: sessions,
		notifier: notifier,
		clock:    clock,
	}
}

func TestFindAll_TTL(t *testing.T) {
	env := newTestEnv(t, mockserver.Options{}, nil)
	_, err := env.server.AddPeer("laptop")
	require.NoError(t, err)
	ctx := context.Background()

	s, err := env.repo.FindAll(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())
	assert.Equal(t, 1, env.server.Requests(http.MethodGet, listRoute))

	env.clock.Advance(4 * time.Second)
	_, err = env.repo.FindAll(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 1, env.server.Requests(http.MethodGet, listRoute))

	env.clock.Advance(time.Second)
	_, err = env.repo.FindAll(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, env.server.Requests(http.MethodGet, listRoute))

	_, err = env.repo.FindAll(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 3, env.server.Requests(http.MethodGet, listRoute))
}

func TestFindAll_CachingDisabled(t *testing.T) {
	env := newTestEnv(t, mockserver.Options{}, nil, WithCacheTTL(0))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := env.repo.FindAll(ctx, false)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, env.server.Requests(http.MethodGet, listRoute))
}

func TestFindAll_SnapshotsAreIsolated(t *testing.T) {
	env := newTestEnv(t, mockserver.Options{}, nil)
	ctx := context.Background()
	p, err := env.server.AddPeer("laptop")
	require.NoError(t, err)

	before, err := env.repo.FindAll(ctx, false)
	require.NoError(t, err)

	_, err = env.repo.Rename(ctx, p.Id, "desktop")
	require.NoError(t, err)

	old, ok := before.Get(p.Id)
	require.True(t, ok)
	assert.Equal(t, "laptop", old.Name)
}

func TestFindAll_ConcurrentCallersShareOneFetch(t *testing.T) {
	env := newTestEnv(t, mockserver.Options{}, nil)
	ctx := context.Background()
	require.NoError(t, env.sessions.EnsureAuthenticated(ctx))
	env.server.SetDelay(50 * time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.repo.FindAll(ctx, false)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, env.server.Requests(http.MethodGet, listRoute))
}

func TestFindAll_CancelledCallerDoesNotAbortSharedFetch(t *testing.T) {
	env := newTestEnv(t, mockserver.Options{}, nil)
	_, err := env.server.AddPeer("laptop")
	require.NoError(t, err)
	require.NoError(t, env.sessions.EnsureAuthenticated(context.Background()))
	env.server.SetDelay(200 * time.Millisecond)

	first, cancel := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := env.repo.FindAll(first, false)
		firstErr <- err
	}()
	require.Eventually(t, func() bool {
		return env.server.Requests(http.MethodGet, listRoute) == 1
	}, time.Second, 5*time.Millisecond)

	type result struct {
		snapshot *peers.Snapshot
		err      error
	}
	second := make(chan result, 1)
	go func() {
		s, err := env.repo.FindAll(context.Background(), false)
		second <- result{s, err}
	}()

	cancel()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	res := <-second
	require.NoError(t, res.err)
	assert.Equal(t, 1, res.snapshot.Len())
	assert.Equal(t, 1, env.server.Requests(http.MethodGet, listRoute))
}

func TestInvalidate_DuringFetchKeepsCacheEmpty(t *testing.T) {
	env := newTestEnv(t, mockserver.Options{}, nil)
	ctx := context.Background()
	require.NoError(t, env.sessions.EnsureAuthenticated(ctx))
	env.server.SetDelay(100 * time.Millisecond)

	done := make(chan error, 1)
	go func() {
		_, err := env.repo.FindAll(ctx, false)
		done <- err
	}()
	require.Eventually(t, func() bool {
		return env.server.Requests(http.MethodGet, listRoute) == 1
	}, time.Second, 5*time.Millisecond)

	env.repo.Invalidate()
	require.NoError(t, <-done)

	env.server.SetDelay(0)
	_, err := env.repo.FindAll(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, env.server.Requests(http.MethodGet, listRoute))
}

func TestFindByName_LongNameIsNotFound(t *testing.T) {
	env := newTestEnv(t, mockserver.Options{}, nil)
	ctx := context.Background()
	_, err := env.server.AddPeer("laptop")
	require.NoError(t, err)

	_, err = env.repo.FindByName(ctx, strings.Repeat("x", 65))
	assert.ErrorIs(t, err, status.ErrNotFound)

	_, err = env.repo.FindByName(ctx, "  ")
	assert.ErrorIs(t, err, status.ErrValidation)

	p, err := env.repo.FindByName(ctx, " Laptop ")
	require.NoError(t, err)
	assert.Equal(t, "laptop", p.Name)
}

func TestReadAfterWrite(t *testing.T) {
	env := newTestEnv(t, mockserver.Options{}, nil)
	ctx := context.Background()
	p, err := env.server.AddPeer("laptop")
	require.NoError(t, err)

	_, err = env.repo.FindAll(ctx, false)
	require.NoError(t, err)

	_, err = env.repo.Rename(ctx, p.Id, "desktop")
	require.NoError(t, err)
	got, err := env.repo.FindByID(ctx, p.Id)
	require.NoError(t, err)
	assert.Equal(t, "desktop", got.Name)

	_, err = env.repo.Disable(ctx, p.Id)
	require.NoError(t, err)
	got, err = env.repo.FindByID(ctx, p.Id)
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	_, err = env.repo.UpdateAddress(ctx, p.Id, "10.8.0.42")
	require.NoError(t, err)
	got, err = env.repo.FindByID(ctx, p.Id)
	require.NoError(t, err)
	assert.Equal(t, "10.8.0.42", got.Address)

	assert.Equal(t, 4, env.server.Requests(http.MethodGet, listRoute))
}

func TestCreateAndDeleteScenario(t *testing.T) {
	env := newTestEnv(t, mockserver.Options{}, nil)
	ctx := context.Background()
	created := env.recorded(events.PeerCreated)
	deleted := env.recorded(events.PeerDeleted)

	p, err := env.repo.Create(ctx, "  laptop ")
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "laptop", p.Name)
	assert.Equal(t, "10.8.0.2", p.Address)
	require.Len(t, *created, 1)
	assert.Equal(t, p.ID, (*created)[0].Peer.ID)

	byName, err := env.repo.FindByName(ctx, "LAPTOP")
	require.NoError(t, err)
	assert.Equal(t, p.ID, byName.ID)

	require.NoError(t, env.repo.Delete(ctx, p.ID))
	require.Len(t, *deleted, 1)
	assert.Equal(t, "laptop", (*deleted)[0].Peer.Name)

	_, err = env.repo.FindByID(ctx, p.ID)
	assert.True(t, errors.Is(err, status.ErrNotFound))
	s, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, p.ID, s.ID)

	all, err := env.repo.FindAll(ctx, false)
	require.NoError(t, err)
	assert.Zero(t, all.Len())
}

func TestCreate_PrefersReturnedPeer(t *testing.T) {
	env := newTestEnv(t, mockserver.Options{CreateReturnsPeer: true}, nil)

	p, err := env.repo.Create(context.Background(), "phone")
	require.NoError(t, err)
	assert.Equal(t, "phone", p.Name)
	assert.Equal(t, 0, env.server.Requests(http.MethodGet, listRoute))
}

func TestCreate_DuplicateNamesTakeTheNewest(t *testing.T) {
	env := newTestEnv(t, mockserver.Options{}, nil)
	existing, err := env.server.AddPeer("phone")
	require.NoError(t, err)

	p, err := env.repo.Create(context.Background(), "Phone")
	require.NoError(t, err)
	assert.NotEqual(t, existing.Id, p.ID)
	assert.Equal(t, "Phone", p.Name)
}

func TestCreate_CreatedRecordNotFound(t *testing.T) {
	// acknowledges the create without storing anything
	swallowCreate := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Method == http.MethodPost && r.URL.Path == listRoute {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte(`{"success":true}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
	env := newTestEnv(t, mockserver.Options{}, swallowCreate)
	created := env.recorded(events.PeerCreated)

	_, err := env.repo.Create(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrInternal))
	assert.Equal(t, "created record not found", err.Error())
	assert.Empty(t, *created)
}

func TestDelete_NotFound(t *testing.T) {
	env := newTestEnv(t, mockserver.Options{}, nil)
	deleted := env.recorded(events.PeerDeleted)

	err := env.repo.Delete(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrNotFound))
	assert.Empty(t, *deleted)
}

func TestDelete_UnknownPeerEventCarriesID(t *testing.T) {
	env := newTestEnv(t, mockserver.Options{}, nil)
	deleted := env.recorded(events.PeerDeleted)
	p, err := env.server.AddPeer("laptop")
	require.NoError(t, err)

	require.NoError(t, env.repo.Delete(context.Background(), p.Id))
	require.Len(t, *deleted, 1)
	assert.Equal(t, peers.Record{ID: p.Id}, *(*deleted)[0].Peer)
}

func TestUpdates_EventPayloadFallbacks(t *testing.T) {
	t.Run("answered record", func(t *testing.T) {
		env := newTestEnv(t, mockserver.Options{}, nil)
		enabled := env.recorded(events.PeerEnabled)
		p, err := env.server.AddPeer("laptop")
		require.NoError(t, err)

		got, err := env.repo.Enable(context.Background(), p.Id)
		require.NoError(t, err)
		assert.True(t, got.Enabled)
		require.Len(t, *enabled, 1)
		assert.Equal(t, p.Id, (*enabled)[0].Peer.ID)
		assert.Equal(t, 0, env.server.Requests(http.MethodGet, listRoute))
	})

	t.Run("derived from cache", func(t *testing.T) {
		env := newTestEnv(t, mockserver.Options{BareUpdates: true}, nil)
		updated := env.recorded(events.PeerUpdated)
		p, err := env.server.AddPeer("laptop")
		require.NoError(t, err)
		_, err = env.repo.FindAll(context.Background(), false)
		require.NoError(t, err)

		got, err := env.repo.Rename(context.Background(), p.Id, "desktop")
		require.NoError(t, err)
		assert.Equal(t, "desktop", got.Name)
		assert.Equal(t, p.PublicKey, got.PublicKey)
		assert.Equal(t, env.clock.Now(), got.UpdatedAt)
		require.Len(t, *updated, 1)
		assert.Equal(t, 1, env.server.Requests(http.MethodGet, listRoute))
	})

	t.Run("refetched", func(t *testing.T) {
		env := newTestEnv(t, mockserver.Options{BareUpdates: true}, nil)
		disabled := env.recorded(events.PeerDisabled)
		p, err := env.server.AddPeer("laptop")
		require.NoError(t, err)

		got, err := env.repo.Disable(context.Background(), p.Id)
		require.NoError(t, err)
		assert.False(t, got.Enabled)
		assert.Equal(t, "laptop", got.Name)
		require.Len(t, *disabled, 1)
		assert.Equal(t, 1, env.server.Requests(http.MethodGet, listRoute))
	})
}

func TestValidationHappensBeforeNetwork(t *testing.T) {
	env := newTestEnv(t, mockserver.Options{}, nil)
	ctx := context.Background()

	_, err := env.repo.Rename(ctx, "", "desktop")
	assert.True(t, errors.Is(err, status.ErrValidation))

	_, err = env.repo.Rename(ctx, "some-id", strings.Repeat("x", 65))
	assert.True(t, errors.Is(err, status.ErrValidation))

	_, err = env.repo.Create(ctx, "   ")
	assert.True(t, errors.Is(err, status.ErrValidation))

	_, err = env.repo.UpdateAddress(ctx, "some-id", "300.1.1.1")
	require.True(t, errors.Is(err, status.ErrValidation))
	s, _ := status.FromError(err)
	assert.Equal(t, "address", s.Field)

	_, err = env.repo.Enable(ctx, " ")
	assert.True(t, errors.Is(err, status.ErrValidation))

	assert.Equal(t, 0, env.server.Requests(http.MethodGet, "/session"))
	assert.Equal(t, 0, env.server.Requests(http.MethodPost, "/session"))
}

func TestUnauthorizedInvalidatesSession(t *testing.T) {
	env := newTestEnv(t, mockserver.Options{}, nil)
	ctx := context.Background()

	_, err := env.repo.FindAll(ctx, false)
	require.NoError(t, err)
	require.True(t, env.sessions.Session().Authenticated)

	env.server.RevokeSessions()
	_, err = env.repo.FindAll(ctx, true)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrUnauthorized))
	assert.False(t, env.sessions.Session().Authenticated)

	_, err = env.repo.FindAll(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 2, env.server.Requests(http.MethodPost, "/session"))
}

func TestWrongPassword(t *testing.T) {
	server, err := mockserver.New(mockserver.Options{Password: testPassword})
	require.NoError(t, err)
	ts := httptest.NewServer(server)
	defer ts.Close()

	client, err := rest.New(ts.URL)
	require.NoError(t, err)
	repo := New(client, rest.NewSessionManager(client, nil, "wrong", 0))

	_, err = repo.FindAll(context.Background(), false)
	assert.True(t, errors.Is(err, status.ErrAuthentication))
	assert.Equal(t, 0, server.Requests(http.MethodGet, listRoute))
}

func TestGetConfiguration(t *testing.T) {
	env := newTestEnv(t, mockserver.Options{Endpoint: "vpn.test:51820"}, nil)
	p, err := env.server.AddPeer("laptop")
	require.NoError(t, err)

	text, err := env.repo.GetConfiguration(context.Background(), p.Id)
	require.NoError(t, err)

	cfg, err := wgconfig.Parse(text)
	require.NoError(t, err)
	pub, ok := cfg.PublicKey()
	require.True(t, ok)
	assert.Equal(t, p.PublicKey, pub.String())
	require.Len(t, cfg.Addresses, 1)
	assert.Equal(t, "10.8.0.2/32", cfg.Addresses[0].String())
	assert.Equal(t, []string{"vpn.test:51820"}, cfg.Endpoints)

	_, err = env.repo.GetConfiguration(context.Background(), "missing")
	assert.True(t, errors.Is(err, status.ErrNotFound))
}

type failingEncoder struct{}

func (failingEncoder) SVG(string) ([]byte, error) {
	return nil, errors.New("data too long")
}

func TestGetQRCode(t *testing.T) {
	env := newTestEnv(t, mockserver.Options{}, nil)
	p, err := env.server.AddPeer("laptop")
	require.NoError(t, err)

	svg, err := env.repo.GetQRCode(context.Background(), p.Id)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(svg), "<svg"))

	env.repo.encoder = failingEncoder{}
	_, err = env.repo.GetQRCode(context.Background(), p.Id)
	require.Error(t, err)
	assert.True(t, errors.Is(err, status.ErrInternal))
	assert.False(t, errors.Is(err, status.ErrNetwork))
}

func TestQuery(t *testing.T) {
	env := newTestEnv(t, mockserver.Options{}, nil)
	ctx := context.Background()
	for _, name := range []string{"alpha", "bravo", "charlie"} {
		_, err := env.server.AddPeer(name)
		require.NoError(t, err)
	}
	all := env.server.Peers()
	handshake := env.clock.Now().Add(-2 * time.Minute)
	require.True(t, env.server.SetStats(all[1].Id, &handshake, 100, 50))
	stale := env.clock.Now().Add(-4 * time.Minute)
	require.True(t, env.server.SetStats(all[2].Id, &stale, 10, 5))

	c, err := env.repo.Query(ctx)
	require.NoError(t, err)

	stats := c.Statistics()
	assert.Equal(t, peers.Statistics{Total: 3, Enabled: 3, Online: 1, Offline: 2, TotalRx: 110, TotalTx: 55}, stats)

	online := true
	page := c.FilterBy(peers.Filter{Online: &online}).Paginate(peers.PageRequest{Page: 1})
	require.Len(t, page.Items, 1)
	assert.Equal(t, "bravo", page.Items[0].Name)
}

func TestCacheMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	env := newTestEnv(t, mockserver.Options{}, nil, WithMetrics(m))
	ctx := context.Background()

	_, err = env.repo.FindAll(ctx, false)
	require.NoError(t, err)
	_, err = env.repo.FindAll(ctx, false)
	require.NoError(t, err)
	_, err = env.repo.FindAll(ctx, false)
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(reg, "peerctl_cache_lookups_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestInvalidate(t *testing.T) {
	env := newTestEnv(t, mockserver.Options{}, nil)
	ctx := context.Background()

	_, err := env.repo.FindAll(ctx, false)
	require.NoError(t, err)
	env.repo.Invalidate()
	_, err = env.repo.FindAll(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, env.server.Requests(http.MethodGet, listRoute))
}
