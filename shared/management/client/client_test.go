package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netbirdio/peerctl/shared/management/client/config"
	"github.com/netbirdio/peerctl/shared/management/events"
	"github.com/netbirdio/peerctl/shared/management/http/testing/mockserver"
	"github.com/netbirdio/peerctl/shared/management/status"
)

const testPassword = "hunter2"

func startService(t *testing.T, opts mockserver.Options) (*mockserver.Server, string) {
	t.Helper()
	server, err := mockserver.New(opts)
	require.NoError(t, err)
	ts := httptest.NewServer(server)
	t.Cleanup(ts.Close)
	return server, ts.URL
}

func TestNew_InvalidConfig(t *testing.T) {
	_, err := New(nil)
	assert.True(t, errors.Is(err, status.ErrConfiguration))

	_, err = New(&config.Config{URL: "not a url"})
	assert.True(t, errors.Is(err, status.ErrConfiguration))
}

func TestNew_DoesNotConnect(t *testing.T) {
	server, url := startService(t, mockserver.Options{Password: testPassword})

	c, err := New(&config.Config{URL: url, Password: testPassword})
	require.NoError(t, err)
	defer c.Close()

	assert.False(t, c.Sessions.Session().Authenticated)
	assert.Equal(t, 0, server.Requests(http.MethodGet, "/session"))
}

func TestConnect(t *testing.T) {
	server, url := startService(t, mockserver.Options{Password: testPassword})

	c, err := Connect(context.Background(), &config.Config{URL: url, Password: testPassword})
	require.NoError(t, err)
	defer c.Close()

	assert.True(t, c.Sessions.Session().Authenticated)
	assert.Equal(t, 1, server.Requests(http.MethodPost, "/session"))
}

func TestConnect_WrongPassword(t *testing.T) {
	_, url := startService(t, mockserver.Options{Password: testPassword})

	_, err := Connect(context.Background(), &config.Config{URL: url, Password: "nope"})
	assert.True(t, errors.Is(err, status.ErrAuthentication))
}

func TestPeerLifecycle(t *testing.T) {
	_, url := startService(t, mockserver.Options{Password: testPassword})
	reg := prometheus.NewRegistry()

	c, err := Connect(context.Background(), &config.Config{URL: url, Password: testPassword, CacheTTL: time.Minute},
		WithRegisterer(reg))
	require.NoError(t, err)
	defer c.Close()

	var kinds []events.Kind
	for _, kind := range events.Kinds {
		c.Events.On(kind, func(e events.Event) error {
			kinds = append(kinds, e.Kind)
			return nil
		})
	}

	ctx := context.Background()
	created, err := c.CreatePeer(ctx, "laptop")
	require.NoError(t, err)

	byName, err := c.Peer(ctx, "laptop")
	require.NoError(t, err)
	assert.Equal(t, created.ID, byName.ID)

	byID, err := c.Peer(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "laptop", byID.Name)

	_, err = c.DisablePeer(ctx, created.ID)
	require.NoError(t, err)
	_, err = c.EnablePeer(ctx, created.ID)
	require.NoError(t, err)
	_, err = c.RenamePeer(ctx, created.ID, "desktop")
	require.NoError(t, err)

	conf, err := c.PeerConfiguration(ctx, created.ID)
	require.NoError(t, err)
	assert.Contains(t, conf, "[Interface]")

	require.NoError(t, c.DeletePeer(ctx, created.ID))
	_, err = c.Peer(ctx, created.ID)
	assert.True(t, errors.Is(err, status.ErrNotFound))

	require.NoError(t, c.Logout(ctx))

	assert.Equal(t, []events.Kind{
		events.PeerCreated, events.PeerDisabled, events.PeerEnabled, events.PeerUpdated,
		events.PeerDeleted, events.SessionLogout,
	}, kinds)

	count, err := testutil.GatherAndCount(reg, "peerctl_events_total")
	require.NoError(t, err)
	// session.login fired during Connect, before the handlers were registered
	assert.Equal(t, 7, count)
}

func TestMockClientDefaults(t *testing.T) {
	var c Client = &MockClient{}
	ctx := context.Background()

	require.NoError(t, c.Login(ctx))
	s, err := c.Peers(ctx, false)
	require.NoError(t, err)
	assert.Zero(t, s.Len())

	q, err := c.Query(ctx)
	require.NoError(t, err)
	assert.Zero(t, q.Len())
	require.NoError(t, c.Close())
}
