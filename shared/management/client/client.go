package client

import (
	"context"
	"errors"
	"io"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"

	"github.com/netbirdio/peerctl/shared/management/client/config"
	"github.com/netbirdio/peerctl/shared/management/client/repository"
	"github.com/netbirdio/peerctl/shared/management/client/rest"
	"github.com/netbirdio/peerctl/shared/management/events"
	"github.com/netbirdio/peerctl/shared/management/peers"
	"github.com/netbirdio/peerctl/shared/management/status"
	"github.com/netbirdio/peerctl/shared/metrics"
)

// Client is the interface for the WireGuard management service client.
type Client interface {
	io.Closer
	Login(ctx context.Context) error
	Logout(ctx context.Context) error
	Peers(ctx context.Context, forceRefresh bool) (*peers.Snapshot, error)
	Query(ctx context.Context) (*peers.Collection, error)
	Peer(ctx context.Context, ref string) (peers.Record, error)
	CreatePeer(ctx context.Context, name string) (peers.Record, error)
	DeletePeer(ctx context.Context, peerID string) error
	RenamePeer(ctx context.Context, peerID, name string) (peers.Record, error)
	UpdatePeerAddress(ctx context.Context, peerID, address string) (peers.Record, error)
	EnablePeer(ctx context.Context, peerID string) (peers.Record, error)
	DisablePeer(ctx context.Context, peerID string) (peers.Record, error)
	PeerConfiguration(ctx context.Context, peerID string) (string, error)
	PeerQRCode(ctx context.Context, peerID string) ([]byte, error)
}

// WGClient wires transport, session, repository and notifier for one service
type WGClient struct {
	Transport  *rest.Client
	Sessions   *rest.SessionManager
	Repository *repository.Repository
	Events     *events.Notifier
	Metrics    *metrics.Metrics
}

var _ Client = (*WGClient)(nil)

type options struct {
	registerer prometheus.Registerer
	restOpts   []rest.Option
}

// Option configures New
type Option func(*options)

// WithRegisterer registers the client metrics on reg
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithRESTOptions passes extra options to the transport
func WithRESTOptions(opts ...rest.Option) Option {
	return func(o *options) {
		o.restOpts = append(o.restOpts, opts...)
	}
}

// New builds a client from cfg without contacting the service
func New(cfg *config.Config, opts ...Option) (*WGClient, error) {
	if cfg == nil {
		return nil, status.NewConfigurationError("missing configuration")
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	m, err := metrics.New(o.registerer)
	if err != nil {
		return nil, status.NewInternalError(err, "register metrics")
	}

	restOpts := append([]rest.Option{
		rest.WithTimeout(cfg.Timeout),
		rest.WithRetry(cfg.RetryAttempts, cfg.RetryDelay),
		rest.WithRateLimit(cfg.RequestsPerSecond),
		rest.WithMetrics(m),
	}, o.restOpts...)

	transport, err := rest.New(cfg.URL, restOpts...)
	if err != nil {
		return nil, err
	}

	notifier := events.NewNotifier(m)
	sessions := rest.NewSessionManager(transport, notifier, cfg.Password, cfg.SessionTTL)
	repo := repository.New(transport, sessions,
		repository.WithCacheTTL(cfg.CacheTTL),
		repository.WithNotifier(notifier),
		repository.WithMetrics(m),
	)

	log.Debugf("client configured: %s", cfg)
	return &WGClient{
		Transport:  transport,
		Sessions:   sessions,
		Repository: repo,
		Events:     notifier,
		Metrics:    m,
	}, nil
}

// Connect builds a client and logs in right away
func Connect(ctx context.Context, cfg *config.Config, opts ...Option) (*WGClient, error) {
	c, err := New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := c.Login(ctx); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// Close releases the transport. The remote session is kept, call Logout to revoke it.
func (c *WGClient) Close() error {
	return c.Transport.Close()
}

// Login makes sure the client holds an authenticated session
func (c *WGClient) Login(ctx context.Context) error {
	return c.Sessions.EnsureAuthenticated(ctx)
}

// Logout revokes the session and drops the cached collection
func (c *WGClient) Logout(ctx context.Context) error {
	c.Repository.Invalidate()
	return c.Sessions.Logout(ctx)
}

func (c *WGClient) Peers(ctx context.Context, forceRefresh bool) (*peers.Snapshot, error) {
	return c.Repository.FindAll(ctx, forceRefresh)
}

func (c *WGClient) Query(ctx context.Context) (*peers.Collection, error) {
	return c.Repository.Query(ctx)
}

// Peer resolves ref as a peer id first, then as a name
func (c *WGClient) Peer(ctx context.Context, ref string) (peers.Record, error) {
	p, err := c.Repository.FindByID(ctx, ref)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, status.ErrNotFound) && !errors.Is(err, status.ErrValidation) {
		return peers.Record{}, err
	}
	return c.Repository.FindByName(ctx, ref)
}

func (c *WGClient) CreatePeer(ctx context.Context, name string) (peers.Record, error) {
	return c.Repository.Create(ctx, name)
}

func (c *WGClient) DeletePeer(ctx context.Context, peerID string) error {
	return c.Repository.Delete(ctx, peerID)
}

func (c *WGClient) RenamePeer(ctx context.Context, peerID, name string) (peers.Record, error) {
	return c.Repository.Rename(ctx, peerID, name)
}

func (c *WGClient) UpdatePeerAddress(ctx context.Context, peerID, address string) (peers.Record, error) {
	return c.Repository.UpdateAddress(ctx, peerID, address)
}

func (c *WGClient) EnablePeer(ctx context.Context, peerID string) (peers.Record, error) {
	return c.Repository.Enable(ctx, peerID)
}

func (c *WGClient) DisablePeer(ctx context.Context, peerID string) (peers.Record, error) {
	return c.Repository.Disable(ctx, peerID)
}

func (c *WGClient) PeerConfiguration(ctx context.Context, peerID string) (string, error) {
	return c.Repository.GetConfiguration(ctx, peerID)
}

func (c *WGClient) PeerQRCode(ctx context.Context, peerID string) ([]byte, error) {
	return c.Repository.GetQRCode(ctx, peerID)
}
