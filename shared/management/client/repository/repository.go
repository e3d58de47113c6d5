// Package repository keeps a cached, read-after-write coherent view of the peer collection on top of
// the REST client.
package repository

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	gocache_store "github.com/eko/gocache/store/go_cache/v4"
	gocache "github.com/patrickmn/go-cache"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/netbirdio/peerctl/shared/management/client/rest"
	"github.com/netbirdio/peerctl/shared/management/events"
	"github.com/netbirdio/peerctl/shared/management/http/api"
	"github.com/netbirdio/peerctl/shared/management/peers"
	"github.com/netbirdio/peerctl/shared/management/status"
	"github.com/netbirdio/peerctl/shared/management/validate"
	"github.com/netbirdio/peerctl/shared/metrics"
	"github.com/netbirdio/peerctl/shared/qrcode"
)

const (
	// DefaultCacheTTL is the lifetime of a fetched collection
	DefaultCacheTTL = 5 * time.Second

	collectionKey   = "peer-collection"
	cleanupInterval = time.Minute
)

type cacheEntry struct {
	Snapshot  *peers.Snapshot
	FetchedAt time.Time
}

// Repository serves the peer collection from a single cached snapshot and keeps it coherent with
// the writes it performs
type Repository struct {
	client   *rest.Client
	sessions *rest.SessionManager
	notifier *events.Notifier
	encoder  qrcode.Encoder
	metrics  *metrics.Metrics

	cache *cache.Cache[any]
	ttl   time.Duration
	now   func() time.Time

	fetches singleflight.Group
	// generation is bumped on every invalidation so a fetch started earlier never repopulates the cache
	generation atomic.Uint64
	// cacheMu orders invalidations against storing a fetched collection
	cacheMu sync.Mutex
}

// Option configures a Repository
type Option func(*Repository)

// WithCacheTTL sets the lifetime of a fetched collection. A non-positive TTL disables caching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(r *Repository) {
		r.ttl = ttl
	}
}

// WithNotifier sets the notifier receiving peer events
func WithNotifier(n *events.Notifier) Option {
	return func(r *Repository) {
		r.notifier = n
	}
}

// WithEncoder replaces the QR code encoder
func WithEncoder(e qrcode.Encoder) Option {
	return func(r *Repository) {
		r.encoder = e
	}
}

// WithMetrics records cache lookups
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Repository) {
		r.metrics = m
	}
}

func withNow(now func() time.Time) Option {
	return func(r *Repository) {
		r.now = now
	}
}

// New creates a Repository. Every network operation authenticates through sessions first.
func New(client *rest.Client, sessions *rest.SessionManager, opts ...Option) *Repository {
	r := &Repository{
		client:   client,
		sessions: sessions,
		encoder:  qrcode.NewEncoder(),
		ttl:      DefaultCacheTTL,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}

	goc := gocache.New(gocache.NoExpiration, cleanupInterval)
	r.cache = cache.New[any](gocache_store.NewGoCache(goc))
	return r
}

// TTL returns the cache lifetime
func (r *Repository) TTL() time.Duration {
	return r.ttl
}

// Invalidate drops the cached collection
func (r *Repository) Invalidate() {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	r.generation.Add(1)
	if err := r.cache.Delete(context.Background(), collectionKey); err != nil {
		log.Debugf("failed to delete cached collection: %v", err)
	}
}

// FindAll returns the whole collection, from the cache when it is still valid and forceRefresh is false
func (r *Repository) FindAll(ctx context.Context, forceRefresh bool) (*peers.Snapshot, error) {
	if !forceRefresh {
		if s, ok := r.cached(ctx); ok {
			r.metrics.CountCacheLookup(metrics.CacheHit)
			return s, nil
		}
	}
	r.metrics.CountCacheLookup(metrics.CacheMiss)

	gen := r.generation.Load()
	results := r.fetches.DoChan(strconv.FormatUint(gen, 10), func() (any, error) {
		// other callers may join, so the fetch outlives the caller that started it
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.fetchTimeout())
		defer cancel()
		return r.fetch(fetchCtx, gen)
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-results:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			log.WithContext(ctx).Tracef("joined in-flight collection fetch")
		}
		return res.Val.(*peers.Snapshot), nil
	}
}

// Query returns the collection as a Collection ready for filtering, sorting and paging
func (r *Repository) Query(ctx context.Context) (*peers.Collection, error) {
	s, err := r.FindAll(ctx, false)
	if err != nil {
		return nil, err
	}
	return peers.NewCollection(s, peers.WithNow(r.now())), nil
}

// FindByID returns the peer with the given id
func (r *Repository) FindByID(ctx context.Context, peerID string) (peers.Record, error) {
	if err := validate.PeerID(peerID); err != nil {
		return peers.Record{}, err
	}
	s, err := r.FindAll(ctx, false)
	if err != nil {
		return peers.Record{}, err
	}
	p, ok := s.Get(peerID)
	if !ok {
		return peers.Record{}, status.NewPeerNotFoundError(peerID)
	}
	return p, nil
}

// FindByName returns the first peer, in collection order, whose name matches case-insensitively.
// Any non-empty name is looked up, a name no peer could carry is simply not found.
func (r *Repository) FindByName(ctx context.Context, name string) (peers.Record, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return peers.Record{}, status.NewValidationError("name", name, "must not be empty")
	}
	s, err := r.FindAll(ctx, false)
	if err != nil {
		return peers.Record{}, err
	}
	for _, p := range s.Records() {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return peers.Record{}, status.NewPeerNotFoundError(name)
}

// Create creates a peer named name. When the service does not answer with the new peer, the
// collection is fetched again and the last peer carrying that name is taken.
func (r *Repository) Create(ctx context.Context, name string) (peers.Record, error) {
	name, err := validate.PeerName(name)
	if err != nil {
		return peers.Record{}, err
	}

	var returned *api.Peer
	err = r.call(ctx, func(ctx context.Context) error {
		var err error
		returned, err = r.client.Peers.Create(ctx, api.PostPeerCollectionJSONRequestBody{Name: name})
		return err
	})
	if err != nil {
		return peers.Record{}, err
	}
	r.Invalidate()

	var created peers.Record
	if returned != nil && returned.Id != "" {
		created = peers.FromAPI(*returned)
	} else {
		created, err = r.locateCreated(ctx, name)
		if err != nil {
			return peers.Record{}, err
		}
	}

	log.WithContext(ctx).Infof("created peer %s (%s)", created.ID, created.Name)
	r.notifier.Emit(events.PeerCreated, &created)
	return created, nil
}

func (r *Repository) locateCreated(ctx context.Context, name string) (peers.Record, error) {
	s, err := r.FindAll(ctx, true)
	if err != nil {
		return peers.Record{}, err
	}
	records := s.Records()
	for i := len(records) - 1; i >= 0; i-- {
		if strings.EqualFold(records[i].Name, name) {
			return records[i], nil
		}
	}
	return peers.Record{}, status.NewCreatedPeerNotFoundError(name)
}

// Delete deletes a peer
func (r *Repository) Delete(ctx context.Context, peerID string) error {
	if err := validate.PeerID(peerID); err != nil {
		return err
	}
	previous, known := r.lastKnown(ctx, peerID)

	err := r.call(ctx, func(ctx context.Context) error {
		return r.client.Peers.Delete(ctx, peerID)
	})
	if errors.Is(err, status.ErrNotFound) {
		r.Invalidate()
	}
	if err != nil {
		return err
	}
	r.Invalidate()

	if !known {
		previous = peers.Record{ID: peerID}
	}
	log.WithContext(ctx).Infof("deleted peer %s", peerID)
	r.notifier.Emit(events.PeerDeleted, &previous)
	return nil
}

// Rename renames a peer
func (r *Repository) Rename(ctx context.Context, peerID, name string) (peers.Record, error) {
	if err := validate.PeerID(peerID); err != nil {
		return peers.Record{}, err
	}
	name, err := validate.PeerName(name)
	if err != nil {
		return peers.Record{}, err
	}

	return r.mutate(ctx, peerID, events.PeerUpdated,
		func(ctx context.Context) (*api.Peer, error) {
			return r.client.Peers.Rename(ctx, peerID, api.PutPeerNameJSONRequestBody{Name: name})
		},
		func(p peers.Record) peers.Record { return p.WithName(name, r.now()) },
	)
}

// UpdateAddress assigns a new tunnel address to a peer
func (r *Repository) UpdateAddress(ctx context.Context, peerID, address string) (peers.Record, error) {
	if err := validate.PeerID(peerID); err != nil {
		return peers.Record{}, err
	}
	address, err := validate.Address(address)
	if err != nil {
		return peers.Record{}, err
	}

	return r.mutate(ctx, peerID, events.PeerUpdated,
		func(ctx context.Context) (*api.Peer, error) {
			return r.client.Peers.UpdateAddress(ctx, peerID, api.PutPeerAddressJSONRequestBody{Address: address})
		},
		func(p peers.Record) peers.Record { return p.WithAddress(address, r.now()) },
	)
}

// Enable allows a peer to connect
func (r *Repository) Enable(ctx context.Context, peerID string) (peers.Record, error) {
	if err := validate.PeerID(peerID); err != nil {
		return peers.Record{}, err
	}
	return r.mutate(ctx, peerID, events.PeerEnabled,
		func(ctx context.Context) (*api.Peer, error) { return r.client.Peers.Enable(ctx, peerID) },
		func(p peers.Record) peers.Record { return p.WithEnabled(true, r.now()) },
	)
}

// Disable prevents a peer from connecting
func (r *Repository) Disable(ctx context.Context, peerID string) (peers.Record, error) {
	if err := validate.PeerID(peerID); err != nil {
		return peers.Record{}, err
	}
	return r.mutate(ctx, peerID, events.PeerDisabled,
		func(ctx context.Context) (*api.Peer, error) { return r.client.Peers.Disable(ctx, peerID) },
		func(p peers.Record) peers.Record { return p.WithEnabled(false, r.now()) },
	)
}

// GetConfiguration returns the exported client configuration of a peer
func (r *Repository) GetConfiguration(ctx context.Context, peerID string) (string, error) {
	if err := validate.PeerID(peerID); err != nil {
		return "", err
	}
	var config string
	err := r.call(ctx, func(ctx context.Context) error {
		var err error
		config, err = r.client.Peers.Configuration(ctx, peerID)
		return err
	})
	return config, err
}

// GetQRCode returns the configuration of a peer encoded as an SVG QR code
func (r *Repository) GetQRCode(ctx context.Context, peerID string) ([]byte, error) {
	config, err := r.GetConfiguration(ctx, peerID)
	if err != nil {
		return nil, err
	}
	svg, err := r.encoder.SVG(config)
	if err != nil {
		return nil, status.NewInternalError(err, "encode configuration of peer %s", peerID)
	}
	return svg, nil
}

// mutate sends a single peer update and resolves the updated record: the one the service answered
// with, else a copy derived from the last cached record, else a fresh fetch.
func (r *Repository) mutate(ctx context.Context, peerID string, kind events.Kind,
	send func(context.Context) (*api.Peer, error), derive func(peers.Record) peers.Record) (peers.Record, error) {
	previous, known := r.lastKnown(ctx, peerID)

	var returned *api.Peer
	err := r.call(ctx, func(ctx context.Context) error {
		var err error
		returned, err = send(ctx)
		return err
	})
	if err != nil {
		return peers.Record{}, err
	}
	r.Invalidate()

	var updated peers.Record
	switch {
	case returned != nil && returned.Id != "":
		updated = peers.FromAPI(*returned)
	case known:
		updated = derive(previous)
	default:
		updated, err = r.FindByID(ctx, peerID)
		if err != nil {
			log.WithContext(ctx).Warnf("peer %s updated but could not be fetched: %v", peerID, err)
			updated = peers.Record{ID: peerID}
		}
	}

	log.WithContext(ctx).Debugf("%s: %s", kind.Message(), peerID)
	r.notifier.Emit(kind, &updated)
	return updated, nil
}

// call authenticates and runs fn. A 401 drops the local session before the error is returned.
func (r *Repository) call(ctx context.Context, fn func(context.Context) error) error {
	if err := r.sessions.EnsureAuthenticated(ctx); err != nil {
		return err
	}
	err := fn(ctx)
	if errors.Is(err, status.ErrUnauthorized) {
		log.WithContext(ctx).Debugf("session rejected by the service, invalidating")
		r.sessions.Invalidate()
	}
	return err
}

func (r *Repository) fetch(ctx context.Context, gen uint64) (*peers.Snapshot, error) {
	var list []api.Peer
	err := r.call(ctx, func(ctx context.Context) error {
		var err error
		list, err = r.client.Peers.List(ctx)
		return err
	})
	if err != nil {
		return nil, err
	}

	records := make([]peers.Record, 0, len(list))
	for _, p := range list {
		records = append(records, peers.FromAPI(p))
	}
	s, err := peers.NewSnapshot(records)
	if err != nil {
		return nil, status.NewInternalError(err, "build collection")
	}

	if r.ttl > 0 {
		r.remember(ctx, gen, s)
	}
	log.WithContext(ctx).Debugf("fetched %d peers", s.Len())
	return s, nil
}

// remember caches s unless the collection was invalidated after the fetch of generation gen started
func (r *Repository) remember(ctx context.Context, gen uint64, s *peers.Snapshot) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	if r.generation.Load() != gen {
		log.WithContext(ctx).Debugf("discarding collection fetched before an invalidation")
		return
	}
	entry := &cacheEntry{Snapshot: s, FetchedAt: r.now()}
	if err := r.cache.Set(ctx, collectionKey, entry, store.WithExpiration(r.ttl)); err != nil {
		log.WithContext(ctx).Warnf("failed to cache collection: %v", err)
	}
}

// fetchTimeout bounds a shared fetch: one login plus one listing call
func (r *Repository) fetchTimeout() time.Duration {
	return 2 * r.client.CallBudget()
}

func (r *Repository) entry(ctx context.Context) (*cacheEntry, bool) {
	v, err := r.cache.Get(ctx, collectionKey)
	if err != nil {
		return nil, false
	}
	e, ok := v.(*cacheEntry)
	return e, ok && e != nil
}

// cached returns the cached snapshot while it is younger than the TTL
func (r *Repository) cached(ctx context.Context) (*peers.Snapshot, bool) {
	if r.ttl <= 0 {
		return nil, false
	}
	e, ok := r.entry(ctx)
	if !ok || r.now().Sub(e.FetchedAt) >= r.ttl {
		return nil, false
	}
	return e.Snapshot, true
}

// lastKnown looks a peer up in the cached collection without touching the network
func (r *Repository) lastKnown(ctx context.Context, peerID string) (peers.Record, bool) {
	e, ok := r.entry(ctx)
	if !ok {
		return peers.Record{}, false
	}
	return e.Snapshot.Get(peerID)
}
