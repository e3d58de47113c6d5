// Package mockserver is an in-process fake of the WireGuard management service. It keeps peers in
// memory, protects the peer collection with a password session and can inject failures.
package mockserver

import (
	"fmt"
	"net/http"
	"net/netip"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
	"golang.zx2c4.com/wireguard/wgctrl/wgtypes"

	"github.com/netbirdio/peerctl/shared/management/http/api"
	"github.com/netbirdio/peerctl/shared/management/http/util"
)

const (
	// SessionCookie is the name of the session cookie
	SessionCookie = "connect.sid"

	defaultNetwork  = "10.8.0.0/24"
	defaultEndpoint = "vpn.example.com:51820"
	defaultDNS      = "1.1.1.1"
	keepalive       = 25
)

// Options configures the fake service
type Options struct {
	// Password protects the peer collection. Empty means no login is required.
	Password string
	// CreateReturnsPeer makes POST /peer-collection answer with the created peer instead of a bare
	// acknowledgement
	CreateReturnsPeer bool
	// BareUpdates makes rename, address, enable and disable answer without the updated peer
	BareUpdates bool
	// Network is the prefix peer addresses are allocated from
	Network string
	// Endpoint is written into configuration exports
	Endpoint string
}

type peerEntry struct {
	peer         api.Peer
	privateKey   wgtypes.Key
	presharedKey wgtypes.Key
}

type failure struct {
	code       int
	retryAfter string
}

// Server is the fake service. It implements http.Handler.
type Server struct {
	opts      Options
	router    *mux.Router
	network   netip.Prefix
	serverKey wgtypes.Key

	mu       sync.Mutex
	peers    []*peerEntry
	sessions map[string]bool
	failures []failure
	delay    time.Duration
	requests map[string]int
	now      func() time.Time
}

// New creates a fake service
func New(opts Options) (*Server, error) {
	if opts.Network == "" {
		opts.Network = defaultNetwork
	}
	if opts.Endpoint == "" {
		opts.Endpoint = defaultEndpoint
	}

	network, err := netip.ParsePrefix(opts.Network)
	if err != nil {
		return nil, fmt.Errorf("parse network %q: %w", opts.Network, err)
	}

	serverKey, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate server key: %w", err)
	}

	s := &Server{
		opts:      opts,
		network:   network.Masked(),
		serverKey: serverKey,
		sessions:  make(map[string]bool),
		requests:  make(map[string]int),
		now:       time.Now,
	}
	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.countRequests, s.injectFailures)

	router.HandleFunc("/session", s.getSession).Methods(http.MethodGet)
	router.HandleFunc("/session", s.login).Methods(http.MethodPost)
	router.HandleFunc("/session", s.logout).Methods(http.MethodDelete)

	peers := router.NewRoute().Subrouter()
	peers.Use(s.requireSession)
	peers.HandleFunc("/peer-collection", s.listPeers).Methods(http.MethodGet)
	peers.HandleFunc("/peer-collection", s.createPeer).Methods(http.MethodPost)
	peers.HandleFunc("/peer-collection/{peerId}", s.deletePeer).Methods(http.MethodDelete)
	peers.HandleFunc("/peer-collection/{peerId}/name", s.renamePeer).Methods(http.MethodPut)
	peers.HandleFunc("/peer-collection/{peerId}/address", s.updateAddress).Methods(http.MethodPut)
	peers.HandleFunc("/peer-collection/{peerId}/enable", s.enablePeer).Methods(http.MethodPost)
	peers.HandleFunc("/peer-collection/{peerId}/disable", s.disablePeer).Methods(http.MethodPost)
	peers.HandleFunc("/peer-collection/{peerId}/configuration", s.getConfiguration).Methods(http.MethodGet)

	return router
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// FailNext makes the next count requests answer code. retryAfter is sent as Retry-After when set.
func (s *Server) FailNext(count int, code int, retryAfter string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := 0; i < count; i++ {
		s.failures = append(s.failures, failure{code: code, retryAfter: retryAfter})
	}
}

// SetDelay delays every answer
func (s *Server) SetDelay(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delay = d
}

// Requests returns how many requests reached method and path template, e.g. "GET /peer-collection"
func (s *Server) Requests(method, pathTemplate string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[method+" "+pathTemplate]
}

// RevokeSessions drops every session, as a service restart would
func (s *Server) RevokeSessions() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions = make(map[string]bool)
}

// AddPeer creates a peer directly in the store
func (s *Server) AddPeer(name string) (api.Peer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, err := s.newPeerLocked(name)
	if err != nil {
		return api.Peer{}, err
	}
	return e.peer, nil
}

// SetStats sets the handshake and transfer counters of a peer
func (s *Server) SetStats(peerID string, handshake *time.Time, rx, tx uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.findLocked(peerID)
	if e == nil {
		return false
	}
	e.peer.LatestHandshakeAt = handshake
	e.peer.TransferRx = rx
	e.peer.TransferTx = tx
	return true
}

// Peers returns a copy of the stored peers in creation order
func (s *Server) Peers() []api.Peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]api.Peer, 0, len(s.peers))
	for _, e := range s.peers {
		out = append(out, e.peer)
	}
	return out
}

func (s *Server) countRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tpl := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if t, err := route.GetPathTemplate(); err == nil {
				tpl = t
			}
		}
		s.mu.Lock()
		s.requests[r.Method+" "+tpl]++
		s.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (s *Server) injectFailures(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		delay := s.delay
		var f *failure
		if len(s.failures) > 0 {
			f = &s.failures[0]
			s.failures = s.failures[1:]
		}
		s.mu.Unlock()

		if delay > 0 {
			select {
			case <-r.Context().Done():
				return
			case <-time.After(delay):
			}
		}

		if f != nil {
			log.WithContext(r.Context()).Debugf("injecting %d for %s %s", f.code, r.Method, r.URL.Path)
			if f.retryAfter != "" {
				w.Header().Set("Retry-After", f.retryAfter)
			}
			util.WriteErrorResponse(http.StatusText(f.code), f.code, w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.authenticated(r) {
			util.WriteErrorResponse("not logged in", http.StatusUnauthorized, w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) authenticated(r *http.Request) bool {
	if s.opts.Password == "" {
		return true
	}
	ck, err := r.Cookie(SessionCookie)
	if err != nil {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessions[ck.Value]
}

func (s *Server) newPeerLocked(name string) (*peerEntry, error) {
	privateKey, err := wgtypes.GeneratePrivateKey()
	if err != nil {
		return nil, fmt.Errorf("generate peer key: %w", err)
	}
	presharedKey, err := wgtypes.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate preshared key: %w", err)
	}
	addr, err := s.allocateLocked()
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	e := &peerEntry{
		peer: api.Peer{
			Id:                  uuid.NewString(),
			Name:                name,
			Enabled:             true,
			Address:             addr.String(),
			PublicKey:           privateKey.PublicKey().String(),
			CreatedAt:           now,
			UpdatedAt:           now,
			PersistentKeepalive: keepalive,
		},
		privateKey:   privateKey,
		presharedKey: presharedKey,
	}
	s.peers = append(s.peers, e)
	return e, nil
}

// allocateLocked returns the lowest free host address, skipping the network and gateway addresses
func (s *Server) allocateLocked() (netip.Addr, error) {
	used := make(map[string]bool, len(s.peers))
	for _, e := range s.peers {
		used[e.peer.Address] = true
	}
	addr := s.network.Addr().Next().Next()
	for s.network.Contains(addr) {
		if !used[addr.String()] {
			return addr, nil
		}
		addr = addr.Next()
	}
	return netip.Addr{}, fmt.Errorf("no free address in %s", s.network)
}

func (s *Server) findLocked(peerID string) *peerEntry {
	for _, e := range s.peers {
		if e.peer.Id == peerID {
			return e
		}
	}
	return nil
}

func (s *Server) newSessionLocked() string {
	id := uuid.NewString()
	s.sessions[id] = true
	return id
}
