package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/netbirdio/peerctl/shared/management/events"
	"github.com/netbirdio/peerctl/shared/management/http/api"
	"github.com/netbirdio/peerctl/shared/management/status"
)

const sessionPath = "/session"

// SessionAPI APIs for the login session, do not use directly
type SessionAPI struct {
	c *Client
}

// Get probe the session identified by the stored cookie
func (a *SessionAPI) Get(ctx context.Context) (*api.Session, error) {
	resp, err := a.c.Execute(ctx, http.MethodGet, sessionPath, nil, nil)
	if err != nil {
		return nil, err
	}
	if err := checkResponse(resp, ""); err != nil {
		return nil, err
	}
	ret, err := DecodeJSON[api.Session](resp)
	if err != nil {
		return nil, err
	}
	return &ret, nil
}

// Login create a session with a password. The session cookie is kept by the client.
func (a *SessionAPI) Login(ctx context.Context, password string) error {
	resp, err := a.c.Execute(ctx, http.MethodPost, sessionPath, api.PostSessionJSONRequestBody{Password: password}, nil)
	if err != nil {
		return err
	}
	if err := checkResponse(resp, ""); err != nil {
		return err
	}

	var ack struct {
		Success *bool `json:"success"`
	}
	if len(resp.JSON) > 0 && json.Unmarshal(resp.JSON, &ack) == nil && ack.Success != nil && !*ack.Success {
		return status.NewRequestFailedError(resp.StatusCode, "login rejected")
	}
	return nil
}

// Logout revoke the current session
func (a *SessionAPI) Logout(ctx context.Context) error {
	resp, err := a.c.Execute(ctx, http.MethodDelete, sessionPath, nil, nil)
	if err != nil {
		return err
	}
	return checkResponse(resp, "")
}

// Session is the locally known authentication state
type Session struct {
	Authenticated bool
	// ExpiresAt is a local estimate, nil when no expiry is tracked
	ExpiresAt *time.Time
}

// Valid reports whether the session is authenticated and not expired at now
func (s Session) Valid(now time.Time) bool {
	if !s.Authenticated {
		return false
	}
	return s.ExpiresAt == nil || !now.After(*s.ExpiresAt)
}

// SessionManager keeps the client logged in
type SessionManager struct {
	api      *SessionAPI
	client   *Client
	notifier *events.Notifier
	password string
	ttl      time.Duration
	now      func() time.Time

	// loginMu serializes probe and login
	loginMu sync.Mutex

	mu      sync.RWMutex
	session Session
}

// NewSessionManager creates a SessionManager. An empty password means the manager can only adopt
// an already authenticated session. ttl > 0 makes a session expire locally after that duration.
// notifier may be nil.
func NewSessionManager(c *Client, notifier *events.Notifier, password string, ttl time.Duration) *SessionManager {
	return &SessionManager{
		api:      c.Session,
		client:   c,
		notifier: notifier,
		password: password,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Session returns a copy of the current state
func (m *SessionManager) Session() Session {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s := m.session
	if s.ExpiresAt != nil {
		exp := *s.ExpiresAt
		s.ExpiresAt = &exp
	}
	return s
}

// EnsureAuthenticated returns without network when the local session is valid. Otherwise it
// probes the service and logs in with the configured password if needed.
func (m *SessionManager) EnsureAuthenticated(ctx context.Context) error {
	if m.Session().Valid(m.now()) {
		return nil
	}

	m.loginMu.Lock()
	defer m.loginMu.Unlock()

	if m.Session().Valid(m.now()) {
		return nil
	}

	remote, err := m.api.Get(ctx)
	switch {
	case err == nil:
		if remote.Authenticated || !remote.RequiresPassword {
			log.WithContext(ctx).Debugf("adopting session reported by the service")
			m.setAuthenticated()
			return nil
		}
	case errors.Is(err, status.ErrUnauthorized), errors.Is(err, status.ErrRequestFailed):
		log.WithContext(ctx).Debugf("session probe answered unauthenticated: %v", err)
	default:
		return err
	}

	if m.password == "" {
		return status.NewNoCredentialError()
	}

	if err := m.api.Login(ctx, m.password); err != nil {
		if errors.Is(err, status.ErrUnauthorized) || errors.Is(err, status.ErrRequestFailed) {
			log.WithContext(ctx).Warnf("login rejected: %v", err)
			return status.NewInvalidPasswordError()
		}
		return err
	}

	m.setAuthenticated()
	log.WithContext(ctx).Infof("logged in to %s", m.client.BaseURL())
	m.notifier.Emit(events.SessionLogin, nil)
	return nil
}

// Logout revokes the remote session and forgets the local one. Calling it again is harmless.
// A failing remote call is logged only; the local state is cleared regardless.
func (m *SessionManager) Logout(ctx context.Context) error {
	m.loginMu.Lock()
	defer m.loginMu.Unlock()

	if err := m.api.Logout(ctx); err != nil {
		if ctx.Err() != nil {
			m.clear()
			return ctx.Err()
		}
		log.WithContext(ctx).Warnf("failed to revoke remote session: %v", err)
	}

	m.clear()
	log.WithContext(ctx).Infof("logged out from %s", m.client.BaseURL())
	m.notifier.Emit(events.SessionLogout, nil)
	return nil
}

// Invalidate forgets the local session, e.g. after the service answered 401.
// The next EnsureAuthenticated probes the service again.
func (m *SessionManager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = Session{}
}

func (m *SessionManager) setAuthenticated() {
	s := Session{Authenticated: true}
	if m.ttl > 0 {
		exp := m.now().Add(m.ttl)
		s.ExpiresAt = &exp
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = s
}

func (m *SessionManager) clear() {
	m.client.ClearCookies()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = Session{}
}
