package mockserver

import (
	"encoding/json"
	"net/http"
	"net/netip"
	"strings"

	"github.com/gorilla/mux"

	"github.com/netbirdio/peerctl/shared/management/http/api"
	"github.com/netbirdio/peerctl/shared/management/http/util"
	"github.com/netbirdio/peerctl/shared/management/status"
)

// getSession reports whether the request carries a valid session
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	util.WriteJSONObject(r.Context(), w, api.Session{
		Authenticated:    s.authenticated(r),
		RequiresPassword: s.opts.Password != "",
	})
}

// login creates a session for the right password
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req api.PostSessionJSONRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		util.WriteErrorResponse("couldn't parse JSON request", http.StatusBadRequest, w)
		return
	}
	if s.opts.Password != "" && req.Password != s.opts.Password {
		util.WriteError(r.Context(), status.NewInvalidPasswordError(), w)
		return
	}

	s.mu.Lock()
	sessionID := s.newSessionLocked()
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sessionID,
		Path:     "/",
		HttpOnly: true,
	})
	util.WriteJSONObject(r.Context(), w, api.SuccessResponse{Success: true})
}

// logout drops the session of the request
func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	if ck, err := r.Cookie(SessionCookie); err == nil {
		s.mu.Lock()
		delete(s.sessions, ck.Value)
		s.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1})
	util.WriteJSONObject(r.Context(), w, api.SuccessResponse{Success: true})
}

// listPeers returns every peer in creation order
func (s *Server) listPeers(w http.ResponseWriter, r *http.Request) {
	util.WriteJSONObject(r.Context(), w, s.Peers())
}

// createPeer adds a peer. The answer carries no identity unless CreateReturnsPeer is set.
func (s *Server) createPeer(w http.ResponseWriter, r *http.Request) {
	var req api.PostPeerCollectionJSONRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		util.WriteErrorResponse("couldn't parse JSON request", http.StatusBadRequest, w)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		util.WriteError(r.Context(), status.NewValidationError("name", req.Name, "must not be empty"), w)
		return
	}

	s.mu.Lock()
	e, err := s.newPeerLocked(name)
	s.mu.Unlock()
	if err != nil {
		util.WriteError(r.Context(), err, w)
		return
	}

	if s.opts.CreateReturnsPeer {
		util.WriteJSONObject(r.Context(), w, e.peer)
		return
	}
	util.WriteJSONObject(r.Context(), w, api.SuccessResponse{Success: true})
}

// deletePeer removes a peer
func (s *Server) deletePeer(w http.ResponseWriter, r *http.Request) {
	peerID := mux.Vars(r)["peerId"]

	s.mu.Lock()
	found := false
	for i, e := range s.peers {
		if e.peer.Id == peerID {
			s.peers = append(s.peers[:i], s.peers[i+1:]...)
			found = true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		util.WriteError(r.Context(), status.NewPeerNotFoundError(peerID), w)
		return
	}
	util.WriteJSONObject(r.Context(), w, api.SuccessResponse{Success: true})
}

func (s *Server) renamePeer(w http.ResponseWriter, r *http.Request) {
	var req api.PutPeerNameJSONRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		util.WriteErrorResponse("couldn't parse JSON request", http.StatusBadRequest, w)
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		util.WriteError(r.Context(), status.NewValidationError("name", req.Name, "must not be empty"), w)
		return
	}
	s.update(w, r, func(p *api.Peer) error {
		p.Name = name
		return nil
	})
}

func (s *Server) updateAddress(w http.ResponseWriter, r *http.Request) {
	var req api.PutPeerAddressJSONRequestBody
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		util.WriteErrorResponse("couldn't parse JSON request", http.StatusBadRequest, w)
		return
	}
	address := strings.TrimSpace(req.Address)
	if prefix, err := netip.ParsePrefix(address); err == nil {
		address = prefix.Addr().String()
	}
	if _, err := netip.ParseAddr(address); err != nil {
		util.WriteError(r.Context(), status.NewValidationError("address", req.Address, "not an IP address"), w)
		return
	}
	s.update(w, r, func(p *api.Peer) error {
		p.Address = address
		return nil
	})
}

func (s *Server) enablePeer(w http.ResponseWriter, r *http.Request) {
	s.update(w, r, func(p *api.Peer) error {
		p.Enabled = true
		return nil
	})
}

func (s *Server) disablePeer(w http.ResponseWriter, r *http.Request) {
	s.update(w, r, func(p *api.Peer) error {
		p.Enabled = false
		return nil
	})
}

// update applies fn to the peer of the request and answers with the result
func (s *Server) update(w http.ResponseWriter, r *http.Request, fn func(*api.Peer) error) {
	peerID := mux.Vars(r)["peerId"]

	s.mu.Lock()
	e := s.findLocked(peerID)
	if e == nil {
		s.mu.Unlock()
		util.WriteError(r.Context(), status.NewPeerNotFoundError(peerID), w)
		return
	}
	if err := fn(&e.peer); err != nil {
		s.mu.Unlock()
		util.WriteError(r.Context(), err, w)
		return
	}
	e.peer.UpdatedAt = s.now().UTC()
	peer := e.peer
	s.mu.Unlock()

	if s.opts.BareUpdates {
		util.WriteJSONObject(r.Context(), w, api.SuccessResponse{Success: true})
		return
	}
	util.WriteJSONObject(r.Context(), w, peer)
}

// getConfiguration exports the client configuration of a peer as text
func (s *Server) getConfiguration(w http.ResponseWriter, r *http.Request) {
	peerID := mux.Vars(r)["peerId"]

	s.mu.Lock()
	e := s.findLocked(peerID)
	var text string
	if e != nil {
		text = s.renderConfig(e)
	}
	s.mu.Unlock()

	if e == nil {
		util.WriteError(r.Context(), status.NewPeerNotFoundError(peerID), w)
		return
	}
	util.WriteText(w, text)
}
