package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/netbirdio/peerctl/shared/management/http/api"
	"github.com/netbirdio/peerctl/shared/management/status"
)

const peerCollectionPath = "/peer-collection"

// PeersAPI APIs for the peer collection, do not use directly
type PeersAPI struct {
	c *Client
}

func peerPath(peerID string, suffix string) string {
	return peerCollectionPath + "/" + url.PathEscape(peerID) + suffix
}

// List list all peers
func (a *PeersAPI) List(ctx context.Context) ([]api.Peer, error) {
	resp, err := a.c.Execute(ctx, http.MethodGet, peerCollectionPath, nil, nil)
	if err != nil {
		return nil, err
	}
	if err := checkResponse(resp, ""); err != nil {
		return nil, err
	}
	if len(resp.JSON) == 0 {
		return []api.Peer{}, nil
	}
	return DecodeJSON[[]api.Peer](resp)
}

// Create create a new peer.
// The service does not always answer with the created peer; the returned peer is nil then.
func (a *PeersAPI) Create(ctx context.Context, request api.PostPeerCollectionJSONRequestBody) (*api.Peer, error) {
	resp, err := a.c.Execute(ctx, http.MethodPost, peerCollectionPath, request, nil)
	if err != nil {
		return nil, err
	}
	if err := checkResponse(resp, ""); err != nil {
		return nil, err
	}
	return optionalPeer(resp), nil
}

// Delete delete a peer
func (a *PeersAPI) Delete(ctx context.Context, peerID string) error {
	resp, err := a.c.Execute(ctx, http.MethodDelete, peerPath(peerID, ""), nil, nil)
	if err != nil {
		return err
	}
	return checkResponse(resp, peerID)
}

// Rename update the name of a peer
func (a *PeersAPI) Rename(ctx context.Context, peerID string, request api.PutPeerNameJSONRequestBody) (*api.Peer, error) {
	return a.update(ctx, http.MethodPut, peerPath(peerID, "/name"), peerID, request)
}

// UpdateAddress update the tunnel address of a peer
func (a *PeersAPI) UpdateAddress(ctx context.Context, peerID string, request api.PutPeerAddressJSONRequestBody) (*api.Peer, error) {
	return a.update(ctx, http.MethodPut, peerPath(peerID, "/address"), peerID, request)
}

// Enable allow a peer to connect
func (a *PeersAPI) Enable(ctx context.Context, peerID string) (*api.Peer, error) {
	return a.update(ctx, http.MethodPost, peerPath(peerID, "/enable"), peerID, nil)
}

// Disable block a peer
func (a *PeersAPI) Disable(ctx context.Context, peerID string) (*api.Peer, error) {
	return a.update(ctx, http.MethodPost, peerPath(peerID, "/disable"), peerID, nil)
}

// Configuration get the WireGuard configuration export of a peer
func (a *PeersAPI) Configuration(ctx context.Context, peerID string) (string, error) {
	resp, err := a.c.Execute(ctx, http.MethodGet, peerPath(peerID, "/configuration"), nil, nil)
	if err != nil {
		return "", err
	}
	if err := checkResponse(resp, peerID); err != nil {
		return "", err
	}
	if resp.Text == "" {
		return "", status.Errorf(status.RequestFailed, "empty configuration received for peer %s", peerID)
	}
	return resp.Text, nil
}

func (a *PeersAPI) update(ctx context.Context, method, path, peerID string, body any) (*api.Peer, error) {
	resp, err := a.c.Execute(ctx, method, path, body, nil)
	if err != nil {
		return nil, err
	}
	if err := checkResponse(resp, peerID); err != nil {
		return nil, err
	}
	return optionalPeer(resp), nil
}

// checkResponse turns a non-2xx answer into an error. A 404 for a peer path becomes NotFound.
func checkResponse(resp *Response, peerID string) error {
	if resp.OK {
		return nil
	}
	if resp.StatusCode == http.StatusNotFound && peerID != "" {
		return status.NewPeerNotFoundError(peerID)
	}
	return status.NewRequestFailedError(resp.StatusCode, resp.ErrorMessage())
}

// optionalPeer returns the peer carried by the answer, if it carries one with an id.
// Both a bare peer object and {"peer": {...}} are accepted.
func optionalPeer(resp *Response) *api.Peer {
	if len(resp.JSON) == 0 {
		return nil
	}

	var peer api.Peer
	if err := json.Unmarshal(resp.JSON, &peer); err == nil && peer.Id != "" {
		return &peer
	}

	var wrapped struct {
		Peer *api.Peer `json:"peer"`
	}
	if err := json.Unmarshal(resp.JSON, &wrapped); err == nil && wrapped.Peer != nil && wrapped.Peer.Id != "" {
		return wrapped.Peer
	}
	return nil
}
