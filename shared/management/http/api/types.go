// Package api holds the JSON shapes exchanged with the WireGuard management service.
package api

import "time"

// Peer is a VPN client as served by GET /peer-collection
type Peer struct {
	// Id opaque unique identifier of the peer
	Id string `json:"id"`

	// Name display name of the peer
	Name string `json:"name"`

	// Enabled tells whether the peer may connect
	Enabled bool `json:"enabled"`

	// Address tunnel address assigned to the peer
	Address string `json:"address"`

	// PublicKey WireGuard public key of the peer, base64
	PublicKey string `json:"publicKey"`

	// CreatedAt creation time of the peer
	CreatedAt time.Time `json:"createdAt"`

	// UpdatedAt last modification time of the peer
	UpdatedAt time.Time `json:"updatedAt"`

	// PersistentKeepalive keepalive interval in seconds, 0 disables it
	PersistentKeepalive int `json:"persistentKeepalive"`

	// LatestHandshakeAt time of the last handshake, nil if the peer never connected
	LatestHandshakeAt *time.Time `json:"latestHandshakeAt"`

	// TransferRx bytes received from the peer
	TransferRx uint64 `json:"transferRx"`

	// TransferTx bytes sent to the peer
	TransferTx uint64 `json:"transferTx"`
}

// Session is the answer of GET /session
type Session struct {
	// Authenticated tells whether the cookie presented identifies a valid session
	Authenticated bool `json:"authenticated"`

	// RequiresPassword is false when the service runs without authentication
	RequiresPassword bool `json:"requiresPassword"`
}

// PostSessionJSONRequestBody defines body for POST /session
type PostSessionJSONRequestBody struct {
	Password string `json:"password"`
}

// PostPeerCollectionJSONRequestBody defines body for POST /peer-collection
type PostPeerCollectionJSONRequestBody struct {
	Name string `json:"name"`
}

// PutPeerNameJSONRequestBody defines body for PUT /peer-collection/{id}/name
type PutPeerNameJSONRequestBody struct {
	Name string `json:"name"`
}

// PutPeerAddressJSONRequestBody defines body for PUT /peer-collection/{id}/address
type PutPeerAddressJSONRequestBody struct {
	Address string `json:"address"`
}

// SuccessResponse is the acknowledgement returned by mutating endpoints that carry no record
type SuccessResponse struct {
	Success bool `json:"success"`
}
