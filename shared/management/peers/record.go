package peers

import (
	"time"

	"github.com/netbirdio/peerctl/shared/management/http/api"
)

// OnlineWindow is the freshness window used to derive the online state from the last handshake
const OnlineWindow = 3 * time.Minute

// Record is an immutable view of one VPN peer. Records are passed by value; the
// With* methods return modified copies and never touch the receiver.
type Record struct {
	ID                  string
	Name                string
	Enabled             bool
	Address             string
	PublicKey           string
	CreatedAt           time.Time
	UpdatedAt           time.Time
	PersistentKeepalive int
	LatestHandshakeAt   *time.Time
	TransferRx          uint64
	TransferTx          uint64
}

// FromAPI converts the wire representation of a peer
func FromAPI(p api.Peer) Record {
	r := Record{
		ID:                  p.Id,
		Name:                p.Name,
		Enabled:             p.Enabled,
		Address:             p.Address,
		PublicKey:           p.PublicKey,
		CreatedAt:           p.CreatedAt,
		UpdatedAt:           p.UpdatedAt,
		PersistentKeepalive: p.PersistentKeepalive,
		TransferRx:          p.TransferRx,
		TransferTx:          p.TransferTx,
	}
	if p.LatestHandshakeAt != nil {
		hs := *p.LatestHandshakeAt
		r.LatestHandshakeAt = &hs
	}
	return r
}

// ToAPI converts the record back to its wire representation
func (r Record) ToAPI() api.Peer {
	p := api.Peer{
		Id:                  r.ID,
		Name:                r.Name,
		Enabled:             r.Enabled,
		Address:             r.Address,
		PublicKey:           r.PublicKey,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
		PersistentKeepalive: r.PersistentKeepalive,
		TransferRx:          r.TransferRx,
		TransferTx:          r.TransferTx,
	}
	if r.LatestHandshakeAt != nil {
		hs := *r.LatestHandshakeAt
		p.LatestHandshakeAt = &hs
	}
	return p
}

// IsOnline reports whether the last handshake happened within OnlineWindow before now
func (r Record) IsOnline(now time.Time) bool {
	if r.LatestHandshakeAt == nil {
		return false
	}
	return now.Sub(*r.LatestHandshakeAt) < OnlineWindow
}

// TransferTotal returns received plus sent bytes
func (r Record) TransferTotal() uint64 {
	return r.TransferRx + r.TransferTx
}

// WithName returns a copy of the record with a new name
func (r Record) WithName(name string, at time.Time) Record {
	c := r.clone()
	c.Name = name
	c.UpdatedAt = at
	return c
}

// WithAddress returns a copy of the record with a new address
func (r Record) WithAddress(address string, at time.Time) Record {
	c := r.clone()
	c.Address = address
	c.UpdatedAt = at
	return c
}

// WithEnabled returns a copy of the record with the enabled flag set
func (r Record) WithEnabled(enabled bool, at time.Time) Record {
	c := r.clone()
	c.Enabled = enabled
	c.UpdatedAt = at
	return c
}

// clone copies the record including the handshake pointer target
func (r Record) clone() Record {
	c := r
	if r.LatestHandshakeAt != nil {
		hs := *r.LatestHandshakeAt
		c.LatestHandshakeAt = &hs
	}
	return c
}
