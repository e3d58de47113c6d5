package client

import (
	"context"

	"github.com/netbirdio/peerctl/shared/management/peers"
)

type MockClient struct {
	CloseFunc             func() error
	LoginFunc             func(ctx context.Context) error
	LogoutFunc            func(ctx context.Context) error
	PeersFunc             func(ctx context.Context, forceRefresh bool) (*peers.Snapshot, error)
	QueryFunc             func(ctx context.Context) (*peers.Collection, error)
	PeerFunc              func(ctx context.Context, ref string) (peers.Record, error)
	CreatePeerFunc        func(ctx context.Context, name string) (peers.Record, error)
	DeletePeerFunc        func(ctx context.Context, peerID string) error
	RenamePeerFunc        func(ctx context.Context, peerID, name string) (peers.Record, error)
	UpdatePeerAddressFunc func(ctx context.Context, peerID, address string) (peers.Record, error)
	EnablePeerFunc        func(ctx context.Context, peerID string) (peers.Record, error)
	DisablePeerFunc       func(ctx context.Context, peerID string) (peers.Record, error)
	PeerConfigurationFunc func(ctx context.Context, peerID string) (string, error)
	PeerQRCodeFunc        func(ctx context.Context, peerID string) ([]byte, error)
}

var _ Client = (*MockClient)(nil)

func (m *MockClient) Close() error {
	if m.CloseFunc == nil {
		return nil
	}
	return m.CloseFunc()
}

func (m *MockClient) Login(ctx context.Context) error {
	if m.LoginFunc == nil {
		return nil
	}
	return m.LoginFunc(ctx)
}

func (m *MockClient) Logout(ctx context.Context) error {
	if m.LogoutFunc == nil {
		return nil
	}
	return m.LogoutFunc(ctx)
}

func (m *MockClient) Peers(ctx context.Context, forceRefresh bool) (*peers.Snapshot, error) {
	if m.PeersFunc == nil {
		return peers.EmptySnapshot(), nil
	}
	return m.PeersFunc(ctx, forceRefresh)
}

func (m *MockClient) Query(ctx context.Context) (*peers.Collection, error) {
	if m.QueryFunc == nil {
		return peers.NewCollection(peers.EmptySnapshot()), nil
	}
	return m.QueryFunc(ctx)
}

func (m *MockClient) Peer(ctx context.Context, ref string) (peers.Record, error) {
	if m.PeerFunc == nil {
		return peers.Record{}, nil
	}
	return m.PeerFunc(ctx, ref)
}

func (m *MockClient) CreatePeer(ctx context.Context, name string) (peers.Record, error) {
	if m.CreatePeerFunc == nil {
		return peers.Record{}, nil
	}
	return m.CreatePeerFunc(ctx, name)
}

func (m *MockClient) DeletePeer(ctx context.Context, peerID string) error {
	if m.DeletePeerFunc == nil {
		return nil
	}
	return m.DeletePeerFunc(ctx, peerID)
}

func (m *MockClient) RenamePeer(ctx context.Context, peerID, name string) (peers.Record, error) {
	if m.RenamePeerFunc == nil {
		return peers.Record{}, nil
	}
	return m.RenamePeerFunc(ctx, peerID, name)
}

func (m *MockClient) UpdatePeerAddress(ctx context.Context, peerID, address string) (peers.Record, error) {
	if m.UpdatePeerAddressFunc == nil {
		return peers.Record{}, nil
	}
	return m.UpdatePeerAddressFunc(ctx, peerID, address)
}

func (m *MockClient) EnablePeer(ctx context.Context, peerID string) (peers.Record, error) {
	if m.EnablePeerFunc == nil {
		return peers.Record{}, nil
	}
	return m.EnablePeerFunc(ctx, peerID)
}

func (m *MockClient) DisablePeer(ctx context.Context, peerID string) (peers.Record, error) {
	if m.DisablePeerFunc == nil {
		return peers.Record{}, nil
	}
	return m.DisablePeerFunc(ctx, peerID)
}

func (m *MockClient) PeerConfiguration(ctx context.Context, peerID string) (string, error) {
	if m.PeerConfigurationFunc == nil {
		return "", nil
	}
	return m.PeerConfigurationFunc(ctx, peerID)
}

func (m *MockClient) PeerQRCode(ctx context.Context, peerID string) ([]byte, error) {
	if m.PeerQRCodeFunc == nil {
		return nil, nil
	}
	return m.PeerQRCodeFunc(ctx, peerID)
}
