package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netbirdio/peerctl/shared/management/http/api"
	"github.com/netbirdio/peerctl/shared/management/http/util"
	"github.com/netbirdio/peerctl/shared/management/status"
)

var testPeer = api.Peer{
	Id:        "Test",
	Name:      "laptop",
	Enabled:   true,
	Address:   "10.8.0.2/32",
	PublicKey: "k3Xz1c3Q2b8mM2N7f6o0nM6yP6R0n2bT1oY4o0lN0lE=",
	CreatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	UpdatedAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
}

func TestPeers_List_200(t *testing.T) {
	withMockClient(t, nil, func(c *Client, mux *http.ServeMux) {
		mux.HandleFunc("/peer-collection", func(w http.ResponseWriter, r *http.Request) {
			util.WriteJSONObject(r.Context(), w, []api.Peer{testPeer})
		})
		ret, err := c.Peers.List(context.Background())
		require.NoError(t, err)
		assert.Len(t, ret, 1)
		assert.Equal(t, testPeer, ret[0])
	})
}

func TestPeers_List_Err(t *testing.T) {
	withMockClient(t, nil, func(c *Client, mux *http.ServeMux) {
		mux.HandleFunc("/peer-collection", func(w http.ResponseWriter, r *http.Request) {
			util.WriteErrorResponse("No", http.StatusBadRequest, w)
		})
		ret, err := c.Peers.List(context.Background())
		assert.Error(t, err)
		assert.Equal(t, "No", err.Error())
		assert.True(t, errors.Is(err, status.ErrRequestFailed))
		assert.Empty(t, ret)
	})
}

func TestPeers_Create_WithoutIdentity(t *testing.T) {
	withMockClient(t, nil, func(c *Client, mux *http.ServeMux) {
		mux.HandleFunc("/peer-collection", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			var req api.PostPeerCollectionJSONRequestBody
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "dev-1", req.Name)
			util.WriteJSONObject(r.Context(), w, api.SuccessResponse{Success: true})
		})
		ret, err := c.Peers.Create(context.Background(), api.PostPeerCollectionJSONRequestBody{Name: "dev-1"})
		require.NoError(t, err)
		assert.Nil(t, ret)
	})
}

func TestPeers_Create_WithIdentity(t *testing.T) {
	withMockClient(t, nil, func(c *Client, mux *http.ServeMux) {
		mux.HandleFunc("/peer-collection", func(w http.ResponseWriter, r *http.Request) {
			util.WriteJSONObject(r.Context(), w, map[string]api.Peer{"peer": testPeer})
		})
		ret, err := c.Peers.Create(context.Background(), api.PostPeerCollectionJSONRequestBody{Name: "laptop"})
		require.NoError(t, err)
		require.NotNil(t, ret)
		assert.Equal(t, testPeer, *ret)
	})
}

func TestPeers_Delete(t *testing.T) {
	withMockClient(t, nil, func(c *Client, mux *http.ServeMux) {
		mux.HandleFunc("/peer-collection/Test", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodDelete, r.Method)
			util.WriteJSONObject(r.Context(), w, api.SuccessResponse{Success: true})
		})
		mux.HandleFunc("/peer-collection/Missing", func(w http.ResponseWriter, r *http.Request) {
			util.WriteErrorResponse("peer not found", http.StatusNotFound, w)
		})

		require.NoError(t, c.Peers.Delete(context.Background(), "Test"))

		err := c.Peers.Delete(context.Background(), "Missing")
		assert.True(t, errors.Is(err, status.ErrNotFound))
		s, _ := status.FromError(err)
		assert.Equal(t, "Missing", s.ID)
	})
}

func TestPeers_Mutations(t *testing.T) {
	renamed := testPeer
	renamed.Name = "desktop"

	withMockClient(t, nil, func(c *Client, mux *http.ServeMux) {
		mux.HandleFunc("/peer-collection/Test/name", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPut, r.Method)
			var req api.PutPeerNameJSONRequestBody
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "desktop", req.Name)
			util.WriteJSONObject(r.Context(), w, renamed)
		})
		mux.HandleFunc("/peer-collection/Test/address", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPut, r.Method)
			w.WriteHeader(http.StatusNoContent)
		})
		mux.HandleFunc("/peer-collection/Test/enable", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, http.MethodPost, r.Method)
			util.WriteJSONObject(r.Context(), w, api.SuccessResponse{Success: true})
		})
		mux.HandleFunc("/peer-collection/Test/disable", func(w http.ResponseWriter, r *http.Request) {
			util.WriteErrorResponse("peer not found", http.StatusNotFound, w)
		})

		ret, err := c.Peers.Rename(context.Background(), "Test", api.PutPeerNameJSONRequestBody{Name: "desktop"})
		require.NoError(t, err)
		require.NotNil(t, ret)
		assert.Equal(t, "desktop", ret.Name)

		ret, err = c.Peers.UpdateAddress(context.Background(), "Test", api.PutPeerAddressJSONRequestBody{Address: "10.8.0.3"})
		require.NoError(t, err)
		assert.Nil(t, ret)

		ret, err = c.Peers.Enable(context.Background(), "Test")
		require.NoError(t, err)
		assert.Nil(t, ret)

		_, err = c.Peers.Disable(context.Background(), "Test")
		assert.True(t, errors.Is(err, status.ErrNotFound))
	})
}

func TestPeers_Configuration(t *testing.T) {
	withMockClient(t, nil, func(c *Client, mux *http.ServeMux) {
		mux.HandleFunc("/peer-collection/Test/configuration", func(w http.ResponseWriter, r *http.Request) {
			util.WriteText(w, "[Interface]\nAddress = 10.8.0.2/32\n")
		})
		mux.HandleFunc("/peer-collection/Empty/configuration", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})

		ret, err := c.Peers.Configuration(context.Background(), "Test")
		require.NoError(t, err)
		assert.Equal(t, "[Interface]\nAddress = 10.8.0.2/32\n", ret)

		_, err = c.Peers.Configuration(context.Background(), "Empty")
		assert.Error(t, err)
	})
}

func TestPeers_PathEscaping(t *testing.T) {
	withMockClient(t, nil, func(c *Client, mux *http.ServeMux) {
		mux.HandleFunc("/peer-collection/", func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/peer-collection/a%20b", r.URL.EscapedPath())
			util.WriteJSONObject(r.Context(), w, api.SuccessResponse{Success: true})
		})
		require.NoError(t, c.Peers.Delete(context.Background(), "a b"))
	})
}
