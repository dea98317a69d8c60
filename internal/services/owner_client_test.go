package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newAccountServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/accounts/alice", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"owner-1","name":"alice"}`))
	})
	mux.HandleFunc("/accounts/legacy", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"_id":"owner-2","name":"legacy"}`))
	})
	mux.HandleFunc("/accounts/garbled", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":`))
	})
	mux.HandleFunc("/accounts/slow", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})
	mux.HandleFunc("/accounts/_id/owner-1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"owner-1","name":"alice"}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestHTTPOwnerResolver_ResolveID(t *testing.T) {
	server := newAccountServer(t)
	resolver := NewHTTPOwnerResolver(server.URL+"/", 50*time.Millisecond)
	ctx := context.Background()

	id, err := resolver.ResolveID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "owner-1", id)

	id, err = resolver.ResolveID(ctx, "legacy")
	require.NoError(t, err)
	assert.Equal(t, "owner-2", id)

	_, err = resolver.ResolveID(ctx, "nobody")
	assert.ErrorIs(t, err, ErrOwnerNotFound)

	_, err = resolver.ResolveID(ctx, "garbled")
	assert.ErrorIs(t, err, ErrServiceUnavailable)

	_, err = resolver.ResolveID(ctx, "slow")
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestHTTPOwnerResolver_ResolveName(t *testing.T) {
	server := newAccountServer(t)
	resolver := NewHTTPOwnerResolver(server.URL, time.Second)

	name, err := resolver.ResolveName(context.Background(), "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", name)

	_, err = resolver.ResolveName(context.Background(), "owner-9")
	assert.ErrorIs(t, err, ErrOwnerIDNotFound)
}

func TestHTTPOwnerResolver_Unreachable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	resolver := NewHTTPOwnerResolver(url, time.Second)
	_, err := resolver.ResolveID(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrServiceUnavailable)
	_, err = resolver.ResolveName(context.Background(), "owner-1")
	assert.ErrorIs(t, err, ErrServiceUnavailable)
}

func TestCachedOwnerResolver(t *testing.T) {
	next := new(MockOwnerResolver)
	next.On("ResolveID", context.Background(), "alice").Return("owner-1", nil).Once()
	next.On("ResolveID", context.Background(), "flaky").Return("", ErrServiceUnavailable).Twice()

	cached := NewCachedOwnerResolver(next, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		id, err := cached.ResolveID(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, "owner-1", id)
	}

	// a forward lookup also answers the reverse direction
	name, err := cached.ResolveName(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, "alice", name)

	for i := 0; i < 2; i++ {
		_, err := cached.ResolveID(ctx, "flaky")
		assert.ErrorIs(t, err, ErrServiceUnavailable)
	}
	next.AssertExpectations(t)
}
