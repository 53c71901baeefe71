package remote_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dejobratic/orderflow/internal/orders/adapters/remote"
	"github.com/dejobratic/orderflow/internal/orders/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/users/user-1", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer svc-token", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"id":"user-1","name":"Ana","email":"ana@example.com","permissions":["orders"],"enabled":true}`))
	})
	mux.HandleFunc("/users/admin-1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"admin-1","name":"Root","email":"root@example.com","permissions":["admin"],"enabled":true}`))
	})
	mux.HandleFunc("/users/disabled", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"disabled","enabled":false}`))
	})
	mux.HandleFunc("/users/broken", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	mux.HandleFunc("/products/p-1", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"id":"p-1","title":"Ceramic mug","price":"49.90","image_url":"https://img.example.com/mug.png"}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestAccountDirectory(t *testing.T) {
	server := newServer(t)
	directory := remote.NewAccountDirectory(server.URL, "svc-token", time.Second)
	ctx := context.Background()

	account, err := directory.Lookup(ctx, "user-1")
	require.NoError(t, err)
	assert.Equal(t, "ana@example.com", account.Email)
	assert.Equal(t, "customer", account.Role)

	admin, err := directory.Lookup(ctx, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, "admin", admin.Role)

	_, err = directory.Lookup(ctx, "missing")
	assert.ErrorIs(t, err, ports.ErrAccountNotFound)

	_, err = directory.Lookup(ctx, "disabled")
	assert.ErrorIs(t, err, ports.ErrAccountNotFound)

	_, err = directory.Lookup(ctx, "broken")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ports.ErrAccountNotFound)
}

func TestCatalog(t *testing.T) {
	server := newServer(t)
	catalog := remote.NewCatalog(server.URL, "", time.Second)

	product, err := catalog.Lookup(context.Background(), "p-1")
	require.NoError(t, err)
	assert.Equal(t, "Ceramic mug", product.Title)
	assert.Equal(t, int64(4990), product.UnitPriceCents)
	assert.Equal(t, "https://img.example.com/mug.png", product.ImageRef)

	_, err = catalog.Lookup(context.Background(), "p-404")
	assert.ErrorIs(t, err, ports.ErrProductNotFound)
}
