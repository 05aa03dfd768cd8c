package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, breaker bool) *Client {
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(Options{
		BaseURL:            srv.URL,
		Timeout:            2 * time.Second,
		BreakerEnabled:     breaker,
		BreakerMaxFailures: 2,
		BreakerOpenFor:     time.Minute,
	})
}

func TestDo_DecodesJSONAndSendsHeaders(t *testing.T) {
	var gotIdentity, gotAuth string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotIdentity = r.Header.Get(IdentityHeader)
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"items":[]}`))
	}, false)

	var out struct {
		Items []any `json:"items"`
	}
	err := c.Do(context.Background(), http.MethodGet, "/cart", nil, &out,
		WithIdentity("anon-1"), WithBearer("tok"))
	require.NoError(t, err)
	assert.Equal(t, "anon-1", gotIdentity)
	assert.Equal(t, "Bearer tok", gotAuth)
	assert.NotNil(t, out.Items)
}

func TestDo_MapsStatusCodes(t *testing.T) {
	tests := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrUnauthorized},
		{http.StatusNotFound, ErrNotFound},
		{http.StatusServiceUnavailable, ErrUnavailable},
	}
	for _, tc := range tests {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}, false)
		err := c.Do(context.Background(), http.MethodGet, "/orders/user", nil, nil)
		assert.ErrorIs(t, err, tc.want, "status %d", tc.status)
	}
}

func TestDo_DecodesErrorEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"quantity must be positive","code":"invalid_quantity"}`))
	}, false)

	err := c.Do(context.Background(), http.MethodPost, "/cart/add", map[string]int{"quantity": -1}, nil)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "invalid_quantity", apiErr.Code)
	assert.Equal(t, "quantity must be positive", apiErr.Message)
}

func TestDo_BreakerOpensAfterConsecutiveTransportFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // every call is now a connection failure

	c := NewClient(Options{
		BaseURL:            srv.URL,
		Timeout:            time.Second,
		BreakerEnabled:     true,
		BreakerMaxFailures: 2,
		BreakerOpenFor:     time.Minute,
	})

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		require.Error(t, c.Do(ctx, http.MethodGet, "/cart", nil, nil))
	}

	err := c.Do(ctx, http.MethodGet, "/cart", nil, nil)
	assert.ErrorIs(t, err, ErrUnavailable)
}
