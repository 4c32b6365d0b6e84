package provider

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testTenant() Tenant {
	return Tenant{Label: "acme", ClientID: "client-1", ClientSecret: "shh"}
}

func newTokenServer(t *testing.T, hits *atomic.Int32, body string, status int) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostFormValue("grant_type"))
		assert.Equal(t, "client-1", r.PostFormValue("client_id"))
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
}

func TestGetCachesUntilExpiryMargin(t *testing.T) {
	var hits atomic.Int32
	srv := newTokenServer(t, &hits, `{"access_token":"tok-a","expires_in":3600}`, http.StatusOK)
	defer srv.Close()

	tc := NewTokenCache(srv.URL, zap.NewNop())

	tok, err := tc.Get(context.Background(), testTenant())
	require.NoError(t, err)
	assert.Equal(t, "tok-a", tok)
	assert.Equal(t, int32(1), hits.Load())

	// Second call inside the validity window: no network activity.
	tok, err = tc.Get(context.Background(), testTenant())
	require.NoError(t, err)
	assert.Equal(t, "tok-a", tok)
	assert.Equal(t, int32(1), hits.Load())

	// Move the clock to within the 10s margin of expiry: refresh happens.
	base := time.Now()
	tc.now = func() time.Time { return base.Add(3595 * time.Second) }
	_, err = tc.Get(context.Background(), testTenant())
	require.NoError(t, err)
	assert.Equal(t, int32(2), hits.Load())
}

func TestGetDefaultsExpiryWhenUnspecified(t *testing.T) {
	var hits atomic.Int32
	srv := newTokenServer(t, &hits, `{"access_token":"tok-b"}`, http.StatusOK)
	defer srv.Close()

	tc := NewTokenCache(srv.URL, zap.NewNop())
	_, err := tc.Get(context.Background(), testTenant())
	require.NoError(t, err)

	// 30 minutes in, the default 3600s TTL still covers the token.
	base := time.Now()
	tc.now = func() time.Time { return base.Add(30 * time.Minute) }
	_, err = tc.Get(context.Background(), testTenant())
	require.NoError(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestGetSingleFlightUnderConcurrency(t *testing.T) {
	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release // hold every waiter on one in-flight fetch
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-c","expires_in":60}`))
	}))
	defer srv.Close()

	tc := NewTokenCache(srv.URL, zap.NewNop())

	const callers = 16
	var wg sync.WaitGroup
	tokens := make([]string, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i], errs[i] = tc.Get(context.Background(), testTenant())
		}(i)
	}
	time.Sleep(50 * time.Millisecond) // let callers pile up
	close(release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Equal(t, "tok-c", tokens[i])
	}
	assert.Equal(t, int32(1), hits.Load(), "exactly one outbound token request")
}

func TestGetAuthErrorClearsInflightMarker(t *testing.T) {
	var hits atomic.Int32
	fail := atomic.Bool{}
	fail.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		if fail.Load() {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"bad credentials"}`))
			return
		}
		_, _ = w.Write([]byte(`{"access_token":"tok-d","expires_in":60}`))
	}))
	defer srv.Close()

	tc := NewTokenCache(srv.URL, zap.NewNop())

	_, err := tc.Get(context.Background(), testTenant())
	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.Status)
	assert.Contains(t, authErr.Body, "bad credentials")

	// A later call retries fresh and succeeds.
	fail.Store(false)
	tok, err := tc.Get(context.Background(), testTenant())
	require.NoError(t, err)
	assert.Equal(t, "tok-d", tok)
}
