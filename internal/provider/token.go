package provider

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/velosim/sim-fleet-console/internal/retry"
)

// expiryMargin is how close to expiry a cached token may be before it is
// treated as stale and refreshed.
const expiryMargin = 10 * time.Second

// defaultTokenTTL is assumed when the token endpoint omits expires_in.
const defaultTokenTTL = 3600 * time.Second

type cachedToken struct {
	token     string
	expiresAt time.Time
}

func (t cachedToken) valid(now time.Time) bool {
	return t.token != "" && now.Add(expiryMargin).Before(t.expiresAt)
}

// inflight represents one token fetch shared by every concurrent caller
// for the same tenant.  done is closed when token/err are populated.
type inflight struct {
	done  chan struct{}
	token string
	err   error
}

// TokenCache acquires OAuth client-credentials tokens per tenant and
// caches them until shortly before expiry.  Concurrent callers for the
// same client id share a single outbound request per refresh cycle.
type TokenCache struct {
	mu      sync.Mutex
	tokens  map[string]cachedToken
	pending map[string]*inflight

	http     *resty.Client
	tokenURL string
	logger   *zap.Logger
	now      func() time.Time // overridable for tests
}

// NewTokenCache builds a cache fetching from the given token endpoint.
func NewTokenCache(tokenURL string, logger *zap.Logger) *TokenCache {
	return &TokenCache{
		tokens:  make(map[string]cachedToken),
		pending: make(map[string]*inflight),
		http: resty.New().
			SetTimeout(20 * time.Second).
			SetHeader("Accept", "application/json"),
		tokenURL: tokenURL,
		logger:   logger,
		now:      time.Now,
	}
}

// Get returns a bearer token for the tenant.  Cache hits return without
// network activity; a miss with a fetch already in flight awaits that
// fetch instead of issuing a duplicate request.
func (tc *TokenCache) Get(ctx context.Context, tenant Tenant) (string, error) {
	tc.mu.Lock()
	if cached, ok := tc.tokens[tenant.ClientID]; ok && cached.valid(tc.now()) {
		tc.mu.Unlock()
		return cached.token, nil
	}
	if p, ok := tc.pending[tenant.ClientID]; ok {
		tc.mu.Unlock()
		select {
		case <-p.done:
			return p.token, p.err
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	p := &inflight{done: make(chan struct{})}
	tc.pending[tenant.ClientID] = p
	tc.mu.Unlock()

	token, expiresAt, err := tc.fetch(ctx, tenant)

	tc.mu.Lock()
	// Clear the marker either way so a later call can retry fresh.
	delete(tc.pending, tenant.ClientID)
	if err == nil {
		tc.tokens[tenant.ClientID] = cachedToken{token: token, expiresAt: expiresAt}
	}
	tc.mu.Unlock()

	p.token, p.err = token, err
	close(p.done)
	return token, err
}

// Invalidate drops the cached token for a client id, forcing the next
// Get to fetch.  Used when the provider rejects a token mid-flight.
func (tc *TokenCache) Invalidate(clientID string) {
	tc.mu.Lock()
	delete(tc.tokens, clientID)
	tc.mu.Unlock()
}

func (tc *TokenCache) fetch(ctx context.Context, tenant Tenant) (string, time.Time, error) {
	form := map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     tenant.ClientID,
		"client_secret": tenant.ClientSecret,
	}
	if tenant.Scope != "" {
		form["scope"] = tenant.Scope
	}
	if tenant.Audience != "" {
		form["audience"] = tenant.Audience
	}

	var body struct {
		AccessToken string          `json:"access_token"`
		ExpiresIn   json.RawMessage `json:"expires_in"`
	}

	resp, err := retry.Value(ctx, retry.DefaultRetries, retry.DefaultBaseDelay, func() (*resty.Response, error) {
		return tc.http.R().
			SetContext(ctx).
			SetFormData(form).
			SetResult(&body).
			Post(tc.tokenURL)
	})
	if err != nil {
		tc.logger.Warn("token request failed",
			zap.String("client_id", tenant.ClientID),
			zap.Error(err))
		return "", time.Time{}, &AuthError{ClientID: tenant.ClientID, Err: err}
	}
	if resp.IsError() {
		tc.logger.Warn("token endpoint rejected credentials",
			zap.String("client_id", tenant.ClientID),
			zap.Int("status", resp.StatusCode()))
		return "", time.Time{}, &AuthError{
			ClientID: tenant.ClientID,
			Status:   resp.StatusCode(),
			Body:     errorBody(resp.Body()),
		}
	}
	if body.AccessToken == "" {
		return "", time.Time{}, &AuthError{
			ClientID: tenant.ClientID,
			Status:   resp.StatusCode(),
			Body:     "token endpoint returned no access_token",
		}
	}

	ttl := parseExpiresIn(body.ExpiresIn)
	return body.AccessToken, tc.now().Add(ttl), nil
}

// parseExpiresIn accepts both numeric and string expires_in values and
// falls back to the default TTL when absent or unparseable.
func parseExpiresIn(raw json.RawMessage) time.Duration {
	if len(raw) == 0 {
		return defaultTokenTTL
	}
	s := strings.Trim(string(raw), `"`)
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	return defaultTokenTTL
}
