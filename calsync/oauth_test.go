// ABOUTME: Tests for the OAuth client token lifecycle
// ABOUTME: Verifies exchange, single-flight refresh with persistence, and revoke
package calsync

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
	"golang.org/x/oauth2"

	"github.com/feelgame3025/ilouli-homepage-sub000/errs"
	"github.com/feelgame3025/ilouli-homepage-sub000/models"
)

// tokenEndpoint serves a canned OAuth token response and counts hits.
func tokenEndpoint(t *testing.T, status int, body string, hits *atomic.Int64, delay time.Duration) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		if delay > 0 {
			time.Sleep(delay)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(server.Close)
	return server
}

func newTestOAuthClient(tokenURL string, tokens TokenStore) *OAuthClient {
	client := NewOAuthClient(&Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURL:  "http://localhost:8787/oauth/callback",
	}, tokens)
	client.config.Endpoint = oauth2.Endpoint{
		AuthURL:  tokenURL + "/auth",
		TokenURL: tokenURL + "/token",
	}
	return client
}

const freshTokenBody = `{"access_token":"access-new","token_type":"Bearer","expires_in":3600}`

func TestAuthorizationURLCarriesState(t *testing.T) {
	client := newTestOAuthClient("https://example.com", newMemTokenStore())

	u := client.AuthorizationURL("user-1:nonce")
	assert.Contains(t, u, "state=user-1%3Anonce")
	assert.Contains(t, u, "access_type=offline")
}

func TestExchangeCode(t *testing.T) {
	server := tokenEndpoint(t, http.StatusOK,
		`{"access_token":"access-1","token_type":"Bearer","expires_in":3600,"refresh_token":"refresh-1"}`, nil, 0)
	client := newTestOAuthClient(server.URL, newMemTokenStore())

	rec, err := client.ExchangeCode(context.Background(), "user-1", "good-code")
	require.NoError(t, err)
	assert.Equal(t, "user-1", rec.UserID)
	assert.Equal(t, "access-1", rec.AccessToken)
	assert.Equal(t, "refresh-1", rec.RefreshToken)
	assert.False(t, rec.Expiry.IsZero())
}

func TestExchangeCodeFails(t *testing.T) {
	server := tokenEndpoint(t, http.StatusBadRequest, `{"error":"invalid_grant"}`, nil, 0)
	client := newTestOAuthClient(server.URL, newMemTokenStore())

	_, err := client.ExchangeCode(context.Background(), "user-1", "bad-code")
	assert.ErrorIs(t, err, errs.ErrAuthExchangeFailed)
}

func TestExchangeCodeWithoutRefreshToken(t *testing.T) {
	server := tokenEndpoint(t, http.StatusOK, freshTokenBody, nil, 0)
	client := newTestOAuthClient(server.URL, newMemTokenStore())

	_, err := client.ExchangeCode(context.Background(), "user-1", "good-code")
	assert.ErrorIs(t, err, errs.ErrNoRefreshToken)
}

func TestEnsureFreshReturnsValidTokenUntouched(t *testing.T) {
	var hits atomic.Int64
	server := tokenEndpoint(t, http.StatusOK, freshTokenBody, &hits, 0)
	store := newMemTokenStore()
	client := newTestOAuthClient(server.URL, store)

	rec := &models.TokenRecord{
		UserID:       "user-1",
		AccessToken:  "access-ok",
		RefreshToken: "refresh-1",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
	}

	got, err := client.EnsureFresh(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, "access-ok", got.AccessToken)
	assert.Equal(t, int64(0), hits.Load(), "no network call for a fresh token")
}

func TestEnsureFreshRefreshesAndPersists(t *testing.T) {
	var hits atomic.Int64
	server := tokenEndpoint(t, http.StatusOK, freshTokenBody, &hits, 0)
	store := newMemTokenStore()
	client := newTestOAuthClient(server.URL, store)

	stale := &models.TokenRecord{
		UserID:       "user-1",
		AccessToken:  "access-old",
		RefreshToken: "refresh-1",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(10 * time.Second), // inside the skew window
	}
	require.NoError(t, store.Put(context.Background(), stale))

	got, err := client.EnsureFresh(context.Background(), stale)
	require.NoError(t, err)
	assert.Equal(t, "access-new", got.AccessToken)
	assert.Equal(t, "refresh-1", got.RefreshToken, "refresh token preserved when not rotated")
	assert.Equal(t, int64(1), hits.Load())

	// Persisted before returning: the store already holds the new token.
	persisted, err := store.Get(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Equal(t, "access-new", persisted.AccessToken)
}

func TestEnsureFreshRotatedRefreshToken(t *testing.T) {
	server := tokenEndpoint(t, http.StatusOK,
		`{"access_token":"access-new","token_type":"Bearer","expires_in":3600,"refresh_token":"refresh-2"}`, nil, 0)
	store := newMemTokenStore()
	client := newTestOAuthClient(server.URL, store)

	stale := &models.TokenRecord{
		UserID:       "user-1",
		AccessToken:  "access-old",
		RefreshToken: "refresh-1",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(-time.Minute),
	}
	require.NoError(t, store.Put(context.Background(), stale))

	got, err := client.EnsureFresh(context.Background(), stale)
	require.NoError(t, err)
	assert.Equal(t, "refresh-2", got.RefreshToken)
}

func TestEnsureFreshRejectedRefreshToken(t *testing.T) {
	server := tokenEndpoint(t, http.StatusBadRequest, `{"error":"invalid_grant"}`, nil, 0)
	store := newMemTokenStore()
	client := newTestOAuthClient(server.URL, store)

	stale := &models.TokenRecord{
		UserID:       "user-1",
		AccessToken:  "access-old",
		RefreshToken: "refresh-revoked",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(-time.Minute),
	}
	require.NoError(t, store.Put(context.Background(), stale))

	_, err := client.EnsureFresh(context.Background(), stale)
	assert.ErrorIs(t, err, errs.ErrRefreshFailed)
}

func TestEnsureFreshTransportFailureIsTransient(t *testing.T) {
	server := tokenEndpoint(t, http.StatusOK, freshTokenBody, nil, 0)
	store := newMemTokenStore()
	client := newTestOAuthClient(server.URL, store)
	server.Close()

	stale := &models.TokenRecord{
		UserID:       "user-1",
		AccessToken:  "access-old",
		RefreshToken: "refresh-1",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(-time.Minute),
	}
	require.NoError(t, store.Put(context.Background(), stale))

	_, err := client.EnsureFresh(context.Background(), stale)
	var providerErr *errs.ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.False(t, errs.IsAuthFailure(err), "a network failure must not read as a revoked token")
}

func TestEnsureFreshEndpointOutageIsTransient(t *testing.T) {
	server := tokenEndpoint(t, http.StatusServiceUnavailable, `upstream down`, nil, 0)
	store := newMemTokenStore()
	client := newTestOAuthClient(server.URL, store)

	stale := &models.TokenRecord{
		UserID:       "user-1",
		AccessToken:  "access-old",
		RefreshToken: "refresh-1",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(-time.Minute),
	}
	require.NoError(t, store.Put(context.Background(), stale))

	_, err := client.EnsureFresh(context.Background(), stale)
	var providerErr *errs.ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.Equal(t, http.StatusServiceUnavailable, providerErr.Status)
	assert.False(t, errs.IsAuthFailure(err))
}

func TestEnsureFreshBoundedDeadline(t *testing.T) {
	server := tokenEndpoint(t, http.StatusOK, freshTokenBody, nil, 200*time.Millisecond)
	store := newMemTokenStore()
	client := newTestOAuthClient(server.URL, store)
	client.timeout = 20 * time.Millisecond

	stale := &models.TokenRecord{
		UserID:       "user-1",
		AccessToken:  "access-old",
		RefreshToken: "refresh-1",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(-time.Minute),
	}
	require.NoError(t, store.Put(context.Background(), stale))

	_, err := client.EnsureFresh(context.Background(), stale)
	var providerErr *errs.ProviderError
	require.ErrorAs(t, err, &providerErr)
	assert.False(t, errs.IsAuthFailure(err), "a timeout must stay transient")
}

func TestExchangeCodeBoundedDeadline(t *testing.T) {
	server := tokenEndpoint(t, http.StatusOK,
		`{"access_token":"access-1","token_type":"Bearer","expires_in":3600,"refresh_token":"refresh-1"}`,
		nil, 200*time.Millisecond)
	client := newTestOAuthClient(server.URL, newMemTokenStore())
	client.timeout = 20 * time.Millisecond

	_, err := client.ExchangeCode(context.Background(), "user-1", "good-code")
	assert.ErrorIs(t, err, errs.ErrAuthExchangeFailed)
}

// Two concurrent callers for the same user must share one provider refresh.
func TestEnsureFreshSingleFlight(t *testing.T) {
	var hits atomic.Int64
	server := tokenEndpoint(t, http.StatusOK, freshTokenBody, &hits, 50*time.Millisecond)
	store := newMemTokenStore()
	client := newTestOAuthClient(server.URL, store)

	stale := &models.TokenRecord{
		UserID:       "user-1",
		AccessToken:  "access-old",
		RefreshToken: "refresh-1",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(-time.Minute),
	}
	require.NoError(t, store.Put(context.Background(), stale))

	var wg sync.WaitGroup
	results := make([]*models.TokenRecord, 2)
	errors := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errors[i] = client.EnsureFresh(context.Background(), stale)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errors[0])
	require.NoError(t, errors[1])

	assert.Equal(t, int64(1), hits.Load(), "at most one network refresh")
	assert.Equal(t, results[0].AccessToken, results[1].AccessToken)
}

func TestRevoke(t *testing.T) {
	var hits atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh-1", r.Form.Get("token"))
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestOAuthClient(server.URL, newMemTokenStore())
	client.revokeURL = server.URL

	rec := &models.TokenRecord{UserID: "user-1", AccessToken: "access", RefreshToken: "refresh-1"}
	require.NoError(t, client.Revoke(context.Background(), rec))
	assert.Equal(t, int64(1), hits.Load())
}

func TestRevokeRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := newTestOAuthClient(server.URL, newMemTokenStore())
	client.revokeURL = server.URL

	err := client.Revoke(context.Background(), &models.TokenRecord{AccessToken: "access"})
	var providerErr *errs.ProviderError
	assert.ErrorAs(t, err, &providerErr)
}
