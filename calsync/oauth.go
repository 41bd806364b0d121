// ABOUTME: OAuth client for the calendar provider's token lifecycle
// ABOUTME: Handles code exchange, single-flight refresh with persistence, and revocation
package calsync

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"golang.org/x/sync/singleflight"
	calendar "google.golang.org/api/calendar/v3"

	"github.com/feelgame3025/ilouli-homepage-sub000/errs"
	"github.com/feelgame3025/ilouli-homepage-sub000/models"
)

// refreshSkew is how long before expiry a token is treated as stale.
const refreshSkew = 60 * time.Second

// tokenTimeout bounds every token endpoint round trip.
const tokenTimeout = 15 * time.Second

const googleRevokeURL = "https://oauth2.googleapis.com/revoke"

// TokenStore is the persisted credential store, one record per user.
type TokenStore interface {
	Get(ctx context.Context, userID string) (*models.TokenRecord, error)
	Put(ctx context.Context, rec *models.TokenRecord) error
	Delete(ctx context.Context, userID string) error
}

// OAuthClient executes the authorization-code flow and keeps access tokens
// fresh. Refresh is single-flight per user: concurrent callers share one
// provider round trip, so two racing operations can never persist two
// different "fresh" records.
type OAuthClient struct {
	config    *oauth2.Config
	tokens    TokenStore
	revokeURL string
	timeout   time.Duration
	flight    singleflight.Group
	// now is swappable for tests
	now func() time.Time
}

func NewOAuthClient(cfg *Config, tokens TokenStore) *OAuthClient {
	return &OAuthClient{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{calendar.CalendarEventsScope},
			Endpoint:     google.Endpoint,
		},
		tokens:    tokens,
		revokeURL: googleRevokeURL,
		timeout:   tokenTimeout,
		now:       time.Now,
	}
}

// AuthorizationURL builds the provider consent URL for the given state.
// Offline access plus forced approval so a refresh token is always issued.
func (c *OAuthClient) AuthorizationURL(state string) string {
	return c.config.AuthCodeURL(state, oauth2.AccessTypeOffline, oauth2.ApprovalForce)
}

// ExchangeCode performs the one-shot authorization-code exchange and returns
// the credential record to persist. A reply without a refresh token is
// rejected: without one the connection dies at the first expiry.
func (c *OAuthClient) ExchangeCode(ctx context.Context, userID, code string) (*models.TokenRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	tok, err := c.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrAuthExchangeFailed, err)
	}
	if tok.RefreshToken == "" {
		return nil, errs.ErrNoRefreshToken
	}
	return models.RecordFromToken(userID, tok, nil), nil
}

// EnsureFresh returns a record whose access token is valid for at least the
// skew window, refreshing and persisting it first when needed. The refreshed
// record is written to the store before this returns, so a caller can never
// observe a stale token afterwards. A rejected refresh token surfaces as
// ErrRefreshFailed and is never retried here.
func (c *OAuthClient) EnsureFresh(ctx context.Context, rec *models.TokenRecord) (*models.TokenRecord, error) {
	if c.now().Before(rec.Expiry.Add(-refreshSkew)) {
		return rec, nil
	}

	fresh, err, _ := c.flight.Do(rec.UserID, func() (interface{}, error) {
		// Re-read inside the flight: a racing caller may have already
		// refreshed and persisted a newer record.
		current, err := c.tokens.Get(ctx, rec.UserID)
		if err != nil {
			return nil, fmt.Errorf("failed to read token record: %w", err)
		}
		if current == nil {
			current = rec
		}
		if c.now().Before(current.Expiry.Add(-refreshSkew)) {
			return current, nil
		}

		// Force a real refresh round trip: with the access token cleared the
		// token source cannot hand back the cached credential.
		stale := current.OAuthToken()
		stale.AccessToken = ""

		refreshCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		tok, err := c.config.TokenSource(refreshCtx, stale).Token()
		if err != nil {
			return nil, classifyRefreshError(err)
		}

		updated := models.RecordFromToken(current.UserID, tok, current)
		if err := c.tokens.Put(ctx, updated); err != nil {
			return nil, fmt.Errorf("failed to persist refreshed token: %w", err)
		}
		return updated, nil
	})
	if err != nil {
		return nil, err
	}

	return fresh.(*models.TokenRecord), nil
}

// classifyRefreshError separates a rejected refresh token from transport
// trouble. Only a 4xx reply from the token endpoint means the credential
// itself was refused; outages, timeouts, cancellations, and 5xx replies
// surface as transient ProviderError so the stored record survives.
func classifyRefreshError(err error) error {
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		status := 0
		if retrieveErr.Response != nil {
			status = retrieveErr.Response.StatusCode
		}
		if status >= 400 && status < 500 {
			return fmt.Errorf("%w: %v", errs.ErrRefreshFailed, err)
		}
		return &errs.ProviderError{Status: status, Message: "token endpoint error"}
	}
	return &errs.ProviderError{Message: err.Error()}
}

// Revoke tells the provider to invalidate the credential. Best-effort: the
// caller deletes the stored record regardless of this call's outcome.
func (c *OAuthClient) Revoke(ctx context.Context, rec *models.TokenRecord) error {
	token := rec.RefreshToken
	if token == "" {
		token = rec.AccessToken
	}

	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.revokeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("revoke request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return &errs.ProviderError{Status: resp.StatusCode, Message: "revoke rejected"}
	}
	return nil
}
