// ABOUTME: OAuth token store operations
// ABOUTME: Persists one credential record per user with atomic upsert
package db

import (
	"context"
	"database/sql"
	"time"

	"github.com/feelgame3025/ilouli-homepage-sub000/models"
)

// TokenStore persists OAuth credentials, one row per user. The single SQLite
// connection serializes writes; refresh interleaving across callers is
// prevented one layer up by the oauth client's single-flight group.
type TokenStore struct {
	db *sql.DB
}

func NewTokenStore(database *sql.DB) *TokenStore {
	return &TokenStore{db: database}
}

// Get returns the user's token record, or nil if none exists.
func (s *TokenStore) Get(ctx context.Context, userID string) (*models.TokenRecord, error) {
	rec := &models.TokenRecord{}

	err := s.db.QueryRowContext(ctx, `
		SELECT user_id, access_token, refresh_token, token_type, expiry
		FROM oauth_tokens WHERE user_id = ?
	`, userID).Scan(&rec.UserID, &rec.AccessToken, &rec.RefreshToken, &rec.TokenType, &rec.Expiry)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Put upserts the user's token record.
func (s *TokenStore) Put(ctx context.Context, rec *models.TokenRecord) error {
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO oauth_tokens (user_id, access_token, refresh_token, token_type, expiry, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			token_type = excluded.token_type,
			expiry = excluded.expiry,
			updated_at = excluded.updated_at
	`, rec.UserID, rec.AccessToken, rec.RefreshToken, rec.TokenType, rec.Expiry, now, now)

	return err
}

// Delete removes the user's token record. Deleting a missing record is not an
// error: disconnect is idempotent.
func (s *TokenStore) Delete(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM oauth_tokens WHERE user_id = ?`, userID)
	return err
}
