// ABOUTME: Data models for the calendar sync engine
// ABOUTME: Defines Event, EventPatch, TokenRecord, and AuthStatus structs
package models

import (
	"time"

	"golang.org/x/oauth2"
)

// Origin identifies which source(s) own an event.
type Origin string

const (
	// OriginLocal is an event whose only system of record is our own store.
	OriginLocal Origin = "local"
	// OriginGoogle is an event that exists only on the provider and is never
	// persisted locally.
	OriginGoogle Origin = "google"
	// OriginSynced is a local event that also has a provider counterpart,
	// identified by RemoteID.
	OriginSynced Origin = "synced"
)

// Event category constants.
const (
	CategoryFamily   = "family"
	CategoryBirthday = "birthday"
	CategoryTravel   = "travel"
	CategoryHealth   = "health"
	CategoryWork     = "work"
	CategoryOther    = "other"
)

// Categories lists every valid event category.
var Categories = []string{
	CategoryFamily,
	CategoryBirthday,
	CategoryTravel,
	CategoryHealth,
	CategoryWork,
	CategoryOther,
}

type Event struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Date          string    `json:"date"` // YYYY-MM-DD, handled only by the dates package
	Time          string    `json:"time,omitempty"`
	AllDay        bool      `json:"allDay"`
	Category      string    `json:"category"`
	Description   string    `json:"description,omitempty"`
	CreatedBy     string    `json:"createdBy,omitempty"`
	CreatedByName string    `json:"createdByName,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	Origin        Origin    `json:"origin"`
	RemoteID      string    `json:"remoteId,omitempty"`
}

// HasRemote reports whether the event has a provider counterpart.
func (e *Event) HasRemote() bool {
	return e.Origin == OriginGoogle || e.Origin == OriginSynced
}

// EventPatch is a partial update; nil fields are left untouched.
type EventPatch struct {
	Title       *string `json:"title,omitempty"`
	Date        *string `json:"date,omitempty"`
	Time        *string `json:"time,omitempty"`
	AllDay      *bool   `json:"allDay,omitempty"`
	Category    *string `json:"category,omitempty"`
	Description *string `json:"description,omitempty"`
}

// Apply copies the patch's non-nil fields onto the event.
func (p *EventPatch) Apply(e *Event) {
	if p.Title != nil {
		e.Title = *p.Title
	}
	if p.Date != nil {
		e.Date = *p.Date
	}
	if p.Time != nil {
		e.Time = *p.Time
	}
	if p.AllDay != nil {
		e.AllDay = *p.AllDay
	}
	if p.Category != nil {
		e.Category = *p.Category
	}
	if p.Description != nil {
		e.Description = *p.Description
	}
	if e.AllDay {
		e.Time = ""
	}
}

// TokenRecord is the persisted OAuth credential for one user. Exactly zero or
// one record exists per user; presence of a record is the sole signal of
// "connected" state.
type TokenRecord struct {
	UserID       string    `json:"user_id"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	Expiry       time.Time `json:"expiry"`
}

// OAuthToken converts the record to the oauth2 library's token type.
func (r *TokenRecord) OAuthToken() *oauth2.Token {
	return &oauth2.Token{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    r.TokenType,
		Expiry:       r.Expiry,
	}
}

// RecordFromToken builds a TokenRecord for userID from an oauth2 token. When
// the provider did not rotate the refresh token, prev's refresh token is kept.
func RecordFromToken(userID string, tok *oauth2.Token, prev *TokenRecord) *TokenRecord {
	rec := &TokenRecord{
		UserID:       userID,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
	}
	if rec.RefreshToken == "" && prev != nil {
		rec.RefreshToken = prev.RefreshToken
	}
	return rec
}

// AuthStatus is the derived connection state reported to the UI.
type AuthStatus struct {
	Connected bool   `json:"connected"`
	Reason    string `json:"reason,omitempty"`
}

// Disconnect reason constants.
const (
	ReasonTokenExpired = "token_expired"
)

// OAuth callback error codes recognized by the UI.
const (
	CallbackErrAccessDenied        = "access_denied"
	CallbackErrNoRefreshToken      = "no_refresh_token"
	CallbackErrTokenExchangeFailed = "token_exchange_failed"
)
