// ABOUTME: Sync coordinator orchestrating connect/disconnect and event CRUD
// ABOUTME: Routes mutations by event origin with a local-first, remote-best-effort policy
package calsync

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/feelgame3025/ilouli-homepage-sub000/dates"
	"github.com/feelgame3025/ilouli-homepage-sub000/errs"
	"github.com/feelgame3025/ilouli-homepage-sub000/models"
)

// EventRepository is the durable store for events the user owns outright.
type EventRepository interface {
	Create(ctx context.Context, userID string, event *models.Event) error
	Get(ctx context.Context, userID, id string) (*models.Event, error)
	List(ctx context.Context, userID string) ([]models.Event, error)
	Update(ctx context.Context, userID string, event *models.Event) error
	Delete(ctx context.Context, userID, id string) error
}

// AuthClient is the OAuth token lifecycle as the coordinator consumes it.
type AuthClient interface {
	AuthorizationURL(state string) string
	ExchangeCode(ctx context.Context, userID, code string) (*models.TokenRecord, error)
	EnsureFresh(ctx context.Context, rec *models.TokenRecord) (*models.TokenRecord, error)
	Revoke(ctx context.Context, rec *models.TokenRecord) error
}

// Coordinator is the engine's orchestration layer. Connection state is always
// derived from token record presence, never cached as a flag. The provider is
// an optional mirror, not the system of record: local writes always land
// first, and a failed remote call never loses user data.
type Coordinator struct {
	auth    AuthClient
	gateway CalendarGateway
	events  EventRepository
	tokens  TokenStore
	log     *zap.Logger

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	pending map[string]string        // state -> userID, the Connecting flows
	cache   map[string][]models.Event // last provider pull per user
	reason  map[string]string        // disconnect reason per user
}

func NewCoordinator(auth AuthClient, gateway CalendarGateway, events EventRepository, tokens TokenStore, logger *zap.Logger) *Coordinator {
	return &Coordinator{
		auth:    auth,
		gateway: gateway,
		events:  events,
		tokens:  tokens,
		log:     logger,
		locks:   make(map[string]*sync.Mutex),
		pending: make(map[string]string),
		cache:   make(map[string][]models.Event),
		reason:  make(map[string]string),
	}
}

// userLock returns the per-user mutex, creating it lazily. Two different
// users' operations never contend.
func (c *Coordinator) userLock(userID string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	l, ok := c.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		c.locks[userID] = l
	}
	return l
}

// DefaultWindow is the event range served when the caller gives no bounds:
// six months back, one year forward.
func DefaultWindow() (timeMin, timeMax string) {
	today := dates.Today()
	timeMin, _ = dates.AddDays(today, -182)
	timeMax, _ = dates.AddDays(today, 365)
	return timeMin, timeMax
}

// Connect starts the consent flow and returns the authorization URL. The
// pending state entry is the Connecting transition; it is exited only by the
// callback. Abandoned flows never complete and hold no resources.
func (c *Coordinator) Connect(userID string) (string, error) {
	state := userID + ":" + uuid.New().String()

	c.mu.Lock()
	c.pending[state] = userID
	c.mu.Unlock()

	return c.auth.AuthorizationURL(state), nil
}

// HandleCallback finishes the consent flow: validates the state, exchanges
// the code, persists the credential, and performs the initial event pull.
// Returns the user the flow belongs to.
func (c *Coordinator) HandleCallback(ctx context.Context, state, code string) (string, error) {
	c.mu.Lock()
	userID, ok := c.pending[state]
	if ok {
		delete(c.pending, state)
	}
	c.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("%w: unknown state", errs.ErrAuthExchangeFailed)
	}

	lock := c.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	rec, err := c.auth.ExchangeCode(ctx, userID, code)
	if err != nil {
		return userID, err
	}
	if err := c.tokens.Put(ctx, rec); err != nil {
		return userID, fmt.Errorf("failed to persist token: %w", err)
	}

	c.mu.Lock()
	delete(c.reason, userID)
	c.mu.Unlock()

	// Initial pull. A transient failure here does not undo the connection.
	timeMin, timeMax := DefaultWindow()
	if _, err := c.refreshLocked(ctx, userID, timeMin, timeMax); err != nil {
		c.log.Warn("initial event pull failed",
			zap.String("userId", userID),
			zap.Error(err))
	}

	return userID, nil
}

// Disconnect revokes best-effort, then unconditionally deletes the credential
// and clears the remote cache. Deletion from the store is authoritative; a
// failed revoke call does not keep the user connected.
func (c *Coordinator) Disconnect(ctx context.Context, userID string) error {
	lock := c.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	rec, err := c.tokens.Get(ctx, userID)
	if err != nil {
		return fmt.Errorf("failed to read token record: %w", err)
	}
	if rec != nil {
		if err := c.auth.Revoke(ctx, rec); err != nil {
			c.log.Warn("provider revoke failed",
				zap.String("userId", userID),
				zap.Error(err))
		}
	}

	if err := c.tokens.Delete(ctx, userID); err != nil {
		return fmt.Errorf("failed to delete token record: %w", err)
	}

	c.mu.Lock()
	delete(c.cache, userID)
	delete(c.reason, userID)
	c.mu.Unlock()

	return nil
}

// Status derives the connection state from token record presence.
func (c *Coordinator) Status(ctx context.Context, userID string) (*models.AuthStatus, error) {
	rec, err := c.tokens.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read token record: %w", err)
	}
	if rec != nil {
		return &models.AuthStatus{Connected: true}, nil
	}

	c.mu.Lock()
	reason := c.reason[userID]
	c.mu.Unlock()

	return &models.AuthStatus{Connected: false, Reason: reason}, nil
}

// RefreshEvents pulls the provider, caches the result, and returns the merged
// view sorted date ascending. Requires a connection; auth failures force a
// disconnect and propagate rather than being retried.
func (c *Coordinator) RefreshEvents(ctx context.Context, userID, timeMin, timeMax string) ([]models.Event, error) {
	lock := c.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	return c.refreshLocked(ctx, userID, timeMin, timeMax)
}

func (c *Coordinator) refreshLocked(ctx context.Context, userID, timeMin, timeMax string) ([]models.Event, error) {
	rec, err := c.tokens.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read token record: %w", err)
	}
	if rec == nil {
		return nil, errs.ErrNotConnected
	}

	fresh, err := c.auth.EnsureFresh(ctx, rec)
	if err != nil {
		if errs.IsAuthFailure(err) {
			c.forceDisconnect(ctx, userID, err)
		}
		return nil, err
	}

	remote, err := c.gateway.ListEvents(ctx, fresh.OAuthToken(), timeMin, timeMax)
	if err != nil {
		if errs.IsAuthFailure(err) {
			c.forceDisconnect(ctx, userID, err)
		}
		return nil, err
	}

	c.mu.Lock()
	c.cache[userID] = remote
	c.mu.Unlock()

	local, err := c.events.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list local events: %w", err)
	}

	merged := Merge(FilterRange(local, timeMin, timeMax), remote)
	SortByDate(merged)
	return merged, nil
}

// ListEvents serves the merged view for UI reads. When disconnected, or when
// the provider pull fails, it degrades to local events only; the events list
// must keep rendering while /auth/status carries the reason.
func (c *Coordinator) ListEvents(ctx context.Context, userID, timeMin, timeMax string) ([]models.Event, error) {
	if timeMin == "" && timeMax == "" {
		timeMin, timeMax = DefaultWindow()
	}

	lock := c.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	merged, err := c.refreshLocked(ctx, userID, timeMin, timeMax)
	if err == nil {
		return merged, nil
	}
	if !errors.Is(err, errs.ErrNotConnected) {
		c.log.Warn("provider pull failed, serving local events",
			zap.String("userId", userID),
			zap.Error(err))
	}

	local, err := c.events.List(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list local events: %w", err)
	}
	filtered := FilterRange(local, timeMin, timeMax)
	SortByDate(filtered)
	return filtered, nil
}

// AddEvent persists locally first, so the event is never lost if the remote
// call fails. With syncToProvider set and a live connection the event is
// mirrored; on success it is retagged synced with the provider id. A failed
// mirror is logged, not raised.
func (c *Coordinator) AddEvent(ctx context.Context, userID string, event *models.Event, syncToProvider bool) (*models.Event, error) {
	if err := ValidateEvent(event); err != nil {
		return nil, err
	}

	lock := c.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	event.ID = ""
	event.Origin = models.OriginLocal
	event.RemoteID = ""
	if err := c.events.Create(ctx, userID, event); err != nil {
		return nil, fmt.Errorf("failed to persist event: %w", err)
	}

	if !syncToProvider {
		return event, nil
	}

	rec, err := c.tokens.Get(ctx, userID)
	if err != nil {
		c.mirrorFailed(ctx, userID, event.ID, err)
		return event, nil
	}
	if rec == nil {
		return event, nil
	}

	fresh, err := c.auth.EnsureFresh(ctx, rec)
	if err != nil {
		c.mirrorFailed(ctx, userID, event.ID, err)
		return event, nil
	}

	remoteID, err := c.gateway.CreateEvent(ctx, fresh.OAuthToken(), event)
	if err != nil {
		c.mirrorFailed(ctx, userID, event.ID, err)
		return event, nil
	}

	event.Origin = models.OriginSynced
	event.RemoteID = remoteID
	if err := c.events.Update(ctx, userID, event); err != nil {
		return nil, fmt.Errorf("failed to retag synced event: %w", err)
	}

	return event, nil
}

// UpdateEvent routes the mutation by origin. Local and synced events take the
// local write; synced events additionally mirror best-effort. A provider-only
// id goes straight to the gateway and errors propagate, since there is no
// local fallback.
func (c *Coordinator) UpdateEvent(ctx context.Context, userID, id string, patch *models.EventPatch) (*models.Event, error) {
	lock := c.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	// Local and provider ids live in disjoint namespaces, so a cached
	// provider-only event routes straight to the gateway with no local read.
	if base := c.cachedRemote(userID, id); base != nil {
		return c.updateRemoteOnly(ctx, userID, id, base, patch)
	}

	local, err := c.events.Get(ctx, userID, id)
	if err != nil {
		return nil, fmt.Errorf("failed to read event: %w", err)
	}
	if local == nil {
		return nil, errs.ErrNotFound
	}

	patch.Apply(local)
	if err := ValidateEvent(local); err != nil {
		return nil, err
	}
	if err := c.events.Update(ctx, userID, local); err != nil {
		return nil, fmt.Errorf("failed to update event: %w", err)
	}

	if local.Origin == models.OriginSynced {
		// Local state is the source of truth; the provider copy may lag.
		if fresh, err := c.freshToken(ctx, userID); err != nil {
			c.mirrorFailed(ctx, userID, id, err)
		} else if err := c.gateway.UpdateEvent(ctx, fresh.OAuthToken(), local.RemoteID, local); err != nil {
			c.mirrorFailed(ctx, userID, id, err)
		}
	}

	return local, nil
}

// cachedRemote returns a copy of the provider-only event with the given
// remote id from the last pull, or nil.
func (c *Coordinator) cachedRemote(userID, remoteID string) *models.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.cache[userID] {
		if c.cache[userID][i].RemoteID == remoteID {
			copied := c.cache[userID][i]
			return &copied
		}
	}
	return nil
}

// updateRemoteOnly handles provider-only events: gateway update, then a
// re-pull for the authoritative copy. No local write happens at any point.
func (c *Coordinator) updateRemoteOnly(ctx context.Context, userID, id string, base *models.Event, patch *models.EventPatch) (*models.Event, error) {
	patch.Apply(base)
	if err := ValidateEvent(base); err != nil {
		return nil, err
	}

	rec, err := c.tokens.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read token record: %w", err)
	}
	if rec == nil {
		return nil, errs.ErrNotConnected
	}

	fresh, err := c.auth.EnsureFresh(ctx, rec)
	if err != nil {
		if errs.IsAuthFailure(err) {
			c.forceDisconnect(ctx, userID, err)
		}
		return nil, err
	}

	if err := c.gateway.UpdateEvent(ctx, fresh.OAuthToken(), id, base); err != nil {
		if errs.IsAuthFailure(err) {
			c.forceDisconnect(ctx, userID, err)
		}
		return nil, err
	}

	timeMin, timeMax := DefaultWindow()
	if _, err := c.refreshLocked(ctx, userID, timeMin, timeMax); err != nil {
		c.log.Warn("re-pull after remote update failed",
			zap.String("userId", userID),
			zap.Error(err))
	}

	return base, nil
}

// DeleteEvent mirrors the update routing: synced and provider-only events
// issue a gateway delete; purely local events never touch the network.
func (c *Coordinator) DeleteEvent(ctx context.Context, userID, id string) error {
	lock := c.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	// Provider-only: exactly one gateway call, no local store call.
	if cached := c.cachedRemote(userID, id); cached != nil {
		rec, err := c.tokens.Get(ctx, userID)
		if err != nil {
			return fmt.Errorf("failed to read token record: %w", err)
		}
		if rec == nil {
			return errs.ErrNotConnected
		}
		fresh, err := c.auth.EnsureFresh(ctx, rec)
		if err != nil {
			if errs.IsAuthFailure(err) {
				c.forceDisconnect(ctx, userID, err)
			}
			return err
		}
		if err := c.gateway.DeleteEvent(ctx, fresh.OAuthToken(), id); err != nil {
			if errs.IsAuthFailure(err) {
				c.forceDisconnect(ctx, userID, err)
			}
			return err
		}
		c.dropCached(userID, id)
		return nil
	}

	local, err := c.events.Get(ctx, userID, id)
	if err != nil {
		return fmt.Errorf("failed to read event: %w", err)
	}
	if local == nil {
		return errs.ErrNotFound
	}

	if local.Origin == models.OriginSynced {
		if fresh, err := c.freshToken(ctx, userID); err != nil {
			c.mirrorFailed(ctx, userID, id, err)
		} else if err := c.gateway.DeleteEvent(ctx, fresh.OAuthToken(), local.RemoteID); err != nil {
			c.mirrorFailed(ctx, userID, id, err)
		}
	}

	if err := c.events.Delete(ctx, userID, id); err != nil {
		return fmt.Errorf("failed to delete event: %w", err)
	}
	return nil
}

// freshToken loads and freshens the user's credential for a best-effort
// mirror call.
func (c *Coordinator) freshToken(ctx context.Context, userID string) (*models.TokenRecord, error) {
	rec, err := c.tokens.Get(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to read token record: %w", err)
	}
	if rec == nil {
		return nil, errs.ErrNotConnected
	}
	return c.auth.EnsureFresh(ctx, rec)
}

// mirrorFailed records a swallowed best-effort provider failure. Auth
// failures still force the disconnect transition even though the local write
// stands.
func (c *Coordinator) mirrorFailed(ctx context.Context, userID, eventID string, err error) {
	if errs.IsAuthFailure(err) {
		c.forceDisconnect(ctx, userID, err)
	}
	c.log.Warn("provider mirror failed, local copy kept",
		zap.String("userId", userID),
		zap.String("eventId", eventID),
		zap.Error(err))
}

// forceDisconnect transitions the user to Disconnected after an
// unrecoverable auth failure: the credential is destroyed and the reason
// recorded for /auth/status.
func (c *Coordinator) forceDisconnect(ctx context.Context, userID string, cause error) {
	if err := c.tokens.Delete(ctx, userID); err != nil {
		c.log.Error("failed to delete token record on auth failure",
			zap.String("userId", userID),
			zap.Error(err))
	}

	c.mu.Lock()
	delete(c.cache, userID)
	c.reason[userID] = models.ReasonTokenExpired
	c.mu.Unlock()

	c.log.Warn("disconnected after auth failure",
		zap.String("userId", userID),
		zap.Error(cause))
}

func (c *Coordinator) dropCached(userID, remoteID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	events := c.cache[userID]
	for i := range events {
		if events[i].RemoteID == remoteID {
			c.cache[userID] = append(events[:i], events[i+1:]...)
			return
		}
	}
}
