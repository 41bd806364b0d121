// ABOUTME: Shared in-memory fakes for engine tests
// ABOUTME: Provides token store, gateway, and auth client test doubles
package calsync

import (
	"context"
	"sync"

	"golang.org/x/oauth2"

	"github.com/feelgame3025/ilouli-homepage-sub000/models"
)

// memTokenStore is an in-memory TokenStore.
type memTokenStore struct {
	mu      sync.Mutex
	records map[string]*models.TokenRecord
	getErr  error
	puts    int
	deletes int
}

func newMemTokenStore() *memTokenStore {
	return &memTokenStore{records: make(map[string]*models.TokenRecord)}
}

func (s *memTokenStore) Get(_ context.Context, userID string) (*models.TokenRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	rec, ok := s.records[userID]
	if !ok {
		return nil, nil
	}
	copied := *rec
	return &copied, nil
}

func (s *memTokenStore) Put(_ context.Context, rec *models.TokenRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *rec
	s.records[rec.UserID] = &copied
	s.puts++
	return nil
}

func (s *memTokenStore) Delete(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, userID)
	s.deletes++
	return nil
}

// fakeGateway records calls and returns scripted results.
type fakeGateway struct {
	mu sync.Mutex

	listResult []models.Event
	listErr    error
	createID   string
	createErr  error
	updateErr  error
	deleteErr  error

	listCalls   int
	createCalls int
	updateCalls int
	deleteCalls int
	deletedIDs  []string
	updatedIDs  []string
}

func (g *fakeGateway) ListEvents(_ context.Context, _ *oauth2.Token, _, _ string) ([]models.Event, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listCalls++
	if g.listErr != nil {
		return nil, g.listErr
	}
	return append([]models.Event(nil), g.listResult...), nil
}

func (g *fakeGateway) CreateEvent(_ context.Context, _ *oauth2.Token, _ *models.Event) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.createCalls++
	if g.createErr != nil {
		return "", g.createErr
	}
	return g.createID, nil
}

func (g *fakeGateway) UpdateEvent(_ context.Context, _ *oauth2.Token, remoteID string, _ *models.Event) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.updateCalls++
	g.updatedIDs = append(g.updatedIDs, remoteID)
	return g.updateErr
}

func (g *fakeGateway) DeleteEvent(_ context.Context, _ *oauth2.Token, remoteID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.deleteCalls++
	g.deletedIDs = append(g.deletedIDs, remoteID)
	return g.deleteErr
}

// fakeAuth is a scriptable AuthClient.
type fakeAuth struct {
	mu sync.Mutex

	exchangeRec *models.TokenRecord
	exchangeErr error
	freshErr    error
	revokeErr   error

	freshCalls  int
	revokeCalls int
}

func (a *fakeAuth) AuthorizationURL(state string) string {
	return "https://accounts.example.com/consent?state=" + state
}

func (a *fakeAuth) ExchangeCode(_ context.Context, userID, _ string) (*models.TokenRecord, error) {
	if a.exchangeErr != nil {
		return nil, a.exchangeErr
	}
	if a.exchangeRec != nil {
		return a.exchangeRec, nil
	}
	return &models.TokenRecord{UserID: userID, AccessToken: "access", RefreshToken: "refresh", TokenType: "Bearer"}, nil
}

func (a *fakeAuth) EnsureFresh(_ context.Context, rec *models.TokenRecord) (*models.TokenRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.freshCalls++
	if a.freshErr != nil {
		return nil, a.freshErr
	}
	return rec, nil
}

func (a *fakeAuth) Revoke(_ context.Context, _ *models.TokenRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.revokeCalls++
	return a.revokeErr
}

// memEventRepo is an in-memory EventRepository.
type memEventRepo struct {
	mu      sync.Mutex
	nextID  int
	events  map[string]map[string]*models.Event // userID -> id -> event
	getErr  error
	calls   int // total store calls, for "zero local calls" assertions
	deletes int
}

func newMemEventRepo() *memEventRepo {
	return &memEventRepo{events: make(map[string]map[string]*models.Event)}
}

func (r *memEventRepo) bucket(userID string) map[string]*models.Event {
	if r.events[userID] == nil {
		r.events[userID] = make(map[string]*models.Event)
	}
	return r.events[userID]
}

func (r *memEventRepo) Create(_ context.Context, userID string, event *models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.nextID++
	if event.ID == "" {
		event.ID = "local-" + string(rune('0'+r.nextID))
	}
	if event.Origin == "" {
		event.Origin = models.OriginLocal
	}
	copied := *event
	r.bucket(userID)[event.ID] = &copied
	return nil
}

func (r *memEventRepo) Get(_ context.Context, userID, id string) (*models.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	if r.getErr != nil {
		return nil, r.getErr
	}
	event, ok := r.bucket(userID)[id]
	if !ok {
		return nil, nil
	}
	copied := *event
	return &copied, nil
}

func (r *memEventRepo) List(_ context.Context, userID string) ([]models.Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	var out []models.Event
	for _, event := range r.bucket(userID) {
		out = append(out, *event)
	}
	return out, nil
}

func (r *memEventRepo) Update(_ context.Context, userID string, event *models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	copied := *event
	r.bucket(userID)[event.ID] = &copied
	return nil
}

func (r *memEventRepo) Delete(_ context.Context, userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	r.deletes++
	delete(r.bucket(userID), id)
	return nil
}
