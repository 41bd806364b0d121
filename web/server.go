// ABOUTME: JSON HTTP surface for the calendar sync engine
// ABOUTME: Serves auth lifecycle, OAuth callback redirect, and event CRUD endpoints
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/feelgame3025/ilouli-homepage-sub000/errs"
	"github.com/feelgame3025/ilouli-homepage-sub000/models"
)

// Engine is the sync coordinator surface the server exposes.
type Engine interface {
	Connect(userID string) (string, error)
	HandleCallback(ctx context.Context, state, code string) (string, error)
	Disconnect(ctx context.Context, userID string) error
	Status(ctx context.Context, userID string) (*models.AuthStatus, error)
	ListEvents(ctx context.Context, userID, timeMin, timeMax string) ([]models.Event, error)
	AddEvent(ctx context.Context, userID string, event *models.Event, syncToProvider bool) (*models.Event, error)
	UpdateEvent(ctx context.Context, userID, id string, patch *models.EventPatch) (*models.Event, error)
	DeleteEvent(ctx context.Context, userID, id string) error
}

// IdentityFunc resolves the requesting user from the platform's session
// token. Provided by the auth subsystem outside this engine.
type IdentityFunc func(r *http.Request) (string, error)

type Server struct {
	engine      Engine
	identity    IdentityFunc
	frontendURL string
	log         *zap.Logger
	httpServer  *http.Server
}

func NewServer(engine Engine, identity IdentityFunc, frontendURL string, logger *zap.Logger) *Server {
	return &Server{
		engine:      engine,
		identity:    identity,
		frontendURL: frontendURL,
		log:         logger,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /auth/url", s.handleAuthURL)
	mux.HandleFunc("GET /auth/status", s.handleAuthStatus)
	mux.HandleFunc("POST /auth/disconnect", s.handleDisconnect)
	mux.HandleFunc("GET /oauth/callback", s.handleOAuthCallback)

	mux.HandleFunc("GET /events", s.handleListEvents)
	mux.HandleFunc("POST /events", s.handleCreateEvent)
	mux.HandleFunc("PUT /events/{id}", s.handleUpdateEvent)
	mux.HandleFunc("DELETE /events/{id}", s.handleDeleteEvent)

	return s.withRequestLog(mux)
}

func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.log.Info("starting calendar sync server", zap.String("addr", addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleAuthURL(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(w, r)
	if !ok {
		return
	}

	authURL, err := s.engine.Connect(userID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]string{"url": authURL})
}

func (s *Server) handleAuthStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(w, r)
	if !ok {
		return
	}

	status, err := s.engine.Status(r.Context(), userID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleDisconnect(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(w, r)
	if !ok {
		return
	}

	if err := s.engine.Disconnect(r.Context(), userID); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleOAuthCallback receives the provider redirect and forwards the browser
// to the frontend with either connected=true or a recognized error code.
func (s *Server) handleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if q.Get("error") != "" {
		s.redirectFrontend(w, r, "error", models.CallbackErrAccessDenied)
		return
	}

	state := q.Get("state")
	code := q.Get("code")
	userID, err := s.engine.HandleCallback(r.Context(), state, code)
	if err != nil {
		s.log.Warn("oauth callback failed",
			zap.String("userId", userID),
			zap.Error(err))
		if errors.Is(err, errs.ErrNoRefreshToken) {
			s.redirectFrontend(w, r, "error", models.CallbackErrNoRefreshToken)
			return
		}
		s.redirectFrontend(w, r, "error", models.CallbackErrTokenExchangeFailed)
		return
	}

	s.redirectFrontend(w, r, "connected", "true")
}

func (s *Server) redirectFrontend(w http.ResponseWriter, r *http.Request, key, value string) {
	target, err := url.Parse(s.frontendURL)
	if err != nil {
		http.Error(w, "bad frontend URL", http.StatusInternalServerError)
		return
	}
	q := target.Query()
	q.Set(key, value)
	target.RawQuery = q.Encode()
	http.Redirect(w, r, target.String(), http.StatusFound)
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(w, r)
	if !ok {
		return
	}

	timeMin := r.URL.Query().Get("timeMin")
	timeMax := r.URL.Query().Get("timeMax")

	events, err := s.engine.ListEvents(r.Context(), userID, timeMin, timeMax)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if events == nil {
		events = []models.Event{}
	}

	s.writeJSON(w, http.StatusOK, map[string]any{"events": events})
}

type createEventRequest struct {
	models.Event
	SyncToProvider bool `json:"syncToProvider"`
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(w, r)
	if !ok {
		return
	}

	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	req.Event.CreatedBy = userID

	created, err := s.engine.AddEvent(r.Context(), userID, &req.Event, req.SyncToProvider)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleUpdateEvent(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(w, r)
	if !ok {
		return
	}

	var patch models.EventPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return
	}

	updated, err := s.engine.UpdateEvent(r.Context(), userID, r.PathValue("id"), &patch)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.user(w, r)
	if !ok {
		return
	}

	if err := s.engine.DeleteEvent(r.Context(), userID, r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) user(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := s.identity(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return "", false
	}
	return userID, true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Error("failed to encode response", zap.Error(err))
	}
}

// writeError maps the engine taxonomy onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var validationErr *errs.ValidationError
	var providerErr *errs.ProviderError

	switch {
	case errors.As(err, &validationErr):
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": validationErr.Error()})
	case errors.Is(err, errs.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "event not found"})
	case errors.Is(err, errs.ErrNotConnected):
		s.writeJSON(w, http.StatusConflict, map[string]string{"error": "calendar provider not connected"})
	case errs.IsAuthFailure(err):
		s.writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":  "provider authorization expired",
			"reason": models.ReasonTokenExpired,
		})
	case errors.As(err, &providerErr):
		s.writeJSON(w, http.StatusBadGateway, map[string]string{
			"error": fmt.Sprintf("calendar provider error: %s", providerErr.Message),
		})
	default:
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
