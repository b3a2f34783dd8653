// Package api exposes the daemon's procedures over HTTP: account
// provisioning, profile renames, the friendship ledger, channel
// messages and a server-sent event stream.
package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/matheus3301/wisp/internal/bus"
	"github.com/matheus3301/wisp/internal/live"
	"github.com/matheus3301/wisp/internal/store"
)

// TokenTTL is how long a minted access token stays valid.
const TokenTTL = 30 * 24 * time.Hour

// Server holds the handler dependencies.
type Server struct {
	db       *store.DB
	feed     *live.Feed
	bus      *bus.Bus
	logger   *zap.Logger
	secret   string
	pageSize int
}

// NewServer creates the HTTP API server.
func NewServer(db *store.DB, feed *live.Feed, b *bus.Bus, logger *zap.Logger, secret string, pageSize int) *Server {
	if pageSize <= 0 {
		pageSize = 20
	}
	return &Server{
		db:       db,
		feed:     feed,
		bus:      b,
		logger:   logger.Named("api"),
		secret:   secret,
		pageSize: pageSize,
	}
}

// Router builds the route table. Everything under /api/v1 requires a
// Bearer token.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests)

	r.HandleFunc("/register", s.handleRegister).Methods(http.MethodPost)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(authMiddleware(s.secret))

	api.HandleFunc("/me", s.handleMe).Methods(http.MethodGet)
	api.HandleFunc("/profile/username", s.handleRename).Methods(http.MethodPut)

	api.HandleFunc("/friends", s.handleListFriends).Methods(http.MethodGet)
	api.HandleFunc("/friends/requests", s.handleSendRequest).Methods(http.MethodPost)
	api.HandleFunc("/friends/requests", s.handleListRequests).Methods(http.MethodGet)
	api.HandleFunc("/friends/requests/{id}/accept", s.handleAcceptRequest).Methods(http.MethodPost)
	api.HandleFunc("/friends/requests/{id}/reject", s.handleRejectRequest).Methods(http.MethodPost)
	api.HandleFunc("/friends/requests/{id}", s.handleDeleteRequest).Methods(http.MethodDelete)
	api.HandleFunc("/friends/{uid}", s.handleUnfriend).Methods(http.MethodDelete)

	api.HandleFunc("/channels", s.handleListChannels).Methods(http.MethodGet)
	api.HandleFunc("/channels/{peer}", s.handleDeleteChannel).Methods(http.MethodDelete)
	api.HandleFunc("/channels/{peer}/messages", s.handleListMessages).Methods(http.MethodGet)
	api.HandleFunc("/channels/{peer}/messages", s.handleSendMessage).Methods(http.MethodPost)
	api.HandleFunc("/channels/{peer}/messages/{id}", s.handleEditMessage).Methods(http.MethodPatch)
	api.HandleFunc("/channels/{peer}/messages/{id}", s.handleDeleteMessage).Methods(http.MethodDelete)
	api.HandleFunc("/channels/{peer}/seen", s.handleMarkSeen).Methods(http.MethodPost)

	api.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)

	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("elapsed", time.Since(start)))
	})
}
