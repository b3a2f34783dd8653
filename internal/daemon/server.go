package daemon

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/wisp/internal/api"
	"github.com/matheus3301/wisp/internal/config"
)

// Server wraps the HTTP server exposing the daemon API.
type Server struct {
	http   *http.Server
	logger *zap.Logger
}

// NewServer builds the HTTP server on the configured listen address.
// Params.ListenAddr, when set, takes precedence over the config file.
func NewServer(p Params, cfg *config.Config, a *api.Server, logger *zap.Logger) *Server {
	addr := cfg.ListenAddr
	if p.ListenAddr != "" {
		addr = p.ListenAddr
	}
	return &Server{
		http: &http.Server{
			Addr:              addr,
			Handler:           a.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.http.Addr
}

// Start blocks serving requests until Stop is called.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.http.Addr))
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop gracefully shuts the server down, waiting for in-flight requests.
func (s *Server) Stop(ctx context.Context) {
	s.logger.Info("shutting down http server")
	if err := s.http.Shutdown(ctx); err != nil {
		s.logger.Warn("forced shutdown", zap.Error(err))
		_ = s.http.Close()
	}
}
