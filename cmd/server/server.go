package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/himanishpuri/acousticprint/internal/config"
	"github.com/himanishpuri/acousticprint/internal/service"
	"github.com/himanishpuri/acousticprint/pkg/logger"
)

// Server exposes the catalog over HTTP.
type Server struct {
	service *service.AcousticService
	config  *config.Config
	log     service.Logger
	started time.Time
}

func NewServer(svc *service.AcousticService, cfg *config.Config) *Server {
	return &Server{
		service: svc,
		config:  cfg,
		log:     logger.GetLogger(),
		started: time.Now(),
	}
}

// respondJSON writes a JSON response
func (s *Server) respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Errorf("Failed to encode JSON response: %v", err)
	}
}

// respondError writes an error response
func (s *Server) respondError(w http.ResponseWriter, statusCode int, message string) {
	s.respondJSON(w, statusCode, ErrorResponse{
		Error:   http.StatusText(statusCode),
		Message: message,
		Code:    statusCode,
	})
}

// Start serves until ctx is cancelled, then drains in-flight requests.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Server.Addr,
		Handler:           loggingMiddleware(s.log, s.setupRoutes()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.log.Infof("🚀 acousticprint server starting on %s", srv.Addr)
	s.log.Infof("   Catalog: %s (%s)", s.config.Database.Path, s.config.Database.Driver)
	s.log.Infof("   Settings digest: %s", s.service.Config().Digest())
	s.log.Infof("   CORS origin: %s", s.config.Server.AllowedOrigin)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Infof("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
