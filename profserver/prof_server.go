/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

// Package profserver provides the pprof HTTP server run next to the rate limiting service.
package profserver

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/acronis/go-ratelimitd/httpserver/middleware"
	"github.com/acronis/go-ratelimitd/log"
	"github.com/acronis/go-ratelimitd/service"
)

const (
	readHeaderTimeout = 5 * time.Second
	errDomain         = "ProfServer"
)

// ProfServer represents HTTP server for profiling. pprof is used under the hood.
// It implements service.Unit interface.
type ProfServer struct {
	URL        string
	HTTPServer *http.Server
	Logger     log.FieldLogger

	done chan struct{}
}

var _ service.Unit = (*ProfServer)(nil)

// New creates a new HTTP server (pprof) for profiling.
func New(cfg *Config, logger log.FieldLogger) *ProfServer {
	logger = log.NewPrefixedLogger(logger.With(log.String("address", cfg.Address)), "prof server: ")

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID(),
		middleware.LoggingWithOpts(logger, middleware.LoggingOpts{RequestStart: true}),
		middleware.Recovery(errDomain),
	)
	router.Mount("/debug", chimiddleware.Profiler())

	return &ProfServer{
		URL:        "http://" + cfg.Address,
		HTTPServer: &http.Server{Addr: cfg.Address, Handler: router, ReadHeaderTimeout: readHeaderTimeout},
		Logger:     logger,
		done:       make(chan struct{}),
	}
}

// Start serves profiling requests until Stop is called. A fatal error is sent into the passed channel.
func (s *ProfServer) Start(fatalError chan<- error) {
	defer close(s.done)

	s.Logger.Info("starting...")
	if err := s.HTTPServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.Logger.Error("serving failed", log.Error(err))
		fatalError <- err
		return
	}
	s.Logger.Info("closed")
}

// Stop closes the server. Profiling requests are never waited for.
func (s *ProfServer) Stop(gracefully bool) error {
	s.Logger.Info("closing...", log.Bool("graceful", gracefully))
	if err := s.HTTPServer.Close(); err != nil {
		s.Logger.Error("closing failed", log.Error(err))
		return err
	}
	<-s.done
	return nil
}
