/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/acronis/go-ratelimitd/httpserver/middleware"
	"github.com/acronis/go-ratelimitd/log"
	"github.com/acronis/go-ratelimitd/service"
)

// systemEndpoints is a list of endpoints which are not involved in metrics collecting.
var systemEndpoints = []string{"/metrics", "/healthz"}

// HTTPRequestMetricsOpts represents options for the metrics middleware that is used in HTTPServer.
type HTTPRequestMetricsOpts struct {
	Namespace       string
	DurationBuckets []float64
	ConstLabels     prometheus.Labels
}

// Opts represents options for creating HTTPServer.
type Opts struct {
	// Routes configures application routes on the root router.
	Routes Routes
	// RootMiddlewares is a list of middlewares applied to the root router after the default ones.
	RootMiddlewares []func(http.Handler) http.Handler
	// ErrorDomain is used for error responses.
	ErrorDomain string
	// HealthCheck reports statuses of the service's components on /healthz.
	HealthCheck HealthCheck
	// MetricsHandler is a custom handler for the /metrics endpoint. promhttp.Handler() is used by default.
	MetricsHandler http.Handler
	// HTTPRequestMetrics contains options for HTTP request metrics.
	HTTPRequestMetrics HTTPRequestMetricsOpts
	// Listener is a pre-configured network listener to use instead of creating a new one.
	Listener net.Listener
}

func (opts Opts) routerOpts() RouterOpts {
	return RouterOpts{
		Routes:          opts.Routes,
		RootMiddlewares: opts.RootMiddlewares,
		ErrorDomain:     opts.ErrorDomain,
		HealthCheck:     opts.HealthCheck,
		MetricsHandler:  opts.MetricsHandler,
	}
}

// HTTPServer represents a wrapper around http.Server with additional fields and methods.
// It implements service.Unit and service.MetricsRegisterer interfaces.
type HTTPServer struct {
	URL             string
	HTTPServer      *http.Server
	TLS             TLSConfig
	HTTPRouter      chi.Router
	Logger          log.FieldLogger
	ShutdownTimeout time.Duration

	listener         net.Listener
	port             int32
	httpServerDone   atomic.Value
	metricsCollector *middleware.HTTPRequestMetricsCollector
}

var _ service.Unit = (*HTTPServer)(nil)
var _ service.MetricsRegisterer = (*HTTPServer)(nil)

// New creates a new HTTPServer with predefined request id, logging, metrics collecting,
// recovering after panics, request body limiting and health-checking functionality.
func New(cfg *Config, logger log.FieldLogger, opts Opts) *HTTPServer { //nolint:gocritic // hugeParam
	collector := middleware.NewHTTPRequestMetricsCollector(middleware.HTTPRequestMetricsCollectorOpts{
		Namespace:       opts.HTTPRequestMetrics.Namespace,
		DurationBuckets: opts.HTTPRequestMetrics.DurationBuckets,
		ConstLabels:     opts.HTTPRequestMetrics.ConstLabels,
	})
	router := chi.NewRouter()
	applyDefaultMiddlewaresToRouter(router, cfg, logger, opts.ErrorDomain, collector)
	configureRouter(router, logger, opts.routerOpts())

	scheme := "http://"
	if cfg.TLS.Enabled {
		scheme = "https://"
	}
	return &HTTPServer{
		URL: scheme + cfg.Address,
		HTTPServer: &http.Server{
			Addr:              cfg.Address,
			WriteTimeout:      time.Duration(cfg.Timeouts.Write),
			ReadTimeout:       time.Duration(cfg.Timeouts.Read),
			ReadHeaderTimeout: time.Duration(cfg.Timeouts.ReadHeader),
			IdleTimeout:       time.Duration(cfg.Timeouts.Idle),
			Handler:           router,
		},
		TLS:              cfg.TLS,
		HTTPRouter:       router,
		Logger:           logger,
		ShutdownTimeout:  time.Duration(cfg.Timeouts.Shutdown),
		listener:         opts.Listener,
		metricsCollector: collector,
	}
}

// Start starts application HTTP server in a blocking way.
// It's supposed that this method will be called in a separate goroutine.
// If a fatal error occurs, it will be sent to the fatalError channel.
func (s *HTTPServer) Start(fatalError chan<- error) {
	done := make(chan struct{})
	defer close(done)
	s.httpServerDone.Store(done)

	logger := s.Logger.With(
		log.String("address", s.HTTPServer.Addr),
		log.Duration("write_timeout", s.HTTPServer.WriteTimeout),
		log.Duration("read_timeout", s.HTTPServer.ReadTimeout),
		log.Duration("read_header_timeout", s.HTTPServer.ReadHeaderTimeout),
		log.Duration("idle_timeout", s.HTTPServer.IdleTimeout),
		log.Duration("shutdown_timeout", s.ShutdownTimeout),
	)
	logger.Info("starting application HTTP server...")

	var err error
	if s.listener == nil {
		if s.listener, err = net.Listen("tcp", s.HTTPServer.Addr); err != nil {
			logger.Error("application HTTP server error", log.Error(err))
			fatalError <- err
			return
		}
	}

	if err = s.storePort(); err != nil {
		logger.Error("unexpected format of TCP listener address", log.Error(err))
		fatalError <- err
		return
	}

	if s.TLS.Enabled {
		err = s.HTTPServer.ServeTLS(s.listener, s.TLS.Certificate, s.TLS.Key)
	} else {
		err = s.HTTPServer.Serve(s.listener)
	}
	if err != nil {
		if errors.Is(err, http.ErrServerClosed) {
			logger.Info("application HTTP server closed")
			return
		}
		logger.Error("application HTTP server error", log.Error(err))
		fatalError <- err
	}
}

func (s *HTTPServer) storePort() error {
	_, portStr, err := net.SplitHostPort(s.listener.Addr().String())
	if err != nil {
		return fmt.Errorf("split host and port: %w", err)
	}
	port, err := strconv.ParseInt(portStr, 10, 32)
	if err != nil {
		return fmt.Errorf("parse port: %w", err)
	}
	atomic.StoreInt32(&s.port, int32(port))
	return nil
}

// Stop stops application HTTP server (gracefully or not).
func (s *HTTPServer) Stop(gracefully bool) error {
	if !gracefully {
		s.Logger.Info("closing application HTTP server...")
		if err := s.HTTPServer.Close(); err != nil {
			s.Logger.Error("application HTTP server closing error", log.Error(err))
			return err
		}
		s.waitDone()
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.ShutdownTimeout)
	defer cancel()

	s.Logger.Info("shutting down application HTTP server...", log.Duration("timeout", s.ShutdownTimeout))
	if err := s.HTTPServer.Shutdown(ctx); err != nil {
		s.Logger.Error("application HTTP server shutting down error", log.Error(err))
		return err
	}
	s.Logger.Info("application HTTP server shut down")
	s.waitDone()
	return nil
}

func (s *HTTPServer) waitDone() {
	if done, ok := s.httpServerDone.Load().(chan struct{}); ok && done != nil {
		<-done
	}
}

// MustRegisterMetrics registers HTTP request metrics in the registerer and panics if any error occurs.
func (s *HTTPServer) MustRegisterMetrics(reg prometheus.Registerer) {
	s.metricsCollector.MustRegister(reg)
}

// UnregisterMetrics unregisters HTTP request metrics.
func (s *HTTPServer) UnregisterMetrics(reg prometheus.Registerer) {
	s.metricsCollector.Unregister(reg)
}

// GetPort returns the port the server listens on. It's zero until the server is started.
func (s *HTTPServer) GetPort() int {
	return int(atomic.LoadInt32(&s.port))
}
