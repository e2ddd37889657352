/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/acronis/go-ratelimitd/httpserver"
	"github.com/acronis/go-ratelimitd/httpserver/middleware"
	"github.com/acronis/go-ratelimitd/internal/api"
	"github.com/acronis/go-ratelimitd/internal/version"
	"github.com/acronis/go-ratelimitd/log"
	"github.com/acronis/go-ratelimitd/profserver"
	"github.com/acronis/go-ratelimitd/ratelimit"
	"github.com/acronis/go-ratelimitd/ratelimit/redisstore"
	"github.com/acronis/go-ratelimitd/restapi"
	"github.com/acronis/go-ratelimitd/service"
)

const metricsNamespace = "ratelimitd"

const healthCheckComponentRedis = "redis"

type metricsCollector interface {
	MustRegister(reg prometheus.Registerer)
	Unregister(reg prometheus.Registerer)
}

// App is the root unit of the service. It runs the HTTP API, the sweeper and the optional profiling server,
// and releases the storage connection when stopped.
type App struct {
	HTTPServer *httpserver.HTTPServer
	Registry   *ratelimit.Registry

	unit        *service.CompositeUnit
	logger      log.FieldLogger
	metrics     []metricsCollector
	buildInfo   prometheus.Collector
	memFactory  *ratelimit.MemoryFactory
	redisClient *redis.Client
}

var (
	_ service.Unit              = (*App)(nil)
	_ service.MetricsRegisterer = (*App)(nil)
)

// NewApp wires the storage, the policy registry, the HTTP API, the sweeper and the profiling server.
func NewApp(ctx context.Context, cfg *AppConfig, logger log.FieldLogger) (*App, error) {
	app := &App{logger: logger, buildInfo: version.NewBuildInfoCollector(metricsNamespace)}

	app.memFactory = ratelimit.NewMemoryFactory(ratelimit.MemoryFactoryOpts{
		MaxKeys:          cfg.RateLimit.Storage.MaxKeys,
		MetricsNamespace: metricsNamespace,
	})
	var factory ratelimit.LimiterFactory = app.memFactory
	var healthCheck httpserver.HealthCheck
	if cfg.RateLimit.Storage.Backend == ratelimit.StorageBackendRedis {
		client, err := redisstore.NewClient(ctx, cfg.RateLimit.Storage.Redis, logger)
		if err != nil {
			return nil, err
		}
		app.redisClient = client
		factory = redisstore.NewFactory(client, redisstore.FactoryOpts{
			KeyPrefix: cfg.RateLimit.Storage.Redis.KeyPrefix,
			Fallback:  app.memFactory,
		})
		healthCheck = makeRedisHealthCheck(client)
	}

	decisionMetrics := ratelimit.NewPrometheusMetrics(metricsNamespace)
	rejectMetrics := middleware.NewRateLimitMetricsCollector(metricsNamespace)
	app.metrics = []metricsCollector{decisionMetrics, rejectMetrics}

	app.Registry = ratelimit.NewRegistry(factory, ratelimit.RegistryOpts{
		Metrics:           decisionMetrics,
		Logger:            logger,
		MaxCustomPolicies: cfg.RateLimit.MaxCustomPolicies,
	})
	policies, err := cfg.RateLimit.EffectivePolicies()
	if err != nil {
		app.closeStorage()
		return nil, fmt.Errorf("resolve rate limit policies: %w", err)
	}
	for _, p := range policies {
		if _, err = app.Registry.Register(p); err != nil {
			app.closeStorage()
			return nil, fmt.Errorf("register policy %q: %w", p.Name, err)
		}
	}

	handler := api.NewHandler(app.Registry, api.Opts{
		RateLimit: middleware.RateLimitOpts{
			TrustedKeys:       cfg.RateLimit.TrustedAddrs,
			DryRun:            cfg.RateLimit.DryRun,
			Metrics:           rejectMetrics,
			RejectionLogLevel: cfg.Log.Rejections.Level,
		},
		AdminAddrs: cfg.RateLimit.TrustedAddrs,
	})
	app.HTTPServer = httpserver.New(cfg.Server, logger, httpserver.Opts{
		Routes:             handler.Routes(),
		ErrorDomain:        api.ErrDomain,
		HealthCheck:        healthCheck,
		HTTPRequestMetrics: httpserver.HTTPRequestMetricsOpts{Namespace: metricsNamespace},
	})

	sweeper := service.NewWorkerUnit(service.NewPeriodicWorker(
		ratelimit.NewSweepWorker(app.Registry, ratelimit.SystemClock, logger),
		time.Duration(cfg.RateLimit.Storage.SweepInterval), logger))

	units := []service.Unit{app.HTTPServer, sweeper}
	if cfg.ProfServer.Enabled {
		units = append(units, profserver.New(cfg.ProfServer, logger))
	}
	app.unit = service.NewCompositeUnit(units...)

	logger.Info("rate limiter is configured",
		log.String("storage", string(cfg.RateLimit.Storage.Backend)),
		log.Int("policies", len(policies)),
		log.Bool("dry_run", cfg.RateLimit.DryRun),
		log.String("version", version.Get()),
	)
	return app, nil
}

// Start runs all units of the service.
func (a *App) Start(fatalError chan<- error) {
	a.unit.Start(fatalError)
}

// Stop stops all units and closes the storage connection.
func (a *App) Stop(gracefully bool) error {
	err := a.unit.Stop(gracefully)
	return errors.Join(err, a.closeStorage())
}

// MustRegisterMetrics registers metrics of the service and all its units.
func (a *App) MustRegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(a.buildInfo)
	restapi.MustInitAndRegisterMetrics(metricsNamespace, reg)
	for _, m := range a.metrics {
		m.MustRegister(reg)
	}
	a.memFactory.MustRegisterMetrics(reg)
	a.unit.MustRegisterMetrics(reg)
}

// UnregisterMetrics unregisters metrics of the service and all its units.
func (a *App) UnregisterMetrics(reg prometheus.Registerer) {
	a.unit.UnregisterMetrics(reg)
	a.memFactory.UnregisterMetrics(reg)
	for _, m := range a.metrics {
		m.Unregister(reg)
	}
	restapi.UnregisterMetrics(reg)
	reg.Unregister(a.buildInfo)
}

func (a *App) closeStorage() error {
	if a.redisClient == nil {
		return nil
	}
	if err := a.redisClient.Close(); err != nil && !errors.Is(err, redis.ErrClosed) {
		a.logger.Error("closing Redis client failed", log.Error(err))
		return fmt.Errorf("close Redis client: %w", err)
	}
	return nil
}

func makeRedisHealthCheck(client *redis.Client) httpserver.HealthCheck {
	return func(ctx context.Context) (httpserver.HealthCheckResult, error) {
		status := httpserver.HealthCheckStatusOK
		if err := client.Ping(ctx).Err(); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			status = httpserver.HealthCheckStatusFail
		}
		return httpserver.HealthCheckResult{healthCheckComponentRedis: status}, nil
	}
}
