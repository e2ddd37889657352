/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"

	"github.com/acronis/go-ratelimitd/log"
	"github.com/acronis/go-ratelimitd/ratelimit"
	"github.com/acronis/go-ratelimitd/retry"
)

const pingRetryInitialInterval = 200 * time.Millisecond

// FactoryOpts represents options for Factory.
type FactoryOpts struct {
	// KeyPrefix is prepended to all Redis keys.
	KeyPrefix string

	// Clock is used by created limiters. ratelimit.SystemClock is used if nil.
	Clock ratelimit.Clock

	// Fallback creates limiters for algorithms other than sliding log, which are kept in memory.
	Fallback ratelimit.LimiterFactory
}

// Factory creates sliding log limiters that keep client state in Redis.
type Factory struct {
	client    Client
	keyPrefix string
	clock     ratelimit.Clock
	fallback  ratelimit.LimiterFactory
}

var (
	_ ratelimit.LimiterFactory = (*Factory)(nil)
	_ ratelimit.Sweeper        = (*Factory)(nil)
)

// NewFactory creates a new Factory.
func NewFactory(client Client, opts FactoryOpts) *Factory {
	return &Factory{client: client, keyPrefix: opts.KeyPrefix, clock: opts.Clock, fallback: opts.Fallback}
}

// NewLimiter creates a limiter for the policy.
// Sliding log policies are backed by Redis, others are delegated to the fallback factory.
func (f *Factory) NewLimiter(policy ratelimit.Policy) (ratelimit.Limiter, error) {
	switch policy.Algorithm {
	case "", ratelimit.AlgorithmSlidingLog:
		return NewSlidingLogLimiter(f.client, f.keyPrefix, policy, f.clock)
	}
	if f.fallback == nil {
		return nil, fmt.Errorf("%w: algorithm %q is not supported by Redis storage", ratelimit.ErrInvalidPolicy, policy.Algorithm)
	}
	return f.fallback.NewLimiter(policy)
}

// Sweep delegates to the fallback factory. Redis keys expire on their own.
func (f *Factory) Sweep(now time.Time) int {
	if s, ok := f.fallback.(ratelimit.Sweeper); ok {
		return s.Sweep(now)
	}
	return 0
}

// NewClient creates a Redis client from the configuration and waits until the server responds to PING.
func NewClient(ctx context.Context, cfg ratelimit.RedisConfig, logger log.FieldLogger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Address,
		Password:    cfg.Password,
		DB:          cfg.DB,
		DialTimeout: time.Duration(cfg.DialTimeout),
	})
	pingPolicy := retry.NewExponentialBackoffPolicy(pingRetryInitialInterval, cfg.PingAttempts)
	notify := func(err error, next time.Duration) {
		logger.Warn("Redis is not ready, ping will be retried", log.String("address", cfg.Address),
			log.Error(err), log.Duration("retry_in", next))
	}
	err := retry.DoWithRetry(ctx, pingPolicy, nil, backoff.Notify(notify), func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping Redis at %s: %w", cfg.Address, err)
	}
	return client, nil
}
