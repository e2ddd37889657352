/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package redisstore

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"

	"github.com/acronis/go-ratelimitd/ratelimit"
)

// KEYS[1] - sorted set of admission timestamps.
// ARGV[1] - now (us), ARGV[2] - window (us), ARGV[3] - max requests, ARGV[4] - unique member for this request.
// Returns {admitted (0|1), remaining, retry_after (us)}.
var slidingLogScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local max = tonumber(ARGV[3])

redis.call("ZREMRANGEBYSCORE", key, "-inf", now - window)
local count = redis.call("ZCARD", key)

if count >= max then
    local retry_after = 0
    local oldest = redis.call("ZRANGE", key, 0, 0, "WITHSCORES")
    if oldest[2] ~= nil then
        retry_after = math.max(0, tonumber(oldest[2]) + window - now)
    end
    return {0, 0, retry_after}
end

redis.call("ZADD", key, now, ARGV[4])
redis.call("PEXPIRE", key, math.ceil(window / 1000))
return {1, max - count - 1, 0}
`)

// Client is the subset of Redis commands used by the limiter. *redis.Client implements it.
type Client interface {
	redis.Scripter
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// SlidingLogLimiter implements the exact sliding window algorithm over a Redis sorted set.
type SlidingLogLimiter struct {
	client    Client
	keyPrefix string
	policy    ratelimit.Policy
	clock     ratelimit.Clock
}

var _ ratelimit.Forgetter = (*SlidingLogLimiter)(nil)

// NewSlidingLogLimiter creates a new Redis-backed sliding log limiter.
// Clock can be nil, in this case ratelimit.SystemClock is used.
func NewSlidingLogLimiter(
	client Client, keyPrefix string, policy ratelimit.Policy, clock ratelimit.Clock,
) (*SlidingLogLimiter, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	if policy.Algorithm == "" {
		policy.Algorithm = ratelimit.AlgorithmSlidingLog
	}
	if policy.Algorithm != ratelimit.AlgorithmSlidingLog {
		return nil, fmt.Errorf("%w: algorithm %q is not supported by Redis storage", ratelimit.ErrInvalidPolicy, policy.Algorithm)
	}
	if clock == nil {
		clock = ratelimit.SystemClock
	}
	return &SlidingLogLimiter{client: client, keyPrefix: keyPrefix, policy: policy, clock: clock}, nil
}

// Policy returns the policy the limiter enforces.
func (l *SlidingLogLimiter) Policy() ratelimit.Policy {
	return l.policy
}

// Check records a request of the identified client and returns the decision.
func (l *SlidingLogLimiter) Check(ctx context.Context, identifier string) (ratelimit.Decision, error) {
	now := l.clock.Now()
	res, err := slidingLogScript.Run(ctx, l.client, []string{l.key(identifier)},
		now.UnixMicro(), l.policy.Window.Microseconds(), l.policy.MaxRequests, xid.New().String(),
	).Int64Slice()
	if err != nil {
		return ratelimit.Decision{}, fmt.Errorf("run sliding log script: %w", err)
	}
	if len(res) != 3 {
		return ratelimit.Decision{}, fmt.Errorf("unexpected sliding log script result %v", res)
	}

	if res[0] == 0 {
		return ratelimit.Decision{
			Limited:    true,
			Message:    l.policy.Message,
			RetryAfter: time.Duration(res[2]) * time.Microsecond,
			Limit:      l.policy.MaxRequests,
			Remaining:  0,
			Policy:     l.policy.Name,
		}, nil
	}
	return ratelimit.Decision{
		Limit:     l.policy.MaxRequests,
		Remaining: int(res[1]),
		Reset:     now.Add(l.policy.Window),
		Policy:    l.policy.Name,
	}, nil
}

// Forget deletes the sorted set of the identified client.
func (l *SlidingLogLimiter) Forget(ctx context.Context, identifier string) error {
	if err := l.client.Del(ctx, l.key(identifier)).Err(); err != nil {
		return fmt.Errorf("delete client state: %w", err)
	}
	return nil
}

func (l *SlidingLogLimiter) key(identifier string) string {
	return l.keyPrefix + l.policy.Name + ":" + identifier
}
