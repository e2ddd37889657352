/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Default parameter values for RateLimitingRoundTripper.
const (
	DefaultRateLimitingBurst       = 1
	DefaultRateLimitingWaitTimeout = 15 * time.Second
)

// Headers the service sets on its responses.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
)

// RateLimitingRoundTripperOpts represents an options for RateLimitingRoundTripper.
type RateLimitingRoundTripperOpts struct {
	Burst       int
	WaitTimeout time.Duration

	// PauseOnExhaustedQuota makes the round tripper hold outgoing requests
	// until the quota reported by the service (X-RateLimit-Reset or Retry-After) is restored.
	PauseOnExhaustedQuota bool
}

// RateLimitingRoundTripper paces outgoing requests with a token bucket
// and optionally pauses them while the service reports an exhausted quota.
type RateLimitingRoundTripper struct {
	Delegate http.RoundTripper

	RateLimit             int
	Burst                 int
	WaitTimeout           time.Duration
	PauseOnExhaustedQuota bool

	rateLimiter *rate.Limiter
	now         func() time.Time

	mu          sync.Mutex
	pausedUntil time.Time
}

// NewRateLimitingRoundTripper creates a new RateLimitingRoundTripper with specified rate limit (requests per second).
func NewRateLimitingRoundTripper(delegate http.RoundTripper, rateLimit int) (*RateLimitingRoundTripper, error) {
	return NewRateLimitingRoundTripperWithOpts(delegate, rateLimit, RateLimitingRoundTripperOpts{})
}

// NewRateLimitingRoundTripperWithOpts creates a new RateLimitingRoundTripper with specified rate limit and options.
// Zero rate limit disables pacing, so only the pause on exhausted quota is applied.
func NewRateLimitingRoundTripperWithOpts(
	delegate http.RoundTripper, rateLimit int, opts RateLimitingRoundTripperOpts,
) (*RateLimitingRoundTripper, error) {
	if rateLimit < 0 {
		return nil, fmt.Errorf("rate limit cannot be negative")
	}
	if opts.Burst < 0 {
		return nil, fmt.Errorf("burst must be positive")
	}
	if opts.Burst == 0 {
		opts.Burst = DefaultRateLimitingBurst
	}
	if opts.WaitTimeout == 0 {
		opts.WaitTimeout = DefaultRateLimitingWaitTimeout
	}

	limit := rate.Inf
	if rateLimit > 0 {
		limit = rate.Limit(rateLimit)
	}
	return &RateLimitingRoundTripper{
		Delegate:              delegate,
		RateLimit:             rateLimit,
		Burst:                 opts.Burst,
		WaitTimeout:           opts.WaitTimeout,
		PauseOnExhaustedQuota: opts.PauseOnExhaustedQuota,
		rateLimiter:           rate.NewLimiter(limit, opts.Burst),
		now:                   time.Now,
	}, nil
}

// RoundTrip executes a single HTTP transaction, returning a Response for the provided Request.
func (rt *RateLimitingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if err := rt.wait(r.Context()); err != nil {
		if r.Body != nil {
			_ = r.Body.Close() // Per RoundTripper contract.
		}
		return nil, err
	}

	resp, err := rt.Delegate.RoundTrip(r)
	if err != nil {
		return resp, err
	}
	if rt.PauseOnExhaustedQuota {
		rt.pauseIfQuotaExhausted(resp)
	}
	return resp, nil
}

func (rt *RateLimitingRoundTripper) wait(reqCtx context.Context) error {
	ctx, cancel := context.WithTimeout(reqCtx, rt.WaitTimeout)
	defer cancel()

	if pause := rt.pauseLeft(); pause > 0 {
		if pause > rt.WaitTimeout {
			return &RateLimitingWaitError{Inner: fmt.Errorf("quota is exhausted for %s", pause)}
		}
		timer := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			timer.Stop()
			return rt.waitErr(reqCtx, ctx.Err())
		case <-timer.C:
		}
	}

	if err := rt.rateLimiter.Wait(ctx); err != nil {
		return rt.waitErr(reqCtx, err)
	}
	return nil
}

func (rt *RateLimitingRoundTripper) waitErr(reqCtx context.Context, err error) error {
	if errors.Is(reqCtx.Err(), context.Canceled) {
		return reqCtx.Err()
	}
	return &RateLimitingWaitError{Inner: err}
}

func (rt *RateLimitingRoundTripper) pauseLeft() time.Duration {
	rt.mu.Lock()
	defer rt.mu.Unlock()
	if left := rt.pausedUntil.Sub(rt.now()); left > 0 {
		return left
	}
	return 0
}

func (rt *RateLimitingRoundTripper) pauseIfQuotaExhausted(resp *http.Response) {
	var until time.Time
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter, ok := parseRetryAfter(resp.Header, rt.now())
		if !ok {
			return
		}
		until = rt.now().Add(retryAfter)
	case resp.Header.Get(HeaderRateLimitRemaining) == "0":
		resetUnix, err := strconv.ParseInt(resp.Header.Get(HeaderRateLimitReset), 10, 64)
		if err != nil || resetUnix <= 0 {
			return
		}
		until = time.Unix(resetUnix, 0)
	default:
		return
	}

	rt.mu.Lock()
	if until.After(rt.pausedUntil) {
		rt.pausedUntil = until
	}
	rt.mu.Unlock()
}

// RateLimitingWaitError is returned in RoundTrip method of RateLimitingRoundTripper
// when the request cannot be sent within the wait timeout.
type RateLimitingWaitError struct {
	Inner error
}

func (e *RateLimitingWaitError) Error() string {
	return fmt.Sprintf("wait due to client side rate limiting: %s", e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *RateLimitingWaitError) Unwrap() error {
	return e.Inner
}

// parseRetryAfter parses the Retry-After header in either delay-seconds or HTTP-date form.
func parseRetryAfter(header http.Header, now time.Time) (time.Duration, bool) {
	val := header.Get(HeaderRetryAfter)
	if val == "" {
		return 0, false
	}
	secs, err := strconv.Atoi(val)
	if err != nil {
		at, parseErr := http.ParseTime(val)
		if parseErr != nil {
			return 0, false
		}
		if d := at.Sub(now); d > 0 {
			return d, true
		}
		return 0, true
	}
	if secs < 0 {
		return 0, false
	}
	return time.Duration(secs) * time.Second, true
}
