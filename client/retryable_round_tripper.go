/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/acronis/go-ratelimitd/log"
	"github.com/acronis/go-ratelimitd/retry"
)

// Default parameter values for RetryableRoundTripper.
const (
	DefaultMaxRetryAttempts                  = 10
	DefaultExponentialBackoffInitialInterval = time.Second
)

// RetryAttemptNumberHeader is an HTTP header name that will contain the serial number of the retry attempt.
const RetryAttemptNumberHeader = "X-Retry-Attempt"

// CheckRetryFunc is called right after the round trip and determines if the next retry attempt is needed.
type CheckRetryFunc func(ctx context.Context, resp *http.Response, roundTripErr error, doneRetryAttempts int) (bool, error)

// RetryableRoundTripperOpts represents an options for RetryableRoundTripper.
type RetryableRoundTripperOpts struct {
	// LoggerProvider provides a context-specific logger. Logger is used when it is nil.
	Logger         log.FieldLogger
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// MaxRetryAttempts bounds the number of retries, so the request may be sent MaxRetryAttempts + 1 times.
	MaxRetryAttempts int

	// CheckRetryFunc is DefaultCheckRetry by default.
	CheckRetryFunc CheckRetryFunc

	// IgnoreRetryAfter disables using the Retry-After header as the delay before the next attempt.
	IgnoreRetryAfter bool

	// MaxRetryAfter is the longest Retry-After delay the round tripper agrees to wait.
	// When the service hints a longer delay, the last response is returned as is. Zero means no limit.
	MaxRetryAfter time.Duration

	// BackoffPolicy computes the delay when the response carries no Retry-After hint.
	BackoffPolicy retry.Policy
}

// RetryableRoundTripper retries requests rejected by the rate limiter or failed with a server or temporary error.
type RetryableRoundTripper struct {
	Delegate http.RoundTripper
	Opts     RetryableRoundTripperOpts
}

// NewRetryableRoundTripper returns a new instance of RetryableRoundTripper.
func NewRetryableRoundTripper(delegate http.RoundTripper) (*RetryableRoundTripper, error) {
	return NewRetryableRoundTripperWithOpts(delegate, RetryableRoundTripperOpts{})
}

// NewRetryableRoundTripperWithOpts creates a new instance of RetryableRoundTripper with specified options.
func NewRetryableRoundTripperWithOpts(
	delegate http.RoundTripper, opts RetryableRoundTripperOpts,
) (*RetryableRoundTripper, error) {
	if opts.MaxRetryAttempts < 0 {
		return nil, fmt.Errorf("incorrect max retry attempts")
	}
	if opts.MaxRetryAfter < 0 {
		return nil, fmt.Errorf("max retry after cannot be negative")
	}
	if opts.MaxRetryAttempts == 0 {
		opts.MaxRetryAttempts = DefaultMaxRetryAttempts
	}
	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	if opts.CheckRetryFunc == nil {
		opts.CheckRetryFunc = DefaultCheckRetry
	}
	if opts.BackoffPolicy == nil {
		opts.BackoffPolicy = retry.NewExponentialBackoffPolicy(DefaultExponentialBackoffInitialInterval, 0)
	}
	return &RetryableRoundTripper{Delegate: delegate, Opts: opts}, nil
}

// RoundTrip performs request with retry logic.
func (rt *RetryableRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	rewindReqBody := func(*http.Request) error { return nil }
	if req.Body != nil && req.Body != http.NoBody {
		originalReqBody := req.Body
		defer func() {
			_ = originalReqBody.Close() // Per RoundTripper contract.
		}()
		var err error
		if rewindReqBody, err = makeRequestBodyRewindable(req); err != nil {
			return nil, &RetryableRoundTripperError{Inner: err}
		}
	}

	reqCtx := req.Context()
	logger := rt.logger(reqCtx)
	bf := retry.NewHintedBackOff(
		backoff.WithMaxRetries(rt.Opts.BackoffPolicy.NewBackOff(), uint64(rt.Opts.MaxRetryAttempts)), //nolint:gosec // validated
		rt.Opts.MaxRetryAfter)
	reqCloned := false

	var resp *http.Response
	var roundTripErr error
	for attempt := 0; ; attempt++ {
		if rewindErr := rewindReqBody(req); rewindErr != nil {
			logger.Error(fmt.Sprintf(
				"failed to rewind request body between retry attempts, %d request(s) done", attempt), log.Error(rewindErr))
			return resp, roundTripErr
		}
		if resp != nil && roundTripErr == nil {
			drainResponseBody(resp, logger)
		}
		if attempt > 0 {
			if !reqCloned {
				req, reqCloned = req.Clone(reqCtx), true // Per RoundTripper contract.
			}
			req.Header.Set(RetryAttemptNumberHeader, strconv.Itoa(attempt))
		}

		resp, roundTripErr = rt.Delegate.RoundTrip(req)

		needRetry, checkErr := rt.Opts.CheckRetryFunc(reqCtx, resp, roundTripErr, attempt)
		if checkErr != nil {
			logger.Error(fmt.Sprintf("failed to check if retry is needed, %d request(s) done", attempt+1),
				log.Error(checkErr))
			return resp, roundTripErr
		}
		if !needRetry {
			return resp, roundTripErr
		}

		if resp != nil && !rt.Opts.IgnoreRetryAfter {
			if retryAfter, ok := parseRetryAfter(resp.Header, time.Now()); ok {
				bf.SetHint(retryAfter)
			}
		}
		waitTime := bf.NextBackOff()
		if waitTime == backoff.Stop {
			logger.Warn(fmt.Sprintf("giving up retrying, %d request(s) done", attempt+1))
			return resp, roundTripErr
		}

		timer := time.NewTimer(waitTime)
		select {
		case <-reqCtx.Done():
			timer.Stop()
			logger.Warn(fmt.Sprintf("context canceled (%v) while waiting for the next retry attempt, %d request(s) done",
				reqCtx.Err(), attempt+1))
			return resp, roundTripErr
		case <-timer.C:
		}
	}
}

func (rt *RetryableRoundTripper) logger(ctx context.Context) log.FieldLogger {
	if rt.Opts.LoggerProvider != nil {
		if l := rt.Opts.LoggerProvider(ctx); l != nil {
			return l
		}
	}
	return rt.Opts.Logger
}

// RetryableRoundTripperError is returned when the original request cannot be potentially retried.
type RetryableRoundTripperError struct {
	Inner error
}

func (e *RetryableRoundTripperError) Error() string {
	return fmt.Sprintf("retryable round trip: %s", e.Inner.Error())
}

// Unwrap returns the next error in the error chain.
func (e *RetryableRoundTripperError) Unwrap() error {
	return e.Inner
}

// DefaultCheckRetry retries 429 and 5xx responses and temporary transport errors.
// Client side rate limiting errors are never retried.
func DefaultCheckRetry(
	_ context.Context, resp *http.Response, roundTripErr error, _ int,
) (needRetry bool, err error) {
	if roundTripErr != nil {
		var waitErr *RateLimitingWaitError
		if errors.As(roundTripErr, &waitErr) {
			return false, nil
		}
		return CheckErrorIsTemporary(roundTripErr), nil
	}
	if resp == nil {
		return false, fmt.Errorf("both response and round trip error are nil")
	}
	return resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= http.StatusInternalServerError, nil
}

// CheckErrorIsTemporary checks either error is temporary or not.
func CheckErrorIsTemporary(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	var terr interface{ Temporary() bool }
	return errors.As(err, &terr) && terr.Temporary()
}
