/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package client

import (
	"context"
	"net/http"
	"time"

	"github.com/acronis/go-ratelimitd/httpserver/middleware"
	"github.com/acronis/go-ratelimitd/log"
)

// LoggingMode represents a mode of logging.
type LoggingMode string

// Logging modes.
const (
	LoggingModeNone   LoggingMode = "none"
	LoggingModeAll    LoggingMode = "all"
	LoggingModeFailed LoggingMode = "failed"
)

// IsValid checks if the logger mode is valid.
func (lm LoggingMode) IsValid() bool {
	switch lm {
	case LoggingModeNone, LoggingModeAll, LoggingModeFailed:
		return true
	}
	return false
}

// LoggingRoundTripperOpts represents an options for LoggingRoundTripper.
type LoggingRoundTripperOpts struct {
	// LoggerProvider is middleware.GetLoggerFromContext by default.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	Mode                 LoggingMode
	SlowRequestThreshold time.Duration
}

// LoggingRoundTripper logs outgoing requests to the service.
// A request is logged when it took at least SlowRequestThreshold.
// In the failed mode only transport errors, rejected and failed responses are logged.
type LoggingRoundTripper struct {
	Delegate http.RoundTripper
	Opts     LoggingRoundTripperOpts
}

// NewLoggingRoundTripperWithOpts creates an HTTP transport that logs requests.
func NewLoggingRoundTripperWithOpts(delegate http.RoundTripper, opts LoggingRoundTripperOpts) http.RoundTripper {
	if opts.Mode == "" {
		opts.Mode = LoggingModeFailed
	}
	return &LoggingRoundTripper{Delegate: delegate, Opts: opts}
}

func (rt *LoggingRoundTripper) getLogger(ctx context.Context) log.FieldLogger {
	if rt.Opts.LoggerProvider != nil {
		return rt.Opts.LoggerProvider(ctx)
	}
	return middleware.GetLoggerFromContext(ctx)
}

// RoundTrip implements http.RoundTripper.
func (rt *LoggingRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if rt.Opts.Mode == LoggingModeNone {
		return rt.Delegate.RoundTrip(r)
	}

	ctx := r.Context()
	start := time.Now()
	resp, err := rt.Delegate.RoundTrip(r)
	elapsed := time.Since(start)

	logger := rt.getLogger(ctx)
	if logger == nil || elapsed < rt.Opts.SlowRequestThreshold {
		return resp, err
	}
	if rt.Opts.Mode == LoggingModeFailed && err == nil && resp != nil && resp.StatusCode < http.StatusBadRequest {
		return resp, err
	}

	fields := []log.Field{
		log.String("method", r.Method),
		log.String("uri", r.URL.String()),
		log.DurationIn(elapsed, time.Millisecond),
	}
	if retryAttempt := r.Header.Get(RetryAttemptNumberHeader); retryAttempt != "" {
		fields = append(fields, log.String("retry_attempt", retryAttempt))
	}
	switch {
	case err != nil:
		logger.Error("rate limiter request failed", append(fields, log.Error(err))...)
	case resp.StatusCode == http.StatusTooManyRequests:
		logger.Warn("rate limiter request rejected", append(fields,
			log.Int("status", resp.StatusCode), log.String("retry_after", resp.Header.Get(HeaderRetryAfter)))...)
	default:
		logger.Info("rate limiter request done", append(fields, log.Int("status", resp.StatusCode))...)
	}

	if loggingParams := middleware.GetLoggingParamsFromContext(ctx); loggingParams != nil {
		loggingParams.AddTimeSlotDurationInMs("ratelimiter_request_ms", elapsed)
	}
	return resp, err
}
