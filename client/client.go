/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/acronis/go-ratelimitd/log"
	"github.com/acronis/go-ratelimitd/restapi"
)

const maxResponseBodySize = 1 << 20

// Opts provides options for the New function.
type Opts struct {
	// Delegate is the transport that sends requests. http.DefaultTransport clone is used by default.
	Delegate http.RoundTripper

	// Logger is used when LoggerProvider is nil or returns nil.
	Logger log.FieldLogger

	// LoggerProvider is a function that provides a context-specific logger.
	LoggerProvider func(ctx context.Context) log.FieldLogger

	// RequestIDProvider provides the X-Request-ID value propagated to the service.
	RequestIDProvider func(ctx context.Context) string
}

// Client calls the rate limiting service.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// New creates a new Client. The transport chain is built from the configuration:
// retries wrap the request ID propagation, which wraps pacing, which wraps logging.
func New(cfg *Config, opts Opts) (*Client, error) {
	baseURL, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse service url: %w", err)
	}
	if baseURL.Scheme != "http" && baseURL.Scheme != "https" {
		return nil, fmt.Errorf("service url %q must have http or https scheme", cfg.URL)
	}

	if opts.Logger == nil {
		opts.Logger = log.NewDisabledLogger()
	}
	loggerProvider := func(ctx context.Context) log.FieldLogger {
		if opts.LoggerProvider != nil {
			if l := opts.LoggerProvider(ctx); l != nil {
				return l
			}
		}
		return opts.Logger
	}

	delegate := opts.Delegate
	if delegate == nil {
		delegate = http.DefaultTransport.(*http.Transport).Clone()
	}

	if cfg.Log.Mode != LoggingModeNone {
		delegate = NewLoggingRoundTripperWithOpts(delegate, LoggingRoundTripperOpts{
			LoggerProvider:       loggerProvider,
			Mode:                 cfg.Log.Mode,
			SlowRequestThreshold: time.Duration(cfg.Log.SlowRequestThreshold),
		})
	}

	if cfg.RateLimits.Enabled || cfg.RateLimits.PauseOnExhaustedQuota {
		rateLimit := 0
		if cfg.RateLimits.Enabled {
			rateLimit = cfg.RateLimits.Limit
		}
		delegate, err = NewRateLimitingRoundTripperWithOpts(delegate, rateLimit, RateLimitingRoundTripperOpts{
			Burst:                 cfg.RateLimits.Burst,
			WaitTimeout:           time.Duration(cfg.RateLimits.WaitTimeout),
			PauseOnExhaustedQuota: cfg.RateLimits.PauseOnExhaustedQuota,
		})
		if err != nil {
			return nil, fmt.Errorf("create rate limiting round tripper: %w", err)
		}
	}

	delegate = NewRequestIDRoundTripper(delegate, opts.RequestIDProvider)

	if cfg.Retries.Enabled {
		delegate, err = NewRetryableRoundTripperWithOpts(delegate, RetryableRoundTripperOpts{
			LoggerProvider:   loggerProvider,
			Logger:           opts.Logger,
			MaxRetryAttempts: cfg.Retries.MaxAttempts,
			MaxRetryAfter:    time.Duration(cfg.Retries.MaxRetryAfter),
			BackoffPolicy:    cfg.Retries.BackoffPolicy(),
		})
		if err != nil {
			return nil, fmt.Errorf("create retryable round tripper: %w", err)
		}
	}

	return &Client{
		baseURL:    baseURL,
		httpClient: &http.Client{Transport: delegate, Timeout: time.Duration(cfg.Timeout)},
	}, nil
}

// CheckResult is the outcome of the admitted check.
type CheckResult struct {
	Message string
	// PolicyID is set for custom policies.
	PolicyID string
	// LimitInfo is nil when the service did not count the request (e.g. trusted clients).
	LimitInfo *LimitInfo
}

// LimitInfo describes the remaining quota of the client.
type LimitInfo struct {
	Limit     int
	Remaining int
	Reset     time.Time
}

// CustomPolicy describes an ad hoc policy checked by CheckCustom.
type CustomPolicy struct {
	Window      time.Duration
	MaxRequests int
	Message     string
}

// Policy describes a policy registered in the service.
type Policy struct {
	Name        string
	Window      time.Duration
	MaxRequests int
	Message     string
	Algorithm   string
}

// Check checks the caller against the named policy.
// *LimitedError is returned when the service rejects the request.
func (c *Client) Check(ctx context.Context, policy string) (*CheckResult, error) {
	req, err := c.newRequest(ctx, http.MethodGet, nil, "test", policy)
	if err != nil {
		return nil, err
	}
	return c.doCheck(req)
}

// CheckCustom checks the caller against a policy with the given parameters.
// Policies with equal window and max requests share the quota and the first registered message.
func (c *Client) CheckCustom(ctx context.Context, policy CustomPolicy) (*CheckResult, error) {
	body, err := json.Marshal(customPolicyRequest{
		WindowMS:    policy.Window.Milliseconds(),
		MaxRequests: policy.MaxRequests,
		Message:     policy.Message,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal custom policy: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, body, "custom")
	if err != nil {
		return nil, err
	}
	return c.doCheck(req)
}

// Policies returns the policies registered in the service.
func (c *Client) Policies(ctx context.Context) ([]Policy, error) {
	req, err := c.newRequest(ctx, http.MethodGet, nil, "policies")
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusOK {
		return nil, newResponseError(resp)
	}
	var data policiesResponse
	if err = decodeBody(resp, &data); err != nil {
		return nil, err
	}
	policies := make([]Policy, 0, len(data.Policies))
	for _, p := range data.Policies {
		policies = append(policies, Policy{
			Name:        p.Name,
			Window:      time.Duration(p.WindowMS) * time.Millisecond,
			MaxRequests: p.MaxRequests,
			Message:     p.Message,
			Algorithm:   p.Algorithm,
		})
	}
	return policies, nil
}

// Forget drops the rate limit state of the identifier in all policies.
func (c *Client) Forget(ctx context.Context, identifier string) error {
	req, err := c.newRequest(ctx, http.MethodDelete, nil, "clients", identifier)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer closeBody(resp)
	if resp.StatusCode != http.StatusNoContent && resp.StatusCode != http.StatusOK {
		return newResponseError(resp)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method string, body []byte, pathSegments ...string) (*http.Request, error) {
	escaped := make([]string, len(pathSegments))
	for i, seg := range pathSegments {
		escaped[i] = url.PathEscape(seg)
	}
	reqURL := c.baseURL.JoinPath(escaped...)

	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL.String(), bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (c *Client) doCheck(req *http.Request) (*CheckResult, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer closeBody(resp)

	switch resp.StatusCode {
	case http.StatusOK:
		var data checkResponse
		if err = decodeBody(resp, &data); err != nil {
			return nil, err
		}
		result := &CheckResult{Message: data.Message, PolicyID: data.PolicyID}
		if data.LimitInfo != nil {
			result.LimitInfo = &LimitInfo{
				Limit:     data.LimitInfo.Limit,
				Remaining: data.LimitInfo.Remaining,
				Reset:     time.Unix(data.LimitInfo.Reset, 0),
			}
		}
		return result, nil
	case http.StatusTooManyRequests:
		return nil, newLimitedError(resp)
	default:
		return nil, newResponseError(resp)
	}
}

// LimitedError is returned when the service rejects the request because the quota is exhausted.
type LimitedError struct {
	Message    string
	RetryAfter time.Duration
	Limit      int
}

func (e *LimitedError) Error() string {
	return fmt.Sprintf("rate limited: %s (retry after %s)", e.Message, e.RetryAfter)
}

// IsLimited reports whether err is or wraps *LimitedError.
func IsLimited(err error) bool {
	var limitedErr *LimitedError
	return errors.As(err, &limitedErr)
}

func newLimitedError(resp *http.Response) *LimitedError {
	limitedErr := &LimitedError{}
	limitedErr.Limit, _ = strconv.Atoi(resp.Header.Get(HeaderRateLimitLimit))
	var data rateLimitedResponse
	if err := decodeBody(resp, &data); err == nil {
		limitedErr.Message = data.Error
		limitedErr.RetryAfter = time.Duration(data.RetryAfter) * time.Second
		return limitedErr
	}
	limitedErr.RetryAfter, _ = parseRetryAfter(resp.Header, time.Now())
	return limitedErr
}

// ResponseError is returned when the service responds with an unexpected status.
// Err is set when the response carries the service error.
type ResponseError struct {
	StatusCode int
	Err        *restapi.Error
}

func (e *ResponseError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("unexpected response status %d", e.StatusCode)
	}
	return fmt.Sprintf("unexpected response status %d: %s", e.StatusCode, e.Err.Error())
}

// Unwrap returns the service error.
func (e *ResponseError) Unwrap() error {
	if e.Err == nil {
		return nil
	}
	return e.Err
}

func newResponseError(resp *http.Response) *ResponseError {
	respErr := &ResponseError{StatusCode: resp.StatusCode}
	var data restapi.ErrorResponseData
	if err := decodeBody(resp, &data); err == nil && data.Err != nil {
		respErr.Err = data.Err
	}
	return respErr
}

func decodeBody(resp *http.Response, dst interface{}) error {
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBodySize)).Decode(dst); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}
	return nil
}

func closeBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodySize))
	_ = resp.Body.Close()
}
