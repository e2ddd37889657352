/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/vasayxtx/go-glob"

	"github.com/acronis/go-ratelimitd/log"
	"github.com/acronis/go-ratelimitd/ratelimit"
	"github.com/acronis/go-ratelimitd/restapi"
)

// Headers that are set by the RateLimit middleware.
const (
	HeaderRateLimitLimit     = "X-RateLimit-Limit"
	HeaderRateLimitRemaining = "X-RateLimit-Remaining"
	HeaderRateLimitReset     = "X-RateLimit-Reset"
	HeaderRetryAfter         = "Retry-After"
)

// RateLimitParams contains data that relates to the rate limiting procedure
// and could be used for rejecting or handling an occurred error.
type RateLimitParams struct {
	ErrDomain string
	Key       string
	Policy    ratelimit.Policy
	Decision  ratelimit.Decision
}

// RateLimitGetKeyFunc is a function that is called for getting key for rate limiting.
type RateLimitGetKeyFunc func(r *http.Request) (key string, bypass bool, err error)

// RateLimitOnRejectFunc is a function that is called for rejecting HTTP request when the rate limit is exceeded.
type RateLimitOnRejectFunc func(
	rw http.ResponseWriter, r *http.Request, params RateLimitParams, next http.Handler, logger log.FieldLogger)

// RateLimitOnErrorFunc is a function that is called when the limiter fails to make a decision.
type RateLimitOnErrorFunc func(
	rw http.ResponseWriter, r *http.Request, params RateLimitParams, err error, next http.Handler, logger log.FieldLogger)

// RateLimitOpts represents an options for the RateLimit middleware.
type RateLimitOpts struct {
	// GetKey returns the client identifier. The host part of the remote address is used by default.
	GetKey RateLimitGetKeyFunc

	// TrustedKeys is a list of glob patterns. Requests with matching keys bypass rate limiting.
	TrustedKeys []string

	// DryRun makes the middleware serve rejected requests anyway.
	DryRun bool

	// RejectionLogLevel is the level of the "rate limit exceeded" records written by the default
	// reject handlers. Warn if empty.
	RejectionLogLevel log.Level

	OnReject         RateLimitOnRejectFunc
	OnRejectInDryRun RateLimitOnRejectFunc
	OnError          RateLimitOnErrorFunc

	// Metrics collects rejects. May be nil.
	Metrics *RateLimitMetricsCollector
}

type rateLimitHandler struct {
	next      http.Handler
	limiter   ratelimit.Limiter
	errDomain string
	getKey    RateLimitGetKeyFunc
	dryRun    bool
	onReject  RateLimitOnRejectFunc
	onError   RateLimitOnErrorFunc
	metrics   *RateLimitMetricsCollector
}

// RateLimit is a middleware that limits the rate of HTTP requests per client address with the passed limiter.
func RateLimit(limiter ratelimit.Limiter, errDomain string) func(next http.Handler) http.Handler {
	return RateLimitWithOpts(limiter, errDomain, RateLimitOpts{})
}

// RateLimitWithOpts is a configurable version of a middleware to limit the rate of HTTP requests.
func RateLimitWithOpts(limiter ratelimit.Limiter, errDomain string, opts RateLimitOpts) func(next http.Handler) http.Handler {
	getKey := opts.GetKey
	if getKey == nil {
		getKey = GetRateLimitKeyByRemoteAddr
	}
	if len(opts.TrustedKeys) != 0 {
		getKey = makeRateLimitGetKeyWithTrusted(getKey, opts.TrustedKeys)
	}
	return func(next http.Handler) http.Handler {
		return &rateLimitHandler{
			next:      next,
			limiter:   limiter,
			errDomain: errDomain,
			getKey:    getKey,
			dryRun:    opts.DryRun,
			onReject:  makeRateLimitOnRejectFunc(opts),
			onError:   makeRateLimitOnErrorFunc(opts),
			metrics:   opts.Metrics,
		}
	}
}

func (h *rateLimitHandler) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	policy := h.limiter.Policy()
	params := RateLimitParams{ErrDomain: h.errDomain, Policy: policy}
	logger := GetLoggerFromContext(r.Context())

	key, bypass, err := h.getKey(r)
	if err != nil {
		h.onError(rw, r, params, err, h.next, logger)
		return
	}
	if bypass {
		h.next.ServeHTTP(rw, r)
		return
	}
	params.Key = key

	startTime := time.Now()
	decision, err := h.limiter.Check(r.Context(), key)
	if lp := GetLoggingParamsFromContext(r.Context()); lp != nil {
		lp.AddTimeSlotDurationInMs("rate_limit_check_ms", time.Since(startTime))
	}
	if err != nil {
		h.onError(rw, r, params, err, h.next, logger)
		return
	}
	params.Decision = decision

	if !decision.Limited {
		SetRateLimitHeaders(rw.Header(), decision)
		h.next.ServeHTTP(rw, r.WithContext(NewContextWithRateLimitDecision(r.Context(), decision)))
		return
	}

	if h.metrics != nil {
		h.metrics.incRejects(policy, h.dryRun)
	}
	h.onReject(rw, r, params, h.next, logger)
}

// GetRateLimitKeyByRemoteAddr returns the host part of the request's remote address as a key for rate limiting.
func GetRateLimitKeyByRemoteAddr(r *http.Request) (key string, bypass bool, err error) {
	return GetRemoteAddrHost(r), false, nil
}

func makeRateLimitGetKeyWithTrusted(getKey RateLimitGetKeyFunc, trustedKeys []string) RateLimitGetKeyFunc {
	matchers := make([]func(s string) bool, 0, len(trustedKeys))
	for _, key := range trustedKeys {
		matchers = append(matchers, glob.Compile(key))
	}
	return func(r *http.Request) (string, bool, error) {
		key, bypass, err := getKey(r)
		if err != nil || bypass {
			return key, bypass, err
		}
		for _, match := range matchers {
			if match(key) {
				return key, true, nil
			}
		}
		return key, false, nil
	}
}

// SetRateLimitHeaders sets X-RateLimit-* headers for the admitted request.
// The remaining header is skipped when the limiter cannot tell the remaining number of requests.
func SetRateLimitHeaders(header http.Header, decision ratelimit.Decision) {
	header.Set(HeaderRateLimitLimit, strconv.Itoa(decision.Limit))
	if decision.Remaining >= 0 {
		header.Set(HeaderRateLimitRemaining, strconv.Itoa(decision.Remaining))
	}
	if !decision.Reset.IsZero() {
		header.Set(HeaderRateLimitReset, strconv.FormatInt(decision.Reset.Unix(), 10))
	}
}

// RateLimitedResponse is a body of the response for the request rejected by the rate limiter.
type RateLimitedResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retry_after"`
}

// RespondRateLimited sends the response with 429 HTTP status code, the policy message and the retry hint.
func RespondRateLimited(rw http.ResponseWriter, decision ratelimit.Decision, logger log.FieldLogger) {
	retryAfter := decision.RetryAfterSeconds()
	rw.Header().Set(HeaderRetryAfter, strconv.Itoa(retryAfter))
	rw.Header().Set(HeaderRateLimitLimit, strconv.Itoa(decision.Limit))
	rw.Header().Set(HeaderRateLimitRemaining, "0")
	restapi.RespondCodeAndJSON(rw, http.StatusTooManyRequests,
		RateLimitedResponse{Error: decision.Message, RetryAfter: retryAfter}, logger)
}

// DefaultRateLimitOnReject sends the 429 response when the rate limit is exceeded.
func DefaultRateLimitOnReject(
	rw http.ResponseWriter, r *http.Request, params RateLimitParams, next http.Handler, logger log.FieldLogger,
) {
	rateLimitOnRejectAtLevel(log.LevelWarn)(rw, r, params, next, logger)
}

func rateLimitOnRejectAtLevel(level log.Level) RateLimitOnRejectFunc {
	return func(rw http.ResponseWriter, r *http.Request, params RateLimitParams, _ http.Handler, logger log.FieldLogger) {
		if logger != nil {
			logger.Log(level, "rate limit exceeded",
				log.Policy(params.Policy.Name),
				log.ClientKey(params.Key),
				log.String(userAgentLogFieldKey, r.UserAgent()),
				log.Duration("retry_after", params.Decision.RetryAfter),
			)
		}
		RespondRateLimited(rw, params.Decision, logger)
	}
}

// DefaultRateLimitOnError sends the response with 500 HTTP status code when the limiter fails.
func DefaultRateLimitOnError(
	rw http.ResponseWriter, _ *http.Request, params RateLimitParams, err error, _ http.Handler, logger log.FieldLogger,
) {
	if logger != nil {
		logger.Error("rate limit check failed", log.Error(err),
			log.Policy(params.Policy.Name), log.ClientKey(params.Key))
	}
	restapi.RespondInternalError(rw, params.ErrDomain, logger)
}

// DefaultRateLimitOnRejectInDryRun logs the exceeded rate limit and serves the request anyway.
func DefaultRateLimitOnRejectInDryRun(
	rw http.ResponseWriter, r *http.Request, params RateLimitParams, next http.Handler, logger log.FieldLogger,
) {
	rateLimitOnRejectInDryRunAtLevel(log.LevelWarn)(rw, r, params, next, logger)
}

func rateLimitOnRejectInDryRunAtLevel(level log.Level) RateLimitOnRejectFunc {
	return func(rw http.ResponseWriter, r *http.Request, params RateLimitParams, next http.Handler, logger log.FieldLogger) {
		if logger != nil {
			logger.Log(level, "rate limit exceeded, serving will be continued because of dry run mode",
				log.Policy(params.Policy.Name),
				log.ClientKey(params.Key),
				log.String(userAgentLogFieldKey, r.UserAgent()),
			)
		}
		next.ServeHTTP(rw, r)
	}
}

func makeRateLimitOnRejectFunc(opts RateLimitOpts) RateLimitOnRejectFunc {
	level := opts.RejectionLogLevel
	if level == "" {
		level = log.LevelWarn
	}
	if opts.DryRun {
		if opts.OnRejectInDryRun != nil {
			return opts.OnRejectInDryRun
		}
		return rateLimitOnRejectInDryRunAtLevel(level)
	}
	if opts.OnReject != nil {
		return opts.OnReject
	}
	return rateLimitOnRejectAtLevel(level)
}

func makeRateLimitOnErrorFunc(opts RateLimitOpts) RateLimitOnErrorFunc {
	if opts.OnError != nil {
		return opts.OnError
	}
	return DefaultRateLimitOnError
}
