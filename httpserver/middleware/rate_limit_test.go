/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-ratelimitd/log"
	"github.com/acronis/go-ratelimitd/log/logtest"
	"github.com/acronis/go-ratelimitd/ratelimit"
	"github.com/acronis/go-ratelimitd/testutil"
)

const testErrDomain = "TestDomain"

type failingLimiter struct {
	policy ratelimit.Policy
	err    error
}

func (l *failingLimiter) Check(context.Context, string) (ratelimit.Decision, error) {
	return ratelimit.Decision{}, l.err
}

func (l *failingLimiter) Policy() ratelimit.Policy {
	return l.policy
}

type countingHandler struct {
	mu    sync.Mutex
	calls int
}

func (h *countingHandler) ServeHTTP(rw http.ResponseWriter, _ *http.Request) {
	h.mu.Lock()
	h.calls++
	h.mu.Unlock()
	rw.WriteHeader(http.StatusOK)
}

func (h *countingHandler) Calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls
}

func newTestLimiter(t *testing.T, maxRequests int) ratelimit.Limiter {
	t.Helper()
	lim, err := ratelimit.NewMemoryFactory(ratelimit.MemoryFactoryOpts{}).NewLimiter(ratelimit.Policy{
		Name:        "test",
		Window:      time.Minute,
		MaxRequests: maxRequests,
		Message:     "Too many test requests.",
	})
	require.NoError(t, err)
	return lim
}

func sendRequest(handler http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestRateLimit(t *testing.T) {
	next := &countingHandler{}
	handler := RateLimit(newTestLimiter(t, 2), testErrDomain)(next)

	for i := 0; i < 2; i++ {
		rec := sendRequest(handler, "10.0.0.1:1234")
		require.Equal(t, http.StatusOK, rec.Code)
		testutil.RequireRateLimitHeaders(t, rec.Header(), 2, 1-i)
	}

	// Another port of the same host shares the limit.
	rec := sendRequest(handler, "10.0.0.1:5678")
	retryAfter := testutil.RequireLimitedInRecorder(t, rec, "Too many test requests.")
	require.InDelta(t, 60, retryAfter, 1)
	require.Equal(t, "0", rec.Header().Get(HeaderRateLimitRemaining))
	require.Equal(t, 2, next.Calls())

	// Another host is independent.
	rec = sendRequest(handler, "10.0.0.2:1234")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 3, next.Calls())
}

func TestRateLimit_TrustedKeys(t *testing.T) {
	next := &countingHandler{}
	handler := RateLimitWithOpts(newTestLimiter(t, 1), testErrDomain, RateLimitOpts{
		TrustedKeys: []string{"127.0.0.*", "10.1.*"},
	})(next)

	for i := 0; i < 3; i++ {
		rec := sendRequest(handler, "127.0.0.1:1234")
		require.Equal(t, http.StatusOK, rec.Code)
		require.Empty(t, rec.Header().Get(HeaderRateLimitLimit), "trusted requests are not counted")
	}
	require.Equal(t, http.StatusOK, sendRequest(handler, "10.1.2.3:1").Code)
	require.Equal(t, http.StatusOK, sendRequest(handler, "10.1.2.3:1").Code)

	require.Equal(t, http.StatusOK, sendRequest(handler, "192.168.0.1:1").Code)
	require.Equal(t, http.StatusTooManyRequests, sendRequest(handler, "192.168.0.1:1").Code)
	require.Equal(t, 6, next.Calls())
}

func TestRateLimit_DryRun(t *testing.T) {
	metrics := NewRateLimitMetricsCollector("")
	next := &countingHandler{}
	logger := logtest.NewRecorder()
	handler := RateLimitWithOpts(newTestLimiter(t, 1), testErrDomain, RateLimitOpts{DryRun: true, Metrics: metrics})(next)

	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		req = req.WithContext(NewContextWithLogger(req.Context(), logger))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	require.Equal(t, 3, next.Calls())
	require.Equal(t, 2, logger.CountEntriesAtLevel(log.LevelWarn))
	testutil.RequireCounterVecValue(t, metrics.Rejects, 2, "test", metricsValYes)
}

func TestRateLimit_RejectionLogLevel(t *testing.T) {
	logger := logtest.NewRecorder()
	handler := RateLimitWithOpts(newTestLimiter(t, 1), testErrDomain, RateLimitOpts{
		RejectionLogLevel: log.LevelDebug,
	})(&countingHandler{})

	for _, wantCode := range []int{http.StatusOK, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.2:1234"
		req = req.WithContext(NewContextWithLogger(req.Context(), logger))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		require.Equal(t, wantCode, rec.Code)
	}

	require.Zero(t, logger.CountEntriesAtLevel(log.LevelWarn))
	entry, found := logger.FindEntry("rate limit exceeded")
	require.True(t, found)
	require.Equal(t, log.LevelDebug, entry.Level)
	key, found := entry.FindField("client_key")
	require.True(t, found)
	require.Equal(t, "10.0.0.2", string(key.Bytes))
}

func TestRateLimit_CustomKeyAndOnReject(t *testing.T) {
	metrics := NewRateLimitMetricsCollector("")
	var rejectedKeys []string
	handler := RateLimitWithOpts(newTestLimiter(t, 1), testErrDomain, RateLimitOpts{
		GetKey: func(r *http.Request) (string, bool, error) {
			return r.Header.Get("X-Client-ID"), false, nil
		},
		OnReject: func(rw http.ResponseWriter, r *http.Request, params RateLimitParams, _ http.Handler, _ log.FieldLogger) {
			rejectedKeys = append(rejectedKeys, params.Key)
			require.True(t, params.Decision.Limited)
			require.Equal(t, "test", params.Policy.Name)
			rw.WriteHeader(http.StatusServiceUnavailable)
		},
		Metrics: metrics,
	})(&countingHandler{})

	send := func(clientID string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Client-ID", clientID)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}
	require.Equal(t, http.StatusOK, send("a"))
	require.Equal(t, http.StatusServiceUnavailable, send("a"))
	require.Equal(t, http.StatusOK, send("b"))
	require.Equal(t, []string{"a"}, rejectedKeys)
	testutil.RequireCounterVecValue(t, metrics.Rejects, 1, "test", metricsValNo)
}

func TestRateLimit_Errors(t *testing.T) {
	errStorage := errors.New("storage is unavailable")

	t.Run("limiter error", func(t *testing.T) {
		next := &countingHandler{}
		logger := logtest.NewRecorder()
		handler := RateLimit(&failingLimiter{ratelimit.Policy{Name: "test"}, errStorage}, testErrDomain)(next)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req = req.WithContext(NewContextWithLogger(req.Context(), logger))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		testutil.RequireErrorInRecorder(t, rec, http.StatusInternalServerError, testErrDomain, "internalError")
		require.Equal(t, 0, next.Calls())
		entry, found := logger.FindEntry("rate limit check failed")
		require.True(t, found)
		require.Equal(t, log.LevelError, entry.Level)
	})

	t.Run("key error", func(t *testing.T) {
		var gotErr error
		handler := RateLimitWithOpts(newTestLimiter(t, 1), testErrDomain, RateLimitOpts{
			GetKey: func(*http.Request) (string, bool, error) { return "", false, errStorage },
			OnError: func(rw http.ResponseWriter, _ *http.Request, _ RateLimitParams, err error, _ http.Handler, _ log.FieldLogger) {
				gotErr = err
				rw.WriteHeader(http.StatusBadGateway)
			},
		})(&countingHandler{})
		rec := sendRequest(handler, "10.0.0.1:1")
		require.Equal(t, http.StatusBadGateway, rec.Code)
		require.ErrorIs(t, gotErr, errStorage)
	})
}

func TestGetRateLimitKeyByRemoteAddr(t *testing.T) {
	for remoteAddr, wantKey := range map[string]string{
		"10.0.0.1:1234":      "10.0.0.1",
		"[2001:db8::1]:8080": "2001:db8::1",
		"unix-socket":        "unix-socket",
	} {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remoteAddr
		key, bypass, err := GetRateLimitKeyByRemoteAddr(req)
		require.NoError(t, err)
		require.False(t, bypass)
		require.Equal(t, wantKey, key)
	}
}

func TestSetRateLimitHeaders(t *testing.T) {
	header := http.Header{}
	SetRateLimitHeaders(header, ratelimit.Decision{Limit: 10, Remaining: -1})
	require.Equal(t, "10", header.Get(HeaderRateLimitLimit))
	require.Empty(t, header.Get(HeaderRateLimitRemaining))
	require.Empty(t, header.Get(HeaderRateLimitReset))

	reset := time.Unix(1700000000, 0)
	SetRateLimitHeaders(header, ratelimit.Decision{Limit: 10, Remaining: 3, Reset: reset})
	require.Equal(t, "3", header.Get(HeaderRateLimitRemaining))
	require.Equal(t, "1700000000", header.Get(HeaderRateLimitReset))
}
