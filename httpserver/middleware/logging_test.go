/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-ratelimitd/log"
	"github.com/acronis/go-ratelimitd/log/logtest"
)

func requireLogFieldString(t *testing.T, entry logtest.RecordedEntry, key, want string) {
	t.Helper()
	field, found := entry.FindField(key)
	require.True(t, found, "field %q not found", key)
	require.Equal(t, want, string(field.Bytes))
}

func requireLogFieldInt(t *testing.T, entry logtest.RecordedEntry, key string, want int) {
	t.Helper()
	field, found := entry.FindField(key)
	require.True(t, found, "field %q not found", key)
	require.Equal(t, want, int(field.Int))
}

func TestLogging(t *testing.T) {
	makeRequest := func(path string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader("body"))
		req.RemoteAddr = "10.0.0.1:4321"
		req.Header.Set("User-Agent", "ratelimitd-client")
		ctx := NewContextWithInternalRequestID(NewContextWithRequestID(req.Context(), "ext-id"), "int-id")
		return req.WithContext(ctx)
	}

	t.Run("request and response are logged", func(t *testing.T) {
		logger := logtest.NewRecorder()
		var nextLogger log.FieldLogger
		next := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			nextLogger = GetLoggerFromContext(r.Context())
			GetLoggingParamsFromContext(r.Context()).ExtendFields(log.Policy("general"))
			rw.WriteHeader(http.StatusTooManyRequests)
			_, _ = rw.Write([]byte("limited"))
		})
		LoggingWithOpts(logger, LoggingOpts{RequestStart: true})(next).ServeHTTP(httptest.NewRecorder(), makeRequest("/test/general"))

		require.NotNil(t, nextLogger)
		require.Len(t, logger.Entries(), 2)
		require.Equal(t, "request started", logger.Entries()[0].Text)

		entry := logger.Entries()[1]
		require.True(t, strings.HasPrefix(entry.Text, "response completed in "))
		requireLogFieldString(t, entry, "request_id", "ext-id")
		requireLogFieldString(t, entry, "int_request_id", "int-id")
		requireLogFieldString(t, entry, "method", http.MethodPost)
		requireLogFieldString(t, entry, "uri", "/test/general")
		requireLogFieldString(t, entry, "remote_addr_ip", "10.0.0.1")
		requireLogFieldString(t, entry, "user_agent", "ratelimitd-client")
		requireLogFieldString(t, entry, "policy", "general")
		requireLogFieldInt(t, entry, "status", http.StatusTooManyRequests)
		requireLogFieldInt(t, entry, "bytes_sent", len("limited"))
	})

	t.Run("excluded endpoint", func(t *testing.T) {
		logger := logtest.NewRecorder()
		status := http.StatusOK
		next := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) { rw.WriteHeader(status) })
		handler := LoggingWithOpts(logger, LoggingOpts{ExcludedEndpoints: []string{"/healthz"}})(next)

		handler.ServeHTTP(httptest.NewRecorder(), makeRequest("/healthz"))
		require.Empty(t, logger.Entries())

		// Errors are logged even for excluded endpoints.
		status = http.StatusServiceUnavailable
		handler.ServeHTTP(httptest.NewRecorder(), makeRequest("/healthz"))
		require.Len(t, logger.Entries(), 1)
	})

	t.Run("time slots for slow requests", func(t *testing.T) {
		logger := logtest.NewRecorder()
		next := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			lp := GetLoggingParamsFromContext(r.Context())
			lp.AddTimeSlotDurationInMs("rate_limit_check_ms", 5*time.Millisecond)
			lp.AddTimeSlotDurationInMs("ratelimiter_request_ms", 3*time.Millisecond)
			lp.AddTimeSlotDurationInMs("rate_limit_check_ms", 2*time.Millisecond)
			time.Sleep(2 * time.Millisecond)
			rw.WriteHeader(http.StatusOK)
		})
		handler := LoggingWithOpts(logger, LoggingOpts{SlowRequestThreshold: time.Millisecond})(next)
		handler.ServeHTTP(httptest.NewRecorder(), makeRequest("/test/api"))
		require.Len(t, logger.Entries(), 1)
		field, found := logger.Entries()[0].FindField("time_slots")
		require.True(t, found)
		require.Equal(t, timeSlots{{"rate_limit_check_ms", 7}, {"ratelimiter_request_ms", 3}}, field.Any)
	})

	t.Run("no time slots for fast requests", func(t *testing.T) {
		logger := logtest.NewRecorder()
		next := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			GetLoggingParamsFromContext(r.Context()).AddTimeSlotDurationInMs("rate_limit_check_ms", time.Millisecond)
		})
		LoggingWithOpts(logger, LoggingOpts{SlowRequestThreshold: time.Hour})(next).ServeHTTP(httptest.NewRecorder(), makeRequest("/x"))
		require.Len(t, logger.Entries(), 1)
		_, found := logger.Entries()[0].FindField("time_slots")
		require.False(t, found)
	})

	t.Run("request info in logger for next handlers", func(t *testing.T) {
		logger := logtest.NewRecorder()
		next := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			GetLoggerFromContext(r.Context()).Info("handling")
		})
		LoggingWithOpts(logger, LoggingOpts{AddRequestInfoToLogger: true})(next).ServeHTTP(httptest.NewRecorder(), makeRequest("/x"))
		entry, found := logger.FindEntry("handling")
		require.True(t, found)
		requireLogFieldString(t, entry, "uri", "/x")
	})
}
