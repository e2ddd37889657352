/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/acronis/go-ratelimitd/log"
	"github.com/acronis/go-ratelimitd/log/logtest"
)

const testDomain = "TestDomain"

type failingWriteRecorder struct {
	*httptest.ResponseRecorder
}

func (rw *failingWriteRecorder) Write(_ []byte) (int, error) {
	return 0, fmt.Errorf("error on write")
}

func TestRespondJSON(t *testing.T) {
	t.Run("ok", func(t *testing.T) {
		resp := httptest.NewRecorder()
		logger := logtest.NewRecorder()
		RespondJSON(resp, map[string]interface{}{"success": true, "message": "<ok>"}, logger)
		require.Equal(t, http.StatusOK, resp.Code)
		require.Equal(t, ContentTypeAppJSON, resp.Header().Get("Content-Type"))
		require.Equal(t, `{"message":"<ok>","success":true}`, resp.Body.String())
		require.Empty(t, logger.Entries())
	})

	t.Run("marshaling error", func(t *testing.T) {
		resp := httptest.NewRecorder()
		RespondJSON(resp, make(chan bool), nil)
		require.Equal(t, http.StatusInternalServerError, resp.Code)
		require.Empty(t, resp.Body.String())

		resp = httptest.NewRecorder()
		logger := logtest.NewRecorder()
		RespondJSON(resp, make(chan bool), logger)
		require.Equal(t, http.StatusInternalServerError, resp.Code)
		require.Len(t, logger.Entries(), 1)
		require.Equal(t, log.LevelError, logger.Entries()[0].Level)
	})

	t.Run("writing error", func(t *testing.T) {
		resp := &failingWriteRecorder{httptest.NewRecorder()}
		logger := logtest.NewRecorder()
		RespondJSON(resp, "foo", logger)
		require.Len(t, logger.Entries(), 1)
		require.Equal(t, log.LevelError, logger.Entries()[0].Level)
	})

	t.Run("keep Content-Type", func(t *testing.T) {
		resp := httptest.NewRecorder()
		resp.Header().Set("Content-Type", "application/problem+json")
		RespondJSON(resp, "foo", nil)
		require.Equal(t, "application/problem+json", resp.Header().Get("Content-Type"))
	})
}

func TestRespondCodeAndJSON(t *testing.T) {
	resp := httptest.NewRecorder()
	RespondCodeAndJSON(resp, http.StatusTooManyRequests, map[string]interface{}{"error": "slow down", "retry_after": 2}, nil)
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	require.JSONEq(t, `{"error":"slow down","retry_after":2}`, resp.Body.String())

	resp = httptest.NewRecorder()
	RespondCodeAndJSON(resp, http.StatusNoContent, nil, nil)
	require.Equal(t, http.StatusNoContent, resp.Code)
	require.Empty(t, resp.Header().Get("Content-Type"))
}

func TestRespondError(t *testing.T) {
	reg := prometheus.NewRegistry()
	MustInitAndRegisterMetrics("test", reg)
	defer UnregisterMetrics(reg)

	resp := httptest.NewRecorder()
	logger := logtest.NewRecorder()
	apiErr := NewError(testDomain, "policyNotFound", "Policy not found.").AddContext("policy", "foo")
	RespondError(resp, http.StatusNotFound, apiErr, logger)

	require.Equal(t, http.StatusNotFound, resp.Code)
	require.JSONEq(t, `{"error":{"domain":"TestDomain","code":"policyNotFound","message":"Policy not found.","context":{"policy":"foo"}}}`,
		resp.Body.String())

	require.Len(t, logger.Entries(), 1)
	entry := logger.Entries()[0]
	require.Equal(t, log.LevelError, entry.Level)
	field, ok := entry.FindField("error_code")
	require.True(t, ok)
	require.Equal(t, "policyNotFound", string(field.Bytes))

	require.Equal(t, 1.0, promtestutil.ToFloat64(metricsResponseErrors.WithLabelValues(testDomain, "policyNotFound")))
}

func TestRespondMalformedRequestOrInternalError(t *testing.T) {
	resp := httptest.NewRecorder()
	RespondMalformedRequestOrInternalError(resp, testDomain,
		&MalformedRequestError{http.StatusBadRequest, "Request body must not be empty."}, nil)
	require.Equal(t, http.StatusBadRequest, resp.Code)
	require.JSONEq(t, `{"error":{"domain":"TestDomain","code":"badRequest","message":"Request body must not be empty."}}`,
		resp.Body.String())

	resp = httptest.NewRecorder()
	RespondMalformedRequestOrInternalError(resp, testDomain, errors.New("boom"), nil)
	require.Equal(t, http.StatusInternalServerError, resp.Code)
	require.JSONEq(t, `{"error":{"domain":"TestDomain","code":"internalError","message":"Internal error."}}`, resp.Body.String())
}
