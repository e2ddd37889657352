/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"

	"github.com/stretchr/testify/require"
)

const contentTypeAppJSON = "application/json"

type errorRespData struct {
	Error struct {
		Domain string `json:"domain"`
		Code   string `json:"code"`
	} `json:"error"`
}

// LimitedRespData is a body of the response with 429 HTTP status code.
type LimitedRespData struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retry_after"`
}

// RequireErrorInRecorder asserts that passing httptest.ResponseRecorder contains error.
func RequireErrorInRecorder(t require.TestingT, resp *httptest.ResponseRecorder, wantHTTPCode int, wantErrDomain, wantErrCode string) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireErrorInResponse(t, resp.Code, resp.Header(), resp.Body, wantHTTPCode, wantErrDomain, wantErrCode)
}

// RequireErrorInResponse asserts that passing http.Response contains the error.
func RequireErrorInResponse(t require.TestingT, resp *http.Response, wantHTTPCode int, wantErrDomain, wantErrCode string) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireErrorInResponse(t, resp.StatusCode, resp.Header, resp.Body, wantHTTPCode, wantErrDomain, wantErrCode)
}

func requireErrorInResponse(
	t require.TestingT, code int, header http.Header, body io.Reader, wantHTTPCode int, wantErrDomain, wantErrCode string,
) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, wantHTTPCode, code)
	require.Equal(t, contentTypeAppJSON, header.Get("Content-Type"))
	var errResp errorRespData
	require.NoError(t, json.NewDecoder(body).Decode(&errResp))
	require.Equal(t, wantErrDomain, errResp.Error.Domain)
	require.Equal(t, wantErrCode, errResp.Error.Code)
}

// RequireJSONInRecorder asserts that passing httptest.ResponseRecorder contains the data in json format.
func RequireJSONInRecorder(t require.TestingT, resp *httptest.ResponseRecorder, want, dest interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireJSONInResponse(t, resp.Header(), resp.Body, want, dest)
}

// RequireJSONInResponse asserts that passing http.Response contains the data in json format.
func RequireJSONInResponse(t require.TestingT, resp *http.Response, want, dest interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	requireJSONInResponse(t, resp.Header, resp.Body, want, dest)
}

func requireJSONInResponse(t require.TestingT, header http.Header, body io.Reader, want, dest interface{}) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, contentTypeAppJSON, header.Get("Content-Type"))
	bodyBytes, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(bodyBytes, dest))
	require.Equal(t, want, dest)
}

// RequireRateLimitHeaders asserts that X-RateLimit-Limit and X-RateLimit-Remaining headers have the expected values
// and X-RateLimit-Reset contains a unix timestamp.
func RequireRateLimitHeaders(t require.TestingT, header http.Header, wantLimit, wantRemaining int) {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, strconv.Itoa(wantLimit), header.Get("X-RateLimit-Limit"))
	require.Equal(t, strconv.Itoa(wantRemaining), header.Get("X-RateLimit-Remaining"))
	_, err := strconv.ParseInt(header.Get("X-RateLimit-Reset"), 10, 64)
	require.NoError(t, err, "X-RateLimit-Reset should be a unix timestamp")
}

// RequireLimitedInRecorder asserts that passing httptest.ResponseRecorder contains the 429 response
// with the expected message, and returns its retry hint in seconds.
func RequireLimitedInRecorder(t require.TestingT, resp *httptest.ResponseRecorder, wantMessage string) int {
	if h, ok := t.(tHelper); ok {
		h.Helper()
	}
	require.Equal(t, http.StatusTooManyRequests, resp.Code)
	require.Equal(t, contentTypeAppJSON, resp.Header().Get("Content-Type"))
	var data LimitedRespData
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&data))
	require.Equal(t, wantMessage, data.Error)
	require.GreaterOrEqual(t, data.RetryAfter, 0)
	require.Equal(t, strconv.Itoa(data.RetryAfter), resp.Header().Get("Retry-After"))
	return data.RetryAfter
}
