/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPCode2ErrorCode(t *testing.T) {
	require.Equal(t, ErrCodeInternal, httpCode2ErrorCode(http.StatusInternalServerError))
	require.Equal(t, ErrCodeBadRequest, httpCode2ErrorCode(http.StatusBadRequest))
	require.Equal(t, "requestEntityTooLarge", httpCode2ErrorCode(http.StatusRequestEntityTooLarge))
	require.Equal(t, "unsupportedMediaType", httpCode2ErrorCode(http.StatusUnsupportedMediaType))
	require.Equal(t, "tooManyRequests", httpCode2ErrorCode(http.StatusTooManyRequests))
}

func TestError(t *testing.T) {
	err := NewError("RateLimiter", "policyNotFound", "Policy not found.")
	require.Equal(t, "RateLimiter: policyNotFound: Policy not found.", err.Error())
	require.Equal(t, "RateLimiter: internalError", (&Error{Domain: "RateLimiter", Code: ErrCodeInternal}).Error())

	err.AddContext("policy", "unknown").AddContext("attempt", 1)
	require.Equal(t, map[string]interface{}{"policy": "unknown", "attempt": 1}, err.Context)
}
