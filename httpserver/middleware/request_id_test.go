/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRequestID(t *testing.T) {
	var gotReqID, gotIntReqID string
	next := http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		gotReqID = GetRequestIDFromContext(r.Context())
		gotIntReqID = GetInternalRequestIDFromContext(r.Context())
	})

	t.Run("generate both ids", func(t *testing.T) {
		rec := httptest.NewRecorder()
		RequestID()(next).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		require.Len(t, gotReqID, 20)
		require.Len(t, gotIntReqID, 20)
		require.NotEqual(t, gotReqID, gotIntReqID)
		require.Equal(t, gotReqID, rec.Header().Get(headerRequestID))
		require.Equal(t, gotIntReqID, rec.Header().Get(headerInternalRequestID))
	})

	t.Run("keep external id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(headerRequestID, "external-id")
		rec := httptest.NewRecorder()
		RequestIDWithOpts(RequestIDOpts{GenerateInternalID: func() string { return "internal-id" }})(next).ServeHTTP(rec, req)
		require.Equal(t, "external-id", gotReqID)
		require.Equal(t, "internal-id", gotIntReqID)
		require.Equal(t, "external-id", rec.Header().Get(headerRequestID))
	})
}
