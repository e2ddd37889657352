/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package client

import (
	"context"
	"net/http"

	"github.com/acronis/go-ratelimitd/httpserver/middleware"
)

const headerRequestID = "X-Request-ID"

// RequestIDRoundTripper propagates the X-Request-ID header to the service.
type RequestIDRoundTripper struct {
	Delegate http.RoundTripper

	// RequestIDProvider is middleware.GetRequestIDFromContext by default.
	RequestIDProvider func(ctx context.Context) string
}

// NewRequestIDRoundTripper creates an HTTP transport with X-Request-ID header support.
func NewRequestIDRoundTripper(delegate http.RoundTripper, provider func(ctx context.Context) string) http.RoundTripper {
	if provider == nil {
		provider = middleware.GetRequestIDFromContext
	}
	return &RequestIDRoundTripper{Delegate: delegate, RequestIDProvider: provider}
}

// RoundTrip adds X-Request-ID header to the request.
func (rt *RequestIDRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Header.Get(headerRequestID) != "" {
		return rt.Delegate.RoundTrip(r)
	}
	requestID := rt.RequestIDProvider(r.Context())
	if requestID == "" {
		return rt.Delegate.RoundTrip(r)
	}
	r = r.Clone(r.Context())
	r.Header.Set(headerRequestID, requestID)
	return rt.Delegate.RoundTrip(r)
}
