/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"net/http"

	"github.com/acronis/go-ratelimitd/restapi"
)

// RequestBodyLimit rejects requests with Content-Length greater than maxSizeBytes with 413
// and limits reading of the others, so restapi.DecodeRequestJSON fails with 413 too.
func RequestBodyLimit(maxSizeBytes uint64, errDomain string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			if r.ContentLength > 0 && uint64(r.ContentLength) > maxSizeBytes {
				reqErr := restapi.NewTooLargeMalformedRequestError(maxSizeBytes)
				restapi.RespondMalformedRequestError(rw, errDomain, reqErr, GetLoggerFromContext(r.Context()))
				return
			}
			restapi.SetRequestMaxBodySize(rw, r, maxSizeBytes)
			next.ServeHTTP(rw, r)
		})
	}
}
