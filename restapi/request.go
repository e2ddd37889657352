/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package restapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"code.cloudfoundry.org/bytefmt"
)

// MalformedRequestError is returned when a request cannot be accepted as is.
// HTTPStatusCode and Message are sent to the client.
type MalformedRequestError struct {
	HTTPStatusCode int
	Message        string
}

// Error implements error.
func (e *MalformedRequestError) Error() string {
	return e.Message
}

func badRequest(format string, args ...interface{}) *MalformedRequestError {
	return &MalformedRequestError{http.StatusBadRequest, fmt.Sprintf(format, args...)}
}

// NewTooLargeMalformedRequestError is returned when the request body is larger than maxSizeBytes.
func NewTooLargeMalformedRequestError(maxSizeBytes uint64) *MalformedRequestError {
	return &MalformedRequestError{
		http.StatusRequestEntityTooLarge,
		fmt.Sprintf("Request body must not be larger than %s.", bytefmt.ByteSize(maxSizeBytes)),
	}
}

// SetRequestMaxBodySize limits the number of bytes DecodeRequestJSON may read from the request body.
func SetRequestMaxBodySize(w http.ResponseWriter, r *http.Request, maxSizeBytes uint64) {
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxSizeBytes))
}

// DecodeRequestJSON decodes the request body holding a single JSON object into dst.
// A missing Content-Type is treated as JSON. Errors caused by the client are returned as *MalformedRequestError.
func DecodeRequestJSON(r *http.Request, dst interface{}) error {
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err := mime.ParseMediaType(ct)
		if err != nil {
			return &MalformedRequestError{http.StatusUnsupportedMediaType, fmt.Sprintf("Content-Type is malformed: %s.", err)}
		}
		if mediaType != ContentTypeAppJSON {
			return &MalformedRequestError{http.StatusUnsupportedMediaType, fmt.Sprintf("Content-Type %q is not supported.", mediaType)}
		}
	}

	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(dst); err != nil {
		return decodingError(err)
	}
	if decoder.More() {
		return badRequest("Request body must only contain a single JSON object.")
	}
	return nil
}

func decodingError(err error) error {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	var tooLargeErr *http.MaxBytesError
	switch {
	case errors.Is(err, io.EOF):
		return badRequest("Request body must not be empty.")
	case errors.Is(err, io.ErrUnexpectedEOF):
		return badRequest("Request body contains badly-formed JSON.")
	case errors.As(err, &syntaxErr):
		return badRequest("Request body contains badly-formed JSON (at position %d).", syntaxErr.Offset)
	case errors.As(err, &typeErr) && typeErr.Field != "":
		return badRequest("Request body contains an invalid value for the %q field (at position %d).", typeErr.Field, typeErr.Offset)
	case errors.As(err, &typeErr):
		return badRequest("Request body contains an invalid value of type %q for the field of type %s.", typeErr.Value, typeErr.Type)
	case errors.As(err, &tooLargeErr):
		return NewTooLargeMalformedRequestError(uint64(tooLargeErr.Limit))
	default:
		return err
	}
}
