package binder

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
)

// DefaultMaxJSONSize caps request bodies read by JSON.
const DefaultMaxJSONSize = 1 << 20

// JSON decodes an application/json body in strict mode: unknown fields and
// trailing data are rejected.
func JSON() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodDelete, http.MethodOptions:
			return ErrBinderNotApplicable
		}

		contentType := r.Header.Get("Content-Type")
		if contentType == "" {
			return fmt.Errorf("%w: expected application/json", ErrMissingContentType)
		}
		mediaType, _, err := mime.ParseMediaType(contentType)
		if err != nil || mediaType != "application/json" {
			return fmt.Errorf("%w: got %s, expected application/json", ErrUnsupportedMediaType, contentType)
		}

		body := http.MaxBytesReader(nil, r.Body, DefaultMaxJSONSize)
		decoder := json.NewDecoder(body)
		decoder.DisallowUnknownFields()

		if err := decoder.Decode(v); err != nil {
			var tooLarge *http.MaxBytesError
			switch {
			case errors.Is(err, io.EOF):
				return fmt.Errorf("%w: empty body", ErrInvalidJSON)
			case errors.As(err, &tooLarge):
				return fmt.Errorf("%w: request body too large (max %d bytes)", ErrInvalidJSON, DefaultMaxJSONSize)
			default:
				return fmt.Errorf("%w: %v", ErrInvalidJSON, err)
			}
		}

		var extra json.RawMessage
		if err := decoder.Decode(&extra); !errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: unexpected data after JSON object", ErrInvalidJSON)
		}

		return nil
	}
}
