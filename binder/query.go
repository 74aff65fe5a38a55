package binder

import "net/http"

// Query binds URL query parameters using `query` tags. Slices accept both
// repeated keys and comma-separated values; pointers mark optional fields.
func Query() func(r *http.Request, v any) error {
	return func(r *http.Request, v any) error {
		return bindToStruct(v, "query", r.URL.Query(), ErrInvalidQuery)
	}
}
