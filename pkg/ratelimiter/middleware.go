package ratelimiter

import (
	"errors"
	"hash/fnv"
	"net/http"
	"strconv"
	"strings"
)

const maxKeyLength = 64

// KeyFunc extracts the limiter key of a request. An empty key skips
// limiting.
type KeyFunc func(r *http.Request) string

// Composite joins the non-empty keys of fns with ":"; keys longer than 64
// bytes are replaced by their FNV-1a hash.
func Composite(fns ...KeyFunc) KeyFunc {
	return func(r *http.Request) string {
		parts := make([]string, 0, len(fns))
		for _, fn := range fns {
			if key := fn(r); key != "" {
				parts = append(parts, key)
			}
		}
		key := strings.Join(parts, ":")
		if len(key) <= maxKeyLength {
			return key
		}
		h := fnv.New64a()
		_, _ = h.Write([]byte(key))
		return strconv.FormatUint(h.Sum64(), 36)
	}
}

// ErrorResponder writes the response for a rejected request. err is
// ErrLimitExceeded for denied requests, otherwise the limiter failure.
type ErrorResponder func(w http.ResponseWriter, r *http.Request, err error)

// MiddlewareOption configures Middleware.
type MiddlewareOption func(*middlewareOptions)

type middlewareOptions struct {
	respond ErrorResponder
}

// WithErrorResponder replaces the plain-text error responses, so rejected
// requests can share the API's error envelope. Rate limit headers are set
// before it runs.
func WithErrorResponder(fn ErrorResponder) MiddlewareOption {
	return func(o *middlewareOptions) {
		if fn != nil {
			o.respond = fn
		}
	}
}

func plainText(w http.ResponseWriter, _ *http.Request, err error) {
	code := http.StatusInternalServerError
	if errors.Is(err, ErrLimitExceeded) {
		code = http.StatusTooManyRequests
	}
	http.Error(w, http.StatusText(code), code)
}

// Middleware rejects requests over the limit with 429 and sets the
// X-RateLimit-* and Retry-After headers.
func Middleware(limiter RateLimiter, keyFunc KeyFunc, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	o := middlewareOptions{respond: plainText}
	for _, opt := range opts {
		opt(&o)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFunc(r)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			res, err := limiter.Allow(r.Context(), key)
			if err != nil {
				o.respond(w, r, err)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(res.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(max(0, res.Remaining)))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))

			if !res.Allowed() {
				if secs := int(res.RetryAfter().Seconds()); secs > 0 {
					w.Header().Set("Retry-After", strconv.Itoa(secs))
				}
				o.respond(w, r, ErrLimitExceeded)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
