package ratelimiter

import (
	"context"
	"time"
)

// Store keeps bucket state. A request for more tokens than available is
// denied without consuming anything; the reported remaining count is then
// negative.
type Store interface {
	ConsumeTokens(ctx context.Context, key string, tokens int, config Config) (remaining int, resetAt time.Time, err error)
	Reset(ctx context.Context, key string) error
}
