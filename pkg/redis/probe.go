package redis

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrEmptyConnectionURL = errors.New("redis: REDIS_URL is empty")
	ErrInvalidURL         = errors.New("redis: invalid connection url")
	ErrNotReady           = errors.New("redis: server not ready")
	ErrUnhealthy          = errors.New("redis: ping failed")
)

// Probe returns a readiness check that pings the server. A positive
// timeout bounds each ping independently of the caller's deadline.
func Probe(client redis.UniversalClient, timeout time.Duration) func(context.Context) error {
	return func(ctx context.Context) error {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if pong, err := client.Ping(ctx).Result(); err != nil || pong != "PONG" {
			return errors.Join(ErrUnhealthy, err)
		}
		return nil
	}
}
