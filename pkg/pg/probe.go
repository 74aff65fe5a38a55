package pg

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Probe returns a readiness check that acquires a pooled connection and
// pings it, so an exhausted pool reports unhealthy as well.
func Probe(pool *pgxpool.Pool, timeout time.Duration) func(context.Context) error {
	return func(ctx context.Context) error {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		conn, err := pool.Acquire(ctx)
		if err != nil {
			return errors.Join(ErrUnhealthy, err)
		}
		defer conn.Release()
		if err := conn.Ping(ctx); err != nil {
			return errors.Join(ErrUnhealthy, err)
		}
		return nil
	}
}
