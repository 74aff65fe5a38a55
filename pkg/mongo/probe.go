package mongo

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

var (
	ErrConnect   = errors.New("mongo: could not reach deployment")
	ErrUnhealthy = errors.New("mongo: primary not reachable")
)

// Probe returns a readiness check that pings the primary. Ledger and
// reconciler writes go to the primary, so a secondary answering is not enough.
func Probe(client *mongo.Client, timeout time.Duration) func(context.Context) error {
	return func(ctx context.Context) error {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		if err := client.Ping(ctx, readpref.Primary()); err != nil {
			return errors.Join(ErrUnhealthy, err)
		}
		return nil
	}
}
