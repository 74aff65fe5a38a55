// Package ratelimiter implements a token bucket limiter with in-memory and
// Redis stores.
//
// ReviewHub uses it to pace outbound reminder emails and to throttle
// per-company billing mutations over HTTP:
//
//	store := ratelimiter.NewRedisStore(redisClient)
//	limiter, err := ratelimiter.NewBucket(store, ratelimiter.PerMinute(60))
//	if err != nil {
//		return err
//	}
//	res, err := limiter.Allow(ctx, "trial-ending-reminder")
//	if err == nil && !res.Allowed() {
//		time.Sleep(res.RetryAfter())
//	}
//
// A denied request does not consume tokens, so a caller that waits for
// RetryAfter and tries again is admitted at the next refill.
package ratelimiter
