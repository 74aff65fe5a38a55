// Package redis connects to Redis with retries. reviewhub uses it for the
// shared Stripe price-id cache and the reminder send rate limiter.
package redis
