package ratelimiter

import "time"

// Result is the outcome of one limiter check.
type Result struct {
	Limit     int       // bucket capacity
	Remaining int       // tokens left; negative when the request was denied
	ResetAt   time.Time // next refill
}

func (r *Result) Allowed() bool {
	return r.Remaining >= 0
}

// RetryAfter is how long to wait before the next attempt, zero if allowed.
func (r *Result) RetryAfter() time.Duration {
	if r.Allowed() {
		return 0
	}
	return max(time.Until(r.ResetAt), 0)
}

// Config defines a token bucket.
type Config struct {
	Capacity       int           // burst size
	RefillRate     int           // tokens added per interval
	RefillInterval time.Duration
}

// PerMinute allows n events per minute with a burst of one.
func PerMinute(n int) Config {
	if n <= 0 {
		return Config{}
	}
	return Config{
		Capacity:       1,
		RefillRate:     1,
		RefillInterval: time.Minute / time.Duration(n),
	}
}
