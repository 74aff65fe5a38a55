package redis

import "time"

// Config holds Redis connection settings. Redis is optional for reviewhub:
// with an empty REDIS_URL the price cache and reminder rate limiter fall
// back to in-process stores.
type Config struct {
	ConnectionURL  string        `env:"REDIS_URL"`
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"2s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
}

// Enabled reports whether a connection URL was configured.
func (c Config) Enabled() bool { return c.ConnectionURL != "" }
