package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// PriceSpec describes the single recurring price tenants subscribe to.
// Amount is in minor currency units.
type PriceSpec struct {
	Amount        int64  `env:"BILLING_PRICE_AMOUNT" envDefault:"4900"`
	Currency      string `env:"BILLING_PRICE_CURRENCY" envDefault:"usd"`
	Interval      string `env:"BILLING_PRICE_INTERVAL" envDefault:"month"`
	IntervalCount int64  `env:"BILLING_PRICE_INTERVAL_COUNT" envDefault:"1"`
	ProductName   string `env:"BILLING_PRODUCT_NAME" envDefault:"ReviewHub"`
}

// Validate checks the spec can be turned into a processor price.
func (p PriceSpec) Validate() error {
	switch {
	case p.Amount <= 0:
		return errors.Join(ErrInvalidPrice, errors.New("amount must be positive"))
	case len(p.Currency) != 3:
		return errors.Join(ErrInvalidPrice, fmt.Errorf("currency %q is not an ISO code", p.Currency))
	case p.IntervalCount <= 0:
		return errors.Join(ErrInvalidPrice, errors.New("interval count must be positive"))
	}
	switch p.Interval {
	case "day", "week", "month", "year":
	default:
		return errors.Join(ErrInvalidPrice, fmt.Errorf("unknown interval %q", p.Interval))
	}
	return nil
}

// LookupKey is the stable processor-side key for this price, so every
// replica resolves the same price instead of creating duplicates.
func (p PriceSpec) LookupKey() string {
	return fmt.Sprintf("reviewhub_%d_%s_%s_%d",
		p.Amount, strings.ToLower(p.Currency), p.Interval, p.IntervalCount)
}

// PriceCache remembers resolved price ids per environment and lookup key.
type PriceCache interface {
	Get(ctx context.Context, key string) (id string, ok bool, err error)
	Set(ctx context.Context, key, id string) error
}

// MemoryPriceCache is a process-local PriceCache.
type MemoryPriceCache struct {
	mu  sync.RWMutex
	ids map[string]string
}

func NewMemoryPriceCache() *MemoryPriceCache {
	return &MemoryPriceCache{ids: make(map[string]string)}
}

func (c *MemoryPriceCache) Get(_ context.Context, key string) (string, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	id, ok := c.ids[key]
	return id, ok, nil
}

func (c *MemoryPriceCache) Set(_ context.Context, key, id string) error {
	c.mu.Lock()
	c.ids[key] = id
	c.mu.Unlock()
	return nil
}

// RedisPriceCache shares resolved price ids between replicas.
type RedisPriceCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// NewRedisPriceCache stores ids under prefix with the given ttl. A zero ttl
// keeps entries until evicted.
func NewRedisPriceCache(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisPriceCache {
	if client == nil {
		panic("billing: redis client is required")
	}
	if prefix == "" {
		prefix = "reviewhub:price:"
	}
	return &RedisPriceCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *RedisPriceCache) Get(ctx context.Context, key string) (string, bool, error) {
	id, err := c.client.Get(ctx, c.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

func (c *RedisPriceCache) Set(ctx context.Context, key, id string) error {
	return c.client.Set(ctx, c.prefix+key, id, c.ttl).Err()
}
