package billing

import (
	"errors"
	"time"
)

// Config is the environment-driven configuration of both Stripe accounts
// and the subscribed price.
type Config struct {
	LiveAPIKey        string `env:"STRIPE_LIVE_API_KEY"`
	LiveWebhookSecret string `env:"STRIPE_LIVE_WEBHOOK_SECRET"`
	TestAPIKey        string `env:"STRIPE_TEST_API_KEY"`
	TestWebhookSecret string `env:"STRIPE_TEST_WEBHOOK_SECRET"`

	LiveTaxRateID string `env:"BILLING_TAX_RATE_ID"`
	TestTaxRateID string `env:"BILLING_TEST_TAX_RATE_ID"`

	PriceCacheTTL time.Duration `env:"BILLING_PRICE_CACHE_TTL" envDefault:"24h"`

	Price PriceSpec
}

// Live returns the credentials of the live account.
func (c Config) Live() StripeConfig {
	return StripeConfig{APIKey: c.LiveAPIKey, WebhookSecret: c.LiveWebhookSecret, TaxRateID: c.LiveTaxRateID}
}

// Test returns the credentials of the test account.
func (c Config) Test() StripeConfig {
	return StripeConfig{APIKey: c.TestAPIKey, WebhookSecret: c.TestWebhookSecret, TaxRateID: c.TestTaxRateID}
}

// Validate requires at least one account and a webhook secret for every
// configured key.
func (c *Config) Validate() error {
	if c.LiveAPIKey == "" && c.TestAPIKey == "" {
		return errors.Join(ErrMissingAPIKey, errors.New("set STRIPE_LIVE_API_KEY or STRIPE_TEST_API_KEY"))
	}
	if c.LiveAPIKey != "" && c.LiveWebhookSecret == "" {
		return errors.Join(ErrMissingWebhookSecret, errors.New("STRIPE_LIVE_WEBHOOK_SECRET is empty"))
	}
	if c.TestAPIKey != "" && c.TestWebhookSecret == "" {
		return errors.Join(ErrMissingWebhookSecret, errors.New("STRIPE_TEST_WEBHOOK_SECRET is empty"))
	}
	return c.Price.Validate()
}
