// Package config loads typed configuration from environment variables.
//
// Structs declare their variables with caarlos0/env tags; a .env file in the
// working directory is read once through godotenv for local development.
// Each struct type is parsed once per process and cached:
//
//	type StripeConfig struct {
//	    LiveAPIKey string `env:"STRIPE_LIVE_API_KEY"`
//	    TestAPIKey string `env:"STRIPE_TEST_API_KEY"`
//	}
//
//	var cfg StripeConfig
//	config.MustLoad(&cfg)
//
// Types implementing Validator are checked after parsing.
package config
