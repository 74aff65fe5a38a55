package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrymomot/reviewhub/pkg/billing"
	"github.com/dmitrymomot/reviewhub/pkg/email"
	"github.com/dmitrymomot/reviewhub/pkg/httpserver"
	"github.com/dmitrymomot/reviewhub/pkg/logger"
	"github.com/dmitrymomot/reviewhub/pkg/mongo"
	"github.com/dmitrymomot/reviewhub/pkg/redis"
	"github.com/dmitrymomot/reviewhub/pkg/subscription"
)

const (
	ledgerMongo    = "mongo"
	ledgerPostgres = "postgres"
)

type appConfig struct {
	Env  string `env:"APP_ENV" envDefault:"development"`
	Name string `env:"APP_NAME" envDefault:"reviewhub"`

	// LedgerBackend selects where payments are stored. Postgres settings
	// are loaded only when it is "postgres".
	LedgerBackend string `env:"LEDGER_BACKEND" envDefault:"mongo"`

	ReminderSchedule      string        `env:"REMINDER_SCHEDULE" envDefault:"0 9 * * *"`
	ReminderRatePerMinute int           `env:"REMINDER_RATE_PER_MINUTE" envDefault:"60"`
	ReminderTimeout       time.Duration `env:"REMINDER_TIMEOUT" envDefault:"30m"`
	APIRatePerMinute      int           `env:"API_RATE_PER_MINUTE" envDefault:"120"`

	Log          logger.Config
	HTTP         httpserver.Config
	Mongo        mongo.Config
	Redis        redis.Config
	Billing      billing.Config
	Subscription subscription.Config
	Email        email.Config
}

func (c *appConfig) Validate() error {
	if c.LedgerBackend != ledgerMongo && c.LedgerBackend != ledgerPostgres {
		return fmt.Errorf("LEDGER_BACKEND must be %q or %q, got %q", ledgerMongo, ledgerPostgres, c.LedgerBackend)
	}
	if c.ReminderRatePerMinute < 0 || c.APIRatePerMinute < 0 {
		return errors.New("rate limits must not be negative")
	}
	return errors.Join(c.Billing.Validate(), c.Subscription.Validate())
}
