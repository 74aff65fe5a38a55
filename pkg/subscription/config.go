package subscription

import (
	"errors"
	"time"
)

// Config holds the lifecycle tunables.
type Config struct {
	TrialDays         int           `env:"SUBSCRIPTION_TRIAL_DAYS" envDefault:"90"`
	RemindBeforeDays  int           `env:"SUBSCRIPTION_REMIND_BEFORE_DAYS" envDefault:"7"`
	CancelGraceDays   int           `env:"SUBSCRIPTION_CANCEL_GRACE_DAYS" envDefault:"0"`
	LockTTL           time.Duration `env:"SUBSCRIPTION_LOCK_TTL" envDefault:"30m"`
	ReminderBatchSize int           `env:"SUBSCRIPTION_REMINDER_BATCH_SIZE" envDefault:"100"`
	// StaleEventGuard drops subscription updates older than the last
	// applied event. Processor events carry no sequence number, so this is
	// opt-in.
	StaleEventGuard bool `env:"SUBSCRIPTION_STALE_EVENT_GUARD" envDefault:"false"`
}

// DefaultConfig mirrors the env defaults.
func DefaultConfig() Config {
	return Config{
		TrialDays:         90,
		RemindBeforeDays:  7,
		CancelGraceDays:   0,
		LockTTL:           30 * time.Minute,
		ReminderBatchSize: 100,
	}
}

func (c *Config) Validate() error {
	switch {
	case c.TrialDays < 0:
		return errors.New("SUBSCRIPTION_TRIAL_DAYS must not be negative")
	case c.RemindBeforeDays <= 0:
		return errors.New("SUBSCRIPTION_REMIND_BEFORE_DAYS must be positive")
	case c.CancelGraceDays < 0:
		return errors.New("SUBSCRIPTION_CANCEL_GRACE_DAYS must not be negative")
	case c.ReminderBatchSize <= 0:
		return errors.New("SUBSCRIPTION_REMINDER_BATCH_SIZE must be positive")
	}
	return nil
}
