package subscription

import (
	"log/slog"
	"time"
)

// Option configures the lifecycle Service, Reconciler, Ledger and Reminder.
type Option func(*options)

type options struct {
	cfg    Config
	now    func() time.Time
	logger *slog.Logger
}

func defaultOptions() options {
	return options{
		cfg:    DefaultConfig(),
		now:    func() time.Time { return time.Now().UTC() },
		logger: slog.Default(),
	}
}

func applyOptions(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithConfig replaces the default tunables.
func WithConfig(cfg Config) Option {
	return func(o *options) { o.cfg = cfg }
}

// WithClock overrides time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}
