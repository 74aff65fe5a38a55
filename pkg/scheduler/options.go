package scheduler

import (
	"log/slog"
	"time"
)

// Option configures a Scheduler.
type Option func(*options)

type options struct {
	logger   *slog.Logger
	location *time.Location
	timeout  time.Duration
}

// WithLogger sets the scheduler logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithLocation sets the time zone cron expressions are evaluated in.
// Defaults to UTC.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.location = loc
		}
	}
}

// WithTaskTimeout bounds every run of every task. Zero means no bound.
func WithTaskTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}
