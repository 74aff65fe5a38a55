package scheduler

import "errors"

var (
	ErrTaskAlreadyRegistered  = errors.New("task already registered")
	ErrTaskNotFound           = errors.New("task not found")
	ErrInvalidSchedule        = errors.New("invalid cron schedule")
	ErrSchedulerNotConfigured = errors.New("scheduler has no registered tasks")
	ErrNilJob                 = errors.New("job function is nil")
)
