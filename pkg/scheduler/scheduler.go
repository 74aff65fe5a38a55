package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dmitrymomot/reviewhub/pkg/logger"
)

// Job is one run of a periodic task.
type Job func(ctx context.Context) error

type task struct {
	name     string
	spec     string
	schedule cron.Schedule
	job      Job
}

// Scheduler runs named jobs on standard five-field cron expressions. A run
// that is still in progress when the next tick fires causes that tick to be
// skipped.
type Scheduler struct {
	mu    sync.RWMutex
	tasks map[string]*task
	opts  options
}

// New creates an empty scheduler.
func New(opts ...Option) *Scheduler {
	o := options{
		logger:   slog.Default(),
		location: time.UTC,
	}
	for _, opt := range opts {
		opt(&o)
	}
	return &Scheduler{
		tasks: make(map[string]*task),
		opts:  o,
	}
}

// AddTask registers job under name. spec accepts five-field cron syntax and
// descriptors such as "@daily" or "@every 1h".
func (s *Scheduler) AddTask(name, spec string, job Job) error {
	if job == nil {
		return ErrNilJob
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return errors.Join(ErrInvalidSchedule, fmt.Errorf("%s: %w", spec, err))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[name]; exists {
		return ErrTaskAlreadyRegistered
	}
	s.tasks[name] = &task{name: name, spec: spec, schedule: schedule, job: job}

	s.opts.logger.Info("registered periodic task",
		slog.String("task_name", name),
		slog.String("schedule", spec),
	)
	return nil
}

// Next reports when the named task fires after from.
func (s *Scheduler) Next(name string, from time.Time) (time.Time, error) {
	s.mu.RLock()
	t, ok := s.tasks[name]
	s.mu.RUnlock()
	if !ok {
		return time.Time{}, ErrTaskNotFound
	}
	return t.schedule.Next(from.In(s.opts.location)), nil
}

// RunNow executes the named task once, synchronously.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.RLock()
	t, ok := s.tasks[name]
	s.mu.RUnlock()
	if !ok {
		return ErrTaskNotFound
	}
	return s.execute(ctx, t)
}

// Run starts the cron loop and blocks until ctx is done, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) error {
	s.mu.RLock()
	tasks := make([]*task, 0, len(s.tasks))
	for _, t := range s.tasks {
		tasks = append(tasks, t)
	}
	s.mu.RUnlock()

	if len(tasks) == 0 {
		return ErrSchedulerNotConfigured
	}

	log := cronLogger{log: s.opts.logger}
	c := cron.New(
		cron.WithLocation(s.opts.location),
		cron.WithLogger(log),
		cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
	)
	for _, t := range tasks {
		c.Schedule(t.schedule, cron.FuncJob(func() {
			_ = s.execute(ctx, t)
		}))
	}

	c.Start()
	s.opts.logger.InfoContext(ctx, "scheduler started", slog.Int("tasks", len(tasks)))

	<-ctx.Done()
	<-c.Stop().Done()
	s.opts.logger.Info("scheduler stopped")
	return nil
}

func (s *Scheduler) execute(ctx context.Context, t *task) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if s.opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.timeout)
		defer cancel()
	}

	started := time.Now()
	err := t.job(ctx)
	attrs := []any{
		slog.String("task_name", t.name),
		logger.Duration(time.Since(started)),
	}
	if err != nil {
		s.opts.logger.ErrorContext(ctx, "periodic task failed", append(attrs, logger.Error(err))...)
		return err
	}
	s.opts.logger.InfoContext(ctx, "periodic task completed", attrs...)
	return nil
}

// cronLogger adapts slog to cron.Logger.
type cronLogger struct {
	log *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(keysAndValues, logger.Error(err))...)
}
