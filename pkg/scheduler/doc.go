// Package scheduler runs periodic jobs on cron expressions.
//
//	s := scheduler.New(scheduler.WithLogger(log), scheduler.WithTaskTimeout(30*time.Minute))
//	if err := s.AddTask("trial-reminders", "0 9 * * *", func(ctx context.Context) error {
//		_, err := reminder.RunTrialReminders(ctx)
//		return err
//	}); err != nil {
//		return err
//	}
//	g.Go(func() error { return s.Run(ctx) })
//
// Jobs receive the context passed to Run and are never run concurrently
// with themselves.
package scheduler
