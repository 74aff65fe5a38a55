package subscription

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/reviewhub/pkg/logger"
	"github.com/dmitrymomot/reviewhub/pkg/ratelimiter"
)

const reminderLimiterKey = "trial-ending-reminder"

// ReminderReport summarizes one reminder run.
type ReminderReport struct {
	Sent    int
	Skipped int
	Failed  int
}

// Reminder notifies trialing companies that their trial is about to end.
type Reminder struct {
	companies CompanyRepository
	mailer    Mailer
	limiter   ratelimiter.RateLimiter
	cfg       Config
	now       func() time.Time
	logger    *slog.Logger
}

// NewReminder panics when a required dependency is nil. A nil limiter
// sends without throttling.
func NewReminder(companies CompanyRepository, mailer Mailer, limiter ratelimiter.RateLimiter, opts ...Option) *Reminder {
	if companies == nil {
		panic("subscription: CompanyRepository is required")
	}
	if mailer == nil {
		panic("subscription: Mailer is required")
	}
	o := applyOptions(opts)
	return &Reminder{
		companies: companies,
		mailer:    mailer,
		limiter:   limiter,
		cfg:       o.cfg,
		now:       o.now,
		logger:    o.logger.With(logger.Component("trial_reminder")),
	}
}

// TrialEndingCompaniesForRemind returns trialing companies whose period ends
// within the reminder window and which were not reminded yet.
func (r *Reminder) TrialEndingCompaniesForRemind(ctx context.Context) ([]Company, error) {
	now := r.now()
	q := TrialEndingQuery{
		Now:    now,
		Before: now.AddDate(0, 0, r.cfg.RemindBeforeDays),
		Limit:  r.cfg.ReminderBatchSize,
	}
	if q.Limit <= 0 {
		q.Limit = DefaultConfig().ReminderBatchSize
	}

	var result []Company
	for {
		batch, err := r.companies.FindTrialEnding(ctx, q)
		if err != nil {
			return nil, err
		}
		result = append(result, batch...)
		if len(batch) < q.Limit {
			return result, nil
		}
		q.AfterID = batch[len(batch)-1].ID
	}
}

// SendTrialEndingRemind claims the company's reminder flag and sends the
// email. It reports false when another run already claimed the reminder.
// A failed send releases the claim so the next run retries.
func (r *Reminder) SendTrialEndingRemind(ctx context.Context, company Company) (bool, error) {
	claimed, err := r.companies.ClaimTrialReminder(ctx, company.ID)
	if err != nil || !claimed {
		return false, err
	}

	var expiry time.Time
	if company.Subscription != nil {
		expiry = company.Subscription.PeriodEndAt
	}
	err = r.mailer.SendTrialEndingRemind(ctx, company.Email, TrialEndingRemind{
		Name:       company.Name,
		ExpiryDate: expiry,
	})
	if err != nil {
		if rerr := r.companies.ReleaseTrialReminder(context.WithoutCancel(ctx), company.ID); rerr != nil {
			r.logger.ErrorContext(ctx, "failed to release reminder claim",
				logger.CompanyID(company.ID),
				logger.Error(rerr),
			)
		}
		return false, err
	}
	return true, nil
}

// RunTrialReminders sends every due reminder. One company failing does not
// stop the run; the returned error is only for failures to list candidates
// or a canceled context.
func (r *Reminder) RunTrialReminders(ctx context.Context) (ReminderReport, error) {
	var report ReminderReport

	companies, err := r.TrialEndingCompaniesForRemind(ctx)
	if err != nil {
		return report, err
	}

	start := r.now()
	for _, company := range companies {
		if err := r.wait(ctx); err != nil {
			return report, err
		}

		sent, err := r.SendTrialEndingRemind(ctx, company)
		switch {
		case err != nil:
			report.Failed++
			r.logger.WarnContext(ctx, "trial reminder failed",
				logger.CompanyID(company.ID),
				logger.Error(err),
			)
		case sent:
			report.Sent++
		default:
			report.Skipped++
		}
	}

	r.logger.InfoContext(ctx, "trial reminders processed",
		slog.Int("sent", report.Sent),
		slog.Int("skipped", report.Skipped),
		slog.Int("failed", report.Failed),
		logger.Duration(r.now().Sub(start)),
	)
	return report, nil
}

// wait blocks until the limiter admits one more email.
func (r *Reminder) wait(ctx context.Context) error {
	if r.limiter == nil {
		return ctx.Err()
	}
	for {
		res, err := r.limiter.Allow(ctx, reminderLimiterKey)
		if err != nil {
			return err
		}
		if res.Allowed() {
			return nil
		}

		timer := time.NewTimer(max(res.RetryAfter(), time.Millisecond))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
