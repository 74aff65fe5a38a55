package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/reviewhub/pkg/billing"
	"github.com/dmitrymomot/reviewhub/pkg/logger"
)

// EventVerifier authenticates and decodes a webhook delivery.
// *billing.Provider implements it.
type EventVerifier interface {
	ConstructEvent(ctx context.Context, payload []byte, signature string) (billing.Event, error)
}

// Reconciler applies processor webhooks to local state.
type Reconciler struct {
	companies CompanyRepository
	verifier  EventVerifier
	lifecycle *Service
	ledger    *Ledger
	cfg       Config
	now       func() time.Time
	logger    *slog.Logger
}

// NewReconciler panics when a required dependency is nil.
func NewReconciler(companies CompanyRepository, verifier EventVerifier, lifecycle *Service, ledger *Ledger, opts ...Option) *Reconciler {
	if companies == nil {
		panic("subscription: CompanyRepository is required")
	}
	if verifier == nil {
		panic("subscription: EventVerifier is required")
	}
	if lifecycle == nil {
		panic("subscription: lifecycle Service is required")
	}
	if ledger == nil {
		panic("subscription: Ledger is required")
	}
	o := applyOptions(opts)
	return &Reconciler{
		companies: companies,
		verifier:  verifier,
		lifecycle: lifecycle,
		ledger:    ledger,
		cfg:       o.cfg,
		now:       o.now,
		logger:    o.logger.With(logger.Component("reconciler")),
	}
}

// HandleWebhook verifies the raw body against the signature header and
// applies the event. Unrecognized event types are acknowledged.
func (r *Reconciler) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	ev, err := r.verifier.ConstructEvent(ctx, payload, signature)
	if err != nil {
		r.logger.WarnContext(ctx, "webhook rejected", logger.Error(err))
		return err
	}

	meta := ev.Meta()
	log := r.logger.With(
		logger.EventType(meta.Type),
		slog.String("event_id", meta.ID),
		logger.Environment(meta.Env.String()),
	)

	start := r.now()
	if err := r.Apply(ctx, ev); err != nil {
		log.ErrorContext(ctx, "webhook failed", logger.Error(err), slog.String("kind", KindOf(err).String()))
		return err
	}
	log.DebugContext(ctx, "webhook applied", logger.Duration(r.now().Sub(start)))
	return nil
}

// Apply dispatches an already verified event.
func (r *Reconciler) Apply(ctx context.Context, ev billing.Event) error {
	switch e := ev.(type) {
	case billing.SubscriptionCreated:
		return r.subscriptionCreated(ctx, e)
	case billing.SubscriptionUpdated:
		return r.subscriptionUpdated(ctx, e)
	case billing.SubscriptionDeleted:
		return r.subscriptionDeleted(ctx, e)
	case billing.PaymentSucceeded:
		_, err := r.ledger.SavePayment(ctx, e.Payment)
		return err
	case billing.PaymentFailed:
		_, err := r.ledger.SavePayment(ctx, e.Payment)
		return err
	case billing.UnrecognizedEvent:
		return nil
	default:
		return fmt.Errorf("%w: %T", ErrUnhandledEvent, ev)
	}
}

func (r *Reconciler) subscriptionCreated(ctx context.Context, e billing.SubscriptionCreated) error {
	company, err := r.companies.FindByExternalCustomerID(ctx, e.Subscription.CustomerID)
	if err != nil {
		return err
	}
	if company.Subscription != nil && company.Subscription.IsSubscribed() {
		return ErrAlreadySubscribed
	}
	status, err := StatusFromExternal(e.Subscription.Status)
	if err != nil {
		return fmt.Errorf("%w: %q", err, e.Subscription.Status)
	}

	var current Subscription
	if company.Subscription != nil {
		current = *company.Subscription
	}
	next := current.Attached(e.Subscription, status).Observed(e.CreatedAt)
	company.Subscription = &next
	company.SubscriptionDeactivatedAt = nil

	if err := r.companies.SaveSubscription(ctx, company); err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "subscription attached",
		logger.CompanyID(company.ID),
		logger.SubscriptionID(next.ExternalSubscriptionID),
		slog.String("status", string(next.Status)),
	)
	return nil
}

func (r *Reconciler) subscriptionUpdated(ctx context.Context, e billing.SubscriptionUpdated) error {
	company, err := r.matchingCompany(ctx, e.Subscription)
	if err != nil {
		return err
	}
	if r.cfg.StaleEventGuard && company.Subscription.IsStale(e.CreatedAt) {
		r.logger.WarnContext(ctx, "stale subscription update ignored",
			logger.CompanyID(company.ID),
			slog.Time("event_created_at", e.CreatedAt),
		)
		return nil
	}
	status, err := StatusFromExternal(e.Subscription.Status)
	if err != nil {
		return fmt.Errorf("%w: %q", err, e.Subscription.Status)
	}

	next := company.Subscription.Refreshed(e.Subscription, status).Observed(e.CreatedAt)
	company.Subscription = &next
	if err := r.companies.SaveSubscription(ctx, company); err != nil {
		return err
	}
	r.logger.InfoContext(ctx, "subscription updated",
		logger.CompanyID(company.ID),
		logger.SubscriptionID(next.ExternalSubscriptionID),
		slog.String("status", string(next.Status)),
	)
	return nil
}

func (r *Reconciler) subscriptionDeleted(ctx context.Context, e billing.SubscriptionDeleted) error {
	company, err := r.matchingCompany(ctx, e.Subscription)
	if err != nil {
		return err
	}
	next := company.Subscription.Unlocked()
	next.TrialingCardConfirmed = false
	company.Subscription = &next
	return r.lifecycle.DeactivateSubscription(ctx, company)
}

// matchingCompany resolves the company of a processor subscription and
// checks that it is the subscription recorded locally.
func (r *Reconciler) matchingCompany(ctx context.Context, remote billing.RemoteSubscription) (*Company, error) {
	company, err := r.companies.FindByExternalCustomerID(ctx, remote.CustomerID)
	if err != nil {
		return nil, err
	}
	if company.Subscription == nil || company.Subscription.ExternalSubscriptionID != remote.ID {
		return nil, ErrCompanySubscriptionNotFound
	}
	return company, nil
}
