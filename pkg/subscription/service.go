package subscription

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/reviewhub/pkg/billing"
	"github.com/dmitrymomot/reviewhub/pkg/logger"
)

// Gateways picks the processor account for a company.
// *billing.Provider implements it.
type Gateways interface {
	For(isTest bool) billing.Gateway
}

// SubscribeResult is returned to the client to finish payment confirmation.
type SubscribeResult struct {
	SubscriptionID string `json:"subscriptionId"`
	RequiresAction bool   `json:"requiresAction"`
	ClientSecret   string `json:"clientSecret,omitempty"`
}

// PaymentPage is one page of a company's payment history.
type PaymentPage struct {
	Items []Payment `json:"items"`
	Total int64     `json:"total"`
	Skip  int       `json:"skip"`
	Limit int       `json:"limit"`
}

const (
	defaultPaymentsLimit = 20
	maxPaymentsLimit     = 100
)

// Service drives the subscription lifecycle of companies. It calls the
// processor synchronously and leaves the final local state to the webhook
// Reconciler; a mutation holds the company lock until the matching webhook
// clears it.
type Service struct {
	companies CompanyRepository
	payments  PaymentRepository
	gateways  Gateways
	price     billing.PriceSpec
	cfg       Config
	now       func() time.Time
	logger    *slog.Logger
}

// NewService panics when a required dependency is nil.
func NewService(companies CompanyRepository, payments PaymentRepository, gateways Gateways, price billing.PriceSpec, opts ...Option) *Service {
	if companies == nil {
		panic("subscription: CompanyRepository is required")
	}
	if payments == nil {
		panic("subscription: PaymentRepository is required")
	}
	if gateways == nil {
		panic("subscription: Gateways is required")
	}
	o := applyOptions(opts)
	return &Service{
		companies: companies,
		payments:  payments,
		gateways:  gateways,
		price:     price,
		cfg:       o.cfg,
		now:       o.now,
		logger:    o.logger.With(logger.Component("subscription")),
	}
}

// StartTrial gives a newly created company its trial period.
func (s *Service) StartTrial(ctx context.Context, companyID string) error {
	company, err := s.companies.FindByID(ctx, companyID)
	if err != nil {
		return err
	}
	if company.Subscription != nil {
		return ErrTrialAlreadyStarted
	}
	if company.CreatedAt.IsZero() {
		return ErrMissingCompanyCreatedAt
	}

	trial := NewTrial(company.CreatedAt, s.cfg.TrialDays)
	company.Subscription = &trial
	if err := s.companies.SaveSubscription(ctx, company); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "trial started",
		logger.CompanyID(company.ID),
		slog.Time("period_end_at", trial.PeriodEndAt),
	)
	return nil
}

// CreateStripeCustomer makes sure the company has a processor customer and
// returns its id. Calling it again returns the stored id.
func (s *Service) CreateStripeCustomer(ctx context.Context, user User, companyID string) (string, error) {
	company, err := s.companies.FindByID(ctx, companyID)
	if err != nil {
		return "", err
	}
	return s.ensureCustomer(ctx, user, company)
}

func (s *Service) ensureCustomer(ctx context.Context, user User, company *Company) (string, error) {
	if company.ExternalCustomerID != "" {
		return company.ExternalCustomerID, nil
	}

	email := user.Email
	if email == "" {
		email = company.Email
	}
	customerID, err := s.gateways.For(company.IsTest).CreateCustomer(ctx, billing.CustomerParams{
		CompanyID: company.ID,
		Name:      user.Name,
		Email:     email,
	})
	if err != nil {
		return "", err
	}

	stored, err := s.companies.SetExternalCustomerID(ctx, company.ID, customerID)
	if err != nil {
		return "", err
	}
	if stored != customerID {
		s.logger.WarnContext(ctx, "concurrent customer creation, keeping the stored customer",
			logger.CompanyID(company.ID),
			logger.CustomerID(stored),
			slog.String("orphan_customer_id", customerID),
		)
	}
	company.ExternalCustomerID = stored
	return stored, nil
}

// Subscribe creates a processor subscription for the company. A local
// trial that has not ended yet becomes the processor trial, so the first
// charge happens when the local trial would have ended.
func (s *Service) Subscribe(ctx context.Context, user User, companyID string) (*SubscribeResult, error) {
	company, err := s.companies.FindByID(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if company.Subscription != nil {
		if company.Subscription.IsSubscribed() {
			return nil, ErrAlreadySubscribed
		}
		if company.Subscription.IsLocked(s.now(), s.cfg.LockTTL) {
			return nil, ErrSubscriptionInProgress
		}
	}

	now := s.now()
	if err := s.companies.AcquireLock(ctx, company.ID, now, s.cfg.LockTTL); err != nil {
		return nil, err
	}

	res, err := s.subscribe(ctx, user, company, now)
	if err != nil {
		s.releaseLock(ctx, company.ID)
		return nil, err
	}

	s.logger.InfoContext(ctx, "subscription requested",
		logger.CompanyID(company.ID),
		logger.SubscriptionID(res.SubscriptionID),
		slog.Bool("requires_action", res.RequiresAction),
	)
	return res, nil
}

func (s *Service) subscribe(ctx context.Context, user User, company *Company, now time.Time) (*SubscribeResult, error) {
	gw := s.gateways.For(company.IsTest)

	customerID, err := s.ensureCustomer(ctx, user, company)
	if err != nil {
		return nil, err
	}
	if customerID == "" {
		return nil, ErrMissingCustomer
	}

	priceID, err := gw.ResolvePriceID(ctx, s.price)
	if err != nil {
		return nil, err
	}
	if priceID == "" {
		return nil, ErrMissingPrice
	}

	var trialEnd *time.Time
	if company.Subscription != nil {
		trialEnd = company.Subscription.TrialCarryOver(now)
	}

	created, err := gw.CreateSubscription(ctx, billing.SubscriptionParams{
		CustomerID: customerID,
		PriceID:    priceID,
		CompanyID:  company.ID,
		TrialEnd:   trialEnd,
	})
	if err != nil {
		return nil, err
	}
	return &SubscribeResult{
		SubscriptionID: created.SubscriptionID,
		RequiresAction: created.RequiresAction,
		ClientSecret:   created.ClientSecret,
	}, nil
}

// CancelSubscription schedules the cancellation at the end of the paid
// period plus the grace period. Trials are canceled immediately, or when
// immediate is set.
func (s *Service) CancelSubscription(ctx context.Context, companyID string, immediate bool) error {
	company, err := s.subscribedCompany(ctx, companyID)
	if err != nil {
		return err
	}
	if immediate || company.Subscription.IsTrialing() {
		return s.cancelImmediately(ctx, company)
	}

	at := company.Subscription.PeriodEndAt.AddDate(0, 0, s.cfg.CancelGraceDays)
	err = s.locked(ctx, company, func(gw billing.Gateway) error {
		return gw.ScheduleCancellation(ctx, company.Subscription.ExternalSubscriptionID, at)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "subscription cancellation scheduled",
		logger.CompanyID(company.ID),
		logger.SubscriptionID(company.Subscription.ExternalSubscriptionID),
		slog.Time("cancel_at", at),
	)
	return nil
}

// CancelSubscriptionImmediately deletes the processor subscription. The
// local state changes when the deletion webhook arrives.
func (s *Service) CancelSubscriptionImmediately(ctx context.Context, companyID string) error {
	company, err := s.subscribedCompany(ctx, companyID)
	if err != nil {
		return err
	}
	return s.cancelImmediately(ctx, company)
}

func (s *Service) cancelImmediately(ctx context.Context, company *Company) error {
	subID := company.Subscription.ExternalSubscriptionID
	err := s.locked(ctx, company, func(gw billing.Gateway) error {
		return gw.DeleteSubscription(ctx, subID)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "subscription deleted",
		logger.CompanyID(company.ID),
		logger.SubscriptionID(subID),
	)
	return nil
}

// ReSubscribe removes a scheduled cancellation.
func (s *Service) ReSubscribe(ctx context.Context, companyID string) error {
	company, err := s.subscribedCompany(ctx, companyID)
	if err != nil {
		return err
	}
	subID := company.Subscription.ExternalSubscriptionID

	remote, err := s.gateways.For(company.IsTest).RetrieveSubscription(ctx, subID)
	if err != nil {
		return err
	}
	if remote.CancelAt == nil {
		return ErrSubscriptionNotCanceled
	}

	err = s.locked(ctx, company, func(gw billing.Gateway) error {
		return gw.ClearScheduledCancellation(ctx, subID)
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "scheduled cancellation cleared",
		logger.CompanyID(company.ID),
		logger.SubscriptionID(subID),
	)
	return nil
}

// DeactivateSubscription applies a processor-side deletion. A trial keeps
// running without the processor subscription; anything else loses its
// subscription entirely.
func (s *Service) DeactivateSubscription(ctx context.Context, company *Company) error {
	if company.Subscription == nil {
		return ErrCompanySubscriptionNotFound
	}

	if company.Subscription.IsTrialing() {
		detached := company.Subscription.Detached()
		company.Subscription = &detached
	} else {
		now := s.now()
		company.Subscription = nil
		company.SubscriptionDeactivatedAt = &now
	}

	if err := s.companies.SaveSubscription(ctx, company); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "subscription deactivated",
		logger.CompanyID(company.ID),
		slog.Bool("trial_kept", company.Subscription != nil),
	)
	return nil
}

// GetPaymentMethod returns the company's default card.
func (s *Service) GetPaymentMethod(ctx context.Context, companyID string) (*billing.PaymentMethod, error) {
	company, err := s.companies.FindByID(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if company.ExternalCustomerID == "" {
		return nil, billing.ErrCustomerNotExists
	}
	return s.gateways.For(company.IsTest).DefaultPaymentMethod(ctx, company.ExternalCustomerID)
}

// UpdatePaymentMethod makes paymentMethodID the default card of the
// customer and of its subscription. It does not take the lifecycle lock.
func (s *Service) UpdatePaymentMethod(ctx context.Context, companyID, paymentMethodID string) error {
	if paymentMethodID == "" {
		return ErrMissingPaymentMethod
	}
	company, err := s.companies.FindByID(ctx, companyID)
	if err != nil {
		return err
	}
	if company.ExternalCustomerID == "" {
		return billing.ErrCustomerNotExists
	}

	params := billing.PaymentMethodParams{
		CustomerID:      company.ExternalCustomerID,
		PaymentMethodID: paymentMethodID,
	}
	if company.Subscription != nil {
		params.SubscriptionID = company.Subscription.ExternalSubscriptionID
	}
	if err := s.gateways.For(company.IsTest).SetDefaultPaymentMethod(ctx, params); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "payment method updated", logger.CompanyID(company.ID))
	return nil
}

// GetPayments lists the company's payments, newest first. limit is clamped
// to [1, 100] and defaults to 20.
func (s *Service) GetPayments(ctx context.Context, companyID string, skip, limit int) (*PaymentPage, error) {
	if _, err := s.companies.FindByID(ctx, companyID); err != nil {
		return nil, err
	}
	skip = max(skip, 0)
	if limit <= 0 {
		limit = defaultPaymentsLimit
	}
	limit = min(limit, maxPaymentsLimit)

	items, total, err := s.payments.ListByCompany(ctx, companyID, skip, limit)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []Payment{}
	}
	return &PaymentPage{Items: items, Total: total, Skip: skip, Limit: limit}, nil
}

func (s *Service) subscribedCompany(ctx context.Context, companyID string) (*Company, error) {
	company, err := s.companies.FindByID(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if company.Subscription == nil || !company.Subscription.IsSubscribed() {
		return nil, ErrUserNotSubscribed
	}
	return company, nil
}

// locked runs call holding the company lock. The lock is released when call
// fails and otherwise left for the webhook to clear.
func (s *Service) locked(ctx context.Context, company *Company, call func(billing.Gateway) error) error {
	if err := s.companies.AcquireLock(ctx, company.ID, s.now(), s.cfg.LockTTL); err != nil {
		return err
	}
	if err := call(s.gateways.For(company.IsTest)); err != nil {
		s.releaseLock(ctx, company.ID)
		return err
	}
	return nil
}

func (s *Service) releaseLock(ctx context.Context, companyID string) {
	// the caller's ctx may already be canceled; the lock must still go
	if err := s.companies.ReleaseLock(context.WithoutCancel(ctx), companyID); err != nil && !errors.Is(err, ErrCompanyNotFound) {
		s.logger.ErrorContext(ctx, "failed to release subscription lock",
			logger.CompanyID(companyID),
			logger.Error(err),
		)
	}
}
