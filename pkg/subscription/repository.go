package subscription

import (
	"context"
	"time"
)

// CompanyRepository persists the billing fields of companies.
//
// Lock operations are atomic at the storage layer: AcquireLock succeeds for
// exactly one caller until the lock is released or older than ttl.
type CompanyRepository interface {
	// FindByID returns ErrCompanyNotFound when no company has id.
	FindByID(ctx context.Context, id string) (*Company, error)
	// FindByExternalCustomerID returns ErrCompanyNotFound when no company
	// is linked to customerID.
	FindByExternalCustomerID(ctx context.Context, customerID string) (*Company, error)

	// SetExternalCustomerID links customerID to the company unless a
	// customer is already linked, and returns the id that is stored.
	SetExternalCustomerID(ctx context.Context, id, customerID string) (string, error)

	// SaveSubscription replaces Subscription and SubscriptionDeactivatedAt
	// of the stored company with the values in c.
	SaveSubscription(ctx context.Context, c *Company) error

	// AcquireLock marks the subscription in progress. It returns
	// ErrSubscriptionInProgress when a live lock is held. A company without
	// a subscription gets an incomplete one holding the lock.
	AcquireLock(ctx context.Context, id string, now time.Time, ttl time.Duration) error
	// ReleaseLock clears the lock. An incomplete subscription created only
	// to hold it is removed, leaving the company without a subscription.
	ReleaseLock(ctx context.Context, id string) error

	// FindTrialEnding returns trialing companies whose period ends in
	// (q.Now, q.Before] and whose reminder was not sent, ordered by id.
	FindTrialEnding(ctx context.Context, q TrialEndingQuery) ([]Company, error)
	// ClaimTrialReminder sets the reminder flag if it was not set and
	// reports whether this caller set it.
	ClaimTrialReminder(ctx context.Context, id string) (bool, error)
	ReleaseTrialReminder(ctx context.Context, id string) error
}

// TrialEndingQuery selects one page of reminder candidates.
type TrialEndingQuery struct {
	Now     time.Time
	Before  time.Time
	AfterID string
	Limit   int
}

// PaymentRepository persists the payment ledger.
type PaymentRepository interface {
	// FindByExternalID returns ErrPaymentNotFound when absent.
	FindByExternalID(ctx context.Context, externalID string) (*Payment, error)
	// Create returns ErrPaymentExists when the external id is taken.
	Create(ctx context.Context, p *Payment) error
	UpdateStatus(ctx context.Context, externalID string, status PaymentStatus) error
	// ListByCompany returns a page of payments, newest first, and the total
	// number of payments of the company.
	ListByCompany(ctx context.Context, companyID string, skip, limit int) ([]Payment, int64, error)
}
