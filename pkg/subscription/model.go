package subscription

import (
	"time"

	"github.com/dmitrymomot/reviewhub/pkg/billing"
)

// Status is the local subscription state. Values are dictated by the
// payment processor through StatusFromExternal.
type Status string

const (
	StatusIncomplete        Status = "incomplete"
	StatusIncompleteExpired Status = "incompleteExpired"
	StatusTrialing          Status = "trialing"
	StatusActive            Status = "active"
	StatusPastDue           Status = "pastDue"
	StatusCanceled          Status = "canceled"
	StatusUnpaid            Status = "unpaid"
)

var externalStatuses = map[string]Status{
	"incomplete":         StatusIncomplete,
	"incomplete_expired": StatusIncompleteExpired,
	"trialing":           StatusTrialing,
	"active":             StatusActive,
	"past_due":           StatusPastDue,
	"canceled":           StatusCanceled,
	"unpaid":             StatusUnpaid,
}

// StatusFromExternal maps the processor's status vocabulary to Status.
func StatusFromExternal(s string) (Status, error) {
	st, ok := externalStatuses[s]
	if !ok {
		return "", ErrUnknownStatus
	}
	return st, nil
}

// Subscription is the billing state embedded in a Company. It is a value:
// methods return modified copies and repositories replace it wholesale.
type Subscription struct {
	Status                 Status     `bson:"status" json:"status"`
	ExternalSubscriptionID string     `bson:"external_subscription_id,omitempty" json:"externalSubscriptionId,omitempty"`
	PeriodStartAt          time.Time  `bson:"period_start_at" json:"periodStartAt"`
	PeriodEndAt            time.Time  `bson:"period_end_at" json:"periodEndAt"`
	WillBeCanceledAt       *time.Time `bson:"will_be_canceled_at,omitempty" json:"willBeCanceledAt,omitempty"`
	InProgress             bool       `bson:"in_progress" json:"inProgress"`
	InProgressAt           *time.Time `bson:"in_progress_at,omitempty" json:"-"`
	TrialingCardConfirmed  bool       `bson:"trialing_card_confirmed" json:"trialingCardConfirmed"`
	TrialEndingEmailSent   bool       `bson:"trial_ending_email_sent" json:"-"`
	LastEventAt            *time.Time `bson:"last_event_at,omitempty" json:"-"`
}

// NewTrial starts a trial of days length at start.
func NewTrial(start time.Time, days int) Subscription {
	start = start.UTC()
	return Subscription{
		Status:        StatusTrialing,
		PeriodStartAt: start,
		PeriodEndAt:   start.AddDate(0, 0, days),
	}
}

func (s Subscription) IsTrialing() bool { return s.Status == StatusTrialing }

// IsSubscribed reports whether a processor subscription is recorded.
func (s Subscription) IsSubscribed() bool { return s.ExternalSubscriptionID != "" }

// IsLocked reports whether a lifecycle mutation holds the lock at now.
// A lock older than ttl is considered abandoned.
func (s Subscription) IsLocked(now time.Time, ttl time.Duration) bool {
	if !s.InProgress {
		return false
	}
	if s.InProgressAt == nil || ttl <= 0 {
		return true
	}
	return now.Sub(*s.InProgressAt) < ttl
}

func (s Subscription) Locked(now time.Time) Subscription {
	now = now.UTC()
	s.InProgress = true
	s.InProgressAt = &now
	return s
}

// IsLockHolder reports whether s only exists to carry the lock for a
// company that had no subscription when the lock was taken.
func (s Subscription) IsLockHolder() bool {
	return s.Status == StatusIncomplete &&
		s.ExternalSubscriptionID == "" &&
		s.PeriodStartAt.IsZero() &&
		s.PeriodEndAt.IsZero()
}

func (s Subscription) Unlocked() Subscription {
	s.InProgress = false
	s.InProgressAt = nil
	return s
}

// TrialCarryOver returns the end of the current period when it is still in
// the future, so a new processor subscription does not charge before the
// local trial ends.
func (s Subscription) TrialCarryOver(now time.Time) *time.Time {
	if s.PeriodEndAt.IsZero() || !s.PeriodEndAt.After(now) {
		return nil
	}
	end := s.PeriodEndAt
	return &end
}

// Attached records a newly created processor subscription.
func (s Subscription) Attached(remote billing.RemoteSubscription, status Status) Subscription {
	s.ExternalSubscriptionID = remote.ID
	s.Status = status
	if !remote.PeriodStartAt.IsZero() {
		s.PeriodStartAt = remote.PeriodStartAt
	}
	if !remote.PeriodEndAt.IsZero() {
		s.PeriodEndAt = remote.PeriodEndAt
	}
	s.WillBeCanceledAt = remote.CancelAt
	s.TrialingCardConfirmed = status == StatusTrialing
	return s.Unlocked()
}

// Refreshed applies a processor update of the recorded subscription.
func (s Subscription) Refreshed(remote billing.RemoteSubscription, status Status) Subscription {
	s.Status = status
	s.WillBeCanceledAt = remote.CancelAt
	if !remote.PeriodStartAt.IsZero() {
		s.PeriodStartAt = remote.PeriodStartAt
	}
	if !remote.PeriodEndAt.IsZero() {
		s.PeriodEndAt = remote.PeriodEndAt
	}
	s.TrialingCardConfirmed = status == StatusTrialing
	return s.Unlocked()
}

// Detached forgets the processor subscription but keeps the local trial
// running.
func (s Subscription) Detached() Subscription {
	s.ExternalSubscriptionID = ""
	s.WillBeCanceledAt = nil
	s.TrialingCardConfirmed = false
	return s.Unlocked()
}

// Observed stamps the creation time of the last applied event.
func (s Subscription) Observed(at time.Time) Subscription {
	if at.IsZero() {
		return s
	}
	at = at.UTC()
	s.LastEventAt = &at
	return s
}

// IsStale reports whether an event created at is older than the last
// applied one.
func (s Subscription) IsStale(at time.Time) bool {
	return s.LastEventAt != nil && !at.IsZero() && at.Before(*s.LastEventAt)
}

// Company is a tenant as far as billing is concerned. Company CRUD lives
// elsewhere; this package only reads the identity fields and writes the
// billing ones.
type Company struct {
	ID        string    `bson:"_id" json:"id"`
	Name      string    `bson:"name" json:"name"`
	Email     string    `bson:"email" json:"email"`
	IsTest    bool      `bson:"is_test" json:"isTest"`
	CreatedAt time.Time `bson:"created_at" json:"createdAt"`

	ExternalCustomerID        string        `bson:"external_customer_id,omitempty" json:"externalCustomerId,omitempty"`
	Subscription              *Subscription `bson:"subscription,omitempty" json:"subscription,omitempty"`
	SubscriptionDeactivatedAt *time.Time    `bson:"subscription_deactivated_at,omitempty" json:"subscriptionDeactivatedAt,omitempty"`
}

// User is the person acting on behalf of a company.
type User struct {
	ID    string
	Name  string
	Email string
}

// PaymentStatus mirrors the processor's payment intent states.
type PaymentStatus string

const (
	PaymentRequiresPaymentMethod PaymentStatus = "requires_payment_method"
	PaymentRequiresConfirmation  PaymentStatus = "requires_confirmation"
	PaymentRequiresAction        PaymentStatus = "requires_action"
	PaymentProcessing            PaymentStatus = "processing"
	PaymentRequiresCapture       PaymentStatus = "requires_capture"
	PaymentCanceled              PaymentStatus = "canceled"
	PaymentSucceeded             PaymentStatus = "succeeded"
)

// ParsePaymentStatus validates a processor payment status.
func ParsePaymentStatus(s string) (PaymentStatus, error) {
	switch st := PaymentStatus(s); st {
	case PaymentRequiresPaymentMethod, PaymentRequiresConfirmation, PaymentRequiresAction,
		PaymentProcessing, PaymentRequiresCapture, PaymentCanceled, PaymentSucceeded:
		return st, nil
	}
	return "", ErrUnknownPaymentStatus
}

// Payment is one recorded payment attempt. ExternalPaymentID is unique.
type Payment struct {
	ID                string        `bson:"_id" json:"id"`
	CompanyID         string        `bson:"company_id" json:"companyId"`
	ExternalPaymentID string        `bson:"external_payment_id" json:"externalPaymentId"`
	AmountMinor       int64         `bson:"amount_minor" json:"amountMinor"`
	Amount            float64       `bson:"amount" json:"amount"`
	Currency          string        `bson:"currency" json:"currency"`
	Status            PaymentStatus `bson:"status" json:"status"`
	InvoiceURL        string        `bson:"invoice_url,omitempty" json:"invoiceUrl,omitempty"`
	CreatedAt         time.Time     `bson:"created_at" json:"createdAt"`
}
