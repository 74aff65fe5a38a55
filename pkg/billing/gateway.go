package billing

import (
	"context"
	"time"
)

// Gateway is the set of payment processor capabilities the subscription
// lifecycle relies on. One Gateway talks to exactly one processor account;
// Provider routes between the live and test accounts.
type Gateway interface {
	Environment() Environment

	CreateCustomer(ctx context.Context, params CustomerParams) (string, error)

	CreateSubscription(ctx context.Context, params SubscriptionParams) (*CreatedSubscription, error)
	RetrieveSubscription(ctx context.Context, subscriptionID string) (*RemoteSubscription, error)
	// ScheduleCancellation sets the subscription to end at the given time.
	ScheduleCancellation(ctx context.Context, subscriptionID string, at time.Time) error
	// ClearScheduledCancellation removes a pending cancel-at.
	ClearScheduledCancellation(ctx context.Context, subscriptionID string) error
	// DeleteSubscription cancels the subscription immediately.
	DeleteSubscription(ctx context.Context, subscriptionID string) error

	// InvoiceURLForPayment returns the hosted URL of the invoice paid by the
	// payment intent, or "" when the payment is not tied to an invoice.
	InvoiceURLForPayment(ctx context.Context, paymentIntentID string) (string, error)
	// ResolvePriceID returns the processor price matching spec, creating it
	// on first use.
	ResolvePriceID(ctx context.Context, spec PriceSpec) (string, error)

	DefaultPaymentMethod(ctx context.Context, customerID string) (*PaymentMethod, error)
	SetDefaultPaymentMethod(ctx context.Context, params PaymentMethodParams) error

	// ConstructEvent verifies payload against this account's webhook secret
	// and decodes it.
	ConstructEvent(payload []byte, signature string) (Event, error)
}

// CustomerParams describes the processor customer created for a company.
type CustomerParams struct {
	CompanyID string
	Name      string
	Email     string
}

// SubscriptionParams describes a new single-price subscription.
type SubscriptionParams struct {
	CustomerID string
	PriceID    string
	CompanyID  string
	// TrialEnd, when set, delays the first charge until that instant.
	TrialEnd *time.Time
}

// CreatedSubscription is what the client needs to finish payment
// confirmation (for example 3-D Secure).
type CreatedSubscription struct {
	SubscriptionID string
	RequiresAction bool
	ClientSecret   string
}

// RemoteSubscription is the processor's view of a subscription. Status uses
// the processor's vocabulary.
type RemoteSubscription struct {
	ID            string
	CustomerID    string
	Status        string
	PeriodStartAt time.Time
	PeriodEndAt   time.Time
	CancelAt      *time.Time
}

// PaymentMethod is the card currently used for renewals.
type PaymentMethod struct {
	ID       string `json:"id"`
	Brand    string `json:"brand"`
	Last4    string `json:"last4"`
	ExpMonth int64  `json:"expMonth"`
	ExpYear  int64  `json:"expYear"`
}

// PaymentMethodParams attaches a payment method and makes it the default
// for the customer and, when SubscriptionID is set, for that subscription.
type PaymentMethodParams struct {
	CustomerID      string
	SubscriptionID  string
	PaymentMethodID string
}
