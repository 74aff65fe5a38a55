package subscription

import (
	"errors"

	"github.com/dmitrymomot/reviewhub/pkg/billing"
)

var (
	ErrCompanyNotFound             = errors.New("company not found")
	ErrCompanySubscriptionNotFound = errors.New("company subscription not found")
	ErrPaymentNotFound             = errors.New("payment not found")

	ErrAlreadySubscribed      = errors.New("company is already subscribed")
	ErrSubscriptionInProgress = errors.New("subscription change is already in progress")
	ErrTrialAlreadyStarted    = errors.New("trial has already been started")
	ErrPaymentExists          = errors.New("payment with this external id already exists")

	ErrUserNotSubscribed       = errors.New("company has no active subscription")
	ErrSubscriptionNotCanceled = errors.New("subscription has no scheduled cancellation")

	ErrMissingCustomer         = errors.New("billing customer id is missing")
	ErrMissingPrice            = errors.New("billing price id is missing")
	ErrMissingCompanyCreatedAt = errors.New("company creation time is missing")
	ErrMissingPaymentMethod    = errors.New("payment method id is required")

	ErrUnhandledEvent       = errors.New("unhandled billing event")
	ErrUnknownStatus        = errors.New("unknown subscription status")
	ErrUnknownPaymentStatus = errors.New("unknown payment status")
)

// Kind classifies errors returned by this package so transports can map
// them without knowing every sentinel.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindConflict
	KindNotFound
	KindGateway
	KindUnhandled
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindGateway:
		return "gateway"
	case KindUnhandled:
		return "unhandled"
	default:
		return "internal"
	}
}

var kinds = []struct {
	kind Kind
	errs []error
}{
	{KindValidation, []error{ErrMissingCustomer, ErrMissingPrice, ErrMissingCompanyCreatedAt, ErrMissingPaymentMethod, billing.ErrInvalidPrice}},
	{KindConflict, []error{ErrAlreadySubscribed, ErrSubscriptionInProgress, ErrTrialAlreadyStarted, ErrSubscriptionNotCanceled, ErrUserNotSubscribed}},
	{KindNotFound, []error{ErrCompanyNotFound, ErrCompanySubscriptionNotFound, ErrPaymentNotFound, billing.ErrCustomerNotExists, billing.ErrPaymentMethodNotExists}},
	{KindUnhandled, []error{ErrUnhandledEvent, ErrUnknownStatus, ErrUnknownPaymentStatus, billing.ErrMalformedEvent}},
}

// KindOf returns the category of err. Domain sentinels win over gateway
// wrapping, so a missing customer reported by the processor is NotFound.
func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	for _, k := range kinds {
		for _, target := range k.errs {
			if errors.Is(err, target) {
				return k.kind
			}
		}
	}
	if billing.IsGatewayError(err) {
		return KindGateway
	}
	return KindInternal
}
