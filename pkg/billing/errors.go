package billing

import (
	"errors"
	"fmt"
)

var (
	ErrWebhookSignatureInvalid = errors.New("webhook signature verification failed")
	ErrMalformedEvent          = errors.New("malformed webhook event payload")
	ErrCustomerNotExists       = errors.New("customer does not exist")
	ErrPaymentMethodNotExists  = errors.New("customer has no default payment method")
	ErrMissingAPIKey           = errors.New("billing api key is required")
	ErrMissingWebhookSecret    = errors.New("billing webhook secret is required")
	ErrGatewayNotConfigured    = errors.New("billing gateway is not configured for this environment")
	ErrInvalidPrice            = errors.New("invalid price specification")
)

// Gateway operation names carried by GatewayError.
const (
	OpCreateCustomer        = "create_customer"
	OpCreateSubscription    = "create_subscription"
	OpUpdateSubscription    = "update_subscription"
	OpDeleteSubscription    = "delete_subscription"
	OpRetrieveSubscription  = "retrieve_subscription"
	OpRetrieveInvoice       = "retrieve_invoice"
	OpCreatePrice           = "create_price"
	OpRetrievePaymentMethod = "retrieve_payment_method"
	OpUpdatePaymentMethod   = "update_payment_method"
	OpVerifyWebhook         = "verify_webhook"
)

// GatewayError wraps a failed call to the payment processor with the
// operation and environment it was made in.
type GatewayError struct {
	Op    string
	Env   Environment
	Cause error
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("billing %s (%s): %v", e.Op, e.Env, e.Cause)
}

func (e *GatewayError) Unwrap() error { return e.Cause }

func gatewayErr(op string, env Environment, err error) error {
	if err == nil {
		return nil
	}
	return &GatewayError{Op: op, Env: env, Cause: err}
}

// IsGatewayError reports whether err came from a processor call.
func IsGatewayError(err error) bool {
	var ge *GatewayError
	return errors.As(err, &ge)
}
