package billing

import (
	"errors"
	"net/http"

	"github.com/dmitrymomot/reviewhub/handler"
	gateway "github.com/dmitrymomot/reviewhub/pkg/billing"
	"github.com/dmitrymomot/reviewhub/pkg/subscription"
)

var (
	ErrInvalidSignature = handler.NewHTTPError(http.StatusBadRequest, "invalid_signature")
	ErrUnhandledEvent   = handler.NewHTTPError(http.StatusUnprocessableEntity, "unhandled_event")
	ErrValidation       = handler.NewHTTPError(http.StatusUnprocessableEntity, "validation_failed")
	ErrGateway          = handler.NewHTTPError(http.StatusBadGateway, "billing_gateway_error")
)

// MapError translates subscription and billing errors into HTTP errors.
// Internal errors are left to the default 500 handling.
func MapError(err error) (handler.HTTPError, bool) {
	if errors.Is(err, gateway.ErrWebhookSignatureInvalid) || errors.Is(err, gateway.ErrMalformedEvent) {
		return ErrInvalidSignature, true
	}
	switch subscription.KindOf(err) {
	case subscription.KindValidation:
		return ErrValidation, true
	case subscription.KindConflict:
		return handler.ErrConflict, true
	case subscription.KindNotFound:
		return handler.ErrNotFound, true
	case subscription.KindGateway:
		return ErrGateway, true
	case subscription.KindUnhandled:
		return ErrUnhandledEvent, true
	}
	return handler.HTTPError{}, false
}
