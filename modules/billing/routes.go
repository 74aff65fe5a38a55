package billing

import (
	"net/http"

	"github.com/dmitrymomot/reviewhub/handler"
)

// CompanyRequest addresses a company route.
type CompanyRequest struct {
	CompanyID string `path:"companyID"`
}

// CancelRequest cancels at period end unless Immediate is set.
type CancelRequest struct {
	CompanyID string `path:"companyID"`
	Immediate bool   `query:"immediate"`
}

// UpdatePaymentMethodRequest replaces the default card.
type UpdatePaymentMethodRequest struct {
	CompanyID       string `path:"companyID"`
	PaymentMethodID string `json:"paymentMethodId"`
}

// PaymentsRequest pages the payment history. Zero values use the service
// defaults.
type PaymentsRequest struct {
	CompanyID string `path:"companyID"`
	Skip      int    `query:"skip"`
	Limit     int    `query:"limit"`
}

// CustomerResponse is returned after the processor customer is ensured.
type CustomerResponse struct {
	CustomerID string `json:"customerId"`
}

// errorResponse defers to the module error handler so domain errors are
// logged and mapped the same way as binding errors.
type errorResponse struct {
	onError handler.ErrorHandler[handler.Context]
	err     error
}

func (e errorResponse) Render(w http.ResponseWriter, r *http.Request) error {
	e.onError(handler.NewContext(w, r), e.err)
	return nil
}

func (h *Handler) fail(err error) handler.Response {
	return errorResponse{onError: h.onError, err: err}
}

func (h *Handler) startTrial(ctx handler.Context, req CompanyRequest) handler.Response {
	if err := h.svc.StartTrial(ctx, req.CompanyID); err != nil {
		return h.fail(err)
	}
	return handler.Empty()
}

func (h *Handler) createCustomer(ctx handler.Context, req CompanyRequest) handler.Response {
	customerID, err := h.svc.CreateStripeCustomer(ctx, userFrom(ctx), req.CompanyID)
	if err != nil {
		return h.fail(err)
	}
	return handler.JSON(CustomerResponse{CustomerID: customerID})
}

func (h *Handler) subscribe(ctx handler.Context, req CompanyRequest) handler.Response {
	res, err := h.svc.Subscribe(ctx, userFrom(ctx), req.CompanyID)
	if err != nil {
		return h.fail(err)
	}
	return handler.JSON(res, handler.WithJSONStatus(http.StatusAccepted))
}

func (h *Handler) cancel(ctx handler.Context, req CancelRequest) handler.Response {
	if err := h.svc.CancelSubscription(ctx, req.CompanyID, req.Immediate); err != nil {
		return h.fail(err)
	}
	return handler.EmptyWithStatus(http.StatusAccepted)
}

func (h *Handler) resubscribe(ctx handler.Context, req CompanyRequest) handler.Response {
	if err := h.svc.ReSubscribe(ctx, req.CompanyID); err != nil {
		return h.fail(err)
	}
	return handler.EmptyWithStatus(http.StatusAccepted)
}

func (h *Handler) paymentMethod(ctx handler.Context, req CompanyRequest) handler.Response {
	pm, err := h.svc.GetPaymentMethod(ctx, req.CompanyID)
	if err != nil {
		return h.fail(err)
	}
	return handler.JSON(pm)
}

func (h *Handler) updatePaymentMethod(ctx handler.Context, req UpdatePaymentMethodRequest) handler.Response {
	if req.PaymentMethodID == "" {
		verr := handler.NewValidationError()
		verr.Add("paymentMethodId", "is required")
		return handler.JSONError(verr)
	}
	if err := h.svc.UpdatePaymentMethod(ctx, req.CompanyID, req.PaymentMethodID); err != nil {
		return h.fail(err)
	}
	return handler.Empty()
}

func (h *Handler) payments(ctx handler.Context, req PaymentsRequest) handler.Response {
	if req.Skip < 0 || req.Limit < 0 {
		verr := handler.NewValidationError()
		if req.Skip < 0 {
			verr.Add("skip", "must not be negative")
		}
		if req.Limit < 0 {
			verr.Add("limit", "must not be negative")
		}
		return handler.JSONError(verr)
	}
	page, err := h.svc.GetPayments(ctx, req.CompanyID, req.Skip, req.Limit)
	if err != nil {
		return h.fail(err)
	}
	return handler.JSON(page.Items, handler.WithJSONMeta(map[string]any{
		"total": page.Total,
		"skip":  page.Skip,
		"limit": page.Limit,
	}))
}
