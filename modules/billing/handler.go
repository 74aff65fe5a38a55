package billing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/dmitrymomot/reviewhub/binder"
	"github.com/dmitrymomot/reviewhub/handler"
	gateway "github.com/dmitrymomot/reviewhub/pkg/billing"
	"github.com/dmitrymomot/reviewhub/pkg/logger"
	"github.com/dmitrymomot/reviewhub/pkg/ratelimiter"
	"github.com/dmitrymomot/reviewhub/pkg/subscription"
)

// SignatureHeader carries the processor's webhook signature.
const SignatureHeader = "Stripe-Signature"

const maxWebhookBody = 1 << 20

// Lifecycle is the subset of subscription.Service served over HTTP.
type Lifecycle interface {
	StartTrial(ctx context.Context, companyID string) error
	CreateStripeCustomer(ctx context.Context, user subscription.User, companyID string) (string, error)
	Subscribe(ctx context.Context, user subscription.User, companyID string) (*subscription.SubscribeResult, error)
	CancelSubscription(ctx context.Context, companyID string, immediate bool) error
	ReSubscribe(ctx context.Context, companyID string) error
	GetPaymentMethod(ctx context.Context, companyID string) (*gateway.PaymentMethod, error)
	UpdatePaymentMethod(ctx context.Context, companyID, paymentMethodID string) error
	GetPayments(ctx context.Context, companyID string, skip, limit int) (*subscription.PaymentPage, error)
}

// WebhookHandler verifies and applies a raw processor webhook.
type WebhookHandler interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
}

// UserResolver returns the authenticated user acting on the request.
// Authentication itself happens upstream.
type UserResolver func(r *http.Request) (subscription.User, error)

// Handler exposes the subscription lifecycle and the webhook endpoint.
type Handler struct {
	svc      Lifecycle
	webhooks WebhookHandler
	users    UserResolver
	limiter  ratelimiter.RateLimiter
	log      *slog.Logger
	onError  handler.ErrorHandler[handler.Context]
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithRateLimiter limits company routes per company id.
func WithRateLimiter(l ratelimiter.RateLimiter) Option {
	return func(h *Handler) { h.limiter = l }
}

// NewHandler panics if any dependency is nil.
func NewHandler(svc Lifecycle, webhooks WebhookHandler, users UserResolver, opts ...Option) *Handler {
	if svc == nil || webhooks == nil || users == nil {
		panic("billing: lifecycle, webhook handler and user resolver are required")
	}
	h := &Handler{
		svc:      svc,
		webhooks: webhooks,
		users:    users,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.log = h.log.With(logger.Component("billing_http"))
	h.onError = handler.NewErrorHandler(h.log, MapError)
	return h
}

// Handle returns the module router.
func (h *Handler) Handle() http.Handler {
	r := chi.NewRouter()

	r.Post("/webhooks/stripe", h.webhook)

	r.Route("/companies/{companyID}", func(r chi.Router) {
		r.Use(h.requireUser)
		if h.limiter != nil {
			r.Use(ratelimiter.Middleware(h.limiter, companyKey, ratelimiter.WithErrorResponder(h.limited)))
		}

		r.Post("/trial", handler.Wrap(h.startTrial,
			handler.WithBinders[handler.Context, CompanyRequest](binder.Path(chi.URLParam)),
			handler.WithErrorHandler[handler.Context, CompanyRequest](h.onError),
		))
		r.Post("/customer", handler.Wrap(h.createCustomer,
			handler.WithBinders[handler.Context, CompanyRequest](binder.Path(chi.URLParam)),
			handler.WithErrorHandler[handler.Context, CompanyRequest](h.onError),
		))
		r.Post("/subscription", handler.Wrap(h.subscribe,
			handler.WithBinders[handler.Context, CompanyRequest](binder.Path(chi.URLParam)),
			handler.WithErrorHandler[handler.Context, CompanyRequest](h.onError),
		))
		r.Delete("/subscription", handler.Wrap(h.cancel,
			handler.WithBinders[handler.Context, CancelRequest](binder.Path(chi.URLParam), binder.Query()),
			handler.WithErrorHandler[handler.Context, CancelRequest](h.onError),
		))
		r.Post("/subscription/resubscribe", handler.Wrap(h.resubscribe,
			handler.WithBinders[handler.Context, CompanyRequest](binder.Path(chi.URLParam)),
			handler.WithErrorHandler[handler.Context, CompanyRequest](h.onError),
		))
		r.Get("/payment-method", handler.Wrap(h.paymentMethod,
			handler.WithBinders[handler.Context, CompanyRequest](binder.Path(chi.URLParam)),
			handler.WithErrorHandler[handler.Context, CompanyRequest](h.onError),
		))
		r.Put("/payment-method", handler.Wrap(h.updatePaymentMethod,
			handler.WithBinders[handler.Context, UpdatePaymentMethodRequest](binder.Path(chi.URLParam), binder.JSON()),
			handler.WithErrorHandler[handler.Context, UpdatePaymentMethodRequest](h.onError),
		))
		r.Get("/payments", handler.Wrap(h.payments,
			handler.WithBinders[handler.Context, PaymentsRequest](binder.Path(chi.URLParam), binder.Query()),
			handler.WithErrorHandler[handler.Context, PaymentsRequest](h.onError),
		))
	})

	return r
}

var userKey = handler.NewContextKey("billing_user")

func (h *Handler) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := h.users(r)
		if err != nil {
			h.onError(handler.NewContext(w, r), handler.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey, user)))
	})
}

func userFrom(ctx context.Context) subscription.User {
	return handler.ContextValue[subscription.User](ctx, userKey)
}

func (h *Handler) limited(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, ratelimiter.ErrLimitExceeded) {
		err = handler.ErrTooManyRequests
	}
	h.onError(handler.NewContext(w, r), err)
}

func companyKey(r *http.Request) string {
	if id := chi.URLParam(r, "companyID"); id != "" {
		return "company:" + id
	}
	return ""
}

// webhook reads the raw body because the signature covers exact bytes.
func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.onError(handler.NewContext(w, r), handler.ErrBadRequest)
		return
	}
	if err := h.webhooks.HandleWebhook(r.Context(), payload, r.Header.Get(SignatureHeader)); err != nil {
		h.onError(handler.NewContext(w, r), err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
