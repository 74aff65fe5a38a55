package billing

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/reviewhub/pkg/logger"
)

// Provider routes calls to the live or test Gateway and verifies webhooks
// against both webhook secrets.
type Provider struct {
	live   Gateway
	test   Gateway
	logger *slog.Logger
}

// ProviderOption configures a Provider.
type ProviderOption func(*Provider)

func WithProviderLogger(l *slog.Logger) ProviderOption {
	return func(p *Provider) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewProvider wraps the two gateways. Either may be nil when that account is
// not configured; calls routed to it fail with ErrGatewayNotConfigured.
func NewProvider(live, test Gateway, opts ...ProviderOption) *Provider {
	if live == nil && test == nil {
		panic("billing: at least one gateway is required")
	}
	p := &Provider{
		live:   live,
		test:   test,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.live == nil {
		p.live = unconfigured(Live)
	}
	if p.test == nil {
		p.test = unconfigured(Test)
	}
	return p
}

// For returns the gateway for a company with the given isTest flag.
func (p *Provider) For(isTest bool) Gateway {
	if isTest {
		return p.test
	}
	return p.live
}

// ConstructEvent verifies the payload with the live secret first and falls
// back to the test secret. Only a signature failure triggers the fallback;
// a payload that verifies but cannot be decoded is returned as is.
func (p *Provider) ConstructEvent(ctx context.Context, payload []byte, signature string) (Event, error) {
	ev, liveErr := p.live.ConstructEvent(payload, signature)
	if liveErr == nil {
		return ev, nil
	}
	if !errors.Is(liveErr, ErrWebhookSignatureInvalid) {
		return nil, liveErr
	}

	ev, testErr := p.test.ConstructEvent(payload, signature)
	if testErr == nil {
		p.logger.DebugContext(ctx, "webhook verified with test secret", logger.EventType(ev.Meta().Type))
		return ev, nil
	}
	if !errors.Is(testErr, ErrWebhookSignatureInvalid) {
		return nil, testErr
	}
	return nil, errors.Join(ErrWebhookSignatureInvalid, liveErr, testErr)
}

// unconfiguredGateway stands in for an account without credentials.
type unconfiguredGateway struct {
	env Environment
}

func unconfigured(env Environment) Gateway { return unconfiguredGateway{env: env} }

func (u unconfiguredGateway) err(op string) error {
	return gatewayErr(op, u.env, ErrGatewayNotConfigured)
}

func (u unconfiguredGateway) Environment() Environment { return u.env }

func (u unconfiguredGateway) CreateCustomer(context.Context, CustomerParams) (string, error) {
	return "", u.err(OpCreateCustomer)
}

func (u unconfiguredGateway) CreateSubscription(context.Context, SubscriptionParams) (*CreatedSubscription, error) {
	return nil, u.err(OpCreateSubscription)
}

func (u unconfiguredGateway) RetrieveSubscription(context.Context, string) (*RemoteSubscription, error) {
	return nil, u.err(OpRetrieveSubscription)
}

func (u unconfiguredGateway) ScheduleCancellation(context.Context, string, time.Time) error {
	return u.err(OpUpdateSubscription)
}

func (u unconfiguredGateway) ClearScheduledCancellation(context.Context, string) error {
	return u.err(OpUpdateSubscription)
}

func (u unconfiguredGateway) DeleteSubscription(context.Context, string) error {
	return u.err(OpDeleteSubscription)
}

func (u unconfiguredGateway) InvoiceURLForPayment(context.Context, string) (string, error) {
	return "", u.err(OpRetrieveInvoice)
}

func (u unconfiguredGateway) ResolvePriceID(context.Context, PriceSpec) (string, error) {
	return "", u.err(OpCreatePrice)
}

func (u unconfiguredGateway) DefaultPaymentMethod(context.Context, string) (*PaymentMethod, error) {
	return nil, u.err(OpRetrievePaymentMethod)
}

func (u unconfiguredGateway) SetDefaultPaymentMethod(context.Context, PaymentMethodParams) error {
	return u.err(OpUpdatePaymentMethod)
}

func (u unconfiguredGateway) ConstructEvent([]byte, string) (Event, error) {
	return nil, errors.Join(ErrWebhookSignatureInvalid, u.err(OpVerifyWebhook))
}
