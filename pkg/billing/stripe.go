package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/dmitrymomot/reviewhub/pkg/logger"
)

// StripeConfig holds the credentials of one Stripe account.
type StripeConfig struct {
	APIKey        string
	WebhookSecret string
	// TaxRateID is attached to new subscriptions as the default tax rate.
	TaxRateID string
}

// StripeGateway implements Gateway against a single Stripe account. It
// holds its own client.API so live and test accounts never share the
// package-level stripe.Key.
type StripeGateway struct {
	env           Environment
	api           *client.API
	webhookSecret string
	taxRateID     string
	prices        PriceCache
	backends      *stripe.Backends
	logger        *slog.Logger

	priceMu sync.Mutex
}

// StripeOption configures a StripeGateway.
type StripeOption func(*StripeGateway)

// WithPriceCache sets where resolved price ids are remembered.
// Defaults to a MemoryPriceCache.
func WithPriceCache(c PriceCache) StripeOption {
	return func(g *StripeGateway) {
		if c != nil {
			g.prices = c
		}
	}
}

// WithBackends points the client at custom backends, mainly a local test
// server.
func WithBackends(b *stripe.Backends) StripeOption {
	return func(g *StripeGateway) { g.backends = b }
}

func WithStripeLogger(l *slog.Logger) StripeOption {
	return func(g *StripeGateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewStripeGateway creates a gateway for the given environment.
func NewStripeGateway(env Environment, cfg StripeConfig, opts ...StripeOption) (*StripeGateway, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingAPIKey, env)
	}
	if cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingWebhookSecret, env)
	}

	g := &StripeGateway{
		env:           env,
		webhookSecret: cfg.WebhookSecret,
		taxRateID:     cfg.TaxRateID,
		prices:        NewMemoryPriceCache(),
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}

	g.api = &client.API{}
	g.api.Init(cfg.APIKey, g.backends)
	g.logger = g.logger.With(logger.Component("stripe"), logger.Environment(env.String()))

	return g, nil
}

func (g *StripeGateway) Environment() Environment { return g.env }

func (g *StripeGateway) CreateCustomer(ctx context.Context, p CustomerParams) (string, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	if p.Name != "" {
		params.Name = stripe.String(p.Name)
	}
	if p.Email != "" {
		params.Email = stripe.String(p.Email)
	}
	if p.CompanyID != "" {
		params.AddMetadata("company_id", p.CompanyID)
	}

	c, err := g.api.Customers.New(params)
	if err != nil {
		return "", gatewayErr(OpCreateCustomer, g.env, err)
	}
	return c.ID, nil
}

func (g *StripeGateway) CreateSubscription(ctx context.Context, p SubscriptionParams) (*CreatedSubscription, error) {
	params := &stripe.SubscriptionParams{
		Customer: stripe.String(p.CustomerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(p.PriceID)},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
		PaymentSettings: &stripe.SubscriptionPaymentSettingsParams{
			SaveDefaultPaymentMethod: stripe.String("on_subscription"),
		},
	}
	params.Context = ctx
	if p.TrialEnd != nil {
		params.TrialEnd = stripe.Int64(p.TrialEnd.Unix())
	}
	if g.taxRateID != "" {
		params.DefaultTaxRates = stripe.StringSlice([]string{g.taxRateID})
	}
	if p.CompanyID != "" {
		params.AddMetadata("company_id", p.CompanyID)
	}
	params.AddExpand("pending_setup_intent")
	params.AddExpand("latest_invoice.confirmation_secret")

	sub, err := g.api.Subscriptions.New(params)
	if err != nil {
		return nil, gatewayErr(OpCreateSubscription, g.env, err)
	}

	res := &CreatedSubscription{SubscriptionID: sub.ID}
	switch {
	case sub.PendingSetupIntent != nil:
		// trialing subscriptions collect the card through a setup intent
		si := sub.PendingSetupIntent
		res.ClientSecret = si.ClientSecret
		res.RequiresAction = si.Status == stripe.SetupIntentStatusRequiresAction ||
			si.Status == stripe.SetupIntentStatusRequiresPaymentMethod
	case sub.LatestInvoice != nil && sub.LatestInvoice.ConfirmationSecret != nil:
		res.ClientSecret = sub.LatestInvoice.ConfirmationSecret.ClientSecret
		res.RequiresAction = sub.Status == stripe.SubscriptionStatusIncomplete
	default:
		res.RequiresAction = sub.Status == stripe.SubscriptionStatusIncomplete
	}
	return res, nil
}

func (g *StripeGateway) RetrieveSubscription(ctx context.Context, subscriptionID string) (*RemoteSubscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx

	sub, err := g.api.Subscriptions.Get(subscriptionID, params)
	if err != nil {
		return nil, gatewayErr(OpRetrieveSubscription, g.env, err)
	}
	return remoteSubscription(sub), nil
}

func (g *StripeGateway) ScheduleCancellation(ctx context.Context, subscriptionID string, at time.Time) error {
	params := &stripe.SubscriptionParams{CancelAt: stripe.Int64(at.Unix())}
	params.Context = ctx

	_, err := g.api.Subscriptions.Update(subscriptionID, params)
	return gatewayErr(OpUpdateSubscription, g.env, err)
}

func (g *StripeGateway) ClearScheduledCancellation(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	// an empty value unsets cancel_at
	params.AddExtra("cancel_at", "")

	_, err := g.api.Subscriptions.Update(subscriptionID, params)
	return gatewayErr(OpUpdateSubscription, g.env, err)
}

func (g *StripeGateway) DeleteSubscription(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx

	_, err := g.api.Subscriptions.Cancel(subscriptionID, params)
	return gatewayErr(OpDeleteSubscription, g.env, err)
}

// InvoiceURLForPayment finds the invoice through the invoice payments the
// intent settled; payment intents carry no invoice reference since the
// basil API version.
func (g *StripeGateway) InvoiceURLForPayment(ctx context.Context, paymentIntentID string) (string, error) {
	params := &stripe.InvoicePaymentListParams{
		Payment: &stripe.InvoicePaymentListPaymentParams{
			Type:          stripe.String("payment_intent"),
			PaymentIntent: stripe.String(paymentIntentID),
		},
	}
	params.Context = ctx
	params.Limit = stripe.Int64(1)
	params.AddExpand("data.invoice")

	it := g.api.InvoicePayments.List(params)
	if it.Next() {
		if inv := it.InvoicePayment().Invoice; inv != nil {
			return inv.HostedInvoiceURL, nil
		}
		return "", nil
	}
	if err := it.Err(); err != nil {
		return "", gatewayErr(OpRetrieveInvoice, g.env, err)
	}
	return "", nil
}

// ResolvePriceID looks the price up in the cache, then by lookup key in
// Stripe, and creates it when neither has it.
func (g *StripeGateway) ResolvePriceID(ctx context.Context, spec PriceSpec) (string, error) {
	if err := spec.Validate(); err != nil {
		return "", err
	}
	lookupKey := spec.LookupKey()
	cacheKey := g.env.String() + ":" + lookupKey

	if id, ok := g.cachedPrice(ctx, cacheKey); ok {
		return id, nil
	}

	g.priceMu.Lock()
	defer g.priceMu.Unlock()

	if id, ok := g.cachedPrice(ctx, cacheKey); ok {
		return id, nil
	}

	listParams := &stripe.PriceListParams{
		LookupKeys: stripe.StringSlice([]string{lookupKey}),
		Active:     stripe.Bool(true),
	}
	listParams.Context = ctx

	var id string
	iter := g.api.Prices.List(listParams)
	if iter.Next() {
		id = iter.Price().ID
	}
	if err := iter.Err(); err != nil {
		return "", gatewayErr(OpCreatePrice, g.env, err)
	}

	if id == "" {
		params := &stripe.PriceParams{
			Currency:   stripe.String(strings.ToLower(spec.Currency)),
			UnitAmount: stripe.Int64(spec.Amount),
			Recurring: &stripe.PriceRecurringParams{
				Interval:      stripe.String(spec.Interval),
				IntervalCount: stripe.Int64(spec.IntervalCount),
			},
			ProductData: &stripe.PriceProductDataParams{
				Name: stripe.String(spec.ProductName),
			},
			LookupKey: stripe.String(lookupKey),
		}
		params.Context = ctx

		price, err := g.api.Prices.New(params)
		if err != nil {
			return "", gatewayErr(OpCreatePrice, g.env, err)
		}
		id = price.ID
		g.logger.InfoContext(ctx, "created stripe price", slog.String("price_id", id), slog.String("lookup_key", lookupKey))
	}

	if err := g.prices.Set(ctx, cacheKey, id); err != nil {
		g.logger.WarnContext(ctx, "failed to cache price id", logger.Error(err))
	}
	return id, nil
}

func (g *StripeGateway) cachedPrice(ctx context.Context, key string) (string, bool) {
	id, ok, err := g.prices.Get(ctx, key)
	if err != nil {
		g.logger.WarnContext(ctx, "price cache lookup failed", logger.Error(err))
		return "", false
	}
	return id, ok && id != ""
}

func (g *StripeGateway) DefaultPaymentMethod(ctx context.Context, customerID string) (*PaymentMethod, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	params.AddExpand("invoice_settings.default_payment_method")

	c, err := g.api.Customers.Get(customerID, params)
	if err != nil {
		if isResourceMissing(err) {
			return nil, ErrCustomerNotExists
		}
		return nil, gatewayErr(OpRetrievePaymentMethod, g.env, err)
	}
	if c.Deleted {
		return nil, ErrCustomerNotExists
	}
	if c.InvoiceSettings == nil || c.InvoiceSettings.DefaultPaymentMethod == nil ||
		c.InvoiceSettings.DefaultPaymentMethod.Card == nil {
		return nil, ErrPaymentMethodNotExists
	}

	pm := c.InvoiceSettings.DefaultPaymentMethod
	return &PaymentMethod{
		ID:       pm.ID,
		Brand:    string(pm.Card.Brand),
		Last4:    pm.Card.Last4,
		ExpMonth: pm.Card.ExpMonth,
		ExpYear:  pm.Card.ExpYear,
	}, nil
}

func (g *StripeGateway) SetDefaultPaymentMethod(ctx context.Context, p PaymentMethodParams) error {
	attach := &stripe.PaymentMethodAttachParams{Customer: stripe.String(p.CustomerID)}
	attach.Context = ctx
	if _, err := g.api.PaymentMethods.Attach(p.PaymentMethodID, attach); err != nil {
		if isResourceMissing(err) {
			return errors.Join(ErrCustomerNotExists, gatewayErr(OpUpdatePaymentMethod, g.env, err))
		}
		return gatewayErr(OpUpdatePaymentMethod, g.env, err)
	}

	cust := &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(p.PaymentMethodID),
		},
	}
	cust.Context = ctx
	if _, err := g.api.Customers.Update(p.CustomerID, cust); err != nil {
		return gatewayErr(OpUpdatePaymentMethod, g.env, err)
	}

	if p.SubscriptionID == "" {
		return nil
	}
	sub := &stripe.SubscriptionParams{DefaultPaymentMethod: stripe.String(p.PaymentMethodID)}
	sub.Context = ctx
	_, err := g.api.Subscriptions.Update(p.SubscriptionID, sub)
	return gatewayErr(OpUpdatePaymentMethod, g.env, err)
}

func (g *StripeGateway) ConstructEvent(payload []byte, signature string) (Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w (%s): %v", ErrWebhookSignatureInvalid, g.env, err)
	}
	if ev.Data == nil {
		return nil, errors.Join(ErrMalformedEvent, errors.New("event has no data object"))
	}

	meta := EventMeta{
		ID:        ev.ID,
		Type:      string(ev.Type),
		Env:       g.env,
		CreatedAt: unixTime(ev.Created),
	}
	return DecodeEvent(meta, ev.Data.Raw)
}

func remoteSubscription(sub *stripe.Subscription) *RemoteSubscription {
	r := &RemoteSubscription{
		ID:     sub.ID,
		Status: string(sub.Status),
	}
	if sub.Customer != nil {
		r.CustomerID = sub.Customer.ID
	}
	if sub.CancelAt > 0 {
		at := unixTime(sub.CancelAt)
		r.CancelAt = &at
	}
	if sub.Items != nil && len(sub.Items.Data) > 0 {
		r.PeriodStartAt = unixTime(sub.Items.Data[0].CurrentPeriodStart)
		r.PeriodEndAt = unixTime(sub.Items.Data[0].CurrentPeriodEnd)
	}
	return r
}

func isResourceMissing(err error) bool {
	var se *stripe.Error
	return errors.As(err, &se) && se.Code == stripe.ErrorCodeResourceMissing
}
