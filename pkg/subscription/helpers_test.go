package subscription_test

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/dmitrymomot/reviewhub/pkg/billing"
	"github.com/dmitrymomot/reviewhub/pkg/subscription"
)

var (
	testNow   = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)
	testPrice = billing.PriceSpec{Amount: 4900, Currency: "usd", Interval: "month", IntervalCount: 1, ProductName: "ReviewHub"}
)

// MockGateway is a testify mock of billing.Gateway.
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) Environment() billing.Environment {
	return billing.Test
}

func (m *MockGateway) CreateCustomer(ctx context.Context, params billing.CustomerParams) (string, error) {
	args := m.Called(ctx, params)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) CreateSubscription(ctx context.Context, params billing.SubscriptionParams) (*billing.CreatedSubscription, error) {
	args := m.Called(ctx, params)
	res, _ := args.Get(0).(*billing.CreatedSubscription)
	return res, args.Error(1)
}

func (m *MockGateway) RetrieveSubscription(ctx context.Context, id string) (*billing.RemoteSubscription, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*billing.RemoteSubscription)
	return res, args.Error(1)
}

func (m *MockGateway) ScheduleCancellation(ctx context.Context, id string, at time.Time) error {
	return m.Called(ctx, id, at).Error(0)
}

func (m *MockGateway) ClearScheduledCancellation(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockGateway) DeleteSubscription(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockGateway) InvoiceURLForPayment(ctx context.Context, paymentIntentID string) (string, error) {
	args := m.Called(ctx, paymentIntentID)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) ResolvePriceID(ctx context.Context, spec billing.PriceSpec) (string, error) {
	args := m.Called(ctx, spec)
	return args.String(0), args.Error(1)
}

func (m *MockGateway) DefaultPaymentMethod(ctx context.Context, customerID string) (*billing.PaymentMethod, error) {
	args := m.Called(ctx, customerID)
	res, _ := args.Get(0).(*billing.PaymentMethod)
	return res, args.Error(1)
}

func (m *MockGateway) SetDefaultPaymentMethod(ctx context.Context, params billing.PaymentMethodParams) error {
	return m.Called(ctx, params).Error(0)
}

func (m *MockGateway) ConstructEvent(payload []byte, signature string) (billing.Event, error) {
	args := m.Called(payload, signature)
	ev, _ := args.Get(0).(billing.Event)
	return ev, args.Error(1)
}

// gateways routes test companies to test and everything else to live.
type gateways struct {
	live, test billing.Gateway
}

func (g gateways) For(isTest bool) billing.Gateway {
	if isTest {
		return g.test
	}
	return g.live
}

func single(gw billing.Gateway) gateways {
	return gateways{live: gw, test: gw}
}

// MockMailer is a testify mock of subscription.Mailer.
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendTrialEndingRemind(ctx context.Context, to string, data subscription.TrialEndingRemind) error {
	return m.Called(ctx, to, data).Error(0)
}

// MockVerifier is a testify mock of subscription.EventVerifier.
type MockVerifier struct {
	mock.Mock
}

func (m *MockVerifier) ConstructEvent(ctx context.Context, payload []byte, signature string) (billing.Event, error) {
	args := m.Called(ctx, payload, signature)
	ev, _ := args.Get(0).(billing.Event)
	return ev, args.Error(1)
}

func testOptions(extra ...subscription.Option) []subscription.Option {
	return append([]subscription.Option{
		subscription.WithClock(func() time.Time { return testNow }),
		subscription.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}, extra...)
}

func ptr[T any](v T) *T { return &v }

func trialingCompany(id string) subscription.Company {
	created := testNow.AddDate(0, 0, -80)
	trial := subscription.NewTrial(created, 90)
	return subscription.Company{
		ID:                 id,
		Name:               "Acme " + id,
		Email:              id + "@example.com",
		CreatedAt:          created,
		ExternalCustomerID: "cus_" + id,
		Subscription:       &trial,
	}
}

func activeCompany(id string) subscription.Company {
	c := trialingCompany(id)
	c.Subscription = &subscription.Subscription{
		Status:                 subscription.StatusActive,
		ExternalSubscriptionID: "sub_" + id,
		PeriodStartAt:          testNow.AddDate(0, 0, -10),
		PeriodEndAt:            testNow.AddDate(0, 0, 20),
	}
	return c
}

func findCompany(repo *subscription.MemoryCompanyRepository, id string) subscription.Company {
	c, err := repo.FindByID(context.Background(), id)
	if err != nil {
		panic(err)
	}
	return *c
}
