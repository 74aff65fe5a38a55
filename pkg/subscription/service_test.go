package subscription_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/reviewhub/pkg/billing"
	"github.com/dmitrymomot/reviewhub/pkg/subscription"
)

type serviceFixture struct {
	companies *subscription.MemoryCompanyRepository
	payments  *subscription.MemoryPaymentRepository
	gw        *MockGateway
	svc       *subscription.Service
}

func newServiceFixture(t *testing.T, companies ...subscription.Company) *serviceFixture {
	t.Helper()
	f := &serviceFixture{
		companies: subscription.NewMemoryCompanyRepository(companies...),
		payments:  subscription.NewMemoryPaymentRepository(),
		gw:        &MockGateway{},
	}
	f.svc = subscription.NewService(f.companies, f.payments, single(f.gw), testPrice, testOptions()...)
	t.Cleanup(func() { f.gw.AssertExpectations(t) })
	return f
}

func TestNewService_PanicsOnNilDependencies(t *testing.T) {
	t.Parallel()

	companies := subscription.NewMemoryCompanyRepository()
	payments := subscription.NewMemoryPaymentRepository()
	gws := single(&MockGateway{})

	assert.Panics(t, func() { subscription.NewService(nil, payments, gws, testPrice) })
	assert.Panics(t, func() { subscription.NewService(companies, nil, gws, testPrice) })
	assert.Panics(t, func() { subscription.NewService(companies, payments, nil, testPrice) })
}

func TestService_StartTrial(t *testing.T) {
	t.Parallel()

	t.Run("trial spans the configured days from creation", func(t *testing.T) {
		t.Parallel()
		created := time.Date(2025, time.January, 10, 8, 30, 0, 0, time.UTC)
		f := newServiceFixture(t, subscription.Company{ID: "c1", CreatedAt: created})

		require.NoError(t, f.svc.StartTrial(context.Background(), "c1"))

		sub := findCompany(f.companies, "c1").Subscription
		require.NotNil(t, sub)
		assert.Equal(t, subscription.StatusTrialing, sub.Status)
		assert.Equal(t, created, sub.PeriodStartAt)
		assert.Equal(t, created.AddDate(0, 0, 90), sub.PeriodEndAt)
		assert.False(t, sub.InProgress)
	})

	t.Run("twice fails", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t, trialingCompany("c1"))
		assert.ErrorIs(t, f.svc.StartTrial(context.Background(), "c1"), subscription.ErrTrialAlreadyStarted)
	})

	t.Run("requires creation time", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t, subscription.Company{ID: "c1"})
		assert.ErrorIs(t, f.svc.StartTrial(context.Background(), "c1"), subscription.ErrMissingCompanyCreatedAt)
	})

	t.Run("unknown company", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t)
		assert.ErrorIs(t, f.svc.StartTrial(context.Background(), "nope"), subscription.ErrCompanyNotFound)
	})
}

func TestService_CreateStripeCustomer(t *testing.T) {
	t.Parallel()

	user := subscription.User{ID: "u1", Name: "Jane", Email: "jane@example.com"}

	t.Run("creates and stores the customer", func(t *testing.T) {
		t.Parallel()
		c := trialingCompany("c1")
		c.ExternalCustomerID = ""
		f := newServiceFixture(t, c)
		f.gw.On("CreateCustomer", mock.Anything, billing.CustomerParams{
			CompanyID: "c1", Name: "Jane", Email: "jane@example.com",
		}).Return("cus_new", nil).Once()

		id, err := f.svc.CreateStripeCustomer(context.Background(), user, "c1")
		require.NoError(t, err)
		assert.Equal(t, "cus_new", id)
		assert.Equal(t, "cus_new", findCompany(f.companies, "c1").ExternalCustomerID)
	})

	t.Run("returns the stored customer without calling the gateway", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t, trialingCompany("c1"))

		id, err := f.svc.CreateStripeCustomer(context.Background(), user, "c1")
		require.NoError(t, err)
		assert.Equal(t, "cus_c1", id)
		f.gw.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything)
	})

	t.Run("falls back to the company email", func(t *testing.T) {
		t.Parallel()
		c := trialingCompany("c1")
		c.ExternalCustomerID = ""
		f := newServiceFixture(t, c)
		f.gw.On("CreateCustomer", mock.Anything, billing.CustomerParams{
			CompanyID: "c1", Name: "Jane", Email: "c1@example.com",
		}).Return("cus_new", nil).Once()

		_, err := f.svc.CreateStripeCustomer(context.Background(), subscription.User{Name: "Jane"}, "c1")
		require.NoError(t, err)
	})

	t.Run("routes test companies to the test gateway", func(t *testing.T) {
		t.Parallel()
		c := trialingCompany("c1")
		c.ExternalCustomerID = ""
		c.IsTest = true
		live, test := &MockGateway{}, &MockGateway{}
		companies := subscription.NewMemoryCompanyRepository(c)
		svc := subscription.NewService(companies, subscription.NewMemoryPaymentRepository(), gateways{live: live, test: test}, testPrice, testOptions()...)
		test.On("CreateCustomer", mock.Anything, mock.Anything).Return("cus_test", nil).Once()

		id, err := svc.CreateStripeCustomer(context.Background(), user, "c1")
		require.NoError(t, err)
		assert.Equal(t, "cus_test", id)
		test.AssertExpectations(t)
		live.AssertNotCalled(t, "CreateCustomer", mock.Anything, mock.Anything)
	})
}

func TestService_Subscribe(t *testing.T) {
	t.Parallel()

	user := subscription.User{ID: "u1", Name: "Jane", Email: "jane@example.com"}
	ctx := context.Background()

	t.Run("already subscribed never calls the gateway", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t, activeCompany("c1"))

		_, err := f.svc.Subscribe(ctx, user, "c1")
		assert.ErrorIs(t, err, subscription.ErrAlreadySubscribed)
		assert.Empty(t, f.gw.Calls)
	})

	t.Run("in progress never calls the gateway", func(t *testing.T) {
		t.Parallel()
		c := trialingCompany("c1")
		c.Subscription.InProgress = true
		f := newServiceFixture(t, c)

		_, err := f.svc.Subscribe(ctx, user, "c1")
		assert.ErrorIs(t, err, subscription.ErrSubscriptionInProgress)
		assert.Empty(t, f.gw.Calls)
	})

	t.Run("carries the remaining trial over", func(t *testing.T) {
		t.Parallel()
		c := trialingCompany("c1")
		c.Subscription.PeriodEndAt = testNow.AddDate(0, 0, 10)
		f := newServiceFixture(t, c)

		f.gw.On("ResolvePriceID", mock.Anything, testPrice).Return("price_1", nil).Once()
		f.gw.On("CreateSubscription", mock.Anything, billing.SubscriptionParams{
			CustomerID: "cus_c1",
			PriceID:    "price_1",
			CompanyID:  "c1",
			TrialEnd:   ptr(testNow.AddDate(0, 0, 10)),
		}).Return(&billing.CreatedSubscription{SubscriptionID: "sub_1", RequiresAction: true, ClientSecret: "seti_secret"}, nil).Once()

		res, err := f.svc.Subscribe(ctx, user, "c1")
		require.NoError(t, err)
		assert.Equal(t, &subscription.SubscribeResult{SubscriptionID: "sub_1", RequiresAction: true, ClientSecret: "seti_secret"}, res)

		sub := findCompany(f.companies, "c1").Subscription
		assert.True(t, sub.InProgress, "lock is held until the webhook arrives")
		assert.Empty(t, sub.ExternalSubscriptionID, "the created webhook records the subscription")
	})

	t.Run("expired trial charges immediately", func(t *testing.T) {
		t.Parallel()
		c := trialingCompany("c1")
		c.Subscription.PeriodEndAt = testNow.AddDate(0, 0, -1)
		f := newServiceFixture(t, c)

		f.gw.On("ResolvePriceID", mock.Anything, testPrice).Return("price_1", nil).Once()
		f.gw.On("CreateSubscription", mock.Anything, mock.MatchedBy(func(p billing.SubscriptionParams) bool {
			return p.TrialEnd == nil
		})).Return(&billing.CreatedSubscription{SubscriptionID: "sub_1"}, nil).Once()

		_, err := f.svc.Subscribe(ctx, user, "c1")
		require.NoError(t, err)
	})

	t.Run("creates the customer when missing", func(t *testing.T) {
		t.Parallel()
		c := trialingCompany("c1")
		c.ExternalCustomerID = ""
		f := newServiceFixture(t, c)

		f.gw.On("CreateCustomer", mock.Anything, mock.Anything).Return("cus_new", nil).Once()
		f.gw.On("ResolvePriceID", mock.Anything, testPrice).Return("price_1", nil).Once()
		f.gw.On("CreateSubscription", mock.Anything, mock.MatchedBy(func(p billing.SubscriptionParams) bool {
			return p.CustomerID == "cus_new"
		})).Return(&billing.CreatedSubscription{SubscriptionID: "sub_1"}, nil).Once()

		_, err := f.svc.Subscribe(ctx, user, "c1")
		require.NoError(t, err)
		assert.Equal(t, "cus_new", findCompany(f.companies, "c1").ExternalCustomerID)
	})

	t.Run("company without subscription gets a locked placeholder", func(t *testing.T) {
		t.Parallel()
		c := trialingCompany("c1")
		c.Subscription = nil
		f := newServiceFixture(t, c)

		f.gw.On("ResolvePriceID", mock.Anything, testPrice).Return("price_1", nil).Once()
		f.gw.On("CreateSubscription", mock.Anything, mock.MatchedBy(func(p billing.SubscriptionParams) bool {
			return p.TrialEnd == nil
		})).Return(&billing.CreatedSubscription{SubscriptionID: "sub_1"}, nil).Once()

		_, err := f.svc.Subscribe(ctx, user, "c1")
		require.NoError(t, err)
		sub := findCompany(f.companies, "c1").Subscription
		require.NotNil(t, sub)
		assert.Equal(t, subscription.StatusIncomplete, sub.Status)
		assert.True(t, sub.InProgress)
	})

	t.Run("gateway failure releases the lock", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t, trialingCompany("c1"))
		gwErr := &billing.GatewayError{Op: billing.OpCreateSubscription, Env: billing.Live, Cause: errors.New("card declined")}

		f.gw.On("ResolvePriceID", mock.Anything, testPrice).Return("price_1", nil).Once()
		f.gw.On("CreateSubscription", mock.Anything, mock.Anything).Return(nil, gwErr).Once()

		_, err := f.svc.Subscribe(ctx, user, "c1")
		require.ErrorIs(t, err, gwErr)
		assert.Equal(t, subscription.KindGateway, subscription.KindOf(err))
		assert.False(t, findCompany(f.companies, "c1").Subscription.InProgress)
	})

	t.Run("gateway failure restores a missing subscription", func(t *testing.T) {
		t.Parallel()
		c := trialingCompany("c1")
		c.Subscription = nil
		c.SubscriptionDeactivatedAt = ptr(testNow.AddDate(0, 0, -3))
		f := newServiceFixture(t, c)

		f.gw.On("ResolvePriceID", mock.Anything, testPrice).Return("price_1", nil).Once()
		f.gw.On("CreateSubscription", mock.Anything, mock.Anything).
			Return(nil, &billing.GatewayError{Op: billing.OpCreateSubscription, Env: billing.Live, Cause: errors.New("card declined")}).Once()

		_, err := f.svc.Subscribe(ctx, user, "c1")
		require.Error(t, err)

		got := findCompany(f.companies, "c1")
		assert.Nil(t, got.Subscription)
		assert.NotNil(t, got.SubscriptionDeactivatedAt)
	})

	t.Run("gateway failure before any trial keeps the trial available", func(t *testing.T) {
		t.Parallel()
		c := trialingCompany("c1")
		c.Subscription = nil
		f := newServiceFixture(t, c)

		f.gw.On("ResolvePriceID", mock.Anything, testPrice).Return("", errors.New("stripe down")).Once()

		_, err := f.svc.Subscribe(ctx, user, "c1")
		require.Error(t, err)
		assert.Nil(t, findCompany(f.companies, "c1").Subscription)

		require.NoError(t, f.svc.StartTrial(ctx, "c1"))
		assert.True(t, findCompany(f.companies, "c1").Subscription.IsTrialing())
	})

	t.Run("empty price id is a validation error", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t, trialingCompany("c1"))
		f.gw.On("ResolvePriceID", mock.Anything, testPrice).Return("", nil).Once()

		_, err := f.svc.Subscribe(ctx, user, "c1")
		assert.ErrorIs(t, err, subscription.ErrMissingPrice)
		assert.False(t, findCompany(f.companies, "c1").Subscription.InProgress)
	})

	t.Run("stale lock is taken over", func(t *testing.T) {
		t.Parallel()
		c := trialingCompany("c1")
		c.Subscription.InProgress = true
		c.Subscription.InProgressAt = ptr(testNow.Add(-time.Hour))
		f := newServiceFixture(t, c)

		f.gw.On("ResolvePriceID", mock.Anything, testPrice).Return("price_1", nil).Once()
		f.gw.On("CreateSubscription", mock.Anything, mock.Anything).Return(&billing.CreatedSubscription{SubscriptionID: "sub_1"}, nil).Once()

		_, err := f.svc.Subscribe(ctx, user, "c1")
		require.NoError(t, err)
		assert.Equal(t, testNow, *findCompany(f.companies, "c1").Subscription.InProgressAt)
	})
}

func TestService_CancelSubscription(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("schedules at period end plus grace", func(t *testing.T) {
		t.Parallel()
		c := activeCompany("c1")
		companies := subscription.NewMemoryCompanyRepository(c)
		gw := &MockGateway{}
		cfg := subscription.DefaultConfig()
		cfg.CancelGraceDays = 3
		svc := subscription.NewService(companies, subscription.NewMemoryPaymentRepository(), single(gw), testPrice, testOptions(subscription.WithConfig(cfg))...)

		gw.On("ScheduleCancellation", mock.Anything, "sub_c1", c.Subscription.PeriodEndAt.AddDate(0, 0, 3)).Return(nil).Once()

		require.NoError(t, svc.CancelSubscription(ctx, "c1", false))
		gw.AssertExpectations(t)
		assert.True(t, findCompany(companies, "c1").Subscription.InProgress)
	})

	t.Run("trialing behaves like immediate cancellation", func(t *testing.T) {
		t.Parallel()

		graceful := trialingCompany("c1")
		graceful.Subscription.ExternalSubscriptionID = "sub_c1"
		immediate := trialingCompany("c2")
		immediate.Subscription.ExternalSubscriptionID = "sub_c2"
		f := newServiceFixture(t, graceful, immediate)

		f.gw.On("DeleteSubscription", mock.Anything, "sub_c1").Return(nil).Once()
		f.gw.On("DeleteSubscription", mock.Anything, "sub_c2").Return(nil).Once()

		require.NoError(t, f.svc.CancelSubscription(ctx, "c1", false))
		require.NoError(t, f.svc.CancelSubscriptionImmediately(ctx, "c2"))

		a, b := findCompany(f.companies, "c1").Subscription, findCompany(f.companies, "c2").Subscription
		assert.Equal(t, a.InProgress, b.InProgress)
		assert.True(t, a.InProgress)
		f.gw.AssertNotCalled(t, "ScheduleCancellation", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("immediate flag deletes", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t, activeCompany("c1"))
		f.gw.On("DeleteSubscription", mock.Anything, "sub_c1").Return(nil).Once()
		require.NoError(t, f.svc.CancelSubscription(ctx, "c1", true))
	})

	t.Run("not subscribed", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t, trialingCompany("c1"))
		assert.ErrorIs(t, f.svc.CancelSubscription(ctx, "c1", false), subscription.ErrUserNotSubscribed)
		assert.ErrorIs(t, f.svc.CancelSubscriptionImmediately(ctx, "c1"), subscription.ErrUserNotSubscribed)
	})

	t.Run("in progress", func(t *testing.T) {
		t.Parallel()
		c := activeCompany("c1")
		c.Subscription.InProgress = true
		c.Subscription.InProgressAt = ptr(testNow)
		f := newServiceFixture(t, c)
		assert.ErrorIs(t, f.svc.CancelSubscription(ctx, "c1", false), subscription.ErrSubscriptionInProgress)
		assert.Empty(t, f.gw.Calls)
	})

	t.Run("gateway failure releases the lock", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t, activeCompany("c1"))
		f.gw.On("DeleteSubscription", mock.Anything, "sub_c1").Return(errors.New("boom")).Once()

		require.Error(t, f.svc.CancelSubscriptionImmediately(ctx, "c1"))
		assert.False(t, findCompany(f.companies, "c1").Subscription.InProgress)
	})
}

func TestService_ReSubscribe(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("fails when no cancellation is scheduled", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t, activeCompany("c1"))
		f.gw.On("RetrieveSubscription", mock.Anything, "sub_c1").Return(&billing.RemoteSubscription{ID: "sub_c1"}, nil).Once()

		assert.ErrorIs(t, f.svc.ReSubscribe(ctx, "c1"), subscription.ErrSubscriptionNotCanceled)
		f.gw.AssertNotCalled(t, "ClearScheduledCancellation", mock.Anything, mock.Anything)
		assert.False(t, findCompany(f.companies, "c1").Subscription.InProgress)
	})

	t.Run("clears a scheduled cancellation", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t, activeCompany("c1"))
		f.gw.On("RetrieveSubscription", mock.Anything, "sub_c1").Return(&billing.RemoteSubscription{
			ID: "sub_c1", CancelAt: ptr(testNow.AddDate(0, 0, 20)),
		}, nil).Once()
		f.gw.On("ClearScheduledCancellation", mock.Anything, "sub_c1").Return(nil).Once()

		require.NoError(t, f.svc.ReSubscribe(ctx, "c1"))
		assert.True(t, findCompany(f.companies, "c1").Subscription.InProgress)
	})

	t.Run("not subscribed", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t, trialingCompany("c1"))
		assert.ErrorIs(t, f.svc.ReSubscribe(ctx, "c1"), subscription.ErrUserNotSubscribed)
	})
}

func TestService_DeactivateSubscription(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("trialing keeps the trial", func(t *testing.T) {
		t.Parallel()
		c := trialingCompany("c1")
		c.Subscription.ExternalSubscriptionID = "sub_c1"
		c.Subscription.TrialingCardConfirmed = true
		f := newServiceFixture(t, c)

		require.NoError(t, f.svc.DeactivateSubscription(ctx, &c))

		stored := findCompany(f.companies, "c1")
		require.NotNil(t, stored.Subscription)
		assert.Empty(t, stored.Subscription.ExternalSubscriptionID)
		assert.Equal(t, subscription.StatusTrialing, stored.Subscription.Status)
		assert.Equal(t, c.Subscription.PeriodEndAt, stored.Subscription.PeriodEndAt)
		assert.Nil(t, stored.SubscriptionDeactivatedAt)
	})

	t.Run("paid subscription is removed", func(t *testing.T) {
		t.Parallel()
		c := activeCompany("c1")
		f := newServiceFixture(t, c)

		require.NoError(t, f.svc.DeactivateSubscription(ctx, &c))

		stored := findCompany(f.companies, "c1")
		assert.Nil(t, stored.Subscription)
		require.NotNil(t, stored.SubscriptionDeactivatedAt)
		assert.Equal(t, testNow, *stored.SubscriptionDeactivatedAt)
	})

	t.Run("no subscription", func(t *testing.T) {
		t.Parallel()
		c := subscription.Company{ID: "c1"}
		f := newServiceFixture(t, c)
		assert.ErrorIs(t, f.svc.DeactivateSubscription(ctx, &c), subscription.ErrCompanySubscriptionNotFound)
	})
}

func TestService_PaymentMethod(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("get returns the default card", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t, activeCompany("c1"))
		card := &billing.PaymentMethod{ID: "pm_1", Brand: "visa", Last4: "4242", ExpMonth: 12, ExpYear: 2030}
		f.gw.On("DefaultPaymentMethod", mock.Anything, "cus_c1").Return(card, nil).Once()

		got, err := f.svc.GetPaymentMethod(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, card, got)
	})

	t.Run("get without customer", func(t *testing.T) {
		t.Parallel()
		c := activeCompany("c1")
		c.ExternalCustomerID = ""
		f := newServiceFixture(t, c)

		_, err := f.svc.GetPaymentMethod(ctx, "c1")
		assert.ErrorIs(t, err, billing.ErrCustomerNotExists)
		assert.Equal(t, subscription.KindNotFound, subscription.KindOf(err))
	})

	t.Run("update sets customer and subscription default", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t, activeCompany("c1"))
		f.gw.On("SetDefaultPaymentMethod", mock.Anything, billing.PaymentMethodParams{
			CustomerID: "cus_c1", SubscriptionID: "sub_c1", PaymentMethodID: "pm_2",
		}).Return(nil).Once()

		require.NoError(t, f.svc.UpdatePaymentMethod(ctx, "c1", "pm_2"))
		assert.False(t, findCompany(f.companies, "c1").Subscription.InProgress, "payment method updates do not lock")
	})

	t.Run("update requires a payment method", func(t *testing.T) {
		t.Parallel()
		f := newServiceFixture(t, activeCompany("c1"))
		err := f.svc.UpdatePaymentMethod(ctx, "c1", "")
		assert.ErrorIs(t, err, subscription.ErrMissingPaymentMethod)
		assert.Equal(t, subscription.KindValidation, subscription.KindOf(err))
	})
}

func TestService_GetPayments(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newServiceFixture(t, activeCompany("c1"), activeCompany("c2"))
	for i := range 30 {
		require.NoError(t, f.payments.Create(ctx, &subscription.Payment{
			ID:                "p" + string(rune('a'+i)),
			CompanyID:         "c1",
			ExternalPaymentID: "pi_" + string(rune('a'+i)),
			Status:            subscription.PaymentSucceeded,
			CreatedAt:         testNow.Add(time.Duration(i) * time.Hour),
		}))
	}

	page, err := f.svc.GetPayments(ctx, "c1", 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, 30, page.Total)
	assert.Equal(t, 20, page.Limit)
	require.Len(t, page.Items, 20)
	assert.Equal(t, "pi_"+string(rune('a'+29)), page.Items[0].ExternalPaymentID, "newest first")

	page, err = f.svc.GetPayments(ctx, "c1", 25, 500)
	require.NoError(t, err)
	assert.Equal(t, 100, page.Limit)
	assert.Len(t, page.Items, 5)

	page, err = f.svc.GetPayments(ctx, "c2", -5, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, page.Skip)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)

	_, err = f.svc.GetPayments(ctx, "missing", 0, 10)
	assert.ErrorIs(t, err, subscription.ErrCompanyNotFound)
}
