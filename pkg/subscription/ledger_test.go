package subscription_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/reviewhub/pkg/billing"
	"github.com/dmitrymomot/reviewhub/pkg/subscription"
)

func newLedger(t *testing.T, companies ...subscription.Company) (*subscription.Ledger, *subscription.MemoryPaymentRepository, *MockGateway) {
	t.Helper()
	payments := subscription.NewMemoryPaymentRepository()
	gw := &MockGateway{}
	t.Cleanup(func() { gw.AssertExpectations(t) })
	ledger := subscription.NewLedger(subscription.NewMemoryCompanyRepository(companies...), payments, single(gw), testOptions()...)
	return ledger, payments, gw
}

func remotePayment(status string) billing.RemotePayment {
	return billing.RemotePayment{
		ID:          "pi_1",
		CustomerID:  "cus_c1",
		AmountMinor: 4900,
		Currency:    "USD",
		Status:      status,
		CreatedAt:   testNow,
	}
}

func TestLedger_SavePayment(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	t.Run("creates the record", func(t *testing.T) {
		t.Parallel()
		ledger, payments, gw := newLedger(t, activeCompany("c1"))
		gw.On("InvoiceURLForPayment", mock.Anything, "pi_1").Return("https://pay.example/in_1", nil).Once()

		p, err := ledger.SavePayment(ctx, remotePayment("succeeded"))
		require.NoError(t, err)
		assert.NotEmpty(t, p.ID)
		assert.Equal(t, "c1", p.CompanyID)
		assert.Equal(t, int64(4900), p.AmountMinor)
		assert.InDelta(t, 49.0, p.Amount, 0.0001)
		assert.Equal(t, "usd", p.Currency)
		assert.Equal(t, subscription.PaymentSucceeded, p.Status)
		assert.Equal(t, "https://pay.example/in_1", p.InvoiceURL)
		assert.Equal(t, testNow, p.CreatedAt)

		stored, err := payments.FindByExternalID(ctx, "pi_1")
		require.NoError(t, err)
		assert.Equal(t, *p, *stored)
	})

	t.Run("redelivery updates the status in place", func(t *testing.T) {
		t.Parallel()
		ledger, payments, gw := newLedger(t, activeCompany("c1"))
		gw.On("InvoiceURLForPayment", mock.Anything, "pi_1").Return("https://pay.example/in_1", nil).Twice()

		first, err := ledger.SavePayment(ctx, remotePayment("processing"))
		require.NoError(t, err)
		second, err := ledger.SavePayment(ctx, remotePayment("succeeded"))
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		items, total, err := payments.ListByCompany(ctx, "c1", 0, 10)
		require.NoError(t, err)
		assert.EqualValues(t, 1, total)
		require.Len(t, items, 1)
		assert.Equal(t, subscription.PaymentSucceeded, items[0].Status)
	})

	t.Run("zero decimal currency without invoice", func(t *testing.T) {
		t.Parallel()
		ledger, _, gw := newLedger(t, activeCompany("c1"))
		gw.On("InvoiceURLForPayment", mock.Anything, "pi_1").Return("", nil).Once()
		rp := remotePayment("succeeded")
		rp.Currency = "jpy"
		rp.AmountMinor = 500

		p, err := ledger.SavePayment(ctx, rp)
		require.NoError(t, err)
		assert.InDelta(t, 500.0, p.Amount, 0.0001)
		assert.Empty(t, p.InvoiceURL)
	})

	t.Run("unknown customer", func(t *testing.T) {
		t.Parallel()
		ledger, payments, _ := newLedger(t, activeCompany("c1"))
		rp := remotePayment("succeeded")
		rp.CustomerID = "cus_other"

		_, err := ledger.SavePayment(ctx, rp)
		assert.ErrorIs(t, err, subscription.ErrCompanyNotFound)
		_, err = payments.FindByExternalID(ctx, "pi_1")
		assert.ErrorIs(t, err, subscription.ErrPaymentNotFound)
	})

	t.Run("unknown status", func(t *testing.T) {
		t.Parallel()
		ledger, _, _ := newLedger(t, activeCompany("c1"))
		_, err := ledger.SavePayment(ctx, remotePayment("exploded"))
		assert.ErrorIs(t, err, subscription.ErrUnknownPaymentStatus)
	})

	t.Run("invoice lookup failure stores nothing", func(t *testing.T) {
		t.Parallel()
		ledger, payments, gw := newLedger(t, activeCompany("c1"))
		gw.On("InvoiceURLForPayment", mock.Anything, "pi_1").Return("", errors.New("timeout")).Once()

		_, err := ledger.SavePayment(ctx, remotePayment("succeeded"))
		require.Error(t, err)
		_, err = payments.FindByExternalID(ctx, "pi_1")
		assert.ErrorIs(t, err, subscription.ErrPaymentNotFound)
	})
}

// racingPayments reports the payment as absent once, then behaves normally,
// simulating a concurrent delivery winning the insert.
type racingPayments struct {
	*subscription.MemoryPaymentRepository
	missed bool
}

func (r *racingPayments) FindByExternalID(ctx context.Context, id string) (*subscription.Payment, error) {
	if !r.missed {
		r.missed = true
		return nil, subscription.ErrPaymentNotFound
	}
	return r.MemoryPaymentRepository.FindByExternalID(ctx, id)
}

func TestLedger_SavePayment_ConcurrentInsert(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	payments := &racingPayments{MemoryPaymentRepository: subscription.NewMemoryPaymentRepository()}
	require.NoError(t, payments.Create(ctx, &subscription.Payment{
		ID: "existing", CompanyID: "c1", ExternalPaymentID: "pi_1", Status: subscription.PaymentProcessing,
	}))

	gw := &MockGateway{}
	gw.On("InvoiceURLForPayment", mock.Anything, "pi_1").Return("", nil).Once()
	ledger := subscription.NewLedger(subscription.NewMemoryCompanyRepository(activeCompany("c1")), payments, single(gw), testOptions()...)

	p, err := ledger.SavePayment(ctx, remotePayment("succeeded"))
	require.NoError(t, err)
	assert.Equal(t, "existing", p.ID)
	assert.Equal(t, subscription.PaymentSucceeded, p.Status)
}
