// Package subscriptiontest holds behavior suites shared by every
// repository implementation.
package subscriptiontest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/reviewhub/pkg/subscription"
)

// Now is the reference instant used by the suites.
var Now = time.Date(2025, time.June, 1, 12, 0, 0, 0, time.UTC)

// NewCompanyRepository returns an empty-or-seeded repository holding
// exactly the given companies.
type NewCompanyRepository func(t *testing.T, companies ...subscription.Company) subscription.CompanyRepository

// NewPaymentRepository returns an empty repository.
type NewPaymentRepository func(t *testing.T) subscription.PaymentRepository

func trialing(id string, endsIn int) subscription.Company {
	trial := subscription.NewTrial(Now.AddDate(0, 0, endsIn-90), 90)
	return subscription.Company{
		ID:                 id,
		Name:               "Company " + id,
		Email:              id + "@example.com",
		CreatedAt:          trial.PeriodStartAt,
		ExternalCustomerID: "cus_" + id,
		Subscription:       &trial,
	}
}

// RunCompanyRepository checks the CompanyRepository contract.
func RunCompanyRepository(t *testing.T, newRepo NewCompanyRepository) {
	ctx := context.Background()
	ttl := 30 * time.Minute

	t.Run("find", func(t *testing.T) {
		repo := newRepo(t, trialing("c1", 5))

		c, err := repo.FindByID(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, "Company c1", c.Name)
		require.NotNil(t, c.Subscription)
		assert.Equal(t, subscription.StatusTrialing, c.Subscription.Status)
		assert.True(t, c.Subscription.PeriodEndAt.Equal(Now.AddDate(0, 0, 5)))

		c, err = repo.FindByExternalCustomerID(ctx, "cus_c1")
		require.NoError(t, err)
		assert.Equal(t, "c1", c.ID)

		_, err = repo.FindByID(ctx, "missing")
		assert.ErrorIs(t, err, subscription.ErrCompanyNotFound)
		_, err = repo.FindByExternalCustomerID(ctx, "cus_missing")
		assert.ErrorIs(t, err, subscription.ErrCompanyNotFound)
		_, err = repo.FindByExternalCustomerID(ctx, "")
		assert.ErrorIs(t, err, subscription.ErrCompanyNotFound)
	})

	t.Run("set external customer id keeps the first", func(t *testing.T) {
		c := trialing("c1", 5)
		c.ExternalCustomerID = ""
		repo := newRepo(t, c)

		stored, err := repo.SetExternalCustomerID(ctx, "c1", "cus_a")
		require.NoError(t, err)
		assert.Equal(t, "cus_a", stored)

		stored, err = repo.SetExternalCustomerID(ctx, "c1", "cus_b")
		require.NoError(t, err)
		assert.Equal(t, "cus_a", stored)

		_, err = repo.SetExternalCustomerID(ctx, "missing", "cus_c")
		assert.ErrorIs(t, err, subscription.ErrCompanyNotFound)
	})

	t.Run("save subscription replaces it wholesale", func(t *testing.T) {
		repo := newRepo(t, trialing("c1", 5))

		c, err := repo.FindByID(ctx, "c1")
		require.NoError(t, err)
		cancelAt := Now.AddDate(0, 1, 0)
		c.Subscription = &subscription.Subscription{
			Status:                 subscription.StatusActive,
			ExternalSubscriptionID: "sub_1",
			PeriodStartAt:          Now,
			PeriodEndAt:            Now.AddDate(0, 1, 0),
			WillBeCanceledAt:       &cancelAt,
		}
		require.NoError(t, repo.SaveSubscription(ctx, c))

		got, err := repo.FindByID(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, "sub_1", got.Subscription.ExternalSubscriptionID)
		require.NotNil(t, got.Subscription.WillBeCanceledAt)
		assert.True(t, got.Subscription.WillBeCanceledAt.Equal(cancelAt))
		assert.Equal(t, "Company c1", got.Name)

		deactivated := Now
		got.Subscription = nil
		got.SubscriptionDeactivatedAt = &deactivated
		require.NoError(t, repo.SaveSubscription(ctx, got))

		got, err = repo.FindByID(ctx, "c1")
		require.NoError(t, err)
		assert.Nil(t, got.Subscription)
		require.NotNil(t, got.SubscriptionDeactivatedAt)
		assert.True(t, got.SubscriptionDeactivatedAt.Equal(Now))

		err = repo.SaveSubscription(ctx, &subscription.Company{ID: "missing"})
		assert.ErrorIs(t, err, subscription.ErrCompanyNotFound)
	})

	t.Run("lock", func(t *testing.T) {
		repo := newRepo(t, trialing("c1", 5))

		require.NoError(t, repo.AcquireLock(ctx, "c1", Now, ttl))
		assert.ErrorIs(t, repo.AcquireLock(ctx, "c1", Now.Add(time.Minute), ttl), subscription.ErrSubscriptionInProgress)

		c, err := repo.FindByID(ctx, "c1")
		require.NoError(t, err)
		assert.True(t, c.Subscription.InProgress)
		assert.Equal(t, subscription.StatusTrialing, c.Subscription.Status)

		require.NoError(t, repo.ReleaseLock(ctx, "c1"))
		require.NoError(t, repo.AcquireLock(ctx, "c1", Now, ttl))

		assert.ErrorIs(t, repo.AcquireLock(ctx, "missing", Now, ttl), subscription.ErrCompanyNotFound)
	})

	t.Run("abandoned lock is taken over", func(t *testing.T) {
		repo := newRepo(t, trialing("c1", 5))

		require.NoError(t, repo.AcquireLock(ctx, "c1", Now, ttl))
		require.NoError(t, repo.AcquireLock(ctx, "c1", Now.Add(ttl+time.Second), ttl))
	})

	t.Run("lock on a company without subscription", func(t *testing.T) {
		c := trialing("c1", 5)
		c.Subscription = nil
		repo := newRepo(t, c)

		require.NoError(t, repo.AcquireLock(ctx, "c1", Now, ttl))
		got, err := repo.FindByID(ctx, "c1")
		require.NoError(t, err)
		require.NotNil(t, got.Subscription)
		assert.Equal(t, subscription.StatusIncomplete, got.Subscription.Status)
		assert.True(t, got.Subscription.InProgress)

		assert.ErrorIs(t, repo.AcquireLock(ctx, "c1", Now, ttl), subscription.ErrSubscriptionInProgress)

		require.NoError(t, repo.ReleaseLock(ctx, "c1"))
		got, err = repo.FindByID(ctx, "c1")
		require.NoError(t, err)
		assert.Nil(t, got.Subscription)
	})

	t.Run("lock admits exactly one concurrent caller", func(t *testing.T) {
		repo := newRepo(t, trialing("c1", 5))

		var (
			wg  sync.WaitGroup
			won atomic.Int32
		)
		for range 16 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if repo.AcquireLock(ctx, "c1", Now, ttl) == nil {
					won.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.EqualValues(t, 1, won.Load())
	})

	t.Run("trial ending query", func(t *testing.T) {
		reminded := trialing("c3", 3)
		reminded.Subscription.TrialEndingEmailSent = true
		active := trialing("c4", 3)
		active.Subscription.Status = subscription.StatusActive
		repo := newRepo(t,
			trialing("c1", 3),
			trialing("c2", 7),
			reminded,
			active,
			trialing("c5", -1),
			trialing("c6", 8),
			trialing("c7", 1),
		)

		q := subscription.TrialEndingQuery{Now: Now, Before: Now.AddDate(0, 0, 7), Limit: 2}
		page, err := repo.FindTrialEnding(ctx, q)
		require.NoError(t, err)
		assert.Equal(t, []string{"c1", "c2"}, ids(page))

		q.AfterID = page[len(page)-1].ID
		page, err = repo.FindTrialEnding(ctx, q)
		require.NoError(t, err)
		assert.Equal(t, []string{"c7"}, ids(page))
	})

	t.Run("trial reminder claim", func(t *testing.T) {
		repo := newRepo(t, trialing("c1", 3))

		ok, err := repo.ClaimTrialReminder(ctx, "c1")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.ClaimTrialReminder(ctx, "c1")
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, repo.ReleaseTrialReminder(ctx, "c1"))
		ok, err = repo.ClaimTrialReminder(ctx, "c1")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

// RunPaymentRepository checks the PaymentRepository contract.
func RunPaymentRepository(t *testing.T, newRepo NewPaymentRepository) {
	ctx := context.Background()

	payment := func(id, company string, at time.Time) *subscription.Payment {
		return &subscription.Payment{
			ID:                "pay_" + id,
			CompanyID:         company,
			ExternalPaymentID: "pi_" + id,
			AmountMinor:       4900,
			Amount:            49,
			Currency:          "usd",
			Status:            subscription.PaymentProcessing,
			InvoiceURL:        "https://pay.example/" + id,
			CreatedAt:         at,
		}
	}

	t.Run("create and find", func(t *testing.T) {
		repo := newRepo(t)
		p := payment("1", "c1", Now)
		require.NoError(t, repo.Create(ctx, p))

		got, err := repo.FindByExternalID(ctx, "pi_1")
		require.NoError(t, err)
		assert.Equal(t, p.ID, got.ID)
		assert.Equal(t, p.CompanyID, got.CompanyID)
		assert.Equal(t, p.AmountMinor, got.AmountMinor)
		assert.InDelta(t, p.Amount, got.Amount, 0.001)
		assert.Equal(t, p.Currency, got.Currency)
		assert.Equal(t, p.Status, got.Status)
		assert.Equal(t, p.InvoiceURL, got.InvoiceURL)
		assert.True(t, p.CreatedAt.Equal(got.CreatedAt))

		_, err = repo.FindByExternalID(ctx, "pi_missing")
		assert.ErrorIs(t, err, subscription.ErrPaymentNotFound)
	})

	t.Run("external id is unique", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, payment("1", "c1", Now)))

		dup := payment("1", "c1", Now)
		dup.ID = "pay_other"
		assert.ErrorIs(t, repo.Create(ctx, dup), subscription.ErrPaymentExists)
	})

	t.Run("update status", func(t *testing.T) {
		repo := newRepo(t)
		require.NoError(t, repo.Create(ctx, payment("1", "c1", Now)))
		require.NoError(t, repo.UpdateStatus(ctx, "pi_1", subscription.PaymentSucceeded))

		got, err := repo.FindByExternalID(ctx, "pi_1")
		require.NoError(t, err)
		assert.Equal(t, subscription.PaymentSucceeded, got.Status)

		assert.ErrorIs(t, repo.UpdateStatus(ctx, "pi_missing", subscription.PaymentSucceeded), subscription.ErrPaymentNotFound)
	})

	t.Run("list newest first", func(t *testing.T) {
		repo := newRepo(t)
		for i := range 5 {
			require.NoError(t, repo.Create(ctx, payment(fmt.Sprint(i), "c1", Now.Add(time.Duration(i)*time.Hour))))
		}
		require.NoError(t, repo.Create(ctx, payment("other", "c2", Now)))

		items, total, err := repo.ListByCompany(ctx, "c1", 1, 2)
		require.NoError(t, err)
		assert.EqualValues(t, 5, total)
		require.Len(t, items, 2)
		assert.Equal(t, "pi_3", items[0].ExternalPaymentID)
		assert.Equal(t, "pi_2", items[1].ExternalPaymentID)

		items, total, err = repo.ListByCompany(ctx, "c1", 10, 2)
		require.NoError(t, err)
		assert.EqualValues(t, 5, total)
		assert.Empty(t, items)

		items, total, err = repo.ListByCompany(ctx, "nobody", 0, 10)
		require.NoError(t, err)
		assert.Zero(t, total)
		assert.Empty(t, items)
	})
}

func ids(companies []subscription.Company) []string {
	out := make([]string, 0, len(companies))
	for _, c := range companies {
		out = append(out, c.ID)
	}
	return out
}
