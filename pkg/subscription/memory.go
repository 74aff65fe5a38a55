package subscription

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"
)

// MemoryCompanyRepository is an in-process CompanyRepository used in tests
// and local development.
type MemoryCompanyRepository struct {
	mu        sync.Mutex
	companies map[string]Company
}

func NewMemoryCompanyRepository(companies ...Company) *MemoryCompanyRepository {
	r := &MemoryCompanyRepository{companies: make(map[string]Company, len(companies))}
	for _, c := range companies {
		r.companies[c.ID] = cloneCompany(c)
	}
	return r
}

// Put inserts or replaces a whole company.
func (r *MemoryCompanyRepository) Put(c Company) {
	r.mu.Lock()
	r.companies[c.ID] = cloneCompany(c)
	r.mu.Unlock()
}

func (r *MemoryCompanyRepository) FindByID(_ context.Context, id string) (*Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.companies[id]
	if !ok {
		return nil, ErrCompanyNotFound
	}
	out := cloneCompany(c)
	return &out, nil
}

func (r *MemoryCompanyRepository) FindByExternalCustomerID(_ context.Context, customerID string) (*Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if customerID == "" {
		return nil, ErrCompanyNotFound
	}
	for _, c := range r.companies {
		if c.ExternalCustomerID == customerID {
			out := cloneCompany(c)
			return &out, nil
		}
	}
	return nil, ErrCompanyNotFound
}

func (r *MemoryCompanyRepository) SetExternalCustomerID(_ context.Context, id, customerID string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.companies[id]
	if !ok {
		return "", ErrCompanyNotFound
	}
	if c.ExternalCustomerID == "" {
		c.ExternalCustomerID = customerID
		r.companies[id] = c
	}
	return c.ExternalCustomerID, nil
}

func (r *MemoryCompanyRepository) SaveSubscription(_ context.Context, c *Company) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.companies[c.ID]
	if !ok {
		return ErrCompanyNotFound
	}
	stored.Subscription = cloneSubscription(c.Subscription)
	stored.SubscriptionDeactivatedAt = cloneTime(c.SubscriptionDeactivatedAt)
	r.companies[c.ID] = stored
	return nil
}

func (r *MemoryCompanyRepository) AcquireLock(_ context.Context, id string, now time.Time, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.companies[id]
	if !ok {
		return ErrCompanyNotFound
	}
	sub := Subscription{Status: StatusIncomplete}
	if c.Subscription != nil {
		sub = *c.Subscription
	}
	if sub.IsLocked(now, ttl) {
		return ErrSubscriptionInProgress
	}
	locked := sub.Locked(now)
	c.Subscription = &locked
	r.companies[id] = c
	return nil
}

func (r *MemoryCompanyRepository) ReleaseLock(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.companies[id]
	if !ok {
		return ErrCompanyNotFound
	}
	switch {
	case c.Subscription == nil:
		return nil
	case c.Subscription.IsLockHolder():
		c.Subscription = nil
	default:
		unlocked := c.Subscription.Unlocked()
		c.Subscription = &unlocked
	}
	r.companies[id] = c
	return nil
}

func (r *MemoryCompanyRepository) FindTrialEnding(_ context.Context, q TrialEndingQuery) ([]Company, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Company
	for _, c := range r.companies {
		s := c.Subscription
		if s == nil || !s.IsTrialing() || s.TrialEndingEmailSent {
			continue
		}
		if !s.PeriodEndAt.After(q.Now) || s.PeriodEndAt.After(q.Before) {
			continue
		}
		if q.AfterID != "" && c.ID <= q.AfterID {
			continue
		}
		out = append(out, cloneCompany(c))
	}
	slices.SortFunc(out, func(a, b Company) int { return cmp.Compare(a.ID, b.ID) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (r *MemoryCompanyRepository) ClaimTrialReminder(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.companies[id]
	if !ok {
		return false, ErrCompanyNotFound
	}
	if c.Subscription == nil || c.Subscription.TrialEndingEmailSent {
		return false, nil
	}
	sub := *c.Subscription
	sub.TrialEndingEmailSent = true
	c.Subscription = &sub
	r.companies[id] = c
	return true, nil
}

func (r *MemoryCompanyRepository) ReleaseTrialReminder(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.companies[id]
	if !ok {
		return ErrCompanyNotFound
	}
	if c.Subscription != nil {
		sub := *c.Subscription
		sub.TrialEndingEmailSent = false
		c.Subscription = &sub
		r.companies[id] = c
	}
	return nil
}

// MemoryPaymentRepository is an in-process PaymentRepository.
type MemoryPaymentRepository struct {
	mu       sync.Mutex
	payments map[string]Payment // by external id
}

func NewMemoryPaymentRepository() *MemoryPaymentRepository {
	return &MemoryPaymentRepository{payments: make(map[string]Payment)}
}

func (r *MemoryPaymentRepository) FindByExternalID(_ context.Context, externalID string) (*Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[externalID]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	return &p, nil
}

func (r *MemoryPaymentRepository) Create(_ context.Context, p *Payment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[p.ExternalPaymentID]; ok {
		return ErrPaymentExists
	}
	r.payments[p.ExternalPaymentID] = *p
	return nil
}

func (r *MemoryPaymentRepository) UpdateStatus(_ context.Context, externalID string, status PaymentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[externalID]
	if !ok {
		return ErrPaymentNotFound
	}
	p.Status = status
	r.payments[externalID] = p
	return nil
}

func (r *MemoryPaymentRepository) ListByCompany(_ context.Context, companyID string, skip, limit int) ([]Payment, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var all []Payment
	for _, p := range r.payments {
		if p.CompanyID == companyID {
			all = append(all, p)
		}
	}
	slices.SortFunc(all, func(a, b Payment) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})
	total := int64(len(all))
	if skip >= len(all) {
		return []Payment{}, total, nil
	}
	all = all[skip:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func cloneCompany(c Company) Company {
	c.Subscription = cloneSubscription(c.Subscription)
	c.SubscriptionDeactivatedAt = cloneTime(c.SubscriptionDeactivatedAt)
	return c
}

func cloneSubscription(s *Subscription) *Subscription {
	if s == nil {
		return nil
	}
	out := *s
	out.WillBeCanceledAt = cloneTime(s.WillBeCanceledAt)
	out.InProgressAt = cloneTime(s.InProgressAt)
	out.LastEventAt = cloneTime(s.LastEventAt)
	return &out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
