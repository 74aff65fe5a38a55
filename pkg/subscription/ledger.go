package subscription

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/dmitrymomot/reviewhub/pkg/billing"
	"github.com/dmitrymomot/reviewhub/pkg/logger"
)

// Ledger records processor payment attempts. Recording the same external
// payment twice updates its status instead of adding a second record.
type Ledger struct {
	companies CompanyRepository
	payments  PaymentRepository
	gateways  Gateways
	logger    *slog.Logger
}

func NewLedger(companies CompanyRepository, payments PaymentRepository, gateways Gateways, opts ...Option) *Ledger {
	if companies == nil {
		panic("subscription: CompanyRepository is required")
	}
	if payments == nil {
		panic("subscription: PaymentRepository is required")
	}
	if gateways == nil {
		panic("subscription: Gateways is required")
	}
	o := applyOptions(opts)
	return &Ledger{
		companies: companies,
		payments:  payments,
		gateways:  gateways,
		logger:    o.logger.With(logger.Component("ledger")),
	}
}

// SavePayment stores or updates the payment and returns the stored record.
func (l *Ledger) SavePayment(ctx context.Context, p billing.RemotePayment) (*Payment, error) {
	status, err := ParsePaymentStatus(p.Status)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", err, p.Status)
	}

	company, err := l.companies.FindByExternalCustomerID(ctx, p.CustomerID)
	if err != nil {
		return nil, err
	}

	invoiceURL, err := l.gateways.For(company.IsTest).InvoiceURLForPayment(ctx, p.ID)
	if err != nil {
		return nil, err
	}

	existing, err := l.payments.FindByExternalID(ctx, p.ID)
	switch {
	case err == nil:
		return l.updateStatus(ctx, existing, status)
	case !errors.Is(err, ErrPaymentNotFound):
		return nil, err
	}

	payment := &Payment{
		ID:                uuid.NewString(),
		CompanyID:         company.ID,
		ExternalPaymentID: p.ID,
		AmountMinor:       p.AmountMinor,
		Amount:            billing.MajorUnits(p.AmountMinor, p.Currency),
		Currency:          strings.ToLower(p.Currency),
		Status:            status,
		InvoiceURL:        invoiceURL,
		CreatedAt:         p.CreatedAt,
	}
	if err := l.payments.Create(ctx, payment); err != nil {
		if !errors.Is(err, ErrPaymentExists) {
			return nil, err
		}
		// a concurrent delivery of the same event won the insert
		existing, err := l.payments.FindByExternalID(ctx, p.ID)
		if err != nil {
			return nil, err
		}
		return l.updateStatus(ctx, existing, status)
	}

	l.logger.InfoContext(ctx, "payment recorded",
		logger.CompanyID(company.ID),
		logger.PaymentID(p.ID),
		slog.String("status", string(status)),
	)
	return payment, nil
}

func (l *Ledger) updateStatus(ctx context.Context, existing *Payment, status PaymentStatus) (*Payment, error) {
	if err := l.payments.UpdateStatus(ctx, existing.ExternalPaymentID, status); err != nil {
		return nil, err
	}
	existing.Status = status
	l.logger.InfoContext(ctx, "payment status updated",
		logger.CompanyID(existing.CompanyID),
		logger.PaymentID(existing.ExternalPaymentID),
		slog.String("status", string(status)),
	)
	return existing, nil
}
