// Package pgstore implements the payment ledger on PostgreSQL.
//
// Apply Migrations with pg.Migrate before use:
//
//	err := pg.Migrate(ctx, pool, pgstore.Migrations, pgstore.MigrationsDir, cfg, log)
package pgstore

import (
	"context"
	"embed"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dmitrymomot/reviewhub/pkg/pg"
	"github.com/dmitrymomot/reviewhub/pkg/subscription"
)

//go:embed migrations/*.sql
var Migrations embed.FS

const MigrationsDir = "migrations"

// DB is satisfied by *pgxpool.Pool, *pgx.Conn and pgx.Tx.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PaymentRepository stores payments in the payments table.
type PaymentRepository struct {
	db DB
}

func NewPaymentRepository(db DB) *PaymentRepository {
	if db == nil {
		panic("pgstore: db is required")
	}
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, company_id, external_payment_id, amount_minor, amount, currency, status, invoice_url, created_at`

func (r *PaymentRepository) FindByExternalID(ctx context.Context, externalID string) (*subscription.Payment, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+paymentColumns+` FROM payments WHERE external_payment_id = $1`, externalID)
	if err != nil {
		return nil, err
	}
	p, err := pgx.CollectExactlyOneRow(rows, scanPayment)
	if pg.IsNotFoundError(err) {
		return nil, subscription.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Create inserts p. A row with the same external id makes it a no-op that
// reports ErrPaymentExists.
func (r *PaymentRepository) Create(ctx context.Context, p *subscription.Payment) error {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO payments (`+paymentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (external_payment_id) DO NOTHING`,
		p.ID, p.CompanyID, p.ExternalPaymentID, p.AmountMinor, p.Amount,
		p.Currency, string(p.Status), p.InvoiceURL, p.CreatedAt,
	)
	if pg.IsDuplicateKeyError(err) {
		// primary key collision
		return subscription.ErrPaymentExists
	}
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return subscription.ErrPaymentExists
	}
	return nil
}

func (r *PaymentRepository) UpdateStatus(ctx context.Context, externalID string, status subscription.PaymentStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE payments SET status = $2, updated_at = now() WHERE external_payment_id = $1`,
		externalID, string(status),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return subscription.ErrPaymentNotFound
	}
	return nil
}

func (r *PaymentRepository) ListByCompany(ctx context.Context, companyID string, skip, limit int) ([]subscription.Payment, int64, error) {
	var total int64
	if err := r.db.QueryRow(ctx,
		`SELECT count(*) FROM payments WHERE company_id = $1`, companyID,
	).Scan(&total); err != nil {
		return nil, 0, err
	}

	// LIMIT NULL means no limit
	var lim *int
	if limit > 0 {
		lim = &limit
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+paymentColumns+` FROM payments
		WHERE company_id = $1
		ORDER BY created_at DESC, id DESC
		OFFSET $2 LIMIT $3`,
		companyID, skip, lim,
	)
	if err != nil {
		return nil, 0, err
	}
	items, err := pgx.CollectRows(rows, scanPayment)
	if err != nil {
		return nil, 0, err
	}
	if items == nil {
		items = []subscription.Payment{}
	}
	return items, total, nil
}

func scanPayment(row pgx.CollectableRow) (subscription.Payment, error) {
	var (
		p      subscription.Payment
		status string
	)
	err := row.Scan(&p.ID, &p.CompanyID, &p.ExternalPaymentID, &p.AmountMinor, &p.Amount,
		&p.Currency, &status, &p.InvoiceURL, &p.CreatedAt)
	p.Status = subscription.PaymentStatus(status)
	p.CreatedAt = p.CreatedAt.UTC()
	return p, err
}
