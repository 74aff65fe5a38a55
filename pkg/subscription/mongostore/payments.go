package mongostore

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/reviewhub/pkg/subscription"
)

// PaymentRepository stores the payment ledger. Uniqueness of
// external_payment_id is enforced by the index from EnsureIndexes.
type PaymentRepository struct {
	coll *mongo.Collection
}

func NewPaymentRepository(db *mongo.Database) *PaymentRepository {
	if db == nil {
		panic("mongostore: database is required")
	}
	return &PaymentRepository{coll: db.Collection(PaymentsCollection)}
}

func (r *PaymentRepository) FindByExternalID(ctx context.Context, externalID string) (*subscription.Payment, error) {
	var p subscription.Payment
	err := r.coll.FindOne(ctx, bson.M{"external_payment_id": externalID}).Decode(&p)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, subscription.ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *PaymentRepository) Create(ctx context.Context, p *subscription.Payment) error {
	_, err := r.coll.InsertOne(ctx, p)
	if mongo.IsDuplicateKeyError(err) {
		return subscription.ErrPaymentExists
	}
	return err
}

func (r *PaymentRepository) UpdateStatus(ctx context.Context, externalID string, status subscription.PaymentStatus) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"external_payment_id": externalID},
		bson.M{"$set": bson.M{"status": status}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return subscription.ErrPaymentNotFound
	}
	return nil
}

func (r *PaymentRepository) ListByCompany(ctx context.Context, companyID string, skip, limit int) ([]subscription.Payment, int64, error) {
	filter := bson.M{"company_id": companyID}

	total, err := r.coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(skip))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, 0, err
	}
	items := []subscription.Payment{}
	if err := cur.All(ctx, &items); err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
