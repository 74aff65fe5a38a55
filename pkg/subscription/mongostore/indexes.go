package mongostore

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const (
	CompaniesCollection = "companies"
	PaymentsCollection  = "payments"
)

// EnsureIndexes creates the indexes the repositories rely on. It is safe
// to run on every start.
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(CompaniesCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "external_customer_id", Value: 1}},
			Options: options.Index().SetName("external_customer_id").SetSparse(true),
		},
		{
			Keys: bson.D{
				{Key: "subscription.status", Value: 1},
				{Key: "subscription.period_end_at", Value: 1},
			},
			Options: options.Index().SetName("trial_ending"),
		},
		{
			Keys: bson.D{{Key: "subscription.external_subscription_id", Value: 1}},
			Options: options.Index().
				SetName("external_subscription_id").
				SetUnique(true).
				SetPartialFilterExpression(bson.M{
					"subscription.external_subscription_id": bson.M{"$type": "string", "$gt": ""},
				}),
		},
	})
	if err != nil {
		return fmt.Errorf("mongostore: companies indexes: %w", err)
	}

	_, err = db.Collection(PaymentsCollection).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "external_payment_id", Value: 1}},
			Options: options.Index().SetName("external_payment_id").SetUnique(true),
		},
		{
			Keys: bson.D{
				{Key: "company_id", Value: 1},
				{Key: "created_at", Value: -1},
			},
			Options: options.Index().SetName("company_payments"),
		},
	})
	if err != nil {
		return fmt.Errorf("mongostore: payments indexes: %w", err)
	}
	return nil
}
