package mongostore

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/dmitrymomot/reviewhub/pkg/subscription"
)

// CompanyRepository stores the billing fields of the companies collection.
// The subscription is an embedded document replaced as a whole; the lock
// and reminder flags are flipped with conditional updates.
type CompanyRepository struct {
	coll *mongo.Collection
}

func NewCompanyRepository(db *mongo.Database) *CompanyRepository {
	if db == nil {
		panic("mongostore: database is required")
	}
	return &CompanyRepository{coll: db.Collection(CompaniesCollection)}
}

// subscriptionSet matches companies whose subscription is a document, so
// that dotted updates of its fields cannot fail on null.
var subscriptionSet = bson.M{"$type": "object"}

func (r *CompanyRepository) FindByID(ctx context.Context, id string) (*subscription.Company, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

func (r *CompanyRepository) FindByExternalCustomerID(ctx context.Context, customerID string) (*subscription.Company, error) {
	if customerID == "" {
		return nil, subscription.ErrCompanyNotFound
	}
	return r.findOne(ctx, bson.M{"external_customer_id": customerID})
}

func (r *CompanyRepository) SetExternalCustomerID(ctx context.Context, id, customerID string) (string, error) {
	filter := bson.M{
		"_id": id,
		"$or": bson.A{
			bson.M{"external_customer_id": bson.M{"$exists": false}},
			bson.M{"external_customer_id": ""},
		},
	}
	if _, err := r.coll.UpdateOne(ctx, filter, bson.M{"$set": bson.M{"external_customer_id": customerID}}); err != nil {
		return "", err
	}

	var stored struct {
		ExternalCustomerID string `bson:"external_customer_id"`
	}
	err := r.coll.FindOne(ctx, bson.M{"_id": id},
		options.FindOne().SetProjection(bson.M{"external_customer_id": 1}),
	).Decode(&stored)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", subscription.ErrCompanyNotFound
	}
	if err != nil {
		return "", err
	}
	return stored.ExternalCustomerID, nil
}

func (r *CompanyRepository) SaveSubscription(ctx context.Context, c *subscription.Company) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"_id": c.ID}, bson.M{"$set": bson.M{
		"subscription":                c.Subscription,
		"subscription_deactivated_at": c.SubscriptionDeactivatedAt,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return subscription.ErrCompanyNotFound
	}
	return nil
}

func (r *CompanyRepository) AcquireLock(ctx context.Context, id string, now time.Time, ttl time.Duration) error {
	now = now.UTC()

	placeholder := subscription.Subscription{Status: subscription.StatusIncomplete}.Locked(now)
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "subscription": nil},
		bson.M{"$set": bson.M{"subscription": placeholder}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 1 {
		return nil
	}

	free := bson.A{bson.M{"subscription.in_progress": false}}
	if ttl > 0 {
		free = append(free, bson.M{"subscription.in_progress_at": bson.M{"$lt": now.Add(-ttl)}})
	}
	res, err = r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "subscription": subscriptionSet, "$or": free},
		bson.M{"$set": bson.M{
			"subscription.in_progress":    true,
			"subscription.in_progress_at": now,
		}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 1 {
		return nil
	}
	if err := r.exists(ctx, id); err != nil {
		return err
	}
	return subscription.ErrSubscriptionInProgress
}

func (r *CompanyRepository) ReleaseLock(ctx context.Context, id string) error {
	dropped, err := r.coll.UpdateOne(ctx,
		bson.M{
			"_id":                                   id,
			"subscription.status":                   subscription.StatusIncomplete,
			"subscription.external_subscription_id": bson.M{"$in": bson.A{nil, ""}},
			"subscription.period_start_at":          time.Time{},
			"subscription.period_end_at":            time.Time{},
		},
		bson.M{"$set": bson.M{"subscription": nil}},
	)
	if err != nil {
		return err
	}
	if dropped.MatchedCount == 1 {
		return nil
	}

	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "subscription": subscriptionSet},
		bson.M{
			"$set":   bson.M{"subscription.in_progress": false},
			"$unset": bson.M{"subscription.in_progress_at": ""},
		},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return r.exists(ctx, id)
	}
	return nil
}

func (r *CompanyRepository) FindTrialEnding(ctx context.Context, q subscription.TrialEndingQuery) ([]subscription.Company, error) {
	filter := bson.M{
		"subscription.status":                  subscription.StatusTrialing,
		"subscription.trial_ending_email_sent": bson.M{"$ne": true},
		"subscription.period_end_at": bson.M{
			"$gt":  q.Now.UTC(),
			"$lte": q.Before.UTC(),
		},
	}
	if q.AfterID != "" {
		filter["_id"] = bson.M{"$gt": q.AfterID}
	}

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}
	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	var out []subscription.Company
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (r *CompanyRepository) ClaimTrialReminder(ctx context.Context, id string) (bool, error) {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{
			"_id":                                  id,
			"subscription":                         subscriptionSet,
			"subscription.trial_ending_email_sent": bson.M{"$ne": true},
		},
		bson.M{"$set": bson.M{"subscription.trial_ending_email_sent": true}},
	)
	if err != nil {
		return false, err
	}
	if res.ModifiedCount == 1 {
		return true, nil
	}
	return false, r.exists(ctx, id)
}

func (r *CompanyRepository) ReleaseTrialReminder(ctx context.Context, id string) error {
	res, err := r.coll.UpdateOne(ctx,
		bson.M{"_id": id, "subscription": subscriptionSet},
		bson.M{"$set": bson.M{"subscription.trial_ending_email_sent": false}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return r.exists(ctx, id)
	}
	return nil
}

func (r *CompanyRepository) findOne(ctx context.Context, filter bson.M) (*subscription.Company, error) {
	var c subscription.Company
	err := r.coll.FindOne(ctx, filter).Decode(&c)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, subscription.ErrCompanyNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// exists returns ErrCompanyNotFound when no company has id.
func (r *CompanyRepository) exists(ctx context.Context, id string) error {
	n, err := r.coll.CountDocuments(ctx, bson.M{"_id": id}, options.Count().SetLimit(1))
	if err != nil {
		return err
	}
	if n == 0 {
		return subscription.ErrCompanyNotFound
	}
	return nil
}
