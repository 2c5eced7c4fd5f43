package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoCheckoutRepository struct {
	collection *mongo.Collection
}

func NewCheckoutRepository(db *mongo.Database) CheckoutRepository {
	return &mongoCheckoutRepository{
		collection: db.Collection("checkouts"),
	}
}

func (m *mongoCheckoutRepository) Create(ctx context.Context, c *domain.Checkout) error {
	if _, err := m.collection.InsertOne(ctx, c); err != nil {
		return fmt.Errorf("failed to insert checkout: %w", err)
	}
	return nil
}

func (m *mongoCheckoutRepository) findOne(ctx context.Context, filter bson.M) (*domain.Checkout, error) {
	var c domain.Checkout
	if err := m.collection.FindOne(ctx, filter).Decode(&c); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCheckoutNotFound
		}
		return nil, fmt.Errorf("failed to get checkout: %w", err)
	}
	return &c, nil
}

func (m *mongoCheckoutRepository) Get(ctx context.Context, id, userID string) (*domain.Checkout, error) {
	return m.findOne(ctx, bson.M{"_id": id, "user_id": userID})
}

func activeFilter(id, userID string, notBefore time.Time) bson.M {
	return bson.M{
		"_id":        id,
		"user_id":    userID,
		"status":     domain.CheckoutStatusActive,
		"created_at": bson.M{"$gt": notBefore},
	}
}

func (m *mongoCheckoutRepository) FindActive(ctx context.Context, id, userID string, notBefore time.Time) (*domain.Checkout, error) {
	return m.findOne(ctx, activeFilter(id, userID, notBefore))
}

func (m *mongoCheckoutRepository) MarkExpired(ctx context.Context, id string) (bool, error) {
	res, err := m.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": domain.CheckoutStatusActive},
		bson.M{"$set": bson.M{"status": domain.CheckoutStatusExpired, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return false, fmt.Errorf("failed to expire checkout: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func (m *mongoCheckoutRepository) updateActive(ctx context.Context, id, userID string, notBefore time.Time, set bson.M) error {
	set["updated_at"] = time.Now().UTC()
	res, err := m.collection.UpdateOne(ctx, activeFilter(id, userID, notBefore), bson.M{"$set": set})
	if err != nil {
		return fmt.Errorf("failed to update checkout: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrCheckoutNotFound
	}
	return nil
}

func (m *mongoCheckoutRepository) UpdateAddress(ctx context.Context, id, userID, addressID string, notBefore time.Time) error {
	return m.updateActive(ctx, id, userID, notBefore, bson.M{"address_id": addressID})
}

func (m *mongoCheckoutRepository) UpdatePaymentMethod(ctx context.Context, id, userID string, method domain.PaymentMethod, notBefore time.Time) error {
	return m.updateActive(ctx, id, userID, notBefore, bson.M{"payment_method": method})
}

func (m *mongoCheckoutRepository) Convert(ctx context.Context, id, userID, orderID string, notBefore time.Time) (*domain.Checkout, error) {
	update := bson.M{"$set": bson.M{
		"status":     domain.CheckoutStatusConverted,
		"order_id":   orderID,
		"updated_at": time.Now().UTC(),
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var c domain.Checkout
	err := m.collection.FindOneAndUpdate(ctx, activeFilter(id, userID, notBefore), update, opts).Decode(&c)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCheckoutNotFound
		}
		return nil, fmt.Errorf("failed to convert checkout: %w", err)
	}
	return &c, nil
}

func (m *mongoCheckoutRepository) Reactivate(ctx context.Context, id, orderID string) error {
	_, err := m.collection.UpdateOne(ctx,
		bson.M{"_id": id, "status": domain.CheckoutStatusConverted, "order_id": orderID},
		bson.M{
			"$set":   bson.M{"status": domain.CheckoutStatusActive, "updated_at": time.Now().UTC()},
			"$unset": bson.M{"order_id": ""},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to reactivate checkout: %w", err)
	}
	return nil
}

func (m *mongoCheckoutRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	res, err := m.collection.DeleteMany(ctx, bson.M{"user_id": userID})
	if err != nil {
		return 0, fmt.Errorf("failed to delete checkouts: %w", err)
	}
	return res.DeletedCount, nil
}

func (m *mongoCheckoutRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "status", Value: 1}}},
		{
			Keys:    bson.D{{Key: "purge_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(0),
		},
	}

	if _, err := m.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create checkout indexes: %w", err)
	}
	return nil
}
