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

type mongoCartRepository struct {
	collection *mongo.Collection
}

func NewCartRepository(db *mongo.Database) CartRepository {
	return &mongoCartRepository{
		collection: db.Collection("carts"),
	}
}

func (m *mongoCartRepository) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	var cart domain.Cart

	err := m.collection.FindOne(ctx, bson.M{"user_id": userID}).Decode(&cart)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to get cart: %w", err)
	}

	return &cart, nil
}

func lineFilter(productID, sku string) options.ArrayFilters {
	return options.ArrayFilters{
		Filters: []interface{}{
			bson.M{"elem.product_id": productID, "elem.sku": sku},
		},
	}
}

func (m *mongoCartRepository) AddItem(ctx context.Context, userID string, line domain.CartLine) error {
	now := time.Now().UTC()
	line.AddedAt = now

	// Grow an existing line first; fall through to a push when none matched.
	filter := bson.M{
		"user_id": userID,
		"items":   bson.M{"$elemMatch": bson.M{"product_id": line.ProductID, "sku": line.SKU}},
	}
	update := bson.M{
		"$inc": bson.M{"items.$[elem].quantity": line.Quantity},
		"$set": bson.M{"items.$[elem].added_at": now, "updated_at": now},
	}
	opts := options.Update().SetArrayFilters(lineFilter(line.ProductID, line.SKU))

	res, err := m.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("failed to update existing item: %w", err)
	}
	if res.MatchedCount > 0 {
		return nil
	}

	push := bson.M{
		"$push":        bson.M{"items": line},
		"$set":         bson.M{"updated_at": now},
		"$setOnInsert": bson.M{"created_at": now},
	}
	_, err = m.collection.UpdateOne(ctx, bson.M{"user_id": userID}, push, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to add new item: %w", err)
	}

	return nil
}

func (m *mongoCartRepository) ChangeQuantity(ctx context.Context, userID, productID, sku string, delta int) error {
	now := time.Now().UTC()
	filter := bson.M{
		"user_id": userID,
		"items":   bson.M{"$elemMatch": bson.M{"product_id": productID, "sku": sku}},
	}
	update := bson.M{
		"$inc": bson.M{"items.$[elem].quantity": delta},
		"$set": bson.M{"updated_at": now},
	}
	opts := options.Update().SetArrayFilters(lineFilter(productID, sku))

	res, err := m.collection.UpdateOne(ctx, filter, update, opts)
	if err != nil {
		return fmt.Errorf("failed to update item quantity: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrItemNotFound
	}

	if delta < 0 {
		prune := bson.M{"$pull": bson.M{"items": bson.M{"quantity": bson.M{"$lte": 0}}}}
		if _, err := m.collection.UpdateOne(ctx, bson.M{"user_id": userID}, prune); err != nil {
			return fmt.Errorf("failed to prune empty lines: %w", err)
		}
	}

	return nil
}

func (m *mongoCartRepository) RemoveItem(ctx context.Context, userID, productID, sku string) error {
	filter := bson.M{
		"user_id": userID,
		"items":   bson.M{"$elemMatch": bson.M{"product_id": productID, "sku": sku}},
	}
	update := bson.M{
		"$pull": bson.M{
			"items": bson.M{"product_id": productID, "sku": sku},
		},
		"$set": bson.M{"updated_at": time.Now().UTC()},
	}

	result, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to remove item: %w", err)
	}

	if result.MatchedCount == 0 {
		return ErrItemNotFound
	}

	return nil
}

func (m *mongoCartRepository) ClearCart(ctx context.Context, userID string) error {
	update := bson.M{"$set": bson.M{"items": []domain.CartLine{}, "updated_at": time.Now().UTC()}}

	if _, err := m.collection.UpdateOne(ctx, bson.M{"user_id": userID}, update); err != nil {
		return fmt.Errorf("failed to clear cart: %w", err)
	}

	return nil
}

func (m *mongoCartRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "updated_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(90 * 24 * 60 * 60), // 90 days TTL
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create cart indexes: %w", err)
	}

	return nil
}
