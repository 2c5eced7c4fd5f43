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

type mongoOrderRepository struct {
	collection *mongo.Collection
}

func NewOrderRepository(db *mongo.Database) OrderRepository {
	return &mongoOrderRepository{
		collection: db.Collection("orders"),
	}
}

func (m *mongoOrderRepository) Create(ctx context.Context, o *domain.Order) error {
	if _, err := m.collection.InsertOne(ctx, o); err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	return nil
}

func (m *mongoOrderRepository) findOne(ctx context.Context, filter bson.M) (*domain.Order, error) {
	var o domain.Order
	if err := m.collection.FindOne(ctx, filter).Decode(&o); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("failed to get order: %w", err)
	}
	return &o, nil
}

func (m *mongoOrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	return m.findOne(ctx, bson.M{"_id": id})
}

func (m *mongoOrderRepository) GetForUser(ctx context.Context, id, userID string) (*domain.Order, error) {
	return m.findOne(ctx, bson.M{"_id": id, "user_id": userID})
}

func (m *mongoOrderRepository) ListByUser(ctx context.Context, userID string, limit int64) ([]domain.Order, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}}).SetLimit(limit)
	cur, err := m.collection.Find(ctx, bson.M{"user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}

	orders := []domain.Order{}
	if err := cur.All(ctx, &orders); err != nil {
		return nil, fmt.Errorf("failed to decode orders: %w", err)
	}
	return orders, nil
}

func (m *mongoOrderRepository) set(ctx context.Context, filter bson.M, set bson.M) (*mongo.UpdateResult, error) {
	set["updated_at"] = time.Now().UTC()
	return m.collection.UpdateOne(ctx, filter, bson.M{"$set": set})
}

func (m *mongoOrderRepository) setByID(ctx context.Context, id string, set bson.M) error {
	res, err := m.set(ctx, bson.M{"_id": id}, set)
	if err != nil {
		return fmt.Errorf("failed to update order: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrOrderNotFound
	}
	return nil
}

func (m *mongoOrderRepository) SetPaymentRef(ctx context.Context, id, merchantRef string) error {
	return m.setByID(ctx, id, bson.M{"payment_ref": merchantRef})
}

func (m *mongoOrderRepository) SetPaymentStatus(ctx context.Context, id string, status domain.OrderPaymentStatus) error {
	return m.setByID(ctx, id, bson.M{"payment_status": status})
}

func (m *mongoOrderRepository) ClaimStock(ctx context.Context, id string) error {
	now := time.Now().UTC()
	filter := bson.M{
		"_id":                        id,
		"order_status":               domain.OrderStatusPending,
		"finalization.stock_applied": bson.M{"$ne": true},
		"finalization.state":         bson.M{"$ne": domain.FinalizationApplying},
	}
	update := bson.M{
		"$set": bson.M{
			"finalization.state":      domain.FinalizationApplying,
			"finalization.last_error": "",
			"finalization.updated_at": now,
			"updated_at":              now,
		},
		"$inc": bson.M{"finalization.attempts": 1},
	}

	res, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("failed to claim stock step: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrClaimLost
	}
	return nil
}

func (m *mongoOrderRepository) MarkStockApplied(ctx context.Context, id string) error {
	return m.setByID(ctx, id, bson.M{
		"finalization.stock_applied": true,
		"finalization.updated_at":    time.Now().UTC(),
	})
}

func (m *mongoOrderRepository) FailStockStep(ctx context.Context, id string, state domain.FinalizationState, reason string) error {
	res, err := m.set(ctx,
		bson.M{"_id": id, "finalization.stock_applied": bson.M{"$ne": true}},
		bson.M{
			"finalization.state":      state,
			"finalization.last_error": reason,
			"finalization.updated_at": time.Now().UTC(),
		})
	if err != nil {
		return fmt.Errorf("failed to record stock step failure: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrClaimLost
	}
	return nil
}

func (m *mongoOrderRepository) MarkCouponRedeemed(ctx context.Context, id string) error {
	return m.setByID(ctx, id, bson.M{
		"finalization.coupon_redeemed": true,
		"finalization.updated_at":      time.Now().UTC(),
	})
}

func (m *mongoOrderRepository) MarkCartCleared(ctx context.Context, id string) error {
	return m.setByID(ctx, id, bson.M{
		"finalization.cart_cleared": true,
		"finalization.updated_at":   time.Now().UTC(),
	})
}

func (m *mongoOrderRepository) Confirm(ctx context.Context, id string, change domain.StatusChange) (bool, error) {
	filter := bson.M{"_id": id, "order_status": domain.OrderStatusPending}
	update := bson.M{
		"$set": bson.M{
			"order_status":            domain.OrderStatusConfirmed,
			"payment_status":          domain.OrderPaymentPaid,
			"delivery_status":         domain.DeliveryStatusNotDispatched,
			"finalization.state":      domain.FinalizationDone,
			"finalization.updated_at": change.ChangedAt,
			"updated_at":              change.ChangedAt,
		},
		"$push": bson.M{"history": change},
	}

	res, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to confirm order: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func (m *mongoOrderRepository) Cancel(ctx context.Context, id string, change domain.StatusChange) (bool, error) {
	filter := bson.M{"_id": id, "order_status": domain.OrderStatusPending}
	update := bson.M{
		"$set": bson.M{
			"order_status":   domain.OrderStatusCancelled,
			"payment_status": domain.OrderPaymentFailed,
			"updated_at":     change.ChangedAt,
		},
		"$push": bson.M{"history": change},
	}

	res, err := m.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return false, fmt.Errorf("failed to cancel order: %w", err)
	}
	return res.ModifiedCount == 1, nil
}

func (m *mongoOrderRepository) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		{
			Keys:    bson.D{{Key: "order_number", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "checkout_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
	}

	if _, err := m.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("failed to create order indexes: %w", err)
	}
	return nil
}
