package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoStockRepository struct {
	collection *mongo.Collection
}

func NewStockRepository(db *mongo.Database) StockRepository {
	return &mongoStockRepository{
		collection: db.Collection("stock"),
	}
}

func (m *mongoStockRepository) Get(ctx context.Context, productID, sku string) (*domain.StockRecord, error) {
	var rec domain.StockRecord
	err := m.collection.FindOne(ctx, bson.M{"product_id": productID, "sku": sku}).Decode(&rec)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrStockNotFound
		}
		return nil, fmt.Errorf("failed to get stock: %w", err)
	}
	return &rec, nil
}

func (m *mongoStockRepository) GetMany(ctx context.Context, keys []domain.SKUKey) (map[domain.SKUKey]domain.StockRecord, error) {
	out := make(map[domain.SKUKey]domain.StockRecord, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	or := lo.Map(keys, func(k domain.SKUKey, _ int) bson.M {
		return bson.M{"product_id": k.ProductID, "sku": k.SKU}
	})
	cur, err := m.collection.Find(ctx, bson.M{"$or": or})
	if err != nil {
		return nil, fmt.Errorf("failed to find stock: %w", err)
	}

	var recs []domain.StockRecord
	if err := cur.All(ctx, &recs); err != nil {
		return nil, fmt.Errorf("failed to decode stock: %w", err)
	}
	for _, r := range recs {
		out[domain.SKUKey{ProductID: r.ProductID, SKU: r.SKU}] = r
	}
	return out, nil
}

// adjust applies delta in a pipeline update so quantity and is_available are
// written together.
func (m *mongoStockRepository) adjust(ctx context.Context, filter bson.M, delta int) (*domain.StockRecord, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$set", Value: bson.M{"quantity": bson.M{"$add": bson.A{"$quantity", delta}}}}},
		{{Key: "$set", Value: bson.M{
			"is_available": bson.M{"$gt": bson.A{"$quantity", 0}},
			"updated_at":   "$$NOW",
		}}},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var rec domain.StockRecord
	if err := m.collection.FindOneAndUpdate(ctx, filter, pipeline, opts).Decode(&rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (m *mongoStockRepository) Decrement(ctx context.Context, productID, sku string, qty int) (*domain.StockRecord, error) {
	filter := bson.M{"product_id": productID, "sku": sku, "quantity": bson.M{"$gte": qty}}

	rec, err := m.adjust(ctx, filter, -qty)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("failed to decrement stock: %w", err)
	}
	if _, getErr := m.Get(ctx, productID, sku); getErr != nil {
		return nil, getErr
	}
	return nil, ErrInsufficientStock
}

func (m *mongoStockRepository) Increment(ctx context.Context, productID, sku string, qty int) (*domain.StockRecord, error) {
	rec, err := m.adjust(ctx, bson.M{"product_id": productID, "sku": sku}, qty)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrStockNotFound
		}
		return nil, fmt.Errorf("failed to increment stock: %w", err)
	}
	return rec, nil
}

func (m *mongoStockRepository) Upsert(ctx context.Context, rec domain.StockRecord) error {
	rec.IsAvailable = rec.Quantity > 0
	rec.UpdatedAt = time.Now().UTC()

	filter := bson.M{"product_id": rec.ProductID, "sku": rec.SKU}
	_, err := m.collection.UpdateOne(ctx, filter, bson.M{"$set": rec}, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("failed to upsert stock: %w", err)
	}
	return nil
}

func (m *mongoStockRepository) CreateIndexes(ctx context.Context) error {
	_, err := m.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "product_id", Value: 1}, {Key: "sku", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create stock indexes: %w", err)
	}
	return nil
}
