package repository

import (
	"context"
	"fmt"

	"github.com/fjod/storefront/internal/domain"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type mongoCatalogRepository struct {
	products *mongo.Collection
	prices   *mongo.Collection
}

func NewCatalogRepository(db *mongo.Database) CatalogRepository {
	return &mongoCatalogRepository{
		products: db.Collection("products"),
		prices:   db.Collection("prices"),
	}
}

func (m *mongoCatalogRepository) FindActivePrices(ctx context.Context, keys []domain.SKUKey) ([]domain.PriceRecord, error) {
	if len(keys) == 0 {
		return nil, nil
	}

	or := lo.Map(lo.Uniq(keys), func(k domain.SKUKey, _ int) bson.M {
		return bson.M{"product_id": k.ProductID, "sku": k.SKU}
	})
	cur, err := m.prices.Find(ctx, bson.M{"active": true, "$or": or})
	if err != nil {
		return nil, fmt.Errorf("failed to find prices: %w", err)
	}

	var prices []domain.PriceRecord
	if err := cur.All(ctx, &prices); err != nil {
		return nil, fmt.Errorf("failed to decode prices: %w", err)
	}
	return prices, nil
}

func (m *mongoCatalogRepository) FindProducts(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	out := make(map[string]domain.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	cur, err := m.products.Find(ctx, bson.M{"_id": bson.M{"$in": lo.Uniq(ids)}})
	if err != nil {
		return nil, fmt.Errorf("failed to find products: %w", err)
	}

	var products []domain.Product
	if err := cur.All(ctx, &products); err != nil {
		return nil, fmt.Errorf("failed to decode products: %w", err)
	}
	return lo.KeyBy(products, func(p domain.Product) string { return p.ID }), nil
}

func (m *mongoCatalogRepository) CreateIndexes(ctx context.Context) error {
	_, err := m.prices.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "product_id", Value: 1}, {Key: "sku", Value: 1}, {Key: "active", Value: 1}},
		Options: options.Index().SetName("price_lookup"),
	})
	if err != nil {
		return fmt.Errorf("failed to create price indexes: %w", err)
	}
	return nil
}
