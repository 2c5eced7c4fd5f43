package memory

import (
	"context"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
)

type stockRepository struct{ db *DB }

func (r *stockRepository) Get(_ context.Context, productID, sku string) (*domain.StockRecord, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	rec, ok := r.db.stock[domain.SKUKey{ProductID: productID, SKU: sku}]
	if !ok {
		return nil, repository.ErrStockNotFound
	}
	cp := *rec
	return &cp, nil
}

func (r *stockRepository) GetMany(_ context.Context, keys []domain.SKUKey) (map[domain.SKUKey]domain.StockRecord, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	out := make(map[domain.SKUKey]domain.StockRecord, len(keys))
	for _, k := range keys {
		if rec, ok := r.db.stock[k]; ok {
			out[k] = *rec
		}
	}
	return out, nil
}

func (r *stockRepository) adjust(productID, sku string, delta int) (*domain.StockRecord, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	rec, ok := r.db.stock[domain.SKUKey{ProductID: productID, SKU: sku}]
	if !ok {
		return nil, repository.ErrStockNotFound
	}
	if rec.Quantity+delta < 0 {
		return nil, repository.ErrInsufficientStock
	}
	rec.Quantity += delta
	rec.IsAvailable = rec.Quantity > 0
	rec.UpdatedAt = time.Now().UTC()
	cp := *rec
	return &cp, nil
}

func (r *stockRepository) Decrement(_ context.Context, productID, sku string, qty int) (*domain.StockRecord, error) {
	return r.adjust(productID, sku, -qty)
}

func (r *stockRepository) Increment(_ context.Context, productID, sku string, qty int) (*domain.StockRecord, error) {
	return r.adjust(productID, sku, qty)
}

func (r *stockRepository) Upsert(_ context.Context, rec domain.StockRecord) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	rec.IsAvailable = rec.Quantity > 0
	rec.UpdatedAt = time.Now().UTC()
	r.db.stock[domain.SKUKey{ProductID: rec.ProductID, SKU: rec.SKU}] = &rec
	return nil
}
