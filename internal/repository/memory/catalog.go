package memory

import (
	"context"
	"sort"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
)

type addressRepository struct{ db *DB }

func (r *addressRepository) ListByUser(_ context.Context, userID string) ([]domain.Address, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	out := []domain.Address{}
	for _, a := range r.db.addresses {
		if a.UserID == userID {
			out = append(out, *a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

func (r *addressRepository) FindDefault(ctx context.Context, userID string) (*domain.Address, error) {
	all, _ := r.ListByUser(ctx, userID)
	if len(all) == 0 {
		return nil, repository.ErrAddressNotFound
	}
	return &all[0], nil
}

func (r *addressRepository) FindByID(_ context.Context, id, userID string) (*domain.Address, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	a, ok := r.db.addresses[id]
	if !ok || a.UserID != userID {
		return nil, repository.ErrAddressNotFound
	}
	cp := *a
	return &cp, nil
}

type catalogRepository struct{ db *DB }

func (r *catalogRepository) FindActivePrices(_ context.Context, keys []domain.SKUKey) ([]domain.PriceRecord, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	want := make(map[domain.SKUKey]struct{}, len(keys))
	for _, k := range keys {
		want[k] = struct{}{}
	}
	var out []domain.PriceRecord
	for _, p := range r.db.prices {
		if _, ok := want[domain.SKUKey{ProductID: p.ProductID, SKU: p.SKU}]; ok && p.Active {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *catalogRepository) FindProducts(_ context.Context, ids []string) (map[string]domain.Product, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	out := make(map[string]domain.Product, len(ids))
	for _, id := range ids {
		if p, ok := r.db.products[id]; ok {
			out[id] = p
		}
	}
	return out, nil
}
