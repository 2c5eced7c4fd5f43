package memory

import (
	"context"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
)

type cartRepository struct{ db *DB }

func (r *cartRepository) GetCart(_ context.Context, userID string) (*domain.Cart, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	cart, ok := r.db.carts[userID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	return cloneCart(cart), nil
}

func (r *cartRepository) AddItem(_ context.Context, userID string, line domain.CartLine) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	now := time.Now().UTC()
	line.AddedAt = now
	cart, ok := r.db.carts[userID]
	if !ok {
		r.db.carts[userID] = &domain.Cart{UserID: userID, Items: []domain.CartLine{line}, CreatedAt: now, UpdatedAt: now}
		return nil
	}

	cart.UpdatedAt = now
	for i := range cart.Items {
		if cart.Items[i].ProductID == line.ProductID && cart.Items[i].SKU == line.SKU {
			cart.Items[i].Quantity += line.Quantity
			cart.Items[i].AddedAt = now
			return nil
		}
	}
	cart.Items = append(cart.Items, line)
	return nil
}

func (r *cartRepository) ChangeQuantity(_ context.Context, userID, productID, sku string, delta int) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	cart, ok := r.db.carts[userID]
	if !ok {
		return repository.ErrItemNotFound
	}
	for i := range cart.Items {
		if cart.Items[i].ProductID != productID || cart.Items[i].SKU != sku {
			continue
		}
		cart.Items[i].Quantity += delta
		if cart.Items[i].Quantity <= 0 {
			cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
		}
		cart.UpdatedAt = time.Now().UTC()
		return nil
	}
	return repository.ErrItemNotFound
}

func (r *cartRepository) RemoveItem(_ context.Context, userID, productID, sku string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	cart, ok := r.db.carts[userID]
	if !ok {
		return repository.ErrItemNotFound
	}
	for i := range cart.Items {
		if cart.Items[i].ProductID == productID && cart.Items[i].SKU == sku {
			cart.Items = append(cart.Items[:i], cart.Items[i+1:]...)
			cart.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return repository.ErrItemNotFound
}

func (r *cartRepository) ClearCart(_ context.Context, userID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	if cart, ok := r.db.carts[userID]; ok {
		cart.Items = []domain.CartLine{}
		cart.UpdatedAt = time.Now().UTC()
	}
	return nil
}
