package memory

import (
	"context"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
)

type checkoutRepository struct{ db *DB }

func (r *checkoutRepository) Create(_ context.Context, c *domain.Checkout) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.checkouts[c.ID] = cloneCheckout(c)
	return nil
}

func (r *checkoutRepository) Get(_ context.Context, id, userID string) (*domain.Checkout, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	c, ok := r.db.checkouts[id]
	if !ok || c.UserID != userID {
		return nil, repository.ErrCheckoutNotFound
	}
	return cloneCheckout(c), nil
}

// active must be called with the lock held.
func (r *checkoutRepository) active(id, userID string, notBefore time.Time) (*domain.Checkout, bool) {
	c, ok := r.db.checkouts[id]
	if !ok || c.UserID != userID || c.Status != domain.CheckoutStatusActive || !c.CreatedAt.After(notBefore) {
		return nil, false
	}
	return c, true
}

func (r *checkoutRepository) FindActive(_ context.Context, id, userID string, notBefore time.Time) (*domain.Checkout, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	c, ok := r.active(id, userID, notBefore)
	if !ok {
		return nil, repository.ErrCheckoutNotFound
	}
	return cloneCheckout(c), nil
}

func (r *checkoutRepository) MarkExpired(_ context.Context, id string) (bool, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	c, ok := r.db.checkouts[id]
	if !ok || c.Status != domain.CheckoutStatusActive {
		return false, nil
	}
	c.Status = domain.CheckoutStatusExpired
	c.UpdatedAt = time.Now().UTC()
	return true, nil
}

func (r *checkoutRepository) UpdateAddress(_ context.Context, id, userID, addressID string, notBefore time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	c, ok := r.active(id, userID, notBefore)
	if !ok {
		return repository.ErrCheckoutNotFound
	}
	c.AddressID = addressID
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *checkoutRepository) UpdatePaymentMethod(_ context.Context, id, userID string, method domain.PaymentMethod, notBefore time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	c, ok := r.active(id, userID, notBefore)
	if !ok {
		return repository.ErrCheckoutNotFound
	}
	c.PaymentMethod = method
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *checkoutRepository) Convert(_ context.Context, id, userID, orderID string, notBefore time.Time) (*domain.Checkout, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	c, ok := r.active(id, userID, notBefore)
	if !ok {
		return nil, repository.ErrCheckoutNotFound
	}
	c.Status = domain.CheckoutStatusConverted
	c.OrderID = orderID
	c.UpdatedAt = time.Now().UTC()
	return cloneCheckout(c), nil
}

func (r *checkoutRepository) Reactivate(_ context.Context, id, orderID string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	c, ok := r.db.checkouts[id]
	if ok && c.Status == domain.CheckoutStatusConverted && c.OrderID == orderID {
		c.Status = domain.CheckoutStatusActive
		c.OrderID = ""
		c.UpdatedAt = time.Now().UTC()
	}
	return nil
}

func (r *checkoutRepository) DeleteByUser(_ context.Context, userID string) (int64, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	var n int64
	for id, c := range r.db.checkouts {
		if c.UserID == userID {
			delete(r.db.checkouts, id)
			n++
		}
	}
	return n, nil
}
