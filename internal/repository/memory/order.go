package memory

import (
	"context"
	"sort"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
)

type orderRepository struct{ db *DB }

func (r *orderRepository) Create(_ context.Context, o *domain.Order) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()
	r.db.orders[o.ID] = cloneOrder(o)
	return nil
}

func (r *orderRepository) Get(_ context.Context, id string) (*domain.Order, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	o, ok := r.db.orders[id]
	if !ok {
		return nil, repository.ErrOrderNotFound
	}
	return cloneOrder(o), nil
}

func (r *orderRepository) GetForUser(ctx context.Context, id, userID string) (*domain.Order, error) {
	o, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.UserID != userID {
		return nil, repository.ErrOrderNotFound
	}
	return o, nil
}

func (r *orderRepository) ListByUser(_ context.Context, userID string, limit int64) ([]domain.Order, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	out := []domain.Order{}
	for _, o := range r.db.orders {
		if o.UserID == userID {
			out = append(out, *cloneOrder(o))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && int64(len(out)) > limit {
		out = out[:limit]
	}
	return out, nil
}

// mutate runs fn on the stored order under the write lock.
func (r *orderRepository) mutate(id string, fn func(o *domain.Order) error) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	o, ok := r.db.orders[id]
	if !ok {
		return repository.ErrOrderNotFound
	}
	if err := fn(o); err != nil {
		return err
	}
	o.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *orderRepository) SetPaymentRef(_ context.Context, id, merchantRef string) error {
	return r.mutate(id, func(o *domain.Order) error {
		o.PaymentRef = merchantRef
		return nil
	})
}

func (r *orderRepository) SetPaymentStatus(_ context.Context, id string, status domain.OrderPaymentStatus) error {
	return r.mutate(id, func(o *domain.Order) error {
		o.PaymentStatus = status
		return nil
	})
}

func (r *orderRepository) ClaimStock(_ context.Context, id string) error {
	return r.mutate(id, func(o *domain.Order) error {
		f := &o.Finalization
		if o.OrderStatus != domain.OrderStatusPending || f.StockApplied || f.State == domain.FinalizationApplying {
			return repository.ErrClaimLost
		}
		f.State = domain.FinalizationApplying
		f.LastError = ""
		f.Attempts++
		f.UpdatedAt = time.Now().UTC()
		return nil
	})
}

func (r *orderRepository) MarkStockApplied(_ context.Context, id string) error {
	return r.mutate(id, func(o *domain.Order) error {
		o.Finalization.StockApplied = true
		o.Finalization.UpdatedAt = time.Now().UTC()
		return nil
	})
}

func (r *orderRepository) FailStockStep(_ context.Context, id string, state domain.FinalizationState, reason string) error {
	return r.mutate(id, func(o *domain.Order) error {
		if o.Finalization.StockApplied {
			return repository.ErrClaimLost
		}
		o.Finalization.State = state
		o.Finalization.LastError = reason
		o.Finalization.UpdatedAt = time.Now().UTC()
		return nil
	})
}

func (r *orderRepository) MarkCouponRedeemed(_ context.Context, id string) error {
	return r.mutate(id, func(o *domain.Order) error {
		o.Finalization.CouponRedeemed = true
		o.Finalization.UpdatedAt = time.Now().UTC()
		return nil
	})
}

func (r *orderRepository) MarkCartCleared(_ context.Context, id string) error {
	return r.mutate(id, func(o *domain.Order) error {
		o.Finalization.CartCleared = true
		o.Finalization.UpdatedAt = time.Now().UTC()
		return nil
	})
}

func (r *orderRepository) Confirm(_ context.Context, id string, change domain.StatusChange) (bool, error) {
	flipped := false
	err := r.mutate(id, func(o *domain.Order) error {
		if o.OrderStatus != domain.OrderStatusPending {
			return nil
		}
		o.OrderStatus = domain.OrderStatusConfirmed
		o.PaymentStatus = domain.OrderPaymentPaid
		o.DeliveryStatus = domain.DeliveryStatusNotDispatched
		o.Finalization.State = domain.FinalizationDone
		o.Finalization.UpdatedAt = change.ChangedAt
		o.History = append(o.History, change)
		flipped = true
		return nil
	})
	return flipped, err
}

func (r *orderRepository) Cancel(_ context.Context, id string, change domain.StatusChange) (bool, error) {
	flipped := false
	err := r.mutate(id, func(o *domain.Order) error {
		if o.OrderStatus != domain.OrderStatusPending {
			return nil
		}
		o.OrderStatus = domain.OrderStatusCancelled
		o.PaymentStatus = domain.OrderPaymentFailed
		o.History = append(o.History, change)
		flipped = true
		return nil
	})
	return flipped, err
}
