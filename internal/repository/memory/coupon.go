package memory

import (
	"context"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
)

type couponRepository struct{ db *DB }

func (r *couponRepository) FindUserCoupon(_ context.Context, code, phone string) (*domain.UserCoupon, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	for _, c := range r.db.userCoupons {
		if c.Code == code && c.Phone == phone && c.Status == domain.CouponStatusActive {
			cp := *c
			return &cp, nil
		}
	}
	return nil, repository.ErrCouponNotFound
}

func (r *couponRepository) FindPublicCoupon(_ context.Context, code string) (*domain.PublicCoupon, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	for _, c := range r.db.publicCoupons {
		if c.Code == code && c.Status == domain.CouponStatusActive {
			cp := clonePublicCoupon(c)
			return &cp, nil
		}
	}
	return nil, repository.ErrCouponNotFound
}

func (r *couponRepository) RedeemUserCoupon(_ context.Context, couponID, userID, orderID string, at time.Time) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	c, ok := r.db.userCoupons[couponID]
	if !ok {
		return repository.ErrCouponUnavailable
	}
	if c.Status != domain.CouponStatusActive {
		if c.UsedOrderID == orderID {
			return nil
		}
		return repository.ErrCouponUnavailable
	}
	c.Status = domain.CouponStatusUsed
	c.UsedAt = &at
	c.UsedByUserID = userID
	c.UsedOrderID = orderID
	return nil
}

func (r *couponRepository) RedeemPublicCoupon(_ context.Context, couponID string, red domain.CouponRedemption) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	c, ok := r.db.publicCoupons[couponID]
	if !ok {
		return repository.ErrCouponNotFound
	}
	for _, u := range c.UsedBy {
		if u.OrderID == red.OrderID {
			return nil
		}
	}
	if c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit {
		return repository.ErrCouponUnavailable
	}
	if c.PerUserLimit > 0 && c.UsesBy(red.UserID) >= c.PerUserLimit {
		return repository.ErrCouponUnavailable
	}
	c.UsageCount++
	c.UsedBy = append(c.UsedBy, red)
	return nil
}
