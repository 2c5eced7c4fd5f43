// Package coupon decides whether a code applies to a cart and how much it
// takes off. It never records usage.
package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

// Rejection reasons.
const (
	ReasonNotFound        = "COUPON_NOT_FOUND"
	ReasonExpired         = "COUPON_EXPIRED"
	ReasonMinCartAmount   = "MIN_CART_AMOUNT"
	ReasonUsageLimit      = "USAGE_LIMIT_REACHED"
	ReasonPerUserLimit    = "PER_USER_LIMIT_REACHED"
	ReasonProductMismatch = "PRODUCT_NOT_ELIGIBLE"
)

// RejectionError explains why a code does not apply.
type RejectionError struct {
	Reason  string
	Message string
	Details map[string]any
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("coupon rejected: %s", e.Message)
}

type Request struct {
	Code       string
	CartAmount decimal.Decimal
	UserID     string
	Phone      string
	ProductIDs []string
}

type Eligibility struct {
	Family   domain.CouponFamily
	CouponID string
	Code     string
	Type     domain.CouponType
	Value    decimal.Decimal
	Discount decimal.Decimal
}

// Applied is the descriptor frozen into a checkout.
func (e *Eligibility) Applied() *domain.AppliedCoupon {
	return &domain.AppliedCoupon{
		Code:           e.Code,
		Family:         e.Family,
		CouponID:       e.CouponID,
		Type:           e.Type,
		Value:          e.Value,
		DiscountAmount: e.Discount,
	}
}

type Evaluator struct {
	coupons repository.CouponRepository
	now     func() time.Time
}

func NewEvaluator(coupons repository.CouponRepository) *Evaluator {
	return &Evaluator{coupons: coupons, now: time.Now}
}

// Evaluate tries the caller's single-use coupons first, then public ones.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) (*Eligibility, error) {
	now := e.now()

	if req.Phone != "" {
		uc, err := e.coupons.FindUserCoupon(ctx, req.Code, req.Phone)
		switch {
		case err == nil:
			return e.evaluateUser(uc, req, now)
		case !errors.Is(err, repository.ErrCouponNotFound):
			return nil, fmt.Errorf("load user coupon: %w", err)
		}
	}

	pc, err := e.coupons.FindPublicCoupon(ctx, req.Code)
	if errors.Is(err, repository.ErrCouponNotFound) {
		return nil, &RejectionError{
			Reason:  ReasonNotFound,
			Message: "coupon code is not valid",
			Details: map[string]any{"code": req.Code},
		}
	}
	if err != nil {
		return nil, fmt.Errorf("load public coupon: %w", err)
	}
	return e.evaluatePublic(pc, req, now)
}

func (e *Evaluator) evaluateUser(c *domain.UserCoupon, req Request, now time.Time) (*Eligibility, error) {
	if err := checkExpiry(c.ExpiresAt, now); err != nil {
		return nil, err
	}
	if err := checkMinCart(c.MinCartAmount, req.CartAmount); err != nil {
		return nil, err
	}

	return &Eligibility{
		Family:   domain.CouponFamilyUser,
		CouponID: c.ID,
		Code:     c.Code,
		Type:     c.Type,
		Value:    c.Value,
		Discount: Discount(c.Type, c.Value, req.CartAmount),
	}, nil
}

func (e *Evaluator) evaluatePublic(c *domain.PublicCoupon, req Request, now time.Time) (*Eligibility, error) {
	if err := checkExpiry(c.ExpiresAt, now); err != nil {
		return nil, err
	}
	if c.UsageLimit > 0 && c.UsageCount >= c.UsageLimit {
		return nil, &RejectionError{
			Reason:  ReasonUsageLimit,
			Message: "coupon usage limit has been reached",
			Details: map[string]any{"usage_limit": c.UsageLimit},
		}
	}
	if used := c.UsesBy(req.UserID); c.PerUserLimit > 0 && used >= c.PerUserLimit {
		return nil, &RejectionError{
			Reason:  ReasonPerUserLimit,
			Message: "you have already used this coupon the maximum number of times",
			Details: map[string]any{"per_user_limit": c.PerUserLimit, "used": used},
		}
	}
	if len(c.ProductIDs) > 0 && len(lo.Intersect(c.ProductIDs, req.ProductIDs)) == 0 {
		return nil, &RejectionError{
			Reason:  ReasonProductMismatch,
			Message: "coupon does not apply to the products in your cart",
			Details: map[string]any{"product_ids": c.ProductIDs},
		}
	}
	if err := checkMinCart(c.MinCartAmount, req.CartAmount); err != nil {
		return nil, err
	}

	return &Eligibility{
		Family:   domain.CouponFamilyPublic,
		CouponID: c.ID,
		Code:     c.Code,
		Type:     c.Type,
		Value:    c.Value,
		Discount: Discount(c.Type, c.Value, req.CartAmount),
	}, nil
}

func checkExpiry(expiresAt *time.Time, now time.Time) error {
	if expiresAt != nil && !expiresAt.After(now) {
		return &RejectionError{
			Reason:  ReasonExpired,
			Message: "coupon has expired",
			Details: map[string]any{"expired_at": expiresAt.UTC()},
		}
	}
	return nil
}

func checkMinCart(min, amount decimal.Decimal) error {
	if amount.LessThan(min) {
		return &RejectionError{
			Reason:  ReasonMinCartAmount,
			Message: fmt.Sprintf("minimum cart amount of %s required", min.StringFixed(2)),
			Details: map[string]any{
				"min_cart_amount": min.StringFixed(2),
				"cart_amount":     amount.StringFixed(2),
			},
		}
	}
	return nil
}

// Discount never exceeds amount and is never negative.
func Discount(t domain.CouponType, value, amount decimal.Decimal) decimal.Decimal {
	if amount.Sign() <= 0 || value.Sign() <= 0 {
		return decimal.Zero
	}
	var d decimal.Decimal
	switch t {
	case domain.CouponTypePercentage:
		d = amount.Mul(value).Div(decimal.NewFromInt(100))
	case domain.CouponTypeFlat:
		d = value
	default:
		return decimal.Zero
	}
	return domain.RoundMoney(decimal.Min(d, amount))
}
