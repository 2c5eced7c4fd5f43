package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CouponType string

const (
	CouponTypePercentage CouponType = "percentage"
	CouponTypeFlat       CouponType = "flat"
)

// CouponFamily tells finalization which store a matched coupon came from.
type CouponFamily string

const (
	CouponFamilyUser   CouponFamily = "USER"
	CouponFamilyPublic CouponFamily = "PUBLIC"
)

type CouponStatus string

const (
	CouponStatusActive   CouponStatus = "Active"
	CouponStatusUsed     CouponStatus = "Used"
	CouponStatusExpired  CouponStatus = "Expired"
	CouponStatusInactive CouponStatus = "Inactive"
)

// UserCoupon is a single-use coupon issued to one phone number.
type UserCoupon struct {
	ID            string          `bson:"_id" json:"id"`
	Code          string          `bson:"code" json:"code"`
	Phone         string          `bson:"phone" json:"phone"`
	Type          CouponType      `bson:"type" json:"type"`
	Value         decimal.Decimal `bson:"value" json:"value"`
	MinCartAmount decimal.Decimal `bson:"min_cart_amount" json:"min_cart_amount"`
	ExpiresAt     *time.Time      `bson:"expires_at,omitempty" json:"expires_at,omitempty"`
	Status        CouponStatus    `bson:"status" json:"status"`
	UsedAt        *time.Time      `bson:"used_at,omitempty" json:"used_at,omitempty"`
	UsedByUserID  string          `bson:"used_by_user_id,omitempty" json:"used_by_user_id,omitempty"`
	UsedOrderID   string          `bson:"used_order_id,omitempty" json:"used_order_id,omitempty"`
}

// PublicCoupon is a multi-use coupon. UsageLimit and PerUserLimit of zero mean
// unlimited. An empty ProductIDs list applies to every product.
type PublicCoupon struct {
	ID            string             `bson:"_id" json:"id"`
	Code          string             `bson:"code" json:"code"`
	Type          CouponType         `bson:"type" json:"type"`
	Value         decimal.Decimal    `bson:"value" json:"value"`
	MinCartAmount decimal.Decimal    `bson:"min_cart_amount" json:"min_cart_amount"`
	ExpiresAt     *time.Time         `bson:"expires_at,omitempty" json:"expires_at,omitempty"`
	Status        CouponStatus       `bson:"status" json:"status"`
	UsageLimit    int                `bson:"usage_limit" json:"usage_limit"`
	UsageCount    int                `bson:"usage_count" json:"usage_count"`
	PerUserLimit  int                `bson:"per_user_limit" json:"per_user_limit"`
	ProductIDs    []string           `bson:"product_ids" json:"product_ids"`
	UsedBy        []CouponRedemption `bson:"used_by,omitempty" json:"used_by"`
}

type CouponRedemption struct {
	UserID  string    `bson:"user_id" json:"user_id"`
	OrderID string    `bson:"order_id" json:"order_id"`
	UsedAt  time.Time `bson:"used_at" json:"used_at"`
}

func (c *PublicCoupon) UsesBy(userID string) int {
	n := 0
	for _, r := range c.UsedBy {
		if r.UserID == userID {
			n++
		}
	}
	return n
}

// AppliedCoupon is the descriptor frozen into a checkout and copied onto the order.
type AppliedCoupon struct {
	Code           string          `bson:"code" json:"code"`
	Family         CouponFamily    `bson:"family" json:"family"`
	CouponID       string          `bson:"coupon_id" json:"coupon_id"`
	Type           CouponType      `bson:"type" json:"type"`
	Value          decimal.Decimal `bson:"value" json:"value"`
	DiscountAmount decimal.Decimal `bson:"discount_amount" json:"discount_amount"`
}
