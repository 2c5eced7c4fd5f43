package coupon

import (
	"context"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func newEvaluator(db *memory.DB) *Evaluator {
	e := NewEvaluator(db.Store().Coupons)
	e.now = func() time.Time { return fixedNow }
	return e
}

func rejection(t *testing.T, err error) *RejectionError {
	t.Helper()
	var rej *RejectionError
	require.ErrorAs(t, err, &rej)
	return rej
}

func TestEvaluate_UserCouponTakesPrecedence(t *testing.T) {
	db := memory.New()
	db.PutUserCoupon(domain.UserCoupon{ID: "u", Code: "SAVE", Phone: "900", Type: domain.CouponTypeFlat, Value: decimal.NewFromInt(30), Status: domain.CouponStatusActive})
	db.PutPublicCoupon(domain.PublicCoupon{ID: "p", Code: "SAVE", Type: domain.CouponTypeFlat, Value: decimal.NewFromInt(10), Status: domain.CouponStatusActive})

	got, err := newEvaluator(db).Evaluate(context.Background(), Request{Code: "SAVE", CartAmount: decimal.NewFromInt(200), UserID: "u1", Phone: "900"})
	require.NoError(t, err)
	assert.Equal(t, domain.CouponFamilyUser, got.Family)
	assert.Equal(t, "30", got.Discount.String())

	got, err = newEvaluator(db).Evaluate(context.Background(), Request{Code: "SAVE", CartAmount: decimal.NewFromInt(200), UserID: "u2", Phone: "901"})
	require.NoError(t, err)
	assert.Equal(t, domain.CouponFamilyPublic, got.Family)
	assert.Equal(t, "p", got.Applied().CouponID)
}

func TestEvaluate_UserCouponMinCartAmount(t *testing.T) {
	db := memory.New()
	db.PutUserCoupon(domain.UserCoupon{ID: "u", Code: "BIG", Phone: "900", Type: domain.CouponTypePercentage, Value: decimal.NewFromInt(10), MinCartAmount: decimal.NewFromInt(400), Status: domain.CouponStatusActive})

	_, err := newEvaluator(db).Evaluate(context.Background(), Request{Code: "BIG", CartAmount: decimal.NewFromInt(200), Phone: "900"})
	rej := rejection(t, err)
	assert.Equal(t, ReasonMinCartAmount, rej.Reason)
	assert.Equal(t, "400.00", rej.Details["min_cart_amount"])
}

func TestEvaluate_Rejections(t *testing.T) {
	past := fixedNow.Add(-time.Hour)
	future := fixedNow.Add(time.Hour)

	tests := []struct {
		name   string
		coupon domain.PublicCoupon
		req    Request
		reason string
	}{
		{
			name:   "unknown code",
			coupon: domain.PublicCoupon{ID: "x", Code: "OTHER", Status: domain.CouponStatusActive},
			req:    Request{Code: "NOPE"},
			reason: ReasonNotFound,
		},
		{
			name:   "inactive",
			coupon: domain.PublicCoupon{ID: "x", Code: "C", Status: domain.CouponStatusInactive},
			req:    Request{Code: "C"},
			reason: ReasonNotFound,
		},
		{
			name:   "expired",
			coupon: domain.PublicCoupon{ID: "x", Code: "C", Status: domain.CouponStatusActive, ExpiresAt: &past},
			req:    Request{Code: "C", CartAmount: decimal.NewFromInt(100)},
			reason: ReasonExpired,
		},
		{
			name:   "global limit",
			coupon: domain.PublicCoupon{ID: "x", Code: "C", Status: domain.CouponStatusActive, ExpiresAt: &future, UsageLimit: 2, UsageCount: 2},
			req:    Request{Code: "C", CartAmount: decimal.NewFromInt(100)},
			reason: ReasonUsageLimit,
		},
		{
			name: "per user limit",
			coupon: domain.PublicCoupon{ID: "x", Code: "C", Status: domain.CouponStatusActive, PerUserLimit: 1,
				UsedBy: []domain.CouponRedemption{{UserID: "u1", OrderID: "o0"}}},
			req:    Request{Code: "C", UserID: "u1", CartAmount: decimal.NewFromInt(100)},
			reason: ReasonPerUserLimit,
		},
		{
			name:   "product restriction",
			coupon: domain.PublicCoupon{ID: "x", Code: "C", Status: domain.CouponStatusActive, ProductIDs: []string{"p9"}},
			req:    Request{Code: "C", ProductIDs: []string{"p1"}, CartAmount: decimal.NewFromInt(100)},
			reason: ReasonProductMismatch,
		},
		{
			name:   "min cart",
			coupon: domain.PublicCoupon{ID: "x", Code: "C", Status: domain.CouponStatusActive, MinCartAmount: decimal.NewFromInt(500)},
			req:    Request{Code: "C", CartAmount: decimal.NewFromInt(100)},
			reason: ReasonMinCartAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := memory.New()
			db.PutPublicCoupon(tt.coupon)

			_, err := newEvaluator(db).Evaluate(context.Background(), tt.req)
			assert.Equal(t, tt.reason, rejection(t, err).Reason)
		})
	}
}

func TestEvaluate_ProductRestrictionIntersects(t *testing.T) {
	db := memory.New()
	db.PutPublicCoupon(domain.PublicCoupon{ID: "x", Code: "C", Type: domain.CouponTypePercentage, Value: decimal.NewFromInt(10), Status: domain.CouponStatusActive, ProductIDs: []string{"p1", "p9"}})

	got, err := newEvaluator(db).Evaluate(context.Background(), Request{Code: "C", ProductIDs: []string{"p1", "p2"}, CartAmount: decimal.NewFromInt(250)})
	require.NoError(t, err)
	assert.Equal(t, "25", got.Discount.String())
}

func TestEvaluate_DoesNotMarkUsage(t *testing.T) {
	db := memory.New()
	db.PutUserCoupon(domain.UserCoupon{ID: "u", Code: "ONCE", Phone: "900", Type: domain.CouponTypeFlat, Value: decimal.NewFromInt(5), Status: domain.CouponStatusActive})
	e := newEvaluator(db)

	for i := 0; i < 3; i++ {
		_, err := e.Evaluate(context.Background(), Request{Code: "ONCE", Phone: "900", CartAmount: decimal.NewFromInt(50)})
		require.NoError(t, err)
	}
	c, ok := db.UserCoupon("u")
	require.True(t, ok)
	assert.Equal(t, domain.CouponStatusActive, c.Status)
}

func TestDiscount_Bounds(t *testing.T) {
	faker := gofakeit.New(42)

	for i := 0; i < 500; i++ {
		amount := decimal.NewFromFloat(faker.Float64Range(0, 10000)).Round(2)
		pct := decimal.NewFromInt(int64(faker.IntRange(0, 150)))
		flat := decimal.NewFromFloat(faker.Float64Range(0, 12000)).Round(2)

		d := Discount(domain.CouponTypePercentage, pct, amount)
		assert.True(t, d.GreaterThanOrEqual(decimal.Zero), "percentage %s of %s gave %s", pct, amount, d)
		assert.True(t, d.LessThanOrEqual(amount), "percentage %s of %s gave %s", pct, amount, d)

		f := Discount(domain.CouponTypeFlat, flat, amount)
		assert.True(t, f.Equal(decimal.Min(flat, amount)), "flat %s of %s gave %s", flat, amount, f)
	}
}
