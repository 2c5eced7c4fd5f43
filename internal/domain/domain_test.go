package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestPriceRecord_UnitPrice(t *testing.T) {
	explicit := decimal.RequireFromString("79.99")

	tests := []struct {
		name   string
		record PriceRecord
		want   string
	}{
		{
			name:   "explicit discounted price wins",
			record: PriceRecord{OriginalPrice: decimal.NewFromInt(100), DiscountedPrice: &explicit, DiscountPercent: decimal.NewFromInt(50)},
			want:   "79.99",
		},
		{
			name:   "percentage off original",
			record: PriceRecord{OriginalPrice: decimal.NewFromInt(250), DiscountPercent: decimal.NewFromInt(10)},
			want:   "225",
		},
		{
			name:   "no discount",
			record: PriceRecord{OriginalPrice: decimal.RequireFromString("99.5")},
			want:   "99.5",
		},
		{
			name:   "rounded to paise",
			record: PriceRecord{OriginalPrice: decimal.RequireFromString("33.33"), DiscountPercent: decimal.RequireFromString("33.3")},
			want:   "22.23",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.record.UnitPrice().String())
		})
	}
}

func TestNewPriceBreakdown_TotalInvariant(t *testing.T) {
	b := NewPriceBreakdown(decimal.NewFromInt(200), decimal.NewFromInt(20), decimal.NewFromInt(49))

	assert.True(t, b.Total.Equal(b.Subtotal.Sub(b.Discount).Add(b.DeliveryCharge)))
	assert.Equal(t, "229", b.Total.String())
}

func TestPaymentStatus_IsTerminal(t *testing.T) {
	assert.False(t, PaymentStatusInitiated.IsTerminal())
	assert.False(t, PaymentStatusPending.IsTerminal())
	for _, s := range TerminalPaymentStatuses {
		assert.True(t, s.IsTerminal(), s)
	}
	assert.False(t, PaymentStatus("BOGUS").Valid())
}

func TestCheckout_IsStale(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	c := &Checkout{CreatedAt: created}

	assert.False(t, c.IsStale(created.Add(119*time.Minute), 2*time.Hour))
	assert.True(t, c.IsStale(created.Add(2*time.Hour), 2*time.Hour))
	assert.True(t, c.IsStale(created.Add(3*time.Hour), 2*time.Hour))
}

func TestOrder_SKUQuantities(t *testing.T) {
	o := &Order{Lines: []OrderLine{
		{ProductID: "p1", SKU: "s", Quantity: 2},
		{ProductID: "p1", SKU: "s", Quantity: 1},
		{ProductID: "p2", SKU: "s", Quantity: 4},
	}}

	got := o.SKUQuantities()
	assert.Equal(t, 3, got[SKUKey{ProductID: "p1", SKU: "s"}])
	assert.Equal(t, 4, got[SKUKey{ProductID: "p2", SKU: "s"}])
}

func TestPaymentMethod_Valid(t *testing.T) {
	assert.True(t, PaymentMethodUPI.Valid())
	assert.False(t, PaymentMethod("COD").Valid())
}

func TestPublicCoupon_UsesBy(t *testing.T) {
	c := &PublicCoupon{UsedBy: []CouponRedemption{{UserID: "u1"}, {UserID: "u2"}, {UserID: "u1"}}}
	assert.Equal(t, 2, c.UsesBy("u1"))
	assert.Equal(t, 0, c.UsesBy("u3"))
}
