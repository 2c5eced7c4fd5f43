package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStock_DecrementNeverNegative(t *testing.T) {
	ctx := context.Background()
	store := New().Store()
	require.NoError(t, store.Stock.Upsert(ctx, domain.StockRecord{ProductID: "p1", SKU: "M", Quantity: 3}))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = store.Stock.Decrement(ctx, "p1", "M", 1)
		}()
	}
	wg.Wait()

	rec, err := store.Stock.Get(ctx, "p1", "M")
	require.NoError(t, err)
	assert.Equal(t, 0, rec.Quantity)
	assert.False(t, rec.IsAvailable)

	_, err = store.Stock.Decrement(ctx, "p1", "M", 1)
	assert.ErrorIs(t, err, repository.ErrInsufficientStock)
	_, err = store.Stock.Increment(ctx, "p2", "M", 1)
	assert.ErrorIs(t, err, repository.ErrStockNotFound)
}

func TestCheckout_ConvertIsExclusive(t *testing.T) {
	ctx := context.Background()
	store := New().Store()
	now := time.Now()
	require.NoError(t, store.Checkouts.Create(ctx, &domain.Checkout{ID: "c1", UserID: "u1", Status: domain.CheckoutStatusActive, CreatedAt: now}))

	var wg sync.WaitGroup
	wins := make(chan string, 5)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := store.Checkouts.Convert(ctx, "c1", "u1", "o", now.Add(-time.Hour)); err == nil {
				wins <- "o"
			}
		}()
	}
	wg.Wait()
	close(wins)
	assert.Len(t, wins, 1)

	require.NoError(t, store.Checkouts.Reactivate(ctx, "c1", "o"))
	got, err := store.Checkouts.FindActive(ctx, "c1", "u1", now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got.OrderID)
}

func TestCart_ReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := New().Store()
	require.NoError(t, store.Carts.AddItem(ctx, "u1", domain.CartLine{ProductID: "p1", SKU: "M", Quantity: 1}))

	cart, err := store.Carts.GetCart(ctx, "u1")
	require.NoError(t, err)
	cart.Items[0].Quantity = 99

	again, err := store.Carts.GetCart(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, 1, again.Items[0].Quantity)
}

func TestOrder_ClaimAndConfirm(t *testing.T) {
	ctx := context.Background()
	store := New().Store()
	require.NoError(t, store.Orders.Create(ctx, &domain.Order{ID: "o1", UserID: "u1", OrderStatus: domain.OrderStatusPending}))

	require.NoError(t, store.Orders.ClaimStock(ctx, "o1"))
	assert.ErrorIs(t, store.Orders.ClaimStock(ctx, "o1"), repository.ErrClaimLost)
	require.NoError(t, store.Orders.FailStockStep(ctx, "o1", domain.FinalizationStockMismatch, "short"))
	require.NoError(t, store.Orders.ClaimStock(ctx, "o1"))

	ok, err := store.Orders.Confirm(ctx, "o1", domain.StatusChange{Status: "CONFIRMED", ChangedAt: time.Now()})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.Orders.Confirm(ctx, "o1", domain.StatusChange{Status: "CONFIRMED", ChangedAt: time.Now()})
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Orders.GetForUser(ctx, "o1", "u2")
	assert.ErrorIs(t, err, repository.ErrOrderNotFound)
}

func TestOrder_CancelledOrderCannotBeClaimedOrConfirmed(t *testing.T) {
	ctx := context.Background()
	store := New().Store()
	require.NoError(t, store.Orders.Create(ctx, &domain.Order{ID: "o1", UserID: "u1", OrderStatus: domain.OrderStatusPending}))

	ok, err := store.Orders.Cancel(ctx, "o1", domain.StatusChange{Status: "CANCELLED", ChangedAt: time.Now()})
	require.NoError(t, err)
	require.True(t, ok)

	assert.ErrorIs(t, store.Orders.ClaimStock(ctx, "o1"), repository.ErrClaimLost)
	ok, err = store.Orders.Confirm(ctx, "o1", domain.StatusChange{Status: "CONFIRMED", ChangedAt: time.Now()})
	require.NoError(t, err)
	assert.False(t, ok)

	o, err := store.Orders.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, o.OrderStatus)
	assert.Equal(t, domain.OrderPaymentFailed, o.PaymentStatus)
}

func TestCoupon_PublicRedeemHonoursLimits(t *testing.T) {
	ctx := context.Background()
	db := New()
	store := db.Store()
	db.PutPublicCoupon(domain.PublicCoupon{ID: "once", Code: "ONCE", Status: domain.CouponStatusActive, UsageLimit: 1})
	db.PutPublicCoupon(domain.PublicCoupon{ID: "peruser", Code: "PERUSER", Status: domain.CouponStatusActive, PerUserLimit: 1})
	now := time.Now()

	require.NoError(t, store.Coupons.RedeemPublicCoupon(ctx, "once", domain.CouponRedemption{UserID: "u1", OrderID: "o1", UsedAt: now}))
	require.NoError(t, store.Coupons.RedeemPublicCoupon(ctx, "once", domain.CouponRedemption{UserID: "u1", OrderID: "o1", UsedAt: now}))
	assert.ErrorIs(t, store.Coupons.RedeemPublicCoupon(ctx, "once", domain.CouponRedemption{UserID: "u2", OrderID: "o2", UsedAt: now}), repository.ErrCouponUnavailable)

	require.NoError(t, store.Coupons.RedeemPublicCoupon(ctx, "peruser", domain.CouponRedemption{UserID: "u1", OrderID: "o1", UsedAt: now}))
	assert.ErrorIs(t, store.Coupons.RedeemPublicCoupon(ctx, "peruser", domain.CouponRedemption{UserID: "u1", OrderID: "o3", UsedAt: now}), repository.ErrCouponUnavailable)
	require.NoError(t, store.Coupons.RedeemPublicCoupon(ctx, "peruser", domain.CouponRedemption{UserID: "u2", OrderID: "o4", UsedAt: now}))

	once, ok := db.PublicCoupon("once")
	require.True(t, ok)
	assert.Equal(t, 1, once.UsageCount)
	perUser, ok := db.PublicCoupon("peruser")
	require.True(t, ok)
	assert.Equal(t, 2, perUser.UsageCount)
}
