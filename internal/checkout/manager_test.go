package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/coupon"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/pricing"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/repository/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var shopper = domain.Identity{UserID: "u1", Phone: "9000000001", Name: "Asha"}

type fixture struct {
	db      *memory.DB
	store   *repository.Store
	carts   *cart.Service
	manager *Manager
	clock   time.Time
}

func newFixture(t *testing.T, policy Policy) *fixture {
	t.Helper()
	db := memory.New()
	store := db.Store()
	db.PutProduct(domain.Product{ID: "p1", Name: "Kurta", ImageURL: "https://img/p1.jpg", Active: true})
	db.PutProduct(domain.Product{ID: "p2", Name: "Scarf", Active: true})
	db.PutPrice(domain.PriceRecord{ID: "pr1", ProductID: "p1", SKU: "M", OriginalPrice: decimal.NewFromInt(100), Active: true})
	require.NoError(t, store.Stock.Upsert(context.Background(), domain.StockRecord{ProductID: "p1", SKU: "M", Quantity: 5}))

	carts := cart.NewService(store.Carts, store.Catalog, cache.Nop{})
	f := &fixture{db: db, store: store, carts: carts, clock: time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)}
	f.manager = NewManager(Deps{
		Checkouts: store.Checkouts,
		Carts:     carts,
		Prices:    pricing.NewResolver(store.Catalog),
		Coupons:   coupon.NewEvaluator(store.Coupons),
		Addresses: store.Addresses,
		Catalog:   store.Catalog,
		Stock:     store.Stock,
	}, policy)
	f.manager.now = func() time.Time { return f.clock }
	return f
}

func (f *fixture) addToCart(t *testing.T, productID, sku string, qty int) {
	t.Helper()
	require.NoError(t, f.carts.AddItem(context.Background(), shopper.UserID, domain.CartLine{ProductID: productID, SKU: sku, Quantity: qty}))
}

func TestCreate_EmptyCart(t *testing.T) {
	f := newFixture(t, Policy{})

	_, err := f.manager.Create(context.Background(), shopper, "")
	assert.ErrorIs(t, err, ErrEmptyCart)
}

func TestCreate_HappyPathTotals(t *testing.T) {
	f := newFixture(t, Policy{})
	f.addToCart(t, "p1", "M", 2)

	c, err := f.manager.Create(context.Background(), shopper, "")
	require.NoError(t, err)

	assert.Equal(t, domain.CheckoutStatusActive, c.Status)
	assert.Equal(t, "200", c.Pricing.Subtotal.String())
	assert.True(t, c.Pricing.Discount.IsZero())
	assert.Equal(t, "200", c.Pricing.Total.String())
	assert.Nil(t, c.Coupon)
	assert.Equal(t, c.CreatedAt.Add(24*DefaultValidity), c.PurgeAt)
}

func TestCreate_TotalInvariantWithCouponAndDelivery(t *testing.T) {
	f := newFixture(t, Policy{DeliveryCharge: decimal.NewFromInt(49), FreeDeliveryAbove: decimal.NewFromInt(500)})
	f.db.PutPublicCoupon(domain.PublicCoupon{ID: "c1", Code: "TEN", Type: domain.CouponTypePercentage, Value: decimal.NewFromInt(10), Status: domain.CouponStatusActive})
	f.addToCart(t, "p1", "M", 3)

	c, err := f.manager.Create(context.Background(), shopper, "TEN")
	require.NoError(t, err)

	sum := decimal.Zero
	for _, l := range c.Lines {
		sum = sum.Add(l.LineTotal)
	}
	assert.True(t, c.Pricing.Subtotal.Equal(sum))
	assert.True(t, c.Pricing.Total.Equal(c.Pricing.Subtotal.Sub(c.Pricing.Discount).Add(c.Pricing.DeliveryCharge)))
	assert.Equal(t, "30", c.Pricing.Discount.String())
	assert.Equal(t, "49", c.Pricing.DeliveryCharge.String())
	require.NotNil(t, c.Coupon)
	assert.Equal(t, domain.CouponFamilyPublic, c.Coupon.Family)

	f.addToCart(t, "p1", "M", 3)
	c, err = f.manager.Create(context.Background(), shopper, "")
	require.NoError(t, err)
	assert.True(t, c.Pricing.DeliveryCharge.IsZero())
}

func TestCreate_CouponBelowMinimumPersistsNothing(t *testing.T) {
	f := newFixture(t, Policy{})
	f.db.PutUserCoupon(domain.UserCoupon{ID: "uc", Code: "BIG400", Phone: shopper.Phone, Type: domain.CouponTypeFlat, Value: decimal.NewFromInt(50), MinCartAmount: decimal.NewFromInt(400), Status: domain.CouponStatusActive})
	f.addToCart(t, "p1", "M", 2)

	_, err := f.manager.Create(context.Background(), shopper, "BIG400")
	var rej *coupon.RejectionError
	require.ErrorAs(t, err, &rej)
	assert.Equal(t, coupon.ReasonMinCartAmount, rej.Reason)
	assert.Zero(t, f.db.CheckoutCount(shopper.UserID))
}

func TestCreate_DropsUnpricedLinesWithWarning(t *testing.T) {
	f := newFixture(t, Policy{})
	f.addToCart(t, "p1", "M", 1)
	f.addToCart(t, "p2", "ONE", 1)

	c, err := f.manager.Create(context.Background(), shopper, "")
	require.NoError(t, err)
	assert.Len(t, c.Lines, 1)
	require.Len(t, c.Warnings, 1)
	assert.Equal(t, "p2", c.Warnings[0].ProductID)
}

func TestCreate_PicksMostRecentAddress(t *testing.T) {
	f := newFixture(t, Policy{})
	f.db.PutAddress(domain.Address{ID: "a-old", UserID: shopper.UserID, UpdatedAt: f.clock.Add(-48 * time.Hour)})
	f.db.PutAddress(domain.Address{ID: "a-new", UserID: shopper.UserID, UpdatedAt: f.clock.Add(-time.Hour)})
	f.addToCart(t, "p1", "M", 1)

	c, err := f.manager.Create(context.Background(), shopper, "")
	require.NoError(t, err)
	assert.Equal(t, "a-new", c.AddressID)

	view, err := f.manager.GetActive(context.Background(), c.ID, shopper.UserID)
	require.NoError(t, err)
	require.Len(t, view.Addresses, 2)
	assert.True(t, view.Addresses[0].Selected)
	assert.False(t, view.Addresses[1].Selected)
	require.Len(t, view.Items, 1)
	assert.Equal(t, "Kurta", view.Items[0].Name)
	assert.True(t, view.Items[0].InStock)
}

func TestGetActive_ExpiresStaleCheckout(t *testing.T) {
	f := newFixture(t, Policy{})
	f.addToCart(t, "p1", "M", 1)
	c, err := f.manager.Create(context.Background(), shopper, "")
	require.NoError(t, err)

	f.clock = f.clock.Add(DefaultValidity + time.Second)
	_, err = f.manager.GetActive(context.Background(), c.ID, shopper.UserID)
	assert.ErrorIs(t, err, ErrCheckoutNotFound)

	stored, err := f.store.Checkouts.Get(context.Background(), c.ID, shopper.UserID)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStatusExpired, stored.Status)

	// going back in time does not revive it
	f.clock = c.CreatedAt.Add(time.Minute)
	_, err = f.manager.Convert(context.Background(), c.ID, shopper.UserID, "o1")
	assert.ErrorIs(t, err, ErrCheckoutNotFound)
}

func TestConvert_StaleCheckoutCannotBecomeOrder(t *testing.T) {
	f := newFixture(t, Policy{})
	f.addToCart(t, "p1", "M", 1)
	c, err := f.manager.Create(context.Background(), shopper, "")
	require.NoError(t, err)

	f.clock = f.clock.Add(3 * time.Hour)
	_, err = f.manager.Convert(context.Background(), c.ID, shopper.UserID, "o1")
	assert.ErrorIs(t, err, ErrCheckoutNotFound)

	stored, err := f.store.Checkouts.Get(context.Background(), c.ID, shopper.UserID)
	require.NoError(t, err)
	assert.Equal(t, domain.CheckoutStatusExpired, stored.Status)
}

func TestConvert_OnlyOnce(t *testing.T) {
	f := newFixture(t, Policy{})
	f.addToCart(t, "p1", "M", 1)
	c, err := f.manager.Create(context.Background(), shopper, "")
	require.NoError(t, err)

	_, err = f.manager.Convert(context.Background(), c.ID, shopper.UserID, "o1")
	require.NoError(t, err)
	_, err = f.manager.Convert(context.Background(), c.ID, shopper.UserID, "o2")
	assert.ErrorIs(t, err, ErrCheckoutNotFound)

	require.NoError(t, f.manager.Release(context.Background(), c.ID, "o1"))
	_, err = f.manager.Peek(context.Background(), c.ID, shopper.UserID)
	assert.NoError(t, err)
}

func TestUpdates(t *testing.T) {
	f := newFixture(t, Policy{})
	f.db.PutAddress(domain.Address{ID: "mine", UserID: shopper.UserID, UpdatedAt: f.clock})
	f.db.PutAddress(domain.Address{ID: "theirs", UserID: "u2", UpdatedAt: f.clock})
	f.addToCart(t, "p1", "M", 1)
	c, err := f.manager.Create(context.Background(), shopper, "")
	require.NoError(t, err)
	ctx := context.Background()

	assert.ErrorIs(t, f.manager.UpdateAddress(ctx, c.ID, shopper.UserID, "theirs"), ErrAddressNotFound)
	require.NoError(t, f.manager.UpdateAddress(ctx, c.ID, shopper.UserID, "mine"))

	assert.ErrorIs(t, f.manager.UpdatePaymentMethod(ctx, c.ID, shopper.UserID, "COD"), ErrInvalidPaymentMethod)
	require.NoError(t, f.manager.UpdatePaymentMethod(ctx, c.ID, shopper.UserID, domain.PaymentMethodUPI))

	got, err := f.manager.Peek(ctx, c.ID, shopper.UserID)
	require.NoError(t, err)
	assert.Equal(t, "mine", got.AddressID)
	assert.Equal(t, domain.PaymentMethodUPI, got.PaymentMethod)

	f.clock = f.clock.Add(DefaultValidity)
	assert.ErrorIs(t, f.manager.UpdatePaymentMethod(ctx, c.ID, shopper.UserID, domain.PaymentMethodCard), ErrCheckoutNotFound)
	assert.ErrorIs(t, f.manager.UpdateAddress(ctx, c.ID, "u2", "theirs"), ErrCheckoutNotFound)
}
