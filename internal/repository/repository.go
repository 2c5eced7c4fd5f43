package repository

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

var (
	ErrCartNotFound      = errors.New("cart not found")
	ErrItemNotFound      = errors.New("item not found in cart")
	ErrCheckoutNotFound  = errors.New("checkout not found")
	ErrOrderNotFound     = errors.New("order not found")
	ErrPaymentNotFound   = errors.New("payment not found")
	ErrPaymentTerminal   = errors.New("payment already in terminal state")
	ErrDuplicatePayment  = errors.New("merchant reference already exists")
	ErrRefundConflict    = errors.New("concurrent refund on payment")
	ErrStockNotFound     = errors.New("stock record not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrCouponNotFound    = errors.New("coupon not found")
	ErrCouponUnavailable = errors.New("coupon no longer redeemable")
	ErrAddressNotFound   = errors.New("address not found")
	ErrClaimLost         = errors.New("finalization step already claimed")
)

// CartRepository defines the interface for cart data operations
// Consumers define this interface, not the MongoDB implementation
type CartRepository interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	// AddItem merges by (product, sku): an existing line grows by line.Quantity.
	AddItem(ctx context.Context, userID string, line domain.CartLine) error
	// ChangeQuantity adds delta to a line; a line that drops to zero is removed.
	ChangeQuantity(ctx context.Context, userID, productID, sku string, delta int) error
	RemoveItem(ctx context.Context, userID, productID, sku string) error
	// ClearCart empties the cart lines. Clearing a missing cart is not an error.
	ClearCart(ctx context.Context, userID string) error
}

type CheckoutRepository interface {
	Create(ctx context.Context, c *domain.Checkout) error
	Get(ctx context.Context, id, userID string) (*domain.Checkout, error)
	// FindActive returns the checkout only if it is ACTIVE and created after notBefore.
	FindActive(ctx context.Context, id, userID string, notBefore time.Time) (*domain.Checkout, error)
	// MarkExpired flips ACTIVE to EXPIRED. It reports whether this call flipped it.
	MarkExpired(ctx context.Context, id string) (bool, error)
	UpdateAddress(ctx context.Context, id, userID, addressID string, notBefore time.Time) error
	UpdatePaymentMethod(ctx context.Context, id, userID string, method domain.PaymentMethod, notBefore time.Time) error
	// Convert atomically moves a fresh ACTIVE checkout to CONVERTED and links orderID.
	Convert(ctx context.Context, id, userID, orderID string, notBefore time.Time) (*domain.Checkout, error)
	// Reactivate undoes Convert when the order it was converted for could not be stored.
	Reactivate(ctx context.Context, id, orderID string) error
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}

type OrderRepository interface {
	Create(ctx context.Context, o *domain.Order) error
	Get(ctx context.Context, id string) (*domain.Order, error)
	GetForUser(ctx context.Context, id, userID string) (*domain.Order, error)
	ListByUser(ctx context.Context, userID string, limit int64) ([]domain.Order, error)
	SetPaymentRef(ctx context.Context, id, merchantRef string) error
	SetPaymentStatus(ctx context.Context, id string, status domain.OrderPaymentStatus) error
	// ClaimStock marks the stock step APPLYING. ErrClaimLost is returned when the
	// order is no longer PENDING, the step is done or another finalizer holds it.
	ClaimStock(ctx context.Context, id string) error
	MarkStockApplied(ctx context.Context, id string) error
	// FailStockStep releases an unapplied stock claim, leaving state and reason.
	FailStockStep(ctx context.Context, id string, state domain.FinalizationState, reason string) error
	MarkCouponRedeemed(ctx context.Context, id string) error
	MarkCartCleared(ctx context.Context, id string) error
	// Confirm flips a PENDING order to CONFIRMED. It reports whether this call
	// performed the flip.
	Confirm(ctx context.Context, id string, change domain.StatusChange) (bool, error)
	// Cancel flips a PENDING order to CANCELLED.
	Cancel(ctx context.Context, id string, change domain.StatusChange) (bool, error)
}

type PaymentRepository interface {
	Create(ctx context.Context, p *domain.Payment) error
	Get(ctx context.Context, id string) (*domain.Payment, error)
	GetByMerchantRef(ctx context.Context, merchantRef string) (*domain.Payment, error)
	// ApplyUpdate writes the update only while the stored status is not
	// terminal, returning ErrPaymentTerminal otherwise.
	ApplyUpdate(ctx context.Context, merchantRef string, u domain.PaymentUpdate) (*domain.Payment, error)
	SetRedirect(ctx context.Context, id, redirectURL, callbackURL string) error
	// AddRefund appends r if refunded_amount still equals expectedRefunded.
	AddRefund(ctx context.Context, id string, expectedRefunded decimal.Decimal, r domain.Refund) (*domain.Payment, error)
}

type StockRepository interface {
	Get(ctx context.Context, productID, sku string) (*domain.StockRecord, error)
	GetMany(ctx context.Context, keys []domain.SKUKey) (map[domain.SKUKey]domain.StockRecord, error)
	// Decrement succeeds only when quantity >= qty and keeps is_available in step.
	Decrement(ctx context.Context, productID, sku string, qty int) (*domain.StockRecord, error)
	Increment(ctx context.Context, productID, sku string, qty int) (*domain.StockRecord, error)
	Upsert(ctx context.Context, rec domain.StockRecord) error
}

type CouponRepository interface {
	FindUserCoupon(ctx context.Context, code, phone string) (*domain.UserCoupon, error)
	FindPublicCoupon(ctx context.Context, code string) (*domain.PublicCoupon, error)
	// RedeemUserCoupon moves an Active coupon to Used. Re-redeeming for the
	// same order is a no-op.
	RedeemUserCoupon(ctx context.Context, couponID, userID, orderID string, at time.Time) error
	// RedeemPublicCoupon records one use per order. ErrCouponUnavailable is
	// returned when the total or per-user limit is already reached.
	RedeemPublicCoupon(ctx context.Context, couponID string, r domain.CouponRedemption) error
}

type AddressRepository interface {
	FindDefault(ctx context.Context, userID string) (*domain.Address, error)
	FindByID(ctx context.Context, id, userID string) (*domain.Address, error)
	ListByUser(ctx context.Context, userID string) ([]domain.Address, error)
}

type CatalogRepository interface {
	FindActivePrices(ctx context.Context, keys []domain.SKUKey) ([]domain.PriceRecord, error)
	FindProducts(ctx context.Context, ids []string) (map[string]domain.Product, error)
}

type OutboxRepository interface {
	Insert(ctx context.Context, e *domain.OutboxEvent) error
	GetUnprocessed(ctx context.Context, limit int64) ([]domain.OutboxEvent, error)
	MarkProcessed(ctx context.Context, id string) error
}
