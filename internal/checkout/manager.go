// Package checkout freezes a cart into a priced, time-boxed snapshot that an
// order can be created from exactly once.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/coupon"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/pricing"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/shopspring/decimal"
)

var (
	ErrEmptyCart            = errors.New("cart is empty")
	ErrNoPricedLines        = errors.New("no cart line has an active price")
	ErrCheckoutNotFound     = errors.New("checkout expired or not found")
	ErrAddressNotFound      = errors.New("address not found")
	ErrInvalidPaymentMethod = errors.New("unsupported payment method")
)

const DefaultValidity = 2 * time.Hour

type CartReader interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
}

type PriceResolver interface {
	Resolve(ctx context.Context, lines []domain.CartLine) (*pricing.Result, error)
}

type CouponEvaluator interface {
	Evaluate(ctx context.Context, req coupon.Request) (*coupon.Eligibility, error)
}

// Policy holds the checkout-wide settings.
type Policy struct {
	Validity time.Duration
	// PurgeAfter is how long past creation the TTL index may drop the record.
	PurgeAfter        time.Duration
	DeliveryCharge    decimal.Decimal
	FreeDeliveryAbove decimal.Decimal
}

// Delivery returns the charge for an amount after discount. A zero
// FreeDeliveryAbove disables the waiver.
func (p Policy) Delivery(amount decimal.Decimal) decimal.Decimal {
	if p.FreeDeliveryAbove.IsPositive() && amount.GreaterThanOrEqual(p.FreeDeliveryAbove) {
		return decimal.Zero
	}
	return p.DeliveryCharge
}

type Manager struct {
	checkouts repository.CheckoutRepository
	carts     CartReader
	prices    PriceResolver
	coupons   CouponEvaluator
	addresses repository.AddressRepository
	catalog   repository.CatalogRepository
	stock     repository.StockRepository
	policy    Policy
	now       func() time.Time
}

type Deps struct {
	Checkouts repository.CheckoutRepository
	Carts     CartReader
	Prices    PriceResolver
	Coupons   CouponEvaluator
	Addresses repository.AddressRepository
	Catalog   repository.CatalogRepository
	Stock     repository.StockRepository
}

func NewManager(d Deps, policy Policy) *Manager {
	if policy.Validity <= 0 {
		policy.Validity = DefaultValidity
	}
	if policy.PurgeAfter < policy.Validity {
		policy.PurgeAfter = 24 * policy.Validity
	}
	return &Manager{
		checkouts: d.Checkouts,
		carts:     d.Carts,
		prices:    d.Prices,
		coupons:   d.Coupons,
		addresses: d.Addresses,
		catalog:   d.Catalog,
		stock:     d.Stock,
		policy:    policy,
		now:       time.Now,
	}
}

func (m *Manager) notBefore() time.Time {
	return m.now().Add(-m.policy.Validity)
}

// Create always stores a new ACTIVE snapshot of the caller's cart. A coupon
// code that does not apply fails the whole call.
func (m *Manager) Create(ctx context.Context, who domain.Identity, couponCode string) (*domain.Checkout, error) {
	log := logger.FromContext(ctx)

	cart, err := m.carts.GetCart(ctx, who.UserID)
	if err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}
	if cart.IsEmpty() {
		return nil, ErrEmptyCart
	}

	priced, err := m.prices.Resolve(ctx, cart.Items)
	if err != nil {
		return nil, err
	}
	if len(priced.Lines) == 0 {
		return nil, ErrNoPricedLines
	}
	for _, w := range priced.Warnings {
		log.Warn("cart line dropped from checkout", "user_id", who.UserID, "product_id", w.ProductID, "sku", w.SKU, "reason", w.Reason)
	}

	discount := decimal.Zero
	var applied *domain.AppliedCoupon
	if couponCode != "" {
		elig, err := m.coupons.Evaluate(ctx, coupon.Request{
			Code:       couponCode,
			CartAmount: priced.Subtotal,
			UserID:     who.UserID,
			Phone:      who.Phone,
			ProductIDs: lo.Map(priced.Lines, func(l domain.CheckoutLine, _ int) string { return l.ProductID }),
		})
		if err != nil {
			return nil, err
		}
		applied = elig.Applied()
		discount = elig.Discount
	}

	var addressID string
	addr, err := m.addresses.FindDefault(ctx, who.UserID)
	switch {
	case err == nil:
		addressID = addr.ID
	case !errors.Is(err, repository.ErrAddressNotFound):
		return nil, fmt.Errorf("load default address: %w", err)
	}

	now := m.now().UTC()
	c := &domain.Checkout{
		ID:            uuid.NewString(),
		UserID:        who.UserID,
		Lines:         priced.Lines,
		Pricing:       domain.NewPriceBreakdown(priced.Subtotal, discount, m.policy.Delivery(priced.Subtotal.Sub(discount))),
		Coupon:        applied,
		AddressID:     addressID,
		PaymentMethod: domain.PaymentMethodPhonePe,
		Status:        domain.CheckoutStatusActive,
		Warnings:      priced.Warnings,
		CreatedAt:     now,
		UpdatedAt:     now,
		PurgeAt:       now.Add(m.policy.PurgeAfter),
	}
	if err := m.checkouts.Create(ctx, c); err != nil {
		return nil, err
	}

	log.Info("checkout created", "checkout_id", c.ID, "user_id", who.UserID, "total", c.Pricing.Total.StringFixed(2))
	return c, nil
}

// active loads a fresh ACTIVE checkout. A stale one is flipped to EXPIRED
// before ErrCheckoutNotFound is returned.
func (m *Manager) active(ctx context.Context, id, userID string) (*domain.Checkout, error) {
	c, err := m.checkouts.FindActive(ctx, id, userID, m.notBefore())
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, repository.ErrCheckoutNotFound) {
		return nil, err
	}
	m.expireIfStale(ctx, id, userID)
	return nil, ErrCheckoutNotFound
}

func (m *Manager) expireIfStale(ctx context.Context, id, userID string) {
	c, err := m.checkouts.Get(ctx, id, userID)
	if err != nil || c.Status != domain.CheckoutStatusActive || !c.IsStale(m.now(), m.policy.Validity) {
		return
	}
	if flipped, err := m.checkouts.MarkExpired(ctx, id); err != nil {
		logger.FromContext(ctx).Error("checkout expiry failed", "checkout_id", id, "error", err)
	} else if flipped {
		logger.FromContext(ctx).Info("checkout expired", "checkout_id", id, "user_id", userID)
	}
}

// AddressOption is one of the user's addresses, flagged when it is the one
// chosen on the checkout.
type AddressOption struct {
	domain.Address
	Selected bool `json:"selected"`
}

// ItemView is a checkout line with display data. Prices come from the
// snapshot, never from the live catalog.
type ItemView struct {
	domain.CheckoutLine
	Name      string `json:"name"`
	ImageURL  string `json:"image_url,omitempty"`
	InStock   bool   `json:"in_stock"`
	Available int    `json:"available"`
}

type View struct {
	Checkout  *domain.Checkout `json:"checkout"`
	Addresses []AddressOption  `json:"addresses"`
	Items     []ItemView       `json:"items"`
}

func (m *Manager) GetActive(ctx context.Context, id, userID string) (*View, error) {
	c, err := m.active(ctx, id, userID)
	if err != nil {
		return nil, err
	}

	addresses, err := m.addresses.ListByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load addresses: %w", err)
	}
	products, err := m.catalog.FindProducts(ctx, c.ProductIDs())
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}
	keys := lo.Map(c.Lines, func(l domain.CheckoutLine, _ int) domain.SKUKey {
		return domain.SKUKey{ProductID: l.ProductID, SKU: l.SKU}
	})
	stock, err := m.stock.GetMany(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("load stock: %w", err)
	}

	view := &View{
		Checkout: c,
		Addresses: lo.Map(addresses, func(a domain.Address, _ int) AddressOption {
			return AddressOption{Address: a, Selected: a.ID == c.AddressID}
		}),
		Items: make([]ItemView, 0, len(c.Lines)),
	}
	for _, l := range c.Lines {
		p := products[l.ProductID]
		rec := stock[domain.SKUKey{ProductID: l.ProductID, SKU: l.SKU}]
		view.Items = append(view.Items, ItemView{
			CheckoutLine: l,
			Name:         p.Name,
			ImageURL:     p.ImageURL,
			InStock:      rec.Quantity >= l.Quantity,
			Available:    rec.Quantity,
		})
	}
	return view, nil
}

func (m *Manager) UpdateAddress(ctx context.Context, id, userID, addressID string) error {
	if _, err := m.active(ctx, id, userID); err != nil {
		return err
	}
	if _, err := m.addresses.FindByID(ctx, addressID, userID); err != nil {
		if errors.Is(err, repository.ErrAddressNotFound) {
			return ErrAddressNotFound
		}
		return err
	}
	return m.translate(m.checkouts.UpdateAddress(ctx, id, userID, addressID, m.notBefore()))
}

func (m *Manager) UpdatePaymentMethod(ctx context.Context, id, userID string, method domain.PaymentMethod) error {
	if !method.Valid() {
		return ErrInvalidPaymentMethod
	}
	if _, err := m.active(ctx, id, userID); err != nil {
		return err
	}
	return m.translate(m.checkouts.UpdatePaymentMethod(ctx, id, userID, method, m.notBefore()))
}

// Convert claims the checkout for orderID. Only one caller can win, and only
// while the checkout is ACTIVE and inside its validity window.
func (m *Manager) Convert(ctx context.Context, id, userID, orderID string) (*domain.Checkout, error) {
	c, err := m.checkouts.Convert(ctx, id, userID, orderID, m.notBefore())
	if errors.Is(err, repository.ErrCheckoutNotFound) {
		m.expireIfStale(ctx, id, userID)
		return nil, ErrCheckoutNotFound
	}
	return c, err
}

// Release hands a converted checkout back when its order could not be stored.
func (m *Manager) Release(ctx context.Context, id, orderID string) error {
	return m.checkouts.Reactivate(ctx, id, orderID)
}

// Peek returns an ACTIVE checkout inside its validity window without claiming it.
func (m *Manager) Peek(ctx context.Context, id, userID string) (*domain.Checkout, error) {
	return m.active(ctx, id, userID)
}

func (m *Manager) translate(err error) error {
	if errors.Is(err, repository.ErrCheckoutNotFound) {
		return ErrCheckoutNotFound
	}
	return err
}
