// Package memory implements the repository interfaces over process memory.
// It backs the unit tests and the STORAGE=memory local mode.
package memory

import (
	"maps"
	"slices"
	"sync"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
)

// DB holds every collection behind one lock, so each repository call is
// atomic the way a single-document MongoDB update is.
type DB struct {
	mu            sync.RWMutex
	carts         map[string]*domain.Cart
	checkouts     map[string]*domain.Checkout
	orders        map[string]*domain.Order
	payments      map[string]*domain.Payment
	stock         map[domain.SKUKey]*domain.StockRecord
	userCoupons   map[string]*domain.UserCoupon
	publicCoupons map[string]*domain.PublicCoupon
	addresses     map[string]*domain.Address
	products      map[string]domain.Product
	prices        map[string]domain.PriceRecord
	outbox        []*domain.OutboxEvent
}

func New() *DB {
	return &DB{
		carts:         make(map[string]*domain.Cart),
		checkouts:     make(map[string]*domain.Checkout),
		orders:        make(map[string]*domain.Order),
		payments:      make(map[string]*domain.Payment),
		stock:         make(map[domain.SKUKey]*domain.StockRecord),
		userCoupons:   make(map[string]*domain.UserCoupon),
		publicCoupons: make(map[string]*domain.PublicCoupon),
		addresses:     make(map[string]*domain.Address),
		products:      make(map[string]domain.Product),
		prices:        make(map[string]domain.PriceRecord),
	}
}

// Store exposes db through the repository interfaces.
func (db *DB) Store() *repository.Store {
	return &repository.Store{
		Carts:     &cartRepository{db},
		Checkouts: &checkoutRepository{db},
		Orders:    &orderRepository{db},
		Payments:  &paymentRepository{db},
		Stock:     &stockRepository{db},
		Coupons:   &couponRepository{db},
		Addresses: &addressRepository{db},
		Catalog:   &catalogRepository{db},
		Outbox:    &outboxRepository{db},
	}
}

func (db *DB) PutProduct(p domain.Product) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.products[p.ID] = p
}

func (db *DB) PutPrice(p domain.PriceRecord) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.prices[p.ID] = p
}

func (db *DB) PutAddress(a domain.Address) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.addresses[a.ID] = &a
}

func (db *DB) PutUserCoupon(c domain.UserCoupon) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.userCoupons[c.ID] = &c
}

func (db *DB) PutPublicCoupon(c domain.PublicCoupon) {
	db.mu.Lock()
	defer db.mu.Unlock()
	c.UsedBy = slices.Clone(c.UsedBy)
	db.publicCoupons[c.ID] = &c
}

func (db *DB) UserCoupon(id string) (domain.UserCoupon, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	c, ok := db.userCoupons[id]
	if !ok {
		return domain.UserCoupon{}, false
	}
	return *c, true
}

func (db *DB) PublicCoupon(id string) (domain.PublicCoupon, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	c, ok := db.publicCoupons[id]
	if !ok {
		return domain.PublicCoupon{}, false
	}
	return clonePublicCoupon(c), true
}

// CheckoutCount counts stored checkouts of userID.
func (db *DB) CheckoutCount(userID string) int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	n := 0
	for _, c := range db.checkouts {
		if c.UserID == userID {
			n++
		}
	}
	return n
}

// PaymentCount counts stored payments of orderID.
func (db *DB) PaymentCount(orderID string) int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	n := 0
	for _, p := range db.payments {
		if p.OrderID == orderID {
			n++
		}
	}
	return n
}

// OutboxEvents returns a copy of every stored outbox event.
func (db *DB) OutboxEvents() []domain.OutboxEvent {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]domain.OutboxEvent, 0, len(db.outbox))
	for _, e := range db.outbox {
		out = append(out, *e)
	}
	return out
}

func cloneCart(c *domain.Cart) *domain.Cart {
	cp := *c
	cp.Items = slices.Clone(c.Items)
	return &cp
}

func cloneCheckout(c *domain.Checkout) *domain.Checkout {
	cp := *c
	cp.Lines = slices.Clone(c.Lines)
	cp.Warnings = slices.Clone(c.Warnings)
	if c.Coupon != nil {
		coupon := *c.Coupon
		cp.Coupon = &coupon
	}
	return &cp
}

func cloneOrder(o *domain.Order) *domain.Order {
	cp := *o
	cp.Lines = slices.Clone(o.Lines)
	cp.History = slices.Clone(o.History)
	cp.Meta = maps.Clone(o.Meta)
	if o.Coupon != nil {
		coupon := *o.Coupon
		cp.Coupon = &coupon
	}
	if o.Address != nil {
		addr := *o.Address
		cp.Address = &addr
	}
	return &cp
}

func clonePayment(p *domain.Payment) *domain.Payment {
	cp := *p
	cp.History = slices.Clone(p.History)
	cp.Refunds = slices.Clone(p.Refunds)
	cp.RawResponse = maps.Clone(p.RawResponse)
	cp.Meta = maps.Clone(p.Meta)
	return &cp
}

func clonePublicCoupon(c *domain.PublicCoupon) domain.PublicCoupon {
	cp := *c
	cp.UsedBy = slices.Clone(c.UsedBy)
	cp.ProductIDs = slices.Clone(c.ProductIDs)
	return cp
}
