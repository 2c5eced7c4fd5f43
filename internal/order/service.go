package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/stock"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/google/uuid"
	"github.com/samber/lo"
)

var ErrOrderNotFound = errors.New("order not found")

// NumberGenerator hands out human-readable order numbers.
type NumberGenerator interface {
	NextOrderNumber(ctx context.Context, at time.Time) (string, error)
}

// Checkouts is what order creation needs from the checkout manager.
type Checkouts interface {
	Peek(ctx context.Context, id, userID string) (*domain.Checkout, error)
	Convert(ctx context.Context, id, userID, orderID string) (*domain.Checkout, error)
	Release(ctx context.Context, id, orderID string) error
}

type Service struct {
	orders    repository.OrderRepository
	checkouts Checkouts
	addresses repository.AddressRepository
	catalog   repository.CatalogRepository
	ledger    *stock.Ledger
	outbox    repository.OutboxRepository
	numbers   NumberGenerator
	currency  string
	now       func() time.Time
}

type ServiceDeps struct {
	Orders    repository.OrderRepository
	Checkouts Checkouts
	Addresses repository.AddressRepository
	Catalog   repository.CatalogRepository
	Ledger    *stock.Ledger
	Outbox    repository.OutboxRepository
	Numbers   NumberGenerator
}

func NewService(d ServiceDeps, currency string) *Service {
	return &Service{
		orders:    d.Orders,
		checkouts: d.Checkouts,
		addresses: d.Addresses,
		catalog:   d.Catalog,
		ledger:    d.Ledger,
		outbox:    d.Outbox,
		numbers:   d.Numbers,
		currency:  currency,
		now:       time.Now,
	}
}

// Create turns an ACTIVE, non-expired checkout into a PENDING order after a
// final stock check. The checkout is converted atomically, so a snapshot
// yields at most one order. Stock is not held until finalization.
func (s *Service) Create(ctx context.Context, who domain.Identity, checkoutID string) (*domain.Order, error) {
	log := logger.FromContext(ctx)

	c, err := s.checkouts.Peek(ctx, checkoutID, who.UserID)
	if err != nil {
		return nil, err
	}

	lines := lo.Map(c.Lines, func(l domain.CheckoutLine, _ int) stock.Line {
		return stock.Line{ProductID: l.ProductID, SKU: l.SKU, Quantity: l.Quantity}
	})
	shortages, err := s.ledger.CheckLines(ctx, lines)
	if err != nil {
		return nil, err
	}
	if len(shortages) > 0 {
		return nil, &stock.ShortageError{Shortages: shortages}
	}

	var address *domain.AddressSnapshot
	if c.AddressID != "" {
		addr, err := s.addresses.FindByID(ctx, c.AddressID, who.UserID)
		switch {
		case err == nil:
			snap := addr.Snapshot()
			address = &snap
		case errors.Is(err, repository.ErrAddressNotFound):
			log.Warn("checkout address no longer exists", "checkout_id", c.ID, "address_id", c.AddressID)
		default:
			return nil, fmt.Errorf("load address: %w", err)
		}
	}

	products, err := s.catalog.FindProducts(ctx, c.ProductIDs())
	if err != nil {
		return nil, fmt.Errorf("load products: %w", err)
	}

	now := s.now().UTC()
	number, err := s.numbers.NextOrderNumber(ctx, now)
	if err != nil {
		return nil, fmt.Errorf("allocate order number: %w", err)
	}

	orderID := uuid.NewString()
	c, err = s.checkouts.Convert(ctx, checkoutID, who.UserID, orderID)
	if err != nil {
		return nil, err
	}

	o := &domain.Order{
		ID:          orderID,
		OrderNumber: number,
		UserID:      who.UserID,
		CheckoutID:  c.ID,
		User: domain.UserSnapshot{
			UserID: who.UserID,
			Name:   who.Name,
			Email:  who.Email,
			Phone:  who.Phone,
		},
		Coupon:  c.Coupon,
		Address: address,
		Lines: lo.Map(c.Lines, func(l domain.CheckoutLine, _ int) domain.OrderLine {
			p := products[l.ProductID]
			return domain.OrderLine{
				ProductID:         l.ProductID,
				SKU:               l.SKU,
				Name:              p.Name,
				ImageURL:          p.ImageURL,
				Quantity:          l.Quantity,
				OriginalUnitPrice: l.OriginalUnitPrice,
				UnitPrice:         l.UnitPrice,
				LineTotal:         l.LineTotal,
			}
		}),
		Pricing:        c.Pricing,
		TotalAmount:    c.Pricing.Total,
		Currency:       s.currency,
		PaymentMethod:  c.PaymentMethod,
		PaymentStatus:  domain.OrderPaymentPending,
		OrderStatus:    domain.OrderStatusPending,
		DeliveryStatus: domain.DeliveryStatusPending,
		History: []domain.StatusChange{{
			Status:    string(domain.OrderStatusPending),
			Note:      "order placed",
			ChangedAt: now,
		}},
		Meta:      map[string]any{"warnings": len(c.Warnings)},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.orders.Create(ctx, o); err != nil {
		if relErr := s.checkouts.Release(context.WithoutCancel(ctx), checkoutID, orderID); relErr != nil {
			log.Error("checkout release failed", "checkout_id", checkoutID, "error", relErr)
		}
		return nil, err
	}

	s.emit(ctx, o, domain.EventOrderCreated)
	log.Info("order created", "order_id", o.ID, "order_number", o.OrderNumber, "checkout_id", c.ID, "total", o.TotalAmount.StringFixed(2))
	return o, nil
}

func (s *Service) Get(ctx context.Context, id, userID string) (*domain.Order, error) {
	o, err := s.orders.GetForUser(ctx, id, userID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil, ErrOrderNotFound
	}
	return o, err
}

func (s *Service) List(ctx context.Context, userID string, limit int64) ([]domain.Order, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.orders.ListByUser(ctx, userID, limit)
}

// Cancel moves a PENDING order to CANCELLED. No stock or coupon effects exist
// yet at that point, so nothing is given back.
func (s *Service) Cancel(ctx context.Context, id, note string) (*domain.Order, error) {
	flipped, err := s.orders.Cancel(ctx, id, domain.StatusChange{
		Status:    string(domain.OrderStatusCancelled),
		Note:      note,
		ChangedAt: s.now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	o, err := s.orders.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if flipped {
		s.emit(ctx, o, domain.EventOrderCancelled)
		logger.FromContext(ctx).Info("order cancelled", "order_id", id, "note", note)
	}
	return o, nil
}

func (s *Service) emit(ctx context.Context, o *domain.Order, eventType string) {
	emitOrderEvent(ctx, s.outbox, o, eventType)
}

func emitOrderEvent(ctx context.Context, outbox repository.OutboxRepository, o *domain.Order, eventType string) {
	e, err := domain.NewOutboxEvent(o.ID, eventType, domain.NewOrderEvent(o))
	if err == nil {
		err = outbox.Insert(context.WithoutCancel(ctx), e)
	}
	if err != nil {
		logger.FromContext(ctx).Error("outbox write failed", "order_id", o.ID, "event_type", eventType, "error", err)
	}
}

var _ Checkouts = (*checkout.Manager)(nil)
