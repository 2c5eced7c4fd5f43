package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/storefront/internal/cache"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/stock"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/fjod/storefront/pkg/metrics"
)

var (
	// ErrStockMismatch means the order was paid but stock could not cover it.
	// The order stays PENDING with an incident on record.
	ErrStockMismatch = errors.New("stock mismatch during finalization")
	// ErrFinalizeInProgress means another finalizer kept the lock for the
	// whole wait.
	ErrFinalizeInProgress = errors.New("finalization in progress")
	// ErrFinalizeStuck means a previous attempt died between claiming and
	// applying stock. The order needs an operator.
	ErrFinalizeStuck = errors.New("finalization stuck mid-apply")
	// ErrNotFinalizable means the order is not PENDING or has no successful
	// payment linked to it. Nothing was changed.
	ErrNotFinalizable = errors.New("order cannot be finalized")
)

// CartClearer empties a user's cart and drops its cached copy.
type CartClearer interface {
	ClearCart(ctx context.Context, userID string) error
}

// IncidentRecorder persists finalization problems for operators.
type IncidentRecorder interface {
	RecordIncident(ctx context.Context, in domain.Incident) error
}

// LogIncidents records incidents to the log only.
type LogIncidents struct{}

func (LogIncidents) RecordIncident(ctx context.Context, in domain.Incident) error {
	logger.FromContext(ctx).Error("finalization incident",
		"order_id", in.OrderID,
		"order_number", in.OrderNumber,
		"payment_ref", in.PaymentRef,
		"kind", in.Kind,
		"detail", in.Detail,
	)
	return nil
}

type FinalizerConfig struct {
	LockTTL      time.Duration
	WaitTimeout  time.Duration
	PollInterval time.Duration
}

func (c FinalizerConfig) withDefaults() FinalizerConfig {
	if c.LockTTL <= 0 {
		c.LockTTL = 30 * time.Second
	}
	if c.WaitTimeout <= 0 {
		c.WaitTimeout = 10 * time.Second
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 100 * time.Millisecond
	}
	return c
}

type FinalizerDeps struct {
	Orders    repository.OrderRepository
	Payments  repository.PaymentRepository
	Checkouts repository.CheckoutRepository
	Coupons   repository.CouponRepository
	Outbox    repository.OutboxRepository
	Ledger    *stock.Ledger
	Carts     CartClearer
	Locker    cache.Locker
	Incidents IncidentRecorder
	Metrics   *metrics.Metrics
}

// Finalizer applies the effects of a successful payment exactly once per
// order: stock decrement, coupon redemption, cart clearing and confirmation.
type Finalizer struct {
	orders    repository.OrderRepository
	payments  repository.PaymentRepository
	checkouts repository.CheckoutRepository
	coupons   repository.CouponRepository
	outbox    repository.OutboxRepository
	ledger    *stock.Ledger
	carts     CartClearer
	locker    cache.Locker
	incidents IncidentRecorder
	metrics   *metrics.Metrics
	cfg       FinalizerConfig
	now       func() time.Time
}

func NewFinalizer(d FinalizerDeps, cfg FinalizerConfig) *Finalizer {
	if d.Incidents == nil {
		d.Incidents = LogIncidents{}
	}
	if d.Metrics == nil {
		d.Metrics = metrics.Nop()
	}
	if d.Locker == nil {
		d.Locker = cache.NewLocalLocker()
	}
	return &Finalizer{
		orders:    d.Orders,
		payments:  d.Payments,
		checkouts: d.Checkouts,
		coupons:   d.Coupons,
		outbox:    d.Outbox,
		ledger:    d.Ledger,
		carts:     d.Carts,
		locker:    d.Locker,
		incidents: d.Incidents,
		metrics:   d.Metrics,
		cfg:       cfg.withDefaults(),
		now:       time.Now,
	}
}

// Finalize confirms orderID. Calling it again for a CONFIRMED order is a
// no-op, and concurrent callers are serialized on a per-order lock. Only a
// PENDING order whose linked payment is SUCCESS is finalized.
func (f *Finalizer) Finalize(ctx context.Context, orderID string) (*domain.Order, error) {
	o, err := f.orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.IsConfirmed() {
		f.metrics.Finalizations.WithLabelValues("noop").Inc()
		return o, nil
	}
	if err := f.checkFinalizable(ctx, o); err != nil {
		f.metrics.Finalizations.WithLabelValues("rejected").Inc()
		return o, err
	}

	unlock, locked, err := f.acquire(ctx, orderID)
	if err != nil {
		f.metrics.Finalizations.WithLabelValues("error").Inc()
		if errors.Is(err, ErrFinalizeInProgress) {
			f.record(ctx, o, domain.IncidentFinalizeError, map[string]any{"error": err.Error()})
		}
		return nil, err
	}
	if unlock == nil {
		f.metrics.Finalizations.WithLabelValues("noop").Inc()
		return locked, nil
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			logger.FromContext(ctx).Warn("finalize lock release failed", "order_id", orderID, "error", err)
		}
	}()

	// state may have moved while waiting for the lock
	if err := f.checkFinalizable(ctx, locked); err != nil {
		f.metrics.Finalizations.WithLabelValues("rejected").Inc()
		return locked, err
	}

	o, err = f.run(ctx, locked)
	switch {
	case err == nil:
		f.metrics.Finalizations.WithLabelValues("confirmed").Inc()
	case errors.Is(err, ErrStockMismatch):
		f.metrics.Finalizations.WithLabelValues("stock_mismatch").Inc()
	case errors.Is(err, ErrFinalizeStuck):
		f.metrics.Finalizations.WithLabelValues("error").Inc()
	default:
		f.metrics.Finalizations.WithLabelValues("error").Inc()
		f.record(ctx, o, domain.IncidentFinalizeError, map[string]any{"error": err.Error()})
	}
	return o, err
}

func (f *Finalizer) checkFinalizable(ctx context.Context, o *domain.Order) error {
	if o.PaymentRef == "" {
		return fmt.Errorf("%w: no payment linked", ErrNotFinalizable)
	}
	p, err := f.payments.GetByMerchantRef(ctx, o.PaymentRef)
	if errors.Is(err, repository.ErrPaymentNotFound) {
		return fmt.Errorf("%w: linked payment missing", ErrNotFinalizable)
	}
	if err != nil {
		return err
	}
	captured := p.OrderID == o.ID && p.Status == domain.PaymentStatusSuccess

	if o.OrderStatus != domain.OrderStatusPending {
		if captured {
			// money was taken for an order that will never be confirmed
			f.record(ctx, o, domain.IncidentFinalizeError, map[string]any{
				"reason":       "payment captured on " + string(o.OrderStatus) + " order",
				"merchant_ref": p.MerchantRef,
			})
		}
		return fmt.Errorf("%w: order is %s", ErrNotFinalizable, o.OrderStatus)
	}
	if !captured {
		return fmt.Errorf("%w: payment is %s", ErrNotFinalizable, p.Status)
	}
	return nil
}

// acquire waits for the finalize lock. It returns a nil Unlock when the
// order got confirmed by someone else while waiting.
func (f *Finalizer) acquire(ctx context.Context, orderID string) (cache.Unlock, *domain.Order, error) {
	key := "finalize:" + orderID
	deadline := time.NewTimer(f.cfg.WaitTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(f.cfg.PollInterval)
	defer ticker.Stop()

	for {
		unlock, err := f.locker.TryLock(ctx, key, f.cfg.LockTTL)
		switch {
		case err == nil:
			o, err := f.orders.Get(ctx, orderID)
			if err != nil {
				_ = unlock(context.WithoutCancel(ctx))
				return nil, nil, err
			}
			if o.IsConfirmed() {
				_ = unlock(context.WithoutCancel(ctx))
				return nil, o, nil
			}
			return unlock, o, nil
		case !errors.Is(err, cache.ErrLockHeld):
			return nil, nil, fmt.Errorf("acquire finalize lock: %w", err)
		}

		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-deadline.C:
			return nil, nil, ErrFinalizeInProgress
		case <-ticker.C:
		}

		o, err := f.orders.Get(ctx, orderID)
		if err != nil {
			return nil, nil, err
		}
		if o.IsConfirmed() {
			return nil, o, nil
		}
	}
}

func (f *Finalizer) run(ctx context.Context, o *domain.Order) (*domain.Order, error) {
	log := logger.FromContext(ctx).With("order_id", o.ID, "order_number", o.OrderNumber)

	if !o.Finalization.StockApplied {
		if err := f.applyStock(ctx, o); err != nil {
			return o, err
		}
	}

	if !o.Finalization.CouponRedeemed {
		if err := f.redeemCoupon(ctx, o); err != nil {
			return o, err
		}
	}

	if !o.Finalization.CartCleared {
		if err := f.carts.ClearCart(ctx, o.UserID); err != nil {
			return o, fmt.Errorf("clear cart: %w", err)
		}
		if _, err := f.checkouts.DeleteByUser(ctx, o.UserID); err != nil {
			return o, fmt.Errorf("delete checkouts: %w", err)
		}
		if err := f.orders.MarkCartCleared(ctx, o.ID); err != nil {
			return o, err
		}
	}

	flipped, err := f.orders.Confirm(ctx, o.ID, domain.StatusChange{
		Status:    string(domain.OrderStatusConfirmed),
		Note:      "payment received",
		ChangedAt: f.now().UTC(),
	})
	if err != nil {
		return o, fmt.Errorf("confirm order: %w", err)
	}

	confirmed, err := f.orders.Get(ctx, o.ID)
	if err != nil {
		return o, err
	}
	if !confirmed.IsConfirmed() {
		return confirmed, fmt.Errorf("%w: order became %s during finalization", ErrNotFinalizable, confirmed.OrderStatus)
	}
	if flipped {
		emitOrderEvent(ctx, f.outbox, confirmed, domain.EventOrderConfirmed)
		log.Info("order confirmed", "total", confirmed.TotalAmount.StringFixed(2))
	}
	return confirmed, nil
}

func (f *Finalizer) applyStock(ctx context.Context, o *domain.Order) error {
	log := logger.FromContext(ctx)
	lines := stock.LinesOf(o.Lines)

	shortages, err := f.ledger.CheckLines(ctx, lines)
	if err != nil {
		return err
	}
	if len(shortages) > 0 {
		return f.stockMismatch(ctx, o, &stock.ShortageError{Shortages: shortages})
	}

	if err := f.orders.ClaimStock(ctx, o.ID); err != nil {
		if !errors.Is(err, repository.ErrClaimLost) {
			return err
		}
		cur, getErr := f.orders.Get(ctx, o.ID)
		if getErr != nil {
			return getErr
		}
		if cur.IsConfirmed() || cur.Finalization.StockApplied {
			*o = *cur
			return nil
		}
		if cur.OrderStatus != domain.OrderStatusPending {
			return fmt.Errorf("%w: order is %s", ErrNotFinalizable, cur.OrderStatus)
		}
		log.Error("finalization found mid-apply without a live owner", "order_id", o.ID, "attempts", cur.Finalization.Attempts)
		f.record(ctx, o, domain.IncidentFinalizeError, map[string]any{"reason": "claimed but not applied", "attempts": cur.Finalization.Attempts})
		return ErrFinalizeStuck
	}

	if err := f.ledger.DecrementLines(ctx, lines); err != nil {
		var se *stock.ShortageError
		if errors.As(err, &se) || errors.Is(err, stock.ErrInsufficientStock) {
			return f.stockMismatch(ctx, o, err)
		}
		if failErr := f.orders.FailStockStep(context.WithoutCancel(ctx), o.ID, domain.FinalizationFailed, err.Error()); failErr != nil {
			log.Error("recording stock step failure failed", "order_id", o.ID, "error", failErr)
		}
		return fmt.Errorf("apply stock: %w", err)
	}

	if err := f.orders.MarkStockApplied(ctx, o.ID); err != nil {
		return err
	}
	o.Finalization.StockApplied = true
	return nil
}

func (f *Finalizer) stockMismatch(ctx context.Context, o *domain.Order, cause error) error {
	if err := f.orders.FailStockStep(context.WithoutCancel(ctx), o.ID, domain.FinalizationStockMismatch, cause.Error()); err != nil {
		logger.FromContext(ctx).Error("recording stock mismatch failed", "order_id", o.ID, "error", err)
	}
	detail := map[string]any{"error": cause.Error()}
	var se *stock.ShortageError
	if errors.As(cause, &se) {
		detail["shortages"] = se.Shortages
	}
	f.record(ctx, o, domain.IncidentStockMismatch, detail)
	return fmt.Errorf("%w: %v", ErrStockMismatch, cause)
}

func (f *Finalizer) redeemCoupon(ctx context.Context, o *domain.Order) error {
	if o.Coupon != nil {
		at := f.now().UTC()
		var err error
		switch o.Coupon.Family {
		case domain.CouponFamilyUser:
			err = f.coupons.RedeemUserCoupon(ctx, o.Coupon.CouponID, o.UserID, o.ID, at)
		case domain.CouponFamilyPublic:
			err = f.coupons.RedeemPublicCoupon(ctx, o.Coupon.CouponID, domain.CouponRedemption{
				UserID:  o.UserID,
				OrderID: o.ID,
				UsedAt:  at,
			})
		}
		switch {
		case err == nil:
		case errors.Is(err, repository.ErrCouponUnavailable), errors.Is(err, repository.ErrCouponNotFound):
			// Payment already succeeded; the discount stands and an operator reviews it.
			f.record(ctx, o, domain.IncidentCouponConflict, map[string]any{
				"code":   o.Coupon.Code,
				"family": o.Coupon.Family,
				"error":  err.Error(),
			})
		default:
			return fmt.Errorf("redeem coupon: %w", err)
		}
	}
	if err := f.orders.MarkCouponRedeemed(ctx, o.ID); err != nil {
		return err
	}
	o.Finalization.CouponRedeemed = true
	return nil
}

func (f *Finalizer) record(ctx context.Context, o *domain.Order, kind domain.IncidentKind, detail map[string]any) {
	in := domain.Incident{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		PaymentRef:  o.PaymentRef,
		Kind:        kind,
		Detail:      detail,
		CreatedAt:   f.now().UTC(),
	}
	if err := f.incidents.RecordIncident(context.WithoutCancel(ctx), in); err != nil {
		logger.FromContext(ctx).Error("incident record failed", "order_id", o.ID, "kind", kind, "error", err)
	}
}
