// Package payment owns the payment lifecycle: initiation with the gateway and
// reconciliation of every status signal (callback, redirect, verify, admin)
// into a single stored outcome with its order side effects.
package payment

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/fjod/storefront/pkg/metrics"
)

var ErrPaymentNotFound = errors.New("payment not found")

// Outcome is one status signal for a payment, whatever its source.
type Outcome struct {
	MerchantRef   string
	Status        domain.PaymentStatus
	ProviderTxnID string
	PaymentMode   string
	Raw           map[string]any
	Reason        string
	Source        domain.StatusSource
}

// Result is the stored payment after reconciliation and its order.
type Result struct {
	Payment *domain.Payment
	Order   *domain.Order
	// Changed is false when the signal was a duplicate or lost a race.
	Changed bool
	// FinalizeErr is set when payment succeeded but the order could not be
	// confirmed. The payment stays recorded as SUCCESS.
	FinalizeErr error
}

type OrderFinalizer interface {
	Finalize(ctx context.Context, orderID string) (*domain.Order, error)
}

type OrderCanceller interface {
	Cancel(ctx context.Context, id, note string) (*domain.Order, error)
}

type Reconciler struct {
	payments  repository.PaymentRepository
	orders    repository.OrderRepository
	outbox    repository.OutboxRepository
	finalizer OrderFinalizer
	canceller OrderCanceller
	metrics   *metrics.Metrics
	now       func() time.Time
}

type ReconcilerDeps struct {
	Payments  repository.PaymentRepository
	Orders    repository.OrderRepository
	Outbox    repository.OutboxRepository
	Finalizer OrderFinalizer
	Canceller OrderCanceller
	Metrics   *metrics.Metrics
}

func NewReconciler(d ReconcilerDeps) *Reconciler {
	if d.Metrics == nil {
		d.Metrics = metrics.Nop()
	}
	return &Reconciler{
		payments:  d.Payments,
		orders:    d.Orders,
		outbox:    d.Outbox,
		finalizer: d.Finalizer,
		canceller: d.Canceller,
		metrics:   d.Metrics,
		now:       time.Now,
	}
}

// Reconcile applies o to its payment. A payment already in a terminal state
// is returned as stored and nothing else happens.
func (r *Reconciler) Reconcile(ctx context.Context, o Outcome) (*Result, error) {
	log := logger.FromContext(ctx).With("merchant_ref", o.MerchantRef, "source", o.Source)

	p, err := r.payments.GetByMerchantRef(ctx, o.MerchantRef)
	if errors.Is(err, repository.ErrPaymentNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}

	if p.Status.IsTerminal() || (p.Status == o.Status && o.ProviderTxnID == p.ProviderTxnID) {
		log.Debug("payment signal ignored", "stored", p.Status, "incoming", o.Status)
		return r.stored(ctx, p)
	}

	updated, err := r.payments.ApplyUpdate(ctx, o.MerchantRef, domain.PaymentUpdate{
		Status:        o.Status,
		ProviderTxnID: o.ProviderTxnID,
		PaymentMode:   o.PaymentMode,
		FailureReason: o.Reason,
		Raw:           o.Raw,
		Transition: domain.PaymentTransition{
			From:      p.Status,
			To:        o.Status,
			Source:    o.Source,
			Note:      o.Reason,
			ChangedAt: r.now().UTC(),
		},
	})
	if errors.Is(err, repository.ErrPaymentTerminal) {
		log.Info("payment reconciliation lost race", "incoming", o.Status)
		p, err = r.payments.GetByMerchantRef(ctx, o.MerchantRef)
		if err != nil {
			return nil, err
		}
		return r.stored(ctx, p)
	}
	if err != nil {
		return nil, err
	}

	r.metrics.PaymentTransitions.WithLabelValues(string(o.Source), string(o.Status)).Inc()
	r.emit(ctx, updated, o.Source)
	log.Info("payment status changed", "payment_id", updated.ID, "order_id", updated.OrderID, "from", p.Status, "to", updated.Status)

	res := &Result{Payment: updated, Changed: true}
	switch updated.Status {
	case domain.PaymentStatusSuccess:
		if err := r.markPaid(ctx, updated); err != nil {
			log.Error("linking successful payment to order failed", "order_id", updated.OrderID, "error", err)
		}
		ord, err := r.finalizer.Finalize(ctx, updated.OrderID)
		if err != nil {
			log.Error("order finalization failed after successful payment", "order_id", updated.OrderID, "error", err)
			res.FinalizeErr = err
			ord, _ = r.orders.Get(ctx, updated.OrderID)
		}
		res.Order = ord
	case domain.PaymentStatusFailed, domain.PaymentStatusCancelled:
		ord, err := r.orders.Get(ctx, updated.OrderID)
		if err != nil {
			return nil, err
		}
		// a superseded attempt failing does not cancel the order
		if ord.PaymentRef == updated.MerchantRef {
			note := "payment " + string(updated.Status)
			if o.Reason != "" {
				note += ": " + o.Reason
			}
			if ord, err = r.canceller.Cancel(ctx, updated.OrderID, note); err != nil {
				return nil, err
			}
		}
		res.Order = ord
	default:
		ord, err := r.orders.Get(ctx, updated.OrderID)
		if err != nil {
			return nil, err
		}
		res.Order = ord
	}
	return res, nil
}

// markPaid points a PENDING order at its successful payment and flags it PAID,
// so it is not offered for payment again while finalization completes.
func (r *Reconciler) markPaid(ctx context.Context, p *domain.Payment) error {
	ord, err := r.orders.Get(ctx, p.OrderID)
	if err != nil {
		return err
	}
	if ord.OrderStatus != domain.OrderStatusPending {
		return nil
	}
	if ord.PaymentRef != p.MerchantRef {
		if err := r.orders.SetPaymentRef(ctx, ord.ID, p.MerchantRef); err != nil {
			return err
		}
	}
	if ord.PaymentStatus != domain.OrderPaymentPaid {
		return r.orders.SetPaymentStatus(ctx, ord.ID, domain.OrderPaymentPaid)
	}
	return nil
}

func (r *Reconciler) stored(ctx context.Context, p *domain.Payment) (*Result, error) {
	ord, err := r.orders.Get(ctx, p.OrderID)
	if err != nil && !errors.Is(err, repository.ErrOrderNotFound) {
		return nil, err
	}
	return &Result{Payment: p, Order: ord}, nil
}

func (r *Reconciler) emit(ctx context.Context, p *domain.Payment, source domain.StatusSource) {
	e, err := domain.NewOutboxEvent(p.ID, domain.EventPaymentStatusChanged, domain.PaymentEvent{
		PaymentID:   p.ID,
		OrderID:     p.OrderID,
		UserID:      p.UserID,
		MerchantRef: p.MerchantRef,
		Status:      string(p.Status),
		Source:      string(source),
	})
	if err == nil {
		err = r.outbox.Insert(context.WithoutCancel(ctx), e)
	}
	if err != nil {
		logger.FromContext(ctx).Error("outbox write failed", "payment_id", p.ID, "error", err)
	}
}
