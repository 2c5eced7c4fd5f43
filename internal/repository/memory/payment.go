package memory

import (
	"context"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/repository"
	"github.com/shopspring/decimal"
)

type paymentRepository struct{ db *DB }

func (r *paymentRepository) Create(_ context.Context, p *domain.Payment) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	for _, existing := range r.db.payments {
		if existing.MerchantRef == p.MerchantRef {
			return repository.ErrDuplicatePayment
		}
	}
	r.db.payments[p.ID] = clonePayment(p)
	return nil
}

func (r *paymentRepository) Get(_ context.Context, id string) (*domain.Payment, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	p, ok := r.db.payments[id]
	if !ok {
		return nil, repository.ErrPaymentNotFound
	}
	return clonePayment(p), nil
}

// byRef must be called with the lock held.
func (r *paymentRepository) byRef(merchantRef string) (*domain.Payment, bool) {
	for _, p := range r.db.payments {
		if p.MerchantRef == merchantRef {
			return p, true
		}
	}
	return nil, false
}

func (r *paymentRepository) GetByMerchantRef(_ context.Context, merchantRef string) (*domain.Payment, error) {
	r.db.mu.RLock()
	defer r.db.mu.RUnlock()

	p, ok := r.byRef(merchantRef)
	if !ok {
		return nil, repository.ErrPaymentNotFound
	}
	return clonePayment(p), nil
}

func (r *paymentRepository) ApplyUpdate(_ context.Context, merchantRef string, u domain.PaymentUpdate) (*domain.Payment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	p, ok := r.byRef(merchantRef)
	if !ok || p.Status.IsTerminal() {
		return nil, repository.ErrPaymentTerminal
	}

	p.Status = u.Status
	if u.ProviderTxnID != "" {
		p.ProviderTxnID = u.ProviderTxnID
	}
	if u.PaymentMode != "" {
		p.PaymentMode = u.PaymentMode
	}
	if u.FailureReason != "" {
		p.FailureReason = u.FailureReason
	}
	if u.Raw != nil {
		p.RawResponse = u.Raw
	}
	p.History = append(p.History, u.Transition)
	p.UpdatedAt = u.Transition.ChangedAt
	return clonePayment(p), nil
}

func (r *paymentRepository) SetRedirect(_ context.Context, id, redirectURL, callbackURL string) error {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	p, ok := r.db.payments[id]
	if !ok {
		return repository.ErrPaymentNotFound
	}
	p.RedirectURL = redirectURL
	p.CallbackURL = callbackURL
	p.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *paymentRepository) AddRefund(_ context.Context, id string, expectedRefunded decimal.Decimal, refund domain.Refund) (*domain.Payment, error) {
	r.db.mu.Lock()
	defer r.db.mu.Unlock()

	p, ok := r.db.payments[id]
	if !ok || !p.RefundedAmount.Equal(expectedRefunded) {
		return nil, repository.ErrRefundConflict
	}
	p.Refunds = append(p.Refunds, refund)
	p.RefundedAmount = expectedRefunded.Add(refund.Amount)
	p.UpdatedAt = refund.CreatedAt
	return clonePayment(p), nil
}
