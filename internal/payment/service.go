package payment

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/phonepe"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrOrderNotPayable   = errors.New("order is not awaiting payment")
	ErrNotRefundable     = errors.New("payment cannot be refunded")
	ErrInvalidAmount     = errors.New("refund amount must be positive")
	ErrRefundExceedsPaid = errors.New("refund exceeds refundable amount")
	ErrRefundConflict    = errors.New("concurrent refund, retry")
	ErrInvalidStatus     = errors.New("invalid payment status")
)

const gatewayName = "PHONEPE"

// Gateway is the payment provider as seen by this package.
type Gateway interface {
	Initiate(ctx context.Context, req phonepe.InitiateRequest) (*phonepe.InitiateResult, error)
	Status(ctx context.Context, merchantRef string) (*phonepe.StatusResult, error)
	ValidateCallback(xVerify string, body []byte) (*phonepe.StatusResult, error)
	Refund(ctx context.Context, req phonepe.RefundRequest) (*phonepe.RefundResult, error)
}

type Config struct {
	// PublicURL is where PhonePe reaches this service, without /api/v1.
	PublicURL string
	// FrontendURL receives the shopper after the pay page.
	FrontendURL string
	Currency    string
}

type Service struct {
	payments   repository.PaymentRepository
	orders     repository.OrderRepository
	gateway    Gateway
	reconciler *Reconciler
	cfg        Config
	now        func() time.Time
}

func NewService(payments repository.PaymentRepository, orders repository.OrderRepository, gateway Gateway, reconciler *Reconciler, cfg Config) *Service {
	return &Service{
		payments:   payments,
		orders:     orders,
		gateway:    gateway,
		reconciler: reconciler,
		cfg:        cfg,
		now:        time.Now,
	}
}

// NewMerchantRef returns a unique, time-ordered merchant transaction id.
func NewMerchantRef(prefix string) string {
	return prefix + ulid.Make().String()
}

type Initiated struct {
	PaymentID   string `json:"paymentId"`
	MerchantRef string `json:"merchantTransactionId"`
	RedirectURL string `json:"redirectUrl"`
}

// Initiate opens a gateway session for a PENDING order. A live session for
// the same order is handed back instead of opening a second one, and an
// order whose payment already succeeded is not payable again.
func (s *Service) Initiate(ctx context.Context, who domain.Identity, orderID string) (*Initiated, error) {
	log := logger.FromContext(ctx)

	ord, err := s.orders.GetForUser(ctx, orderID, who.UserID)
	if errors.Is(err, repository.ErrOrderNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	if ord.OrderStatus != domain.OrderStatusPending || ord.PaymentStatus != domain.OrderPaymentPending || !ord.TotalAmount.IsPositive() {
		return nil, ErrOrderNotPayable
	}

	if ord.PaymentRef != "" {
		prev, err := s.payments.GetByMerchantRef(ctx, ord.PaymentRef)
		switch {
		case errors.Is(err, repository.ErrPaymentNotFound):
		case err != nil:
			return nil, err
		case prev.Status == domain.PaymentStatusSuccess:
			// captured already; the order is waiting on finalization, not money
			return nil, ErrOrderNotPayable
		case !prev.Status.IsTerminal() && prev.RedirectURL != "":
			return &Initiated{PaymentID: prev.ID, MerchantRef: prev.MerchantRef, RedirectURL: prev.RedirectURL}, nil
		}
	}

	now := s.now().UTC()
	p := &domain.Payment{
		ID:             uuid.NewString(),
		OrderID:        ord.ID,
		UserID:         who.UserID,
		Amount:         ord.TotalAmount,
		Currency:       s.cfg.Currency,
		Gateway:        gatewayName,
		MerchantRef:    NewMerchantRef("MT"),
		Status:         domain.PaymentStatusInitiated,
		RefundedAmount: decimal.Zero,
		History: []domain.PaymentTransition{{
			To:        domain.PaymentStatusInitiated,
			Source:    domain.SourceInitiate,
			ChangedAt: now,
		}},
		Meta:      map[string]any{"order_number": ord.OrderNumber},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.payments.Create(ctx, p); err != nil {
		return nil, err
	}
	if err := s.orders.SetPaymentRef(ctx, ord.ID, p.MerchantRef); err != nil {
		return nil, err
	}

	base := strings.TrimRight(s.cfg.PublicURL, "/") + "/api/v1/payments"
	redirectURL, callbackURL := base+"/success", base+"/callback"

	res, err := s.gateway.Initiate(ctx, phonepe.InitiateRequest{
		MerchantRef: p.MerchantRef,
		UserID:      who.UserID,
		Phone:       who.Phone,
		Amount:      p.Amount,
		RedirectURL: redirectURL,
		CallbackURL: callbackURL,
	})
	if err != nil {
		log.Error("payment initiation failed", "order_id", ord.ID, "merchant_ref", p.MerchantRef, "error", err)
		// The order stays PENDING so the shopper can try again.
		if _, upErr := s.payments.ApplyUpdate(context.WithoutCancel(ctx), p.MerchantRef, domain.PaymentUpdate{
			Status:        domain.PaymentStatusFailed,
			FailureReason: err.Error(),
			Transition: domain.PaymentTransition{
				From:      domain.PaymentStatusInitiated,
				To:        domain.PaymentStatusFailed,
				Source:    domain.SourceInitiate,
				Note:      "gateway initiation failed",
				ChangedAt: s.now().UTC(),
			},
		}); upErr != nil {
			log.Error("marking payment failed", "merchant_ref", p.MerchantRef, "error", upErr)
		}
		return nil, err
	}

	if err := s.payments.SetRedirect(ctx, p.ID, res.RedirectURL, callbackURL); err != nil {
		return nil, err
	}
	if _, err := s.reconciler.Reconcile(ctx, Outcome{
		MerchantRef: p.MerchantRef,
		Status:      domain.PaymentStatusPending,
		Raw:         res.Raw,
		Source:      domain.SourceInitiate,
	}); err != nil {
		return nil, err
	}

	log.Info("payment initiated", "order_id", ord.ID, "payment_id", p.ID, "merchant_ref", p.MerchantRef, "amount", p.Amount.StringFixed(2))
	return &Initiated{PaymentID: p.ID, MerchantRef: p.MerchantRef, RedirectURL: res.RedirectURL}, nil
}

// Callback validates a server-to-server notification and reconciles it.
func (s *Service) Callback(ctx context.Context, xVerify string, body []byte) (*Result, error) {
	st, err := s.gateway.ValidateCallback(xVerify, body)
	if err != nil {
		return nil, err
	}
	return s.reconciler.Reconcile(ctx, outcomeFrom(st, domain.SourceGatewayCallback))
}

// Verify asks the gateway for the latest state of merchantRef unless the
// payment is already terminal.
func (s *Service) Verify(ctx context.Context, merchantRef string, source domain.StatusSource) (*Result, error) {
	p, err := s.payments.GetByMerchantRef(ctx, merchantRef)
	if errors.Is(err, repository.ErrPaymentNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.Status.IsTerminal() {
		return s.reconciler.stored(ctx, p)
	}

	st, err := s.gateway.Status(ctx, merchantRef)
	if err != nil {
		return nil, err
	}
	return s.reconciler.Reconcile(ctx, outcomeFrom(st, source))
}

// VerifyForUser is Verify limited to the payment's owner. Admins see all.
func (s *Service) VerifyForUser(ctx context.Context, who domain.Identity, merchantRef string) (*Result, error) {
	p, err := s.payments.GetByMerchantRef(ctx, merchantRef)
	if errors.Is(err, repository.ErrPaymentNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.UserID != who.UserID && !who.IsAdmin() {
		return nil, ErrPaymentNotFound
	}
	return s.Verify(ctx, merchantRef, domain.SourceClientVerify)
}

// RedirectTarget verifies merchantRef after the shopper returns from the pay
// page and builds the frontend URL to send them to. Failures degrade to the
// frontend error page.
func (s *Service) RedirectTarget(ctx context.Context, merchantRef string) string {
	front := strings.TrimRight(s.cfg.FrontendURL, "/")
	q := url.Values{}
	q.Set("transactionId", merchantRef)

	if merchantRef == "" {
		return front + "/payment/error?" + q.Encode()
	}
	res, err := s.Verify(ctx, merchantRef, domain.SourceRedirect)
	if err != nil {
		logger.FromContext(ctx).Error("redirect verification failed", "merchant_ref", merchantRef, "error", err)
		return front + "/payment/error?" + q.Encode()
	}
	q.Set("status", RedirectStatus(res.Payment.Status))
	return front + "/payment/status?" + q.Encode()
}

// RedirectStatus is the status word the frontend understands.
func RedirectStatus(st domain.PaymentStatus) string {
	switch st {
	case domain.PaymentStatusSuccess:
		return "success"
	case domain.PaymentStatusFailed:
		return "failed"
	case domain.PaymentStatusCancelled:
		return "cancelled"
	default:
		return "pending"
	}
}

// Override lets an operator force a status, through the same reconciliation
// path as every other source.
func (s *Service) Override(ctx context.Context, merchantRef string, status domain.PaymentStatus, note string) (*Result, error) {
	if !status.Valid() || status == domain.PaymentStatusInitiated {
		return nil, ErrInvalidStatus
	}
	return s.reconciler.Reconcile(ctx, Outcome{
		MerchantRef: merchantRef,
		Status:      status,
		Reason:      note,
		Source:      domain.SourceManualAdmin,
	})
}

// Refund returns amount of a successful payment to the shopper and records
// it on the payment and its order.
func (s *Service) Refund(ctx context.Context, who domain.Identity, paymentID string, amount decimal.Decimal) (*domain.Payment, error) {
	log := logger.FromContext(ctx)

	p, err := s.payments.Get(ctx, paymentID)
	if errors.Is(err, repository.ErrPaymentNotFound) {
		return nil, ErrPaymentNotFound
	}
	if err != nil {
		return nil, err
	}
	if p.UserID != who.UserID && !who.IsAdmin() {
		return nil, ErrPaymentNotFound
	}
	if p.Status != domain.PaymentStatusSuccess {
		return nil, ErrNotRefundable
	}
	amount = domain.RoundMoney(amount)
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	if amount.GreaterThan(p.Refundable()) {
		return nil, fmt.Errorf("%w: %s left", ErrRefundExceedsPaid, p.Refundable().StringFixed(2))
	}

	refundRef := NewMerchantRef("RF")
	res, err := s.gateway.Refund(ctx, phonepe.RefundRequest{
		RefundRef:   refundRef,
		OriginalRef: p.MerchantRef,
		UserID:      p.UserID,
		Amount:      amount,
		CallbackURL: p.CallbackURL,
	})
	if err != nil {
		return nil, err
	}

	updated, err := s.payments.AddRefund(ctx, p.ID, p.RefundedAmount, domain.Refund{
		ID:          uuid.NewString(),
		MerchantRef: refundRef,
		Amount:      amount,
		State:       string(res.State),
		ProviderRef: res.ProviderTxnID,
		CreatedAt:   s.now().UTC(),
	})
	if errors.Is(err, repository.ErrRefundConflict) {
		log.Error("refund accepted by gateway but lost local race", "payment_id", p.ID, "refund_ref", refundRef)
		return nil, ErrRefundConflict
	}
	if err != nil {
		return nil, err
	}

	status := domain.OrderPaymentPartiallyRefunded
	if !updated.Refundable().IsPositive() {
		status = domain.OrderPaymentRefunded
	}
	if err := s.orders.SetPaymentStatus(ctx, p.OrderID, status); err != nil {
		return nil, err
	}

	log.Info("payment refunded", "payment_id", p.ID, "refund_ref", refundRef, "amount", amount.StringFixed(2), "state", res.State)
	return updated, nil
}

func outcomeFrom(st *phonepe.StatusResult, source domain.StatusSource) Outcome {
	o := Outcome{
		MerchantRef:   st.MerchantRef,
		ProviderTxnID: st.ProviderTxnID,
		PaymentMode:   st.PaymentMode,
		Raw:           st.Raw,
		Source:        source,
	}
	switch st.State {
	case phonepe.StateSuccess:
		o.Status = domain.PaymentStatusSuccess
	case phonepe.StateFailed:
		o.Status = domain.PaymentStatusFailed
		if strings.Contains(st.Code, "CANCEL") {
			o.Status = domain.PaymentStatusCancelled
		}
		o.Reason = st.Code
		if st.Message != "" {
			o.Reason += ": " + st.Message
		}
	default:
		o.Status = domain.PaymentStatusPending
	}
	return o
}

var _ Gateway = (*phonepe.Client)(nil)
