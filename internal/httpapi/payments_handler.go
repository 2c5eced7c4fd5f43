package httpapi

import (
	"context"
	"io"
	"net/http"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/payment"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// maxCallbackBody caps what is read from the gateway callback.
const maxCallbackBody = 64 << 10

type PaymentService interface {
	Initiate(ctx context.Context, who domain.Identity, orderID string) (*payment.Initiated, error)
	Callback(ctx context.Context, xVerify string, body []byte) (*payment.Result, error)
	VerifyForUser(ctx context.Context, who domain.Identity, merchantRef string) (*payment.Result, error)
	RedirectTarget(ctx context.Context, merchantRef string) string
	Refund(ctx context.Context, who domain.Identity, paymentID string, amount decimal.Decimal) (*domain.Payment, error)
}

type PaymentHandler struct {
	payments PaymentService
}

func NewPaymentHandler(payments PaymentService) *PaymentHandler {
	return &PaymentHandler{payments: payments}
}

type InitiatePaymentRequest struct {
	OrderID string `json:"orderId" validate:"required"`
}

type RefundRequest struct {
	PaymentID string          `json:"paymentId" validate:"required"`
	Amount    decimal.Decimal `json:"amount"`
}

type CallbackResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type PaymentStatusResponse struct {
	Payment *domain.Payment `json:"payment"`
	Order   *domain.Order   `json:"order,omitempty"`
}

// Initiate handles POST /api/v1/payments/initiate
func (h *PaymentHandler) Initiate(w http.ResponseWriter, r *http.Request) {
	var req InitiatePaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.payments.Initiate(r.Context(), identityFrom(r.Context()), req.OrderID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// Callback handles POST /api/v1/payments/callback. PhonePe retries anything
// but a 200, so every outcome is acknowledged and failures are only logged.
func (h *PaymentHandler) Callback(w http.ResponseWriter, r *http.Request) {
	log := logger.FromContext(r.Context())

	body, err := io.ReadAll(io.LimitReader(r.Body, maxCallbackBody))
	if err != nil {
		log.Warn("payment callback unreadable", "error", err)
		respondJSON(w, http.StatusOK, CallbackResponse{Success: false, Message: "unreadable body"})
		return
	}

	res, err := h.payments.Callback(r.Context(), r.Header.Get("X-VERIFY"), body)
	if err != nil {
		log.Error("payment callback rejected", "error", err)
		respondJSON(w, http.StatusOK, CallbackResponse{Success: false, Message: "callback not processed"})
		return
	}
	if res.FinalizeErr != nil && res.Payment != nil {
		log.Error("payment captured but order not confirmed",
			"merchant_ref", res.Payment.MerchantRef,
			"order_id", res.Payment.OrderID,
			"error", res.FinalizeErr,
		)
	}
	respondJSON(w, http.StatusOK, CallbackResponse{Success: true, Message: "callback processed"})
}

// Return handles GET|POST /api/v1/payments/success and /failure. The shopper
// lands here from the pay page and is redirected to the frontend.
func (h *PaymentHandler) Return(w http.ResponseWriter, r *http.Request) {
	ref := r.FormValue("transactionId")
	if ref == "" {
		ref = r.FormValue("merchantTransactionId")
	}
	http.Redirect(w, r, h.payments.RedirectTarget(r.Context(), ref), http.StatusFound)
}

// Verify handles GET /api/v1/payments/verify/{merchantTransactionId}
func (h *PaymentHandler) Verify(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "merchantTransactionId")
	res, err := h.payments.VerifyForUser(r.Context(), identityFrom(r.Context()), ref)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, PaymentStatusResponse{Payment: res.Payment, Order: res.Order})
}

// Refund handles POST /api/v1/payments/refund
func (h *PaymentHandler) Refund(w http.ResponseWriter, r *http.Request) {
	var req RefundRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if !req.Amount.IsPositive() {
		respondError(w, http.StatusBadRequest, "invalid_argument", "amount must be positive")
		return
	}

	p, err := h.payments.Refund(r.Context(), identityFrom(r.Context()), req.PaymentID, req.Amount)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}
