package httpapi

import (
	"context"
	"net/http"

	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/domain"
	"github.com/go-chi/chi/v5"
)

type CheckoutService interface {
	Create(ctx context.Context, who domain.Identity, couponCode string) (*domain.Checkout, error)
	GetActive(ctx context.Context, id, userID string) (*checkout.View, error)
	UpdateAddress(ctx context.Context, id, userID, addressID string) error
	UpdatePaymentMethod(ctx context.Context, id, userID string, method domain.PaymentMethod) error
}

type CheckoutHandler struct {
	checkouts CheckoutService
}

func NewCheckoutHandler(checkouts CheckoutService) *CheckoutHandler {
	return &CheckoutHandler{checkouts: checkouts}
}

type CreateCheckoutRequest struct {
	CouponCode string `json:"couponCode" validate:"omitempty,max=64"`
}

type CreateCheckoutResponse struct {
	CheckoutID string                  `json:"checkoutId"`
	Pricing    domain.PriceBreakdown   `json:"pricing"`
	Warnings   []domain.PricingWarning `json:"warnings"`
}

type UpdateAddressRequest struct {
	AddressID string `json:"addressId" validate:"required"`
}

type UpdatePaymentMethodRequest struct {
	PaymentMethod string `json:"paymentMethod" validate:"required,oneof=PHONEPE UPI CARD NETBANKING"`
}

// Create handles POST /api/v1/checkout. The body is optional.
func (h *CheckoutHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateCheckoutRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}

	c, err := h.checkouts.Create(r.Context(), identityFrom(r.Context()), req.CouponCode)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	warnings := c.Warnings
	if warnings == nil {
		warnings = []domain.PricingWarning{}
	}
	respondJSON(w, http.StatusCreated, CreateCheckoutResponse{
		CheckoutID: c.ID,
		Pricing:    c.Pricing,
		Warnings:   warnings,
	})
}

// Get handles GET /api/v1/checkout/{id}
func (h *CheckoutHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.checkouts.GetActive(r.Context(), chi.URLParam(r, "id"), identityFrom(r.Context()).UserID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, view)
}

// UpdateAddress handles PUT /api/v1/checkout/{id}/address
func (h *CheckoutHandler) UpdateAddress(w http.ResponseWriter, r *http.Request) {
	var req UpdateAddressRequest
	if !decodeBody(w, r, &req) {
		return
	}

	id := chi.URLParam(r, "id")
	userID := identityFrom(r.Context()).UserID
	if err := h.checkouts.UpdateAddress(r.Context(), id, userID, req.AddressID); err != nil {
		respondServiceError(w, r, err)
		return
	}
	h.Get(w, r)
}

// UpdatePaymentMethod handles PUT /api/v1/checkout/{id}/payment-method
func (h *CheckoutHandler) UpdatePaymentMethod(w http.ResponseWriter, r *http.Request) {
	var req UpdatePaymentMethodRequest
	if !decodeBody(w, r, &req) {
		return
	}

	id := chi.URLParam(r, "id")
	userID := identityFrom(r.Context()).UserID
	if err := h.checkouts.UpdatePaymentMethod(r.Context(), id, userID, domain.PaymentMethod(req.PaymentMethod)); err != nil {
		respondServiceError(w, r, err)
		return
	}
	h.Get(w, r)
}
