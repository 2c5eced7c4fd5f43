package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/go-chi/chi/v5"
)

type CartService interface {
	GetCart(ctx context.Context, userID string) (*domain.Cart, error)
	AddItem(ctx context.Context, userID string, line domain.CartLine) error
	Increase(ctx context.Context, userID, productID, sku string) error
	Decrease(ctx context.Context, userID, productID, sku string) error
	RemoveItem(ctx context.Context, userID, productID, sku string) error
	ClearCart(ctx context.Context, userID string) error
}

type CartHandler struct {
	carts CartService
}

func NewCartHandler(carts CartService) *CartHandler {
	return &CartHandler{carts: carts}
}

type AddItemRequest struct {
	ProductID string `json:"productId" validate:"required"`
	SKU       string `json:"sku" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,min=1,max=100"`
}

// GetCart handles GET /api/v1/cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	cart, err := h.carts.GetCart(ctx, identityFrom(ctx).UserID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, cart)
}

// AddItem handles POST /api/v1/cart/items
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddItemRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID := identityFrom(ctx).UserID
	err := h.carts.AddItem(ctx, userID, domain.CartLine{
		ProductID: req.ProductID,
		SKU:       req.SKU,
		Quantity:  req.Quantity,
	})
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	h.respondCart(ctx, w, r, userID, http.StatusCreated)
}

// Increase handles PATCH /api/v1/cart/items/{productID}/{sku}/increase
func (h *CartHandler) Increase(w http.ResponseWriter, r *http.Request) {
	h.mutateLine(w, r, h.carts.Increase)
}

// Decrease handles PATCH /api/v1/cart/items/{productID}/{sku}/decrease
func (h *CartHandler) Decrease(w http.ResponseWriter, r *http.Request) {
	h.mutateLine(w, r, h.carts.Decrease)
}

// RemoveItem handles DELETE /api/v1/cart/items/{productID}/{sku}
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	h.mutateLine(w, r, h.carts.RemoveItem)
}

// ClearCart handles DELETE /api/v1/cart
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.carts.ClearCart(ctx, identityFrom(ctx).UserID); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *CartHandler) mutateLine(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, userID, productID, sku string) error) {
	productID := chi.URLParam(r, "productID")
	sku := chi.URLParam(r, "sku")
	if productID == "" || sku == "" {
		respondError(w, http.StatusBadRequest, "invalid_argument", "product_id and sku are required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	userID := identityFrom(ctx).UserID
	if err := op(ctx, userID, productID, sku); err != nil {
		respondServiceError(w, r, err)
		return
	}
	h.respondCart(ctx, w, r, userID, http.StatusOK)
}

func (h *CartHandler) respondCart(ctx context.Context, w http.ResponseWriter, r *http.Request, userID string, status int) {
	cart, err := h.carts.GetCart(ctx, userID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, status, cart)
}
