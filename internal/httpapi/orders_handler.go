package httpapi

import (
	"context"
	"net/http"
	"strconv"

	"github.com/fjod/storefront/internal/domain"
	"github.com/go-chi/chi/v5"
)

type OrderService interface {
	Create(ctx context.Context, who domain.Identity, checkoutID string) (*domain.Order, error)
	Get(ctx context.Context, id, userID string) (*domain.Order, error)
	List(ctx context.Context, userID string, limit int64) ([]domain.Order, error)
}

type OrderHandler struct {
	orders OrderService
}

func NewOrderHandler(orders OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

type CreateOrderRequest struct {
	CheckoutID string `json:"checkoutId" validate:"required"`
}

type CreateOrderResponse struct {
	OrderID     string                `json:"orderId"`
	OrderNumber string                `json:"orderNumber"`
	Status      domain.OrderStatus    `json:"status"`
	Pricing     domain.PriceBreakdown `json:"pricing"`
}

// Create handles POST /api/v1/orders
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	o, err := h.orders.Create(r.Context(), identityFrom(r.Context()), req.CheckoutID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, CreateOrderResponse{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		Status:      o.OrderStatus,
		Pricing:     o.Pricing,
	})
}

// List handles GET /api/v1/orders?limit=N
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	var limit int64
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "invalid_argument", "limit must be a positive integer")
			return
		}
		limit = n
	}

	orders, err := h.orders.List(r.Context(), identityFrom(r.Context()).UserID, limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"orders": orders})
}

// Get handles GET /api/v1/orders/{id}
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.Get(r.Context(), chi.URLParam(r, "id"), identityFrom(r.Context()).UserID)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}
