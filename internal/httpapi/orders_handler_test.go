package httpapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/order"
	"github.com/fjod/storefront/internal/stock"
)

func TestCreateOrder_Success(t *testing.T) {
	ts := newTestServer()
	ts.orders.order = &domain.Order{ID: "o-1", OrderNumber: "ORD-20261015-000001", OrderStatus: domain.OrderStatusPending}

	rec := ts.do("POST", "/api/v1/orders", `{"checkoutId":"chk-1"}`, shopper)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected %d, got %d", http.StatusCreated, rec.Code)
	}
	var resp CreateOrderResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.OrderID != "o-1" || resp.OrderNumber != "ORD-20261015-000001" {
		t.Errorf("unexpected response %+v", resp)
	}
}

func TestCreateOrder_InsufficientStock(t *testing.T) {
	ts := newTestServer()
	ts.orders.err = &stock.ShortageError{Shortages: []stock.Shortage{
		{ProductID: "p1", SKU: "M", Requested: 3, Available: 1},
	}}

	rec := ts.do("POST", "/api/v1/orders", `{"checkoutId":"chk-1"}`, shopper)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected %d, got %d", http.StatusConflict, rec.Code)
	}
	resp := decodeError(t, rec)
	if resp.Code != "insufficient_stock" {
		t.Errorf("expected code 'insufficient_stock', got '%s'", resp.Code)
	}
	items, ok := resp.Details.([]any)
	if !ok || len(items) != 1 {
		t.Errorf("expected one shortage in details, got %v", resp.Details)
	}
}

func TestListOrders_EmptyIsArray(t *testing.T) {
	ts := newTestServer()

	rec := ts.do("GET", "/api/v1/orders?limit=10", "", shopper)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, rec.Code)
	}
	if ts.orders.limit != 10 {
		t.Errorf("expected limit 10, got %d", ts.orders.limit)
	}
	var resp map[string]json.RawMessage
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if string(resp["orders"]) != "[]" {
		t.Errorf("expected empty array, got %s", resp["orders"])
	}
}

func TestListOrders_BadLimit(t *testing.T) {
	ts := newTestServer()

	rec := ts.do("GET", "/api/v1/orders?limit=abc", "", shopper)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	ts := newTestServer()
	ts.orders.err = order.ErrOrderNotFound

	rec := ts.do("GET", "/api/v1/orders/o-404", "", shopper)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected %d, got %d", http.StatusNotFound, rec.Code)
	}
}
