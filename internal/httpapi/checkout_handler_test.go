package httpapi

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/coupon"
	"github.com/fjod/storefront/internal/domain"
	"github.com/shopspring/decimal"
)

func TestCreateCheckout_ReturnsWarnings(t *testing.T) {
	ts := newTestServer()
	ts.checkouts.checkout = &domain.Checkout{
		ID:       "chk-1",
		Pricing:  domain.NewPriceBreakdown(decimal.NewFromInt(200), decimal.Zero, decimal.Zero),
		Warnings: []domain.PricingWarning{{ProductID: "p2", SKU: "L", Reason: "price unavailable"}},
	}

	rec := ts.do("POST", "/api/v1/checkout", `{"couponCode":"SAVE10"}`, shopper)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected %d, got %d", http.StatusCreated, rec.Code)
	}
	var resp CreateCheckoutResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.CheckoutID != "chk-1" {
		t.Errorf("expected checkoutId 'chk-1', got '%s'", resp.CheckoutID)
	}
	if len(resp.Warnings) != 1 || resp.Warnings[0].ProductID != "p2" {
		t.Errorf("expected one warning for p2, got %+v", resp.Warnings)
	}
	if ts.checkouts.couponCode != "SAVE10" {
		t.Errorf("expected coupon 'SAVE10' passed through, got '%s'", ts.checkouts.couponCode)
	}
}

func TestCreateCheckout_EmptyBody(t *testing.T) {
	ts := newTestServer()
	ts.checkouts.checkout = &domain.Checkout{ID: "chk-1"}

	rec := ts.do("POST", "/api/v1/checkout", "", shopper)

	if rec.Code != http.StatusCreated {
		t.Fatalf("expected %d, got %d", http.StatusCreated, rec.Code)
	}
	if body := rec.Body.String(); !json.Valid([]byte(body)) {
		t.Errorf("expected JSON body, got %s", body)
	}
}

func TestCreateCheckout_CouponRejected(t *testing.T) {
	ts := newTestServer()
	ts.checkouts.err = &coupon.RejectionError{
		Reason:  coupon.ReasonMinCartAmount,
		Message: "cart total below minimum",
		Details: map[string]any{"minCartAmount": "500.00"},
	}

	rec := ts.do("POST", "/api/v1/checkout", `{"couponCode":"BIG"}`, shopper)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected %d, got %d", http.StatusUnprocessableEntity, rec.Code)
	}
	resp := decodeError(t, rec)
	if resp.Code != coupon.ReasonMinCartAmount {
		t.Errorf("expected code '%s', got '%s'", coupon.ReasonMinCartAmount, resp.Code)
	}
	if resp.Details == nil {
		t.Error("expected details with the minimum amount")
	}
}

func TestCreateCheckout_EmptyCart(t *testing.T) {
	ts := newTestServer()
	ts.checkouts.err = checkout.ErrEmptyCart

	rec := ts.do("POST", "/api/v1/checkout", "", shopper)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected %d, got %d", http.StatusUnprocessableEntity, rec.Code)
	}
}

func TestGetCheckout_NotFound(t *testing.T) {
	ts := newTestServer()
	ts.checkouts.err = checkout.ErrCheckoutNotFound

	rec := ts.do("GET", "/api/v1/checkout/chk-404", "", shopper)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestUpdatePaymentMethod_Invalid(t *testing.T) {
	ts := newTestServer()

	rec := ts.do("PUT", "/api/v1/checkout/chk-1/payment-method", `{"paymentMethod":"CASH"}`, shopper)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestUpdateAddress_ReturnsView(t *testing.T) {
	ts := newTestServer()
	ts.checkouts.view = &checkout.View{
		Checkout: &domain.Checkout{ID: "chk-1", AddressID: "a1"},
	}

	rec := ts.do("PUT", "/api/v1/checkout/chk-1/address", `{"addressId":"a1"}`, shopper)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, rec.Code)
	}
	var resp checkout.View
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Checkout == nil || resp.Checkout.AddressID != "a1" {
		t.Errorf("expected address a1 on the checkout, got %+v", resp.Checkout)
	}
}
