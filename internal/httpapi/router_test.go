package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/opsdb"
	"github.com/fjod/storefront/internal/payment"
	"github.com/shopspring/decimal"
)

// --- Mocks ---

type CartServiceMock struct {
	cart  *domain.Cart
	err   error
	added []domain.CartLine
}

func (m *CartServiceMock) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.cart == nil {
		return &domain.Cart{UserID: userID, Items: []domain.CartLine{}}, nil
	}
	return m.cart, nil
}

func (m *CartServiceMock) AddItem(ctx context.Context, userID string, line domain.CartLine) error {
	if m.err != nil {
		return m.err
	}
	m.added = append(m.added, line)
	return nil
}

func (m *CartServiceMock) Increase(ctx context.Context, userID, productID, sku string) error {
	return m.err
}

func (m *CartServiceMock) Decrease(ctx context.Context, userID, productID, sku string) error {
	return m.err
}

func (m *CartServiceMock) RemoveItem(ctx context.Context, userID, productID, sku string) error {
	return m.err
}

func (m *CartServiceMock) ClearCart(ctx context.Context, userID string) error {
	return m.err
}

type CheckoutServiceMock struct {
	checkout   *domain.Checkout
	view       *checkout.View
	err        error
	couponCode string
}

func (m *CheckoutServiceMock) Create(ctx context.Context, who domain.Identity, couponCode string) (*domain.Checkout, error) {
	m.couponCode = couponCode
	if m.err != nil {
		return nil, m.err
	}
	return m.checkout, nil
}

func (m *CheckoutServiceMock) GetActive(ctx context.Context, id, userID string) (*checkout.View, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.view, nil
}

func (m *CheckoutServiceMock) UpdateAddress(ctx context.Context, id, userID, addressID string) error {
	return m.err
}

func (m *CheckoutServiceMock) UpdatePaymentMethod(ctx context.Context, id, userID string, method domain.PaymentMethod) error {
	return m.err
}

type OrderServiceMock struct {
	order  *domain.Order
	orders []domain.Order
	err    error
	limit  int64
}

func (m *OrderServiceMock) Create(ctx context.Context, who domain.Identity, checkoutID string) (*domain.Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.order, nil
}

func (m *OrderServiceMock) Get(ctx context.Context, id, userID string) (*domain.Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.order, nil
}

func (m *OrderServiceMock) List(ctx context.Context, userID string, limit int64) ([]domain.Order, error) {
	m.limit = limit
	if m.err != nil {
		return nil, m.err
	}
	return m.orders, nil
}

type PaymentServiceMock struct {
	initiated   *payment.Initiated
	result      *payment.Result
	payment     *domain.Payment
	err         error
	redirect    string
	redirectRef string
	xVerify     string
	body        string
}

func (m *PaymentServiceMock) Initiate(ctx context.Context, who domain.Identity, orderID string) (*payment.Initiated, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.initiated, nil
}

func (m *PaymentServiceMock) Callback(ctx context.Context, xVerify string, body []byte) (*payment.Result, error) {
	m.xVerify = xVerify
	m.body = string(body)
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *PaymentServiceMock) VerifyForUser(ctx context.Context, who domain.Identity, merchantRef string) (*payment.Result, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *PaymentServiceMock) RedirectTarget(ctx context.Context, merchantRef string) string {
	m.redirectRef = merchantRef
	return m.redirect
}

func (m *PaymentServiceMock) Refund(ctx context.Context, who domain.Identity, paymentID string, amount decimal.Decimal) (*domain.Payment, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.payment, nil
}

func (m *PaymentServiceMock) Override(ctx context.Context, merchantRef string, status domain.PaymentStatus, note string) (*payment.Result, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type FinalizerMock struct {
	order *domain.Order
	err   error
}

func (m *FinalizerMock) Finalize(ctx context.Context, orderID string) (*domain.Order, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.order, nil
}

// --- helpers ---

type testServer struct {
	handler   http.Handler
	carts     *CartServiceMock
	checkouts *CheckoutServiceMock
	orders    *OrderServiceMock
	payments  *PaymentServiceMock
	finalizer *FinalizerMock
	incidents *opsdb.Memory
}

func newTestServer() *testServer {
	ts := &testServer{
		carts:     &CartServiceMock{},
		checkouts: &CheckoutServiceMock{},
		orders:    &OrderServiceMock{},
		payments:  &PaymentServiceMock{},
		finalizer: &FinalizerMock{},
		incidents: opsdb.NewMemory(),
	}
	ts.handler = NewRouter(Handlers{
		Cart:     NewCartHandler(ts.carts),
		Checkout: NewCheckoutHandler(ts.checkouts),
		Orders:   NewOrderHandler(ts.orders),
		Payments: NewPaymentHandler(ts.payments),
		Admin:    NewAdminHandler(ts.payments, ts.finalizer, ts.incidents),
	}, RouterConfig{})
	return ts
}

func (ts *testServer) do(method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	return rec
}

var shopper = map[string]string{HeaderUserID: "user-1", HeaderUserPhone: "9999999999"}

var admin = map[string]string{HeaderUserID: "ops-1", HeaderUserRole: "Admin"}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}
	return resp
}

// --- Router tests ---

func TestHealth(t *testing.T) {
	ts := newTestServer()

	rec := ts.do("GET", "/health", "", nil)

	if rec.Code != http.StatusOK {
		t.Errorf("expected %d, got %d", http.StatusOK, rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("expected healthy status, got %s", rec.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer()

	rec := ts.do("GET", "/metrics", "", nil)

	if rec.Code != http.StatusOK {
		t.Errorf("expected %d, got %d", http.StatusOK, rec.Code)
	}
}

func TestIdentityRequired(t *testing.T) {
	ts := newTestServer()

	rec := ts.do("GET", "/api/v1/cart", "", nil)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("expected %d, got %d", http.StatusUnauthorized, rec.Code)
	}
	if resp := decodeError(t, rec); resp.Code != "unauthorized" {
		t.Errorf("expected code 'unauthorized', got '%s'", resp.Code)
	}
}

func TestAdminRoutesRequireRole(t *testing.T) {
	ts := newTestServer()

	rec := ts.do("GET", "/api/v1/admin/incidents", "", shopper)

	if rec.Code != http.StatusForbidden {
		t.Errorf("expected %d, got %d", http.StatusForbidden, rec.Code)
	}
}

func TestValidationErrorDetails(t *testing.T) {
	ts := newTestServer()

	rec := ts.do("POST", "/api/v1/cart/items", `{"productId":"p1","sku":"M","quantity":0}`, shopper)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected %d, got %d", http.StatusBadRequest, rec.Code)
	}
	resp := decodeError(t, rec)
	if resp.Code != "validation_failed" {
		t.Errorf("expected code 'validation_failed', got '%s'", resp.Code)
	}
	details, ok := resp.Details.(map[string]any)
	if !ok {
		t.Fatalf("expected details object, got %T", resp.Details)
	}
	if details["quantity"] != "required" {
		t.Errorf("expected quantity 'required', got '%v'", details["quantity"])
	}
}

func TestUnknownFieldRejected(t *testing.T) {
	ts := newTestServer()

	rec := ts.do("POST", "/api/v1/orders", `{"checkoutId":"c1","total":1}`, shopper)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected %d, got %d", http.StatusBadRequest, rec.Code)
	}
}
