package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/order"
	"github.com/fjod/storefront/internal/payment"
	"github.com/fjod/storefront/internal/phonepe"
	"github.com/shopspring/decimal"
)

func TestInitiatePayment_Success(t *testing.T) {
	ts := newTestServer()
	ts.payments.initiated = &payment.Initiated{
		PaymentID:   "pay-1",
		MerchantRef: "MT01J0000000000000000000000",
		RedirectURL: "https://mercury.example/pay/abc",
	}

	rec := ts.do("POST", "/api/v1/payments/initiate", `{"orderId":"o-1"}`, shopper)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, rec.Code)
	}
	var resp map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp["redirectUrl"] != "https://mercury.example/pay/abc" {
		t.Errorf("unexpected redirectUrl '%s'", resp["redirectUrl"])
	}
	if resp["merchantTransactionId"] == "" || resp["paymentId"] != "pay-1" {
		t.Errorf("unexpected response %v", resp)
	}
}

func TestInitiatePayment_GatewayUnavailable(t *testing.T) {
	ts := newTestServer()
	ts.payments.err = &phonepe.GatewayError{
		Op:         "initiate",
		StatusCode: http.StatusTooManyRequests,
		Temporary:  true,
		RetryAfter: 7 * time.Second,
	}

	rec := ts.do("POST", "/api/v1/payments/initiate", `{"orderId":"o-1"}`, shopper)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected %d, got %d", http.StatusServiceUnavailable, rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "7" {
		t.Errorf("expected Retry-After '7', got '%s'", got)
	}
	resp := decodeError(t, rec)
	details, _ := resp.Details.(map[string]any)
	if details["retryAfter"] != float64(7) {
		t.Errorf("expected retryAfter 7, got %v", details["retryAfter"])
	}
}

func TestInitiatePayment_GatewayRejected(t *testing.T) {
	ts := newTestServer()
	ts.payments.err = &phonepe.GatewayError{Op: "initiate", StatusCode: http.StatusBadRequest, Code: "BAD_REQUEST"}

	rec := ts.do("POST", "/api/v1/payments/initiate", `{"orderId":"o-1"}`, shopper)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected %d, got %d", http.StatusBadGateway, rec.Code)
	}
}

func TestInitiatePayment_OrderNotPayable(t *testing.T) {
	ts := newTestServer()
	ts.payments.err = payment.ErrOrderNotPayable

	rec := ts.do("POST", "/api/v1/payments/initiate", `{"orderId":"o-1"}`, shopper)

	if rec.Code != http.StatusConflict {
		t.Errorf("expected %d, got %d", http.StatusConflict, rec.Code)
	}
}

func TestCallback_AlwaysAcknowledged(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		result      *payment.Result
		wantSuccess bool
	}{
		{
			name:        "processed",
			result:      &payment.Result{Payment: &domain.Payment{MerchantRef: "MT1"}, Changed: true},
			wantSuccess: true,
		},
		{
			name:        "bad signature",
			err:         phonepe.ErrInvalidSignature,
			wantSuccess: false,
		},
		{
			name: "finalize failed",
			result: &payment.Result{
				Payment:     &domain.Payment{MerchantRef: "MT1", OrderID: "o-1"},
				FinalizeErr: order.ErrStockMismatch,
			},
			wantSuccess: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer()
			ts.payments.err = tt.err
			ts.payments.result = tt.result

			rec := ts.do("POST", "/api/v1/payments/callback", `{"response":"eyJ9"}`, map[string]string{"X-VERIFY": "abc###1"})

			if rec.Code != http.StatusOK {
				t.Fatalf("expected %d, got %d", http.StatusOK, rec.Code)
			}
			var resp CallbackResponse
			if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Success != tt.wantSuccess {
				t.Errorf("expected success %v, got %v", tt.wantSuccess, resp.Success)
			}
			if ts.payments.xVerify != "abc###1" {
				t.Errorf("expected X-VERIFY passed through, got '%s'", ts.payments.xVerify)
			}
			if ts.payments.body != `{"response":"eyJ9"}` {
				t.Errorf("expected raw body passed through, got '%s'", ts.payments.body)
			}
		})
	}
}

func TestPaymentReturn_Redirects(t *testing.T) {
	tests := []struct {
		name   string
		method string
		path   string
		body   string
		ref    string
	}{
		{name: "success query", method: "GET", path: "/api/v1/payments/success?transactionId=MT1", ref: "MT1"},
		{name: "failure query", method: "GET", path: "/api/v1/payments/failure?merchantTransactionId=MT2", ref: "MT2"},
		{name: "success form post", method: "POST", path: "/api/v1/payments/success", body: "transactionId=MT3&code=PAYMENT_SUCCESS", ref: "MT3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer()
			ts.payments.redirect = "https://shop.example/payment/status?status=success&transactionId=" + tt.ref

			var headers map[string]string
			if tt.body != "" {
				headers = map[string]string{"Content-Type": "application/x-www-form-urlencoded"}
			}
			rec := ts.do(tt.method, tt.path, tt.body, headers)

			if rec.Code != http.StatusFound {
				t.Fatalf("expected %d, got %d", http.StatusFound, rec.Code)
			}
			if ts.payments.redirectRef != tt.ref {
				t.Errorf("expected ref '%s', got '%s'", tt.ref, ts.payments.redirectRef)
			}
			if loc := rec.Header().Get("Location"); !strings.HasSuffix(loc, "transactionId="+tt.ref) {
				t.Errorf("unexpected Location '%s'", loc)
			}
		})
	}
}

func TestVerifyPayment_NotFound(t *testing.T) {
	ts := newTestServer()
	ts.payments.err = payment.ErrPaymentNotFound

	rec := ts.do("GET", "/api/v1/payments/verify/MT404", "", shopper)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected %d, got %d", http.StatusNotFound, rec.Code)
	}
}

func TestVerifyPayment_ReturnsPaymentAndOrder(t *testing.T) {
	ts := newTestServer()
	ts.payments.result = &payment.Result{
		Payment: &domain.Payment{MerchantRef: "MT1", Status: domain.PaymentStatusSuccess},
		Order:   &domain.Order{ID: "o-1", OrderStatus: domain.OrderStatusConfirmed},
	}

	rec := ts.do("GET", "/api/v1/payments/verify/MT1", "", shopper)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, rec.Code)
	}
	var resp PaymentStatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Payment.Status != domain.PaymentStatusSuccess {
		t.Errorf("expected SUCCESS, got %s", resp.Payment.Status)
	}
	if resp.Order == nil || resp.Order.OrderStatus != domain.OrderStatusConfirmed {
		t.Errorf("expected confirmed order, got %+v", resp.Order)
	}
}

func TestRefund_Validation(t *testing.T) {
	ts := newTestServer()

	rec := ts.do("POST", "/api/v1/payments/refund", `{"paymentId":"pay-1","amount":"0"}`, shopper)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestRefund_ExceedsPaid(t *testing.T) {
	ts := newTestServer()
	ts.payments.err = payment.ErrRefundExceedsPaid

	rec := ts.do("POST", "/api/v1/payments/refund", `{"paymentId":"pay-1","amount":"5000"}`, shopper)

	if rec.Code != http.StatusUnprocessableEntity {
		t.Errorf("expected %d, got %d", http.StatusUnprocessableEntity, rec.Code)
	}
}

func TestRefund_Success(t *testing.T) {
	ts := newTestServer()
	ts.payments.payment = &domain.Payment{ID: "pay-1", RefundedAmount: decimal.NewFromInt(50)}

	rec := ts.do("POST", "/api/v1/payments/refund", `{"paymentId":"pay-1","amount":50}`, shopper)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, rec.Code)
	}
	var resp domain.Payment
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.RefundedAmount.Equal(decimal.NewFromInt(50)) {
		t.Errorf("expected refunded 50, got %s", resp.RefundedAmount)
	}
}

func TestUnexpectedErrorIsInternal(t *testing.T) {
	ts := newTestServer()
	ts.payments.err = errors.New("mongo: connection reset")

	rec := ts.do("POST", "/api/v1/payments/initiate", `{"orderId":"o-1"}`, shopper)

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected %d, got %d", http.StatusInternalServerError, rec.Code)
	}
	if resp := decodeError(t, rec); strings.Contains(resp.Error, "mongo") {
		t.Errorf("internal error leaked: %s", resp.Error)
	}
}
