package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/order"
	"github.com/fjod/storefront/internal/payment"
)

func TestOverrideStatus_Success(t *testing.T) {
	ts := newTestServer()
	ts.payments.result = &payment.Result{
		Payment:     &domain.Payment{MerchantRef: "MT1", Status: domain.PaymentStatusSuccess},
		Changed:     true,
		FinalizeErr: order.ErrStockMismatch,
	}

	rec := ts.do("POST", "/api/v1/admin/payments/MT1/status", `{"status":"SUCCESS","note":"bank statement matched"}`, admin)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, rec.Code)
	}
	var resp OverrideStatusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if !resp.Changed {
		t.Error("expected changed to be true")
	}
	if resp.Warning == "" {
		t.Error("expected finalize warning in response")
	}
}

func TestOverrideStatus_RejectsInitiated(t *testing.T) {
	ts := newTestServer()

	rec := ts.do("POST", "/api/v1/admin/payments/MT1/status", `{"status":"INITIATED","note":"x"}`, admin)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected %d, got %d", http.StatusBadRequest, rec.Code)
	}
}

func TestFinalizeOrder_StockMismatch(t *testing.T) {
	ts := newTestServer()
	ts.finalizer.err = order.ErrStockMismatch

	rec := ts.do("POST", "/api/v1/admin/orders/o-1/finalize", "", admin)

	if rec.Code != http.StatusConflict {
		t.Errorf("expected %d, got %d", http.StatusConflict, rec.Code)
	}
}

func TestFinalizeOrder_NotFinalizable(t *testing.T) {
	ts := newTestServer()
	ts.finalizer.err = fmt.Errorf("%w: order is CANCELLED", order.ErrNotFinalizable)

	rec := ts.do("POST", "/api/v1/admin/orders/o-1/finalize", "", admin)

	if rec.Code != http.StatusConflict {
		t.Fatalf("expected %d, got %d", http.StatusConflict, rec.Code)
	}
	var resp ErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Code != "not_finalizable" {
		t.Errorf("expected code not_finalizable, got %q", resp.Code)
	}
}

func TestFinalizeOrder_Confirmed(t *testing.T) {
	ts := newTestServer()
	ts.finalizer.order = &domain.Order{ID: "o-1", OrderStatus: domain.OrderStatusConfirmed}

	rec := ts.do("POST", "/api/v1/admin/orders/o-1/finalize", "", admin)

	if rec.Code != http.StatusOK {
		t.Errorf("expected %d, got %d", http.StatusOK, rec.Code)
	}
}

func TestIncidents_ListAndResolve(t *testing.T) {
	ts := newTestServer()
	ctx := context.Background()
	if err := ts.incidents.RecordIncident(ctx, domain.Incident{OrderID: "o-1", Kind: domain.IncidentStockMismatch}); err != nil {
		t.Fatalf("record incident: %v", err)
	}
	if err := ts.incidents.RecordIncident(ctx, domain.Incident{OrderID: "o-2", Kind: domain.IncidentCouponConflict}); err != nil {
		t.Fatalf("record incident: %v", err)
	}

	rec := ts.do("GET", "/api/v1/admin/incidents?kind=stock_mismatch&unresolved=true", "", admin)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected %d, got %d", http.StatusOK, rec.Code)
	}
	var list struct {
		Incidents []domain.Incident `json:"incidents"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(list.Incidents) != 1 || list.Incidents[0].OrderID != "o-1" {
		t.Fatalf("expected only the stock mismatch for o-1, got %+v", list.Incidents)
	}

	rec = ts.do("POST", "/api/v1/admin/incidents/1/resolve", "", admin)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected %d, got %d", http.StatusNoContent, rec.Code)
	}

	rec = ts.do("POST", "/api/v1/admin/incidents/1/resolve", "", admin)
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected %d on second resolve, got %d", http.StatusNotFound, rec.Code)
	}

	rec = ts.do("POST", "/api/v1/admin/incidents/abc/resolve", "", admin)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected %d, got %d", http.StatusBadRequest, rec.Code)
	}
}
