package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/internal/opsdb"
	"github.com/fjod/storefront/internal/payment"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/go-chi/chi/v5"
)

type PaymentOverrider interface {
	Override(ctx context.Context, merchantRef string, status domain.PaymentStatus, note string) (*payment.Result, error)
}

type OrderFinalizer interface {
	Finalize(ctx context.Context, orderID string) (*domain.Order, error)
}

type IncidentStore interface {
	ListIncidents(ctx context.Context, f opsdb.IncidentFilter) ([]domain.Incident, error)
	ResolveIncident(ctx context.Context, id int64) error
}

type AdminHandler struct {
	payments  PaymentOverrider
	finalizer OrderFinalizer
	incidents IncidentStore
}

func NewAdminHandler(payments PaymentOverrider, finalizer OrderFinalizer, incidents IncidentStore) *AdminHandler {
	return &AdminHandler{
		payments:  payments,
		finalizer: finalizer,
		incidents: incidents,
	}
}

type OverrideStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=PENDING SUCCESS FAILED CANCELLED"`
	Note   string `json:"note" validate:"required,max=500"`
}

type OverrideStatusResponse struct {
	Payment *domain.Payment `json:"payment"`
	Order   *domain.Order   `json:"order,omitempty"`
	Changed bool            `json:"changed"`
	Warning string          `json:"warning,omitempty"`
}

// OverrideStatus handles POST /api/v1/admin/payments/{merchantTransactionId}/status
func (h *AdminHandler) OverrideStatus(w http.ResponseWriter, r *http.Request) {
	var req OverrideStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ref := chi.URLParam(r, "merchantTransactionId")
	logger.FromContext(r.Context()).Warn("manual payment override",
		"merchant_ref", ref,
		"status", req.Status,
		"note", req.Note,
	)

	res, err := h.payments.Override(r.Context(), ref, domain.PaymentStatus(req.Status), req.Note)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	resp := OverrideStatusResponse{Payment: res.Payment, Order: res.Order, Changed: res.Changed}
	if res.FinalizeErr != nil {
		resp.Warning = res.FinalizeErr.Error()
	}
	respondJSON(w, http.StatusOK, resp)
}

// FinalizeOrder handles POST /api/v1/admin/orders/{id}/finalize
func (h *AdminHandler) FinalizeOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.finalizer.Finalize(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

// ListIncidents handles GET /api/v1/admin/incidents?kind=A,B&unresolved=true&limit=N
func (h *AdminHandler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := opsdb.IncidentFilter{UnresolvedOnly: q.Get("unresolved") == "true"}
	if raw := q.Get("kind"); raw != "" {
		for _, k := range strings.Split(raw, ",") {
			f.Kinds = append(f.Kinds, domain.IncidentKind(strings.ToUpper(strings.TrimSpace(k))))
		}
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "invalid_argument", "limit must be a positive integer")
			return
		}
		f.Limit = n
	}

	incidents, err := h.incidents.ListIncidents(r.Context(), f)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	if incidents == nil {
		incidents = []domain.Incident{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"incidents": incidents})
}

// ResolveIncident handles POST /api/v1/admin/incidents/{id}/resolve
func (h *AdminHandler) ResolveIncident(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_argument", "incident id must be numeric")
		return
	}
	if err := h.incidents.ResolveIncident(r.Context(), id); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
