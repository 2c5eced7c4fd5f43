package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/fjod/storefront/internal/cart"
	"github.com/fjod/storefront/internal/checkout"
	"github.com/fjod/storefront/internal/coupon"
	"github.com/fjod/storefront/internal/opsdb"
	"github.com/fjod/storefront/internal/order"
	"github.com/fjod/storefront/internal/payment"
	"github.com/fjod/storefront/internal/phonepe"
	"github.com/fjod/storefront/internal/repository"
	"github.com/fjod/storefront/internal/stock"
	"github.com/fjod/storefront/pkg/logger"
	"github.com/go-playground/validator/v10"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "status", status, "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}

func respondErrorDetails(w http.ResponseWriter, status int, code, message string, details any) {
	respondJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: details,
	})
}

// decodeBody reads a JSON body into dst and validates it. It writes the 400
// itself and reports false when the request should stop.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return false
	}
	if err := validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make(map[string]string, len(verrs))
			for _, fe := range verrs {
				fields[fe.Field()] = fe.Tag()
			}
			respondErrorDetails(w, http.StatusBadRequest, "validation_failed", "request validation failed", fields)
			return false
		}
		respondError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return false
	}
	return true
}

// respondServiceError maps service errors to HTTP responses in one place.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		rejection *coupon.RejectionError
		shortage  *stock.ShortageError
		gateway   *phonepe.GatewayError
	)

	switch {
	case errors.As(err, &rejection):
		respondErrorDetails(w, http.StatusUnprocessableEntity, rejection.Reason, rejection.Message, rejection.Details)
	case errors.As(err, &shortage):
		respondErrorDetails(w, http.StatusConflict, "insufficient_stock", "some items are out of stock", shortage.Shortages)
	case errors.As(err, &gateway):
		status := http.StatusBadGateway
		if gateway.Temporary {
			status = http.StatusServiceUnavailable
		}
		details := map[string]any{"operation": gateway.Op}
		if gateway.RetryAfter > 0 {
			secs := int(gateway.RetryAfter.Seconds())
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			details["retryAfter"] = secs
		}
		respondErrorDetails(w, status, "payment_gateway_error", "payment provider unavailable", details)

	case errors.Is(err, cart.ErrProductNotFound):
		respondError(w, http.StatusNotFound, "product_not_found", err.Error())
	case errors.Is(err, repository.ErrItemNotFound), errors.Is(err, repository.ErrCartNotFound):
		respondError(w, http.StatusNotFound, "item_not_found", err.Error())
	case errors.Is(err, cart.ErrInvalidQuantity), errors.Is(err, cart.ErrInvalidLine):
		respondError(w, http.StatusBadRequest, "invalid_cart_line", err.Error())

	case errors.Is(err, checkout.ErrEmptyCart):
		respondError(w, http.StatusUnprocessableEntity, "empty_cart", err.Error())
	case errors.Is(err, checkout.ErrNoPricedLines):
		respondError(w, http.StatusUnprocessableEntity, "no_priced_items", err.Error())
	case errors.Is(err, checkout.ErrCheckoutNotFound):
		respondError(w, http.StatusNotFound, "checkout_not_found", err.Error())
	case errors.Is(err, checkout.ErrAddressNotFound):
		respondError(w, http.StatusNotFound, "address_not_found", err.Error())
	case errors.Is(err, checkout.ErrInvalidPaymentMethod):
		respondError(w, http.StatusBadRequest, "invalid_payment_method", err.Error())

	case errors.Is(err, order.ErrOrderNotFound), errors.Is(err, payment.ErrOrderNotFound), errors.Is(err, repository.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, "order_not_found", "order not found")
	case errors.Is(err, order.ErrStockMismatch):
		respondError(w, http.StatusConflict, "stock_mismatch", err.Error())
	case errors.Is(err, order.ErrFinalizeInProgress), errors.Is(err, order.ErrFinalizeStuck):
		respondError(w, http.StatusConflict, "finalization_blocked", err.Error())
	case errors.Is(err, order.ErrNotFinalizable):
		respondError(w, http.StatusConflict, "not_finalizable", err.Error())

	case errors.Is(err, payment.ErrPaymentNotFound):
		respondError(w, http.StatusNotFound, "payment_not_found", err.Error())
	case errors.Is(err, payment.ErrOrderNotPayable), errors.Is(err, payment.ErrNotRefundable), errors.Is(err, payment.ErrRefundConflict):
		respondError(w, http.StatusConflict, "payment_conflict", err.Error())
	case errors.Is(err, payment.ErrRefundExceedsPaid):
		respondError(w, http.StatusUnprocessableEntity, "refund_exceeds_paid", err.Error())
	case errors.Is(err, payment.ErrInvalidAmount), errors.Is(err, payment.ErrInvalidStatus):
		respondError(w, http.StatusBadRequest, "invalid_argument", err.Error())

	case errors.Is(err, opsdb.ErrIncidentNotFound):
		respondError(w, http.StatusNotFound, "incident_not_found", err.Error())

	case errors.Is(err, context.DeadlineExceeded):
		respondError(w, http.StatusGatewayTimeout, "timeout", "request timed out")
	default:
		logger.FromContext(r.Context()).Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
