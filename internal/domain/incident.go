package domain

import "time"

type IncidentKind string

const (
	IncidentStockMismatch  IncidentKind = "STOCK_MISMATCH"
	IncidentCouponConflict IncidentKind = "COUPON_CONFLICT"
	IncidentFinalizeError  IncidentKind = "FINALIZE_ERROR"
)

// Incident is an order that was paid for but needs a human to reconcile it.
type Incident struct {
	ID          int64          `json:"id"`
	OrderID     string         `json:"order_id"`
	OrderNumber string         `json:"order_number"`
	PaymentRef  string         `json:"payment_ref,omitempty"`
	Kind        IncidentKind   `json:"kind"`
	Detail      map[string]any `json:"detail,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	ResolvedAt  *time.Time     `json:"resolved_at,omitempty"`
}
