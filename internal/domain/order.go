package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

type OrderPaymentStatus string

const (
	OrderPaymentPending           OrderPaymentStatus = "PENDING"
	OrderPaymentPaid              OrderPaymentStatus = "PAID"
	OrderPaymentFailed            OrderPaymentStatus = "FAILED"
	OrderPaymentRefunded          OrderPaymentStatus = "REFUNDED"
	OrderPaymentPartiallyRefunded OrderPaymentStatus = "PARTIALLY_REFUNDED"
)

type DeliveryStatus string

const (
	DeliveryStatusPending       DeliveryStatus = "PENDING"
	DeliveryStatusNotDispatched DeliveryStatus = "NOT_DISPATCHED"
)

// FinalizationState tracks how far finalization got for an order.
type FinalizationState string

const (
	FinalizationNone          FinalizationState = ""
	FinalizationApplying      FinalizationState = "APPLYING"
	FinalizationStockMismatch FinalizationState = "STOCK_MISMATCH"
	FinalizationFailed        FinalizationState = "FAILED"
	FinalizationDone          FinalizationState = "DONE"
)

// Finalization records each completed step so a re-invocation resumes
// where the previous attempt stopped.
type Finalization struct {
	State          FinalizationState `bson:"state" json:"state"`
	StockApplied   bool              `bson:"stock_applied" json:"stock_applied"`
	CouponRedeemed bool              `bson:"coupon_redeemed" json:"coupon_redeemed"`
	CartCleared    bool              `bson:"cart_cleared" json:"cart_cleared"`
	LastError      string            `bson:"last_error,omitempty" json:"last_error,omitempty"`
	Attempts       int               `bson:"attempts" json:"attempts"`
	UpdatedAt      time.Time         `bson:"updated_at" json:"updated_at"`
}

type UserSnapshot struct {
	UserID string `bson:"user_id" json:"user_id"`
	Name   string `bson:"name" json:"name"`
	Email  string `bson:"email" json:"email"`
	Phone  string `bson:"phone" json:"phone"`
}

type OrderLine struct {
	ProductID         string          `bson:"product_id" json:"product_id"`
	SKU               string          `bson:"sku" json:"sku"`
	Name              string          `bson:"name" json:"name"`
	ImageURL          string          `bson:"image_url,omitempty" json:"image_url,omitempty"`
	Quantity          int             `bson:"quantity" json:"quantity"`
	OriginalUnitPrice decimal.Decimal `bson:"original_unit_price" json:"original_unit_price"`
	UnitPrice         decimal.Decimal `bson:"unit_price" json:"unit_price"`
	LineTotal         decimal.Decimal `bson:"line_total" json:"line_total"`
}

type StatusChange struct {
	Status    string    `bson:"status" json:"status"`
	Note      string    `bson:"note,omitempty" json:"note,omitempty"`
	ChangedAt time.Time `bson:"changed_at" json:"changed_at"`
}

type Order struct {
	ID             string             `bson:"_id" json:"id"`
	OrderNumber    string             `bson:"order_number" json:"order_number"`
	UserID         string             `bson:"user_id" json:"user_id"`
	CheckoutID     string             `bson:"checkout_id" json:"checkout_id"`
	User           UserSnapshot       `bson:"user" json:"user"`
	Coupon         *AppliedCoupon     `bson:"coupon,omitempty" json:"coupon,omitempty"`
	Address        *AddressSnapshot   `bson:"address,omitempty" json:"address,omitempty"`
	Lines          []OrderLine        `bson:"lines" json:"lines"`
	Pricing        PriceBreakdown     `bson:"pricing" json:"pricing"`
	TotalAmount    decimal.Decimal    `bson:"total_amount" json:"total_amount"`
	Currency       string             `bson:"currency" json:"currency"`
	PaymentMethod  PaymentMethod      `bson:"payment_method" json:"payment_method"`
	PaymentRef     string             `bson:"payment_ref,omitempty" json:"payment_ref,omitempty"`
	PaymentStatus  OrderPaymentStatus `bson:"payment_status" json:"payment_status"`
	OrderStatus    OrderStatus        `bson:"order_status" json:"order_status"`
	DeliveryStatus DeliveryStatus     `bson:"delivery_status" json:"delivery_status"`
	History        []StatusChange     `bson:"history,omitempty" json:"history"`
	Finalization   Finalization       `bson:"finalization" json:"finalization"`
	Meta           map[string]any     `bson:"meta,omitempty" json:"meta,omitempty"`
	CreatedAt      time.Time          `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time          `bson:"updated_at" json:"updated_at"`
}

func (o *Order) IsConfirmed() bool {
	return o.OrderStatus == OrderStatusConfirmed
}

// SKUQuantities sums ordered quantities per (product, sku).
func (o *Order) SKUQuantities() map[SKUKey]int {
	out := make(map[SKUKey]int, len(o.Lines))
	for _, l := range o.Lines {
		out[SKUKey{ProductID: l.ProductID, SKU: l.SKU}] += l.Quantity
	}
	return out
}
