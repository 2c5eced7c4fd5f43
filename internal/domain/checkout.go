package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type CheckoutStatus string

const (
	CheckoutStatusActive    CheckoutStatus = "ACTIVE"
	CheckoutStatusExpired   CheckoutStatus = "EXPIRED"
	CheckoutStatusConverted CheckoutStatus = "CONVERTED"
)

func (s CheckoutStatus) String() string {
	return string(s)
}

type PaymentMethod string

// Every method below is collected through the PhonePe hosted checkout; the
// value is the shopper's preferred instrument.
const (
	PaymentMethodPhonePe    PaymentMethod = "PHONEPE"
	PaymentMethodUPI        PaymentMethod = "UPI"
	PaymentMethodCard       PaymentMethod = "CARD"
	PaymentMethodNetBanking PaymentMethod = "NETBANKING"
)

var validPaymentMethods = map[PaymentMethod]struct{}{
	PaymentMethodPhonePe:    {},
	PaymentMethodUPI:        {},
	PaymentMethodCard:       {},
	PaymentMethodNetBanking: {},
}

func (m PaymentMethod) Valid() bool {
	_, ok := validPaymentMethods[m]
	return ok
}

type CheckoutLine struct {
	ProductID         string          `bson:"product_id" json:"product_id"`
	SKU               string          `bson:"sku" json:"sku"`
	Quantity          int             `bson:"quantity" json:"quantity"`
	OriginalUnitPrice decimal.Decimal `bson:"original_unit_price" json:"original_unit_price"`
	UnitPrice         decimal.Decimal `bson:"unit_price" json:"unit_price"`
	LineTotal         decimal.Decimal `bson:"line_total" json:"line_total"`
}

type PriceBreakdown struct {
	Subtotal       decimal.Decimal `bson:"subtotal" json:"subtotal"`
	Discount       decimal.Decimal `bson:"discount" json:"discount"`
	DeliveryCharge decimal.Decimal `bson:"delivery_charge" json:"delivery_charge"`
	Total          decimal.Decimal `bson:"total" json:"total"`
}

// NewPriceBreakdown derives the total so that
// total = subtotal - discount + delivery always holds.
func NewPriceBreakdown(subtotal, discount, delivery decimal.Decimal) PriceBreakdown {
	return PriceBreakdown{
		Subtotal:       RoundMoney(subtotal),
		Discount:       RoundMoney(discount),
		DeliveryCharge: RoundMoney(delivery),
		Total:          RoundMoney(subtotal.Sub(discount).Add(delivery)),
	}
}

// PricingWarning reports a cart line left out of the snapshot.
type PricingWarning struct {
	ProductID string `bson:"product_id" json:"product_id"`
	SKU       string `bson:"sku" json:"sku"`
	Reason    string `bson:"reason" json:"reason"`
}

type Checkout struct {
	ID            string           `bson:"_id" json:"id"`
	UserID        string           `bson:"user_id" json:"user_id"`
	Lines         []CheckoutLine   `bson:"lines" json:"lines"`
	Pricing       PriceBreakdown   `bson:"pricing" json:"pricing"`
	Coupon        *AppliedCoupon   `bson:"coupon,omitempty" json:"coupon,omitempty"`
	AddressID     string           `bson:"address_id,omitempty" json:"address_id,omitempty"`
	PaymentMethod PaymentMethod    `bson:"payment_method" json:"payment_method"`
	Status        CheckoutStatus   `bson:"status" json:"status"`
	Warnings      []PricingWarning `bson:"warnings,omitempty" json:"warnings,omitempty"`
	OrderID       string           `bson:"order_id,omitempty" json:"order_id,omitempty"`
	CreatedAt     time.Time        `bson:"created_at" json:"created_at"`
	UpdatedAt     time.Time        `bson:"updated_at" json:"updated_at"`
	// PurgeAt drives the TTL index; correctness never depends on it.
	PurgeAt time.Time `bson:"purge_at" json:"-"`
}

// IsStale reports whether the checkout is past its validity window at now.
func (c *Checkout) IsStale(now time.Time, validity time.Duration) bool {
	return !now.Before(c.CreatedAt.Add(validity))
}

func (c *Checkout) ProductIDs() []string {
	seen := make(map[string]struct{}, len(c.Lines))
	out := make([]string, 0, len(c.Lines))
	for _, l := range c.Lines {
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		out = append(out, l.ProductID)
	}
	return out
}
