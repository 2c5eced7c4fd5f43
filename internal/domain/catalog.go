package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID       string `bson:"_id" json:"id"`
	Name     string `bson:"name" json:"name"`
	ImageURL string `bson:"image_url" json:"image_url"`
	Active   bool   `bson:"active" json:"active"`
}

// PriceRecord is the sellable price for one SKU. Only active records are used
// for pricing.
type PriceRecord struct {
	ID              string           `bson:"_id" json:"id"`
	ProductID       string           `bson:"product_id" json:"product_id"`
	SKU             string           `bson:"sku" json:"sku"`
	OriginalPrice   decimal.Decimal  `bson:"original_price" json:"original_price"`
	DiscountedPrice *decimal.Decimal `bson:"discounted_price,omitempty" json:"discounted_price,omitempty"`
	DiscountPercent decimal.Decimal  `bson:"discount_percent" json:"discount_percent"`
	Active          bool             `bson:"active" json:"active"`
	UpdatedAt       time.Time        `bson:"updated_at" json:"updated_at"`
}

var hundred = decimal.NewFromInt(100)

// UnitPrice is the explicit discounted price when set, otherwise the original
// price less the discount percentage.
func (p PriceRecord) UnitPrice() decimal.Decimal {
	if p.DiscountedPrice != nil {
		return RoundMoney(*p.DiscountedPrice)
	}
	off := p.OriginalPrice.Mul(p.DiscountPercent).Div(hundred)
	return RoundMoney(p.OriginalPrice.Sub(off))
}

// SKUKey identifies a stock-keeping unit of a product.
type SKUKey struct {
	ProductID string
	SKU       string
}

func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}
