package domain

import "time"

// StockRecord is the available quantity of one SKU. IsAvailable mirrors
// Quantity > 0 and is rewritten by every writer.
type StockRecord struct {
	ProductID   string    `bson:"product_id" json:"product_id"`
	SKU         string    `bson:"sku" json:"sku"`
	Quantity    int       `bson:"quantity" json:"quantity"`
	IsAvailable bool      `bson:"is_available" json:"is_available"`
	UpdatedAt   time.Time `bson:"updated_at" json:"updated_at"`
}
