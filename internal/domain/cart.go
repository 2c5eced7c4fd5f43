package domain

import "time"

type Cart struct {
	UserID    string     `bson:"user_id" json:"user_id"`
	Items     []CartLine `bson:"items" json:"items"`
	CreatedAt time.Time  `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time  `bson:"updated_at" json:"updated_at"`
}

// CartLine is one (product, sku) entry. Quantity is always at least 1; a line
// decremented to zero is removed.
type CartLine struct {
	ProductID string    `bson:"product_id" json:"product_id"`
	SKU       string    `bson:"sku" json:"sku"`
	Quantity  int       `bson:"quantity" json:"quantity"`
	AddedAt   time.Time `bson:"added_at" json:"added_at"`
}

func (c *Cart) IsEmpty() bool {
	return c == nil || len(c.Items) == 0
}
