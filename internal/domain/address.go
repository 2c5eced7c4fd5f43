package domain

import "time"

type Address struct {
	ID         string    `bson:"_id" json:"id"`
	UserID     string    `bson:"user_id" json:"user_id"`
	Name       string    `bson:"name" json:"name"`
	Phone      string    `bson:"phone" json:"phone"`
	Line1      string    `bson:"line1" json:"line1"`
	Line2      string    `bson:"line2,omitempty" json:"line2,omitempty"`
	City       string    `bson:"city" json:"city"`
	State      string    `bson:"state" json:"state"`
	PostalCode string    `bson:"postal_code" json:"postal_code"`
	Country    string    `bson:"country" json:"country"`
	UpdatedAt  time.Time `bson:"updated_at" json:"updated_at"`
}

// AddressSnapshot is the copy stored on an order.
type AddressSnapshot struct {
	AddressID  string `bson:"address_id" json:"address_id"`
	Name       string `bson:"name" json:"name"`
	Phone      string `bson:"phone" json:"phone"`
	Line1      string `bson:"line1" json:"line1"`
	Line2      string `bson:"line2,omitempty" json:"line2,omitempty"`
	City       string `bson:"city" json:"city"`
	State      string `bson:"state" json:"state"`
	PostalCode string `bson:"postal_code" json:"postal_code"`
	Country    string `bson:"country" json:"country"`
}

func (a Address) Snapshot() AddressSnapshot {
	return AddressSnapshot{
		AddressID:  a.ID,
		Name:       a.Name,
		Phone:      a.Phone,
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}
