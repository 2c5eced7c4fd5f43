package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	EventOrderCreated         = "order.created"
	EventOrderConfirmed       = "order.confirmed"
	EventOrderCancelled       = "order.cancelled"
	EventPaymentStatusChanged = "payment.status_changed"
)

// OutboxEvent is written next to the state change it describes and
// published to Kafka by the outbox poller.
type OutboxEvent struct {
	ID          string     `bson:"_id" json:"id"`
	AggregateID string     `bson:"aggregate_id" json:"aggregate_id"`
	EventType   string     `bson:"event_type" json:"event_type"`
	Payload     []byte     `bson:"payload" json:"payload"`
	CreatedAt   time.Time  `bson:"created_at" json:"created_at"`
	ProcessedAt *time.Time `bson:"processed_at,omitempty" json:"processed_at,omitempty"`
}

// OrderEvent is the payload of every order.* event.
type OrderEvent struct {
	OrderID     string `json:"order_id"`
	OrderNumber string `json:"order_number"`
	UserID      string `json:"user_id"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Total       string `json:"total"`
	Currency    string `json:"currency"`
	Status      string `json:"status"`
}

type PaymentEvent struct {
	PaymentID   string `json:"payment_id"`
	OrderID     string `json:"order_id"`
	UserID      string `json:"user_id"`
	MerchantRef string `json:"merchant_ref"`
	Status      string `json:"status"`
	Source      string `json:"source"`
}

func NewOutboxEvent(aggregateID, eventType string, payload any) (*OutboxEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return &OutboxEvent{
		ID:          uuid.NewString(),
		AggregateID: aggregateID,
		EventType:   eventType,
		Payload:     data,
		CreatedAt:   time.Now().UTC(),
	}, nil
}

func NewOrderEvent(o *Order) OrderEvent {
	return OrderEvent{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		UserID:      o.UserID,
		Email:       o.User.Email,
		Phone:       o.User.Phone,
		Total:       o.TotalAmount.StringFixed(2),
		Currency:    o.Currency,
		Status:      string(o.OrderStatus),
	}
}
