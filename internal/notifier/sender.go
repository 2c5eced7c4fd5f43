package notifier

import (
	"context"

	"github.com/fjod/storefront/internal/domain"
	"github.com/fjod/storefront/pkg/logger"
)

// LogSender writes notifications to the structured log in place of an
// email or SMS provider.
type LogSender struct{}

func (LogSender) SendOrder(ctx context.Context, eventType string, e domain.OrderEvent) error {
	logger.FromContext(ctx).Info("notify shopper",
		"event_type", eventType,
		"order_id", e.OrderID,
		"order_number", e.OrderNumber,
		"user_id", e.UserID,
		"email", e.Email,
		"phone", e.Phone,
		"total", e.Total,
		"currency", e.Currency,
		"status", e.Status,
	)
	return nil
}

func (LogSender) SendPayment(ctx context.Context, e domain.PaymentEvent) error {
	logger.FromContext(ctx).Info("notify shopper",
		"event_type", domain.EventPaymentStatusChanged,
		"payment_id", e.PaymentID,
		"order_id", e.OrderID,
		"user_id", e.UserID,
		"merchant_ref", e.MerchantRef,
		"status", e.Status,
	)
	return nil
}
