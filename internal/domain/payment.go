package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentStatus string

const (
	PaymentStatusInitiated PaymentStatus = "INITIATED"
	PaymentStatusPending   PaymentStatus = "PENDING"
	PaymentStatusSuccess   PaymentStatus = "SUCCESS"
	PaymentStatusFailed    PaymentStatus = "FAILED"
	PaymentStatusCancelled PaymentStatus = "CANCELLED"
)

// TerminalPaymentStatuses are the states no reconciliation may leave.
var TerminalPaymentStatuses = []PaymentStatus{
	PaymentStatusSuccess,
	PaymentStatusFailed,
	PaymentStatusCancelled,
}

func (s PaymentStatus) IsTerminal() bool {
	switch s {
	case PaymentStatusSuccess, PaymentStatusFailed, PaymentStatusCancelled:
		return true
	default:
		return false
	}
}

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusInitiated, PaymentStatusPending, PaymentStatusSuccess,
		PaymentStatusFailed, PaymentStatusCancelled:
		return true
	default:
		return false
	}
}

// StatusSource tags where a payment transition came from.
type StatusSource string

const (
	SourceInitiate        StatusSource = "initiate"
	SourceGatewayCallback StatusSource = "gateway-callback"
	SourceRedirect        StatusSource = "redirect"
	SourceClientVerify    StatusSource = "client-verify"
	SourceManualAdmin     StatusSource = "manual-admin"
)

type PaymentTransition struct {
	From      PaymentStatus `bson:"from" json:"from"`
	To        PaymentStatus `bson:"to" json:"to"`
	Source    StatusSource  `bson:"source" json:"source"`
	Note      string        `bson:"note,omitempty" json:"note,omitempty"`
	ChangedAt time.Time     `bson:"changed_at" json:"changed_at"`
}

type Refund struct {
	ID          string          `bson:"id" json:"id"`
	MerchantRef string          `bson:"merchant_ref" json:"merchant_ref"`
	Amount      decimal.Decimal `bson:"amount" json:"amount"`
	State       string          `bson:"state" json:"state"`
	ProviderRef string          `bson:"provider_ref,omitempty" json:"provider_ref,omitempty"`
	CreatedAt   time.Time       `bson:"created_at" json:"created_at"`
}

type Payment struct {
	ID             string              `bson:"_id" json:"id"`
	OrderID        string              `bson:"order_id" json:"order_id"`
	UserID         string              `bson:"user_id" json:"user_id"`
	Amount         decimal.Decimal     `bson:"amount" json:"amount"`
	Currency       string              `bson:"currency" json:"currency"`
	Gateway        string              `bson:"gateway" json:"gateway"`
	MerchantRef    string              `bson:"merchant_ref" json:"merchant_ref"`
	ProviderTxnID  string              `bson:"provider_txn_id,omitempty" json:"provider_txn_id,omitempty"`
	PaymentMode    string              `bson:"payment_mode,omitempty" json:"payment_mode,omitempty"`
	Status         PaymentStatus       `bson:"status" json:"status"`
	FailureReason  string              `bson:"failure_reason,omitempty" json:"failure_reason,omitempty"`
	RawResponse    map[string]any      `bson:"raw_response,omitempty" json:"raw_response,omitempty"`
	RedirectURL    string              `bson:"redirect_url,omitempty" json:"redirect_url,omitempty"`
	CallbackURL    string              `bson:"callback_url,omitempty" json:"callback_url,omitempty"`
	History        []PaymentTransition `bson:"history,omitempty" json:"history"`
	Refunds        []Refund            `bson:"refunds,omitempty" json:"refunds,omitempty"`
	RefundedAmount decimal.Decimal     `bson:"refunded_amount" json:"refunded_amount"`
	Meta           map[string]any      `bson:"meta,omitempty" json:"meta,omitempty"`
	CreatedAt      time.Time           `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time           `bson:"updated_at" json:"updated_at"`
}

// Refundable is what is left of the captured amount.
func (p *Payment) Refundable() decimal.Decimal {
	return p.Amount.Sub(p.RefundedAmount)
}

// PaymentUpdate is the delta a reconciliation applies to a non-terminal payment.
type PaymentUpdate struct {
	Status        PaymentStatus
	ProviderTxnID string
	PaymentMode   string
	FailureReason string
	Raw           map[string]any
	Transition    PaymentTransition
}
