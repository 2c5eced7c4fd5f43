package phonepe

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// State is the provider outcome reduced to what the reconciler acts on.
type State string

const (
	StateSuccess State = "SUCCESS"
	StateFailed  State = "FAILED"
	StatePending State = "PENDING"
)

// MapState reduces a PhonePe response code to a State. Anything unknown
// stays PENDING so it is verified again later. TRANSACTION_NOT_FOUND and a
// bare ERROR say nothing about the payment itself, so they stay PENDING too.
func MapState(code string) State {
	switch code {
	case "PAYMENT_SUCCESS":
		return StateSuccess
	case "PAYMENT_ERROR", "PAYMENT_DECLINED", "DECLINED", "TIMED_OUT",
		"AUTHORIZATION_FAILED", "PAYMENT_CANCELLED", "CANCELLED":
		return StateFailed
	default:
		return StatePending
	}
}

// ToPaise converts a rupee amount to the integer minor units PhonePe expects.
func ToPaise(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromPaise is the inverse of ToPaise.
func FromPaise(paise int64) decimal.Decimal {
	return decimal.New(paise, -2)
}

type instrument struct {
	Type string `json:"type"`
}

type payRequest struct {
	MerchantID            string     `json:"merchantId"`
	MerchantTransactionID string     `json:"merchantTransactionId"`
	MerchantUserID        string     `json:"merchantUserId"`
	Amount                int64      `json:"amount"`
	RedirectURL           string     `json:"redirectUrl"`
	RedirectMode          string     `json:"redirectMode"`
	CallbackURL           string     `json:"callbackUrl"`
	MobileNumber          string     `json:"mobileNumber,omitempty"`
	PaymentInstrument     instrument `json:"paymentInstrument"`
}

type refundRequest struct {
	MerchantID            string `json:"merchantId"`
	MerchantUserID        string `json:"merchantUserId"`
	OriginalTransactionID string `json:"originalTransactionId"`
	MerchantTransactionID string `json:"merchantTransactionId"`
	Amount                int64  `json:"amount"`
	CallbackURL           string `json:"callbackUrl"`
}

// envelope is the common response wrapper of every PhonePe endpoint.
type envelope struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type redirectInfo struct {
	URL    string `json:"url"`
	Method string `json:"method"`
}

type payData struct {
	MerchantID            string `json:"merchantId"`
	MerchantTransactionID string `json:"merchantTransactionId"`
	InstrumentResponse    struct {
		Type         string       `json:"type"`
		RedirectInfo redirectInfo `json:"redirectInfo"`
	} `json:"instrumentResponse"`
}

type statusData struct {
	MerchantID            string `json:"merchantId"`
	MerchantTransactionID string `json:"merchantTransactionId"`
	TransactionID         string `json:"transactionId"`
	Amount                int64  `json:"amount"`
	State                 string `json:"state"`
	ResponseCode          string `json:"responseCode"`
	PaymentInstrument     struct {
		Type string `json:"type"`
	} `json:"paymentInstrument"`
}

type callbackBody struct {
	Response string `json:"response"`
}

// InitiateRequest describes a pay-page session to open.
type InitiateRequest struct {
	MerchantRef string
	UserID      string
	Phone       string
	Amount      decimal.Decimal
	RedirectURL string
	CallbackURL string
}

type InitiateResult struct {
	RedirectURL string
	Code        string
	Raw         map[string]any
}

// StatusResult is the outcome of a status check or a validated callback.
type StatusResult struct {
	MerchantRef   string
	ProviderTxnID string
	State         State
	Code          string
	Message       string
	PaymentMode   string
	Amount        decimal.Decimal
	Raw           map[string]any
}

type RefundRequest struct {
	RefundRef   string
	OriginalRef string
	UserID      string
	Amount      decimal.Decimal
	CallbackURL string
}

type RefundResult struct {
	RefundRef     string
	ProviderTxnID string
	State         State
	Code          string
	Raw           map[string]any
}

func (e envelope) status() (*StatusResult, error) {
	var d statusData
	if len(e.Data) > 0 && string(e.Data) != "null" {
		if err := json.Unmarshal(e.Data, &d); err != nil {
			return nil, err
		}
	}
	return &StatusResult{
		MerchantRef:   d.MerchantTransactionID,
		ProviderTxnID: d.TransactionID,
		State:         MapState(e.Code),
		Code:          e.Code,
		Message:       e.Message,
		PaymentMode:   d.PaymentInstrument.Type,
		Amount:        FromPaise(d.Amount),
		Raw:           e.raw(),
	}, nil
}

func (e envelope) raw() map[string]any {
	out := map[string]any{"success": e.Success, "code": e.Code, "message": e.Message}
	var data any
	if len(e.Data) > 0 && json.Unmarshal(e.Data, &data) == nil && data != nil {
		out["data"] = data
	}
	return out
}
