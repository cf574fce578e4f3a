package flow

import (
	"context"
	"encoding/json"
	"net/url"
)

// Backend is the set of server endpoints the flow calls.
type Backend interface {
	// CreatePaymentSession returns the session, which may carry error_type and error_codes
	// instead of an id.
	CreatePaymentSession(ctx context.Context, req *PaymentSessionRequest) (*PaymentSession, error)
	// ProcessCheckout submits the full checkout form to the host framework and returns its raw
	// response.
	ProcessCheckout(ctx context.Context, form url.Values) (json.RawMessage, error)
	// ValidateCheckout runs the host framework's checkout field validation.
	ValidateCheckout(ctx context.Context, form url.Values) (*CheckoutValidation, error)
	// RecordFailedOrder records a declined attempt.
	RecordFailedOrder(ctx context.Context, order FailedOrder) error
}

// CheckoutValidation is the result of server-side field validation.
type CheckoutValidation struct {
	Valid    bool     `json:"success"`
	Messages []string `json:"messages,omitempty"`
}

// FailedOrder describes a declined payment attempt.
type FailedOrder struct {
	PaymentSessionID string `json:"payment_session_id"`
	OrderID          string `json:"order_id,omitempty"`
	Email            string `json:"email,omitempty"`
	Reason           string `json:"reason"`
}

// Hidden fields written onto the checkout form.
const (
	HiddenSessionID   = "flow-payment-session-id"
	HiddenOrderID     = "flow-order-id"
	HiddenOrderKey    = "flow-order-key"
	HiddenPaymentID   = "flow-payment-id"
	HiddenPaymentType = "flow-payment-type"
)
