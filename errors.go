package flow

import (
	"errors"
	"strings"
)

// ErrorType groups failures by the layer that produced them.
type ErrorType string

const (
	InvalidInput    ErrorType = "invalid_input"    // Shopper input failed local validation.
	SessionError    ErrorType = "session_error"    // Payment session creation was rejected.
	WidgetError     ErrorType = "widget_error"     // The hosted component reported a failure.
	MountError      ErrorType = "mount_error"      // The component could not be mounted.
	OrderError      ErrorType = "order_error"      // Order precreation failed.
	ProcessingError ErrorType = "processing_error" // Transport or unexpected failure.
)

// ErrorCode is a machine-readable identifier for the specific failure.
type ErrorCode string

const (
	CodeInvalidEmail         ErrorCode = "invalid_email"
	CodeFieldsIncomplete     ErrorCode = "fields_incomplete"
	CodeCustomerEmail        ErrorCode = "customer_email_invalid"
	CodePhoneNumber          ErrorCode = "phone_number_invalid"
	CodeAddressInvalid       ErrorCode = "billing_address_invalid"
	CodeAmountInvalid        ErrorCode = "amount_invalid"
	CodeCurrencyInvalid      ErrorCode = "currency_invalid"
	CodeComponentUnavailable ErrorCode = "component_unavailable"
	CodeMountFailed          ErrorCode = "mount_failed"
	CodeMissingNonce         ErrorCode = "missing_nonce"
	CodeMalformedResponse    ErrorCode = "malformed_response"
	CodeCheckoutRejected     ErrorCode = "checkout_rejected"
	CodeFormMissing          ErrorCode = "form_missing"
	CodePaymentDeclined      ErrorCode = "payment_declined"
	CodeNetwork              ErrorCode = "network_failure"
	CodeInvalidComponent     ErrorCode = "invalid_component"
	CodeGeneric              ErrorCode = "generic"
)

// Error is a failure that can be shown to the shopper.
type Error struct {
	Type    ErrorType
	Code    ErrorCode
	Message string

	err error
}

// Error makes *Error satisfy the stdlib error interface.
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.err != nil {
		return e.Message + ": " + e.err.Error()
	}
	return e.Message
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

type errorOption func(*Error)

// withCause records the internal error behind a user-facing one.
func withCause(err error) errorOption {
	return func(e *Error) {
		e.err = err
	}
}

// withCode overrides the error code.
func withCode(code ErrorCode) errorOption {
	return func(e *Error) {
		e.Code = code
	}
}

func newError(typ ErrorType, code ErrorCode, message string, opts ...errorOption) *Error {
	e := &Error{
		Type:    typ,
		Code:    code,
		Message: message,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(e)
	}
	return e
}

const (
	msgGeneric        = "Something went wrong. Please try again."
	msgRefresh        = "The payment form could not be loaded. Please refresh the page and try again."
	msgUnavailable    = "This payment method is currently unavailable. Please choose another payment method."
	msgInvalidEmail   = "Please enter the email to proceed."
	msgWaitingFields  = "Please fill in all required fields to continue with payment."
	msgOrderFailed    = "We could not create your order. Please try again."
	msgDeclined       = "Your payment was declined. Please try a different payment method."
	msgNetwork        = "We could not reach the payment network. Please check your connection and try again."
	msgInvalidWidget  = "The payment details are incomplete. Please check them and try again."
	msgMissingNonce   = "Your checkout session has expired. Please refresh the page and try again."
	msgFormNotPresent = "The checkout form could not be found. Please refresh the page."
)

// sessionErrorMessages maps payment session error codes to shopper-facing text.
var sessionErrorMessages = map[string]string{
	string(CodeCustomerEmail):    msgInvalidEmail,
	"customer_email_required":    msgInvalidEmail,
	string(CodePhoneNumber):      "Please enter a valid phone number.",
	"phone_country_code_invalid": "Please enter a valid phone number including the country code.",
	string(CodeAddressInvalid):   "Please check your billing address.",
	"billing_country_invalid":    "Please select a valid billing country.",
	"shipping_address_invalid":   "Please check your shipping address.",
	string(CodeAmountInvalid):    "The order amount is invalid. Please refresh the page.",
	string(CodeCurrencyInvalid):  "This currency is not supported.",
	"customer_name_invalid":      "Please enter your full name.",
}

// NewSessionError builds the shopper-facing error for a rejected payment session. Known codes
// map to friendly text, unknown codes are surfaced by their code string.
func NewSessionError(errorType string, codes []string) *Error {
	parts := make([]string, 0, len(codes))
	seen := make(map[string]bool, len(codes))
	for _, code := range codes {
		msg, ok := sessionErrorMessages[code]
		if !ok {
			msg = code
		}
		if seen[msg] {
			continue
		}
		seen[msg] = true
		parts = append(parts, msg)
	}
	code := ErrorCode(errorType)
	if len(codes) > 0 {
		code = ErrorCode(codes[0])
	}
	if len(parts) == 0 {
		if errorType == "" {
			return newError(SessionError, CodeGeneric, msgGeneric)
		}
		parts = append(parts, errorType)
	}
	return newError(SessionError, code, strings.Join(parts, " "))
}

// PublicMessage returns text that is safe to show the shopper.
func PublicMessage(err error) string {
	var fe *Error
	if errors.As(err, &fe) && fe.Message != "" {
		return fe.Message
	}
	return msgGeneric
}

// WidgetErrorKind classifies failures reported by the hosted component.
type WidgetErrorKind string

const (
	WidgetErrorNetwork          WidgetErrorKind = "network"
	WidgetErrorDeclined         WidgetErrorKind = "declined"
	WidgetErrorInvalidComponent WidgetErrorKind = "invalid_component"
	WidgetErrorGeneric          WidgetErrorKind = "generic"
)

// ComponentError is the typed error a [Widget] implementation should report.
type ComponentError struct {
	Kind    WidgetErrorKind
	Message string
}

func (e *ComponentError) Error() string { return e.Message }

// ClassifyWidgetError maps a component failure to a kind. Typed [ComponentError] values win;
// untyped errors fall back to matching their message.
func ClassifyWidgetError(err error) WidgetErrorKind {
	if err == nil {
		return ""
	}
	var ce *ComponentError
	if errors.As(err, &ce) && ce.Kind != "" {
		return ce.Kind
	}
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "network"), strings.Contains(msg, "failed to fetch"), strings.Contains(msg, "timeout"):
		return WidgetErrorNetwork
	case strings.Contains(msg, "declined"), strings.Contains(msg, "decline"):
		return WidgetErrorDeclined
	case strings.Contains(msg, "invalid"), strings.Contains(msg, "component"):
		return WidgetErrorInvalidComponent
	default:
		return WidgetErrorGeneric
	}
}

// newWidgetError builds the shopper-facing error for a component failure.
func newWidgetError(kind WidgetErrorKind, cause error) *Error {
	switch kind {
	case WidgetErrorNetwork:
		return newError(WidgetError, CodeNetwork, msgNetwork, withCause(cause))
	case WidgetErrorDeclined:
		return newError(WidgetError, CodePaymentDeclined, msgDeclined, withCause(cause))
	case WidgetErrorInvalidComponent:
		return newError(WidgetError, CodeInvalidComponent, msgInvalidWidget, withCause(cause))
	default:
		return newError(WidgetError, CodeGeneric, msgGeneric, withCause(cause))
	}
}

var (
	// ErrInvalidEmail is returned when the billing email fails the structural check.
	ErrInvalidEmail = newError(InvalidInput, CodeInvalidEmail, msgInvalidEmail)
	// ErrComponentUnavailable is returned when the hosted component reports it cannot be used.
	ErrComponentUnavailable = newError(WidgetError, CodeComponentUnavailable, msgUnavailable)
	// ErrMountFailed is returned after every mount attempt failed.
	ErrMountFailed = newError(MountError, CodeMountFailed, msgRefresh)
)
