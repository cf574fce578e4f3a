package flow

import (
	"fmt"
	"net/url"

	"github.com/oapi-codegen/runtime"
)

// PaymentSessionRequest is the form-encoded body of the payment session call.
type PaymentSessionRequest struct {
	Amount                int64           `json:"amount" validate:"gte=0"`
	Currency              string          `json:"currency" validate:"required,len=3"`
	PaymentType           PaymentType     `json:"payment_type" validate:"required,oneof=Regular Recurring MOTO"`
	Description           string          `json:"description,omitempty" validate:"max=100"`
	Customer              SessionCustomer `json:"customer"`
	Billing               SessionAddress  `json:"billing" validate:"-"`
	Shipping              SessionAddress  `json:"shipping,omitempty" validate:"-"`
	SuccessURL            string          `json:"success_url" validate:"required,url"`
	FailureURL            string          `json:"failure_url" validate:"required,url"`
	Metadata              SessionMetadata `json:"metadata,omitempty"`
	Capture               bool            `json:"capture"`
	Items                 []LineItem      `json:"items,omitempty" validate:"dive"`
	EnabledPaymentMethods []string        `json:"enabled_payment_methods,omitempty"`
	ThreeDS               SessionThreeDS  `json:"3ds"`
}

// SessionCustomer is the customer block of a session request.
type SessionCustomer struct {
	Name  string `json:"name"`
	Email string `json:"email" validate:"required,flow_email"`
}

// SessionAddress wraps an address the way the session endpoint expects it.
type SessionAddress struct {
	Address Address `json:"address"`
}

// SessionMetadata is echoed back on webhooks.
type SessionMetadata struct {
	OrderID string `json:"order_id"`
}

// SessionThreeDS is the strong customer authentication block.
type SessionThreeDS struct {
	Enabled            bool   `json:"enabled"`
	AttemptN3D         bool   `json:"attempt_n3d"`
	ChallengeIndicator string `json:"challenge_indicator"`
	Exemption          string `json:"exemption,omitempty"`
	AllowUpgrade       bool   `json:"allow_upgrade"`
}

// Validate checks the request before it is sent.
func (r PaymentSessionRequest) Validate() error {
	if err := validate.Struct(r); err != nil {
		return normalizeValidationError(err)
	}
	return nil
}

// Form encodes the request as nested form fields, for example customer[email] and
// items[0][name]. Empty values are left out.
func (r *PaymentSessionRequest) Form() (url.Values, error) {
	values, err := runtime.MarshalForm(r, nil)
	if err != nil {
		return nil, fmt.Errorf("flow: encode payment session request: %w", err)
	}
	for key, vs := range values {
		kept := vs[:0]
		for _, v := range vs {
			if v != "" {
				kept = append(kept, v)
			}
		}
		if len(kept) == 0 {
			delete(values, key)
			continue
		}
		values[key] = kept
	}
	return values, nil
}

// buildSessionRequest assembles the session request for one initialization attempt.
func buildSessionRequest(snap CheckoutSnapshot, settings Settings, saveCard bool, ref *OrderReference) (*PaymentSessionRequest, error) {
	callback, err := callbackURL(settings.Endpoints.Callback, saveCard, ref)
	if err != nil {
		return nil, err
	}

	req := &PaymentSessionRequest{
		Amount:      snap.Amount,
		Currency:    snap.Currency,
		PaymentType: snap.PaymentType,
		Description: snap.Description,
		Customer: SessionCustomer{
			Name:  snap.Customer.Name(),
			Email: snap.Customer.Email,
		},
		Billing:    SessionAddress{Address: snap.Billing},
		SuccessURL: callback,
		FailureURL: callback,
		Capture:    true,
		Items:      snap.Items,
		ThreeDS: SessionThreeDS{
			Enabled:            settings.ThreeDS.Enabled,
			AttemptN3D:         settings.ThreeDS.AttemptN3D,
			ChallengeIndicator: settings.ThreeDS.ChallengeIndicator,
			AllowUpgrade:       settings.ThreeDS.AllowUpgrade,
		},
	}
	if !snap.Shipping.IsZero() {
		req.Shipping = SessionAddress{Address: snap.Shipping}
	}
	if ref != nil {
		req.Metadata.OrderID = ref.OrderID
	}
	if exemption, ok := settings.ThreeDS.exemption(); ok {
		req.ThreeDS.Exemption = exemption
	}

	switch {
	case snap.PaymentType == PaymentTypeMOTO:
		req.EnabledPaymentMethods = []string{"card"}
	case len(settings.EnabledPaymentMethods) > 0:
		req.EnabledPaymentMethods = append([]string(nil), settings.EnabledPaymentMethods...)
	}

	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

// callbackURL returns the success and failure URL. The query is encoded in sorted key order so
// the same inputs always produce the same URL.
func callbackURL(base string, saveCard bool, ref *OrderReference) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("flow: parse callback endpoint: %w", err)
	}
	q := u.Query()
	q.Set("save_card", yesNo(saveCard))
	if ref != nil && ref.OrderID != "" {
		q.Set("order_id", ref.OrderID)
		if ref.OrderKey != "" {
			q.Set("key", ref.OrderKey)
		}
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// redirectBackURL finalizes an in-page payment on the server.
func redirectBackURL(base string, ref OrderReference, paymentID string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("flow: parse redirect endpoint: %w", err)
	}
	q := u.Query()
	q.Set("order_id", ref.OrderID)
	if ref.OrderKey != "" {
		q.Set("key", ref.OrderKey)
	}
	q.Set("payment_id", paymentID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
